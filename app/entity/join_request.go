package entity

import "time"

const (
	JoinRequestStatusPending   = "pending"
	JoinRequestStatusApproved  = "approved"
	JoinRequestStatusRejected  = "rejected"
	JoinRequestStatusWithdrawn = "withdrawn"
)

type JoinRequest struct {
	ID            string
	GroupID       string
	UserID        string
	PreferredSlot int32
	Message       *string
	Status        string

	ReviewedBy      *string
	ReviewedAt      *time.Time
	RejectionReason *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
