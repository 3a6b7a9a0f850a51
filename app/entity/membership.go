package entity

import "time"

const (
	MembershipStatusPending   = "pending"
	MembershipStatusActive    = "active"
	MembershipStatusSuspended = "suspended"
	MembershipStatusRemoved   = "removed"
)

type Membership struct {
	ID      uint64
	GroupID string
	UserID  string

	Position            int32
	Status              string
	SecurityDepositPaid bool

	JoinedAt  time.Time
	UpdatedAt time.Time
}
