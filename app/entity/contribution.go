package entity

import "time"

const (
	ContributionStatusPending = "pending"
	ContributionStatusPaid    = "paid"
	ContributionStatusOverdue = "overdue"
	ContributionStatusWaived  = "waived"
)

type Contribution struct {
	ID          uint64
	GroupID     string
	UserID      string
	CycleNumber int32

	AmountMinor int64
	Status      string
	DueDate     time.Time

	PaidAt           *time.Time
	PaymentReference *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *Contribution) IsSettled() bool {
	return c.Status == ContributionStatusPaid || c.Status == ContributionStatusWaived
}
