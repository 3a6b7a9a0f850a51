package entity

import "time"

const (
	CycleStatusPending   = "pending"
	CycleStatusActive    = "active"
	CycleStatusCompleted = "completed"
)

type Cycle struct {
	ID          uint64
	GroupID     string
	CycleNumber int32
	RecipientID string

	ExpectedTotalMinor  int64
	CollectedTotalMinor int64

	StartDate   time.Time
	DueDate     time.Time
	Status      string
	CompletedAt *time.Time
}
