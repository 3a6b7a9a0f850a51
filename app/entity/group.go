package entity

import "time"

const (
	GroupStatusForming   = "forming"
	GroupStatusActive    = "active"
	GroupStatusCompleted = "completed"
	GroupStatusCancelled = "cancelled"
)

const (
	FrequencyDaily    = "daily"
	FrequencyWeekly   = "weekly"
	FrequencyBiweekly = "biweekly"
	FrequencyMonthly  = "monthly"
)

type Group struct {
	ID          string
	Name        string
	Description *string
	CreatorID   string

	ContributionAmountMinor int64
	SecurityDepositMinor    int64
	Currency                string
	Frequency               string

	TotalMembers   int32
	CurrentMembers int32
	CurrentCycle   int32

	ServiceFeePercent string

	Status    string
	StartDate *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// JoinAmountMinor is what a member pays to take a slot: the security deposit
// plus the first contribution.
func (g *Group) JoinAmountMinor() int64 {
	return g.SecurityDepositMinor + g.ContributionAmountMinor
}

func (g *Group) IsFull() bool {
	return g.CurrentMembers >= g.TotalMembers
}
