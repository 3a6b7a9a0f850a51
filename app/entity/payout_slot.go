package entity

import "time"

const (
	SlotStatusAvailable = "available"
	SlotStatusReserved  = "reserved"
	SlotStatusAssigned  = "assigned"
)

type PayoutSlot struct {
	GroupID    string
	SlotNumber int32
	// PayoutCycle is the cycle in which the slot holder is paid out.
	PayoutCycle int32
	Status      string

	ReservedBy *string
	ReservedAt *time.Time
	AssignedTo *string
	AssignedAt *time.Time

	UpdatedAt time.Time
}

func (s *PayoutSlot) HeldBy(userID string) bool {
	switch s.Status {
	case SlotStatusReserved:
		return s.ReservedBy != nil && *s.ReservedBy == userID
	case SlotStatusAssigned:
		return s.AssignedTo != nil && *s.AssignedTo == userID
	}
	return false
}
