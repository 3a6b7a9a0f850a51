package entity

import "time"

type AuditEntry struct {
	ID          uint64
	ActorID     string
	Action      string
	EntityType  string
	EntityID    string
	DetailsJSON *string
	CreatedAt   time.Time
}
