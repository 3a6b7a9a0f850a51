package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-ajo/app/entity"
)

type AuditRepository struct {
	db DBTX
}

func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, entry *entity.AuditEntry) error {
	query := `
		INSERT INTO audit_entries (actor_id, action, entity_type, entity_id, details_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := dbFromContext(ctx, r.db).ExecContext(ctx, query,
		entry.ActorID,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		nullableStringValue(entry.DetailsJSON),
		entry.CreatedAt,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = uint64(id)
	return nil
}
