package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-ajo/app/entity"
)

const cycleColumns = `
	id, group_id, cycle_number, recipient_id, expected_total_minor, collected_total_minor,
	start_date, due_date, status, completed_at
`

type CycleRepository struct {
	db DBTX
}

func NewCycleRepository(db DBTX) *CycleRepository {
	return &CycleRepository{db: db}
}

func (r *CycleRepository) CreateBatch(ctx context.Context, cycles []*entity.Cycle) error {
	query := `
		INSERT INTO group_cycles (
			group_id, cycle_number, recipient_id, expected_total_minor, collected_total_minor,
			start_date, due_date, status, completed_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	db := dbFromContext(ctx, r.db)
	for _, cycle := range cycles {
		result, err := db.ExecContext(ctx, query,
			cycle.GroupID,
			cycle.CycleNumber,
			cycle.RecipientID,
			cycle.ExpectedTotalMinor,
			cycle.CollectedTotalMinor,
			cycle.StartDate,
			cycle.DueDate,
			cycle.Status,
			nullableTimeValue(cycle.CompletedAt),
		)
		if err != nil {
			return err
		}
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		cycle.ID = uint64(id)
	}
	return nil
}

func (r *CycleRepository) Find(ctx context.Context, groupID string, cycleNumber int32) (*entity.Cycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM group_cycles WHERE group_id = ? AND cycle_number = ? LIMIT 1`
	cycle := &entity.Cycle{}
	var completedAt sql.NullTime
	err := dbFromContext(ctx, r.db).QueryRowContext(ctx, query, groupID, cycleNumber).Scan(
		&cycle.ID,
		&cycle.GroupID,
		&cycle.CycleNumber,
		&cycle.RecipientID,
		&cycle.ExpectedTotalMinor,
		&cycle.CollectedTotalMinor,
		&cycle.StartDate,
		&cycle.DueDate,
		&cycle.Status,
		&completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cycle.CompletedAt = timePtrFromNull(completedAt)
	return cycle, nil
}

// Complete closes a cycle once; a second call reports false.
func (r *CycleRepository) Complete(ctx context.Context, id uint64, collectedMinor int64, now time.Time) (bool, error) {
	query := `
		UPDATE group_cycles
		SET status = ?, collected_total_minor = ?, completed_at = ?
		WHERE id = ? AND status <> ?
	`
	result, err := dbFromContext(ctx, r.db).ExecContext(ctx, query,
		entity.CycleStatusCompleted, collectedMinor, now, id, entity.CycleStatusCompleted)
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

func (r *CycleRepository) Activate(ctx context.Context, groupID string, cycleNumber int32) (bool, error) {
	query := `
		UPDATE group_cycles SET status = ?
		WHERE group_id = ? AND cycle_number = ? AND status = ?
	`
	result, err := dbFromContext(ctx, r.db).ExecContext(ctx, query,
		entity.CycleStatusActive, groupID, cycleNumber, entity.CycleStatusPending)
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}
