package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-ajo/app/entity"
)

var ErrReconciliationAlreadyExists = errors.New("reconciliation already exists")

const reconciliationColumns = `
	id, payment_id, reference, reason, detail, status,
	resolution, resolved_by, resolved_at, note, created_at, updated_at
`

type ReconciliationRepository struct {
	db DBTX
}

func NewReconciliationRepository(db DBTX) *ReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

func (r *ReconciliationRepository) Create(ctx context.Context, item *entity.Reconciliation) error {
	query := `
		INSERT INTO payment_reconciliations (
			payment_id, reference, reason, detail, status, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := dbFromContext(ctx, r.db).ExecContext(ctx, query,
		item.PaymentID,
		item.Reference,
		item.Reason,
		nullableStringValue(item.Detail),
		item.Status,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrReconciliationAlreadyExists
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	item.ID = uint64(id)
	return nil
}

// Reopen puts an existing item for the payment back in the queue with a fresh
// reason. Items closed by a refund or dismissal keep the admin's decision.
func (r *ReconciliationRepository) Reopen(ctx context.Context, paymentID uint64, reason string, detail *string, now time.Time) error {
	query := `
		UPDATE payment_reconciliations
		SET status = ?, reason = ?, detail = ?, resolution = NULL, resolved_by = NULL,
			resolved_at = NULL, note = NULL, updated_at = ?
		WHERE payment_id = ? AND (resolution IS NULL OR resolution = ?)
	`
	_, err := dbFromContext(ctx, r.db).ExecContext(ctx, query,
		entity.ReconciliationStatusOpen, reason, nullableStringValue(detail), now, paymentID,
		entity.ReconciliationResolutionRetry)
	return err
}

func (r *ReconciliationRepository) Resolve(ctx context.Context, item *entity.Reconciliation) (bool, error) {
	query := `
		UPDATE payment_reconciliations
		SET status = ?, resolution = ?, resolved_by = ?, resolved_at = ?, note = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	result, err := dbFromContext(ctx, r.db).ExecContext(ctx, query,
		entity.ReconciliationStatusResolved,
		nullableStringValue(item.Resolution),
		nullableStringValue(item.ResolvedBy),
		nullableTimeValue(item.ResolvedAt),
		nullableStringValue(item.Note),
		item.UpdatedAt,
		item.ID,
		entity.ReconciliationStatusOpen,
	)
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

func (r *ReconciliationRepository) FindByID(ctx context.Context, id uint64) (*entity.Reconciliation, error) {
	query := `SELECT ` + reconciliationColumns + ` FROM payment_reconciliations WHERE id = ? LIMIT 1`
	item := &entity.Reconciliation{}
	if err := scanReconciliation(dbFromContext(ctx, r.db).QueryRowContext(ctx, query, id), item); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *ReconciliationRepository) FindByPaymentID(ctx context.Context, paymentID uint64) (*entity.Reconciliation, error) {
	query := `SELECT ` + reconciliationColumns + ` FROM payment_reconciliations WHERE payment_id = ? LIMIT 1`
	item := &entity.Reconciliation{}
	if err := scanReconciliation(dbFromContext(ctx, r.db).QueryRowContext(ctx, query, paymentID), item); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *ReconciliationRepository) List(ctx context.Context, status string, limit, offset int32) ([]*entity.Reconciliation, error) {
	query := `SELECT ` + reconciliationColumns + ` FROM payment_reconciliations`
	args := make([]interface{}, 0, 3)
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := dbFromContext(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.Reconciliation, 0)
	for rows.Next() {
		item := &entity.Reconciliation{}
		if err := scanReconciliation(rows, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanReconciliation(scan rowScanner, item *entity.Reconciliation) error {
	var detail, resolution, resolvedBy, note sql.NullString
	var resolvedAt sql.NullTime
	if err := scan.Scan(
		&item.ID,
		&item.PaymentID,
		&item.Reference,
		&item.Reason,
		&detail,
		&item.Status,
		&resolution,
		&resolvedBy,
		&resolvedAt,
		&note,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return err
	}
	item.Detail = stringPtrFromNull(detail)
	item.Resolution = stringPtrFromNull(resolution)
	item.ResolvedBy = stringPtrFromNull(resolvedBy)
	item.ResolvedAt = timePtrFromNull(resolvedAt)
	item.Note = stringPtrFromNull(note)
	return nil
}
