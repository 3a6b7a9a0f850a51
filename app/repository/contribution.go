package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-ajo/app/entity"
)

var ErrContributionAlreadyExists = errors.New("contribution already exists")

const contributionColumns = `
	id, group_id, user_id, cycle_number, amount_minor, status, due_date,
	paid_at, payment_reference, created_at, updated_at
`

type ContributionRepository struct {
	db DBTX
}

func NewContributionRepository(db DBTX) *ContributionRepository {
	return &ContributionRepository{db: db}
}

func (r *ContributionRepository) Create(ctx context.Context, contribution *entity.Contribution) error {
	query := `
		INSERT INTO contributions (
			group_id, user_id, cycle_number, amount_minor, status, due_date,
			paid_at, payment_reference, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := dbFromContext(ctx, r.db).ExecContext(ctx, query,
		contribution.GroupID,
		contribution.UserID,
		contribution.CycleNumber,
		contribution.AmountMinor,
		contribution.Status,
		contribution.DueDate,
		nullableTimeValue(contribution.PaidAt),
		nullableStringValue(contribution.PaymentReference),
		contribution.CreatedAt,
		contribution.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrContributionAlreadyExists
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	contribution.ID = uint64(id)
	return nil
}

func (r *ContributionRepository) Find(ctx context.Context, groupID, userID string, cycleNumber int32) (*entity.Contribution, error) {
	query := `
		SELECT ` + contributionColumns + `
		FROM contributions
		WHERE group_id = ? AND user_id = ? AND cycle_number = ?
		LIMIT 1
	`
	contribution := &entity.Contribution{}
	if err := scanContribution(dbFromContext(ctx, r.db).QueryRowContext(ctx, query, groupID, userID, cycleNumber), contribution); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return contribution, nil
}

// MarkPaid settles a pending or overdue contribution.
func (r *ContributionRepository) MarkPaid(ctx context.Context, id uint64, paymentReference string, now time.Time) (bool, error) {
	query := `
		UPDATE contributions
		SET status = ?, paid_at = ?, payment_reference = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`
	result, err := dbFromContext(ctx, r.db).ExecContext(ctx, query,
		entity.ContributionStatusPaid, now, paymentReference, now,
		id, entity.ContributionStatusPending, entity.ContributionStatusOverdue)
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

func (r *ContributionRepository) MarkOverdue(ctx context.Context, id uint64, now time.Time) (bool, error) {
	query := `
		UPDATE contributions SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	result, err := dbFromContext(ctx, r.db).ExecContext(ctx, query,
		entity.ContributionStatusOverdue, now, id, entity.ContributionStatusPending)
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

func (r *ContributionRepository) ListByGroupCycle(ctx context.Context, groupID string, cycleNumber int32) ([]*entity.Contribution, error) {
	query := `
		SELECT ` + contributionColumns + `
		FROM contributions
		WHERE group_id = ? AND cycle_number = ?
		ORDER BY user_id ASC
	`
	return r.list(ctx, query, groupID, cycleNumber)
}

func (r *ContributionRepository) ListByGroup(ctx context.Context, groupID string) ([]*entity.Contribution, error) {
	query := `
		SELECT ` + contributionColumns + `
		FROM contributions
		WHERE group_id = ?
		ORDER BY cycle_number ASC, user_id ASC
	`
	return r.list(ctx, query, groupID)
}

func (r *ContributionRepository) ListPastDue(ctx context.Context, now time.Time, limit int32) ([]*entity.Contribution, error) {
	query := `
		SELECT ` + contributionColumns + `
		FROM contributions
		WHERE status = ? AND due_date < ?
		ORDER BY due_date ASC
		LIMIT ?
	`
	return r.list(ctx, query, entity.ContributionStatusPending, now, limit)
}

func (r *ContributionRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Contribution, error) {
	rows, err := dbFromContext(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.Contribution, 0)
	for rows.Next() {
		contribution := &entity.Contribution{}
		if err := scanContribution(rows, contribution); err != nil {
			return nil, err
		}
		items = append(items, contribution)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanContribution(scan rowScanner, contribution *entity.Contribution) error {
	var paidAt sql.NullTime
	var reference sql.NullString
	if err := scan.Scan(
		&contribution.ID,
		&contribution.GroupID,
		&contribution.UserID,
		&contribution.CycleNumber,
		&contribution.AmountMinor,
		&contribution.Status,
		&contribution.DueDate,
		&paidAt,
		&reference,
		&contribution.CreatedAt,
		&contribution.UpdatedAt,
	); err != nil {
		return err
	}
	contribution.PaidAt = timePtrFromNull(paidAt)
	contribution.PaymentReference = stringPtrFromNull(reference)
	return nil
}
