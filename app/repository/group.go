package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-ajo/app/entity"
)

var ErrGroupNotFound = errors.New("group not found")

const groupColumns = `
	id, name, description, creator_id,
	contribution_amount_minor, security_deposit_minor, currency, frequency,
	total_members, current_members, current_cycle, service_fee_percent,
	status, start_date, created_at, updated_at
`

type GroupRepository struct {
	db DBTX
}

func NewGroupRepository(db DBTX) *GroupRepository {
	return &GroupRepository{db: db}
}

func (r *GroupRepository) Create(ctx context.Context, group *entity.Group) error {
	query := `
		INSERT INTO ajo_groups (` + groupColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := dbFromContext(ctx, r.db).ExecContext(ctx, query,
		group.ID,
		group.Name,
		nullableStringValue(group.Description),
		group.CreatorID,
		group.ContributionAmountMinor,
		group.SecurityDepositMinor,
		group.Currency,
		group.Frequency,
		group.TotalMembers,
		group.CurrentMembers,
		group.CurrentCycle,
		group.ServiceFeePercent,
		group.Status,
		nullableTimeValue(group.StartDate),
		group.CreatedAt,
		group.UpdatedAt,
	)
	return err
}

func (r *GroupRepository) Update(ctx context.Context, group *entity.Group) error {
	query := `
		UPDATE ajo_groups SET
			current_members = ?,
			current_cycle = ?,
			status = ?,
			start_date = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := dbFromContext(ctx, r.db).ExecContext(ctx, query,
		group.CurrentMembers,
		group.CurrentCycle,
		group.Status,
		nullableTimeValue(group.StartDate),
		group.UpdatedAt,
		group.ID,
	)
	if err != nil {
		return err
	}
	ok, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return ErrGroupNotFound
	}
	return nil
}

func (r *GroupRepository) FindByID(ctx context.Context, id string) (*entity.Group, error) {
	return r.find(ctx, `SELECT `+groupColumns+` FROM ajo_groups WHERE id = ? LIMIT 1`, id)
}

// FindByIDForUpdate row-locks the group until the surrounding transaction
// ends. Membership counting and activation go through it.
func (r *GroupRepository) FindByIDForUpdate(ctx context.Context, id string) (*entity.Group, error) {
	return r.find(ctx, `SELECT `+groupColumns+` FROM ajo_groups WHERE id = ? LIMIT 1 FOR UPDATE`, id)
}

func (r *GroupRepository) find(ctx context.Context, query string, id string) (*entity.Group, error) {
	group := &entity.Group{}
	var description sql.NullString
	var startDate sql.NullTime

	err := dbFromContext(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&group.ID,
		&group.Name,
		&description,
		&group.CreatorID,
		&group.ContributionAmountMinor,
		&group.SecurityDepositMinor,
		&group.Currency,
		&group.Frequency,
		&group.TotalMembers,
		&group.CurrentMembers,
		&group.CurrentCycle,
		&group.ServiceFeePercent,
		&group.Status,
		&startDate,
		&group.CreatedAt,
		&group.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	group.Description = stringPtrFromNull(description)
	group.StartDate = timePtrFromNull(startDate)
	return group, nil
}
