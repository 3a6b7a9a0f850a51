package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-ajo/app/entity"
)

var ErrMembershipAlreadyExists = errors.New("membership already exists")

const membershipColumns = `
	id, group_id, user_id, position, status, security_deposit_paid, joined_at, updated_at
`

type MembershipRepository struct {
	db DBTX
}

func NewMembershipRepository(db DBTX) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// Create fails with ErrMembershipAlreadyExists when either the (group, user)
// or the (group, position) key is taken.
func (r *MembershipRepository) Create(ctx context.Context, membership *entity.Membership) error {
	query := `
		INSERT INTO memberships (group_id, user_id, position, status, security_deposit_paid, joined_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := dbFromContext(ctx, r.db).ExecContext(ctx, query,
		membership.GroupID,
		membership.UserID,
		membership.Position,
		membership.Status,
		membership.SecurityDepositPaid,
		membership.JoinedAt,
		membership.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrMembershipAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	membership.ID = uint64(id)
	return nil
}

func (r *MembershipRepository) FindByGroupUser(ctx context.Context, groupID, userID string) (*entity.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE group_id = ? AND user_id = ? LIMIT 1`
	membership := &entity.Membership{}
	if err := scanMembership(dbFromContext(ctx, r.db).QueryRowContext(ctx, query, groupID, userID), membership); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return membership, nil
}

func (r *MembershipRepository) ListByGroup(ctx context.Context, groupID string) ([]*entity.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE group_id = ? ORDER BY position ASC`
	rows, err := dbFromContext(ctx, r.db).QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.Membership, 0)
	for rows.Next() {
		membership := &entity.Membership{}
		if err := scanMembership(rows, membership); err != nil {
			return nil, err
		}
		items = append(items, membership)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanMembership(scan rowScanner, membership *entity.Membership) error {
	return scan.Scan(
		&membership.ID,
		&membership.GroupID,
		&membership.UserID,
		&membership.Position,
		&membership.Status,
		&membership.SecurityDepositPaid,
		&membership.JoinedAt,
		&membership.UpdatedAt,
	)
}
