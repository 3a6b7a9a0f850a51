package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-ajo/app/entity"
)

var ErrJoinRequestAlreadyExists = errors.New("join request already exists")

const joinRequestColumns = `
	id, group_id, user_id, preferred_slot, message, status,
	reviewed_by, reviewed_at, rejection_reason, created_at, updated_at
`

type JoinRequestRepository struct {
	db DBTX
}

func NewJoinRequestRepository(db DBTX) *JoinRequestRepository {
	return &JoinRequestRepository{db: db}
}

func (r *JoinRequestRepository) Create(ctx context.Context, req *entity.JoinRequest) error {
	query := `
		INSERT INTO join_requests (` + joinRequestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := dbFromContext(ctx, r.db).ExecContext(ctx, query,
		req.ID,
		req.GroupID,
		req.UserID,
		req.PreferredSlot,
		nullableStringValue(req.Message),
		req.Status,
		nullableStringValue(req.ReviewedBy),
		nullableTimeValue(req.ReviewedAt),
		nullableStringValue(req.RejectionReason),
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrJoinRequestAlreadyExists
		}
		return err
	}
	return nil
}

// Transition updates a request only while it is still in fromStatus.
func (r *JoinRequestRepository) Transition(ctx context.Context, req *entity.JoinRequest, fromStatus string) (bool, error) {
	query := `
		UPDATE join_requests
		SET status = ?, reviewed_by = ?, reviewed_at = ?, rejection_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	result, err := dbFromContext(ctx, r.db).ExecContext(ctx, query,
		req.Status,
		nullableStringValue(req.ReviewedBy),
		nullableTimeValue(req.ReviewedAt),
		nullableStringValue(req.RejectionReason),
		req.UpdatedAt,
		req.ID,
		fromStatus,
	)
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

func (r *JoinRequestRepository) FindByID(ctx context.Context, id string) (*entity.JoinRequest, error) {
	query := `SELECT ` + joinRequestColumns + ` FROM join_requests WHERE id = ? LIMIT 1`
	req := &entity.JoinRequest{}
	if err := scanJoinRequest(dbFromContext(ctx, r.db).QueryRowContext(ctx, query, id), req); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return req, nil
}

// FindLatestByGroupUser returns the newest request of the given status.
func (r *JoinRequestRepository) FindLatestByGroupUser(ctx context.Context, groupID, userID, status string) (*entity.JoinRequest, error) {
	query := `
		SELECT ` + joinRequestColumns + `
		FROM join_requests
		WHERE group_id = ? AND user_id = ? AND status = ?
		ORDER BY created_at DESC
		LIMIT 1
	`
	req := &entity.JoinRequest{}
	if err := scanJoinRequest(dbFromContext(ctx, r.db).QueryRowContext(ctx, query, groupID, userID, status), req); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *JoinRequestRepository) ListByGroup(ctx context.Context, groupID, status string) ([]*entity.JoinRequest, error) {
	query := `SELECT ` + joinRequestColumns + ` FROM join_requests WHERE group_id = ?`
	args := []interface{}{groupID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at ASC"

	rows, err := dbFromContext(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.JoinRequest, 0)
	for rows.Next() {
		req := &entity.JoinRequest{}
		if err := scanJoinRequest(rows, req); err != nil {
			return nil, err
		}
		items = append(items, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanJoinRequest(scan rowScanner, req *entity.JoinRequest) error {
	var message, reviewedBy, reason sql.NullString
	var reviewedAt sql.NullTime

	if err := scan.Scan(
		&req.ID,
		&req.GroupID,
		&req.UserID,
		&req.PreferredSlot,
		&message,
		&req.Status,
		&reviewedBy,
		&reviewedAt,
		&reason,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return err
	}

	req.Message = stringPtrFromNull(message)
	req.ReviewedBy = stringPtrFromNull(reviewedBy)
	req.ReviewedAt = timePtrFromNull(reviewedAt)
	req.RejectionReason = stringPtrFromNull(reason)
	return nil
}
