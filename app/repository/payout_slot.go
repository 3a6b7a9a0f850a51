package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-ajo/app/entity"
)

const slotColumns = `
	group_id, slot_number, payout_cycle, status,
	reserved_by, reserved_at, assigned_to, assigned_at, updated_at
`

type PayoutSlotRepository struct {
	db DBTX
}

func NewPayoutSlotRepository(db DBTX) *PayoutSlotRepository {
	return &PayoutSlotRepository{db: db}
}

func (r *PayoutSlotRepository) CreateBatch(ctx context.Context, slots []*entity.PayoutSlot) error {
	query := `
		INSERT INTO payout_slots (` + slotColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	db := dbFromContext(ctx, r.db)
	for _, slot := range slots {
		_, err := db.ExecContext(ctx, query,
			slot.GroupID,
			slot.SlotNumber,
			slot.PayoutCycle,
			slot.Status,
			nullableStringValue(slot.ReservedBy),
			nullableTimeValue(slot.ReservedAt),
			nullableStringValue(slot.AssignedTo),
			nullableTimeValue(slot.AssignedAt),
			slot.UpdatedAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *PayoutSlotRepository) Find(ctx context.Context, groupID string, slotNumber int32) (*entity.PayoutSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM payout_slots WHERE group_id = ? AND slot_number = ? LIMIT 1`
	slot := &entity.PayoutSlot{}
	if err := scanSlot(dbFromContext(ctx, r.db).QueryRowContext(ctx, query, groupID, slotNumber), slot); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return slot, nil
}

func (r *PayoutSlotRepository) ListByGroup(ctx context.Context, groupID string) ([]*entity.PayoutSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM payout_slots WHERE group_id = ? ORDER BY slot_number ASC`
	rows, err := dbFromContext(ctx, r.db).QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slots := make([]*entity.PayoutSlot, 0)
	for rows.Next() {
		slot := &entity.PayoutSlot{}
		if err := scanSlot(rows, slot); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return slots, nil
}

// Reserve succeeds for exactly one caller per available slot.
func (r *PayoutSlotRepository) Reserve(ctx context.Context, groupID string, slotNumber int32, userID string, now time.Time) (bool, error) {
	query := `
		UPDATE payout_slots
		SET status = ?, reserved_by = ?, reserved_at = ?, updated_at = ?
		WHERE group_id = ? AND slot_number = ? AND status = ?
	`
	result, err := dbFromContext(ctx, r.db).ExecContext(ctx, query,
		entity.SlotStatusReserved, userID, now, now,
		groupID, slotNumber, entity.SlotStatusAvailable)
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

// Release returns a slot reserved by userID to the available pool.
func (r *PayoutSlotRepository) Release(ctx context.Context, groupID string, slotNumber int32, userID string, now time.Time) (bool, error) {
	query := `
		UPDATE payout_slots
		SET status = ?, reserved_by = NULL, reserved_at = NULL, updated_at = ?
		WHERE group_id = ? AND slot_number = ? AND status = ? AND reserved_by = ?
	`
	result, err := dbFromContext(ctx, r.db).ExecContext(ctx, query,
		entity.SlotStatusAvailable, now,
		groupID, slotNumber, entity.SlotStatusReserved, userID)
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

// Assign moves a slot to assigned for userID. The slot must be available or
// reserved by the same user.
func (r *PayoutSlotRepository) Assign(ctx context.Context, groupID string, slotNumber int32, userID string, now time.Time) (bool, error) {
	query := `
		UPDATE payout_slots
		SET status = ?, assigned_to = ?, assigned_at = ?, updated_at = ?
		WHERE group_id = ? AND slot_number = ?
		  AND (status = ? OR (status = ? AND reserved_by = ?))
	`
	result, err := dbFromContext(ctx, r.db).ExecContext(ctx, query,
		entity.SlotStatusAssigned, userID, now, now,
		groupID, slotNumber,
		entity.SlotStatusAvailable, entity.SlotStatusReserved, userID)
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

func scanSlot(scan rowScanner, slot *entity.PayoutSlot) error {
	var reservedBy, assignedTo sql.NullString
	var reservedAt, assignedAt sql.NullTime

	if err := scan.Scan(
		&slot.GroupID,
		&slot.SlotNumber,
		&slot.PayoutCycle,
		&slot.Status,
		&reservedBy,
		&reservedAt,
		&assignedTo,
		&assignedAt,
		&slot.UpdatedAt,
	); err != nil {
		return err
	}

	slot.ReservedBy = stringPtrFromNull(reservedBy)
	slot.ReservedAt = timePtrFromNull(reservedAt)
	slot.AssignedTo = stringPtrFromNull(assignedTo)
	slot.AssignedAt = timePtrFromNull(assignedAt)
	return nil
}
