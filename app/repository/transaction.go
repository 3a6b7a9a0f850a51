package repository

import (
	"context"
	"errors"

	"github.com/vibast-solutions/ms-go-ajo/app/entity"
)

var ErrTransactionAlreadyExists = errors.New("transaction already exists")

type TransactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create appends a ledger row. The reference is unique, so replaying the same
// money movement yields ErrTransactionAlreadyExists.
func (r *TransactionRepository) Create(ctx context.Context, txn *entity.Transaction) error {
	query := `
		INSERT INTO transactions (
			reference, group_id, user_id, type, amount_minor, currency, status,
			cycle_number, payment_reference, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := dbFromContext(ctx, r.db).ExecContext(ctx, query,
		txn.Reference,
		txn.GroupID,
		txn.UserID,
		txn.Type,
		txn.AmountMinor,
		txn.Currency,
		txn.Status,
		nullableInt32Value(txn.CycleNumber),
		nullableStringValue(txn.PaymentReference),
		txn.CreatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrTransactionAlreadyExists
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	txn.ID = uint64(id)
	return nil
}
