package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-ajo/app/entity"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment already exists")
)

const paymentColumns = `
	id, reference, user_id, amount_minor, currency, status, verified,
	payment_type, group_id, metadata_json,
	gateway_channel, gateway_fees_minor, gateway_paid_at, gateway_transaction_id,
	verified_at, processed_at, processing_error,
	created_at, updated_at
`

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	metadataJSON, err := serializeMetadata(payment.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payments (
			reference, user_id, amount_minor, currency, status, verified,
			payment_type, group_id, metadata_json,
			gateway_channel, gateway_fees_minor, gateway_paid_at, gateway_transaction_id,
			verified_at, processed_at, processing_error,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := dbFromContext(ctx, r.db).ExecContext(ctx, query,
		payment.Reference,
		payment.UserID,
		payment.AmountMinor,
		payment.Currency,
		payment.Status,
		payment.Verified,
		payment.PaymentType,
		nullableStringValue(payment.GroupID),
		metadataJSON,
		nullableStringValue(payment.GatewayChannel),
		nullableInt64Value(payment.GatewayFeesMinor),
		nullableTimeValue(payment.GatewayPaidAt),
		nullableStringValue(payment.GatewayTransactionID),
		nullableTimeValue(payment.VerifiedAt),
		nullableTimeValue(payment.ProcessedAt),
		nullableStringValue(payment.ProcessingError),
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	payment.ID = uint64(id)
	return nil
}

// ApplyVerification writes the gateway outcome onto a pending payment. A
// payment that already left pending is never touched; the boolean reports
// whether the row changed.
func (r *PaymentRepository) ApplyVerification(ctx context.Context, payment *entity.Payment) (bool, error) {
	metadataJSON, err := serializeMetadata(payment.Metadata)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE payments SET
			user_id = ?,
			amount_minor = ?,
			currency = ?,
			status = ?,
			verified = ?,
			payment_type = ?,
			group_id = ?,
			metadata_json = ?,
			gateway_channel = ?,
			gateway_fees_minor = ?,
			gateway_paid_at = ?,
			gateway_transaction_id = ?,
			verified_at = ?,
			updated_at = ?
		WHERE reference = ? AND status = ?
	`

	result, err := dbFromContext(ctx, r.db).ExecContext(ctx, query,
		payment.UserID,
		payment.AmountMinor,
		payment.Currency,
		payment.Status,
		payment.Verified,
		payment.PaymentType,
		nullableStringValue(payment.GroupID),
		metadataJSON,
		nullableStringValue(payment.GatewayChannel),
		nullableInt64Value(payment.GatewayFeesMinor),
		nullableTimeValue(payment.GatewayPaidAt),
		nullableStringValue(payment.GatewayTransactionID),
		nullableTimeValue(payment.VerifiedAt),
		payment.UpdatedAt,
		payment.Reference,
		entity.PaymentStatusPending,
	)
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

func (r *PaymentRepository) MarkProcessed(ctx context.Context, id uint64, processedAt time.Time) (bool, error) {
	query := `
		UPDATE payments
		SET processed_at = ?, processing_error = NULL, updated_at = ?
		WHERE id = ? AND verified = 1 AND processed_at IS NULL
	`
	result, err := dbFromContext(ctx, r.db).ExecContext(ctx, query, processedAt, processedAt, id)
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

func (r *PaymentRepository) SetProcessingError(ctx context.Context, id uint64, message string, now time.Time) error {
	query := `UPDATE payments SET processing_error = ?, updated_at = ? WHERE id = ?`
	result, err := dbFromContext(ctx, r.db).ExecContext(ctx, query, message, now, id)
	if err != nil {
		return err
	}
	ok, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPaymentNotFound
	}
	return nil
}

// MarkFailed moves a pending payment to failed without gateway data. Used by
// the stale-payment sweep.
func (r *PaymentRepository) MarkFailed(ctx context.Context, id uint64, reason string, now time.Time) (bool, error) {
	query := `
		UPDATE payments
		SET status = ?, processing_error = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	result, err := dbFromContext(ctx, r.db).ExecContext(ctx, query,
		entity.PaymentStatusFailed, reason, now, id, entity.PaymentStatusPending)
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

func (r *PaymentRepository) FindByReference(ctx context.Context, reference string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reference = ? LIMIT 1`

	payment := &entity.Payment{}
	if err := scanPayment(dbFromContext(ctx, r.db).QueryRowContext(ctx, query, reference), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRepository) ListPendingBefore(ctx context.Context, before time.Time, limit int32) ([]*entity.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = ? AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`
	return r.list(ctx, query, entity.PaymentStatusPending, before, limit)
}

func (r *PaymentRepository) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = ? AND created_at <= ?
		ORDER BY created_at ASC
		LIMIT ?
	`
	return r.list(ctx, query, entity.PaymentStatusPending, cutoff, limit)
}

// ListUnprocessed returns verified payments whose business effect has not been
// applied and that never went to manual reconciliation. Open items wait for an
// admin; refunded or dismissed ones are settled outside the pipeline.
func (r *PaymentRepository) ListUnprocessed(ctx context.Context, before time.Time, limit int32) ([]*entity.Payment, error) {
	query := `
		SELECT ` + prefixedPaymentColumns + `
		FROM payments p
		LEFT JOIN payment_reconciliations rc ON rc.payment_id = p.id
		WHERE p.verified = 1
		  AND p.processed_at IS NULL
		  AND p.verified_at <= ?
		  AND rc.id IS NULL
		ORDER BY p.verified_at ASC
		LIMIT ?
	`
	return r.list(ctx, query, before, limit)
}

func (r *PaymentRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Payment, error) {
	rows, err := dbFromContext(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*entity.Payment, 0)
	for rows.Next() {
		item := &entity.Payment{}
		if err := scanPayment(rows, item); err != nil {
			return nil, err
		}
		payments = append(payments, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

const prefixedPaymentColumns = `
	p.id, p.reference, p.user_id, p.amount_minor, p.currency, p.status, p.verified,
	p.payment_type, p.group_id, p.metadata_json,
	p.gateway_channel, p.gateway_fees_minor, p.gateway_paid_at, p.gateway_transaction_id,
	p.verified_at, p.processed_at, p.processing_error,
	p.created_at, p.updated_at
`

func scanPayment(scan rowScanner, payment *entity.Payment) error {
	var groupID sql.NullString
	var metadataJSON string
	var channel sql.NullString
	var fees sql.NullInt64
	var paidAt sql.NullTime
	var gatewayTxID sql.NullString
	var verifiedAt sql.NullTime
	var processedAt sql.NullTime
	var processingErr sql.NullString

	err := scan.Scan(
		&payment.ID,
		&payment.Reference,
		&payment.UserID,
		&payment.AmountMinor,
		&payment.Currency,
		&payment.Status,
		&payment.Verified,
		&payment.PaymentType,
		&groupID,
		&metadataJSON,
		&channel,
		&fees,
		&paidAt,
		&gatewayTxID,
		&verifiedAt,
		&processedAt,
		&processingErr,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return err
	}

	payment.GroupID = stringPtrFromNull(groupID)
	payment.GatewayChannel = stringPtrFromNull(channel)
	payment.GatewayFeesMinor = int64PtrFromNull(fees)
	payment.GatewayPaidAt = timePtrFromNull(paidAt)
	payment.GatewayTransactionID = stringPtrFromNull(gatewayTxID)
	payment.VerifiedAt = timePtrFromNull(verifiedAt)
	payment.ProcessedAt = timePtrFromNull(processedAt)
	payment.ProcessingError = stringPtrFromNull(processingErr)

	metadata, err := parseMetadata(metadataJSON)
	if err != nil {
		return err
	}
	payment.Metadata = metadata

	return nil
}
