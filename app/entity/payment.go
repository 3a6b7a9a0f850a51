package entity

import "time"

const (
	PaymentStatusPending = "pending"
	PaymentStatusSuccess = "success"
	PaymentStatusFailed  = "failed"
)

const (
	PaymentTypeGroupCreation = "group_creation"
	PaymentTypeGroupJoin     = "group_join"
	PaymentTypeContribution  = "contribution"
)

// Metadata keys carried on a payment and echoed back by the gateway.
const (
	MetadataPaymentType = "payment_type"
	MetadataGroupID     = "group_id"
	MetadataUserID      = "user_id"
	MetadataCycleNumber = "cycle_number"
	MetadataSlotNumber  = "slot_number"
)

type Payment struct {
	ID uint64

	Reference string
	UserID    string

	AmountMinor int64
	Currency    string

	Status   string
	Verified bool

	PaymentType string
	GroupID     *string
	Metadata    map[string]string

	GatewayChannel       *string
	GatewayFeesMinor     *int64
	GatewayPaidAt        *time.Time
	GatewayTransactionID *string

	VerifiedAt      *time.Time
	ProcessedAt     *time.Time
	ProcessingError *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Payment) IsProcessed() bool {
	return p.ProcessedAt != nil
}

func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusSuccess || p.Status == PaymentStatusFailed
}
