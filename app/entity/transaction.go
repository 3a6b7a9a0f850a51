package entity

import "time"

const (
	TransactionTypeContribution    = "contribution"
	TransactionTypeSecurityDeposit = "security_deposit"
	TransactionTypePayout          = "payout"
	TransactionTypeServiceFee      = "service_fee"
	TransactionTypeRefund          = "refund"
)

const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
)

// Transaction rows are append-only.
type Transaction struct {
	ID        uint64
	Reference string

	GroupID string
	UserID  string
	Type    string

	AmountMinor int64
	Currency    string
	Status      string

	CycleNumber      *int32
	PaymentReference *string

	CreatedAt time.Time
}
