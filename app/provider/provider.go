package provider

import (
	"context"
	"errors"
	"time"
)

// Normalized outcome of a gateway verification.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusPending = "pending"
)

const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

var (
	// ErrGatewayUnavailable covers network errors, timeouts and gateway side
	// outages. The caller should retry later.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrVerificationRejected means the gateway answered but the answer
	// cannot be trusted as a verification (4xx, malformed body, wrong
	// reference).
	ErrVerificationRejected = errors.New("payment verification rejected")
	ErrSignatureMissing     = errors.New("webhook signature missing")
	ErrSignatureInvalid     = errors.New("webhook signature invalid")
)

type Verification struct {
	Reference     string
	Status        string
	GatewayStatus string

	AmountMinor int64
	Currency    string

	Channel       *string
	FeesMinor     *int64
	PaidAt        *time.Time
	TransactionID *string

	Metadata map[string]string
	RawJSON  string
}

func (v *Verification) Succeeded() bool {
	return v != nil && v.Status == StatusSuccess
}

type WebhookEvent struct {
	Event     string
	Reference string
}

type Gateway interface {
	Code() string
	// PublicKey is the only gateway credential that may be handed to clients.
	PublicKey() string
	SignatureHeader() string
	Verify(ctx context.Context, reference string) (*Verification, error)
	VerifyWebhookSignature(payload []byte, signature string) error
	ParseWebhookEvent(payload []byte) (*WebhookEvent, error)
}
