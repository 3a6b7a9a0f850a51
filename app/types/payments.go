package types

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// Verification statuses returned to the synchronous caller.
const (
	VerifyStatusSuccess                   = "success"
	VerifyStatusFailed                    = "failed"
	VerifyStatusPending                   = "pending"
	VerifyStatusVerifiedPendingActivation = "verified_pending_activation"
)

type InitializePaymentRequest struct {
	PaymentType string `json:"payment_type"`
	GroupID     string `json:"group_id"`
	CycleNumber int32  `json:"cycle_number"`
}

func NewInitializePaymentRequestFromContext(ctx echo.Context) (*InitializePaymentRequest, error) {
	var body InitializePaymentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.PaymentType = strings.ToLower(strings.TrimSpace(body.PaymentType))
	body.GroupID = strings.TrimSpace(body.GroupID)
	return &body, nil
}

func (r *InitializePaymentRequest) Validate() error {
	switch r.PaymentType {
	case "group_creation", "group_join":
	case "contribution":
		if r.CycleNumber <= 0 {
			return errors.New("cycle_number must be > 0 for contributions")
		}
	default:
		return errors.New("payment_type must be group_creation, group_join or contribution")
	}
	if r.GroupID == "" {
		return errors.New("group_id is required")
	}
	return nil
}

type InitializePaymentResponse struct {
	Reference   string `json:"reference"`
	PaymentType string `json:"payment_type"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	PublicKey   string `json:"public_key"`
}

type VerifyPaymentRequest struct {
	Reference string `json:"reference"`
}

func NewVerifyPaymentRequestFromContext(ctx echo.Context) (*VerifyPaymentRequest, error) {
	var body VerifyPaymentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.Reference = strings.TrimSpace(body.Reference)
	return &body, nil
}

func (r *VerifyPaymentRequest) Validate() error {
	return validateReference(r.Reference)
}

type VerifyPaymentResponse struct {
	Success  bool   `json:"success"`
	Verified bool   `json:"verified"`
	Status   string `json:"status"`
	Position *int32 `json:"position,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

type PaymentReferenceRequest struct {
	Reference string `json:"reference"`
}

func NewPaymentReferenceRequestFromContext(ctx echo.Context) (*PaymentReferenceRequest, error) {
	return &PaymentReferenceRequest{Reference: strings.TrimSpace(ctx.Param("reference"))}, nil
}

func (r *PaymentReferenceRequest) Validate() error {
	return validateReference(r.Reference)
}

type PaymentResponse struct {
	Reference       string            `json:"reference"`
	UserID          string            `json:"user_id"`
	AmountMinor     int64             `json:"amount"`
	Currency        string            `json:"currency"`
	Status          string            `json:"status"`
	Verified        bool              `json:"verified"`
	PaymentType     string            `json:"payment_type"`
	GroupID         string            `json:"group_id,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Channel         string            `json:"channel,omitempty"`
	VerifiedAt      *time.Time        `json:"verified_at,omitempty"`
	ProcessedAt     *time.Time        `json:"processed_at,omitempty"`
	ProcessingError string            `json:"processing_error,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

type PaymentStatusResponse struct {
	Payment   *PaymentResponse `json:"payment"`
	Activated bool             `json:"activated"`
	Position  *int32           `json:"position,omitempty"`
}

type WebhookRequest struct {
	Signature string
	Payload   []byte
}

// NewWebhookRequestFromContext keeps the raw body untouched; the signature is
// computed over the exact bytes received.
func NewWebhookRequestFromContext(ctx echo.Context, signatureHeader string) (*WebhookRequest, error) {
	payload, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}
	return &WebhookRequest{
		Signature: strings.TrimSpace(ctx.Request().Header.Get(signatureHeader)),
		Payload:   payload,
	}, nil
}

func (r *WebhookRequest) Validate() error {
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	return nil
}

type WebhookAckResponse struct {
	Received bool `json:"received"`
}

func validateReference(reference string) error {
	if reference == "" {
		return errors.New("reference is required")
	}
	if len(reference) > 100 {
		return errors.New("reference must be at most 100 characters")
	}
	return nil
}
