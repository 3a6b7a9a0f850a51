package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-ajo/app/entity"
	"github.com/vibast-solutions/ms-go-ajo/app/provider"
	"github.com/vibast-solutions/ms-go-ajo/app/repository"
)

// RecordVerifiedPayment writes a gateway verification onto the payment ledger
// and returns the stored record. It inserts the record when the reference was
// never initialized here and never rewrites a payment that already reached a
// terminal status.
func (s *PaymentService) RecordVerifiedPayment(ctx context.Context, verification *provider.Verification) (*entity.Payment, error) {
	if verification == nil || strings.TrimSpace(verification.Reference) == "" {
		return nil, ErrInvalidRequest
	}

	var stored *entity.Payment
	err := s.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := s.stores.Payments.FindByReference(ctx, verification.Reference)
		if err != nil {
			return err
		}

		now := s.now()
		if existing == nil {
			payment := paymentFromVerification(verification, now)
			if err := s.stores.Payments.Create(ctx, payment); err != nil {
				if errors.Is(err, repository.ErrPaymentAlreadyExists) {
					existing, err = s.stores.Payments.FindByReference(ctx, verification.Reference)
					if err != nil {
						return err
					}
					stored = existing
					return nil
				}
				return err
			}
			stored = payment
			return s.appendPaymentEvent(ctx, payment, "payment_recorded", nil, verification.RawJSON, now)
		}

		if existing.IsTerminal() || verification.Status == provider.StatusPending {
			stored = existing
			return nil
		}

		oldStatus := existing.Status
		applyVerification(existing, verification, now)
		changed, err := s.stores.Payments.ApplyVerification(ctx, existing)
		if err != nil {
			return err
		}
		if !changed {
			stored, err = s.stores.Payments.FindByReference(ctx, verification.Reference)
			return err
		}

		stored = existing
		return s.appendPaymentEvent(ctx, existing, "payment_verified", &oldStatus, verification.RawJSON, now)
	})
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, ErrPaymentNotFound
	}
	return stored, nil
}

func paymentFromVerification(v *provider.Verification, now time.Time) *entity.Payment {
	payment := &entity.Payment{
		Reference:   v.Reference,
		UserID:      strings.TrimSpace(v.Metadata[entity.MetadataUserID]),
		AmountMinor: v.AmountMinor,
		Currency:    v.Currency,
		Status:      entity.PaymentStatusPending,
		PaymentType: strings.TrimSpace(v.Metadata[entity.MetadataPaymentType]),
		Metadata:    map[string]string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if groupID := strings.TrimSpace(v.Metadata[entity.MetadataGroupID]); groupID != "" {
		payment.GroupID = &groupID
	}
	applyVerification(payment, v, now)
	return payment
}

// applyVerification copies the gateway view onto payment. Gateway metadata
// never overrides what was stored at initialization.
func applyVerification(payment *entity.Payment, v *provider.Verification, now time.Time) {
	switch v.Status {
	case provider.StatusSuccess:
		payment.Status = entity.PaymentStatusSuccess
		payment.Verified = true
		payment.VerifiedAt = &now
	case provider.StatusFailed:
		payment.Status = entity.PaymentStatusFailed
		payment.Verified = false
	}

	payment.AmountMinor = v.AmountMinor
	payment.Currency = v.Currency
	payment.GatewayChannel = v.Channel
	payment.GatewayFeesMinor = v.FeesMinor
	payment.GatewayPaidAt = v.PaidAt
	payment.GatewayTransactionID = v.TransactionID
	payment.UpdatedAt = now

	if payment.Metadata == nil {
		payment.Metadata = map[string]string{}
	}
	for key, value := range v.Metadata {
		if _, ok := payment.Metadata[key]; !ok && strings.TrimSpace(value) != "" {
			payment.Metadata[key] = value
		}
	}
	if payment.UserID == "" {
		payment.UserID = strings.TrimSpace(payment.Metadata[entity.MetadataUserID])
	}
	if payment.PaymentType == "" {
		payment.PaymentType = strings.TrimSpace(payment.Metadata[entity.MetadataPaymentType])
	}
	if payment.GroupID == nil {
		if groupID := strings.TrimSpace(payment.Metadata[entity.MetadataGroupID]); groupID != "" {
			payment.GroupID = &groupID
		}
	}
}

func (s *PaymentService) appendPaymentEvent(ctx context.Context, payment *entity.Payment, eventType string, oldStatus *string, payload string, now time.Time) error {
	event := &entity.PaymentEvent{
		PaymentID: payment.ID,
		EventType: eventType,
		OldStatus: oldStatus,
		NewStatus: payment.Status,
		CreatedAt: now,
	}
	if strings.TrimSpace(payload) != "" {
		event.PayloadJSON = &payload
	}
	return s.stores.PaymentEvents.Create(ctx, event)
}
