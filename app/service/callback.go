package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-ajo/app/entity"
	"github.com/vibast-solutions/ms-go-ajo/app/lock"
	"github.com/vibast-solutions/ms-go-ajo/app/metrics"
	"github.com/vibast-solutions/ms-go-ajo/app/provider"
)

// HandleWebhook is the asynchronous path. The signature over the raw body is
// checked before anything is parsed. The returned result is nil for events
// that were acknowledged without running the pipeline.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*VerifyResult, error) {
	gateway, err := s.gateways.Default()
	if err != nil {
		return nil, err
	}

	callback := &entity.PaymentCallback{
		Gateway:     gateway.Code(),
		EventType:   "unknown",
		Signature:   truncate(signature, maxStoredSignature),
		PayloadJSON: string(payload),
		CreatedAt:   s.now(),
	}

	if err := gateway.VerifyWebhookSignature(payload, signature); err != nil {
		reason, target := "invalid_signature", ErrSignatureInvalid
		if errors.Is(err, provider.ErrSignatureMissing) {
			reason, target = "missing_signature", ErrSignatureMissing
		}
		s.metrics.WebhookRejected(reason)
		s.logger.WithError(err).WithField("gateway", gateway.Code()).Warn("Webhook signature rejected")
		s.saveCallback(ctx, callback, entity.PaymentCallbackStatusRejected, err)
		return nil, target
	}

	event, err := gateway.ParseWebhookEvent(payload)
	if err != nil {
		s.metrics.WebhookRejected("malformed")
		s.saveCallback(ctx, callback, entity.PaymentCallbackStatusRejected, err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	callback.EventType = event.Event
	if event.Reference != "" {
		reference := event.Reference
		callback.Reference = &reference
	}

	switch event.Event {
	case provider.EventChargeSuccess, provider.EventChargeFailed:
	default:
		s.saveCallback(ctx, callback, entity.PaymentCallbackStatusIgnored, nil)
		return nil, nil
	}
	if event.Reference == "" {
		s.saveCallback(ctx, callback, entity.PaymentCallbackStatusIgnored, errors.New("event carries no reference"))
		return nil, nil
	}

	run := pipelineRun{process: true, path: metrics.PathWebhook}
	result, err := s.runPipeline(ctx, event.Reference, run)
	if errors.Is(err, lock.ErrNotAcquired) {
		result, err = s.alreadyDone(ctx, event.Reference, run)
		if err == nil && result == nil {
			err = ErrRetryLater
		}
	}
	if err != nil {
		s.logger.WithError(err).WithField("reference", event.Reference).Warn("Webhook processing did not complete")
		return nil, err
	}

	if payment, err := s.stores.Payments.FindByReference(ctx, event.Reference); err == nil && payment != nil {
		id := payment.ID
		callback.PaymentID = &id
	}
	var resultErr error
	if result.Error != "" {
		resultErr = errors.New(result.Error)
	}
	s.saveCallback(ctx, callback, entity.PaymentCallbackStatusProcessed, resultErr)

	s.logger.WithFields(logrus.Fields{
		"reference": event.Reference,
		"event":     event.Event,
		"status":    result.Status,
	}).Info("Webhook processed")

	return result, nil
}

func (s *PaymentService) saveCallback(ctx context.Context, callback *entity.PaymentCallback, status string, cause error) {
	callback.Status = status
	if cause != nil {
		message := cause.Error()
		callback.Error = &message
	}
	if err := s.stores.Callbacks.Create(ctx, callback); err != nil {
		s.logger.WithError(err).WithField("event", callback.EventType).Error("Failed to store webhook callback")
	}
}
