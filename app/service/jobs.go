package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-ajo/app/entity"
	"github.com/vibast-solutions/ms-go-ajo/app/lock"
	"github.com/vibast-solutions/ms-go-ajo/app/metrics"
	"github.com/vibast-solutions/ms-go-ajo/app/types"
)

// RunReconcileBatch re-verifies payments left pending past the stale window,
// catching charges whose webhook never arrived.
func (s *PaymentService) RunReconcileBatch(ctx context.Context) error {
	cutoff := s.now().Add(-s.paymentsCfg.ReconcileStaleAfter)
	payments, err := s.stores.Payments.ListPendingBefore(ctx, cutoff, batchSize(s.paymentsCfg))
	if err != nil {
		return err
	}

	var firstErr error
	for _, payment := range payments {
		result, err := s.runJobPipeline(ctx, payment.Reference)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if result != nil {
			s.logger.WithFields(logrus.Fields{
				"reference": payment.Reference,
				"status":    result.Status,
			}).Info("Pending payment reconciled")
		}
	}
	return firstErr
}

// RunExpirePendingBatch fails payments pending past the timeout. Each one is
// checked with the gateway first so a late charge is recorded, not expired.
func (s *PaymentService) RunExpirePendingBatch(ctx context.Context) error {
	cutoff := s.now().Add(-s.paymentsCfg.PendingTimeout)
	payments, err := s.stores.Payments.ListExpiredPending(ctx, cutoff, batchSize(s.paymentsCfg))
	if err != nil {
		return err
	}

	var firstErr error
	for _, payment := range payments {
		result, err := s.runJobPipeline(ctx, payment.Reference)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if !gatewayDeclined(result) {
			continue
		}

		current, err := s.stores.Payments.FindByReference(ctx, payment.Reference)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if current == nil || current.Status != entity.PaymentStatusPending {
			continue
		}

		if err := s.expire(ctx, current); err != nil && !errors.Is(err, lock.ErrNotAcquired) {
			firstErr = keepFirstErr(firstErr, err)
		}
	}
	return firstErr
}

// RunRetryUnprocessedBatch applies verified payments whose activation was
// deferred and never completed.
func (s *PaymentService) RunRetryUnprocessedBatch(ctx context.Context) error {
	cutoff := s.now().Add(-s.paymentsCfg.UnprocessedAfter)
	payments, err := s.stores.Payments.ListUnprocessed(ctx, cutoff, batchSize(s.paymentsCfg))
	if err != nil {
		return err
	}

	var firstErr error
	for _, payment := range payments {
		result, err := s.runJobPipeline(ctx, payment.Reference)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if result != nil && result.Success {
			s.logger.WithField("reference", payment.Reference).Info("Deferred payment activated")
		}
	}
	return firstErr
}

// runJobPipeline treats lock contention and gateway outages as "try next run".
// A nil result means the reference was skipped and nothing is known about it.
func (s *PaymentService) runJobPipeline(ctx context.Context, reference string) (*VerifyResult, error) {
	result, err := s.runPipeline(ctx, reference, pipelineRun{process: true, path: metrics.PathJob})
	if errors.Is(err, lock.ErrNotAcquired) {
		s.metrics.LockContention(metrics.PathJob)
		return nil, nil
	}
	if errors.Is(err, ErrRetryLater) {
		s.logger.WithError(err).WithField("reference", reference).Debug("Gateway unavailable, skipping")
		return nil, nil
	}
	return result, err
}

// gatewayDeclined reports whether the gateway answered during this run without
// confirming a charge.
func gatewayDeclined(result *VerifyResult) bool {
	if result == nil || result.Verified {
		return false
	}
	return result.Status == types.VerifyStatusPending || result.Status == types.VerifyStatusFailed
}

func (s *PaymentService) expire(ctx context.Context, payment *entity.Payment) error {
	return s.locks.WithPaymentLock(ctx, payment.Reference, func(ctx context.Context) error {
		now := s.now()
		return s.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
			expired, err := s.stores.Payments.MarkFailed(ctx, payment.ID, "payment expired before completion", now)
			if err != nil || !expired {
				return err
			}
			oldStatus := payment.Status
			payment.Status = entity.PaymentStatusFailed
			if err := s.appendPaymentEvent(ctx, payment, "payment_expired", &oldStatus, "", now); err != nil {
				return err
			}
			s.logger.WithField("reference", payment.Reference).Info("Pending payment expired")
			return nil
		})
	})
}
