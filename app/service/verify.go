package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-ajo/app/entity"
	"github.com/vibast-solutions/ms-go-ajo/app/lock"
	"github.com/vibast-solutions/ms-go-ajo/app/metrics"
	"github.com/vibast-solutions/ms-go-ajo/app/provider"
	"github.com/vibast-solutions/ms-go-ajo/app/types"
)

const verifyCallTimeout = 30 * time.Second

// User facing messages for the outcomes of a verification.
const (
	MessageActivated         = "Payment verified and activated."
	MessagePendingActivation = "Payment verified, finishing activation. Please wait."
	MessageFailed            = "Payment failed."
	MessagePending           = "Payment is still being confirmed by the gateway."
	MessageNeedsReview       = "Payment verified but could not be applied. It has been flagged for review."
	MessageClosed            = "Payment verified but will not be applied. Contact support about your refund."
)

// VerifyResult is the typed outcome of one pass through the pipeline.
// Structural conflicts are reported here rather than as errors.
type VerifyResult struct {
	Reference string
	Success   bool
	Verified  bool
	Status    string
	Position  *int32
	Conflict  string
	Error     string
	Message   string
}

// pipelineRun carries a nil caller for service privileged runs (webhook,
// jobs).
type pipelineRun struct {
	caller  *Caller
	process bool
	path    string
}

// VerifyPayment is the synchronous path. A caller whose session expired still
// gets the payment recorded; activation is left to the webhook or a retry.
func (s *PaymentService) VerifyPayment(ctx context.Context, caller Caller, reference string) (*VerifyResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrInvalidRequest
	}

	run := pipelineRun{caller: &caller, process: caller.SessionValid, path: metrics.PathSync}
	result, err := s.runPipeline(ctx, reference, run)
	if !errors.Is(err, lock.ErrNotAcquired) {
		return result, err
	}

	if done, err := s.alreadyDone(ctx, reference, run); err != nil || done != nil {
		return done, err
	}
	if err := s.sleep(ctx, s.paymentsCfg.SyncLockRetryDelay); err != nil {
		return nil, err
	}

	result, err = s.runPipeline(ctx, reference, run)
	if !errors.Is(err, lock.ErrNotAcquired) {
		return result, err
	}
	if done, err := s.alreadyDone(ctx, reference, run); err != nil || done != nil {
		return done, err
	}
	return nil, ErrRetryLater
}

// runPipeline verifies with the gateway outside the lock, then records and
// processes under the payment lock. It returns lock.ErrNotAcquired untouched
// so each path decides how to handle contention.
func (s *PaymentService) runPipeline(ctx context.Context, reference string, run pipelineRun) (*VerifyResult, error) {
	existing, err := s.stores.Payments.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := authorize(run.caller, existing); err != nil {
			return nil, err
		}
		if done := s.terminalResult(ctx, existing, run); done != nil {
			return done, nil
		}
	}

	var verification *provider.Verification
	if existing == nil || !existing.Verified {
		verification, err = s.verifyWithGateway(ctx, reference)
		if errors.Is(err, provider.ErrGatewayUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrRetryLater, err)
		}
		if errors.Is(err, provider.ErrVerificationRejected) {
			s.metrics.Verification(run.path, "rejected")
			s.logger.WithError(err).WithField("reference", reference).Warn("Gateway rejected verification")
			return &VerifyResult{
				Reference: reference,
				Status:    types.VerifyStatusFailed,
				Error:     "payment could not be verified with the gateway",
				Message:   MessageFailed,
			}, nil
		}
		if err != nil {
			return nil, err
		}
	}

	var result *VerifyResult
	err = s.locks.WithPaymentLock(ctx, reference, func(ctx context.Context) error {
		var payment *entity.Payment
		var err error
		if verification != nil {
			payment, err = s.RecordVerifiedPayment(ctx, verification)
		} else {
			payment, err = s.stores.Payments.FindByReference(ctx, reference)
		}
		if err != nil {
			return err
		}
		if payment == nil {
			return ErrPaymentNotFound
		}
		if err := authorize(run.caller, payment); err != nil {
			return err
		}

		if done := s.terminalResult(ctx, payment, run); done != nil {
			result = done
			return nil
		}
		if payment.Status == entity.PaymentStatusPending {
			s.metrics.Verification(run.path, "pending")
			result = &VerifyResult{Reference: reference, Status: types.VerifyStatusPending, Message: MessagePending}
			return nil
		}

		if payment.ProcessingError != nil {
			closed, err := s.closedResult(ctx, payment, run)
			if err != nil || closed != nil {
				result = closed
				return err
			}
		}

		if !run.process {
			s.metrics.Verification(run.path, "pending_activation")
			result = &VerifyResult{
				Reference: reference,
				Verified:  true,
				Status:    types.VerifyStatusVerifiedPendingActivation,
				Message:   MessagePendingActivation,
			}
			s.publish(ctx, s.updateFrom(payment, nil))
			return nil
		}

		processed, err := s.processor.Process(ctx, reference)
		if reason, ok := ConflictReason(err); ok {
			result, err = s.flagConflict(ctx, payment, reason, err, run.path)
			return err
		}
		if err != nil {
			return err
		}

		s.metrics.Verification(run.path, "success")
		result = &VerifyResult{
			Reference: reference,
			Success:   true,
			Verified:  true,
			Status:    types.VerifyStatusSuccess,
			Position:  processed.Position,
			Message:   MessageActivated,
		}
		update := s.updateFrom(payment, processed.Position)
		update.Activated = true
		s.publish(ctx, update)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// terminalResult answers without further work when the payment has failed or
// is already applied.
func (s *PaymentService) terminalResult(ctx context.Context, payment *entity.Payment, run pipelineRun) *VerifyResult {
	switch {
	case payment.Status == entity.PaymentStatusFailed:
		s.metrics.Verification(run.path, "failed")
		result := &VerifyResult{Reference: payment.Reference, Status: types.VerifyStatusFailed, Message: MessageFailed}
		if payment.ProcessingError != nil {
			result.Error = *payment.ProcessingError
		}
		s.publish(ctx, s.updateFrom(payment, nil))
		return result
	case payment.IsProcessed():
		s.metrics.Verification(run.path, "already_processed")
		result := &VerifyResult{
			Reference: payment.Reference,
			Success:   true,
			Verified:  true,
			Status:    types.VerifyStatusSuccess,
			Message:   MessageActivated,
		}
		if status, err := s.statusOf(ctx, payment); err == nil {
			result.Position = status.Position
		}
		return result
	}
	return nil
}

// closedResult stops the pipeline for a payment an admin refunded or
// dismissed.
func (s *PaymentService) closedResult(ctx context.Context, payment *entity.Payment, run pipelineRun) (*VerifyResult, error) {
	item, err := s.stores.Reconciliations.FindByPaymentID(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	if !item.Closed() {
		return nil, nil
	}
	s.metrics.Verification(run.path, "closed")
	return &VerifyResult{
		Reference: payment.Reference,
		Verified:  true,
		Status:    types.VerifyStatusSuccess,
		Conflict:  item.Reason,
		Error:     "payment was closed by " + *item.Resolution,
		Message:   MessageClosed,
	}, nil
}

// alreadyDone is consulted after losing the lock: a payment the winner already
// settled is reported as such.
func (s *PaymentService) alreadyDone(ctx context.Context, reference string, run pipelineRun) (*VerifyResult, error) {
	s.metrics.LockContention(run.path)
	payment, err := s.stores.Payments.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, nil
	}
	if err := authorize(run.caller, payment); err != nil {
		return nil, err
	}
	if done := s.terminalResult(ctx, payment, run); done != nil {
		return done, nil
	}
	if !payment.Verified {
		return nil, nil
	}
	if payment.ProcessingError != nil {
		return &VerifyResult{
			Reference: reference,
			Verified:  true,
			Status:    types.VerifyStatusSuccess,
			Error:     *payment.ProcessingError,
			Message:   MessageNeedsReview,
		}, nil
	}
	if !run.process {
		return &VerifyResult{
			Reference: reference,
			Verified:  true,
			Status:    types.VerifyStatusVerifiedPendingActivation,
			Message:   MessagePendingActivation,
		}, nil
	}
	return nil, nil
}

// verifyWithGateway collapses concurrent verifications of one reference into a
// single gateway call. The call is detached from the caller so a client that
// disconnects does not abort a verification the webhook is waiting on.
func (s *PaymentService) verifyWithGateway(ctx context.Context, reference string) (*provider.Verification, error) {
	gateway, err := s.gateways.Default()
	if err != nil {
		return nil, err
	}

	ch := s.verifyGroup.DoChan(reference, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), verifyCallTimeout)
		defer cancel()

		started := time.Now()
		verification, err := gateway.Verify(callCtx, reference)
		s.metrics.GatewayCall(gatewayCallResult(err), time.Since(started).Seconds())
		return verification, err
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", provider.ErrGatewayUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		verification, _ := res.Val.(*provider.Verification)
		if verification == nil {
			return nil, fmt.Errorf("%w: empty verification", provider.ErrVerificationRejected)
		}
		return verification, nil
	}
}

// flagConflict keeps the verified payment and parks it for manual
// reconciliation.
func (s *PaymentService) flagConflict(ctx context.Context, payment *entity.Payment, reason string, cause error, path string) (*VerifyResult, error) {
	now := s.now()
	message := cause.Error()
	detail := message

	err := s.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.stores.Payments.SetProcessingError(ctx, payment.ID, message, now); err != nil {
			return err
		}
		if err := openReconciliation(ctx, s.stores, payment, reason, &detail, now); err != nil {
			return err
		}
		oldStatus := payment.Status
		return s.appendPaymentEvent(ctx, payment, "payment_conflict", &oldStatus, "", now)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Verification(path, "conflict")
	s.metrics.ReconciliationOpened(reason)
	s.logger.WithFields(logrus.Fields{
		"reference": payment.Reference,
		"reason":    reason,
		"path":      path,
	}).Warn("Verified payment could not be applied, flagged for reconciliation")

	payment.ProcessingError = &message
	s.publish(ctx, s.updateFrom(payment, nil))

	return &VerifyResult{
		Reference: payment.Reference,
		Verified:  true,
		Status:    types.VerifyStatusSuccess,
		Conflict:  reason,
		Error:     message,
		Message:   MessageNeedsReview,
	}, nil
}

func openReconciliation(ctx context.Context, stores Stores, payment *entity.Payment, reason string, detail *string, now time.Time) error {
	existing, err := stores.Reconciliations.FindByPaymentID(ctx, payment.ID)
	if err != nil {
		return err
	}
	if existing.Closed() {
		return nil
	}
	if existing != nil {
		return stores.Reconciliations.Reopen(ctx, payment.ID, reason, detail, now)
	}
	return stores.Reconciliations.Create(ctx, &entity.Reconciliation{
		PaymentID: payment.ID,
		Reference: payment.Reference,
		Reason:    reason,
		Detail:    detail,
		Status:    entity.ReconciliationStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func authorize(caller *Caller, payment *entity.Payment) error {
	if caller == nil || caller.IsAdmin {
		return nil
	}
	if payment.UserID != "" && payment.UserID != caller.UserID {
		return ErrForbidden
	}
	return nil
}

func gatewayCallResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, provider.ErrGatewayUnavailable):
		return "unavailable"
	case errors.Is(err, provider.ErrVerificationRejected):
		return "rejected"
	default:
		return "error"
	}
}
