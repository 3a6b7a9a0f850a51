package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-ajo/app/entity"
	"github.com/vibast-solutions/ms-go-ajo/app/lock"
	"github.com/vibast-solutions/ms-go-ajo/app/metrics"
	"github.com/vibast-solutions/ms-go-ajo/app/repository"
	"github.com/vibast-solutions/ms-go-ajo/app/types"
)

const refundReferencePrefix = "refund:"

func (s *PaymentService) ListReconciliations(ctx context.Context, req *types.ListReconciliationsRequest) ([]*entity.Reconciliation, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}
	status := req.Status
	if status == "all" {
		status = ""
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultBatchSize
	}
	return s.stores.Reconciliations.List(ctx, status, limit, req.Offset)
}

// ReprocessPayment runs the pipeline for a stored payment with service
// privileges. Used by the internal surface and by reconciliation retries.
func (s *PaymentService) ReprocessPayment(ctx context.Context, reference string) (*VerifyResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrInvalidRequest
	}
	payment, err := s.stores.Payments.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}

	run := pipelineRun{process: true, path: metrics.PathJob}
	result, err := s.runPipeline(ctx, reference, run)
	if errors.Is(err, lock.ErrNotAcquired) {
		result, err = s.alreadyDone(ctx, reference, run)
		if err == nil && result == nil {
			err = ErrRetryLater
		}
	}
	return result, err
}

// ResolveReconciliation closes an open item. A retry that hits another
// conflict leaves the item open with the new reason.
func (s *PaymentService) ResolveReconciliation(ctx context.Context, adminID string, req *types.ResolveReconciliationRequest) (*entity.Reconciliation, error) {
	if req == nil || strings.TrimSpace(adminID) == "" {
		return nil, ErrInvalidRequest
	}

	item, err := s.stores.Reconciliations.FindByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrReconciliationNotFound
	}
	if item.Status != entity.ReconciliationStatusOpen {
		return nil, ErrReconciliationResolved
	}

	payment, err := s.stores.Payments.FindByReference(ctx, item.Reference)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}

	if req.Resolution == entity.ReconciliationResolutionRetry {
		result, err := s.ReprocessPayment(ctx, item.Reference)
		if err != nil {
			return nil, err
		}
		if !result.Success {
			now := s.now()
			if err := appendAudit(ctx, s.stores.Audit, adminID, "reconciliation_retry_failed", "reconciliation",
				idString(item.ID), map[string]interface{}{"reference": item.Reference, "error": result.Error}, now); err != nil {
				return nil, err
			}
			return s.reload(ctx, item.ID)
		}
	}

	// Held so a concurrent pipeline run cannot apply the payment while it is
	// being refunded or dismissed.
	err = s.locks.WithPaymentLock(ctx, item.Reference, func(ctx context.Context) error {
		return s.closeReconciliation(ctx, adminID, item, req)
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, ErrRetryLater
	}
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"reconciliation_id": item.ID,
		"reference":         item.Reference,
		"resolution":        req.Resolution,
		"admin_id":          adminID,
	}).Info("Reconciliation resolved")

	return s.reload(ctx, item.ID)
}

func (s *PaymentService) closeReconciliation(ctx context.Context, adminID string, item *entity.Reconciliation, req *types.ResolveReconciliationRequest) error {
	payment, err := s.stores.Payments.FindByReference(ctx, item.Reference)
	if err != nil {
		return err
	}
	if payment == nil {
		return ErrPaymentNotFound
	}
	if req.Resolution != entity.ReconciliationResolutionRetry && payment.IsProcessed() {
		return ErrReconciliationResolved
	}

	now := s.now()
	return s.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if req.Resolution == entity.ReconciliationResolutionRefund {
			if err := s.appendRefund(ctx, payment); err != nil {
				return err
			}
		}

		resolution := req.Resolution
		resolvedBy := adminID
		item.Status = entity.ReconciliationStatusResolved
		item.Resolution = &resolution
		item.ResolvedBy = &resolvedBy
		item.ResolvedAt = &now
		item.UpdatedAt = now
		if req.Note != "" {
			note := req.Note
			item.Note = &note
		}

		resolved, err := s.stores.Reconciliations.Resolve(ctx, item)
		if err != nil {
			return err
		}
		if !resolved {
			return ErrReconciliationResolved
		}

		return appendAudit(ctx, s.stores.Audit, adminID, "reconciliation_"+resolution, "reconciliation",
			idString(item.ID), map[string]interface{}{"reference": item.Reference, "note": req.Note}, now)
	})
}

// appendRefund records the refund owed for a verified payment. Moving the
// money back is left to the gateway dashboard.
func (s *PaymentService) appendRefund(ctx context.Context, payment *entity.Payment) error {
	groupID := ""
	if payment.GroupID != nil {
		groupID = *payment.GroupID
	}
	reference := payment.Reference
	err := s.stores.Transactions.Create(ctx, &entity.Transaction{
		Reference:        refundReferencePrefix + payment.Reference,
		GroupID:          groupID,
		UserID:           payment.UserID,
		Type:             entity.TransactionTypeRefund,
		AmountMinor:      payment.AmountMinor,
		Currency:         payment.Currency,
		Status:           entity.TransactionStatusPending,
		PaymentReference: &reference,
		CreatedAt:        s.now(),
	})
	if errors.Is(err, repository.ErrTransactionAlreadyExists) {
		return nil
	}
	return err
}

func (s *PaymentService) reload(ctx context.Context, id uint64) (*entity.Reconciliation, error) {
	item, err := s.stores.Reconciliations.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrReconciliationNotFound
	}
	return item, nil
}

func idString(id uint64) string {
	return strconv.FormatUint(id, 10)
}
