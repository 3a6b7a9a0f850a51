package mapper

import (
	"github.com/vibast-solutions/ms-go-ajo/app/entity"
	"github.com/vibast-solutions/ms-go-ajo/app/types"
)

func PaymentToResponse(payment *entity.Payment) *types.PaymentResponse {
	if payment == nil {
		return nil
	}

	return &types.PaymentResponse{
		Reference:       payment.Reference,
		UserID:          payment.UserID,
		AmountMinor:     payment.AmountMinor,
		Currency:        payment.Currency,
		Status:          payment.Status,
		Verified:        payment.Verified,
		PaymentType:     payment.PaymentType,
		GroupID:         derefString(payment.GroupID),
		Metadata:        payment.Metadata,
		Channel:         derefString(payment.GatewayChannel),
		VerifiedAt:      payment.VerifiedAt,
		ProcessedAt:     payment.ProcessedAt,
		ProcessingError: derefString(payment.ProcessingError),
		CreatedAt:       payment.CreatedAt,
	}
}

func ReconciliationToResponse(item *entity.Reconciliation) *types.ReconciliationResponse {
	if item == nil {
		return nil
	}

	return &types.ReconciliationResponse{
		ID:         item.ID,
		Reference:  item.Reference,
		Reason:     item.Reason,
		Detail:     derefString(item.Detail),
		Status:     item.Status,
		Resolution: derefString(item.Resolution),
		ResolvedBy: derefString(item.ResolvedBy),
		ResolvedAt: item.ResolvedAt,
		Note:       derefString(item.Note),
		CreatedAt:  item.CreatedAt,
	}
}

func ReconciliationsToResponse(items []*entity.Reconciliation) []*types.ReconciliationResponse {
	out := make([]*types.ReconciliationResponse, 0, len(items))
	for _, item := range items {
		if mapped := ReconciliationToResponse(item); mapped != nil {
			out = append(out, mapped)
		}
	}
	return out
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
