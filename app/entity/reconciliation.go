package entity

import "time"

const (
	ReconciliationStatusOpen     = "open"
	ReconciliationStatusResolved = "resolved"
)

const (
	ReconciliationResolutionRetry   = "retry"
	ReconciliationResolutionRefund  = "refund"
	ReconciliationResolutionDismiss = "dismiss"
)

// Reconciliation flags a verified payment whose business effect could not be
// applied.
type Reconciliation struct {
	ID        uint64
	PaymentID uint64
	Reference string
	Reason    string
	Detail    *string
	Status    string

	Resolution *string
	ResolvedBy *string
	ResolvedAt *time.Time
	Note       *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Closed reports whether an admin settled the item without applying the
// payment. Such a payment must never reach the processor again.
func (r *Reconciliation) Closed() bool {
	if r == nil || r.Status != ReconciliationStatusResolved || r.Resolution == nil {
		return false
	}
	return *r.Resolution == ReconciliationResolutionRefund || *r.Resolution == ReconciliationResolutionDismiss
}
