package service

import (
	"context"
	"time"

	"github.com/vibast-solutions/ms-go-ajo/app/entity"
)

type txRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type paymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	ApplyVerification(ctx context.Context, payment *entity.Payment) (bool, error)
	MarkProcessed(ctx context.Context, id uint64, processedAt time.Time) (bool, error)
	SetProcessingError(ctx context.Context, id uint64, message string, now time.Time) error
	MarkFailed(ctx context.Context, id uint64, reason string, now time.Time) (bool, error)
	FindByReference(ctx context.Context, reference string) (*entity.Payment, error)
	ListPendingBefore(ctx context.Context, before time.Time, limit int32) ([]*entity.Payment, error)
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.Payment, error)
	ListUnprocessed(ctx context.Context, before time.Time, limit int32) ([]*entity.Payment, error)
}

type paymentEventRepository interface {
	Create(ctx context.Context, event *entity.PaymentEvent) error
}

type paymentCallbackRepository interface {
	Create(ctx context.Context, callback *entity.PaymentCallback) error
}

type groupRepository interface {
	Create(ctx context.Context, group *entity.Group) error
	Update(ctx context.Context, group *entity.Group) error
	FindByID(ctx context.Context, id string) (*entity.Group, error)
	FindByIDForUpdate(ctx context.Context, id string) (*entity.Group, error)
}

type slotRepository interface {
	CreateBatch(ctx context.Context, slots []*entity.PayoutSlot) error
	Find(ctx context.Context, groupID string, slotNumber int32) (*entity.PayoutSlot, error)
	ListByGroup(ctx context.Context, groupID string) ([]*entity.PayoutSlot, error)
	Reserve(ctx context.Context, groupID string, slotNumber int32, userID string, now time.Time) (bool, error)
	Release(ctx context.Context, groupID string, slotNumber int32, userID string, now time.Time) (bool, error)
	Assign(ctx context.Context, groupID string, slotNumber int32, userID string, now time.Time) (bool, error)
}

type joinRequestRepository interface {
	Create(ctx context.Context, req *entity.JoinRequest) error
	Transition(ctx context.Context, req *entity.JoinRequest, fromStatus string) (bool, error)
	FindByID(ctx context.Context, id string) (*entity.JoinRequest, error)
	FindLatestByGroupUser(ctx context.Context, groupID, userID, status string) (*entity.JoinRequest, error)
	ListByGroup(ctx context.Context, groupID, status string) ([]*entity.JoinRequest, error)
}

type membershipRepository interface {
	Create(ctx context.Context, membership *entity.Membership) error
	FindByGroupUser(ctx context.Context, groupID, userID string) (*entity.Membership, error)
	ListByGroup(ctx context.Context, groupID string) ([]*entity.Membership, error)
}

type cycleRepository interface {
	CreateBatch(ctx context.Context, cycles []*entity.Cycle) error
	Find(ctx context.Context, groupID string, cycleNumber int32) (*entity.Cycle, error)
	Complete(ctx context.Context, id uint64, collectedMinor int64, now time.Time) (bool, error)
	Activate(ctx context.Context, groupID string, cycleNumber int32) (bool, error)
}

type contributionRepository interface {
	Create(ctx context.Context, contribution *entity.Contribution) error
	Find(ctx context.Context, groupID, userID string, cycleNumber int32) (*entity.Contribution, error)
	MarkPaid(ctx context.Context, id uint64, paymentReference string, now time.Time) (bool, error)
	MarkOverdue(ctx context.Context, id uint64, now time.Time) (bool, error)
	ListByGroupCycle(ctx context.Context, groupID string, cycleNumber int32) ([]*entity.Contribution, error)
	ListByGroup(ctx context.Context, groupID string) ([]*entity.Contribution, error)
	ListPastDue(ctx context.Context, now time.Time, limit int32) ([]*entity.Contribution, error)
}

type transactionRepository interface {
	Create(ctx context.Context, txn *entity.Transaction) error
}

type auditRepository interface {
	Create(ctx context.Context, entry *entity.AuditEntry) error
}

type reconciliationRepository interface {
	Create(ctx context.Context, item *entity.Reconciliation) error
	Reopen(ctx context.Context, paymentID uint64, reason string, detail *string, now time.Time) error
	Resolve(ctx context.Context, item *entity.Reconciliation) (bool, error)
	FindByID(ctx context.Context, id uint64) (*entity.Reconciliation, error)
	FindByPaymentID(ctx context.Context, paymentID uint64) (*entity.Reconciliation, error)
	List(ctx context.Context, status string, limit, offset int32) ([]*entity.Reconciliation, error)
}

// Stores bundles the ledger repositories shared by the services.
type Stores struct {
	Tx              txRunner
	Payments        paymentRepository
	PaymentEvents   paymentEventRepository
	Callbacks       paymentCallbackRepository
	Groups          groupRepository
	Slots           slotRepository
	JoinRequests    joinRequestRepository
	Memberships     membershipRepository
	Cycles          cycleRepository
	Contributions   contributionRepository
	Transactions    transactionRepository
	Audit           auditRepository
	Reconciliations reconciliationRepository
}
