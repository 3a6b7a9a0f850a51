package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-ajo/app/entity"
	"github.com/vibast-solutions/ms-go-ajo/app/repository"
)

type slotKey struct {
	groupID string
	number  int32
}

// memLedger is an in-memory ledger shared by the fake repositories. Reads
// return copies, like rows read from a database.
type memLedger struct {
	mu   sync.Mutex
	txMu sync.Mutex

	nextID uint64

	payments        map[string]*entity.Payment
	events          []*entity.PaymentEvent
	callbacks       []*entity.PaymentCallback
	groups          map[string]*entity.Group
	slots           map[slotKey]*entity.PayoutSlot
	joinRequests    []*entity.JoinRequest
	memberships     []*entity.Membership
	cycles          []*entity.Cycle
	contributions   []*entity.Contribution
	transactions    []*entity.Transaction
	audit           []*entity.AuditEntry
	reconciliations []*entity.Reconciliation

	// eventsErr fails every payment event write when set.
	eventsErr error
}

func newMemLedger() *memLedger {
	return &memLedger{
		payments: map[string]*entity.Payment{},
		groups:   map[string]*entity.Group{},
		slots:    map[slotKey]*entity.PayoutSlot{},
	}
}

func (l *memLedger) id() uint64 {
	l.nextID++
	return l.nextID
}

func (l *memLedger) stores() Stores {
	return Stores{
		Tx:              &memTx{ledger: l},
		Payments:        &memPayments{l},
		PaymentEvents:   &memEvents{l},
		Callbacks:       &memCallbacks{l},
		Groups:          &memGroups{l},
		Slots:           &memSlots{l},
		JoinRequests:    &memJoinRequests{l},
		Memberships:     &memMemberships{l},
		Cycles:          &memCycles{l},
		Contributions:   &memContributions{l},
		Transactions:    &memTransactions{l},
		Audit:           &memAudit{l},
		Reconciliations: &memReconciliations{l},
	}
}

type memSnapshot struct {
	nextID          uint64
	payments        map[string]*entity.Payment
	events          []*entity.PaymentEvent
	callbacks       []*entity.PaymentCallback
	groups          map[string]*entity.Group
	slots           map[slotKey]*entity.PayoutSlot
	joinRequests    []*entity.JoinRequest
	memberships     []*entity.Membership
	cycles          []*entity.Cycle
	contributions   []*entity.Contribution
	transactions    []*entity.Transaction
	audit           []*entity.AuditEntry
	reconciliations []*entity.Reconciliation
}

func (l *memLedger) snapshot() memSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := memSnapshot{
		nextID:   l.nextID,
		payments: map[string]*entity.Payment{},
		groups:   map[string]*entity.Group{},
		slots:    map[slotKey]*entity.PayoutSlot{},
	}
	for k, v := range l.payments {
		s.payments[k] = copyPayment(v)
	}
	for k, v := range l.groups {
		item := *v
		s.groups[k] = &item
	}
	for k, v := range l.slots {
		item := *v
		s.slots[k] = &item
	}
	s.events = append(s.events, l.events...)
	s.callbacks = append(s.callbacks, l.callbacks...)
	s.transactions = append(s.transactions, l.transactions...)
	s.audit = append(s.audit, l.audit...)
	for _, v := range l.joinRequests {
		item := *v
		s.joinRequests = append(s.joinRequests, &item)
	}
	for _, v := range l.memberships {
		item := *v
		s.memberships = append(s.memberships, &item)
	}
	for _, v := range l.cycles {
		item := *v
		s.cycles = append(s.cycles, &item)
	}
	for _, v := range l.contributions {
		item := *v
		s.contributions = append(s.contributions, &item)
	}
	for _, v := range l.reconciliations {
		item := *v
		s.reconciliations = append(s.reconciliations, &item)
	}
	return s
}

func (l *memLedger) restore(s memSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID = s.nextID
	l.payments = s.payments
	l.events = s.events
	l.callbacks = s.callbacks
	l.groups = s.groups
	l.slots = s.slots
	l.joinRequests = s.joinRequests
	l.memberships = s.memberships
	l.cycles = s.cycles
	l.contributions = s.contributions
	l.transactions = s.transactions
	l.audit = s.audit
	l.reconciliations = s.reconciliations
}

type memTxKey struct{}

// memTx serializes transactions and rolls the ledger back when fn fails.
type memTx struct {
	ledger *memLedger
}

func (t *memTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	t.ledger.txMu.Lock()
	defer t.ledger.txMu.Unlock()

	before := t.ledger.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		t.ledger.restore(before)
		return err
	}
	return nil
}

func copyPayment(p *entity.Payment) *entity.Payment {
	item := *p
	if p.Metadata != nil {
		item.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			item.Metadata[k] = v
		}
	}
	return &item
}

type memPayments struct{ l *memLedger }

func (r *memPayments) Create(_ context.Context, payment *entity.Payment) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if _, ok := r.l.payments[payment.Reference]; ok {
		return repository.ErrPaymentAlreadyExists
	}
	payment.ID = r.l.id()
	r.l.payments[payment.Reference] = copyPayment(payment)
	return nil
}

func (r *memPayments) ApplyVerification(_ context.Context, payment *entity.Payment) (bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	current, ok := r.l.payments[payment.Reference]
	if !ok || current.Status != entity.PaymentStatusPending {
		return false, nil
	}
	item := copyPayment(payment)
	item.ID = current.ID
	item.CreatedAt = current.CreatedAt
	item.ProcessedAt = current.ProcessedAt
	item.ProcessingError = current.ProcessingError
	r.l.payments[payment.Reference] = item
	return true, nil
}

func (r *memPayments) byID(id uint64) *entity.Payment {
	for _, p := range r.l.payments {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *memPayments) MarkProcessed(_ context.Context, id uint64, processedAt time.Time) (bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	p := r.byID(id)
	if p == nil || !p.Verified || p.ProcessedAt != nil {
		return false, nil
	}
	at := processedAt
	p.ProcessedAt = &at
	p.ProcessingError = nil
	p.UpdatedAt = processedAt
	return true, nil
}

func (r *memPayments) SetProcessingError(_ context.Context, id uint64, message string, now time.Time) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	p := r.byID(id)
	if p == nil {
		return repository.ErrPaymentNotFound
	}
	p.ProcessingError = &message
	p.UpdatedAt = now
	return nil
}

func (r *memPayments) MarkFailed(_ context.Context, id uint64, reason string, now time.Time) (bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	p := r.byID(id)
	if p == nil || p.Status != entity.PaymentStatusPending {
		return false, nil
	}
	p.Status = entity.PaymentStatusFailed
	p.ProcessingError = &reason
	p.UpdatedAt = now
	return true, nil
}

func (r *memPayments) FindByReference(_ context.Context, reference string) (*entity.Payment, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	p, ok := r.l.payments[reference]
	if !ok {
		return nil, nil
	}
	return copyPayment(p), nil
}

func (r *memPayments) list(limit int32, keep func(p *entity.Payment) bool) []*entity.Payment {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	items := make([]*entity.Payment, 0)
	for _, p := range r.l.payments {
		if keep(p) {
			items = append(items, copyPayment(p))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items
}

func (r *memPayments) ListPendingBefore(_ context.Context, before time.Time, limit int32) ([]*entity.Payment, error) {
	return r.list(limit, func(p *entity.Payment) bool {
		return p.Status == entity.PaymentStatusPending && !p.UpdatedAt.After(before)
	}), nil
}

func (r *memPayments) ListExpiredPending(_ context.Context, cutoff time.Time, limit int32) ([]*entity.Payment, error) {
	return r.list(limit, func(p *entity.Payment) bool {
		return p.Status == entity.PaymentStatusPending && !p.CreatedAt.After(cutoff)
	}), nil
}

func (r *memPayments) ListUnprocessed(_ context.Context, before time.Time, limit int32) ([]*entity.Payment, error) {
	parked := map[uint64]bool{}
	r.l.mu.Lock()
	for _, rc := range r.l.reconciliations {
		parked[rc.PaymentID] = true
	}
	r.l.mu.Unlock()
	return r.list(limit, func(p *entity.Payment) bool {
		return p.Verified && p.ProcessedAt == nil && p.VerifiedAt != nil &&
			!p.VerifiedAt.After(before) && !parked[p.ID]
	}), nil
}

type memEvents struct{ l *memLedger }

func (r *memEvents) Create(_ context.Context, event *entity.PaymentEvent) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if r.l.eventsErr != nil {
		return r.l.eventsErr
	}
	event.ID = r.l.id()
	item := *event
	r.l.events = append(r.l.events, &item)
	return nil
}

type memCallbacks struct{ l *memLedger }

func (r *memCallbacks) Create(_ context.Context, callback *entity.PaymentCallback) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	callback.ID = r.l.id()
	item := *callback
	r.l.callbacks = append(r.l.callbacks, &item)
	return nil
}

type memGroups struct{ l *memLedger }

func (r *memGroups) Create(_ context.Context, group *entity.Group) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	item := *group
	r.l.groups[group.ID] = &item
	return nil
}

func (r *memGroups) Update(_ context.Context, group *entity.Group) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if _, ok := r.l.groups[group.ID]; !ok {
		return repository.ErrGroupNotFound
	}
	item := *group
	r.l.groups[group.ID] = &item
	return nil
}

func (r *memGroups) FindByID(_ context.Context, id string) (*entity.Group, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	g, ok := r.l.groups[id]
	if !ok {
		return nil, nil
	}
	item := *g
	return &item, nil
}

func (r *memGroups) FindByIDForUpdate(ctx context.Context, id string) (*entity.Group, error) {
	return r.FindByID(ctx, id)
}

type memSlots struct{ l *memLedger }

func (r *memSlots) CreateBatch(_ context.Context, slots []*entity.PayoutSlot) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, s := range slots {
		item := *s
		r.l.slots[slotKey{s.GroupID, s.SlotNumber}] = &item
	}
	return nil
}

func (r *memSlots) Find(_ context.Context, groupID string, slotNumber int32) (*entity.PayoutSlot, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	s, ok := r.l.slots[slotKey{groupID, slotNumber}]
	if !ok {
		return nil, nil
	}
	item := *s
	return &item, nil
}

func (r *memSlots) ListByGroup(_ context.Context, groupID string) ([]*entity.PayoutSlot, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	items := make([]*entity.PayoutSlot, 0)
	for k, s := range r.l.slots {
		if k.groupID == groupID {
			item := *s
			items = append(items, &item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SlotNumber < items[j].SlotNumber })
	return items, nil
}

func (r *memSlots) Reserve(_ context.Context, groupID string, slotNumber int32, userID string, now time.Time) (bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	s, ok := r.l.slots[slotKey{groupID, slotNumber}]
	if !ok || s.Status != entity.SlotStatusAvailable {
		return false, nil
	}
	s.Status = entity.SlotStatusReserved
	s.ReservedBy = &userID
	s.ReservedAt = &now
	s.UpdatedAt = now
	return true, nil
}

func (r *memSlots) Release(_ context.Context, groupID string, slotNumber int32, userID string, now time.Time) (bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	s, ok := r.l.slots[slotKey{groupID, slotNumber}]
	if !ok || s.Status != entity.SlotStatusReserved || s.ReservedBy == nil || *s.ReservedBy != userID {
		return false, nil
	}
	s.Status = entity.SlotStatusAvailable
	s.ReservedBy = nil
	s.ReservedAt = nil
	s.UpdatedAt = now
	return true, nil
}

func (r *memSlots) Assign(_ context.Context, groupID string, slotNumber int32, userID string, now time.Time) (bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	s, ok := r.l.slots[slotKey{groupID, slotNumber}]
	if !ok {
		return false, nil
	}
	reservedBySame := s.Status == entity.SlotStatusReserved && s.ReservedBy != nil && *s.ReservedBy == userID
	if s.Status != entity.SlotStatusAvailable && !reservedBySame {
		return false, nil
	}
	s.Status = entity.SlotStatusAssigned
	s.AssignedTo = &userID
	s.AssignedAt = &now
	s.UpdatedAt = now
	return true, nil
}

type memJoinRequests struct{ l *memLedger }

func (r *memJoinRequests) Create(_ context.Context, req *entity.JoinRequest) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, existing := range r.l.joinRequests {
		if existing.GroupID == req.GroupID && existing.UserID == req.UserID &&
			existing.Status == entity.JoinRequestStatusPending && req.Status == entity.JoinRequestStatusPending {
			return repository.ErrJoinRequestAlreadyExists
		}
	}
	item := *req
	r.l.joinRequests = append(r.l.joinRequests, &item)
	return nil
}

func (r *memJoinRequests) Transition(_ context.Context, req *entity.JoinRequest, fromStatus string) (bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, existing := range r.l.joinRequests {
		if existing.ID == req.ID {
			if existing.Status != fromStatus {
				return false, nil
			}
			existing.Status = req.Status
			existing.ReviewedBy = req.ReviewedBy
			existing.ReviewedAt = req.ReviewedAt
			existing.RejectionReason = req.RejectionReason
			existing.UpdatedAt = req.UpdatedAt
			return true, nil
		}
	}
	return false, nil
}

func (r *memJoinRequests) FindByID(_ context.Context, id string) (*entity.JoinRequest, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, existing := range r.l.joinRequests {
		if existing.ID == id {
			item := *existing
			return &item, nil
		}
	}
	return nil, nil
}

func (r *memJoinRequests) FindLatestByGroupUser(_ context.Context, groupID, userID, status string) (*entity.JoinRequest, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for i := len(r.l.joinRequests) - 1; i >= 0; i-- {
		existing := r.l.joinRequests[i]
		if existing.GroupID == groupID && existing.UserID == userID && existing.Status == status {
			item := *existing
			return &item, nil
		}
	}
	return nil, nil
}

func (r *memJoinRequests) ListByGroup(_ context.Context, groupID, status string) ([]*entity.JoinRequest, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	items := make([]*entity.JoinRequest, 0)
	for _, existing := range r.l.joinRequests {
		if existing.GroupID == groupID && (status == "" || existing.Status == status) {
			item := *existing
			items = append(items, &item)
		}
	}
	return items, nil
}

type memMemberships struct{ l *memLedger }

func (r *memMemberships) Create(_ context.Context, membership *entity.Membership) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, existing := range r.l.memberships {
		if existing.GroupID != membership.GroupID {
			continue
		}
		if existing.UserID == membership.UserID || existing.Position == membership.Position {
			return repository.ErrMembershipAlreadyExists
		}
	}
	membership.ID = r.l.id()
	item := *membership
	r.l.memberships = append(r.l.memberships, &item)
	return nil
}

func (r *memMemberships) FindByGroupUser(_ context.Context, groupID, userID string) (*entity.Membership, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, existing := range r.l.memberships {
		if existing.GroupID == groupID && existing.UserID == userID {
			item := *existing
			return &item, nil
		}
	}
	return nil, nil
}

func (r *memMemberships) ListByGroup(_ context.Context, groupID string) ([]*entity.Membership, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	items := make([]*entity.Membership, 0)
	for _, existing := range r.l.memberships {
		if existing.GroupID == groupID {
			item := *existing
			items = append(items, &item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	return items, nil
}

type memCycles struct{ l *memLedger }

func (r *memCycles) CreateBatch(_ context.Context, cycles []*entity.Cycle) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, c := range cycles {
		c.ID = r.l.id()
		item := *c
		r.l.cycles = append(r.l.cycles, &item)
	}
	return nil
}

func (r *memCycles) Find(_ context.Context, groupID string, cycleNumber int32) (*entity.Cycle, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, c := range r.l.cycles {
		if c.GroupID == groupID && c.CycleNumber == cycleNumber {
			item := *c
			return &item, nil
		}
	}
	return nil, nil
}

func (r *memCycles) Complete(_ context.Context, id uint64, collectedMinor int64, now time.Time) (bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, c := range r.l.cycles {
		if c.ID == id && c.Status != entity.CycleStatusCompleted {
			c.Status = entity.CycleStatusCompleted
			c.CollectedTotalMinor = collectedMinor
			c.CompletedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (r *memCycles) Activate(_ context.Context, groupID string, cycleNumber int32) (bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, c := range r.l.cycles {
		if c.GroupID == groupID && c.CycleNumber == cycleNumber && c.Status == entity.CycleStatusPending {
			c.Status = entity.CycleStatusActive
			return true, nil
		}
	}
	return false, nil
}

type memContributions struct{ l *memLedger }

func (r *memContributions) Create(_ context.Context, contribution *entity.Contribution) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, c := range r.l.contributions {
		if c.GroupID == contribution.GroupID && c.UserID == contribution.UserID && c.CycleNumber == contribution.CycleNumber {
			return repository.ErrContributionAlreadyExists
		}
	}
	contribution.ID = r.l.id()
	item := *contribution
	r.l.contributions = append(r.l.contributions, &item)
	return nil
}

func (r *memContributions) Find(_ context.Context, groupID, userID string, cycleNumber int32) (*entity.Contribution, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, c := range r.l.contributions {
		if c.GroupID == groupID && c.UserID == userID && c.CycleNumber == cycleNumber {
			item := *c
			return &item, nil
		}
	}
	return nil, nil
}

func (r *memContributions) MarkPaid(_ context.Context, id uint64, paymentReference string, now time.Time) (bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, c := range r.l.contributions {
		if c.ID != id {
			continue
		}
		if c.Status != entity.ContributionStatusPending && c.Status != entity.ContributionStatusOverdue {
			return false, nil
		}
		c.Status = entity.ContributionStatusPaid
		c.PaidAt = &now
		c.PaymentReference = &paymentReference
		c.UpdatedAt = now
		return true, nil
	}
	return false, nil
}

func (r *memContributions) MarkOverdue(_ context.Context, id uint64, now time.Time) (bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, c := range r.l.contributions {
		if c.ID == id && c.Status == entity.ContributionStatusPending {
			c.Status = entity.ContributionStatusOverdue
			c.UpdatedAt = now
			return true, nil
		}
	}
	return false, nil
}

func (r *memContributions) filter(keep func(c *entity.Contribution) bool) []*entity.Contribution {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	items := make([]*entity.Contribution, 0)
	for _, c := range r.l.contributions {
		if keep(c) {
			item := *c
			items = append(items, &item)
		}
	}
	return items
}

func (r *memContributions) ListByGroupCycle(_ context.Context, groupID string, cycleNumber int32) ([]*entity.Contribution, error) {
	return r.filter(func(c *entity.Contribution) bool {
		return c.GroupID == groupID && c.CycleNumber == cycleNumber
	}), nil
}

func (r *memContributions) ListByGroup(_ context.Context, groupID string) ([]*entity.Contribution, error) {
	return r.filter(func(c *entity.Contribution) bool { return c.GroupID == groupID }), nil
}

func (r *memContributions) ListPastDue(_ context.Context, now time.Time, limit int32) ([]*entity.Contribution, error) {
	items := r.filter(func(c *entity.Contribution) bool {
		return c.Status == entity.ContributionStatusPending && c.DueDate.Before(now)
	})
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items, nil
}

type memTransactions struct{ l *memLedger }

func (r *memTransactions) Create(_ context.Context, txn *entity.Transaction) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, existing := range r.l.transactions {
		if existing.Reference == txn.Reference {
			return repository.ErrTransactionAlreadyExists
		}
	}
	txn.ID = r.l.id()
	item := *txn
	r.l.transactions = append(r.l.transactions, &item)
	return nil
}

type memAudit struct{ l *memLedger }

func (r *memAudit) Create(_ context.Context, entry *entity.AuditEntry) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	entry.ID = r.l.id()
	item := *entry
	r.l.audit = append(r.l.audit, &item)
	return nil
}

type memReconciliations struct{ l *memLedger }

func (r *memReconciliations) Create(_ context.Context, item *entity.Reconciliation) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, existing := range r.l.reconciliations {
		if existing.PaymentID == item.PaymentID {
			return repository.ErrReconciliationAlreadyExists
		}
	}
	item.ID = r.l.id()
	stored := *item
	r.l.reconciliations = append(r.l.reconciliations, &stored)
	return nil
}

func (r *memReconciliations) Reopen(_ context.Context, paymentID uint64, reason string, detail *string, now time.Time) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, existing := range r.l.reconciliations {
		if existing.PaymentID == paymentID && !existing.Closed() {
			existing.Status = entity.ReconciliationStatusOpen
			existing.Reason = reason
			existing.Detail = detail
			existing.Resolution = nil
			existing.ResolvedBy = nil
			existing.ResolvedAt = nil
			existing.Note = nil
			existing.UpdatedAt = now
		}
	}
	return nil
}

func (r *memReconciliations) Resolve(_ context.Context, item *entity.Reconciliation) (bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, existing := range r.l.reconciliations {
		if existing.ID == item.ID {
			if existing.Status != entity.ReconciliationStatusOpen {
				return false, nil
			}
			existing.Status = entity.ReconciliationStatusResolved
			existing.Resolution = item.Resolution
			existing.ResolvedBy = item.ResolvedBy
			existing.ResolvedAt = item.ResolvedAt
			existing.Note = item.Note
			existing.UpdatedAt = item.UpdatedAt
			return true, nil
		}
	}
	return false, nil
}

func (r *memReconciliations) find(keep func(rc *entity.Reconciliation) bool) *entity.Reconciliation {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, existing := range r.l.reconciliations {
		if keep(existing) {
			item := *existing
			return &item
		}
	}
	return nil
}

func (r *memReconciliations) FindByID(_ context.Context, id uint64) (*entity.Reconciliation, error) {
	return r.find(func(rc *entity.Reconciliation) bool { return rc.ID == id }), nil
}

func (r *memReconciliations) FindByPaymentID(_ context.Context, paymentID uint64) (*entity.Reconciliation, error) {
	return r.find(func(rc *entity.Reconciliation) bool { return rc.PaymentID == paymentID }), nil
}

func (r *memReconciliations) List(_ context.Context, status string, limit, offset int32) ([]*entity.Reconciliation, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	items := make([]*entity.Reconciliation, 0)
	for _, existing := range r.l.reconciliations {
		if status == "" || existing.Status == status {
			item := *existing
			items = append(items, &item)
		}
	}
	start := int(offset)
	if start > len(items) {
		return []*entity.Reconciliation{}, nil
	}
	end := len(items)
	if limit > 0 && start+int(limit) < end {
		end = start + int(limit)
	}
	return items[start:end], nil
}
