package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-ajo/app/entity"
	"github.com/vibast-solutions/ms-go-ajo/app/lock"
	"github.com/vibast-solutions/ms-go-ajo/app/metrics"
	"github.com/vibast-solutions/ms-go-ajo/app/notifier"
	"github.com/vibast-solutions/ms-go-ajo/app/provider"
	"github.com/vibast-solutions/ms-go-ajo/app/types"
	"github.com/vibast-solutions/ms-go-ajo/config"
)

const (
	testWebhookSecret = "whsec_test"
	testContribution  = int64(10000)
	testDeposit       = int64(5000)
)

// fakeGateway answers Verify from a table and keeps the real Paystack
// signature and event parsing.
type fakeGateway struct {
	*provider.PaystackGateway

	mu      sync.Mutex
	results map[string]*provider.Verification
	errs    map[string]error
	calls   map[string]int
	release chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		PaystackGateway: provider.NewPaystackGateway(provider.PaystackConfig{
			SecretKey:     "sk_test",
			PublicKey:     "pk_test",
			WebhookSecret: testWebhookSecret,
		}),
		results: map[string]*provider.Verification{},
		errs:    map[string]error{},
		calls:   map[string]int{},
	}
}

func (g *fakeGateway) Verify(ctx context.Context, reference string) (*provider.Verification, error) {
	g.mu.Lock()
	g.calls[reference]++
	result := g.results[reference]
	err := g.errs[reference]
	release := g.release
	g.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, provider.ErrGatewayUnavailable
		}
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, provider.ErrVerificationRejected
	}
	copied := *result
	copied.Metadata = map[string]string{}
	for k, v := range result.Metadata {
		copied.Metadata[k] = v
	}
	return &copied, nil
}

func (g *fakeGateway) set(reference, status string, amount int64, metadata map[string]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	channel := "card"
	g.results[reference] = &provider.Verification{
		Reference:     reference,
		Status:        status,
		GatewayStatus: status,
		AmountMinor:   amount,
		Currency:      "NGN",
		Channel:       &channel,
		Metadata:      metadata,
		RawJSON:       `{"status":true}`,
	}
	delete(g.errs, reference)
}

func (g *fakeGateway) fail(reference string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[reference] = err
}

func (g *fakeGateway) callCount(reference string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[reference]
}

type harness struct {
	ledger   *memLedger
	gateway  *fakeGateway
	locker   *lock.MemoryLocker
	groups   *GroupService
	payments *PaymentService
	broker   *notifier.LocalBroker

	clockMu sync.Mutex
	clock   time.Time
	sleeps  int
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		ledger:  newMemLedger(),
		gateway: newFakeGateway(),
		locker:  lock.NewMemoryLocker(),
		broker:  notifier.NewLocalBroker(),
		clock:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	cfg := config.PaymentsConfig{
		PendingTimeout:      time.Hour,
		ReconcileStaleAfter: 10 * time.Minute,
		UnprocessedAfter:    5 * time.Minute,
		JobBatchSize:        50,
		ServiceFeePercent:   "2",
	}

	stores := h.ledger.stores()
	collector := metrics.Nop()
	processor := NewProcessor(stores, collector)
	processor.now = h.now

	h.groups = NewGroupService(stores, cfg)
	h.groups.now = h.now

	h.payments = NewPaymentService(stores, processor, provider.NewRegistry(h.gateway), lock.NewManager(h.locker), h.broker, collector, cfg)
	h.payments.now = h.now
	h.payments.sleep = func(context.Context, time.Duration) error {
		h.clockMu.Lock()
		h.sleeps++
		h.clockMu.Unlock()
		return nil
	}
	return h
}

func (h *harness) now() time.Time {
	h.clockMu.Lock()
	defer h.clockMu.Unlock()
	return h.clock
}

func (h *harness) advance(d time.Duration) {
	h.clockMu.Lock()
	defer h.clockMu.Unlock()
	h.clock = h.clock.Add(d)
}

func (h *harness) createGroup(t *testing.T, creatorID string, members int32, creatorSlot int32) *entity.Group {
	t.Helper()
	group, err := h.groups.CreateGroup(context.Background(), creatorID, &types.CreateGroupRequest{
		Name:                    "Market women",
		ContributionAmountMinor: testContribution,
		SecurityDepositMinor:    testDeposit,
		Currency:                "NGN",
		Frequency:               entity.FrequencyWeekly,
		TotalMembers:            members,
		CreatorSlot:             creatorSlot,
	})
	if err != nil {
		t.Fatalf("create group failed: %v", err)
	}
	return group
}

func (h *harness) approveSlot(t *testing.T, group *entity.Group, userID string, slot int32) {
	t.Helper()
	req, err := h.groups.RequestSlot(context.Background(), userID, &types.RequestSlotRequest{GroupID: group.ID, PreferredSlot: slot})
	if err != nil {
		t.Fatalf("request slot %d for %s failed: %v", slot, userID, err)
	}
	if _, err := h.groups.ApproveJoinRequest(context.Background(), group.CreatorID, req.ID); err != nil {
		t.Fatalf("approve slot %d for %s failed: %v", slot, userID, err)
	}
}

// initialize stores a pending payment and primes the gateway to report it
// as charged.
func (h *harness) initialize(t *testing.T, userID, paymentType, groupID string, cycle int32) *entity.Payment {
	t.Helper()
	payment, err := h.payments.InitializePayment(context.Background(), userID, &types.InitializePaymentRequest{
		PaymentType: paymentType,
		GroupID:     groupID,
		CycleNumber: cycle,
	})
	if err != nil {
		t.Fatalf("initialize %s for %s failed: %v", paymentType, userID, err)
	}
	h.gateway.set(payment.Reference, provider.StatusSuccess, payment.AmountMinor, payment.Metadata)
	return payment
}

func (h *harness) pay(t *testing.T, userID, paymentType, groupID string, cycle int32) *VerifyResult {
	t.Helper()
	payment := h.initialize(t, userID, paymentType, groupID, cycle)
	result, err := h.payments.VerifyPayment(context.Background(), Caller{UserID: userID, SessionValid: true}, payment.Reference)
	if err != nil {
		t.Fatalf("verify %s failed: %v", payment.Reference, err)
	}
	if !result.Success {
		t.Fatalf("expected %s to be applied, got %+v", payment.Reference, result)
	}
	return result
}

// fillGroup creates an n member group with the creator in slot 1 and member
// k in slot k, everyone paid.
func (h *harness) fillGroup(t *testing.T, n int32) (*entity.Group, []string) {
	t.Helper()
	group := h.createGroup(t, "user-1", n, 1)
	users := []string{"user-1"}
	h.pay(t, "user-1", entity.PaymentTypeGroupCreation, group.ID, 0)
	for k := int32(2); k <= n; k++ {
		userID := "user-" + string(rune('0'+k))
		h.approveSlot(t, group, userID, k)
		h.pay(t, userID, entity.PaymentTypeGroupJoin, group.ID, 0)
		users = append(users, userID)
	}
	return group, users
}

func webhookBody(t *testing.T, event, reference string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"event": event,
		"data":  map[string]interface{}{"reference": reference, "amount": 15000},
	})
	if err != nil {
		t.Fatalf("marshal webhook body: %v", err)
	}
	return body
}

func signed(body []byte) string {
	return provider.ComputeSignature(testWebhookSecret, body)
}

func (h *harness) membership(groupID, userID string) *entity.Membership {
	m, _ := h.ledger.stores().Memberships.FindByGroupUser(context.Background(), groupID, userID)
	return m
}

func (h *harness) payment(reference string) *entity.Payment {
	p, _ := h.ledger.stores().Payments.FindByReference(context.Background(), reference)
	return p
}

func (h *harness) transactions(txType string, cycle int32) []*entity.Transaction {
	h.ledger.mu.Lock()
	defer h.ledger.mu.Unlock()
	items := make([]*entity.Transaction, 0)
	for _, txn := range h.ledger.transactions {
		if txn.Type != txType {
			continue
		}
		if cycle > 0 && (txn.CycleNumber == nil || *txn.CycleNumber != cycle) {
			continue
		}
		items = append(items, txn)
	}
	return items
}
