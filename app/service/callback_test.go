package service

import (
	"context"
	"errors"
	"testing"

	"github.com/vibast-solutions/ms-go-ajo/app/entity"
	"github.com/vibast-solutions/ms-go-ajo/app/provider"
)

func (h *harness) callbackStatuses() []string {
	h.ledger.mu.Lock()
	defer h.ledger.mu.Unlock()
	statuses := make([]string, 0, len(h.ledger.callbacks))
	for _, cb := range h.ledger.callbacks {
		statuses = append(statuses, cb.Status)
	}
	return statuses
}

func TestWebhookSignatureEnforcement(t *testing.T) {
	h := newHarness(t)
	group := h.createGroup(t, "creator", 5, 1)
	payment := h.initialize(t, "creator", entity.PaymentTypeGroupCreation, group.ID, 0)

	body := webhookBody(t, provider.EventChargeSuccess, payment.Reference)
	signature := signed(body)

	if _, err := h.payments.HandleWebhook(context.Background(), body, ""); !errors.Is(err, ErrSignatureMissing) {
		t.Fatalf("expected ErrSignatureMissing, got %v", err)
	}

	tampered := webhookBody(t, provider.EventChargeSuccess, payment.Reference+"x")
	if _, err := h.payments.HandleWebhook(context.Background(), tampered, signature); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
	if calls := h.gateway.callCount(payment.Reference); calls != 0 {
		t.Fatalf("rejected webhooks must not reach the gateway, got %d calls", calls)
	}

	statuses := h.callbackStatuses()
	if len(statuses) != 2 || statuses[0] != entity.PaymentCallbackStatusRejected || statuses[1] != entity.PaymentCallbackStatusRejected {
		t.Fatalf("expected two rejected callbacks, got %v", statuses)
	}

	// a correct signature over the new body is accepted
	h.gateway.set(payment.Reference+"x", provider.StatusFailed, 1, nil)
	if _, err := h.payments.HandleWebhook(context.Background(), tampered, signed(tampered)); err != nil {
		t.Fatalf("expected recomputed signature to be accepted, got %v", err)
	}

	result, err := h.payments.HandleWebhook(context.Background(), body, signature)
	if err != nil || result == nil || !result.Success {
		t.Fatalf("expected webhook to process, got %+v %v", result, err)
	}
	if m := h.membership(group.ID, "creator"); m == nil || m.Position != 1 {
		t.Fatalf("unexpected creator membership: %+v", m)
	}
}

func TestWebhookStoresUnknownReferenceFromGateway(t *testing.T) {
	h := newHarness(t)
	group := h.createGroup(t, "creator", 5, 1)
	h.approveSlot(t, group, "member", 2)

	// checkout happened but the pending record was never stored here
	reference := "ajo_external"
	h.gateway.set(reference, provider.StatusSuccess, testContribution+testDeposit, map[string]string{
		entity.MetadataPaymentType: entity.PaymentTypeGroupJoin,
		entity.MetadataGroupID:     group.ID,
		entity.MetadataUserID:      "member",
	})

	body := webhookBody(t, provider.EventChargeSuccess, reference)
	result, err := h.payments.HandleWebhook(context.Background(), body, signed(body))
	if err != nil || !result.Success {
		t.Fatalf("expected success, got %+v %v", result, err)
	}
	stored := h.payment(reference)
	if stored == nil || stored.UserID != "member" || stored.PaymentType != entity.PaymentTypeGroupJoin || !stored.IsProcessed() {
		t.Fatalf("unexpected stored payment: %+v", stored)
	}
	if m := h.membership(group.ID, "member"); m == nil || m.Position != 2 {
		t.Fatalf("unexpected membership: %+v", m)
	}
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	h := newHarness(t)
	body := []byte(`{"event":"transfer.success","data":{"reference":"trf_1"}}`)

	result, err := h.payments.HandleWebhook(context.Background(), body, signed(body))
	if err != nil || result != nil {
		t.Fatalf("expected ignored event, got %+v %v", result, err)
	}
	statuses := h.callbackStatuses()
	if len(statuses) != 1 || statuses[0] != entity.PaymentCallbackStatusIgnored {
		t.Fatalf("expected one ignored callback, got %v", statuses)
	}
	if calls := h.gateway.callCount("trf_1"); calls != 0 {
		t.Fatalf("expected no gateway call, got %d", calls)
	}
}

func TestWebhookGatewayOutageAsksForRedelivery(t *testing.T) {
	h := newHarness(t)
	group := h.createGroup(t, "creator", 5, 1)
	payment := h.initialize(t, "creator", entity.PaymentTypeGroupCreation, group.ID, 0)
	h.gateway.fail(payment.Reference, provider.ErrGatewayUnavailable)

	body := webhookBody(t, provider.EventChargeSuccess, payment.Reference)
	if _, err := h.payments.HandleWebhook(context.Background(), body, signed(body)); !errors.Is(err, ErrRetryLater) {
		t.Fatalf("expected ErrRetryLater, got %v", err)
	}
}
