package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-ajo/app/entity"
	"github.com/vibast-solutions/ms-go-ajo/app/factory"
	"github.com/vibast-solutions/ms-go-ajo/app/lock"
	"github.com/vibast-solutions/ms-go-ajo/app/metrics"
	"github.com/vibast-solutions/ms-go-ajo/app/notifier"
	"github.com/vibast-solutions/ms-go-ajo/app/provider"
	"github.com/vibast-solutions/ms-go-ajo/app/types"
	"github.com/vibast-solutions/ms-go-ajo/config"
	"golang.org/x/sync/singleflight"
)

const (
	defaultBatchSize   = int32(100)
	referencePrefix    = "ajo_"
	serviceActorID     = "system"
	maxStoredSignature = 256
)

// Caller is the identity behind a payment request. SessionValid is false for
// a genuine but expired token; such callers still get their payment recorded.
type Caller struct {
	UserID       string
	SessionValid bool
	IsAdmin      bool
}

// PaymentService is the dual-path controller: the synchronous client call and
// the gateway webhook both run verify -> lock -> record -> process through it.
type PaymentService struct {
	stores      Stores
	processor   *Processor
	gateways    *provider.Registry
	locks       *lock.Manager
	publisher   notifier.Publisher
	metrics     *metrics.Collector
	paymentsCfg config.PaymentsConfig
	verifyGroup singleflight.Group
	logger      logrus.FieldLogger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewPaymentService(
	stores Stores,
	processor *Processor,
	gateways *provider.Registry,
	locks *lock.Manager,
	publisher notifier.Publisher,
	collector *metrics.Collector,
	paymentsCfg config.PaymentsConfig,
) *PaymentService {
	if collector == nil {
		collector = metrics.Nop()
	}
	return &PaymentService{
		stores:      stores,
		processor:   processor,
		gateways:    gateways,
		locks:       locks,
		publisher:   publisher,
		metrics:     collector,
		paymentsCfg: paymentsCfg,
		logger:      factory.NewModuleLogger("payment-service"),
		now:         func() time.Time { return time.Now().UTC() },
		sleep:       sleepContext,
	}
}

// GatewayPublicKey is the only gateway credential handed to clients.
func (s *PaymentService) GatewayPublicKey() string {
	gateway, err := s.gateways.Default()
	if err != nil {
		return ""
	}
	return gateway.PublicKey()
}

func (s *PaymentService) SignatureHeader() string {
	gateway, err := s.gateways.Default()
	if err != nil {
		return provider.PaystackSignatureHeader
	}
	return gateway.SignatureHeader()
}

// InitializePayment checks that the caller may make this payment, prices it
// from the group terms and stores it as pending under a fresh reference.
func (s *PaymentService) InitializePayment(ctx context.Context, userID string, req *types.InitializePaymentRequest) (*entity.Payment, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || req == nil {
		return nil, ErrInvalidRequest
	}

	group, err := s.stores.Groups.FindByID(ctx, req.GroupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrGroupNotFound
	}

	metadata := map[string]string{
		entity.MetadataPaymentType: req.PaymentType,
		entity.MetadataGroupID:     group.ID,
		entity.MetadataUserID:      userID,
	}

	var amount int64
	switch req.PaymentType {
	case entity.PaymentTypeGroupCreation:
		slot, err := s.creatorSlot(ctx, group, userID)
		if err != nil {
			return nil, err
		}
		amount = group.JoinAmountMinor()
		metadata[entity.MetadataSlotNumber] = strconv.FormatInt(int64(slot), 10)
	case entity.PaymentTypeGroupJoin:
		slot, err := s.joinSlot(ctx, group, userID)
		if err != nil {
			return nil, err
		}
		amount = group.JoinAmountMinor()
		metadata[entity.MetadataSlotNumber] = strconv.FormatInt(int64(slot), 10)
	case entity.PaymentTypeContribution:
		contribution, err := s.openContribution(ctx, group, userID, req.CycleNumber)
		if err != nil {
			return nil, err
		}
		amount = contribution.AmountMinor
		metadata[entity.MetadataCycleNumber] = strconv.FormatInt(int64(req.CycleNumber), 10)
	default:
		return nil, ErrInvalidRequest
	}

	now := s.now()
	groupID := group.ID
	payment := &entity.Payment{
		Reference:   referencePrefix + strings.ReplaceAll(uuid.NewString(), "-", ""),
		UserID:      userID,
		AmountMinor: amount,
		Currency:    group.Currency,
		Status:      entity.PaymentStatusPending,
		PaymentType: req.PaymentType,
		GroupID:     &groupID,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.stores.Payments.Create(ctx, payment); err != nil {
			return err
		}
		return s.stores.PaymentEvents.Create(ctx, &entity.PaymentEvent{
			PaymentID: payment.ID,
			EventType: "payment_initialized",
			NewStatus: payment.Status,
			CreatedAt: now,
		})
	})
	if err != nil {
		s.logger.WithError(err).WithField("reference", payment.Reference).Error("Store initialized payment failed")
		return nil, err
	}

	return payment, nil
}

// PaymentStatus is the polling view of a payment.
type PaymentStatus struct {
	Payment   *entity.Payment
	Activated bool
	Position  *int32
}

func (s *PaymentService) GetPaymentStatus(ctx context.Context, caller Caller, reference string) (*PaymentStatus, error) {
	payment, err := s.findOwned(ctx, caller, reference)
	if err != nil {
		return nil, err
	}
	return s.statusOf(ctx, payment)
}

// CurrentUpdate renders the stored state of a payment as a notifier update.
func (s *PaymentService) CurrentUpdate(ctx context.Context, caller Caller, reference string) (*notifier.PaymentUpdate, error) {
	status, err := s.GetPaymentStatus(ctx, caller, reference)
	if err != nil {
		return nil, err
	}
	update := s.updateFrom(status.Payment, status.Position)
	return &update, nil
}

func (s *PaymentService) statusOf(ctx context.Context, payment *entity.Payment) (*PaymentStatus, error) {
	status := &PaymentStatus{Payment: payment, Activated: payment.IsProcessed()}
	if payment.GroupID != nil && payment.UserID != "" {
		membership, err := s.stores.Memberships.FindByGroupUser(ctx, *payment.GroupID, payment.UserID)
		if err != nil {
			return nil, err
		}
		if membership != nil {
			position := membership.Position
			status.Position = &position
		}
	}
	return status, nil
}

func (s *PaymentService) findOwned(ctx context.Context, caller Caller, reference string) (*entity.Payment, error) {
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
	if !caller.IsAdmin && payment.UserID != caller.UserID {
		return nil, ErrForbidden
	}
	return payment, nil
}

func (s *PaymentService) creatorSlot(ctx context.Context, group *entity.Group, userID string) (int32, error) {
	if group.CreatorID != userID {
		return 0, fmt.Errorf("%w: only the creator pays the group creation fee", ErrNotEligible)
	}
	if err := s.ensureNotMember(ctx, group, userID); err != nil {
		return 0, err
	}
	if group.Status != entity.GroupStatusForming {
		return 0, ErrGroupNotForming
	}
	slots, err := s.stores.Slots.ListByGroup(ctx, group.ID)
	if err != nil {
		return 0, err
	}
	for _, slot := range slots {
		if slot.HeldBy(userID) {
			return slot.SlotNumber, nil
		}
	}
	return 0, ErrSlotUnavailable
}

func (s *PaymentService) joinSlot(ctx context.Context, group *entity.Group, userID string) (int32, error) {
	if err := s.ensureNotMember(ctx, group, userID); err != nil {
		return 0, err
	}
	if group.Status != entity.GroupStatusForming {
		return 0, ErrGroupNotForming
	}
	if group.IsFull() {
		return 0, ErrGroupFull
	}
	req, err := s.stores.JoinRequests.FindLatestByGroupUser(ctx, group.ID, userID, entity.JoinRequestStatusApproved)
	if err != nil {
		return 0, err
	}
	if req == nil {
		return 0, ErrNoApprovedRequest
	}
	slot, err := s.stores.Slots.Find(ctx, group.ID, req.PreferredSlot)
	if err != nil {
		return 0, err
	}
	if slot == nil || slot.Status != entity.SlotStatusAssigned || !slot.HeldBy(userID) {
		return 0, ErrSlotUnavailable
	}
	return slot.SlotNumber, nil
}

func (s *PaymentService) openContribution(ctx context.Context, group *entity.Group, userID string, cycle int32) (*entity.Contribution, error) {
	if group.Status != entity.GroupStatusActive {
		return nil, ErrGroupNotActive
	}
	membership, err := s.stores.Memberships.FindByGroupUser(ctx, group.ID, userID)
	if err != nil {
		return nil, err
	}
	if membership == nil || membership.Status != entity.MembershipStatusActive {
		return nil, ErrNotMember
	}
	contribution, err := s.stores.Contributions.Find(ctx, group.ID, userID, cycle)
	if err != nil {
		return nil, err
	}
	if contribution == nil {
		return nil, ErrContributionNotFound
	}
	if contribution.IsSettled() {
		return nil, fmt.Errorf("%w: cycle %d is already settled", ErrNotEligible, cycle)
	}
	return contribution, nil
}

func (s *PaymentService) ensureNotMember(ctx context.Context, group *entity.Group, userID string) error {
	membership, err := s.stores.Memberships.FindByGroupUser(ctx, group.ID, userID)
	if err != nil {
		return err
	}
	if membership != nil {
		return ErrAlreadyMember
	}
	return nil
}

func (s *PaymentService) publish(ctx context.Context, update notifier.PaymentUpdate) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, update); err != nil {
		s.logger.WithError(err).WithField("reference", update.Reference).Warn("Publish payment update failed")
	}
}

func (s *PaymentService) updateFrom(payment *entity.Payment, position *int32) notifier.PaymentUpdate {
	update := notifier.PaymentUpdate{
		Reference: payment.Reference,
		UserID:    payment.UserID,
		Status:    payment.Status,
		Verified:  payment.Verified,
		Activated: payment.IsProcessed(),
		Position:  position,
		At:        s.now(),
	}
	if payment.ProcessingError != nil {
		update.Error = *payment.ProcessingError
	}
	return update
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
