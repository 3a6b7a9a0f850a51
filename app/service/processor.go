package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-ajo/app/entity"
	"github.com/vibast-solutions/ms-go-ajo/app/factory"
	"github.com/vibast-solutions/ms-go-ajo/app/metrics"
	"github.com/vibast-solutions/ms-go-ajo/app/repository"
)

// ProcessResult describes the business effect of a verified payment.
type ProcessResult struct {
	Reference        string
	PaymentType      string
	GroupID          string
	UserID           string
	Position         *int32
	AlreadyProcessed bool
	GroupActivated   bool
	CompletedCycles  []int32
}

// Processor applies the business effect of verified payments. Every branch
// runs in one transaction together with marking the payment processed, so a
// payment is applied at most once.
type Processor struct {
	stores  Stores
	metrics *metrics.Collector
	logger  logrus.FieldLogger
	now     func() time.Time
}

func NewProcessor(stores Stores, collector *metrics.Collector) *Processor {
	if collector == nil {
		collector = metrics.Nop()
	}
	return &Processor{
		stores:  stores,
		metrics: collector,
		logger:  factory.NewModuleLogger("payment-processor"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (p *Processor) Process(ctx context.Context, reference string) (*ProcessResult, error) {
	var result *ProcessResult
	err := p.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		payment, err := p.stores.Payments.FindByReference(ctx, reference)
		if err != nil {
			return err
		}
		if payment == nil {
			return ErrPaymentNotFound
		}
		if !payment.Verified || payment.Status != entity.PaymentStatusSuccess {
			return ErrNotVerified
		}

		intent, err := ParsePaymentIntent(payment)
		if err != nil {
			return err
		}

		res := &ProcessResult{
			Reference:   payment.Reference,
			PaymentType: payment.PaymentType,
			GroupID:     intent.Group(),
			UserID:      intent.Payer(),
		}
		if payment.IsProcessed() {
			return ErrAlreadyProcessed
		}

		now := p.now()
		switch in := intent.(type) {
		case GroupCreationPayment:
			err = p.applyGroupCreation(ctx, payment, in, now, res)
		case GroupJoinPayment:
			err = p.applyGroupJoin(ctx, payment, in, now, res)
		case ContributionPayment:
			err = p.applyContribution(ctx, payment, in, now, res)
		default:
			err = ErrUnknownPaymentIntent
		}
		if err != nil {
			return err
		}

		marked, err := p.stores.Payments.MarkProcessed(ctx, payment.ID, now)
		if err != nil {
			return err
		}
		if !marked {
			return ErrAlreadyProcessed
		}

		if err := p.appendEvent(ctx, payment, "payment_processed", res, now); err != nil {
			return err
		}

		result = res
		return nil
	})

	if errors.Is(err, ErrAlreadyProcessed) {
		return p.processedResult(ctx, reference)
	}
	if err != nil {
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"reference":    result.Reference,
		"payment_type": result.PaymentType,
		"group_id":     result.GroupID,
		"user_id":      result.UserID,
	}).Info("Payment processed")

	return result, nil
}

// processedResult reports the effect of a payment that was applied earlier.
func (p *Processor) processedResult(ctx context.Context, reference string) (*ProcessResult, error) {
	payment, err := p.stores.Payments.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	intent, err := ParsePaymentIntent(payment)
	if err != nil {
		return nil, err
	}

	res := &ProcessResult{
		Reference:        payment.Reference,
		PaymentType:      payment.PaymentType,
		GroupID:          intent.Group(),
		UserID:           intent.Payer(),
		AlreadyProcessed: true,
	}
	membership, err := p.stores.Memberships.FindByGroupUser(ctx, intent.Group(), intent.Payer())
	if err != nil {
		return nil, err
	}
	if membership != nil {
		position := membership.Position
		res.Position = &position
	}
	return res, nil
}

func (p *Processor) applyGroupCreation(ctx context.Context, payment *entity.Payment, in GroupCreationPayment, now time.Time, res *ProcessResult) error {
	group, err := p.lockGroup(ctx, in.GroupID)
	if err != nil {
		return err
	}
	if group.CreatorID != in.UserID {
		return conflictf(ErrNotGroupCreator, "group %s", group.ID)
	}

	done, err := p.existingMembership(ctx, group.ID, in.UserID, res)
	if err != nil || done {
		return err
	}

	if err := p.checkJoinable(group, payment); err != nil {
		return err
	}

	assigned, err := p.stores.Slots.Assign(ctx, group.ID, in.SlotNumber, in.UserID, now)
	if err != nil {
		return err
	}
	if !assigned {
		return conflictf(ErrSlotUnavailable, "slot %d of group %s", in.SlotNumber, group.ID)
	}

	return p.activateMembership(ctx, group, payment, in.UserID, in.SlotNumber, now, res)
}

func (p *Processor) applyGroupJoin(ctx context.Context, payment *entity.Payment, in GroupJoinPayment, now time.Time, res *ProcessResult) error {
	group, err := p.lockGroup(ctx, in.GroupID)
	if err != nil {
		return err
	}

	done, err := p.existingMembership(ctx, group.ID, in.UserID, res)
	if err != nil || done {
		return err
	}

	if err := p.checkJoinable(group, payment); err != nil {
		return err
	}

	req, err := p.stores.JoinRequests.FindLatestByGroupUser(ctx, group.ID, in.UserID, entity.JoinRequestStatusApproved)
	if err != nil {
		return err
	}
	if req == nil {
		return conflictf(ErrNoApprovedRequest, "user %s group %s", in.UserID, group.ID)
	}

	slot, err := p.stores.Slots.Find(ctx, group.ID, req.PreferredSlot)
	if err != nil {
		return err
	}
	if slot == nil || slot.Status != entity.SlotStatusAssigned || !slot.HeldBy(in.UserID) {
		return conflictf(ErrSlotUnavailable, "slot %d of group %s", req.PreferredSlot, group.ID)
	}

	return p.activateMembership(ctx, group, payment, in.UserID, req.PreferredSlot, now, res)
}

func (p *Processor) applyContribution(ctx context.Context, payment *entity.Payment, in ContributionPayment, now time.Time, res *ProcessResult) error {
	group, err := p.lockGroup(ctx, in.GroupID)
	if err != nil {
		return err
	}

	contribution, err := p.stores.Contributions.Find(ctx, group.ID, in.UserID, in.CycleNumber)
	if err != nil {
		return err
	}

	membership, err := p.stores.Memberships.FindByGroupUser(ctx, group.ID, in.UserID)
	if err != nil {
		return err
	}
	if membership != nil {
		position := membership.Position
		res.Position = &position
	}

	if contribution != nil && contribution.IsSettled() &&
		contribution.PaymentReference != nil && *contribution.PaymentReference == payment.Reference {
		return nil
	}

	if group.Status != entity.GroupStatusActive {
		return conflictf(ErrGroupNotActive, "group %s is %s", group.ID, group.Status)
	}
	if membership == nil || membership.Status != entity.MembershipStatusActive {
		return conflictf(ErrNotMember, "user %s group %s", in.UserID, group.ID)
	}
	if contribution == nil {
		return conflictf(ErrContributionNotFound, "cycle %d", in.CycleNumber)
	}
	if contribution.IsSettled() {
		return conflictf(ErrContributionAlreadyPaid, "cycle %d", in.CycleNumber)
	}
	if payment.AmountMinor != contribution.AmountMinor || payment.Currency != group.Currency {
		return conflictf(ErrAmountMismatch, "expected %d %s, got %d %s",
			contribution.AmountMinor, group.Currency, payment.AmountMinor, payment.Currency)
	}

	paid, err := p.stores.Contributions.MarkPaid(ctx, contribution.ID, payment.Reference, now)
	if err != nil {
		return err
	}
	if !paid {
		return conflictf(ErrContributionAlreadyPaid, "cycle %d", in.CycleNumber)
	}

	cycle := in.CycleNumber
	if err := p.appendTransaction(ctx, &entity.Transaction{
		Reference:        "contribution:" + payment.Reference,
		GroupID:          group.ID,
		UserID:           in.UserID,
		Type:             entity.TransactionTypeContribution,
		AmountMinor:      payment.AmountMinor,
		Currency:         payment.Currency,
		Status:           entity.TransactionStatusCompleted,
		CycleNumber:      &cycle,
		PaymentReference: &payment.Reference,
		CreatedAt:        now,
	}); err != nil {
		return err
	}

	if err := p.settleCycles(ctx, group, now, res); err != nil {
		return err
	}

	group.UpdatedAt = now
	return p.stores.Groups.Update(ctx, group)
}

func (p *Processor) lockGroup(ctx context.Context, groupID string) (*entity.Group, error) {
	group, err := p.stores.Groups.FindByIDForUpdate(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, conflictf(ErrGroupNotFound, "group %s", groupID)
	}
	return group, nil
}

// existingMembership fills res and reports true when the payer is already a
// member, meaning the join effect is in place.
func (p *Processor) existingMembership(ctx context.Context, groupID, userID string, res *ProcessResult) (bool, error) {
	membership, err := p.stores.Memberships.FindByGroupUser(ctx, groupID, userID)
	if err != nil {
		return false, err
	}
	if membership == nil {
		return false, nil
	}
	position := membership.Position
	res.Position = &position
	return true, nil
}

func (p *Processor) checkJoinable(group *entity.Group, payment *entity.Payment) error {
	if group.Status != entity.GroupStatusForming {
		if group.IsFull() {
			return conflictf(ErrGroupFull, "group %s", group.ID)
		}
		return conflictf(ErrGroupNotForming, "group %s is %s", group.ID, group.Status)
	}
	if group.IsFull() {
		return conflictf(ErrGroupFull, "group %s", group.ID)
	}
	expected := group.JoinAmountMinor()
	if payment.AmountMinor != expected || payment.Currency != group.Currency {
		return conflictf(ErrAmountMismatch, "expected %d %s, got %d %s",
			expected, group.Currency, payment.AmountMinor, payment.Currency)
	}
	return nil
}

func (p *Processor) activateMembership(ctx context.Context, group *entity.Group, payment *entity.Payment, userID string, position int32, now time.Time, res *ProcessResult) error {
	membership := &entity.Membership{
		GroupID:             group.ID,
		UserID:              userID,
		Position:            position,
		Status:              entity.MembershipStatusActive,
		SecurityDepositPaid: true,
		JoinedAt:            now,
		UpdatedAt:           now,
	}
	if err := p.stores.Memberships.Create(ctx, membership); err != nil {
		if errors.Is(err, repository.ErrMembershipAlreadyExists) {
			return conflictf(ErrSlotUnavailable, "position %d of group %s", position, group.ID)
		}
		return err
	}

	firstCycle := int32(1)
	if group.SecurityDepositMinor > 0 {
		if err := p.appendTransaction(ctx, &entity.Transaction{
			Reference:        "deposit:" + payment.Reference,
			GroupID:          group.ID,
			UserID:           userID,
			Type:             entity.TransactionTypeSecurityDeposit,
			AmountMinor:      group.SecurityDepositMinor,
			Currency:         group.Currency,
			Status:           entity.TransactionStatusCompleted,
			PaymentReference: &payment.Reference,
			CreatedAt:        now,
		}); err != nil {
			return err
		}
	}
	if err := p.appendTransaction(ctx, &entity.Transaction{
		Reference:        "contribution:" + payment.Reference,
		GroupID:          group.ID,
		UserID:           userID,
		Type:             entity.TransactionTypeContribution,
		AmountMinor:      group.ContributionAmountMinor,
		Currency:         group.Currency,
		Status:           entity.TransactionStatusCompleted,
		CycleNumber:      &firstCycle,
		PaymentReference: &payment.Reference,
		CreatedAt:        now,
	}); err != nil {
		return err
	}

	paidAt := now
	if err := p.stores.Contributions.Create(ctx, &entity.Contribution{
		GroupID:          group.ID,
		UserID:           userID,
		CycleNumber:      firstCycle,
		AmountMinor:      group.ContributionAmountMinor,
		Status:           entity.ContributionStatusPaid,
		DueDate:          now,
		PaidAt:           &paidAt,
		PaymentReference: &payment.Reference,
		CreatedAt:        now,
		UpdatedAt:        now,
	}); err != nil && !errors.Is(err, repository.ErrContributionAlreadyExists) {
		return err
	}

	group.CurrentMembers++
	res.Position = &position

	if group.IsFull() {
		if err := p.activateGroup(ctx, group, now, res); err != nil {
			return err
		}
	}

	group.UpdatedAt = now
	return p.stores.Groups.Update(ctx, group)
}

// activateGroup starts the rotation once every slot has a paid member: the
// holder of slot k is the recipient of cycle k.
func (p *Processor) activateGroup(ctx context.Context, group *entity.Group, now time.Time, res *ProcessResult) error {
	memberships, err := p.stores.Memberships.ListByGroup(ctx, group.ID)
	if err != nil {
		return err
	}
	holders := make(map[int32]string, len(memberships))
	for _, m := range memberships {
		holders[m.Position] = m.UserID
	}

	start := now
	if group.StartDate != nil && group.StartDate.After(now) {
		start = group.StartDate.UTC()
	}

	total := group.TotalMembers
	cycles := make([]*entity.Cycle, 0, total)
	for k := int32(1); k <= total; k++ {
		recipient, ok := holders[k]
		if !ok {
			return fmt.Errorf("group %s has no member in slot %d", group.ID, k)
		}
		status := entity.CycleStatusPending
		if k == 1 {
			status = entity.CycleStatusActive
		}
		cycles = append(cycles, &entity.Cycle{
			GroupID:            group.ID,
			CycleNumber:        k,
			RecipientID:        recipient,
			ExpectedTotalMinor: group.ContributionAmountMinor * int64(total),
			StartDate:          addPeriods(start, group.Frequency, int(k-1)),
			DueDate:            addPeriods(start, group.Frequency, int(k)),
			Status:             status,
		})
	}
	if err := p.stores.Cycles.CreateBatch(ctx, cycles); err != nil {
		return err
	}

	for _, cycle := range cycles[1:] {
		for _, m := range memberships {
			err := p.stores.Contributions.Create(ctx, &entity.Contribution{
				GroupID:     group.ID,
				UserID:      m.UserID,
				CycleNumber: cycle.CycleNumber,
				AmountMinor: group.ContributionAmountMinor,
				Status:      entity.ContributionStatusPending,
				DueDate:     cycle.DueDate,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			if err != nil && !errors.Is(err, repository.ErrContributionAlreadyExists) {
				return err
			}
		}
	}

	group.Status = entity.GroupStatusActive
	group.CurrentCycle = 1
	group.StartDate = &start
	res.GroupActivated = true

	p.logger.WithFields(logrus.Fields{"group_id": group.ID, "members": total}).Info("Group activated")

	return p.settleCycles(ctx, group, now, res)
}

// settleCycles completes the current cycle, and any that follow it, while
// all of their contributions are settled.
func (p *Processor) settleCycles(ctx context.Context, group *entity.Group, now time.Time, res *ProcessResult) error {
	for group.Status == entity.GroupStatusActive {
		current := group.CurrentCycle
		completed, err := p.completeCycle(ctx, group, current, now)
		if err != nil {
			return err
		}
		if !completed {
			return nil
		}
		res.CompletedCycles = append(res.CompletedCycles, current)
	}
	return nil
}

func (p *Processor) completeCycle(ctx context.Context, group *entity.Group, number int32, now time.Time) (bool, error) {
	cycle, err := p.stores.Cycles.Find(ctx, group.ID, number)
	if err != nil {
		return false, err
	}
	if cycle == nil {
		return false, fmt.Errorf("cycle %d of group %s is missing", number, group.ID)
	}
	if cycle.Status == entity.CycleStatusCompleted {
		return false, nil
	}

	contributions, err := p.stores.Contributions.ListByGroupCycle(ctx, group.ID, number)
	if err != nil {
		return false, err
	}
	if int32(len(contributions)) < group.TotalMembers {
		return false, nil
	}
	var collected int64
	for _, c := range contributions {
		if !c.IsSettled() {
			return false, nil
		}
		if c.Status == entity.ContributionStatusPaid {
			collected += c.AmountMinor
		}
	}

	gross := group.ContributionAmountMinor * int64(group.TotalMembers)
	fee, err := serviceFee(gross, group.ServiceFeePercent)
	if err != nil {
		return false, err
	}

	cycleNumber := number
	paid, err := p.appendTransactionOnce(ctx, &entity.Transaction{
		Reference:   payoutReference(group.ID, number),
		GroupID:     group.ID,
		UserID:      cycle.RecipientID,
		Type:        entity.TransactionTypePayout,
		AmountMinor: gross - fee,
		Currency:    group.Currency,
		Status:      entity.TransactionStatusCompleted,
		CycleNumber: &cycleNumber,
		CreatedAt:   now,
	})
	if err != nil {
		return false, err
	}
	if paid && fee > 0 {
		if _, err := p.appendTransactionOnce(ctx, &entity.Transaction{
			Reference:   serviceFeeReference(group.ID, number),
			GroupID:     group.ID,
			UserID:      cycle.RecipientID,
			Type:        entity.TransactionTypeServiceFee,
			AmountMinor: fee,
			Currency:    group.Currency,
			Status:      entity.TransactionStatusCompleted,
			CycleNumber: &cycleNumber,
			CreatedAt:   now,
		}); err != nil {
			return false, err
		}
	}

	if _, err := p.stores.Cycles.Complete(ctx, cycle.ID, collected, now); err != nil {
		return false, err
	}

	if number < group.TotalMembers {
		if _, err := p.stores.Cycles.Activate(ctx, group.ID, number+1); err != nil {
			return false, err
		}
		group.CurrentCycle = number + 1
	} else {
		group.Status = entity.GroupStatusCompleted
	}

	if paid {
		p.metrics.Payout()
		p.logger.WithFields(logrus.Fields{
			"group_id":     group.ID,
			"cycle_number": number,
			"recipient_id": cycle.RecipientID,
			"payout":       gross - fee,
			"service_fee":  fee,
		}).Info("Cycle paid out")
	}

	return true, nil
}

func (p *Processor) appendTransaction(ctx context.Context, txn *entity.Transaction) error {
	_, err := p.appendTransactionOnce(ctx, txn)
	return err
}

// appendTransactionOnce reports false when a transaction with the same
// reference already exists.
func (p *Processor) appendTransactionOnce(ctx context.Context, txn *entity.Transaction) (bool, error) {
	if err := p.stores.Transactions.Create(ctx, txn); err != nil {
		if errors.Is(err, repository.ErrTransactionAlreadyExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *Processor) appendEvent(ctx context.Context, payment *entity.Payment, eventType string, details interface{}, now time.Time) error {
	var payload *string
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			s := string(raw)
			payload = &s
		}
	}
	return p.stores.PaymentEvents.Create(ctx, &entity.PaymentEvent{
		PaymentID:   payment.ID,
		EventType:   eventType,
		NewStatus:   payment.Status,
		PayloadJSON: payload,
		CreatedAt:   now,
	})
}
