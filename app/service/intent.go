package service

import (
	"strconv"
	"strings"

	"github.com/vibast-solutions/ms-go-ajo/app/entity"
)

// PaymentIntent is what a verified payment is meant to achieve. The concrete
// types are the only implementations.
type PaymentIntent interface {
	paymentIntent()
	Group() string
	Payer() string
}

type GroupCreationPayment struct {
	GroupID    string
	UserID     string
	SlotNumber int32
}

type GroupJoinPayment struct {
	GroupID string
	UserID  string
}

type ContributionPayment struct {
	GroupID     string
	UserID      string
	CycleNumber int32
}

func (GroupCreationPayment) paymentIntent() {}
func (GroupJoinPayment) paymentIntent()     {}
func (ContributionPayment) paymentIntent()  {}

func (p GroupCreationPayment) Group() string { return p.GroupID }
func (p GroupJoinPayment) Group() string     { return p.GroupID }
func (p ContributionPayment) Group() string  { return p.GroupID }

func (p GroupCreationPayment) Payer() string { return p.UserID }
func (p GroupJoinPayment) Payer() string     { return p.UserID }
func (p ContributionPayment) Payer() string  { return p.UserID }

// ParsePaymentIntent reads the intent from the payment columns, falling back
// to metadata echoed by the gateway.
func ParsePaymentIntent(payment *entity.Payment) (PaymentIntent, error) {
	if payment == nil {
		return nil, ErrUnknownPaymentIntent
	}

	paymentType := strings.TrimSpace(payment.PaymentType)
	if paymentType == "" {
		paymentType = metadataValue(payment, entity.MetadataPaymentType)
	}
	groupID := ""
	if payment.GroupID != nil {
		groupID = strings.TrimSpace(*payment.GroupID)
	}
	if groupID == "" {
		groupID = metadataValue(payment, entity.MetadataGroupID)
	}
	userID := strings.TrimSpace(payment.UserID)
	if userID == "" {
		userID = metadataValue(payment, entity.MetadataUserID)
	}

	if groupID == "" || userID == "" {
		return nil, conflictf(ErrUnknownPaymentIntent, "group or user missing on %s", payment.Reference)
	}

	switch paymentType {
	case entity.PaymentTypeGroupCreation:
		slot, err := metadataInt32(payment, entity.MetadataSlotNumber)
		if err != nil {
			return nil, err
		}
		return GroupCreationPayment{GroupID: groupID, UserID: userID, SlotNumber: slot}, nil
	case entity.PaymentTypeGroupJoin:
		return GroupJoinPayment{GroupID: groupID, UserID: userID}, nil
	case entity.PaymentTypeContribution:
		cycle, err := metadataInt32(payment, entity.MetadataCycleNumber)
		if err != nil {
			return nil, err
		}
		return ContributionPayment{GroupID: groupID, UserID: userID, CycleNumber: cycle}, nil
	default:
		return nil, conflictf(ErrUnknownPaymentIntent, "payment type %q", paymentType)
	}
}

func metadataValue(payment *entity.Payment, key string) string {
	if payment.Metadata == nil {
		return ""
	}
	return strings.TrimSpace(payment.Metadata[key])
}

func metadataInt32(payment *entity.Payment, key string) (int32, error) {
	raw := metadataValue(payment, key)
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || n <= 0 {
		return 0, conflictf(ErrUnknownPaymentIntent, "%s=%q", key, raw)
	}
	return int32(n), nil
}
