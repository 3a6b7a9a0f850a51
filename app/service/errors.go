package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrForbidden          = errors.New("forbidden")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrGroupNotFound      = errors.New("group not found")
	ErrJoinRequestMissing = errors.New("join request not found")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrAlreadyMember      = errors.New("user is already a member of this group")
	ErrPendingRequest     = errors.New("a pending join request already exists for this group")
	ErrRequestApproved    = errors.New("an approved join request already exists for this group")
	ErrNotEligible        = errors.New("user is not eligible for this payment")

	ErrReconciliationNotFound = errors.New("reconciliation not found")
	ErrReconciliationResolved = errors.New("reconciliation already resolved")

	// ErrRetryLater is returned when another worker holds the payment lock
	// and the payment is not done yet, or the gateway is unreachable.
	ErrRetryLater = errors.New("payment is being processed, retry later")

	ErrSignatureMissing = errors.New("webhook signature missing")
	ErrSignatureInvalid = errors.New("webhook signature invalid")

	// ErrAlreadyProcessed never reaches callers; it unwinds a transaction
	// that found the payment already applied.
	ErrAlreadyProcessed = errors.New("payment already processed")
	ErrNotVerified      = errors.New("payment is not verified")
)

// Structural conflicts: the payment is genuine but its business effect cannot
// be applied.
var (
	ErrGroupFull               = errors.New("group is full")
	ErrSlotUnavailable         = errors.New("slot unavailable")
	ErrNoApprovedRequest       = errors.New("no approved join request for this group")
	ErrAmountMismatch          = errors.New("paid amount does not match the expected amount")
	ErrGroupNotForming         = errors.New("group is no longer accepting members")
	ErrGroupNotActive          = errors.New("group is not active")
	ErrNotMember               = errors.New("user is not an active member of this group")
	ErrNotGroupCreator         = errors.New("user is not the group creator")
	ErrContributionNotFound    = errors.New("contribution not found")
	ErrContributionAlreadyPaid = errors.New("contribution already paid by another payment")
	ErrUnknownPaymentIntent    = errors.New("payment metadata does not describe a known payment")
)

var conflictReasons = map[error]string{
	ErrGroupFull:               "group_full",
	ErrSlotUnavailable:         "slot_unavailable",
	ErrNoApprovedRequest:       "no_approved_request",
	ErrAmountMismatch:          "amount_mismatch",
	ErrGroupNotForming:         "group_not_forming",
	ErrGroupNotActive:          "group_not_active",
	ErrNotMember:               "not_member",
	ErrNotGroupCreator:         "not_group_creator",
	ErrContributionNotFound:    "contribution_not_found",
	ErrContributionAlreadyPaid: "contribution_already_paid",
	ErrUnknownPaymentIntent:    "unknown_payment_intent",
	ErrGroupNotFound:           "group_not_found",
}

// ConflictReason reports whether err is a structural conflict and its short
// machine readable reason.
func ConflictReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	for sentinel, reason := range conflictReasons {
		if errors.Is(err, sentinel) {
			return reason, true
		}
	}
	return "", false
}

func conflictf(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
