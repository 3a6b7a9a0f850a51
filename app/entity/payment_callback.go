package entity

import "time"

const (
	PaymentCallbackStatusProcessed = "processed"
	PaymentCallbackStatusIgnored   = "ignored"
	PaymentCallbackStatusRejected  = "rejected"
)

// PaymentCallback is one webhook delivery as received, kept whether or not it
// was accepted.
type PaymentCallback struct {
	ID uint64

	PaymentID *uint64

	Gateway     string
	EventType   string
	Reference   *string
	Signature   string
	PayloadJSON string
	Status      string
	Error       *string

	CreatedAt time.Time
}
