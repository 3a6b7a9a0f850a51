package notifier

import (
	"context"
	"time"
)

// PaymentUpdate is pushed to subscribers whenever the state of a payment
// reference changes.
type PaymentUpdate struct {
	Reference string    `json:"reference"`
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	Verified  bool      `json:"verified"`
	Activated bool      `json:"activated"`
	Position  *int32    `json:"position,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, update PaymentUpdate) error
}

// Broker fans updates out across processes. Run blocks, handing every received
// update to handle until ctx is done.
type Broker interface {
	Publisher
	Run(ctx context.Context, handle func(PaymentUpdate)) error
	Close() error
}
