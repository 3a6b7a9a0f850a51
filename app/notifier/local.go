package notifier

import (
	"context"
	"sync"
)

// LocalBroker delivers updates inside a single process. Used when Redis is
// not configured.
type LocalBroker struct {
	mu       sync.RWMutex
	handlers map[int]func(PaymentUpdate)
	nextID   int
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{handlers: map[int]func(PaymentUpdate){}}
}

func (b *LocalBroker) Publish(_ context.Context, update PaymentUpdate) error {
	b.mu.RLock()
	handlers := make([]func(PaymentUpdate), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(update)
	}
	return nil
}

func (b *LocalBroker) Run(ctx context.Context, handle func(PaymentUpdate)) error {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handle
	b.mu.Unlock()

	<-ctx.Done()

	b.mu.Lock()
	delete(b.handlers, id)
	b.mu.Unlock()
	return nil
}

func (b *LocalBroker) Close() error {
	return nil
}
