package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-ajo/app/factory"
)

// RedisBroker publishes updates on a Redis pub/sub channel so every API node
// can push them to its own websocket subscribers.
type RedisBroker struct {
	client  redis.UniversalClient
	channel string
	logger  logrus.FieldLogger
}

func NewRedisBroker(client redis.UniversalClient, channel string) *RedisBroker {
	return &RedisBroker{
		client:  client,
		channel: channel,
		logger:  factory.NewModuleLogger("notifier-redis"),
	}
}

func (b *RedisBroker) Publish(ctx context.Context, update PaymentUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

func (b *RedisBroker) Run(ctx context.Context, handle func(PaymentUpdate)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.WithField("channel", b.channel).Info("Subscribed to payment updates")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var update PaymentUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
				b.logger.WithError(err).Warn("Dropping malformed payment update")
				continue
			}
			handle(update)
		}
	}
}

func (b *RedisBroker) Close() error {
	return nil
}
