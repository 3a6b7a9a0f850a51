// Package lock serializes processing of a single payment reference across
// concurrent requests and service instances. Acquisition never blocks.
package lock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-ajo/app/factory"
)

var ErrNotAcquired = errors.New("lock is held by another worker")

type Unlock func(ctx context.Context) error

type Locker interface {
	// TryLock returns ErrNotAcquired immediately when the key is held.
	TryLock(ctx context.Context, key string) (Unlock, error)
}

type Manager struct {
	locker Locker
	logger logrus.FieldLogger
}

func NewManager(locker Locker) *Manager {
	return &Manager{
		locker: locker,
		logger: factory.NewModuleLogger("lock-manager"),
	}
}

// PaymentLockKey fits within the 64 character limit of MySQL named locks.
func PaymentLockKey(reference string) string {
	sum := sha256.Sum256([]byte(reference))
	return "ajo:pay:" + hex.EncodeToString(sum[:16])
}

func (m *Manager) WithPaymentLock(ctx context.Context, reference string, fn func(ctx context.Context) error) error {
	key := PaymentLockKey(reference)
	unlock, err := m.locker.TryLock(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			m.logger.WithError(err).WithField("reference", reference).Warn("Failed to release payment lock")
		}
	}()

	return fn(ctx)
}
