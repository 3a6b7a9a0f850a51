package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const defaultAcquireTimeout = 2 * time.Second

// MySQLLocker uses GET_LOCK named locks. A named lock belongs to the session
// that took it, so the connection is pinned until release. The pool must not
// be shared with the queries run under the lock.
type MySQLLocker struct {
	db             *sql.DB
	acquireTimeout time.Duration
}

func NewMySQLLocker(db *sql.DB, acquireTimeout time.Duration) *MySQLLocker {
	if acquireTimeout <= 0 {
		acquireTimeout = defaultAcquireTimeout
	}
	return &MySQLLocker{db: db, acquireTimeout: acquireTimeout}
}

func (l *MySQLLocker) TryLock(ctx context.Context, key string) (Unlock, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, l.acquireTimeout)
	defer cancel()

	conn, err := l.db.Conn(acquireCtx)
	if err != nil {
		// Every lock session is busy: report contention instead of queueing.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrNotAcquired
		}
		return nil, err
	}

	var acquired sql.NullInt64
	if err := conn.QueryRowContext(acquireCtx, "SELECT GET_LOCK(?, 0)", key).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if !acquired.Valid {
		_ = conn.Close()
		return nil, fmt.Errorf("get_lock failed for %s", key)
	}
	if acquired.Int64 != 1 {
		_ = conn.Close()
		return nil, ErrNotAcquired
	}

	return func(ctx context.Context) error {
		defer conn.Close()
		var released sql.NullInt64
		return conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", key).Scan(&released)
	}, nil
}
