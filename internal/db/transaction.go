package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// retryPolicy retries work that fails because SQLite is busy or locked,
// doubling the pause after each attempt.
type retryPolicy struct {
	attempts int
	backoff  time.Duration
}

var defaultRetry = retryPolicy{attempts: 3, backoff: 50 * time.Millisecond}

func (p retryPolicy) withDefaults() retryPolicy {
	if p.attempts <= 0 {
		p.attempts = defaultRetry.attempts
	}
	if p.backoff <= 0 {
		p.backoff = defaultRetry.backoff
	}
	return p
}

func (p retryPolicy) do(ctx context.Context, fn func() error) error {
	p = p.withDefaults()
	pause := p.backoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil || !isBusyError(err) || attempt >= p.attempts {
			return err
		}

		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		pause *= 2
	}
}

// TransactionWithRetry is Transaction retried while the database is busy.
// Zero maxAttempts or baseBackoff select the defaults (3 attempts, 50ms).
func (db *DB) TransactionWithRetry(ctx context.Context, maxAttempts int, baseBackoff time.Duration, fn func(*sql.Tx) error) error {
	policy := retryPolicy{attempts: maxAttempts, backoff: baseBackoff}
	return policy.do(ctx, func() error {
		return db.Transaction(ctx, fn)
	})
}

var busyMarkers = []string{"database is locked", "database is busy", "sqlite_busy"}

func isBusyError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range busyMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
