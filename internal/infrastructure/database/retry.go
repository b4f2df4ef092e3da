package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// backoffMultiplier grows the wait between attempts.
const backoffMultiplier = 2

// ErrRetriesExhausted is returned when a store operation kept failing with
// transient errors for every allowed attempt.
var ErrRetriesExhausted = errors.New("database: retries exhausted")

// RetryPolicy bounds retries of store operations that fail because the
// database is busy, locked or its connection went away.
//
// The zero value performs a single attempt.
type RetryPolicy struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy is used by repositories that are not given a policy.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:       3,
	InitialBackoff: 200 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
}

// Do runs op until it succeeds, returns a non-transient error, the
// context is cancelled, or the attempts run out.
//
// Parameters:
//   - ctx: Context for cancellation; also passed to op
//   - op: The store operation. It must be safe to repeat.
//
// Returns:
//   - error: nil on success, op's error if it is not transient, or
//     ErrRetriesExhausted wrapping the last transient error
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		if waitErr := wait(ctx, backoff); waitErr != nil {
			return fmt.Errorf("%w: %w", waitErr, lastErr)
		}
		backoff = nextBackoff(backoff, p.MaxBackoff)
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
}

// IsTransient reports whether err is worth retrying: SQLite busy/locked
// conditions, I/O hiccups, or a pool connection that has gone bad.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr, sqlite3.ErrCantOpen:
			return true
		}
	}
	return false
}

func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * backoffMultiplier
	if limit > 0 && next > limit {
		return limit
	}
	return next
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
