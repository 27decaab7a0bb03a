// Package retry re-runs store operations that failed because the database
// was busy or locked by another writer.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"journal-sync/internal/contextutil"
	"journal-sync/internal/errs"
	"journal-sync/internal/storage"
)

// Policy bounds the retry schedule.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Retryable decides which errors are retried. Defaults to storage.IsBusy.
	Retryable func(err error) bool
}

// DefaultPolicy retries busy/locked errors five times starting at 50ms.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, InitialInterval: 50 * time.Millisecond, MaxInterval: 2 * time.Second}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = d.MaxInterval
	}
	if p.Retryable == nil {
		p.Retryable = storage.IsBusy
	}
	return p
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempts run out. Exhaustion is reported as a DatabaseError wrapping
// errs.ErrRetriesExhausted and the last cause. The whole op is re-invoked on
// every attempt, so it must start its own transaction.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Value(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Value is Do for operations that return a result.
func Value[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()
	logger := contextutil.LoggerFromContext(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval

	attempts := 0
	busy := false
	v, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		v, err := op(ctx)
		busy = err != nil && p.Retryable(err)
		if err != nil && !busy {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.WarnContext(ctx, "store busy, retrying",
				"attempt", attempts,
				"next_in", next,
				"error", err,
			)
		}),
	)
	if err == nil {
		return v, nil
	}
	if busy && ctx.Err() == nil {
		logger.ErrorContext(ctx, "store stayed busy", "attempts", attempts, "error", err)
		return v, &errs.DatabaseError{
			Op:     "retry",
			Entity: "store",
			Err:    fmt.Errorf("%w after %d attempts: %w", errs.ErrRetriesExhausted, attempts, err),
		}
	}
	return v, err
}
