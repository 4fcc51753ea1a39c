// Package retry runs an operation up to a bounded number of attempts with
// doubling delays between them.
//
// Only errors the policy's Retryable predicate accepts trigger another
// attempt; anything else propagates immediately. When attempts run out the
// error from the final attempt is returned exactly as the operation produced
// it, so callers can classify it without unwrapping retry noise.
package retry

import (
	"context"
	"time"
)

// Defaults applied by Default.
const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 200 * time.Millisecond
)

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, first call included.
	// Values < 1 are treated as 1.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt; each further wait
	// doubles it.
	InitialDelay time.Duration

	// Retryable decides whether an error is worth another attempt. A nil
	// predicate retries nothing.
	Retryable func(error) bool

	// OnRetry, when set, observes each scheduled retry: the attempt that
	// just failed (1-based), the upcoming delay, and the error.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Default returns the standard policy: 3 attempts, 200ms initial delay,
// retrying the errors retryable accepts.
func Default(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		Retryable:    retryable,
	}
}

// Do runs op under the policy.
func Do(ctx context.Context, p Policy, op func(context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue runs op under the policy and returns its value. On failure the
// zero value accompanies the error from the final attempt, unchanged. A
// context cancelled while waiting between attempts surfaces as ctx.Err().
func DoValue[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.InitialDelay

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= attempts || p.Retryable == nil || !p.Retryable(err) {
			return zero, err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}
