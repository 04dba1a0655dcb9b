// Package retry wraps the bounded exponential backoff policy applied to
// every network call: a fixed number of attempts with the delay doubling
// per attempt, cancellable through the context.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Policy struct {
	// MaxAttempts counts the first try: MaxAttempts of 3 means one call
	// and up to two retries.
	MaxAttempts uint64
	BaseDelay   time.Duration
}

// DefaultPolicy mirrors the payment-path policy: up to 3 attempts with
// the base delay doubling per attempt.
var DefaultPolicy = Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}

// Do retries op until it succeeds, returns a permanent error, the attempts
// are exhausted or the context is cancelled.
func (p Policy) Do(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // bounded by attempt count, not wall clock

	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, attempts-1), ctx))
}

// Permanent marks err as not retryable: Do surfaces it immediately.
// Validation failures must be wrapped with it so they are never retried.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
