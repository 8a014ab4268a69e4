package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how a fallible operation is retried. The first retry waits
// Initial, each subsequent wait is multiplied by Multiplier and capped at
// MaxDelay. A Multiplier of 1 gives a constant delay.
type Policy struct {
	MaxAttempts int
	Initial     time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// Exponential returns a policy that doubles the delay after each attempt.
func Exponential(attempts int, initial, maxDelay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Initial: initial, Multiplier: 2, MaxDelay: maxDelay}
}

// Constant returns a policy that waits the same delay between attempts.
func Constant(attempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Initial: delay, Multiplier: 1, MaxDelay: delay}
}

// NotifyFunc is called after a failed attempt that will be retried.
type NotifyFunc func(attempt int, err error, next time.Duration)

// Permanent marks err as non-retryable; Do returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs fn until it succeeds, returns a Permanent error, the context is
// done, or MaxAttempts is reached. The returned error is the last error from
// fn, unwrapped from Permanent.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error, notify NotifyFunc) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0
	op := func() error {
		attempt++
		return fn(attempt)
	}

	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, next time.Duration) {
			notify(attempt, err, next)
		}
	}

	return backoff.RetryNotify(op, p.backOff(ctx, attempts), onRetry)
}

func (p Policy) backOff(ctx context.Context, attempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval < p.Initial {
		b.MaxInterval = p.Initial
	}
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}
