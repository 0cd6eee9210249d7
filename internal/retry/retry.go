// Package retry applies a bounded retry policy with exponential backoff
// to any retryable operation.
package retry

import (
	"context"
	"time"
)

// Backoff maps a completed attempt number (1-based) to the delay before
// the next attempt.
type Backoff func(attempt int) time.Duration

// Exponential doubles the base delay after each attempt: base, 2*base,
// 4*base, ...
func Exponential(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return base * time.Duration(1<<(attempt-1))
	}
}

// Policy bounds an operation to MaxAttempts tries separated by Backoff
// delays. Sleep is injectable for tests; nil means a context-aware
// time.After wait.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Default returns the standard generation retry policy: maxAttempts
// tries with 1s, 2s, 4s delays between them.
func Default(maxAttempts int) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Backoff:     Exponential(time.Second),
	}
}

// Do invokes op until it succeeds, the attempts are exhausted, or the
// context is done. It returns the last error when all attempts fail.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = waitContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt < attempts && p.Backoff != nil {
			if err := sleep(ctx, p.Backoff(attempt)); err != nil {
				return lastErr
			}
		}
	}

	return lastErr
}

func waitContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
