package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Permanent marks an error that must not be retried.
type Permanent struct {
	Err error
}

func (e *Permanent) Error() string { return e.Err.Error() }
func (e *Permanent) Unwrap() error { return e.Err }

// RetryPolicy is a bounded exponential backoff.
type RetryPolicy struct {
	Retries int           // attempts after the first
	Backoff time.Duration // delay before the first retry, doubled per retry
}

// Delay returns the wait before the given retry (1-based).
func (p RetryPolicy) Delay(retry int) time.Duration {
	return p.Backoff << uint(retry-1)
}

// Retry calls fn until it succeeds, returns a *Permanent error, or the
// policy runs out of attempts. fn may return a delay hint (e.g. from
// Retry-After); the longer of the hint and the computed backoff wins.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (time.Duration, error)) error {
	attempts := 1 + p.Retries
	var (
		lastErr error
		hint    time.Duration
	)
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("canceled: %w", err)
		}
		if i > 0 {
			wait := max(p.Delay(i), hint)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("canceled during backoff: %w", ctx.Err())
			case <-timer.C:
			}
		}

		hint, lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		var perm *Permanent
		if errors.As(lastErr, &perm) {
			return fmt.Errorf("non-retriable error: %w", perm.Err)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
