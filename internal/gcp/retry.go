package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy bounds Retry. The zero value makes a single attempt.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetryPolicy is used for storage writes.
var DefaultRetryPolicy = RetryPolicy{Attempts: 4, Backoff: time.Second}

// Retry runs fn until it succeeds, the attempts are used up or ctx is done.
// The backoff doubles after every failed attempt.
func Retry(ctx context.Context, policy RetryPolicy, op string, fn func(ctx context.Context) error) error {
	attempts := max(policy.Attempts, 1)
	backoff := policy.Backoff
	var lastErr error

	for i := 0; i < attempts; i++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		slog.Warn(
			"Operation failed, will retry.",
			"op", op,
			"attempt", i+1,
			"maxRetries", attempts,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "op", op, "error", ctx.Err())
			return ctx.Err()
		}
	}
	slog.Error("Operation failed after all retries.", "op", op, "error", lastErr)
	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}
