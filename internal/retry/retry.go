// Package retry runs an operation again after transient failures.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Do executes fn up to maxAttempts times with jittered exponential backoff.
// Base delay doubles on each attempt: 200ms -> 400ms -> 800ms, etc.
// An error for which retryable returns false ends the loop early; a nil
// retryable retries every error.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error, retryable func(error) bool) error {
	var lastErr error
	delay := baseDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || (retryable != nil && !retryable(lastErr)) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}
		if ctx.Err() != nil {
			return lastErr
		}
		jitter := time.Duration(0)
		if delay > 1 {
			jitter = time.Duration(rand.Int63n(int64(delay / 2)))
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
	return lastErr
}
