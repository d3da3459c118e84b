package worker

import (
	"context"
	"errors"
	"time"

	"github.com/yourorg/opsec-worker/internal/db"
	"github.com/yourorg/opsec-worker/internal/model"
	backoff "github.com/yourorg/opsec-worker/internal/retry"
)

// retry repeats a store write. Errors that another attempt cannot change end
// the loop early.
func retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	return backoff.Do(ctx, maxAttempts, baseDelay, fn, func(err error) bool { return !permanent(err) })
}

func permanent(err error) bool {
	return errors.Is(err, model.ErrInvalidTransition) ||
		errors.Is(err, model.ErrScanFinalized) ||
		errors.Is(err, db.ErrNotFound) ||
		errors.Is(err, context.Canceled)
}
