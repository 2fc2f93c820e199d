package httpclient

import (
	"context"
	"time"

	"github.com/modkit/installer/internal/errs"
	"github.com/modkit/installer/internal/progress"
)

// RetryConfig bounds a retry(op, config) run (§4.2).
type RetryConfig struct {
	MaxRetries int
	URL        string // used only for the RetryAttempt event
}

// backoff implements the §4.2 formula: 1s * 2^min(attempt-1, 5).
func backoff(attempt int) time.Duration {
	shift := attempt - 1
	if shift > 5 {
		shift = 5
	}
	if shift < 0 {
		shift = 0
	}
	return time.Second * time.Duration(1<<uint(shift))
}

// Retry runs op up to cfg.MaxRetries+1 times, retrying only errors whose
// is_recoverable() (errs.IsRecoverable) predicate is true. It sleeps with
// exponential backoff between attempts and emits RetryAttempt before each
// retry (not before the first attempt).
func Retry(ctx context.Context, cfg RetryConfig, reporter progress.Reporter, op func(ctx context.Context) error) error {
	var lastErr error
	attempts := cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			progress.Emit(reporter, progress.Event{
				Kind:         progress.KindRetryAttempt,
				RetryAttempt: &progress.RetryAttempt{URL: cfg.URL, Attempt: attempt - 1, Max: cfg.MaxRetries},
			})
			select {
			case <-time.After(backoff(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !errs.IsRecoverable(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return &errs.MaxRetriesExceededError{URL: cfg.URL, Retries: cfg.MaxRetries, LastError: lastErr}
}
