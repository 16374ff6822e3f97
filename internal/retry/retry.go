package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/itinerary-ingest/internal/logger"
)

// Operation performs one attempt. attempt is 1-based.
type Operation func(ctx context.Context, attempt int) error

// Config holds retry configuration.
type Config struct {
	// MaxAttempts is the maximum number of attempts (0 means unlimited)
	MaxAttempts int
	Backoff     BackoffStrategy
	// RetryIf decides whether an error is retried; nil uses DefaultRetryIf
	RetryIf func(error) bool
	// OnRetry is called before waiting for the next attempt
	OnRetry func(attempt int, err error, delay time.Duration)
}

// PermanentError marks an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// DefaultRetryIf retries everything except context errors and permanent errors.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	var perm *PermanentError
	if errors.As(err, &perm) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Do executes op until it succeeds, returns a non-retryable error, the
// attempt budget is exhausted, or ctx is cancelled.
func Do(ctx context.Context, cfg Config, op Operation) error {
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = DefaultExponentialBackoff()
	}

	var lastErr error
	for attempt := 1; cfg.MaxAttempts <= 0 || attempt <= cfg.MaxAttempts; attempt++ {
		err := op(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				logger.CtxDebug(ctx, "Operation succeeded on attempt %d", attempt)
			}
			return nil
		}
		lastErr = err

		if !retryIf(err) {
			return err
		}
		if cfg.MaxAttempts > 0 && attempt == cfg.MaxAttempts {
			break
		}

		delay := backoff.NextDelay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		logger.With(logger.Fields{
			logger.FieldAttempt: attempt,
			"max_attempts":      cfg.MaxAttempts,
			"delay_ms":          delay.Milliseconds(),
			"error":             err.Error(),
		}).Warn(ctx, "Retrying operation")

		if err := Wait(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
}

// DoWithResult executes an operation that returns a result with retry logic.
func DoWithResult[T any](ctx context.Context, cfg Config, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func(ctx context.Context, attempt int) error {
		var opErr error
		result, opErr = op(ctx, attempt)
		return opErr
	})
	return result, err
}
