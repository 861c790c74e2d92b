// Package retry provides bounded retry with exponential backoff and
// jitter for fallible operations.
//
// Errors are retryable by default; operations mark terminal errors
// with Permanent so invalid requests are never re-sent. Circuit
// breaker rejections are inherently non-retryable: retrying would just
// hammer the fast-fail path until the recovery timeout anyway.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"chatguard/internal/resilience/circuitbreaker"
)

// Config holds the configuration for retry logic.
type Config struct {
	// MaxRetries is the number of additional attempts after the first
	// failure.
	MaxRetries int

	// BaseDelay is the delay before the first retry; each subsequent
	// retry doubles it.
	BaseDelay time.Duration

	// MaxDelay caps the delay between attempts, jitter included.
	MaxDelay time.Duration
}

// DefaultConfig returns a default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

// AIConfig returns retry configuration for AI inference calls.
// Conservative: every retried call costs tokens.
func AIConfig() Config {
	return Config{
		MaxRetries: 2,
		BaseDelay:  1 * time.Second,
		MaxDelay:   8 * time.Second,
	}
}

// DatabaseConfig returns retry configuration for database operations.
// Fast retries for transient connection errors.
func DatabaseConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   1 * time.Second,
	}
}

// permanentError marks an error as non-retryable.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent wraps err so Do rethrows it immediately instead of
// retrying. Use it for terminal failures such as invalid requests.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsRetryable reports whether Do would retry err.
//
// A deadline exceeded returned by the operation counts as retryable:
// a per-call timeout on a downstream dependency is a transient failure
// like any other. Cancellation of the caller is handled separately by
// Do, which checks its own context between attempts.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	// A rejected call never reached the dependency; let the breaker's
	// recovery timeout do the waiting.
	if errors.Is(err, circuitbreaker.ErrDependencyUnavailable) {
		return false
	}
	return true
}

// Do runs fn, retrying failed attempts with exponential backoff.
//
// The delay before retry n (0-based) is
// min(MaxDelay, BaseDelay * 2^n + jitter) with random jitter of up to
// one second. After MaxRetries additional attempts the last error is
// returned. Backoff sleeps respect ctx cancellation and suspend only
// the calling goroutine.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 0 {
				slog.Info("operation succeeded after retry",
					slog.Int("attempt", attempt+1))
			}
			return nil
		}

		if !IsRetryable(lastErr) {
			slog.Warn("non-retryable error, aborting",
				slog.Int("attempt", attempt+1),
				slog.Any("error", lastErr))
			return lastErr
		}

		// The caller's context decides cancellation, not the shape of
		// the operation's error.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("retry aborted: %w", ctxErr)
		}

		if attempt >= cfg.MaxRetries {
			return fmt.Errorf("retries exhausted after %d attempts: %w", attempt+1, lastErr)
		}

		delay := backoffDelay(cfg, attempt)
		slog.Warn("operation failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", cfg.MaxRetries),
			slog.Duration("delay", delay),
			slog.Any("error", lastErr))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}
	}
}

// backoffDelay computes min(MaxDelay, BaseDelay*2^attempt + jitter)
// with up to one second of jitter.
func backoffDelay(cfg Config, attempt int) time.Duration {
	delay := cfg.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= cfg.MaxDelay {
			delay = cfg.MaxDelay
			break
		}
	}

	// #nosec G404 -- jitter needs no cryptographic randomness.
	delay += time.Duration(rand.Int63n(int64(time.Second)))
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}
