// Package ratelimit provides framework-agnostic distributed rate limiting.
//
// The package implements a fixed-window limiter over a shared atomic
// counter store, an adaptive layer that applies temporary penalty limits
// to identifiers with sustained near-limit usage, and pluggable metrics
// collectors. Multiple stateless processes can share one store; all
// coordination happens through the store's atomic increment-with-expire
// primitive, never through cross-process locks.
package ratelimit

import (
	"context"
	"time"
)

// CounterStore defines the atomic counter operations the limiter needs
// from a shared store.
//
// Implementations can use Redis, an in-memory map, or any backend that
// offers atomic increment with expiry. All methods must be safe for
// concurrent use and may perform network I/O; callers pass a context
// with a bounded timeout.
type CounterStore interface {
	// IncrementWithTTL atomically increments the counter for key and
	// returns the post-increment value. When the increment creates the
	// key (post-increment value == 1), the implementation must set the
	// key to expire after ttl in the same logical step.
	IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Count returns the current counter value for key, or 0 if the key
	// does not exist.
	Count(ctx context.Context, key string) (int64, error)

	// Reset deletes the counter for key.
	Reset(ctx context.Context, key string) error
}

// PenaltyStore persists temporary penalty records for the adaptive
// limiter. A penalty overrides the configured limit for an identifier
// until it expires; expiry is handled by the store's TTL, never by an
// explicit delete.
type PenaltyStore interface {
	// PutPenalty records a reduced limit for key, expiring after ttl.
	PutPenalty(ctx context.Context, key string, reducedLimit int, ttl time.Duration) error

	// GetPenalty returns the active reduced limit for key.
	// ok is false when no unexpired penalty exists.
	GetPenalty(ctx context.Context, key string) (reducedLimit int, ok bool, err error)
}

// Metrics defines the interface for recording rate limiting metrics.
//
// Implementations can use Prometheus or custom metrics systems; a
// no-op implementation is provided for tests.
type Metrics interface {
	// RecordAllowed records a check that allowed the request.
	RecordAllowed(scope string)

	// RecordDenied records a check that denied the request.
	RecordDenied(scope string)

	// RecordFailOpen records a check that was allowed because the
	// shared store was unavailable.
	RecordFailOpen(scope string)

	// RecordPenalty records the creation of a penalty record.
	RecordPenalty(scope string)

	// RecordCheckDuration records how long a rate limit check took.
	RecordCheckDuration(scope string, duration time.Duration)

	// RecordStoreGuardState records the state of the store guard
	// ("closed", "open", "half-open").
	RecordStoreGuardState(state string)
}

// Clock provides an abstraction for time operations to enable testing.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// SystemClock is a Clock implementation that uses the system time.
type SystemClock struct{}

// Now returns the current system time.
func (c *SystemClock) Now() time.Time {
	return time.Now()
}
