package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// FixedWindowLimiter implements fixed-window rate limiting over a
// shared atomic counter store.
//
// Algorithm:
//  1. Atomically increment the counter for scope:identifier; the store
//     sets the window TTL when the increment creates the key.
//  2. allowed = count <= limit.
//  3. remaining = max(0, limit - count).
//  4. resetAt = now + window. The exact window start is not tracked
//     independently, so resetAt is an upper bound; the store's TTL is
//     authoritative.
//
// The fixed window accepts the known boundary burst (up to 2x the
// limit across a window edge) in exchange for a single store round
// trip per check. The counter is incremented even for denied requests,
// so callers must not re-check as a form of retry.
//
// Store failures never deny a request: Check reports them as a
// StoreError and CheckFailOpen converts them to allowed decisions.
type FixedWindowLimiter struct {
	store   CounterStore
	guard   *StoreGuard
	clock   Clock
	metrics Metrics

	// failOpenLog throttles fail-open warnings so a store outage does
	// not flood the log at request rate.
	failOpenLog *rate.Limiter
}

// FixedWindowConfig holds construction parameters for FixedWindowLimiter.
type FixedWindowConfig struct {
	// Store is the shared counter store. Required.
	Store CounterStore

	// Guard short-circuits store calls during an outage.
	// Default: a guard with default thresholds.
	Guard *StoreGuard

	// Clock provides time operations for testing. Default: SystemClock.
	Clock Clock

	// Metrics records check outcomes. Default: NoOpMetrics.
	Metrics Metrics
}

// NewFixedWindowLimiter creates a fixed-window limiter.
func NewFixedWindowLimiter(config FixedWindowConfig) *FixedWindowLimiter {
	if config.Clock == nil {
		config.Clock = &SystemClock{}
	}
	if config.Metrics == nil {
		config.Metrics = NewNoOpMetrics()
	}
	if config.Guard == nil {
		config.Guard = NewStoreGuard(StoreGuardConfig{
			Clock:   config.Clock,
			Metrics: config.Metrics,
		})
	}

	return &FixedWindowLimiter{
		store:       config.Store,
		guard:       config.Guard,
		clock:       config.Clock,
		metrics:     config.Metrics,
		failOpenLog: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// Check runs one fixed-window check for (scope, identifier).
//
// It returns either a Decision or a StoreError, never both. The error
// branch means the shared store could not be consulted; the caller's
// policy for that case (fail open) is applied explicitly by
// CheckFailOpen rather than hidden here, so the "never fail closed on
// an infra outage" guarantee stays auditable.
func (l *FixedWindowLimiter) Check(ctx context.Context, scope Scope, identifier string, limit int, window time.Duration) (*Decision, error) {
	start := l.clock.Now()
	defer func() {
		l.metrics.RecordCheckDuration(string(scope), l.clock.Now().Sub(start))
	}()

	key := windowKey(scope, identifier)

	if !l.guard.Allow() {
		return nil, newStoreError("guard", ErrStoreUnavailable)
	}

	count, err := l.store.IncrementWithTTL(ctx, key, window)
	if err != nil {
		l.guard.RecordFailure()
		return nil, newStoreError("increment", err)
	}
	l.guard.RecordSuccess()

	now := l.clock.Now()
	resetAt := now.Add(window)

	if count > int64(limit) {
		l.metrics.RecordDenied(string(scope))
		return newDeniedDecision(string(scope), identifier, limit, resetAt, now), nil
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	l.metrics.RecordAllowed(string(scope))
	return newAllowedDecision(string(scope), identifier, limit, remaining, resetAt), nil
}

// CheckFailOpen runs Check and applies the fail-open policy: when the
// store is unreachable the request is allowed, the condition is logged
// (throttled) and counted, and the returned decision carries
// FailedOpen=true. No error escapes to the caller.
func (l *FixedWindowLimiter) CheckFailOpen(ctx context.Context, scope Scope, identifier string, limit int, window time.Duration) *Decision {
	decision, err := l.Check(ctx, scope, identifier, limit, window)
	if err == nil {
		return decision
	}

	l.metrics.RecordFailOpen(string(scope))
	if l.failOpenLog.Allow() {
		slog.Warn("rate limit store unavailable, failing open",
			slog.String("scope", string(scope)),
			slog.Any("error", err),
		)
	}
	return newFailOpenDecision(string(scope), identifier, limit, l.clock.Now().Add(window))
}

// windowKey builds the store key for a window counter.
func windowKey(scope Scope, identifier string) string {
	return "ratelimit:" + string(scope) + ":" + identifier
}
