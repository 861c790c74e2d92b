package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// GuardState represents the current state of the store guard.
type GuardState int

const (
	// GuardClosed indicates the guard is closed and store calls proceed.
	GuardClosed GuardState = iota

	// GuardOpen indicates the store has failed repeatedly. While open,
	// store calls are skipped entirely and checks fail open: the layer
	// never fails closed on an infrastructure outage.
	GuardOpen

	// GuardHalfOpen indicates the guard is probing recovery with a
	// single store call.
	GuardHalfOpen
)

// String returns a string representation of the guard state.
func (s GuardState) String() string {
	switch s {
	case GuardClosed:
		return "closed"
	case GuardOpen:
		return "open"
	case GuardHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// StoreGuardConfig holds configuration for the store guard.
type StoreGuardConfig struct {
	// FailureThreshold is the number of consecutive store failures
	// required to open the guard. Default: 10.
	FailureThreshold int

	// RecoveryTimeout is how long the guard stays open before probing
	// the store again. Default: 30 seconds.
	RecoveryTimeout time.Duration

	// Clock provides time abstraction for testing. Default: SystemClock.
	Clock Clock

	// Metrics records guard state changes. Default: NoOpMetrics.
	Metrics Metrics
}

// StoreGuard protects the request path from a failing shared store.
//
// Unlike a dependency circuit breaker, the guard fails OPEN: when the
// store has failed FailureThreshold times in a row, subsequent rate
// limit checks skip the store entirely and allow the request. This
// deliberately trades strict quota enforcement for availability during
// store outages; the open window also stops every request from paying
// a network timeout against a dead store.
type StoreGuard struct {
	config StoreGuardConfig

	mu                  sync.Mutex
	state               GuardState
	consecutiveFailures int
	lastFailureAt       time.Time
	lastStateChange     time.Time
}

// NewStoreGuard creates a store guard with the given configuration,
// applying defaults for zero values.
func NewStoreGuard(config StoreGuardConfig) *StoreGuard {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 10
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.Clock == nil {
		config.Clock = &SystemClock{}
	}
	if config.Metrics == nil {
		config.Metrics = NewNoOpMetrics()
	}

	g := &StoreGuard{
		config:          config,
		state:           GuardClosed,
		lastStateChange: config.Clock.Now(),
	}
	config.Metrics.RecordStoreGuardState(g.state.String())
	return g
}

// Allow reports whether the next store call should be attempted.
//
// It returns false only while the guard is open and the recovery
// timeout has not yet elapsed. The first call after the timeout moves
// the guard to half-open and returns true, so exactly one probe hits
// the store.
func (g *StoreGuard) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case GuardClosed, GuardHalfOpen:
		return true
	case GuardOpen:
		now := g.config.Clock.Now()
		if now.Sub(g.lastStateChange) >= g.config.RecoveryTimeout {
			g.transition(GuardHalfOpen, now)
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess records a successful store call. A success in any
// state closes the guard and clears the failure count.
func (g *StoreGuard) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.consecutiveFailures = 0
	if g.state != GuardClosed {
		g.transition(GuardClosed, g.config.Clock.Now())
	}
}

// RecordFailure records a failed store call. Reaching the failure
// threshold, or any failure while half-open, opens the guard.
func (g *StoreGuard) RecordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.config.Clock.Now()
	g.consecutiveFailures++
	g.lastFailureAt = now

	switch g.state {
	case GuardHalfOpen:
		g.transition(GuardOpen, now)
	case GuardClosed:
		if g.consecutiveFailures >= g.config.FailureThreshold {
			g.transition(GuardOpen, now)
		}
	}
}

// State returns the current guard state.
func (g *StoreGuard) State() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Reset returns the guard to the closed state. Useful for tests and
// manual intervention.
func (g *StoreGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.consecutiveFailures = 0
	g.lastFailureAt = time.Time{}
	if g.state != GuardClosed {
		g.transition(GuardClosed, g.config.Clock.Now())
	}
}

// GuardStats are point-in-time statistics for monitoring.
type GuardStats struct {
	State               GuardState
	ConsecutiveFailures int
	LastFailureAt       time.Time
	LastStateChange     time.Time
}

// Stats returns current guard statistics.
func (g *StoreGuard) Stats() GuardStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GuardStats{
		State:               g.state,
		ConsecutiveFailures: g.consecutiveFailures,
		LastFailureAt:       g.lastFailureAt,
		LastStateChange:     g.lastStateChange,
	}
}

// transition changes state while holding the mutex.
func (g *StoreGuard) transition(to GuardState, now time.Time) {
	from := g.state
	g.state = to
	g.lastStateChange = now
	g.config.Metrics.RecordStoreGuardState(to.String())

	slog.Warn("rate limit store guard state changed",
		slog.String("previous_state", from.String()),
		slog.String("new_state", to.String()),
		slog.Int("consecutive_failures", g.consecutiveFailures),
		slog.Duration("recovery_timeout", g.config.RecoveryTimeout),
	)
}
