package ratelimit

import (
	"context"
	"log/slog"
	"math"
)

// AdaptiveLimiter layers temporary penalty limits on top of the
// fixed-window limiter.
//
// When an identifier's usage ratio for a scope meets or exceeds the
// suspicion threshold, the limiter records a penalty: a reduced limit
// that overrides the configured one for a fixed duration. The penalty
// takes effect on subsequent calls only; the call that triggered it is
// still judged against the normal limit. This is a lagging control
// loop: it punishes sustained abuse without adding latency or extra
// store round trips to the common case.
type AdaptiveLimiter struct {
	limiter   *FixedWindowLimiter
	penalties PenaltyStore
	config    *Config
	metrics   Metrics
}

// NewAdaptiveLimiter creates an adaptive limiter.
//
// limiter and penalties are required; config defaults to
// DefaultConfig() and metrics to NoOpMetrics.
func NewAdaptiveLimiter(limiter *FixedWindowLimiter, penalties PenaltyStore, config *Config, metrics Metrics) *AdaptiveLimiter {
	if config == nil {
		config = DefaultConfig()
	}
	if metrics == nil {
		metrics = NewNoOpMetrics()
	}
	return &AdaptiveLimiter{
		limiter:   limiter,
		penalties: penalties,
		config:    config,
		metrics:   metrics,
	}
}

// Check runs an adaptive rate limit check for (scope, identifier)
// using the configured per-scope limits.
//
// An active penalty record replaces the configured limit. Otherwise
// the normal limit applies, and crossing the suspicion threshold
// records a penalty for subsequent calls. Store failures while reading
// or writing penalty records are non-fatal: the check degrades to the
// plain fixed-window behavior.
func (a *AdaptiveLimiter) Check(ctx context.Context, scope Scope, identifier string) *Decision {
	sc, ok := a.config.ScopeFor(scope)
	if !ok {
		// Unrecognized scopes are a programming error; be loud but do
		// not block traffic.
		slog.Error("rate limit check for unrecognized scope, allowing",
			slog.String("scope", string(scope)))
		return newFailOpenDecision(string(scope), identifier, 0, a.limiter.clock.Now())
	}

	limit := sc.MaxRequests
	penalized := false

	reduced, active, err := a.penalties.GetPenalty(ctx, penaltyKey(scope, identifier))
	if err != nil {
		slog.Debug("penalty lookup failed, using configured limit",
			slog.String("scope", string(scope)),
			slog.Any("error", err))
	} else if active {
		limit = reduced
		penalized = true
	}

	decision := a.limiter.CheckFailOpen(ctx, scope, identifier, limit, sc.Window)
	decision.Penalized = penalized

	if penalized || decision.FailedOpen {
		return decision
	}

	// Usage ratio after this check. Crossing the threshold penalizes
	// subsequent calls, never this one.
	used := decision.Limit - decision.Remaining
	ratio := float64(used) / float64(decision.Limit)
	if ratio >= a.config.SuspicionThreshold {
		a.recordPenalty(ctx, scope, identifier, sc.MaxRequests)
	}

	return decision
}

// recordPenalty writes a penalty record with the reduced limit.
func (a *AdaptiveLimiter) recordPenalty(ctx context.Context, scope Scope, identifier string, configuredLimit int) {
	reduced := int(math.Floor(float64(configuredLimit) * a.config.PenaltyFactor))
	if reduced < 1 {
		reduced = 1
	}

	err := a.penalties.PutPenalty(ctx, penaltyKey(scope, identifier), reduced, a.config.PenaltyDuration)
	if err != nil {
		slog.Warn("failed to record rate limit penalty",
			slog.String("scope", string(scope)),
			slog.String("identifier", identifier),
			slog.Any("error", err))
		return
	}

	a.metrics.RecordPenalty(string(scope))
	slog.Info("rate limit penalty recorded",
		slog.String("scope", string(scope)),
		slog.String("identifier", identifier),
		slog.Int("reduced_limit", reduced),
		slog.Duration("duration", a.config.PenaltyDuration),
	)
}

// penaltyKey builds the store key for a penalty record.
func penaltyKey(scope Scope, identifier string) string {
	return "penalty:" + string(scope) + ":" + identifier
}
