// Package quota tracks per-user daily message and token usage against
// subscription tier limits.
//
// "Today" is computed in a fixed tenant timezone offset (UTC+5:30 for
// the launch tenant), never in server-local time or plain UTC: two
// messages on the same UTC date can land on different tenant days.
// Counters live in the shared store under (user, tenant-day) keys and
// are incremented with the same atomic increment-with-expire primitive
// the rate limiter uses, so concurrent increments never lose updates.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CounterStore is the slice of the shared store the tracker needs.
type CounterStore interface {
	// IncrementByWithTTL atomically adds delta to key, setting the
	// expiry when the increment creates the key.
	IncrementByWithTTL(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// Count returns the counter value for key, 0 when absent.
	Count(ctx context.Context, key string) (int64, error)
}

// Clock abstracts time for testing.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config holds the tracker configuration.
type Config struct {
	// UTCOffsetMinutes is the tenant day-boundary offset from UTC.
	// 330 (UTC+5:30) for the launch tenant.
	UTCOffsetMinutes int

	// Tiers resolves a tier name to its daily message limit.
	Tiers TierLimits

	// WarnThreshold is the usage ratio at which a user counts as
	// approaching their limit. Default 0.8.
	WarnThreshold float64

	// Retention is how long usage counters are kept. Default 90 days.
	// Keys carry this as their TTL; the retention job sweeps stragglers.
	Retention time.Duration

	// Clock defaults to the system clock.
	Clock Clock
}

// Status is the quota standing of one user, recomputed from the stored
// counter on every read so it is always consistent with the latest
// increment.
type Status struct {
	// HasReachedLimit is true when usage >= the daily limit.
	HasReachedLimit bool `json:"hasReachedLimit"`

	// IsApproachingLimit is true when usage >= limit * WarnThreshold
	// (and the limit is not yet reached).
	IsApproachingLimit bool `json:"isApproachingLimit"`

	// Remaining is the number of messages left today. 0 at or past the
	// limit; -1 for unlimited tiers.
	Remaining int64 `json:"remaining"`

	// TodayUsage is the message count for the current tenant day.
	TodayUsage int64 `json:"todayUsage"`

	// DailyLimit is the tier's daily message limit; -1 for unlimited.
	DailyLimit int64 `json:"dailyLimit"`

	// Unlimited is true for tiers with no daily limit.
	Unlimited bool `json:"unlimited"`

	// ResetAt is when the current tenant day rolls over (UTC instant).
	ResetAt time.Time `json:"resetAt"`

	// Message is a human-readable action suggestion, set when the user
	// is approaching or has reached the limit.
	Message string `json:"message,omitempty"`
}

// Tracker tracks daily usage. Safe for concurrent use; all state lives
// in the shared store.
type Tracker struct {
	store         CounterStore
	tiers         TierLimits
	offset        time.Duration
	warnThreshold float64
	retention     time.Duration
	clock         Clock
}

// NewTracker creates a usage tracker, applying defaults for zero
// config values.
func NewTracker(store CounterStore, cfg Config) *Tracker {
	if cfg.Tiers == nil {
		cfg.Tiers = DefaultTierLimits()
	}
	if cfg.WarnThreshold <= 0 || cfg.WarnThreshold > 1 {
		cfg.WarnThreshold = 0.8
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 90 * 24 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}

	return &Tracker{
		store:         store,
		tiers:         cfg.Tiers,
		offset:        time.Duration(cfg.UTCOffsetMinutes) * time.Minute,
		warnThreshold: cfg.WarnThreshold,
		retention:     cfg.Retention,
		clock:         cfg.Clock,
	}
}

// TenantDay returns the tenant calendar day for t, formatted
// YYYY-MM-DD.
func (t *Tracker) TenantDay(at time.Time) string {
	return at.UTC().Add(t.offset).Format("2006-01-02")
}

// ResetAt returns the UTC instant at which the tenant day containing
// at rolls over.
func (t *Tracker) ResetAt(at time.Time) time.Time {
	shifted := at.UTC().Add(t.offset)
	nextMidnight := time.Date(shifted.Year(), shifted.Month(), shifted.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return nextMidnight.Add(-t.offset)
}

// TodayUsage returns the message count for userID on the current
// tenant day.
func (t *Tracker) TodayUsage(ctx context.Context, userID string) (int64, error) {
	count, err := t.store.Count(ctx, messageKey(userID, t.TenantDay(t.clock.Now())))
	if err != nil {
		return 0, fmt.Errorf("read today usage for %s: %w", userID, err)
	}
	return count, nil
}

// TodayTokens returns the token count for userID on the current tenant
// day.
func (t *Tracker) TodayTokens(ctx context.Context, userID string) (int64, error) {
	count, err := t.store.Count(ctx, tokenKey(userID, t.TenantDay(t.clock.Now())))
	if err != nil {
		return 0, fmt.Errorf("read today tokens for %s: %w", userID, err)
	}
	return count, nil
}

// Increment accounts one message and its token cost to userID's
// current tenant day.
//
// It always increments regardless of quota standing: enforcement is a
// caller-side gate, not a hard stop here, so the 21st message of a
// 20-message tier still lands in the counter. Both increments use the
// store's atomic primitive; a store failure is returned (and logged)
// rather than silently dropping the increment.
func (t *Tracker) Increment(ctx context.Context, userID string, tokens int64) error {
	day := t.TenantDay(t.clock.Now())

	if _, err := t.store.IncrementByWithTTL(ctx, messageKey(userID, day), 1, t.retention); err != nil {
		slog.Error("failed to account message usage",
			slog.String("user_id", userID),
			slog.String("day", day),
			slog.Any("error", err))
		return fmt.Errorf("increment usage for %s: %w", userID, err)
	}

	if tokens > 0 {
		if _, err := t.store.IncrementByWithTTL(ctx, tokenKey(userID, day), tokens, t.retention); err != nil {
			slog.Error("failed to account token usage",
				slog.String("user_id", userID),
				slog.String("day", day),
				slog.Any("error", err))
			return fmt.Errorf("increment tokens for %s: %w", userID, err)
		}
	}
	return nil
}

// Status returns userID's quota standing for the current tenant day,
// given their subscription tier.
//
// Unlimited tiers short-circuit: never reached, never approaching,
// no store read. A store failure fails open: the returned status shows
// no limit reached, and the error is reported for logging.
func (t *Tracker) Status(ctx context.Context, userID string, tier Tier) (*Status, error) {
	now := t.clock.Now()
	resetAt := t.ResetAt(now)

	limit := t.tiers.DailyMessageLimit(tier)
	if limit < 0 {
		return &Status{
			Remaining:  -1,
			DailyLimit: -1,
			Unlimited:  true,
			ResetAt:    resetAt,
		}, nil
	}

	usage, err := t.TodayUsage(ctx, userID)
	if err != nil {
		// Fail open: quota enforcement is never the reason a request
		// dies during a store outage.
		return &Status{
			Remaining:  limit,
			DailyLimit: limit,
			ResetAt:    resetAt,
		}, err
	}

	st := &Status{
		TodayUsage: usage,
		DailyLimit: limit,
		ResetAt:    resetAt,
	}
	st.Remaining = limit - usage
	if st.Remaining < 0 {
		st.Remaining = 0
	}

	switch {
	case usage >= limit:
		st.HasReachedLimit = true
		st.Message = "Daily message limit reached. Upgrade your plan to remove limits, or wait for the daily reset."
	case float64(usage) >= float64(limit)*t.warnThreshold:
		st.IsApproachingLimit = true
		st.Message = fmt.Sprintf("Approaching your daily limit: %d of %d messages used.", usage, limit)
	}
	return st, nil
}

func messageKey(userID, day string) string {
	return "usage:msg:" + userID + ":" + day
}

func tokenKey(userID, day string) string {
	return "usage:tok:" + userID + ":" + day
}
