// Package middleware provides the HTTP protection layer that wraps
// application handlers with rate limiting and daily quota checks.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"chatguard/internal/handler/http/respond"
	"chatguard/internal/quota"
	"chatguard/pkg/ratelimit"
)

// KeyFunc extracts the identifier a request is limited by.
type KeyFunc func(r *http.Request) string

// TierFunc resolves the caller's subscription tier.
type TierFunc func(r *http.Request) quota.Tier

// ScopeFunc picks the rate limit scope for a request.
type ScopeFunc func(r *http.Request, tier quota.Tier) ratelimit.Scope

// DefaultKeyFunc prefers the authenticated user ID and falls back to the
// client IP so unauthenticated endpoints are still limited per caller.
func DefaultKeyFunc(r *http.Request) string {
	if userID := r.Header.Get("X-User-ID"); userID != "" {
		return userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// HeaderTierFunc reads the tier resolved by the auth layer from the
// X-Tier header. Missing or unknown values map to the free tier.
func HeaderTierFunc(r *http.Request) quota.Tier {
	switch quota.Tier(r.Header.Get("X-Tier")) {
	case quota.TierPro:
		return quota.TierPro
	case quota.TierPremium:
		return quota.TierPremium
	default:
		return quota.TierFree
	}
}

// StaticScope returns a ScopeFunc that always yields the given scope.
func StaticScope(scope ratelimit.Scope) ScopeFunc {
	return func(*http.Request, quota.Tier) ratelimit.Scope {
		return scope
	}
}

// ChatScope maps free-tier callers to the CHAT_FREE scope and paid
// tiers to CHAT_PRO, so paying users get the higher per-minute limit.
func ChatScope(_ *http.Request, tier quota.Tier) ratelimit.Scope {
	if tier == quota.TierFree {
		return ratelimit.ScopeChatFree
	}
	return ratelimit.ScopeChatPro
}

// DecoratorConfig configures a Decorator.
type DecoratorConfig struct {
	// Limiter performs the per-scope rate limit check. Required.
	Limiter *ratelimit.AdaptiveLimiter

	// Tracker enforces daily message quotas. Nil disables the quota gate.
	Tracker *quota.Tracker

	// Scope picks the limiter scope per request. Required.
	Scope ScopeFunc

	// Key extracts the limited identifier. Defaults to DefaultKeyFunc.
	Key KeyFunc

	// Tier resolves the subscription tier. Defaults to HeaderTierFunc.
	Tier TierFunc
}

// Decorator wraps HTTP handlers with the request protection pipeline:
// adaptive rate limiting first, then the daily quota gate, then the
// wrapped handler. Every response carries X-RateLimit-* headers.
type Decorator struct {
	limiter *ratelimit.AdaptiveLimiter
	tracker *quota.Tracker
	scope   ScopeFunc
	key     KeyFunc
	tier    TierFunc
}

// NewDecorator creates a Decorator from cfg, applying defaults for the
// optional extraction funcs.
func NewDecorator(cfg DecoratorConfig) *Decorator {
	if cfg.Key == nil {
		cfg.Key = DefaultKeyFunc
	}
	if cfg.Tier == nil {
		cfg.Tier = HeaderTierFunc
	}
	return &Decorator{
		limiter: cfg.Limiter,
		tracker: cfg.Tracker,
		scope:   cfg.Scope,
		key:     cfg.Key,
		tier:    cfg.Tier,
	}
}

// Wrap returns a handler that runs the protection pipeline before next.
//
// Order matters: the rate limit check runs first because it is the
// cheaper counter, and a denied request must not consume quota reads.
// Store outages fail open in both layers, so an unreachable shared
// store degrades to unprotected service rather than an outage.
func (d *Decorator) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tier := d.tier(r)
		identifier := d.key(r)
		scope := d.scope(r, tier)

		decision := d.limiter.Check(ctx, scope, identifier)
		setRateLimitHeaders(w, decision)

		if !decision.Allowed {
			slog.Warn("request rate limited",
				slog.String("scope", decision.Scope),
				slog.String("identifier", identifier),
				slog.String("path", r.URL.Path),
				slog.Int("limit", decision.Limit),
				slog.Bool("penalized", decision.Penalized),
			)
			respond.RateLimited(w, decision)
			return
		}

		if d.tracker != nil {
			status, err := d.tracker.Status(ctx, identifier, tier)
			if err != nil {
				// Status already degraded to a permissive answer; note it
				// and keep serving.
				slog.Warn("quota status unavailable, failing open",
					slog.String("identifier", identifier),
					slog.String("error", err.Error()),
				)
			}
			if status.HasReachedLimit {
				slog.Info("daily quota reached",
					slog.String("identifier", identifier),
					slog.String("tier", string(tier)),
					slog.Int64("usage", status.TodayUsage),
					slog.Int64("limit", status.DailyLimit),
				)
				respond.QuotaReached(w, status)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// setRateLimitHeaders exposes the decision on the standard headers.
// Headers are written on allowed and denied responses alike.
func setRateLimitHeaders(w http.ResponseWriter, d *ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAtUnix(), 10))
}
