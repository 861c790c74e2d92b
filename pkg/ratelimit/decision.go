package ratelimit

import (
	"fmt"
	"time"
)

// Decision represents the result of a rate limit check.
//
// It carries everything a caller needs to act on the verdict and to
// populate response metadata (X-RateLimit-* headers, Retry-After).
type Decision struct {
	// Scope is the rate limit scope the check ran under (e.g. "CHAT_FREE").
	Scope string

	// Identifier is the subject of the check (user ID, IP address).
	Identifier string

	// Allowed indicates whether the request should be permitted.
	Allowed bool

	// Limit is the limit that was applied. When a penalty is active
	// this is the reduced limit, not the configured one.
	Limit int

	// Remaining is the number of requests left in the current window.
	// Never negative.
	Remaining int

	// ResetAt is the approximate time the current window expires.
	ResetAt time.Time

	// RetryAfter is how long the client should wait before retrying.
	// Zero for allowed decisions.
	RetryAfter time.Duration

	// Penalized is true when a penalty record overrode the configured limit.
	Penalized bool

	// FailedOpen is true when the decision was forced to "allowed"
	// because the shared store was unreachable.
	FailedOpen bool
}

// String returns a human-readable representation of the decision.
func (d *Decision) String() string {
	if d.Allowed {
		return fmt.Sprintf("Decision{Allowed: true, Scope: %s, Id: %s, Remaining: %d/%d, FailedOpen: %t}",
			d.Scope, d.Identifier, d.Remaining, d.Limit, d.FailedOpen)
	}
	return fmt.Sprintf("Decision{Allowed: false, Scope: %s, Id: %s, Limit: %d, RetryAfter: %s}",
		d.Scope, d.Identifier, d.Limit, d.RetryAfter)
}

// ResetAtUnix returns the reset time as a Unix timestamp, for the
// X-RateLimit-Reset header.
func (d *Decision) ResetAtUnix() int64 {
	return d.ResetAt.Unix()
}

// RetryAfterSeconds returns the retry delay in whole seconds, rounded
// up so clients never retry early. Useful for the Retry-After header.
func (d *Decision) RetryAfterSeconds() int64 {
	if d.RetryAfter <= 0 {
		return 0
	}
	secs := int64((d.RetryAfter + time.Second - 1) / time.Second)
	return secs
}

// newAllowedDecision creates a Decision for an allowed request.
func newAllowedDecision(scope, identifier string, limit, remaining int, resetAt time.Time) *Decision {
	return &Decision{
		Scope:      scope,
		Identifier: identifier,
		Allowed:    true,
		Limit:      limit,
		Remaining:  remaining,
		ResetAt:    resetAt,
	}
}

// newDeniedDecision creates a Decision for a denied request.
func newDeniedDecision(scope, identifier string, limit int, resetAt time.Time, now time.Time) *Decision {
	retryAfter := resetAt.Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return &Decision{
		Scope:      scope,
		Identifier: identifier,
		Allowed:    false,
		Limit:      limit,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
	}
}

// newFailOpenDecision creates the Decision used when the shared store
// is unavailable: the request is allowed and the condition is flagged
// so callers can audit the fail-open path.
func newFailOpenDecision(scope, identifier string, limit int, resetAt time.Time) *Decision {
	return &Decision{
		Scope:      scope,
		Identifier: identifier,
		Allowed:    true,
		Limit:      limit,
		Remaining:  limit,
		ResetAt:    resetAt,
		FailedOpen: true,
	}
}
