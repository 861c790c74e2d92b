// Package respond provides utilities for sending HTTP responses in JSON format.
// It defines the error envelope used by every protection layer (rate limits,
// daily quotas, circuit breakers) so clients always see one shape.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"chatguard/internal/quota"
	"chatguard/internal/resilience/circuitbreaker"
	"chatguard/pkg/ratelimit"
)

// Machine-readable error codes returned in the error envelope.
const (
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeDailyLimitReached  = "DAILY_LIMIT_REACHED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	Retryable  bool   `json:"retryable"`
	RetryAfter int    `json:"retryAfter,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// newErrorBody fills the envelope's timestamp with the current UTC time.
func newErrorBody(msg, code string, retryable bool, retryAfter int) ErrorBody {
	return ErrorBody{
		Error:      msg,
		Code:       code,
		Retryable:  retryable,
		RetryAfter: retryAfter,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}

// JSON writes a JSON response with the given status code and data.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			// Log the error but cannot send error response as headers already sent
			slog.Default().Error("failed to encode JSON response",
				slog.Int("status_code", code),
				slog.Any("error", err))
		}
	}
}

// RateLimited writes a 429 response for a denied rate limit decision.
// It sets the Retry-After header to the seconds until the window resets.
func RateLimited(w http.ResponseWriter, d *ratelimit.Decision) {
	retryAfter := int(d.RetryAfterSeconds())
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	JSON(w, http.StatusTooManyRequests,
		newErrorBody("Too many requests. Please slow down and try again.",
			CodeRateLimitExceeded, true, retryAfter))
}

// QuotaReached writes a 429 response for an exhausted daily quota.
// The envelope carries the tracker's upgrade message so clients can surface it.
func QuotaReached(w http.ResponseWriter, st *quota.Status) {
	retryAfter := int(time.Until(st.ResetAt).Seconds())
	if retryAfter < 0 {
		retryAfter = 0
	}
	JSON(w, http.StatusTooManyRequests,
		newErrorBody(st.Message, CodeDailyLimitReached, false, retryAfter))
}

// DependencyUnavailable writes a 503 response for an open circuit breaker.
func DependencyUnavailable(w http.ResponseWriter, u *circuitbreaker.UnavailableError) {
	retryAfter := int(u.RetryAfter.Seconds())
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	JSON(w, http.StatusServiceUnavailable,
		newErrorBody("Service temporarily unavailable. Please try again shortly.",
			CodeServiceUnavailable, true, retryAfter))
}

// FromError maps an error from the protection layers to the matching
// envelope. Unrecognized errors become a sanitized 500.
func FromError(w http.ResponseWriter, err error) {
	var unavailable *circuitbreaker.UnavailableError
	if errors.As(err, &unavailable) {
		DependencyUnavailable(w, unavailable)
		return
	}
	if errors.Is(err, circuitbreaker.ErrDependencyUnavailable) {
		DependencyUnavailable(w, &circuitbreaker.UnavailableError{})
		return
	}

	slog.Default().Error("internal server error",
		slog.String("error", SanitizeError(err)))
	JSON(w, http.StatusInternalServerError,
		newErrorBody("internal server error", CodeInternalError, false, 0))
}
