package respond

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatguard/internal/quota"
	"chatguard/internal/resilience/circuitbreaker"
	"chatguard/pkg/ratelimit"
)

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, 201, map[string]string{"id": "c-1"})

	assert.Equal(t, 201, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":"c-1"}`, rec.Body.String())
}

func TestJSON_NilBody(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, 204, nil)

	assert.Equal(t, 204, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRateLimited(t *testing.T) {
	rec := httptest.NewRecorder()
	RateLimited(rec, &ratelimit.Decision{
		Scope:      "CHAT_FREE",
		Allowed:    false,
		Limit:      10,
		RetryAfter: 42 * time.Second,
	})

	assert.Equal(t, 429, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))

	body := decodeErrorBody(t, rec)
	assert.Equal(t, CodeRateLimitExceeded, body.Code)
	assert.True(t, body.Retryable)
	assert.Equal(t, 42, body.RetryAfter)
	assert.NotEmpty(t, body.Timestamp)

	ts, err := time.Parse(time.RFC3339, body.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), ts, time.Minute)
}

func TestQuotaReached(t *testing.T) {
	rec := httptest.NewRecorder()
	QuotaReached(rec, &quota.Status{
		HasReachedLimit: true,
		DailyLimit:      20,
		TodayUsage:      20,
		ResetAt:         time.Now().Add(2 * time.Hour),
		Message:         "Daily message limit reached. Upgrade your plan to remove limits, or wait for the daily reset.",
	})

	assert.Equal(t, 429, rec.Code)

	body := decodeErrorBody(t, rec)
	assert.Equal(t, CodeDailyLimitReached, body.Code)
	assert.False(t, body.Retryable, "waiting out a daily quota is not a retry")
	assert.Contains(t, body.Error, "Upgrade your plan")
	assert.Greater(t, body.RetryAfter, 0)
	assert.LessOrEqual(t, body.RetryAfter, 2*60*60)
}

func TestQuotaReached_PastResetClampsToZero(t *testing.T) {
	rec := httptest.NewRecorder()
	QuotaReached(rec, &quota.Status{
		HasReachedLimit: true,
		ResetAt:         time.Now().Add(-time.Minute),
	})

	body := decodeErrorBody(t, rec)
	assert.Equal(t, 0, body.RetryAfter)
}

func TestDependencyUnavailable(t *testing.T) {
	rec := httptest.NewRecorder()
	DependencyUnavailable(rec, &circuitbreaker.UnavailableError{
		Dependency: "AI",
		RetryAfter: 30 * time.Second,
	})

	assert.Equal(t, 503, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	body := decodeErrorBody(t, rec)
	assert.Equal(t, CodeServiceUnavailable, body.Code)
	assert.True(t, body.Retryable)
	// Never leak which dependency failed to clients.
	assert.NotContains(t, body.Error, "AI")
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "wrapped unavailable error",
			err:        errors.Join(errors.New("send message"), &circuitbreaker.UnavailableError{Dependency: "AI", RetryAfter: 30 * time.Second}),
			wantStatus: 503,
			wantCode:   CodeServiceUnavailable,
		},
		{
			name:       "bare sentinel",
			err:        circuitbreaker.ErrDependencyUnavailable,
			wantStatus: 503,
			wantCode:   CodeServiceUnavailable,
		},
		{
			name:       "unrecognized error",
			err:        errors.New("pq: relation messages does not exist"),
			wantStatus: 500,
			wantCode:   CodeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			FromError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeErrorBody(t, rec)
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}

func TestFromError_NeverLeaksInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	FromError(rec, errors.New("anthropic: sk-ant-abc123 rejected"))

	body := decodeErrorBody(t, rec)
	assert.Equal(t, "internal server error", body.Error)
	assert.NotContains(t, rec.Body.String(), "sk-ant")
}
