package ratelimit

import (
	"context"
	"testing"
	"time"
)

func newTestAdaptive(t *testing.T, clock Clock, cfg *Config) (*AdaptiveLimiter, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(clock)
	fixed := NewFixedWindowLimiter(FixedWindowConfig{Store: store, Clock: clock})
	return NewAdaptiveLimiter(fixed, store, cfg, nil), store
}

func TestAdaptiveLimiter_NormalTraffic(t *testing.T) {
	ctx := context.Background()
	clock := NewMockClock(time.Now())
	limiter, _ := newTestAdaptive(t, clock, nil)

	d := limiter.Check(ctx, ScopeChatFree, "user-1")
	if !d.Allowed {
		t.Error("Check() Allowed = false, want true")
	}
	if d.Limit != 10 {
		t.Errorf("Check() Limit = %d, want configured 10", d.Limit)
	}
	if d.Penalized {
		t.Error("Check() Penalized = true, want false")
	}
}

func TestAdaptiveLimiter_PenaltyAppliesToSubsequentCalls(t *testing.T) {
	ctx := context.Background()
	clock := NewMockClock(time.Now())
	limiter, store := newTestAdaptive(t, clock, nil)

	// CHAT_FREE: limit 10, suspicion threshold 0.8. The 8th request
	// reaches the threshold and records a penalty; that request itself
	// is still judged against the full limit.
	var last *Decision
	for i := 0; i < 8; i++ {
		last = limiter.Check(ctx, ScopeChatFree, "user-1")
	}
	if !last.Allowed || last.Penalized {
		t.Errorf("threshold-crossing check = allowed %v penalized %v, want true false",
			last.Allowed, last.Penalized)
	}

	reduced, active, err := store.GetPenalty(ctx, "penalty:CHAT_FREE:user-1")
	if err != nil || !active {
		t.Fatalf("GetPenalty() = active %v, err %v, want true, nil", active, err)
	}
	if reduced != 5 {
		t.Errorf("penalty reduced limit = %d, want floor(10*0.5)=5", reduced)
	}

	// The next call runs under the reduced limit. 8 requests already
	// counted in the window, so against limit 5 it is denied.
	d := limiter.Check(ctx, ScopeChatFree, "user-1")
	if !d.Penalized {
		t.Error("Check() after penalty Penalized = false, want true")
	}
	if d.Limit != 5 {
		t.Errorf("Check() after penalty Limit = %d, want 5", d.Limit)
	}
	if d.Allowed {
		t.Error("Check() after penalty Allowed = true, want false")
	}
}

func TestAdaptiveLimiter_PenaltyExpires(t *testing.T) {
	ctx := context.Background()
	clock := NewMockClock(time.Now())
	limiter, _ := newTestAdaptive(t, clock, nil)

	for i := 0; i < 8; i++ {
		limiter.Check(ctx, ScopeChatFree, "user-1")
	}

	// Past both the penalty duration and the window
	clock.Advance(6 * time.Minute)

	d := limiter.Check(ctx, ScopeChatFree, "user-1")
	if d.Penalized {
		t.Error("Check() after penalty expiry Penalized = true, want false")
	}
	if d.Limit != 10 {
		t.Errorf("Check() after penalty expiry Limit = %d, want 10", d.Limit)
	}
}

func TestAdaptiveLimiter_ReducedLimitNeverZero(t *testing.T) {
	ctx := context.Background()
	clock := NewMockClock(time.Now())
	cfg := DefaultConfig()
	cfg.Scopes[ScopePayment] = ScopeConfig{Window: time.Minute, MaxRequests: 1}
	limiter, store := newTestAdaptive(t, clock, cfg)

	// One request hits 100% usage of the 1-request limit.
	limiter.Check(ctx, ScopePayment, "user-1")

	reduced, active, err := store.GetPenalty(ctx, "penalty:PAYMENT:user-1")
	if err != nil || !active {
		t.Fatalf("GetPenalty() = active %v, err %v, want true, nil", active, err)
	}
	if reduced != 1 {
		t.Errorf("reduced limit = %d, want clamped to 1", reduced)
	}
}

func TestAdaptiveLimiter_NoPenaltyBelowThreshold(t *testing.T) {
	ctx := context.Background()
	clock := NewMockClock(time.Now())
	limiter, store := newTestAdaptive(t, clock, nil)

	for i := 0; i < 7; i++ {
		limiter.Check(ctx, ScopeChatFree, "user-1")
	}

	_, active, _ := store.GetPenalty(ctx, "penalty:CHAT_FREE:user-1")
	if active {
		t.Error("penalty recorded below the suspicion threshold")
	}
}

func TestAdaptiveLimiter_UnrecognizedScopeAllows(t *testing.T) {
	ctx := context.Background()
	clock := NewMockClock(time.Now())
	limiter, _ := newTestAdaptive(t, clock, nil)

	d := limiter.Check(ctx, Scope("NOPE"), "user-1")
	if !d.Allowed {
		t.Error("Check() for unrecognized scope must not block traffic")
	}
}

func TestAdaptiveLimiter_FailOpenSkipsPenaltyBookkeeping(t *testing.T) {
	ctx := context.Background()
	clock := NewMockClock(time.Now())
	store := NewMemoryStore(clock)
	fixed := NewFixedWindowLimiter(FixedWindowConfig{Store: failingStore{}, Clock: clock})
	limiter := NewAdaptiveLimiter(fixed, store, nil, nil)

	d := limiter.Check(ctx, ScopeChatFree, "user-1")
	if !d.Allowed || !d.FailedOpen {
		t.Errorf("Check() = allowed %v failedOpen %v, want true true", d.Allowed, d.FailedOpen)
	}

	_, active, _ := store.GetPenalty(ctx, "penalty:CHAT_FREE:user-1")
	if active {
		t.Error("fail-open decisions must not record penalties")
	}
}
