package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// MockClock implements Clock interface for testing
type MockClock struct {
	mu  sync.RWMutex
	now time.Time
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

func TestMemoryStore_IncrementWithTTL(t *testing.T) {
	ctx := context.Background()
	clock := NewMockClock(time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC))
	store := NewMemoryStore(clock)

	// Sequential increments accumulate within the window
	for want := int64(1); want <= 3; want++ {
		got, err := store.IncrementWithTTL(ctx, "ratelimit:API:user-1", time.Minute)
		if err != nil {
			t.Fatalf("IncrementWithTTL() error = %v", err)
		}
		if got != want {
			t.Errorf("IncrementWithTTL() = %d, want %d", got, want)
		}
	}

	// Advancing past the TTL starts a fresh window
	clock.Advance(61 * time.Second)
	got, err := store.IncrementWithTTL(ctx, "ratelimit:API:user-1", time.Minute)
	if err != nil {
		t.Fatalf("IncrementWithTTL() after expiry error = %v", err)
	}
	if got != 1 {
		t.Errorf("IncrementWithTTL() after expiry = %d, want 1", got)
	}
}

func TestMemoryStore_IncrementWithTTL_IndependentKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(NewMockClock(time.Now()))

	if _, err := store.IncrementWithTTL(ctx, "a", time.Minute); err != nil {
		t.Fatalf("IncrementWithTTL(a) error = %v", err)
	}
	got, err := store.IncrementWithTTL(ctx, "b", time.Minute)
	if err != nil {
		t.Fatalf("IncrementWithTTL(b) error = %v", err)
	}
	if got != 1 {
		t.Errorf("IncrementWithTTL(b) = %d, want 1 (keys must be independent)", got)
	}
}

func TestMemoryStore_Count(t *testing.T) {
	ctx := context.Background()
	clock := NewMockClock(time.Now())
	store := NewMemoryStore(clock)

	got, err := store.Count(ctx, "missing")
	if err != nil || got != 0 {
		t.Errorf("Count(missing) = %d, %v, want 0, nil", got, err)
	}

	_, _ = store.IncrementByWithTTL(ctx, "k", 5, time.Minute)
	got, err = store.Count(ctx, "k")
	if err != nil || got != 5 {
		t.Errorf("Count(k) = %d, %v, want 5, nil", got, err)
	}

	clock.Advance(2 * time.Minute)
	got, err = store.Count(ctx, "k")
	if err != nil || got != 0 {
		t.Errorf("Count(k) after expiry = %d, %v, want 0, nil", got, err)
	}
}

func TestMemoryStore_Reset(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(NewMockClock(time.Now()))

	_, _ = store.IncrementWithTTL(ctx, "k", time.Minute)
	if err := store.Reset(ctx, "k"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if got, _ := store.Count(ctx, "k"); got != 0 {
		t.Errorf("Count() after Reset = %d, want 0", got)
	}
}

func TestMemoryStore_Penalty(t *testing.T) {
	ctx := context.Background()
	clock := NewMockClock(time.Now())
	store := NewMemoryStore(clock)

	_, active, err := store.GetPenalty(ctx, "penalty:API:u1")
	if err != nil || active {
		t.Errorf("GetPenalty(missing) = active %v, err %v, want false, nil", active, err)
	}

	if err := store.PutPenalty(ctx, "penalty:API:u1", 50, 5*time.Minute); err != nil {
		t.Fatalf("PutPenalty() error = %v", err)
	}

	reduced, active, err := store.GetPenalty(ctx, "penalty:API:u1")
	if err != nil {
		t.Fatalf("GetPenalty() error = %v", err)
	}
	if !active || reduced != 50 {
		t.Errorf("GetPenalty() = %d, %v, want 50, true", reduced, active)
	}

	clock.Advance(6 * time.Minute)
	_, active, _ = store.GetPenalty(ctx, "penalty:API:u1")
	if active {
		t.Error("GetPenalty() after expiry should be inactive")
	}
}

func TestMemoryStore_KV(t *testing.T) {
	ctx := context.Background()
	clock := NewMockClock(time.Now())
	store := NewMemoryStore(clock)

	_, ok, err := store.Get(ctx, "missing")
	if err != nil || ok {
		t.Errorf("Get(missing) = ok %v, err %v, want false, nil", ok, err)
	}

	if err := store.Set(ctx, "k1", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	data, ok, err := store.Get(ctx, "k1")
	if err != nil || !ok || string(data) != "v1" {
		t.Errorf("Get(k1) = %q, %v, %v, want \"v1\", true, nil", data, ok, err)
	}

	// Stored values are copies, not aliases
	src := []byte("mutable")
	_ = store.Set(ctx, "k2", src, 0)
	src[0] = 'X'
	data, _, _ = store.Get(ctx, "k2")
	if string(data) != "mutable" {
		t.Errorf("Get(k2) = %q, want stored copy unaffected by caller mutation", data)
	}

	// Zero TTL means no expiry
	clock.Advance(time.Hour)
	if _, ok, _ := store.Get(ctx, "k2"); !ok {
		t.Error("Get(k2) with zero TTL should not expire")
	}
	if _, ok, _ := store.Get(ctx, "k1"); ok {
		t.Error("Get(k1) should have expired")
	}

	if err := store.Delete(ctx, "k2"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if ok, _ := store.Exists(ctx, "k2"); ok {
		t.Error("Exists(k2) after Delete should be false")
	}
}

func TestMemoryStore_MGetMSet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(NewMockClock(time.Now()))

	pairs := map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
	}
	if err := store.MSet(ctx, pairs, time.Minute); err != nil {
		t.Fatalf("MSet() error = %v", err)
	}

	values, err := store.MGet(ctx, "a", "missing", "b")
	if err != nil {
		t.Fatalf("MGet() error = %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("MGet() returned %d values, want 3", len(values))
	}
	if string(values[0]) != "1" || values[1] != nil || string(values[2]) != "2" {
		t.Errorf("MGet() = %q, %q, %q, want \"1\", nil, \"2\"", values[0], values[1], values[2])
	}
}

func TestMemoryStore_ScanKeys(t *testing.T) {
	ctx := context.Background()
	clock := NewMockClock(time.Now())
	store := NewMemoryStore(clock)

	_ = store.Set(ctx, "usage:msg:u1:2026-01-15", []byte("3"), time.Hour)
	_, _ = store.IncrementWithTTL(ctx, "usage:msg:u2:2026-01-15", time.Hour)
	_ = store.Set(ctx, "transcript:c1", []byte("[]"), time.Hour)

	keys, err := store.ScanKeys(ctx, "usage:msg:*")
	if err != nil {
		t.Fatalf("ScanKeys() error = %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("ScanKeys(usage:msg:*) returned %d keys, want 2: %v", len(keys), keys)
	}
}

func TestMemoryStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	clock := NewMockClock(time.Now())
	store := NewMemoryStore(clock)

	_, _ = store.IncrementWithTTL(ctx, "short", time.Minute)
	_ = store.Set(ctx, "long", []byte("v"), time.Hour)
	_ = store.Set(ctx, "forever", []byte("v"), 0)

	clock.Advance(2 * time.Minute)
	if removed := store.Cleanup(); removed != 1 {
		t.Errorf("Cleanup() = %d, want 1", removed)
	}
	if got := store.Len(); got != 2 {
		t.Errorf("Len() after cleanup = %d, want 2", got)
	}
}

func TestMemoryStore_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(NewMockClock(time.Now()))

	const goroutines = 50
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_, _ = store.IncrementWithTTL(ctx, "shared", time.Minute)
		}()
	}
	wg.Wait()

	got, err := store.Count(ctx, "shared")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if got != goroutines {
		t.Errorf("Count() = %d, want %d (no lost increments)", got, goroutines)
	}
}
