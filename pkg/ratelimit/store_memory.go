package ratelimit

import (
	"context"
	"path"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is a thread-safe in-process implementation of the shared
// store primitives: atomic counters with TTL, penalty records, and a
// byte-value KV with per-entry TTL.
//
// It exists for tests and for degraded single-process deployments; in
// production the Redis-backed store provides the same contract across
// processes. Expired entries are dropped lazily on access and eagerly
// by Cleanup.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryEntry
	values   map[string]*memoryValue
	clock    Clock
}

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

type memoryValue struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryStore creates a memory store. A nil clock defaults to
// SystemClock.
func NewMemoryStore(clock Clock) *MemoryStore {
	if clock == nil {
		clock = &SystemClock{}
	}
	return &MemoryStore{
		counters: make(map[string]*memoryEntry),
		values:   make(map[string]*memoryValue),
		clock:    clock,
	}
}

// IncrementWithTTL implements CounterStore.
func (s *MemoryStore) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return s.IncrementByWithTTL(ctx, key, 1, ttl)
}

// IncrementByWithTTL atomically adds delta to the counter for key,
// setting the expiry when the increment creates the key.
func (s *MemoryStore) IncrementByWithTTL(_ context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.counters[key]
	if !ok || !entry.expiresAt.After(now) {
		entry = &memoryEntry{count: 0, expiresAt: now.Add(ttl)}
		s.counters[key] = entry
	}
	entry.count += delta
	return entry.count, nil
}

// Count implements CounterStore.
func (s *MemoryStore) Count(_ context.Context, key string) (int64, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.counters[key]
	if !ok || !entry.expiresAt.After(now) {
		return 0, nil
	}
	return entry.count, nil
}

// Reset implements CounterStore.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
	return nil
}

// PutPenalty implements PenaltyStore.
func (s *MemoryStore) PutPenalty(ctx context.Context, key string, reducedLimit int, ttl time.Duration) error {
	return s.Set(ctx, key, []byte(strconv.Itoa(reducedLimit)), ttl)
}

// GetPenalty implements PenaltyStore.
func (s *MemoryStore) GetPenalty(ctx context.Context, key string) (int, bool, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	reduced, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, false, nil
	}
	return reduced, true, nil
}

// Set stores value under key with the given TTL. A non-positive ttl
// means no expiry.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.clock.Now()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	buf := make([]byte, len(value))
	copy(buf, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = &memoryValue{data: buf, expiresAt: expiresAt}
	return nil
}

// Get returns the value for key. ok is false for missing or expired keys.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	if !ok || (!v.expiresAt.IsZero() && !v.expiresAt.After(now)) {
		return nil, false, nil
	}
	return v.data, true, nil
}

// Delete removes the given keys from both the value and counter spaces.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.values, key)
		delete(s.counters, key)
	}
	return nil
}

// Exists reports whether key holds an unexpired value.
func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// MGet returns the values for keys in order; missing or expired keys
// yield nil entries.
func (s *MemoryStore) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	result := make([][]byte, len(keys))
	for i, key := range keys {
		data, ok, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			result[i] = data
		}
	}
	return result, nil
}

// MSet stores every pair with the given TTL.
func (s *MemoryStore) MSet(ctx context.Context, pairs map[string][]byte, ttl time.Duration) error {
	for key, value := range pairs {
		if err := s.Set(ctx, key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

// ScanKeys returns all live keys (values and counters) matching the
// glob pattern, in no particular order.
func (s *MemoryStore) ScanKeys(_ context.Context, pattern string) ([]string, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for key, v := range s.values {
		if !v.expiresAt.IsZero() && !v.expiresAt.After(now) {
			continue
		}
		if matched, _ := path.Match(pattern, key); matched {
			keys = append(keys, key)
		}
	}
	for key, entry := range s.counters {
		if !entry.expiresAt.After(now) {
			continue
		}
		if matched, _ := path.Match(pattern, key); matched {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Cleanup removes expired entries. Call periodically in long-lived
// processes to bound memory.
func (s *MemoryStore) Cleanup() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.counters {
		if !entry.expiresAt.After(now) {
			delete(s.counters, key)
			removed++
		}
	}
	for key, v := range s.values {
		if !v.expiresAt.IsZero() && !v.expiresAt.After(now) {
			delete(s.values, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries, for monitoring in tests.
func (s *MemoryStore) Len() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, entry := range s.counters {
		if entry.expiresAt.After(now) {
			n++
		}
	}
	for _, v := range s.values {
		if v.expiresAt.IsZero() || v.expiresAt.After(now) {
			n++
		}
	}
	return n
}
