// Package cache provides a typed cache over the shared KV store with
// per-entry TTLs, read-through loading, and dependency-aware
// invalidation.
//
// Store failures never surface to callers as errors on the read path:
// an unreachable store degrades to a cache miss, and writers log and
// move on. The cache is an accelerator, never a source of truth.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// KV is the slice of the shared store the cache needs.
type KV interface {
	// Get returns the value for key; ok is false when absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the given keys.
	Delete(ctx context.Context, keys ...string) error

	// MGet returns values for keys in order; absent keys yield nil.
	MGet(ctx context.Context, keys ...string) ([][]byte, error)

	// MSet stores every pair with the given TTL.
	MSet(ctx context.Context, pairs map[string][]byte, ttl time.Duration) error
}

// Metrics records cache outcomes. Implemented by PrometheusMetrics and
// NoOpMetrics below.
type Metrics interface {
	RecordHit()
	RecordMiss()
	RecordError()
}

// Store is a typed JSON cache over a KV backend.
type Store struct {
	kv         KV
	defaultTTL time.Duration
	metrics    Metrics
	group      singleflight.Group
}

// NewStore creates a cache store. A non-positive defaultTTL defaults
// to five minutes; nil metrics default to no-op.
func NewStore(kv KV, defaultTTL time.Duration, metrics Metrics) *Store {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if metrics == nil {
		metrics = NewNoOpMetrics()
	}
	return &Store{kv: kv, defaultTTL: defaultTTL, metrics: metrics}
}

// Get loads the cached value for key into dest.
//
// The return value reports a hit; misses and store failures both
// return false, with failures logged and counted. dest must be a
// pointer suitable for json.Unmarshal.
func (s *Store) Get(ctx context.Context, key string, dest any) bool {
	data, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.metrics.RecordError()
		slog.Warn("cache read failed, treating as miss",
			slog.String("key", key),
			slog.Any("error", err))
		return false
	}
	if !ok {
		s.metrics.RecordMiss()
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		// A corrupt entry is as good as absent; drop it so the next
		// write repairs it.
		s.metrics.RecordError()
		slog.Warn("cache entry is not valid JSON, dropping",
			slog.String("key", key),
			slog.Any("error", err))
		_ = s.kv.Delete(ctx, key)
		return false
	}
	s.metrics.RecordHit()
	return true
}

// Set caches value under key with ttl (non-positive falls back to the
// default TTL). Store failures are logged, not returned: writers must
// not fail because the cache is down.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		slog.Error("cache value not serializable",
			slog.String("key", key),
			slog.Any("error", err))
		return
	}
	if err := s.kv.Set(ctx, key, data, ttl); err != nil {
		s.metrics.RecordError()
		slog.Warn("cache write failed",
			slog.String("key", key),
			slog.Any("error", err))
	}
}

// Delete removes keys from the cache. Failures are returned so
// invalidation callers can decide to escalate: a stale aggregate is
// worse than a few extra misses.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.kv.Delete(ctx, keys...); err != nil {
		s.metrics.RecordError()
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// MGet loads the raw entries for keys. Missing keys (and a failing
// store) yield nil entries.
func (s *Store) MGet(ctx context.Context, keys ...string) [][]byte {
	values, err := s.kv.MGet(ctx, keys...)
	if err != nil {
		s.metrics.RecordError()
		slog.Warn("cache mget failed, treating all as misses",
			slog.Int("keys", len(keys)),
			slog.Any("error", err))
		return make([][]byte, len(keys))
	}
	for _, v := range values {
		if v == nil {
			s.metrics.RecordMiss()
		} else {
			s.metrics.RecordHit()
		}
	}
	return values
}

// MSet caches every pair with ttl (non-positive falls back to the
// default TTL). Values must be JSON-serializable.
func (s *Store) MSet(ctx context.Context, pairs map[string]any, ttl time.Duration) {
	if len(pairs) == 0 {
		return
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	raw := make(map[string][]byte, len(pairs))
	for key, value := range pairs {
		data, err := json.Marshal(value)
		if err != nil {
			slog.Error("cache value not serializable",
				slog.String("key", key),
				slog.Any("error", err))
			continue
		}
		raw[key] = data
	}
	if err := s.kv.MSet(ctx, raw, ttl); err != nil {
		s.metrics.RecordError()
		slog.Warn("cache mset failed",
			slog.Int("keys", len(raw)),
			slog.Any("error", err))
	}
}

// GetOrLoad returns the cached value for key, loading and caching it
// on a miss.
//
// Concurrent misses for the same key collapse into a single loader
// call via singleflight; the other callers share its result. Loader
// errors propagate to every waiting caller and nothing is cached.
func (s *Store) GetOrLoad(ctx context.Context, key string, ttl time.Duration, dest any, loader func(ctx context.Context) (any, error)) error {
	if s.Get(ctx, key, dest) {
		return nil
	}

	data, err, _ := s.group.Do(key, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal loaded value for %s: %w", key, err)
		}
		if ttl <= 0 {
			ttl = s.defaultTTL
		}
		if err := s.kv.Set(ctx, key, raw, ttl); err != nil {
			s.metrics.RecordError()
			slog.Warn("cache write-through failed",
				slog.String("key", key),
				slog.Any("error", err))
		}
		return raw, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(data.([]byte), dest)
}
