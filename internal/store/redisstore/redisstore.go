// Package redisstore implements the shared store contracts over a
// Redis-compatible server using go-redis.
//
// It backs the rate limiter's counters and penalty records, the usage
// tracker's daily counters, and the cache layer's keyed values. The
// only primitives it relies on are INCR/INCRBY with EXPIRE, GET, SET
// with EX, DEL, EXISTS, MGET and SCAN, so any Redis-compatible store
// satisfies it.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps a go-redis client with the chatguard key conventions.
//
// All methods are safe for concurrent use; the underlying client pools
// connections. Every call runs under the caller's context, which must
// carry a bounded timeout.
type Store struct {
	client *redis.Client
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix namespaces every key with prefix (a trailing colon is
// added). Useful when several environments share one Redis.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix + ":"
		}
	}
}

// New creates a Store on top of client.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping verifies connectivity to the store.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// IncrementWithTTL atomically increments key and sets its expiry when
// the increment created it (post-increment value == 1).
func (s *Store) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return s.IncrementByWithTTL(ctx, key, 1, ttl)
}

// IncrementByWithTTL atomically adds delta to key. The expiry is set
// only when the increment created the key, i.e. when the post-increment
// value equals delta; an existing window or day keeps its original TTL.
func (s *Store) IncrementByWithTTL(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	k := s.prefix + key

	count, err := s.client.IncrBy(ctx, k, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incrby %s: %w", key, err)
	}

	if count == delta && ttl > 0 {
		if err := s.client.Expire(ctx, k, ttl).Err(); err != nil {
			return count, fmt.Errorf("redis expire %s: %w", key, err)
		}
	}
	return count, nil
}

// Count returns the counter value for key, 0 when absent.
func (s *Store) Count(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis counter %s holds non-integer %q", key, val)
	}
	return count, nil
}

// Reset deletes the counter for key.
func (s *Store) Reset(ctx context.Context, key string) error {
	return s.Delete(ctx, key)
}

// PutPenalty stores a reduced limit under key with the penalty TTL.
func (s *Store) PutPenalty(ctx context.Context, key string, reducedLimit int, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+key, strconv.Itoa(reducedLimit), ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// GetPenalty returns the active reduced limit for key; ok is false
// when no unexpired penalty exists.
func (s *Store) GetPenalty(ctx context.Context, key string) (int, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	reduced, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("redis penalty %s holds non-integer %q", key, val)
	}
	return reduced, true, nil
}

// Set stores value under key with the given TTL. A non-positive ttl
// stores without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Get returns the value for key; ok is false when the key is absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// Delete removes the given keys.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = s.prefix + key
	}
	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Exists reports whether key exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

// MGet returns the values for keys in order; absent keys yield nil
// entries.
func (s *Store) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = s.prefix + key
	}

	vals, err := s.client.MGet(ctx, prefixed...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	result := make([][]byte, len(keys))
	for i, v := range vals {
		switch tv := v.(type) {
		case string:
			result[i] = []byte(tv)
		case []byte:
			result[i] = tv
		}
	}
	return result, nil
}

// MSet stores every pair with the given TTL. Because MSET cannot carry
// expiries, the pairs are written as pipelined SET ... EX commands.
func (s *Store) MSet(ctx context.Context, pairs map[string][]byte, ttl time.Duration) error {
	if len(pairs) == 0 {
		return nil
	}
	if ttl < 0 {
		ttl = 0
	}

	pipe := s.client.Pipeline()
	for key, value := range pairs {
		pipe.Set(ctx, s.prefix+key, value, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis mset pipeline: %w", err)
	}
	return nil
}

// ScanKeys returns all keys matching the glob pattern, with the store
// prefix stripped. It iterates with SCAN rather than KEYS so large
// keyspaces do not block the server.
func (s *Store) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(s.prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	return keys, nil
}
