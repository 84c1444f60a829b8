package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in the store.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored entry is corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// revalidationWindow is how long an entry survives past its expiry. Expired
// entries are returned to the cache so their ETag can drive a conditional
// fetch; only entries stale beyond the window are dropped.
const revalidationWindow = 24 * time.Hour

// Store is the backing key-value store shared by all concurrent callers.
// Implementations must make Set atomic per key.
type Store interface {
	// Get retrieves an entry. Expired entries are still returned while
	// inside the revalidation window; ErrCacheMiss means absent or stale
	// beyond it.
	Get(ctx context.Context, key Key) (*Entry, error)

	// Set stores an entry until its Expires time plus the revalidation
	// window.
	Set(ctx context.Context, key Key, entry *Entry) error

	// Delete removes an entry.
	Delete(ctx context.Context, key Key) error

	// UpdateExpiry extends the expiry of an existing entry in place,
	// keeping its body. Used after a not-modified revalidation.
	UpdateExpiry(ctx context.Context, key Key, newExpires time.Time) error
}

// RedisStore is the Redis-backed store. Redis serializes writes per key, which
// gives the atomic-per-key guarantee without file locks.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient}
}

// Get retrieves an entry by key.
func (s *RedisStore) Get(ctx context.Context, key Key) (*Entry, error) {
	data, err := s.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.WithLabelValues("redis").Inc()
	return &entry, nil
}

// Set stores an entry with a Redis TTL derived from the entry expiry plus
// the revalidation window, so expired entries stay available for conditional
// fetches.
func (s *RedisStore) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := time.Until(entry.Expires) + revalidationWindow
	if ttl <= 0 {
		// Stale beyond the revalidation window, don't store.
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes an entry.
func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := s.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// UpdateExpiry re-saves the entry with a new expiry, keeping its body.
func (s *RedisStore) UpdateExpiry(ctx context.Context, key Key, newExpires time.Time) error {
	entry, err := s.Get(ctx, key)
	if err != nil {
		CacheErrors.WithLabelValues("expiry").Inc()
		return err
	}

	entry.Expires = newExpires
	return s.Set(ctx, key, entry)
}
