package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	// storeRetryAttempts bounds retries of a contended store operation.
	storeRetryAttempts = 3

	// storeRetryBase is the initial backoff between store retries; it
	// doubles on each attempt.
	storeRetryBase = 50 * time.Millisecond
)

// FetchResult is what a fetch function reports back to the cache.
type FetchResult struct {
	// Body is the fetched document. Empty when NotModified is true.
	Body []byte

	// NotModified reports that the remote resource still matches the
	// revalidator the fetch was given.
	NotModified bool

	// ETag and LastModified are the revalidation metadata of the fresh
	// response, stored for the next conditional fetch.
	ETag         string
	LastModified time.Time
}

// FetchFunc performs the underlying network fetch. rev carries the stored
// revalidator when a conditional request is possible; a zero Revalidator
// means a full fetch.
type FetchFunc func(ctx context.Context, rev Revalidator) (*FetchResult, error)

// Cache wraps a Store with the get-or-fetch protocol: fresh entries are
// served without a network call, expired entries are revalidated
// conditionally, and misses are fetched and inserted.
type Cache struct {
	store  Store
	logger zerolog.Logger
}

// New creates a cache over the given store.
func New(store Store, logger zerolog.Logger) *Cache {
	if store == nil {
		panic("cache store cannot be nil")
	}
	return &Cache{store: store, logger: logger}
}

// GetOrFetch returns the document for key, fetching it at most once.
//
// Store contention is retried with bounded exponential backoff; if the store
// stays unavailable the fetch proceeds uncached with a warning. Contention
// never surfaces as a hard failure.
func (c *Cache) GetOrFetch(ctx context.Context, key Key, fn FetchFunc, ttl time.Duration) (body []byte, fromCache bool, err error) {
	entry, getErr := c.getWithRetry(ctx, key)
	if getErr != nil && !errors.Is(getErr, ErrCacheMiss) {
		// Store unreachable: degrade to an uncached fetch.
		c.logger.Warn().
			Err(getErr).
			Str("key", key.String()).
			Msg("Cache store unavailable, degrading to uncached fetch")
		Degraded.Inc()

		result, fetchErr := fn(ctx, Revalidator{})
		if fetchErr != nil {
			return nil, false, fetchErr
		}
		return result.Body, false, nil
	}

	// Fresh hit: no network call.
	if entry != nil && !entry.IsExpired() {
		c.logger.Debug().
			Str("key", key.String()).
			Dur("ttl", entry.TTL()).
			Msg("Cache hit")
		return entry.Body, true, nil
	}

	// Expired entry: conditional fetch with the stored revalidator.
	var rev Revalidator
	if entry != nil && entry.CanRevalidate() {
		rev = entry.Revalidator()
	}

	result, fetchErr := fn(ctx, rev)
	if fetchErr != nil {
		return nil, false, fetchErr
	}

	if result.NotModified {
		if entry == nil {
			return nil, false, fmt.Errorf("not-modified response without a cached entry for %s", key.String())
		}
		Revalidations.Inc()
		newExpires := time.Now().Add(ttl)
		if err := c.updateExpiryWithRetry(ctx, key, newExpires); err != nil {
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to extend cache expiry")
		} else {
			c.logger.Debug().
				Str("key", key.String()).
				Time("expires", newExpires).
				Msg("Revalidated, expiry extended")
		}
		return entry.Body, true, nil
	}

	if entry == nil {
		CacheMisses.Inc()
	}

	now := time.Now()
	fresh := &Entry{
		Body:         result.Body,
		ETag:         result.ETag,
		LastModified: result.LastModified,
		Expires:      now.Add(ttl),
		FetchedAt:    now,
	}

	if err := c.setWithRetry(ctx, key, fresh); err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to store cache entry")
	}

	return result.Body, false, nil
}

// Invalidate removes the entry for key.
func (c *Cache) Invalidate(ctx context.Context, key Key) error {
	return c.store.Delete(ctx, key)
}

// getWithRetry retries transient store read failures with doubling backoff.
func (c *Cache) getWithRetry(ctx context.Context, key Key) (*Entry, error) {
	var entry *Entry
	err := c.withRetry(ctx, func() error {
		var opErr error
		entry, opErr = c.store.Get(ctx, key)
		if errors.Is(opErr, ErrCacheMiss) {
			entry = nil
			return nil
		}
		return opErr
	})
	return entry, err
}

func (c *Cache) setWithRetry(ctx context.Context, key Key, entry *Entry) error {
	return c.withRetry(ctx, func() error {
		return c.store.Set(ctx, key, entry)
	})
}

func (c *Cache) updateExpiryWithRetry(ctx context.Context, key Key, newExpires time.Time) error {
	return c.withRetry(ctx, func() error {
		return c.store.UpdateExpiry(ctx, key, newExpires)
	})
}

// withRetry runs op up to storeRetryAttempts times with a doubling delay.
func (c *Cache) withRetry(ctx context.Context, op func() error) error {
	var lastErr error
	delay := storeRetryBase

	for attempt := 1; attempt <= storeRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if attempt >= storeRetryAttempts {
			break
		}

		c.logger.Debug().
			Err(lastErr).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Cache store operation failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return lastErr
}
