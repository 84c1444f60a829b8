// Package cache provides a conditional-revalidation cache for source
// documents, with Redis and in-memory backends.
//
// Entries carry a revalidator (ETag / Last-Modified) so that an expired entry
// can be refreshed with a conditional request instead of a full re-fetch: a
// "not modified" answer keeps the stored body and only extends the expiry.
//
// # Basic Usage
//
//	store := cache.NewRedisStore(redisClient)
//	c := cache.New(store, logging.NewLogger("cache"))
//
//	key := cache.NewKey("https://stats.example.com/schedule", url.Values{"season": []string{"2025"}})
//
//	body, fromCache, err := c.GetOrFetch(ctx, key, fetchFn, 15*time.Minute)
//
// The fetch function receives the stored revalidator and reports either a
// fresh body or NotModified.
//
// # Concurrency
//
// The backing store is shared by all concurrent sources. Store failures are
// retried with bounded exponential backoff; persistent failure degrades to an
// uncached fetch with a warning rather than propagating a hard error. Writes
// are atomic per key, so an aborted backfill never leaves a torn entry.
//
// # Metrics
//
//   - statpipe_cache_hits_total{backend}
//   - statpipe_cache_misses_total
//   - statpipe_cache_revalidations_total
//   - statpipe_cache_errors_total{operation}
//   - statpipe_cache_degraded_total
package cache
