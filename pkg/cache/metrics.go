package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend (redis, memory).
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statpipe_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"backend"},
	)

	// CacheMisses tracks cache misses.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statpipe_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// Revalidations tracks conditional fetches answered "not modified".
	Revalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statpipe_cache_revalidations_total",
			Help: "Total number of not-modified revalidations that kept a cached body",
		},
	)

	// CacheErrors tracks store operation errors by operation.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statpipe_cache_errors_total",
			Help: "Total number of cache store operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "expiry"
	)

	// Degraded tracks fetches that bypassed the cache after persistent
	// store contention.
	Degraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statpipe_cache_degraded_total",
			Help: "Total number of fetches degraded to uncached after store contention",
		},
	)
)
