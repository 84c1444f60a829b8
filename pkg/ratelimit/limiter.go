package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit pacing.
var (
	acquireWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statpipe_ratelimit_wait_seconds",
		Help:    "Time spent waiting for a rate limit token by source",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"source"})

	acquiresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statpipe_ratelimit_acquires_total",
		Help: "Total tokens acquired by source",
	}, []string{"source"})

	bucketTokens = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "statpipe_ratelimit_tokens",
		Help: "Current token level by source bucket",
	}, []string{"source"})
)

// defaultSourceKey labels the shared bucket for unclassified sources.
const defaultSourceKey = "_default"

// globalSourceKey labels the cross-source bucket layered on top of every acquire.
const globalSourceKey = "_global"

// Limiter paces outbound requests with per-source token buckets plus a global
// bucket capping aggregate throughput. Acquire never errors on pacing; it only
// delays. A long wait is the backpressure signal, not a fault.
type Limiter struct {
	mu        sync.RWMutex
	buckets   map[string]*bucket
	overrides map[string]BucketConfig

	defaultCfg BucketConfig
	global     *bucket
	logger     zerolog.Logger
	now        func() time.Time
}

// Config holds limiter configuration.
type Config struct {
	// Default is the bucket configuration for source keys without an override.
	Default BucketConfig

	// Global is the cross-source bucket layered on top of every acquire.
	Global BucketConfig

	// Overrides maps source keys to dedicated bucket configurations.
	Overrides map[string]BucketConfig
}

// DefaultConfig returns a conservative limiter configuration.
func DefaultConfig() Config {
	return Config{
		Default: DefaultBucketConfig(),
		Global:  BucketConfig{Capacity: 20, RefillRate: 10},
	}
}

// New creates a limiter from the given configuration.
func New(cfg Config, logger zerolog.Logger) *Limiter {
	if cfg.Default.Capacity <= 0 || cfg.Default.RefillRate <= 0 {
		cfg.Default = DefaultBucketConfig()
	}
	if cfg.Global.Capacity <= 0 || cfg.Global.RefillRate <= 0 {
		cfg.Global = DefaultConfig().Global
	}

	return &Limiter{
		buckets:    make(map[string]*bucket),
		overrides:  cfg.Overrides,
		defaultCfg: cfg.Default,
		global:     newBucket(cfg.Global),
		logger:     logger,
		now:        time.Now,
	}
}

// Acquire blocks until one token is available for sourceKey and one token is
// available in the global bucket, then consumes both. It returns early only
// when ctx is cancelled; the consumed reservation is not returned in that
// case, which keeps the pacing conservative.
func (l *Limiter) Acquire(ctx context.Context, sourceKey string) error {
	key := sourceKey
	b := l.bucketFor(sourceKey)
	if b == nil {
		key = defaultSourceKey
		b = l.bucketFor(defaultSourceKey)
	}

	now := l.now()
	wait := b.reserve(now)
	if gw := l.global.reserve(now); gw > wait {
		wait = gw
	}

	bucketTokens.WithLabelValues(key).Set(b.level(now))
	bucketTokens.WithLabelValues(globalSourceKey).Set(l.global.level(now))

	if wait > 0 {
		l.logger.Debug().
			Str("source", key).
			Dur("wait", wait).
			Msg("Waiting for rate limit token")

		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	acquireWaitSeconds.WithLabelValues(key).Observe(wait.Seconds())
	acquiresTotal.WithLabelValues(key).Inc()
	return nil
}

// bucketFor returns the bucket for sourceKey, creating it lazily when an
// override exists. Returns nil for unknown keys so the caller falls back to
// the shared default bucket.
func (l *Limiter) bucketFor(sourceKey string) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[sourceKey]
	l.mu.RUnlock()
	if ok {
		return b
	}

	cfg, known := l.overrides[sourceKey]
	if !known {
		if sourceKey != defaultSourceKey {
			return nil
		}
		cfg = l.defaultCfg
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[sourceKey]; ok {
		return b
	}
	b = newBucket(cfg)
	l.buckets[sourceKey] = b
	return b
}

// Tokens reports the current token level for a source key. Intended for
// observability and tests.
func (l *Limiter) Tokens(sourceKey string) float64 {
	b := l.bucketFor(sourceKey)
	if b == nil {
		b = l.bucketFor(defaultSourceKey)
	}
	return b.level(l.now())
}
