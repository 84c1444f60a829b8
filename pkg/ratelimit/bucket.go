// Package ratelimit implements per-source token-bucket pacing for outbound
// requests. Each source key owns an independent bucket; a shared default
// bucket covers unclassified sources and a global bucket caps aggregate
// throughput across all sources.
package ratelimit

import (
	"sync"
	"time"
)

// BucketConfig describes the capacity and refill rate of a token bucket.
type BucketConfig struct {
	// Capacity is the maximum number of tokens the bucket can hold.
	Capacity float64 `koanf:"capacity"`

	// RefillRate is the continuous refill rate in tokens per second.
	RefillRate float64 `koanf:"refill_rate"`
}

// DefaultBucketConfig is the low-rate bucket used for unknown source keys.
func DefaultBucketConfig() BucketConfig {
	return BucketConfig{Capacity: 2, RefillRate: 0.5}
}

// bucket is a single token bucket. Tokens refill lazily on each reservation;
// no background timer is required. Mutation happens only under mu.
type bucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64
	tokens     float64
	lastRefill time.Time
}

func newBucket(cfg BucketConfig) *bucket {
	return &bucket{
		capacity:   cfg.Capacity,
		refillRate: cfg.RefillRate,
		tokens:     cfg.Capacity,
	}
}

// reserve consumes one token and returns how long the caller must wait before
// the reservation becomes valid. A zero duration means a token was available
// immediately. Reservations are handed out in call order, so waiters drain
// FIFO per bucket.
func (b *bucket) reserve(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.lastRefill.IsZero() {
		elapsed := now.Sub(b.lastRefill).Seconds()
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}
	b.lastRefill = now

	b.tokens--
	if b.tokens >= 0 {
		return 0
	}

	// Tokens have gone negative: the deficit is the queue of reservations
	// ahead of us plus our own.
	wait := time.Duration(-b.tokens / b.refillRate * float64(time.Second))
	return wait
}

// level reports the current token count without consuming, refilled to now.
func (b *bucket) level(now time.Time) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	tokens := b.tokens
	if !b.lastRefill.IsZero() {
		tokens += now.Sub(b.lastRefill).Seconds() * b.refillRate
	}
	if tokens > b.capacity {
		tokens = b.capacity
	}
	return tokens
}
