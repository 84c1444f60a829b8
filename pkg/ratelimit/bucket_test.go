package ratelimit

import (
	"testing"
	"time"
)

func TestBucket_BurstThenWait(t *testing.T) {
	// capacity=10, refill=10 tokens per 60s
	b := newBucket(BucketConfig{Capacity: 10, RefillRate: 10.0 / 60.0})
	now := time.Now()

	// 10 immediate reservations succeed with zero wait.
	for i := 0; i < 10; i++ {
		if wait := b.reserve(now); wait != 0 {
			t.Fatalf("reservation %d: wait = %v, want 0", i+1, wait)
		}
	}

	// The 11th reservation waits ~6 seconds (one token at 10/60 tokens/s).
	wait := b.reserve(now)
	if wait < 5900*time.Millisecond || wait > 6100*time.Millisecond {
		t.Errorf("11th reservation wait = %v, want ~6s", wait)
	}
}

func TestBucket_LazyRefill(t *testing.T) {
	b := newBucket(BucketConfig{Capacity: 5, RefillRate: 1})
	now := time.Now()

	// Drain the bucket.
	for i := 0; i < 5; i++ {
		b.reserve(now)
	}
	if wait := b.reserve(now); wait != time.Second {
		t.Fatalf("drained bucket wait = %v, want 1s", wait)
	}

	// After 10 seconds the bucket refills, capped at capacity.
	later := now.Add(10 * time.Second)
	if level := b.level(later); level > 5 {
		t.Errorf("level = %v, exceeds capacity 5", level)
	}
	if wait := b.reserve(later); wait != 0 {
		t.Errorf("refilled bucket wait = %v, want 0", wait)
	}
}

func TestBucket_ConsumptionBound(t *testing.T) {
	// In any window of length W the number of immediately granted tokens
	// never exceeds capacity + refillRate*W.
	cfg := BucketConfig{Capacity: 4, RefillRate: 2}
	b := newBucket(cfg)

	window := 3 * time.Second
	start := time.Now()
	granted := 0

	// Attempt a reservation every 100ms across the window.
	for offset := time.Duration(0); offset <= window; offset += 100 * time.Millisecond {
		if wait := b.reserve(start.Add(offset)); wait == 0 {
			granted++
		}
	}

	bound := cfg.Capacity + cfg.RefillRate*window.Seconds()
	if float64(granted) > bound {
		t.Errorf("granted %d tokens in %v, bound is %v", granted, window, bound)
	}
}

func TestDefaultBucketConfig(t *testing.T) {
	cfg := DefaultBucketConfig()
	if cfg.Capacity <= 0 || cfg.RefillRate <= 0 {
		t.Errorf("default bucket config must be positive, got %+v", cfg)
	}
	if cfg.RefillRate > 1 {
		t.Errorf("default bucket should be low-rate, got refill %v/s", cfg.RefillRate)
	}
}
