package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process store for tests and single-process runs.
// All operations are guarded by a single mutex; Set replaces the entry for a
// key in one step, so writes are atomic per key.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
	}
}

// Get retrieves an entry. Expired entries are returned while inside the
// revalidation window so the cache can issue a conditional fetch; entries
// stale beyond the window are dropped.
func (s *MemoryStore) Get(ctx context.Context, key Key) (*Entry, error) {
	s.mu.RLock()
	entry, ok := s.entries[key.String()]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrCacheMiss
	}
	if time.Since(entry.Expires) > revalidationWindow {
		_ = s.Delete(ctx, key)
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("memory").Inc()

	// Copy so callers cannot mutate the stored entry.
	cp := *entry
	cp.Body = append([]byte(nil), entry.Body...)
	return &cp, nil
}

// Set stores an entry until its expiry plus the revalidation window.
func (s *MemoryStore) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	if time.Until(entry.Expires)+revalidationWindow <= 0 {
		return nil
	}

	cp := *entry
	cp.Body = append([]byte(nil), entry.Body...)

	s.mu.Lock()
	s.entries[key.String()] = &cp
	s.mu.Unlock()
	return nil
}

// Delete removes an entry.
func (s *MemoryStore) Delete(ctx context.Context, key Key) error {
	s.mu.Lock()
	delete(s.entries, key.String())
	s.mu.Unlock()
	return nil
}

// UpdateExpiry extends the expiry of an existing entry, keeping its body.
func (s *MemoryStore) UpdateExpiry(ctx context.Context, key Key, newExpires time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key.String()]
	if !ok {
		return ErrCacheMiss
	}
	entry.Expires = newExpires
	return nil
}

// Clear drops all entries.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]*Entry)
	s.mu.Unlock()
}

// GC removes entries stale beyond the revalidation window and returns how
// many were dropped. Redis expires keys natively; the memory store prunes
// lazily on Get, so the sweep only reclaims memory for entries that are
// never read again. Callers own the cadence: long-lived processes should
// run GC on a timer, short-lived backfills can skip it entirely.
func (s *MemoryStore) GC() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, entry := range s.entries {
		if time.Since(entry.Expires) > revalidationWindow {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
