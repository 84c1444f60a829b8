package cache

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_SetAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := testKey("/box")

	entry := &Entry{
		Body:      []byte("box score"),
		ETag:      `"e1"`,
		Expires:   time.Now().Add(time.Minute),
		FetchedAt: time.Now(),
	}

	if err := store.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Body) != "box score" {
		t.Errorf("Body = %s, want box score", got.Body)
	}

	// Mutating the returned entry must not affect the store.
	got.Body[0] = 'X'
	again, _ := store.Get(ctx, key)
	if string(again.Body) != "box score" {
		t.Error("store entry was mutated through a returned copy")
	}
}

func TestMemoryStore_ExpiredEntryStaysForRevalidation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := testKey("/old")

	entry := &Entry{Body: []byte("x"), ETag: `"v1"`, Expires: time.Now().Add(5 * time.Millisecond)}
	if err := store.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Just past expiry: still served so the ETag can drive a conditional
	// fetch.
	time.Sleep(10 * time.Millisecond)
	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get on expired entry inside the window failed: %v", err)
	}
	if !got.IsExpired() || got.ETag != `"v1"` {
		t.Errorf("entry = %+v, want expired with etag intact", got)
	}
}

func TestMemoryStore_StaleBeyondWindowIsMiss(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := testKey("/ancient")

	store.mu.Lock()
	store.entries[key.String()] = &Entry{
		Body:    []byte("x"),
		Expires: time.Now().Add(-revalidationWindow - time.Minute),
	}
	store.mu.Unlock()

	if _, err := store.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("err = %v, want ErrCacheMiss", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len = %d, want stale entry dropped", store.Len())
	}
}

func TestMemoryStore_UpdateExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := testKey("/reval")

	if err := store.Set(ctx, key, &Entry{Body: []byte("b"), Expires: time.Now().Add(time.Second)}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	newExpires := time.Now().Add(time.Hour)
	if err := store.UpdateExpiry(ctx, key, newExpires); err != nil {
		t.Fatalf("UpdateExpiry failed: %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Expires.Equal(newExpires) {
		t.Errorf("Expires = %v, want %v", got.Expires, newExpires)
	}

	if err := store.UpdateExpiry(ctx, testKey("/missing"), newExpires); err != ErrCacheMiss {
		t.Errorf("UpdateExpiry on missing key = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryStore_GC(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_ = store.Set(ctx, testKey("/keep"), &Entry{Body: []byte("k"), Expires: time.Now().Add(time.Hour)})
	store.mu.Lock()
	store.entries[testKey("/drop").String()] = &Entry{
		Body:    []byte("d"),
		Expires: time.Now().Add(-revalidationWindow - time.Minute),
	}
	store.mu.Unlock()

	if removed := store.GC(); removed != 1 {
		t.Errorf("GC removed %d entries, want 1", removed)
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := testKey("/concurrent")
			entry := &Entry{Body: []byte("body"), Expires: time.Now().Add(time.Minute)}
			for j := 0; j < 50; j++ {
				_ = store.Set(ctx, key, entry)
				_, _ = store.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	got, err := store.Get(ctx, testKey("/concurrent"))
	if err != nil {
		t.Fatalf("Get after concurrent writes failed: %v", err)
	}
	if string(got.Body) != "body" {
		t.Errorf("Body = %s, want body (no torn writes)", got.Body)
	}
}
