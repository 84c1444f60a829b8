package fetch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/courtdata/statpipe/internal/testutil"
	"github.com/courtdata/statpipe/pkg/cache"
	"github.com/courtdata/statpipe/pkg/ratelimit"
)

func testScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()

	limiter := ratelimit.New(ratelimit.Config{
		Default: ratelimit.BucketConfig{Capacity: 100, RefillRate: 100},
		Global:  ratelimit.BucketConfig{Capacity: 1000, RefillRate: 1000},
	}, zerolog.Nop())

	c := cache.New(cache.NewMemoryStore(), zerolog.Nop())

	s, err := New(cfg, limiter, c, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        20 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestNew_Validation(t *testing.T) {
	limiter := ratelimit.New(ratelimit.DefaultConfig(), zerolog.Nop())
	c := cache.New(cache.NewMemoryStore(), zerolog.Nop())

	if _, err := New(DefaultConfig("statpipe/1.0"), nil, c, zerolog.Nop()); err == nil {
		t.Error("expected error for nil limiter")
	}
	if _, err := New(DefaultConfig("statpipe/1.0"), limiter, nil, zerolog.Nop()); err == nil {
		t.Error("expected error for nil cache")
	}
	if _, err := New(DefaultConfig(""), limiter, c, zerolog.Nop()); err == nil {
		t.Error("expected error for empty user-agent")
	}
}

func TestFetch_Success(t *testing.T) {
	mock := testutil.NewMockSource()
	defer mock.Close()
	mock.Respond("/games", testutil.MockResponse{Body: `[{"id":1}]`})

	s := testScheduler(t, DefaultConfig("statpipe-test/1.0"))

	result, err := s.Fetch(context.Background(), Request{
		SourceKey: "mock",
		URL:       mock.URL() + "/games",
	})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if result.FromCache {
		t.Error("first fetch should not be from cache")
	}
	if string(result.Body) != `[{"id":1}]` {
		t.Errorf("unexpected body: %s", result.Body)
	}

	if got := mock.LastRequestHeader.Get("User-Agent"); got != "statpipe-test/1.0" {
		t.Errorf("User-Agent = %q, want statpipe-test/1.0", got)
	}
}

func TestFetch_CachedWithinTTL(t *testing.T) {
	mock := testutil.NewMockSource()
	defer mock.Close()
	mock.Respond("/teams", testutil.MockResponse{Body: `[]`})

	s := testScheduler(t, DefaultConfig("statpipe-test/1.0"))
	req := Request{SourceKey: "mock", URL: mock.URL() + "/teams", TTL: time.Minute}

	ctx := context.Background()
	if _, err := s.Fetch(ctx, req); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	result, err := s.Fetch(ctx, req)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if !result.FromCache {
		t.Error("second fetch within TTL should come from cache")
	}
	if mock.Requests() != 1 {
		t.Errorf("network requests = %d, want exactly 1", mock.Requests())
	}
}

func TestFetch_ConditionalRevalidation(t *testing.T) {
	mock := testutil.NewMockSource()
	defer mock.Close()
	mock.RespondConditional("/schedule", `{"rounds":[]}`, `"v1"`)

	s := testScheduler(t, DefaultConfig("statpipe-test/1.0"))
	ctx := context.Background()

	// Populate with a tiny TTL, wait for expiry, then refetch.
	if _, err := s.Fetch(ctx, Request{SourceKey: "mock", URL: mock.URL() + "/schedule", TTL: 10 * time.Millisecond}); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	result, err := s.Fetch(ctx, Request{SourceKey: "mock", URL: mock.URL() + "/schedule", TTL: time.Minute})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if mock.Conditionals() != 1 {
		t.Errorf("conditional requests = %d, want 1", mock.Conditionals())
	}
	if string(result.Body) != `{"rounds":[]}` {
		t.Errorf("revalidation should keep original body, got %s", result.Body)
	}
	if !result.FromCache {
		t.Error("revalidated fetch should report FromCache")
	}
}

func TestFetch_AbsentIsNotRetried(t *testing.T) {
	mock := testutil.NewMockSource()
	defer mock.Close()
	// No handler registered: the mock answers 404.

	cfg := DefaultConfig("statpipe-test/1.0")
	cfg.Retry = fastRetry()
	s := testScheduler(t, cfg)

	_, err := s.Fetch(context.Background(), Request{
		SourceKey: "mock",
		URL:       mock.URL() + "/seasons/1891/playoffs",
	})
	if !errors.Is(err, ErrAbsent) {
		t.Fatalf("err = %v, want ErrAbsent", err)
	}
	if mock.Requests() != 1 {
		t.Errorf("requests = %d, absent resources must not be retried", mock.Requests())
	}
}

func TestFetch_TransientFailureRetriesThenSucceeds(t *testing.T) {
	mock := testutil.NewMockSource()
	defer mock.Close()
	mock.FailTimes("/flaky", http.StatusInternalServerError, 2, `{"ok":true}`)

	cfg := DefaultConfig("statpipe-test/1.0")
	cfg.Retry = fastRetry()
	s := testScheduler(t, cfg)

	result, err := s.Fetch(context.Background(), Request{SourceKey: "mock", URL: mock.URL() + "/flaky"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(result.Body) != `{"ok":true}` {
		t.Errorf("unexpected body: %s", result.Body)
	}
	if mock.Requests() != 3 {
		t.Errorf("requests = %d, want 3 (2 failures + 1 success)", mock.Requests())
	}
}

func TestFetch_ExhaustedRetriesReturnSourceUnavailable(t *testing.T) {
	mock := testutil.NewMockSource()
	defer mock.Close()
	mock.Respond("/down", testutil.MockResponse{StatusCode: http.StatusServiceUnavailable})

	cfg := DefaultConfig("statpipe-test/1.0")
	cfg.Retry = fastRetry()
	s := testScheduler(t, cfg)

	_, err := s.Fetch(context.Background(), Request{SourceKey: "mock", URL: mock.URL() + "/down"})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
	if mock.Requests() != 3 {
		t.Errorf("requests = %d, want 3 attempts", mock.Requests())
	}
}

func TestFetch_ClientErrorNotRetried(t *testing.T) {
	mock := testutil.NewMockSource()
	defer mock.Close()
	mock.Respond("/forbidden", testutil.MockResponse{StatusCode: http.StatusForbidden})

	cfg := DefaultConfig("statpipe-test/1.0")
	cfg.Retry = fastRetry()
	s := testScheduler(t, cfg)

	_, err := s.Fetch(context.Background(), Request{SourceKey: "mock", URL: mock.URL() + "/forbidden"})

	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if fe.Class != ErrorClassClient {
		t.Errorf("Class = %s, want client", fe.Class)
	}
	if mock.Requests() != 1 {
		t.Errorf("requests = %d, client errors must not be retried", mock.Requests())
	}
}

func TestFetch_ThrottleIsTransient(t *testing.T) {
	mock := testutil.NewMockSource()
	defer mock.Close()
	mock.FailTimes("/busy", http.StatusTooManyRequests, 1, "data")

	cfg := DefaultConfig("statpipe-test/1.0")
	cfg.Retry = fastRetry()
	s := testScheduler(t, cfg)

	result, err := s.Fetch(context.Background(), Request{SourceKey: "mock", URL: mock.URL() + "/busy"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(result.Body) != "data" {
		t.Errorf("unexpected body: %s", result.Body)
	}
}

func TestFetch_PerDomainCeiling(t *testing.T) {
	var inflight, peak int64
	mock := testutil.NewMockSource()
	defer mock.Close()
	mock.Handle("/slow", func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt64(&inflight, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if current <= old || atomic.CompareAndSwapInt64(&peak, old, current) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt64(&inflight, -1)
		w.WriteHeader(http.StatusOK)
	})

	cfg := DefaultConfig("statpipe-test/1.0")
	cfg.MaxPerDomain = 2
	s := testScheduler(t, cfg)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// Distinct sources sharing one domain still hit the ceiling.
			source := "mock-a"
			if n%2 == 1 {
				source = "mock-b"
			}
			_, _ = s.Fetch(context.Background(), Request{
				SourceKey: source,
				URL:       mock.URL() + "/slow",
				// Distinct cache keys so every call reaches the network.
				Params: map[string][]string{"n": {string(rune('a' + n))}},
			})
		}(i)
	}
	wg.Wait()

	if p := atomic.LoadInt64(&peak); p > 2 {
		t.Errorf("peak in-flight = %d, ceiling is 2", p)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected ErrorClass
	}{
		{429, ErrorClassThrottle},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
		{400, ErrorClassClient},
		{403, ErrorClassClient},
		{200, ""},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.expected {
			t.Errorf("classifyStatus(%d) = %s, want %s", tt.status, got, tt.expected)
		}
	}
}
