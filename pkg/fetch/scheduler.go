// Package fetch provides the rate-limited, cache-aware fetch scheduler that
// produces raw documents for source adapters to parse.
//
// A fetch passes three gates in order: the per-source token bucket (plus the
// global bucket), the per-domain concurrency ceiling, and the conditional
// cache. Transient failures retry with exponential backoff; not-found
// responses are routine and surface as ErrAbsent without retrying.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/courtdata/statpipe/pkg/cache"
	"github.com/courtdata/statpipe/pkg/ratelimit"
)

// Prometheus metrics for fetch operations.
var (
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statpipe_fetch_requests_total",
		Help: "Total fetches by source and outcome",
	}, []string{"source", "outcome"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statpipe_fetch_duration_seconds",
		Help:    "Fetch duration in seconds by source",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"source"})

	fetchInflight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "statpipe_fetch_inflight",
		Help: "In-flight requests by target domain",
	}, []string{"domain"})
)

// Request describes one document fetch.
type Request struct {
	// SourceKey selects the rate-limit bucket and labels lineage.
	SourceKey string

	// URL is the document URL.
	URL string

	// Params are optional query parameters, part of the cache key.
	Params url.Values

	// TTL overrides the scheduler's default cache TTL when positive.
	TTL time.Duration

	// Timeout overrides the scheduler's default per-fetch timeout when
	// positive. Exceeding it counts as a transient failure.
	Timeout time.Duration
}

// Result is a fetched document.
type Result struct {
	// Body is the raw document body.
	Body []byte

	// FromCache reports that no fresh body crossed the network: either a
	// fresh cache hit or a not-modified revalidation.
	FromCache bool
}

// Config holds scheduler configuration.
type Config struct {
	// UserAgent identifies this pipeline to upstream sources.
	UserAgent string

	// Retry is the transport retry policy for transient failures.
	Retry RetryConfig

	// MaxPerDomain bounds simultaneous in-flight requests per target
	// domain, independent of the per-source rate limiter.
	MaxPerDomain int

	// DefaultTTL is the cache TTL when a request does not set one.
	DefaultTTL time.Duration

	// DefaultTimeout is the per-fetch timeout when a request does not set
	// one.
	DefaultTimeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent:      userAgent,
		Retry:          DefaultRetryConfig(),
		MaxPerDomain:   4,
		DefaultTTL:     15 * time.Minute,
		DefaultTimeout: 30 * time.Second,
	}
}

// Scheduler composes the rate limiter, the conditional cache, and the retry
// policy into a single fetch entry point.
type Scheduler struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	cache      *cache.Cache
	config     Config
	logger     zerolog.Logger

	mu      sync.Mutex
	domains map[string]chan struct{}
}

// New creates a scheduler.
func New(cfg Config, limiter *ratelimit.Limiter, c *cache.Cache, logger zerolog.Logger) (*Scheduler, error) {
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if c == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.MaxPerDomain <= 0 {
		cfg.MaxPerDomain = DefaultConfig("").MaxPerDomain
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 15 * time.Minute
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}

	return &Scheduler{
		httpClient: &http.Client{},
		limiter:    limiter,
		cache:      c,
		config:     cfg,
		logger:     logger,
		domains:    make(map[string]chan struct{}),
	}, nil
}

// Fetch retrieves one document, honoring rate limits, the per-domain ceiling,
// and the conditional cache.
//
// An absent resource returns ErrAbsent; exhausted retries return an error
// wrapping ErrSourceUnavailable. A long stall before the fetch starts is
// rate-limit backpressure, not a fault.
func (s *Scheduler) Fetch(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	defer func() {
		fetchDuration.WithLabelValues(req.SourceKey).Observe(time.Since(start).Seconds())
	}()

	if err := s.limiter.Acquire(ctx, req.SourceKey); err != nil {
		return nil, fmt.Errorf("acquire rate limit: %w", err)
	}

	release, err := s.acquireDomainSlot(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	defer release()

	ttl := req.TTL
	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}

	key := cache.NewKey(req.URL, req.Params)
	body, fromCache, err := s.cache.GetOrFetch(ctx, key, s.fetchFunc(req), ttl)
	if err != nil {
		switch {
		case errors.Is(err, ErrAbsent):
			fetchRequestsTotal.WithLabelValues(req.SourceKey, "absent").Inc()
			s.logger.Debug().
				Str("source", req.SourceKey).
				Str("url", req.URL).
				Msg("Resource absent, skipping")
		case errors.Is(err, ErrSourceUnavailable):
			fetchRequestsTotal.WithLabelValues(req.SourceKey, "unavailable").Inc()
		default:
			fetchRequestsTotal.WithLabelValues(req.SourceKey, "error").Inc()
		}
		return nil, err
	}

	outcome := "fetched"
	if fromCache {
		outcome = "cached"
	}
	fetchRequestsTotal.WithLabelValues(req.SourceKey, outcome).Inc()

	return &Result{Body: body, FromCache: fromCache}, nil
}

// fetchFunc builds the cache-facing fetch function: one HTTP transaction per
// attempt, wrapped in the retry policy.
func (s *Scheduler) fetchFunc(req Request) cache.FetchFunc {
	return func(ctx context.Context, rev cache.Revalidator) (*cache.FetchResult, error) {
		var result *cache.FetchResult

		err := retryWithBackoff(ctx, s.config.Retry, s.logger, func() error {
			var attemptErr error
			result, attemptErr = s.attempt(ctx, req, rev)
			return attemptErr
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

// attempt performs a single HTTP transaction.
func (s *Scheduler) attempt(ctx context.Context, req Request, rev cache.Revalidator) (*cache.FetchResult, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.config.DefaultTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if len(req.Params) > 0 {
		httpReq.URL.RawQuery = req.Params.Encode()
	}
	httpReq.Header.Set("User-Agent", s.config.UserAgent)
	httpReq.Header.Set("Accept", "application/json, text/html")

	if rev.ETag != "" {
		httpReq.Header.Set("If-None-Match", rev.ETag)
	} else if !rev.LastModified.IsZero() {
		httpReq.Header.Set("If-Modified-Since", rev.LastModified.Format(http.TimeFormat))
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		// Timeouts land here and count as transient.
		return nil, &Error{
			SourceKey: req.SourceKey,
			URL:       req.URL,
			Class:     ErrorClassNetwork,
			Err:       err,
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return &cache.FetchResult{NotModified: true}, nil

	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: %s", ErrAbsent, req.URL)

	case resp.StatusCode >= 400:
		return nil, &Error{
			SourceKey:  req.SourceKey,
			URL:        req.URL,
			StatusCode: resp.StatusCode,
			Class:      classifyStatus(resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{
			SourceKey: req.SourceKey,
			URL:       req.URL,
			Class:     ErrorClassNetwork,
			Err:       err,
		}
	}

	result := &cache.FetchResult{
		Body: body,
		ETag: resp.Header.Get("ETag"),
	}
	if lastModStr := resp.Header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, parseErr := http.ParseTime(lastModStr); parseErr == nil {
			result.LastModified = lastMod
		}
	}
	return result, nil
}

// acquireDomainSlot takes a slot in the per-domain semaphore and returns the
// release function. The ceiling applies even when multiple logical sources
// share a domain.
func (s *Scheduler) acquireDomainSlot(ctx context.Context, rawURL string) (func(), error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	domain := u.Hostname()

	s.mu.Lock()
	sem, ok := s.domains[domain]
	if !ok {
		sem = make(chan struct{}, s.config.MaxPerDomain)
		s.domains[domain] = sem
	}
	s.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	fetchInflight.WithLabelValues(domain).Inc()
	return func() {
		<-sem
		fetchInflight.WithLabelValues(domain).Dec()
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (s *Scheduler) SetHTTPClient(client *http.Client) {
	s.httpClient = client
}
