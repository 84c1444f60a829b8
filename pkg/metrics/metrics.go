// Package metrics provides the centralized Prometheus metrics registry for
// the pipeline. All metrics are defined in their respective packages
// (ratelimit, cache, fetch, identity, schema, validate, sink, pipeline) to
// maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the pipeline.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - statpipe_ratelimit_wait_seconds{source} (Histogram): Time spent waiting for a token
//   - statpipe_ratelimit_acquires_total{source} (Counter): Token acquisitions by source
//   - statpipe_ratelimit_tokens{source} (Gauge): Current token level by source
//
// Cache Metrics (pkg/cache):
//   - statpipe_cache_hits_total{backend} (Counter): Fresh cache hits by backend
//   - statpipe_cache_misses_total (Counter): Cache misses
//   - statpipe_cache_revalidations_total (Counter): Conditional revalidations answered 304
//   - statpipe_cache_errors_total{operation} (Counter): Cache store operation errors
//   - statpipe_cache_degraded_total (Counter): Fetches served uncached after store contention
//
// Fetch Metrics (pkg/fetch):
//   - statpipe_fetch_requests_total{source, outcome} (Counter): Fetches by source and outcome
//   - statpipe_fetch_duration_seconds{source} (Histogram): Fetch duration by source
//   - statpipe_fetch_inflight{domain} (Gauge): In-flight requests by target domain
//   - statpipe_fetch_retries_total{error_class} (Counter): Retry attempts by error class
//   - statpipe_fetch_retry_exhausted_total{error_class} (Counter): Fetches that exhausted retries
//
// Identity Metrics (pkg/identity):
//   - statpipe_identity_resolutions_total{kind, path} (Counter): Resolutions by kind and path (exact, fuzzy, new)
//   - statpipe_identity_ambiguous_total{kind} (Counter): Fuzzy merges with multiple candidates
//
// Schema Metrics (pkg/schema):
//   - statpipe_schema_records_total{kind} (Counter): Raw records processed
//   - statpipe_schema_skipped_total{kind, reason} (Counter): Records skipped for missing fields
//   - statpipe_schema_conflicts_total (Counter): Fact uids re-observed with different content
//
// Validation Metrics (pkg/validate):
//   - statpipe_validate_checks_total{check} (Counter): Checks executed
//   - statpipe_validate_issues_total{check, severity} (Counter): Issues found
//   - statpipe_validate_health_score (Gauge): Health score of the last run
//
// Sink Metrics (pkg/sink):
//   - statpipe_sink_rows_total{table} (Counter): Rows written by table
//   - statpipe_sink_errors_total (Counter): Failed write transactions
//
// Pipeline Metrics (pkg/pipeline):
//   - statpipe_backfill_runs_total{outcome} (Counter): Backfill runs by outcome (ok, partial, error)
//   - statpipe_backfill_duration_seconds (Histogram): Wall time of a backfill run
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(statpipe_cache_hits_total[5m])) /
//   (sum(rate(statpipe_cache_hits_total[5m])) + sum(rate(statpipe_cache_misses_total[5m])))
//
//   # Per-Source Fetch Error Rate
//   rate(statpipe_fetch_requests_total{outcome=~"error|unavailable"}[5m])
//
//   # P95 Fetch Latency
//   histogram_quantile(0.95, rate(statpipe_fetch_duration_seconds_bucket[5m]))
//
//   # Data Health
//   statpipe_validate_health_score < 0.7
