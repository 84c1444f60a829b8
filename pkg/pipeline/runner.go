package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/courtdata/statpipe/pkg/fetch"
	"github.com/courtdata/statpipe/pkg/logging"
	"github.com/courtdata/statpipe/pkg/schema"
	"github.com/courtdata/statpipe/pkg/validate"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statpipe_backfill_runs_total",
		Help: "Backfill runs by outcome.",
	}, []string{"outcome"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "statpipe_backfill_duration_seconds",
		Help:    "Wall time of a backfill run.",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
	})
)

// SourceSpec names one source to backfill.
type SourceSpec struct {
	// Key selects the registered adapter and the rate-limit bucket.
	Key string

	// BaseURL is the source's base URL, passed to the adapter factory.
	BaseURL string
}

// SourceError records one source that failed during a run. Other sources
// continue; the error surfaces in the summary.
type SourceError struct {
	SourceKey string `json:"source_key"`
	Err       string `json:"error"`
}

// Summary is the outcome of one backfill run.
type Summary struct {
	RunID        string           `json:"run_id"`
	StartedAt    time.Time        `json:"started_at"`
	Duration     time.Duration    `json:"duration"`
	Sources      []string         `json:"sources"`
	Seasons      []string         `json:"seasons"`
	FetchCount   int              `json:"fetch_count"`
	CachedCount  int              `json:"cached_count"`
	AbsentCount  int              `json:"absent_count"`
	RecordCount  int              `json:"record_count"`
	EntityCount  int              `json:"entity_count"`
	FactCount    int              `json:"fact_count"`
	SourceErrors []SourceError    `json:"source_errors,omitempty"`
	Report       *validate.Report `json:"report"`
}

// Backfill fetches, canonicalizes, validates, and persists the given sources
// for the given seasons. Sources run concurrently up to the configured worker
// count; a failing source is reported in the summary without aborting the
// rest. The returned error covers run-level failures only (pool setup, sink
// writes); gate on Summary.Report for data health.
func (p *Pipeline) Backfill(ctx context.Context, sources []SourceSpec, seasons []string) (*Summary, error) {
	start := time.Now()
	summary := &Summary{
		RunID:     uuid.NewString(),
		StartedAt: start.UTC(),
		Seasons:   seasons,
	}
	for _, s := range sources {
		summary.Sources = append(summary.Sources, s.Key)
	}
	sort.Strings(summary.Sources)

	log := p.log.With().Str("run_id", summary.RunID).Logger()
	log.Info().Strs("sources", summary.Sources).Strs("seasons", seasons).Msg("backfill started")

	pool, err := ants.NewPool(p.cfg.Workers)
	if err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	type sourceResult struct {
		key     string
		tables  *schema.Tables
		stats   fetchStats
		records int
		err     error
	}
	results := make(chan sourceResult, len(sources))

	var workers sync.WaitGroup
	for _, spec := range sources {
		spec := spec
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()
			tables, records, stats, err := p.runSource(ctx, spec, seasons)
			results <- sourceResult{key: spec.Key, tables: tables, stats: stats, records: records, err: err}
		}); err != nil {
			workers.Done()
			runsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("submit source %s: %w", spec.Key, err)
		}
	}
	workers.Wait()
	close(results)

	merged := schema.NewTables()
	collected := make([]sourceResult, 0, len(sources))
	for res := range results {
		collected = append(collected, res)
	}
	// Merge in sorted source order so replays produce identical output.
	sort.Slice(collected, func(i, j int) bool { return collected[i].key < collected[j].key })

	for _, res := range collected {
		summary.FetchCount += res.stats.fetched
		summary.CachedCount += res.stats.cached
		summary.AbsentCount += res.stats.absent
		if res.err != nil {
			summary.SourceErrors = append(summary.SourceErrors, SourceError{
				SourceKey: res.key,
				Err:       res.err.Error(),
			})
			log.Error().Err(res.err).Str("source", res.key).Msg("source failed")
			continue
		}
		summary.RecordCount += res.records
		merged.Merge(res.tables)
	}

	summary.EntityCount = merged.EntityCount()
	summary.FactCount = merged.FactCount()
	summary.Report = p.validator.Validate(merged)

	if p.sink != nil {
		if err := p.sink.UpsertTables(ctx, merged); err != nil {
			runsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("persist tables: %w", err)
		}
	}

	summary.Duration = time.Since(start)
	runDuration.Observe(summary.Duration.Seconds())

	outcome := "ok"
	if len(summary.SourceErrors) > 0 {
		outcome = "partial"
	}
	runsTotal.WithLabelValues(outcome).Inc()

	log.Info().
		Dur("duration", summary.Duration).
		Int("fetches", summary.FetchCount).
		Int("records", summary.RecordCount).
		Int("facts", summary.FactCount).
		Int("failed_sources", len(summary.SourceErrors)).
		Float64("health_score", summary.Report.HealthScore).
		Msg("backfill finished")
	return summary, nil
}

type fetchStats struct {
	fetched int
	cached  int
	absent  int
}

// runSource fetches and canonicalizes one source. Absent documents are
// routine; any other fetch or parse failure fails the whole source so a
// half-read season never reaches the merge.
func (p *Pipeline) runSource(ctx context.Context, spec SourceSpec, seasons []string) (*schema.Tables, int, fetchStats, error) {
	var stats fetchStats

	adapter, err := NewAdapter(spec.Key, spec.BaseURL)
	if err != nil {
		return nil, 0, stats, err
	}
	log := logging.NewLogger("pipeline").With().Str("source", spec.Key).Logger()

	batch := make([]schema.RawRecord, 0, 64)
	for _, job := range adapter.Jobs(seasons) {
		result, err := p.scheduler.Fetch(ctx, fetch.Request{
			SourceKey: spec.Key,
			URL:       job.URL,
			TTL:       p.cfg.TTLFor(string(job.Kind)),
		})
		if err != nil {
			if errors.Is(err, fetch.ErrAbsent) {
				stats.absent++
				continue
			}
			return nil, 0, stats, fmt.Errorf("fetch %s: %w", job.URL, err)
		}
		if result.FromCache {
			stats.cached++
		} else {
			stats.fetched++
		}

		records, err := adapter.Parse(job, result.Body)
		if err != nil {
			return nil, 0, stats, fmt.Errorf("parse %s: %w", job.URL, err)
		}
		batch = append(batch, records...)
	}

	builder := schema.NewBuilder(p.resolver, log)
	tables := builder.Build(map[string][]schema.RawRecord{spec.Key: batch})
	return tables, len(batch), stats, nil
}
