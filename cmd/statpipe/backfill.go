package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/courtdata/statpipe/pkg/logging"
	"github.com/courtdata/statpipe/pkg/pipeline"
)

var (
	backfillSources   []string
	backfillSeasons   []string
	backfillWorkers   int
	backfillGate      bool
	backfillExportDir string
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fetch, canonicalize, validate, and persist the given sources",
	Long: `Backfill runs the full pipeline for the named sources and seasons.

Sources are given as key=base-url pairs against registered adapters,
for example:

  statpipe backfill --source events=https://events.example --season 2025-26

With --gate the command exits non-zero when the validation report falls
below the healthy threshold, for use in scheduled jobs.`,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().StringArrayVar(&backfillSources, "source", nil, "source as key=base-url (repeatable)")
	backfillCmd.Flags().StringSliceVar(&backfillSeasons, "season", nil, "season to backfill (repeatable)")
	backfillCmd.Flags().IntVar(&backfillWorkers, "workers", 0, "concurrent sources (overrides config)")
	backfillCmd.Flags().BoolVar(&backfillGate, "gate", false, "exit non-zero when the run is unhealthy")
	backfillCmd.Flags().StringVar(&backfillExportDir, "export", "", "export tables as Parquet into this directory")
	_ = backfillCmd.MarkFlagRequired("source")
	_ = backfillCmd.MarkFlagRequired("season")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	log := logging.NewLogger("cli")

	specs, err := parseSourceSpecs(backfillSources)
	if err != nil {
		return err
	}
	if backfillWorkers > 0 {
		cfg.Workers = backfillWorkers
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("close pipeline")
		}
	}()

	summary, err := p.Backfill(ctx, specs, backfillSeasons)
	if err != nil {
		return err
	}

	if backfillExportDir != "" && p.Sink() != nil {
		if err := os.MkdirAll(backfillExportDir, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
		if err := p.Sink().ExportParquet(ctx, backfillExportDir); err != nil {
			return err
		}
	}

	printSummary(cmd, summary)

	if backfillGate && !summary.Report.Healthy() {
		return fmt.Errorf("health score %.2f below threshold", summary.Report.HealthScore)
	}
	if backfillGate && len(summary.SourceErrors) > 0 {
		return fmt.Errorf("%d source(s) failed", len(summary.SourceErrors))
	}
	return nil
}

func parseSourceSpecs(raw []string) ([]pipeline.SourceSpec, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one --source is required")
	}
	specs := make([]pipeline.SourceSpec, 0, len(raw))
	for _, s := range raw {
		key, baseURL, ok := strings.Cut(s, "=")
		if !ok || key == "" || baseURL == "" {
			return nil, fmt.Errorf("invalid --source %q, want key=base-url", s)
		}
		specs = append(specs, pipeline.SourceSpec{Key: key, BaseURL: baseURL})
	}
	return specs, nil
}

func printSummary(cmd *cobra.Command, s *pipeline.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s finished in %s\n", s.RunID, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  fetched: %d  cached: %d  absent: %d\n", s.FetchCount, s.CachedCount, s.AbsentCount)
	fmt.Fprintf(out, "  records: %d  entities: %d  facts: %d\n", s.RecordCount, s.EntityCount, s.FactCount)
	fmt.Fprintf(out, "  health: %.2f (errors: %d, warnings: %d)\n",
		s.Report.HealthScore, s.Report.ErrorCount, s.Report.WarningCount)
	for _, se := range s.SourceErrors {
		fmt.Fprintf(out, "  FAILED %s: %s\n", se.SourceKey, se.Err)
	}
}
