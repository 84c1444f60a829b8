package sink

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/courtdata/statpipe/pkg/schema"
)

var testFetchedAt = time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)

func openTestSink(t *testing.T) *Sink {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleTables() *schema.Tables {
	t := schema.NewTables()
	t.Teams["team-a"] = &schema.TeamRow{
		UID: "team-a", Name: "Lincoln High", Aliases: []string{"Lincoln High"},
		FirstSeenAt: testFetchedAt, LastSeenAt: testFetchedAt,
	}
	t.Teams["team-b"] = &schema.TeamRow{
		UID: "team-b", Name: "Central High", Aliases: []string{"Central High"},
		FirstSeenAt: testFetchedAt, LastSeenAt: testFetchedAt,
	}
	t.Games["game-1"] = &schema.GameRow{
		UID: "game-1", HomeTeamUID: "team-a", AwayTeamUID: "team-b",
		PlayedOn: "2026-02-13", HomeScore: 62, AwayScore: 58, WinnerUID: "team-a",
		Lineage: schema.Lineage{SourceID: "source-1", SourceURL: "https://league.example/1", FetchedAt: testFetchedAt},
	}
	return t
}

func TestUpsertTables_Idempotent(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()
	tables := sampleTables()

	if err := s.UpsertTables(ctx, tables); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.UpsertTables(ctx, tables); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	for table, want := range map[string]int64{"teams": 2, "games": 1} {
		n, err := s.CountRows(ctx, table)
		if err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != want {
			t.Errorf("%s rows = %d, want %d after replay", table, n, want)
		}
	}
}

func TestUpsertTables_GameScoreUpdates(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()

	tables := sampleTables()
	if err := s.UpsertTables(ctx, tables); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	tables.Games["game-1"].HomeScore = 64
	if err := s.UpsertTables(ctx, tables); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	var score int
	err := s.db.QueryRowContext(ctx, "SELECT home_score FROM games WHERE uid = 'game-1'").Scan(&score)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if score != 64 {
		t.Errorf("home_score = %d, want updated 64", score)
	}
}

func TestUpsertTables_CorrectionsAppendOnly(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()

	tables := sampleTables()
	tables.Corrections = append(tables.Corrections, &schema.CorrectionRow{
		UID: "correction-1", FactUID: "game-1", Field: "home_score",
		OldValue: "62", NewValue: "64",
		Lineage: schema.Lineage{SourceID: "source-1", SourceURL: "https://league.example/1", FetchedAt: testFetchedAt},
	})

	if err := s.UpsertTables(ctx, tables); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertTables(ctx, tables); err != nil {
		t.Fatalf("replay: %v", err)
	}

	n, err := s.CountRows(ctx, "corrections")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("corrections = %d, want 1", n)
	}
}

func TestExportParquet(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()

	if err := s.UpsertTables(ctx, sampleTables()); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	dir := t.TempDir()
	if err := s.ExportParquet(ctx, dir); err != nil {
		t.Fatalf("export: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != len(exportTables) {
		t.Errorf("exported %d files, want %d", len(matches), len(exportTables))
	}
}
