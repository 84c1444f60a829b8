// Package sink persists canonical tables to DuckDB and exports them to
// Parquet. Writes are upsert-by-uid, so replaying a build is idempotent.
package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/courtdata/statpipe/pkg/schema"
)

var (
	rowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statpipe_sink_rows_total",
		Help: "Rows written to the sink by table.",
	}, []string{"table"})

	writeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statpipe_sink_errors_total",
		Help: "Failed sink write transactions.",
	})
)

// Sink owns the DuckDB connection.
type Sink struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open connects to the database file and ensures the schema exists.
// Use ":memory:" for an in-memory database.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*Sink, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	s := &Sink{db: db, log: logger.With().Str("component", "sink").Logger()}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS sources (
		uid VARCHAR PRIMARY KEY,
		key VARCHAR NOT NULL,
		class VARCHAR,
		first_seen_at TIMESTAMP,
		last_seen_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS competitions (
		uid VARCHAR PRIMARY KEY,
		name VARCHAR NOT NULL,
		season VARCHAR,
		level VARCHAR,
		gender VARCHAR,
		organizer VARCHAR,
		first_seen_at TIMESTAMP,
		last_seen_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS teams (
		uid VARCHAR PRIMARY KEY,
		name VARCHAR NOT NULL,
		school VARCHAR,
		organizer VARCHAR,
		level VARCHAR,
		gender VARCHAR,
		aliases VARCHAR,
		first_seen_at TIMESTAMP,
		last_seen_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS players (
		uid VARCHAR PRIMARY KEY,
		name VARCHAR NOT NULL,
		school VARCHAR,
		grad_year VARCHAR,
		gender VARCHAR,
		aliases VARCHAR,
		first_seen_at TIMESTAMP,
		last_seen_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS games (
		uid VARCHAR PRIMARY KEY,
		competition_uid VARCHAR,
		home_team_uid VARCHAR,
		away_team_uid VARCHAR,
		played_on VARCHAR,
		home_score INTEGER,
		away_score INTEGER,
		winner_uid VARCHAR,
		round INTEGER,
		source_id VARCHAR,
		source_url VARCHAR,
		fetched_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS box_scores (
		uid VARCHAR PRIMARY KEY,
		game_uid VARCHAR,
		player_uid VARCHAR,
		team_uid VARCHAR,
		points INTEGER,
		rebounds INTEGER,
		assists INTEGER,
		source_id VARCHAR,
		source_url VARCHAR,
		fetched_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS rosters (
		uid VARCHAR PRIMARY KEY,
		team_uid VARCHAR,
		player_uid VARCHAR,
		season VARCHAR,
		jersey VARCHAR,
		source_id VARCHAR,
		source_url VARCHAR,
		fetched_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		uid VARCHAR PRIMARY KEY,
		game_uid VARCHAR,
		period INTEGER,
		clock VARCHAR,
		event_type VARCHAR,
		player_uid VARCHAR,
		source_id VARCHAR,
		source_url VARCHAR,
		fetched_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS corrections (
		uid VARCHAR PRIMARY KEY,
		fact_uid VARCHAR,
		field VARCHAR,
		old_value VARCHAR,
		new_value VARCHAR,
		source_id VARCHAR,
		source_url VARCHAR,
		fetched_at TIMESTAMP
	)`,
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// UpsertTables writes a full table set in one transaction. Rows replace by
// uid; running the same build twice leaves the database unchanged.
func (s *Sink) UpsertTables(ctx context.Context, t *schema.Tables) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.writeAll(ctx, tx, t); err != nil {
		writeErrors.Inc()
		return err
	}
	if err := tx.Commit(); err != nil {
		writeErrors.Inc()
		return fmt.Errorf("commit: %w", err)
	}

	s.log.Info().
		Int("entities", t.EntityCount()).
		Int("facts", t.FactCount()).
		Int("corrections", len(t.Corrections)).
		Msg("tables persisted")
	return nil
}

func (s *Sink) writeAll(ctx context.Context, tx *sql.Tx, t *schema.Tables) error {
	for _, row := range t.Sources {
		if err := upsert(ctx, tx, "sources",
			`INSERT INTO sources VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (uid) DO UPDATE SET
			 key = excluded.key, class = excluded.class,
			 first_seen_at = excluded.first_seen_at, last_seen_at = excluded.last_seen_at`,
			row.UID, row.Key, row.Class, tsOrNil(row.FirstSeenAt), tsOrNil(row.LastSeenAt)); err != nil {
			return err
		}
	}
	for _, row := range t.Competitions {
		if err := upsert(ctx, tx, "competitions",
			`INSERT INTO competitions VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (uid) DO UPDATE SET
			 name = excluded.name, season = excluded.season, level = excluded.level,
			 gender = excluded.gender, organizer = excluded.organizer,
			 first_seen_at = excluded.first_seen_at, last_seen_at = excluded.last_seen_at`,
			row.UID, row.Name, row.Season, row.Level, row.Gender, row.Organizer,
			tsOrNil(row.FirstSeenAt), tsOrNil(row.LastSeenAt)); err != nil {
			return err
		}
	}
	for _, row := range t.Teams {
		if err := upsert(ctx, tx, "teams",
			`INSERT INTO teams VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (uid) DO UPDATE SET
			 name = excluded.name, school = excluded.school, organizer = excluded.organizer,
			 level = excluded.level, gender = excluded.gender, aliases = excluded.aliases,
			 first_seen_at = excluded.first_seen_at, last_seen_at = excluded.last_seen_at`,
			row.UID, row.Name, row.School, row.Organizer, row.Level, row.Gender,
			jsonList(row.Aliases), tsOrNil(row.FirstSeenAt), tsOrNil(row.LastSeenAt)); err != nil {
			return err
		}
	}
	for _, row := range t.Players {
		if err := upsert(ctx, tx, "players",
			`INSERT INTO players VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (uid) DO UPDATE SET
			 name = excluded.name, school = excluded.school, grad_year = excluded.grad_year,
			 gender = excluded.gender, aliases = excluded.aliases,
			 first_seen_at = excluded.first_seen_at, last_seen_at = excluded.last_seen_at`,
			row.UID, row.Name, row.School, row.GradYear, row.Gender,
			jsonList(row.Aliases), tsOrNil(row.FirstSeenAt), tsOrNil(row.LastSeenAt)); err != nil {
			return err
		}
	}
	for _, row := range t.Games {
		if err := upsert(ctx, tx, "games",
			`INSERT INTO games VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (uid) DO UPDATE SET
			 home_score = excluded.home_score, away_score = excluded.away_score,
			 winner_uid = excluded.winner_uid, round = excluded.round,
			 source_id = excluded.source_id, source_url = excluded.source_url,
			 fetched_at = excluded.fetched_at`,
			row.UID, row.CompetitionUID, row.HomeTeamUID, row.AwayTeamUID, row.PlayedOn,
			row.HomeScore, row.AwayScore, row.WinnerUID, row.Round,
			row.SourceID, row.SourceURL, tsOrNil(row.FetchedAt)); err != nil {
			return err
		}
	}
	for _, row := range t.BoxScores {
		if err := upsert(ctx, tx, "box_scores",
			`INSERT INTO box_scores VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (uid) DO NOTHING`,
			row.UID, row.GameUID, row.PlayerUID, row.TeamUID,
			row.Points, row.Rebounds, row.Assists,
			row.SourceID, row.SourceURL, tsOrNil(row.FetchedAt)); err != nil {
			return err
		}
	}
	for _, row := range t.Rosters {
		if err := upsert(ctx, tx, "rosters",
			`INSERT INTO rosters VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (uid) DO NOTHING`,
			row.UID, row.TeamUID, row.PlayerUID, row.Season, row.Jersey,
			row.SourceID, row.SourceURL, tsOrNil(row.FetchedAt)); err != nil {
			return err
		}
	}
	for _, row := range t.Events {
		if err := upsert(ctx, tx, "events",
			`INSERT INTO events VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (uid) DO NOTHING`,
			row.UID, row.GameUID, row.Period, row.Clock, row.EventType, row.PlayerUID,
			row.SourceID, row.SourceURL, tsOrNil(row.FetchedAt)); err != nil {
			return err
		}
	}
	for _, row := range t.Corrections {
		if err := upsert(ctx, tx, "corrections",
			`INSERT INTO corrections VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (uid) DO NOTHING`,
			row.UID, row.FactUID, row.Field, row.OldValue, row.NewValue,
			row.SourceID, row.SourceURL, tsOrNil(row.FetchedAt)); err != nil {
			return err
		}
	}
	return nil
}

func upsert(ctx context.Context, tx *sql.Tx, table, stmt string, args ...any) error {
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	rowsWritten.WithLabelValues(table).Inc()
	return nil
}

var exportTables = []string{
	"sources", "competitions", "teams", "players",
	"games", "box_scores", "rosters", "events", "corrections",
}

// ExportParquet writes every table as <dir>/<table>.parquet.
func (s *Sink) ExportParquet(ctx context.Context, dir string) error {
	for _, table := range exportTables {
		path := filepath.Join(dir, table+".parquet")
		stmt := fmt.Sprintf("COPY %s TO '%s' (FORMAT PARQUET)", table, path)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("export %s: %w", table, err)
		}
	}
	s.log.Info().Str("dir", dir).Int("tables", len(exportTables)).Msg("parquet export complete")
	return nil
}

// CountRows returns the row count of one table.
func (s *Sink) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func jsonList(vals []string) string {
	if len(vals) == 0 {
		return "[]"
	}
	b, err := json.Marshal(vals)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func tsOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
