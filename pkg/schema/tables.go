package schema

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/courtdata/statpipe/pkg/identity"
)

// Dimension rows. Created the first time an identity resolves; attributes
// merge and LastSeenAt bumps on later sightings. Never hard-deleted.

// SourceRow describes one external source.
type SourceRow struct {
	UID         string    `json:"uid"`
	Key         string    `json:"key"`
	Class       string    `json:"class"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// CompetitionRow describes one competition (league, tournament, circuit).
type CompetitionRow struct {
	UID         string    `json:"uid"`
	Name        string    `json:"name"`
	Season      string    `json:"season"`
	Level       string    `json:"level"`
	Gender      string    `json:"gender"`
	Organizer   string    `json:"organizer"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// TeamRow describes one team within an organizing scope.
type TeamRow struct {
	UID         string    `json:"uid"`
	Name        string    `json:"name"`
	School      string    `json:"school"`
	Organizer   string    `json:"organizer"`
	Level       string    `json:"level"`
	Gender      string    `json:"gender"`
	Aliases     []string  `json:"aliases"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// PlayerRow describes one player.
type PlayerRow struct {
	UID         string    `json:"uid"`
	Name        string    `json:"name"`
	School      string    `json:"school"`
	GradYear    string    `json:"grad_year"`
	Gender      string    `json:"gender"`
	Aliases     []string  `json:"aliases"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// Fact rows. Immutable once written; corrections are append-only.

// GameRow is one game between two teams.
type GameRow struct {
	UID            string `json:"uid"`
	CompetitionUID string `json:"competition_uid"`
	HomeTeamUID    string `json:"home_team_uid"`
	AwayTeamUID    string `json:"away_team_uid"`
	PlayedOn       string `json:"played_on"`
	HomeScore      int    `json:"home_score"`
	AwayScore      int    `json:"away_score"`
	WinnerUID      string `json:"winner_uid,omitempty"`
	Round          int    `json:"round,omitempty"`
	Lineage
}

// BoxScoreRow is one player's stat line in one game.
type BoxScoreRow struct {
	UID       string `json:"uid"`
	GameUID   string `json:"game_uid"`
	PlayerUID string `json:"player_uid"`
	TeamUID   string `json:"team_uid"`
	Points    int    `json:"points"`
	Rebounds  int    `json:"rebounds"`
	Assists   int    `json:"assists"`
	Lineage
}

// RosterRow links a player to a team for a season.
type RosterRow struct {
	UID       string `json:"uid"`
	TeamUID   string `json:"team_uid"`
	PlayerUID string `json:"player_uid"`
	Season    string `json:"season"`
	Jersey    string `json:"jersey,omitempty"`
	Lineage
}

// EventRow is one in-game event.
type EventRow struct {
	UID       string `json:"uid"`
	GameUID   string `json:"game_uid"`
	Period    int    `json:"period"`
	Clock     string `json:"clock"`
	EventType string `json:"event_type"`
	PlayerUID string `json:"player_uid,omitempty"`
	Lineage
}

// CorrectionRow records a later observation that contradicted an existing
// fact row. Facts never mutate; corrections append.
type CorrectionRow struct {
	UID      string `json:"uid"`
	FactUID  string `json:"fact_uid"`
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
	Lineage
}

// Tables is the canonical output of one build pass. Maps are keyed by uid.
// A Tables value is built by a single builder and not mutated concurrently;
// concurrent builds merge their outputs after each completes.
type Tables struct {
	Sources      map[string]*SourceRow      `json:"sources"`
	Competitions map[string]*CompetitionRow `json:"competitions"`
	Teams        map[string]*TeamRow        `json:"teams"`
	Players      map[string]*PlayerRow      `json:"players"`
	Games        map[string]*GameRow        `json:"games"`
	BoxScores    map[string]*BoxScoreRow    `json:"box_scores"`
	Rosters      map[string]*RosterRow      `json:"rosters"`
	Events       map[string]*EventRow       `json:"events"`
	Corrections  []*CorrectionRow           `json:"corrections"`

	// ResolutionWarnings carries ambiguous identity merges observed during
	// the build, for the validator to fold into its report.
	ResolutionWarnings []identity.Warning `json:"-"`
}

// NewTables returns an empty table set.
func NewTables() *Tables {
	return &Tables{
		Sources:      make(map[string]*SourceRow),
		Competitions: make(map[string]*CompetitionRow),
		Teams:        make(map[string]*TeamRow),
		Players:      make(map[string]*PlayerRow),
		Games:        make(map[string]*GameRow),
		BoxScores:    make(map[string]*BoxScoreRow),
		Rosters:      make(map[string]*RosterRow),
		Events:       make(map[string]*EventRow),
	}
}

// FactCount returns the total number of fact rows.
func (t *Tables) FactCount() int {
	return len(t.Games) + len(t.BoxScores) + len(t.Rosters) + len(t.Events)
}

// EntityCount returns the total number of dimension rows.
func (t *Tables) EntityCount() int {
	return len(t.Sources) + len(t.Competitions) + len(t.Teams) + len(t.Players)
}

// Merge folds other into t by uid. Dimension rows merge attributes and widen
// the seen window; fact rows are first-writer-wins with identical content, so
// the merge is commutative for non-conflicting inputs. Conflicting fact
// content appends a correction.
func (t *Tables) Merge(other *Tables) {
	for uid, row := range other.Sources {
		if existing, ok := t.Sources[uid]; ok {
			mergeSeen(&existing.FirstSeenAt, &existing.LastSeenAt, row.FirstSeenAt, row.LastSeenAt)
			continue
		}
		t.Sources[uid] = row
	}
	for uid, row := range other.Competitions {
		if existing, ok := t.Competitions[uid]; ok {
			mergeSeen(&existing.FirstSeenAt, &existing.LastSeenAt, row.FirstSeenAt, row.LastSeenAt)
			continue
		}
		t.Competitions[uid] = row
	}
	for uid, row := range other.Teams {
		if existing, ok := t.Teams[uid]; ok {
			mergeSeen(&existing.FirstSeenAt, &existing.LastSeenAt, row.FirstSeenAt, row.LastSeenAt)
			existing.Aliases = unionSorted(existing.Aliases, row.Aliases)
			continue
		}
		t.Teams[uid] = row
	}
	for uid, row := range other.Players {
		if existing, ok := t.Players[uid]; ok {
			mergeSeen(&existing.FirstSeenAt, &existing.LastSeenAt, row.FirstSeenAt, row.LastSeenAt)
			existing.Aliases = unionSorted(existing.Aliases, row.Aliases)
			continue
		}
		t.Players[uid] = row
	}
	for uid, row := range other.Games {
		if _, ok := t.Games[uid]; !ok {
			t.Games[uid] = row
		}
	}
	for uid, row := range other.BoxScores {
		if _, ok := t.BoxScores[uid]; !ok {
			t.BoxScores[uid] = row
		}
	}
	for uid, row := range other.Rosters {
		if _, ok := t.Rosters[uid]; !ok {
			t.Rosters[uid] = row
		}
	}
	for uid, row := range other.Events {
		if _, ok := t.Events[uid]; !ok {
			t.Events[uid] = row
		}
	}
	t.Corrections = append(t.Corrections, other.Corrections...)
	t.ResolutionWarnings = append(t.ResolutionWarnings, other.ResolutionWarnings...)
}

// Encode renders the tables deterministically: rows sorted by uid, stable
// JSON field order. Two builds from identical inputs encode byte-identically.
func (t *Tables) Encode() ([]byte, error) {
	out := struct {
		Sources      []*SourceRow      `json:"sources"`
		Competitions []*CompetitionRow `json:"competitions"`
		Teams        []*TeamRow        `json:"teams"`
		Players      []*PlayerRow      `json:"players"`
		Games        []*GameRow        `json:"games"`
		BoxScores    []*BoxScoreRow    `json:"box_scores"`
		Rosters      []*RosterRow      `json:"rosters"`
		Events       []*EventRow       `json:"events"`
		Corrections  []*CorrectionRow  `json:"corrections"`
	}{
		Sources:      sortedValues(t.Sources, func(r *SourceRow) string { return r.UID }),
		Competitions: sortedValues(t.Competitions, func(r *CompetitionRow) string { return r.UID }),
		Teams:        sortedValues(t.Teams, func(r *TeamRow) string { return r.UID }),
		Players:      sortedValues(t.Players, func(r *PlayerRow) string { return r.UID }),
		Games:        sortedValues(t.Games, func(r *GameRow) string { return r.UID }),
		BoxScores:    sortedValues(t.BoxScores, func(r *BoxScoreRow) string { return r.UID }),
		Rosters:      sortedValues(t.Rosters, func(r *RosterRow) string { return r.UID }),
		Events:       sortedValues(t.Events, func(r *EventRow) string { return r.UID }),
		Corrections:  sortedCorrections(t.Corrections),
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// factUID derives a deterministic fact identifier from its content parts.
func factUID(prefix string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return prefix + "-" + hex.EncodeToString(sum[:8])
}

func mergeSeen(first, last *time.Time, otherFirst, otherLast time.Time) {
	if otherFirst.Before(*first) {
		*first = otherFirst
	}
	if otherLast.After(*last) {
		*last = otherLast
	}
}

func unionSorted(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func sortedValues[T any](m map[string]*T, uid func(*T) string) []*T {
	out := make([]*T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return uid(out[i]) < uid(out[j]) })
	return out
}

func sortedCorrections(in []*CorrectionRow) []*CorrectionRow {
	out := append([]*CorrectionRow(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}
