package schema

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/courtdata/statpipe/pkg/identity"
)

var (
	recordsBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statpipe_schema_records_total",
		Help: "Raw records processed by the schema builder.",
	}, []string{"kind"})

	recordsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statpipe_schema_skipped_total",
		Help: "Raw records skipped because mandatory payload fields were missing.",
	}, []string{"kind", "reason"})

	factConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statpipe_schema_conflicts_total",
		Help: "Fact rows whose uid was re-observed with different content.",
	})
)

// Builder assembles raw record batches into canonical tables. Not safe for
// concurrent use; run one builder per goroutine and Merge the outputs.
type Builder struct {
	resolver *identity.Resolver
	log      zerolog.Logger
}

// NewBuilder returns a builder backed by the given resolver. Multiple
// builders may share one resolver; the resolver is safe for concurrent use.
func NewBuilder(resolver *identity.Resolver, logger zerolog.Logger) *Builder {
	if resolver == nil {
		panic("schema: resolver must not be nil")
	}
	return &Builder{
		resolver: resolver,
		log:      logger.With().Str("component", "schema").Logger(),
	}
}

// Build processes batches keyed by source and returns canonical tables.
// Source keys are visited in sorted order and records in slice order, so two
// builds from identical inputs produce byte-identical Encode output.
func (b *Builder) Build(batches map[string][]RawRecord) *Tables {
	tables := NewTables()

	keys := make([]string, 0, len(batches))
	for k := range batches {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		for _, rec := range batches[key] {
			b.build(tables, rec)
		}
	}

	tables.ResolutionWarnings = append(tables.ResolutionWarnings, b.resolver.DrainWarnings()...)
	return tables
}

func (b *Builder) build(t *Tables, rec RawRecord) {
	recordsBuilt.WithLabelValues(string(rec.Kind)).Inc()

	switch rec.Kind {
	case KindPlayer:
		b.buildPlayer(t, rec)
	case KindTeam:
		b.buildTeam(t, rec)
	case KindGame:
		b.buildGame(t, rec)
	case KindBoxScore:
		b.buildBoxScore(t, rec)
	case KindRoster:
		b.buildRoster(t, rec)
	case KindEvent:
		b.buildEvent(t, rec)
	default:
		recordsSkipped.WithLabelValues(string(rec.Kind), "unknown_kind").Inc()
		b.log.Warn().Str("kind", string(rec.Kind)).Str("source", rec.SourceKey).
			Msg("record kind not recognized")
	}
}

// touchSource upserts the source dimension row for a record and returns its
// uid for lineage stamping.
func (b *Builder) touchSource(t *Tables, rec RawRecord) string {
	uid := identity.UID(identity.KindSource, identity.Attributes{Name: rec.SourceKey})
	if row, ok := t.Sources[uid]; ok {
		touchSeen(&row.FirstSeenAt, &row.LastSeenAt, rec.FetchedAt)
		return uid
	}
	t.Sources[uid] = &SourceRow{
		UID:         uid,
		Key:         rec.SourceKey,
		Class:       NormalizeSourceClass(rec.Str("source_class")),
		FirstSeenAt: rec.FetchedAt,
		LastSeenAt:  rec.FetchedAt,
	}
	return uid
}

func (b *Builder) lineage(t *Tables, rec RawRecord) Lineage {
	return Lineage{
		SourceID:  b.touchSource(t, rec),
		SourceURL: rec.SourceURL,
		FetchedAt: rec.FetchedAt,
	}
}

func (b *Builder) buildPlayer(t *Tables, rec RawRecord) string {
	name := rec.Str("name")
	if name == "" {
		recordsSkipped.WithLabelValues(string(KindPlayer), "missing_name").Inc()
		return ""
	}
	b.touchSource(t, rec)

	attrs := identity.Attributes{
		Name:     name,
		School:   rec.Str("school"),
		GradYear: rec.Str("grad_year"),
	}
	uid := b.resolver.Resolve(identity.KindPlayer, attrs)

	if row, ok := t.Players[uid]; ok {
		touchSeen(&row.FirstSeenAt, &row.LastSeenAt, rec.FetchedAt)
		row.Aliases = unionSorted(row.Aliases, []string{name})
		fillIfEmpty(&row.School, rec.Str("school"))
		fillIfEmpty(&row.GradYear, rec.Str("grad_year"))
		if row.Gender == GenderUnknown {
			row.Gender = NormalizeGender(rec.Str("gender"))
		}
		return uid
	}
	t.Players[uid] = &PlayerRow{
		UID:         uid,
		Name:        name,
		School:      rec.Str("school"),
		GradYear:    rec.Str("grad_year"),
		Gender:      NormalizeGender(rec.Str("gender")),
		Aliases:     []string{name},
		FirstSeenAt: rec.FetchedAt,
		LastSeenAt:  rec.FetchedAt,
	}
	return uid
}

func (b *Builder) buildTeam(t *Tables, rec RawRecord) string {
	return b.teamFromFields(t, rec, rec.Str("name"), rec.Str("school"))
}

func (b *Builder) teamFromFields(t *Tables, rec RawRecord, name, school string) string {
	if name == "" {
		recordsSkipped.WithLabelValues(string(KindTeam), "missing_name").Inc()
		return ""
	}
	b.touchSource(t, rec)

	attrs := identity.Attributes{
		Name:      name,
		School:    school,
		Organizer: rec.Str("organizer"),
	}
	uid := b.resolver.Resolve(identity.KindTeam, attrs)

	if row, ok := t.Teams[uid]; ok {
		touchSeen(&row.FirstSeenAt, &row.LastSeenAt, rec.FetchedAt)
		row.Aliases = unionSorted(row.Aliases, []string{name})
		fillIfEmpty(&row.School, school)
		fillIfEmpty(&row.Organizer, rec.Str("organizer"))
		return uid
	}
	t.Teams[uid] = &TeamRow{
		UID:         uid,
		Name:        name,
		School:      school,
		Organizer:   rec.Str("organizer"),
		Level:       NormalizeLevel(rec.Str("level")),
		Gender:      NormalizeGender(rec.Str("gender")),
		Aliases:     []string{name},
		FirstSeenAt: rec.FetchedAt,
		LastSeenAt:  rec.FetchedAt,
	}
	return uid
}

func (b *Builder) buildCompetition(t *Tables, rec RawRecord) string {
	name := rec.Str("competition")
	if name == "" {
		return ""
	}
	attrs := identity.Attributes{
		Name:      name,
		Organizer: rec.Str("organizer"),
		Season:    rec.Str("season"),
	}
	uid := b.resolver.Resolve(identity.KindCompetition, attrs)

	if row, ok := t.Competitions[uid]; ok {
		touchSeen(&row.FirstSeenAt, &row.LastSeenAt, rec.FetchedAt)
		return uid
	}
	t.Competitions[uid] = &CompetitionRow{
		UID:         uid,
		Name:        name,
		Season:      rec.Str("season"),
		Level:       NormalizeLevel(rec.Str("level")),
		Gender:      NormalizeGender(rec.Str("gender")),
		Organizer:   rec.Str("organizer"),
		FirstSeenAt: rec.FetchedAt,
		LastSeenAt:  rec.FetchedAt,
	}
	return uid
}

// buildGame derives the game uid from the competition scope, the unordered
// team pair, and the date. Scores stay out of the uid: a score restated later
// maps to the same game, and a changed score appends corrections instead of
// minting a duplicate fact.
func (b *Builder) buildGame(t *Tables, rec RawRecord) {
	home := b.teamFromFields(t, rec, rec.Str("home_team"), "")
	away := b.teamFromFields(t, rec, rec.Str("away_team"), "")
	if home == "" || away == "" {
		recordsSkipped.WithLabelValues(string(KindGame), "missing_team").Inc()
		return
	}
	date := rec.Str("date")
	if date == "" {
		recordsSkipped.WithLabelValues(string(KindGame), "missing_date").Inc()
		return
	}
	compUID := b.buildCompetition(t, rec)
	uid := gameFactUID(compUID, home, away, date)

	homeScore, _ := rec.Int("home_score")
	awayScore, _ := rec.Int("away_score")
	round, _ := rec.Int("round")

	row := &GameRow{
		UID:            uid,
		CompetitionUID: compUID,
		HomeTeamUID:    home,
		AwayTeamUID:    away,
		PlayedOn:       date,
		HomeScore:      homeScore,
		AwayScore:      awayScore,
		Round:          round,
		Lineage:        b.lineage(t, rec),
	}
	if homeScore > awayScore {
		row.WinnerUID = home
	} else if awayScore > homeScore {
		row.WinnerUID = away
	}

	existing, ok := t.Games[uid]
	if !ok {
		t.Games[uid] = row
		return
	}
	b.correctGame(t, existing, row)
}

// correctGame compares a re-observed game against the stored fact and
// appends a correction per changed field. The stored row keeps its original
// content.
func (b *Builder) correctGame(t *Tables, old, observed *GameRow) {
	changes := []struct {
		field    string
		oldValue string
		newValue string
	}{
		{"home_score", strconv.Itoa(old.HomeScore), strconv.Itoa(observed.HomeScore)},
		{"away_score", strconv.Itoa(old.AwayScore), strconv.Itoa(observed.AwayScore)},
		{"round", strconv.Itoa(old.Round), strconv.Itoa(observed.Round)},
	}

	for _, c := range changes {
		if c.oldValue == c.newValue {
			continue
		}
		factConflicts.Inc()
		t.Corrections = append(t.Corrections, &CorrectionRow{
			UID:      factUID("correction", old.UID, c.field, c.oldValue, c.newValue),
			FactUID:  old.UID,
			Field:    c.field,
			OldValue: c.oldValue,
			NewValue: c.newValue,
			Lineage:  observed.Lineage,
		})
		b.log.Warn().
			Str("uid", old.UID).
			Str("field", c.field).
			Str("old", c.oldValue).
			Str("new", c.newValue).
			Msg("fact content conflict, correction appended")
	}
}

func (b *Builder) buildBoxScore(t *Tables, rec RawRecord) {
	playerRec := rec
	playerRec.Payload = map[string]any{
		"name":      rec.Str("player"),
		"school":    rec.Str("school"),
		"grad_year": rec.Str("grad_year"),
		"gender":    rec.Str("gender"),
	}
	playerUID := b.buildPlayer(t, playerRec)
	// "school" scopes the player; the team resolves by team_school so the
	// uid matches what a game record for the same team produces.
	teamUID := b.teamFromFields(t, rec, rec.Str("team"), rec.Str("team_school"))
	if playerUID == "" || teamUID == "" {
		recordsSkipped.WithLabelValues(string(KindBoxScore), "missing_identity").Inc()
		return
	}
	gameUID := b.gameUID(t, rec)

	points, _ := rec.Int("points")
	rebounds, _ := rec.Int("rebounds")
	assists, _ := rec.Int("assists")

	uid := factUID("boxscore", gameUID, playerUID)
	if _, ok := t.BoxScores[uid]; ok {
		return
	}
	t.BoxScores[uid] = &BoxScoreRow{
		UID:       uid,
		GameUID:   gameUID,
		PlayerUID: playerUID,
		TeamUID:   teamUID,
		Points:    points,
		Rebounds:  rebounds,
		Assists:   assists,
		Lineage:   b.lineage(t, rec),
	}
}

func (b *Builder) buildRoster(t *Tables, rec RawRecord) {
	playerRec := rec
	playerRec.Payload = map[string]any{
		"name":      rec.Str("player"),
		"school":    rec.Str("school"),
		"grad_year": rec.Str("grad_year"),
		"gender":    rec.Str("gender"),
	}
	playerUID := b.buildPlayer(t, playerRec)
	teamUID := b.teamFromFields(t, rec, rec.Str("team"), rec.Str("team_school"))
	if playerUID == "" || teamUID == "" {
		recordsSkipped.WithLabelValues(string(KindRoster), "missing_identity").Inc()
		return
	}
	season := rec.Str("season")

	uid := factUID("roster", teamUID, playerUID, season)
	if _, ok := t.Rosters[uid]; ok {
		return
	}
	t.Rosters[uid] = &RosterRow{
		UID:       uid,
		TeamUID:   teamUID,
		PlayerUID: playerUID,
		Season:    season,
		Jersey:    rec.Str("jersey"),
		Lineage:   b.lineage(t, rec),
	}
}

// gameUID links a dependent fact to its game: an explicit game_uid wins,
// otherwise the uid derives from the same fields a game record would hash.
func (b *Builder) gameUID(t *Tables, rec RawRecord) string {
	if uid := rec.Str("game_uid"); uid != "" {
		return uid
	}
	homeName, awayName, date := rec.Str("home_team"), rec.Str("away_team"), rec.Str("date")
	if homeName == "" || awayName == "" || date == "" {
		return ""
	}
	home := b.teamFromFields(t, rec, homeName, "")
	away := b.teamFromFields(t, rec, awayName, "")
	compUID := b.buildCompetition(t, rec)
	return gameFactUID(compUID, home, away, date)
}

// gameFactUID hashes the competition scope, the unordered team pair, and the
// date. Scores stay out on purpose.
func gameFactUID(compUID, home, away, date string) string {
	lo, hi := home, away
	if hi < lo {
		lo, hi = hi, lo
	}
	return factUID("game", compUID, lo, hi, date)
}

func (b *Builder) buildEvent(t *Tables, rec RawRecord) {
	gameUID := b.gameUID(t, rec)
	if gameUID == "" {
		recordsSkipped.WithLabelValues(string(KindEvent), "missing_game").Inc()
		return
	}
	period, _ := rec.Int("period")
	clock := rec.Str("clock")
	eventType := rec.Str("event_type")

	var playerUID string
	if name := rec.Str("player"); name != "" {
		playerRec := rec
		playerRec.Payload = map[string]any{
			"name":   name,
			"school": rec.Str("school"),
		}
		playerUID = b.buildPlayer(t, playerRec)
	}

	uid := factUID("event", gameUID, fmt.Sprintf("%d", period), clock, eventType, playerUID)
	if _, ok := t.Events[uid]; ok {
		return
	}
	t.Events[uid] = &EventRow{
		UID:       uid,
		GameUID:   gameUID,
		Period:    period,
		Clock:     clock,
		EventType: eventType,
		PlayerUID: playerUID,
		Lineage:   b.lineage(t, rec),
	}
}

func touchSeen(first, last *time.Time, at time.Time) {
	if at.IsZero() {
		return
	}
	if first.IsZero() || at.Before(*first) {
		*first = at
	}
	if at.After(*last) {
		*last = at
	}
}

func fillIfEmpty(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}
