package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for identity resolution.
var (
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statpipe_identity_resolutions_total",
		Help: "Total resolutions by kind and path (exact, fuzzy, minted)",
	}, []string{"kind", "path"})

	ambiguousTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statpipe_identity_ambiguous_total",
		Help: "Total fuzzy resolutions with multiple candidates above threshold",
	})
)

// Kind is the entity kind being resolved.
type Kind string

const (
	KindSource      Kind = "source"
	KindCompetition Kind = "competition"
	KindTeam        Kind = "team"
	KindPlayer      Kind = "player"
	KindGame        Kind = "game"
)

// Attributes are the identity attributes of one entity observation. Only the
// fields relevant to the kind need to be set.
type Attributes struct {
	// Name is the entity's surface name.
	Name string

	// School scopes players to a school or club.
	School string

	// GradYear scopes players to a graduation year or level.
	GradYear string

	// Organizer scopes teams and games to an organizing event, so the
	// same team name under two organizers stays two entities.
	Organizer string

	// Season scopes competitions and games.
	Season string
}

// normalized returns a copy with every field canonicalized.
func (a Attributes) normalized() Attributes {
	return Attributes{
		Name:      NormalizeName(a.Name),
		School:    NormalizeSchool(a.School),
		GradYear:  NormalizeScope(a.GradYear),
		Organizer: NormalizeScope(a.Organizer),
		Season:    NormalizeScope(a.Season),
	}
}

// compositeKey renders the normalized attributes as the exact-match key.
func (a Attributes) compositeKey(kind Kind) string {
	return strings.Join([]string{
		string(kind), a.Name, a.School, a.GradYear, a.Organizer, a.Season,
	}, "|")
}

// scopeKey groups entities that are allowed to fuzzy-match each other:
// everything but the name.
func (a Attributes) scopeKey(kind Kind) string {
	return strings.Join([]string{
		string(kind), a.School, a.GradYear, a.Organizer, a.Season,
	}, "|")
}

// UID derives the deterministic identifier for normalized attributes. It
// depends only on the kind and the normalized identity fields.
func UID(kind Kind, attrs Attributes) string {
	sum := sha256.Sum256([]byte(attrs.compositeKey(kind)))
	return string(kind) + "-" + hex.EncodeToString(sum[:8])
}

// Warning records an ambiguous fuzzy match that was resolved deterministically
// rather than silently dropped.
type Warning struct {
	Kind       Kind
	Name       string
	MergedInto string
	Candidates int
	BestScore  float64
}

// record is the resolver's view of one known entity.
type record struct {
	uid     string
	attrs   Attributes
	aliases map[string]struct{}
	seq     uint64
}

// Resolver resolves entity observations to stable uids. Exact key lookup is
// the fast path; spelling-variance-prone kinds (players, teams) fall back to
// scoped fuzzy matching. Safe for concurrent use.
type Resolver struct {
	mu       sync.RWMutex
	byKey    map[string]*record
	byScope  map[string][]*record
	warnings []Warning
	seq      uint64

	scorer    Scorer
	threshold float64
	logger    zerolog.Logger
}

// Config holds resolver configuration.
type Config struct {
	// Scorer is the similarity scorer; nil selects NameScorer.
	Scorer Scorer

	// Threshold is the minimum similarity for a fuzzy merge; zero selects
	// DefaultThreshold.
	Threshold float64
}

// NewResolver creates a resolver.
func NewResolver(cfg Config, logger zerolog.Logger) *Resolver {
	scorer := cfg.Scorer
	if scorer == nil {
		scorer = NameScorer{}
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	return &Resolver{
		byKey:     make(map[string]*record),
		byScope:   make(map[string][]*record),
		scorer:    scorer,
		threshold: threshold,
		logger:    logger,
	}
}

// fuzzyKinds are the kinds prone to spelling variance across sources.
func fuzzyKind(kind Kind) bool {
	return kind == KindPlayer || kind == KindTeam
}

// Resolve returns the stable uid for the observation, minting one when no
// prior entity matches. Calling it twice with identical attributes returns
// the same uid.
func (r *Resolver) Resolve(kind Kind, attrs Attributes) string {
	norm := attrs.normalized()
	key := norm.compositeKey(kind)

	// Fast path: prior entity with the identical composite key.
	r.mu.RLock()
	rec, ok := r.byKey[key]
	r.mu.RUnlock()
	if ok {
		r.touch(rec)
		resolutionsTotal.WithLabelValues(string(kind), "exact").Inc()
		return rec.uid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the write lock: another batch may have resolved the
	// same observation meanwhile.
	if rec, ok := r.byKey[key]; ok {
		rec.seq = r.nextSeq()
		resolutionsTotal.WithLabelValues(string(kind), "exact").Inc()
		return rec.uid
	}

	if fuzzyKind(kind) {
		if rec := r.fuzzyMatch(kind, norm); rec != nil {
			// Union the new surface form as an alias and index the new
			// key so the next sighting takes the fast path.
			rec.aliases[norm.Name] = struct{}{}
			rec.seq = r.nextSeq()
			r.byKey[key] = rec
			resolutionsTotal.WithLabelValues(string(kind), "fuzzy").Inc()
			return rec.uid
		}
	}

	uid := UID(kind, norm)
	rec = &record{
		uid:     uid,
		attrs:   norm,
		aliases: map[string]struct{}{norm.Name: {}},
		seq:     r.nextSeq(),
	}
	r.byKey[key] = rec
	scope := norm.scopeKey(kind)
	r.byScope[scope] = append(r.byScope[scope], rec)
	resolutionsTotal.WithLabelValues(string(kind), "minted").Inc()

	return uid
}

// fuzzyMatch finds the best-scoring prior entity in the same disambiguating
// scope. Multiple candidates above threshold resolve to the single best
// score, ties broken by most-recently-seen, and the ambiguity is recorded as
// a warning. Caller holds the write lock.
func (r *Resolver) fuzzyMatch(kind Kind, norm Attributes) *record {
	candidates := r.byScope[norm.scopeKey(kind)]
	if len(candidates) == 0 {
		return nil
	}

	var best *record
	bestScore := 0.0
	above := 0

	for _, cand := range candidates {
		score := r.scoreAgainst(cand, norm.Name)
		if score < r.threshold {
			continue
		}
		above++
		switch {
		case score > bestScore:
			best, bestScore = cand, score
		case score == bestScore && best != nil && cand.seq > best.seq:
			best = cand
		}
	}

	if best == nil {
		return nil
	}

	if above > 1 {
		ambiguousTotal.Inc()
		r.warnings = append(r.warnings, Warning{
			Kind:       kind,
			Name:       norm.Name,
			MergedInto: best.uid,
			Candidates: above,
			BestScore:  bestScore,
		})
		r.logger.Warn().
			Str("kind", string(kind)).
			Str("name", norm.Name).
			Str("uid", best.uid).
			Int("candidates", above).
			Float64("score", bestScore).
			Msg("Ambiguous identity match resolved to best candidate")
	}

	return best
}

// scoreAgainst scores a name against a record's primary name and aliases,
// keeping the best.
func (r *Resolver) scoreAgainst(rec *record, name string) float64 {
	best := r.scorer.Score(rec.attrs.Name, name)
	for alias := range rec.aliases {
		if s := r.scorer.Score(alias, name); s > best {
			best = s
		}
	}
	return best
}

// touch bumps the recency of a record under the write lock.
func (r *Resolver) touch(rec *record) {
	r.mu.Lock()
	rec.seq = r.nextSeq()
	r.mu.Unlock()
}

// nextSeq issues the next recency sequence number. Caller holds the write
// lock.
func (r *Resolver) nextSeq() uint64 {
	r.seq++
	return r.seq
}

// Aliases returns the known surface forms for a uid.
func (r *Resolver) Aliases(uid string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rec := range r.byKey {
		if rec.uid != uid {
			continue
		}
		aliases := make([]string, 0, len(rec.aliases))
		for a := range rec.aliases {
			aliases = append(aliases, a)
		}
		return aliases
	}
	return nil
}

// DrainWarnings returns the accumulated ambiguity warnings and clears them.
// The schema builder folds these into the batch validation report.
func (r *Resolver) DrainWarnings() []Warning {
	r.mu.Lock()
	defer r.mu.Unlock()

	warnings := r.warnings
	r.warnings = nil
	return warnings
}

// Size returns the number of distinct entities known to the resolver.
func (r *Resolver) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uids := make(map[string]struct{}, len(r.byKey))
	for _, rec := range r.byKey {
		uids[rec.uid] = struct{}{}
	}
	return len(uids)
}
