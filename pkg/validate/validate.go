// Package validate runs consistency checks over canonical tables and folds
// the findings into a bounded health score.
//
// Errors weigh 0.10 and warnings 0.05 against a starting score of 1.0,
// clamped to [0, 1]. A table set is healthy at 0.70 or above. The score is
// computed on an integer basis so the healthy boundary compares exactly.
package validate

import (
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/courtdata/statpipe/pkg/schema"
)

// HealthyThreshold is the minimum health score considered fit to publish.
const HealthyThreshold = 0.70

// Severity classifies a finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

var (
	checksRun = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statpipe_validate_checks_total",
		Help: "Validation checks executed.",
	}, []string{"check"})

	issuesFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statpipe_validate_issues_total",
		Help: "Validation issues found.",
	}, []string{"check", "severity"})

	healthScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "statpipe_validate_health_score",
		Help: "Health score of the most recent validation run.",
	})
)

// Issue is one validation finding.
type Issue struct {
	Check    string   `json:"check"`
	Severity Severity `json:"severity"`
	UID      string   `json:"uid,omitempty"`
	Message  string   `json:"message"`
}

// Report is the outcome of one validation run.
type Report struct {
	Issues       []Issue `json:"issues"`
	ErrorCount   int     `json:"error_count"`
	WarningCount int     `json:"warning_count"`
	HealthScore  float64 `json:"health_score"`
}

// Healthy reports whether the tables meet the publication threshold.
func (r *Report) Healthy() bool {
	return r.HealthScore >= HealthyThreshold
}

type check struct {
	name string
	run  func(*schema.Tables, *Report)
}

// Validator runs the full check suite over a table set.
type Validator struct {
	log    zerolog.Logger
	checks []check
}

// New returns a validator with the standard check suite.
func New(logger zerolog.Logger) *Validator {
	v := &Validator{log: logger.With().Str("component", "validate").Logger()}
	v.checks = []check{
		{"duplicate_uids", checkDuplicateUIDs},
		{"self_play", checkSelfPlay},
		{"negative_values", checkNegativeValues},
		{"plausible_bounds", checkPlausibleBounds},
		{"winner_consistency", checkWinnerConsistency},
		{"round_structure", checkRoundStructure},
		{"dangling_references", checkDanglingReferences},
		{"lineage", checkLineage},
		{"vocabulary", checkVocabulary},
		{"ambiguous_identities", checkAmbiguousIdentities},
	}
	return v
}

// Validate runs every check and returns the report. Tables are never
// mutated; publishing gates on Report.Healthy, not on the validator.
func (v *Validator) Validate(t *schema.Tables) *Report {
	report := &Report{}
	for _, c := range v.checks {
		checksRun.WithLabelValues(c.name).Inc()
		c.run(t, report)
	}

	for _, issue := range report.Issues {
		issuesFound.WithLabelValues(issue.Check, string(issue.Severity)).Inc()
		if issue.Severity == SeverityError {
			report.ErrorCount++
		} else {
			report.WarningCount++
		}
	}

	// Integer centipoints keep the 0.70 boundary exact.
	points := 100 - 10*report.ErrorCount - 5*report.WarningCount
	if points < 0 {
		points = 0
	}
	report.HealthScore = float64(points) / 100
	healthScore.Set(report.HealthScore)

	v.log.Info().
		Int("errors", report.ErrorCount).
		Int("warnings", report.WarningCount).
		Float64("health_score", report.HealthScore).
		Bool("healthy", report.Healthy()).
		Msg("validation complete")
	return report
}

// Scores and stat lines beyond these bounds are parse artifacts, not results.
// The regulation record book tops out well below either value.
const (
	maxTeamScore = 250
	maxStatValue = 150
)

func addIssue(r *Report, check string, sev Severity, uid, msg string) {
	r.Issues = append(r.Issues, Issue{Check: check, Severity: sev, UID: uid, Message: msg})
}

// checkDuplicateUIDs flags a uid shared by two fact rows. Each fact map is
// keyed by uid and builder uids carry a kind prefix, so this guards the
// cross-kind case where an adapter supplies its own colliding uids.
func checkDuplicateUIDs(t *schema.Tables, r *Report) {
	seen := make(map[string]string, len(t.Games)+len(t.BoxScores)+len(t.Rosters)+len(t.Events))
	note := func(uid, kind string) {
		if prev, ok := seen[uid]; ok {
			addIssue(r, "duplicate_uids", SeverityError, uid,
				fmt.Sprintf("uid shared by %s and %s fact rows", prev, kind))
			return
		}
		seen[uid] = kind
	}
	for uid := range t.Games {
		note(uid, "game")
	}
	for uid := range t.BoxScores {
		note(uid, "boxscore")
	}
	for uid := range t.Rosters {
		note(uid, "roster")
	}
	for uid := range t.Events {
		note(uid, "event")
	}
}

// checkSelfPlay flags games where a team plays itself. These come from
// identity over-merging, not from the source data.
func checkSelfPlay(t *schema.Tables, r *Report) {
	for uid, g := range t.Games {
		if g.HomeTeamUID != "" && g.HomeTeamUID == g.AwayTeamUID {
			addIssue(r, "self_play", SeverityError, uid, "home and away resolve to the same team")
		}
	}
}

// checkNegativeValues flags scores and stat lines below zero.
func checkNegativeValues(t *schema.Tables, r *Report) {
	for uid, g := range t.Games {
		if g.HomeScore < 0 || g.AwayScore < 0 {
			addIssue(r, "negative_values", SeverityError, uid,
				fmt.Sprintf("negative score %d-%d", g.HomeScore, g.AwayScore))
		}
	}
	for uid, bs := range t.BoxScores {
		if bs.Points < 0 || bs.Rebounds < 0 || bs.Assists < 0 {
			addIssue(r, "negative_values", SeverityError, uid, "negative stat line")
		}
	}
}

// checkPlausibleBounds flags scores and stat lines above any result a real
// game could produce.
func checkPlausibleBounds(t *schema.Tables, r *Report) {
	for uid, g := range t.Games {
		if g.HomeScore > maxTeamScore || g.AwayScore > maxTeamScore {
			addIssue(r, "plausible_bounds", SeverityError, uid,
				fmt.Sprintf("implausible score %d-%d", g.HomeScore, g.AwayScore))
		}
	}
	for uid, bs := range t.BoxScores {
		if bs.Points > maxStatValue || bs.Rebounds > maxStatValue || bs.Assists > maxStatValue {
			addIssue(r, "plausible_bounds", SeverityError, uid, "implausible stat line")
		}
	}
}

// checkWinnerConsistency verifies a claimed winner against the score: the
// winner must be one of the two teams and must strictly outscore the other.
func checkWinnerConsistency(t *schema.Tables, r *Report) {
	for uid, g := range t.Games {
		switch g.WinnerUID {
		case "":
		case g.HomeTeamUID:
			if g.HomeScore <= g.AwayScore {
				addIssue(r, "winner_consistency", SeverityError, uid,
					fmt.Sprintf("home team claimed as winner of %d-%d", g.HomeScore, g.AwayScore))
			}
		case g.AwayTeamUID:
			if g.AwayScore <= g.HomeScore {
				addIssue(r, "winner_consistency", SeverityError, uid,
					fmt.Sprintf("away team claimed as winner of %d-%d", g.HomeScore, g.AwayScore))
			}
		default:
			addIssue(r, "winner_consistency", SeverityError, uid, "winner uid matches neither team")
		}
	}
}

// checkRoundStructure verifies that game counts never grow from one round to
// the next within a competition. An elimination bracket halves each round;
// a later round holding more games than an earlier one means rounds were
// misparsed. Warning severity: some feeds use round as a league matchday,
// where counts are a quality signal rather than an integrity failure.
func checkRoundStructure(t *schema.Tables, r *Report) {
	perRound := make(map[string]map[int]int)
	for _, g := range t.Games {
		if g.Round <= 0 || g.CompetitionUID == "" {
			continue
		}
		if perRound[g.CompetitionUID] == nil {
			perRound[g.CompetitionUID] = make(map[int]int)
		}
		perRound[g.CompetitionUID][g.Round]++
	}
	for compUID, counts := range perRound {
		rounds := make([]int, 0, len(counts))
		for round := range counts {
			rounds = append(rounds, round)
		}
		sort.Ints(rounds)
		for i := 1; i < len(rounds); i++ {
			prev, cur := rounds[i-1], rounds[i]
			if counts[cur] > counts[prev] {
				addIssue(r, "round_structure", SeverityWarning, compUID,
					fmt.Sprintf("round %d holds %d games, round %d held %d",
						cur, counts[cur], prev, counts[prev]))
			}
		}
	}
}

// checkDanglingReferences flags fact rows pointing at uids with no dimension
// row.
func checkDanglingReferences(t *schema.Tables, r *Report) {
	for uid, g := range t.Games {
		if _, ok := t.Teams[g.HomeTeamUID]; g.HomeTeamUID != "" && !ok {
			addIssue(r, "dangling_references", SeverityError, uid, "home team uid has no dimension row")
		}
		if _, ok := t.Teams[g.AwayTeamUID]; g.AwayTeamUID != "" && !ok {
			addIssue(r, "dangling_references", SeverityError, uid, "away team uid has no dimension row")
		}
		if _, ok := t.Competitions[g.CompetitionUID]; g.CompetitionUID != "" && !ok {
			addIssue(r, "dangling_references", SeverityError, uid, "competition uid has no dimension row")
		}
	}
	for uid, bs := range t.BoxScores {
		if _, ok := t.Players[bs.PlayerUID]; bs.PlayerUID != "" && !ok {
			addIssue(r, "dangling_references", SeverityError, uid, "player uid has no dimension row")
		}
		if _, ok := t.Teams[bs.TeamUID]; bs.TeamUID != "" && !ok {
			addIssue(r, "dangling_references", SeverityError, uid, "team uid has no dimension row")
		}
		if _, ok := t.Games[bs.GameUID]; bs.GameUID != "" && !ok {
			addIssue(r, "dangling_references", SeverityWarning, uid, "game uid has no fact row")
		}
	}
	for uid, ro := range t.Rosters {
		if _, ok := t.Teams[ro.TeamUID]; ro.TeamUID != "" && !ok {
			addIssue(r, "dangling_references", SeverityError, uid, "team uid has no dimension row")
		}
		if _, ok := t.Players[ro.PlayerUID]; ro.PlayerUID != "" && !ok {
			addIssue(r, "dangling_references", SeverityError, uid, "player uid has no dimension row")
		}
	}
}

// checkLineage flags fact rows missing source, url, or fetch time.
func checkLineage(t *schema.Tables, r *Report) {
	for uid, g := range t.Games {
		if !g.Lineage.Complete() {
			addIssue(r, "lineage", SeverityWarning, uid, "incomplete lineage")
		}
	}
	for uid, bs := range t.BoxScores {
		if !bs.Lineage.Complete() {
			addIssue(r, "lineage", SeverityWarning, uid, "incomplete lineage")
		}
	}
	for uid, ro := range t.Rosters {
		if !ro.Lineage.Complete() {
			addIssue(r, "lineage", SeverityWarning, uid, "incomplete lineage")
		}
	}
	for uid, ev := range t.Events {
		if !ev.Lineage.Complete() {
			addIssue(r, "lineage", SeverityWarning, uid, "incomplete lineage")
		}
	}
}

// checkVocabulary flags dimension rows whose categorical fields fell back to
// unknown.
func checkVocabulary(t *schema.Tables, r *Report) {
	for uid, c := range t.Competitions {
		if c.Gender == schema.GenderUnknown {
			addIssue(r, "vocabulary", SeverityWarning, uid, "competition gender unknown")
		}
		if c.Level == schema.LevelUnknown {
			addIssue(r, "vocabulary", SeverityWarning, uid, "competition level unknown")
		}
	}
}

// checkAmbiguousIdentities surfaces fuzzy merges that had more than one
// candidate above threshold.
func checkAmbiguousIdentities(t *schema.Tables, r *Report) {
	for _, w := range t.ResolutionWarnings {
		addIssue(r, "ambiguous_identities", SeverityWarning, w.MergedInto,
			fmt.Sprintf("%q matched %d candidates above threshold", w.Name, w.Candidates))
	}
}
