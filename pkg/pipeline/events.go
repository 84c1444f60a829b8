package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/courtdata/statpipe/pkg/schema"
)

func init() {
	Register("events", func(baseURL string) Adapter {
		return &eventsAdapter{baseURL: baseURL}
	})
}

// eventsAdapter reads the generic events feed: one JSON document per season
// with games and per-player stat lines.
type eventsAdapter struct {
	baseURL string
}

// eventsFeed is the feed's wire format.
type eventsFeed struct {
	Competition string `json:"competition"`
	Organizer   string `json:"organizer"`
	Season      string `json:"season"`
	Level       string `json:"level"`
	Gender      string `json:"gender"`
	Games       []struct {
		HomeTeam  string `json:"home_team"`
		AwayTeam  string `json:"away_team"`
		HomeScore int    `json:"home_score"`
		AwayScore int    `json:"away_score"`
		Date      string `json:"date"`
		Round     int    `json:"round,omitempty"`
		Stats     []struct {
			Player   string `json:"player"`
			Team     string `json:"team"`
			School   string `json:"school,omitempty"`
			GradYear string `json:"grad_year,omitempty"`
			Points   int    `json:"points"`
			Rebounds int    `json:"rebounds"`
			Assists  int    `json:"assists"`
		} `json:"stats,omitempty"`
	} `json:"games"`
}

func (a *eventsAdapter) SourceKey() string { return "events" }

func (a *eventsAdapter) Jobs(seasons []string) []Job {
	jobs := make([]Job, 0, len(seasons))
	for _, season := range seasons {
		jobs = append(jobs, Job{
			URL:  fmt.Sprintf("%s/seasons/%s/events.json", a.baseURL, season),
			Kind: schema.KindGame,
		})
	}
	return jobs
}

func (a *eventsAdapter) Parse(job Job, body []byte) ([]schema.RawRecord, error) {
	var feed eventsFeed
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("decode events feed: %w", err)
	}

	now := time.Now().UTC()
	var records []schema.RawRecord

	for _, g := range feed.Games {
		records = append(records, schema.RawRecord{
			Kind:      schema.KindGame,
			SourceKey: a.SourceKey(),
			SourceURL: job.URL,
			FetchedAt: now,
			Payload: map[string]any{
				"home_team":   g.HomeTeam,
				"away_team":   g.AwayTeam,
				"home_score":  g.HomeScore,
				"away_score":  g.AwayScore,
				"date":        g.Date,
				"round":       g.Round,
				"competition": feed.Competition,
				"organizer":   feed.Organizer,
				"season":      feed.Season,
				"level":       feed.Level,
				"gender":      feed.Gender,
			},
		})
		for _, st := range g.Stats {
			records = append(records, schema.RawRecord{
				Kind:      schema.KindBoxScore,
				SourceKey: a.SourceKey(),
				SourceURL: job.URL,
				FetchedAt: now,
				Payload: map[string]any{
					"player":    st.Player,
					"team":      st.Team,
					"school":    st.School,
					"grad_year": st.GradYear,
					"gender":    feed.Gender,
					"points":    st.Points,
					"rebounds":  st.Rebounds,
					"assists":   st.Assists,
					// Game-identifying fields so the stat line links to
					// the same game uid the game record produces.
					"home_team":   g.HomeTeam,
					"away_team":   g.AwayTeam,
					"date":        g.Date,
					"competition": feed.Competition,
					"organizer":   feed.Organizer,
					"season":      feed.Season,
					"level":       feed.Level,
				},
			})
		}
	}
	return records, nil
}
