// Package schema assembles per-source raw record batches into canonical
// dimension and fact tables with lineage.
//
// Building is deterministic: two builds from identical input batches produce
// byte-identical tables, with zero duplicate uids and zero duplicate fact
// rows. Tables from concurrent builds merge by uid after each build
// completes; the merge is commutative.
package schema

import (
	"fmt"
	"strconv"
	"time"
)

// EntityKind classifies a raw record.
type EntityKind string

const (
	KindPlayer   EntityKind = "player"
	KindTeam     EntityKind = "team"
	KindGame     EntityKind = "game"
	KindBoxScore EntityKind = "boxscore"
	KindRoster   EntityKind = "roster"
	KindEvent    EntityKind = "event"
)

// RawRecord is one entity observation from one source, as emitted by an
// adapter. Immutable once emitted. SourceURL and FetchedAt are the adapter's
// only obligations beyond the payload.
type RawRecord struct {
	Kind      EntityKind     `json:"kind"`
	SourceKey string         `json:"source_key"`
	SourceURL string         `json:"source_url"`
	FetchedAt time.Time      `json:"fetched_at"`
	Payload   map[string]any `json:"payload"`
}

// Str returns a payload field as a string, tolerating numeric values.
func (r RawRecord) Str(key string) string {
	v, ok := r.Payload[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Int returns a payload field as an int. Missing or unparsable fields
// return ok=false.
func (r RawRecord) Int(key string) (int, bool) {
	v, ok := r.Payload[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Lineage is the audit trail carried by every fact row.
type Lineage struct {
	SourceID  string    `json:"source_id"`
	SourceURL string    `json:"source_url"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Complete reports whether all mandatory lineage fields are present.
func (l Lineage) Complete() bool {
	return l.SourceID != "" && l.SourceURL != "" && !l.FetchedAt.IsZero()
}
