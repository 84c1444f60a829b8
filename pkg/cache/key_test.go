package cache

import (
	"net/url"
	"strings"
	"testing"
)

func TestKey_Deterministic(t *testing.T) {
	a := NewKey("https://stats.example.com/games", url.Values{
		"season": []string{"2025"},
		"level":  []string{"varsity"},
	})
	b := NewKey("https://stats.example.com/games", url.Values{
		"level":  []string{"varsity"},
		"season": []string{"2025"},
	})

	if a.String() != b.String() {
		t.Errorf("parameter order changed the key: %s vs %s", a.String(), b.String())
	}
}

func TestKey_DistinctRequestsDistinctKeys(t *testing.T) {
	base := NewKey("https://stats.example.com/games", url.Values{"season": []string{"2025"}})
	other := NewKey("https://stats.example.com/games", url.Values{"season": []string{"2024"}})
	noParams := NewKey("https://stats.example.com/games", nil)

	keys := map[string]bool{
		base.String():     true,
		other.String():    true,
		noParams.String(): true,
	}
	if len(keys) != 3 {
		t.Errorf("expected 3 distinct keys, got %d", len(keys))
	}
}

func TestKey_Prefix(t *testing.T) {
	k := NewKey("https://stats.example.com/teams", nil)
	if !strings.HasPrefix(k.String(), "statpipe:") {
		t.Errorf("key %s missing statpipe prefix", k.String())
	}
}

func TestKey_TrailingSlashNormalized(t *testing.T) {
	a := NewKey("https://stats.example.com/teams/", nil)
	b := NewKey("https://stats.example.com/teams", nil)

	if a.String() != b.String() {
		t.Error("trailing slash should not change the key")
	}
}
