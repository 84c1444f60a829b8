package cache

import (
	"testing"
	"time"
)

func TestEntry_IsExpired(t *testing.T) {
	fresh := &Entry{Expires: time.Now().Add(time.Minute)}
	if fresh.IsExpired() {
		t.Error("entry expiring in a minute should not be expired")
	}

	stale := &Entry{Expires: time.Now().Add(-time.Minute)}
	if !stale.IsExpired() {
		t.Error("entry that expired a minute ago should be expired")
	}
}

func TestEntry_TTL(t *testing.T) {
	e := &Entry{Expires: time.Now().Add(time.Minute)}
	ttl := e.TTL()
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want (0, 1m]", ttl)
	}

	expired := &Entry{Expires: time.Now().Add(-time.Second)}
	if expired.TTL() != 0 {
		t.Errorf("expired TTL = %v, want 0", expired.TTL())
	}
}

func TestEntry_CanRevalidate(t *testing.T) {
	tests := []struct {
		name     string
		entry    Entry
		expected bool
	}{
		{"etag only", Entry{ETag: `"abc"`}, true},
		{"last modified only", Entry{LastModified: time.Now()}, true},
		{"both", Entry{ETag: `"abc"`, LastModified: time.Now()}, true},
		{"neither", Entry{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.CanRevalidate(); got != tt.expected {
				t.Errorf("CanRevalidate() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestEntry_Revalidator(t *testing.T) {
	lastMod := time.Now().Add(-time.Hour)
	e := &Entry{ETag: `"v7"`, LastModified: lastMod}

	rev := e.Revalidator()
	if rev.ETag != `"v7"` {
		t.Errorf("ETag = %s, want \"v7\"", rev.ETag)
	}
	if !rev.LastModified.Equal(lastMod) {
		t.Errorf("LastModified = %v, want %v", rev.LastModified, lastMod)
	}
}
