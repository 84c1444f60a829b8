package cache

import (
	"time"
)

// Entry represents one cached source document.
type Entry struct {
	// Body is the raw document body.
	Body []byte `json:"body"`

	// ETag for conditional requests (If-None-Match equivalent).
	ETag string `json:"etag,omitempty"`

	// LastModified is when the remote resource reported last changing
	// (If-Modified-Since equivalent).
	LastModified time.Time `json:"last_modified,omitempty"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`

	// FetchedAt is when the body was fetched from the source.
	FetchedAt time.Time `json:"fetched_at"`
}

// IsExpired returns true if the entry has passed its expiry.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration. Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// CanRevalidate reports whether the entry carries enough metadata for a
// conditional request.
func (e *Entry) CanRevalidate() bool {
	return e.ETag != "" || !e.LastModified.IsZero()
}

// Revalidator is the conditional-request metadata handed to a fetch function.
type Revalidator struct {
	ETag         string
	LastModified time.Time
}

// Revalidator extracts the conditional-request metadata from the entry.
func (e *Entry) Revalidator() Revalidator {
	return Revalidator{ETag: e.ETag, LastModified: e.LastModified}
}
