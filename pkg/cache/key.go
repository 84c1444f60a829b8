package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached document. The string form is a hash of the request
// URL plus sorted parameters, so the same logical request always maps to the
// same entry regardless of parameter order.
type Key struct {
	// URL is the request URL without query parameters.
	URL string

	// Params are the request query parameters.
	Params url.Values
}

// NewKey builds a key from a URL and optional parameters.
func NewKey(rawURL string, params url.Values) Key {
	return Key{URL: rawURL, Params: params}
}

// String returns the deterministic store key.
// Format: statpipe:<sha256 of canonical request>
func (k Key) String() string {
	sum := sha256.Sum256([]byte(k.canonical()))
	return "statpipe:" + hex.EncodeToString(sum[:])
}

// canonical renders the request in a stable textual form: trimmed URL
// followed by parameters sorted by name.
func (k Key) canonical() string {
	parts := []string{strings.TrimRight(k.URL, "/")}

	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			values := append([]string(nil), k.Params[name]...)
			sort.Strings(values)
			for _, v := range values {
				parts = append(parts, fmt.Sprintf("%s=%s", name, v))
			}
		}
	}

	return strings.Join(parts, ":")
}
