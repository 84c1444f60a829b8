// Package identity assigns stable identifiers to recurring real-world
// entities (players, teams, games) seen across sources and time.
//
// A uid is a pure function of normalized identity attributes, never of
// insertion order or wall-clock time, so re-ingesting the same inputs is
// idempotent and produces zero duplicate uids.
package identity

import (
	"strings"
	"unicode"
)

// schoolSuffixes are dropped from school names so that "Lincoln High",
// "Lincoln HS" and "Lincoln High School" all normalize to "lincoln".
var schoolSuffixes = map[string]bool{
	"hs":     true,
	"high":   true,
	"school": true,
	"shs":    true,
	"jshs":   true,
}

// nameSuffixes are generational suffixes dropped from person names.
var nameSuffixes = map[string]bool{
	"jr":  true,
	"sr":  true,
	"ii":  true,
	"iii": true,
	"iv":  true,
}

// NormalizeName lowercases, strips punctuation and generational suffixes,
// and collapses whitespace on a person or team name.
func NormalizeName(name string) string {
	tokens := tokenize(name)
	kept := tokens[:0]
	for _, tok := range tokens {
		if nameSuffixes[tok] {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// NormalizeSchool canonicalizes a school or club name, dropping the common
// institutional suffixes that vary between sources.
func NormalizeSchool(school string) string {
	tokens := tokenize(school)
	kept := tokens[:0]
	for _, tok := range tokens {
		if schoolSuffixes[tok] {
			continue
		}
		kept = append(kept, tok)
	}
	// A school named just "High School" would normalize to nothing; keep
	// the original tokens in that case.
	if len(kept) == 0 {
		return strings.Join(tokens, " ")
	}
	return strings.Join(kept, " ")
}

// NormalizeScope canonicalizes a free-form scope qualifier such as an
// organizer or season label.
func NormalizeScope(s string) string {
	return strings.Join(tokenize(s), " ")
}

// tokenize lowercases, replaces punctuation with spaces, and splits into
// non-empty tokens.
func tokenize(s string) []string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Fields(b.String())
}
