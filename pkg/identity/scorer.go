package identity

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Scorer scores the similarity of two normalized names on [0, 1], where 1
// means identical. The matching policy is swappable: the resolver only
// depends on this interface and a threshold.
type Scorer interface {
	Score(a, b string) float64
}

// DefaultThreshold is the conservative default similarity threshold. It
// favors precision over recall: a missed merge only splits one player's
// stats, a wrong merge corrupts two players'.
const DefaultThreshold = 0.85

// NameScorer is the default token-aware scorer. The surname carries most of
// the weight; given names match on prefix so that short forms ("Jon") merge
// with their long forms ("Jonathan") while distinct surnames ("Smith" vs
// "Smythe") stay apart.
type NameScorer struct{}

const (
	surnameWeight = 0.6
	givenWeight   = 0.4
)

// Score implements Scorer.
func (NameScorer) Score(a, b string) float64 {
	if a == b {
		return 1.0
	}

	aTokens := strings.Fields(a)
	bTokens := strings.Fields(b)
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0
	}

	// Single-token names fall back to the plain edit ratio.
	if len(aTokens) == 1 || len(bTokens) == 1 {
		return ratio(a, b)
	}

	surname := ratio(aTokens[len(aTokens)-1], bTokens[len(bTokens)-1])
	given := givenScore(aTokens[:len(aTokens)-1], bTokens[:len(bTokens)-1])

	return surnameWeight*surname + givenWeight*given
}

// givenScore compares the leading (given-name) tokens pairwise. A prefix
// relationship counts as a full match.
func givenScore(a, b []string) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}

	total := 0.0
	for i := 0; i < n; i++ {
		if strings.HasPrefix(a[i], b[i]) || strings.HasPrefix(b[i], a[i]) {
			total += 1.0
			continue
		}
		total += ratio(a[i], b[i])
	}
	return total / float64(n)
}

// ratio is the Levenshtein similarity ratio: 1 - distance/maxLen.
func ratio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(maxLen)
}
