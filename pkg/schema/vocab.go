package schema

import "strings"

// Canonical categorical values. Sources disagree on surface forms; every
// categorical field passes through a fixed vocabulary before it reaches a
// canonical row.

const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderUnknown = "unknown"
)

var genderVocab = map[string]string{
	"m":      GenderMale,
	"male":   GenderMale,
	"men":    GenderMale,
	"mens":   GenderMale,
	"boys":   GenderMale,
	"b":      GenderMale,
	"f":      GenderFemale,
	"female": GenderFemale,
	"w":      GenderFemale,
	"women":  GenderFemale,
	"womens": GenderFemale,
	"girls":  GenderFemale,
	"g":      GenderFemale,
}

// NormalizeGender maps a source gender label to the canonical vocabulary.
func NormalizeGender(s string) string {
	if v, ok := genderVocab[vocabKey(s)]; ok {
		return v
	}
	return GenderUnknown
}

const (
	LevelVarsity       = "varsity"
	LevelJuniorVarsity = "junior_varsity"
	LevelFreshman      = "freshman"
	LevelClub          = "club"
	LevelUnknown       = "unknown"
)

var levelVocab = map[string]string{
	"varsity":        LevelVarsity,
	"var":            LevelVarsity,
	"v":              LevelVarsity,
	"jv":             LevelJuniorVarsity,
	"junior varsity": LevelJuniorVarsity,
	"freshman":       LevelFreshman,
	"frosh":          LevelFreshman,
	"fresh":          LevelFreshman,
	"club":           LevelClub,
	"aau":            LevelClub,
	"travel":         LevelClub,
}

// NormalizeLevel maps a source competition level to the canonical vocabulary.
// Age-group labels like "17U" pass through lowercased.
func NormalizeLevel(s string) string {
	key := vocabKey(s)
	if v, ok := levelVocab[key]; ok {
		return v
	}
	if key == "" {
		return LevelUnknown
	}
	if isAgeGroup(key) {
		return key
	}
	return LevelUnknown
}

// isAgeGroup matches labels like "17u" or "u16".
func isAgeGroup(s string) bool {
	if len(s) < 2 || len(s) > 3 {
		return false
	}
	if s[len(s)-1] == 'u' {
		s = s[:len(s)-1]
	} else if s[0] == 'u' {
		s = s[1:]
	} else {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

const (
	SourceClassSchool     = "school"
	SourceClassClub       = "club"
	SourceClassEvent      = "event"
	SourceClassMedia      = "media"
	SourceClassAggregator = "aggregator"
	SourceClassUnknown    = "unknown"
)

var sourceClassVocab = map[string]string{
	"school":     SourceClassSchool,
	"club":       SourceClassClub,
	"aau":        SourceClassClub,
	"event":      SourceClassEvent,
	"tournament": SourceClassEvent,
	"media":      SourceClassMedia,
	"news":       SourceClassMedia,
	"aggregator": SourceClassAggregator,
	"stats":      SourceClassAggregator,
}

// NormalizeSourceClass maps a source classification to the canonical
// vocabulary.
func NormalizeSourceClass(s string) string {
	if v, ok := sourceClassVocab[vocabKey(s)]; ok {
		return v
	}
	return SourceClassUnknown
}

// vocabKey lowercases and trims a label for vocabulary lookup.
func vocabKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
