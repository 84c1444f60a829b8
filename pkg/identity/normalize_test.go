package identity

import "testing"

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jon Smith", "jon smith"},
		{"  JON   SMITH ", "jon smith"},
		{"D'Angelo O'Neal", "d angelo o neal"},
		{"Marcus Webb Jr.", "marcus webb"},
		{"Marcus Webb III", "marcus webb"},
		{"Team Takeover", "team takeover"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeName(tt.input); got != tt.expected {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeSchool(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Lincoln High", "lincoln"},
		{"Lincoln HS", "lincoln"},
		{"Lincoln High School", "lincoln"},
		{"Central High", "central"},
		{"Oak Hill Academy", "oak hill academy"},
		// All tokens are suffixes: keep them rather than normalize to nothing.
		{"High School", "high school"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeSchool(tt.input); got != tt.expected {
				t.Errorf("NormalizeSchool(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeSchool_VariantsConverge(t *testing.T) {
	variants := []string{"Lincoln High", "Lincoln HS", "lincoln high school", "LINCOLN"}
	want := NormalizeSchool(variants[0])
	for _, v := range variants {
		if got := NormalizeSchool(v); got != want {
			t.Errorf("NormalizeSchool(%q) = %q, want %q", v, got, want)
		}
	}
}
