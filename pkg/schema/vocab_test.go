package schema

import "testing"

func TestNormalizeGender(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Boys", GenderMale},
		{"m", GenderMale},
		{"MENS", GenderMale},
		{"Girls", GenderFemale},
		{"w", GenderFemale},
		{"", GenderUnknown},
		{"coed", GenderUnknown},
	}
	for _, tt := range tests {
		if got := NormalizeGender(tt.in); got != tt.want {
			t.Errorf("NormalizeGender(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Varsity", LevelVarsity},
		{"JV", LevelJuniorVarsity},
		{"frosh", LevelFreshman},
		{"AAU", LevelClub},
		{"17U", "17u"},
		{"u16", "u16"},
		{"", LevelUnknown},
		{"rec", LevelUnknown},
	}
	for _, tt := range tests {
		if got := NormalizeLevel(tt.in); got != tt.want {
			t.Errorf("NormalizeLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeSourceClass(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"school", SourceClassSchool},
		{"Tournament", SourceClassEvent},
		{"news", SourceClassMedia},
		{"stats", SourceClassAggregator},
		{"", SourceClassUnknown},
	}
	for _, tt := range tests {
		if got := NormalizeSourceClass(tt.in); got != tt.want {
			t.Errorf("NormalizeSourceClass(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRawRecord_Str(t *testing.T) {
	rec := RawRecord{Payload: map[string]any{
		"name":  "Jon Smith",
		"score": float64(62),
		"pct":   float64(0.5),
		"nil":   nil,
	}}

	if got := rec.Str("name"); got != "Jon Smith" {
		t.Errorf("Str(name) = %q", got)
	}
	if got := rec.Str("score"); got != "62" {
		t.Errorf("Str(score) = %q, want 62", got)
	}
	if got := rec.Str("pct"); got != "0.5" {
		t.Errorf("Str(pct) = %q, want 0.5", got)
	}
	if got := rec.Str("nil"); got != "" {
		t.Errorf("Str(nil) = %q, want empty", got)
	}
	if got := rec.Str("missing"); got != "" {
		t.Errorf("Str(missing) = %q, want empty", got)
	}
}

func TestRawRecord_Int(t *testing.T) {
	rec := RawRecord{Payload: map[string]any{
		"float":  float64(62),
		"int":    7,
		"string": "14",
		"bad":    "n/a",
	}}

	for key, want := range map[string]int{"float": 62, "int": 7, "string": 14} {
		got, ok := rec.Int(key)
		if !ok || got != want {
			t.Errorf("Int(%s) = %d,%v, want %d,true", key, got, ok, want)
		}
	}
	if _, ok := rec.Int("bad"); ok {
		t.Error("Int(bad) should not parse")
	}
	if _, ok := rec.Int("missing"); ok {
		t.Error("Int(missing) should not parse")
	}
}
