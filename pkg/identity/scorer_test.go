package identity

import "testing"

func TestNameScorer_ShortFormMerges(t *testing.T) {
	s := NameScorer{}

	score := s.Score("jon smith", "jonathan smith")
	if score < DefaultThreshold {
		t.Errorf("Score(jon smith, jonathan smith) = %v, want >= %v", score, DefaultThreshold)
	}
}

func TestNameScorer_DistinctSurnamesStayApart(t *testing.T) {
	s := NameScorer{}

	score := s.Score("jon smith", "jon smythe")
	if score >= DefaultThreshold {
		t.Errorf("Score(jon smith, jon smythe) = %v, want < %v", score, DefaultThreshold)
	}
}

func TestNameScorer_Identical(t *testing.T) {
	s := NameScorer{}
	if got := s.Score("team takeover", "team takeover"); got != 1.0 {
		t.Errorf("identical names score = %v, want 1.0", got)
	}
}

func TestNameScorer_SingleToken(t *testing.T) {
	s := NameScorer{}

	if got := s.Score("takeover", "takeover"); got != 1.0 {
		t.Errorf("Score = %v, want 1.0", got)
	}
	if got := s.Score("takeover", "elite"); got >= DefaultThreshold {
		t.Errorf("unrelated single tokens score = %v, want < threshold", got)
	}
}

func TestNameScorer_Empty(t *testing.T) {
	s := NameScorer{}
	if got := s.Score("", "jon smith"); got != 0 {
		t.Errorf("Score with empty name = %v, want 0", got)
	}
}

func TestRatio(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"smith", "smith", 1.0, 1.0},
		{"smith", "smythe", 0.5, 0.7},
		{"abc", "xyz", 0.0, 0.01},
	}

	for _, tt := range tests {
		got := ratio(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("ratio(%q, %q) = %v, want in [%v, %v]", tt.a, tt.b, got, tt.min, tt.max)
		}
	}
}
