package media

import (
	"errors"
	"testing"
)

func TestParseKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"", KindMovie, false},
		{"movie", KindMovie, false},
		{"Movies", KindMovie, false},
		{" tv ", KindTV, false},
		{"tvs", KindTV, false},
		{"tv_shows", KindTV, false},
		{"podcast", "", true},
	}
	for _, tc := range tests {
		got, err := ParseKind(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrUnknownMediaKind) {
				t.Errorf("ParseKind(%q): want ErrUnknownMediaKind, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseKind(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseKind(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestYearRange(t *testing.T) {
	t.Parallel()

	if got := (YearRange{}).Resolve(); got != DefaultYearRange {
		t.Errorf("zero range should resolve to default, got %+v", got)
	}
	if got := (YearRange{Min: 1990, Max: 1999}).Resolve(); got != (YearRange{Min: 1990, Max: 1999}) {
		t.Errorf("explicit range should be kept, got %+v", got)
	}
	if err := (YearRange{Min: 2001, Max: 2000}).Validate(); !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("want ErrInvalidFilter, got %v", err)
	}
	if err := (YearRange{Min: 2020, Max: 2020}).Validate(); err != nil {
		t.Errorf("single-year range should be valid: %v", err)
	}
	if explicit := NewYearRange(0, 0); explicit.IsZero() || explicit.Resolve() != explicit {
		t.Errorf("explicit [0, 0] must not widen to the default, got %+v", explicit.Resolve())
	}
	r := YearRange{Min: 1990, Max: 1999}
	if !r.Contains(1990) || !r.Contains(1999) || r.Contains(2000) || r.Contains(1989) {
		t.Error("Contains must treat both bounds as inclusive")
	}
}

func TestCandidateNormalize(t *testing.T) {
	t.Parallel()

	c := Candidate{Popularity: -3, VoteAverage: 12}
	c.Normalize()
	if c.Popularity != 0 || c.VoteAverage != 10 {
		t.Errorf("got popularity=%v vote=%v, want 0 and 10", c.Popularity, c.VoteAverage)
	}
	c = Candidate{VoteAverage: -1}
	c.Normalize()
	if c.VoteAverage != 0 {
		t.Errorf("negative vote should clamp to 0, got %v", c.VoteAverage)
	}
}

func TestRecentTurns(t *testing.T) {
	t.Parallel()

	var history []ChatTurn
	for i := range 14 {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		history = append(history, ChatTurn{Role: role, Content: string(rune('a' + i))})
	}

	got := RecentTurns(history, 5)
	if len(got) != 10 {
		t.Fatalf("want 10 messages, got %d", len(got))
	}
	if got[0].Content != "e" || got[9].Content != "n" {
		t.Errorf("want window e..n, got %s..%s", got[0].Content, got[9].Content)
	}

	got[0].Content = "mutated"
	if history[4].Content != "e" {
		t.Error("RecentTurns must not alias the caller's history")
	}

	if len(RecentTurns(history[:3], 5)) != 3 {
		t.Error("short history should be returned whole")
	}
	if RecentTurns(history, 0) != nil {
		t.Error("zero turns should yield no history")
	}
}
