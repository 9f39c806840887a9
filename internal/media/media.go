// Package media defines the domain types shared by every stage of the
// recommendation pipeline: media kinds, facet ranges, retrieved candidates,
// sparse query vectors, and conversation turns.
package media

import (
	"fmt"
	"strings"
)

// Kind identifies which corpus a request targets. Movie and TV titles live in
// disjoint collections and use independent sparse vocabularies.
type Kind string

const (
	// KindMovie selects the movie corpus.
	KindMovie Kind = "movie"
	// KindTV selects the TV series corpus.
	KindTV Kind = "tv"
)

// kindAliases maps accepted wire spellings to their canonical Kind.
var kindAliases = map[string]Kind{
	"movie":    KindMovie,
	"movies":   KindMovie,
	"film":     KindMovie,
	"films":    KindMovie,
	"tv":       KindTV,
	"tvs":      KindTV,
	"tv_show":  KindTV,
	"tv_shows": KindTV,
	"series":   KindTV,
}

// ParseKind resolves a wire value to a Kind. An empty string resolves to
// KindMovie. Unrecognised values return ErrUnknownMediaKind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return KindMovie, nil
	}
	if k, ok := kindAliases[s]; ok {
		return k, nil
	}
	return "", fmt.Errorf("media: %q: %w", s, ErrUnknownMediaKind)
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindMovie || k == KindTV
}

// Plural returns the human-readable plural used in prompts ("movies", "tv shows").
func (k Kind) Plural() string {
	if k == KindTV {
		return "tv shows"
	}
	return "movies"
}

// Emoji returns the glyph used in the canned greeting for k.
func (k Kind) Emoji() string {
	if k == KindTV {
		return "📺"
	}
	return "🎥"
}

// YearRange is a closed interval of release years. The zero value means the
// caller did not restrict the range; see Resolve. Ranges that came from a
// request are built with NewYearRange so that an explicit [0, 0] stays
// distinct from "unset".
type YearRange struct {
	Min int
	Max int

	explicit bool
}

// NewYearRange returns the caller-supplied range [lo, hi].
func NewYearRange(lo, hi int) YearRange {
	return YearRange{Min: lo, Max: hi, explicit: true}
}

// DefaultYearRange is the full catalogue range applied when a request leaves
// the year facet unset.
var DefaultYearRange = YearRange{Min: 1888, Max: 2100}

// IsZero reports whether the range was left unset.
func (r YearRange) IsZero() bool {
	return !r.explicit && r.Min == 0 && r.Max == 0
}

// Resolve returns DefaultYearRange for an unset range and r otherwise.
func (r YearRange) Resolve() YearRange {
	if r.IsZero() {
		return DefaultYearRange
	}
	return r
}

// Validate returns ErrInvalidFilter when Min > Max.
func (r YearRange) Validate() error {
	if r.Min > r.Max {
		return fmt.Errorf("media: year range [%d, %d]: min exceeds max: %w", r.Min, r.Max, ErrInvalidFilter)
	}
	return nil
}

// Contains reports whether year lies inside the closed interval.
func (r YearRange) Contains(year int) bool {
	return year >= r.Min && year <= r.Max
}

// SparseVector is a lexical query vector: parallel slices of vocabulary term
// IDs and non-negative weights, sorted by ascending term ID.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// Len returns the number of non-zero terms.
func (v SparseVector) Len() int { return len(v.Indices) }

// IsEmpty reports whether the vector carries no terms.
func (v SparseVector) IsEmpty() bool { return len(v.Indices) == 0 }
