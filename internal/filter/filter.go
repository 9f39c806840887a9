// Package filter builds the structured metadata predicate applied to the
// vector index: an AND of facet clauses, where each multi-valued facet is an
// OR over its selected values and the release year is a closed range.
package filter

import (
	"fmt"
	"slices"
	"strings"

	"github.com/54b3r/cinerag/internal/media"
)

// Payload field names the predicate targets in the index.
const (
	FieldGenres      = "genres"
	FieldProviders   = "watch_providers"
	FieldReleaseYear = "release_year"
)

// Predicate is an immutable conjunction of clauses. The zero value matches
// everything.
type Predicate struct {
	clauses []Clause
}

// Clause is either a disjunction of exact-match conditions over one field or
// a closed integer range over one field.
type Clause struct {
	field  string
	values []string
	span   *media.YearRange
}

// Clauses returns a copy of the clauses in build order.
func (p Predicate) Clauses() []Clause { return slices.Clone(p.clauses) }

// IsEmpty reports whether the predicate carries no clauses.
func (p Predicate) IsEmpty() bool { return len(p.clauses) == 0 }

// Field returns the payload field the clause constrains.
func (c Clause) Field() string { return c.field }

// Values returns a copy of the accepted values of a match clause.
func (c Clause) Values() []string { return slices.Clone(c.values) }

// Range returns the bounds of a range clause.
func (c Clause) Range() (media.YearRange, bool) {
	if c.span == nil {
		return media.YearRange{}, false
	}
	return *c.span, true
}

// IsRange reports whether the clause is a range clause.
func (c Clause) IsRange() bool { return c.span != nil }

// Build assembles the predicate for the given facet selections. Empty genre
// or provider sets contribute no clause. The year range always contributes a
// clause; an unset range resolves to media.DefaultYearRange.
func Build(genres, providers []string, years media.YearRange) (Predicate, error) {
	years = years.Resolve()
	if err := years.Validate(); err != nil {
		return Predicate{}, fmt.Errorf("filter: build: %w", err)
	}

	var clauses []Clause
	if g := normalize(genres); len(g) > 0 {
		clauses = append(clauses, Clause{field: FieldGenres, values: g})
	}
	if p := normalize(providers); len(p) > 0 {
		clauses = append(clauses, Clause{field: FieldProviders, values: p})
	}
	clauses = append(clauses, Clause{field: FieldReleaseYear, span: &years})

	return Predicate{clauses: clauses}, nil
}

// normalize trims values and drops blanks and duplicates, keeping first-seen order.
func normalize(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Matches evaluates the predicate against a candidate's metadata.
func (p Predicate) Matches(c media.Candidate) bool {
	for _, cl := range p.clauses {
		if !cl.matches(c) {
			return false
		}
	}
	return true
}

func (c Clause) matches(cand media.Candidate) bool {
	if c.span != nil {
		if c.field != FieldReleaseYear {
			return false
		}
		return c.span.Contains(cand.ReleaseYear)
	}

	var have []string
	switch c.field {
	case FieldGenres:
		have = cand.Genres
	case FieldProviders:
		have = cand.Providers
	default:
		return false
	}
	for _, v := range c.values {
		if slices.Contains(have, v) {
			return true
		}
	}
	return false
}

// String renders the predicate for logs.
func (p Predicate) String() string {
	if len(p.clauses) == 0 {
		return "true"
	}
	parts := make([]string, 0, len(p.clauses))
	for _, c := range p.clauses {
		if c.span != nil {
			parts = append(parts, fmt.Sprintf("%s in [%d, %d]", c.field, c.span.Min, c.span.Max))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s in {%s}", c.field, strings.Join(c.values, ", ")))
	}
	return strings.Join(parts, " AND ")
}
