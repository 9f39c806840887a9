package rag

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/54b3r/cinerag/internal/media"
)

// fakeIndex returns canned hits, optionally applying the predicate in
// memory so tests can check what a real index would return.
type fakeIndex struct {
	hits    []Hit
	err     error
	calls   int
	last    IndexQuery
	applyFn bool
}

func (f *fakeIndex) Query(_ context.Context, q IndexQuery) ([]Hit, error) {
	f.calls++
	f.last = q
	if f.err != nil {
		return nil, f.err
	}
	if !f.applyFn {
		return f.hits, nil
	}
	var out []Hit
	for _, h := range f.hits {
		if q.Predicate.Matches(decodeCandidate(h)) {
			out = append(out, h)
		}
	}
	return out, nil
}

func newTestFetcher(t *testing.T, idx Index) *Fetcher {
	t.Helper()
	f, err := NewFetcher(idx, FetcherConfig{
		Collections: map[media.Kind]string{media.KindMovie: "movies", media.KindTV: "tv_shows"},
	})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	return f
}

// TestFetcher_RoutesByKind verifies collection selection, default limit,
// and the payload include-list.
func TestFetcher_RoutesByKind(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{}
	f := newTestFetcher(t, idx)
	if _, err := f.Fetch(context.Background(), FetchRequest{Kind: media.KindTV, Dense: []float32{1}}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if idx.last.Collection != "tv_shows" || idx.last.Limit != DefaultRetrievalLimit {
		t.Errorf("query = %+v", idx.last)
	}
	for _, field := range []string{"title", "content", "popularity", "vote_average", "media_id"} {
		if !slices.Contains(idx.last.Fields, field) {
			t.Errorf("payload include-list is missing %q", field)
		}
	}
}

// TestFetcher_UnknownKind verifies an unmapped kind fails without a query.
func TestFetcher_UnknownKind(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{}
	f, _ := NewFetcher(idx, FetcherConfig{Collections: map[media.Kind]string{media.KindMovie: "movies"}})
	_, err := f.Fetch(context.Background(), FetchRequest{Kind: media.KindTV})
	if !errors.Is(err, media.ErrUnknownMediaKind) {
		t.Fatalf("want ErrUnknownMediaKind, got %v", err)
	}
	if idx.calls != 0 {
		t.Error("index must not be queried for an unmapped kind")
	}
}

// TestFetcher_EmptyResult verifies no hits is an empty slice, not an error.
func TestFetcher_EmptyResult(t *testing.T) {
	t.Parallel()

	got, err := newTestFetcher(t, &fakeIndex{}).Fetch(context.Background(), FetchRequest{Kind: media.KindMovie})
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("got %#v, %v", got, err)
	}
}

// TestFetcher_Decode verifies payload typing, defaults, and clamping.
func TestFetcher_Decode(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{hits: []Hit{
		{ID: "p1", Score: 0.9, Payload: map[string]any{
			"media_id":        int64(603),
			"title":           "The Matrix",
			"content":         "Title: The Matrix",
			"popularity":      int64(90),
			"vote_average":    11.2,
			"genres":          []any{"Action", "Science Fiction"},
			"watch_providers": "Netflix",
			"release_year":    int64(1999),
		}},
		{ID: "p2", Score: 0.5, Payload: map[string]any{"popularity": -4.0}},
	}}
	got, err := newTestFetcher(t, idx).Fetch(context.Background(), FetchRequest{Kind: media.KindMovie})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	m := got[0]
	if m.ID != "603" || m.Title != "The Matrix" || m.ReleaseYear != 1999 || m.SemanticScore != 0.9 {
		t.Errorf("decoded = %+v", m)
	}
	if m.Popularity != 90 || m.VoteAverage != 10 {
		t.Errorf("numbers = %v, %v", m.Popularity, m.VoteAverage)
	}
	if len(m.Genres) != 2 || len(m.Providers) != 1 {
		t.Errorf("lists = %v, %v", m.Genres, m.Providers)
	}

	d := got[1]
	if d.ID != "p2" || d.Title != "" || d.Popularity != 0 || d.Genres == nil {
		t.Errorf("defaults = %+v", d)
	}
}

// TestFetcher_PredicateRestrictsResults runs the fetcher against an index
// that honours the predicate and checks every result satisfies it.
func TestFetcher_PredicateRestrictsResults(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{applyFn: true, hits: []Hit{
		{ID: "a", Payload: map[string]any{"release_year": int64(1994), "genres": []any{"Drama"}}},
		{ID: "b", Payload: map[string]any{"release_year": int64(2004), "genres": []any{"Drama"}}},
		{ID: "c", Payload: map[string]any{"release_year": int64(1997), "genres": []any{"Horror"}}},
	}}
	p := mustPredicate(t, []string{"Drama"}, nil, media.YearRange{Min: 1990, Max: 1999})

	got, err := newTestFetcher(t, idx).Fetch(context.Background(), FetchRequest{Kind: media.KindMovie, Predicate: p})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("got %+v", got)
	}
	for _, c := range got {
		if !p.Matches(c) {
			t.Errorf("candidate %s violates predicate", c.ID)
		}
	}
}

// TestFetcher_ErrorAndBreaker verifies index failures surface as
// ErrRetrieval and that the breaker opens after repeated failures.
func TestFetcher_ErrorAndBreaker(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{err: errors.New("connection refused")}
	f, _ := NewFetcher(idx, FetcherConfig{
		Collections: map[media.Kind]string{media.KindMovie: "movies"},
		Breaker:     BreakerConfig{FailureThreshold: 2, Timeout: time.Minute},
	})
	ctx := context.Background()

	for range 2 {
		if _, err := f.Fetch(ctx, FetchRequest{Kind: media.KindMovie}); !errors.Is(err, media.ErrRetrieval) {
			t.Fatalf("want ErrRetrieval, got %v", err)
		}
	}
	_, err := f.Fetch(ctx, FetchRequest{Kind: media.KindMovie})
	if !errors.Is(err, media.ErrRetrieval) {
		t.Fatalf("want ErrRetrieval from open breaker, got %v", err)
	}
	if idx.calls != 2 {
		t.Errorf("open breaker should short-circuit, index saw %d calls", idx.calls)
	}
}

// TestNewFetcher_Validation verifies construction-time checks.
func TestNewFetcher_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewFetcher(nil, FetcherConfig{}); err == nil {
		t.Error("want error for nil index")
	}
	if _, err := NewFetcher(&fakeIndex{}, FetcherConfig{}); err == nil {
		t.Error("want error for no collections")
	}
	if _, err := NewFetcher(&fakeIndex{}, FetcherConfig{Collections: map[media.Kind]string{media.KindMovie: ""}}); err == nil {
		t.Error("want error for empty collection name")
	}
}
