package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/54b3r/cinerag/internal/filter"
	"github.com/54b3r/cinerag/internal/media"
)

// DefaultRetrievalLimit is the number of candidates requested from the index
// before reranking.
const DefaultRetrievalLimit = 300

// Payload fields the fetcher requests from the index.
const (
	FieldMediaID     = "media_id"
	FieldTitle       = "title"
	FieldContent     = "content"
	FieldPopularity  = "popularity"
	FieldVoteAverage = "vote_average"
)

// candidateFields is the payload include-list sent with every query.
var candidateFields = []string{
	FieldMediaID,
	FieldTitle,
	FieldContent,
	FieldPopularity,
	FieldVoteAverage,
	filter.FieldGenres,
	filter.FieldProviders,
	filter.FieldReleaseYear,
}

// FetchRequest is one candidate retrieval.
type FetchRequest struct {
	Kind      media.Kind
	Dense     []float32
	Sparse    media.SparseVector
	Predicate filter.Predicate
	// Limit overrides the configured retrieval limit when positive.
	Limit int
}

// BreakerConfig tunes the circuit breaker in front of the index.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold uint32
	// Timeout is the time spent open before probing again.
	Timeout time.Duration
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	// Collections binds each media kind to its index collection.
	Collections map[media.Kind]string

	// Limit is the default retrieval limit. Defaults to DefaultRetrievalLimit.
	Limit int

	// Breaker configures the circuit breaker. Zero fields take defaults
	// (5 consecutive failures, 30s open).
	Breaker BreakerConfig

	// Logger receives breaker state changes. Defaults to slog.Default().
	Logger *slog.Logger
}

// Fetcher retrieves typed candidates for a media kind from the index.
// It is safe for concurrent use.
type Fetcher struct {
	index       Index
	collections map[media.Kind]string
	limit       int
	breaker     *gobreaker.CircuitBreaker[[]Hit]
}

// NewFetcher constructs a Fetcher over index.
func NewFetcher(index Index, cfg FetcherConfig) (*Fetcher, error) {
	if index == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}
	if len(cfg.Collections) == 0 {
		return nil, fmt.Errorf("rag: at least one collection must be configured")
	}
	collections := make(map[media.Kind]string, len(cfg.Collections))
	for k, c := range cfg.Collections {
		if c == "" {
			return nil, fmt.Errorf("rag: empty collection name for %q", k)
		}
		collections[k] = c
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultRetrievalLimit
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.Timeout <= 0 {
		cfg.Breaker.Timeout = 30 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	threshold := cfg.Breaker.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker[[]Hit](gobreaker.Settings{
		Name:        "vector-index",
		MaxRequests: 1,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A caller giving up is not an index failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("rag: circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &Fetcher{index: index, collections: collections, limit: cfg.Limit, breaker: breaker}, nil
}

// Limit returns the default retrieval limit.
func (f *Fetcher) Limit() int { return f.limit }

// Fetch queries the collection bound to req.Kind and returns candidates in
// index order. An empty result is not an error.
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) ([]media.Candidate, error) {
	collection, ok := f.collections[req.Kind]
	if !ok {
		return nil, fmt.Errorf("rag: fetch %q: %w", req.Kind, media.ErrUnknownMediaKind)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = f.limit
	}

	hits, err := f.breaker.Execute(func() ([]Hit, error) {
		return f.index.Query(ctx, IndexQuery{
			Collection: collection,
			Dense:      req.Dense,
			Sparse:     req.Sparse,
			Predicate:  req.Predicate,
			Limit:      limit,
			Fields:     candidateFields,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("rag: fetch %s: %w: %w", collection, media.ErrRetrieval, err)
	}

	out := make([]media.Candidate, 0, len(hits))
	for _, h := range hits {
		out = append(out, decodeCandidate(h))
	}
	return out, nil
}

// decodeCandidate maps a hit onto a typed candidate. Missing or mistyped
// payload fields take their zero value.
func decodeCandidate(h Hit) media.Candidate {
	p := h.Payload
	c := media.Candidate{
		ID:            stringField(p, FieldMediaID),
		Title:         stringField(p, FieldTitle),
		Content:       stringField(p, FieldContent),
		Popularity:    numberField(p, FieldPopularity),
		VoteAverage:   numberField(p, FieldVoteAverage),
		Genres:        listField(p, filter.FieldGenres),
		Providers:     listField(p, filter.FieldProviders),
		ReleaseYear:   int(numberField(p, filter.FieldReleaseYear)),
		SemanticScore: h.Score,
	}
	if c.ID == "" {
		c.ID = h.ID
	}
	c.Normalize()
	return c
}

func stringField(p map[string]any, key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func numberField(p map[string]any, key string) float64 {
	var f float64
	switch v := p[key].(type) {
	case float64:
		f = v
	case int64:
		f = float64(v)
	case string:
		f, _ = strconv.ParseFloat(v, 64)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func listField(p map[string]any, key string) []string {
	switch v := p[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v != "" {
			return []string{v}
		}
	}
	return []string{}
}
