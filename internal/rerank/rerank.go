// Package rerank fuses semantic similarity, popularity, and rating into a
// single score per candidate and produces the final ordered, truncated list.
package rerank

import (
	"cmp"
	"slices"

	"github.com/54b3r/cinerag/internal/config"
	"github.com/54b3r/cinerag/internal/media"
)

const (
	// DefaultTopK is the number of candidates kept after reranking.
	DefaultTopK = 20

	// DefaultMaxPopularity normalises popularity when the batch is empty or
	// every candidate has zero popularity.
	DefaultMaxPopularity = 800
)

// Weights are the coefficients of the fused score. They form a convex
// combination when they sum to 1; this is a convention, not a requirement.
type Weights struct {
	Semantic   float64
	Popularity float64
	Rating     float64
}

// DefaultWeights favours semantic match and rating equally over popularity.
var DefaultWeights = Weights{Semantic: 0.4, Popularity: 0.2, Rating: 0.4}

// Config controls reranking.
type Config struct {
	// Weights are the fusion coefficients.
	Weights Weights

	// TopK bounds the length of the returned list. Defaults to DefaultTopK.
	TopK int

	// FallbackMaxPopularity is used as the popularity denominator when the
	// batch has no positive popularity. Defaults to DefaultMaxPopularity.
	FallbackMaxPopularity float64
}

// ConfigFromEnv reads RERANK_WEIGHT_SEMANTIC, RERANK_WEIGHT_POPULARITY,
// RERANK_WEIGHT_RATING, RERANK_TOP_K and RERANK_MAX_POPULARITY.
func ConfigFromEnv() Config {
	return Config{
		Weights: Weights{
			Semantic:   config.EnvFloat("RERANK_WEIGHT_SEMANTIC", DefaultWeights.Semantic),
			Popularity: config.EnvFloat("RERANK_WEIGHT_POPULARITY", DefaultWeights.Popularity),
			Rating:     config.EnvFloat("RERANK_WEIGHT_RATING", DefaultWeights.Rating),
		},
		TopK:                  config.EnvInt("RERANK_TOP_K", DefaultTopK),
		FallbackMaxPopularity: config.EnvFloat("RERANK_MAX_POPULARITY", DefaultMaxPopularity),
	}
}

// Reranker is stateless after construction and safe for concurrent use.
type Reranker struct {
	weights Weights
	topK    int
	maxPop  float64
}

// New constructs a Reranker, filling zero fields of cfg with defaults.
// A zero Weights value selects DefaultWeights.
func New(cfg Config) *Reranker {
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.FallbackMaxPopularity <= 0 {
		cfg.FallbackMaxPopularity = DefaultMaxPopularity
	}
	return &Reranker{weights: cfg.Weights, topK: cfg.TopK, maxPop: cfg.FallbackMaxPopularity}
}

// TopK returns the configured truncation length.
func (r *Reranker) TopK() int { return r.topK }

// Rerank scores every candidate, sorts by fused score descending, and
// truncates to TopK. Candidates with equal scores keep their input order.
// The input slice is not modified; the result is a fresh slice.
func (r *Reranker) Rerank(candidates []media.Candidate) []media.Candidate {
	if len(candidates) == 0 {
		return []media.Candidate{}
	}

	maxPop := r.maxPop
	if observed := maxPopularity(candidates); observed > 0 {
		maxPop = observed
	}

	ranked := make([]media.Candidate, len(candidates))
	copy(ranked, candidates)
	for i := range ranked {
		ranked[i].Normalize()
		ranked[i].FusedScore = r.score(ranked[i], maxPop)
	}

	slices.SortStableFunc(ranked, func(a, b media.Candidate) int {
		return cmp.Compare(b.FusedScore, a.FusedScore)
	})

	if len(ranked) > r.topK {
		ranked = ranked[:r.topK:r.topK]
	}
	return ranked
}

func (r *Reranker) score(c media.Candidate, maxPop float64) float64 {
	normPop := c.Popularity / maxPop
	normRating := c.VoteAverage / media.MaxVoteAverage
	return r.weights.Semantic*c.SemanticScore +
		r.weights.Popularity*normPop +
		r.weights.Rating*normRating
}

func maxPopularity(candidates []media.Candidate) float64 {
	var m float64
	for _, c := range candidates {
		if c.Popularity > m {
			m = c.Popularity
		}
	}
	return m
}
