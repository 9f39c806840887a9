// Package rag holds the retrieval side of the pipeline: the vector index
// abstraction, its Qdrant implementation, and the candidate fetcher that
// turns index hits into typed media candidates.
package rag

import (
	"context"

	"github.com/54b3r/cinerag/internal/filter"
	"github.com/54b3r/cinerag/internal/media"
)

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// IndexQuery is a single similarity query against one collection.
type IndexQuery struct {
	// Collection is the index collection to search.
	Collection string

	// Dense is the query embedding. Required.
	Dense []float32

	// Sparse is the lexical query vector. Only used when the index runs in
	// hybrid mode; may be empty.
	Sparse media.SparseVector

	// Predicate restricts the search to matching payloads.
	Predicate filter.Predicate

	// Limit is the maximum number of hits.
	Limit int

	// Fields is the payload include-list. Empty means no payload.
	Fields []string
}

// Hit is one scored result of an index query.
type Hit struct {
	// ID is the point identifier rendered as a string.
	ID string

	// Score is the similarity reported by the index.
	Score float64

	// Payload holds the requested payload fields decoded to Go values:
	// string, float64, int64, bool, []any or nil.
	Payload map[string]any
}

// Index is the vector store contract the fetcher depends on. Hits are
// ordered by descending score. Implementations must be safe to call from
// multiple goroutines.
type Index interface {
	Query(ctx context.Context, q IndexQuery) ([]Hit, error)
}
