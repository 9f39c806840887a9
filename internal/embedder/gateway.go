// Package embedder turns query text into the vectors the index is searched
// with: dense embeddings from a hosted model (Ollama or OpenAI) and sparse
// BM25 vectors from a per-corpus vocabulary loaded at startup.
package embedder

import (
	"context"
	"fmt"

	"github.com/54b3r/cinerag/internal/media"
	"github.com/54b3r/cinerag/internal/rag"
)

// SparseEncoder maps query text to a lexical vector over one corpus vocabulary.
type SparseEncoder interface {
	Encode(text string) media.SparseVector
}

// Gateway is the single entry point the pipeline uses for query embeddings:
// one dense model shared by every media kind, and one sparse encoder per kind.
// All dependencies are constructed at startup; Gateway holds no mutable state.
type Gateway struct {
	dense  rag.Embedder
	sparse map[media.Kind]SparseEncoder
}

// NewGateway wires a dense embedder and the per-kind sparse encoders.
func NewGateway(dense rag.Embedder, sparse map[media.Kind]SparseEncoder) (*Gateway, error) {
	if dense == nil {
		return nil, fmt.Errorf("embedder: dense embedder must not be nil")
	}
	enc := make(map[media.Kind]SparseEncoder, len(sparse))
	for k, e := range sparse {
		if e == nil {
			return nil, fmt.Errorf("embedder: sparse encoder for %q is nil", k)
		}
		enc[k] = e
	}
	return &Gateway{dense: dense, sparse: enc}, nil
}

// EmbedDense returns the dense vector for text.
func (g *Gateway) EmbedDense(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.dense.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embedder: dense: %w: %w", media.ErrEmbedding, err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embedder: dense: empty result: %w", media.ErrEmbedding)
	}
	return vecs[0], nil
}

// EmbedSparse returns the sparse vector for text using the vocabulary of kind.
func (g *Gateway) EmbedSparse(ctx context.Context, text string, kind media.Kind) (media.SparseVector, error) {
	enc, ok := g.sparse[kind]
	if !ok {
		return media.SparseVector{}, fmt.Errorf("embedder: sparse %q: %w", kind, media.ErrUnknownMediaKind)
	}
	if err := ctx.Err(); err != nil {
		return media.SparseVector{}, fmt.Errorf("embedder: sparse: %w: %w", media.ErrEmbedding, err)
	}
	return enc.Encode(text), nil
}
