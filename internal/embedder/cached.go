package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/54b3r/cinerag/internal/rag"
)

// DefaultCacheSize is the number of query embeddings kept in memory.
// At 1536 dimensions this is about 6MB.
const DefaultCacheSize = 1000

// CachedEmbedder wraps a rag.Embedder with an LRU cache keyed by model and
// text. Repeated questions skip the network round trip. The underlying
// cache is internally synchronised.
type CachedEmbedder struct {
	inner rag.Embedder
	model string
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps inner. model namespaces the cache keys so two
// embedders never share vectors; size <= 0 selects DefaultCacheSize.
func NewCachedEmbedder(inner rag.Embedder, model string, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("embedder: create cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, model: model, cache: cache}, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Embed returns cached vectors where available and embeds only the misses,
// in one call to the wrapped embedder. The result is parallel to texts and
// never aliases cache entries, so callers may modify it.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missText []string
	for i, t := range texts {
		if vec, ok := c.cache.Get(c.key(t)); ok {
			out[i] = slices.Clone(vec)
			continue
		}
		missIdx = append(missIdx, i)
		missText = append(missText, t)
	}
	if len(missText) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missText)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missText) {
		return nil, fmt.Errorf("embedder: expected %d embeddings, got %d", len(missText), len(vecs))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.cache.Add(c.key(missText[j]), slices.Clone(vecs[j]))
	}
	return out, nil
}

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int { return c.cache.Len() }
