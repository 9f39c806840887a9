package embedder

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"slices"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/registry"

	"github.com/54b3r/cinerag/internal/media"
)

// queryAnalyzerName is the name the query analyzer is registered under in
// the encoder's private registry cache.
const queryAnalyzerName = "cinerag_query"

// DefaultK1 is the BM25 term-frequency saturation used when an artifact
// does not carry its own.
const DefaultK1 = 1.5

// BM25Term is a vocabulary entry: the sparse dimension a term maps to and
// its inverse document frequency in the corpus.
type BM25Term struct {
	ID  uint32  `json:"id"`
	IDF float64 `json:"idf"`
}

// BM25Model is the on-disk artifact produced when the index was built.
// Movie and TV corpora each ship their own model.
type BM25Model struct {
	K1    float64             `json:"k1"`
	Terms map[string]BM25Term `json:"terms"`
}

// BM25Encoder turns query text into a sparse vector over a fixed corpus
// vocabulary. It is read-only after construction and safe for concurrent use.
type BM25Encoder struct {
	k1       float64
	terms    map[string]BM25Term
	analyzer analysis.Analyzer
}

// LoadBM25 reads and parses a BM25 artifact from path.
func LoadBM25(path string) (*BM25Encoder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("embedder: read bm25 model %s: %w", path, err)
	}
	var m BM25Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("embedder: parse bm25 model %s: %w", path, err)
	}
	return NewBM25Encoder(m)
}

// NewBM25Encoder constructs an encoder from an in-memory model. An empty
// vocabulary is rejected: it would silently produce empty vectors.
func NewBM25Encoder(m BM25Model) (*BM25Encoder, error) {
	if len(m.Terms) == 0 {
		return nil, fmt.Errorf("embedder: bm25 model has an empty vocabulary")
	}
	if m.K1 <= 0 {
		m.K1 = DefaultK1
	}
	analyzer, err := newQueryAnalyzer()
	if err != nil {
		return nil, err
	}
	return &BM25Encoder{k1: m.K1, terms: m.Terms, analyzer: analyzer}, nil
}

// newQueryAnalyzer builds the tokenisation chain the vocabulary was built
// with: unicode word segmentation, lowercasing, English stop-word removal.
func newQueryAnalyzer() (analysis.Analyzer, error) {
	cache := registry.NewCache()
	a, err := cache.DefineAnalyzer(queryAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name, en.StopName},
	})
	if err != nil {
		return nil, fmt.Errorf("embedder: define query analyzer: %w", err)
	}
	return a, nil
}

// Tokens returns the analysed terms of text in order, duplicates included.
func (e *BM25Encoder) Tokens(text string) []string {
	stream := e.analyzer.Analyze([]byte(text))
	out := make([]string, 0, len(stream))
	for _, tok := range stream {
		out = append(out, string(tok.Term))
	}
	return out
}

// Encode returns the sparse query vector for text. Terms outside the
// vocabulary are dropped. Each kept term is weighted
// idf * qtf*(k1+1) / (qtf+k1) with negative idf clamped to zero, and zero
// weights are omitted. Indices are sorted ascending.
func (e *BM25Encoder) Encode(text string) media.SparseVector {
	counts := make(map[uint32]int)
	idf := make(map[uint32]float64)
	for _, tok := range e.Tokens(text) {
		term, ok := e.terms[tok]
		if !ok {
			continue
		}
		counts[term.ID]++
		idf[term.ID] = term.IDF
	}

	ids := make([]uint32, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	vec := media.SparseVector{
		Indices: make([]uint32, 0, len(ids)),
		Values:  make([]float32, 0, len(ids)),
	}
	for _, id := range ids {
		qtf := float64(counts[id])
		w := math.Max(idf[id], 0) * qtf * (e.k1 + 1) / (qtf + e.k1)
		if w <= 0 {
			continue
		}
		vec.Indices = append(vec.Indices, id)
		vec.Values = append(vec.Values, float32(w))
	}
	return vec
}

// VocabularySize returns the number of terms in the model.
func (e *BM25Encoder) VocabularySize() int { return len(e.terms) }
