package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/54b3r/cinerag/internal/config"
	"github.com/54b3r/cinerag/internal/media"
	"github.com/54b3r/cinerag/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// Default locations of the sparse vocabularies, relative to the working directory.
const (
	DefaultSparseMovieModel = "data/bm25/movie_bm25.json"
	DefaultSparseTVModel    = "data/bm25/tv_bm25.json"
)

// ExpectedDimensions returns the dense vector size the configured embedder
// produces: EMBEDDING_DIMENSIONS when set, otherwise the size of the
// backend's default model. It returns 0 when a custom model is configured
// without EMBEDDING_DIMENSIONS.
func ExpectedDimensions() int {
	if v := config.EnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	model := config.Env("EMBEDDING_MODEL", "")
	switch resolveBackend() {
	case "ollama":
		if model == "" || model == defaultOllamaModel {
			return defaultOllamaDimensions
		}
	case "openai", "azure":
		if model == "" || model == defaultOpenAIModel {
			return defaultOpenAIDimensions
		}
	}
	return 0
}

// resolveBackend returns EMBEDDING_PROVIDER, falling back to MODEL_PROVIDER
// and then "ollama".
func resolveBackend() string {
	if b := config.Env("EMBEDDING_PROVIDER", ""); b != "" {
		return b
	}
	return config.Env("MODEL_PROVIDER", "ollama")
}

// NewFromEnv constructs the dense rag.Embedder using cascading defaults that
// inherit from the chat provider configuration when embedding-specific
// overrides are not set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER, else MODEL_PROVIDER, else ollama
//  2. Per-backend credentials are inherited from the chat provider's env vars
//  3. EMBEDDING_MODEL overrides the default model for the resolved backend
//  4. EMBEDDING_API_KEY overrides the inherited API key
//  5. EMBEDDING_ENDPOINT overrides the inherited endpoint
//  6. EMBEDDING_DIMENSIONS overrides the default dimensions
//  7. EMBEDDING_CACHE_SIZE sets the LRU size (default 1000; negative disables)
func NewFromEnv() (rag.Embedder, error) {
	backend := resolveBackend()
	timeout := config.EnvDuration("EMBEDDING_TIMEOUT", 30*time.Second)

	var (
		inner rag.Embedder
		model string
	)
	switch backend {
	case "ollama":
		host := config.Env("EMBEDDING_ENDPOINT", config.Env("OLLAMA_HOST", "http://localhost:11434"))
		model = config.Env("EMBEDDING_MODEL", defaultOllamaModel)
		inner = NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model, Timeout: timeout})

	case "openai":
		apiKey := config.Env("EMBEDDING_API_KEY", config.Env("OPENAI_API_KEY", ""))
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		model = config.Env("EMBEDDING_MODEL", defaultOpenAIModel)
		inner = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    config.Env("EMBEDDING_ENDPOINT", ""),
			APIKey:     apiKey,
			Model:      model,
			Dimensions: config.EnvInt("EMBEDDING_DIMENSIONS", 0),
		})

	case "azure":
		apiKey := config.Env("EMBEDDING_API_KEY", config.Env("AZURE_OPENAI_API_KEY", ""))
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := config.Env("EMBEDDING_ENDPOINT", config.Env("AZURE_OPENAI_ENDPOINT", ""))
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		model = config.Env("EMBEDDING_MODEL", defaultOpenAIModel)
		inner = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint,
			APIKey:     apiKey,
			Model:      model,
			Dimensions: config.EnvInt("EMBEDDING_DIMENSIONS", 0),
			Azure:      true,
			APIVersion: config.Env("AZURE_OPENAI_API_VERSION", "2024-10-21"),
		})

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid: ollama, openai, azure)", backend)
	}

	size := config.EnvInt("EMBEDDING_CACHE_SIZE", DefaultCacheSize)
	if size < 0 {
		return inner, nil
	}
	return NewCachedEmbedder(inner, backend+"/"+model, size)
}

// LoadSparseFromEnv loads the BM25 vocabulary of every media kind from
// SPARSE_MOVIE_MODEL and SPARSE_TV_MODEL. A missing or unreadable artifact
// is an error; the process must not start without both.
func LoadSparseFromEnv(log *slog.Logger) (map[media.Kind]SparseEncoder, error) {
	paths := map[media.Kind]string{
		media.KindMovie: config.Env("SPARSE_MOVIE_MODEL", DefaultSparseMovieModel),
		media.KindTV:    config.Env("SPARSE_TV_MODEL", DefaultSparseTVModel),
	}
	out := make(map[media.Kind]SparseEncoder, len(paths))
	for kind, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("embedder: sparse model for %s: %w", kind, err)
		}
		enc, err := LoadBM25(path)
		if err != nil {
			return nil, err
		}
		log.Info("embedder: sparse model loaded",
			slog.String("kind", string(kind)),
			slog.String("path", path),
			slog.Int("vocabulary", enc.VocabularySize()),
		)
		out[kind] = enc
	}
	return out, nil
}

// NewGatewayFromEnv builds the dense embedder and loads every sparse
// vocabulary. It fails if any artifact is missing.
func NewGatewayFromEnv(log *slog.Logger) (*Gateway, error) {
	dense, err := NewFromEnv()
	if err != nil {
		return nil, err
	}
	sparse, err := LoadSparseFromEnv(log)
	if err != nil {
		return nil, err
	}
	return NewGateway(dense, sparse)
}
