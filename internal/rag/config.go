package rag

import (
	"github.com/54b3r/cinerag/internal/config"
	"github.com/54b3r/cinerag/internal/media"
)

// Default collection names per media kind.
const (
	DefaultMovieCollection = "movies"
	DefaultTVCollection    = "tv_shows"
)

// QdrantConfigFromEnv reads QDRANT_HOST, QDRANT_PORT, QDRANT_API_KEY,
// QDRANT_TLS, QDRANT_DENSE_VECTOR, QDRANT_SPARSE_VECTOR and QDRANT_HYBRID.
func QdrantConfigFromEnv() QdrantConfig {
	return QdrantConfig{
		Host:         config.Env("QDRANT_HOST", "localhost"),
		Port:         config.EnvInt("QDRANT_PORT", 6334),
		APIKey:       config.Env("QDRANT_API_KEY", ""),
		UseTLS:       config.EnvBool("QDRANT_TLS", false),
		DenseVector:  config.Env("QDRANT_DENSE_VECTOR", ""),
		SparseVector: config.Env("QDRANT_SPARSE_VECTOR", "bm25"),
		Hybrid:       config.EnvBool("QDRANT_HYBRID", false),
	}
}

// FetcherConfigFromEnv reads QDRANT_MOVIE_COLLECTION, QDRANT_TV_COLLECTION,
// RETRIEVAL_LIMIT, QDRANT_BREAKER_FAILURES and QDRANT_BREAKER_TIMEOUT.
func FetcherConfigFromEnv() FetcherConfig {
	return FetcherConfig{
		Collections: map[media.Kind]string{
			media.KindMovie: config.Env("QDRANT_MOVIE_COLLECTION", DefaultMovieCollection),
			media.KindTV:    config.Env("QDRANT_TV_COLLECTION", DefaultTVCollection),
		},
		Limit: config.EnvInt("RETRIEVAL_LIMIT", DefaultRetrievalLimit),
		Breaker: BreakerConfig{
			FailureThreshold: uint32(max(config.EnvInt("QDRANT_BREAKER_FAILURES", 5), 1)),
			Timeout:          config.EnvDuration("QDRANT_BREAKER_TIMEOUT", 0),
		},
	}
}
