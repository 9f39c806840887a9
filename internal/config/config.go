// Package config provides YAML-based configuration for cinerag.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so existing workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. CINERAG_CONFIG environment variable
//  3. ~/.cinerag/config.yaml
//  4. ./cinerag.yaml
//
// If no file is found the system runs entirely from env vars (backwards compatible).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the chat model used for generation.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the dense query embedder.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Sparse locates the per-kind BM25 artifacts.
	Sparse SparseConfig `yaml:"sparse"`

	// Intent configures the recommendation classifier.
	Intent IntentConfig `yaml:"intent"`

	// Qdrant configures the vector index connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Retrieval bounds the candidate fetch.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Rerank tunes the fused score.
	Rerank RerankConfig `yaml:"rerank"`

	// Pipeline holds per-stage timeouts.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// History configures conversation history persistence.
	History HistoryConfig `yaml:"history"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds chat model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, ark, gemini, claude.
	Provider string `yaml:"provider"`

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`

	// MaxContextTokens bounds the estimated prompt size.
	MaxContextTokens int `yaml:"max_context_tokens"`

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`

	Ollama OllamaConfig `yaml:"ollama"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Azure  AzureConfig  `yaml:"azure"`
	Ark    ArkConfig    `yaml:"ark"`
	Gemini GeminiConfig `yaml:"gemini"`
	Claude ClaudeConfig `yaml:"claude"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the Ollama model name.
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the OpenAI model name.
	Model string `yaml:"model"`
	// BaseURL points at an OpenAI-compatible server.
	BaseURL string `yaml:"base_url"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Ark endpoint or model id.
	Model string `yaml:"model"`
	// BaseURL overrides the regional Ark endpoint.
	BaseURL string `yaml:"base_url"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Gemini model name.
	Model string `yaml:"model"`
}

// ClaudeConfig holds Anthropic provider settings.
type ClaudeConfig struct {
	// APIKey is the Anthropic API key. Prefer env var ANTHROPIC_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Claude model name.
	Model string `yaml:"model"`
	// BaseURL overrides the Anthropic API endpoint.
	BaseURL string `yaml:"base_url"`
}

// EmbeddingConfig holds dense embedding settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// Timeout bounds one embedding call (Go duration, e.g. "10s").
	Timeout string `yaml:"timeout"`
	// CacheSize is the number of cached query vectors. Negative disables.
	CacheSize int `yaml:"cache_size"`
}

// SparseConfig holds the BM25 artifact paths.
type SparseConfig struct {
	MovieModel string `yaml:"movie_model"`
	TVModel    string `yaml:"tv_model"`
}

// IntentConfig holds classifier settings.
type IntentConfig struct {
	// Provider is "http" (inference endpoint) or "llm" (chat model).
	Provider string `yaml:"provider"`
	// Endpoint is the inference URL for the http provider.
	Endpoint string `yaml:"endpoint"`
	// APIKey is sent as a bearer token. Prefer env var INTENT_API_KEY.
	APIKey string `yaml:"api_key"`
	// Label is the positive class name.
	Label string `yaml:"label"`
	// Timeout bounds one classification call.
	Timeout string `yaml:"timeout"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
	// MovieCollection and TVCollection name the per-kind collections.
	MovieCollection string `yaml:"movie_collection"`
	TVCollection    string `yaml:"tv_collection"`
	// DenseVector and SparseVector name the vectors used in hybrid mode.
	DenseVector  string `yaml:"dense_vector"`
	SparseVector string `yaml:"sparse_vector"`
	// Hybrid enables dense+sparse prefetch with RRF fusion.
	Hybrid bool `yaml:"hybrid"`
	// BreakerFailures is the consecutive failure count that opens the breaker.
	BreakerFailures int `yaml:"breaker_failures"`
	// BreakerTimeout is how long the breaker stays open.
	BreakerTimeout string `yaml:"breaker_timeout"`
}

// RetrievalConfig bounds the candidate fetch.
type RetrievalConfig struct {
	Limit int `yaml:"limit"`
}

// RerankConfig tunes the fused score. Zero weights fall back to defaults;
// use the env vars to set a weight to exactly zero.
type RerankConfig struct {
	TopK          int     `yaml:"top_k"`
	MaxPopularity float64 `yaml:"max_popularity"`
	Semantic      float64 `yaml:"weight_semantic"`
	Popularity    float64 `yaml:"weight_popularity"`
	Rating        float64 `yaml:"weight_rating"`
}

// PipelineConfig holds per-stage timeouts (Go durations).
type PipelineConfig struct {
	ClassifyTimeout  string `yaml:"classify_timeout"`
	DenseTimeout     string `yaml:"dense_timeout"`
	SparseTimeout    string `yaml:"sparse_timeout"`
	FetchTimeout     string `yaml:"fetch_timeout"`
	GenerateTimeout  string `yaml:"generate_timeout"`
	SkipSparseOnChat bool   `yaml:"skip_sparse_on_chat"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var CINERAG_API_KEY.
	APIKey string `yaml:"api_key"`
	// RateLimit is the per-IP request rate (requests/second).
	RateLimit float64 `yaml:"rate_limit"`
	// RateBurst is the per-IP burst size.
	RateBurst int `yaml:"rate_burst"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// HistoryConfig holds conversation history settings.
type HistoryConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
	// Turns is how many user+assistant exchanges reach the prompt.
	Turns int `yaml:"turns"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_MAX_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.Model.MaxContextTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"ANTHROPIC_API_KEY", func(c *Config) string { return c.Model.Claude.APIKey }},
	{"ANTHROPIC_MODEL", func(c *Config) string { return c.Model.Claude.Model }},
	{"ANTHROPIC_BASE_URL", func(c *Config) string { return c.Model.Claude.BaseURL }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_TIMEOUT", func(c *Config) string { return c.Embedding.Timeout }},
	{"EMBEDDING_CACHE_SIZE", func(c *Config) string { return intStr(c.Embedding.CacheSize) }},
	{"SPARSE_MOVIE_MODEL", func(c *Config) string { return c.Sparse.MovieModel }},
	{"SPARSE_TV_MODEL", func(c *Config) string { return c.Sparse.TVModel }},
	{"INTENT_PROVIDER", func(c *Config) string { return c.Intent.Provider }},
	{"INTENT_ENDPOINT", func(c *Config) string { return c.Intent.Endpoint }},
	{"INTENT_API_KEY", func(c *Config) string { return c.Intent.APIKey }},
	{"INTENT_LABEL", func(c *Config) string { return c.Intent.Label }},
	{"INTENT_TIMEOUT", func(c *Config) string { return c.Intent.Timeout }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"QDRANT_MOVIE_COLLECTION", func(c *Config) string { return c.Qdrant.MovieCollection }},
	{"QDRANT_TV_COLLECTION", func(c *Config) string { return c.Qdrant.TVCollection }},
	{"QDRANT_DENSE_VECTOR", func(c *Config) string { return c.Qdrant.DenseVector }},
	{"QDRANT_SPARSE_VECTOR", func(c *Config) string { return c.Qdrant.SparseVector }},
	{"QDRANT_HYBRID", func(c *Config) string { return boolStr(c.Qdrant.Hybrid) }},
	{"QDRANT_BREAKER_FAILURES", func(c *Config) string { return intStr(c.Qdrant.BreakerFailures) }},
	{"QDRANT_BREAKER_TIMEOUT", func(c *Config) string { return c.Qdrant.BreakerTimeout }},
	{"RETRIEVAL_LIMIT", func(c *Config) string { return intStr(c.Retrieval.Limit) }},
	{"RERANK_TOP_K", func(c *Config) string { return intStr(c.Rerank.TopK) }},
	{"RERANK_MAX_POPULARITY", func(c *Config) string { return float64Str(c.Rerank.MaxPopularity) }},
	{"RERANK_WEIGHT_SEMANTIC", func(c *Config) string { return float64Str(c.Rerank.Semantic) }},
	{"RERANK_WEIGHT_POPULARITY", func(c *Config) string { return float64Str(c.Rerank.Popularity) }},
	{"RERANK_WEIGHT_RATING", func(c *Config) string { return float64Str(c.Rerank.Rating) }},
	{"PIPELINE_CLASSIFY_TIMEOUT", func(c *Config) string { return c.Pipeline.ClassifyTimeout }},
	{"PIPELINE_DENSE_TIMEOUT", func(c *Config) string { return c.Pipeline.DenseTimeout }},
	{"PIPELINE_SPARSE_TIMEOUT", func(c *Config) string { return c.Pipeline.SparseTimeout }},
	{"PIPELINE_FETCH_TIMEOUT", func(c *Config) string { return c.Pipeline.FetchTimeout }},
	{"PIPELINE_GENERATE_TIMEOUT", func(c *Config) string { return c.Pipeline.GenerateTimeout }},
	{"PIPELINE_SKIP_SPARSE_ON_CHAT", func(c *Config) string { return boolStr(c.Pipeline.SkipSparseOnChat) }},
	{"CINERAG_HOST", func(c *Config) string { return c.Server.Host }},
	{"CINERAG_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"CINERAG_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"CINERAG_RATE_LIMIT", func(c *Config) string { return float64Str(c.Server.RateLimit) }},
	{"CINERAG_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"CINERAG_HISTORY_DB", func(c *Config) string { return c.History.DBPath }},
	{"HISTORY_TURNS", func(c *Config) string { return intStr(c.History.Turns) }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set; do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("CINERAG_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".cinerag", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("cinerag.yaml"); err == nil {
		return "cinerag.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// float64Str converts a float64 to string, returning "" for zero values.
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
