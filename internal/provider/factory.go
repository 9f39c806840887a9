package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/cinerag/internal/config"
)

// Generation defaults.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1024
)

// ConfigFromEnv resolves a Config from environment variables.
//
//	MODEL_PROVIDER = ollama | openai | azure | ark | gemini | claude (default: ollama)
//
//	Ollama:  OLLAMA_HOST (default: http://localhost:11434), OLLAMA_MODEL (default: llama3.1)
//	OpenAI:  OPENAI_API_KEY, OPENAI_MODEL (default: gpt-4o-mini), OPENAI_BASE_URL
//	Azure:   AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT,
//	         AZURE_OPENAI_API_VERSION (default: 2024-10-21)
//	Ark:     ARK_API_KEY, ARK_MODEL, ARK_BASE_URL
//	Gemini:  GOOGLE_API_KEY, GEMINI_MODEL (default: gemini-2.0-flash)
//	Claude:  ANTHROPIC_API_KEY, ANTHROPIC_MODEL (default: claude-3-haiku-20240307),
//	         ANTHROPIC_BASE_URL
//
//	Shared:  MODEL_MAX_TOKENS (default: 1024), MODEL_TEMPERATURE (default: 0.7)
func ConfigFromEnv() *Config {
	return &Config{
		Backend: Backend(config.Env("MODEL_PROVIDER", string(BackendOllama))),
		Ollama: ProviderOllama{
			Host:  config.Env("OLLAMA_HOST", "http://localhost:11434"),
			Model: config.Env("OLLAMA_MODEL", "llama3.1"),
		},
		OpenAI: ProviderOpenAI{
			APIKey:  config.Env("OPENAI_API_KEY", ""),
			Model:   config.Env("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: config.Env("OPENAI_BASE_URL", ""),
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     config.Env("AZURE_OPENAI_API_KEY", ""),
			Endpoint:   config.Env("AZURE_OPENAI_ENDPOINT", ""),
			Deployment: config.Env("AZURE_OPENAI_DEPLOYMENT", ""),
			APIVersion: config.Env("AZURE_OPENAI_API_VERSION", "2024-10-21"),
		},
		Ark: ProviderArk{
			APIKey:  config.Env("ARK_API_KEY", ""),
			Model:   config.Env("ARK_MODEL", ""),
			BaseURL: config.Env("ARK_BASE_URL", ""),
		},
		Gemini: ProviderGemini{
			APIKey: config.Env("GOOGLE_API_KEY", ""),
			Model:  config.Env("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		Claude: ProviderClaude{
			APIKey:  config.Env("ANTHROPIC_API_KEY", ""),
			Model:   config.Env("ANTHROPIC_MODEL", "claude-3-haiku-20240307"),
			BaseURL: config.Env("ANTHROPIC_BASE_URL", ""),
		},
		Tuning: SharedTuning{
			MaxTokens:   config.EnvInt("MODEL_MAX_TOKENS", DefaultMaxTokens),
			Temperature: float32(config.EnvFloat("MODEL_TEMPERATURE", DefaultTemperature)),
		},
	}
}

// New constructs a chat model from an explicit Config, delegating to the
// appropriate backend. It validates the config first so callers get a
// clear error at startup rather than on the first request.
func New(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var (
		m   model.ToolCallingChatModel
		err error
	)
	switch cfg.Backend {
	case BackendOllama:
		m, err = newOllama(ctx, cfg)
	case BackendOpenAI:
		m, err = newOpenAI(ctx, cfg)
	case BackendAzure:
		m, err = newAzure(ctx, cfg)
	case BackendArk:
		m, err = newArk(ctx, cfg)
	case BackendGemini:
		m, err = newGemini(ctx, cfg)
	case BackendClaude:
		m, err = newClaude(ctx, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("provider: create %s model: %w", cfg.Backend, err)
	}
	return m, nil
}

// ModelName returns the model or deployment name selected by cfg, for logs.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendArk:
		return c.Ark.Model
	case BackendGemini:
		return c.Gemini.Model
	case BackendClaude:
		return c.Claude.Model
	default:
		return ""
	}
}
