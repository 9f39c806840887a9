package intent

import (
	"fmt"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/cinerag/internal/config"
)

// NewFromEnv builds the classifier selected by INTENT_PROVIDER:
//
//   - "http" (default when INTENT_ENDPOINT is set): HTTPClassifier using
//     INTENT_ENDPOINT, INTENT_API_KEY, INTENT_LABEL and INTENT_TIMEOUT
//   - "llm" (default otherwise): ChatClassifier over chat
func NewFromEnv(chat model.BaseChatModel) (Classifier, error) {
	endpoint := config.Env("INTENT_ENDPOINT", "")
	provider := config.Env("INTENT_PROVIDER", "")
	if provider == "" {
		provider = "llm"
		if endpoint != "" {
			provider = "http"
		}
	}

	switch provider {
	case "http":
		return NewHTTPClassifier(HTTPConfig{
			Endpoint: endpoint,
			APIKey:   config.Env("INTENT_API_KEY", ""),
			Label:    config.Env("INTENT_LABEL", DefaultLabel),
			Timeout:  config.EnvDuration("INTENT_TIMEOUT", 0),
		})
	case "llm":
		return NewChatClassifier(chat)
	default:
		return nil, fmt.Errorf("intent: unknown provider %q (valid: http, llm)", provider)
	}
}
