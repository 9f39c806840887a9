package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const classifierPrompt = "You are a helpful assistant that detects whether a message asks for " +
	"movie or TV show recommendations. Respond only with 'yes' or 'no'."

// ChatClassifier asks a chat model to answer yes or no. It is used when no
// dedicated classification endpoint is deployed.
type ChatClassifier struct {
	model model.BaseChatModel
}

// NewChatClassifier constructs a ChatClassifier over m.
func NewChatClassifier(m model.BaseChatModel) (*ChatClassifier, error) {
	if m == nil {
		return nil, fmt.Errorf("intent: chat model must not be nil")
	}
	return &ChatClassifier{model: m}, nil
}

// Classify implements Classifier.
func (c *ChatClassifier) Classify(ctx context.Context, text string) (bool, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(classifierPrompt),
		schema.UserMessage("Message: " + text),
	}
	resp, err := c.model.Generate(ctx, msgs, model.WithTemperature(0), model.WithMaxTokens(3))
	if err != nil {
		return false, fmt.Errorf("intent: chat model: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(resp.Content))
	return strings.HasPrefix(answer, "yes"), nil
}
