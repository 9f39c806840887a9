// Package intent decides whether a user message asks for recommendations.
// The decision comes from an external classifier; the gate only interprets
// its answer and normalises failures.
package intent

import (
	"context"
	"fmt"

	"github.com/54b3r/cinerag/internal/media"
)

// Classifier reports whether text is a recommendation request.
// Implementations must be safe to call from multiple goroutines.
type Classifier interface {
	Classify(ctx context.Context, text string) (bool, error)
}

// Gate wraps a Classifier so every failure surfaces as media.ErrClassification.
type Gate struct {
	classifier Classifier
}

// NewGate constructs a Gate over c.
func NewGate(c Classifier) (*Gate, error) {
	if c == nil {
		return nil, fmt.Errorf("intent: classifier must not be nil")
	}
	return &Gate{classifier: c}, nil
}

// IsRecommendation returns true when text asks for recommendations.
func (g *Gate) IsRecommendation(ctx context.Context, text string) (bool, error) {
	ok, err := g.classifier.Classify(ctx, text)
	if err != nil {
		return false, fmt.Errorf("intent: classify: %w: %w", media.ErrClassification, err)
	}
	return ok, nil
}
