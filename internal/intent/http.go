package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultLabel is the classifier label that marks a recommendation request.
const DefaultLabel = "recommendation"

// HTTPClassifier calls a text-classification inference endpoint that accepts
// {"inputs": text} and answers with a list of {label, score} pairs, either
// flat or nested one level (one list per input). The text is a
// recommendation request when the highest-scoring label equals Label.
type HTTPClassifier struct {
	endpoint string
	apiKey   string
	label    string
	client   *http.Client
}

// HTTPConfig holds the settings for constructing an HTTPClassifier.
type HTTPConfig struct {
	// Endpoint is the full inference URL.
	Endpoint string
	// APIKey is sent as a Bearer token when non-empty.
	APIKey string
	// Label is the positive label. Defaults to DefaultLabel.
	Label string
	// Timeout bounds a single request. Defaults to 10s.
	Timeout time.Duration
}

// NewHTTPClassifier constructs an HTTPClassifier.
func NewHTTPClassifier(cfg HTTPConfig) (*HTTPClassifier, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("intent: http classifier requires an endpoint")
	}
	if cfg.Label == "" {
		cfg.Label = DefaultLabel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPClassifier{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		label:    cfg.Label,
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type classifyRequest struct {
	Inputs string `json:"inputs"`
}

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classify implements Classifier.
func (c *HTTPClassifier) Classify(ctx context.Context, text string) (bool, error) {
	payload, err := json.Marshal(classifyRequest{Inputs: text})
	if err != nil {
		return false, fmt.Errorf("intent: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("intent: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("intent: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("intent: classifier returned HTTP %d", resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return false, fmt.Errorf("intent: decode response: %w", err)
	}
	scores, err := parseScores(raw)
	if err != nil {
		return false, err
	}
	return topLabel(scores) == c.label, nil
}

// parseScores accepts [{label,score}] or [[{label,score}]].
func parseScores(raw json.RawMessage) ([]labelScore, error) {
	var flat []labelScore
	if err := json.Unmarshal(raw, &flat); err == nil {
		if len(flat) == 0 {
			return nil, fmt.Errorf("intent: classifier returned no labels")
		}
		return flat, nil
	}
	var nested [][]labelScore
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, fmt.Errorf("intent: unexpected response shape: %w", err)
	}
	if len(nested) == 0 || len(nested[0]) == 0 {
		return nil, fmt.Errorf("intent: classifier returned no labels")
	}
	return nested[0], nil
}

func topLabel(scores []labelScore) string {
	best := scores[0]
	for _, s := range scores[1:] {
		if s.Score > best.Score {
			best = s
		}
	}
	return best.Label
}
