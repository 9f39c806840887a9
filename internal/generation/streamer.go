package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/cinerag/internal/config"
	"github.com/54b3r/cinerag/internal/logging"
	"github.com/54b3r/cinerag/internal/media"
)

// Config tunes prompt assembly.
type Config struct {
	// SystemPrompt overrides DefaultSystemPrompt.
	SystemPrompt string
	// HistoryTurns is the number of user+assistant exchanges forwarded.
	// Defaults to media.DefaultHistoryTurns.
	HistoryTurns int
	// MaxContextTokens bounds the estimated prompt size.
	// Defaults to DefaultMaxContextTokens.
	MaxContextTokens int
}

// ConfigFromEnv reads HISTORY_TURNS and MODEL_MAX_CONTEXT_TOKENS.
func ConfigFromEnv() Config {
	return Config{
		HistoryTurns:     config.EnvInt("HISTORY_TURNS", media.DefaultHistoryTurns),
		MaxContextTokens: config.EnvInt("MODEL_MAX_CONTEXT_TOKENS", DefaultMaxContextTokens),
	}
}

// Request is one generation call.
type Request struct {
	Question  string
	Context   string
	Recommend bool
	Kind      media.Kind
	History   []media.ChatTurn
}

// Streamer relays a chat model's streamed reply. It holds no per-request
// state and is safe for concurrent use.
type Streamer struct {
	model        model.BaseChatModel
	systemPrompt string
	turns        int
	maxTokens    int
}

// New constructs a Streamer over m.
func New(m model.BaseChatModel, cfg Config) (*Streamer, error) {
	if m == nil {
		return nil, fmt.Errorf("generation: chat model must not be nil")
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.HistoryTurns < 0 {
		cfg.HistoryTurns = 0
	} else if cfg.HistoryTurns == 0 {
		cfg.HistoryTurns = media.DefaultHistoryTurns
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = DefaultMaxContextTokens
	}
	return &Streamer{
		model:        m,
		systemPrompt: cfg.SystemPrompt,
		turns:        cfg.HistoryTurns,
		maxTokens:    cfg.MaxContextTokens,
	}, nil
}

// Messages assembles system prompt, trimmed history, and the user message.
// History is first cut to the configured number of turns, then oldest
// messages are dropped until the estimated prompt fits the token budget.
func (s *Streamer) Messages(req Request) []*schema.Message {
	system := schema.SystemMessage(s.systemPrompt)
	user := schema.UserMessage(ComposeUserMessage(req.Question, req.Kind, req.Context, req.Recommend))

	recent := media.RecentTurns(req.History, s.turns)
	history := make([]*schema.Message, 0, len(recent))
	for _, t := range recent {
		switch t.Role {
		case media.RoleUser:
			history = append(history, schema.UserMessage(t.Content))
		case media.RoleAssistant:
			history = append(history, schema.AssistantMessage(t.Content, nil))
		}
	}
	history = trimHistory([]*schema.Message{system, user}, history, s.maxTokens)

	msgs := make([]*schema.Message, 0, len(history)+2)
	msgs = append(msgs, system)
	msgs = append(msgs, history...)
	return append(msgs, user)
}

// Stream sends the prompt to the model and writes each streamed delta to w
// as a single Write call, in arrival order and unmodified. It returns the
// concatenated reply. Backend failures are wrapped with media.ErrGeneration;
// cancellation of ctx stops the read loop and closes the stream.
func (s *Streamer) Stream(ctx context.Context, req Request, w io.Writer) (string, error) {
	log := logging.FromContext(ctx)
	msgs := s.Messages(req)

	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "recommendation",
		Type:      "ChatModel",
		Component: components.ComponentOfChatModel,
	})

	sr, err := s.model.Stream(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("generation: open stream: %w: %w", media.ErrGeneration, err)
	}
	defer sr.Close()

	var full strings.Builder
	deltas := 0
	for {
		if err := ctx.Err(); err != nil {
			return full.String(), fmt.Errorf("generation: %w", err)
		}
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return full.String(), fmt.Errorf("generation: %w", ctxErr)
			}
			return full.String(), fmt.Errorf("generation: receive: %w: %w", media.ErrGeneration, err)
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		if _, err := io.WriteString(w, msg.Content); err != nil {
			return full.String(), fmt.Errorf("generation: write: %w", err)
		}
		full.WriteString(msg.Content)
		deltas++
	}

	log.Debug("generation: stream complete",
		slog.Int("deltas", deltas),
		slog.Int("chars", full.Len()),
		slog.Int("prompt_messages", len(msgs)),
	)
	return full.String(), nil
}
