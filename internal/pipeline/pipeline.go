// Package pipeline runs one chat request end to end: facet filtering, intent
// classification and query embedding in parallel, candidate retrieval,
// reranking, context assembly and streamed generation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/cinerag/internal/filter"
	"github.com/54b3r/cinerag/internal/generation"
	"github.com/54b3r/cinerag/internal/logging"
	"github.com/54b3r/cinerag/internal/media"
	"github.com/54b3r/cinerag/internal/rag"
)

// CandidateFetcher retrieves candidates from the vector index.
type CandidateFetcher interface {
	Fetch(ctx context.Context, req rag.FetchRequest) ([]media.Candidate, error)
}

// Ranker orders candidates and truncates them to the configured top-k.
type Ranker interface {
	Rerank(candidates []media.Candidate) []media.Candidate
}

// Generator streams a reply to w and returns the full text.
type Generator interface {
	Stream(ctx context.Context, req generation.Request, w io.Writer) (string, error)
}

// Intent label values used in logs and metrics.
const (
	intentGreeting       = "greeting"
	intentRecommendation = "recommendation"
	intentConversation   = "conversation"
	intentUnknown        = "unknown"
)

// greetingFormat is sent for an empty question; %s is the kind's emoji.
const greetingFormat = "Hi there, what are you in the mood for today? %s"

// Greeting returns the canned reply for an empty question.
func Greeting(kind media.Kind) string {
	return fmt.Sprintf(greetingFormat, kind.Emoji())
}

// Request is a single chat turn with its facets.
type Request struct {
	// Question is the user's message.
	Question string
	// History is the prior conversation, oldest first.
	History []media.ChatTurn
	// Kind selects the catalogue. Empty means movie.
	Kind media.Kind
	// Genres restricts candidates to any of these genres.
	Genres []string
	// Providers restricts candidates to any of these streaming providers.
	Providers []string
	// Years restricts candidates by release year. Zero means the full range.
	Years media.YearRange
}

// Result summarises a completed Chat call.
type Result struct {
	// Reply is the full text written to the caller.
	Reply string
	// Recommend reports the intent decision. False for greetings.
	Recommend bool
	// Candidates is the number of candidates placed in the prompt.
	Candidates int
}

// Config wires the pipeline's collaborators.
type Config struct {
	Gate      IntentGate
	Embedder  QueryEmbedder
	Fetcher   CandidateFetcher
	Ranker    Ranker
	Generator Generator

	// Limit is passed to the fetcher. Zero uses the fetcher's default.
	Limit int
	// Timeouts bounds each stage. Zero fields take DefaultTimeouts.
	Timeouts Timeouts
	// SkipSparseOnChat skips the sparse embedding for non-recommendation
	// messages.
	SkipSparseOnChat bool
	// Metrics is optional.
	Metrics *Metrics
}

// Pipeline serves chat requests. It holds no per-request state and is safe
// for concurrent use.
type Pipeline struct {
	orchestrator *Orchestrator
	fetcher      CandidateFetcher
	ranker       Ranker
	generator    Generator
	limit        int
	timeouts     Timeouts
	metrics      *Metrics
}

// New validates cfg and constructs a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("pipeline: fetcher must not be nil")
	}
	if cfg.Ranker == nil {
		return nil, fmt.Errorf("pipeline: ranker must not be nil")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("pipeline: generator must not be nil")
	}
	orch, err := NewOrchestrator(cfg.Gate, cfg.Embedder, cfg.Timeouts, cfg.SkipSparseOnChat, cfg.Metrics)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		orchestrator: orch,
		fetcher:      cfg.Fetcher,
		ranker:       cfg.Ranker,
		generator:    cfg.Generator,
		limit:        cfg.Limit,
		timeouts:     orch.timeouts,
		metrics:      cfg.Metrics,
	}, nil
}

// Chat answers req, writing the reply to w as it is generated. Errors raised
// before generation starts are returned without writing anything to w.
func (p *Pipeline) Chat(ctx context.Context, req Request, w io.Writer) (*Result, error) {
	start := time.Now()
	kind := req.Kind
	if kind == "" {
		kind = media.KindMovie
	}
	if !kind.Valid() {
		err := fmt.Errorf("pipeline: chat: %w: %q", media.ErrUnknownMediaKind, string(req.Kind))
		p.metrics.observeRequest(intentUnknown, err)
		return nil, err
	}

	ctx = logging.With(ctx, slog.String("kind", string(kind)))
	log := logging.FromContext(ctx)

	if strings.TrimSpace(req.Question) == "" {
		greeting := Greeting(kind)
		_, err := io.WriteString(w, greeting)
		p.metrics.observeRequest(intentGreeting, err)
		if err != nil {
			return nil, fmt.Errorf("pipeline: chat: write greeting: %w", err)
		}
		return &Result{Reply: greeting}, nil
	}

	res, intent, err := p.chat(ctx, kind, req, w)
	p.metrics.observeRequest(intent, err)
	if err != nil {
		log.Warn("pipeline: chat failed",
			slog.String("intent", intent),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	log.Info("pipeline: chat complete",
		slog.String("intent", intent),
		slog.Int("candidates", res.Candidates),
		slog.Int("reply_chars", len(res.Reply)),
		slog.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (p *Pipeline) chat(ctx context.Context, kind media.Kind, req Request, w io.Writer) (*Result, string, error) {
	pred, err := filter.Build(req.Genres, req.Providers, req.Years)
	if err != nil {
		return nil, intentUnknown, err
	}

	prep, err := p.orchestrator.Prepare(ctx, req.Question, kind)
	if err != nil {
		return nil, intentUnknown, err
	}

	intent := intentConversation
	contextBlock := ""
	used := 0
	if prep.Recommend {
		intent = intentRecommendation
		ranked, err := p.retrieve(ctx, kind, pred, prep)
		if err != nil {
			return nil, intent, err
		}
		contextBlock = FormatContext(ranked)
		used = len(ranked)
	}

	var reply string
	err = runStage(ctx, p.metrics, stageGenerate, p.timeouts.Generate, func(ctx context.Context) error {
		var err error
		reply, err = p.generator.Stream(ctx, generation.Request{
			Question:  req.Question,
			Context:   contextBlock,
			Recommend: prep.Recommend,
			Kind:      kind,
			History:   req.History,
		}, w)
		return err
	})
	if err != nil {
		return nil, intent, err
	}
	return &Result{Reply: reply, Recommend: prep.Recommend, Candidates: used}, intent, nil
}

// retrieve fetches candidates matching pred and reranks them.
func (p *Pipeline) retrieve(ctx context.Context, kind media.Kind, pred filter.Predicate, prep *Prepared) ([]media.Candidate, error) {
	var candidates []media.Candidate
	err := runStage(ctx, p.metrics, stageFetch, p.timeouts.Fetch, func(ctx context.Context) error {
		var err error
		candidates, err = p.fetcher.Fetch(ctx, rag.FetchRequest{
			Kind:      kind,
			Dense:     prep.Dense,
			Sparse:    prep.Sparse,
			Predicate: pred,
			Limit:     p.limit,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	p.metrics.observeCandidates(len(candidates))

	start := time.Now()
	ranked := p.ranker.Rerank(candidates)
	p.metrics.observeStage(stageRerank, time.Since(start), nil)

	logging.FromContext(ctx).Debug("pipeline: candidates ranked",
		slog.Int("retrieved", len(candidates)),
		slog.Int("kept", len(ranked)),
	)
	return ranked, nil
}

// IsClientError reports whether err was caused by the request itself rather
// than by a downstream dependency.
func IsClientError(err error) bool {
	return errors.Is(err, media.ErrInvalidFilter) || errors.Is(err, media.ErrUnknownMediaKind)
}
