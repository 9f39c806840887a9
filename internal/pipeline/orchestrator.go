package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/cinerag/internal/logging"
	"github.com/54b3r/cinerag/internal/media"
)

// IntentGate decides whether a message asks for recommendations.
type IntentGate interface {
	IsRecommendation(ctx context.Context, text string) (bool, error)
}

// QueryEmbedder produces the dense and kind-specific sparse query vectors.
type QueryEmbedder interface {
	EmbedDense(ctx context.Context, text string) ([]float32, error)
	EmbedSparse(ctx context.Context, text string, kind media.Kind) (media.SparseVector, error)
}

// Prepared is the outcome of the pre-retrieval fan-out.
type Prepared struct {
	// Recommend is the intent decision.
	Recommend bool
	// Dense is the query embedding.
	Dense []float32
	// Sparse is the lexical query vector. Empty when skipped.
	Sparse media.SparseVector
}

// Orchestrator runs intent classification and dense embedding concurrently,
// then computes the sparse vector once both have succeeded.
type Orchestrator struct {
	gate       IntentGate
	embedder   QueryEmbedder
	timeouts   Timeouts
	skipSparse bool
	metrics    *Metrics
}

// NewOrchestrator wires the gate and embedder. When skipSparseOnChat is set
// the sparse vector is not computed for non-recommendation messages.
func NewOrchestrator(gate IntentGate, embedder QueryEmbedder, timeouts Timeouts, skipSparseOnChat bool, metrics *Metrics) (*Orchestrator, error) {
	if gate == nil {
		return nil, fmt.Errorf("pipeline: intent gate must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("pipeline: embedder must not be nil")
	}
	return &Orchestrator{
		gate:       gate,
		embedder:   embedder,
		timeouts:   timeouts.withDefaults(),
		skipSparse: skipSparseOnChat,
		metrics:    metrics,
	}, nil
}

// Prepare classifies text and embeds it. Classification and dense embedding
// start together, each under its own timeout; the first failure cancels the
// other leg and is returned as is. The sparse embedding runs after the join.
func (o *Orchestrator) Prepare(ctx context.Context, text string, kind media.Kind) (*Prepared, error) {
	log := logging.FromContext(ctx)
	out := &Prepared{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.timed(gctx, stageClassify, o.timeouts.Classify, func(ctx context.Context) error {
			ok, err := o.gate.IsRecommendation(ctx, text)
			out.Recommend = ok
			return err
		})
	})
	g.Go(func() error {
		return o.timed(gctx, stageDenseEmbed, o.timeouts.DenseEmbed, func(ctx context.Context) error {
			vec, err := o.embedder.EmbedDense(ctx, text)
			out.Dense = vec
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if o.skipSparse && !out.Recommend {
		log.Debug("pipeline: sparse embedding skipped for non-recommendation message")
		return out, nil
	}

	err := o.timed(ctx, stageSparseEmbed, o.timeouts.SparseEmbed, func(ctx context.Context) error {
		vec, err := o.embedder.EmbedSparse(ctx, text, kind)
		out.Sparse = vec
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// timed runs fn under a per-stage timeout and records its duration.
func (o *Orchestrator) timed(ctx context.Context, stage string, timeout time.Duration, fn func(context.Context) error) error {
	return runStage(ctx, o.metrics, stage, timeout, fn)
}

// runStage bounds fn by timeout, observes the stage latency, and logs it.
func runStage(ctx context.Context, m *Metrics, stage string, timeout time.Duration, fn func(context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(sctx)
	elapsed := time.Since(start)

	m.observeStage(stage, elapsed, err)
	logging.FromContext(ctx).Debug("pipeline: stage finished",
		slog.String("stage", stage),
		slog.Duration("duration", elapsed),
		slog.Bool("ok", err == nil),
	)
	return err
}
