package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/cinerag/internal/config"
	"github.com/54b3r/cinerag/internal/embedder"
	"github.com/54b3r/cinerag/internal/generation"
	"github.com/54b3r/cinerag/internal/intent"
	"github.com/54b3r/cinerag/internal/media"
	"github.com/54b3r/cinerag/internal/pipeline"
	"github.com/54b3r/cinerag/internal/provider"
	"github.com/54b3r/cinerag/internal/rag"
	"github.com/54b3r/cinerag/internal/rerank"
	"github.com/54b3r/cinerag/internal/server"
	"github.com/54b3r/cinerag/internal/store"
)

// components are the shared, read-only dependencies built once at startup.
type components struct {
	pipeline    *pipeline.Pipeline
	qdrant      *qdrant.Client
	providerCfg *provider.Config
}

// buildPipeline wires every stage from environment configuration. reg may be
// nil to skip metrics. The returned cleanup closes the Qdrant connection.
func buildPipeline(ctx context.Context, log *slog.Logger, reg prometheus.Registerer) (*components, func(), error) {
	providerCfg := provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, providerCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(providerCfg.Backend)),
		slog.String("model", providerCfg.ModelName()),
	)

	classifier, err := intent.NewFromEnv(chatModel)
	if err != nil {
		return nil, nil, err
	}
	gate, err := intent.NewGate(classifier)
	if err != nil {
		return nil, nil, err
	}

	if err := embedder.Validate(log); err != nil {
		return nil, nil, err
	}
	gateway, err := embedder.NewGatewayFromEnv(log)
	if err != nil {
		return nil, nil, err
	}

	qcfg := rag.QdrantConfigFromEnv()
	client, err := rag.NewQdrantClient(&qcfg)
	if err != nil {
		return nil, nil, err
	}
	index := rag.NewQdrantIndex(client, qcfg)
	cleanup := func() {
		if err := index.Close(); err != nil {
			log.Warn("qdrant: close failed", slog.Any("error", err))
		}
	}

	fcfg := rag.FetcherConfigFromEnv()
	fcfg.Logger = log
	if err := checkDimensions(ctx, log, client, qcfg.DenseVector, fcfg.Collections); err != nil {
		cleanup()
		return nil, nil, err
	}
	fetcher, err := rag.NewFetcher(index, fcfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	rcfg := rerank.ConfigFromEnv()
	if rcfg.TopK > fetcher.Limit() {
		log.Warn("rerank: RERANK_TOP_K exceeds RETRIEVAL_LIMIT, clamping",
			slog.Int("top_k", rcfg.TopK),
			slog.Int("retrieval_limit", fetcher.Limit()),
		)
		rcfg.TopK = fetcher.Limit()
	}

	streamer, err := generation.New(chatModel, generation.ConfigFromEnv())
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var metrics *pipeline.Metrics
	if reg != nil {
		metrics = pipeline.NewMetrics(reg)
	}

	p, err := pipeline.New(pipeline.Config{
		Gate:             gate,
		Embedder:         gateway,
		Fetcher:          fetcher,
		Ranker:           rerank.New(rcfg),
		Generator:        streamer,
		Timeouts:         pipeline.TimeoutsFromEnv(),
		SkipSparseOnChat: pipeline.SkipSparseOnChatFromEnv(),
		Metrics:          metrics,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	log.Info("pipeline ready",
		slog.String("qdrant", fmt.Sprintf("%s:%d", qcfg.Host, qcfg.Port)),
		slog.Bool("hybrid", qcfg.Hybrid),
		slog.Int("retrieval_limit", fetcher.Limit()),
		slog.Int("top_k", rcfg.TopK),
	)
	return &components{pipeline: p, qdrant: client, providerCfg: providerCfg}, cleanup, nil
}

// checkDimensions fails when a collection's dense vector size differs from
// what the configured embedder produces. Collections that cannot be
// inspected are logged and skipped; readiness reports an unreachable Qdrant.
func checkDimensions(ctx context.Context, log *slog.Logger, client *qdrant.Client, vector string, collections map[media.Kind]string) error {
	want := embedder.ExpectedDimensions()
	if want == 0 {
		log.Warn("embedder: dimensions unknown for custom EMBEDDING_MODEL, set EMBEDDING_DIMENSIONS to verify collections")
		return nil
	}
	for kind, coll := range collections {
		got, err := rag.DenseVectorSize(ctx, client, coll, vector)
		if err != nil {
			log.Warn("qdrant: could not verify vector size", slog.String("collection", coll), slog.Any("error", err))
			continue
		}
		if got != uint64(want) {
			return fmt.Errorf("collection %q (%s) stores %d-dimensional vectors but the embedder produces %d", coll, kind, got, want)
		}
	}
	return nil
}

// buildPingers returns the readiness probes for the configured dependencies.
func buildPingers(c *components) []server.Pinger {
	pingers := []server.Pinger{server.NewQdrantPinger(c.qdrant)}

	ollamaHosts := map[string]bool{}
	if c.providerCfg.Backend == provider.BackendOllama {
		ollamaHosts[c.providerCfg.Ollama.Host] = true
	}
	if config.Env("EMBEDDING_PROVIDER", config.Env("MODEL_PROVIDER", "ollama")) == "ollama" {
		ollamaHosts[config.Env("EMBEDDING_ENDPOINT", config.Env("OLLAMA_HOST", "http://localhost:11434"))] = true
	}
	for host := range ollamaHosts {
		if host == "" {
			continue
		}
		pingers = append(pingers, server.NewHTTPPinger("ollama", strings.TrimRight(host, "/")+"/api/tags"))
	}

	if endpoint := config.Env("INTENT_ENDPOINT", ""); endpoint != "" {
		pingers = append(pingers, server.NewHTTPPinger("intent", endpoint))
	}
	return pingers
}

// openHistory opens the session store. CINERAG_HISTORY_DB overrides the
// default path (~/.cinerag/history.db); "disabled" turns history off. A
// store that fails to open is logged and disabled.
func openHistory(log *slog.Logger) (store.ConversationStore, func()) {
	dbPath := config.Env("CINERAG_HISTORY_DB", "")
	if dbPath == "disabled" {
		log.Info("history: disabled via CINERAG_HISTORY_DB=disabled")
		return nil, func() {}
	}
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, func() {}
		}
	}
	hs, err := store.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil, func() {}
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs, func() { _ = hs.Close() }
}
