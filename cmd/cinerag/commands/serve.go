package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/cinerag/internal/config"
	"github.com/54b3r/cinerag/internal/logging"
	"github.com/54b3r/cinerag/internal/media"
	"github.com/54b3r/cinerag/internal/server"
	"github.com/54b3r/cinerag/internal/tracing"
)

// NewServeCmd constructs the `cinerag serve` command, which starts the HTTP
// server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the cinerag HTTP server",
		Long: `Start the cinerag HTTP server.

Endpoints:
  POST   /api/chat            stream a reply as Server-Sent Events
  DELETE /api/sessions/{id}   forget a session's history
  GET    /api/health          liveness
  GET    /api/ready           dependency readiness (Qdrant, Ollama, intent endpoint)
  GET    /metrics             Prometheus metrics

Examples:
  cinerag serve
  cinerag serve --port 9090
  MODEL_PROVIDER=openai QDRANT_HYBRID=true cinerag serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			flush := tracing.Enable(log)
			defer flush()

			comps, cleanup, err := buildPipeline(ctx, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer cleanup()

			history, closeHistory := openHistory(log)
			defer closeHistory()

			if !cmd.Flags().Changed("host") {
				host = config.Env("CINERAG_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = config.EnvInt("CINERAG_PORT", port)
			}

			srv, err := server.New(comps.pipeline, &server.Config{
				Host:         host,
				Port:         port,
				Logger:       log,
				Pingers:      buildPingers(comps),
				RateLimit:    config.EnvFloat("CINERAG_RATE_LIMIT", 0),
				RateBurst:    config.EnvInt("CINERAG_RATE_BURST", 0),
				APIKey:       config.Env("CINERAG_API_KEY", ""),
				History:      history,
				HistoryTurns: config.EnvInt("HISTORY_TURNS", media.DefaultHistoryTurns),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env CINERAG_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (env CINERAG_PORT)")

	return cmd
}
