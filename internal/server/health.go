package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/cinerag/internal/logging"
)

// probeTimeout bounds each dependency probe in a readiness check.
const probeTimeout = 5 * time.Second

// Pinger reports whether a dependency the pipeline calls (Qdrant, the
// embedding host, the intent endpoint) is reachable. Implementations must be
// safe for concurrent use.
type Pinger interface {
	// Ping returns nil when the dependency is reachable.
	Ping(ctx context.Context) error

	// Name labels the dependency in readiness responses and metrics.
	Name() string
}

// readyCheck is one dependency's probe result.
type readyCheck struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// readyResponse is the JSON body returned by GET /api/ready.
type readyResponse struct {
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// handleReady handles GET /api/ready. All pingers are probed concurrently, so
// the response time is that of the slowest dependency. It answers 200 when
// every probe succeeds and 503 otherwise; checks keep the pinger order.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := s.probe(r.Context())

	resp := readyResponse{Ready: true, Checks: checks}
	for _, c := range checks {
		if !c.OK {
			resp.Ready = false
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// probe runs every pinger and records each outcome in the dependency gauge.
func (s *Server) probe(ctx context.Context) []readyCheck {
	log := logging.FromContext(ctx)
	checks := make([]readyCheck, len(s.pingers))

	var g errgroup.Group
	for i, p := range s.pingers {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()

			start := time.Now()
			err := p.Ping(pctx)
			c := readyCheck{Name: p.Name(), OK: err == nil, LatencyMS: time.Since(start).Milliseconds()}

			up := 1.0
			if err != nil {
				up = 0
				c.Error = err.Error()
				log.Warn("readiness probe failed", slog.String("dependency", c.Name), slog.Any("error", err))
			}
			s.metrics.dependencyUp.WithLabelValues(c.Name).Set(up)
			checks[i] = c
			return nil
		})
	}
	_ = g.Wait()
	return checks
}
