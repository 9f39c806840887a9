package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/cinerag/internal/pipeline"
	"github.com/54b3r/cinerag/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds a whole /api/chat request, generation included.
	ChatTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained rate allowed per session, or per client IP
	// for requests without one (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the bucket size per session or IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is required on /api/chat and /api/sessions, as a Bearer token
	// or X-API-Key header. If empty, authentication is disabled.
	APIKey string
	// History persists session turns. Optional; when nil session_id is ignored.
	History store.ConversationStore
	// HistoryTurns is how many exchanges are loaded from History per request.
	HistoryTurns int
	// MetricsRegistry receives the server's metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// chatter is the interface handleChat calls to stream a reply.
// *pipeline.Pipeline satisfies it; tests inject a fake.
type chatter interface {
	Chat(ctx context.Context, req pipeline.Request, w io.Writer) (*pipeline.Result, error)
}

// Server is the HTTP front end of the recommendation pipeline.
type Server struct {
	// chat answers /api/chat requests.
	chat chatter
	// history is the optional session store.
	history store.ConversationStore
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the server's Prometheus instruments.
	metrics *serverMetrics
	// validate checks decoded request bodies.
	validate *validator.Validate
	// limiter holds the per-session and per-IP token buckets.
	limiter *chatLimiter
}

// chatTurn is one prior message in a chat request.
type chatTurn struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"max=8000"`
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// Question is the user's message. Blank yields the greeting.
	Question string `json:"question" validate:"max=4000"`
	// History is the prior conversation, oldest first.
	History []chatTurn `json:"history" validate:"max=50,dive"`
	// MediaType is "movie" or "tv" (aliases accepted). Empty means movie.
	MediaType string `json:"media_type" validate:"max=16"`
	// Genres restricts candidates to any of these genres.
	Genres []string `json:"genres" validate:"max=32,dive,max=64"`
	// Providers restricts candidates to any of these streaming providers.
	Providers []string `json:"providers" validate:"max=32,dive,max=64"`
	// YearRange is [min, max], inclusive. Omit for the full range.
	YearRange []int `json:"year_range" validate:"omitempty,len=2"`
	// SessionID selects server-side history when History is empty.
	SessionID string `json:"session_id" validate:"omitempty,max=128,printascii"`
}

// errorResponse is the JSON body of non-streamed failures.
type errorResponse struct {
	Error string `json:"error"`
}

// clearSessionResponse is the JSON response for DELETE /api/sessions/{id}.
type clearSessionResponse struct {
	SessionID string `json:"session_id"`
	Deleted   int64  `json:"deleted"`
}
