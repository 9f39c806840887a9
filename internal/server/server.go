// Package server exposes the recommendation pipeline over HTTP. Replies are
// streamed as Server-Sent Events; health, readiness and Prometheus endpoints
// sit alongside. The server is started by the `cinerag serve` command.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/cinerag/internal/logging"
	"github.com/54b3r/cinerag/internal/media"
	"github.com/54b3r/cinerag/internal/pipeline"
	"github.com/54b3r/cinerag/internal/store"
	"github.com/54b3r/cinerag/internal/version"
)

// maxBodyBytes bounds the /api/chat request body.
const maxBodyBytes = 1 << 20

// New constructs a Server around p.
func New(p *pipeline.Pipeline, cfg *Config) (*Server, error) {
	if p == nil {
		return nil, fmt.Errorf("server: pipeline must not be nil")
	}
	return newServer(p, cfg)
}

func newServer(c chatter, cfg *Config) (*Server, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must be long enough for streaming responses.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = 4 * time.Minute
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = media.DefaultHistoryTurns
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		chat:     c,
		history:  cfg.History,
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(cfg.MetricsRegistry),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		limiter:  newChatLimiter(cfg.RateLimit, cfg.RateBurst),
	}

	mux := http.NewServeMux()
	// /api/chat is throttled inside the handler, once the session is known.
	mux.Handle("POST /api/chat", s.instrument("chat", s.requireKey("chat", http.HandlerFunc(s.handleChat))))
	mux.Handle("DELETE /api/sessions/{id}", s.instrument("clear_session",
		s.requireKey("clear_session", s.limitBySession("clear_session", http.HandlerFunc(s.handleClearSession)))))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(cfg.Logger, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	if cfg.APIKey == "" {
		cfg.Logger.Warn("server: CINERAG_API_KEY is not set; /api/chat is unauthenticated")
	}
	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.log.Info("server stopped")
		return nil
	}
}

// handleChat handles POST /api/chat. The reply is streamed as SSE data
// frames. Failures before the first frame get a JSON body and an HTTP status;
// failures after it are delivered in-band as an "error" event.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.rejectChat(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.rejectChat(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	preq, err := toPipelineRequest(req)
	if err != nil {
		s.rejectChat(w, http.StatusBadRequest, err.Error())
		return
	}
	// The greeting makes no upstream calls and is never throttled.
	if strings.TrimSpace(req.Question) != "" && s.throttle(w, r, "chat", req.SessionID) {
		s.metrics.chatRequestsTotal.WithLabelValues("throttled").Inc()
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()
	if req.SessionID != "" {
		ctx = logging.With(ctx, slog.String("session_id", req.SessionID))
	}

	if len(preq.History) == 0 && req.SessionID != "" {
		preq.History = s.loadHistory(ctx, req.SessionID)
	}

	s.metrics.chatActiveStreams.Inc()
	defer s.metrics.chatActiveStreams.Dec()

	sw := &sseWriter{w: w, flusher: flusher}
	res, err := s.chat.Chat(ctx, preq, sw)
	outcome := chatOutcome(err)
	s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			log.Info("chat: client disconnected")
			return
		}
		if !sw.started {
			status := statusFor(err)
			log.Warn("chat: request failed", slog.Int("status", status), slog.String("error", err.Error()))
			writeJSON(w, status, errorResponse{Error: err.Error()})
			return
		}
		log.Warn("chat: stream aborted", slog.String("error", err.Error()))
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", strings.ReplaceAll(err.Error(), "\n", " "))
		flusher.Flush()
		return
	}

	s.saveHistory(ctx, req.SessionID, req.Question, res.Reply)

	sw.start()
	// Signal stream completion.
	fmt.Fprintf(w, "event: done\ndata: [DONE]\n\n")
	flusher.Flush()
}

// handleClearSession handles DELETE /api/sessions/{id}.
func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session history is disabled"})
		return
	}
	id := r.PathValue("id")
	n, err := s.history.Clear(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context()).Error("clear session failed", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not clear session"})
		return
	}
	writeJSON(w, http.StatusOK, clearSessionResponse{SessionID: id, Deleted: n})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Version})
}

func (s *Server) rejectChat(w http.ResponseWriter, status int, msg string) {
	s.metrics.chatRequestsTotal.WithLabelValues("rejected").Inc()
	writeJSON(w, status, errorResponse{Error: msg})
}

// loadHistory returns the session's recent turns. Store failures are logged
// and yield no history.
func (s *Server) loadHistory(ctx context.Context, session string) []media.ChatTurn {
	if s.history == nil {
		return nil
	}
	msgs, err := s.history.Recent(ctx, session, s.cfg.HistoryTurns*2)
	if err != nil {
		logging.FromContext(ctx).Warn("chat: could not load session history", slog.Any("error", err))
		return nil
	}
	return store.Turns(msgs)
}

// saveHistory appends the exchange to the session. Store failures are logged.
func (s *Server) saveHistory(ctx context.Context, session, question, reply string) {
	if s.history == nil || session == "" || strings.TrimSpace(question) == "" {
		return
	}
	log := logging.FromContext(ctx)
	if err := s.history.Append(ctx, session, media.RoleUser, question); err != nil {
		log.Warn("chat: could not save question", slog.Any("error", err))
		return
	}
	if err := s.history.Append(ctx, session, media.RoleAssistant, reply); err != nil {
		log.Warn("chat: could not save reply", slog.Any("error", err))
	}
}

// toPipelineRequest converts a validated request body.
func toPipelineRequest(req chatRequest) (pipeline.Request, error) {
	kind, err := media.ParseKind(req.MediaType)
	if err != nil {
		return pipeline.Request{}, err
	}
	out := pipeline.Request{
		Question:  req.Question,
		Kind:      kind,
		Genres:    req.Genres,
		Providers: req.Providers,
	}
	if len(req.YearRange) == 2 {
		out.Years = media.NewYearRange(req.YearRange[0], req.YearRange[1])
	}
	for _, t := range req.History {
		out.History = append(out.History, media.ChatTurn{Role: media.Role(t.Role), Content: t.Content})
	}
	return out, nil
}

// statusFor maps a pipeline error to the HTTP status sent when nothing has
// been streamed yet.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case pipeline.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, media.ErrClassification),
		errors.Is(err, media.ErrEmbedding),
		errors.Is(err, media.ErrRetrieval),
		errors.Is(err, media.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// chatOutcome is the metrics label for a finished chat request.
func chatOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// validationMessage renders validator errors as one line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sseWriter wraps an http.ResponseWriter to emit Server-Sent Event data
// frames. Headers are sent with the first frame so that a request failing
// before any output can still answer with a plain HTTP error.
type sseWriter struct {
	// w is the underlying response writer.
	w http.ResponseWriter

	// flusher flushes buffered data to the client after each write.
	flusher http.Flusher

	// started is set once the SSE headers have been written.
	started bool
}

func (s *sseWriter) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	s.w.WriteHeader(http.StatusOK)
}

// Write formats p as one SSE event and flushes to the client. Each line of p
// gets its own "data: " prefix; clients rejoin them with "\n", so the chunk
// arrives byte for byte.
func (s *sseWriter) Write(p []byte) (n int, err error) {
	s.start()
	lines := strings.Split(string(bytes.Clone(p)), "\n")
	var buf strings.Builder
	for _, line := range lines {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
	if _, err = fmt.Fprint(s.w, buf.String()); err != nil {
		return 0, err
	}
	s.flusher.Flush()
	return len(p), nil
}
