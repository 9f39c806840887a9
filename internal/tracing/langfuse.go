// Package tracing wires Langfuse into eino's global callbacks so every chat
// model call (generation and LLM intent classification) is traced.
package tracing

import (
	"log/slog"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/cinerag/internal/config"
)

// defaultHost is used when LANGFUSE_HOST is unset.
const defaultHost = "http://localhost:3000"

// Setup initialises the Langfuse callback handler if LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY are set. Returns a flush function that must be called
// before process exit to ensure all traces are sent. If Langfuse is not
// configured, the handler and flush are nil and ok is false.
func Setup() (handler callbacks.Handler, flush func(), ok bool) {
	publicKey := config.Env("LANGFUSE_PUBLIC_KEY", "")
	secretKey := config.Env("LANGFUSE_SECRET_KEY", "")
	if publicKey == "" || secretKey == "" {
		return nil, nil, false
	}

	handler, flush = langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      config.Env("LANGFUSE_HOST", defaultHost),
		PublicKey: publicKey,
		SecretKey: secretKey,
	})
	return handler, flush, true
}

// Enable registers the Langfuse handler globally when configured and returns
// the flush function. The returned function is never nil.
func Enable(log *slog.Logger) func() {
	handler, flush, ok := Setup()
	if !ok {
		log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY or LANGFUSE_SECRET_KEY not set"))
		return func() {}
	}
	callbacks.AppendGlobalHandlers(handler)
	log.Info("langfuse tracing enabled")
	return flush
}
