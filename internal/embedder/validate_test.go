package embedder

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()

	for _, m := range []string{"gpt-4o-mini", "llama3.1", "Mistral-7B"} {
		if !looksLikeChatModel(m) {
			t.Errorf("%q should look like a chat model", m)
		}
	}
	for _, m := range []string{"nomic-embed-text", "text-embedding-3-small", "bge-small-en"} {
		if looksLikeChatModel(m) {
			t.Errorf("%q should not look like a chat model", m)
		}
	}
}

// TestValidate covers missing credentials and the chat-model warning.
// Subtests use t.Setenv and therefore do not run in parallel.
func TestValidate(t *testing.T) {
	t.Run("azure without key", func(t *testing.T) {
		t.Setenv("EMBEDDING_PROVIDER", "azure")
		t.Setenv("EMBEDDING_API_KEY", "")
		t.Setenv("AZURE_OPENAI_API_KEY", "")
		if err := Validate(slog.New(slog.DiscardHandler)); err == nil {
			t.Error("want error")
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("EMBEDDING_PROVIDER", "bedrock")
		if err := Validate(slog.New(slog.DiscardHandler)); err == nil {
			t.Error("want error")
		}
	})

	t.Run("chat model warning", func(t *testing.T) {
		t.Setenv("EMBEDDING_PROVIDER", "ollama")
		t.Setenv("EMBEDDING_MODEL", "llama3")
		var buf bytes.Buffer
		if err := Validate(slog.New(slog.NewTextHandler(&buf, nil))); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if !strings.Contains(buf.String(), "looks like a chat model") {
			t.Errorf("missing warning in %q", buf.String())
		}
	})
}

// TestLoadSparseFromEnv_Missing verifies a missing artifact is an error.
func TestLoadSparseFromEnv_Missing(t *testing.T) {
	t.Setenv("SPARSE_MOVIE_MODEL", t.TempDir()+"/nope.json")
	t.Setenv("SPARSE_TV_MODEL", t.TempDir()+"/nope.json")
	if _, err := LoadSparseFromEnv(slog.New(slog.DiscardHandler)); err == nil {
		t.Fatal("want error for missing sparse model")
	}
}

// TestLoadSparseFromEnv_LogsVocabulary verifies both kinds load and each
// vocabulary size is logged.
func TestLoadSparseFromEnv_LogsVocabulary(t *testing.T) {
	dir := t.TempDir()
	movie := filepath.Join(dir, "movie.json")
	tv := filepath.Join(dir, "tv.json")
	if err := os.WriteFile(movie, []byte(`{"terms": {"heist": {"id": 1, "idf": 2}, "noir": {"id": 2, "idf": 1}}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(tv, []byte(`{"terms": {"sitcom": {"id": 7, "idf": 1.5}}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SPARSE_MOVIE_MODEL", movie)
	t.Setenv("SPARSE_TV_MODEL", tv)

	var buf bytes.Buffer
	encoders, err := LoadSparseFromEnv(slog.New(slog.NewTextHandler(&buf, nil)))
	if err != nil {
		t.Fatalf("LoadSparseFromEnv: %v", err)
	}
	if len(encoders) != 2 {
		t.Fatalf("want 2 encoders, got %d", len(encoders))
	}
	out := buf.String()
	if !strings.Contains(out, "kind=movie") || !strings.Contains(out, "vocabulary=2") {
		t.Errorf("movie vocabulary not logged: %q", out)
	}
	if !strings.Contains(out, "kind=tv") || !strings.Contains(out, "vocabulary=1") {
		t.Errorf("tv vocabulary not logged: %q", out)
	}
}

func TestExpectedDimensions(t *testing.T) {
	cases := []struct {
		name     string
		provider string
		model    string
		dims     string
		want     int
	}{
		{name: "ollama default", provider: "ollama", want: 768},
		{name: "openai default", provider: "openai", want: 1536},
		{name: "azure default model", provider: "azure", model: "text-embedding-3-small", want: 1536},
		{name: "custom model unknown", provider: "ollama", model: "mxbai-embed-large", want: 0},
		{name: "explicit dimensions win", provider: "ollama", model: "mxbai-embed-large", dims: "1024", want: 1024},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("EMBEDDING_PROVIDER", tc.provider)
			t.Setenv("EMBEDDING_MODEL", tc.model)
			t.Setenv("EMBEDDING_DIMENSIONS", tc.dims)
			if got := ExpectedDimensions(); got != tc.want {
				t.Errorf("ExpectedDimensions() = %d, want %d", got, tc.want)
			}
		})
	}
}
