package intent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/cinerag/internal/media"
)

type stubClassifier struct {
	ok  bool
	err error
}

func (s stubClassifier) Classify(context.Context, string) (bool, error) { return s.ok, s.err }

// TestGate_WrapsFailures verifies classifier errors become ErrClassification.
func TestGate_WrapsFailures(t *testing.T) {
	t.Parallel()

	g, _ := NewGate(stubClassifier{err: errors.New("timeout")})
	if _, err := g.IsRecommendation(context.Background(), "x"); !errors.Is(err, media.ErrClassification) {
		t.Fatalf("want ErrClassification, got %v", err)
	}

	g, _ = NewGate(stubClassifier{ok: true})
	ok, err := g.IsRecommendation(context.Background(), "x")
	if err != nil || !ok {
		t.Fatalf("got %v, %v", ok, err)
	}
}

// TestHTTPClassifier covers both response shapes and label matching.
func TestHTTPClassifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want bool
	}{
		{"flat positive", `[{"label":"recommendation","score":0.91},{"label":"other","score":0.09}]`, true},
		{"flat negative", `[{"label":"other","score":0.8},{"label":"recommendation","score":0.2}]`, false},
		{"nested positive", `[[{"label":"other","score":0.3},{"label":"recommendation","score":0.7}]]`, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req classifyRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				if req.Inputs != "any good heist films?" {
					t.Errorf("inputs = %q", req.Inputs)
				}
				if r.Header.Get("Authorization") != "Bearer hf-key" {
					t.Errorf("missing bearer token")
				}
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			c, err := NewHTTPClassifier(HTTPConfig{Endpoint: srv.URL, APIKey: "hf-key"})
			if err != nil {
				t.Fatal(err)
			}
			got, err := c.Classify(context.Background(), "any good heist films?")
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got != tc.want {
				t.Errorf("Classify = %v, want %v", got, tc.want)
			}
		})
	}
}

// TestHTTPClassifier_Errors verifies non-2xx and empty responses fail.
func TestHTTPClassifier_Errors(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		status int
		body   string
	}{
		{http.StatusServiceUnavailable, `{"error":"loading"}`},
		{http.StatusOK, `[]`},
		{http.StatusOK, `{"label":"x"}`},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = io.WriteString(w, tc.body)
		}))
		c, _ := NewHTTPClassifier(HTTPConfig{Endpoint: srv.URL})
		if _, err := c.Classify(context.Background(), "q"); err == nil {
			t.Errorf("status=%d body=%s: want error", tc.status, tc.body)
		}
		srv.Close()
	}
}

// fakeChatModel answers every Generate call with a fixed reply.
type fakeChatModel struct {
	reply string
	err   error
	msgs  []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.msgs = in
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

// TestChatClassifier verifies yes/no parsing and the prompt shape.
func TestChatClassifier(t *testing.T) {
	t.Parallel()

	for reply, want := range map[string]bool{"Yes": true, " yes.": true, "no": false, "maybe": false} {
		m := &fakeChatModel{reply: reply}
		c, _ := NewChatClassifier(m)
		got, err := c.Classify(context.Background(), "suggest a thriller")
		if err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if got != want {
			t.Errorf("reply %q: got %v, want %v", reply, got, want)
		}
		if len(m.msgs) != 2 || m.msgs[1].Content != "Message: suggest a thriller" {
			t.Errorf("unexpected prompt: %+v", m.msgs)
		}
	}

	c, _ := NewChatClassifier(&fakeChatModel{err: errors.New("quota")})
	if _, err := c.Classify(context.Background(), "q"); err == nil {
		t.Error("want error from failing model")
	}
}

// TestNewFromEnv covers provider selection.
func TestNewFromEnv(t *testing.T) {
	t.Setenv("INTENT_PROVIDER", "")
	t.Setenv("INTENT_ENDPOINT", "http://classifier.local/predict")
	c, err := NewFromEnv(nil)
	if err != nil {
		t.Fatalf("NewFromEnv: %v", err)
	}
	if _, ok := c.(*HTTPClassifier); !ok {
		t.Errorf("want *HTTPClassifier, got %T", c)
	}

	t.Setenv("INTENT_ENDPOINT", "")
	c, err = NewFromEnv(&fakeChatModel{})
	if err != nil {
		t.Fatalf("NewFromEnv: %v", err)
	}
	if _, ok := c.(*ChatClassifier); !ok {
		t.Errorf("want *ChatClassifier, got %T", c)
	}

	t.Setenv("INTENT_PROVIDER", "bert")
	if _, err := NewFromEnv(nil); err == nil {
		t.Error("want error for unknown provider")
	}
}
