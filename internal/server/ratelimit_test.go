package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// postChatFrom sends body to handleChat from the given peer address.
func postChatFrom(s *Server, addr, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.RemoteAddr = addr
	w := httptest.NewRecorder()
	s.handleChat(w, req)
	return w
}

func TestChatThrottle_PerSession(t *testing.T) {
	t.Parallel()

	s := newTestServerWith(t, &fakeChatter{deltas: []string{"ok"}}, &Config{RateLimit: 0.001, RateBurst: 2})
	const addr = "192.0.2.1:4000"

	for i := range 2 {
		if w := postChatFrom(s, addr, `{"question":"space operas","session_id":"a"}`); w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, w.Code)
		}
	}

	w := postChatFrom(s, addr, `{"question":"space operas","session_id":"a"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: status %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	// Same peer, different session: its own bucket.
	if w := postChatFrom(s, addr, `{"question":"space operas","session_id":"b"}`); w.Code != http.StatusOK {
		t.Errorf("session b: status %d", w.Code)
	}

	if got := testutil.ToFloat64(s.metrics.rateLimitedTotal.WithLabelValues("chat", keySession)); got != 1 {
		t.Errorf("rate limited{session} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(s.metrics.chatRequestsTotal.WithLabelValues("throttled")); got != 1 {
		t.Errorf("chat throttled = %v, want 1", got)
	}
}

func TestChatThrottle_FallsBackToClientIP(t *testing.T) {
	t.Parallel()

	s := newTestServerWith(t, &fakeChatter{deltas: []string{"ok"}}, &Config{RateLimit: 0.001, RateBurst: 1})
	const body = `{"question":"something like Fargo"}`

	if w := postChatFrom(s, "192.0.2.1:4000", body); w.Code != http.StatusOK {
		t.Fatalf("first: status %d", w.Code)
	}
	// Another port on the same host shares the bucket.
	if w := postChatFrom(s, "192.0.2.1:4001", body); w.Code != http.StatusTooManyRequests {
		t.Fatalf("same host: status %d, want 429", w.Code)
	}
	if w := postChatFrom(s, "192.0.2.2:4000", body); w.Code != http.StatusOK {
		t.Errorf("other host: status %d", w.Code)
	}
	if got := testutil.ToFloat64(s.metrics.rateLimitedTotal.WithLabelValues("chat", keyIP)); got != 1 {
		t.Errorf("rate limited{ip} = %v, want 1", got)
	}
}

func TestChatThrottle_GreetingExempt(t *testing.T) {
	t.Parallel()

	fc := &fakeChatter{deltas: []string{"Hi there"}}
	s := newTestServerWith(t, fc, &Config{RateLimit: 0.001, RateBurst: 1})

	for i := range 3 {
		if w := postChatFrom(s, "192.0.2.1:4000", `{"question":"  ","session_id":"a"}`); w.Code != http.StatusOK {
			t.Fatalf("greeting %d: status %d", i, w.Code)
		}
	}
	// The bucket is still full for the first real question.
	if w := postChatFrom(s, "192.0.2.1:4000", `{"question":"a cosy mystery","session_id":"a"}`); w.Code != http.StatusOK {
		t.Errorf("question after greetings: status %d", w.Code)
	}
}

func TestChatThrottle_InvalidBodyNotCharged(t *testing.T) {
	t.Parallel()

	s := newTestServerWith(t, &fakeChatter{deltas: []string{"ok"}}, &Config{RateLimit: 0.001, RateBurst: 1})

	if w := postChatFrom(s, "192.0.2.1:4000", `{"question":"x","year_range":[1990]}`); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid body: status %d", w.Code)
	}
	if w := postChatFrom(s, "192.0.2.1:4000", `{"question":"x"}`); w.Code != http.StatusOK {
		t.Errorf("valid body after invalid: status %d", w.Code)
	}
}

func TestClearSessionThrottle_ByPathID(t *testing.T) {
	t.Parallel()

	s := newTestServerWith(t, &fakeChatter{}, &Config{RateLimit: 0.001, RateBurst: 1})
	del := func(id string) int {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil))
		return w.Code
	}

	// No store configured: 404, but the token is still spent.
	if code := del("abc"); code != http.StatusNotFound {
		t.Fatalf("first delete: status %d", code)
	}
	if code := del("abc"); code != http.StatusTooManyRequests {
		t.Fatalf("second delete: status %d, want 429", code)
	}
	if code := del("xyz"); code != http.StatusNotFound {
		t.Errorf("other session: status %d", code)
	}
}

func TestLimitKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		remote, session string
		wantKey         string
		wantKind        string
	}{
		{"192.0.2.1:4000", "abc", "session:abc", keySession},
		{"192.0.2.1:4000", "", "ip:192.0.2.1", keyIP},
		{"[::1]:8080", "", "ip:::1", keyIP},
		{"no-port", "", "ip:no-port", keyIP},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
		req.RemoteAddr = tc.remote
		key, kind := limitKey(req, tc.session)
		if key != tc.wantKey || kind != tc.wantKind {
			t.Errorf("limitKey(%q, %q) = %q, %q; want %q, %q", tc.remote, tc.session, key, kind, tc.wantKey, tc.wantKind)
		}
	}
}
