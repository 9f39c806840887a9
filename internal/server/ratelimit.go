package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/54b3r/cinerag/internal/logging"
)

// Token-bucket defaults applied when Config leaves them zero.
const (
	defaultRateLimit = 10
	defaultRateBurst = 20
)

// Idle buckets are forgotten after bucketTTL; at most maxBuckets are tracked.
const (
	bucketTTL  = 5 * time.Minute
	maxBuckets = 10_000
)

// Key kinds, also the "key" label of the rate-limited counter.
const (
	keySession = "session"
	keyIP      = "ip"
)

// chatLimiter hands out one token bucket per caller. A caller is its
// session when the request names one, otherwise its client IP.
type chatLimiter struct {
	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
	rps     rate.Limit
	burst   int
}

func newChatLimiter(rps float64, burst int) *chatLimiter {
	return &chatLimiter{
		buckets: expirable.NewLRU[string, *rate.Limiter](maxBuckets, nil, bucketTTL),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

// allow takes a token from key's bucket. Touching a bucket renews its TTL.
func (l *chatLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets.Get(key)
	if !ok {
		b = rate.NewLimiter(l.rps, l.burst)
	}
	l.buckets.Add(key, b)
	return b.Allow()
}

// limitKey returns the bucket key and its kind for a request.
func limitKey(r *http.Request, session string) (key, kind string) {
	if session != "" {
		return keySession + ":" + session, keySession
	}
	return keyIP + ":" + clientIP(r), keyIP
}

// throttle reports whether the caller is over its rate. When it is, a 429
// has already been written and counted.
func (s *Server) throttle(w http.ResponseWriter, r *http.Request, handler, session string) bool {
	key, kind := limitKey(r, session)
	if s.limiter.allow(key) {
		return false
	}
	s.metrics.rateLimitedTotal.WithLabelValues(handler, kind).Inc()
	logging.FromContext(r.Context()).Warn("rate limit exceeded",
		slog.String("handler", handler),
		slog.String("key", kind),
	)
	w.Header().Set("Retry-After", "1")
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
	return true
}

// limitBySession rate limits a route keyed on its {id} path segment.
func (s *Server) limitBySession(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.throttle(w, r, handler, r.PathValue("id")) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP is the peer address without its port. X-Forwarded-For is not
// trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
