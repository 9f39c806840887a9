package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/cinerag/internal/logging"
)

// authRealm is the WWW-Authenticate realm.
const authRealm = `Bearer realm="cinerag"`

// Auth failure reasons, also the "reason" label of the auth failure counter.
const (
	authMissing = "missing"
	authInvalid = "invalid"
)

// requireKey guards next with the configured API key, accepted as
// "Authorization: Bearer <key>" or as an X-API-Key header. With no key
// configured next is returned unchanged.
//
// Rejected requests get 401 with a JSON error body and are counted; the
// presented key is never logged.
func (s *Server) requireKey(handler string, next http.Handler) http.Handler {
	want := []byte(s.cfg.APIKey)
	if len(want) == 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := presentedKey(r)

		reason := ""
		switch {
		case got == "":
			reason = authMissing
			w.Header().Set("WWW-Authenticate", authRealm)
		case subtle.ConstantTimeCompare([]byte(got), want) != 1:
			reason = authInvalid
			w.Header().Set("WWW-Authenticate", authRealm+` error="invalid_token"`)
		}
		if reason != "" {
			s.metrics.authFailuresTotal.WithLabelValues(handler, reason).Inc()
			logging.FromContext(r.Context()).Warn("auth: rejected",
				slog.String("handler", handler),
				slog.String("reason", reason),
			)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// presentedKey returns the bearer token, falling back to X-API-Key.
func presentedKey(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
