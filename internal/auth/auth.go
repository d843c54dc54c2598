// Package auth guards the JSON API with an optional static bearer token.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
}

const (
	// protectedPrefix is guarded when auth is enabled. Probes and metrics
	// stay public.
	protectedPrefix = "/api/"

	// streamPrefix routes may carry the token as a query parameter, since
	// browser EventSource clients cannot set headers.
	streamPrefix = "/api/v1/stream/"
	tokenParam   = "access_token"
)

// credential extracts the presented token, or "" if none was presented.
func credential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if strings.HasPrefix(r.URL.Path, streamPrefix) {
		return r.URL.Query().Get(tokenParam)
	}
	return ""
}

// Middleware enforces the bearer token on /api/ routes when cfg.Enabled.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	want := []byte(cfg.Token)
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, protectedPrefix) {
				next.ServeHTTP(w, r)
				return
			}
			got := credential(r)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="orbitrack"`)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
