// Package health serves liveness and readiness probes.
package health

import (
	"net/http"
	"strings"
)

// Check is one named readiness condition.
type Check struct {
	Name  string
	Ready func() bool
}

// Healthz reports liveness; it answers 200 whenever the process can serve.
func Healthz(w http.ResponseWriter, r *http.Request) {
	text(w, http.StatusOK, "ok")
}

// Readyz returns a probe that answers 200 "ready" when every check passes,
// and 503 naming the failing checks otherwise.
func Readyz(checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var failing []string
		for _, c := range checks {
			if c.Ready != nil && !c.Ready() {
				failing = append(failing, c.Name)
			}
		}
		if len(failing) > 0 {
			text(w, http.StatusServiceUnavailable, "not ready: "+strings.Join(failing, ", "))
			return
		}
		text(w, http.StatusOK, "ready")
	}
}

func text(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	w.Write([]byte(body + "\n"))
}
