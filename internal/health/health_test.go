package health

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadyz(t *testing.T) {
	yes := func() bool { return true }
	no := func() bool { return false }

	tests := []struct {
		name   string
		checks []Check
		want   int
		body   string
	}{
		{"no checks", nil, http.StatusOK, "ready\n"},
		{"all pass", []Check{{"catalog", yes}, {"loop", yes}}, http.StatusOK, "ready\n"},
		{"nil check ignored", []Check{{"catalog", nil}}, http.StatusOK, "ready\n"},
		{"one failing", []Check{{"catalog", no}, {"loop", yes}}, http.StatusServiceUnavailable, "not ready: catalog\n"},
		{"all failing", []Check{{"catalog", no}, {"loop", no}}, http.StatusServiceUnavailable, "not ready: catalog, loop\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Readyz(tt.checks...)(w, httptest.NewRequest("GET", "/readyz", nil))
			if w.Code != tt.want || w.Body.String() != tt.body {
				t.Errorf("got %d %q, want %d %q", w.Code, w.Body.String(), tt.want, tt.body)
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	Healthz(w, httptest.NewRequest("GET", "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok\n" {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Error("probe response is cacheable")
	}
}
