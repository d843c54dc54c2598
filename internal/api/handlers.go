package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orbitrack/internal/propagation"
	"github.com/star/orbitrack/internal/proximity"
	"github.com/star/orbitrack/internal/selection"
	"github.com/star/orbitrack/internal/session"
	"github.com/star/orbitrack/internal/simclock"
)

// maxBodyBytes bounds JSON request bodies. A filter of every catalog object
// stays well under it.
const maxBodyBytes = 1 << 20

type handlers struct {
	sess   *session.Session
	logger *slog.Logger
}

func (h *handlers) ready() bool {
	cat := h.sess.Catalog()
	return cat != nil && cat.Len() > 0
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, selection.ErrUnknownObject):
		return http.StatusNotFound
	case errors.Is(err, selection.ErrNotVisible),
		errors.Is(err, session.ErrNoSelection),
		errors.Is(err, session.ErrNoTarget),
		errors.Is(err, session.ErrOutOfRange),
		errors.Is(err, propagation.ErrInvalidElements):
		return http.StatusConflict
	case errors.Is(err, proximity.ErrInvalidTarget),
		errors.Is(err, simclock.ErrZeroMultiplier),
		errors.Is(err, simclock.ErrInvalidMultiplier):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "component", "api", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func noradID(r *http.Request) (int, error) {
	raw := r.PathValue("norad_id")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid norad_id %q", raw)
	}
	return id, nil
}

func (h *handlers) catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sess.Summary())
}

func (h *handlers) object(w http.ResponseWriter, r *http.Request) {
	id, err := noradID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := h.sess.Object(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handlers) clock(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sess.ClockSnapshot())
}

func (h *handlers) togglePlay(w http.ResponseWriter, r *http.Request) {
	h.sess.TogglePlay()
	writeJSON(w, http.StatusOK, h.sess.ClockSnapshot())
}

func (h *handlers) setMultiplier(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Multiplier *float64 `json:"multiplier"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Multiplier == nil {
		writeError(w, http.StatusBadRequest, "multiplier is required")
		return
	}
	if err := h.sess.SetMultiplier(*body.Multiplier); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sess.ClockSnapshot())
}

func (h *handlers) setInstant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Instant string `json:"instant"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := time.Parse(time.RFC3339, body.Instant)
	if err != nil {
		writeError(w, http.StatusBadRequest, "instant must be RFC 3339")
		return
	}
	applied := h.sess.SetInstant(t)
	writeJSON(w, http.StatusOK, map[string]any{
		"requested": t.UTC(),
		"applied":   applied,
		"clamped":   !applied.Equal(t.UTC()),
		"clock":     h.sess.ClockSnapshot(),
	})
}

func (h *handlers) selection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sess.SelectionSnapshot())
}

func (h *handlers) selectObject(w http.ResponseWriter, r *http.Request) {
	id, err := noradID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	follow := false
	if raw := r.URL.Query().Get("follow"); raw != "" {
		follow, err = strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "follow must be a boolean")
			return
		}
	}
	if err := h.sess.Select(id, follow); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sess.SelectionSnapshot())
}

func (h *handlers) clearSelection(w http.ResponseWriter, r *http.Request) {
	h.sess.ClearSelection()
	writeJSON(w, http.StatusOK, h.sess.SelectionSnapshot())
}

func (h *handlers) future(w http.ResponseWriter, r *http.Request) {
	samples, err := h.sess.Future()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(samples),
		"samples": samples,
	})
}

func (h *handlers) setFilter(w http.ResponseWriter, r *http.Request) {
	// A null or absent ids field makes every object visible again.
	var body struct {
		IDs []int `json:"ids"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.sess.SetFilter(body.IDs)
	writeJSON(w, http.StatusOK, map[string]any{
		"all":       body.IDs == nil,
		"count":     len(body.IDs),
		"selection": h.sess.SelectionSnapshot(),
	})
}

func (h *handlers) setTarget(w http.ResponseWriter, r *http.Request) {
	var g proximity.GroundTarget
	if err := decodeBody(r, &g); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.sess.SetTarget(g); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *handlers) clearTarget(w http.ResponseWriter, r *http.Request) {
	h.sess.ClearTarget()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) intercepts(w http.ResponseWriter, r *http.Request) {
	res, at := h.sess.Intercepts()
	resp := map[string]any{
		"count":      len(res),
		"intercepts": res,
	}
	if !at.IsZero() {
		resp["scanned_at"] = at
	}
	if g, ok := h.sess.Target(); ok {
		resp["target"] = g
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) passes(w http.ResponseWriter, r *http.Request) {
	events, err := h.sess.Passes(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(events),
		"passes": events,
	})
}
