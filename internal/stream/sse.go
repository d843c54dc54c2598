// Package stream implements Server-Sent Events (SSE) streaming of session
// snapshots. Clients connect via GET /api/v1/stream/snapshots and receive the
// clock, selection, ground target and intercept list once per interval.
//
// SSE message format:
//
//	data: {"type":"snapshot","t":"2024-02-06T13:27:00Z","snapshot":{...}}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","catalog_source":"cache","catalog_count":9000,"catalog_age_seconds":1800}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent timeout.
// Reconnecting clients receive a fresh metadata message on each connection.
package stream

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orbitrack/internal/httputil"
	"github.com/star/orbitrack/internal/metrics"
	"github.com/star/orbitrack/internal/session"
)

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxTotal           int           // Max concurrent streams overall (default: 1000).
	Interval           time.Duration // Snapshot interval (default: 1s).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Read the client IP from proxy headers.
}

// DefaultConfig returns the default streaming configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		MaxTotal:           1000,
		Interval:           time.Second,
		KeepaliveInterval:  30 * time.Second,
	}
}

// Source provides the snapshots to stream.
type Source interface {
	Snapshot() session.Snapshot
}

// Handler manages SSE streaming connections.
type Handler struct {
	source Source
	config Config
	slots  *slots
	logger *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(source Source, config Config, logger *slog.Logger) *Handler {
	def := DefaultConfig()
	if config.MaxConcurrentPerIP <= 0 {
		config.MaxConcurrentPerIP = def.MaxConcurrentPerIP
	}
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = def.KeepaliveInterval
	}
	return &Handler{
		source: source,
		config: config,
		slots:  newSlots(config.MaxConcurrentPerIP, config.MaxTotal),
		logger: logger,
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// HandleSnapshots serves the SSE snapshot stream.
// GET /api/v1/stream/snapshots?interval=1
func (h *Handler) HandleSnapshots(w http.ResponseWriter, r *http.Request) {
	interval := h.config.Interval
	if v := r.URL.Query().Get("interval"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 60 {
			writeError(w, http.StatusBadRequest, "invalid interval parameter, must be 1-60")
			return
		}
		interval = time.Duration(n) * time.Second
	}

	ip := httputil.ClientIP(r, h.config.TrustProxy)
	release, reason := h.slots.take(ip)
	if release == nil {
		metrics.IncStreamErrors(reason)
		h.logger.Warn("stream refused",
			"remote_ip", ip,
			"reason", reason,
			"held", h.slots.held(ip),
		)
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	c := newClient(w, ip, h.logger)
	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"interval_seconds", interval.Seconds(),
	)

	defer func() {
		release()
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
			"frames", c.frames,
			"bytes", c.bytes,
		)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx
	w.WriteHeader(http.StatusOK)

	// The server-wide WriteTimeout would cut the stream; client.write sets
	// a rolling deadline instead.
	if err := c.rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	// Jittered 3-7 s so a restart does not bring every browser back at once.
	if err := c.sendRetry(time.Duration(3000+rand.Intn(4000)) * time.Millisecond); err != nil {
		metrics.IncStreamErrors("unsupported")
		h.logger.Warn("stream not supported by response writer", "remote_ip", ip, "error", err)
		return
	}

	first := h.source.Snapshot()
	if err := c.sendJSON(buildMetadataMessage(first)); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}
	if err := c.sendJSON(buildSnapshotMessage(first)); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			data, err := json.Marshal(buildSnapshotMessage(h.source.Snapshot()))
			if err != nil {
				metrics.IncStreamErrors("marshal_error")
				h.logger.Warn("stream marshal error", "remote_ip", ip, "error", err)
				continue
			}
			if err := c.sendData(data); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

func buildMetadataMessage(s session.Snapshot) metadataMessage {
	return metadataMessage{
		Type:          "metadata",
		CatalogSource: s.Catalog.Source,
		CatalogCount:  s.Catalog.Count,
		CatalogAge:    int(time.Since(s.Catalog.LoadedAt).Seconds()),
	}
}

func buildSnapshotMessage(s session.Snapshot) snapshotMessage {
	return snapshotMessage{
		Type:     "snapshot",
		T:        s.Clock.Instant.UTC().Format(time.RFC3339),
		Snapshot: s,
	}
}

// SSE message payload types.

type metadataMessage struct {
	Type          string `json:"type"`
	CatalogSource string `json:"catalog_source"`
	CatalogCount  int    `json:"catalog_count"`
	CatalogAge    int    `json:"catalog_age_seconds"`
}

type snapshotMessage struct {
	Type     string           `json:"type"`
	T        string           `json:"t"`
	Snapshot session.Snapshot `json:"snapshot"`
}
