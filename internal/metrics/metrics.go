package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitrack_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orbitrack_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	catalogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitrack_catalog_objects",
		Help: "Number of objects in the current catalog.",
	})

	catalogAgeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitrack_catalog_age_seconds",
		Help: "Seconds since the current catalog was loaded.",
	})

	catalogReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitrack_catalog_reloads_total",
			Help: "Catalog reload attempts, by result.",
		},
		[]string{"result"},
	)

	catalogDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitrack_catalog_dropped_total",
			Help: "Element blocks dropped while loading a catalog, by reason.",
		},
		[]string{"reason"},
	)

	propagationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitrack_propagations_total",
			Help: "Propagation requests by outcome (ok, invalid_elements, degenerate).",
		},
		[]string{"outcome"},
	)

	recordBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitrack_propagation_records_built_total",
			Help: "Propagation records constructed, by result.",
		},
		[]string{"result"},
	)

	pathCacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitrack_path_cache_requests_total",
			Help: "History path cache lookups by result (hit, miss).",
		},
		[]string{"result"},
	)

	pathCacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitrack_path_cache_evictions_total",
		Help: "History paths evicted from the cache.",
	})

	historySampleSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitrack_history_sample_duration_seconds",
		Help:    "Time to sample one history path.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	scanDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitrack_scan_duration_seconds",
		Help:    "Proximity scan cycle duration in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	scanResults = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitrack_scan_results",
		Help: "Number of objects inside the ground target radius in the last scan.",
	})

	scanStaleTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitrack_scan_stale_total",
		Help: "Scan results dropped because the ground target changed mid-scan.",
	})

	trackedAgeDays = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitrack_tracked_element_age_days",
		Help: "Element age of the tracked object at the simulated instant.",
	})

	trackedValid = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitrack_tracked_element_valid",
		Help: "1 if the tracked object's elements are within the validity horizon.",
	})

	selectionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitrack_selection_transitions_total",
			Help: "Selection state machine transitions by kind.",
		},
		[]string{"kind"},
	)

	clockMultiplier = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitrack_clock_multiplier",
		Help: "Current simulation clock rate multiplier.",
	})

	clockRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitrack_clock_running",
		Help: "1 if the simulation clock is running.",
	})

	streamConnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitrack_stream_connections_total",
			Help: "SSE connection events (connect, disconnect).",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitrack_streams_active",
		Help: "Currently open SSE streams.",
	})

	streamMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitrack_stream_messages_total",
		Help: "SSE messages sent.",
	})

	streamBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitrack_stream_bytes_total",
		Help: "SSE bytes written, keep-alives included.",
	})

	streamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitrack_stream_errors_total",
			Help: "SSE stream errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		catalogSize,
		catalogAgeSeconds,
		catalogReloadsTotal,
		catalogDroppedTotal,
		propagationsTotal,
		recordBuildsTotal,
		pathCacheRequests,
		pathCacheEvictions,
		historySampleSeconds,
		scanDurationSeconds,
		scanResults,
		scanStaleTotal,
		trackedAgeDays,
		trackedValid,
		selectionTransitions,
		clockMultiplier,
		clockRunning,
		streamConnections,
		streamsActive,
		streamMessages,
		streamBytes,
		streamErrors,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func SetCatalogSize(n int)            { catalogSize.Set(float64(n)) }
func IncCatalogDropped(reason string) { catalogDroppedTotal.WithLabelValues(reason).Inc() }
func SetCatalogAge(seconds float64)   { catalogAgeSeconds.Set(seconds) }
func IncCatalogReload(result string)  { catalogReloadsTotal.WithLabelValues(result).Inc() }

func IncPropagation(outcome string) { propagationsTotal.WithLabelValues(outcome).Inc() }
func IncRecordBuild(result string)  { recordBuildsTotal.WithLabelValues(result).Inc() }

func IncPathCacheHits()   { pathCacheRequests.WithLabelValues("hit").Inc() }
func IncPathCacheMisses() { pathCacheRequests.WithLabelValues("miss").Inc() }
func AddPathCacheEvictions(n int) {
	pathCacheEvictions.Add(float64(n))
}
func ObserveHistorySample(d time.Duration) { historySampleSeconds.Observe(d.Seconds()) }

func ObserveScanDuration(d time.Duration) { scanDurationSeconds.Observe(d.Seconds()) }
func SetScanResults(n int)                { scanResults.Set(float64(n)) }
func IncScanStale()                       { scanStaleTotal.Inc() }

// SetTrackedFreshness publishes the tracked object's element age and validity.
func SetTrackedFreshness(ageDays float64, valid bool) {
	trackedAgeDays.Set(ageDays)
	trackedValid.Set(boolGauge(valid))
}

func IncSelectionTransition(kind string) { selectionTransitions.WithLabelValues(kind).Inc() }

// SetClock publishes the simulation clock's rate and run state.
func SetClock(multiplier float64, running bool) {
	clockMultiplier.Set(multiplier)
	clockRunning.Set(boolGauge(running))
}

func IncStreamConnections(event string) { streamConnections.WithLabelValues(event).Inc() }
func IncStreamsActive()                 { streamsActive.Inc() }
func DecStreamsActive()                 { streamsActive.Dec() }
func IncStreamMessages()                { streamMessages.Inc() }
func AddStreamBytes(n int64)            { streamBytes.Add(float64(n)) }
func IncStreamErrors(reason string)     { streamErrors.WithLabelValues(reason).Inc() }

// exactRoutes are paths that label themselves.
var exactRoutes = map[string]bool{
	"/":                        true,
	"/healthz":                 true,
	"/readyz":                  true,
	"/metrics":                 true,
	"/api/v1/catalog":          true,
	"/api/v1/clock":            true,
	"/api/v1/clock/toggle":     true,
	"/api/v1/clock/multiplier": true,
	"/api/v1/clock/instant":    true,
	"/api/v1/selection":        true,
	"/api/v1/selection/future": true,
	"/api/v1/filter":           true,
	"/api/v1/target":           true,
	"/api/v1/intercepts":       true,
	"/api/v1/passes":           true,
	"/api/v1/stream/snapshots": true,
}

// normalizeRoute maps a request path to a bounded label set so that NORAD
// ids in paths and bot probes do not explode metric cardinality.
func normalizeRoute(path string) string {
	if exactRoutes[path] {
		return path
	}
	for _, prefix := range []string{"/api/v1/catalog/", "/api/v1/selection/"} {
		if rest, ok := strings.CutPrefix(path, prefix); ok && rest != "" {
			if _, err := strconv.Atoi(rest); err == nil {
				return prefix + "{norad_id}"
			}
		}
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := normalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
