// Package orbitpath samples an object's ground track: a cached history window
// around an instant and a lazily evaluated future leg from an instant.
//
// Callers are responsible for not sampling objects whose element set is past
// its validity horizon.
package orbitpath

import (
	"iter"
	"log/slog"
	"time"

	"github.com/star/orbitrack/internal/metrics"
	"github.com/star/orbitrack/internal/propagation"
	"github.com/star/orbitrack/internal/tle"
)

// Config holds sampling windows and cache sizing.
type Config struct {
	HistoryWindow time.Duration // half-width around the center (default: 4h)
	HistoryStep   time.Duration // default: 2m
	FutureHorizon time.Duration // default: 90m
	FutureStep    time.Duration // default: 1m
	CacheCapacity int           // history paths kept (default: 64)
}

// DefaultConfig returns the standard sampling windows.
func DefaultConfig() Config {
	return Config{
		HistoryWindow: 4 * time.Hour,
		HistoryStep:   2 * time.Minute,
		FutureHorizon: 90 * time.Minute,
		FutureStep:    time.Minute,
		CacheCapacity: 64,
	}
}

// Sample is one point of a path.
type Sample struct {
	Instant  time.Time            `json:"instant"`
	Position propagation.Geodetic `json:"position"`
}

// Path is an ordered run of samples for one object. Samples whose
// propagation failed are absent, so gaps are possible.
type Path struct {
	ObjectID int       `json:"norad_id"`
	Center   time.Time `json:"center"`
	Samples  []Sample  `json:"samples"`
}

// Sampler builds paths through a propagator.
type Sampler struct {
	cfg    Config
	prop   propagation.Propagator
	cache  *PathCache
	logger *slog.Logger
}

// NewSampler creates a sampler. Zero config fields take their defaults.
func NewSampler(cfg Config, prop propagation.Propagator, logger *slog.Logger) *Sampler {
	def := DefaultConfig()
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = def.HistoryWindow
	}
	if cfg.HistoryStep <= 0 {
		cfg.HistoryStep = def.HistoryStep
	}
	if cfg.FutureHorizon <= 0 {
		cfg.FutureHorizon = def.FutureHorizon
	}
	if cfg.FutureStep <= 0 {
		cfg.FutureStep = def.FutureStep
	}
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = def.CacheCapacity
	}
	return &Sampler{
		cfg:    cfg,
		prop:   prop,
		cache:  NewPathCache(cfg.HistoryStep, cfg.CacheCapacity, logger),
		logger: logger,
	}
}

// SampleHistory returns samples from center-window to center+window inclusive,
// at the history step. The center is first rounded down to the step so the
// result can be shared through the cache.
func (s *Sampler) SampleHistory(el tle.OrbitalElements, center time.Time) Path {
	if p, ok := s.cache.Get(el.NORADID, center); ok {
		return p
	}

	start := time.Now()
	c := s.cache.RoundToStep(center)
	from := c.Add(-s.cfg.HistoryWindow)
	to := c.Add(s.cfg.HistoryWindow)

	samples := make([]Sample, 0, s.HistorySteps())
	var gaps int
	for t := from; !t.After(to); t = t.Add(s.cfg.HistoryStep) {
		st, err := s.prop.Propagate(el, t)
		if err != nil {
			gaps++
			continue
		}
		samples = append(samples, Sample{Instant: t, Position: st.Geodetic})
	}

	p := Path{ObjectID: el.NORADID, Center: c, Samples: samples}
	s.cache.Put(p)

	duration := time.Since(start)
	metrics.ObserveHistorySample(duration)
	s.logger.Debug("history sampled",
		"norad_id", el.NORADID,
		"center", c.Format(time.RFC3339),
		"samples", len(samples),
		"gaps", gaps,
		"duration_ms", duration.Milliseconds(),
	)
	return p
}

// SampleFuture lazily yields at most FutureSteps samples starting at start.
// Each iteration propagates afresh; nothing is cached.
func (s *Sampler) SampleFuture(el tle.OrbitalElements, start time.Time) iter.Seq[Sample] {
	n := s.FutureSteps()
	step := s.cfg.FutureStep
	return func(yield func(Sample) bool) {
		for i := 0; i < n; i++ {
			t := start.Add(time.Duration(i) * step)
			st, err := s.prop.Propagate(el, t)
			if err != nil {
				continue
			}
			if !yield(Sample{Instant: t, Position: st.Geodetic}) {
				return
			}
		}
	}
}

// HistorySteps is the number of instants in a full history window.
func (s *Sampler) HistorySteps() int {
	return int(2*s.cfg.HistoryWindow/s.cfg.HistoryStep) + 1
}

// FutureSteps is the maximum number of samples SampleFuture yields.
func (s *Sampler) FutureSteps() int {
	return int(s.cfg.FutureHorizon / s.cfg.FutureStep)
}

// Forget drops cached history for the given objects.
func (s *Sampler) Forget(ids ...int) {
	s.cache.Forget(ids...)
}

// CacheStats returns history cache statistics.
func (s *Sampler) CacheStats() CacheStats {
	return s.cache.Stats()
}
