// Package proximity finds catalog objects passing near a ground target.
package proximity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/star/orbitrack/internal/metrics"
	"github.com/star/orbitrack/internal/observability"
	"github.com/star/orbitrack/internal/propagation"
	"github.com/star/orbitrack/internal/tle"
	"github.com/star/orbitrack/internal/transform"
	"go.opentelemetry.io/otel/attribute"
)

// MaxObjects is the default cap on objects examined per scan.
const MaxObjects = 1000

// ErrInvalidTarget is returned by SetTarget for out-of-range targets.
var ErrInvalidTarget = errors.New("invalid ground target")

// Mode selects the distance metric.
type Mode string

const (
	// ModeGround measures great-circle distance from the target to the
	// sub-satellite point.
	ModeGround Mode = "ground"
	// ModeSlant measures straight-line range from the target to the object.
	ModeSlant Mode = "slant"
)

// GroundTarget is a point on the ground with a search radius.
type GroundTarget struct {
	LatDeg   float64 `json:"lat_deg"`
	LonDeg   float64 `json:"lon_deg"`
	AltM     float64 `json:"alt_m"`
	RadiusKm float64 `json:"radius_km"`
}

// Validate checks coordinates and a positive radius.
func (g GroundTarget) Validate() error {
	if !transform.ValidLatLon(g.LatDeg, g.LonDeg) {
		return fmt.Errorf("%w: lat %.4f lon %.4f out of range", ErrInvalidTarget, g.LatDeg, g.LonDeg)
	}
	if math.IsNaN(g.RadiusKm) || math.IsInf(g.RadiusKm, 0) || g.RadiusKm <= 0 {
		return fmt.Errorf("%w: radius must be > 0, got %v", ErrInvalidTarget, g.RadiusKm)
	}
	if math.IsNaN(g.AltM) || math.IsInf(g.AltM, 0) {
		return fmt.Errorf("%w: altitude must be finite", ErrInvalidTarget)
	}
	return nil
}

// InterceptResult is one object inside the target radius.
type InterceptResult struct {
	NORADID    int                  `json:"norad_id"`
	Name       string               `json:"name"`
	DistanceKm float64              `json:"distance_km"`
	Position   propagation.Geodetic `json:"position"`
}

// Config tunes the scanner.
type Config struct {
	MaxObjects int  // per-scan cap (default: MaxObjects)
	Mode       Mode // default: ModeGround
	// ParallelThreshold is the subset size from which scans fan out over
	// the worker pool. Smaller subsets are scanned inline.
	ParallelThreshold int
}

// Scanner holds the current ground target and the last committed results.
type Scanner struct {
	cfg    Config
	prop   propagation.Propagator
	pool   *propagation.WorkerPool
	logger *slog.Logger

	mu       sync.RWMutex
	target   *GroundTarget
	observer transform.ObserverPosition
	gen      uint64
	results  []InterceptResult
	scanned  time.Time
}

// NewScanner creates a scanner with no target. pool may be nil.
func NewScanner(cfg Config, prop propagation.Propagator, pool *propagation.WorkerPool, logger *slog.Logger) *Scanner {
	if cfg.MaxObjects <= 0 {
		cfg.MaxObjects = MaxObjects
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeGround
	}
	if cfg.ParallelThreshold <= 0 {
		cfg.ParallelThreshold = 64
	}
	return &Scanner{cfg: cfg, prop: prop, pool: pool, logger: logger}
}

// ParseMode validates a distance mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeGround, ModeSlant:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown distance mode %q", s)
	}
}

// SetTarget replaces the target. Results for the previous target are
// discarded, including any scan still in flight.
func (s *Scanner) SetTarget(g GroundTarget) error {
	if err := g.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.gen++
	s.target = &g
	s.observer = transform.NewObserverPosition(g.LatDeg, g.LonDeg, g.AltM)
	s.results = nil
	s.mu.Unlock()

	s.logger.Info("ground target set",
		"lat_deg", g.LatDeg,
		"lon_deg", g.LonDeg,
		"radius_km", g.RadiusKm,
	)
	return nil
}

// ClearTarget removes the target and its results.
func (s *Scanner) ClearTarget() {
	s.mu.Lock()
	had := s.target != nil
	s.gen++
	s.target = nil
	s.results = nil
	s.mu.Unlock()

	if had {
		s.logger.Info("ground target cleared")
	}
}

// Target returns the current target, if any.
func (s *Scanner) Target() (GroundTarget, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.target == nil {
		return GroundTarget{}, false
	}
	return *s.target, true
}

// Scan computes the objects of subset within the target radius at instant.
// Only the first MaxObjects entries of subset are examined. Objects that fail
// to propagate are skipped. The list is sorted by distance, ties keeping
// subset order, and is committed only if the target is unchanged since the
// scan began; the boolean reports whether it was committed.
func (s *Scanner) Scan(ctx context.Context, subset []tle.OrbitalElements, instant time.Time) ([]InterceptResult, bool) {
	s.mu.RLock()
	if s.target == nil {
		s.mu.RUnlock()
		return nil, false
	}
	target := *s.target
	observer := s.observer
	gen := s.gen
	s.mu.RUnlock()

	if len(subset) > s.cfg.MaxObjects {
		subset = subset[:s.cfg.MaxObjects]
	}

	ctx, span := observability.StartSpan(ctx, "proximity.scan",
		attribute.Int("objects", len(subset)),
		attribute.String("mode", string(s.cfg.Mode)),
	)
	defer span.End()

	start := time.Now()
	states, err := s.propagateAll(ctx, subset, instant)
	if err != nil {
		span.RecordError(err)
		s.logger.Debug("scan aborted", "error", err)
		return nil, false
	}

	results := make([]InterceptResult, 0)
	for i, st := range states {
		if st == nil {
			continue
		}
		d := s.distance(target, observer, *st)
		if d < target.RadiusKm {
			results = append(results, InterceptResult{
				NORADID:    subset[i].NORADID,
				Name:       subset[i].Name,
				DistanceKm: d,
				Position:   st.Geodetic,
			})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].DistanceKm < results[j].DistanceKm
	})

	duration := time.Since(start)
	metrics.ObserveScanDuration(duration)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		metrics.IncScanStale()
		span.SetAttributes(attribute.Bool("stale", true))
		s.logger.Debug("dropping stale scan results", "scan_generation", gen)
		return nil, false
	}
	s.results = results
	s.scanned = instant
	s.mu.Unlock()

	metrics.SetScanResults(len(results))
	span.SetAttributes(attribute.Int("results", len(results)))
	s.logger.Debug("scan complete",
		"objects", len(subset),
		"results", len(results),
		"duration_ms", duration.Milliseconds(),
	)
	return results, true
}

// propagateAll returns one state per subset entry; nil marks a failure.
func (s *Scanner) propagateAll(ctx context.Context, subset []tle.OrbitalElements, instant time.Time) ([]*propagation.State, error) {
	states := make([]*propagation.State, len(subset))

	if s.pool != nil && len(subset) >= s.cfg.ParallelThreshold {
		outcomes, err := s.pool.PropagateBatch(ctx, s.prop, subset, instant)
		if err != nil {
			return nil, err
		}
		for i, o := range outcomes {
			if o.Err == nil {
				st := o.State
				states[i] = &st
			}
		}
		return states, nil
	}

	for i, el := range subset {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st, err := s.prop.Propagate(el, instant)
		if err != nil {
			continue
		}
		states[i] = &st
	}
	return states, nil
}

func (s *Scanner) distance(target GroundTarget, observer transform.ObserverPosition, st propagation.State) float64 {
	if s.cfg.Mode == ModeSlant {
		return transform.SlantRangeKm(observer, st.ECEF)
	}
	return transform.GreatCircleKm(target.LatDeg, target.LonDeg, st.Geodetic.LatDeg, st.Geodetic.LonDeg)
}

// Results returns a copy of the last committed list.
func (s *Scanner) Results() []InterceptResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]InterceptResult, len(s.results))
	copy(out, s.results)
	return out
}

// ScannedAt returns the instant of the last committed scan.
func (s *Scanner) ScannedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanned
}
