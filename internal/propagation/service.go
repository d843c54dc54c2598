package propagation

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/star/orbitrack/internal/metrics"
	"github.com/star/orbitrack/internal/tle"
	"github.com/star/orbitrack/internal/transform"
)

var (
	// ErrInvalidElements means no record could be built. The object is
	// permanently non-trackable for the lifetime of its element set.
	ErrInvalidElements = errors.New("invalid orbital elements")

	// ErrDegenerate means the model produced an unusable state at the requested
	// instant. It is a per-instant gap, not a property of the object.
	ErrDegenerate = errors.New("degenerate propagation state")
)

// Position envelope for an Earth-orbiting object, in km from the geocenter.
const (
	minRadiusKm = 6200.0
	maxRadiusKm = 50000.0
)

// recordEntry memoizes one build attempt. The once guarantees a single
// builder per key; failures are kept alongside successes.
type recordEntry struct {
	once   sync.Once
	line1  string
	line2  string
	record Record
	err    error
}

// Service turns element sets into states. It owns the record memo: one record
// per NORAD id, built on first use, reused until the id is forgotten or its
// element lines change.
type Service struct {
	build  Builder
	logger *slog.Logger

	mu      sync.Mutex
	records map[int]*recordEntry
}

// NewService creates a propagation service backed by build.
func NewService(build Builder, logger *slog.Logger) *Service {
	return &Service{
		build:   build,
		logger:  logger,
		records: make(map[int]*recordEntry),
	}
}

// record returns the memoized record for el, building it at most once.
func (s *Service) record(el tle.OrbitalElements) (Record, error) {
	s.mu.Lock()
	e, ok := s.records[el.NORADID]
	if !ok || e.line1 != el.Line1 || e.line2 != el.Line2 {
		e = &recordEntry{line1: el.Line1, line2: el.Line2}
		s.records[el.NORADID] = e
	}
	s.mu.Unlock()

	e.once.Do(func() {
		e.record, e.err = s.build(el)
		if e.err != nil {
			metrics.IncRecordBuild("failed")
			s.logger.Warn("propagation record build failed",
				"norad_id", el.NORADID,
				"name", el.Name,
				"error", e.err,
			)
			return
		}
		metrics.IncRecordBuild("ok")
	})
	return e.record, e.err
}

// Propagate evaluates el at t. Failures wrap ErrInvalidElements or
// ErrDegenerate and are never fatal.
func (s *Service) Propagate(el tle.OrbitalElements, t time.Time) (State, error) {
	rec, err := s.record(el)
	if err != nil {
		metrics.IncPropagation("invalid_elements")
		return State{}, fmt.Errorf("norad %d: %w: %w", el.NORADID, ErrInvalidElements, err)
	}

	teme, err := rec.PropagateTEME(t)
	if err != nil {
		metrics.IncPropagation("degenerate")
		return State{}, fmt.Errorf("norad %d at %s: %w: %w", el.NORADID, t.UTC().Format(time.RFC3339), ErrDegenerate, err)
	}
	if !teme.Finite() {
		metrics.IncPropagation("degenerate")
		return State{}, fmt.Errorf("norad %d at %s: %w: non-finite output", el.NORADID, t.UTC().Format(time.RFC3339), ErrDegenerate)
	}
	if mag := teme.Magnitude(); mag < minRadiusKm || mag > maxRadiusKm {
		metrics.IncPropagation("degenerate")
		return State{}, fmt.Errorf("norad %d at %s: %w: position magnitude %.1f km", el.NORADID, t.UTC().Format(time.RFC3339), ErrDegenerate, mag)
	}

	ecef := transform.TEMEToECEF(teme, t)
	g := ecef.Geodetic()

	metrics.IncPropagation("ok")
	return State{
		NORADID: el.NORADID,
		Instant: t,
		Geodetic: Geodetic{
			LatDeg: g.LatDeg,
			LonDeg: g.LonDeg,
			AltKm:  g.AltM / 1000.0,
		},
		VelocityKmS: teme.Speed(),
		TEME:        teme,
		ECEF:        ecef,
	}, nil
}

// Trackable reports whether a record can be built for el.
func (s *Service) Trackable(el tle.OrbitalElements) bool {
	_, err := s.record(el)
	return err == nil
}

// Forget drops memoized records for ids removed from the catalog.
func (s *Service) Forget(ids ...int) {
	if len(ids) == 0 {
		return
	}
	s.mu.Lock()
	for _, id := range ids {
		delete(s.records, id)
	}
	s.mu.Unlock()
	s.logger.Debug("propagation records forgotten", "count", len(ids))
}

// Len returns the number of memoized records, failed builds included.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
