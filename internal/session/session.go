// Package session is the host loop that ties the tracker together. Each tick
// advances the simulation clock, re-evaluates the selection and, on a slower
// wall-clock cadence, rescans the ground target.
//
// Clock and selection updates are serialized by the session mutex. Scans run
// outside it; the scanner's generation tag drops results computed for a
// target that changed while the scan was in flight.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/orbitrack/internal/freshness"
	"github.com/star/orbitrack/internal/metrics"
	"github.com/star/orbitrack/internal/observability"
	"github.com/star/orbitrack/internal/orbitpath"
	"github.com/star/orbitrack/internal/passes"
	"github.com/star/orbitrack/internal/propagation"
	"github.com/star/orbitrack/internal/proximity"
	"github.com/star/orbitrack/internal/selection"
	"github.com/star/orbitrack/internal/simclock"
	"github.com/star/orbitrack/internal/tle"
	"github.com/star/orbitrack/internal/transform"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrNoSelection = errors.New("no object selected")
	ErrNoTarget    = errors.New("no ground target set")
	ErrOutOfRange  = errors.New("tracked elements outside the validity horizon")
)

// Config holds host loop timing and pass prediction defaults.
type Config struct {
	TickInterval     time.Duration // real time between ticks (default: 100ms)
	ScanInterval     time.Duration // real time between proximity scans (default: 2s)
	PassHorizon      time.Duration // default: 24h
	PassMinElevation float64       // degrees
}

// DefaultConfig returns the default loop timing.
func DefaultConfig() Config {
	return Config{
		TickInterval: 100 * time.Millisecond,
		ScanInterval: 2 * time.Second,
		PassHorizon:  passes.DefaultHorizon,
	}
}

// Components are the collaborators a session drives.
type Components struct {
	Store       *tle.Store
	Propagation *propagation.Service
	Sampler     *orbitpath.Sampler
	Classifier  freshness.Classifier
	Clock       *simclock.Clock
	Selection   *selection.Controller
	Scanner     *proximity.Scanner
	Passes      *passes.Predictor
}

// CatalogSummary describes the loaded catalog.
type CatalogSummary struct {
	Source   string    `json:"source"`
	Count    int       `json:"count"`
	LoadedAt time.Time `json:"loaded_at"`
	EpochMin time.Time `json:"epoch_min"`
	EpochMax time.Time `json:"epoch_max"`
}

// Snapshot is a consistent view of the whole session for readers.
type Snapshot struct {
	Clock      simclock.Snapshot           `json:"clock"`
	Selection  selection.Snapshot          `json:"selection"`
	Target     *proximity.GroundTarget     `json:"target,omitempty"`
	Intercepts []proximity.InterceptResult `json:"intercepts"`
	Catalog    CatalogSummary              `json:"catalog"`
	Ticks      uint64                      `json:"ticks"`
}

// ObjectView is one catalog object evaluated at the current instant. The
// state is advisory when the elements are past their horizon.
type ObjectView struct {
	NORADID   int                `json:"norad_id"`
	Name      string             `json:"name"`
	Epoch     time.Time          `json:"epoch"`
	Instant   time.Time          `json:"instant"`
	Freshness freshness.State    `json:"freshness"`
	State     *propagation.State `json:"state,omitempty"`
	Advisory  bool               `json:"advisory"`
	Error     string             `json:"error,omitempty"`
}

// Option configures a Session.
type Option func(*Session)

// WithNow replaces the wall clock used for the scan cadence, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session owns the host loop.
type Session struct {
	cfg    Config
	c      Components
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	visible  []int // nil means every catalog object is visible
	lastScan time.Time
	ticks    uint64

	scanning atomic.Bool
}

// New creates a session. Zero config fields take their defaults.
func New(cfg Config, c Components, logger *slog.Logger, opts ...Option) *Session {
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = def.ScanInterval
	}
	if cfg.PassHorizon <= 0 {
		cfg.PassHorizon = def.PassHorizon
	}
	s := &Session{cfg: cfg, c: c, logger: logger, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if cat := c.Store.Get(); cat != nil {
		metrics.SetCatalogSize(cat.Len())
	}
	return s
}

// Run ticks the session every TickInterval until ctx ends.
func (s *Session) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.logger.Info("session loop started",
		"tick_interval_ms", s.cfg.TickInterval.Milliseconds(),
		"scan_interval_ms", s.cfg.ScanInterval.Milliseconds(),
	)

	last := s.now()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session loop stopped", "ticks", s.Snapshot().Ticks)
			return
		case <-ticker.C:
			now := s.now()
			s.Tick(ctx, now.Sub(last))
			last = now
		}
	}
}

// Tick advances the clock by realElapsed, re-evaluates the selection at the
// new instant and, when the scan interval has elapsed, scans the target.
func (s *Session) Tick(ctx context.Context, realElapsed time.Duration) simclock.Tick {
	ctx, span := observability.StartSpan(ctx, "session.tick")
	defer span.End()

	s.mu.Lock()
	tick := s.c.Clock.Advance(realElapsed)
	s.c.Selection.OnTick(tick.Instant)
	s.ticks++
	due := s.scanDueLocked()
	s.mu.Unlock()

	span.SetAttributes(
		attribute.String("instant", tick.Instant.Format(time.RFC3339)),
		attribute.Bool("scan", due),
	)
	if due {
		s.scan(ctx, tick.Instant)
	}
	return tick
}

func (s *Session) scanDueLocked() bool {
	if _, ok := s.c.Scanner.Target(); !ok {
		return false
	}
	now := s.now()
	if !s.lastScan.IsZero() && now.Sub(s.lastScan) < s.cfg.ScanInterval {
		return false
	}
	s.lastScan = now
	return true
}

// scan runs at most one scan at a time. A tick that finds a scan in flight
// skips its own.
func (s *Session) scan(ctx context.Context, instant time.Time) {
	if !s.scanning.CompareAndSwap(false, true) {
		return
	}
	defer s.scanning.Store(false)

	s.mu.Lock()
	visible := s.visible
	s.mu.Unlock()

	s.c.Scanner.Scan(ctx, s.c.Store.Get().Subset(visible), instant)
}

// rescanLocked makes the next tick scan regardless of the cadence.
func (s *Session) rescanLocked() {
	s.lastScan = time.Time{}
}

// TogglePlay flips the clock between RUNNING and PAUSED.
func (s *Session) TogglePlay() simclock.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Clock.TogglePlay()
}

// SetMultiplier changes the clock rate and resumes it.
func (s *Session) SetMultiplier(m float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Clock.SetMultiplier(m)
}

// SetInstant jumps the clock and re-evaluates the selection at the applied
// instant, which may be clamped.
func (s *Session) SetInstant(t time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := s.c.Clock.SetInstant(t)
	s.c.Selection.OnTick(applied)
	s.rescanLocked()
	if !applied.Equal(t.UTC()) {
		s.logger.Info("instant clamped",
			"requested", t.UTC().Format(time.RFC3339),
			"applied", applied.Format(time.RFC3339),
		)
	}
	return applied
}

// Select starts tracking id and bounds the clock to its validity window.
func (s *Session) Select(id int, follow bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.c.Selection.Select(id, s.c.Clock.Now(), follow); err != nil {
		return err
	}
	s.syncTrackLocked()
	return nil
}

// ClearSelection returns to IDLE and lifts the per-object clock bound.
func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.c.Selection.Clear()
	s.c.Clock.Untrack()
}

// SetFilter replaces the visible set. A nil ids slice makes every catalog
// object visible. A tracked object filtered out is deselected.
func (s *Session) SetFilter(ids []int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ids != nil {
		ids = slices.Clone(ids)
	}
	s.visible = ids
	if s.c.Selection.OnFilterChanged(ids) {
		s.c.Clock.Untrack()
	}
	s.rescanLocked()
}

// SetTarget sets the ground target; the next tick scans it.
func (s *Session) SetTarget(g proximity.GroundTarget) error {
	if err := s.c.Scanner.SetTarget(g); err != nil {
		return err
	}
	s.mu.Lock()
	s.rescanLocked()
	s.mu.Unlock()
	return nil
}

// ClearTarget removes the ground target and its results.
func (s *Session) ClearTarget() {
	s.c.Scanner.ClearTarget()
}

// Intercepts returns the last committed scan and the instant it was taken at.
func (s *Session) Intercepts() ([]proximity.InterceptResult, time.Time) {
	return s.c.Scanner.Results(), s.c.Scanner.ScannedAt()
}

// Future materializes the tracked object's future path from the current instant.
func (s *Session) Future() ([]orbitpath.Sample, error) {
	instant := s.c.Clock.Now()
	seq, ok := s.c.Selection.Future(instant)
	if !ok {
		if _, _, tracking := s.c.Selection.Tracked(); !tracking {
			return nil, ErrNoSelection
		}
		return nil, ErrOutOfRange
	}
	return slices.Collect(seq), nil
}

// Passes predicts passes of the tracked object over the ground target,
// starting at the current instant.
func (s *Session) Passes(ctx context.Context) ([]passes.PassEvent, error) {
	el, _, tracking := s.c.Selection.Tracked()
	if !tracking {
		return nil, ErrNoSelection
	}
	instant := s.c.Clock.Now()
	if !s.c.Classifier.Classify(el, instant).Valid {
		return nil, ErrOutOfRange
	}
	target, ok := s.c.Scanner.Target()
	if !ok {
		return nil, ErrNoTarget
	}

	ctx, span := observability.StartSpan(ctx, "session.passes", attribute.Int("norad_id", el.NORADID))
	defer span.End()

	return s.c.Passes.Predict(ctx, passes.Request{
		Observer:     transform.NewObserverPosition(target.LatDeg, target.LonDeg, target.AltM),
		Elements:     el,
		Start:        instant,
		Horizon:      s.cfg.PassHorizon,
		MinElevation: s.cfg.PassMinElevation,
	})
}

// Object evaluates one catalog object at the current instant.
func (s *Session) Object(id int) (ObjectView, error) {
	el, ok := s.c.Store.Get().Get(id)
	if !ok {
		return ObjectView{}, fmt.Errorf("object %d: %w", id, selection.ErrUnknownObject)
	}

	instant := s.c.Clock.Now()
	fresh := s.c.Classifier.Classify(el, instant)
	v := ObjectView{
		NORADID:   el.NORADID,
		Name:      el.Name,
		Epoch:     el.Epoch,
		Instant:   instant,
		Freshness: fresh,
		Advisory:  !fresh.Valid,
	}
	st, err := s.c.Propagation.Propagate(el, instant)
	if err != nil {
		v.Error = err.Error()
		return v, nil
	}
	v.State = &st
	return v, nil
}

// Catalog returns the current catalog.
func (s *Session) Catalog() *tle.Catalog {
	return s.c.Store.Get()
}

// Reload swaps in a new catalog. Records and cached paths of removed or
// changed objects are dropped, and the selection is re-evaluated.
func (s *Session) Reload(next *tle.Catalog) []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.c.Store.Swap(next)
	s.c.Propagation.Forget(removed...)
	s.c.Sampler.Forget(removed...)

	if s.c.Selection.OnCatalogChanged(next, s.c.Clock.Now()) {
		s.c.Clock.Untrack()
	} else {
		s.syncTrackLocked()
	}
	s.rescanLocked()

	metrics.SetCatalogSize(next.Len())
	s.logger.Info("catalog reloaded",
		"source", next.Source,
		"count", next.Len(),
		"invalidated", len(removed),
	)
	return removed
}

func (s *Session) syncTrackLocked() {
	if el, _, ok := s.c.Selection.Tracked(); ok {
		s.c.Clock.Track(el.Epoch)
	}
}

// Summary describes the current catalog.
func (s *Session) Summary() CatalogSummary {
	cat := s.c.Store.Get()
	return CatalogSummary{
		Source:   cat.Source,
		Count:    cat.Len(),
		LoadedAt: cat.LoadedAt,
		EpochMin: cat.EpochRange.Min,
		EpochMax: cat.EpochRange.Max,
	}
}

// ClockSnapshot returns the clock state alone.
func (s *Session) ClockSnapshot() simclock.Snapshot {
	return s.c.Clock.Snapshot()
}

// SelectionSnapshot returns the selection state alone.
func (s *Session) SelectionSnapshot() selection.Snapshot {
	return s.c.Selection.Snapshot()
}

// Target returns the current ground target, if any.
func (s *Session) Target() (proximity.GroundTarget, bool) {
	return s.c.Scanner.Target()
}

// Snapshot returns the current state of every component.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	ticks := s.ticks
	s.mu.Unlock()

	snap := Snapshot{
		Clock:      s.c.Clock.Snapshot(),
		Selection:  s.c.Selection.Snapshot(),
		Intercepts: s.c.Scanner.Results(),
		Catalog:    s.Summary(),
		Ticks:      ticks,
	}
	if g, ok := s.c.Scanner.Target(); ok {
		snap.Target = &g
	}
	return snap
}
