// Package selection tracks which catalog object is selected and keeps its
// freshness and history path in step with the simulated clock.
//
// The controller has two phases, IDLE and TRACKING(id), and no terminal
// state. History is only sampled while the tracked object's elements are
// valid; otherwise the object is surfaced as a static marker.
package selection

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/star/orbitrack/internal/freshness"
	"github.com/star/orbitrack/internal/metrics"
	"github.com/star/orbitrack/internal/orbitpath"
	"github.com/star/orbitrack/internal/propagation"
	"github.com/star/orbitrack/internal/tle"
)

var (
	ErrNotVisible    = errors.New("object not in the visible set")
	ErrUnknownObject = errors.New("object not in catalog")
)

// Phase is the controller state.
type Phase string

const (
	Idle     Phase = "IDLE"
	Tracking Phase = "TRACKING"
)

// PathSampler produces history and future paths.
type PathSampler interface {
	SampleHistory(el tle.OrbitalElements, center time.Time) orbitpath.Path
	SampleFuture(el tle.OrbitalElements, start time.Time) iter.Seq[orbitpath.Sample]
}

// trackabler is implemented by propagators that can tell without a full
// evaluation whether a record builds for el.
type trackabler interface {
	Trackable(el tle.OrbitalElements) bool
}

// Marker is the tracked object's position at the current instant. For
// objects past their horizon it is advisory.
type Marker struct {
	Instant  time.Time            `json:"instant"`
	Position propagation.Geodetic `json:"position"`
	Advisory bool                 `json:"advisory"`
}

// Snapshot is a copy of the controller state for readers.
type Snapshot struct {
	Phase      Phase            `json:"phase"`
	NORADID    int              `json:"norad_id,omitempty"`
	Name       string           `json:"name,omitempty"`
	Epoch      *time.Time       `json:"epoch,omitempty"`
	Freshness  *freshness.State `json:"freshness,omitempty"`
	Path       *orbitpath.Path  `json:"path,omitempty"`
	Marker     *Marker          `json:"marker,omitempty"`
	Follow     bool             `json:"follow"`
	Generation uint64           `json:"generation"`
}

// Config tunes the controller.
type Config struct {
	// RecenterAfter resamples history once the instant drifts this far from
	// the current path's center. Zero disables recentering.
	RecenterAfter time.Duration
}

// Controller is safe for concurrent use; transitions are serialized.
type Controller struct {
	mu         sync.Mutex
	cfg        Config
	catalog    *tle.Catalog
	visible    map[int]bool // nil means every catalog object is visible
	classifier freshness.Classifier
	sampler    PathSampler
	prop       propagation.Propagator
	logger     *slog.Logger

	phase  Phase
	el     tle.OrbitalElements
	fresh  freshness.State
	path   *orbitpath.Path
	marker *Marker
	follow bool
	gen    uint64
}

// NewController creates an IDLE controller over catalog.
func NewController(cfg Config, catalog *tle.Catalog, classifier freshness.Classifier, sampler PathSampler, prop propagation.Propagator, logger *slog.Logger) *Controller {
	return &Controller{
		cfg:        cfg,
		catalog:    catalog,
		classifier: classifier,
		sampler:    sampler,
		prop:       prop,
		logger:     logger,
		phase:      Idle,
	}
}

// Select starts tracking id. The id must be in the visible set and in the
// catalog, and its elements must build a propagation record; otherwise the
// state is left unchanged. The follow flag is set only when requested.
func (c *Controller) Select(id int, instant time.Time, follow bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.visible != nil && !c.visible[id] {
		return fmt.Errorf("select %d: %w", id, ErrNotVisible)
	}
	el, ok := c.catalog.Get(id)
	if !ok {
		return fmt.Errorf("select %d: %w", id, ErrUnknownObject)
	}
	if err := c.checkTrackable(el, instant); err != nil {
		return fmt.Errorf("select %d: %w", id, err)
	}

	c.gen++
	c.phase = Tracking
	c.el = el
	c.follow = follow
	c.path = nil
	c.fresh = c.classifier.Classify(el, instant)
	if c.fresh.Valid {
		c.resampleLocked(instant)
	}
	c.updateMarkerLocked(instant)
	metrics.IncSelectionTransition("select")
	metrics.SetTrackedFreshness(c.fresh.AgeDays, c.fresh.Valid)

	c.logger.Info("object selected",
		"norad_id", id,
		"name", el.Name,
		"age_days", c.fresh.AgeDays,
		"freshness", c.fresh.Label,
		"valid", c.fresh.Valid,
		"follow", follow,
	)
	return nil
}

// checkTrackable rejects element sets no record can be built for. Degenerate
// states are per-instant gaps and do not block selection.
func (c *Controller) checkTrackable(el tle.OrbitalElements, instant time.Time) error {
	if t, ok := c.prop.(trackabler); ok {
		if !t.Trackable(el) {
			return propagation.ErrInvalidElements
		}
		return nil
	}
	if _, err := c.prop.Propagate(el, instant); errors.Is(err, propagation.ErrInvalidElements) {
		return err
	}
	return nil
}

// Clear returns to IDLE.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked("clear")
}

func (c *Controller) clearLocked(reason string) {
	if c.phase == Idle {
		return
	}
	id := c.el.NORADID
	c.gen++
	c.phase = Idle
	c.el = tle.OrbitalElements{}
	c.fresh = freshness.State{}
	c.path = nil
	c.marker = nil
	c.follow = false
	metrics.IncSelectionTransition(reason)
	c.logger.Info("selection cleared", "norad_id", id, "reason", reason)
}

// OnFilterChanged replaces the visible set. A tracked object that is no
// longer visible is deselected. A nil set makes everything visible. It
// reports whether the selection was cleared.
func (c *Controller) OnFilterChanged(visibleIDs []int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if visibleIDs == nil {
		c.visible = nil
		return false
	}
	c.visible = make(map[int]bool, len(visibleIDs))
	for _, id := range visibleIDs {
		c.visible[id] = true
	}

	if c.phase == Tracking && !c.visible[c.el.NORADID] {
		c.clearLocked("filtered")
		return true
	}
	return false
}

// OnCatalogChanged swaps in a reloaded catalog. A tracked object that
// disappeared is deselected; one whose elements changed is re-evaluated.
func (c *Controller) OnCatalogChanged(catalog *tle.Catalog, instant time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.catalog = catalog
	if c.phase != Tracking {
		return false
	}

	el, ok := catalog.Get(c.el.NORADID)
	if !ok {
		c.clearLocked("removed")
		return true
	}
	if el.Line1 != c.el.Line1 || el.Line2 != c.el.Line2 {
		c.gen++
		c.el = el
		c.path = nil
		c.fresh = c.classifier.Classify(el, instant)
		if c.fresh.Valid {
			c.resampleLocked(instant)
		}
		c.updateMarkerLocked(instant)
		c.logger.Info("tracked elements replaced", "norad_id", el.NORADID, "epoch", el.Epoch.Format(time.RFC3339))
	}
	return false
}

// OnTick re-evaluates freshness at instant. Entering validity resamples the
// history; leaving it discards the path.
func (c *Controller) OnTick(instant time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != Tracking {
		return
	}

	wasValid := c.fresh.Valid
	c.fresh = c.classifier.Classify(c.el, instant)
	metrics.SetTrackedFreshness(c.fresh.AgeDays, c.fresh.Valid)

	switch {
	case !wasValid && c.fresh.Valid:
		c.resampleLocked(instant)
		metrics.IncSelectionTransition("valid")
		c.logger.Info("tracked object back in range", "norad_id", c.el.NORADID, "age_days", c.fresh.AgeDays)
	case wasValid && !c.fresh.Valid:
		c.path = nil
		metrics.IncSelectionTransition("expired")
		c.logger.Info("tracked object out of range", "norad_id", c.el.NORADID, "age_days", c.fresh.AgeDays)
	case c.fresh.Valid && c.needsRecenterLocked(instant):
		c.resampleLocked(instant)
	}
	c.updateMarkerLocked(instant)
}

func (c *Controller) needsRecenterLocked(instant time.Time) bool {
	if c.cfg.RecenterAfter <= 0 || c.path == nil {
		return false
	}
	drift := instant.Sub(c.path.Center)
	if drift < 0 {
		drift = -drift
	}
	return drift >= c.cfg.RecenterAfter
}

// resampleLocked must only be called for a valid tracked object.
func (c *Controller) resampleLocked(instant time.Time) {
	p := c.sampler.SampleHistory(c.el, instant)
	c.path = &p
}

func (c *Controller) updateMarkerLocked(instant time.Time) {
	st, err := c.prop.Propagate(c.el, instant)
	if err != nil {
		c.marker = nil
		c.logger.Debug("marker propagation failed", "norad_id", c.el.NORADID, "error", err)
		return
	}
	c.marker = &Marker{Instant: instant, Position: st.Geodetic, Advisory: !c.fresh.Valid}
}

// Future returns the lazy future path of a valid tracked object. The second
// result is false when IDLE or when the object is out of range.
func (c *Controller) Future(instant time.Time) (iter.Seq[orbitpath.Sample], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != Tracking {
		return nil, false
	}
	if !c.classifier.Classify(c.el, instant).Valid {
		return nil, false
	}
	return c.sampler.SampleFuture(c.el, instant), true
}

// Tracked returns the tracked elements and generation, if any.
func (c *Controller) Tracked() (tle.OrbitalElements, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.el, c.gen, c.phase == Tracking
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{Phase: c.phase, Generation: c.gen, Follow: c.follow}
	if c.phase != Tracking {
		return s
	}

	s.NORADID = c.el.NORADID
	s.Name = c.el.Name
	epoch := c.el.Epoch
	s.Epoch = &epoch
	fresh := c.fresh
	s.Freshness = &fresh
	if c.path != nil {
		p := *c.path
		p.Samples = append([]orbitpath.Sample(nil), c.path.Samples...)
		s.Path = &p
	}
	if c.marker != nil {
		m := *c.marker
		s.Marker = &m
	}
	return s
}
