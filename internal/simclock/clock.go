// Package simclock owns simulated time: the current instant, its rate
// multiplier and the run state. It does not schedule itself; the host loop
// calls Advance with the real time elapsed since the previous tick.
package simclock

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/star/orbitrack/internal/metrics"
)

const (
	// DefaultMultiplier is the initial rate: ten simulated seconds per real second.
	DefaultMultiplier = 10.0

	// MaxMultiplier bounds the rate magnitude, about eleven simulated days
	// per real second.
	MaxMultiplier = 1e6
)

var (
	ErrZeroMultiplier    = errors.New("multiplier must be nonzero")
	ErrInvalidMultiplier = errors.New("multiplier must be finite and at most 1e6 in magnitude")
)

// State is the run state of the clock.
type State string

const (
	Running State = "RUNNING"
	Paused  State = "PAUSED"
)

// Tick is emitted on every Advance.
type Tick struct {
	Instant    time.Time     // instant after advancing
	Delta      time.Duration // simulated time added by this tick (0 when paused)
	Multiplier float64
	State      State
}

// Snapshot is a consistent view of the clock.
type Snapshot struct {
	Instant      time.Time  `json:"instant"`
	Multiplier   float64    `json:"multiplier"`
	Running      bool       `json:"running"`
	State        State      `json:"state"`
	TrackedEpoch *time.Time `json:"tracked_epoch,omitempty"`
}

// Clock is safe for concurrent use. Listeners run synchronously on the
// goroutine that called Advance, after the clock's lock is released.
type Clock struct {
	mu         sync.RWMutex
	instant    time.Time
	multiplier float64
	running    bool
	horizon    time.Duration
	tracked    *time.Time
	now        func() time.Time
	listeners  []func(Tick)
}

// Option configures a Clock.
type Option func(*Clock)

// WithNow replaces the wall clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(c *Clock) { c.now = now }
}

// WithMultiplier sets the initial rate. Values ValidateMultiplier rejects are
// ignored.
func WithMultiplier(m float64) Option {
	return func(c *Clock) {
		if ValidateMultiplier(m) == nil {
			c.multiplier = m
		}
	}
}

// New creates a running clock at the current wall time. horizon bounds how
// far SetInstant may jump past a tracked epoch and past wall-clock now.
func New(horizon time.Duration, opts ...Option) *Clock {
	c := &Clock{
		multiplier: DefaultMultiplier,
		running:    true,
		horizon:    horizon,
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.instant = c.now().UTC()
	metrics.SetClock(c.multiplier, c.running)
	return c
}

// ValidateMultiplier reports whether m is a usable rate.
func ValidateMultiplier(m float64) error {
	switch {
	case math.IsNaN(m) || math.IsInf(m, 0) || math.Abs(m) > MaxMultiplier:
		return ErrInvalidMultiplier
	case m == 0:
		return ErrZeroMultiplier
	}
	return nil
}

// OnTick registers fn to be called after every Advance.
func (c *Clock) OnTick(fn func(Tick)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Now returns the current simulated instant.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instant
}

// TogglePlay flips RUNNING and PAUSED, keeping the instant. It returns the
// new state.
func (c *Clock) TogglePlay() State {
	c.mu.Lock()
	c.running = !c.running
	m, r := c.multiplier, c.running
	c.mu.Unlock()

	metrics.SetClock(m, r)
	return stateOf(r)
}

// SetMultiplier changes the rate and forces the clock to RUNNING.
func (c *Clock) SetMultiplier(m float64) error {
	if err := ValidateMultiplier(m); err != nil {
		return err
	}
	c.mu.Lock()
	c.multiplier = m
	c.running = true
	c.mu.Unlock()

	metrics.SetClock(m, true)
	return nil
}

// Track bounds SetInstant to [epoch, epoch+horizon] until Untrack.
func (c *Clock) Track(epoch time.Time) {
	e := epoch.UTC()
	c.mu.Lock()
	c.tracked = &e
	c.mu.Unlock()
}

// Untrack removes the per-object bound. The global ceiling still applies.
func (c *Clock) Untrack() {
	c.mu.Lock()
	c.tracked = nil
	c.mu.Unlock()
}

// SetInstant jumps to t and returns the instant actually applied. The tracked
// window is applied first, then the global ceiling of wall now plus horizon.
func (c *Clock) SetInstant(t time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t = t.UTC()
	if c.tracked != nil {
		lo := *c.tracked
		hi := lo.Add(c.horizon)
		if t.Before(lo) {
			t = lo
		}
		if t.After(hi) {
			t = hi
		}
	}
	if ceiling := c.now().UTC().Add(c.horizon); t.After(ceiling) {
		t = ceiling
	}
	c.instant = t
	return t
}

// Advance moves the instant by realElapsed times the multiplier when running,
// then notifies listeners. Paused clocks still notify with a zero delta.
func (c *Clock) Advance(realElapsed time.Duration) Tick {
	c.mu.Lock()
	var delta time.Duration
	if c.running && realElapsed > 0 {
		delta = scale(realElapsed, c.multiplier)
		c.instant = c.instant.Add(delta)
	}
	tick := Tick{
		Instant:    c.instant,
		Delta:      delta,
		Multiplier: c.multiplier,
		State:      stateOf(c.running),
	}
	listeners := make([]func(Tick), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(tick)
	}
	return tick
}

// Snapshot returns the current instant, rate and run state.
func (c *Clock) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Instant:    c.instant,
		Multiplier: c.multiplier,
		Running:    c.running,
		State:      stateOf(c.running),
	}
	if c.tracked != nil {
		e := *c.tracked
		s.TrackedEpoch = &e
	}
	return s
}

// scale multiplies d by m, saturating at the Duration range so a long stall
// at a high rate cannot wrap around and reverse time.
func scale(d time.Duration, m float64) time.Duration {
	f := float64(d) * m
	switch {
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return time.Duration(f)
}

func stateOf(running bool) State {
	if running {
		return Running
	}
	return Paused
}
