// Package passes predicts when a tracked object rises above, culminates over
// and sets below a ground target's horizon.
package passes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/star/orbitrack/internal/propagation"
	"github.com/star/orbitrack/internal/tle"
	"github.com/star/orbitrack/internal/transform"
)

// GroundTrackPoint is a sub-satellite position at a specific time during a pass.
type GroundTrackPoint struct {
	Time      time.Time            `json:"time"`
	Position  propagation.Geodetic `json:"position"`
	Elevation float64              `json:"elevation"` // degrees above the target's horizon (0-90)
}

// PassEvent describes a single pass over a ground target.
type PassEvent struct {
	StartTime        time.Time          `json:"start_time"`
	MaxElevationTime time.Time          `json:"max_elevation_time"`
	EndTime          time.Time          `json:"end_time"`
	DurationSeconds  float64            `json:"duration_seconds"`
	MaxElevation     float64            `json:"max_elevation"`
	AzimuthAtMax     float64            `json:"azimuth_at_max"`
	StartAzimuth     float64            `json:"start_azimuth"`
	EndAzimuth       float64            `json:"end_azimuth"`
	GroundTrack      []GroundTrackPoint `json:"ground_track"`
}

// Request holds the parameters for one pass prediction.
type Request struct {
	Observer     transform.ObserverPosition
	Elements     tle.OrbitalElements
	Start        time.Time
	Horizon      time.Duration
	MinElevation float64 // degrees
	MaxPasses    int
}

const (
	coarseStep      = 30 * time.Second
	fineStep        = time.Second
	groundTrackStep = 10 * time.Second
	minPassDur      = 10 * time.Second

	// DefaultHorizon is used when a request leaves Horizon unset.
	DefaultHorizon = 24 * time.Hour
	// DefaultMaxPasses is used when a request leaves MaxPasses unset.
	DefaultMaxPasses = 10
)

// Predictor finds passes using a shared propagator, so records built for
// the map and the scanner are reused here.
type Predictor struct {
	prop   propagation.Propagator
	logger *slog.Logger
}

// NewPredictor creates a pass predictor.
func NewPredictor(prop propagation.Propagator, logger *slog.Logger) *Predictor {
	return &Predictor{prop: prop, logger: logger}
}

// Predict finds up to MaxPasses passes within [Start, Start+Horizon).
// Elements that cannot be propagated at all return an error wrapping
// propagation.ErrInvalidElements. Cancellation returns the passes found so far.
func (p *Predictor) Predict(ctx context.Context, req Request) ([]PassEvent, error) {
	if req.Horizon <= 0 {
		req.Horizon = DefaultHorizon
	}
	if req.MaxPasses <= 0 {
		req.MaxPasses = DefaultMaxPasses
	}

	start := time.Now()
	end := req.Start.Add(req.Horizon)
	var passes []PassEvent

	// Coarse scan: step through the time range looking for elevation > 0.
	t := req.Start
	for t.Before(end) && len(passes) < req.MaxPasses {
		if ctx.Err() != nil {
			break
		}

		el, _, _, err := p.elevationAt(req, t)
		if errors.Is(err, propagation.ErrInvalidElements) {
			return nil, fmt.Errorf("predict passes: %w", err)
		}
		if err != nil || el <= 0 {
			t = t.Add(coarseStep)
			continue
		}

		pass, windowEnd := p.refine(ctx, req, t, end)
		if pass != nil && pass.EndTime.Sub(pass.StartTime) >= minPassDur {
			passes = append(passes, *pass)
		}
		// Jump past the end of this window.
		t = windowEnd.Add(coarseStep)
	}

	p.logger.Debug("pass prediction complete",
		"norad_id", req.Elements.NORADID,
		"passes", len(passes),
		"horizon_hours", req.Horizon.Hours(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return passes, nil
}

// refine does a fine-grained scan around a coarse-detected above-horizon
// region. It backs up to find the actual rise, then scans forward to find
// the set. Returns the pass and the time the window ends.
func (p *Predictor) refine(ctx context.Context, req Request, coarseHit, windowEnd time.Time) (*PassEvent, time.Time) {
	searchStart := coarseHit.Add(-coarseStep)
	if searchStart.Before(req.Start) {
		searchStart = req.Start
	}

	var (
		riseTime, setTime, maxElTime time.Time
		riseAz, setAz, maxEl, maxAz  float64
		wasAbove, foundRise          bool
		groundTrack                  []GroundTrackPoint
	)

	t := searchStart
	for t.Before(windowEnd) {
		if ctx.Err() != nil {
			break
		}

		el, la, st, err := p.elevationAt(req, t)
		if err != nil {
			t = t.Add(fineStep)
			continue
		}

		above := el >= req.MinElevation

		if above && !wasAbove {
			riseTime, riseAz = t, la.AzimuthDeg
			foundRise = true
			maxEl, maxElTime, maxAz = el, t, la.AzimuthDeg
		}

		if above && foundRise {
			if el > maxEl {
				maxEl, maxElTime, maxAz = el, t, la.AzimuthDeg
			}
			if t.Sub(riseTime)%groundTrackStep == 0 {
				groundTrack = append(groundTrack, GroundTrackPoint{
					Time:      t,
					Position:  st.Geodetic,
					Elevation: el,
				})
			}
		}

		if !above && wasAbove && foundRise {
			setTime, setAz = t, la.AzimuthDeg
			break
		}

		wasAbove = above
		t = t.Add(fineStep)
	}

	// Still above at the window end: close the pass there.
	if foundRise && setTime.IsZero() && wasAbove {
		setTime = t
		if el, la, _, err := p.elevationAt(req, t); err == nil {
			setAz = la.AzimuthDeg
			if el > maxEl {
				maxEl, maxElTime, maxAz = el, t, la.AzimuthDeg
			}
		}
	}

	if !foundRise || setTime.IsZero() {
		return nil, t
	}

	return &PassEvent{
		StartTime:        riseTime,
		MaxElevationTime: maxElTime,
		EndTime:          setTime,
		DurationSeconds:  setTime.Sub(riseTime).Seconds(),
		MaxElevation:     maxEl,
		AzimuthAtMax:     maxAz,
		StartAzimuth:     riseAz,
		EndAzimuth:       setAz,
		GroundTrack:      groundTrack,
	}, setTime
}

// elevationAt returns the look angles from the observer to the object at t.
func (p *Predictor) elevationAt(req Request, t time.Time) (float64, transform.LookAngles, propagation.State, error) {
	st, err := p.prop.Propagate(req.Elements, t)
	if err != nil {
		return 0, transform.LookAngles{}, propagation.State{}, err
	}
	la := req.Observer.LookAngles(st.ECEF)
	return la.ElevationDeg, la, st, nil
}
