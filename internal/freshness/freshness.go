// Package freshness classifies how old an element set is at a simulated
// instant and whether it is still inside the trusted propagation horizon.
package freshness

import (
	"time"

	"github.com/star/orbitrack/internal/tle"
)

// DefaultHorizonDays is the forward validity horizon from epoch.
const DefaultHorizonDays = 30.0

// Label is the categorical age of an element set.
type Label string

const (
	Fresh   Label = "FRESH"
	OK      Label = "OK"
	Old     Label = "OLD"
	VeryOld Label = "VERY_OLD"
)

// Label thresholds in days. Each is the exclusive upper bound of its label.
const (
	freshBelowDays = 3.0
	okBelowDays    = 14.0
	oldBelowDays   = 30.0
)

// State is the freshness of one object at one instant.
type State struct {
	AgeDays float64 `json:"age_days"`
	Label   Label   `json:"label"`
	Valid   bool    `json:"valid"`
}

// Classifier derives freshness from an element epoch and an instant.
type Classifier struct {
	HorizonDays float64
}

// NewClassifier returns a classifier with the given horizon; non-positive
// values select DefaultHorizonDays.
func NewClassifier(horizonDays float64) Classifier {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	return Classifier{HorizonDays: horizonDays}
}

// Horizon returns the horizon as a duration.
func (c Classifier) Horizon() time.Duration {
	return time.Duration(c.HorizonDays * float64(24*time.Hour))
}

// Classify computes the age of el at instant. Negative ages (instant before
// epoch) are FRESH and valid.
func (c Classifier) Classify(el tle.OrbitalElements, instant time.Time) State {
	age := el.AgeAt(instant)
	return State{
		AgeDays: age,
		Label:   LabelFor(age),
		Valid:   age <= c.HorizonDays,
	}
}

// LabelFor maps an age in days to its label.
func LabelFor(ageDays float64) Label {
	switch {
	case ageDays < freshBelowDays:
		return Fresh
	case ageDays < okBelowDays:
		return OK
	case ageDays < oldBelowDays:
		return Old
	default:
		return VeryOld
	}
}
