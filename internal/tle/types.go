package tle

import "time"

// OrbitalElements is one tracked object's two-line element set.
// Immutable after the catalog that owns it is loaded.
type OrbitalElements struct {
	NORADID int
	Name    string
	Epoch   time.Time
	Line1   string
	Line2   string
}

// AgeAt returns how far at lies from the element epoch, in days. Negative
// when at precedes the epoch.
func (e OrbitalElements) AgeAt(at time.Time) float64 {
	return at.Sub(e.Epoch).Hours() / 24
}

// EpochRange spans the oldest and newest element epochs of a catalog. The
// zero value is empty.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Include widens the range to cover t.
func (r *EpochRange) Include(t time.Time) {
	if r.Min.IsZero() || t.Before(r.Min) {
		r.Min = t
	}
	if r.Max.IsZero() || t.After(r.Max) {
		r.Max = t
	}
}

// Span is the time between the oldest and newest epochs.
func (r EpochRange) Span() time.Duration {
	return r.Max.Sub(r.Min)
}
