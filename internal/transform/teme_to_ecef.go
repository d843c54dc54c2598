// Package transform converts SGP4 output between reference frames.
//
// Sub-satellite points, ground distances and look angles all derive from an
// Earth-fixed position. TEME is rotated to the pseudo Earth-fixed frame by
// GMST alone and that frame is used as ECEF; polar motion and the equation
// of the equinoxes are ignored, an error of tens of meters.
package transform

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// PositionTEME is an SGP4 state in the TEME frame.
type PositionTEME struct {
	X, Y, Z    float64 // km
	VX, VY, VZ float64 // km/s
}

// PositionECEF is a state in the Earth-fixed frame.
type PositionECEF struct {
	X, Y, Z    float64 // meters
	VX, VY, VZ float64 // m/s
}

const metersPerKm = 1000.0

// TEMEToECEF rotates a TEME state (km, km/s) into ECEF (m, m/s) at t.
func TEMEToECEF(teme PositionTEME, t time.Time) PositionECEF {
	return TEMEToECEFWithGMST(teme, GMST(t))
}

// TEMEToECEFWithGMST is TEMEToECEF with the GMST angle (radians) supplied,
// so a batch propagated to one instant computes it once.
//
//	r_ecef = R3(θ) r_teme
//	v_ecef = R3(θ) v_teme - ω × r_ecef
func TEMEToECEFWithGMST(teme PositionTEME, gmst float64) PositionECEF {
	sin, cos := math.Sincos(gmst)
	x, y := rotZ(teme.X, teme.Y, sin, cos)
	vx, vy := rotZ(teme.VX, teme.VY, sin, cos)

	// ω × r = (-ω y, ω x, 0)
	vx += OmegaEarth * y
	vy -= OmegaEarth * x

	return PositionECEF{
		X: x * metersPerKm, Y: y * metersPerKm, Z: teme.Z * metersPerKm,
		VX: vx * metersPerKm, VY: vy * metersPerKm, VZ: teme.VZ * metersPerKm,
	}
}

// rotZ applies the frame rotation R3(θ) to the equatorial components.
func rotZ(x, y, sin, cos float64) (float64, float64) {
	return x*cos + y*sin, -x*sin + y*cos
}

// Plausible reports whether the position is finite and between just below
// the Earth's surface and well past geostationary altitude.
func (p PositionECEF) Plausible() bool {
	const (
		minRadiusM = 6200e3
		maxRadiusM = 50000e3
	)
	for _, v := range []float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	mag := p.Magnitude()
	return mag >= minRadiusM && mag <= maxRadiusM
}

// Magnitude returns the TEME position norm in km.
func (p PositionTEME) Magnitude() float64 {
	return floats.Norm([]float64{p.X, p.Y, p.Z}, 2)
}

// Speed returns the TEME velocity norm in km/s.
func (p PositionTEME) Speed() float64 {
	return floats.Norm([]float64{p.VX, p.VY, p.VZ}, 2)
}

// Finite reports whether every component is a finite number.
func (p PositionTEME) Finite() bool {
	for _, v := range []float64{p.X, p.Y, p.Z, p.VX, p.VY, p.VZ} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Magnitude returns the ECEF position norm in meters.
func (p PositionECEF) Magnitude() float64 {
	return floats.Norm([]float64{p.X, p.Y, p.Z}, 2)
}
