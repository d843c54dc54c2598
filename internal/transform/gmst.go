package transform

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

const (
	// jdJ2000 is the Julian Date of J2000.0.
	jdJ2000 = 2451545.0

	daysPerCentury = 36525.0
	secondsPerDay  = 86400.0
)

// OmegaEarth is Earth's rotation rate in rad/s.
const OmegaEarth = 7.292115146706979e-5

// IAU-82 sidereal time polynomial in seconds of time, lowest order first
// (Vallado eq. 3-47). The linear term folds in 876600 h.
var gmstCoeffs = [4]float64{
	67310.54841,
	876600*3600 + 8640184.812866,
	0.093104,
	-6.2e-6,
}

// JulianDate returns the Julian Date of t on the UTC scale.
func JulianDate(t time.Time) float64 {
	return julian.TimeToJD(t.UTC())
}

// GMST returns Greenwich Mean Sidereal Time in radians, in [0, 2π).
// UT1 is taken equal to UTC.
func GMST(t time.Time) float64 {
	c := (JulianDate(t) - jdJ2000) / daysPerCentury

	sec := gmstCoeffs[3]
	for i := 2; i >= 0; i-- {
		sec = sec*c + gmstCoeffs[i]
	}

	sec = math.Mod(sec, secondsPerDay)
	if sec < 0 {
		sec += secondsPerDay
	}
	return sec / secondsPerDay * 2 * math.Pi
}
