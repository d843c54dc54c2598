package transform

import (
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// Reference instants, whole seconds so go-satellite's integer date API sees
// the same time.
var referenceInstants = []struct {
	name string
	t    time.Time
	jd   float64
}{
	{"J2000.0", time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC), 2451545.0},
	{"Unix epoch", time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), 2440587.5},
	{"Vallado 3-15", time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC), 2453101.827407407},
	{"catalog epoch", time.Date(2024, 2, 5, 13, 27, 0, 0, time.UTC), 2460346.060416667},
}

func gstime(t time.Time) float64 {
	return satellite.GSTimeFromDate(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
}

func TestJulianDateAndGMST(t *testing.T) {
	for _, ref := range referenceInstants {
		t.Run(ref.name, func(t *testing.T) {
			if got := JulianDate(ref.t); math.Abs(got-ref.jd) > 1e-6 {
				t.Errorf("JulianDate = %.9f, want %.9f", got, ref.jd)
			}
			// 1e-7 rad is about 0.02 arcsec.
			if got, want := GMST(ref.t), gstime(ref.t); math.Abs(got-want) > 1e-7 {
				t.Errorf("GMST = %.12f rad, go-satellite = %.12f", got, want)
			}
		})
	}
}

func TestGMSTRange(t *testing.T) {
	start := time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)
	for h := range 48 {
		g := GMST(start.Add(time.Duration(h) * 30 * time.Minute))
		if g < 0 || g >= 2*math.Pi {
			t.Fatalf("GMST out of [0, 2π): %v", g)
		}
	}
}

// TEME→ECEF must agree with go-satellite's ECIToECEF under the same GMST;
// both rotate by GMST only.
func TestTEMEToECEFMatchesGoSatellite(t *testing.T) {
	states := []struct {
		name string
		teme PositionTEME
	}{
		{"Vallado 3-15", PositionTEME{X: 5094.18016, Y: 6127.64465, Z: 6380.34453, VX: -4.746131487, VY: 0.786598499, VZ: 5.531931288}},
		{"LEO equatorial", PositionTEME{X: 6778, VY: 7.5}},
		{"LEO polar", PositionTEME{Z: 6978, VX: 7.4}},
	}

	for _, ref := range referenceInstants {
		gmst := gstime(ref.t)
		for _, st := range states {
			t.Run(ref.name+"/"+st.name, func(t *testing.T) {
				got := TEMEToECEFWithGMST(st.teme, gmst)
				want := satellite.ECIToECEF(satellite.Vector3{X: st.teme.X, Y: st.teme.Y, Z: st.teme.Z}, gmst)

				const tolM = 1.0
				if math.Abs(got.X-want.X*1000) > tolM || math.Abs(got.Y-want.Y*1000) > tolM || math.Abs(got.Z-want.Z*1000) > tolM {
					t.Errorf("ECEF = [%.3f %.3f %.3f] m, go-satellite = [%.3f %.3f %.3f] m",
						got.X, got.Y, got.Z, want.X*1000, want.Y*1000, want.Z*1000)
				}
				if !got.Plausible() {
					t.Errorf("ECEF %+v not plausible", got)
				}
			})
		}
	}
}

// At GMST 0 the frames align, so only Earth rotation changes the velocity.
func TestTEMEToECEFEarthRotation(t *testing.T) {
	ecef := TEMEToECEFWithGMST(PositionTEME{X: 6778, VY: 7.5}, 0)

	if math.Abs(ecef.X-6778e3) > 0.1 {
		t.Errorf("X = %.1f m, want 6778000", ecef.X)
	}
	wantVY := (7.5 - OmegaEarth*6778) * 1000
	if math.Abs(ecef.VY-wantVY) > 0.1 {
		t.Errorf("VY = %.1f m/s, want %.1f", ecef.VY, wantVY)
	}
}

func TestPlausible(t *testing.T) {
	tests := []struct {
		name string
		pos  PositionECEF
		want bool
	}{
		{"LEO", PositionECEF{X: 6778e3}, true},
		{"GEO", PositionECEF{X: 42164e3}, true},
		{"inside Earth", PositionECEF{X: 5000e3}, false},
		{"beyond GEO", PositionECEF{X: 60000e3}, false},
		{"NaN", PositionECEF{X: math.NaN()}, false},
		{"Inf", PositionECEF{Y: math.Inf(-1)}, false},
		{"origin", PositionECEF{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pos.Plausible(); got != tt.want {
				t.Errorf("Plausible(%+v) = %v, want %v", tt.pos, got, tt.want)
			}
		})
	}
}
