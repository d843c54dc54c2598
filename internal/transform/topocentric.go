package transform

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378137.0             // semi-major axis (meters)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

const (
	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi
)

// ObserverPosition is a ground point. Its ECEF position and the SEZ rotation
// terms are computed once, since scans and pass searches evaluate thousands
// of objects against the same point.
type ObserverPosition struct {
	LatDeg, LonDeg, AltM float64
	ECEF                 PositionECEF // meters, zero velocity

	sinLat, cosLat, sinLon, cosLon float64
}

// LookAngles holds azimuth, elevation, and range from observer to satellite.
type LookAngles struct {
	AzimuthDeg   float64 // 0 = North, clockwise
	ElevationDeg float64 // 0 = horizon, 90 = zenith
	RangeKm      float64
}

// AboveHorizon reports whether the object clears minElevationDeg.
func (la LookAngles) AboveHorizon(minElevationDeg float64) bool {
	return la.ElevationDeg > minElevationDeg
}

// NewObserverPosition creates an ObserverPosition from geodetic coordinates.
// Latitude and longitude are in degrees, altitude in meters above the WGS-84 ellipsoid.
func NewObserverPosition(latDeg, lonDeg, altM float64) ObserverPosition {
	o := ObserverPosition{LatDeg: latDeg, LonDeg: lonDeg, AltM: altM}
	o.sinLat, o.cosLat = math.Sincos(latDeg * degToRad)
	o.sinLon, o.cosLon = math.Sincos(lonDeg * degToRad)

	// Radius of curvature in the prime vertical.
	n := wgs84A / math.Sqrt(1-wgs84E2*o.sinLat*o.sinLat)

	o.ECEF = PositionECEF{
		X: (n + altM) * o.cosLat * o.cosLon,
		Y: (n + altM) * o.cosLat * o.sinLon,
		Z: (n*(1-wgs84E2) + altM) * o.sinLat,
	}
	return o
}

// LookAngles computes azimuth, elevation and range from the observer to an
// ECEF position in meters, through the SEZ (South-East-Zenith) rotation of
// Vallado section 4.4.
func (o ObserverPosition) LookAngles(sat PositionECEF) LookAngles {
	r := []float64{sat.X - o.ECEF.X, sat.Y - o.ECEF.Y, sat.Z - o.ECEF.Z}

	south := o.sinLat*o.cosLon*r[0] + o.sinLat*o.sinLon*r[1] - o.cosLat*r[2]
	east := -o.sinLon*r[0] + o.cosLon*r[1]
	zenith := o.cosLat*o.cosLon*r[0] + o.cosLat*o.sinLon*r[1] + o.sinLat*r[2]

	rangeM := floats.Norm(r, 2)
	if rangeM == 0 {
		return LookAngles{ElevationDeg: 90}
	}

	// North is -South, so azimuth is atan2(east, -south).
	az := math.Atan2(east, -south)
	if az < 0 {
		az += 2 * math.Pi
	}

	return LookAngles{
		AzimuthDeg:   az * radToDeg,
		ElevationDeg: math.Asin(zenith/rangeM) * radToDeg,
		RangeKm:      rangeM / 1000.0,
	}
}

// GeodeticPoint holds a geodetic position (latitude/longitude in degrees, altitude in meters).
type GeodeticPoint struct {
	LatDeg, LonDeg, AltM float64
}

// Geodetic converts the ECEF position to WGS-84 geodetic coordinates with
// Bowring's iteration, which converges in two or three rounds at orbital
// altitudes.
func (p PositionECEF) Geodetic() GeodeticPoint {
	lon := math.Atan2(p.Y, p.X)
	rho := math.Hypot(p.X, p.Y)

	lat := math.Atan2(p.Z, rho*(1-wgs84E2))
	var n float64
	for range 5 {
		sinLat := math.Sin(lat)
		n = wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(p.Z+wgs84E2*n*sinLat, rho)
	}

	sinLat, cosLat := math.Sincos(lat)
	n = wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = rho/cosLat - n
	} else {
		// On the polar axis.
		alt = math.Abs(p.Z)/math.Abs(sinLat) - n*(1-wgs84E2)
	}

	return GeodeticPoint{
		LatDeg: lat * radToDeg,
		LonDeg: lon * radToDeg,
		AltM:   alt,
	}
}
