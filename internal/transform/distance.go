package transform

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// MeanEarthRadiusKm is the IUGG mean Earth radius used for great-circle distances.
const MeanEarthRadiusKm = 6371.0088

// GreatCircleKm returns the haversine distance in km between two points on the
// mean-radius sphere. Inputs are in degrees.
func GreatCircleKm(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * degToRad
	phi2 := lat2 * degToRad
	dPhi := (lat2 - lat1) * degToRad
	dLambda := (lon2 - lon1) * degToRad

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// Guard against rounding pushing a just past 1 for antipodal points.
	a = math.Min(1, math.Max(0, a))

	return 2 * MeanEarthRadiusKm * math.Asin(math.Sqrt(a))
}

// SlantRangeKm returns the straight-line distance in km between an observer
// and an ECEF position given in meters.
func SlantRangeKm(obs ObserverPosition, sat PositionECEF) float64 {
	return floats.Distance(
		[]float64{obs.ECEF.X, obs.ECEF.Y, obs.ECEF.Z},
		[]float64{sat.X, sat.Y, sat.Z},
		2,
	) / 1000.0
}

// ValidLatLon reports whether latitude and longitude are finite and in range.
func ValidLatLon(latDeg, lonDeg float64) bool {
	if math.IsNaN(latDeg) || math.IsNaN(lonDeg) || math.IsInf(latDeg, 0) || math.IsInf(lonDeg, 0) {
		return false
	}
	return latDeg >= -90 && latDeg <= 90 && lonDeg >= -180 && lonDeg <= 180
}
