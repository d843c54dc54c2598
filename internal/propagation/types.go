package propagation

import (
	"time"

	"github.com/star/orbitrack/internal/tle"
	"github.com/star/orbitrack/internal/transform"
)

// Geodetic is a WGS-84 position with altitude in km.
type Geodetic struct {
	LatDeg float64 `json:"lat_deg"`
	LonDeg float64 `json:"lon_deg"`
	AltKm  float64 `json:"alt_km"`
}

// State is one object's position and velocity at one instant.
type State struct {
	NORADID     int                    `json:"norad_id"`
	Instant     time.Time              `json:"instant"`
	Geodetic    Geodetic               `json:"geodetic"`
	VelocityKmS float64                `json:"velocity_km_s"`
	TEME        transform.PositionTEME `json:"-"`
	ECEF        transform.PositionECEF `json:"-"`
}

// Propagator evaluates orbital elements at an instant.
type Propagator interface {
	Propagate(el tle.OrbitalElements, t time.Time) (State, error)
}

// PropConfig holds propagation configuration.
type PropConfig struct {
	Backend string // record backend name (default: go-satellite)
	Workers int    // worker pool size (default: runtime.NumCPU())
}
