package propagation

import (
	"fmt"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/star/orbitrack/internal/tle"
	"github.com/star/orbitrack/internal/transform"
)

// satelliteRecord wraps a go-satellite model for one object.
//
// go-satellite's Propagate takes the Satellite by value, so SGP4 error codes
// raised mid-propagation are not visible here. Failures surface as NaN/Inf or
// out-of-envelope output and are caught by Service.
type satelliteRecord struct {
	sat satellite.Satellite
}

// newSatelliteRecord pre-validates the lines before handing them to
// go-satellite, which calls log.Fatal on malformed input.
func newSatelliteRecord(el tle.OrbitalElements) (Record, error) {
	if err := tle.ValidateLines(el.Line1, el.Line2); err != nil {
		return nil, err
	}

	sat := satellite.TLEToSat(el.Line1, el.Line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init: code=%d %s", sat.Error, sat.ErrorStr)
	}
	return &satelliteRecord{sat: sat}, nil
}

// PropagateTEME evaluates the model at whole-second resolution.
func (r *satelliteRecord) PropagateTEME(t time.Time) (transform.PositionTEME, error) {
	t = t.UTC()
	pos, vel := satellite.Propagate(r.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	return transform.PositionTEME{
		X:  pos.X,
		Y:  pos.Y,
		Z:  pos.Z,
		VX: vel.X,
		VY: vel.Y,
		VZ: vel.Z,
	}, nil
}
