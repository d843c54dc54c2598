package propagation

import (
	"time"

	"github.com/akhenakh/sgp4"
	"github.com/star/orbitrack/internal/tle"
	"github.com/star/orbitrack/internal/transform"
)

// akhenakhRecord wraps github.com/akhenakh/sgp4. Unlike go-satellite it
// verifies line checksums and reports decay and model-limit failures as
// typed errors.
type akhenakhRecord struct {
	tle *sgp4.TLE
}

func newAkhenakhRecord(el tle.OrbitalElements) (Record, error) {
	if err := tle.ValidateLines(el.Line1, el.Line2); err != nil {
		return nil, err
	}
	parsed, err := sgp4.ParseTLE(el.Line1 + "\n" + el.Line2)
	if err != nil {
		return nil, err
	}
	return &akhenakhRecord{tle: parsed}, nil
}

func (r *akhenakhRecord) PropagateTEME(t time.Time) (transform.PositionTEME, error) {
	eci, err := r.tle.FindPositionAtTime(t.UTC())
	if err != nil {
		return transform.PositionTEME{}, err
	}
	return transform.PositionTEME{
		X:  eci.Position.X,
		Y:  eci.Position.Y,
		Z:  eci.Position.Z,
		VX: eci.Velocity.X,
		VY: eci.Velocity.Y,
		VZ: eci.Velocity.Z,
	}, nil
}
