package propagation

import (
	"fmt"
	"time"

	"github.com/star/orbitrack/internal/tle"
	"github.com/star/orbitrack/internal/transform"
)

// Record backends.
const (
	BackendGoSatellite = "go-satellite"
	BackendAkhenakh    = "akhenakh"
)

// Record is a numerical model instance built once from an element set.
// Records are immutable after construction and safe for concurrent use.
type Record interface {
	// PropagateTEME returns the TEME state (km, km/s) at t.
	PropagateTEME(t time.Time) (transform.PositionTEME, error)
}

// Builder constructs a Record from an element set.
type Builder func(el tle.OrbitalElements) (Record, error)

// NewBuilder returns the record builder for the named backend.
func NewBuilder(backend string) (Builder, error) {
	switch backend {
	case "", BackendGoSatellite:
		return newSatelliteRecord, nil
	case BackendAkhenakh:
		return newAkhenakhRecord, nil
	default:
		return nil, fmt.Errorf("unknown propagation backend %q", backend)
	}
}
