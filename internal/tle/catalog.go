package tle

import (
	"bytes"
	"log/slog"
	"time"

	"github.com/star/orbitrack/internal/metrics"
)

// Built-in record used when no element blob is available.
const (
	fallbackName  = "ISS (ZARYA)"
	fallbackLine1 = "1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9996"
	fallbackLine2 = "2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057"
)

// SourceFallback labels a catalog built from the built-in record.
const SourceFallback = "fallback"

// Catalog is a read-only set of tracked objects keyed by NORAD id.
// Safe for concurrent reads; replace the whole catalog to change it.
type Catalog struct {
	Source     string
	LoadedAt   time.Time
	EpochRange EpochRange

	order []int
	byID  map[int]OrbitalElements
}

// NewCatalog builds a catalog from parsed entries. Insertion order is kept;
// a repeated NORAD id keeps its first occurrence.
func NewCatalog(source string, entries []OrbitalElements, logger *slog.Logger) *Catalog {
	c := &Catalog{
		Source:   source,
		LoadedAt: time.Now().UTC(),
		order:    make([]int, 0, len(entries)),
		byID:     make(map[int]OrbitalElements, len(entries)),
	}
	for _, e := range entries {
		if _, dup := c.byID[e.NORADID]; dup {
			metrics.IncCatalogDropped("duplicate id")
			logger.Warn("dropping duplicate TLE entry", "norad_id", e.NORADID, "name", e.Name)
			continue
		}
		c.byID[e.NORADID] = e
		c.order = append(c.order, e.NORADID)
		c.EpochRange.Include(e.Epoch)
	}
	return c
}

// Load parses blob into a catalog. A missing blob, an unreadable blob or one
// that yields no usable records produces the built-in fallback catalog, so
// Load never fails.
func Load(source string, blob []byte, logger *slog.Logger) *Catalog {
	if len(bytes.TrimSpace(blob)) == 0 {
		logger.Warn("no TLE data available, using built-in fallback record", "source", source)
		return Fallback(logger)
	}

	entries, err := Parse(bytes.NewReader(blob), logger)
	if err != nil {
		logger.Warn("failed to read TLE data, using built-in fallback record", "source", source, "error", err)
		return Fallback(logger)
	}
	if len(entries) == 0 {
		logger.Warn("TLE data contained no usable records, using built-in fallback record", "source", source)
		return Fallback(logger)
	}

	c := NewCatalog(source, entries, logger)
	metrics.SetCatalogSize(c.Len())
	logger.Info("catalog loaded",
		"source", source,
		"count", c.Len(),
		"epoch_min", c.EpochRange.Min.Format(time.RFC3339),
		"epoch_max", c.EpochRange.Max.Format(time.RFC3339),
		"epoch_span_days", c.EpochRange.Span().Hours()/24,
	)
	return c
}

// Fallback returns the single-record built-in catalog.
func Fallback(logger *slog.Logger) *Catalog {
	el, err := parseBlock(fallbackName, fallbackLine1, fallbackLine2)
	if err != nil {
		// The built-in lines are constants; this only trips if they are edited badly.
		panic("tle: built-in fallback record is invalid: " + err.Error())
	}
	c := NewCatalog(SourceFallback, []OrbitalElements{el}, logger)
	metrics.SetCatalogSize(c.Len())
	return c
}

// Get returns the elements for id.
func (c *Catalog) Get(id int) (OrbitalElements, bool) {
	if c == nil {
		return OrbitalElements{}, false
	}
	el, ok := c.byID[id]
	return el, ok
}

// Len returns the number of objects.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// IDs returns the NORAD ids in insertion order.
func (c *Catalog) IDs() []int {
	if c == nil {
		return nil
	}
	out := make([]int, len(c.order))
	copy(out, c.order)
	return out
}

// Entries returns all elements in insertion order.
func (c *Catalog) Entries() []OrbitalElements {
	if c == nil {
		return nil
	}
	out := make([]OrbitalElements, len(c.order))
	for i, id := range c.order {
		out[i] = c.byID[id]
	}
	return out
}

// Subset returns the elements for ids that are present, in catalog order.
// A nil ids slice selects the whole catalog.
func (c *Catalog) Subset(ids []int) []OrbitalElements {
	if c == nil {
		return nil
	}
	if ids == nil {
		return c.Entries()
	}
	want := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]OrbitalElements, 0, len(want))
	for _, id := range c.order {
		if _, ok := want[id]; ok {
			out = append(out, c.byID[id])
		}
	}
	return out
}

// Removed returns the ids of old whose elements are absent from, or differ
// in, next. Records built for those ids must be discarded.
func Removed(old, next *Catalog) []int {
	if old == nil {
		return nil
	}
	var out []int
	for _, id := range old.order {
		prev := old.byID[id]
		cur, ok := next.Get(id)
		if !ok || cur.Line1 != prev.Line1 || cur.Line2 != prev.Line2 {
			out = append(out, id)
		}
	}
	return out
}
