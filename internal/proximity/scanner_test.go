package proximity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/star/orbitrack/internal/propagation"
	"github.com/star/orbitrack/internal/tle"
	"github.com/star/orbitrack/internal/transform"
)

var (
	testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	instant    = time.Date(2024, 2, 6, 13, 27, 0, 0, time.UTC)
	kmPerDeg   = 2 * math.Pi * transform.MeanEarthRadiusKm / 360.0
)

// fakePropagator places each object at a fixed sub-satellite point. Ids
// without a position fail to propagate.
type fakePropagator struct {
	positions map[int]propagation.Geodetic
	hook      func(el tle.OrbitalElements)
}

func (f *fakePropagator) Propagate(el tle.OrbitalElements, t time.Time) (propagation.State, error) {
	if f.hook != nil {
		f.hook(el)
	}
	g, ok := f.positions[el.NORADID]
	if !ok {
		return propagation.State{}, propagation.ErrDegenerate
	}
	obs := transform.NewObserverPosition(g.LatDeg, g.LonDeg, g.AltKm*1000)
	return propagation.State{
		NORADID:  el.NORADID,
		Instant:  t,
		Geodetic: g,
		ECEF:     obs.ECEF,
	}, nil
}

// northOf returns a point distKm due north of the equator at longitude 0.
func northOf(distKm float64) propagation.Geodetic {
	return propagation.Geodetic{LatDeg: distKm / kmPerDeg, LonDeg: 0, AltKm: 500}
}

func objects(ids ...int) []tle.OrbitalElements {
	out := make([]tle.OrbitalElements, len(ids))
	for i, id := range ids {
		out[i] = tle.OrbitalElements{NORADID: id, Name: "OBJ"}
	}
	return out
}

func TestScanRadius(t *testing.T) {
	prop := &fakePropagator{positions: map[int]propagation.Geodetic{
		1: northOf(100),
		2: northOf(800),
	}}
	s := NewScanner(Config{}, prop, nil, testLogger)
	if err := s.SetTarget(GroundTarget{LatDeg: 0, LonDeg: 0, RadiusKm: 500}); err != nil {
		t.Fatal(err)
	}

	res, ok := s.Scan(context.Background(), objects(1, 2), instant)
	if !ok {
		t.Fatal("scan not committed")
	}
	if len(res) != 1 || res[0].NORADID != 1 {
		t.Fatalf("results = %+v, want only object 1", res)
	}
	if math.Abs(res[0].DistanceKm-100) > 1e-6 {
		t.Errorf("distance = %.6f, want 100", res[0].DistanceKm)
	}
	if got := s.Results(); len(got) != 1 {
		t.Errorf("Results() = %+v", got)
	}
}

func TestScanSortedAndStable(t *testing.T) {
	prop := &fakePropagator{positions: map[int]propagation.Geodetic{
		10: northOf(300),
		11: northOf(50),
		12: northOf(300), // tie with 10
		13: northOf(120),
		14: northOf(499.999),
		15: northOf(500), // on the radius: excluded
	}}
	s := NewScanner(Config{}, prop, nil, testLogger)
	s.SetTarget(GroundTarget{RadiusKm: 500})

	res, _ := s.Scan(context.Background(), objects(10, 11, 12, 13, 14, 15, 16), instant)

	var ids []int
	for _, r := range res {
		ids = append(ids, r.NORADID)
	}
	want := []int{11, 13, 10, 12, 14}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
	if !sort.SliceIsSorted(res, func(i, j int) bool { return res[i].DistanceKm < res[j].DistanceKm }) {
		t.Error("results not sorted")
	}
	for _, r := range res {
		if r.DistanceKm >= 500 || r.DistanceKm < 0 {
			t.Errorf("distance %.3f outside [0, radius)", r.DistanceKm)
		}
	}
}

func TestScanCap(t *testing.T) {
	positions := map[int]propagation.Geodetic{}
	var ids []int
	for i := 0; i < 20; i++ {
		positions[i] = northOf(float64(i))
		ids = append(ids, i)
	}
	s := NewScanner(Config{MaxObjects: 5}, &fakePropagator{positions: positions}, nil, testLogger)
	s.SetTarget(GroundTarget{RadiusKm: 1000})

	res, _ := s.Scan(context.Background(), objects(ids...), instant)
	if len(res) != 5 {
		t.Errorf("results = %d, want cap of 5", len(res))
	}
	for _, r := range res {
		if r.NORADID >= 5 {
			t.Errorf("object %d beyond the cap was scanned", r.NORADID)
		}
	}
}

func TestScanParallelMatchesInline(t *testing.T) {
	positions := map[int]propagation.Geodetic{}
	var ids []int
	for i := 0; i < 200; i++ {
		positions[i] = northOf(float64((i * 37) % 600))
		ids = append(ids, i)
	}
	prop := &fakePropagator{positions: positions}
	target := GroundTarget{RadiusKm: 450}

	inline := NewScanner(Config{ParallelThreshold: 1 << 20}, prop, nil, testLogger)
	inline.SetTarget(target)
	want, _ := inline.Scan(context.Background(), objects(ids...), instant)

	parallel := NewScanner(Config{ParallelThreshold: 10}, prop, propagation.NewWorkerPool(4, testLogger), testLogger)
	parallel.SetTarget(target)
	got, _ := parallel.Scan(context.Background(), objects(ids...), instant)

	if len(got) != len(want) {
		t.Fatalf("parallel %d results, inline %d", len(got), len(want))
	}
	for i := range want {
		if got[i].NORADID != want[i].NORADID {
			t.Fatalf("order differs at %d: %d vs %d", i, got[i].NORADID, want[i].NORADID)
		}
	}
}

func TestScanSlantMode(t *testing.T) {
	prop := &fakePropagator{positions: map[int]propagation.Geodetic{
		1: {LatDeg: 0, LonDeg: 0, AltKm: 400},
	}}
	s := NewScanner(Config{Mode: ModeSlant}, prop, nil, testLogger)
	s.SetTarget(GroundTarget{RadiusKm: 500})

	res, _ := s.Scan(context.Background(), objects(1), instant)
	if len(res) != 1 || math.Abs(res[0].DistanceKm-400) > 1e-3 {
		t.Fatalf("slant results = %+v, want one at 400 km", res)
	}

	// Ground distance to the sub-satellite point is zero.
	g := NewScanner(Config{Mode: ModeGround}, prop, nil, testLogger)
	g.SetTarget(GroundTarget{RadiusKm: 500})
	res, _ = g.Scan(context.Background(), objects(1), instant)
	if len(res) != 1 || res[0].DistanceKm > 1e-9 {
		t.Errorf("ground results = %+v, want distance 0", res)
	}
}

func TestScanStaleTargetDropped(t *testing.T) {
	prop := &fakePropagator{positions: map[int]propagation.Geodetic{1: northOf(10)}}
	s := NewScanner(Config{}, prop, nil, testLogger)
	s.SetTarget(GroundTarget{RadiusKm: 500})

	// The target moves while the scan is in flight.
	prop.hook = func(tle.OrbitalElements) {
		prop.hook = nil
		s.SetTarget(GroundTarget{LatDeg: 45, LonDeg: 90, RadiusKm: 500})
	}

	res, ok := s.Scan(context.Background(), objects(1), instant)
	if ok || res != nil {
		t.Errorf("stale scan committed: ok=%v res=%+v", ok, res)
	}
	if len(s.Results()) != 0 {
		t.Error("stale results overwrote the new target's state")
	}
}

func TestScanClearedTargetDropped(t *testing.T) {
	prop := &fakePropagator{positions: map[int]propagation.Geodetic{1: northOf(10)}}
	s := NewScanner(Config{}, prop, nil, testLogger)
	s.SetTarget(GroundTarget{RadiusKm: 500})
	prop.hook = func(tle.OrbitalElements) { s.ClearTarget() }

	if _, ok := s.Scan(context.Background(), objects(1), instant); ok {
		t.Error("scan committed after target was cleared")
	}
	if _, ok := s.Target(); ok {
		t.Error("target should be cleared")
	}
}

func TestScanWithoutTarget(t *testing.T) {
	s := NewScanner(Config{}, &fakePropagator{}, nil, testLogger)
	if _, ok := s.Scan(context.Background(), objects(1), instant); ok {
		t.Error("scan without target reported committed")
	}
}

func TestSetTargetValidation(t *testing.T) {
	s := NewScanner(Config{}, &fakePropagator{}, nil, testLogger)
	tests := []GroundTarget{
		{RadiusKm: 0},
		{RadiusKm: -1},
		{LatDeg: 91, RadiusKm: 10},
		{LonDeg: -181, RadiusKm: 10},
		{RadiusKm: math.NaN()},
	}
	for _, g := range tests {
		if err := s.SetTarget(g); !errors.Is(err, ErrInvalidTarget) {
			t.Errorf("SetTarget(%+v) = %v, want ErrInvalidTarget", g, err)
		}
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("slant"); err != nil || m != ModeSlant {
		t.Errorf("ParseMode(slant) = %v, %v", m, err)
	}
	if _, err := ParseMode("manhattan"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
