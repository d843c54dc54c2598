package freshness

import (
	"testing"
	"time"

	"github.com/star/orbitrack/internal/tle"
)

var epoch = time.Date(2024, 2, 5, 13, 27, 0, 0, time.UTC)

func days(d float64) time.Duration {
	return time.Duration(d * float64(24*time.Hour))
}

func TestLabelBoundaries(t *testing.T) {
	tests := []struct {
		age  float64
		want Label
	}{
		{-5, Fresh},
		{0, Fresh},
		{2.9, Fresh},
		{2.999, Fresh},
		{3.0, OK},
		{13.999, OK},
		{14.0, Old},
		{29.999, Old},
		{30.0, VeryOld},
		{400, VeryOld},
	}
	for _, tt := range tests {
		if got := LabelFor(tt.age); got != tt.want {
			t.Errorf("LabelFor(%v) = %s, want %s", tt.age, got, tt.want)
		}
	}
}

func TestLabelMonotonic(t *testing.T) {
	rank := map[Label]int{Fresh: 0, OK: 1, Old: 2, VeryOld: 3}
	prev := rank[LabelFor(-10)]
	for age := -10.0; age < 60; age += 0.01 {
		r := rank[LabelFor(age)]
		if r < prev {
			t.Fatalf("label went backwards at age %.2f", age)
		}
		prev = r
	}
}

func TestClassify(t *testing.T) {
	c := NewClassifier(0)
	el := tle.OrbitalElements{NORADID: 25544, Epoch: epoch}

	tests := []struct {
		name      string
		offset    time.Duration
		wantLabel Label
		wantValid bool
	}{
		{"one day after epoch", days(1), Fresh, true},
		{"before epoch", -days(2), Fresh, true},
		{"exactly at horizon", days(30), VeryOld, true},
		{"thirty-one days", days(31), VeryOld, false},
		{"ten days", days(10), OK, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := c.Classify(el, epoch.Add(tt.offset))
			if st.Label != tt.wantLabel || st.Valid != tt.wantValid {
				t.Errorf("Classify = %+v, want label %s valid %v", st, tt.wantLabel, tt.wantValid)
			}
		})
	}
}

func TestClassifyNegativeAge(t *testing.T) {
	st := NewClassifier(30).Classify(tle.OrbitalElements{Epoch: epoch}, epoch.Add(-36*time.Hour))
	if st.AgeDays != -1.5 {
		t.Errorf("age = %v, want -1.5", st.AgeDays)
	}
}

func TestCustomHorizon(t *testing.T) {
	c := NewClassifier(7)
	if c.Horizon() != 7*24*time.Hour {
		t.Errorf("Horizon() = %v", c.Horizon())
	}
	st := c.Classify(tle.OrbitalElements{Epoch: epoch}, epoch.Add(days(8)))
	if st.Valid {
		t.Error("8 days should be invalid with a 7 day horizon")
	}
	if st.Label != OK {
		t.Errorf("label = %s, want OK regardless of horizon", st.Label)
	}
}
