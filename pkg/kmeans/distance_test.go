package kmeans

import (
	"math"
	"testing"
)

func TestDistanceNumericOnly(t *testing.T) {
	centroid := []float64{0, 0}
	point := []float64{3, 4}
	got := Distance(centroid, point, 0)
	want := 25.0
	if got != want {
		t.Errorf("Distance() = %v, want %v", got, want)
	}
}

func TestDistanceSymmetricAndZeroForSelf(t *testing.T) {
	x := []float64{1, 2, 3}
	y := []float64{4, 5, 6}
	if Distance(x, y, 0) != Distance(y, x, 0) {
		t.Errorf("distance is not symmetric")
	}
	if d := Distance(x, x, 0); d != 0 {
		t.Errorf("Distance(x, x) = %v, want 0", d)
	}
	if d := Distance(x, y, 0); d < 0 {
		t.Errorf("Distance() = %v, want non-negative", d)
	}
}

func TestDistanceCategoricalHamming(t *testing.T) {
	centroid := []float64{1, 0, 5.0}
	point := []float64{1, 2, 5.0}
	// ncats=2: col0 matches (0), col1 mismatches (1); numeric col2 matches (0).
	got := Distance(centroid, point, 2)
	want := 1.0
	if got != want {
		t.Errorf("Distance() = %v, want %v", got, want)
	}
}

// S4 — NA handling: row [1.0, NaN] vs centroid [0.0, 0.0], ncats=0, F=2.
func TestDistanceNAScaling(t *testing.T) {
	centroid := []float64{0.0, 0.0}
	point := []float64{1.0, math.NaN()}
	got := Distance(centroid, point, 0)
	want := 2.0
	if got != want {
		t.Errorf("Distance() = %v, want %v", got, want)
	}
}

func TestDistanceCategoricalNAOmitsDimension(t *testing.T) {
	centroid := []float64{1, 5.0}
	point := []float64{math.NaN(), 5.0}
	// ncats=1: col0 NaN -> pts drops to 1 of 2; numeric col1 matches (0).
	// raw sqr = 0, pts=1<F=2 -> scaled 0 * 2/1 = 0.
	got := Distance(centroid, point, 1)
	if got != 0 {
		t.Errorf("Distance() = %v, want 0", got)
	}
}

func TestClosestTiesBreakByLowestIndex(t *testing.T) {
	centroids := [][]float64{{0, 0}, {0, 0}, {10, 10}}
	point := []float64{0, 0}
	idx, dist := Closest(centroids, point, 0, len(centroids))
	if idx != 0 {
		t.Errorf("Closest() idx = %d, want 0", idx)
	}
	if dist != 0 {
		t.Errorf("Closest() dist = %v, want 0", dist)
	}
}

func TestClosestRespectsCount(t *testing.T) {
	centroids := [][]float64{{100, 100}, {0, 0}}
	point := []float64{0, 0}
	idx, _ := Closest(centroids, point, 0, 1)
	if idx != 0 {
		t.Errorf("Closest() with count=1 should only consider index 0, got idx=%d", idx)
	}
}
