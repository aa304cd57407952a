package kmeans

import (
	"context"
	"math"
	"sort"
	"testing"

	"github.com/kmeansd/kmeansd/pkg/frame"
)

func numericFrame(t *testing.T, name string, rows [][]float64) *frame.Frame {
	t.Helper()
	ncols := len(rows[0])
	cols := make([]*frame.Column, ncols)
	for c := 0; c < ncols; c++ {
		values := make([]float64, len(rows))
		for r, row := range rows {
			values[r] = row[c]
		}
		cols[c] = &frame.Column{Name: name, Cardinality: frame.CategoricalCardinality, Values: values}
	}
	return mustFrame(t, cols...)
}

// S1 — Trivial K=1 numeric.
func TestDriverS1TrivialK1(t *testing.T) {
	f := numericFrame(t, "x", [][]float64{{1}, {2}, {3}, {4}})
	params := Params{K: 1, MaxIters: 10, Init: InitNone, Standardize: false, Seed: 0}
	d := NewDriver(params, nil, nil, nil)

	model, err := d.Train(context.Background(), f)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	out := model.Output()

	if len(out.Centroids) != 1 || len(out.Centroids[0]) != 1 {
		t.Fatalf("Centroids shape = %v, want [1][1]", out.Centroids)
	}
	if math.Abs(out.Centroids[0][0]-2.5) > 1e-6 {
		t.Errorf("centroid = %v, want 2.5", out.Centroids[0][0])
	}
	if out.Rows[0] != 4 {
		t.Errorf("rows = %v, want [4]", out.Rows)
	}
	if math.Abs(out.AvgWithinSS-1.25) > 1e-6 {
		t.Errorf("avgWithinSS = %v, want 1.25", out.AvgWithinSS)
	}
	if math.Abs(out.AvgBetweenSS) > 1e-9 {
		t.Errorf("avgBetweenSS = %v, want 0", out.AvgBetweenSS)
	}
}

// S2 — Two well-separated clusters.
func TestDriverS2WellSeparated(t *testing.T) {
	f := numericFrame(t, "", [][]float64{{0, 0}, {0, 1}, {10, 10}, {10, 11}})
	params := Params{K: 2, MaxIters: 50, Init: InitFurthest, Standardize: false, Seed: 42}
	d := NewDriver(params, nil, nil, nil)

	model, err := d.Train(context.Background(), f)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	out := model.Output()

	centroids := append([][]float64(nil), out.Centroids...)
	sort.Slice(centroids, func(i, j int) bool { return centroids[i][0] < centroids[j][0] })

	want := [][]float64{{0, 0.5}, {10, 10.5}}
	for i := range want {
		for j := range want[i] {
			if math.Abs(centroids[i][j]-want[i][j]) > 1e-6 {
				t.Errorf("centroid[%d] = %v, want %v", i, centroids[i], want[i])
			}
		}
	}

	rows := append([]int64(nil), out.Rows...)
	sort.Slice(rows, func(i, j int) bool { return rows[i] < rows[j] })
	if rows[0] != 2 || rows[1] != 2 {
		t.Errorf("rows = %v, want permutation of [2 2]", out.Rows)
	}
	if math.Abs(out.AvgWithinSS-0.25) > 1e-6 {
		t.Errorf("avgWithinSS = %v, want 0.25", out.AvgWithinSS)
	}
}

// Representatives — each well-separated cluster's exemplar row must
// actually belong to that cluster's data, not the other one.
func TestDriverRepresentatives(t *testing.T) {
	f := numericFrame(t, "", [][]float64{{0, 0}, {0, 1}, {10, 10}, {10, 11}})
	params := Params{K: 2, MaxIters: 50, Init: InitFurthest, Standardize: false, Seed: 42}
	d := NewDriver(params, nil, nil, nil)

	model, err := d.Train(context.Background(), f)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	out := model.Output()

	if len(out.Representatives) != 2 {
		t.Fatalf("len(Representatives) = %d, want 2", len(out.Representatives))
	}

	low := map[int64]bool{0: true, 1: true}
	high := map[int64]bool{2: true, 3: true}
	for clu, row := range out.Representatives {
		centroidIsLow := out.Centroids[clu][0] < 5
		if centroidIsLow && !low[row] {
			t.Errorf("cluster %d centroid %v picked representative row %d, want a row from {0,1}", clu, out.Centroids[clu], row)
		}
		if !centroidIsLow && !high[row] {
			t.Errorf("cluster %d centroid %v picked representative row %d, want a row from {2,3}", clu, out.Centroids[clu], row)
		}
	}
}

// S3 — Categorical-only.
func TestDriverS3CategoricalOnly(t *testing.T) {
	col := &frame.Column{Name: "c", Cardinality: 3, Values: []float64{0, 0, 1, 1, 2, 2, 2}}
	f := mustFrame(t, col)
	params := Params{K: 3, MaxIters: 50, Init: InitFurthest, Standardize: false, Seed: 1}
	d := NewDriver(params, nil, nil, nil)

	model, err := d.Train(context.Background(), f)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	out := model.Output()

	levels := make(map[int]bool)
	for _, c := range out.Centroids {
		if len(c) != 1 {
			t.Fatalf("centroid length = %d, want 1", len(c))
		}
		levels[int(c[0])] = true
	}
	if len(levels) != 3 || !levels[0] || !levels[1] || !levels[2] {
		t.Errorf("centroid levels = %v, want {0,1,2}", levels)
	}

	rows := append([]int64(nil), out.Rows...)
	sort.Slice(rows, func(i, j int) bool { return rows[i] < rows[j] })
	if rows[0] != 2 || rows[1] != 2 || rows[2] != 3 {
		t.Errorf("rows = %v, want permutation of [2 2 3]", out.Rows)
	}
	if math.Abs(out.AvgWithinSS) > 1e-9 {
		t.Errorf("avgWithinSS = %v, want 0", out.AvgWithinSS)
	}
}

// S5 — Empty-cluster rescue: training over degenerate identical rows
// must not panic or deadlock, and must terminate within maxIters with
// exactly K centroids of the right shape.
func TestDriverS5EmptyClusterRescue(t *testing.T) {
	f := numericFrame(t, "x", [][]float64{{5}, {5}, {5}, {5}, {5}})
	params := Params{K: 3, MaxIters: 20, Init: InitNone, Standardize: false, Seed: 7}
	d := NewDriver(params, nil, nil, nil)

	model, err := d.Train(context.Background(), f)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	out := model.Output()

	if len(out.Centroids) != 3 {
		t.Fatalf("len(Centroids) = %d, want 3", len(out.Centroids))
	}
	var total int64
	for _, r := range out.Rows {
		total += r
	}
	if total < 5 {
		t.Errorf("total rows assigned = %d, want >= 5", total)
	}
}

// S6 — K-Means|| oversampling candidate-set bounds.
func TestDriverS6OversamplingBounds(t *testing.T) {
	rng := newTestRNG(7)
	rows := make([][]float64, 1000)
	for i := range rows {
		rows[i] = []float64{rng.Float64() * 100, rng.Float64() * 100}
	}
	f := numericFrame(t, "", rows)
	params := Params{K: 10, MaxIters: 1, Init: InitPlusPlus, Standardize: false, Seed: 7}
	d := NewDriver(params, nil, nil, nil)

	model, err := d.Train(context.Background(), f)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if len(model.centroids) != 10 {
		t.Errorf("final centroid count = %d, want 10", len(model.centroids))
	}
}

func TestDriverValidationErrors(t *testing.T) {
	f := numericFrame(t, "x", [][]float64{{1}, {2}})

	cases := []Params{
		{K: 0, MaxIters: 1, Init: InitNone},
		{K: 1, MaxIters: 0, Init: InitNone},
		{K: 1, MaxIters: 1, Init: "bogus"},
		{K: 10, MaxIters: 1, Init: InitNone}, // K > N
	}
	for _, p := range cases {
		d := NewDriver(p, nil, nil, nil)
		_, err := d.Train(context.Background(), f)
		if !IsValidation(err) {
			t.Errorf("Train(%+v) error = %v, want ValidationError", p, err)
		}
	}
}

// newTestRNG is a tiny deterministic helper for generating synthetic
// test fixtures; it is not part of the training core's RNG contract.
type testRNG struct{ state uint64 }

func newTestRNG(seed uint64) *testRNG { return &testRNG{state: seed*2654435761 + 1} }

func (r *testRNG) Float64() float64 {
	r.state = r.state*6364136223846793005 + 1442695040888963407
	return float64(r.state>>11) / float64(1<<53)
}
