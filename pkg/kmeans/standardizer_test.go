package kmeans

import (
	"math"
	"testing"

	"github.com/kmeansd/kmeansd/pkg/frame"
)

func mustFrame(t *testing.T, cols ...*frame.Column) *frame.Frame {
	t.Helper()
	f, err := frame.New(cols)
	if err != nil {
		t.Fatalf("frame.New() error = %v", err)
	}
	return f
}

func TestStandardizerRoundTrip(t *testing.T) {
	col := &frame.Column{Name: "x", Cardinality: frame.CategoricalCardinality, Values: []float64{1, 2, 3, 4, 5}}
	f := mustFrame(t, col)

	std := NewStandardizer(f, 0, true)
	chunks := f.Chunks(0)
	values := make([]float64, 1)
	std.Data(chunks[0], 2, values) // row value 3

	destd := std.Destandardize(values)
	if math.Abs(destd[0]-3.0) > 1e-9 {
		t.Errorf("round trip = %v, want ~3.0", destd[0])
	}
}

func TestStandardizerNumericNAImputesMean(t *testing.T) {
	col := &frame.Column{Name: "x", Cardinality: frame.CategoricalCardinality, Values: []float64{2, 4, math.NaN()}}
	f := mustFrame(t, col)
	std := NewStandardizer(f, 0, false)
	chunks := f.Chunks(0)

	values := make([]float64, 1)
	std.Data(chunks[0], 2, values)
	if math.Abs(values[0]-3.0) > 1e-9 {
		t.Errorf("NA imputation = %v, want mean 3.0", values[0])
	}
}

func TestStandardizerCategoricalNAImputesClampedRoundedMean(t *testing.T) {
	col := &frame.Column{Name: "c", Cardinality: 2, Values: []float64{1, 1, math.NaN()}}
	f := mustFrame(t, col)
	std := NewStandardizer(f, 1, false)
	chunks := f.Chunks(0)

	values := make([]float64, 1)
	std.Data(chunks[0], 2, values)
	// mean of [1,1] = 1, round(1) = 1, clamp to cardinality-1=1 -> 1.
	if values[0] != 1 {
		t.Errorf("categorical NA imputation = %v, want 1", values[0])
	}
}

func TestStandardizerLowVarianceMultIsOne(t *testing.T) {
	col := &frame.Column{Name: "x", Cardinality: frame.CategoricalCardinality, Values: []float64{5, 5, 5, 5}}
	f := mustFrame(t, col)
	std := NewStandardizer(f, 0, true)
	if std.mults[0] != 1 {
		t.Errorf("mult for zero-variance column = %v, want 1", std.mults[0])
	}
}
