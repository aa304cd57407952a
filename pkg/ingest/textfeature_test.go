package ingest

import (
	"context"
	"math"
	"testing"

	"github.com/kmeansd/kmeansd/pkg/frame"
)

// fakeProvider returns a fixed embedding per text, keyed by its length,
// so distinct inputs land at a known distance from the corpus mean.
type fakeProvider struct {
	dim int
}

func (p fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (p fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, p.dim)
		v[0] = float32(len(t))
		out[i] = v
	}
	return out, nil
}

func (p fakeProvider) Dimension() int    { return p.dim }
func (p fakeProvider) ModelName() string { return "fake" }

func mustFrameIngest(t *testing.T, n int) *frame.Frame {
	t.Helper()
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i)
	}
	f, err := frame.New([]*frame.Column{
		{Name: "x", Cardinality: frame.CategoricalCardinality, Values: values},
	})
	if err != nil {
		t.Fatalf("frame.New() error = %v", err)
	}
	return f
}

func TestAugmentWithTextFeatureRowCountMismatch(t *testing.T) {
	f := mustFrameIngest(t, 3)
	_, err := AugmentWithTextFeature(context.Background(), f, []string{"a", "b"}, fakeProvider{dim: 2}, 10)
	if err == nil {
		t.Fatal("expected error when text column length does not match frame row count")
	}
}

func TestAugmentWithTextFeatureProducesOneValuePerRow(t *testing.T) {
	f := mustFrameIngest(t, 3)
	texts := []string{"a", "bb", "ccc"}
	col, err := AugmentWithTextFeature(context.Background(), f, texts, fakeProvider{dim: 2}, 10)
	if err != nil {
		t.Fatalf("AugmentWithTextFeature() error = %v", err)
	}
	if len(col.Values) != len(texts) {
		t.Fatalf("len(Values) = %d, want %d", len(col.Values), len(texts))
	}
	if col.IsCategorical() {
		t.Error("text feature column should be numeric")
	}
	for i, v := range col.Values {
		if math.IsNaN(v) {
			t.Errorf("Values[%d] is NaN, want a finite distance", i)
		}
	}
}

func TestAugmentWithTextFeatureBatchesRequests(t *testing.T) {
	f := mustFrameIngest(t, 5)
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	col, err := AugmentWithTextFeature(context.Background(), f, texts, fakeProvider{dim: 2}, 2)
	if err != nil {
		t.Fatalf("AugmentWithTextFeature() error = %v", err)
	}
	if len(col.Values) != len(texts) {
		t.Fatalf("len(Values) = %d, want %d", len(col.Values), len(texts))
	}
}
