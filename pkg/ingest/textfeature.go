package ingest

import (
	"context"
	"fmt"
	stdmath "math"

	"github.com/kmeansd/kmeansd/pkg/embedding"
	"github.com/kmeansd/kmeansd/pkg/frame"
	kmath "github.com/kmeansd/kmeansd/pkg/math"
)

// AugmentWithTextFeature builds one numeric column, named "text_embdist",
// for the caller to append, derived from a free-text column: the cosine
// distance of each row's embedding from the mean of all rows'
// embeddings (rows with an empty embedding get NaN). This lets a dataset
// with a free-text field be clustered by the numeric/categorical kernel
// without the core ever seeing text.
func AugmentWithTextFeature(ctx context.Context, f *frame.Frame, texts []string, provider embedding.Provider, batchSize int) (*frame.Column, error) {
	if int64(len(texts)) != f.NumRows() {
		return nil, fmt.Errorf("ingest: text column has %d rows, frame has %d", len(texts), f.NumRows())
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	vectors := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		batch, err := provider.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("ingest: embedding batch [%d:%d): %w", start, end, err)
		}
		copy(vectors[start:end], batch)
	}

	dim := provider.Dimension()
	sum := make([]float32, dim)
	var n int
	for _, v := range vectors {
		if len(v) == 0 {
			continue
		}
		kmath.AddVectors(sum, sum, v)
		n++
	}
	mean := make([]float32, dim)
	if n > 0 {
		kmath.CopyVector(mean, sum)
		kmath.ScaleVector(mean, float32(1.0/float64(n)))
	}

	values := make([]float64, len(texts))
	for i, v := range vectors {
		if len(v) == 0 {
			values[i] = stdmath.NaN()
			continue
		}
		values[i] = kmath.CosineDistance(v, mean)
	}

	return &frame.Column{
		Name:        "text_embdist",
		Cardinality: frame.CategoricalCardinality,
		Values:      values,
	}, nil
}
