package kmeans

import (
	"context"

	"github.com/kmeansd/kmeansd/pkg/frame"
	"github.com/kmeansd/kmeansd/pkg/mrtask"
	"github.com/kmeansd/kmeansd/pkg/rng"
)

// sample runs the K-Means|| SamplerTask: for each row, draw a
// per-chunk-seeded uniform u and emit a copy of the row's
// standardized values when ell*minSqrDist(row) > u*psi. Candidate
// order within a chunk is row order; across chunks, results are
// concatenated in chunk index order, matching the fixed reduce-tree
// shape the determinism property requires.
func sample(ctx context.Context, chunks []frame.Chunk, std *Standardizer, centroids [][]float64, psi float64, ell int64, seed int64, cfg mrtask.Config) ([][]float64, error) {
	f := std.NumCols()
	ncats := std.Ncats()
	ncentroids := len(centroids)

	mapFn := func(ctx context.Context, i int) (any, error) {
		c := chunks[i]
		r := rng.ForChunk(seed, c.Start())
		values := make([]float64, f)
		var local [][]float64
		for row := int64(0); row < c.Len(); row++ {
			std.Data(c, row, values)
			_, s := Closest(centroids, values, ncats, ncentroids)
			u := r.Float64()
			if float64(ell)*s > u*psi {
				cand := make([]float64, f)
				copy(cand, values)
				local = append(local, cand)
			}
		}
		return local, nil
	}
	reduceFn := func(a, b any) any {
		return append(a.([][]float64), b.([][]float64)...)
	}

	result, err := mrtask.Run(ctx, len(chunks), cfg, mapFn, reduceFn)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.([][]float64), nil
}
