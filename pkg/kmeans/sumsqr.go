package kmeans

import (
	"context"

	"github.com/kmeansd/kmeansd/pkg/frame"
	"github.com/kmeansd/kmeansd/pkg/mrtask"
)

// sumSqr runs the SumSqr data-parallel pass: for every row in every
// chunk, materialize its standardized values and accumulate the
// squared distance to the nearest of the first ncentroids centroids.
// The result is Ψ, the total squared distance from every row to its
// current nearest centroid.
func sumSqr(ctx context.Context, chunks []frame.Chunk, std *Standardizer, centroids [][]float64, ncentroids int, cfg mrtask.Config) (float64, error) {
	f := std.NumCols()
	ncats := std.Ncats()

	mapFn := func(ctx context.Context, i int) (any, error) {
		c := chunks[i]
		values := make([]float64, f)
		var local float64
		for row := int64(0); row < c.Len(); row++ {
			std.Data(c, row, values)
			_, d := Closest(centroids, values, ncats, ncentroids)
			local += d
		}
		return local, nil
	}
	reduceFn := func(a, b any) any { return a.(float64) + b.(float64) }

	result, err := mrtask.Run(ctx, len(chunks), cfg, mapFn, reduceFn)
	if err != nil {
		return 0, err
	}
	if result == nil {
		return 0, nil
	}
	return result.(float64), nil
}
