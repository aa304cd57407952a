package kmeans

import (
	"context"

	"github.com/kmeansd/kmeansd/pkg/frame"
	"github.com/kmeansd/kmeansd/pkg/mrtask"
)

// lloydsResult is the per-iteration scratch accumulated by the Lloyd
// map/reduce pass: per-cluster sum vectors (numeric positions already
// locally meaned before reduce), per-cluster squared-error sums, row
// counts, per-column categorical histograms, and the single worst-fit
// row carried forward for rescue.
type lloydsResult struct {
	cMeans   [][]float64 // [k][f], numeric positions are local means pre-reduce
	cSqr     []float64   // [k]
	rows     []int64     // [k]
	cats     [][][]int64 // [k][ncats][cardinality_col]
	worstRow []float64   // len F, nil if no row observed
	worstErr float64
}

// newLloydsResult allocates fresh per-phase scratch, zeroed, sized
// for k clusters over a frame with the given cardinalities (the
// leading ncats entries of cards are categorical cardinalities; the
// rest are ignored).
func newLloydsResult(k int, f int, cards []int, ncats int) *lloydsResult {
	r := &lloydsResult{
		cMeans: make([][]float64, k),
		cSqr:   make([]float64, k),
		rows:   make([]int64, k),
		cats:   make([][][]int64, k),
	}
	for c := 0; c < k; c++ {
		r.cMeans[c] = make([]float64, f)
		r.cats[c] = make([][]int64, ncats)
		for col := 0; col < ncats; col++ {
			r.cats[c][col] = make([]int64, cards[col])
		}
	}
	return r
}

// lloydsMerge combines two lloydsResult values: numeric means are
// recombined with the recursive weighted-mean formula so the
// reduction stays numerically stable across skewed partition sizes;
// everything else is an elementwise sum. The worst-row pair from the
// larger error wins.
func lloydsMerge(a, b *lloydsResult, ncats int) *lloydsResult {
	k := len(a.cMeans)
	out := &lloydsResult{
		cMeans: make([][]float64, k),
		cSqr:   make([]float64, k),
		rows:   make([]int64, k),
		cats:   make([][][]int64, k),
	}
	for c := 0; c < k; c++ {
		f := len(a.cMeans[c])
		out.cMeans[c] = make([]float64, f)
		ra, rb := a.rows[c], b.rows[c]
		total := ra + rb
		for i := 0; i < f; i++ {
			if i < ncats {
				// Categorical positions carry no running mean; they
				// are resolved from histograms after the final reduce.
				continue
			}
			if total == 0 {
				out.cMeans[c][i] = 0
				continue
			}
			out.cMeans[c][i] = (a.cMeans[c][i]*float64(ra) + b.cMeans[c][i]*float64(rb)) / float64(total)
		}
		out.cSqr[c] = a.cSqr[c] + b.cSqr[c]
		out.rows[c] = total

		out.cats[c] = make([][]int64, ncats)
		for col := 0; col < ncats; col++ {
			card := len(a.cats[c][col])
			out.cats[c][col] = make([]int64, card)
			for lvl := 0; lvl < card; lvl++ {
				out.cats[c][col][lvl] = a.cats[c][col][lvl] + b.cats[c][col][lvl]
			}
		}
	}

	if a.worstRow != nil && (b.worstRow == nil || a.worstErr >= b.worstErr) {
		out.worstRow, out.worstErr = a.worstRow, a.worstErr
	} else {
		out.worstRow, out.worstErr = b.worstRow, b.worstErr
	}
	return out
}

// lloyds runs the Lloyd assignment pass: every row is assigned to its
// nearest centroid, its contribution accumulated into that cluster's
// local sums, histogram and squared-error total, and the single
// worst-fitting row across the whole frame is tracked for rescue.
func lloyds(ctx context.Context, chunks []frame.Chunk, std *Standardizer, centroids [][]float64, cards []int, cfg mrtask.Config) (*lloydsResult, error) {
	k := len(centroids)
	f := std.NumCols()
	ncats := std.Ncats()

	mapFn := func(ctx context.Context, i int) (any, error) {
		c := chunks[i]
		local := newLloydsResult(k, f, cards, ncats)
		values := make([]float64, f)

		for row := int64(0); row < c.Len(); row++ {
			std.Data(c, row, values)
			clu, dist := Closest(centroids, values, ncats, k)

			local.cSqr[clu] += dist
			for col := 0; col < ncats; col++ {
				lvl := int(values[col])
				local.cats[clu][col][lvl]++
			}
			for col := ncats; col < f; col++ {
				local.cMeans[clu][col] += values[col]
			}
			local.rows[clu]++

			if dist > local.worstErr || local.worstRow == nil {
				local.worstErr = dist
				local.worstRow = append([]float64(nil), values...)
			}
		}

		for clu := 0; clu < k; clu++ {
			if local.rows[clu] == 0 {
				continue
			}
			n := float64(local.rows[clu])
			for col := ncats; col < f; col++ {
				local.cMeans[clu][col] /= n
			}
		}
		return local, nil
	}
	reduceFn := func(a, b any) any {
		return lloydsMerge(a.(*lloydsResult), b.(*lloydsResult), ncats)
	}

	result, err := mrtask.Run(ctx, len(chunks), cfg, mapFn, reduceFn)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return newLloydsResult(k, f, cards, ncats), nil
	}
	return result.(*lloydsResult), nil
}

// finalizeCategoricalCenters sets the categorical positions of every
// centroid to the modal level of its cluster's histogram, ties broken
// by lowest level index. Clusters with zero rows are left unchanged
// (they are handled by empty-cluster rescue before this is called).
func finalizeCategoricalCenters(centroids [][]float64, res *lloydsResult, ncats int) {
	for clu := range centroids {
		if res.rows[clu] == 0 {
			continue
		}
		for col := 0; col < ncats; col++ {
			hist := res.cats[clu][col]
			best, bestCount := 0, int64(-1)
			for lvl, count := range hist {
				if count > bestCount {
					best, bestCount = lvl, count
				}
			}
			centroids[clu][col] = float64(best)
		}
	}
}
