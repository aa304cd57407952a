package kmeans

import "math"

// RNG is the seedable uniform source the reclustering and sampling
// phases consume. pkg/rng.Source satisfies this.
type RNG interface {
	Float64() float64
	RandomRow(n int64) int64
}

// minSqrDistToSet returns the squared distance from p to its nearest
// point in res (the growing result set), under the hybrid metric.
func minSqrDistToSet(res [][]float64, p []float64, ncats int) float64 {
	_, d := Closest(res, p, ncats, len(res))
	return d
}

// recluster reduces the oversampled candidate set P down to exactly K
// centroids on a single node, using either the PlusPlus or Furthest
// strategy. P must be non-empty.
func recluster(method InitMethod, candidates [][]float64, k int64, ncats int, r RNG) [][]float64 {
	switch method {
	case InitFurthest:
		return reclusterFurthest(candidates, k, ncats)
	default:
		return reclusterPlusPlus(candidates, k, ncats, r)
	}
}

// reclusterPlusPlus is a faithful reproduction of the in-repo
// early-break first-fit PlusPlus scan: it does not draw a weighted
// sample of one the canonical way, but walks the candidate list in
// order and accepts the first point whose distance to the current
// result set clears a freshly drawn threshold, biasing acceptance
// toward earlier candidates. Preserved exactly per the open question
// on reclustering semantics.
func reclusterPlusPlus(candidates [][]float64, k int64, ncats int, r RNG) [][]float64 {
	res := [][]float64{append([]float64(nil), candidates[0]...)}

	for int64(len(res)) < k {
		var psi float64
		for _, p := range candidates {
			psi += minSqrDistToSet(res, p, ncats)
		}

		picked := false
		for !picked {
			u := r.Float64()
			threshold := u * psi
			for _, p := range candidates {
				if minSqrDistToSet(res, p, ncats) >= threshold {
					res = append(res, append([]float64(nil), p...))
					picked = true
					break
				}
			}
			// If the scan found nothing (every point fell below the
			// threshold), the loop draws a fresh u and scans again. When
			// psi==0 the first candidate is taken instead, so a
			// degenerate draw cannot loop forever.
			if !picked && psi == 0 {
				res = append(res, append([]float64(nil), candidates[0]...))
				picked = true
			}
		}
	}
	return res[:k]
}

// reclusterFurthest repeatedly picks the candidate maximizing
// distance to the current result set, ties broken by lowest index.
func reclusterFurthest(candidates [][]float64, k int64, ncats int) [][]float64 {
	res := [][]float64{append([]float64(nil), candidates[0]...)}

	for int64(len(res)) < k {
		bestIdx := -1
		bestDist := -math.MaxFloat64
		for i, p := range candidates {
			d := minSqrDistToSet(res, p, ncats)
			if d > bestDist {
				bestDist = d
				bestIdx = i
			}
		}
		res = append(res, append([]float64(nil), candidates[bestIdx]...))
	}
	return res[:k]
}
