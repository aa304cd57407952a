package kmeans

import "math"

// Distance computes the hybrid squared dissimilarity between a
// centroid and a point, both length F with categorical positions in
// [0, ncats) and numeric positions in [ncats, F).
//
// Categorical positions contribute 1.0 on mismatch, 0.0 on match, and
// nothing (while decrementing the valid-dimension count) when the
// point value is NaN. Numeric positions contribute squared
// difference, or nothing when NaN. When only 0 < pts < F dimensions
// were valid, the accumulated sum is rescaled by F/pts so rows with
// differing NA counts remain comparable.
func Distance(centroid, point []float64, ncats int) float64 {
	f := len(centroid)
	var sqr float64
	pts := f

	for i := 0; i < ncats; i++ {
		if math.IsNaN(point[i]) {
			pts--
			continue
		}
		if point[i] != centroid[i] {
			sqr++
		}
	}
	for i := ncats; i < f; i++ {
		if math.IsNaN(point[i]) {
			pts--
			continue
		}
		d := point[i] - centroid[i]
		sqr += d * d
	}

	if pts > 0 && pts < f {
		sqr *= float64(f) / float64(pts)
	}
	return sqr
}

// Closest returns the index and squared distance of the nearest of
// the first count centroids to point, ties broken by lowest index.
func Closest(centroids [][]float64, point []float64, ncats int, count int) (int, float64) {
	best := -1
	bestDist := math.Inf(1)
	for i := 0; i < count; i++ {
		d := Distance(centroids[i], point, ncats)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best, bestDist
}
