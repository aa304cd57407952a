package kmeans

import "github.com/kmeansd/kmeansd/pkg/frame"

// SelectRepresentatives scans the whole frame once and returns, for
// each cluster, the global row id whose standardized values are
// closest to that cluster's centroid under the same hybrid distance
// kernel used during training — the "most typical" row per cluster,
// the way a nearest-to-centroid member is picked to represent a
// cluster of documents.
func SelectRepresentatives(f *frame.Frame, std *Standardizer, centroids [][]float64) []int64 {
	k := len(centroids)
	ncats := std.Ncats()
	reps := make([]int64, k)
	bestDist := make([]float64, k)
	found := make([]bool, k)

	values := make([]float64, std.NumCols())
	n := f.NumRows()
	for row := int64(0); row < n; row++ {
		std.DataRow(f, row, values)
		clu, dist := Closest(centroids, values, ncats, k)
		if clu < 0 {
			continue
		}
		if !found[clu] || dist < bestDist[clu] {
			reps[clu] = row
			bestDist[clu] = dist
			found[clu] = true
		}
	}
	return reps
}
