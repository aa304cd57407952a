package kmeans

import "github.com/kmeansd/kmeansd/pkg/frame"

// ModelOutput is the reporting snapshot published after each accepted
// Lloyd iteration and returned as the final training result.
type ModelOutput struct {
	// Centroids are destandardized, one length-F row per cluster.
	Centroids [][]float64
	Names     []string
	// Rows is the row count assigned to each cluster.
	Rows []int64
	// WithinMSE[k] = cSqr[k] / Rows[k].
	WithinMSE []float64

	TotalAvgSS   float64
	AvgWithinSS  float64
	AvgBetweenSS float64

	// Iterations is the number of accepted (non-rescue-discarded)
	// Lloyd iterations completed so far.
	Iterations int

	// Representatives[k] is the global row id of the member nearest
	// to cluster k's centroid, populated only on the final snapshot
	// Train returns (periodic Publish snapshots leave it nil).
	Representatives []int64
}

// Model is the trained K-Means|| result, able to score new points
// against the standardized centroids it was trained with.
type Model struct {
	std       *Standardizer
	centroids [][]float64 // standardized space, for scoring
	output    ModelOutput
}

// Output returns the destandardized reporting snapshot.
func (m *Model) Output() ModelOutput { return m.output }

// Score returns the index of the nearest cluster to a raw (un-
// standardized) row of length F, after applying the same
// standardization the model was trained with.
func (m *Model) Score(row []float64) (int, float64) {
	values := make([]float64, len(row))
	copy(values, row)
	for i := m.std.Ncats(); i < len(values); i++ {
		if m.std.standardize {
			values[i] = (values[i] - m.std.means[i]) * m.std.mults[i]
		}
	}
	return Closest(m.centroids, values, m.std.Ncats(), len(m.centroids))
}

// ScoreChunkRow scores row localRow of chunk c directly, applying NA
// imputation the same way training did.
func (m *Model) ScoreChunkRow(c frame.Chunk, localRow int64) (int, float64) {
	values := make([]float64, m.std.NumCols())
	m.std.Data(c, localRow, values)
	return Closest(m.centroids, values, m.std.Ncats(), len(m.centroids))
}
