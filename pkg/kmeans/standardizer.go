package kmeans

import (
	"math"

	"github.com/kmeansd/kmeansd/pkg/frame"
)

// Standardizer derives per-column centering/scaling factors once from
// the training frame and applies them when materializing rows,
// reversing them only for numeric columns when reporting centroids.
type Standardizer struct {
	ncats       int
	standardize bool
	means       []float64
	sigmas      []float64
	mults       []float64
	cards       []int
}

// NewStandardizer computes μ and σ for every column of f and prepares
// the per-column scaling multipliers.
func NewStandardizer(f *frame.Frame, ncats int, standardize bool) *Standardizer {
	n := f.NumCols()
	s := &Standardizer{
		ncats:       ncats,
		standardize: standardize,
		means:       make([]float64, n),
		sigmas:      make([]float64, n),
		mults:       make([]float64, n),
		cards:       make([]int, n),
	}
	for i := 0; i < n; i++ {
		s.means[i] = f.Mean(i)
		s.sigmas[i] = f.Sigma(i)
		s.cards[i] = f.Cardinality(i)
		if s.sigmas[i] > sigmaFloor {
			s.mults[i] = 1 / s.sigmas[i]
		} else {
			s.mults[i] = 1
		}
	}
	return s
}

// NumCols returns F.
func (s *Standardizer) NumCols() int { return len(s.means) }

// Ncats returns the number of leading categorical columns.
func (s *Standardizer) Ncats() int { return s.ncats }

// Data materializes the row at chunk-local index localRow into dst
// (length F), applying NA imputation and, for numeric columns,
// standardization.
func (s *Standardizer) Data(c frame.Chunk, localRow int64, dst []float64) {
	for i := range dst {
		v := c.At0(i, localRow)
		if i < s.ncats {
			if math.IsNaN(v) {
				v = math.Min(math.Round(s.means[i]), float64(s.cards[i]-1))
			}
			dst[i] = v
			continue
		}
		if math.IsNaN(v) {
			v = s.means[i]
		}
		if s.standardize {
			v = (v - s.means[i]) * s.mults[i]
		}
		dst[i] = v
	}
}

// DataRow materializes a full-frame row (not chunk-scoped) the same
// way Data does, used by representative-row selection which scans the
// whole frame after training.
func (s *Standardizer) DataRow(f *frame.Frame, row int64, dst []float64) {
	for i := range dst {
		v := f.At(i, row)
		if i < s.ncats {
			if math.IsNaN(v) {
				v = math.Min(math.Round(s.means[i]), float64(s.cards[i]-1))
			}
			dst[i] = v
			continue
		}
		if math.IsNaN(v) {
			v = s.means[i]
		}
		if s.standardize {
			v = (v - s.means[i]) * s.mults[i]
		}
		dst[i] = v
	}
}

// Destandardize returns a copy of centroid with the numeric-column
// standardization transform inverted; categorical positions pass
// through unchanged.
func (s *Standardizer) Destandardize(centroid []float64) []float64 {
	out := make([]float64, len(centroid))
	for i, v := range centroid {
		if i < s.ncats || !s.standardize {
			out[i] = v
			continue
		}
		out[i] = v/s.mults[i] + s.means[i]
	}
	return out
}
