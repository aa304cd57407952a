// Package frame provides a small in-memory columnar dataset, the
// concrete stand-in for the Frame/Vec/Chunk collaborator that
// package kmeans consumes but does not define.
package frame

import (
	"fmt"
	"math"
)

// CategoricalCardinality marks a column as numeric rather than categorical.
const CategoricalCardinality = -1

// Column is a single named vector of F64 values. Numeric columns carry
// raw measurements; categorical columns carry integer level codes in
// [0, Cardinality). Missing values are represented as math.NaN().
type Column struct {
	Name        string
	Cardinality int // -1 for numeric, c >= 0 for categorical with c levels
	Values      []float64
}

// IsCategorical reports whether the column holds level codes.
func (c *Column) IsCategorical() bool {
	return c.Cardinality >= 0
}

// At returns the value at the given row.
func (c *Column) At(row int64) float64 {
	return c.Values[row]
}

// Mean returns the arithmetic mean over non-missing values.
func (c *Column) Mean() float64 {
	var sum float64
	var n int64
	for _, v := range c.Values {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Sigma returns the population standard deviation over non-missing values.
func (c *Column) Sigma() float64 {
	mean := c.Mean()
	var sumSq float64
	var n int64
	for _, v := range c.Values {
		if math.IsNaN(v) {
			continue
		}
		d := v - mean
		sumSq += d * d
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sumSq / float64(n))
}

// Frame is an ordered sequence of columns of equal length, the unit of
// work a Driver trains against. Columns are addressed positionally;
// Driver.Train permutes categorical columns to the front in place (see
// Frame.Permute) before training.
type Frame struct {
	columns []*Column
	numRows int64
}

// New builds a Frame from columns that must all share the same length.
func New(columns []*Column) (*Frame, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("frame: at least one column is required")
	}
	n := int64(len(columns[0].Values))
	for _, c := range columns {
		if int64(len(c.Values)) != n {
			return nil, fmt.Errorf("frame: column %q has %d rows, want %d", c.Name, len(c.Values), n)
		}
	}
	return &Frame{columns: columns, numRows: n}, nil
}

// NumRows returns the row count N.
func (f *Frame) NumRows() int64 { return f.numRows }

// NumCols returns the column count F.
func (f *Frame) NumCols() int { return len(f.columns) }

// Names returns the column names in positional order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.columns))
	for i, c := range f.columns {
		names[i] = c.Name
	}
	return names
}

// Col returns the column at position i.
func (f *Frame) Col(i int) *Column { return f.columns[i] }

// Cardinality returns column i's cardinality (-1 for numeric).
func (f *Frame) Cardinality(i int) int { return f.columns[i].Cardinality }

// Mean returns column i's mean.
func (f *Frame) Mean(i int) float64 { return f.columns[i].Mean() }

// Sigma returns column i's standard deviation.
func (f *Frame) Sigma(i int) float64 { return f.columns[i].Sigma() }

// At returns the value of column i at the given global row id.
func (f *Frame) At(i int, row int64) float64 { return f.columns[i].Values[row] }

// AppendColumn adds col as the new last column, for ingestion-time
// feature augmentation (e.g. a text-distance feature derived after the
// rest of the frame has already been assembled). col must have the
// same row count as the frame.
func (f *Frame) AppendColumn(col *Column) error {
	if int64(len(col.Values)) != f.numRows {
		return fmt.Errorf("frame: column %q has %d rows, want %d", col.Name, len(col.Values), f.numRows)
	}
	f.columns = append(f.columns, col)
	return nil
}

// Swap exchanges the positions of columns i and j in place. Used once,
// before training, to permute categorical columns to the leading
// positions as the data-model invariant requires.
func (f *Frame) Swap(i, j int) {
	f.columns[i], f.columns[j] = f.columns[j], f.columns[i]
}

// Permute reorders columns so all categorical columns (cardinality >= 0)
// occupy positions [0, ncats) while preserving relative order within
// each group. Returns ncats.
func (f *Frame) Permute() int {
	next := 0
	for i := 0; i < len(f.columns); i++ {
		if f.columns[i].IsCategorical() {
			for j := i; j > next; j-- {
				f.Swap(j, j-1)
			}
			next++
		}
	}
	return next
}

// Chunks splits the frame into contiguous row-range chunks of at most
// chunkSize rows each, the unit of parallel work for a map/reduce pass.
func (f *Frame) Chunks(chunkSize int64) []Chunk {
	if chunkSize <= 0 {
		chunkSize = f.numRows
	}
	if chunkSize <= 0 {
		return nil
	}
	var chunks []Chunk
	for start := int64(0); start < f.numRows; start += chunkSize {
		end := start + chunkSize
		if end > f.numRows {
			end = f.numRows
		}
		chunks = append(chunks, Chunk{frame: f, start: start, length: end - start})
	}
	return chunks
}

// Chunk is a contiguous row-range slice of a Frame owned, conceptually,
// by a single worker during a map phase.
type Chunk struct {
	frame  *Frame
	start  int64
	length int64
}

// Start returns the global row id of the chunk's first row.
func (c Chunk) Start() int64 { return c.start }

// Len returns the number of rows in the chunk.
func (c Chunk) Len() int64 { return c.length }

// NumCols returns the number of columns visible to the chunk.
func (c Chunk) NumCols() int { return c.frame.NumCols() }

// Cardinality returns column i's cardinality.
func (c Chunk) Cardinality(i int) int { return c.frame.Cardinality(i) }

// At0 returns the value of column i at chunk-local row localRow.
func (c Chunk) At0(i int, localRow int64) float64 {
	return c.frame.At(i, c.start+localRow)
}

// Row materializes the raw (un-standardized) values of the full row at
// chunk-local index localRow into dst, which must have length F.
func (c Chunk) Row(localRow int64, dst []float64) {
	for i := range dst {
		dst[i] = c.At0(i, localRow)
	}
}
