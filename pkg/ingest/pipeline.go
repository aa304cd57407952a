// Package ingest builds frame.Frame values out of CSV and JSONL sources,
// preserving input row order for deterministic training. JSONL parsing
// runs as a reader -> worker -> collector pipeline; CSV rows are parsed
// by a single reader.
package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/kmeansd/kmeansd/pkg/frame"
)

// Config holds ingestion pipeline configuration.
type Config struct {
	// Workers is the number of concurrent row-parsing workers.
	Workers int

	// ChannelBuffer is the buffer size for internal channels.
	ChannelBuffer int

	// CategoricalColumns names columns that must be treated as
	// categorical even if every value happens to parse as a number.
	// If nil, categorical columns are auto-detected: a column is
	// categorical if any non-empty value fails to parse as a float.
	CategoricalColumns map[string]bool

	// TextColumn, if set, names a free-text column to hold out of the
	// typed frame and return via Stats.TextValues instead, for optional
	// embedding-based feature augmentation by the caller.
	TextColumn string
}

// DefaultConfig returns sensible ingestion defaults.
func DefaultConfig() Config {
	return Config{
		Workers:       runtime.GOMAXPROCS(0),
		ChannelBuffer: 1000,
	}
}

// Stats tracks ingestion progress.
type Stats struct {
	RowsRead  int64
	RowsBad   int64
	StartTime time.Time
	EndTime   time.Time

	// TextValues holds the raw values of Config.TextColumn, in row
	// order, when TextColumn is set. Empty otherwise.
	TextValues []string
}

// Duration returns the total processing duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// RowsPerSecond returns ingestion throughput.
func (s *Stats) RowsPerSecond() float64 {
	d := s.Duration().Seconds()
	if d == 0 {
		return 0
	}
	return float64(s.RowsRead) / d
}

// Pipeline builds a frame.Frame from a row-oriented input source.
type Pipeline struct {
	cfg Config
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 1000
	}
	return &Pipeline{cfg: cfg}
}

// rawRow is a parsed but not-yet-typed input record, tagged with its
// original row index so column assembly can restore input order
// regardless of which worker finished parsing it first.
type rawRow struct {
	index  int
	fields map[string]string
}

// IngestCSVFile opens path and ingests it as CSV.
func (p *Pipeline) IngestCSVFile(ctx context.Context, path string) (*frame.Frame, *Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: failed to open %s: %w", path, err)
	}
	defer f.Close()
	return p.IngestCSV(ctx, f)
}

// IngestJSONLFile opens path and ingests it as newline-delimited JSON.
func (p *Pipeline) IngestJSONLFile(ctx context.Context, path string) (*frame.Frame, *Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: failed to open %s: %w", path, err)
	}
	defer f.Close()
	return p.IngestJSONL(ctx, f)
}

// IngestCSV reads a header row followed by data rows and assembles a Frame.
func (p *Pipeline) IngestCSV(ctx context.Context, r io.Reader) (*frame.Frame, *Stats, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: failed to read CSV header: %w", err)
	}

	rows := make(chan rawRow, p.cfg.ChannelBuffer)
	stats := &Stats{StartTime: time.Now()}

	go func() {
		defer close(rows)
		idx := 0
		for {
			record, err := cr.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				stats.RowsBad++
				continue
			}
			fields := make(map[string]string, len(header))
			for i, name := range header {
				if i < len(record) {
					fields[name] = record[i]
				}
			}
			select {
			case rows <- rawRow{index: idx, fields: fields}:
			case <-ctx.Done():
				return
			}
			idx++
		}
	}()

	return p.assemble(ctx, header, rows, stats)
}

// IngestJSONL reads newline-delimited JSON objects and assembles a Frame.
// Column names are the union of keys observed across all records.
func (p *Pipeline) IngestJSONL(ctx context.Context, r io.Reader) (*frame.Frame, *Stats, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	stats := &Stats{StartTime: time.Now()}

	type parsed struct {
		index int
		obj   map[string]interface{}
		err   error
	}

	lines := make(chan struct {
		index int
		line  []byte
	}, p.cfg.ChannelBuffer)
	parsedCh := make(chan parsed, p.cfg.ChannelBuffer)

	var wg sync.WaitGroup
	for w := 0; w < p.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for l := range lines {
				var obj map[string]interface{}
				err := json.Unmarshal(l.line, &obj)
				select {
				case parsedCh <- parsed{index: l.index, obj: obj, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(parsedCh)
	}()

	go func() {
		defer close(lines)
		idx := 0
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			lineCopy := make([]byte, len(line))
			copy(lineCopy, line)
			select {
			case lines <- struct {
				index int
				line  []byte
			}{idx, lineCopy}:
			case <-ctx.Done():
				return
			}
			idx++
		}
	}()

	// Collect into index order before typed assembly, since JSON worker
	// completion order is not input order.
	pending := make(map[int]parsed)
	next := 0
	ordered := make(chan rawRow, p.cfg.ChannelBuffer)
	names := make(map[string]bool)
	var namesMu sync.Mutex

	go func() {
		defer close(ordered)
		for res := range parsedCh {
			pending[res.index] = res
			for {
				cur, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++
				if cur.err != nil {
					stats.RowsBad++
					continue
				}
				fields := make(map[string]string, len(cur.obj))
				namesMu.Lock()
				for k, v := range cur.obj {
					fields[k] = jsonScalarToString(v)
					names[k] = true
				}
				namesMu.Unlock()
				select {
				case ordered <- rawRow{index: cur.index, fields: fields}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	rowsOut := make([]rawRow, 0)
	for row := range ordered {
		rowsOut = append(rowsOut, row)
	}

	header := make([]string, 0, len(names))
	for n := range names {
		header = append(header, n)
	}

	replay := make(chan rawRow, len(rowsOut))
	for _, row := range rowsOut {
		replay <- row
	}
	close(replay)

	return p.assemble(ctx, header, replay, stats)
}

func jsonScalarToString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		if t {
			return "1"
		}
		return "0"
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// assemble drains rows (already in input order) into per-column value
// slices, infers numeric vs categorical typing per column, and builds
// the final Frame.
func (p *Pipeline) assemble(ctx context.Context, header []string, rows <-chan rawRow, stats *Stats) (*frame.Frame, *Stats, error) {
	raw := make(map[string][]string)
	for _, name := range header {
		raw[name] = nil
	}

	var total int64
	for row := range rows {
		select {
		case <-ctx.Done():
			return nil, stats, ctx.Err()
		default:
		}
		for _, name := range header {
			raw[name] = append(raw[name], row.fields[name])
		}
		total++
	}
	stats.RowsRead = total
	stats.EndTime = time.Now()

	if total == 0 {
		return nil, stats, fmt.Errorf("ingest: no rows read")
	}

	if p.cfg.TextColumn != "" {
		stats.TextValues = raw[p.cfg.TextColumn]
	}

	columns := make([]*frame.Column, 0, len(header))
	for _, name := range header {
		if name == p.cfg.TextColumn {
			continue
		}
		vals := raw[name]
		isCat := p.cfg.CategoricalColumns != nil && p.cfg.CategoricalColumns[name]
		if !isCat && p.cfg.CategoricalColumns == nil {
			isCat = !allNumeric(vals)
		}

		col := &frame.Column{Name: name}
		if isCat {
			levels := map[string]int{}
			values := make([]float64, len(vals))
			for i, s := range vals {
				if s == "" {
					values[i] = math.NaN()
					continue
				}
				code, ok := levels[s]
				if !ok {
					code = len(levels)
					levels[s] = code
				}
				values[i] = float64(code)
			}
			col.Cardinality = len(levels)
			col.Values = values
		} else {
			values := make([]float64, len(vals))
			for i, s := range vals {
				if s == "" {
					values[i] = math.NaN()
					continue
				}
				f, err := strconv.ParseFloat(s, 64)
				if err != nil {
					values[i] = math.NaN()
					continue
				}
				values[i] = f
			}
			col.Cardinality = frame.CategoricalCardinality
			col.Values = values
		}
		columns = append(columns, col)
	}

	f, err := frame.New(columns)
	if err != nil {
		return nil, stats, err
	}
	return f, stats, nil
}

func allNumeric(vals []string) bool {
	for _, s := range vals {
		if s == "" {
			continue
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return false
		}
	}
	return true
}
