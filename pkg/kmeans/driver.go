package kmeans

import (
	"context"

	"github.com/kmeansd/kmeansd/pkg/frame"
	"github.com/kmeansd/kmeansd/pkg/mrtask"
	"github.com/kmeansd/kmeansd/pkg/rng"
)

// Logger is the info/warn text sink the Driver reports training
// progress and rescue events through.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}

// RunController reports whether the job should keep running, polled
// cooperatively between phases. pkg/job.Job satisfies this.
type RunController interface {
	IsRunning() bool
}

// Publisher receives a snapshot after every accepted phase, including
// K-Means|| rounds and Lloyd iterations.
type Publisher interface {
	Publish(output ModelOutput)
}

// noopLogger discards everything; used when the caller supplies none.
type noopLogger struct{}

func (noopLogger) Infof(string, ...any) {}
func (noopLogger) Warnf(string, ...any) {}

// noopPublisher discards every snapshot.
type noopPublisher struct{}

func (noopPublisher) Publish(ModelOutput) {}

// alwaysRunning never reports cancellation.
type alwaysRunning struct{}

func (alwaysRunning) IsRunning() bool { return true }

// Driver orchestrates standardization, K-Means|| initialization, and
// the Lloyd convergence loop over a single frame.
type Driver struct {
	Params    Params
	Logger    Logger
	Run       RunController
	Publisher Publisher
}

// NewDriver builds a Driver with safe defaults for any nil
// collaborator.
func NewDriver(params Params, logger Logger, run RunController, pub Publisher) *Driver {
	if logger == nil {
		logger = noopLogger{}
	}
	if run == nil {
		run = alwaysRunning{}
	}
	if pub == nil {
		pub = noopPublisher{}
	}
	return &Driver{Params: params, Logger: logger, Run: run, Publisher: pub}
}

// Train runs the full pipeline: validate, standardize, initialize
// (None / PlusPlus / Furthest via K-Means|| oversampling), then the
// Lloyd loop with empty-cluster rescue, until convergence or
// maxIters. It returns the final Model or a ValidationError,
// CancellationSignal, or RuntimeFailure.
func (d *Driver) Train(ctx context.Context, f *frame.Frame) (*Model, error) {
	n := f.NumRows()
	if err := d.Params.Validate(n); err != nil {
		return nil, err
	}

	ncats := f.Permute()
	std := NewStandardizer(f, ncats, d.Params.Standardize)
	numF := f.NumCols()

	cards := make([]int, ncats)
	for i := 0; i < ncats; i++ {
		cards[i] = f.Cardinality(i)
	}

	chunks := f.Chunks(d.Params.ChunkSize)
	mrCfg := mrtask.Config{Workers: d.Params.Workers}

	// Primary RNG seeded from seed-1, per the orchestration contract.
	primary := rng.New(d.Params.Seed - 1)

	var centroids [][]float64
	var err error
	if d.Params.Init == InitNone {
		centroids = sampleUniformRows(f, std, primary, int(d.Params.K))
	} else {
		centroids, err = d.initKMeansParallel(ctx, chunks, std, primary, ncats, mrCfg)
		if err != nil {
			return nil, err
		}
	}

	model, err := d.lloydLoop(ctx, f, chunks, std, centroids, cards, ncats, numF, mrCfg)
	if err != nil {
		return nil, err
	}

	model.output.Representatives = SelectRepresentatives(f, std, model.centroids)
	return model, nil
}

// sampleUniformRows draws K distinct-by-construction (repeats allowed
// per the core's "None" contract) rows uniformly via RandomRow.
func sampleUniformRows(f *frame.Frame, std *Standardizer, r RNG, k int) [][]float64 {
	out := make([][]float64, k)
	n := f.NumRows()
	for i := 0; i < k; i++ {
		row := r.RandomRow(n)
		values := make([]float64, std.NumCols())
		std.DataRow(f, row, values)
		out[i] = values
	}
	return out
}

// initKMeansParallel runs the five fixed K-Means|| oversampling rounds
// followed by single-node reclustering down to exactly K centroids.
func (d *Driver) initKMeansParallel(ctx context.Context, chunks []frame.Chunk, std *Standardizer, primary *rng.Source, ncats int, mrCfg mrtask.Config) ([][]float64, error) {
	n := int64(0)
	for _, c := range chunks {
		n += c.Len()
	}

	seedRow := primary.RandomRow(n)
	seedValues := make([]float64, std.NumCols())
	for _, c := range chunks {
		if seedRow >= c.Start() && seedRow < c.Start()+c.Len() {
			std.Data(c, seedRow-c.Start(), seedValues)
			break
		}
	}
	candidates := [][]float64{seedValues}

	ell := 3 * d.Params.K
	r := 0
	for round := 0; round < oversamplingRounds; round++ {
		if !d.Run.IsRunning() {
			return nil, CancellationSignal()
		}

		psi, err := sumSqr(ctx, chunks, std, candidates, len(candidates), mrCfg)
		if err != nil {
			return nil, RuntimeFailure("sumsqr", err)
		}

		newCandidates, err := sample(ctx, chunks, std, candidates, psi, ell, d.Params.Seed, mrCfg)
		if err != nil {
			return nil, RuntimeFailure("sampler", err)
		}
		candidates = append(candidates, newCandidates...)

		r++
		avgWithinSS := 0.0
		if n > 0 {
			avgWithinSS = psi / float64(n)
		}
		d.Publisher.Publish(ModelOutput{
			Centroids:   destandardizeAll(std, candidates),
			Names:       nil,
			AvgWithinSS: avgWithinSS,
			Iterations:  r,
		})
	}

	return recluster(d.Params.Init, candidates, d.Params.K, ncats, primary), nil
}

// lloydLoop runs the convergence loop described in 4.7 step 8,
// including empty-cluster rescue and the reinitAttempts bound.
func (d *Driver) lloydLoop(ctx context.Context, f *frame.Frame, chunks []frame.Chunk, std *Standardizer, centroids [][]float64, cards []int, ncats, numF int, mrCfg mrtask.Config) (*Model, error) {
	k := len(centroids)
	var worstRow []float64
	reinitAttempts := 0
	iterations := 0

	var output ModelOutput

	for iter := 0; iter < d.Params.MaxIters; {
		if !d.Run.IsRunning() {
			return nil, CancellationSignal()
		}

		res, err := lloyds(ctx, chunks, std, centroids, cards, mrCfg)
		if err != nil {
			return nil, RuntimeFailure("lloyds", err)
		}

		newCentroids := make([][]float64, k)
		for c := range centroids {
			newCentroids[c] = append([]float64(nil), res.cMeans[c]...)
			if ncats > 0 {
				copy(newCentroids[c][:ncats], centroids[c][:ncats])
			}
		}
		finalizeCategoricalCenters(newCentroids, res, ncats)

		emptyCount := 0
		for clu := 0; clu < k; clu++ {
			if res.rows[clu] != 0 {
				continue
			}
			emptyCount++
			if emptyCount == 1 {
				// Rescue reseeds from the worst row carried forward from
				// the immediately prior Lloyd pass, not the one this
				// pass just computed (that one becomes available only
				// for the next iteration's rescue).
				if worstRow != nil {
					copy(newCentroids[clu], worstRow)
				} else if res.worstRow != nil {
					copy(newCentroids[clu], res.worstRow)
				}
				res.rows[clu] = 1
				d.Logger.Warnf("rescued empty cluster %d at iteration %d", clu, iter)
			}
		}

		if emptyCount >= 2 && reinitAttempts < int(d.Params.K) {
			reinitAttempts++
			centroids = newCentroids
			if res.worstRow != nil {
				worstRow = res.worstRow
			}
			continue // r-- equivalent: this iteration is not counted
		}
		if emptyCount >= 2 {
			// reinitAttempts resets only once the bound itself is hit,
			// not on every accepted iteration — preserved per the
			// source ambiguity around rescue bookkeeping.
			d.Logger.Warnf("accepting %d empty clusters after reinitAttempts bound reached", emptyCount)
			reinitAttempts = 0
		}

		withinMSE := make([]float64, k)
		var avgWithinSS float64
		var n int64
		for clu := 0; clu < k; clu++ {
			n += res.rows[clu]
			if res.rows[clu] > 0 {
				withinMSE[clu] = res.cSqr[clu] / float64(res.rows[clu])
			}
			avgWithinSS += res.cSqr[clu]
		}
		if n > 0 {
			avgWithinSS /= float64(n)
		}

		var avgSS float64
		if k == 1 {
			avgSS = avgWithinSS
		} else {
			origin := make([][]float64, 1)
			origin[0] = make([]float64, numF)
			psi, err := sumSqr(ctx, chunks, std, origin, 1, mrCfg)
			if err != nil {
				return nil, RuntimeFailure("sumsqr(origin)", err)
			}
			if n > 0 {
				avgSS = psi / float64(n)
			}
		}
		avgBetweenSS := avgSS - avgWithinSS

		var delta float64
		for c := 0; c < k; c++ {
			delta += Distance(centroids[c], newCentroids[c], ncats)
		}
		if numF > 0 {
			delta /= float64(numF)
		}

		iterations++
		centroids = newCentroids
		if res.worstRow != nil {
			worstRow = res.worstRow
		}

		output = ModelOutput{
			Centroids:    destandardizeAll(std, centroids),
			Names:        f.Names(),
			Rows:         append([]int64(nil), res.rows...),
			WithinMSE:    withinMSE,
			TotalAvgSS:   avgSS,
			AvgWithinSS:  avgWithinSS,
			AvgBetweenSS: avgBetweenSS,
			Iterations:   iterations,
		}
		d.Publisher.Publish(output)

		if delta < convergenceThreshold {
			break
		}
		iter++
	}

	return &Model{std: std, centroids: centroids, output: output}, nil
}

// destandardizeAll maps Destandardize across every row.
func destandardizeAll(std *Standardizer, rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = std.Destandardize(row)
	}
	return out
}
