// Package mrtask is the concrete bulk-synchronous map/reduce runtime
// the training core runs phases against. It fans a map closure out
// over a bounded goroutine pool, one goroutine per chunk up to
// GOMAXPROCS workers, and folds partial results in index order once
// every map has finished, mirroring the worker-pool/channel shape the teacher uses
// to upload vector batches concurrently.
package mrtask

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// MapFunc processes a single unit of work (identified by index) and
// returns a partial result or an error. i ranges over [0, n).
type MapFunc func(ctx context.Context, i int) (any, error)

// ReduceFunc associatively combines two partial results into one.
// Run never calls ReduceFunc concurrently with itself.
type ReduceFunc func(a, b any) any

// Config controls pool sizing.
type Config struct {
	// Workers bounds the number of concurrent map invocations in
	// flight. Zero selects runtime.GOMAXPROCS(0).
	Workers int
}

// DefaultConfig returns a worker count derived from GOMAXPROCS, the
// way the teacher's ingestion pipeline sizes its upload pool.
func DefaultConfig() Config {
	return Config{Workers: runtime.GOMAXPROCS(0)}
}

// Run applies mapFn to every index in [0, n) across a bounded worker
// pool, then folds the partial results with reduceFn in index order
// 0..n-1 regardless of completion order. Fixed-order folding is what
// makes a phase's reduction deterministic given identical chunk
// partitioning: SumSqr and Lloyds are associative so order only
// affects floating-point re-association noise, but Sampler's
// candidate-list concatenation is order-sensitive and requires it.
//
// Run returns the first map error encountered (in index order) once
// every dispatched worker has drained; it cancels ctx as soon as any
// invocation fails so remaining in-flight work can stop early.
func Run(ctx context.Context, n int, cfg Config, mapFn MapFunc, reduceFn ReduceFunc) (any, error) {
	if n <= 0 {
		return nil, nil
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	values := make([]any, n)
	errs := make([]error, n)

	indices := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				v, err := mapFn(ctx, i)
				values[i] = v
				errs[i] = err
				if err != nil {
					cancel()
				}
			}
		}()
	}

	go func() {
		defer close(indices)
		for i := 0; i < n; i++ {
			select {
			case indices <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			return nil, fmt.Errorf("mrtask: map phase failed: %w", errs[i])
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var (
		acc     any
		started bool
	)
	for i := 0; i < n; i++ {
		if !started {
			acc = values[i]
			started = true
			continue
		}
		acc = reduceFn(acc, values[i])
	}
	return acc, nil
}
