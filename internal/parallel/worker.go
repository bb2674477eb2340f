// Package parallel provides bounded fan-out for backend kernels.
//
// Work items run on at most Workers() goroutines. Results keep the order of
// the inputs, the first failure cancels the remaining items and no goroutine
// outlives a call.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// WorkerPool bounds the concurrency of Process calls. It holds no
// goroutines between calls and needs no shutdown.
type WorkerPool struct {
	numWorkers int
}

// NewWorkerPool creates a new worker pool. A non-positive count selects
// runtime.NumCPU().
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &WorkerPool{numWorkers: numWorkers}
}

// Workers returns the concurrency limit.
func (wp *WorkerPool) Workers() int {
	return wp.numWorkers
}

// ProcessIndexed runs worker on every item and returns the results in input
// order. The context passed to worker is cancelled as soon as one item
// fails or ctx is done; the first error is returned.
func ProcessIndexed[T, R any](
	ctx context.Context,
	wp *WorkerPool,
	items []T,
	worker func(context.Context, int, T) (R, error),
) ([]R, error) {
	if len(items) == 0 {
		return nil, ctx.Err()
	}

	results := make([]R, len(items))
	if wp.numWorkers == 1 || len(items) == 1 {
		for i, item := range items {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r, err := worker(ctx, i, item)
			if err != nil {
				return nil, err
			}
			results[i] = r
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(wp.numWorkers)
	for i, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := worker(gctx, i, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Process is ProcessIndexed for workers that do not need the index.
func Process[T, R any](
	ctx context.Context,
	wp *WorkerPool,
	items []T,
	worker func(context.Context, T) (R, error),
) ([]R, error) {
	return ProcessIndexed(ctx, wp, items, func(ctx context.Context, _ int, item T) (R, error) {
		return worker(ctx, item)
	})
}
