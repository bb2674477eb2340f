package explorer

import (
	"context"

	dferrors "github.com/vishal-h/explorer/internal/errors"
)

// DefaultBatchSize is the number of rows per batch when none is given.
const DefaultBatchSize = 1000

// Pipeline transforms the plan of one batch.
type Pipeline func(*LazyFrame) *LazyFrame

// BatchProcessor runs a lazy pipeline over a frame one batch of rows at a
// time, bounding the size of every intermediate result.
//
// Batches are independent: only row-wise pipelines (filters, projections,
// element-wise mutations) produce the same rows as running the pipeline
// over the whole frame. Aggregations and windows see one batch at a time.
type BatchProcessor struct {
	batchSize int64
	pipeline  Pipeline
}

// NewBatchProcessor creates a processor running pipeline over batches of
// batchSize rows. A non-positive size selects DefaultBatchSize; a nil
// pipeline passes batches through.
func NewBatchProcessor(batchSize int, pipeline Pipeline) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if pipeline == nil {
		pipeline = func(lf *LazyFrame) *LazyFrame { return lf }
	}
	return &BatchProcessor{batchSize: int64(batchSize), pipeline: pipeline}
}

// Each runs the pipeline over every batch of df in order and hands each
// result to sink, releasing it once sink returns. A frame without rows is
// processed as one empty batch. The first error stops processing.
func (p *BatchProcessor) Each(ctx context.Context, df *DataFrame, sink func(*DataFrame) error) error {
	rows := df.NumRows()
	for offset := int64(0); ; offset += p.batchSize {
		if err := ctx.Err(); err != nil {
			return dferrors.NewCancelledError("ProcessBatches", err)
		}
		out, err := p.run(ctx, df, offset)
		if err != nil {
			return err
		}
		err = sink(out)
		out.Release()
		if err != nil {
			return err
		}
		if offset+p.batchSize >= rows {
			return nil
		}
	}
}

func (p *BatchProcessor) run(ctx context.Context, df *DataFrame, offset int64) (*DataFrame, error) {
	batch, err := df.Slice(ctx, offset, p.batchSize)
	if err != nil {
		return nil, err
	}
	defer batch.Release()
	return p.pipeline(batch.Lazy()).Collect(ctx)
}

// Process runs the pipeline over every batch of df and stacks the results
// by rows.
func (p *BatchProcessor) Process(ctx context.Context, df *DataFrame) (*DataFrame, error) {
	var parts []*DataFrame
	defer func() {
		for _, part := range parts {
			part.Release()
		}
	}()
	err := p.Each(ctx, df, func(out *DataFrame) error {
		out.Retain()
		parts = append(parts, out)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(parts) == 1 {
		parts[0].Retain()
		return parts[0], nil
	}
	return Concat(ctx, ConcatRows, parts...)
}
