// Package native is the in-process backend. It executes operations on
// Arrow records: element-wise kernels are delegated to arrow compute, the
// relational operators (group-by, join, distinct, pivot) use hash tables
// keyed by xxhash, and per-column work fans out over a bounded worker pool
// once a record is large enough.
package native

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/compute/exec"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/vishal-h/explorer/internal/backend"
	"github.com/vishal-h/explorer/internal/column"
	"github.com/vishal-h/explorer/internal/config"
	"github.com/vishal-h/explorer/internal/dtype"
	dferrors "github.com/vishal-h/explorer/internal/errors"
	"github.com/vishal-h/explorer/internal/handle"
	"github.com/vishal-h/explorer/internal/monitoring"
	"github.com/vishal-h/explorer/internal/parallel"
	"github.com/vishal-h/explorer/internal/plan"
)

// Name is the registry name of the native backend.
const Name = "native"

// Backend executes operations in process on Arrow records.
type Backend struct {
	handle  handle.Handle
	mem     memory.Allocator
	cfg     config.Config
	logger  *slog.Logger
	pool    *parallel.WorkerPool
	serial  *parallel.WorkerPool
	metrics *monitoring.MetricsCollector
}

var _ backend.Backend = (*Backend)(nil)

// New creates a native backend instance with a fresh handle.
func New(opts backend.Options) (*Backend, error) {
	cfg := opts.Config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, dferrors.NewInvalidInputError("native.New", err.Error())
	}
	mem := opts.Allocator
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	h := handle.New(Name)
	return &Backend{
		handle:  h,
		mem:     mem,
		cfg:     cfg,
		logger:  logger.With("backend", h.String()),
		pool:    parallel.NewWorkerPool(cfg.Workers()),
		serial:  parallel.NewWorkerPool(1),
		metrics: monitoring.NewMetricsCollector(cfg.MetricsCollection),
	}, nil
}

// Factory creates native backends for the registry.
func Factory(opts backend.Options) (backend.Backend, error) {
	return New(opts)
}

func (b *Backend) Name() string                { return Name }
func (b *Backend) Handle() handle.Handle       { return b.handle }
func (b *Backend) Allocator() memory.Allocator { return b.mem }

// Metrics returns the collector recording this instance's operations. It
// only records when the configuration enables metrics collection.
func (b *Backend) Metrics() *monitoring.MetricsCollector { return b.metrics }

// computeCtx attaches the backend allocator for arrow compute kernels.
func (b *Backend) computeCtx(ctx context.Context) context.Context {
	return exec.WithAllocator(ctx, b.mem)
}

func (b *Backend) parallel(rows int64) bool {
	return rows >= int64(b.cfg.ParallelThreshold) && b.pool.Workers() > 1
}

// track runs fn under the metrics collector and classifies its error.
func (b *Backend) track(op string, rows int64, fn func() (arrow.Record, error)) (arrow.Record, error) {
	rec, err := b.metrics.Track(op, b.parallel(rows), fn)
	if err != nil {
		b.logger.Debug("operation failed", "op", op, "error", err)
		return nil, backend.Fail(op, err)
	}
	return rec, nil
}

// each produces n arrays with fn, concurrently when parallelize is set. If
// any call fails the arrays already produced are released.
func (b *Backend) each(ctx context.Context, parallelize bool, n int, fn func(context.Context, int) (arrow.Array, error)) ([]arrow.Array, error) {
	out := make([]arrow.Array, n)
	pool := b.serial
	if parallelize {
		pool = b.pool
	}
	_, err := parallel.ProcessIndexed(ctx, pool, make([]struct{}, n), func(ctx context.Context, i int, _ struct{}) (struct{}, error) {
		arr, err := fn(ctx, i)
		out[i] = arr
		return struct{}{}, err
	})
	if err != nil {
		column.ReleaseAll(out)
		return nil, err
	}
	return out, nil
}

// FromArrays assembles a record after checking lengths and types.
func (b *Backend) FromArrays(ctx context.Context, schema *dtype.Schema, cols []arrow.Array) (arrow.Record, error) {
	if err := backend.Check(ctx, "FromArrays"); err != nil {
		return nil, err
	}
	if len(cols) != schema.Len() {
		return nil, dferrors.NewShapeError("FromArrays",
			fmt.Sprintf("schema has %d columns, got %d arrays", schema.Len(), len(cols)))
	}
	for i, f := range schema.Fields() {
		if !arrow.TypeEqual(cols[i].DataType(), f.Type.ToArrow()) {
			return nil, dferrors.NewTypeError("FromArrays", f.Name,
				fmt.Sprintf("array of type %s does not match %s", cols[i].DataType(), f.Type))
		}
		if cols[i].Len() != cols[0].Len() {
			return nil, dferrors.NewShapeError("FromArrays",
				fmt.Sprintf("column %s has %d rows, expected %d", f.Name, cols[i].Len(), cols[0].Len()))
		}
	}
	return column.Record(schema, cols), nil
}

// Select keeps the named columns in the given order.
func (b *Backend) Select(ctx context.Context, rec arrow.Record, names []string) (arrow.Record, error) {
	return b.track("Select", rec.NumRows(), func() (arrow.Record, error) {
		if err := backend.Check(ctx, "Select"); err != nil {
			return nil, err
		}
		return selectColumns(rec, names)
	})
}

func selectColumns(rec arrow.Record, names []string) (arrow.Record, error) {
	fields := make([]arrow.Field, len(names))
	cols := make([]arrow.Array, len(names))
	for i, name := range names {
		idx, err := fieldIndex(rec, name)
		if err != nil {
			return nil, err
		}
		fields[i] = rec.Schema().Field(idx)
		cols[i] = rec.Column(idx)
	}
	return array.NewRecord(arrow.NewSchema(fields, nil), cols, rec.NumRows()), nil
}

func fieldIndex(rec arrow.Record, name string) (int, error) {
	idx := rec.Schema().FieldIndices(name)
	if len(idx) == 0 {
		return 0, dferrors.NewColumnNotFoundError("native", name)
	}
	return idx[0], nil
}

func columnByName(rec arrow.Record, name string) (arrow.Array, error) {
	idx, err := fieldIndex(rec, name)
	if err != nil {
		return nil, err
	}
	return rec.Column(idx), nil
}

// Filter keeps the rows where mask is true.
func (b *Backend) Filter(ctx context.Context, rec arrow.Record, mask arrow.Array) (arrow.Record, error) {
	return b.track("Filter", rec.NumRows(), func() (arrow.Record, error) {
		if err := backend.Check(ctx, "Filter"); err != nil {
			return nil, err
		}
		return b.filter(b.computeCtx(ctx), rec, mask)
	})
}

func (b *Backend) filter(ctx context.Context, rec arrow.Record, mask arrow.Array) (arrow.Record, error) {
	if int64(mask.Len()) != rec.NumRows() {
		return nil, dferrors.NewShapeError("Filter",
			fmt.Sprintf("mask has %d rows, frame has %d", mask.Len(), rec.NumRows()))
	}
	var rows []int
	switch m := mask.(type) {
	case *array.Boolean:
		for i := 0; i < m.Len(); i++ {
			if m.IsValid(i) && m.Value(i) {
				rows = append(rows, i)
			}
		}
	case *array.Null:
	default:
		return nil, dferrors.NewTypeError("Filter", "", fmt.Sprintf("mask must be boolean, got %s", mask.DataType()))
	}
	if len(rows) == int(rec.NumRows()) {
		rec.Retain()
		return rec, nil
	}
	return b.takeRows(ctx, rec, rows)
}

// Slice keeps length rows from offset, clamped to the record.
func (b *Backend) Slice(ctx context.Context, rec arrow.Record, offset, length int64) (arrow.Record, error) {
	return b.track("Slice", rec.NumRows(), func() (arrow.Record, error) {
		if err := backend.Check(ctx, "Slice"); err != nil {
			return nil, err
		}
		return sliceRecord(rec, offset, length), nil
	})
}

// sliceRecord shares buffers with rec. A negative offset counts from the end.
func sliceRecord(rec arrow.Record, offset, length int64) arrow.Record {
	n := rec.NumRows()
	if offset < 0 {
		offset = max(n+offset, 0)
	}
	offset = min(offset, n)
	end := min(offset+max(length, 0), n)
	return rec.NewSlice(offset, end)
}

// Take gathers rows by position.
func (b *Backend) Take(ctx context.Context, rec arrow.Record, indices arrow.Array) (arrow.Record, error) {
	return b.track("Take", rec.NumRows(), func() (arrow.Record, error) {
		if err := backend.Check(ctx, "Take"); err != nil {
			return nil, err
		}
		idx, err := toIndices(indices, rec.NumRows())
		if err != nil {
			return nil, err
		}
		return b.takeRows(b.computeCtx(ctx), rec, idx)
	})
}

// toIndices converts an integer array to row positions; missing entries
// become -1. Out-of-range positions are rejected.
func toIndices(indices arrow.Array, n int64) ([]int, error) {
	if !arrow.IsInteger(indices.DataType().ID()) {
		return nil, dferrors.NewTypeError("Take", "", fmt.Sprintf("indices must be integers, got %s", indices.DataType()))
	}
	out := make([]int, indices.Len())
	for i := range out {
		v := column.Value(indices, i)
		if v == nil {
			out[i] = -1
			continue
		}
		var pos int64
		switch x := v.(type) {
		case int64:
			pos = x
		case uint64:
			if x > uint64(n) {
				pos = n
			} else {
				pos = int64(x)
			}
		}
		if pos < 0 || pos >= n {
			return nil, dferrors.NewInvalidInputError("Take", fmt.Sprintf("index %v out of bounds for %d rows", v, n))
		}
		out[i] = int(pos)
	}
	return out, nil
}

// takeRows gathers every column of rec at rows, where -1 yields a missing
// value.
func (b *Backend) takeRows(ctx context.Context, rec arrow.Record, rows []int) (arrow.Record, error) {
	cols, err := b.gather(ctx, rec.Columns(), rows)
	if err != nil {
		return nil, err
	}
	defer column.ReleaseAll(cols)
	return array.NewRecord(rec.Schema(), cols, int64(len(rows))), nil
}

// gather takes rows from every array in cols.
func (b *Backend) gather(ctx context.Context, cols []arrow.Array, rows []int) ([]arrow.Array, error) {
	idx := b.indexArray(rows)
	defer idx.Release()
	return b.each(ctx, b.parallel(int64(len(rows))) && len(cols) > 1, len(cols), func(ctx context.Context, i int) (arrow.Array, error) {
		return takeArray(ctx, cols[i], idx)
	})
}

func (b *Backend) indexArray(rows []int) arrow.Array {
	bld := array.NewInt64Builder(b.mem)
	defer bld.Release()
	bld.Reserve(len(rows))
	for _, r := range rows {
		if r < 0 {
			bld.AppendNull()
			continue
		}
		bld.Append(int64(r))
	}
	return bld.NewArray()
}

// takeArray gathers arr at the positions in idx. Dictionary arrays gather
// their indices and keep the dictionary.
func takeArray(ctx context.Context, arr, idx arrow.Array) (arrow.Array, error) {
	if d, ok := arr.(*array.Dictionary); ok {
		taken, err := compute.TakeArray(ctx, d.Indices(), idx)
		if err != nil {
			return nil, err
		}
		defer taken.Release()
		return array.NewDictionaryArray(d.DataType(), taken, d.Dictionary()), nil
	}
	return compute.TakeArray(ctx, arr, idx)
}

// Schema returns the output schema of a plan this backend can execute.
func (b *Backend) Schema(node plan.Node) (*dtype.Schema, error) {
	if err := b.owns("Schema", node); err != nil {
		return nil, err
	}
	return node.Schema(), nil
}

// Explain renders the plan tree.
func (b *Backend) Explain(node plan.Node) (string, error) {
	if err := b.owns("Explain", node); err != nil {
		return "", err
	}
	return plan.Explain(node), nil
}

func (b *Backend) owns(op string, node plan.Node) error {
	owner, err := plan.Owner(op, node)
	if err != nil {
		return err
	}
	if !owner.IsZero() && !owner.Same(b.handle) {
		return dferrors.NewBackendMismatchError(op, b.handle.String(), owner.String())
	}
	return nil
}
