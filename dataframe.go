package explorer

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/vishal-h/explorer/internal/dataframe"
	"github.com/vishal-h/explorer/internal/series"
)

// DataFrame is an immutable table of equally long, uniquely named series.
//
// Every operation returns a new DataFrame sharing unchanged columns with
// its input. Release a DataFrame when done with it.
type DataFrame struct {
	df *dataframe.DataFrame
}

func wrapFrame(df *dataframe.DataFrame, err error) (*DataFrame, error) {
	if err != nil {
		return nil, err
	}
	return &DataFrame{df}, nil
}

// NewDataFrame assembles a DataFrame from series of one backend. A frame
// without columns is created on the backend selected by ctx. Every problem
// found (duplicate names, unequal lengths, series of another backend) is
// reported together.
func NewDataFrame(ctx context.Context, cols ...*Series) (*DataFrame, error) {
	var b Backend
	if len(cols) > 0 {
		b = cols[0].Backend()
	} else {
		var err error
		if b, err = resolve(ctx, nil); err != nil {
			return nil, err
		}
	}
	inner := make([]*series.Series, len(cols))
	for i, c := range cols {
		inner[i] = c.s
	}
	return wrapFrame(dataframe.New(ctx, b, inner...))
}

// FromRecord wraps an Arrow record. The DataFrame takes its own reference.
func FromRecord(ctx context.Context, rec arrow.Record, opts ...Option) (*DataFrame, error) {
	b, err := resolve(ctx, opts)
	if err != nil {
		return nil, err
	}
	return wrapFrame(dataframe.FromRecord(b, rec))
}

func (d *DataFrame) Schema() *Schema         { return d.df.Schema() }
func (d *DataFrame) Names() []string         { return d.df.Names() }
func (d *DataFrame) Dtypes() []DType         { return d.df.Dtypes() }
func (d *DataFrame) NumRows() int64          { return d.df.NumRows() }
func (d *DataFrame) NumCols() int            { return d.df.NumCols() }
func (d *DataFrame) HasColumn(n string) bool { return d.df.HasColumn(n) }
func (d *DataFrame) Backend() Backend        { return d.df.Backend() }

// Shape returns the number of rows and columns.
func (d *DataFrame) Shape() (rows int64, cols int) { return d.df.Shape() }

// Record returns the underlying Arrow record, valid while d is.
func (d *DataFrame) Record() arrow.Record { return d.df.Record() }

// Row returns row i keyed by column name.
func (d *DataFrame) Row(i int) map[string]any { return d.df.Row(i) }

func (d *DataFrame) Retain()  { d.df.Retain() }
func (d *DataFrame) Release() { d.df.Release() }

func (d *DataFrame) String() string { return d.df.String() }

// Pull extracts one column as a series sharing the frame's buffers.
func (d *DataFrame) Pull(name string) (*Series, error) {
	return wrapSeries(d.df.Pull(name))
}

// Select keeps the named columns in the given order.
func (d *DataFrame) Select(ctx context.Context, names ...string) (*DataFrame, error) {
	return wrapFrame(d.df.Select(ctx, names...))
}

// Drop removes the named columns.
func (d *DataFrame) Drop(ctx context.Context, names ...string) (*DataFrame, error) {
	return wrapFrame(d.df.Drop(ctx, names...))
}

// Rename renames columns, keeping their position.
func (d *DataFrame) Rename(pairs ...RenamePair) (*DataFrame, error) {
	return wrapFrame(d.df.Rename(pairs...))
}

// Filter keeps the rows for which predicate is true.
func (d *DataFrame) Filter(ctx context.Context, predicate Expr) (*DataFrame, error) {
	return wrapFrame(d.df.Filter(ctx, predicate.e))
}

// FilterMask keeps the rows where mask is true.
func (d *DataFrame) FilterMask(ctx context.Context, mask *Series) (*DataFrame, error) {
	return wrapFrame(d.df.FilterMask(ctx, mask.s))
}

// Mutate adds or replaces columns computed from row-wise expressions.
func (d *DataFrame) Mutate(ctx context.Context, exprs ...Expr) (*DataFrame, error) {
	return wrapFrame(d.df.Mutate(ctx, unwrapExprs(exprs)...))
}

func (d *DataFrame) Slice(ctx context.Context, offset, length int64) (*DataFrame, error) {
	return wrapFrame(d.df.Slice(ctx, offset, length))
}

func (d *DataFrame) Head(ctx context.Context, n int64) (*DataFrame, error) {
	return wrapFrame(d.df.Head(ctx, n))
}

func (d *DataFrame) Tail(ctx context.Context, n int64) (*DataFrame, error) {
	return wrapFrame(d.df.Tail(ctx, n))
}

// Sort orders rows by keys; ties keep their input order.
func (d *DataFrame) Sort(ctx context.Context, keys ...SortKey) (*DataFrame, error) {
	return wrapFrame(d.df.Sort(ctx, keys...))
}

// GroupBy groups rows by the key columns for Agg.
func (d *DataFrame) GroupBy(keys ...string) *GroupBy {
	return &GroupBy{d.df.GroupBy(keys...)}
}

// Summarise aggregates the whole frame into one row.
func (d *DataFrame) Summarise(ctx context.Context, aggs ...Expr) (*DataFrame, error) {
	return wrapFrame(d.df.Summarise(ctx, unwrapExprs(aggs)...))
}

// Join combines d with right according to spec. Right-hand columns whose
// names collide get spec.Suffix, "_right" by default.
func (d *DataFrame) Join(ctx context.Context, right *DataFrame, spec JoinSpec) (*DataFrame, error) {
	return wrapFrame(d.df.Join(ctx, right.df, spec))
}

// Distinct keeps the first row of every distinct combination of columns.
func (d *DataFrame) Distinct(ctx context.Context, columns []string, keepAll bool) (*DataFrame, error) {
	return wrapFrame(d.df.Distinct(ctx, columns, keepAll))
}

// Pivot reshapes d from long to wide.
func (d *DataFrame) Pivot(ctx context.Context, spec PivotSpec) (*DataFrame, error) {
	return wrapFrame(d.df.Pivot(ctx, spec))
}

// Transfer copies d to target.
func (d *DataFrame) Transfer(ctx context.Context, target Backend) (*DataFrame, error) {
	return wrapFrame(d.df.Transfer(ctx, target))
}

// Lazy starts a lazy plan reading d. Keep d alive until the last Collect.
func (d *DataFrame) Lazy() *LazyFrame { return &LazyFrame{d.df.Lazy()} }

// Concat stacks frames of one backend by rows or by columns.
func Concat(ctx context.Context, how ConcatHow, frames ...*DataFrame) (*DataFrame, error) {
	inner := make([]*dataframe.DataFrame, len(frames))
	for i, f := range frames {
		inner[i] = f.df
	}
	return wrapFrame(dataframe.Concat(ctx, how, inner...))
}

// GroupBy is a DataFrame grouped by key columns.
type GroupBy struct {
	g *dataframe.GroupedFrame
}

// Keys returns the grouping columns.
func (g *GroupBy) Keys() []string { return g.g.Keys() }

// Agg computes one row per group: the keys followed by every aggregation.
func (g *GroupBy) Agg(ctx context.Context, aggs ...Expr) (*DataFrame, error) {
	return wrapFrame(g.g.Agg(ctx, unwrapExprs(aggs)...))
}
