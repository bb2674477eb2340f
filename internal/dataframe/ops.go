package dataframe

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/vishal-h/explorer/internal/backend"
	"github.com/vishal-h/explorer/internal/column"
	"github.com/vishal-h/explorer/internal/dtype"
	dferrors "github.com/vishal-h/explorer/internal/errors"
	"github.com/vishal-h/explorer/internal/expr"
	"github.com/vishal-h/explorer/internal/plan"
	"github.com/vishal-h/explorer/internal/series"
)

// Select returns a new DataFrame with only the specified columns, in the
// order given.
func (d *DataFrame) Select(ctx context.Context, names ...string) (*DataFrame, error) {
	if _, err := d.schema.Select("Select", names...); err != nil {
		return nil, err
	}
	return d.result("Select")(d.backend.Select(ctx, d.rec, names))
}

// Drop returns a new DataFrame without the named columns.
func (d *DataFrame) Drop(ctx context.Context, names ...string) (*DataFrame, error) {
	kept, err := d.schema.Drop("Drop", names...)
	if err != nil {
		return nil, err
	}
	return d.result("Drop")(d.backend.Select(ctx, d.rec, kept.Names()))
}

// Rename renames columns in place. Buffers are shared with d.
func (d *DataFrame) Rename(pairs ...plan.RenamePair) (*DataFrame, error) {
	schema, err := plan.RenameSchema(d.schema, pairs)
	if err != nil {
		return nil, err
	}
	return &DataFrame{rec: column.Record(schema, d.rec.Columns()), schema: schema, backend: d.backend}, nil
}

// Filter keeps the rows where predicate is true. Rows where it is missing
// are dropped.
func (d *DataFrame) Filter(ctx context.Context, predicate expr.Expr) (*DataFrame, error) {
	scan, err := d.scan()
	if err != nil {
		return nil, err
	}
	f, err := plan.NewFilter(scan, predicate)
	if err != nil {
		return nil, err
	}
	mask, err := d.backend.Evaluate(ctx, d.rec, f.Predicate)
	if err != nil {
		return nil, dferrors.Reframe(backend.Fail("Filter", err), "Filter", "")
	}
	defer mask.Release()
	return d.result("Filter")(d.backend.Filter(ctx, d.rec, mask))
}

// FilterMask keeps the rows where mask is true. The mask is a boolean
// series of the same backend and length.
func (d *DataFrame) FilterMask(ctx context.Context, mask *series.Series) (*DataFrame, error) {
	if !mask.Handle().Same(d.Handle()) {
		return nil, dferrors.NewBackendMismatchError("Filter", d.Handle().String(), mask.Handle().String())
	}
	if int64(mask.Len()) != d.NumRows() {
		return nil, dferrors.NewShapeError("Filter",
			fmt.Sprintf("mask has %d values, frame has %d rows", mask.Len(), d.NumRows()))
	}
	if mask.DType().Kind != dtype.KindBoolean {
		return nil, dferrors.NewTypeError("Filter", mask.Name(),
			fmt.Sprintf("mask must be boolean, got %s", mask.DType()))
	}
	return d.result("Filter")(d.backend.Filter(ctx, d.rec, mask.Array()))
}

// Mutate adds or replaces columns. Every expression sees the columns of d,
// not the ones produced alongside it.
func (d *DataFrame) Mutate(ctx context.Context, exprs ...expr.Expr) (*DataFrame, error) {
	scan, err := d.scan()
	if err != nil {
		return nil, err
	}
	w, err := plan.NewWithColumns(scan, exprs)
	if err != nil {
		return nil, err
	}
	return d.result("Mutate")(d.backend.WithColumns(ctx, d.rec, w.Exprs, w.Schema()))
}

// Slice keeps length rows starting at offset; a negative offset counts from
// the end. Out-of-range bounds are clamped.
func (d *DataFrame) Slice(ctx context.Context, offset, length int64) (*DataFrame, error) {
	if length < 0 {
		return nil, dferrors.NewInvalidInputError("Slice", fmt.Sprintf("length must be non-negative, got %d", length))
	}
	return d.result("Slice")(d.backend.Slice(ctx, d.rec, offset, length))
}

// Head keeps the first n rows.
func (d *DataFrame) Head(ctx context.Context, n int64) (*DataFrame, error) {
	return d.Slice(ctx, 0, n)
}

// Tail keeps the last n rows.
func (d *DataFrame) Tail(ctx context.Context, n int64) (*DataFrame, error) {
	return d.Slice(ctx, max(d.NumRows()-n, 0), n)
}

// Sort orders rows stably by keys.
func (d *DataFrame) Sort(ctx context.Context, keys ...plan.SortKey) (*DataFrame, error) {
	if err := plan.ValidateSortKeys("Sort", d.schema, keys); err != nil {
		return nil, err
	}
	return d.result("Sort")(d.backend.Sort(ctx, d.rec, keys))
}

// GroupedFrame is a DataFrame grouped by key columns, waiting for
// aggregations.
type GroupedFrame struct {
	df   *DataFrame
	keys []string
}

// GroupBy groups rows sharing the same values of keys.
func (d *DataFrame) GroupBy(keys ...string) *GroupedFrame {
	return &GroupedFrame{df: d, keys: append([]string(nil), keys...)}
}

// Keys returns the grouping columns.
func (g *GroupedFrame) Keys() []string { return g.keys }

// Agg computes one row per group holding the keys followed by every
// aggregation. Groups appear in order of first occurrence.
func (g *GroupedFrame) Agg(ctx context.Context, aggs ...expr.Expr) (*DataFrame, error) {
	scan, err := g.df.scan()
	if err != nil {
		return nil, err
	}
	node, err := plan.NewGroupBy(scan, g.keys, aggs)
	if err != nil {
		return nil, err
	}
	return g.df.result("GroupBy")(g.df.backend.GroupBy(ctx, g.df.rec, node.Keys, node.Aggs, node.Schema()))
}

// Summarise aggregates the whole frame into a single row.
func (d *DataFrame) Summarise(ctx context.Context, aggs ...expr.Expr) (*DataFrame, error) {
	return d.GroupBy().Agg(ctx, aggs...)
}

// Join combines d with right. Both frames must belong to the same backend;
// see plan.ResolveJoin for the naming of the output columns.
func (d *DataFrame) Join(ctx context.Context, right *DataFrame, spec plan.JoinSpec) (*DataFrame, error) {
	ls, err := d.scan()
	if err != nil {
		return nil, err
	}
	rs, err := right.scan()
	if err != nil {
		return nil, err
	}
	j, err := plan.NewJoin(ls, rs, spec)
	if err != nil {
		return nil, err
	}
	return d.result("Join")(d.backend.Join(ctx, d.rec, right.rec, j.Spec, j.Schema()))
}

// Concat stacks frames of one backend. Stacking rows needs the same column
// names (in any order) and relaxes differing types to their supertype;
// stacking columns needs disjoint names and equal row counts.
func Concat(ctx context.Context, how plan.ConcatHow, frames ...*DataFrame) (*DataFrame, error) {
	if len(frames) == 0 {
		return nil, dferrors.NewInvalidInputError("Concat", "at least one frame is required")
	}
	nodes := make([]plan.Node, len(frames))
	recs := make([]arrow.Record, len(frames))
	for i, f := range frames {
		scan, err := f.scan()
		if err != nil {
			return nil, err
		}
		nodes[i], recs[i] = scan, f.rec
	}
	c, err := plan.NewConcat(nodes, how)
	if err != nil {
		return nil, err
	}
	if how == plan.ConcatColumns {
		for _, f := range frames[1:] {
			if f.NumRows() != frames[0].NumRows() {
				return nil, dferrors.NewShapeError("Concat",
					fmt.Sprintf("frames have %d and %d rows", frames[0].NumRows(), f.NumRows()))
			}
		}
	}
	return frames[0].result("Concat")(frames[0].backend.Concat(ctx, recs, how, c.Schema()))
}

// Distinct keeps the first row of every distinct combination of columns
// (all columns when none are given). Only those columns are returned unless
// keepAll is set.
func (d *DataFrame) Distinct(ctx context.Context, columns []string, keepAll bool) (*DataFrame, error) {
	scan, err := d.scan()
	if err != nil {
		return nil, err
	}
	node, err := plan.NewDistinct(scan, columns, keepAll)
	if err != nil {
		return nil, err
	}
	return d.result("Distinct")(d.backend.Distinct(ctx, d.rec, node.Subset(), keepAll))
}

// Pivot reshapes d from long to wide. When spec.Index is empty every column
// other than NamesFrom and ValuesFrom identifies a row.
func (d *DataFrame) Pivot(ctx context.Context, spec backend.PivotSpec) (*DataFrame, error) {
	if err := d.schema.Require("Pivot", spec.NamesFrom, spec.ValuesFrom); err != nil {
		return nil, err
	}
	if spec.NamesFrom == spec.ValuesFrom {
		return nil, dferrors.NewInvalidInputError("Pivot", "names and values must come from different columns")
	}
	if len(spec.Index) == 0 {
		for _, name := range d.schema.Names() {
			if name != spec.NamesFrom && name != spec.ValuesFrom {
				spec.Index = append(spec.Index, name)
			}
		}
	}
	if err := d.schema.Require("Pivot", spec.Index...); err != nil {
		return nil, err
	}
	for _, k := range spec.Index {
		if k == spec.NamesFrom || k == spec.ValuesFrom {
			return nil, dferrors.NewValidationError("Pivot", k, "index column is also the names or values column")
		}
	}
	names, _ := d.schema.Lookup(spec.NamesFrom)
	if names.Kind == dtype.KindList || names.Kind == dtype.KindStruct {
		return nil, dferrors.NewTypeError("Pivot", spec.NamesFrom, fmt.Sprintf("cannot take column names from %s", names))
	}
	return d.result("Pivot")(d.backend.Pivot(ctx, d.rec, spec))
}

// Transfer copies d to target. A frame already owned by target is returned
// with a new reference.
func (d *DataFrame) Transfer(ctx context.Context, target backend.Backend) (*DataFrame, error) {
	if target.Handle().Same(d.Handle()) {
		d.Retain()
		return d, nil
	}
	cols := make([]arrow.Array, 0, d.schema.Len())
	defer func() { column.ReleaseAll(cols) }()
	for i, f := range d.schema.Fields() {
		if err := backend.Check(ctx, "Transfer"); err != nil {
			return nil, err
		}
		arr, err := column.Build(target.Allocator(), f.Type, column.Values(d.rec.Column(i)))
		if err != nil {
			return nil, dferrors.Reframe(err, "Transfer", f.Name)
		}
		cols = append(cols, arr)
	}
	rec, err := target.FromArrays(ctx, d.schema, cols)
	return wrap("Transfer", target, rec, err)
}
