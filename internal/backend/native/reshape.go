package native

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/vishal-h/explorer/internal/backend"
	"github.com/vishal-h/explorer/internal/column"
	"github.com/vishal-h/explorer/internal/dtype"
	dferrors "github.com/vishal-h/explorer/internal/errors"
	"github.com/vishal-h/explorer/internal/plan"
)

// Concat stacks records by rows or places them side by side.
func (b *Backend) Concat(ctx context.Context, recs []arrow.Record, how plan.ConcatHow, out *dtype.Schema) (arrow.Record, error) {
	var rows int64
	for _, r := range recs {
		rows += r.NumRows()
	}
	return b.track("Concat", rows, func() (arrow.Record, error) {
		return b.concat(b.computeCtx(ctx), recs, how, out)
	})
}

func (b *Backend) concat(ctx context.Context, recs []arrow.Record, how plan.ConcatHow, out *dtype.Schema) (arrow.Record, error) {
	if err := backend.Check(ctx, "Concat"); err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, dferrors.NewInvalidInputError("Concat", "at least one input is required")
	}

	if how == plan.ConcatColumns {
		n := recs[0].NumRows()
		var cols []arrow.Array
		for _, r := range recs {
			if r.NumRows() != n {
				return nil, dferrors.NewShapeError("Concat",
					fmt.Sprintf("inputs have %d and %d rows", n, r.NumRows()))
			}
			cols = append(cols, r.Columns()...)
		}
		return array.NewRecord(out.ToArrow(), cols, n), nil
	}

	var rows int64
	for _, r := range recs {
		rows += r.NumRows()
	}
	cols, err := b.each(ctx, b.parallel(rows) && out.Len() > 1, out.Len(), func(ctx context.Context, i int) (arrow.Array, error) {
		f := out.Field(i)
		parts := make([]arrow.Array, 0, len(recs))
		defer func() { column.ReleaseAll(parts) }()
		for _, r := range recs {
			col, err := columnByName(r, f.Name)
			if err != nil {
				return nil, err
			}
			cast, err := castArray(ctx, b.mem, col, f.Type)
			if err != nil {
				return nil, err
			}
			parts = append(parts, cast)
		}
		return array.Concatenate(parts, b.mem)
	})
	if err != nil {
		return nil, err
	}
	defer column.ReleaseAll(cols)
	return array.NewRecord(out.ToArrow(), cols, rows), nil
}

// Distinct keeps the first row of every distinct combination of cols.
func (b *Backend) Distinct(ctx context.Context, rec arrow.Record, cols []string, keepAll bool) (arrow.Record, error) {
	return b.track("Distinct", rec.NumRows(), func() (arrow.Record, error) {
		return b.distinct(b.computeCtx(ctx), rec, cols, keepAll)
	})
}

func (b *Backend) distinct(ctx context.Context, rec arrow.Record, cols []string, keepAll bool) (arrow.Record, error) {
	if err := backend.Check(ctx, "Distinct"); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		for _, f := range rec.Schema().Fields() {
			cols = append(cols, f.Name)
		}
		keepAll = true
	}
	keys, err := columnsByName(rec, cols)
	if err != nil {
		return nil, err
	}
	_, firsts := groupRows(keys, int(rec.NumRows()))
	if keepAll {
		return b.takeRows(ctx, rec, firsts)
	}
	subset, err := selectColumns(rec, cols)
	if err != nil {
		return nil, err
	}
	defer subset.Release()
	return b.takeRows(ctx, subset, firsts)
}

// Pivot reshapes rec from long to wide.
func (b *Backend) Pivot(ctx context.Context, rec arrow.Record, spec backend.PivotSpec) (arrow.Record, error) {
	return b.track("Pivot", rec.NumRows(), func() (arrow.Record, error) {
		return b.pivot(b.computeCtx(ctx), rec, spec)
	})
}

func (b *Backend) pivot(ctx context.Context, rec arrow.Record, spec backend.PivotSpec) (arrow.Record, error) {
	if err := backend.Check(ctx, "Pivot"); err != nil {
		return nil, err
	}
	n := int(rec.NumRows())
	index, err := columnsByName(rec, spec.Index)
	if err != nil {
		return nil, err
	}
	namesCol, err := columnByName(rec, spec.NamesFrom)
	if err != nil {
		return nil, err
	}
	valuesCol, err := columnByName(rec, spec.ValuesFrom)
	if err != nil {
		return nil, err
	}
	valueType, err := dtype.FromArrow(valuesCol.DataType())
	if err != nil {
		return nil, err
	}

	groups, firsts := groupRows(index, n)
	names, nameFirsts := groupRows([]arrow.Array{namesCol}, n)

	// cells[name][group] is the first row holding that combination.
	cells := make([][]int, len(nameFirsts))
	for k := range cells {
		cells[k] = make([]int, len(firsts))
		for g := range cells[k] {
			cells[k][g] = -1
		}
	}
	for row := 0; row < n; row++ {
		if cells[names[row]][groups[row]] < 0 {
			cells[names[row]][groups[row]] = row
		}
	}

	indexOut, err := b.gather(ctx, index, firsts)
	if err != nil {
		return nil, err
	}
	defer column.ReleaseAll(indexOut)
	valueOut, err := b.each(ctx, b.parallel(rec.NumRows()) && len(cells) > 1, len(cells), func(ctx context.Context, k int) (arrow.Array, error) {
		idx := b.indexArray(cells[k])
		defer idx.Release()
		return takeArray(ctx, valuesCol, idx)
	})
	if err != nil {
		return nil, err
	}
	defer column.ReleaseAll(valueOut)

	fields := make([]dtype.Field, 0, len(index)+len(nameFirsts))
	for i, name := range spec.Index {
		t, err := dtype.FromArrow(index[i].DataType())
		if err != nil {
			return nil, err
		}
		fields = append(fields, dtype.Field{Name: name, Type: t})
	}
	for _, row := range nameFirsts {
		fields = append(fields, dtype.Field{Name: spec.NamesPrefix + column.Format(column.Value(namesCol, row)), Type: valueType})
	}
	schema, err := dtype.NewSchema(fields...)
	if err != nil {
		return nil, dferrors.Reframe(err, "Pivot", spec.NamesFrom)
	}
	cols := append(append([]arrow.Array(nil), indexOut...), valueOut...)
	return array.NewRecord(schema.ToArrow(), cols, int64(len(firsts))), nil
}
