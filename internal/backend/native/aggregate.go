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
	"github.com/vishal-h/explorer/internal/expr"
)

// GroupBy aggregates rec by keys, one output row per group in order of
// first occurrence.
func (b *Backend) GroupBy(ctx context.Context, rec arrow.Record, keys []string, aggs []expr.Expr, out *dtype.Schema) (arrow.Record, error) {
	return b.track("GroupBy", rec.NumRows(), func() (arrow.Record, error) {
		return b.groupBy(b.computeCtx(ctx), rec, keys, aggs, out)
	})
}

func (b *Backend) groupBy(ctx context.Context, rec arrow.Record, keys []string, aggs []expr.Expr, out *dtype.Schema) (arrow.Record, error) {
	if err := backend.Check(ctx, "GroupBy"); err != nil {
		return nil, err
	}
	n := int(rec.NumRows())
	keyCols := make([]arrow.Array, len(keys))
	for i, k := range keys {
		var err error
		if keyCols[i], err = columnByName(rec, k); err != nil {
			return nil, err
		}
	}

	var members [][]int
	var firsts []int
	if len(keys) == 0 {
		// A summary over no keys yields exactly one row, even for no input.
		members = [][]int{allRows(n)}
	} else {
		var ids []int
		ids, firsts = groupRows(keyCols, n)
		members = groupMembers(ids, len(firsts))
	}

	keyOut, err := b.gather(ctx, keyCols, firsts)
	if err != nil {
		return nil, err
	}
	defer column.ReleaseAll(keyOut)

	aggOut, err := b.each(ctx, b.parallel(rec.NumRows()) && len(aggs) > 1, len(aggs), func(ctx context.Context, i int) (arrow.Array, error) {
		return b.aggregate(ctx, rec, aggs[i], members, out.Field(len(keys)+i).Type)
	})
	if err != nil {
		return nil, err
	}
	defer column.ReleaseAll(aggOut)

	cols := append(append([]arrow.Array(nil), keyOut...), aggOut...)
	return array.NewRecord(out.ToArrow(), cols, int64(len(members))), nil
}

// aggregate evaluates one aggregation for every group.
func (b *Backend) aggregate(ctx context.Context, rec arrow.Record, e expr.Expr, groups [][]int, out dtype.DType) (arrow.Array, error) {
	if a, ok := e.(*expr.Alias); ok {
		e = a.Arg
	}
	agg, ok := e.(*expr.Agg)
	if !ok {
		return nil, dferrors.NewTypeError("GroupBy", expr.OutputName(e), fmt.Sprintf("%s is not an aggregation", e))
	}
	arg, err := b.evaluator(ctx, rec).eval(agg.Arg)
	if err != nil {
		return nil, err
	}
	defer arg.Release()

	values := column.Values(arg)
	results := make([]any, len(groups))
	for g, rows := range groups {
		if g%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		group := make([]any, len(rows))
		for i, r := range rows {
			group[i] = values[r]
		}
		results[g] = reduce(agg.Fn, group, out)
	}
	return column.Build(b.mem, out, results)
}

// reduce computes one aggregate of canonical values.
func reduce(fn expr.AggFunc, values []any, out dtype.DType) any {
	switch fn {
	case expr.AggSum:
		switch {
		case out.IsFloat():
			return sumValid(toVector(values, asFloat64))
		case out.IsUnsigned():
			return sumValid(toVector(values, asUint64))
		default:
			return sumValid(toVector(values, asInt64))
		}
	case expr.AggMean:
		v := toVector(values, asFloat64)
		total, count := 0.0, 0
		for i, x := range v.values {
			if v.valid[i] {
				total += x
				count++
			}
		}
		if count == 0 {
			return nil
		}
		return total / float64(count)
	case expr.AggMin, expr.AggMax:
		var best any
		for _, x := range values {
			if x == nil {
				continue
			}
			if best == nil {
				best = x
				continue
			}
			c := compareValues(x, best)
			if (fn == expr.AggMin && c < 0) || (fn == expr.AggMax && c > 0) {
				best = x
			}
		}
		return best
	case expr.AggCount:
		var count int64
		for _, x := range values {
			if x != nil {
				count++
			}
		}
		return count
	case expr.AggNUnique:
		table := newKeyTable(len(values))
		var key []byte
		for _, x := range values {
			key = appendValue(key[:0], x)
			table.insert(key)
		}
		return int64(table.len())
	case expr.AggFirst:
		if len(values) == 0 {
			return nil
		}
		return values[0]
	case expr.AggLast:
		if len(values) == 0 {
			return nil
		}
		return values[len(values)-1]
	default:
		return nil
	}
}

// sumValid adds the valid values; an empty sum is zero.
func sumValid[T number](v vector[T]) T {
	var total T
	for i, x := range v.values {
		if v.valid[i] {
			total += x
		}
	}
	return total
}
