package native

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"golang.org/x/exp/constraints"

	"github.com/vishal-h/explorer/internal/column"
	"github.com/vishal-h/explorer/internal/dtype"
	dferrors "github.com/vishal-h/explorer/internal/errors"
	"github.com/vishal-h/explorer/internal/expr"
)

// number is the set of canonical numeric representations.
type number interface {
	constraints.Integer | constraints.Float
}

// vector is a numeric column in canonical form with its validity.
type vector[T number] struct {
	values []T
	valid  []bool
}

func toVector[T number](values []any, conv func(any) T) vector[T] {
	v := vector[T]{values: make([]T, len(values)), valid: make([]bool, len(values))}
	for i, x := range values {
		if x == nil {
			continue
		}
		v.values[i] = conv(x)
		v.valid[i] = true
	}
	return v
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case uint64:
		return int64(x)
	case float64:
		return int64(x)
	case bool:
		if x {
			return 1
		}
	}
	return 0
}

func asUint64(v any) uint64 {
	switch x := v.(type) {
	case uint64:
		return x
	case int64:
		return uint64(x)
	case bool:
		if x {
			return 1
		}
	}
	return 0
}

func asFloat64(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case bool:
		if x {
			return 1
		}
	}
	return 0
}

// window evaluates a window function, restarting it for every partition.
func (ev *evaluator) window(w *expr.Window) (arrow.Array, error) {
	arg, err := ev.eval(w.Arg)
	if err != nil {
		return nil, err
	}
	defer arg.Release()

	argType, err := dtype.FromArrow(arg.DataType())
	if err != nil {
		return nil, err
	}
	outType := argType
	switch w.Fn {
	case expr.WinCumSum, expr.WinRollingSum:
		outType, _ = dtype.SumType(argType)
	case expr.WinRollingMean:
		outType = dtype.Float64
	}

	partitions := [][]int{allRows(ev.n)}
	if len(w.PartitionBy) > 0 {
		keys := make([]arrow.Array, len(w.PartitionBy))
		for i, name := range w.PartitionBy {
			if keys[i], err = columnByName(ev.rec, name); err != nil {
				return nil, err
			}
		}
		ids, firsts := groupRows(keys, ev.n)
		partitions = groupMembers(ids, len(firsts))
	}

	values := column.Values(arg)
	out := make([]any, ev.n)
	for _, rows := range partitions {
		if err := ev.ctx.Err(); err != nil {
			return nil, err
		}
		part := make([]any, len(rows))
		for i, r := range rows {
			part[i] = values[r]
		}
		res, err := windowValues(w, part, outType)
		if err != nil {
			return nil, err
		}
		for i, r := range rows {
			out[r] = res[i]
		}
	}
	return column.Build(ev.b.mem, outType, out)
}

func allRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

// windowValues computes w over one partition in canonical form.
func windowValues(w *expr.Window, values []any, out dtype.DType) ([]any, error) {
	if w.Fn == expr.WinShift {
		return shiftValues(values, w.Offset), nil
	}
	if w.Fn == expr.WinRollingMean {
		return windowOf(toVector(values, asFloat64), w.Fn, w.Size), nil
	}
	switch {
	case out.IsNull():
		return make([]any, len(values)), nil
	case out.IsFloat():
		return windowOf(toVector(values, asFloat64), w.Fn, w.Size), nil
	case out.IsUnsigned():
		return windowOf(toVector(values, asUint64), w.Fn, w.Size), nil
	case out.IsSigned():
		return windowOf(toVector(values, asInt64), w.Fn, w.Size), nil
	default:
		return nil, dferrors.NewTypeError("Evaluate", expr.OutputName(w), fmt.Sprintf("%s is not defined for %s", w.Fn, out))
	}
}

func windowOf[T number](v vector[T], fn expr.WindowFunc, size int) []any {
	switch fn {
	case expr.WinCumSum:
		return cumulative(v, func(acc, x T) T { return acc + x })
	case expr.WinCumMin:
		return cumulative(v, func(acc, x T) T { return min(acc, x) })
	case expr.WinCumMax:
		return cumulative(v, func(acc, x T) T { return max(acc, x) })
	case expr.WinRollingSum:
		return rolling(v, size, func(frame []T) any { return sumSlice(frame) })
	case expr.WinRollingMean:
		return rolling(v, size, func(frame []T) any { return float64(sumSlice(frame)) / float64(len(frame)) })
	case expr.WinRollingMin:
		return rolling(v, size, func(frame []T) any { return minSlice(frame) })
	default:
		return rolling(v, size, func(frame []T) any { return maxSlice(frame) })
	}
}

// cumulative folds the valid values seen so far; missing rows stay missing.
func cumulative[T number](v vector[T], fold func(acc, x T) T) []any {
	out := make([]any, len(v.values))
	var acc T
	seen := false
	for i, x := range v.values {
		if !v.valid[i] {
			continue
		}
		if !seen {
			acc, seen = x, true
		} else {
			acc = fold(acc, x)
		}
		out[i] = acc
	}
	return out
}

// rolling applies reduce to the trailing frame of size rows. A frame with
// fewer than size valid values yields a missing row.
func rolling[T number](v vector[T], size int, reduce func(frame []T) any) []any {
	out := make([]any, len(v.values))
	frame := make([]T, 0, size)
	for i := range v.values {
		if i+1 < size {
			continue
		}
		frame = frame[:0]
		for j := i + 1 - size; j <= i; j++ {
			if v.valid[j] {
				frame = append(frame, v.values[j])
			}
		}
		if len(frame) < size {
			continue
		}
		out[i] = reduce(frame)
	}
	return out
}

func sumSlice[T number](xs []T) T {
	var total T
	for _, x := range xs {
		total += x
	}
	return total
}

func minSlice[T number](xs []T) T {
	m := xs[0]
	for _, x := range xs[1:] {
		m = min(m, x)
	}
	return m
}

func maxSlice[T number](xs []T) T {
	m := xs[0]
	for _, x := range xs[1:] {
		m = max(m, x)
	}
	return m
}

// shiftValues moves values down by offset rows (up when negative).
func shiftValues(values []any, offset int) []any {
	out := make([]any, len(values))
	for i := range values {
		j := i - offset
		if j >= 0 && j < len(values) {
			out[i] = values[j]
		}
	}
	return out
}
