package native

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"

	"github.com/vishal-h/explorer/internal/backend"
	"github.com/vishal-h/explorer/internal/column"
	"github.com/vishal-h/explorer/internal/dtype"
	dferrors "github.com/vishal-h/explorer/internal/errors"
	"github.com/vishal-h/explorer/internal/expr"
)

// Evaluate computes a row-wise or window expression over rec.
func (b *Backend) Evaluate(ctx context.Context, rec arrow.Record, e expr.Expr) (arrow.Array, error) {
	if err := backend.Check(ctx, "Evaluate"); err != nil {
		return nil, err
	}
	ev := b.evaluator(b.computeCtx(ctx), rec)
	arr, err := ev.eval(e)
	if err != nil {
		return nil, backend.Fail("Evaluate", err)
	}
	return arr, nil
}

// WithColumns evaluates exprs and assembles the out schema from the
// results and the untouched input columns.
func (b *Backend) WithColumns(ctx context.Context, rec arrow.Record, exprs []expr.Expr, out *dtype.Schema) (arrow.Record, error) {
	return b.track("WithColumns", rec.NumRows(), func() (arrow.Record, error) {
		return b.withColumns(b.computeCtx(ctx), rec, exprs, out)
	})
}

func (b *Backend) withColumns(ctx context.Context, rec arrow.Record, exprs []expr.Expr, out *dtype.Schema) (arrow.Record, error) {
	if err := backend.Check(ctx, "WithColumns"); err != nil {
		return nil, err
	}
	produced, err := b.each(ctx, b.parallel(rec.NumRows()) && len(exprs) > 1, len(exprs), func(ctx context.Context, i int) (arrow.Array, error) {
		return b.evaluator(ctx, rec).eval(exprs[i])
	})
	if err != nil {
		return nil, err
	}
	defer column.ReleaseAll(produced)

	byName := make(map[string]arrow.Array, len(exprs))
	for i, e := range exprs {
		byName[expr.OutputName(e)] = produced[i]
	}
	cols := make([]arrow.Array, out.Len())
	for i, f := range out.Fields() {
		if arr, ok := byName[f.Name]; ok {
			cols[i] = arr
			continue
		}
		if cols[i], err = columnByName(rec, f.Name); err != nil {
			return nil, err
		}
	}
	return array.NewRecord(out.ToArrow(), cols, rec.NumRows()), nil
}

type evaluator struct {
	b   *Backend
	ctx context.Context
	rec arrow.Record
	n   int
}

func (b *Backend) evaluator(ctx context.Context, rec arrow.Record) *evaluator {
	return &evaluator{b: b, ctx: ctx, rec: rec, n: int(rec.NumRows())}
}

// eval returns an array of n rows owned by the caller.
func (ev *evaluator) eval(e expr.Expr) (arrow.Array, error) {
	if err := ev.ctx.Err(); err != nil {
		return nil, err
	}
	switch x := e.(type) {
	case *expr.Column:
		arr, err := columnByName(ev.rec, x.Name)
		if err != nil {
			return nil, err
		}
		arr.Retain()
		return arr, nil
	case *expr.Literal:
		return column.Repeat(ev.b.mem, x.DType, x.Value, ev.n)
	case *expr.Alias:
		return ev.eval(x.Arg)
	case *expr.Cast:
		arg, err := ev.eval(x.Arg)
		if err != nil {
			return nil, err
		}
		defer arg.Release()
		return castArray(ev.ctx, ev.b.mem, arg, x.To)
	case *expr.Unary:
		return ev.unary(x)
	case *expr.Binary:
		return ev.binary(x)
	case *expr.Call:
		return ev.call(x)
	case *expr.Window:
		return ev.window(x)
	case *expr.Agg:
		return nil, dferrors.NewTypeError("Evaluate", expr.OutputName(x), "aggregations are evaluated by GroupBy")
	default:
		return nil, dferrors.NewInternalError("Evaluate", fmt.Errorf("unsupported expression %T", e))
	}
}

func (ev *evaluator) unary(u *expr.Unary) (arrow.Array, error) {
	arg, err := ev.eval(u.Operand)
	if err != nil {
		return nil, err
	}
	defer arg.Release()

	switch u.Op {
	case expr.UnaryIsNull, expr.UnaryIsNotNull:
		want := u.Op == expr.UnaryIsNull
		bld := array.NewBooleanBuilder(ev.b.mem)
		defer bld.Release()
		bld.Reserve(arg.Len())
		for i := 0; i < arg.Len(); i++ {
			bld.Append(arg.IsNull(i) == want)
		}
		return bld.NewArray(), nil
	}

	if arg.DataType().ID() == arrow.NULL {
		arg.Retain()
		return arg, nil
	}
	in := compute.NewDatumWithoutOwning(arg)
	switch u.Op {
	case expr.UnaryNeg:
		return unwrap(compute.Negate(ev.ctx, compute.ArithmeticOptions{}, in))
	case expr.UnaryAbs:
		if arrow.IsUnsignedInteger(arg.DataType().ID()) {
			arg.Retain()
			return arg, nil
		}
		return unwrap(compute.AbsoluteValue(ev.ctx, compute.ArithmeticOptions{}, in))
	case expr.UnaryNot:
		return unwrap(compute.CallFunction(ev.ctx, "not", nil, in))
	default:
		return nil, dferrors.NewInternalError("Evaluate", fmt.Errorf("unknown unary operator %d", u.Op))
	}
}

func (ev *evaluator) binary(x *expr.Binary) (arrow.Array, error) {
	l, err := ev.eval(x.Left)
	if err != nil {
		return nil, err
	}
	defer l.Release()
	r, err := ev.eval(x.Right)
	if err != nil {
		return nil, err
	}
	defer r.Release()

	nullOperands := l.DataType().ID() == arrow.NULL || r.DataType().ID() == arrow.NULL
	switch {
	case x.Op.IsArithmetic():
		if nullOperands {
			return array.NewNull(ev.n), nil
		}
		return ev.arithmetic(x.Op, l, r)
	case x.Op.IsComparison():
		if nullOperands {
			return column.Repeat(ev.b.mem, dtype.Boolean, nil, ev.n)
		}
		return ev.compare(x.Op, l, r)
	case x.Op.IsLogical():
		name := "and_kleene"
		if x.Op == expr.OpOr {
			name = "or_kleene"
		}
		return unwrap(compute.CallFunction(ev.ctx, name, nil,
			compute.NewDatumWithoutOwning(l), compute.NewDatumWithoutOwning(r)))
	default:
		return nil, dferrors.NewInternalError("Evaluate", fmt.Errorf("unknown binary operator %d", x.Op))
	}
}

// arithmetic applies + - * / to operands of one numeric type. Integer
// overflow fails; float division by zero follows IEEE 754.
func (ev *evaluator) arithmetic(op expr.BinaryOp, l, r arrow.Array) (arrow.Array, error) {
	opts := compute.ArithmeticOptions{NoCheckOverflow: arrow.IsFloating(l.DataType().ID())}
	ld, rd := compute.NewDatumWithoutOwning(l), compute.NewDatumWithoutOwning(r)
	switch op {
	case expr.OpAdd:
		return unwrap(compute.Add(ev.ctx, opts, ld, rd))
	case expr.OpSub:
		return unwrap(compute.Subtract(ev.ctx, opts, ld, rd))
	case expr.OpMul:
		return unwrap(compute.Multiply(ev.ctx, opts, ld, rd))
	default:
		return unwrap(compute.Divide(ev.ctx, opts, ld, rd))
	}
}

var comparisonFunctions = map[expr.BinaryOp]string{
	expr.OpEq: "equal",
	expr.OpNe: "not_equal",
	expr.OpLt: "less",
	expr.OpLe: "less_equal",
	expr.OpGt: "greater",
	expr.OpGe: "greater_equal",
}

// compare evaluates a comparison. Arrow compute covers numeric, temporal
// and string operands; boolean ordering and categoricals are compared on
// their values.
func (ev *evaluator) compare(op expr.BinaryOp, l, r arrow.Array) (arrow.Array, error) {
	id := l.DataType().ID()
	generic := id == arrow.DICTIONARY || id == arrow.STRUCT || id == arrow.LIST ||
		(id == arrow.BOOL && op != expr.OpEq && op != expr.OpNe)
	if !generic {
		return unwrap(compute.CallFunction(ev.ctx, comparisonFunctions[op], nil,
			compute.NewDatumWithoutOwning(l), compute.NewDatumWithoutOwning(r)))
	}

	bld := array.NewBooleanBuilder(ev.b.mem)
	defer bld.Release()
	bld.Reserve(ev.n)
	for i := 0; i < ev.n; i++ {
		if l.IsNull(i) || r.IsNull(i) {
			bld.AppendNull()
			continue
		}
		c := compareValues(column.Value(l, i), column.Value(r, i))
		bld.Append(holds(op, c))
	}
	return bld.NewArray(), nil
}

func holds(op expr.BinaryOp, c int) bool {
	switch op {
	case expr.OpEq:
		return c == 0
	case expr.OpNe:
		return c != 0
	case expr.OpLt:
		return c < 0
	case expr.OpLe:
		return c <= 0
	case expr.OpGt:
		return c > 0
	default:
		return c >= 0
	}
}

// unwrap turns a compute result into an array owned by the caller.
func unwrap(d compute.Datum, err error) (arrow.Array, error) {
	if err != nil {
		return nil, err
	}
	defer d.Release()
	ad, ok := d.(*compute.ArrayDatum)
	if !ok {
		return nil, fmt.Errorf("unexpected %s result from compute kernel", d.Kind())
	}
	return ad.MakeArray(), nil
}
