package expr_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishal-h/explorer/internal/dtype"
	dferrors "github.com/vishal-h/explorer/internal/errors"
	"github.com/vishal-h/explorer/internal/expr"
)

func testSchema() *dtype.Schema {
	return dtype.MustSchema(
		dtype.Field{Name: "a", Type: dtype.Int64},
		dtype.Field{Name: "small", Type: dtype.Int8},
		dtype.Field{Name: "wide", Type: dtype.Int16},
		dtype.Field{Name: "f", Type: dtype.Float64},
		dtype.Field{Name: "s", Type: dtype.String},
		dtype.Field{Name: "c", Type: dtype.Categorical},
		dtype.Field{Name: "ok", Type: dtype.Boolean},
		dtype.Field{Name: "ts", Type: dtype.Datetime(dtype.Microsecond)},
		dtype.Field{Name: "d", Type: dtype.Date},
	)
}

func boundLit(v any, t dtype.DType) *expr.Literal {
	return &expr.Literal{Value: v, DType: t, Bound: true}
}

func TestString(t *testing.T) {
	tests := []struct {
		expr expr.Expr
		want string
	}{
		{expr.Gt(expr.Col("a"), expr.Lit(1)), "(col(a) > lit(1))"},
		{expr.And(expr.Col("ok"), expr.Not(expr.IsNull(expr.Col("s")))), "(col(ok) and not(is_null(col(s))))"},
		{expr.Eq(expr.Col("s"), expr.Lit("x")), `(col(s) == lit("x"))`},
		{expr.Add(expr.Lit(nil), expr.Lit(2.5)), "(lit(null) + lit(2.5))"},
		{expr.Neg(expr.Col("a")), "-col(a)"},
		{expr.CastTo(expr.Col("a"), dtype.Float64), "cast(col(a), f64)"},
		{expr.As(expr.Sum(expr.Col("a")), "total"), "alias(sum(col(a)), total)"},
		{expr.Contains(expr.Col("s"), "x"), `contains(col(s), lit("x"))`},
		{expr.RollingMean(expr.Col("f"), 3).Over("s"), "rolling_mean(col(f), 3) over [s]"},
		{expr.Shift(expr.Col("a"), -1), "shift(col(a), -1)"},
		{expr.CumSum(expr.Col("a")), "cumulative_sum(col(a))"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.expr.String())
	}
}

func TestLitUnsupportedType(t *testing.T) {
	e := expr.Lit(struct{}{})
	require.Equal(t, expr.ExprInvalid, e.Type())

	_, _, err := expr.Bind("Mutate", e, testSchema())
	assert.ErrorIs(t, err, dferrors.ErrInvalidInput)
}

func TestBind_ColumnNotFound(t *testing.T) {
	_, _, err := expr.Bind("Filter", expr.Gt(expr.Col("missing"), expr.Lit(1)), testSchema())

	var dfErr *dferrors.DataFrameError
	require.ErrorAs(t, err, &dfErr)
	assert.Equal(t, dferrors.KindColumnNotFound, dfErr.Kind)
	assert.Equal(t, "missing", dfErr.Column)
	assert.Equal(t, "Filter", dfErr.Op)
}

func TestBind_LiteralAdoptsColumnType(t *testing.T) {
	bound, typ, err := expr.Bind("Filter", expr.Gt(expr.Col("small"), expr.Lit(1)), testSchema())
	require.NoError(t, err)
	assert.Equal(t, dtype.KindBoolean, typ.Kind)

	want := &expr.Binary{Left: expr.Col("small"), Op: expr.OpGt, Right: boundLit(int64(1), dtype.Int8)}
	assert.Empty(t, cmp.Diff(want, bound))

	// Literal on the left adopts too.
	bound, typ, err = expr.Bind("Mutate", expr.Add(expr.Lit(2), expr.Col("small")), testSchema())
	require.NoError(t, err)
	assert.Equal(t, dtype.KindInt8, typ.Kind)
	want = &expr.Binary{Left: boundLit(int64(2), dtype.Int8), Op: expr.OpAdd, Right: expr.Col("small")}
	assert.Empty(t, cmp.Diff(want, bound))
}

func TestBind_TypeErrors(t *testing.T) {
	tests := []struct {
		name     string
		expr     expr.Expr
		contains string
	}{
		{"literal out of range", expr.Add(expr.Col("small"), expr.Lit(300)), "out of range"},
		{"mixed integer widths", expr.Add(expr.Col("small"), expr.Col("wide")), "explicit cast required"},
		{"string addition", expr.Add(expr.Col("s"), expr.Col("s")), "use concat"},
		{"compare string with int", expr.Eq(expr.Col("s"), expr.Col("a")), "cannot compare"},
		{"and on integers", expr.And(expr.Col("a"), expr.Col("ok")), "boolean operands required"},
		{"aggregation in row context", expr.Gt(expr.Sum(expr.Col("a")), expr.Lit(1)), "only allowed in group-by"},
		{"upcase on int", expr.Upcase(expr.Col("a")), "requires a string argument"},
		{"year on string", expr.Year(expr.Col("s")), "requires a date or datetime"},
		{"bad cast", expr.CastTo(expr.Col("ts"), dtype.Boolean), "cannot cast"},
		{"not on int", expr.Not(expr.Col("a")), "boolean operand"},
		{"cumulative sum of strings", expr.CumSum(expr.Col("s")), "cumulative_sum is not defined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := expr.Bind("Mutate", tt.expr, testSchema())
			require.ErrorIs(t, err, dferrors.ErrType)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Contains(t, err.Error(), "Mutate operation failed")
		})
	}
}

func TestBind_InsertsExplicitCasts(t *testing.T) {
	bound, typ, err := expr.Bind("Mutate", expr.Add(expr.Col("a"), expr.Col("f")), testSchema())
	require.NoError(t, err)
	assert.Equal(t, dtype.KindFloat64, typ.Kind)
	want := &expr.Binary{Left: expr.CastTo(expr.Col("a"), dtype.Float64), Op: expr.OpAdd, Right: expr.Col("f")}
	assert.Empty(t, cmp.Diff(want, bound))

	bound, typ, err = expr.Bind("Mutate", expr.Div(expr.Col("a"), expr.Lit(2)), testSchema())
	require.NoError(t, err)
	assert.Equal(t, dtype.KindFloat64, typ.Kind)
	want = &expr.Binary{
		Left:  expr.CastTo(expr.Col("a"), dtype.Float64),
		Op:    expr.OpDiv,
		Right: boundLit(2.0, dtype.Float64),
	}
	assert.Empty(t, cmp.Diff(want, bound))

	// Comparing at the supertype widens the narrower side.
	bound, _, err = expr.Bind("Filter", expr.Lt(expr.Col("small"), expr.Col("a")), testSchema())
	require.NoError(t, err)
	want = &expr.Binary{Left: expr.CastTo(expr.Col("small"), dtype.Int64), Op: expr.OpLt, Right: expr.Col("a")}
	assert.Empty(t, cmp.Diff(want, bound))
}

func TestBind_NullLiterals(t *testing.T) {
	bound, typ, err := expr.Bind("Mutate", expr.Add(expr.Col("small"), expr.Lit(nil)), testSchema())
	require.NoError(t, err)
	assert.Equal(t, dtype.KindInt8, typ.Kind)
	want := &expr.Binary{Left: expr.Col("small"), Op: expr.OpAdd, Right: boundLit(nil, dtype.Int8)}
	assert.Empty(t, cmp.Diff(want, bound))

	bound, _, err = expr.Bind("Filter", expr.Or(expr.Col("ok"), expr.Lit(nil)), testSchema())
	require.NoError(t, err)
	want = &expr.Binary{Left: expr.Col("ok"), Op: expr.OpOr, Right: boundLit(nil, dtype.Boolean)}
	assert.Empty(t, cmp.Diff(want, bound))
}

func TestBind_StringFunctions(t *testing.T) {
	bound, typ, err := expr.Bind("Filter", expr.Contains(expr.Col("c"), "x"), testSchema())
	require.NoError(t, err)
	assert.Equal(t, dtype.KindBoolean, typ.Kind)
	want := &expr.Call{Fn: expr.FnContains, Args: []expr.Expr{
		expr.CastTo(expr.Col("c"), dtype.String),
		boundLit("x", dtype.String),
	}}
	assert.Empty(t, cmp.Diff(want, bound))

	_, typ, err = expr.Bind("Mutate", expr.Concat(expr.Col("s"), expr.Lit("-"), expr.Col("c")), testSchema())
	require.NoError(t, err)
	assert.Equal(t, dtype.KindString, typ.Kind)

	_, typ, err = expr.Bind("Mutate", expr.Length(expr.Col("s")), testSchema())
	require.NoError(t, err)
	assert.Equal(t, dtype.KindUInt32, typ.Kind)

	_, _, err = expr.Bind("Mutate", &expr.Call{Fn: expr.FnContains, Args: []expr.Expr{expr.Col("s"), expr.Col("s")}}, testSchema())
	assert.ErrorIs(t, err, dferrors.ErrType)
}

func TestBind_DatetimeFunctions(t *testing.T) {
	_, typ, err := expr.Bind("Mutate", expr.Year(expr.Col("d")), testSchema())
	require.NoError(t, err)
	assert.Equal(t, dtype.KindInt32, typ.Kind)

	_, typ, err = expr.Bind("Mutate", expr.Hour(expr.Col("ts")), testSchema())
	require.NoError(t, err)
	assert.Equal(t, dtype.KindInt8, typ.Kind)

	_, _, err = expr.Bind("Mutate", expr.Hour(expr.Col("d")), testSchema())
	assert.ErrorIs(t, err, dferrors.ErrType)
}

func TestBind_Windows(t *testing.T) {
	_, typ, err := expr.Bind("Mutate", expr.CumSum(expr.Col("small")), testSchema())
	require.NoError(t, err)
	assert.Equal(t, dtype.KindInt64, typ.Kind)

	_, typ, err = expr.Bind("Mutate", expr.RollingMean(expr.Col("a"), 2).Over("s"), testSchema())
	require.NoError(t, err)
	assert.Equal(t, dtype.KindFloat64, typ.Kind)

	_, _, err = expr.Bind("Mutate", expr.RollingSum(expr.Col("a"), 0), testSchema())
	assert.ErrorIs(t, err, dferrors.ErrInvalidInput)

	_, _, err = expr.Bind("Mutate", expr.CumMax(expr.Col("a")).Over("nope"), testSchema())
	assert.ErrorIs(t, err, dferrors.ErrColumnNotFound)
}

func TestBind_Idempotent(t *testing.T) {
	exprs := []expr.Expr{
		expr.And(expr.Gt(expr.Col("small"), expr.Lit(1)), expr.Lt(expr.Col("f"), expr.Lit(10))),
		expr.Div(expr.Add(expr.Col("a"), expr.Lit(1)), expr.Col("f")),
		expr.Concat(expr.Col("c"), expr.Lit("!")),
		expr.As(expr.CastTo(expr.Col("small"), dtype.Float32), "x"),
		expr.Shift(expr.Col("a"), 1),
	}
	for _, e := range exprs {
		t.Run(e.String(), func(t *testing.T) {
			once, t1, err := expr.Bind("Mutate", e, testSchema())
			require.NoError(t, err)
			twice, t2, err := expr.Bind("Mutate", once, testSchema())
			require.NoError(t, err)
			assert.True(t, t1.Equal(t2))
			assert.Empty(t, cmp.Diff(once, twice))
		})
	}
}

func TestBindAggregation(t *testing.T) {
	bound, typ, err := expr.BindAggregation("Summarise", expr.As(expr.Sum(expr.Col("small")), "total"), testSchema())
	require.NoError(t, err)
	assert.Equal(t, dtype.KindInt64, typ.Kind)
	assert.Equal(t, "total", expr.OutputName(bound))

	_, typ, err = expr.BindAggregation("Summarise", expr.Mean(expr.Col("a")), testSchema())
	require.NoError(t, err)
	assert.Equal(t, dtype.KindFloat64, typ.Kind)

	_, typ, err = expr.BindAggregation("Summarise", expr.Count(expr.Col("s")), testSchema())
	require.NoError(t, err)
	assert.Equal(t, dtype.KindInt64, typ.Kind)

	_, typ, err = expr.BindAggregation("Summarise", expr.Max(expr.Col("ts")), testSchema())
	require.NoError(t, err)
	assert.Equal(t, dtype.KindDatetime, typ.Kind)

	_, _, err = expr.BindAggregation("Summarise", expr.Col("a"), testSchema())
	assert.ErrorIs(t, err, dferrors.ErrType)

	_, _, err = expr.BindAggregation("Summarise", expr.Sum(expr.Col("s")), testSchema())
	assert.ErrorIs(t, err, dferrors.ErrType)
}

func TestFold(t *testing.T) {
	tests := []struct {
		name string
		in   expr.Expr
		want expr.Expr
	}{
		{
			name: "literal arithmetic",
			in:   expr.Gt(expr.Col("a"), expr.Add(expr.Lit(1), expr.Lit(2))),
			want: &expr.Binary{Left: expr.Col("a"), Op: expr.OpGt, Right: boundLit(int64(3), dtype.Int64)},
		},
		{
			name: "and true",
			in:   expr.And(expr.Col("ok"), expr.Lit(true)),
			want: expr.Col("ok"),
		},
		{
			name: "or false",
			in:   expr.Or(expr.Lit(false), expr.Col("ok")),
			want: expr.Col("ok"),
		},
		{
			name: "and false",
			in:   expr.And(expr.Col("ok"), expr.Lit(false)),
			want: boundLit(false, dtype.Boolean),
		},
		{
			name: "or true",
			in:   expr.Or(expr.Col("ok"), expr.Lit(true)),
			want: boundLit(true, dtype.Boolean),
		},
		{
			name: "comparison of literals",
			in:   expr.Lt(expr.Lit(1.5), expr.Lit(2.5)),
			want: boundLit(true, dtype.Boolean),
		},
		{
			name: "missing operand",
			in:   expr.Add(expr.Col("a"), expr.Mul(expr.Lit(nil), expr.Lit(2))),
			want: &expr.Binary{Left: expr.Col("a"), Op: expr.OpAdd, Right: boundLit(nil, dtype.Int64)},
		},
		{
			name: "negation",
			in:   expr.Neg(expr.Lit(4)),
			want: boundLit(int64(-4), dtype.Int64),
		},
		{
			name: "string equality",
			in:   expr.Eq(expr.Lit("x"), expr.Lit("y")),
			want: boundLit(false, dtype.Boolean),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bound, _, err := expr.Bind("Filter", tt.in, testSchema())
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(tt.want, expr.Fold(bound)))
		})
	}
}

func TestFold_LeavesOverflowToExecution(t *testing.T) {
	in := expr.Add(expr.TypedLit(100, dtype.Int8), expr.TypedLit(100, dtype.Int8))
	bound, _, err := expr.Bind("Mutate", in, testSchema())
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(bound, expr.Fold(bound)))
}

func TestFold_Idempotent(t *testing.T) {
	in := expr.And(expr.Gt(expr.Col("a"), expr.Sub(expr.Lit(10), expr.Lit(4))), expr.Not(expr.Lit(false)))
	bound, _, err := expr.Bind("Filter", in, testSchema())
	require.NoError(t, err)
	once := expr.Fold(bound)
	assert.Equal(t, "(col(a) > lit(6))", once.String())
	assert.Empty(t, cmp.Diff(once, expr.Fold(once)))
}

func TestTypedLit(t *testing.T) {
	e := expr.TypedLit(nil, dtype.Float32)
	assert.Empty(t, cmp.Diff(boundLit(nil, dtype.Float32), e))

	e = expr.TypedLit(300, dtype.Int8)
	assert.Equal(t, expr.ExprInvalid, e.Type())
}

func TestColumnsAndOutputName(t *testing.T) {
	e := expr.As(expr.Add(expr.Col("a"), expr.RollingSum(expr.Col("f"), 2).Over("s")), "out")
	assert.Equal(t, []string{"a", "s", "f"}, expr.Columns(e))
	assert.Equal(t, "out", expr.OutputName(e))
	assert.False(t, expr.IsRowWise(e))

	e2 := expr.Mul(expr.Col("f"), expr.Col("f"))
	assert.Equal(t, []string{"f"}, expr.Columns(e2))
	assert.Equal(t, "f", expr.OutputName(e2))
	assert.True(t, expr.IsRowWise(e2))
	assert.Equal(t, "literal", expr.OutputName(expr.Lit(1)))
	assert.Equal(t, "s", expr.OutputName(expr.Upcase(expr.Col("s"))))

	assert.True(t, expr.HasAggregation(expr.Add(expr.Sum(expr.Col("a")), expr.Lit(1))))
	assert.False(t, expr.HasAggregation(e))
}

func TestRename(t *testing.T) {
	e := expr.Gt(expr.CumSum(expr.Col("a")).Over("g"), expr.Col("b"))
	renamed := expr.Rename(e, map[string]string{"a": "x", "g": "h"})
	assert.Equal(t, "(cumulative_sum(col(x)) over [h] > col(b))", renamed.String())
	assert.Equal(t, "(cumulative_sum(col(a)) over [g] > col(b))", e.String(), "input is not modified")
}
