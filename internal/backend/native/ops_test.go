package native_test

import (
	"context"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishal-h/explorer/internal/backend"
	"github.com/vishal-h/explorer/internal/config"
	"github.com/vishal-h/explorer/internal/dtype"
	dferrors "github.com/vishal-h/explorer/internal/errors"
	"github.com/vishal-h/explorer/internal/expr"
	"github.com/vishal-h/explorer/internal/plan"
	"github.com/vishal-h/explorer/internal/testutil"
)

func employees(f *fixture) *plan.Scan {
	return f.scan(
		testutil.String("name", "Alice", "Bob", "Charlie", "David"),
		testutil.Int64("age", 25, 30, 35, 28),
		testutil.String("department", "Engineering", "Sales", "Engineering", "Marketing"),
		testutil.Int64("salary", 100000, 80000, 120000, 75000),
	)
}

func TestGroupBy(t *testing.T) {
	for _, cfg := range []config.Config{
		{},
		{ParallelThreshold: 1, WorkerPoolSize: 4},
	} {
		f := newFixture(t, cfg)
		group, err := plan.NewGroupBy(employees(f), []string{"department"}, []expr.Expr{
			expr.As(expr.Sum(expr.Col("salary")), "total"),
			expr.As(expr.Mean(expr.Col("age")), "avg_age"),
			expr.As(expr.Count(expr.Col("name")), "n"),
			expr.As(expr.Max(expr.Col("name")), "last_name"),
		})
		require.NoError(t, err)

		got := f.execute(group)
		testutil.AssertColumns(t, got,
			testutil.String("department", "Engineering", "Sales", "Marketing"),
			testutil.Int64("total", 220000, 80000, 75000),
			testutil.Float64("avg_age", 30.0, 30.0, 28.0),
			testutil.Int64("n", 2, 1, 1),
			testutil.String("last_name", "Charlie", "Bob", "David"),
		)
	}
}

func TestGroupByNullKeysFormOneGroup(t *testing.T) {
	f := newFixture(t, config.Config{})
	scan := f.scan(
		testutil.String("k", "a", nil, "a", nil),
		testutil.Int64("v", 1, 2, 3, 4),
	)
	group, err := plan.NewGroupBy(scan, []string{"k"}, []expr.Expr{
		expr.As(expr.Sum(expr.Col("v")), "s"),
		expr.As(expr.NUnique(expr.Col("v")), "u"),
	})
	require.NoError(t, err)

	testutil.AssertColumns(t, f.execute(group),
		testutil.String("k", "a", nil),
		testutil.Int64("s", 4, 6),
		testutil.Int64("u", 2, 2),
	)
}

func TestSummaryOverEmptyInput(t *testing.T) {
	f := newFixture(t, config.Config{})
	scan := f.scan(testutil.Int64("v"))
	group, err := plan.NewGroupBy(scan, nil, []expr.Expr{
		expr.As(expr.Count(expr.Col("v")), "n"),
		expr.As(expr.Sum(expr.Col("v")), "s"),
		expr.As(expr.Mean(expr.Col("v")), "m"),
	})
	require.NoError(t, err)

	testutil.AssertColumns(t, f.execute(group),
		testutil.Int64("n", 0),
		testutil.Int64("s", 0),
		testutil.Float64("m", nil),
	)
}

func TestJoins(t *testing.T) {
	tests := []struct {
		how  plan.JoinHow
		want []testutil.ColumnSpec
	}{
		{plan.JoinInner, []testutil.ColumnSpec{
			testutil.Int64("id", 2),
			testutil.String("v", "b"),
			testutil.String("w", "x"),
		}},
		{plan.JoinLeft, []testutil.ColumnSpec{
			testutil.Int64("id", 1, 2),
			testutil.String("v", "a", "b"),
			testutil.String("w", nil, "x"),
		}},
		{plan.JoinRight, []testutil.ColumnSpec{
			testutil.Int64("id", 2, 3),
			testutil.String("v", "b", nil),
			testutil.String("w", "x", "y"),
		}},
		{plan.JoinOuter, []testutil.ColumnSpec{
			testutil.Int64("id", 1, 2, 3),
			testutil.String("v", "a", "b", nil),
			testutil.String("w", nil, "x", "y"),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.how.String(), func(t *testing.T) {
			f := newFixture(t, config.Config{})
			left := f.scan(testutil.Int64("id", 1, 2), testutil.String("v", "a", "b"))
			right := f.scan(testutil.Int64("id", 2, 3), testutil.String("w", "x", "y"))
			join, err := plan.NewJoin(left, right, plan.JoinSpec{How: tt.how, LeftOn: []string{"id"}, RightOn: []string{"id"}})
			require.NoError(t, err)
			testutil.AssertColumns(t, f.execute(join), tt.want...)
		})
	}
}

func TestJoinDuplicatesAndNullKeys(t *testing.T) {
	f := newFixture(t, config.Config{})
	left := f.scan(testutil.Int64("k", 1, nil, 1), testutil.String("l", "a", "b", "c"))
	right := f.scan(testutil.Int64("k", 1, 1, nil), testutil.String("l", "x", "y", "z"))
	join, err := plan.NewJoin(left, right, plan.JoinSpec{How: plan.JoinInner, LeftOn: []string{"k"}, RightOn: []string{"k"}})
	require.NoError(t, err)

	testutil.AssertColumns(t, f.execute(join),
		testutil.Int64("k", 1, 1, 1, 1),
		testutil.String("l", "a", "a", "c", "c"),
		testutil.String("l_right", "x", "y", "x", "y"),
	)
}

func TestCrossJoin(t *testing.T) {
	f := newFixture(t, config.Config{})
	left := f.scan(testutil.Int64("a", 1, 2))
	right := f.scan(testutil.String("b", "x", "y", "z"))
	join, err := plan.NewJoin(left, right, plan.JoinSpec{How: plan.JoinCross})
	require.NoError(t, err)

	testutil.AssertColumns(t, f.execute(join),
		testutil.Int64("a", 1, 1, 1, 2, 2, 2),
		testutil.String("b", "x", "y", "z", "x", "y", "z"),
	)
}

func TestSortNulls(t *testing.T) {
	tests := []struct {
		name string
		key  plan.SortKey
		want []any
	}{
		{"ascending", plan.SortKey{Column: "a"}, []any{1, 2, 3, nil}},
		{"descending", plan.SortKey{Column: "a", Descending: true}, []any{3, 2, 1, nil}},
		{"nulls first", plan.SortKey{Column: "a", NullsFirst: true}, []any{nil, 1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, config.Config{})
			scan := f.scan(testutil.Int64("a", 3, nil, 1, 2))
			sorted, err := plan.NewSort(scan, []plan.SortKey{tt.key})
			require.NoError(t, err)
			testutil.AssertColumns(t, f.execute(sorted), testutil.Int64("a", tt.want...))
		})
	}
}

func TestSortIsStableAcrossKeys(t *testing.T) {
	f := newFixture(t, config.Config{})
	scan := f.scan(
		testutil.String("g", "b", "a", "b", "a"),
		testutil.Int64("i", 1, 2, 3, 4),
	)
	sorted, err := plan.NewSort(scan, []plan.SortKey{{Column: "g"}})
	require.NoError(t, err)
	testutil.AssertColumns(t, f.execute(sorted),
		testutil.String("g", "a", "a", "b", "b"),
		testutil.Int64("i", 2, 4, 1, 3),
	)
}

func TestWindows(t *testing.T) {
	f := newFixture(t, config.Config{})
	scan := f.scan(
		testutil.String("g", "a", "a", "b", "a", "b"),
		testutil.Int64("v", 1, 2, 10, nil, 20),
	)
	mutate, err := plan.NewWithColumns(scan, []expr.Expr{
		expr.As(expr.CumSum(expr.Col("v")).Over("g"), "cum"),
		expr.As(expr.RollingSum(expr.Col("v"), 2), "roll"),
		expr.As(expr.Shift(expr.Col("v"), 1), "prev"),
		expr.As(expr.RollingMean(expr.Col("v"), 2).Over("g"), "avg"),
	})
	require.NoError(t, err)

	testutil.AssertColumns(t, f.execute(mutate),
		testutil.String("g", "a", "a", "b", "a", "b"),
		testutil.Int64("v", 1, 2, 10, nil, 20),
		testutil.Int64("cum", 1, 3, 10, nil, 30),
		testutil.Int64("roll", nil, 3, 12, nil, nil),
		testutil.Int64("prev", nil, 1, 2, 10, nil),
		testutil.Float64("avg", nil, 1.5, nil, nil, 15.0),
	)
}

func TestCasts(t *testing.T) {
	f := newFixture(t, config.Config{})
	scan := f.scan(
		testutil.Int64("i", 1, nil, 3),
		testutil.Float64("x", 2.7, -1.2, nil),
		testutil.String("s", "b", "a", "b"),
	)
	mutate, err := plan.NewWithColumns(scan, []expr.Expr{
		expr.As(expr.CastTo(expr.Col("i"), dtype.String), "i_str"),
		expr.As(expr.CastTo(expr.Col("x"), dtype.Int32), "x_int"),
		expr.As(expr.CastTo(expr.Col("s"), dtype.Categorical), "s_cat"),
	})
	require.NoError(t, err)

	got := f.execute(mutate)
	testutil.AssertColumns(t, got,
		testutil.Int64("i", 1, nil, 3),
		testutil.Float64("x", 2.7, -1.2, nil),
		testutil.String("s", "b", "a", "b"),
		testutil.String("i_str", "1", nil, "3"),
		testutil.Col("x_int", dtype.Int32, 2, -1, nil),
		testutil.Col("s_cat", dtype.Categorical, "b", "a", "b"),
	)
}

func TestCastsReleaseEverything(t *testing.T) {
	tests := []struct {
		name string
		in   testutil.ColumnSpec
		to   dtype.DType
		want testutil.ColumnSpec
	}{
		{"i64 to str", testutil.Int64("v", 1, nil, -3), dtype.String, testutil.String("out", "1", nil, "-3")},
		{"f64 to str", testutil.Float64("v", 2.5, nil, 1e21), dtype.String, testutil.String("out", "2.5", nil, "1e+21")},
		{"bool to str", testutil.Col("v", dtype.Boolean, true, false, nil), dtype.String, testutil.String("out", "true", "false", nil)},
		{"f64 to i32", testutil.Float64("v", 2.7, nil, -1.2), dtype.Int32, testutil.Col("out", dtype.Int32, 2, nil, -1)},
		{"str to cat", testutil.String("v", "b", "a", nil), dtype.Categorical, testutil.Col("out", dtype.Categorical, "b", "a", nil)},
		{"i64 to cat", testutil.Int64("v", 7, 7, nil), dtype.Categorical, testutil.Col("out", dtype.Categorical, "7", "7", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// The fixture's allocator must be empty once the test's records
			// are released.
			f := newFixture(t, config.Config{})
			scan := f.scan(tt.in)
			sel, err := plan.NewSelect(scan, []string{"v"})
			require.NoError(t, err)
			mutate, err := plan.NewWithColumns(sel, []expr.Expr{expr.As(expr.CastTo(expr.Col("v"), tt.to), "out")})
			require.NoError(t, err)
			out, err := plan.NewSelect(mutate, []string{"out"})
			require.NoError(t, err)

			testutil.AssertColumns(t, f.execute(out), tt.want)
		})
	}
}

func TestCategoricalRoundTripAndCompare(t *testing.T) {
	f := newFixture(t, config.Config{})
	scan := f.scan(testutil.Col("c", dtype.Categorical, "red", "blue", nil, "red"))
	filter, err := plan.NewFilter(scan, expr.Eq(expr.Col("c"), expr.Lit("red")))
	require.NoError(t, err)

	testutil.AssertColumns(t, f.execute(filter),
		testutil.Col("c", dtype.Categorical, "red", "red"),
	)
}

func TestStringFunctions(t *testing.T) {
	f := newFixture(t, config.Config{})
	scan := f.scan(
		testutil.String("s", " Hello ", "wörld", nil),
		testutil.String("t", "a", "b", "c"),
	)
	mutate, err := plan.NewWithColumns(scan, []expr.Expr{
		expr.As(expr.Upcase(expr.Strip(expr.Col("s"))), "up"),
		expr.As(expr.Length(expr.Col("s")), "len"),
		expr.As(expr.Contains(expr.Col("s"), "ll"), "has_ll"),
		expr.As(expr.Concat(expr.Col("t"), expr.Lit("-"), expr.Col("s")), "joined"),
	})
	require.NoError(t, err)

	got := testutil.Columns(f.execute(mutate))
	assert.Equal(t, []any{"HELLO", "WÖRLD", nil}, got["up"])
	assert.Equal(t, []any{uint64(7), uint64(5), nil}, got["len"])
	assert.Equal(t, []any{true, false, nil}, got["has_ll"])
	assert.Equal(t, []any{"a- Hello ", "b-wörld", nil}, got["joined"])
}

func TestDatetimeParts(t *testing.T) {
	f := newFixture(t, config.Config{})
	scan := f.scan(
		testutil.Col("d", dtype.Date,
			time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC),
			time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
			nil),
	)
	mutate, err := plan.NewWithColumns(scan, []expr.Expr{
		expr.As(expr.Year(expr.Col("d")), "year"),
		expr.As(expr.Month(expr.Col("d")), "month"),
		expr.As(expr.Weekday(expr.Col("d")), "weekday"),
	})
	require.NoError(t, err)

	got := testutil.Columns(f.execute(mutate))
	assert.Equal(t, []any{int64(2024), int64(2023), nil}, got["year"])
	assert.Equal(t, []any{int64(3), int64(12), nil}, got["month"])
	// 2024-03-17 and 2023-12-31 are both Sundays.
	assert.Equal(t, []any{int64(7), int64(7), nil}, got["weekday"])
}

func TestDistinct(t *testing.T) {
	f := newFixture(t, config.Config{})
	scan := f.scan(
		testutil.String("a", "x", "y", "x", "x"),
		testutil.Int64("b", 1, 2, 1, 3),
	)

	all, err := plan.NewDistinct(scan, nil, false)
	require.NoError(t, err)
	testutil.AssertColumns(t, f.execute(all),
		testutil.String("a", "x", "y", "x"),
		testutil.Int64("b", 1, 2, 3),
	)

	subset, err := plan.NewDistinct(scan, []string{"a"}, false)
	require.NoError(t, err)
	testutil.AssertColumns(t, f.execute(subset), testutil.String("a", "x", "y"))

	keep, err := plan.NewDistinct(scan, []string{"a"}, true)
	require.NoError(t, err)
	testutil.AssertColumns(t, f.execute(keep),
		testutil.String("a", "x", "y"),
		testutil.Int64("b", 1, 2),
	)
}

func TestConcatRowsWidensTypes(t *testing.T) {
	f := newFixture(t, config.Config{})
	top := f.scan(testutil.Int8("n", 1, 2), testutil.String("s", "a", "b"))
	bottom := f.scan(testutil.Int64("n", 300), testutil.String("s", nil))
	concat, err := plan.NewConcat([]plan.Node{top, bottom}, plan.ConcatRows)
	require.NoError(t, err)

	testutil.AssertColumns(t, f.execute(concat),
		testutil.Int64("n", 1, 2, 300),
		testutil.String("s", "a", "b", nil),
	)
}

func TestConcatColumns(t *testing.T) {
	f := newFixture(t, config.Config{})
	ctx := context.Background()
	left := f.record(testutil.Int64("a", 1, 2))
	right := f.record(testutil.String("b", "x", "y"))
	out := dtype.MustSchema(dtype.Field{Name: "a", Type: dtype.Int64}, dtype.Field{Name: "b", Type: dtype.String})

	got, err := f.b.Concat(ctx, []arrow.Record{left, right}, plan.ConcatColumns, out)
	require.NoError(t, err)
	defer got.Release()
	testutil.AssertColumns(t, got, testutil.Int64("a", 1, 2), testutil.String("b", "x", "y"))

	short := f.record(testutil.String("b", "x"))
	_, err = f.b.Concat(ctx, []arrow.Record{left, short}, plan.ConcatColumns, out)
	assert.ErrorIs(t, err, dferrors.ErrShape)
}

func TestPivot(t *testing.T) {
	f := newFixture(t, config.Config{})
	rec := f.record(
		testutil.String("city", "Oslo", "Oslo", "Rome", "Rome", "Oslo"),
		testutil.Int64("year", 2020, 2021, 2020, 2020, 2020),
		testutil.Float64("temp", 5.0, 6.0, 15.0, 99.0, 7.0),
	)
	got, err := f.b.Pivot(context.Background(), rec, backend.PivotSpec{
		Index:       []string{"city"},
		NamesFrom:   "year",
		ValuesFrom:  "temp",
		NamesPrefix: "y",
	})
	require.NoError(t, err)
	defer got.Release()

	testutil.AssertColumns(t, got,
		testutil.String("city", "Oslo", "Rome"),
		testutil.Float64("y2020", 5.0, 15.0),
		testutil.Float64("y2021", 6.0, nil),
	)
}

func TestMetricsRecordedWhenEnabled(t *testing.T) {
	f := newFixture(t, config.Config{MetricsCollection: true})
	scan := f.scan(testutil.Int64("a", 1, 2, 3))
	filter, err := plan.NewFilter(scan, expr.Lt(expr.Col("a"), expr.Lit(3)))
	require.NoError(t, err)
	f.execute(filter)

	metrics := f.b.Metrics().GetMetrics()
	require.Len(t, metrics, 1)
	assert.Equal(t, "Execute", metrics[0].Operation)
	assert.Equal(t, int64(2), metrics[0].RowsProcessed)
	assert.False(t, metrics[0].Failed)
}
