package native_test

import (
	"context"
	"math"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vishal-h/explorer/internal/backend"
	"github.com/vishal-h/explorer/internal/backend/native"
	"github.com/vishal-h/explorer/internal/column"
	"github.com/vishal-h/explorer/internal/config"
	"github.com/vishal-h/explorer/internal/dtype"
	dferrors "github.com/vishal-h/explorer/internal/errors"
	"github.com/vishal-h/explorer/internal/expr"
	"github.com/vishal-h/explorer/internal/handle"
	"github.com/vishal-h/explorer/internal/plan"
	"github.com/vishal-h/explorer/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	t   *testing.T
	mem *testutil.TestMemoryContext
	b   *native.Backend
}

func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()
	mem := testutil.SetupMemoryTest(t)
	b, err := native.New(backend.Options{
		Config:    cfg,
		Logger:    testutil.NewTestLogger(t),
		Allocator: mem.Allocator,
	})
	require.NoError(t, err)
	t.Cleanup(mem.Release)
	return &fixture{t: t, mem: mem, b: b}
}

func (f *fixture) record(cols ...testutil.ColumnSpec) arrow.Record {
	f.t.Helper()
	rec := testutil.NewRecord(f.t, f.mem.Allocator, cols...)
	f.t.Cleanup(rec.Release)
	return rec
}

func (f *fixture) scan(cols ...testutil.ColumnSpec) *plan.Scan {
	f.t.Helper()
	scan, err := plan.NewScan(f.record(cols...), f.b.Handle())
	require.NoError(f.t, err)
	return scan
}

func (f *fixture) execute(node plan.Node) arrow.Record {
	f.t.Helper()
	rec, err := f.b.Execute(context.Background(), node)
	require.NoError(f.t, err)
	f.t.Cleanup(rec.Release)
	return rec
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := native.New(backend.Options{Config: config.Config{WorkerPoolSize: -1}})
	require.Error(t, err)
	assert.ErrorIs(t, err, dferrors.ErrInvalidInput)
}

func TestHandleIdentity(t *testing.T) {
	a, err := native.New(backend.Options{})
	require.NoError(t, err)
	b, err := native.New(backend.Options{})
	require.NoError(t, err)

	assert.Equal(t, native.Name, a.Name())
	assert.Equal(t, native.Name, a.Handle().Backend)
	assert.False(t, a.Handle().Same(b.Handle()))
}

func TestExecuteFilter(t *testing.T) {
	f := newFixture(t, config.Config{})
	scan := f.scan(
		testutil.Int64("a", 1, 2, 3),
		testutil.String("b", "x", "y", "z"),
	)
	filter, err := plan.NewFilter(scan, expr.Gt(expr.Col("a"), expr.Lit(1)))
	require.NoError(t, err)

	got := f.execute(filter)
	testutil.AssertColumns(t, got,
		testutil.Int64("a", 2, 3),
		testutil.String("b", "y", "z"),
	)
}

func TestExecutePipeline(t *testing.T) {
	f := newFixture(t, config.Config{})
	scan := f.scan(
		testutil.String("name", "Alice", "Bob", "Charlie", "David"),
		testutil.Int64("age", 25, 30, 35, 28),
		testutil.Int64("salary", 100000, 80000, 120000, 75000),
	)

	var node plan.Node = scan
	var err error
	node, err = plan.NewWithColumns(node, []expr.Expr{
		expr.As(expr.Div(expr.Col("salary"), expr.Lit(1000)), "k"),
	})
	require.NoError(t, err)
	node, err = plan.NewSort(node, []plan.SortKey{{Column: "age", Descending: true}})
	require.NoError(t, err)
	node, err = plan.NewSlice(node, 0, 3)
	require.NoError(t, err)
	node, err = plan.NewRename(node, []plan.RenamePair{{From: "k", To: "thousands"}})
	require.NoError(t, err)
	node, err = plan.NewSelect(node, []string{"name", "thousands"})
	require.NoError(t, err)

	got := f.execute(node)
	testutil.AssertColumns(t, got,
		testutil.String("name", "Charlie", "Bob", "David"),
		testutil.Float64("thousands", 120.0, 80.0, 75.0),
	)
}

func TestExecuteProjectedScan(t *testing.T) {
	f := newFixture(t, config.Config{})
	scan := f.scan(
		testutil.Int64("a", 1, 2),
		testutil.String("b", "x", "y"),
		testutil.Bool("c", true, false),
	)
	narrowed, err := scan.Project([]string{"c", "a"})
	require.NoError(t, err)

	got := f.execute(narrowed)
	testutil.AssertColumns(t, got,
		testutil.Int64("a", 1, 2),
		testutil.Bool("c", true, false),
	)
}

func TestExecuteNegativeSlice(t *testing.T) {
	f := newFixture(t, config.Config{})
	scan := f.scan(testutil.Int64("a", 1, 2, 3, 4, 5))

	tail, err := plan.NewSlice(scan, -2, 10)
	require.NoError(t, err)
	testutil.AssertColumns(t, f.execute(tail), testutil.Int64("a", 4, 5))

	past, err := plan.NewSlice(scan, 7, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.execute(past).NumRows())
}

func TestExecuteOverflowIsExecutionError(t *testing.T) {
	f := newFixture(t, config.Config{})
	scan := f.scan(testutil.Int8("small", 127, 1))
	mutate, err := plan.NewWithColumns(scan, []expr.Expr{
		expr.As(expr.Add(expr.Col("small"), expr.Lit(1)), "next"),
	})
	require.NoError(t, err)

	rec, err := f.b.Execute(context.Background(), mutate)
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, dferrors.ErrExecution)
}

func TestFloatDivisionByZero(t *testing.T) {
	f := newFixture(t, config.Config{})
	scan := f.scan(testutil.Float64("x", 1.0, -1.0, 0.0))
	mutate, err := plan.NewWithColumns(scan, []expr.Expr{
		expr.As(expr.Div(expr.Col("x"), expr.Lit(0.0)), "q"),
	})
	require.NoError(t, err)

	got := testutil.Columns(f.execute(mutate))["q"]
	require.Len(t, got, 3)
	assert.True(t, math.IsInf(got[0].(float64), 1))
	assert.True(t, math.IsInf(got[1].(float64), -1))
	assert.True(t, math.IsNaN(got[2].(float64)))
}

func TestExecuteCancelled(t *testing.T) {
	f := newFixture(t, config.Config{})
	scan := f.scan(testutil.Int64("a", 1, 2, 3))
	filter, err := plan.NewFilter(scan, expr.Gt(expr.Col("a"), expr.Lit(1)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec, err := f.b.Execute(ctx, filter)
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, dferrors.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackendMismatch(t *testing.T) {
	f := newFixture(t, config.Config{})
	rec := f.record(testutil.Int64("a", 1))
	foreign, err := plan.NewScan(rec, handle.New(native.Name))
	require.NoError(t, err)

	_, err = f.b.Execute(context.Background(), foreign)
	assert.ErrorIs(t, err, dferrors.ErrBackendMismatch)
	_, err = f.b.Schema(foreign)
	assert.ErrorIs(t, err, dferrors.ErrBackendMismatch)
	_, err = f.b.Explain(foreign)
	assert.ErrorIs(t, err, dferrors.ErrBackendMismatch)

	own, err := plan.NewScan(rec, f.b.Handle())
	require.NoError(t, err)
	schema, err := f.b.Schema(own)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, schema.Names())
}

func TestFromArrays(t *testing.T) {
	f := newFixture(t, config.Config{})
	ctx := context.Background()
	a, err := column.Build(f.mem.Allocator, dtype.Int64, []any{1, 2})
	require.NoError(t, err)
	defer a.Release()
	b, err := column.Build(f.mem.Allocator, dtype.String, []any{"x", nil})
	require.NoError(t, err)
	defer b.Release()

	schema := dtype.MustSchema(dtype.Field{Name: "a", Type: dtype.Int64}, dtype.Field{Name: "b", Type: dtype.String})
	rec, err := f.b.FromArrays(ctx, schema, []arrow.Array{a, b})
	require.NoError(t, err)
	defer rec.Release()
	testutil.AssertColumns(t, rec, testutil.Int64("a", 1, 2), testutil.String("b", "x", nil))

	_, err = f.b.FromArrays(ctx, schema, []arrow.Array{a})
	assert.ErrorIs(t, err, dferrors.ErrShape)

	swapped := dtype.MustSchema(dtype.Field{Name: "a", Type: dtype.String}, dtype.Field{Name: "b", Type: dtype.String})
	_, err = f.b.FromArrays(ctx, swapped, []arrow.Array{a, b})
	assert.ErrorIs(t, err, dferrors.ErrType)
}

func TestFilterMaskWithNulls(t *testing.T) {
	f := newFixture(t, config.Config{})
	rec := f.record(testutil.Int64("a", 1, 2, 3))
	mask, err := column.Build(f.mem.Allocator, dtype.Boolean, []any{true, nil, true})
	require.NoError(t, err)
	defer mask.Release()

	got, err := f.b.Filter(context.Background(), rec, mask)
	require.NoError(t, err)
	defer got.Release()
	testutil.AssertColumns(t, got, testutil.Int64("a", 1, 3))
}

func TestTake(t *testing.T) {
	f := newFixture(t, config.Config{})
	ctx := context.Background()
	rec := f.record(
		testutil.Int64("a", 10, 20, 30),
		testutil.Col("c", dtype.Categorical, "x", "y", "x"),
	)
	idx, err := column.Build(f.mem.Allocator, dtype.Int32, []any{2, nil, 0})
	require.NoError(t, err)
	defer idx.Release()

	got, err := f.b.Take(ctx, rec, idx)
	require.NoError(t, err)
	defer got.Release()
	testutil.AssertColumns(t, got,
		testutil.Int64("a", 30, nil, 10),
		testutil.Col("c", dtype.Categorical, "x", nil, "x"),
	)

	bad, err := column.Build(f.mem.Allocator, dtype.Int64, []any{3})
	require.NoError(t, err)
	defer bad.Release()
	_, err = f.b.Take(ctx, rec, bad)
	assert.ErrorIs(t, err, dferrors.ErrInvalidInput)
}

func TestEvaluate(t *testing.T) {
	f := newFixture(t, config.Config{})
	rec := f.record(
		testutil.Int64("a", 1, nil, 3),
		testutil.Bool("p", true, false, nil),
	)
	schema, err := dtype.SchemaFromArrow(rec.Schema())
	require.NoError(t, err)

	tests := []struct {
		name string
		e    expr.Expr
		want []any
	}{
		{"negate", expr.Neg(expr.Col("a")), []any{int64(-1), nil, int64(-3)}},
		{"is null", expr.IsNull(expr.Col("a")), []any{false, true, false}},
		{"compare", expr.Ge(expr.Col("a"), expr.Lit(2)), []any{false, nil, true}},
		{"kleene and", expr.And(expr.Col("p"), expr.Lit(false)), []any{false, false, false}},
		{"kleene or", expr.Or(expr.Col("p"), expr.Lit(true)), []any{true, true, true}},
		{"not", expr.Not(expr.Col("p")), []any{false, true, nil}},
		{"null literal", expr.Add(expr.Col("a"), expr.Lit(nil)), []any{nil, nil, nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bound, _, err := expr.Bind("Evaluate", tt.e, schema)
			require.NoError(t, err)
			arr, err := f.b.Evaluate(context.Background(), rec, bound)
			require.NoError(t, err)
			defer arr.Release()
			assert.Equal(t, tt.want, column.Values(arr))
		})
	}
}
