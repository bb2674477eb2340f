package series_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishal-h/explorer/internal/backend"
	"github.com/vishal-h/explorer/internal/backend/native"
	"github.com/vishal-h/explorer/internal/dtype"
	dferrors "github.com/vishal-h/explorer/internal/errors"
	"github.com/vishal-h/explorer/internal/series"
	"github.com/vishal-h/explorer/internal/testutil"
)

func newBackend(t *testing.T) *native.Backend {
	t.Helper()
	mem := testutil.SetupMemoryTest(t)
	t.Cleanup(mem.Release)
	b, err := native.New(backend.Options{Allocator: mem.Allocator, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	return b
}

func of[T series.Element](t *testing.T, b backend.Backend, name string, values ...T) *series.Series {
	t.Helper()
	s, err := series.Of(b, name, values)
	require.NoError(t, err)
	t.Cleanup(s.Release)
	return s
}

func nullable[T series.Element](t *testing.T, b backend.Backend, name string, values []T, valid []bool) *series.Series {
	t.Helper()
	s, err := series.OfNullable(b, name, values, valid)
	require.NoError(t, err)
	t.Cleanup(s.Release)
	return s
}

func keep(t *testing.T) func(*series.Series, error) *series.Series {
	t.Helper()
	return func(s *series.Series, err error) *series.Series {
		t.Helper()
		require.NoError(t, err)
		t.Cleanup(s.Release)
		return s
	}
}

func TestConstruction(t *testing.T) {
	b := newBackend(t)

	ints := of(t, b, "n", int64(1), 2, 3)
	assert.Equal(t, "n", ints.Name())
	assert.Equal(t, dtype.Int64, ints.DType())
	assert.Equal(t, 3, ints.Len())
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, ints.Values())
	assert.True(t, ints.Handle().Same(b.Handle()))
	assert.Equal(t, "n i64 [1, 2, 3]", ints.String())

	small := of(t, b, "s", int8(1), -2)
	assert.Equal(t, dtype.Int8, small.DType())
	assert.Equal(t, []any{int64(1), int64(-2)}, small.Values())

	withNulls := nullable(t, b, "f", []float64{1.5, 0, 2.5}, []bool{true, false, true})
	assert.Equal(t, 1, withNulls.NullCount())
	assert.Equal(t, []any{1.5, nil, 2.5}, withNulls.Values())

	explicit, err := series.New(b, "c", dtype.Categorical, []any{"a", nil, "a"})
	explicit = keep(t)(explicit, err)
	assert.Equal(t, []any{"a", nil, "a"}, explicit.Values())

	_, err = series.OfNullable(b, "x", []int64{1, 2}, []bool{true})
	assert.ErrorIs(t, err, dferrors.ErrShape)

	_, err = series.New(b, "x", dtype.Int8, []any{int64(300)})
	assert.ErrorIs(t, err, dferrors.ErrType)
}

func TestRenameAndSliceShareBuffers(t *testing.T) {
	b := newBackend(t)
	s := of(t, b, "n", int64(1), 2, 3, 4)

	renamed := s.Rename("m")
	defer renamed.Release()
	assert.Equal(t, "m", renamed.Name())
	assert.Same(t, s.Array().Data().Buffers()[1], renamed.Array().Data().Buffers()[1])

	mid := s.Slice(1, 2)
	defer mid.Release()
	assert.Equal(t, []any{int64(2), int64(3)}, mid.Values())

	last := s.Tail(3)
	defer last.Release()
	assert.Equal(t, []any{int64(2), int64(3), int64(4)}, last.Values())

	fromEnd := s.Slice(-1, 5)
	defer fromEnd.Release()
	assert.Equal(t, []any{int64(4)}, fromEnd.Values())

	first := s.Head(10)
	defer first.Release()
	assert.Equal(t, 4, first.Len())
}

func TestArithmeticIdentities(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	s := nullable(t, b, "n", []int64{4, 0, -7}, []bool{true, false, true})

	plusZero := keep(t)(s.Add(ctx, 0))
	assert.Equal(t, s.Values(), plusZero.Values())
	assert.Equal(t, s.DType(), plusZero.DType())

	timesOne := keep(t)(s.Mul(ctx, 1))
	assert.Equal(t, s.Values(), timesOne.Values())
	assert.Equal(t, "n", timesOne.Name())
}

func TestArithmeticTypes(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	small := of(t, b, "a", int8(1), 2)
	other := of(t, b, "b", int8(3), 4)
	wide := of(t, b, "w", int64(1), 2)

	sum := keep(t)(small.Add(ctx, other))
	assert.Equal(t, dtype.Int8, sum.DType())
	assert.Equal(t, []any{int64(4), int64(6)}, sum.Values())

	_, err := small.Add(ctx, wide)
	assert.ErrorIs(t, err, dferrors.ErrType)

	cast := keep(t)(small.Cast(ctx, dtype.Int64))
	widened := keep(t)(cast.Add(ctx, wide))
	assert.Equal(t, dtype.Int64, widened.DType())

	ratio := keep(t)(wide.Div(ctx, 2))
	assert.Equal(t, dtype.Float64, ratio.DType())
	assert.Equal(t, []any{0.5, 1.0}, ratio.Values())

	_, err = small.Add(ctx, 1000)
	assert.ErrorIs(t, err, dferrors.ErrType, "literal out of range for i8")

	names := of(t, b, "s", "x", "y")
	_, err = names.Add(ctx, "z")
	assert.ErrorIs(t, err, dferrors.ErrType)
}

func TestOverflowIsExecutionError(t *testing.T) {
	b := newBackend(t)
	s := of(t, b, "a", int8(127))
	_, err := s.Add(context.Background(), 1)
	assert.ErrorIs(t, err, dferrors.ErrExecution)
}

func TestOperandChecks(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	other := newBackend(t)

	s := of(t, b, "a", int64(1), 2)
	short := of(t, b, "b", int64(1))
	foreign := of(t, other, "c", int64(1), 2)

	_, err := s.Add(ctx, short)
	assert.ErrorIs(t, err, dferrors.ErrShape)

	_, err = s.Add(ctx, foreign)
	assert.ErrorIs(t, err, dferrors.ErrBackendMismatch)

	_, err = s.Add(ctx, struct{}{})
	assert.ErrorIs(t, err, dferrors.ErrInvalidInput)
}

func TestErrorsNameTheSeries(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	small := of(t, b, "small", int8(1), 2)
	wide := of(t, b, "wide", int64(1), 2)
	names := of(t, b, "names", "x", "y")

	tests := []struct {
		name   string
		call   func() error
		column string
	}{
		{"series operand", func() error { _, err := small.Add(ctx, wide); return err }, "small"},
		{"scalar operand", func() error { _, err := names.Add(ctx, "z"); return err }, "names"},
		{"reduction", func() error { _, err := names.Sum(ctx); return err }, "names"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.ErrorIs(t, err, dferrors.ErrType)
			var dfErr *dferrors.DataFrameError
			require.ErrorAs(t, err, &dfErr)
			assert.Equal(t, tt.column, dfErr.Column)
			assert.NotContains(t, err.Error(), "'left'")
			assert.NotContains(t, err.Error(), "'right'")
		})
	}
}

func TestComparisonsAndKleeneLogic(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	n := nullable(t, b, "n", []int64{1, 2, 3}, []bool{true, true, false})

	gt := keep(t)(n.Gt(ctx, 1))
	assert.Equal(t, dtype.Boolean, gt.DType())
	assert.Equal(t, []any{false, true, nil}, gt.Values())

	eq := keep(t)(n.Eq(ctx, n))
	assert.Equal(t, []any{true, true, nil}, eq.Values())

	flags := nullable(t, b, "f", []bool{true, false, false}, []bool{true, true, false})
	unknown := nullable(t, b, "u", []bool{false, false, false}, []bool{false, false, false})

	and := keep(t)(flags.And(ctx, unknown))
	assert.Equal(t, []any{nil, false, nil}, and.Values())

	or := keep(t)(flags.Or(ctx, unknown))
	assert.Equal(t, []any{true, nil, nil}, or.Values())

	not := keep(t)(flags.Not(ctx))
	assert.Equal(t, []any{false, true, nil}, not.Values())

	isNull := keep(t)(flags.IsNull(ctx))
	assert.Equal(t, []any{false, false, true}, isNull.Values())

	_, err := n.And(ctx, true)
	assert.ErrorIs(t, err, dferrors.ErrType)
}

func TestCast(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	s := of(t, b, "n", int64(1), 20)

	str := keep(t)(s.Cast(ctx, dtype.String))
	assert.Equal(t, []any{"1", "20"}, str.Values())

	same := keep(t)(s.Cast(ctx, dtype.Int64))
	assert.Same(t, s, same)

	_, err := s.Cast(ctx, dtype.List(dtype.Int64))
	assert.ErrorIs(t, err, dferrors.ErrType)
}

func TestStringTransforms(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	s := nullable(t, b, "s", []string{" héllo ", "World", ""}, []bool{true, true, false})

	up := keep(t)(s.Upcase(ctx))
	assert.Equal(t, []any{" HÉLLO ", "WORLD", nil}, up.Values())

	stripped := keep(t)(s.Strip(ctx))
	assert.Equal(t, []any{"héllo", "World", nil}, stripped.Values())

	length := keep(t)(stripped.Length(ctx))
	assert.Equal(t, []any{uint64(5), uint64(5), nil}, length.Values())

	has := keep(t)(s.Contains(ctx, "orl"))
	assert.Equal(t, []any{false, true, nil}, has.Values())

	suffix := of(t, b, "x", "!", "?", "")
	joined := keep(t)(stripped.Concat(ctx, suffix))
	assert.Equal(t, []any{"héllo!", "World?", nil}, joined.Values())

	ints := of(t, b, "n", int64(1))
	_, err := ints.Upcase(ctx)
	assert.ErrorIs(t, err, dferrors.ErrType)
}

func TestDatetimeParts(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	ts := of(t, b, "ts",
		time.Date(2024, 1, 1, 9, 30, 15, 0, time.UTC),
		time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC),
	)

	year := keep(t)(ts.Year(ctx))
	assert.Equal(t, dtype.Int32, year.DType())
	assert.Equal(t, []any{int64(2024), int64(2023)}, year.Values())

	weekday := keep(t)(ts.Weekday(ctx))
	assert.Equal(t, []any{int64(1), int64(7)}, weekday.Values())

	hour := keep(t)(ts.Hour(ctx))
	assert.Equal(t, []any{int64(9), int64(23)}, hour.Values())
}

func TestWindows(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	s := of(t, b, "n", int64(1), 2, 3, 4)

	cum := keep(t)(s.CumulativeSum(ctx))
	assert.Equal(t, []any{int64(1), int64(3), int64(6), int64(10)}, cum.Values())

	shifted := keep(t)(s.Shift(ctx, 1))
	assert.Equal(t, []any{nil, int64(1), int64(2), int64(3)}, shifted.Values())
}

func TestReductions(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	s := nullable(t, b, "n", []int64{1, 5, 3, 0}, []bool{true, true, true, false})

	tests := []struct {
		name string
		fn   func(context.Context) (any, error)
		want any
	}{
		{"sum", s.Sum, int64(9)},
		{"mean", s.Mean, 3.0},
		{"min", s.Min, int64(1)},
		{"max", s.Max, int64(5)},
		{"n_unique", s.NUnique, int64(4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	empty := of(t, b, "e", []int64{}...)
	mean, err := empty.Mean(ctx)
	require.NoError(t, err)
	assert.Nil(t, mean)

	names := of(t, b, "s", "a")
	_, err = names.Sum(ctx)
	assert.ErrorIs(t, err, dferrors.ErrType)
}

func TestCancelledEvaluation(t *testing.T) {
	b := newBackend(t)
	s := of(t, b, "n", int64(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Add(ctx, 1)
	assert.ErrorIs(t, err, dferrors.ErrCancelled)
}
