package explorer

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/vishal-h/explorer/internal/series"
)

// Series is a named, typed, immutable column of values.
//
// A Series is reference counted. Release it when done; Retain adds a
// reference for a second owner. Operations never modify their inputs.
type Series struct {
	s *series.Series
}

// Element is a Go type a Series can be built from directly.
type Element = series.Element

// NewSeries builds a series whose type follows the Go element type.
func NewSeries[T Element](name string, values []T, opts ...Option) (*Series, error) {
	return NewNullableSeries(name, values, nil, opts...)
}

// NewNullableSeries is NewSeries with a validity slice: values[i] is
// missing when valid[i] is false.
func NewNullableSeries[T Element](name string, values []T, valid []bool, opts ...Option) (*Series, error) {
	b, err := resolve(context.Background(), opts)
	if err != nil {
		return nil, err
	}
	s, err := series.OfNullable(b, name, values, valid)
	if err != nil {
		return nil, err
	}
	return &Series{s}, nil
}

// NewTypedSeries builds a series of type t from values in any Go type
// accepted for t. A nil value is missing.
func NewTypedSeries(name string, t DType, values []any, opts ...Option) (*Series, error) {
	b, err := resolve(context.Background(), opts)
	if err != nil {
		return nil, err
	}
	s, err := series.New(b, name, t, values)
	if err != nil {
		return nil, err
	}
	return &Series{s}, nil
}

// SeriesFromArray wraps arr. The series takes its own reference.
func SeriesFromArray(name string, arr arrow.Array, opts ...Option) (*Series, error) {
	b, err := resolve(context.Background(), opts)
	if err != nil {
		return nil, err
	}
	s, err := series.FromArray(b, name, arr)
	if err != nil {
		return nil, err
	}
	return &Series{s}, nil
}

func wrapSeries(s *series.Series, err error) (*Series, error) {
	if err != nil {
		return nil, err
	}
	return &Series{s}, nil
}

// seriesOperand unwraps a public series so the internal layer sees its own
// type; scalars pass through.
func seriesOperand(v any) any {
	if s, ok := v.(*Series); ok {
		return s.s
	}
	return v
}

func (s *Series) Name() string       { return s.s.Name() }
func (s *Series) DType() DType       { return s.s.DType() }
func (s *Series) Len() int           { return s.s.Len() }
func (s *Series) NullCount() int     { return s.s.NullCount() }
func (s *Series) Array() arrow.Array { return s.s.Array() }
func (s *Series) Backend() Backend   { return s.s.Backend() }

// Value returns element i as its canonical Go value, nil when missing.
func (s *Series) Value(i int) any { return s.s.Value(i) }

// Values returns every element as canonical Go values.
func (s *Series) Values() []any { return s.s.Values() }

func (s *Series) Retain()  { s.s.Retain() }
func (s *Series) Release() { s.s.Release() }

// Rename returns the series under a new name, sharing its buffers.
func (s *Series) Rename(name string) *Series { return &Series{s.s.Rename(name)} }

// Slice returns length values starting at offset, sharing buffers. A
// negative offset counts from the end.
func (s *Series) Slice(offset, length int64) *Series { return &Series{s.s.Slice(offset, length)} }

func (s *Series) Head(n int64) *Series { return &Series{s.s.Head(n)} }
func (s *Series) Tail(n int64) *Series { return &Series{s.s.Tail(n)} }

func (s *Series) String() string { return s.s.String() }

// Element-wise operations take another series of equal length or a Go
// scalar.

func (s *Series) Add(ctx context.Context, other any) (*Series, error) {
	return wrapSeries(s.s.Add(ctx, seriesOperand(other)))
}

func (s *Series) Sub(ctx context.Context, other any) (*Series, error) {
	return wrapSeries(s.s.Sub(ctx, seriesOperand(other)))
}

func (s *Series) Mul(ctx context.Context, other any) (*Series, error) {
	return wrapSeries(s.s.Mul(ctx, seriesOperand(other)))
}

func (s *Series) Div(ctx context.Context, other any) (*Series, error) {
	return wrapSeries(s.s.Div(ctx, seriesOperand(other)))
}

func (s *Series) Eq(ctx context.Context, other any) (*Series, error) {
	return wrapSeries(s.s.Eq(ctx, seriesOperand(other)))
}

func (s *Series) Ne(ctx context.Context, other any) (*Series, error) {
	return wrapSeries(s.s.Ne(ctx, seriesOperand(other)))
}

func (s *Series) Lt(ctx context.Context, other any) (*Series, error) {
	return wrapSeries(s.s.Lt(ctx, seriesOperand(other)))
}

func (s *Series) Le(ctx context.Context, other any) (*Series, error) {
	return wrapSeries(s.s.Le(ctx, seriesOperand(other)))
}

func (s *Series) Gt(ctx context.Context, other any) (*Series, error) {
	return wrapSeries(s.s.Gt(ctx, seriesOperand(other)))
}

func (s *Series) Ge(ctx context.Context, other any) (*Series, error) {
	return wrapSeries(s.s.Ge(ctx, seriesOperand(other)))
}

func (s *Series) And(ctx context.Context, other any) (*Series, error) {
	return wrapSeries(s.s.And(ctx, seriesOperand(other)))
}

func (s *Series) Or(ctx context.Context, other any) (*Series, error) {
	return wrapSeries(s.s.Or(ctx, seriesOperand(other)))
}

func (s *Series) Not(ctx context.Context) (*Series, error)    { return wrapSeries(s.s.Not(ctx)) }
func (s *Series) Neg(ctx context.Context) (*Series, error)    { return wrapSeries(s.s.Neg(ctx)) }
func (s *Series) Abs(ctx context.Context) (*Series, error)    { return wrapSeries(s.s.Abs(ctx)) }
func (s *Series) IsNull(ctx context.Context) (*Series, error) { return wrapSeries(s.s.IsNull(ctx)) }

func (s *Series) IsNotNull(ctx context.Context) (*Series, error) {
	return wrapSeries(s.s.IsNotNull(ctx))
}

// Cast converts every value to t.
func (s *Series) Cast(ctx context.Context, t DType) (*Series, error) {
	return wrapSeries(s.s.Cast(ctx, t))
}

// String transforms

func (s *Series) Upcase(ctx context.Context) (*Series, error)   { return wrapSeries(s.s.Upcase(ctx)) }
func (s *Series) Downcase(ctx context.Context) (*Series, error) { return wrapSeries(s.s.Downcase(ctx)) }
func (s *Series) Strip(ctx context.Context) (*Series, error)    { return wrapSeries(s.s.Strip(ctx)) }
func (s *Series) Length(ctx context.Context) (*Series, error)   { return wrapSeries(s.s.Length(ctx)) }

func (s *Series) Contains(ctx context.Context, pattern string) (*Series, error) {
	return wrapSeries(s.s.Contains(ctx, pattern))
}

func (s *Series) StartsWith(ctx context.Context, prefix string) (*Series, error) {
	return wrapSeries(s.s.StartsWith(ctx, prefix))
}

func (s *Series) EndsWith(ctx context.Context, suffix string) (*Series, error) {
	return wrapSeries(s.s.EndsWith(ctx, suffix))
}

// Concat joins s and other element by element.
func (s *Series) Concat(ctx context.Context, other *Series) (*Series, error) {
	return wrapSeries(s.s.Concat(ctx, other.s))
}

// Datetime transforms

func (s *Series) Year(ctx context.Context) (*Series, error)    { return wrapSeries(s.s.Year(ctx)) }
func (s *Series) Month(ctx context.Context) (*Series, error)   { return wrapSeries(s.s.Month(ctx)) }
func (s *Series) Day(ctx context.Context) (*Series, error)     { return wrapSeries(s.s.Day(ctx)) }
func (s *Series) Hour(ctx context.Context) (*Series, error)    { return wrapSeries(s.s.Hour(ctx)) }
func (s *Series) Minute(ctx context.Context) (*Series, error)  { return wrapSeries(s.s.Minute(ctx)) }
func (s *Series) Second(ctx context.Context) (*Series, error)  { return wrapSeries(s.s.Second(ctx)) }
func (s *Series) Weekday(ctx context.Context) (*Series, error) { return wrapSeries(s.s.Weekday(ctx)) }

// Window functions

func (s *Series) CumulativeSum(ctx context.Context) (*Series, error) {
	return wrapSeries(s.s.CumulativeSum(ctx))
}

func (s *Series) CumulativeMin(ctx context.Context) (*Series, error) {
	return wrapSeries(s.s.CumulativeMin(ctx))
}

func (s *Series) CumulativeMax(ctx context.Context) (*Series, error) {
	return wrapSeries(s.s.CumulativeMax(ctx))
}

func (s *Series) RollingSum(ctx context.Context, size int) (*Series, error) {
	return wrapSeries(s.s.RollingSum(ctx, size))
}

func (s *Series) RollingMean(ctx context.Context, size int) (*Series, error) {
	return wrapSeries(s.s.RollingMean(ctx, size))
}

func (s *Series) Shift(ctx context.Context, offset int) (*Series, error) {
	return wrapSeries(s.s.Shift(ctx, offset))
}

// Reductions return a canonical Go value, nil when every value is missing.

func (s *Series) Sum(ctx context.Context) (any, error)     { return s.s.Sum(ctx) }
func (s *Series) Mean(ctx context.Context) (any, error)    { return s.s.Mean(ctx) }
func (s *Series) Min(ctx context.Context) (any, error)     { return s.s.Min(ctx) }
func (s *Series) Max(ctx context.Context) (any, error)     { return s.s.Max(ctx) }
func (s *Series) NUnique(ctx context.Context) (any, error) { return s.s.NUnique(ctx) }

// Count returns the number of present values.
func (s *Series) Count(ctx context.Context) (int64, error) { return s.s.Count(ctx) }
