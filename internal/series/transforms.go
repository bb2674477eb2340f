package series

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/vishal-h/explorer/internal/column"
	"github.com/vishal-h/explorer/internal/dtype"
	dferrors "github.com/vishal-h/explorer/internal/errors"
	"github.com/vishal-h/explorer/internal/expr"
)

func call(fn func(expr.Expr) *expr.Call) func(expr.Expr) expr.Expr {
	return func(e expr.Expr) expr.Expr { return fn(e) }
}

// String transforms. Length counts characters, not bytes.

func (s *Series) Upcase(ctx context.Context) (*Series, error) {
	return s.unary(ctx, "Upcase", call(expr.Upcase))
}

func (s *Series) Downcase(ctx context.Context) (*Series, error) {
	return s.unary(ctx, "Downcase", call(expr.Downcase))
}

func (s *Series) Strip(ctx context.Context) (*Series, error) {
	return s.unary(ctx, "Strip", call(expr.Strip))
}

func (s *Series) Length(ctx context.Context) (*Series, error) {
	return s.unary(ctx, "Length", call(expr.Length))
}

func (s *Series) Contains(ctx context.Context, pattern string) (*Series, error) {
	return s.unary(ctx, "Contains", func(e expr.Expr) expr.Expr { return expr.Contains(e, pattern) })
}

func (s *Series) StartsWith(ctx context.Context, prefix string) (*Series, error) {
	return s.unary(ctx, "StartsWith", func(e expr.Expr) expr.Expr { return expr.StartsWith(e, prefix) })
}

func (s *Series) EndsWith(ctx context.Context, suffix string) (*Series, error) {
	return s.unary(ctx, "EndsWith", func(e expr.Expr) expr.Expr { return expr.EndsWith(e, suffix) })
}

// Concat joins s with other string series element by element.
func (s *Series) Concat(ctx context.Context, other *Series) (*Series, error) {
	if err := s.compatible("Concat", other); err != nil {
		return nil, err
	}
	return s.evaluate(ctx, "Concat", expr.Concat(expr.Col(leftName), expr.Col(rightName)), other)
}

// Datetime parts. Weekday numbers Monday 1 through Sunday 7.

func (s *Series) Year(ctx context.Context) (*Series, error) {
	return s.unary(ctx, "Year", call(expr.Year))
}

func (s *Series) Month(ctx context.Context) (*Series, error) {
	return s.unary(ctx, "Month", call(expr.Month))
}

func (s *Series) Day(ctx context.Context) (*Series, error) {
	return s.unary(ctx, "Day", call(expr.Day))
}

func (s *Series) Hour(ctx context.Context) (*Series, error) {
	return s.unary(ctx, "Hour", call(expr.Hour))
}

func (s *Series) Minute(ctx context.Context) (*Series, error) {
	return s.unary(ctx, "Minute", call(expr.Minute))
}

func (s *Series) Second(ctx context.Context) (*Series, error) {
	return s.unary(ctx, "Second", call(expr.Second))
}

func (s *Series) Weekday(ctx context.Context) (*Series, error) {
	return s.unary(ctx, "Weekday", call(expr.Weekday))
}

// Windows

func (s *Series) CumulativeSum(ctx context.Context) (*Series, error) {
	return s.unary(ctx, "CumulativeSum", func(e expr.Expr) expr.Expr { return expr.CumSum(e) })
}

func (s *Series) CumulativeMin(ctx context.Context) (*Series, error) {
	return s.unary(ctx, "CumulativeMin", func(e expr.Expr) expr.Expr { return expr.CumMin(e) })
}

func (s *Series) CumulativeMax(ctx context.Context) (*Series, error) {
	return s.unary(ctx, "CumulativeMax", func(e expr.Expr) expr.Expr { return expr.CumMax(e) })
}

func (s *Series) RollingMean(ctx context.Context, size int) (*Series, error) {
	return s.unary(ctx, "RollingMean", func(e expr.Expr) expr.Expr { return expr.RollingMean(e, size) })
}

func (s *Series) RollingSum(ctx context.Context, size int) (*Series, error) {
	return s.unary(ctx, "RollingSum", func(e expr.Expr) expr.Expr { return expr.RollingSum(e, size) })
}

// Shift moves values offset rows down (up when negative), filling with
// missing values.
func (s *Series) Shift(ctx context.Context, offset int) (*Series, error) {
	return s.unary(ctx, "Shift", func(e expr.Expr) expr.Expr { return expr.Shift(e, offset) })
}

// Reductions return a canonical scalar, nil when the result is missing.

func (s *Series) Sum(ctx context.Context) (any, error)     { return s.reduce(ctx, "Sum", expr.Sum) }
func (s *Series) Mean(ctx context.Context) (any, error)    { return s.reduce(ctx, "Mean", expr.Mean) }
func (s *Series) Min(ctx context.Context) (any, error)     { return s.reduce(ctx, "Min", expr.Min) }
func (s *Series) Max(ctx context.Context) (any, error)     { return s.reduce(ctx, "Max", expr.Max) }
func (s *Series) NUnique(ctx context.Context) (any, error) { return s.reduce(ctx, "NUnique", expr.NUnique) }

// Count returns the number of present values.
func (s *Series) Count(ctx context.Context) (int64, error) {
	v, err := s.reduce(ctx, "Count", expr.Count)
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (s *Series) reduce(ctx context.Context, op string, fn func(expr.Expr) *expr.Agg) (any, error) {
	const out = "value"
	schema, err := dtype.NewSchema(dtype.Field{Name: leftName, Type: s.dtype})
	if err != nil {
		return nil, dferrors.NewInternalError(op, err)
	}
	bound, t, err := expr.BindAggregation(op, expr.As(fn(expr.Col(leftName)), out), schema)
	if err != nil {
		return nil, s.named(err, op, nil)
	}
	outSchema, err := dtype.NewSchema(dtype.Field{Name: out, Type: t})
	if err != nil {
		return nil, dferrors.NewInternalError(op, err)
	}

	rec := column.Record(schema, []arrow.Array{s.arr})
	defer rec.Release()
	res, err := s.backend.GroupBy(ctx, rec, nil, []expr.Expr{bound}, outSchema)
	if err != nil {
		return nil, s.named(err, op, nil)
	}
	defer res.Release()
	if res.NumRows() == 0 {
		return nil, nil
	}
	return column.Value(res.Column(0), 0), nil
}
