// Package series provides one-dimensional, named, typed columns bound to the
// backend that produced them.
//
// A Series wraps one immutable Arrow array. Operations never modify it; they
// validate their operands, hand a bound expression to the owning backend and
// wrap the result in a new Series. Series are reference counted: every
// constructor and operation returns a Series the caller releases.
package series

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/vishal-h/explorer/internal/backend"
	"github.com/vishal-h/explorer/internal/column"
	"github.com/vishal-h/explorer/internal/dtype"
	dferrors "github.com/vishal-h/explorer/internal/errors"
	"github.com/vishal-h/explorer/internal/expr"
	"github.com/vishal-h/explorer/internal/handle"
)

// Element is a Go type a Series can be built from directly.
type Element interface {
	bool | int | int8 | int16 | int32 | int64 | uint | uint8 | uint16 | uint32 | uint64 |
		float32 | float64 | string | []byte | time.Time | time.Duration
}

// Series represents a typed data column with Apache Arrow backend
type Series struct {
	name    string
	dtype   dtype.DType
	arr     arrow.Array
	backend backend.Backend
	refs    atomic.Int64
}

// New builds a series of type t from values given in any Go type accepted
// for t. A nil value is missing.
func New(b backend.Backend, name string, t dtype.DType, values []any) (*Series, error) {
	arr, err := column.Build(b.Allocator(), t, values)
	if err != nil {
		return nil, dferrors.Reframe(err, "New", name)
	}
	return wrap(b, name, t, arr), nil
}

// Of builds a series whose type follows the Go element type.
func Of[T Element](b backend.Backend, name string, values []T) (*Series, error) {
	return OfNullable(b, name, values, nil)
}

// OfNullable is Of with a validity slice: values[i] is missing when
// valid[i] is false. A nil valid slice marks every value present.
func OfNullable[T Element](b backend.Backend, name string, values []T, valid []bool) (*Series, error) {
	if valid != nil && len(valid) != len(values) {
		return nil, dferrors.NewShapeError("New",
			fmt.Sprintf("%d values but %d validity flags", len(values), len(valid)))
	}
	var zero T
	t, _, err := dtype.LiteralOf(any(zero))
	if err != nil {
		return nil, dferrors.Reframe(err, "New", name)
	}
	items := make([]any, len(values))
	for i, v := range values {
		if valid == nil || valid[i] {
			items[i] = v
		}
	}
	return New(b, name, t, items)
}

// FromArray wraps arr. The series takes its own reference.
func FromArray(b backend.Backend, name string, arr arrow.Array) (*Series, error) {
	t, err := dtype.FromArrow(arr.DataType())
	if err != nil {
		return nil, dferrors.Reframe(err, "FromArray", name)
	}
	arr.Retain()
	return wrap(b, name, t, arr), nil
}

// wrap takes ownership of arr.
func wrap(b backend.Backend, name string, t dtype.DType, arr arrow.Array) *Series {
	s := &Series{name: name, dtype: t, arr: arr, backend: b}
	s.refs.Store(1)
	return s
}

// Name returns the column name
func (s *Series) Name() string { return s.name }

// DType returns the element type.
func (s *Series) DType() dtype.DType { return s.dtype }

// Len returns the length of the series
func (s *Series) Len() int { return s.arr.Len() }

// NullCount returns the number of missing values.
func (s *Series) NullCount() int { return s.arr.NullN() }

// Array returns the underlying array without transferring a reference.
func (s *Series) Array() arrow.Array { return s.arr }

// Backend returns the backend that owns the series.
func (s *Series) Backend() backend.Backend { return s.backend }

// Handle identifies the owning backend instance.
func (s *Series) Handle() handle.Handle { return s.backend.Handle() }

// Value returns element i in canonical form, nil when missing.
func (s *Series) Value(i int) any { return column.Value(s.arr, i) }

// Values returns every element in canonical form.
func (s *Series) Values() []any { return column.Values(s.arr) }

// Retain adds a reference.
func (s *Series) Retain() {
	s.refs.Add(1)
	s.arr.Retain()
}

// Release drops a reference; the buffers are freed with the last one.
func (s *Series) Release() {
	if s.refs.Add(-1) >= 0 {
		s.arr.Release()
	}
}

// Rename returns the same values under another name. Buffers are shared.
func (s *Series) Rename(name string) *Series {
	s.arr.Retain()
	return wrap(s.backend, name, s.dtype, s.arr)
}

// Slice returns length values from offset, sharing buffers. Out-of-range
// bounds are clamped; a negative offset counts from the end.
func (s *Series) Slice(offset, length int64) *Series {
	n := int64(s.arr.Len())
	if offset < 0 {
		offset = max(n+offset, 0)
	}
	offset = min(offset, n)
	end := min(offset+max(length, 0), n)
	return wrap(s.backend, s.name, s.dtype, array.NewSlice(s.arr, offset, end))
}

// Head returns the first n values.
func (s *Series) Head(n int64) *Series { return s.Slice(0, n) }

// Tail returns the last n values.
func (s *Series) Tail(n int64) *Series {
	return s.Slice(max(int64(s.arr.Len())-n, 0), n)
}

func (s *Series) String() string {
	const limit = 10
	values := s.Values()
	parts := make([]string, 0, min(len(values), limit)+1)
	for i, v := range values {
		if i == limit {
			parts = append(parts, "...")
			break
		}
		parts = append(parts, column.Format(v))
	}
	return fmt.Sprintf("%s %s [%s]", s.name, s.dtype, strings.Join(parts, ", "))
}

// Operands of an evaluated expression are exposed under fixed names.
const (
	leftName  = "left"
	rightName = "right"
)

// compatible checks that other can be combined with s element by element.
func (s *Series) compatible(op string, other *Series) error {
	if !s.Handle().Same(other.Handle()) {
		return dferrors.NewBackendMismatchError(op, s.Handle().String(), other.Handle().String())
	}
	if s.Len() != other.Len() {
		return dferrors.NewShapeError(op,
			fmt.Sprintf("series %s has %d values, %s has %d", s.name, s.Len(), other.name, other.Len()))
	}
	return nil
}

// evaluate binds e against s (as leftName) and the optional other operand
// (as rightName) and evaluates it on the owning backend.
func (s *Series) evaluate(ctx context.Context, op string, e expr.Expr, other *Series) (*Series, error) {
	fields := []dtype.Field{{Name: leftName, Type: s.dtype}}
	cols := []arrow.Array{s.arr}
	if other != nil {
		fields = append(fields, dtype.Field{Name: rightName, Type: other.dtype})
		cols = append(cols, other.arr)
	}
	schema, err := dtype.NewSchema(fields...)
	if err != nil {
		return nil, dferrors.NewInternalError(op, err)
	}
	bound, t, err := expr.Bind(op, e, schema)
	if err != nil {
		return nil, s.named(err, op, other)
	}

	rec := column.Record(schema, cols)
	defer rec.Release()
	arr, err := s.backend.Evaluate(ctx, rec, bound)
	if err != nil {
		return nil, s.named(backend.Fail(op, err), op, other)
	}
	if t.IsNull() {
		t, _ = dtype.FromArrow(arr.DataType())
	}
	return wrap(s.backend, s.name, t, arr), nil
}

// named reframes err under op and reports the series names in place of the
// operand placeholders.
func (s *Series) named(err error, op string, other *Series) error {
	err = dferrors.Reframe(err, op, s.name)
	var dfErr *dferrors.DataFrameError
	if !errors.As(err, &dfErr) {
		return err
	}
	switch {
	case dfErr.Column == leftName:
		dfErr.Column = s.name
	case dfErr.Column == rightName && other != nil:
		dfErr.Column = other.name
	}
	return err
}

func (s *Series) unary(ctx context.Context, op string, fn func(expr.Expr) expr.Expr) (*Series, error) {
	return s.evaluate(ctx, op, fn(expr.Col(leftName)), nil)
}

// binary combines s with a series of equal length or a Go scalar, which
// broadcasts.
func (s *Series) binary(ctx context.Context, op string, fn func(l, r expr.Expr) *expr.Binary, other any) (*Series, error) {
	if o, ok := other.(*Series); ok {
		if err := s.compatible(op, o); err != nil {
			return nil, err
		}
		return s.evaluate(ctx, op, fn(expr.Col(leftName), expr.Col(rightName)), o)
	}
	return s.evaluate(ctx, op, fn(expr.Col(leftName), expr.Lit(other)), nil)
}

// Arithmetic. Integer overflow is an execution error; integer operands of
// different widths need an explicit Cast.

func (s *Series) Add(ctx context.Context, other any) (*Series, error) {
	return s.binary(ctx, "Add", expr.Add, other)
}

func (s *Series) Sub(ctx context.Context, other any) (*Series, error) {
	return s.binary(ctx, "Sub", expr.Sub, other)
}

func (s *Series) Mul(ctx context.Context, other any) (*Series, error) {
	return s.binary(ctx, "Mul", expr.Mul, other)
}

// Div always divides in floating point.
func (s *Series) Div(ctx context.Context, other any) (*Series, error) {
	return s.binary(ctx, "Div", expr.Div, other)
}

// Comparisons

func (s *Series) Eq(ctx context.Context, other any) (*Series, error) {
	return s.binary(ctx, "Eq", expr.Eq, other)
}

func (s *Series) Ne(ctx context.Context, other any) (*Series, error) {
	return s.binary(ctx, "Ne", expr.Ne, other)
}

func (s *Series) Lt(ctx context.Context, other any) (*Series, error) {
	return s.binary(ctx, "Lt", expr.Lt, other)
}

func (s *Series) Le(ctx context.Context, other any) (*Series, error) {
	return s.binary(ctx, "Le", expr.Le, other)
}

func (s *Series) Gt(ctx context.Context, other any) (*Series, error) {
	return s.binary(ctx, "Gt", expr.Gt, other)
}

func (s *Series) Ge(ctx context.Context, other any) (*Series, error) {
	return s.binary(ctx, "Ge", expr.Ge, other)
}

// Logical operators use three-valued logic: false and missing is false,
// true or missing is true.

func (s *Series) And(ctx context.Context, other any) (*Series, error) {
	return s.binary(ctx, "And", expr.And, other)
}

func (s *Series) Or(ctx context.Context, other any) (*Series, error) {
	return s.binary(ctx, "Or", expr.Or, other)
}

func (s *Series) Not(ctx context.Context) (*Series, error) {
	return s.unary(ctx, "Not", func(e expr.Expr) expr.Expr { return expr.Not(e) })
}

func (s *Series) Neg(ctx context.Context) (*Series, error) {
	return s.unary(ctx, "Neg", func(e expr.Expr) expr.Expr { return expr.Neg(e) })
}

func (s *Series) Abs(ctx context.Context) (*Series, error) {
	return s.unary(ctx, "Abs", func(e expr.Expr) expr.Expr { return expr.Abs(e) })
}

func (s *Series) IsNull(ctx context.Context) (*Series, error) {
	return s.unary(ctx, "IsNull", func(e expr.Expr) expr.Expr { return expr.IsNull(e) })
}

func (s *Series) IsNotNull(ctx context.Context) (*Series, error) {
	return s.unary(ctx, "IsNotNull", func(e expr.Expr) expr.Expr { return expr.IsNotNull(e) })
}

// Cast converts every value to t. Values that cannot be represented in t
// fail the cast with an execution error.
func (s *Series) Cast(ctx context.Context, t dtype.DType) (*Series, error) {
	if s.dtype.Equal(t) {
		s.Retain()
		return s, nil
	}
	return s.unary(ctx, "Cast", func(e expr.Expr) expr.Expr { return expr.CastTo(e, t) })
}
