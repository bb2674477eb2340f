package explorer

import (
	"github.com/vishal-h/explorer/internal/expr"
)

// Expr is a column expression used by Filter, Mutate and the aggregations
// of GroupBy. Expressions are values; building one never fails, a malformed
// expression is reported by the operation that uses it.
//
// Methods taking an operand accept another Expr or a Go scalar, which
// becomes a literal of the type of the other side.
type Expr struct {
	e expr.Expr
}

// Col refers to the column called name.
func Col(name string) Expr { return Expr{expr.Col(name)} }

// Lit is a literal that adopts the type of the column it is combined with.
func Lit(value any) Expr { return Expr{expr.Lit(value)} }

// TypedLit is a literal of type t. TypedLit(nil, t) is a missing value of
// type t.
func TypedLit(value any, t DType) Expr { return Expr{expr.TypedLit(value, t)} }

// StrConcat joins string operands element by element.
func StrConcat(operands ...any) Expr {
	args := make([]expr.Expr, len(operands))
	for i, o := range operands {
		args[i] = operand(o)
	}
	return Expr{expr.Concat(args...)}
}

func operand(v any) expr.Expr {
	switch x := v.(type) {
	case Expr:
		return x.e
	case *Expr:
		return x.e
	default:
		return expr.Lit(v)
	}
}

func unwrapExprs(es []Expr) []expr.Expr {
	out := make([]expr.Expr, len(es))
	for i, e := range es {
		out[i] = e.e
	}
	return out
}

func (e Expr) String() string { return e.e.String() }

// Arithmetic

func (e Expr) Add(other any) Expr { return Expr{expr.Add(e.e, operand(other))} }
func (e Expr) Sub(other any) Expr { return Expr{expr.Sub(e.e, operand(other))} }
func (e Expr) Mul(other any) Expr { return Expr{expr.Mul(e.e, operand(other))} }

// Div divides in floating point.
func (e Expr) Div(other any) Expr { return Expr{expr.Div(e.e, operand(other))} }

func (e Expr) Neg() Expr { return Expr{expr.Neg(e.e)} }
func (e Expr) Abs() Expr { return Expr{expr.Abs(e.e)} }

// Comparison

func (e Expr) Eq(other any) Expr { return Expr{expr.Eq(e.e, operand(other))} }
func (e Expr) Ne(other any) Expr { return Expr{expr.Ne(e.e, operand(other))} }
func (e Expr) Lt(other any) Expr { return Expr{expr.Lt(e.e, operand(other))} }
func (e Expr) Le(other any) Expr { return Expr{expr.Le(e.e, operand(other))} }
func (e Expr) Gt(other any) Expr { return Expr{expr.Gt(e.e, operand(other))} }
func (e Expr) Ge(other any) Expr { return Expr{expr.Ge(e.e, operand(other))} }

// Logical operators use three-valued logic.

func (e Expr) And(other any) Expr { return Expr{expr.And(e.e, operand(other))} }
func (e Expr) Or(other any) Expr  { return Expr{expr.Or(e.e, operand(other))} }
func (e Expr) Not() Expr          { return Expr{expr.Not(e.e)} }

func (e Expr) IsNull() Expr    { return Expr{expr.IsNull(e.e)} }
func (e Expr) IsNotNull() Expr { return Expr{expr.IsNotNull(e.e)} }

// Cast converts to t.
func (e Expr) Cast(t DType) Expr { return Expr{expr.CastTo(e.e, t)} }

// As names the output column.
func (e Expr) As(name string) Expr { return Expr{expr.As(e.e, name)} }

// String transforms

func (e Expr) Upcase() Expr   { return Expr{expr.Upcase(e.e)} }
func (e Expr) Downcase() Expr { return Expr{expr.Downcase(e.e)} }
func (e Expr) Strip() Expr    { return Expr{expr.Strip(e.e)} }
func (e Expr) Length() Expr   { return Expr{expr.Length(e.e)} }

func (e Expr) Contains(pattern string) Expr  { return Expr{expr.Contains(e.e, pattern)} }
func (e Expr) StartsWith(prefix string) Expr { return Expr{expr.StartsWith(e.e, prefix)} }
func (e Expr) EndsWith(suffix string) Expr   { return Expr{expr.EndsWith(e.e, suffix)} }

// Datetime transforms

func (e Expr) Year() Expr    { return Expr{expr.Year(e.e)} }
func (e Expr) Month() Expr   { return Expr{expr.Month(e.e)} }
func (e Expr) Day() Expr     { return Expr{expr.Day(e.e)} }
func (e Expr) Hour() Expr    { return Expr{expr.Hour(e.e)} }
func (e Expr) Minute() Expr  { return Expr{expr.Minute(e.e)} }
func (e Expr) Second() Expr  { return Expr{expr.Second(e.e)} }
func (e Expr) Weekday() Expr { return Expr{expr.Weekday(e.e)} }

// Aggregations are valid only in GroupBy(...).Agg and Summarise.

func (e Expr) Sum() Expr     { return Expr{expr.Sum(e.e)} }
func (e Expr) Mean() Expr    { return Expr{expr.Mean(e.e)} }
func (e Expr) Min() Expr     { return Expr{expr.Min(e.e)} }
func (e Expr) Max() Expr     { return Expr{expr.Max(e.e)} }
func (e Expr) Count() Expr   { return Expr{expr.Count(e.e)} }
func (e Expr) First() Expr   { return Expr{expr.First(e.e)} }
func (e Expr) Last() Expr    { return Expr{expr.Last(e.e)} }
func (e Expr) NUnique() Expr { return Expr{expr.NUnique(e.e)} }

// Window functions

func (e Expr) CumSum() Expr              { return Expr{expr.CumSum(e.e)} }
func (e Expr) CumMin() Expr              { return Expr{expr.CumMin(e.e)} }
func (e Expr) CumMax() Expr              { return Expr{expr.CumMax(e.e)} }
func (e Expr) RollingSum(size int) Expr  { return Expr{expr.RollingSum(e.e, size)} }
func (e Expr) RollingMean(size int) Expr { return Expr{expr.RollingMean(e.e, size)} }
func (e Expr) RollingMin(size int) Expr  { return Expr{expr.RollingMin(e.e, size)} }
func (e Expr) RollingMax(size int) Expr  { return Expr{expr.RollingMax(e.e, size)} }
func (e Expr) Shift(offset int) Expr     { return Expr{expr.Shift(e.e, offset)} }

// Over evaluates a window function separately within each group of the
// given columns.
func (e Expr) Over(columns ...string) Expr {
	w, ok := e.e.(*expr.Window)
	if !ok {
		return Expr{&expr.Invalid{Message: "over applies to window functions only, got " + e.e.String()}}
	}
	return Expr{w.Over(columns...)}
}
