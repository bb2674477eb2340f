// Package expr provides the expression nodes of the lazy query IR.
//
// Expressions form a closed set of node types. Every node is immutable once
// built; rewrites (binding, folding, pushdown) construct new trees.
package expr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vishal-h/explorer/internal/dtype"
)

// ExprType represents the type of expression
type ExprType int

const (
	ExprColumn ExprType = iota
	ExprLiteral
	ExprUnary
	ExprBinary
	ExprCast
	ExprAlias
	ExprCall
	ExprAggregation
	ExprWindow
	ExprInvalid
)

// Expr represents an expression that can be evaluated lazily
type Expr interface {
	Type() ExprType
	String() string
}

// Column represents a column reference
type Column struct {
	Name string
}

func (c *Column) Type() ExprType { return ExprColumn }

func (c *Column) String() string {
	return fmt.Sprintf("col(%s)", c.Name)
}

// Literal represents a scalar value. Value holds the canonical Go
// representation (int64, uint64, float64, bool, string, []byte, time.Time,
// time.Duration or nil). An unbound literal still carries its natural type
// and adopts the type of the operand it meets during binding.
type Literal struct {
	Value any
	DType dtype.DType
	Bound bool
}

func (l *Literal) Type() ExprType { return ExprLiteral }

func (l *Literal) String() string {
	return "lit(" + formatValue(l.Value) + ")"
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case []byte:
		return fmt.Sprintf("0x%x", x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// UnaryOp represents unary operations
type UnaryOp int

const (
	UnaryNeg UnaryOp = iota
	UnaryNot
	UnaryIsNull
	UnaryIsNotNull
	UnaryAbs
)

func (op UnaryOp) String() string {
	switch op {
	case UnaryNeg:
		return "-"
	case UnaryNot:
		return "not"
	case UnaryIsNull:
		return "is_null"
	case UnaryIsNotNull:
		return "is_not_null"
	case UnaryAbs:
		return "abs"
	default:
		return "unknown"
	}
}

// Unary represents a unary operation
type Unary struct {
	Op      UnaryOp
	Operand Expr
}

func (u *Unary) Type() ExprType { return ExprUnary }

func (u *Unary) String() string {
	if u.Op == UnaryNeg {
		return "-" + u.Operand.String()
	}
	return fmt.Sprintf("%s(%s)", u.Op, u.Operand)
}

// BinaryOp represents binary operations
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
)

func (op BinaryOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	default:
		return "?"
	}
}

// IsArithmetic reports whether op is one of + - * /.
func (op BinaryOp) IsArithmetic() bool { return op <= OpDiv }

// IsComparison reports whether op compares its operands.
func (op BinaryOp) IsComparison() bool { return op >= OpEq && op <= OpGe }

// IsLogical reports whether op is a Kleene and/or.
func (op BinaryOp) IsLogical() bool { return op == OpAnd || op == OpOr }

// Binary represents a binary operation
type Binary struct {
	Left  Expr
	Op    BinaryOp
	Right Expr
}

func (b *Binary) Type() ExprType { return ExprBinary }

func (b *Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// Cast converts its argument to another type.
type Cast struct {
	Arg Expr
	To  dtype.DType
}

func (c *Cast) Type() ExprType { return ExprCast }

func (c *Cast) String() string {
	return fmt.Sprintf("cast(%s, %s)", c.Arg, c.To)
}

// Alias names the output of its argument.
type Alias struct {
	Arg  Expr
	Name string
}

func (a *Alias) Type() ExprType { return ExprAlias }

func (a *Alias) String() string {
	return fmt.Sprintf("alias(%s, %s)", a.Arg, a.Name)
}

// Function names a string or datetime transform.
type Function string

const (
	FnUpcase     Function = "upcase"
	FnDowncase   Function = "downcase"
	FnStrip      Function = "strip"
	FnLength     Function = "length"
	FnContains   Function = "contains"
	FnStartsWith Function = "starts_with"
	FnEndsWith   Function = "ends_with"
	FnConcat     Function = "concat"

	FnYear    Function = "year"
	FnMonth   Function = "month"
	FnDay     Function = "day"
	FnHour    Function = "hour"
	FnMinute  Function = "minute"
	FnSecond  Function = "second"
	FnWeekday Function = "weekday"
)

// Call represents a function call expression
type Call struct {
	Fn   Function
	Args []Expr
}

func (c *Call) Type() ExprType { return ExprCall }

func (c *Call) String() string {
	return string(c.Fn) + "(" + joinExprs(c.Args) + ")"
}

// AggFunc represents the type of aggregation function
type AggFunc int

const (
	AggSum AggFunc = iota
	AggMean
	AggMin
	AggMax
	AggCount
	AggFirst
	AggLast
	AggNUnique
)

func (f AggFunc) String() string {
	switch f {
	case AggSum:
		return "sum"
	case AggMean:
		return "mean"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggCount:
		return "count"
	case AggFirst:
		return "first"
	case AggLast:
		return "last"
	case AggNUnique:
		return "n_unique"
	default:
		return "unknown"
	}
}

// Agg represents an aggregation function over an expression
type Agg struct {
	Fn  AggFunc
	Arg Expr
}

func (a *Agg) Type() ExprType { return ExprAggregation }

func (a *Agg) String() string {
	return fmt.Sprintf("%s(%s)", a.Fn, a.Arg)
}

// WindowFunc represents a window function.
type WindowFunc int

const (
	WinCumSum WindowFunc = iota
	WinCumMin
	WinCumMax
	WinRollingSum
	WinRollingMean
	WinRollingMin
	WinRollingMax
	WinShift
)

func (f WindowFunc) String() string {
	switch f {
	case WinCumSum:
		return "cumulative_sum"
	case WinCumMin:
		return "cumulative_min"
	case WinCumMax:
		return "cumulative_max"
	case WinRollingSum:
		return "rolling_sum"
	case WinRollingMean:
		return "rolling_mean"
	case WinRollingMin:
		return "rolling_min"
	case WinRollingMax:
		return "rolling_max"
	case WinShift:
		return "shift"
	default:
		return "unknown"
	}
}

// IsRolling reports whether f works over a fixed-size trailing frame.
func (f WindowFunc) IsRolling() bool { return f >= WinRollingSum && f <= WinRollingMax }

// Window is a length-preserving function computed over neighbouring rows.
// Size is the frame length of rolling functions and Offset the distance of a
// shift; PartitionBy restarts the frame for every distinct key.
type Window struct {
	Fn          WindowFunc
	Arg         Expr
	Size        int
	Offset      int
	PartitionBy []string
}

func (w *Window) Type() ExprType { return ExprWindow }

func (w *Window) String() string {
	var sb strings.Builder
	sb.WriteString(w.Fn.String())
	sb.WriteString("(")
	sb.WriteString(w.Arg.String())
	switch {
	case w.Fn.IsRolling():
		fmt.Fprintf(&sb, ", %d", w.Size)
	case w.Fn == WinShift:
		fmt.Fprintf(&sb, ", %d", w.Offset)
	}
	sb.WriteString(")")
	if len(w.PartitionBy) > 0 {
		fmt.Fprintf(&sb, " over [%s]", strings.Join(w.PartitionBy, ", "))
	}
	return sb.String()
}

// Invalid represents an expression that could not be constructed. Binding
// it always fails with its message.
type Invalid struct {
	Message string
}

func (i *Invalid) Type() ExprType { return ExprInvalid }

func (i *Invalid) String() string {
	return fmt.Sprintf("invalid(%s)", i.Message)
}

func joinExprs(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

// Constructor functions

// Col creates a column expression
func Col(name string) *Column {
	return &Column{Name: name}
}

// Lit creates an unbound literal from a Go scalar. Unsupported Go types
// produce an Invalid expression.
func Lit(value any) Expr {
	natural, canonical, err := dtype.LiteralOf(value)
	if err != nil {
		return &Invalid{Message: err.Error()}
	}
	return &Literal{Value: canonical, DType: natural}
}

// TypedLit creates a literal that keeps type t instead of adopting the type
// of its operand. TypedLit(nil, t) is a typed missing value.
func TypedLit(value any, t dtype.DType) Expr {
	natural, canonical, err := dtype.LiteralOf(value)
	if err != nil {
		return &Invalid{Message: err.Error()}
	}
	if _, err := dtype.Adopt(canonical, natural, t); err != nil {
		return &Invalid{Message: err.Error()}
	}
	coerced, err := dtype.Coerce(canonical, t)
	if err != nil {
		return &Invalid{Message: err.Error()}
	}
	return &Literal{Value: coerced, DType: t, Bound: true}
}

// Unary operations

func Neg(e Expr) *Unary       { return &Unary{Op: UnaryNeg, Operand: e} }
func Not(e Expr) *Unary       { return &Unary{Op: UnaryNot, Operand: e} }
func IsNull(e Expr) *Unary    { return &Unary{Op: UnaryIsNull, Operand: e} }
func IsNotNull(e Expr) *Unary { return &Unary{Op: UnaryIsNotNull, Operand: e} }
func Abs(e Expr) *Unary       { return &Unary{Op: UnaryAbs, Operand: e} }

// Binary operations

func Add(l, r Expr) *Binary { return &Binary{Left: l, Op: OpAdd, Right: r} }
func Sub(l, r Expr) *Binary { return &Binary{Left: l, Op: OpSub, Right: r} }
func Mul(l, r Expr) *Binary { return &Binary{Left: l, Op: OpMul, Right: r} }
func Div(l, r Expr) *Binary { return &Binary{Left: l, Op: OpDiv, Right: r} }
func Eq(l, r Expr) *Binary  { return &Binary{Left: l, Op: OpEq, Right: r} }
func Ne(l, r Expr) *Binary  { return &Binary{Left: l, Op: OpNe, Right: r} }
func Lt(l, r Expr) *Binary  { return &Binary{Left: l, Op: OpLt, Right: r} }
func Le(l, r Expr) *Binary  { return &Binary{Left: l, Op: OpLe, Right: r} }
func Gt(l, r Expr) *Binary  { return &Binary{Left: l, Op: OpGt, Right: r} }
func Ge(l, r Expr) *Binary  { return &Binary{Left: l, Op: OpGe, Right: r} }
func And(l, r Expr) *Binary { return &Binary{Left: l, Op: OpAnd, Right: r} }
func Or(l, r Expr) *Binary  { return &Binary{Left: l, Op: OpOr, Right: r} }

// CastTo creates a cast expression
func CastTo(e Expr, to dtype.DType) *Cast { return &Cast{Arg: e, To: to} }

// As names the output of e.
func As(e Expr, name string) *Alias { return &Alias{Arg: e, Name: name} }

// String functions

func Upcase(e Expr) *Call   { return &Call{Fn: FnUpcase, Args: []Expr{e}} }
func Downcase(e Expr) *Call { return &Call{Fn: FnDowncase, Args: []Expr{e}} }
func Strip(e Expr) *Call    { return &Call{Fn: FnStrip, Args: []Expr{e}} }
func Length(e Expr) *Call   { return &Call{Fn: FnLength, Args: []Expr{e}} }

// Contains matches a literal substring.
func Contains(e Expr, pattern string) *Call {
	return &Call{Fn: FnContains, Args: []Expr{e, Lit(pattern)}}
}

func StartsWith(e Expr, prefix string) *Call {
	return &Call{Fn: FnStartsWith, Args: []Expr{e, Lit(prefix)}}
}

func EndsWith(e Expr, suffix string) *Call {
	return &Call{Fn: FnEndsWith, Args: []Expr{e, Lit(suffix)}}
}

// Concat joins string expressions row by row. A missing operand makes the
// row missing.
func Concat(exprs ...Expr) *Call { return &Call{Fn: FnConcat, Args: exprs} }

// Datetime functions

func Year(e Expr) *Call    { return &Call{Fn: FnYear, Args: []Expr{e}} }
func Month(e Expr) *Call   { return &Call{Fn: FnMonth, Args: []Expr{e}} }
func Day(e Expr) *Call     { return &Call{Fn: FnDay, Args: []Expr{e}} }
func Hour(e Expr) *Call    { return &Call{Fn: FnHour, Args: []Expr{e}} }
func Minute(e Expr) *Call  { return &Call{Fn: FnMinute, Args: []Expr{e}} }
func Second(e Expr) *Call  { return &Call{Fn: FnSecond, Args: []Expr{e}} }
func Weekday(e Expr) *Call { return &Call{Fn: FnWeekday, Args: []Expr{e}} }

// Aggregation constructor functions

func Sum(e Expr) *Agg     { return &Agg{Fn: AggSum, Arg: e} }
func Mean(e Expr) *Agg    { return &Agg{Fn: AggMean, Arg: e} }
func Min(e Expr) *Agg     { return &Agg{Fn: AggMin, Arg: e} }
func Max(e Expr) *Agg     { return &Agg{Fn: AggMax, Arg: e} }
func Count(e Expr) *Agg   { return &Agg{Fn: AggCount, Arg: e} }
func First(e Expr) *Agg   { return &Agg{Fn: AggFirst, Arg: e} }
func Last(e Expr) *Agg    { return &Agg{Fn: AggLast, Arg: e} }
func NUnique(e Expr) *Agg { return &Agg{Fn: AggNUnique, Arg: e} }

// Window constructor functions

func CumSum(e Expr) *Window { return &Window{Fn: WinCumSum, Arg: e} }
func CumMin(e Expr) *Window { return &Window{Fn: WinCumMin, Arg: e} }
func CumMax(e Expr) *Window { return &Window{Fn: WinCumMax, Arg: e} }

func RollingSum(e Expr, size int) *Window  { return &Window{Fn: WinRollingSum, Arg: e, Size: size} }
func RollingMean(e Expr, size int) *Window { return &Window{Fn: WinRollingMean, Arg: e, Size: size} }
func RollingMin(e Expr, size int) *Window  { return &Window{Fn: WinRollingMin, Arg: e, Size: size} }
func RollingMax(e Expr, size int) *Window  { return &Window{Fn: WinRollingMax, Arg: e, Size: size} }

// Shift moves values down by offset rows (up when negative), filling the
// vacated rows with missing values.
func Shift(e Expr, offset int) *Window { return &Window{Fn: WinShift, Arg: e, Offset: offset} }

// Over returns a copy of w partitioned by the given columns.
func (w *Window) Over(columns ...string) *Window {
	out := *w
	out.PartitionBy = append([]string(nil), columns...)
	return &out
}
