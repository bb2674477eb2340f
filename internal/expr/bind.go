package expr

import (
	"fmt"

	"github.com/vishal-h/explorer/internal/dtype"
	dferrors "github.com/vishal-h/explorer/internal/errors"
)

// Bind type-checks e against schema and returns the bound expression with
// its output type. Binding resolves column references, gives every literal
// a concrete type (unbound literals adopt the type of the operand they meet)
// and makes every implicit conversion an explicit Cast node, so backends
// only ever see operands of matching types. Aggregations are rejected; use
// BindAggregation for group-by outputs. Binding a bound expression returns
// an equal expression.
func Bind(op string, e Expr, schema *dtype.Schema) (Expr, dtype.DType, error) {
	b := binder{op: op, schema: schema}
	out, t, err := b.bind(e)
	if err != nil {
		return nil, dtype.DType{}, err
	}
	return settle(out), t, nil
}

// BindAggregation binds a group-by output: an aggregation, optionally
// aliased, over a row-wise argument.
func BindAggregation(op string, e Expr, schema *dtype.Schema) (Expr, dtype.DType, error) {
	b := binder{op: op, schema: schema}

	var name string
	inner := e
	if a, ok := e.(*Alias); ok {
		name, inner = a.Name, a.Arg
	}
	agg, ok := inner.(*Agg)
	if !ok {
		return nil, dtype.DType{}, dferrors.NewTypeError(op, OutputName(e),
			fmt.Sprintf("%s is not an aggregation", e))
	}

	arg, argType, err := b.bind(agg.Arg)
	if err != nil {
		return nil, dtype.DType{}, err
	}
	arg = settle(arg)

	t, err := aggType(op, agg, argType)
	if err != nil {
		return nil, dtype.DType{}, err
	}

	var out Expr = &Agg{Fn: agg.Fn, Arg: arg}
	if name != "" {
		out = &Alias{Arg: out, Name: name}
	}
	return out, t, nil
}

func aggType(op string, agg *Agg, arg dtype.DType) (dtype.DType, error) {
	fail := func() (dtype.DType, error) {
		return dtype.DType{}, dferrors.NewTypeError(op, OutputName(agg),
			fmt.Sprintf("%s is not defined for %s", agg.Fn, arg))
	}
	switch agg.Fn {
	case AggSum:
		if t, ok := dtype.SumType(arg); ok {
			return t, nil
		}
		return fail()
	case AggMean:
		if arg.IsNumeric() || arg.Kind == dtype.KindBoolean || arg.IsNull() {
			return dtype.Float64, nil
		}
		return fail()
	case AggMin, AggMax:
		if arg.IsNumeric() || arg.Kind == dtype.KindString || arg.Kind == dtype.KindBoolean ||
			arg.IsTemporal() || arg.IsNull() {
			return arg, nil
		}
		return fail()
	case AggCount, AggNUnique:
		return dtype.Int64, nil
	case AggFirst, AggLast:
		return arg, nil
	default:
		return dtype.DType{}, dferrors.NewInvalidInputError(op, fmt.Sprintf("unknown aggregation %d", agg.Fn))
	}
}

type binder struct {
	op     string
	schema *dtype.Schema
}

func (b binder) bind(e Expr) (Expr, dtype.DType, error) {
	switch n := e.(type) {
	case *Column:
		t, ok := b.schema.Lookup(n.Name)
		if !ok {
			return nil, dtype.DType{}, dferrors.NewColumnNotFoundError(b.op, n.Name)
		}
		return n, t, nil
	case *Literal:
		return n, n.DType, nil
	case *Invalid:
		return nil, dtype.DType{}, dferrors.NewInvalidInputError(b.op, n.Message)
	case *Unary:
		return b.bindUnary(n)
	case *Binary:
		return b.bindBinary(n)
	case *Cast:
		arg, from, err := b.bind(n.Arg)
		if err != nil {
			return nil, dtype.DType{}, err
		}
		if !dtype.Castable(from, n.To) {
			return nil, dtype.DType{}, dferrors.NewTypeError(b.op, OutputName(n.Arg),
				fmt.Sprintf("cannot cast %s to %s", from, n.To))
		}
		return castTo(settle(arg), from, n.To), n.To, nil
	case *Alias:
		arg, t, err := b.bind(n.Arg)
		if err != nil {
			return nil, dtype.DType{}, err
		}
		return &Alias{Arg: settle(arg), Name: n.Name}, t, nil
	case *Call:
		return b.bindCall(n)
	case *Agg:
		return nil, dtype.DType{}, dferrors.NewTypeError(b.op, OutputName(n),
			fmt.Sprintf("aggregation %s is only allowed in group-by or summarise", n))
	case *Window:
		return b.bindWindow(n)
	default:
		return nil, dtype.DType{}, dferrors.NewInvalidInputError(b.op, fmt.Sprintf("unsupported expression %T", e))
	}
}

func (b binder) bindUnary(n *Unary) (Expr, dtype.DType, error) {
	operand, t, err := b.bind(n.Operand)
	if err != nil {
		return nil, dtype.DType{}, err
	}
	operand = settle(operand)

	switch n.Op {
	case UnaryNeg:
		if !t.IsSigned() && !t.IsFloat() && !t.IsNull() {
			return nil, dtype.DType{}, dferrors.NewTypeError(b.op, OutputName(n),
				fmt.Sprintf("negation is not defined for %s", t))
		}
	case UnaryAbs:
		if !t.IsNumeric() && !t.IsNull() {
			return nil, dtype.DType{}, dferrors.NewTypeError(b.op, OutputName(n),
				fmt.Sprintf("abs is not defined for %s", t))
		}
	case UnaryNot:
		if t.Kind != dtype.KindBoolean && !t.IsNull() {
			return nil, dtype.DType{}, dferrors.NewTypeError(b.op, OutputName(n),
				fmt.Sprintf("not requires a boolean operand, got %s", t))
		}
		operand, t = castTo(operand, t, dtype.Boolean), dtype.Boolean
	case UnaryIsNull, UnaryIsNotNull:
		return &Unary{Op: n.Op, Operand: operand}, dtype.Boolean, nil
	default:
		return nil, dtype.DType{}, dferrors.NewInvalidInputError(b.op, fmt.Sprintf("unknown unary operator %d", n.Op))
	}
	return &Unary{Op: n.Op, Operand: operand}, t, nil
}

func (b binder) bindBinary(n *Binary) (Expr, dtype.DType, error) {
	l, lt, err := b.bind(n.Left)
	if err != nil {
		return nil, dtype.DType{}, err
	}
	r, rt, err := b.bind(n.Right)
	if err != nil {
		return nil, dtype.DType{}, err
	}

	if l, lt, err = adopt(l, lt, r, rt); err != nil {
		return nil, dtype.DType{}, dferrors.Reframe(err, b.op, OutputName(n))
	}
	if r, rt, err = adopt(r, rt, l, lt); err != nil {
		return nil, dtype.DType{}, dferrors.Reframe(err, b.op, OutputName(n))
	}
	l, r = settle(l), settle(r)

	var operand, result dtype.DType
	switch {
	case n.Op == OpDiv:
		result, err = dtype.Division(lt, rt)
		operand = result
	case n.Op.IsArithmetic():
		result, err = dtype.Arithmetic(n.Op.String(), lt, rt)
		operand = result
	case n.Op.IsComparison():
		operand, err = dtype.Comparison(n.Op.String(), lt, rt)
		result = dtype.Boolean
	case n.Op.IsLogical():
		err = dtype.Logical(n.Op.String(), lt, rt)
		operand, result = dtype.Boolean, dtype.Boolean
	default:
		return nil, dtype.DType{}, dferrors.NewInvalidInputError(b.op, fmt.Sprintf("unknown binary operator %d", n.Op))
	}
	if err != nil {
		return nil, dtype.DType{}, dferrors.Reframe(err, b.op, OutputName(n))
	}

	if !operand.IsNull() {
		l, r = castTo(l, lt, operand), castTo(r, rt, operand)
	}
	return &Binary{Left: l, Op: n.Op, Right: r}, result, nil
}

func (b binder) bindCall(n *Call) (Expr, dtype.DType, error) {
	if len(n.Args) == 0 {
		return nil, dtype.DType{}, dferrors.NewInvalidInputError(b.op, fmt.Sprintf("%s requires at least one argument", n.Fn))
	}
	args := make([]Expr, len(n.Args))
	types := make([]dtype.DType, len(n.Args))
	for i, a := range n.Args {
		bound, t, err := b.bind(a)
		if err != nil {
			return nil, dtype.DType{}, err
		}
		args[i], types[i] = settle(bound), t
	}

	column := OutputName(n)
	stringArg := func(i int) error {
		t := types[i]
		switch {
		case t.Kind == dtype.KindString:
		case t.Kind == dtype.KindCategorical || t.IsNull():
			args[i] = castTo(args[i], t, dtype.String)
		default:
			return dferrors.NewTypeError(b.op, column, fmt.Sprintf("%s requires a string argument, got %s", n.Fn, t))
		}
		return nil
	}
	patternArg := func() error {
		if len(args) != 2 {
			return dferrors.NewInvalidInputError(b.op, fmt.Sprintf("%s takes a column and a pattern", n.Fn))
		}
		lit, ok := args[1].(*Literal)
		if !ok || lit.DType.Kind != dtype.KindString {
			return dferrors.NewTypeError(b.op, column, fmt.Sprintf("%s requires a literal string pattern", n.Fn))
		}
		return nil
	}

	switch n.Fn {
	case FnUpcase, FnDowncase, FnStrip, FnLength:
		if len(args) != 1 {
			return nil, dtype.DType{}, dferrors.NewInvalidInputError(b.op, fmt.Sprintf("%s takes one argument", n.Fn))
		}
		if err := stringArg(0); err != nil {
			return nil, dtype.DType{}, err
		}
		if n.Fn == FnLength {
			return &Call{Fn: n.Fn, Args: args}, dtype.UInt32, nil
		}
		return &Call{Fn: n.Fn, Args: args}, dtype.String, nil
	case FnContains, FnStartsWith, FnEndsWith:
		if err := patternArg(); err != nil {
			return nil, dtype.DType{}, err
		}
		if err := stringArg(0); err != nil {
			return nil, dtype.DType{}, err
		}
		return &Call{Fn: n.Fn, Args: args}, dtype.Boolean, nil
	case FnConcat:
		for i := range args {
			if err := stringArg(i); err != nil {
				return nil, dtype.DType{}, err
			}
		}
		return &Call{Fn: n.Fn, Args: args}, dtype.String, nil
	case FnYear, FnMonth, FnDay, FnWeekday:
		if len(args) != 1 {
			return nil, dtype.DType{}, dferrors.NewInvalidInputError(b.op, fmt.Sprintf("%s takes one argument", n.Fn))
		}
		if k := types[0].Kind; k != dtype.KindDate && k != dtype.KindDatetime {
			return nil, dtype.DType{}, dferrors.NewTypeError(b.op, column,
				fmt.Sprintf("%s requires a date or datetime argument, got %s", n.Fn, types[0]))
		}
		if n.Fn == FnYear {
			return &Call{Fn: n.Fn, Args: args}, dtype.Int32, nil
		}
		return &Call{Fn: n.Fn, Args: args}, dtype.Int8, nil
	case FnHour, FnMinute, FnSecond:
		if len(args) != 1 {
			return nil, dtype.DType{}, dferrors.NewInvalidInputError(b.op, fmt.Sprintf("%s takes one argument", n.Fn))
		}
		if k := types[0].Kind; k != dtype.KindDatetime && k != dtype.KindTime {
			return nil, dtype.DType{}, dferrors.NewTypeError(b.op, column,
				fmt.Sprintf("%s requires a datetime or time argument, got %s", n.Fn, types[0]))
		}
		return &Call{Fn: n.Fn, Args: args}, dtype.Int8, nil
	default:
		return nil, dtype.DType{}, dferrors.NewInvalidInputError(b.op, fmt.Sprintf("unknown function %q", n.Fn))
	}
}

func (b binder) bindWindow(n *Window) (Expr, dtype.DType, error) {
	arg, t, err := b.bind(n.Arg)
	if err != nil {
		return nil, dtype.DType{}, err
	}
	if err := b.schema.Require(b.op, n.PartitionBy...); err != nil {
		return nil, dtype.DType{}, err
	}
	if n.Fn.IsRolling() && n.Size < 1 {
		return nil, dtype.DType{}, dferrors.NewInvalidInputError(b.op,
			fmt.Sprintf("%s window size must be positive, got %d", n.Fn, n.Size))
	}

	out := *n
	out.Arg = settle(arg)
	out.PartitionBy = append([]string(nil), n.PartitionBy...)

	numeric := func() error {
		if t.IsNumeric() || t.IsNull() {
			return nil
		}
		return dferrors.NewTypeError(b.op, OutputName(n), fmt.Sprintf("%s is not defined for %s", n.Fn, t))
	}

	switch n.Fn {
	case WinCumSum, WinRollingSum:
		if err := numeric(); err != nil {
			return nil, dtype.DType{}, err
		}
		result, _ := dtype.SumType(t)
		return &out, result, nil
	case WinRollingMean:
		if err := numeric(); err != nil {
			return nil, dtype.DType{}, err
		}
		return &out, dtype.Float64, nil
	case WinCumMin, WinCumMax, WinRollingMin, WinRollingMax:
		if err := numeric(); err != nil {
			return nil, dtype.DType{}, err
		}
		return &out, t, nil
	case WinShift:
		return &out, t, nil
	default:
		return nil, dtype.DType{}, dferrors.NewInvalidInputError(b.op, fmt.Sprintf("unknown window function %d", n.Fn))
	}
}

// adopt gives an unbound literal e the type of its operand other.
func adopt(e Expr, t dtype.DType, other Expr, ot dtype.DType) (Expr, dtype.DType, error) {
	lit, ok := e.(*Literal)
	if !ok || lit.Bound {
		return e, t, nil
	}
	if olit, ok := other.(*Literal); ok && !olit.Bound {
		return e, t, nil
	}
	adopted, err := dtype.Adopt(lit.Value, lit.DType, ot)
	if err != nil {
		return nil, dtype.DType{}, err
	}
	if adopted.Equal(lit.DType) {
		return e, t, nil
	}
	v, err := dtype.Coerce(lit.Value, adopted)
	if err != nil {
		return nil, dtype.DType{}, err
	}
	return &Literal{Value: v, DType: adopted, Bound: true}, adopted, nil
}

// settle fixes an unbound literal at its current type.
func settle(e Expr) Expr {
	if lit, ok := e.(*Literal); ok && !lit.Bound {
		return &Literal{Value: lit.Value, DType: lit.DType, Bound: true}
	}
	return e
}

// castTo converts e from type from to type to. Literals are converted in
// place when the value is representable; everything else gets a Cast node.
func castTo(e Expr, from, to dtype.DType) Expr {
	if from.Equal(to) {
		return e
	}
	if lit, ok := e.(*Literal); ok {
		if converted, ok := convertLiteral(lit, to); ok {
			return converted
		}
	}
	return &Cast{Arg: e, To: to}
}

func convertLiteral(lit *Literal, to dtype.DType) (*Literal, bool) {
	if lit.Value == nil {
		return &Literal{DType: to, Bound: true}, true
	}
	switch {
	case to.IsInteger():
		if !lit.DType.IsInteger() {
			return nil, false
		}
		if _, err := dtype.Adopt(lit.Value, lit.DType, to); err != nil {
			return nil, false
		}
	case to.IsFloat():
		if !lit.DType.IsNumeric() {
			return nil, false
		}
	case to.Kind == dtype.KindString:
		if lit.DType.Kind != dtype.KindString {
			return nil, false
		}
	default:
		return nil, false
	}
	v, err := dtype.Coerce(lit.Value, to)
	if err != nil {
		return nil, false
	}
	return &Literal{Value: v, DType: to, Bound: true}, true
}
