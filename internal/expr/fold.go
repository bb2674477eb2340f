package expr

import (
	"cmp"
	"math"
	"math/bits"
	"strings"
	"time"

	"github.com/vishal-h/explorer/internal/dtype"
)

// Fold evaluates literal-only sub-expressions of a bound expression and
// applies the Kleene identities x and true = x, x or false = x,
// x and false = false, x or true = true. Integer arithmetic that would
// overflow its type is left for the backend, which reports it at execution.
func Fold(e Expr) Expr {
	return Transform(e, foldNode)
}

// IsLiteralTrue reports whether e is the boolean literal true.
func IsLiteralTrue(e Expr) bool {
	lit, ok := e.(*Literal)
	return ok && lit.Value == true
}

func foldNode(e Expr) Expr {
	switch n := e.(type) {
	case *Cast:
		if lit, ok := n.Arg.(*Literal); ok {
			if out, ok := convertLiteral(lit, n.To); ok {
				return out
			}
		}
	case *Unary:
		if lit, ok := n.Operand.(*Literal); ok {
			if out, ok := foldUnary(n.Op, lit); ok {
				return out
			}
		}
	case *Binary:
		if n.Op.IsLogical() {
			return foldLogical(n)
		}
		l, lok := n.Left.(*Literal)
		r, rok := n.Right.(*Literal)
		if lok && rok {
			if out, ok := foldBinary(n.Op, l, r); ok {
				return out
			}
		}
	}
	return e
}

func boolLit(v any) *Literal {
	return &Literal{Value: v, DType: dtype.Boolean, Bound: true}
}

func foldLogical(n *Binary) Expr {
	l, lok := n.Left.(*Literal)
	r, rok := n.Right.(*Literal)
	absorbing, identity := false, true
	if n.Op == OpOr {
		absorbing, identity = true, false
	}
	switch {
	case lok && l.Value == absorbing, rok && r.Value == absorbing:
		return boolLit(absorbing)
	case lok && l.Value == identity:
		return n.Right
	case rok && r.Value == identity:
		return n.Left
	case lok && rok:
		// Both are missing.
		return boolLit(nil)
	}
	return n
}

func foldUnary(op UnaryOp, lit *Literal) (*Literal, bool) {
	switch op {
	case UnaryIsNull:
		return boolLit(lit.Value == nil), true
	case UnaryIsNotNull:
		return boolLit(lit.Value != nil), true
	}
	if lit.Value == nil {
		return lit, true
	}
	switch op {
	case UnaryNot:
		if v, ok := lit.Value.(bool); ok {
			return boolLit(!v), true
		}
	case UnaryNeg, UnaryAbs:
		switch v := lit.Value.(type) {
		case int64:
			if op == UnaryAbs && v >= 0 {
				return lit, true
			}
			if v == math.MinInt64 {
				return nil, false
			}
			return typed(-v, lit.DType)
		case uint64:
			if op == UnaryAbs {
				return lit, true
			}
		case float64:
			if op == UnaryAbs {
				return typed(math.Abs(v), lit.DType)
			}
			return typed(-v, lit.DType)
		}
	}
	return nil, false
}

func foldBinary(op BinaryOp, l, r *Literal) (*Literal, bool) {
	if l.Value == nil || r.Value == nil {
		if op.IsComparison() {
			return boolLit(nil), true
		}
		t := l.DType
		if t.IsNull() {
			t = r.DType
		}
		return &Literal{DType: t, Bound: true}, true
	}
	if !l.DType.Equal(r.DType) {
		return nil, false
	}
	if op.IsComparison() {
		c, ok := compareValues(l.Value, r.Value)
		if !ok {
			return nil, false
		}
		return boolLit(comparisonHolds(op, c, l.Value, r.Value)), true
	}

	switch a := l.Value.(type) {
	case int64:
		b := r.Value.(int64)
		v, ok := intArith(op, a, b)
		if !ok {
			return nil, false
		}
		return typed(v, l.DType)
	case uint64:
		b := r.Value.(uint64)
		v, ok := uintArith(op, a, b)
		if !ok {
			return nil, false
		}
		return typed(v, l.DType)
	case float64:
		b := r.Value.(float64)
		var v float64
		switch op {
		case OpAdd:
			v = a + b
		case OpSub:
			v = a - b
		case OpMul:
			v = a * b
		case OpDiv:
			v = a / b
		default:
			return nil, false
		}
		if l.DType.Kind == dtype.KindFloat32 {
			v = float64(float32(v))
		}
		return typed(v, l.DType)
	}
	return nil, false
}

// typed wraps v as a literal of t when it is in range for t.
func typed(v any, t dtype.DType) (*Literal, bool) {
	if t.IsInteger() {
		natural := dtype.Int64
		if _, ok := v.(uint64); ok {
			natural = dtype.UInt64
		}
		if _, err := dtype.Adopt(v, natural, t); err != nil {
			return nil, false
		}
	}
	return &Literal{Value: v, DType: t, Bound: true}, true
}

func intArith(op BinaryOp, a, b int64) (int64, bool) {
	switch op {
	case OpAdd:
		c := a + b
		if (b > 0 && c < a) || (b < 0 && c > a) {
			return 0, false
		}
		return c, true
	case OpSub:
		c := a - b
		if (b > 0 && c > a) || (b < 0 && c < a) {
			return 0, false
		}
		return c, true
	case OpMul:
		if a == 0 || b == 0 {
			return 0, true
		}
		c := a * b
		if c/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return 0, false
		}
		return c, true
	default:
		return 0, false
	}
}

func uintArith(op BinaryOp, a, b uint64) (uint64, bool) {
	switch op {
	case OpAdd:
		c, carry := bits.Add64(a, b, 0)
		return c, carry == 0
	case OpSub:
		c, borrow := bits.Sub64(a, b, 0)
		return c, borrow == 0
	case OpMul:
		hi, lo := bits.Mul64(a, b)
		return lo, hi == 0
	default:
		return 0, false
	}
}

// compareValues orders two canonical values of the same type.
func compareValues(a, b any) (int, bool) {
	switch x := a.(type) {
	case int64:
		return cmp.Compare(x, b.(int64)), true
	case uint64:
		return cmp.Compare(x, b.(uint64)), true
	case float64:
		return cmp.Compare(x, b.(float64)), true
	case string:
		return strings.Compare(x, b.(string)), true
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		default:
			return 1, true
		}
	case time.Time:
		return x.Compare(b.(time.Time)), true
	case time.Duration:
		return cmp.Compare(x, b.(time.Duration)), true
	default:
		return 0, false
	}
}

func comparisonHolds(op BinaryOp, c int, a, b any) bool {
	// NaN compares unequal to everything, itself included.
	if x, ok := a.(float64); ok && (math.IsNaN(x) || math.IsNaN(b.(float64))) {
		return op == OpNe
	}
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGe:
		return c >= 0
	default:
		return false
	}
}
