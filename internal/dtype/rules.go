package dtype

import (
	"fmt"

	dferrors "github.com/vishal-h/explorer/internal/errors"
)

func typeError(op string, l, r DType, reason string) error {
	return dferrors.NewTypeError(op, "", fmt.Sprintf("%s for %s and %s", reason, l, r))
}

func signedOfWidth(bits int) DType {
	switch bits {
	case 8:
		return Int8
	case 16:
		return Int16
	case 32:
		return Int32
	default:
		return Int64
	}
}

func wider(a, b DType) DType {
	if b.BitWidth() > a.BitWidth() {
		return b
	}
	return a
}

// floatWith is the float type produced by mixing integer i with float f.
func floatWith(i, f DType) DType {
	if f.Kind == KindFloat32 && i.BitWidth() <= 16 {
		return Float32
	}
	return Float64
}

// Arithmetic infers the result type of +, - and *. Integers of different
// types need an explicit cast; integer with float gives a float; strings
// never add.
func Arithmetic(op string, l, r DType) (DType, error) {
	switch {
	case l.IsNull() && r.IsNull():
		return Null, nil
	case l.IsNull() && r.IsNumeric():
		return r, nil
	case r.IsNull() && l.IsNumeric():
		return l, nil
	case !l.IsNumeric() || !r.IsNumeric():
		if l.IsStringLike() && r.IsStringLike() {
			return DType{}, typeError(op, l, r, "operator "+op+" is not defined, use concat")
		}
		return DType{}, typeError(op, l, r, "operator "+op+" is not defined")
	case l.IsInteger() && r.IsInteger():
		if !l.Equal(r) {
			return DType{}, typeError(op, l, r, "explicit cast required")
		}
		return l, nil
	case l.IsInteger():
		return floatWith(l, r), nil
	case r.IsInteger():
		return floatWith(r, l), nil
	default:
		return wider(l, r), nil
	}
}

// Division infers the result of "/": integer operands divide as Float64.
func Division(l, r DType) (DType, error) {
	switch {
	case l.IsNull() && r.IsNull():
		return Float64, nil
	case (l.IsNull() || l.IsNumeric()) && (r.IsNull() || r.IsNumeric()):
	default:
		return DType{}, typeError("/", l, r, "operator / is not defined")
	}
	switch {
	case l.IsFloat() && (r.IsFloat() || r.IsNull()):
		return wider(l, r), nil
	case r.IsFloat() && l.IsNull():
		return r, nil
	case l.IsFloat() && r.IsInteger():
		return floatWith(r, l), nil
	case r.IsFloat() && l.IsInteger():
		return floatWith(l, r), nil
	default:
		return Float64, nil
	}
}

// Comparison validates a comparison and returns the type both operands are
// compared at.
func Comparison(op string, l, r DType) (DType, error) {
	switch {
	case l.IsNull() && r.IsNull():
		return Null, nil
	case l.IsNull():
		return r, nil
	case r.IsNull():
		return l, nil
	case l.IsNumeric() && r.IsNumeric():
		return Supertype(l, r)
	case l.IsStringLike() && r.IsStringLike():
		if l.Equal(r) {
			return l, nil
		}
		return String, nil
	case l.Equal(r) && l.Kind != KindList && l.Kind != KindStruct:
		return l, nil
	default:
		return DType{}, typeError(op, l, r, "cannot compare")
	}
}

// Logical validates the operands of and/or.
func Logical(op string, l, r DType) error {
	ok := func(t DType) bool { return t.Kind == KindBoolean || t.IsNull() }
	if !ok(l) || !ok(r) {
		return typeError(op, l, r, "boolean operands required")
	}
	return nil
}

// Supertype is the narrowest type both l and r convert to without loss.
// Mixed signedness widens to the next signed width; u64 with a signed type
// risks overflow and promotes to f64.
func Supertype(l, r DType) (DType, error) {
	switch {
	case l.Equal(r):
		return l, nil
	case l.IsNull():
		return r, nil
	case r.IsNull():
		return l, nil
	case l.IsInteger() && r.IsInteger():
		if l.IsSigned() == r.IsSigned() {
			return wider(l, r), nil
		}
		s, u := l, r
		if l.IsUnsigned() {
			s, u = r, l
		}
		if u.BitWidth() < s.BitWidth() {
			return s, nil
		}
		if u.BitWidth() < 64 {
			return signedOfWidth(u.BitWidth() * 2), nil
		}
		return Float64, nil
	case l.IsInteger() && r.IsFloat():
		return floatWith(l, r), nil
	case l.IsFloat() && r.IsInteger():
		return floatWith(r, l), nil
	case l.IsFloat() && r.IsFloat():
		return wider(l, r), nil
	case l.IsStringLike() && r.IsStringLike():
		return String, nil
	default:
		return DType{}, typeError("supertype", l, r, "no common type")
	}
}

// Castable reports whether an explicit cast from one type to another is
// defined.
func Castable(from, to DType) bool {
	switch {
	case from.Equal(to) || from.IsNull():
		return true
	case to.Kind == KindList || to.Kind == KindStruct || from.Kind == KindList || from.Kind == KindStruct:
		return false
	case from.IsNumeric() || from.Kind == KindBoolean:
		return to.IsNumeric() || to.Kind == KindBoolean || to.Kind == KindString
	case from.Kind == KindString:
		return to.IsNumeric() || to.Kind == KindBoolean || to.Kind == KindCategorical
	case from.Kind == KindCategorical:
		return to.Kind == KindString
	case from.Kind == KindDate:
		return to.Kind == KindDatetime || to.Kind == KindInt32 || to.Kind == KindString
	case from.Kind == KindDatetime:
		return to.Kind == KindDatetime || to.Kind == KindDate || to.Kind == KindInt64 || to.Kind == KindString
	case from.Kind == KindDuration:
		return to.Kind == KindDuration || to.Kind == KindInt64
	case from.Kind == KindTime:
		return to.Kind == KindInt64 || to.Kind == KindString
	default:
		return false
	}
}

// SumType is the result type of summing values of type t.
func SumType(t DType) (DType, bool) {
	switch {
	case t.IsSigned() || t.Kind == KindBoolean || t.IsNull():
		return Int64, true
	case t.IsUnsigned():
		return UInt64, true
	case t.IsFloat():
		return t, true
	default:
		return DType{}, false
	}
}
