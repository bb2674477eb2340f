package dtype

import (
	"fmt"
	"math"
	"time"

	dferrors "github.com/vishal-h/explorer/internal/errors"
)

// LiteralOf returns the natural type of a Go scalar together with its
// canonical representation: int64 for signed integers, uint64 for unsigned
// integers, float64 for floats, and the value itself otherwise.
func LiteralOf(v any) (DType, any, error) {
	switch x := v.(type) {
	case nil:
		return Null, nil, nil
	case bool:
		return Boolean, x, nil
	case int:
		return Int64, int64(x), nil
	case int8:
		return Int8, int64(x), nil
	case int16:
		return Int16, int64(x), nil
	case int32:
		return Int32, int64(x), nil
	case int64:
		return Int64, x, nil
	case uint:
		return UInt64, uint64(x), nil
	case uint8:
		return UInt8, uint64(x), nil
	case uint16:
		return UInt16, uint64(x), nil
	case uint32:
		return UInt32, uint64(x), nil
	case uint64:
		return UInt64, x, nil
	case float32:
		return Float32, float64(x), nil
	case float64:
		return Float64, x, nil
	case string:
		return String, x, nil
	case []byte:
		return Binary, x, nil
	case time.Time:
		return Datetime(Microsecond), x, nil
	case time.Duration:
		return Duration(Microsecond), x, nil
	default:
		return DType{}, nil, dferrors.NewUnsupportedTypeError("Lit", fmt.Sprintf("%T", v))
	}
}

// Adopt returns the type a literal with the given natural type takes when
// combined with an operand of type target. Integer literals adopt integer
// and float column types, float literals adopt float types, null adopts
// anything, datetimes adopt date and datetime columns. Out-of-range integer
// literals fail with a TypeError.
func Adopt(value any, natural, target DType) (DType, error) {
	switch {
	case value == nil:
		return target, nil
	case natural.IsInteger() && target.IsInteger():
		if !fits(value, target) {
			return DType{}, dferrors.NewTypeError("Lit", "", fmt.Sprintf("literal %v out of range for %s", value, target))
		}
		return target, nil
	case natural.IsInteger() && target.IsFloat():
		return target, nil
	case natural.IsFloat() && target.IsFloat():
		return target, nil
	case natural.Kind == KindDatetime && (target.Kind == KindDatetime || target.Kind == KindDate):
		return target, nil
	case natural.Kind == KindDuration && target.Kind == KindDuration:
		return target, nil
	case natural.Kind == KindString && target.Kind == KindCategorical:
		return String, nil
	default:
		return natural, nil
	}
}

func fits(value any, t DType) bool {
	var lo, hi float64
	switch t.Kind {
	case KindInt8:
		lo, hi = math.MinInt8, math.MaxInt8
	case KindInt16:
		lo, hi = math.MinInt16, math.MaxInt16
	case KindInt32:
		lo, hi = math.MinInt32, math.MaxInt32
	case KindInt64:
		if u, ok := value.(uint64); ok {
			return u <= math.MaxInt64
		}
		return true
	case KindUInt8:
		lo, hi = 0, math.MaxUint8
	case KindUInt16:
		lo, hi = 0, math.MaxUint16
	case KindUInt32:
		lo, hi = 0, math.MaxUint32
	case KindUInt64:
		if i, ok := value.(int64); ok {
			return i >= 0
		}
		return true
	default:
		return false
	}
	switch x := value.(type) {
	case int64:
		return float64(x) >= lo && float64(x) <= hi
	case uint64:
		return float64(x) <= hi
	default:
		return false
	}
}

// Coerce converts a canonical literal value to the canonical representation
// of type t.
func Coerce(value any, t DType) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch {
	case t.IsSigned():
		switch x := value.(type) {
		case int64:
			return x, nil
		case uint64:
			if x <= math.MaxInt64 {
				return int64(x), nil
			}
		}
	case t.IsUnsigned():
		switch x := value.(type) {
		case uint64:
			return x, nil
		case int64:
			if x >= 0 {
				return uint64(x), nil
			}
		}
	case t.IsFloat():
		switch x := value.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		case uint64:
			return float64(x), nil
		}
	case t.Kind == KindDate || t.Kind == KindDatetime:
		if x, ok := value.(time.Time); ok {
			return x, nil
		}
	case t.Kind == KindDuration:
		if x, ok := value.(time.Duration); ok {
			return x, nil
		}
	case t.Kind == KindString || t.Kind == KindCategorical:
		if x, ok := value.(string); ok {
			return x, nil
		}
	case t.Kind == KindBoolean:
		if x, ok := value.(bool); ok {
			return x, nil
		}
	case t.Kind == KindBinary:
		if x, ok := value.([]byte); ok {
			return x, nil
		}
	}
	return nil, dferrors.NewTypeError("Cast", "", fmt.Sprintf("cannot represent %v as %s", value, t))
}
