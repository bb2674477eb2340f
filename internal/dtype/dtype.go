// Package dtype is the backend-independent type model: the closed set of
// element types a series may hold, their textual form, the mapping to Arrow
// physical types and the promotion rules used for static type inference.
package dtype

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	dferrors "github.com/vishal-h/explorer/internal/errors"
)

// Kind enumerates the supported element types.
type Kind uint8

const (
	KindNull Kind = iota
	KindBoolean
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUInt8
	KindUInt16
	KindUInt32
	KindUInt64
	KindFloat32
	KindFloat64
	KindString
	KindBinary
	KindDate
	KindTime
	KindDatetime
	KindDuration
	KindCategorical
	KindList
	KindStruct
)

// TimeUnit is the resolution of datetime and duration values.
type TimeUnit uint8

const (
	Millisecond TimeUnit = iota
	Microsecond
	Nanosecond
)

func (u TimeUnit) String() string {
	switch u {
	case Millisecond:
		return "ms"
	case Microsecond:
		return "us"
	case Nanosecond:
		return "ns"
	default:
		return fmt.Sprintf("unit(%d)", uint8(u))
	}
}

func (u TimeUnit) arrow() arrow.TimeUnit {
	switch u {
	case Millisecond:
		return arrow.Millisecond
	case Nanosecond:
		return arrow.Nanosecond
	default:
		return arrow.Microsecond
	}
}

func unitFromArrow(u arrow.TimeUnit) (TimeUnit, bool) {
	switch u {
	case arrow.Millisecond:
		return Millisecond, true
	case arrow.Microsecond:
		return Microsecond, true
	case arrow.Nanosecond:
		return Nanosecond, true
	default:
		return 0, false
	}
}

// DType is an element type. Parameterized kinds use Unit/TimeZone
// (datetime, duration), Elem (list) and Fields (struct).
type DType struct {
	Kind     Kind
	Unit     TimeUnit
	TimeZone string
	Elem     *DType
	Fields   []Field
}

// Field is a named type, used both for struct members and schema columns.
type Field struct {
	Name string
	Type DType
}

var (
	Null        = DType{Kind: KindNull}
	Boolean     = DType{Kind: KindBoolean}
	Int8        = DType{Kind: KindInt8}
	Int16       = DType{Kind: KindInt16}
	Int32       = DType{Kind: KindInt32}
	Int64       = DType{Kind: KindInt64}
	UInt8       = DType{Kind: KindUInt8}
	UInt16      = DType{Kind: KindUInt16}
	UInt32      = DType{Kind: KindUInt32}
	UInt64      = DType{Kind: KindUInt64}
	Float32     = DType{Kind: KindFloat32}
	Float64     = DType{Kind: KindFloat64}
	String      = DType{Kind: KindString}
	Binary      = DType{Kind: KindBinary}
	Date        = DType{Kind: KindDate}
	Time        = DType{Kind: KindTime}
	Categorical = DType{Kind: KindCategorical}
)

// Datetime returns a timestamp type with the given resolution and optional zone.
func Datetime(unit TimeUnit, zone ...string) DType {
	dt := DType{Kind: KindDatetime, Unit: unit}
	if len(zone) > 0 {
		dt.TimeZone = zone[0]
	}
	return dt
}

// Duration returns an elapsed-time type with the given resolution.
func Duration(unit TimeUnit) DType {
	return DType{Kind: KindDuration, Unit: unit}
}

// List returns the list-of-elem type.
func List(elem DType) DType {
	e := elem
	return DType{Kind: KindList, Elem: &e}
}

// Struct returns a struct type with the given named fields.
func Struct(fields ...Field) DType {
	fs := make([]Field, len(fields))
	copy(fs, fields)
	return DType{Kind: KindStruct, Fields: fs}
}

// Equal reports deep type equality.
func (t DType) Equal(o DType) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindDatetime:
		return t.Unit == o.Unit && t.TimeZone == o.TimeZone
	case KindDuration:
		return t.Unit == o.Unit
	case KindList:
		return t.Elem.Equal(*o.Elem)
	case KindStruct:
		if len(t.Fields) != len(o.Fields) {
			return false
		}
		for i := range t.Fields {
			if t.Fields[i].Name != o.Fields[i].Name || !t.Fields[i].Type.Equal(o.Fields[i].Type) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func (t DType) IsNull() bool { return t.Kind == KindNull }

func (t DType) IsSigned() bool {
	return t.Kind >= KindInt8 && t.Kind <= KindInt64
}

func (t DType) IsUnsigned() bool {
	return t.Kind >= KindUInt8 && t.Kind <= KindUInt64
}

func (t DType) IsInteger() bool { return t.IsSigned() || t.IsUnsigned() }

func (t DType) IsFloat() bool {
	return t.Kind == KindFloat32 || t.Kind == KindFloat64
}

func (t DType) IsNumeric() bool { return t.IsInteger() || t.IsFloat() }

func (t DType) IsTemporal() bool {
	switch t.Kind {
	case KindDate, KindTime, KindDatetime, KindDuration:
		return true
	default:
		return false
	}
}

// IsStringLike reports whether values are UTF-8 text.
func (t DType) IsStringLike() bool {
	return t.Kind == KindString || t.Kind == KindCategorical
}

// BitWidth is the value width of numeric kinds and 0 otherwise.
func (t DType) BitWidth() int {
	switch t.Kind {
	case KindInt8, KindUInt8:
		return 8
	case KindInt16, KindUInt16:
		return 16
	case KindInt32, KindUInt32, KindFloat32:
		return 32
	case KindInt64, KindUInt64, KindFloat64:
		return 64
	default:
		return 0
	}
}

var kindNames = map[Kind]string{
	KindNull:        "null",
	KindBoolean:     "bool",
	KindInt8:        "i8",
	KindInt16:       "i16",
	KindInt32:       "i32",
	KindInt64:       "i64",
	KindUInt8:       "u8",
	KindUInt16:      "u16",
	KindUInt32:      "u32",
	KindUInt64:      "u64",
	KindFloat32:     "f32",
	KindFloat64:     "f64",
	KindString:      "str",
	KindBinary:      "binary",
	KindDate:        "date",
	KindTime:        "time",
	KindCategorical: "cat",
}

// String renders the type in its parseable textual form, e.g. "i64",
// "datetime[us]", "list[str]" or "struct{a: i64, b: str}".
func (t DType) String() string {
	switch t.Kind {
	case KindDatetime:
		if t.TimeZone != "" {
			return fmt.Sprintf("datetime[%s, %s]", t.Unit, t.TimeZone)
		}
		return fmt.Sprintf("datetime[%s]", t.Unit)
	case KindDuration:
		return fmt.Sprintf("duration[%s]", t.Unit)
	case KindList:
		return fmt.Sprintf("list[%s]", t.Elem.String())
	case KindStruct:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Name + ": " + f.Type.String()
		}
		return "struct{" + strings.Join(parts, ", ") + "}"
	default:
		if name, ok := kindNames[t.Kind]; ok {
			return name
		}
		return fmt.Sprintf("kind(%d)", uint8(t.Kind))
	}
}

// ToArrow returns the Arrow physical type backing t.
func (t DType) ToArrow() arrow.DataType {
	switch t.Kind {
	case KindNull:
		return arrow.Null
	case KindBoolean:
		return arrow.FixedWidthTypes.Boolean
	case KindInt8:
		return arrow.PrimitiveTypes.Int8
	case KindInt16:
		return arrow.PrimitiveTypes.Int16
	case KindInt32:
		return arrow.PrimitiveTypes.Int32
	case KindInt64:
		return arrow.PrimitiveTypes.Int64
	case KindUInt8:
		return arrow.PrimitiveTypes.Uint8
	case KindUInt16:
		return arrow.PrimitiveTypes.Uint16
	case KindUInt32:
		return arrow.PrimitiveTypes.Uint32
	case KindUInt64:
		return arrow.PrimitiveTypes.Uint64
	case KindFloat32:
		return arrow.PrimitiveTypes.Float32
	case KindFloat64:
		return arrow.PrimitiveTypes.Float64
	case KindString:
		return arrow.BinaryTypes.String
	case KindBinary:
		return arrow.BinaryTypes.Binary
	case KindDate:
		return arrow.FixedWidthTypes.Date32
	case KindTime:
		return arrow.FixedWidthTypes.Time64us
	case KindDatetime:
		return &arrow.TimestampType{Unit: t.Unit.arrow(), TimeZone: t.TimeZone}
	case KindDuration:
		return &arrow.DurationType{Unit: t.Unit.arrow()}
	case KindCategorical:
		return &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int32, ValueType: arrow.BinaryTypes.String}
	case KindList:
		return arrow.ListOf(t.Elem.ToArrow())
	case KindStruct:
		fields := make([]arrow.Field, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = arrow.Field{Name: f.Name, Type: f.Type.ToArrow(), Nullable: true}
		}
		return arrow.StructOf(fields...)
	default:
		panic(fmt.Sprintf("dtype: no arrow mapping for %s", t))
	}
}

// FromArrow maps an Arrow type onto the model. Arrow types without a direct
// counterpart (large strings, second-resolution timestamps, ...) are
// rejected; see Normalize for the conversion target.
func FromArrow(dt arrow.DataType) (DType, error) {
	switch dt.ID() {
	case arrow.NULL:
		return Null, nil
	case arrow.BOOL:
		return Boolean, nil
	case arrow.INT8:
		return Int8, nil
	case arrow.INT16:
		return Int16, nil
	case arrow.INT32:
		return Int32, nil
	case arrow.INT64:
		return Int64, nil
	case arrow.UINT8:
		return UInt8, nil
	case arrow.UINT16:
		return UInt16, nil
	case arrow.UINT32:
		return UInt32, nil
	case arrow.UINT64:
		return UInt64, nil
	case arrow.FLOAT32:
		return Float32, nil
	case arrow.FLOAT64:
		return Float64, nil
	case arrow.STRING:
		return String, nil
	case arrow.BINARY:
		return Binary, nil
	case arrow.DATE32:
		return Date, nil
	case arrow.TIME64:
		if dt.(*arrow.Time64Type).Unit == arrow.Microsecond {
			return Time, nil
		}
	case arrow.TIMESTAMP:
		ts := dt.(*arrow.TimestampType)
		if unit, ok := unitFromArrow(ts.Unit); ok {
			return Datetime(unit, ts.TimeZone), nil
		}
	case arrow.DURATION:
		if unit, ok := unitFromArrow(dt.(*arrow.DurationType).Unit); ok {
			return Duration(unit), nil
		}
	case arrow.DICTIONARY:
		dict := dt.(*arrow.DictionaryType)
		if dict.IndexType.ID() == arrow.INT32 && dict.ValueType.ID() == arrow.STRING {
			return Categorical, nil
		}
	case arrow.LIST:
		elem, err := FromArrow(dt.(*arrow.ListType).Elem())
		if err != nil {
			return DType{}, err
		}
		return List(elem), nil
	case arrow.STRUCT:
		st := dt.(*arrow.StructType)
		fields := make([]Field, 0, st.NumFields())
		for _, f := range st.Fields() {
			ft, err := FromArrow(f.Type)
			if err != nil {
				return DType{}, err
			}
			fields = append(fields, Field{Name: f.Name, Type: ft})
		}
		return Struct(fields...), nil
	}
	return DType{}, dferrors.NewUnsupportedTypeError("dtype", dt.String())
}

// Normalize returns the supported Arrow type that dt should be cast to, and
// whether a cast is needed at all.
func Normalize(dt arrow.DataType) (arrow.DataType, bool) {
	switch dt.ID() {
	case arrow.LARGE_STRING:
		return arrow.BinaryTypes.String, true
	case arrow.LARGE_BINARY:
		return arrow.BinaryTypes.Binary, true
	case arrow.FLOAT16:
		return arrow.PrimitiveTypes.Float32, true
	case arrow.DATE64:
		return arrow.FixedWidthTypes.Date32, true
	case arrow.TIME32:
		return arrow.FixedWidthTypes.Time64us, true
	case arrow.TIME64:
		if dt.(*arrow.Time64Type).Unit != arrow.Microsecond {
			return arrow.FixedWidthTypes.Time64us, true
		}
	case arrow.TIMESTAMP:
		ts := dt.(*arrow.TimestampType)
		if ts.Unit == arrow.Second {
			return &arrow.TimestampType{Unit: arrow.Millisecond, TimeZone: ts.TimeZone}, true
		}
	case arrow.DURATION:
		if dt.(*arrow.DurationType).Unit == arrow.Second {
			return &arrow.DurationType{Unit: arrow.Millisecond}, true
		}
	}
	return dt, false
}
