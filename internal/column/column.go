// Package column converts between Go values and Arrow arrays.
//
// Values cross the boundary in their canonical form, the same one used by
// expression literals: int64 for signed integers, uint64 for unsigned
// integers, float64 for floats, string for strings and categoricals, bool,
// []byte, time.Time for dates and datetimes, time.Duration for durations and
// times of day, []any for lists and map[string]any for structs. A nil value
// is a missing element.
package column

import (
	"fmt"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/vishal-h/explorer/internal/dtype"
	dferrors "github.com/vishal-h/explorer/internal/errors"
)

// Build creates an array of type t holding values. Values may be given in
// any Go type accepted by dtype.LiteralOf; integers are range checked.
func Build(mem memory.Allocator, t dtype.DType, values []any) (arrow.Array, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	b := array.NewBuilder(mem, t.ToArrow())
	defer b.Release()
	b.Reserve(len(values))
	for i, v := range values {
		if err := Append(b, t, v); err != nil {
			return nil, dferrors.Reframe(err, "Build", fmt.Sprintf("[%d]", i))
		}
	}
	return b.NewArray(), nil
}

// Repeat creates an array of n copies of v.
func Repeat(mem memory.Allocator, t dtype.DType, v any, n int) (arrow.Array, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	b := array.NewBuilder(mem, t.ToArrow())
	defer b.Release()
	b.Reserve(n)
	for i := 0; i < n; i++ {
		if err := Append(b, t, v); err != nil {
			return nil, err
		}
	}
	return b.NewArray(), nil
}

// Append appends v, or a null when v is nil, to a builder of type t.
func Append(b array.Builder, t dtype.DType, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	switch bb := b.(type) {
	case *array.ListBuilder:
		items, ok := v.([]any)
		if !ok {
			return mismatch(v, t)
		}
		bb.Append(true)
		for _, item := range items {
			if err := Append(bb.ValueBuilder(), *t.Elem, item); err != nil {
				return err
			}
		}
		return nil
	case *array.StructBuilder:
		fields, ok := v.(map[string]any)
		if !ok {
			return mismatch(v, t)
		}
		bb.Append(true)
		for i, f := range t.Fields {
			if err := Append(bb.FieldBuilder(i), f.Type, fields[f.Name]); err != nil {
				return err
			}
		}
		return nil
	}

	natural, canon, err := dtype.LiteralOf(v)
	if err != nil {
		return err
	}
	if natural.IsInteger() && t.IsInteger() {
		if _, err := dtype.Adopt(canon, natural, t); err != nil {
			return dferrors.Reframe(err, "Build", "")
		}
	}
	if t.Kind == dtype.KindTime {
		if d, ok := canon.(time.Duration); ok {
			b.(*array.Time64Builder).Append(arrow.Time64(d.Microseconds()))
			return nil
		}
		return mismatch(v, t)
	}
	canon, err = dtype.Coerce(canon, t)
	if err != nil {
		return err
	}

	switch bb := b.(type) {
	case *array.BooleanBuilder:
		bb.Append(canon.(bool))
	case *array.Int8Builder:
		bb.Append(int8(canon.(int64)))
	case *array.Int16Builder:
		bb.Append(int16(canon.(int64)))
	case *array.Int32Builder:
		bb.Append(int32(canon.(int64)))
	case *array.Int64Builder:
		bb.Append(canon.(int64))
	case *array.Uint8Builder:
		bb.Append(uint8(canon.(uint64)))
	case *array.Uint16Builder:
		bb.Append(uint16(canon.(uint64)))
	case *array.Uint32Builder:
		bb.Append(uint32(canon.(uint64)))
	case *array.Uint64Builder:
		bb.Append(canon.(uint64))
	case *array.Float32Builder:
		bb.Append(float32(canon.(float64)))
	case *array.Float64Builder:
		bb.Append(canon.(float64))
	case *array.StringBuilder:
		bb.Append(canon.(string))
	case *array.BinaryBuilder:
		bb.Append(canon.([]byte))
	case *array.BinaryDictionaryBuilder:
		return bb.AppendString(canon.(string))
	case *array.Date32Builder:
		bb.Append(arrow.Date32FromTime(canon.(time.Time)))
	case *array.TimestampBuilder:
		unit := bb.Type().(*arrow.TimestampType).Unit
		ts, err := arrow.TimestampFromTime(canon.(time.Time), unit)
		if err != nil {
			return dferrors.NewInvalidInputError("Build", err.Error())
		}
		bb.Append(ts)
	case *array.DurationBuilder:
		unit := bb.Type().(*arrow.DurationType).Unit
		bb.Append(arrow.Duration(canon.(time.Duration) / unit.Multiplier()))
	default:
		return dferrors.NewUnsupportedTypeError("Build", t.String())
	}
	return nil
}

func mismatch(v any, t dtype.DType) error {
	return dferrors.NewTypeError("Build", "", fmt.Sprintf("cannot store %T in a %s column", v, t))
}

// Value returns element i of arr in canonical form, nil when missing.
func Value(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.Boolean:
		return a.Value(i)
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int64:
		return a.Value(i)
	case *array.Uint8:
		return uint64(a.Value(i))
	case *array.Uint16:
		return uint64(a.Value(i))
	case *array.Uint32:
		return uint64(a.Value(i))
	case *array.Uint64:
		return a.Value(i)
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.Binary:
		return append([]byte(nil), a.Value(i)...)
	case *array.Date32:
		return a.Value(i).ToTime()
	case *array.Time64:
		return time.Duration(a.Value(i)) * time.Microsecond
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit)
	case *array.Duration:
		unit := a.DataType().(*arrow.DurationType).Unit
		return time.Duration(a.Value(i)) * unit.Multiplier()
	case *array.Dictionary:
		dict := a.Dictionary()
		return Value(dict, a.GetValueIndex(i))
	case *array.List:
		start, end := a.ValueOffsets(i)
		items := make([]any, 0, end-start)
		values := a.ListValues()
		for j := start; j < end; j++ {
			items = append(items, Value(values, int(j)))
		}
		return items
	case *array.Struct:
		st := a.DataType().(*arrow.StructType)
		out := make(map[string]any, a.NumField())
		for f := 0; f < a.NumField(); f++ {
			out[st.Field(f).Name] = Value(a.Field(f), i)
		}
		return out
	case *array.Null:
		return nil
	default:
		panic(fmt.Sprintf("column: unsupported array %T", arr))
	}
}

// Values returns every element of arr in canonical form.
func Values(arr arrow.Array) []any {
	out := make([]any, arr.Len())
	for i := range out {
		out[i] = Value(arr, i)
	}
	return out
}

// Record assembles a record from equal-length arrays. The record holds its
// own references; the caller keeps ownership of cols.
func Record(schema *dtype.Schema, cols []arrow.Array) arrow.Record {
	n := int64(0)
	if len(cols) > 0 {
		n = int64(cols[0].Len())
	}
	return array.NewRecord(schema.ToArrow(), cols, n)
}

// Empty returns a zero-row record with the given schema.
func Empty(mem memory.Allocator, schema *dtype.Schema) arrow.Record {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	cols := make([]arrow.Array, schema.Len())
	for i, f := range schema.Fields() {
		b := array.NewBuilder(mem, f.Type.ToArrow())
		cols[i] = b.NewArray()
		b.Release()
	}
	rec := array.NewRecord(schema.ToArrow(), cols, 0)
	ReleaseAll(cols)
	return rec
}

// ReleaseAll releases every non-nil array.
func ReleaseAll(arrs []arrow.Array) {
	for _, a := range arrs {
		if a != nil {
			a.Release()
		}
	}
}

// Format renders a canonical value as text.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case []byte:
		return fmt.Sprintf("0x%x", x)
	case time.Time:
		if x.Equal(x.Truncate(24 * time.Hour)) {
			return x.UTC().Format("2006-01-02")
		}
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}
