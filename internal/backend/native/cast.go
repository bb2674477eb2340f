package native

import (
	"context"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/vishal-h/explorer/internal/column"
	"github.com/vishal-h/explorer/internal/dtype"
)

const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02 15:04:05.999999999"
)

// castArray converts arr to type to. Numeric, boolean and string parsing
// conversions run through arrow compute with safe (checked) options; a
// value that does not convert fails the cast. Rendering as text, temporal
// and categorical conversions are done here.
func castArray(ctx context.Context, mem memory.Allocator, arr arrow.Array, to dtype.DType) (arrow.Array, error) {
	target := to.ToArrow()
	if arrow.TypeEqual(arr.DataType(), target) {
		arr.Retain()
		return arr, nil
	}
	from, err := dtype.FromArrow(arr.DataType())
	if err != nil {
		return nil, err
	}

	switch {
	case from.IsNull():
		return column.Repeat(mem, to, nil, arr.Len())
	case from.Kind == dtype.KindCategorical:
		// Categorical values are their dictionary entries.
		d := arr.(*array.Dictionary)
		values, err := takeArray(ctx, d.Dictionary(), d.Indices())
		if err != nil {
			return nil, err
		}
		if to.Kind == dtype.KindString {
			return values, nil
		}
		defer values.Release()
		return castArray(ctx, mem, values, to)
	case to.Kind == dtype.KindCategorical:
		return toCategorical(ctx, mem, arr)
	case reinterpretable(from, to):
		data := array.NewData(target, arr.Len(), arr.Data().Buffers(), nil, arr.NullN(), arr.Data().Offset())
		defer data.Release()
		return array.MakeFromData(data), nil
	case from.IsTemporal() || to.IsTemporal():
		return castTemporal(mem, arr, from, to)
	case to.Kind == dtype.KindString:
		return toText(mem, arr)
	default:
		opts := compute.SafeCastOptions(target)
		opts.AllowFloatTruncate = true
		return compute.CastArray(ctx, arr, opts)
	}
}

// reinterpretable reports whether a temporal type shares its physical
// layout with the integer type it casts to.
func reinterpretable(from, to dtype.DType) bool {
	switch from.Kind {
	case dtype.KindDate:
		return to.Kind == dtype.KindInt32
	case dtype.KindDatetime, dtype.KindDuration, dtype.KindTime:
		return to.Kind == dtype.KindInt64
	default:
		return false
	}
}

func toCategorical(ctx context.Context, mem memory.Allocator, arr arrow.Array) (arrow.Array, error) {
	strs := arr
	if arr.DataType().ID() != arrow.STRING {
		var err error
		if strs, err = castArray(ctx, mem, arr, dtype.String); err != nil {
			return nil, err
		}
		defer strs.Release()
	}
	s := strs.(*array.String)
	bld := array.NewBuilder(mem, dtype.Categorical.ToArrow()).(*array.BinaryDictionaryBuilder)
	defer bld.Release()
	bld.Reserve(s.Len())
	for i := 0; i < s.Len(); i++ {
		if s.IsNull(i) {
			bld.AppendNull()
			continue
		}
		if err := bld.AppendString(s.Value(i)); err != nil {
			return nil, err
		}
	}
	return bld.NewArray(), nil
}

// castTemporal converts between dates, datetimes, durations and times, and
// renders temporal values as strings.
func castTemporal(mem memory.Allocator, arr arrow.Array, from, to dtype.DType) (arrow.Array, error) {
	var loc *time.Location
	if from.Kind == dtype.KindDatetime && from.TimeZone != "" {
		var err error
		if loc, err = time.LoadLocation(from.TimeZone); err != nil {
			return nil, err
		}
	}

	convert := func(v any) (any, error) {
		switch x := v.(type) {
		case time.Time:
			if loc != nil {
				x = x.In(loc)
			}
			switch to.Kind {
			case dtype.KindDatetime:
				return x, nil
			case dtype.KindDate:
				return time.Date(x.Year(), x.Month(), x.Day(), 0, 0, 0, 0, time.UTC), nil
			case dtype.KindString:
				if from.Kind == dtype.KindDate {
					return x.Format(dateLayout), nil
				}
				return x.Format(datetimeLayout), nil
			}
		case time.Duration:
			switch to.Kind {
			case dtype.KindDuration:
				return x, nil
			case dtype.KindString:
				return formatTimeOfDay(x), nil
			}
		}
		return nil, fmt.Errorf("cannot cast %s to %s", from, to)
	}

	bld := array.NewBuilder(mem, to.ToArrow())
	defer bld.Release()
	bld.Reserve(arr.Len())
	for i := 0; i < arr.Len(); i++ {
		v := column.Value(arr, i)
		if v != nil {
			var err error
			if v, err = convert(v); err != nil {
				return nil, err
			}
		}
		if err := column.Append(bld, to, v); err != nil {
			return nil, err
		}
	}
	return bld.NewArray(), nil
}

// toText renders numbers, booleans and binary values as strings. The compute
// kernel for these casts keeps a scratch buffer alive past the call.
func toText(mem memory.Allocator, arr arrow.Array) (arrow.Array, error) {
	bits := 64
	if arr.DataType().ID() == arrow.FLOAT32 {
		bits = 32
	}
	bld := array.NewStringBuilder(mem)
	defer bld.Release()
	bld.Reserve(arr.Len())
	for i := 0; i < arr.Len(); i++ {
		switch v := column.Value(arr, i).(type) {
		case nil:
			bld.AppendNull()
		case bool:
			bld.Append(strconv.FormatBool(v))
		case int64:
			bld.Append(strconv.FormatInt(v, 10))
		case uint64:
			bld.Append(strconv.FormatUint(v, 10))
		case float64:
			bld.Append(strconv.FormatFloat(v, 'g', -1, bits))
		case string:
			bld.Append(v)
		case []byte:
			if !utf8.Valid(v) {
				return nil, fmt.Errorf("binary value at row %d is not valid UTF-8", i)
			}
			bld.Append(string(v))
		default:
			return nil, fmt.Errorf("cannot cast %s to str", arr.DataType())
		}
	}
	return bld.NewArray(), nil
}

func formatTimeOfDay(d time.Duration) string {
	t := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC).Add(d)
	return t.Format("15:04:05.999999")
}
