package dtype_test

import (
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dferrors "github.com/vishal-h/explorer/internal/errors"
	"github.com/vishal-h/explorer/internal/dtype"
)

func TestParseRoundTrip(t *testing.T) {
	types := []dtype.DType{
		dtype.Boolean, dtype.Int8, dtype.Int16, dtype.Int32, dtype.Int64,
		dtype.UInt8, dtype.UInt16, dtype.UInt32, dtype.UInt64,
		dtype.Float32, dtype.Float64, dtype.String, dtype.Binary,
		dtype.Date, dtype.Time, dtype.Categorical,
		dtype.Datetime(dtype.Millisecond), dtype.Datetime(dtype.Nanosecond, "UTC"),
		dtype.Duration(dtype.Microsecond),
		dtype.List(dtype.Int64),
		dtype.List(dtype.List(dtype.String)),
		dtype.Struct(dtype.Field{Name: "a", Type: dtype.Int64}, dtype.Field{Name: "b", Type: dtype.List(dtype.Float64)}),
	}

	for _, dt := range types {
		t.Run(dt.String(), func(t *testing.T) {
			parsed, err := dtype.Parse(dt.String())
			require.NoError(t, err)
			assert.True(t, dt.Equal(parsed), "parsed %s", parsed)
		})
	}
}

func TestParseAliases(t *testing.T) {
	tests := map[string]dtype.DType{
		"datetime[μs]": dtype.Datetime(dtype.Microsecond),
		"datetime":     dtype.Datetime(dtype.Microsecond),
		"string":       dtype.String,
		"categorical":  dtype.Categorical,
		" i64 ":        dtype.Int64,
	}
	for in, want := range tests {
		got, err := dtype.Parse(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%q parsed as %s", in, got)
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "i128", "list[i64", "datetime[s]", "struct{a i64}", "i64 extra"} {
		_, err := dtype.Parse(in)
		assert.ErrorIs(t, err, dferrors.ErrInvalidInput, in)
	}
}

func TestArrowMapping(t *testing.T) {
	types := []dtype.DType{
		dtype.Boolean, dtype.Int8, dtype.UInt64, dtype.Float32, dtype.String, dtype.Binary,
		dtype.Date, dtype.Time, dtype.Categorical, dtype.Datetime(dtype.Microsecond, "Europe/Paris"),
		dtype.Duration(dtype.Nanosecond), dtype.List(dtype.Int32),
		dtype.Struct(dtype.Field{Name: "x", Type: dtype.Boolean}),
	}
	for _, dt := range types {
		back, err := dtype.FromArrow(dt.ToArrow())
		require.NoError(t, err, dt.String())
		assert.True(t, dt.Equal(back), "%s came back as %s", dt, back)
	}

	_, err := dtype.FromArrow(arrow.BinaryTypes.LargeString)
	assert.ErrorIs(t, err, dferrors.ErrType)
}

func TestNormalize(t *testing.T) {
	target, needed := dtype.Normalize(&arrow.TimestampType{Unit: arrow.Second})
	assert.True(t, needed)
	assert.Equal(t, arrow.Millisecond, target.(*arrow.TimestampType).Unit)

	_, needed = dtype.Normalize(arrow.PrimitiveTypes.Int64)
	assert.False(t, needed)

	target, needed = dtype.Normalize(arrow.BinaryTypes.LargeString)
	assert.True(t, needed)
	assert.Equal(t, arrow.STRING, target.ID())
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name    string
		l, r    dtype.DType
		want    dtype.DType
		wantErr bool
	}{
		{"same integer", dtype.Int8, dtype.Int8, dtype.Int8, false},
		{"mixed integer widths", dtype.Int8, dtype.Int16, dtype.DType{}, true},
		{"mixed signedness", dtype.Int32, dtype.UInt32, dtype.DType{}, true},
		{"int and f64", dtype.Int32, dtype.Float64, dtype.Float64, false},
		{"small int and f32", dtype.Int16, dtype.Float32, dtype.Float32, false},
		{"wide int and f32", dtype.Int64, dtype.Float32, dtype.Float64, false},
		{"floats", dtype.Float32, dtype.Float64, dtype.Float64, false},
		{"null and int", dtype.Null, dtype.Int32, dtype.Int32, false},
		{"strings", dtype.String, dtype.String, dtype.DType{}, true},
		{"bool", dtype.Boolean, dtype.Int64, dtype.DType{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dtype.Arithmetic("+", tt.l, tt.r)
			if tt.wantErr {
				assert.ErrorIs(t, err, dferrors.ErrType)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestArithmeticIsAtLeastAsWideAsInputs(t *testing.T) {
	got, err := dtype.Arithmetic("+", dtype.Int8, dtype.Int8)
	require.NoError(t, err)
	assert.True(t, got.IsInteger())
	assert.GreaterOrEqual(t, got.BitWidth(), 8)
}

func TestStringAdditionSuggestsConcat(t *testing.T) {
	_, err := dtype.Arithmetic("+", dtype.String, dtype.String)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "use concat")
}

func TestDivision(t *testing.T) {
	got, err := dtype.Division(dtype.Int64, dtype.Int8)
	require.NoError(t, err)
	assert.Equal(t, dtype.KindFloat64, got.Kind)

	got, err = dtype.Division(dtype.Float32, dtype.Int8)
	require.NoError(t, err)
	assert.Equal(t, dtype.KindFloat32, got.Kind)

	_, err = dtype.Division(dtype.String, dtype.Int8)
	assert.ErrorIs(t, err, dferrors.ErrType)
}

func TestSupertype(t *testing.T) {
	tests := []struct {
		l, r, want dtype.DType
	}{
		{dtype.Int8, dtype.Int32, dtype.Int32},
		{dtype.UInt8, dtype.Int8, dtype.Int16},
		{dtype.UInt8, dtype.Int32, dtype.Int32},
		{dtype.UInt32, dtype.Int64, dtype.Int64},
		{dtype.UInt64, dtype.Int64, dtype.Float64},
		{dtype.Int64, dtype.Float32, dtype.Float64},
		{dtype.Categorical, dtype.String, dtype.String},
	}
	for _, tt := range tests {
		got, err := dtype.Supertype(tt.l, tt.r)
		require.NoError(t, err)
		assert.True(t, tt.want.Equal(got), "%s ^ %s = %s", tt.l, tt.r, got)
	}

	_, err := dtype.Supertype(dtype.Date, dtype.Int32)
	assert.ErrorIs(t, err, dferrors.ErrType)
}

func TestComparison(t *testing.T) {
	got, err := dtype.Comparison(">", dtype.Int8, dtype.Int64)
	require.NoError(t, err)
	assert.Equal(t, dtype.KindInt64, got.Kind)

	_, err = dtype.Comparison("==", dtype.String, dtype.Int64)
	assert.ErrorIs(t, err, dferrors.ErrType)

	got, err = dtype.Comparison("==", dtype.Date, dtype.Date)
	require.NoError(t, err)
	assert.Equal(t, dtype.KindDate, got.Kind)

	assert.NoError(t, dtype.Logical("and", dtype.Boolean, dtype.Null))
	assert.ErrorIs(t, dtype.Logical("or", dtype.Boolean, dtype.Int8), dferrors.ErrType)
}

func TestLiteralAdoption(t *testing.T) {
	natural, v, err := dtype.LiteralOf(1)
	require.NoError(t, err)
	assert.Equal(t, dtype.KindInt64, natural.Kind)
	assert.Equal(t, int64(1), v)

	adopted, err := dtype.Adopt(v, natural, dtype.Int8)
	require.NoError(t, err)
	assert.Equal(t, dtype.KindInt8, adopted.Kind)

	adopted, err = dtype.Adopt(v, natural, dtype.Float32)
	require.NoError(t, err)
	assert.Equal(t, dtype.KindFloat32, adopted.Kind)

	_, err = dtype.Adopt(int64(300), dtype.Int64, dtype.Int8)
	assert.ErrorIs(t, err, dferrors.ErrType)

	_, err = dtype.Adopt(int64(-1), dtype.Int64, dtype.UInt8)
	assert.ErrorIs(t, err, dferrors.ErrType)

	adopted, err = dtype.Adopt(nil, dtype.Null, dtype.String)
	require.NoError(t, err)
	assert.Equal(t, dtype.KindString, adopted.Kind)

	natural, v, err = dtype.LiteralOf(2.5)
	require.NoError(t, err)
	adopted, err = dtype.Adopt(v, natural, dtype.Int64)
	require.NoError(t, err)
	assert.Equal(t, dtype.KindFloat64, adopted.Kind, "float literals never narrow to integers")

	_, _, err = dtype.LiteralOf(complex(1, 2))
	assert.ErrorIs(t, err, dferrors.ErrType)
}

func TestCoerce(t *testing.T) {
	v, err := dtype.Coerce(int64(3), dtype.Float64)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	v, err = dtype.Coerce(int64(3), dtype.UInt16)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), v)

	now := time.Now()
	v, err = dtype.Coerce(now, dtype.Date)
	require.NoError(t, err)
	assert.Equal(t, now, v)

	_, err = dtype.Coerce("x", dtype.Int64)
	assert.ErrorIs(t, err, dferrors.ErrType)
}

func TestSchema(t *testing.T) {
	s, err := dtype.NewSchema(
		dtype.Field{Name: "a", Type: dtype.Int64},
		dtype.Field{Name: "b", Type: dtype.String},
		dtype.Field{Name: "c", Type: dtype.Boolean},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, s.Names())
	assert.Equal(t, "{a: i64, b: str, c: bool}", s.String())

	sel, err := s.Select("Select", "c", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, sel.Names())

	_, err = s.Select("Select", "missing")
	var dfErr *dferrors.DataFrameError
	require.ErrorAs(t, err, &dfErr)
	assert.Equal(t, dferrors.KindColumnNotFound, dfErr.Kind)
	assert.Equal(t, "missing", dfErr.Column)

	dropped, err := s.Drop("Drop", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, dropped.Names())

	replaced := s.With(dtype.Field{Name: "b", Type: dtype.Categorical})
	assert.Equal(t, "{a: i64, b: cat, c: bool}", replaced.String())
	assert.Equal(t, "{a: i64, b: str, c: bool}", s.String(), "schemas are immutable")

	back, err := dtype.SchemaFromArrow(s.ToArrow())
	require.NoError(t, err)
	assert.True(t, s.Equal(back))

	_, err = dtype.NewSchema(dtype.Field{Name: "a", Type: dtype.Int64}, dtype.Field{Name: "a", Type: dtype.Int8})
	assert.ErrorIs(t, err, dferrors.ErrInvalidInput)
}
