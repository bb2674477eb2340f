// Package testutil provides common testing utilities shared by the package
// tests: leak-checked allocators, record construction from Go values,
// record assertions and a logger routed to the test log.
package testutil

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishal-h/explorer/internal/column"
	"github.com/vishal-h/explorer/internal/dtype"
)

// TestMemoryContext provides a leak-checking allocator.
type TestMemoryContext struct {
	Allocator *memory.CheckedAllocator
	tb        testing.TB
}

// Release asserts that everything allocated through the context was freed.
func (tmc *TestMemoryContext) Release() {
	tmc.tb.Helper()
	tmc.Allocator.AssertSize(tmc.tb, 0)
}

// SetupMemoryTest creates a checked allocator for tests.
//
// Example usage:
//
//	mem := testutil.SetupMemoryTest(t)
//	defer mem.Release()
func SetupMemoryTest(tb testing.TB) *TestMemoryContext {
	tb.Helper()
	return &TestMemoryContext{
		Allocator: memory.NewCheckedAllocator(memory.NewGoAllocator()),
		tb:        tb,
	}
}

// ColumnSpec describes one test column.
type ColumnSpec struct {
	Name   string
	Type   dtype.DType
	Values []any
}

// Col describes a column of an arbitrary type.
func Col(name string, t dtype.DType, values ...any) ColumnSpec {
	return ColumnSpec{Name: name, Type: t, Values: values}
}

func Int64(name string, values ...any) ColumnSpec   { return Col(name, dtype.Int64, values...) }
func Int8(name string, values ...any) ColumnSpec    { return Col(name, dtype.Int8, values...) }
func Float64(name string, values ...any) ColumnSpec { return Col(name, dtype.Float64, values...) }
func String(name string, values ...any) ColumnSpec  { return Col(name, dtype.String, values...) }
func Bool(name string, values ...any) ColumnSpec    { return Col(name, dtype.Boolean, values...) }

// NewRecord builds a record from column specs. The caller releases it.
func NewRecord(tb testing.TB, mem memory.Allocator, cols ...ColumnSpec) arrow.Record {
	tb.Helper()
	fields := make([]dtype.Field, len(cols))
	arrays := make([]arrow.Array, len(cols))
	defer column.ReleaseAll(arrays)
	for i, c := range cols {
		fields[i] = dtype.Field{Name: c.Name, Type: c.Type}
		arr, err := column.Build(mem, c.Type, c.Values)
		require.NoError(tb, err, "column %s", c.Name)
		arrays[i] = arr
	}
	schema, err := dtype.NewSchema(fields...)
	require.NoError(tb, err)
	return column.Record(schema, arrays)
}

// CreateTestRecord creates the standard employee fixture:
//
//	name (str):       Alice, Bob, Charlie, David
//	age (i64):        25, 30, 35, 28
//	department (str): Engineering, Sales, Engineering, Marketing
//	salary (i64):     100000, 80000, 120000, 75000
func CreateTestRecord(tb testing.TB, mem memory.Allocator) arrow.Record {
	tb.Helper()
	return NewRecord(tb, mem,
		String("name", "Alice", "Bob", "Charlie", "David"),
		Int64("age", 25, 30, 35, 28),
		String("department", "Engineering", "Sales", "Engineering", "Marketing"),
		Int64("salary", 100000, 80000, 120000, 75000),
	)
}

// Columns returns the record's columns by name in canonical value form.
func Columns(rec arrow.Record) map[string][]any {
	out := make(map[string][]any, rec.NumCols())
	for i, f := range rec.Schema().Fields() {
		out[f.Name] = column.Values(rec.Column(i))
	}
	return out
}

// Names returns the record's column names in order.
func Names(rec arrow.Record) []string {
	names := make([]string, rec.NumCols())
	for i, f := range rec.Schema().Fields() {
		names[i] = f.Name
	}
	return names
}

// AssertRecordEqual compares schemas and values of two records.
func AssertRecordEqual(t testing.TB, expected, actual arrow.Record) {
	t.Helper()
	require.NotNil(t, actual)
	assert.True(t, expected.Schema().Equal(actual.Schema()),
		"schema mismatch:\nexpected %s\nactual   %s", expected.Schema(), actual.Schema())
	assert.Equal(t, expected.NumRows(), actual.NumRows())
	assert.Equal(t, Columns(expected), Columns(actual))
}

// AssertColumns checks the record's column order and values.
func AssertColumns(t testing.TB, rec arrow.Record, want ...ColumnSpec) {
	t.Helper()
	require.NotNil(t, rec)
	names := make([]string, len(want))
	for i, c := range want {
		names[i] = c.Name
	}
	require.Equal(t, names, Names(rec))
	got := Columns(rec)
	for _, c := range want {
		assert.Equal(t, normalize(c), got[c.Name], "column %s", c.Name)
		if idx := rec.Schema().FieldIndices(c.Name); len(idx) == 1 {
			dt, err := dtype.FromArrow(rec.Schema().Field(idx[0]).Type)
			require.NoError(t, err)
			assert.Equal(t, c.Type.String(), dt.String(), "type of column %s", c.Name)
		}
	}
}

// normalize converts spec values to the canonical form returned by column.Values.
func normalize(c ColumnSpec) []any {
	out := make([]any, len(c.Values))
	for i, v := range c.Values {
		if v == nil {
			continue
		}
		_, canon, err := dtype.LiteralOf(v)
		if err != nil {
			out[i] = v
			continue
		}
		if conv, err := dtype.Coerce(canon, c.Type); err == nil {
			canon = conv
		}
		out[i] = canon
	}
	return out
}
