package memory_test

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	arrowmem "github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishal-h/explorer/internal/memory"
)

func buildInts(mem arrowmem.Allocator, values ...int64) arrow.Array {
	b := array.NewInt64Builder(mem)
	defer b.Release()
	b.AppendValues(values, nil)
	return b.NewArray()
}

func TestResourceTrackerReleasesEverything(t *testing.T) {
	mem := arrowmem.NewCheckedAllocator(arrowmem.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rt := memory.NewResourceTracker(mem)
	assert.Same(t, mem, rt.Allocator())

	memory.Track(rt, buildInts(rt.Allocator(), 1, 2, 3))
	memory.Track(rt, buildInts(rt.Allocator(), 4, 5))
	assert.Equal(t, 2, rt.TrackedCount())

	rt.ReleaseAll()
	assert.Equal(t, 0, rt.TrackedCount())
}

func TestResourceTrackerDetach(t *testing.T) {
	mem := arrowmem.NewCheckedAllocator(arrowmem.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rt := memory.NewResourceTracker(mem)
	kept := memory.Track(rt, buildInts(mem, 1, 2, 3))
	memory.Track(rt, buildInts(mem, 9))

	require.True(t, rt.Detach(kept))
	assert.False(t, rt.Detach(kept))
	rt.ReleaseAll()

	assert.Equal(t, 3, kept.Len())
	assert.Equal(t, int64(2), kept.(*array.Int64).Value(1))
	kept.Release()
}

func TestNewResourceTrackerDefaultAllocator(t *testing.T) {
	rt := memory.NewResourceTracker(nil)
	assert.Equal(t, arrowmem.DefaultAllocator, rt.Allocator())
}

func TestEstimateRecord(t *testing.T) {
	mem := arrowmem.NewCheckedAllocator(arrowmem.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	col := buildInts(mem, 1, 2, 3, 4)
	defer col.Release()
	schema := arrow.NewSchema([]arrow.Field{{Name: "a", Type: arrow.PrimitiveTypes.Int64}}, nil)
	rec := array.NewRecord(schema, []arrow.Array{col}, 4)
	defer rec.Release()

	assert.GreaterOrEqual(t, memory.EstimateRecord(rec), int64(4*8))
	assert.Equal(t, memory.EstimateArray(col), memory.EstimateRecord(rec))
	assert.Zero(t, memory.EstimateRecord(nil))
	assert.Zero(t, memory.EstimateArray(nil))
}

func TestEstimateArrayWithoutDictionary(t *testing.T) {
	mem := arrowmem.NewCheckedAllocator(arrowmem.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	col := buildInts(mem, 7, 8, 9)
	defer col.Release()
	assert.NotPanics(t, func() { memory.EstimateArray(col) })
	assert.GreaterOrEqual(t, memory.EstimateArray(col), int64(3*8))

	sb := array.NewStringBuilder(mem)
	defer sb.Release()
	sb.AppendValues([]string{"ab", "cde"}, nil)
	strs := sb.NewArray()
	defer strs.Release()
	assert.GreaterOrEqual(t, memory.EstimateArray(strs), int64(5))
}

func TestEstimateDictionaryArray(t *testing.T) {
	mem := arrowmem.NewCheckedAllocator(arrowmem.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	dt := &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int32, ValueType: arrow.BinaryTypes.String}
	b := array.NewDictionaryBuilder(mem, dt).(*array.BinaryDictionaryBuilder)
	defer b.Release()
	require.NoError(t, b.AppendString("x"))
	require.NoError(t, b.AppendString("y"))
	require.NoError(t, b.AppendString("x"))
	arr := b.NewArray()
	defer arr.Release()

	assert.GreaterOrEqual(t, memory.EstimateArray(arr), int64(3*4+2))
}
