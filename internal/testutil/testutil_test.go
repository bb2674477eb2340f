package testutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishal-h/explorer/internal/testutil"
)

func TestCreateTestRecord(t *testing.T) {
	mem := testutil.SetupMemoryTest(t)
	defer mem.Release()

	rec := testutil.CreateTestRecord(t, mem.Allocator)
	defer rec.Release()

	assert.Equal(t, int64(4), rec.NumRows())
	assert.Equal(t, []string{"name", "age", "department", "salary"}, testutil.Names(rec))
	assert.Equal(t, []any{int64(25), int64(30), int64(35), int64(28)}, testutil.Columns(rec)["age"])
}

func TestNewRecordWithNulls(t *testing.T) {
	mem := testutil.SetupMemoryTest(t)
	defer mem.Release()

	rec := testutil.NewRecord(t, mem.Allocator,
		testutil.Int8("a", 1, nil, 3),
		testutil.Float64("f", 0.5, 1.5, nil),
	)
	defer rec.Release()

	require.Equal(t, int64(3), rec.NumRows())
	testutil.AssertColumns(t, rec,
		testutil.Int8("a", 1, nil, 3),
		testutil.Float64("f", 0.5, 1.5, nil),
	)
}

func TestAssertRecordEqual(t *testing.T) {
	mem := testutil.SetupMemoryTest(t)
	defer mem.Release()

	a := testutil.NewRecord(t, mem.Allocator, testutil.String("s", "x", "y"))
	defer a.Release()
	b := testutil.NewRecord(t, mem.Allocator, testutil.String("s", "x", "y"))
	defer b.Release()

	testutil.AssertRecordEqual(t, a, b)
}

func TestNewTestLogger(t *testing.T) {
	logger := testutil.NewTestLogger(t)
	logger.Debug("routed to the test log", "test", t.Name())
}
