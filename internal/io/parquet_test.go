package io_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishal-h/explorer/internal/dtype"
	dferrors "github.com/vishal-h/explorer/internal/errors"
	"github.com/vishal-h/explorer/internal/io"
	"github.com/vishal-h/explorer/internal/testutil"
)

// typedRecord holds one column of every common scalar type.
func typedRecord(t *testing.T, mem memory.Allocator) arrow.Record {
	t.Helper()
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	return testutil.NewRecord(t, mem,
		testutil.Int64("id", 1, 2, 3),
		testutil.Int8("small", 1, nil, -3),
		testutil.Float64("score", 0.5, 1.5, nil),
		testutil.String("name", "a", nil, "c"),
		testutil.Bool("ok", true, false, nil),
		testutil.Col("day", dtype.Date, day(1), day(2), nil),
	)
}

func TestParquetRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewGoAllocator()
	rec := typedRecord(t, mem)
	defer rec.Release()

	for _, codec := range []string{"snappy", "gzip", "zstd", "brotli", "lz4", "none"} {
		t.Run(codec, func(t *testing.T) {
			opts := io.DefaultOptions()
			opts.Parquet.Compression = codec

			var buf bytes.Buffer
			require.NoError(t, io.Write(ctx, rec, io.Buffer(&buf), io.Parquet, opts))

			back, err := io.Read(ctx, io.Bytes(buf.Bytes()), io.Parquet, opts)
			require.NoError(t, err)
			defer back.Release()
			testutil.AssertRecordEqual(t, rec, back)
		})
	}
}

func TestParquetFileAndProjection(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewGoAllocator()
	rec := typedRecord(t, mem)
	defer rec.Release()

	path := filepath.Join(t.TempDir(), "typed.parquet")
	require.NoError(t, io.Write(ctx, rec, io.File(path), io.Parquet, io.DefaultOptions()))

	opts := io.DefaultOptions()
	opts.Parquet.Columns = []string{"name", "id"}
	back, err := io.Read(ctx, io.File(path), io.Parquet, opts)
	require.NoError(t, err)
	defer back.Release()
	testutil.AssertColumns(t, back,
		testutil.String("name", "a", nil, "c"),
		testutil.Int64("id", 1, 2, 3),
	)

	opts.Parquet.Columns = []string{"nope"}
	_, err = io.Read(ctx, io.File(path), io.Parquet, opts)
	assert.ErrorIs(t, err, dferrors.ErrColumnNotFound)
}

func TestParquetRejectsUnknownCompression(t *testing.T) {
	mem := memory.NewGoAllocator()
	rec := typedRecord(t, mem)
	defer rec.Release()

	opts := io.DefaultOptions()
	opts.Parquet.Compression = "lzo"
	var buf bytes.Buffer
	err := io.Write(context.Background(), rec, io.Buffer(&buf), io.Parquet, opts)
	assert.ErrorIs(t, err, dferrors.ErrInvalidInput)
	assert.Zero(t, buf.Len())
}

func TestParquetRejectsGarbage(t *testing.T) {
	_, err := io.Read(context.Background(), io.Bytes([]byte("not parquet")), io.Parquet, io.DefaultOptions())
	assert.ErrorIs(t, err, dferrors.ErrExecution)
}
