package io_test

import (
	"bytes"
	"context"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dferrors "github.com/vishal-h/explorer/internal/errors"
	"github.com/vishal-h/explorer/internal/io"
	"github.com/vishal-h/explorer/internal/testutil"
)

func TestParseFormat(t *testing.T) {
	tests := map[string]io.Format{
		"csv":        io.CSV,
		".parquet":   io.Parquet,
		"IPC":        io.IPC,
		"arrow":      io.IPC,
		"ipc_stream": io.IPCStream,
		"jsonl":      io.NDJSON,
		"ndjson":     io.NDJSON,
	}
	for in, want := range tests {
		got, err := io.ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, f := range []io.Format{io.CSV, io.Parquet, io.IPC, io.IPCStream, io.NDJSON} {
		back, err := io.ParseFormat(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, back)
	}

	_, err := io.ParseFormat("xlsx")
	assert.ErrorIs(t, err, dferrors.ErrInvalidInput)
}

func TestReadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.csv")
	for _, f := range []io.Format{io.CSV, io.Parquet, io.IPC, io.IPCStream, io.NDJSON} {
		_, err := io.Read(context.Background(), io.File(path), f, io.DefaultOptions())
		assert.ErrorIs(t, err, dferrors.ErrExecution, f.String())
		assert.ErrorIs(t, err, fs.ErrNotExist, f.String())
	}
}

func TestWriteFileThenReadBack(t *testing.T) {
	ctx := context.Background()
	rec := testutil.NewRecord(t, memory.NewGoAllocator(),
		testutil.Int64("id", 1, 2),
		testutil.String("name", "a", "b"),
	)
	defer rec.Release()

	dir := t.TempDir()
	for _, f := range []io.Format{io.CSV, io.Parquet, io.IPC, io.IPCStream, io.NDJSON} {
		path := filepath.Join(dir, "frame."+f.String())
		require.NoError(t, io.Write(ctx, rec, io.File(path), f, io.DefaultOptions()), f.String())
		back, err := io.Read(ctx, io.File(path), f, io.DefaultOptions())
		require.NoError(t, err, f.String())
		testutil.AssertRecordEqual(t, rec, back)
		back.Release()
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := io.Read(ctx, io.Bytes([]byte("a\n1\n")), io.CSV, io.DefaultOptions())
	assert.ErrorIs(t, err, dferrors.ErrCancelled)

	rec := testutil.NewRecord(t, memory.NewGoAllocator(), testutil.Int64("a", 1))
	defer rec.Release()
	var buf bytes.Buffer
	err = io.Write(ctx, rec, io.Buffer(&buf), io.CSV, io.DefaultOptions())
	assert.ErrorIs(t, err, dferrors.ErrCancelled)
	assert.Zero(t, buf.Len())
}

func TestUnknownFormat(t *testing.T) {
	_, err := io.Read(context.Background(), io.Bytes(nil), io.Format(42), io.DefaultOptions())
	assert.ErrorIs(t, err, dferrors.ErrInvalidInput)
}
