package io

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	dferrors "github.com/vishal-h/explorer/internal/errors"
)

// IPCOptions configure Arrow IPC writes.
type IPCOptions struct {
	// Compression is lz4, zstd or empty for none. Reads detect it.
	Compression string
}

// ipcCompression resolves a compression name to a writer option; nil means
// uncompressed.
func ipcCompression(name string) (ipc.Option, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return nil, nil
	case "lz4":
		return ipc.WithLZ4(), nil
	case "zstd":
		return ipc.WithZstd(), nil
	default:
		return nil, dferrors.NewInvalidInputError("WriteIPC",
			fmt.Sprintf("unsupported IPC compression %q, use lz4 or zstd", name))
	}
}

// IPCReader reads the Arrow IPC file or stream format.
type IPCReader struct {
	src    Source
	stream bool
	mem    memory.Allocator
}

func (r *IPCReader) op() string {
	if r.stream {
		return "ReadIPCStream"
	}
	return "ReadIPC"
}

func (r *IPCReader) Read(ctx context.Context) (arrow.Record, error) {
	var (
		schema  *arrow.Schema
		batches []arrow.Record
		err     error
	)
	defer func() {
		for _, b := range batches {
			b.Release()
		}
	}()
	if r.stream {
		schema, batches, err = r.readStream(ctx)
	} else {
		schema, batches, err = r.readFile(ctx)
	}
	if err != nil {
		return nil, err
	}
	rec, err := combine(r.mem, schema, batches)
	if err != nil {
		return nil, failure(r.op(), r.src.String(), err)
	}
	return normalize(ctx, r.op(), r.mem, rec)
}

func (r *IPCReader) readFile(ctx context.Context) (*arrow.Schema, []arrow.Record, error) {
	data, err := r.src.bytes()
	if err != nil {
		return nil, nil, failure(r.op(), r.src.String(), err)
	}
	fr, err := ipc.NewFileReader(bytes.NewReader(data), ipc.WithAllocator(r.mem))
	if err != nil {
		return nil, nil, failure(r.op(), r.src.String(), err)
	}
	defer fr.Close()

	batches := make([]arrow.Record, 0, fr.NumRecords())
	for i := 0; i < fr.NumRecords(); i++ {
		if err := ctx.Err(); err != nil {
			releaseAll(batches)
			return nil, nil, dferrors.NewCancelledError(r.op(), err)
		}
		rec, err := fr.Record(i)
		if err != nil {
			releaseAll(batches)
			return nil, nil, failure(r.op(), r.src.String(), err)
		}
		rec.Retain()
		batches = append(batches, rec)
	}
	return fr.Schema(), batches, nil
}

func (r *IPCReader) readStream(ctx context.Context) (*arrow.Schema, []arrow.Record, error) {
	in, err := r.src.open()
	if err != nil {
		return nil, nil, failure(r.op(), r.src.String(), err)
	}
	defer in.Close()

	sr, err := ipc.NewReader(in, ipc.WithAllocator(r.mem))
	if err != nil {
		return nil, nil, failure(r.op(), r.src.String(), err)
	}
	defer sr.Release()

	var batches []arrow.Record
	for sr.Next() {
		if err := ctx.Err(); err != nil {
			releaseAll(batches)
			return nil, nil, dferrors.NewCancelledError(r.op(), err)
		}
		rec := sr.Record()
		rec.Retain()
		batches = append(batches, rec)
	}
	if err := sr.Err(); err != nil {
		releaseAll(batches)
		return nil, nil, failure(r.op(), r.src.String(), err)
	}
	return sr.Schema(), batches, nil
}

func releaseAll(recs []arrow.Record) {
	for _, r := range recs {
		r.Release()
	}
}

// IPCWriter writes the Arrow IPC file or stream format.
type IPCWriter struct {
	writer  io.Writer
	stream  bool
	options IPCOptions
	mem     memory.Allocator
}

func (w *IPCWriter) Write(ctx context.Context, rec arrow.Record) (err error) {
	op := "WriteIPC"
	if w.stream {
		op = "WriteIPCStream"
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return dferrors.NewCancelledError(op, ctxErr)
	}
	opts := []ipc.Option{ipc.WithSchema(rec.Schema()), ipc.WithAllocator(w.mem)}
	codec, err := ipcCompression(w.options.Compression)
	if err != nil {
		return err
	}
	if codec != nil {
		opts = append(opts, codec)
	}

	var sink interface {
		Write(arrow.Record) error
		Close() error
	}
	if w.stream {
		sink = ipc.NewWriter(writeOnly{w.writer}, opts...)
	} else {
		fw, err := ipc.NewFileWriter(writeOnly{w.writer}, opts...)
		if err != nil {
			return failure(op, "ipc output", err)
		}
		sink = fw
	}
	defer func() {
		if closeErr := sink.Close(); closeErr != nil && err == nil {
			err = failure(op, "ipc output", closeErr)
		}
	}()
	if err := sink.Write(rec); err != nil {
		return failure(op, "ipc output", err)
	}
	return nil
}
