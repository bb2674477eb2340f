// Package io reads and writes Arrow records in the supported file formats.
//
// Every format is read from a Source and written to a Destination:
//   - CSV with type inference or explicit dtypes
//   - Parquet
//   - Arrow IPC, both the file and the stream framing
//   - newline-delimited JSON
//
// A read always returns a single record holding every row, with columns
// normalized to the types the dtype package supports. The record is owned by
// the caller and built with Options.Allocator.
package io

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	dferrors "github.com/vishal-h/explorer/internal/errors"
)

// Format identifies a file format.
type Format int

const (
	CSV Format = iota
	Parquet
	IPC
	IPCStream
	NDJSON
)

func (f Format) String() string {
	switch f {
	case CSV:
		return "csv"
	case Parquet:
		return "parquet"
	case IPC:
		return "ipc"
	case IPCStream:
		return "ipc_stream"
	case NDJSON:
		return "ndjson"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat accepts the names printed by Format.String and the usual file
// extensions.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "csv":
		return CSV, nil
	case "parquet", "pq":
		return Parquet, nil
	case "ipc", "arrow", "feather":
		return IPC, nil
	case "ipc_stream", "arrows":
		return IPCStream, nil
	case "ndjson", "jsonl":
		return NDJSON, nil
	default:
		return 0, dferrors.NewInvalidInputError("ParseFormat", fmt.Sprintf("unknown format %q", s))
	}
}

// Source is where a read takes its bytes from.
type Source interface {
	open() (io.ReadCloser, error)
	// bytes returns the whole content, for codecs needing random access.
	bytes() ([]byte, error)
	String() string
}

// File reads from or writes to the file at path.
func File(path string) FileTarget { return FileTarget{Path: path} }

// FileTarget is a file used as a source or a destination.
type FileTarget struct{ Path string }

func (f FileTarget) open() (io.ReadCloser, error) { return os.Open(f.Path) }
func (f FileTarget) bytes() ([]byte, error)       { return os.ReadFile(f.Path) }
func (f FileTarget) String() string               { return f.Path }

func (f FileTarget) create() (io.WriteCloser, error) { return os.Create(f.Path) }

// Bytes reads from an in-memory buffer.
func Bytes(b []byte) Source { return byteSource(b) }

type byteSource []byte

func (b byteSource) open() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(b)), nil }
func (b byteSource) bytes() ([]byte, error)       { return b, nil }
func (b byteSource) String() string               { return fmt.Sprintf("<%d bytes>", len(b)) }

// Destination is where a write puts its bytes.
type Destination interface {
	create() (io.WriteCloser, error)
	String() string
}

// Buffer writes into buf, appending to its content.
func Buffer(buf *bytes.Buffer) Destination { return bufferTarget{buf} }

type bufferTarget struct{ buf *bytes.Buffer }

func (b bufferTarget) create() (io.WriteCloser, error) { return nopWriteCloser{b.buf}, nil }
func (b bufferTarget) String() string                  { return "<buffer>" }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// writeOnly hides the Close method of a sink from codecs that would close it
// on their own.
type writeOnly struct{ w io.Writer }

func (w writeOnly) Write(p []byte) (int, error) { return w.w.Write(p) }

// Options configure reads and writes. Only the section of the format in use
// is consulted.
type Options struct {
	CSV     CSVOptions
	Parquet ParquetOptions
	IPC     IPCOptions

	// Allocator builds the records returned by reads.
	Allocator memory.Allocator
	// Logger receives a debug line per read and write.
	Logger *slog.Logger
}

func (o Options) allocator() memory.Allocator {
	if o.Allocator == nil {
		return memory.DefaultAllocator
	}
	return o.Allocator
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// DefaultOptions returns the options every format starts from.
func DefaultOptions() Options {
	return Options{
		CSV:     DefaultCSVOptions(),
		Parquet: DefaultParquetOptions(),
	}
}

// DataReader produces a record from one source.
type DataReader interface {
	Read(ctx context.Context) (arrow.Record, error)
}

// DataWriter writes a record to one destination.
type DataWriter interface {
	Write(ctx context.Context, rec arrow.Record) error
}

// NewReader returns the reader of format for src.
func NewReader(src Source, format Format, opts Options) (DataReader, error) {
	switch format {
	case CSV:
		return &CSVReader{src: src, options: opts.CSV, mem: opts.allocator()}, nil
	case Parquet:
		return &ParquetReader{src: src, options: opts.Parquet, mem: opts.allocator()}, nil
	case IPC, IPCStream:
		return &IPCReader{src: src, stream: format == IPCStream, mem: opts.allocator()}, nil
	case NDJSON:
		return &NDJSONReader{src: src, mem: opts.allocator()}, nil
	default:
		return nil, dferrors.NewInvalidInputError("Read", fmt.Sprintf("unsupported format %s", format))
	}
}

// NewWriter returns the writer of format for w. The writer does not close w.
func NewWriter(w io.Writer, format Format, opts Options) (DataWriter, error) {
	switch format {
	case CSV:
		return &CSVWriter{writer: w, options: opts.CSV, mem: opts.allocator()}, nil
	case Parquet:
		if _, err := parquetCodec(opts.Parquet.Compression); err != nil {
			return nil, err
		}
		return &ParquetWriter{writer: w, options: opts.Parquet, mem: opts.allocator()}, nil
	case IPC, IPCStream:
		if _, err := ipcCompression(opts.IPC.Compression); err != nil {
			return nil, err
		}
		return &IPCWriter{writer: w, stream: format == IPCStream, options: opts.IPC, mem: opts.allocator()}, nil
	case NDJSON:
		return &NDJSONWriter{writer: w}, nil
	default:
		return nil, dferrors.NewInvalidInputError("Write", fmt.Sprintf("unsupported format %s", format))
	}
}

// Read reads src as format into a single record.
func Read(ctx context.Context, src Source, format Format, opts Options) (arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, dferrors.NewCancelledError("Read", err)
	}
	r, err := NewReader(src, format, opts)
	if err != nil {
		return nil, err
	}
	rec, err := r.Read(ctx)
	if err != nil {
		return nil, err
	}
	opts.logger().Debug("read records",
		"format", format.String(), "source", src.String(),
		"rows", rec.NumRows(), "columns", rec.NumCols())
	return rec, nil
}

// Write writes rec to dst as format. A file destination is created or
// truncated; a failed write leaves whatever was written so far.
func Write(ctx context.Context, rec arrow.Record, dst Destination, format Format, opts Options) (err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return dferrors.NewCancelledError("Write", ctxErr)
	}
	w, err := dst.create()
	if err != nil {
		return failure("Write", dst.String(), err)
	}
	defer func() {
		if closeErr := w.Close(); closeErr != nil && err == nil {
			err = failure("Write", dst.String(), closeErr)
		}
	}()

	dw, err := NewWriter(writeOnly{w}, format, opts)
	if err != nil {
		return err
	}
	if err := dw.Write(ctx, rec); err != nil {
		return err
	}
	opts.logger().Debug("wrote records",
		"format", format.String(), "destination", dst.String(),
		"rows", rec.NumRows(), "columns", rec.NumCols())
	return nil
}

// failure reports an I/O or codec failure on target.
func failure(op, target string, cause error) error {
	return &dferrors.DataFrameError{
		Kind:    dferrors.KindExecution,
		Op:      op,
		Message: fmt.Sprintf("%s failed", target),
		Cause:   cause,
	}
}
