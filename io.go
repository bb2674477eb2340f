package explorer

import (
	"bytes"
	"context"

	"github.com/vishal-h/explorer/internal/io"
	"github.com/vishal-h/explorer/internal/registry"
)

// Types of the I/O layer.
type (
	// Format identifies a file format.
	Format = io.Format
	// Source is where a read takes its bytes from.
	Source = io.Source
	// Destination is where a write puts its bytes.
	Destination = io.Destination
	// FileTarget is a local file, usable both as a Source and a Destination.
	FileTarget = io.FileTarget

	CSVOptions     = io.CSVOptions
	ParquetOptions = io.ParquetOptions
	IPCOptions     = io.IPCOptions
)

const (
	FormatCSV       = io.CSV
	FormatParquet   = io.Parquet
	FormatIPC       = io.IPC
	FormatIPCStream = io.IPCStream
	FormatNDJSON    = io.NDJSON
)

// ParseFormat accepts format names and the usual file extensions.
func ParseFormat(s string) (Format, error) { return io.ParseFormat(s) }

// File reads from or writes to the file at path.
func File(path string) FileTarget { return io.File(path) }

// Bytes reads from an in-memory buffer.
func Bytes(b []byte) Source { return io.Bytes(b) }

// Buffer writes into buf.
func Buffer(buf *bytes.Buffer) Destination { return io.Buffer(buf) }

// DefaultCSVOptions returns comma separated values with a header row.
func DefaultCSVOptions() CSVOptions { return io.DefaultCSVOptions() }

// DefaultParquetOptions returns snappy compression.
func DefaultParquetOptions() ParquetOptions { return io.DefaultParquetOptions() }

// WithCSVOptions configures CSV reads and writes.
func WithCSVOptions(o CSVOptions) Option {
	return func(opts *options) { opts.ioOpts().CSV = o }
}

// WithParquetOptions configures Parquet reads and writes.
func WithParquetOptions(o ParquetOptions) Option {
	return func(opts *options) { opts.ioOpts().Parquet = o }
}

// WithIPCCompression compresses IPC writes with "lz4" or "zstd".
func WithIPCCompression(codec string) Option {
	return func(opts *options) { opts.ioOpts().IPC.Compression = codec }
}

func (o *options) ioOpts() *io.Options {
	if o.ioOptions == nil {
		def := io.DefaultOptions()
		o.ioOptions = &def
	}
	return o.ioOptions
}

// ioSettings returns the I/O options with the backend's allocator and the
// process logger filled in.
func ioSettings(b Backend, opts []Option) io.Options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	settings := *o.ioOpts()
	settings.Allocator = b.Allocator()
	settings.Logger = registry.Logger()
	return settings
}

// Read reads src as format into a DataFrame on the selected backend.
func Read(ctx context.Context, src Source, format Format, opts ...Option) (*DataFrame, error) {
	b, err := resolve(ctx, opts)
	if err != nil {
		return nil, err
	}
	rec, err := io.Read(ctx, src, format, ioSettings(b, opts))
	if err != nil {
		return nil, err
	}
	defer rec.Release()
	return FromRecord(ctx, rec, WithBackend(b))
}

func ReadCSV(ctx context.Context, src Source, opts ...Option) (*DataFrame, error) {
	return Read(ctx, src, FormatCSV, opts...)
}

func ReadParquet(ctx context.Context, src Source, opts ...Option) (*DataFrame, error) {
	return Read(ctx, src, FormatParquet, opts...)
}

// ReadIPC reads the Arrow IPC file format.
func ReadIPC(ctx context.Context, src Source, opts ...Option) (*DataFrame, error) {
	return Read(ctx, src, FormatIPC, opts...)
}

// ReadIPCStream reads the Arrow IPC stream format.
func ReadIPCStream(ctx context.Context, src Source, opts ...Option) (*DataFrame, error) {
	return Read(ctx, src, FormatIPCStream, opts...)
}

// ReadNDJSON reads one JSON object per line.
func ReadNDJSON(ctx context.Context, src Source, opts ...Option) (*DataFrame, error) {
	return Read(ctx, src, FormatNDJSON, opts...)
}

// Load reads a DataFrame from data held in memory.
func Load(ctx context.Context, data []byte, format Format, opts ...Option) (*DataFrame, error) {
	return Read(ctx, Bytes(data), format, opts...)
}

// Write writes df to dst as format.
func Write(ctx context.Context, df *DataFrame, dst Destination, format Format, opts ...Option) error {
	return io.Write(ctx, df.Record(), dst, format, ioSettings(df.Backend(), opts))
}

func WriteCSV(ctx context.Context, df *DataFrame, dst Destination, opts ...Option) error {
	return Write(ctx, df, dst, FormatCSV, opts...)
}

func WriteParquet(ctx context.Context, df *DataFrame, dst Destination, opts ...Option) error {
	return Write(ctx, df, dst, FormatParquet, opts...)
}

func WriteIPC(ctx context.Context, df *DataFrame, dst Destination, opts ...Option) error {
	return Write(ctx, df, dst, FormatIPC, opts...)
}

func WriteIPCStream(ctx context.Context, df *DataFrame, dst Destination, opts ...Option) error {
	return Write(ctx, df, dst, FormatIPCStream, opts...)
}

func WriteNDJSON(ctx context.Context, df *DataFrame, dst Destination, opts ...Option) error {
	return Write(ctx, df, dst, FormatNDJSON, opts...)
}

// Dump writes df as format into memory.
func Dump(ctx context.Context, df *DataFrame, format Format, opts ...Option) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(ctx, df, Buffer(&buf), format, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
