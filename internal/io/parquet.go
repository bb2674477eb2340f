package io

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	dferrors "github.com/vishal-h/explorer/internal/errors"
)

// DefaultBatchSize is the default batch size for Parquet reads and writes.
const DefaultBatchSize = 1000

// ParquetOptions contains configuration options for Parquet operations
type ParquetOptions struct {
	// Compression is one of snappy, gzip, zstd, brotli, lz4 or none.
	Compression string
	// BatchSize for reading/writing operations
	BatchSize int
	// Columns keeps only the named columns, in this order.
	Columns []string
}

// DefaultParquetOptions returns default Parquet options
func DefaultParquetOptions() ParquetOptions {
	return ParquetOptions{
		Compression: "snappy",
		BatchSize:   DefaultBatchSize,
	}
}

func (o ParquetOptions) batchSize() int64 {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return int64(o.BatchSize)
}

// parquetCodec resolves a compression name. The empty name means snappy.
func parquetCodec(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "brotli":
		return compress.Codecs.Brotli, nil
	case "lz4":
		return compress.Codecs.Lz4Raw, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, dferrors.NewInvalidInputError("WriteParquet",
			fmt.Sprintf("unsupported parquet compression %q", name))
	}
}

// ParquetReader reads Parquet data into a record
type ParquetReader struct {
	src     Source
	options ParquetOptions
	mem     memory.Allocator
}

// NewParquetReader creates a new Parquet reader with the specified options
func NewParquetReader(src Source, options ParquetOptions, mem memory.Allocator) *ParquetReader {
	return &ParquetReader{src: src, options: options, mem: mem}
}

// Read reads every row group of the file.
func (r *ParquetReader) Read(ctx context.Context) (arrow.Record, error) {
	data, err := r.src.bytes()
	if err != nil {
		return nil, failure("ReadParquet", r.src.String(), err)
	}

	pqReader, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, failure("ReadParquet", r.src.String(), err)
	}
	defer pqReader.Close()

	arrowReader, err := pqarrow.NewFileReader(pqReader,
		pqarrow.ArrowReadProperties{BatchSize: r.options.batchSize()}, r.mem)
	if err != nil {
		return nil, failure("ReadParquet", r.src.String(), err)
	}

	table, err := arrowReader.ReadTable(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, dferrors.NewCancelledError("ReadParquet", ctxErr)
		}
		return nil, failure("ReadParquet", r.src.String(), err)
	}
	defer table.Release()

	rec, err := fromTable(r.mem, table)
	if err != nil {
		return nil, failure("ReadParquet", r.src.String(), err)
	}
	rec, err = project("ReadParquet", rec, r.options.Columns)
	if err != nil {
		return nil, err
	}
	return normalize(ctx, "ReadParquet", r.mem, rec)
}

// ParquetWriter writes records in Parquet format
type ParquetWriter struct {
	writer  io.Writer
	options ParquetOptions
	mem     memory.Allocator
}

// NewParquetWriter creates a new Parquet writer with the specified options
func NewParquetWriter(writer io.Writer, options ParquetOptions, mem memory.Allocator) *ParquetWriter {
	return &ParquetWriter{writer: writer, options: options, mem: mem}
}

// Write writes rec as a single Parquet file. The Arrow schema is stored in
// the file metadata so types without a Parquet equivalent read back intact.
func (w *ParquetWriter) Write(ctx context.Context, rec arrow.Record) (err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return dferrors.NewCancelledError("WriteParquet", ctxErr)
	}
	codec, err := parquetCodec(w.options.Compression)
	if err != nil {
		return err
	}

	props := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithBatchSize(w.options.batchSize()),
		parquet.WithAllocator(w.mem),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(w.mem),
		pqarrow.WithStoreSchema(),
	)

	writer, err := pqarrow.NewFileWriter(rec.Schema(), writeOnly{w.writer}, props, arrowProps)
	if err != nil {
		return failure("WriteParquet", "parquet output", err)
	}
	defer func() {
		if closeErr := writer.Close(); closeErr != nil && err == nil {
			err = failure("WriteParquet", "parquet output", closeErr)
		}
	}()

	if err := writer.Write(rec); err != nil {
		return failure("WriteParquet", "parquet output", err)
	}
	return nil
}
