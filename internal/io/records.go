package io

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/compute/exec"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/vishal-h/explorer/internal/column"
	"github.com/vishal-h/explorer/internal/dtype"
	dferrors "github.com/vishal-h/explorer/internal/errors"
)

// combine concatenates batches sharing schema into one record. The batches
// are borrowed.
func combine(mem memory.Allocator, schema *arrow.Schema, batches []arrow.Record) (arrow.Record, error) {
	if len(batches) == 1 {
		batches[0].Retain()
		return batches[0], nil
	}
	cols := make([]arrow.Array, schema.NumFields())
	defer func() { column.ReleaseAll(cols) }()
	var rows int64
	for _, b := range batches {
		rows += b.NumRows()
	}
	for i := range cols {
		if len(batches) == 0 {
			cols[i] = array.MakeArrayOfNull(mem, schema.Field(i).Type, 0)
			continue
		}
		chunks := make([]arrow.Array, len(batches))
		for j, b := range batches {
			chunks[j] = b.Column(i)
		}
		arr, err := array.Concatenate(chunks, mem)
		if err != nil {
			return nil, err
		}
		cols[i] = arr
	}
	return array.NewRecord(schema, cols, rows), nil
}

// fromTable flattens the chunks of every table column into one record.
func fromTable(mem memory.Allocator, table arrow.Table) (arrow.Record, error) {
	cols := make([]arrow.Array, table.NumCols())
	defer func() { column.ReleaseAll(cols) }()
	for i := range cols {
		chunks := table.Column(i).Data().Chunks()
		if len(chunks) == 1 {
			chunks[0].Retain()
			cols[i] = chunks[0]
			continue
		}
		if len(chunks) == 0 {
			cols[i] = array.MakeArrayOfNull(mem, table.Schema().Field(i).Type, 0)
			continue
		}
		arr, err := array.Concatenate(chunks, mem)
		if err != nil {
			return nil, err
		}
		cols[i] = arr
	}
	return array.NewRecord(table.Schema(), cols, table.NumRows()), nil
}

// normalize casts columns whose Arrow type has a supported equivalent and
// rejects the ones that have none. It consumes rec.
func normalize(ctx context.Context, op string, mem memory.Allocator, rec arrow.Record) (arrow.Record, error) {
	defer rec.Release()
	fields := make([]dtype.Field, rec.NumCols())
	cols := make([]arrow.Array, rec.NumCols())
	defer func() { column.ReleaseAll(cols) }()

	for i, f := range rec.Schema().Fields() {
		arr := rec.Column(i)
		if to, cast := dtype.Normalize(f.Type); cast {
			out, err := compute.CastArray(exec.WithAllocator(ctx, mem), arr, compute.SafeCastOptions(to))
			if err != nil {
				return nil, dferrors.NewTypeError(op, f.Name, fmt.Sprintf("cannot read %s: %v", f.Type, err))
			}
			arr = out
		} else {
			arr.Retain()
		}
		cols[i] = arr
		t, err := dtype.FromArrow(arr.DataType())
		if err != nil {
			return nil, dferrors.Reframe(err, op, f.Name)
		}
		fields[i] = dtype.Field{Name: f.Name, Type: t}
	}
	schema, err := dtype.NewSchema(fields...)
	if err != nil {
		return nil, dferrors.Reframe(err, op, "")
	}
	return column.Record(schema, cols), nil
}

// project keeps the named columns of rec in the given order. It consumes
// rec.
func project(op string, rec arrow.Record, names []string) (arrow.Record, error) {
	if len(names) == 0 {
		return rec, nil
	}
	defer rec.Release()
	schema, err := dtype.SchemaFromArrow(rec.Schema())
	if err != nil {
		return nil, dferrors.Reframe(err, op, "")
	}
	kept, err := schema.Select(op, names...)
	if err != nil {
		return nil, err
	}
	cols := make([]arrow.Array, len(names))
	for i, name := range names {
		cols[i] = rec.Column(schema.Index(name))
	}
	return column.Record(kept, cols), nil
}

// limit keeps the first n rows of rec when n is positive. It consumes rec.
func limit(rec arrow.Record, n int64) arrow.Record {
	if n <= 0 || rec.NumRows() <= n {
		return rec
	}
	defer rec.Release()
	return rec.NewSlice(0, n)
}
