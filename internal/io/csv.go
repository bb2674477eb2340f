package io

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	arrowcsv "github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/vishal-h/explorer/internal/column"
	"github.com/vishal-h/explorer/internal/dtype"
	dferrors "github.com/vishal-h/explorer/internal/errors"
)

// CSVOptions contains configuration options for CSV operations
type CSVOptions struct {
	// Delimiter is the field delimiter (default: comma)
	Delimiter rune
	// Comment is the comment character (default: 0 = disabled)
	Comment rune
	// Header indicates whether the first row contains headers. Without one
	// columns are named column_0, column_1, ...
	Header bool
	// SkipRows lines are dropped before the header.
	SkipRows int
	// NullValues are the cells read as missing (default: the empty cell)
	NullValues []string
	// Dtypes overrides inference for the named columns, as dtype strings
	// such as "i32" or "datetime[ms]".
	Dtypes map[string]string
	// MaxRows stops reading after that many rows; 0 reads everything.
	MaxRows int64
	// Columns keeps only the named columns, in this order.
	Columns []string
	// NullValue is written for missing cells.
	NullValue string
}

// DefaultCSVOptions returns default CSV options
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Delimiter:  ',',
		Header:     true,
		NullValues: []string{""},
	}
}

func (o CSVOptions) delimiter() rune {
	if o.Delimiter == 0 {
		return ','
	}
	return o.Delimiter
}

func (o CSVOptions) nulls() []string {
	if o.NullValues == nil {
		return []string{""}
	}
	return o.NullValues
}

// CSVReader reads CSV data into a record
type CSVReader struct {
	src     Source
	options CSVOptions
	mem     memory.Allocator
}

// NewCSVReader creates a new CSV reader with the specified options
func NewCSVReader(src Source, options CSVOptions, mem memory.Allocator) *CSVReader {
	return &CSVReader{src: src, options: options, mem: mem}
}

// Read infers a schema from every cell, then decodes the data with it.
func (r *CSVReader) Read(ctx context.Context) (arrow.Record, error) {
	data, err := r.src.bytes()
	if err != nil {
		return nil, failure("ReadCSV", r.src.String(), err)
	}
	data = skipLines(data, r.options.SkipRows)

	schema, categorical, err := r.inferSchema(data)
	if err != nil {
		return nil, err
	}

	opts := []arrowcsv.Option{
		arrowcsv.WithAllocator(r.mem),
		arrowcsv.WithComma(r.options.delimiter()),
		arrowcsv.WithHeader(r.options.Header),
		arrowcsv.WithNullReader(true, r.options.nulls()...),
		arrowcsv.WithChunk(-1),
	}
	if r.options.Comment != 0 {
		opts = append(opts, arrowcsv.WithComment(r.options.Comment))
	}
	reader := arrowcsv.NewReader(bytes.NewReader(data), schema, opts...)
	defer reader.Release()

	var batches []arrow.Record
	defer func() {
		for _, b := range batches {
			b.Release()
		}
	}()
	for reader.Next() {
		if err := ctx.Err(); err != nil {
			return nil, dferrors.NewCancelledError("ReadCSV", err)
		}
		rec := reader.Record()
		rec.Retain()
		batches = append(batches, rec)
	}
	if err := reader.Err(); err != nil {
		return nil, failure("ReadCSV", r.src.String(), err)
	}

	rec, err := combine(r.mem, schema, batches)
	if err != nil {
		return nil, failure("ReadCSV", r.src.String(), err)
	}
	rec = limit(rec, r.options.MaxRows)
	if len(categorical) > 0 {
		if rec, err = r.categorize(rec, categorical); err != nil {
			return nil, err
		}
	}
	rec, err = project("ReadCSV", rec, r.options.Columns)
	if err != nil {
		return nil, err
	}
	return normalize(ctx, "ReadCSV", r.mem, rec)
}

// categorize rebuilds the named string columns as categorical ones. It
// consumes rec.
func (r *CSVReader) categorize(rec arrow.Record, names map[string]bool) (arrow.Record, error) {
	defer rec.Release()
	fields := make([]dtype.Field, rec.NumCols())
	cols := make([]arrow.Array, rec.NumCols())
	defer func() { column.ReleaseAll(cols) }()
	for i, f := range rec.Schema().Fields() {
		if !names[f.Name] {
			t, err := dtype.FromArrow(f.Type)
			if err != nil {
				return nil, dferrors.Reframe(err, "ReadCSV", f.Name)
			}
			fields[i] = dtype.Field{Name: f.Name, Type: t}
			arr := rec.Column(i)
			arr.Retain()
			cols[i] = arr
			continue
		}
		arr, err := column.Build(r.mem, dtype.Categorical, column.Values(rec.Column(i)))
		if err != nil {
			return nil, dferrors.Reframe(err, "ReadCSV", f.Name)
		}
		fields[i] = dtype.Field{Name: f.Name, Type: dtype.Categorical}
		cols[i] = arr
	}
	schema, err := dtype.NewSchema(fields...)
	if err != nil {
		return nil, dferrors.Reframe(err, "ReadCSV", "")
	}
	return column.Record(schema, cols), nil
}

// skipLines drops the first n lines of data.
func skipLines(data []byte, n int) []byte {
	for ; n > 0 && len(data) > 0; n-- {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			return nil
		}
		data = data[i+1:]
	}
	return data
}

// inferSchema scans every row and picks the most specific type each column
// accepts, honouring the Dtypes overrides. Categorical columns are decoded as
// strings first and reported separately.
func (r *CSVReader) inferSchema(data []byte) (*arrow.Schema, map[string]bool, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = r.options.delimiter()
	cr.Comment = r.options.Comment
	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, failure("ReadCSV", r.src.String(), err)
	}
	if len(records) == 0 {
		return nil, nil, dferrors.NewInvalidInputError("ReadCSV", fmt.Sprintf("%s holds no CSV rows", r.src))
	}

	var headers []string
	rows := records
	if r.options.Header {
		headers, rows = records[0], records[1:]
	} else {
		headers = make([]string, len(records[0]))
		for i := range headers {
			headers[i] = fmt.Sprintf("column_%d", i)
		}
	}
	if r.options.MaxRows > 0 && int64(len(rows)) > r.options.MaxRows {
		rows = rows[:r.options.MaxRows]
	}

	nulls := make(map[string]bool, len(r.options.nulls()))
	for _, v := range r.options.nulls() {
		nulls[v] = true
	}

	overrides := make(map[string]dtype.DType, len(r.options.Dtypes))
	for name, s := range r.options.Dtypes {
		t, err := dtype.Parse(s)
		if err != nil {
			return nil, nil, dferrors.Reframe(err, "ReadCSV", name)
		}
		overrides[name] = t
	}

	categorical := make(map[string]bool)
	fields := make([]arrow.Field, len(headers))
	for i, name := range headers {
		t, ok := overrides[name]
		if !ok {
			cells := make([]string, 0, len(rows))
			for _, row := range rows {
				if i < len(row) && !nulls[row[i]] {
					cells = append(cells, row[i])
				}
			}
			t = inferDataType(cells)
		}
		switch t.Kind {
		case dtype.KindList, dtype.KindStruct:
			return nil, nil, dferrors.NewUnsupportedTypeError("ReadCSV", t.String())
		case dtype.KindCategorical:
			categorical[name] = true
			t = dtype.String
		}
		fields[i] = arrow.Field{Name: name, Type: t.ToArrow(), Nullable: true}
	}
	for name := range overrides {
		if !slices.Contains(headers, name) {
			return nil, nil, dferrors.NewColumnNotFoundError("ReadCSV", name)
		}
	}
	return arrow.NewSchema(fields, nil), categorical, nil
}

// inferDataType determines the most appropriate data type for the given
// non-missing cells. A column without any value is a string column.
func inferDataType(cells []string) dtype.DType {
	if len(cells) == 0 {
		return dtype.String
	}
	canBeBool, canBeInt, canBeFloat := true, true, true
	for _, v := range cells {
		if canBeBool && !boolWords[v] {
			canBeBool = false
		}
		if canBeInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				canBeInt = false
			}
		}
		if canBeFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				canBeFloat = false
			}
		}
	}
	switch {
	case canBeBool:
		return dtype.Boolean
	case canBeInt:
		return dtype.Int64
	case canBeFloat:
		return dtype.Float64
	default:
		return dtype.String
	}
}

var boolWords = map[string]bool{
	"true": true, "True": true, "TRUE": true,
	"false": true, "False": true, "FALSE": true,
}

// CSVWriter writes records in CSV format
type CSVWriter struct {
	writer  io.Writer
	options CSVOptions
	mem     memory.Allocator
}

// NewCSVWriter creates a new CSV writer with the specified options
func NewCSVWriter(writer io.Writer, options CSVOptions, mem memory.Allocator) *CSVWriter {
	return &CSVWriter{writer: writer, options: options, mem: mem}
}

// Write writes rec, with a header line when the options ask for one.
// Categorical, binary, time and duration columns are written as their text
// rendering; nested columns cannot be written.
func (w *CSVWriter) Write(ctx context.Context, rec arrow.Record) error {
	if err := ctx.Err(); err != nil {
		return dferrors.NewCancelledError("WriteCSV", err)
	}
	rec, err := w.flatten(rec)
	if err != nil {
		return err
	}
	defer rec.Release()

	cw := arrowcsv.NewWriter(w.writer, rec.Schema(),
		arrowcsv.WithComma(w.options.delimiter()),
		arrowcsv.WithHeader(w.options.Header),
		arrowcsv.WithNullWriter(w.options.NullValue),
	)
	if err := cw.Write(rec); err != nil {
		return failure("WriteCSV", "csv output", err)
	}
	if err := cw.Flush(); err != nil {
		return failure("WriteCSV", "csv output", err)
	}
	return nil
}

// flatten returns rec with every column the CSV encoder cannot handle
// replaced by its text rendering.
func (w *CSVWriter) flatten(rec arrow.Record) (arrow.Record, error) {
	schema, err := dtype.SchemaFromArrow(rec.Schema())
	if err != nil {
		return nil, dferrors.Reframe(err, "WriteCSV", "")
	}
	fields := schema.Fields()
	cols := make([]arrow.Array, len(fields))
	defer func() { column.ReleaseAll(cols) }()
	for i, f := range fields {
		switch f.Type.Kind {
		case dtype.KindList, dtype.KindStruct:
			return nil, dferrors.NewTypeError("WriteCSV", f.Name, fmt.Sprintf("cannot write %s as CSV", f.Type))
		case dtype.KindNull, dtype.KindCategorical, dtype.KindBinary, dtype.KindTime, dtype.KindDuration:
			values := column.Values(rec.Column(i))
			text := make([]any, len(values))
			for j, v := range values {
				if v != nil {
					text[j] = column.Format(v)
				}
			}
			arr, err := column.Build(w.mem, dtype.String, text)
			if err != nil {
				return nil, dferrors.Reframe(err, "WriteCSV", f.Name)
			}
			cols[i] = arr
			fields[i].Type = dtype.String
		default:
			arr := rec.Column(i)
			arr.Retain()
			cols[i] = arr
		}
	}
	out, err := dtype.NewSchema(fields...)
	if err != nil {
		return nil, dferrors.Reframe(err, "WriteCSV", "")
	}
	return column.Record(out, cols), nil
}
