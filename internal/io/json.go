package io

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/vishal-h/explorer/internal/column"
	"github.com/vishal-h/explorer/internal/dtype"
	dferrors "github.com/vishal-h/explorer/internal/errors"
)

// maxLineSize bounds a single NDJSON line.
const maxLineSize = 64 << 20

// NDJSONReader reads newline-delimited JSON objects, one row per line.
//
// Columns appear in order of first occurrence; a key missing from a line is
// a missing value. Each column takes the most specific type all its values
// fit: bool, i64, f64, otherwise str. Nested objects and arrays are kept as
// their JSON text.
type NDJSONReader struct {
	src Source
	mem memory.Allocator
}

// jsonColumn collects the values of one key.
type jsonColumn struct {
	name   string
	values []any
}

func (r *NDJSONReader) Read(ctx context.Context) (arrow.Record, error) {
	in, err := r.src.open()
	if err != nil {
		return nil, failure("ReadNDJSON", r.src.String(), err)
	}
	defer in.Close()

	var (
		columns []*jsonColumn
		byName  = make(map[string]*jsonColumn)
		rows    int
	)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for line := 1; scanner.Scan(); line++ {
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		if rows%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, dferrors.NewCancelledError("ReadNDJSON", err)
			}
		}
		seen := make(map[string]bool)
		err := decodeObject(text, func(key string, v any) {
			c, ok := byName[key]
			if !ok {
				c = &jsonColumn{name: key, values: make([]any, rows)}
				byName[key] = c
				columns = append(columns, c)
			}
			if seen[key] {
				c.values[rows] = v
				return
			}
			seen[key] = true
			c.values = append(c.values, v)
		})
		if err != nil {
			return nil, failure("ReadNDJSON", fmt.Sprintf("%s line %d", r.src, line), err)
		}
		rows++
		for _, c := range columns {
			if len(c.values) < rows {
				c.values = append(c.values, nil)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, failure("ReadNDJSON", r.src.String(), err)
	}

	fields := make([]dtype.Field, len(columns))
	cols := make([]arrow.Array, len(columns))
	defer func() { column.ReleaseAll(cols) }()
	for i, c := range columns {
		t, values := inferJSONColumn(c.values)
		arr, err := column.Build(r.mem, t, values)
		if err != nil {
			return nil, dferrors.Reframe(err, "ReadNDJSON", c.name)
		}
		fields[i] = dtype.Field{Name: c.name, Type: t}
		cols[i] = arr
	}
	schema, err := dtype.NewSchema(fields...)
	if err != nil {
		return nil, dferrors.Reframe(err, "ReadNDJSON", "")
	}
	if len(cols) == 0 {
		return column.Empty(r.mem, schema), nil
	}
	return column.Record(schema, cols), nil
}

// decodeObject calls fn for every top-level member of the JSON object in
// text, in document order.
func decodeObject(text []byte, fn func(key string, v any)) error {
	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected a JSON object, found %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected an object key, found %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		fn(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// dataTypeFlags records which types every non-null value of a column fits.
type dataTypeFlags struct {
	hasValue bool
	isBool   bool
	isInt    bool
	isFloat  bool
	isString bool
}

func analyzeJSONValues(values []any) dataTypeFlags {
	flags := dataTypeFlags{isBool: true, isInt: true, isFloat: true, isString: true}
	for _, v := range values {
		if v == nil {
			continue
		}
		flags.hasValue = true
		switch x := v.(type) {
		case bool:
			flags.isInt, flags.isFloat, flags.isString = false, false, false
		case json.Number:
			flags.isBool, flags.isString = false, false
			if _, err := strconv.ParseInt(string(x), 10, 64); err != nil {
				flags.isInt = false
			}
		case string:
			flags.isBool, flags.isInt, flags.isFloat = false, false, false
		default:
			flags.isBool, flags.isInt, flags.isFloat, flags.isString = false, false, false, false
		}
	}
	return flags
}

// inferJSONColumn picks the column type and converts values to it.
func inferJSONColumn(values []any) (dtype.DType, []any) {
	flags := analyzeJSONValues(values)
	out := make([]any, len(values))
	switch {
	case !flags.hasValue:
		return dtype.String, out
	case flags.isBool:
		copy(out, values)
		return dtype.Boolean, out
	case flags.isInt:
		for i, v := range values {
			if v != nil {
				out[i], _ = v.(json.Number).Int64()
			}
		}
		return dtype.Int64, out
	case flags.isFloat:
		for i, v := range values {
			if v != nil {
				out[i], _ = v.(json.Number).Float64()
			}
		}
		return dtype.Float64, out
	default:
		for i, v := range values {
			out[i] = jsonText(v)
		}
		return dtype.String, out
	}
}

// jsonText renders a decoded value as a string cell.
func jsonText(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case json.Number:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// NDJSONWriter writes one JSON object per row, keys in column order.
type NDJSONWriter struct {
	writer io.Writer
}

func (w *NDJSONWriter) Write(ctx context.Context, rec arrow.Record) error {
	bw := bufio.NewWriter(w.writer)
	names := make([][]byte, rec.NumCols())
	for i, f := range rec.Schema().Fields() {
		b, err := json.Marshal(f.Name)
		if err != nil {
			return failure("WriteNDJSON", "ndjson output", err)
		}
		names[i] = b
	}

	for row := 0; row < int(rec.NumRows()); row++ {
		if row%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return dferrors.NewCancelledError("WriteNDJSON", err)
			}
		}
		bw.WriteByte('{')
		for c := range names {
			if c > 0 {
				bw.WriteByte(',')
			}
			bw.Write(names[c])
			bw.WriteByte(':')
			b, err := json.Marshal(jsonValue(column.Value(rec.Column(c), row)))
			if err != nil {
				return dferrors.NewTypeError("WriteNDJSON", rec.Schema().Field(c).Name, err.Error())
			}
			bw.Write(b)
		}
		bw.WriteString("}\n")
	}
	if err := bw.Flush(); err != nil {
		return failure("WriteNDJSON", "ndjson output", err)
	}
	return nil
}

// jsonValue maps a canonical value to one encoding/json renders faithfully.
func jsonValue(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case time.Time, time.Duration, []byte:
		return column.Format(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = jsonValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = jsonValue(item)
		}
		return out
	default:
		return x
	}
}
