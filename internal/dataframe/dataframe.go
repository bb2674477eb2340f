// Package dataframe provides DataFrame operations dispatched to a backend
//
// A DataFrame is an immutable, reference-counted Arrow record stamped with
// the backend that produced it. Eager operations validate names, shapes and
// types up front, then call the owning backend and wrap its result in a new
// DataFrame. Lazy() starts a LazyFrame that records the same operations as a
// plan and runs them through the planner on Collect.
package dataframe

import (
	"context"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/hashicorp/go-multierror"

	"github.com/vishal-h/explorer/internal/backend"
	"github.com/vishal-h/explorer/internal/column"
	"github.com/vishal-h/explorer/internal/dtype"
	dferrors "github.com/vishal-h/explorer/internal/errors"
	"github.com/vishal-h/explorer/internal/handle"
	"github.com/vishal-h/explorer/internal/plan"
	"github.com/vishal-h/explorer/internal/series"
)

// DataFrame represents a table of data with typed columns
type DataFrame struct {
	rec     arrow.Record
	schema  *dtype.Schema
	backend backend.Backend
}

// New assembles a DataFrame from series owned by b. Every problem found
// (duplicate names, unequal lengths, series of another backend) is
// reported together.
func New(ctx context.Context, b backend.Backend, cols ...*series.Series) (*DataFrame, error) {
	var problems *multierror.Error
	seen := make(map[string]bool, len(cols))
	fields := make([]dtype.Field, len(cols))
	arrays := make([]arrow.Array, len(cols))
	for i, s := range cols {
		if seen[s.Name()] {
			problems = multierror.Append(problems,
				dferrors.NewValidationError("New", s.Name(), "duplicate column name"))
		}
		seen[s.Name()] = true
		if s.Len() != cols[0].Len() {
			problems = multierror.Append(problems, dferrors.NewShapeError("New",
				fmt.Sprintf("column %s has %d rows, expected %d", s.Name(), s.Len(), cols[0].Len())))
		}
		if !s.Handle().Same(b.Handle()) {
			problems = multierror.Append(problems,
				dferrors.NewBackendMismatchError("New", b.Handle().String(), s.Handle().String()))
		}
		fields[i] = dtype.Field{Name: s.Name(), Type: s.DType()}
		arrays[i] = s.Array()
	}
	if err := problems.ErrorOrNil(); err != nil {
		return nil, err
	}

	schema, err := dtype.NewSchema(fields...)
	if err != nil {
		return nil, dferrors.Reframe(err, "New", "")
	}
	rec, err := b.FromArrays(ctx, schema, arrays)
	if err != nil {
		return nil, dferrors.Reframe(err, "New", "")
	}
	return &DataFrame{rec: rec, schema: schema, backend: b}, nil
}

// FromRecord wraps rec as a DataFrame owned by b. The DataFrame takes its
// own reference.
func FromRecord(b backend.Backend, rec arrow.Record) (*DataFrame, error) {
	schema, err := dtype.SchemaFromArrow(rec.Schema())
	if err != nil {
		return nil, dferrors.Reframe(err, "FromRecord", "")
	}
	rec.Retain()
	return &DataFrame{rec: rec, schema: schema, backend: b}, nil
}

// wrap takes ownership of a record produced by op.
func wrap(op string, b backend.Backend, rec arrow.Record, err error) (*DataFrame, error) {
	if err != nil {
		return nil, dferrors.Reframe(backend.Fail(op, err), op, "")
	}
	schema, err := dtype.SchemaFromArrow(rec.Schema())
	if err != nil {
		rec.Release()
		return nil, dferrors.NewInternalError(op, err)
	}
	return &DataFrame{rec: rec, schema: schema, backend: b}, nil
}

func (d *DataFrame) result(op string) func(arrow.Record, error) (*DataFrame, error) {
	return func(rec arrow.Record, err error) (*DataFrame, error) {
		return wrap(op, d.backend, rec, err)
	}
}

// Schema returns the column names and types.
func (d *DataFrame) Schema() *dtype.Schema { return d.schema }

// Names returns the names of all columns in order
func (d *DataFrame) Names() []string { return d.schema.Names() }

// Dtypes returns the column types in order.
func (d *DataFrame) Dtypes() []dtype.DType {
	out := make([]dtype.DType, d.schema.Len())
	for i, f := range d.schema.Fields() {
		out[i] = f.Type
	}
	return out
}

// Shape returns the number of rows and columns.
func (d *DataFrame) Shape() (rows int64, cols int) { return d.rec.NumRows(), d.schema.Len() }

// NumRows returns the number of rows.
func (d *DataFrame) NumRows() int64 { return d.rec.NumRows() }

// NumCols returns the number of columns.
func (d *DataFrame) NumCols() int { return d.schema.Len() }

// Backend returns the backend that owns the data.
func (d *DataFrame) Backend() backend.Backend { return d.backend }

// Handle identifies the owning backend instance.
func (d *DataFrame) Handle() handle.Handle { return d.backend.Handle() }

// Record returns the underlying record without transferring a reference.
func (d *DataFrame) Record() arrow.Record { return d.rec }

// HasColumn reports whether a column exists.
func (d *DataFrame) HasColumn(name string) bool { return d.schema.Has(name) }

// Retain adds a reference.
func (d *DataFrame) Retain() { d.rec.Retain() }

// Release drops a reference; the buffers are freed with the last one.
func (d *DataFrame) Release() { d.rec.Release() }

// Pull extracts one column as a series sharing the frame's buffers.
func (d *DataFrame) Pull(name string) (*series.Series, error) {
	i := d.schema.Index(name)
	if i < 0 {
		return nil, dferrors.NewColumnNotFoundError("Pull", name)
	}
	return series.FromArray(d.backend, name, d.rec.Column(i))
}

// Row returns row i as canonical values keyed by column name.
func (d *DataFrame) Row(i int) map[string]any {
	row := make(map[string]any, d.schema.Len())
	for c, name := range d.schema.Names() {
		row[name] = column.Value(d.rec.Column(c), i)
	}
	return row
}

func (d *DataFrame) scan() (*plan.Scan, error) {
	return plan.NewScan(d.rec, d.Handle())
}

func (d *DataFrame) String() string {
	const limit = 10
	var sb strings.Builder
	rows, cols := d.Shape()
	fmt.Fprintf(&sb, "shape: (%d, %d)\n", rows, cols)

	header := make([]string, cols)
	for i, f := range d.schema.Fields() {
		header[i] = fmt.Sprintf("%s (%s)", f.Name, f.Type)
	}
	sb.WriteString(strings.Join(header, " | "))
	sb.WriteString("\n")

	for r := 0; r < int(min(rows, limit)); r++ {
		cells := make([]string, cols)
		for c := 0; c < cols; c++ {
			cells[c] = column.Format(column.Value(d.rec.Column(c), r))
		}
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteString("\n")
	}
	if rows > limit {
		fmt.Fprintf(&sb, "... %d more rows\n", rows-limit)
	}
	return sb.String()
}
