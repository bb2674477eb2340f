package dtype

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	dferrors "github.com/vishal-h/explorer/internal/errors"
)

// Schema is an ordered, immutable mapping from unique column names to types.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema builds a schema, rejecting duplicate column names.
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if _, dup := s.index[f.Name]; dup {
			return nil, dferrors.NewValidationError("Schema", f.Name, "duplicate column name")
		}
		s.fields[i] = f
		s.index[f.Name] = i
	}
	return s, nil
}

// MustSchema is NewSchema for fields known to be unique.
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Len() int { return len(s.fields) }

func (s *Schema) Field(i int) Field { return s.fields[i] }

// Fields returns a copy of the fields in order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Index returns the position of name, or -1.
func (s *Schema) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Lookup returns the type of the named column.
func (s *Schema) Lookup(name string) (DType, bool) {
	i, ok := s.index[name]
	if !ok {
		return DType{}, false
	}
	return s.fields[i].Type, true
}

// Require checks that every name exists, reporting the first missing one
// against op.
func (s *Schema) Require(op string, names ...string) error {
	for _, name := range names {
		if !s.Has(name) {
			return dferrors.NewColumnNotFoundError(op, name)
		}
	}
	return nil
}

// Select returns the schema of the named columns in the requested order.
func (s *Schema) Select(op string, names ...string) (*Schema, error) {
	fields := make([]Field, 0, len(names))
	for _, name := range names {
		t, ok := s.Lookup(name)
		if !ok {
			return nil, dferrors.NewColumnNotFoundError(op, name)
		}
		fields = append(fields, Field{Name: name, Type: t})
	}
	return NewSchema(fields...)
}

// Drop returns the schema without the named columns.
func (s *Schema) Drop(op string, names ...string) (*Schema, error) {
	if err := s.Require(op, names...); err != nil {
		return nil, err
	}
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	fields := make([]Field, 0, len(s.fields))
	for _, f := range s.fields {
		if _, ok := drop[f.Name]; !ok {
			fields = append(fields, f)
		}
	}
	return NewSchema(fields...)
}

// With returns the schema with f replacing a same-named column in place, or
// appended at the end.
func (s *Schema) With(f Field) *Schema {
	fields := s.Fields()
	if i := s.Index(f.Name); i >= 0 {
		fields[i] = f
	} else {
		fields = append(fields, f)
	}
	return MustSchema(fields...)
}

func (s *Schema) Equal(o *Schema) bool {
	if s.Len() != o.Len() {
		return false
	}
	for i := range s.fields {
		if s.fields[i].Name != o.fields[i].Name || !s.fields[i].Type.Equal(o.fields[i].Type) {
			return false
		}
	}
	return true
}

func (s *Schema) String() string {
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Name, f.Type)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// ToArrow converts the schema to nullable Arrow fields.
func (s *Schema) ToArrow() *arrow.Schema {
	fields := make([]arrow.Field, len(s.fields))
	for i, f := range s.fields {
		fields[i] = arrow.Field{Name: f.Name, Type: f.Type.ToArrow(), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// SchemaFromArrow converts an Arrow schema, failing on duplicate names or
// unsupported types.
func SchemaFromArrow(as *arrow.Schema) (*Schema, error) {
	fields := make([]Field, as.NumFields())
	for i, f := range as.Fields() {
		t, err := FromArrow(f.Type)
		if err != nil {
			return nil, err
		}
		fields[i] = Field{Name: f.Name, Type: t}
	}
	return NewSchema(fields...)
}
