// Package plan provides the relational nodes of a lazy query. Every node is
// built through a constructor that validates it and derives its output
// schema purely from types, so an invalid plan can never be represented and
// schema inference never touches data.
package plan

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/vishal-h/explorer/internal/dtype"
	dferrors "github.com/vishal-h/explorer/internal/errors"
	"github.com/vishal-h/explorer/internal/expr"
	"github.com/vishal-h/explorer/internal/handle"
)

// NodeType represents the type of plan node
type NodeType int

const (
	NodeScan NodeType = iota
	NodeSelect
	NodeFilter
	NodeWithColumns
	NodeSort
	NodeSlice
	NodeGroupBy
	NodeJoin
	NodeConcat
	NodeDistinct
	NodeRename
)

// Node is one step of a lazy plan.
type Node interface {
	Type() NodeType
	Schema() *dtype.Schema
	Inputs() []Node
	// String describes the node without its inputs.
	String() string
}

// Scan reads an in-memory record owned by a backend. Columns, when set,
// narrows the scan to a subset of the source columns.
type Scan struct {
	Source  arrow.Record
	Owner   handle.Handle
	Columns []string

	full   *dtype.Schema
	schema *dtype.Schema
}

// NewScan creates a scan over rec. The scan borrows rec; the caller keeps it
// alive for as long as the plan may execute.
func NewScan(rec arrow.Record, owner handle.Handle) (*Scan, error) {
	full, err := dtype.SchemaFromArrow(rec.Schema())
	if err != nil {
		return nil, err
	}
	return &Scan{Source: rec, Owner: owner, full: full, schema: full}, nil
}

// Project returns a scan reading only the named columns, kept in source
// order.
func (s *Scan) Project(columns []string) (*Scan, error) {
	if err := s.full.Require("Scan", columns...); err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(columns))
	for _, c := range columns {
		wanted[c] = true
	}
	var ordered []string
	for _, name := range s.full.Names() {
		if wanted[name] {
			ordered = append(ordered, name)
		}
	}
	schema, err := s.full.Select("Scan", ordered...)
	if err != nil {
		return nil, err
	}
	return &Scan{Source: s.Source, Owner: s.Owner, Columns: ordered, full: s.full, schema: schema}, nil
}

// SourceSchema is the schema of the whole source record.
func (s *Scan) SourceSchema() *dtype.Schema { return s.full }

func (s *Scan) Type() NodeType        { return NodeScan }
func (s *Scan) Schema() *dtype.Schema { return s.schema }
func (s *Scan) Inputs() []Node        { return nil }
func (s *Scan) String() string {
	return fmt.Sprintf("scan %s %s", s.Owner.Backend, bracket(s.schema.Names()))
}

// Select keeps the named columns in the given order.
type Select struct {
	Input   Node
	Columns []string

	schema *dtype.Schema
}

func NewSelect(input Node, columns []string) (*Select, error) {
	schema, err := input.Schema().Select("Select", columns...)
	if err != nil {
		return nil, err
	}
	return &Select{Input: input, Columns: append([]string(nil), columns...), schema: schema}, nil
}

func (s *Select) Type() NodeType        { return NodeSelect }
func (s *Select) Schema() *dtype.Schema { return s.schema }
func (s *Select) Inputs() []Node        { return []Node{s.Input} }
func (s *Select) String() string        { return "select " + bracket(s.Columns) }

// Filter keeps the rows where Predicate is true; missing counts as false.
type Filter struct {
	Input     Node
	Predicate expr.Expr
}

func NewFilter(input Node, predicate expr.Expr) (*Filter, error) {
	bound, t, err := expr.Bind("Filter", predicate, input.Schema())
	if err != nil {
		return nil, err
	}
	if t.Kind != dtype.KindBoolean && !t.IsNull() {
		return nil, dferrors.NewTypeError("Filter", expr.OutputName(bound),
			fmt.Sprintf("predicate must be boolean, got %s", t))
	}
	return &Filter{Input: input, Predicate: bound}, nil
}

func (f *Filter) Type() NodeType        { return NodeFilter }
func (f *Filter) Schema() *dtype.Schema { return f.Input.Schema() }
func (f *Filter) Inputs() []Node        { return []Node{f.Input} }
func (f *Filter) String() string        { return "filter " + f.Predicate.String() }

// WithColumns adds or replaces columns. Every expression sees the input
// columns, not the ones produced alongside it.
type WithColumns struct {
	Input Node
	Exprs []expr.Expr

	schema *dtype.Schema
}

func NewWithColumns(input Node, exprs []expr.Expr) (*WithColumns, error) {
	if len(exprs) == 0 {
		return nil, dferrors.NewInvalidInputError("Mutate", "at least one expression is required")
	}
	schema := input.Schema()
	bound := make([]expr.Expr, len(exprs))
	seen := make(map[string]bool, len(exprs))
	for i, e := range exprs {
		b, t, err := expr.Bind("Mutate", e, input.Schema())
		if err != nil {
			return nil, err
		}
		name := expr.OutputName(b)
		if seen[name] {
			return nil, dferrors.NewValidationError("Mutate", name, "column is produced twice")
		}
		seen[name] = true
		if t.IsNull() {
			// An untyped missing column is stored as the narrowest nullable type.
			inner := b
			if a, ok := inner.(*expr.Alias); ok {
				inner = a.Arg
			}
			b, t = expr.As(expr.CastTo(inner, dtype.Boolean), name), dtype.Boolean
		}
		bound[i] = b
		schema = schema.With(dtype.Field{Name: name, Type: t})
	}
	return &WithColumns{Input: input, Exprs: bound, schema: schema}, nil
}

// Produced returns the names of the columns the node writes.
func (w *WithColumns) Produced() []string {
	names := make([]string, len(w.Exprs))
	for i, e := range w.Exprs {
		names[i] = expr.OutputName(e)
	}
	return names
}

func (w *WithColumns) Type() NodeType        { return NodeWithColumns }
func (w *WithColumns) Schema() *dtype.Schema { return w.schema }
func (w *WithColumns) Inputs() []Node        { return []Node{w.Input} }
func (w *WithColumns) String() string        { return "with_columns " + bracketExprs(w.Exprs) }

// SortKey orders rows by one column. Missing values sort last unless
// NullsFirst is set, independently of the direction.
type SortKey struct {
	Column     string
	Descending bool
	NullsFirst bool
}

func (k SortKey) String() string {
	var sb strings.Builder
	sb.WriteString(k.Column)
	if k.Descending {
		sb.WriteString(" desc")
	}
	if k.NullsFirst {
		sb.WriteString(" nulls_first")
	}
	return sb.String()
}

// ValidateSortKeys checks that every key names a sortable column.
func ValidateSortKeys(op string, schema *dtype.Schema, keys []SortKey) error {
	if len(keys) == 0 {
		return dferrors.NewInvalidInputError(op, "at least one sort key is required")
	}
	for _, k := range keys {
		t, ok := schema.Lookup(k.Column)
		if !ok {
			return dferrors.NewColumnNotFoundError(op, k.Column)
		}
		if t.Kind == dtype.KindList || t.Kind == dtype.KindStruct {
			return dferrors.NewTypeError(op, k.Column, fmt.Sprintf("cannot sort by %s", t))
		}
	}
	return nil
}

// Sort orders rows stably by Keys.
type Sort struct {
	Input Node
	Keys  []SortKey
}

func NewSort(input Node, keys []SortKey) (*Sort, error) {
	if err := ValidateSortKeys("Sort", input.Schema(), keys); err != nil {
		return nil, err
	}
	return &Sort{Input: input, Keys: append([]SortKey(nil), keys...)}, nil
}

func (s *Sort) Type() NodeType        { return NodeSort }
func (s *Sort) Schema() *dtype.Schema { return s.Input.Schema() }
func (s *Sort) Inputs() []Node        { return []Node{s.Input} }
func (s *Sort) String() string {
	parts := make([]string, len(s.Keys))
	for i, k := range s.Keys {
		parts[i] = k.String()
	}
	return "sort " + bracket(parts)
}

// Slice keeps Length rows starting at Offset. A negative Offset counts from
// the end of the input.
type Slice struct {
	Input  Node
	Offset int64
	Length int64
}

func NewSlice(input Node, offset, length int64) (*Slice, error) {
	if length < 0 {
		return nil, dferrors.NewInvalidInputError("Slice", fmt.Sprintf("length must be non-negative, got %d", length))
	}
	return &Slice{Input: input, Offset: offset, Length: length}, nil
}

func (s *Slice) Type() NodeType        { return NodeSlice }
func (s *Slice) Schema() *dtype.Schema { return s.Input.Schema() }
func (s *Slice) Inputs() []Node        { return []Node{s.Input} }
func (s *Slice) String() string {
	return fmt.Sprintf("slice offset=%d length=%d", s.Offset, s.Length)
}

// GroupBy aggregates rows sharing the same Keys. With no keys the whole
// input forms a single group.
type GroupBy struct {
	Input Node
	Keys  []string
	Aggs  []expr.Expr

	schema *dtype.Schema
}

func NewGroupBy(input Node, keys []string, aggs []expr.Expr) (*GroupBy, error) {
	in := input.Schema()
	fields := make([]dtype.Field, 0, len(keys)+len(aggs))
	for _, k := range keys {
		t, ok := in.Lookup(k)
		if !ok {
			return nil, dferrors.NewColumnNotFoundError("GroupBy", k)
		}
		fields = append(fields, dtype.Field{Name: k, Type: t})
	}
	if len(aggs) == 0 {
		return nil, dferrors.NewInvalidInputError("GroupBy", "at least one aggregation is required")
	}
	bound := make([]expr.Expr, len(aggs))
	for i, a := range aggs {
		b, t, err := expr.BindAggregation("GroupBy", a, in)
		if err != nil {
			return nil, err
		}
		bound[i] = b
		fields = append(fields, dtype.Field{Name: expr.OutputName(b), Type: t})
	}
	schema, err := dtype.NewSchema(fields...)
	if err != nil {
		return nil, dferrors.Reframe(err, "GroupBy", "")
	}
	return &GroupBy{Input: input, Keys: append([]string(nil), keys...), Aggs: bound, schema: schema}, nil
}

func (g *GroupBy) Type() NodeType        { return NodeGroupBy }
func (g *GroupBy) Schema() *dtype.Schema { return g.schema }
func (g *GroupBy) Inputs() []Node        { return []Node{g.Input} }
func (g *GroupBy) String() string {
	return fmt.Sprintf("group_by %s agg %s", bracket(g.Keys), bracketExprs(g.Aggs))
}

// Join combines two inputs; see ResolveJoin for the output naming rules.
type Join struct {
	Left, Right Node
	Spec        JoinSpec

	schema *dtype.Schema
}

func NewJoin(left, right Node, spec JoinSpec) (*Join, error) {
	if _, err := Owner("Join", left, right); err != nil {
		return nil, err
	}
	resolved, schema, err := ResolveJoin(left.Schema(), right.Schema(), spec)
	if err != nil {
		return nil, err
	}
	return &Join{Left: left, Right: right, Spec: resolved, schema: schema}, nil
}

func (j *Join) Type() NodeType        { return NodeJoin }
func (j *Join) Schema() *dtype.Schema { return j.schema }
func (j *Join) Inputs() []Node        { return []Node{j.Left, j.Right} }
func (j *Join) String() string        { return "join " + j.Spec.String() }

// ConcatHow selects row-wise or column-wise concatenation.
type ConcatHow int

const (
	ConcatRows ConcatHow = iota
	ConcatColumns
)

func (h ConcatHow) String() string {
	if h == ConcatColumns {
		return "columns"
	}
	return "rows"
}

// ConcatSchema derives the output of concatenating inputs with the given
// schemas. Rows need the same column names in any order; differing types
// relax to their supertype and the first input fixes the order. Columns need
// disjoint names.
func ConcatSchema(schemas []*dtype.Schema, how ConcatHow) (*dtype.Schema, error) {
	if len(schemas) == 0 {
		return nil, dferrors.NewInvalidInputError("Concat", "at least one input is required")
	}
	if how == ConcatColumns {
		var fields []dtype.Field
		for _, s := range schemas {
			fields = append(fields, s.Fields()...)
		}
		schema, err := dtype.NewSchema(fields...)
		if err != nil {
			return nil, dferrors.Reframe(err, "Concat", "")
		}
		return schema, nil
	}

	first := schemas[0]
	fields := first.Fields()
	for _, s := range schemas[1:] {
		if s.Len() != first.Len() {
			return nil, dferrors.NewShapeError("Concat",
				fmt.Sprintf("inputs have %d and %d columns", first.Len(), s.Len()))
		}
		for i, f := range fields {
			t, ok := s.Lookup(f.Name)
			if !ok {
				return nil, dferrors.NewColumnNotFoundError("Concat", f.Name)
			}
			super, err := dtype.Supertype(f.Type, t)
			if err != nil {
				return nil, dferrors.Reframe(err, "Concat", f.Name)
			}
			fields[i].Type = super
		}
	}
	return dtype.NewSchema(fields...)
}

// Concat stacks its inputs.
type Concat struct {
	Items []Node
	How   ConcatHow

	schema *dtype.Schema
}

func NewConcat(inputs []Node, how ConcatHow) (*Concat, error) {
	if _, err := Owner("Concat", inputs...); err != nil {
		return nil, err
	}
	schemas := make([]*dtype.Schema, len(inputs))
	for i, in := range inputs {
		schemas[i] = in.Schema()
	}
	schema, err := ConcatSchema(schemas, how)
	if err != nil {
		return nil, err
	}
	return &Concat{Items: append([]Node(nil), inputs...), How: how, schema: schema}, nil
}

func (c *Concat) Type() NodeType        { return NodeConcat }
func (c *Concat) Schema() *dtype.Schema { return c.schema }
func (c *Concat) Inputs() []Node        { return c.Items }
func (c *Concat) String() string        { return "concat " + c.How.String() }

// Distinct keeps the first row of every distinct combination of Columns
// (all columns when empty). Unless KeepAll is set only Columns are returned.
type Distinct struct {
	Input   Node
	Columns []string
	KeepAll bool

	schema *dtype.Schema
}

func NewDistinct(input Node, columns []string, keepAll bool) (*Distinct, error) {
	schema := input.Schema()
	if len(columns) > 0 {
		subset, err := schema.Select("Distinct", columns...)
		if err != nil {
			return nil, err
		}
		if !keepAll {
			schema = subset
		}
	}
	return &Distinct{Input: input, Columns: append([]string(nil), columns...), KeepAll: keepAll, schema: schema}, nil
}

// Subset is the list of columns rows are compared on.
func (d *Distinct) Subset() []string {
	if len(d.Columns) == 0 {
		return d.Input.Schema().Names()
	}
	return d.Columns
}

func (d *Distinct) Type() NodeType        { return NodeDistinct }
func (d *Distinct) Schema() *dtype.Schema { return d.schema }
func (d *Distinct) Inputs() []Node        { return []Node{d.Input} }
func (d *Distinct) String() string {
	s := "distinct " + bracket(d.Subset())
	if d.KeepAll {
		s += " keep_all"
	}
	return s
}

// RenamePair renames one column.
type RenamePair struct {
	From, To string
}

// RenameSchema applies pairs to schema.
func RenameSchema(schema *dtype.Schema, pairs []RenamePair) (*dtype.Schema, error) {
	mapping := make(map[string]string, len(pairs))
	for _, p := range pairs {
		if !schema.Has(p.From) {
			return nil, dferrors.NewColumnNotFoundError("Rename", p.From)
		}
		if _, dup := mapping[p.From]; dup {
			return nil, dferrors.NewValidationError("Rename", p.From, "column is renamed twice")
		}
		mapping[p.From] = p.To
	}
	fields := schema.Fields()
	for i, f := range fields {
		if to, ok := mapping[f.Name]; ok {
			fields[i].Name = to
		}
	}
	out, err := dtype.NewSchema(fields...)
	if err != nil {
		return nil, dferrors.Reframe(err, "Rename", "")
	}
	return out, nil
}

// Rename renames columns in place, keeping their position.
type Rename struct {
	Input Node
	Pairs []RenamePair

	schema *dtype.Schema
}

func NewRename(input Node, pairs []RenamePair) (*Rename, error) {
	schema, err := RenameSchema(input.Schema(), pairs)
	if err != nil {
		return nil, err
	}
	return &Rename{Input: input, Pairs: append([]RenamePair(nil), pairs...), schema: schema}, nil
}

// Mapping returns the renames as a map from old to new name.
func (r *Rename) Mapping() map[string]string {
	m := make(map[string]string, len(r.Pairs))
	for _, p := range r.Pairs {
		m[p.From] = p.To
	}
	return m
}

func (r *Rename) Type() NodeType        { return NodeRename }
func (r *Rename) Schema() *dtype.Schema { return r.schema }
func (r *Rename) Inputs() []Node        { return []Node{r.Input} }
func (r *Rename) String() string {
	parts := make([]string, len(r.Pairs))
	for i, p := range r.Pairs {
		parts[i] = p.From + " -> " + p.To
	}
	return "rename " + bracket(parts)
}

func bracket(names []string) string {
	return "[" + strings.Join(names, ", ") + "]"
}

func bracketExprs(exprs []expr.Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return bracket(parts)
}
