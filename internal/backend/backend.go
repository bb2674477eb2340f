// Package backend defines the contract every execution engine implements.
//
// The dataframe and planner layers validate shapes, names and types before
// calling a backend, so implementations may assume well-formed input: every
// expression is already bound against the schema of the record it is
// evaluated on, every named column exists and join or concat inputs are
// compatible. A backend reports failures that only data can reveal (integer
// overflow, invalid casts of concrete values, resource exhaustion) as
// execution errors, and an observed cancellation as a cancelled error.
//
// Concrete backends live in sub-packages and are made available through the
// registry package.
package backend

import (
	"context"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/vishal-h/explorer/internal/config"
	"github.com/vishal-h/explorer/internal/dtype"
	"github.com/vishal-h/explorer/internal/expr"
	"github.com/vishal-h/explorer/internal/handle"
	"github.com/vishal-h/explorer/internal/plan"
)

// Backend is an execution engine. Records passed in are borrowed; records
// and arrays returned are owned by the caller, who releases them.
type Backend interface {
	// Name is the registry name of the implementation.
	Name() string

	// Handle identifies this instance; values it produces carry it.
	Handle() handle.Handle

	// Allocator is the allocator the backend builds results with.
	Allocator() memory.Allocator

	// FromArrays assembles a record from equal-length columns matching schema.
	FromArrays(ctx context.Context, schema *dtype.Schema, cols []arrow.Array) (arrow.Record, error)

	// Select keeps the named columns in the given order.
	Select(ctx context.Context, rec arrow.Record, names []string) (arrow.Record, error)

	// Filter keeps the rows where mask is true. Missing mask values drop the row.
	Filter(ctx context.Context, rec arrow.Record, mask arrow.Array) (arrow.Record, error)

	// Slice keeps length rows from offset. Out-of-range bounds are clamped.
	Slice(ctx context.Context, rec arrow.Record, offset, length int64) (arrow.Record, error)

	// Take gathers rows by position; a missing index yields a missing row.
	Take(ctx context.Context, rec arrow.Record, indices arrow.Array) (arrow.Record, error)

	// Evaluate computes a row-wise or window expression over rec.
	Evaluate(ctx context.Context, rec arrow.Record, e expr.Expr) (arrow.Array, error)

	// WithColumns evaluates exprs against rec and adds or replaces the
	// resulting columns, producing a record with the given output schema.
	WithColumns(ctx context.Context, rec arrow.Record, exprs []expr.Expr, out *dtype.Schema) (arrow.Record, error)

	// GroupBy aggregates rec by keys; groups appear in order of first
	// occurrence. With no keys the whole record is one group.
	GroupBy(ctx context.Context, rec arrow.Record, keys []string, aggs []expr.Expr, out *dtype.Schema) (arrow.Record, error)

	// Join combines two records as described by a resolved spec.
	Join(ctx context.Context, left, right arrow.Record, spec plan.JoinSpec, out *dtype.Schema) (arrow.Record, error)

	// Sort orders rows stably by keys.
	Sort(ctx context.Context, rec arrow.Record, keys []plan.SortKey) (arrow.Record, error)

	// Concat stacks records by rows or by columns into the out schema.
	Concat(ctx context.Context, recs []arrow.Record, how plan.ConcatHow, out *dtype.Schema) (arrow.Record, error)

	// Distinct keeps the first row of every distinct combination of cols.
	Distinct(ctx context.Context, rec arrow.Record, cols []string, keepAll bool) (arrow.Record, error)

	// Pivot reshapes rec from long to wide.
	Pivot(ctx context.Context, rec arrow.Record, spec PivotSpec) (arrow.Record, error)

	// Execute runs an optimized plan whose scans this backend owns.
	Execute(ctx context.Context, node plan.Node) (arrow.Record, error)

	// Schema returns the output schema of node without executing it.
	Schema(node plan.Node) (*dtype.Schema, error)

	// Explain renders node as this backend would execute it.
	Explain(node plan.Node) (string, error)
}

// PivotSpec describes a long-to-wide reshape. The output holds the Index
// columns, one row per distinct index combination, followed by one column
// per distinct value of NamesFrom in order of first occurrence, named
// NamesPrefix + value and filled from ValuesFrom. Missing combinations are
// missing; duplicate combinations keep the first value.
type PivotSpec struct {
	Index       []string
	NamesFrom   string
	ValuesFrom  string
	NamesPrefix string
}

// Options are passed to backend factories.
type Options struct {
	Config    config.Config
	Logger    *slog.Logger
	Allocator memory.Allocator
}

// Factory creates a backend instance.
type Factory func(Options) (Backend, error)
