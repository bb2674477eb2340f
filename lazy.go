package explorer

import (
	"context"

	"github.com/vishal-h/explorer/internal/dataframe"
)

// LazyFrame records operations as a plan that runs on Collect.
//
// Building never touches data. A statically invalid operation poisons the
// frame; Collect, Schema and Explain then report the first error.
type LazyFrame struct {
	lf *dataframe.LazyFrame
}

// Err returns the first error met while building the plan.
func (lf *LazyFrame) Err() error { return lf.lf.Err() }

func (lf *LazyFrame) Select(names ...string) *LazyFrame {
	return &LazyFrame{lf.lf.Select(names...)}
}

func (lf *LazyFrame) Drop(names ...string) *LazyFrame {
	return &LazyFrame{lf.lf.Drop(names...)}
}

func (lf *LazyFrame) Rename(pairs ...RenamePair) *LazyFrame {
	return &LazyFrame{lf.lf.Rename(pairs...)}
}

func (lf *LazyFrame) Filter(predicate Expr) *LazyFrame {
	return &LazyFrame{lf.lf.Filter(predicate.e)}
}

func (lf *LazyFrame) Mutate(exprs ...Expr) *LazyFrame {
	return &LazyFrame{lf.lf.Mutate(unwrapExprs(exprs)...)}
}

func (lf *LazyFrame) Sort(keys ...SortKey) *LazyFrame {
	return &LazyFrame{lf.lf.Sort(keys...)}
}

func (lf *LazyFrame) Slice(offset, length int64) *LazyFrame {
	return &LazyFrame{lf.lf.Slice(offset, length)}
}

func (lf *LazyFrame) Head(n int64) *LazyFrame { return &LazyFrame{lf.lf.Head(n)} }
func (lf *LazyFrame) Tail(n int64) *LazyFrame { return &LazyFrame{lf.lf.Tail(n)} }

func (lf *LazyFrame) Distinct(columns []string, keepAll bool) *LazyFrame {
	return &LazyFrame{lf.lf.Distinct(columns, keepAll)}
}

// GroupBy groups the plan by the key columns for Agg.
func (lf *LazyFrame) GroupBy(keys ...string) *LazyGroupBy {
	return &LazyGroupBy{lf.lf.GroupBy(keys...)}
}

func (lf *LazyFrame) Summarise(aggs ...Expr) *LazyFrame {
	return &LazyFrame{lf.lf.Summarise(unwrapExprs(aggs)...)}
}

// Join combines two plans of the same backend.
func (lf *LazyFrame) Join(right *LazyFrame, spec JoinSpec) *LazyFrame {
	return &LazyFrame{lf.lf.Join(right.lf, spec)}
}

// Concat stacks lf and others by rows or by columns.
func (lf *LazyFrame) Concat(how ConcatHow, others ...*LazyFrame) *LazyFrame {
	inner := make([]*dataframe.LazyFrame, len(others))
	for i, o := range others {
		inner[i] = o.lf
	}
	return &LazyFrame{lf.lf.Concat(how, inner...)}
}

// Schema returns the output schema without executing anything.
func (lf *LazyFrame) Schema() (*Schema, error) { return lf.lf.Schema() }

// Explain renders the optimized plan, one node per line, children
// indented below their parent.
func (lf *LazyFrame) Explain(ctx context.Context) (string, error) { return lf.lf.Explain(ctx) }

// Collect optimizes and executes the plan. Every call executes again.
func (lf *LazyFrame) Collect(ctx context.Context) (*DataFrame, error) {
	return wrapFrame(lf.lf.Collect(ctx))
}

// String renders the plan as built, before optimization.
func (lf *LazyFrame) String() string { return lf.lf.String() }

// LazyGroupBy is a lazy frame grouped by key columns.
type LazyGroupBy struct {
	g *dataframe.LazyGroupBy
}

// Agg appends the aggregation of every group.
func (g *LazyGroupBy) Agg(aggs ...Expr) *LazyFrame {
	return &LazyFrame{g.g.Agg(unwrapExprs(aggs)...)}
}
