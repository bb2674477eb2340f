package dataframe

import (
	"context"

	"github.com/vishal-h/explorer/internal/backend"
	"github.com/vishal-h/explorer/internal/dtype"
	"github.com/vishal-h/explorer/internal/expr"
	"github.com/vishal-h/explorer/internal/plan"
	"github.com/vishal-h/explorer/internal/planner"
	"github.com/vishal-h/explorer/internal/registry"
)

// LazyFrame holds a DataFrame and a plan of deferred operations.
//
// Building never touches data. An operation that is statically invalid
// (unknown column, incompatible types, an aggregation outside a group-by,
// plans of two backends) poisons the frame: later operations are no-ops and
// Collect, Schema and Explain return the first error. The frames a plan
// scans are borrowed; keep them alive until the last Collect.
type LazyFrame struct {
	node    plan.Node
	backend backend.Backend
	err     error
}

// Lazy starts a lazy plan reading d.
func (d *DataFrame) Lazy() *LazyFrame {
	scan, err := d.scan()
	if err != nil {
		return &LazyFrame{backend: d.backend, err: err}
	}
	return &LazyFrame{node: scan, backend: d.backend}
}

// then appends the node built by fn.
func (lf *LazyFrame) then(fn func(plan.Node) (plan.Node, error)) *LazyFrame {
	if lf.err != nil {
		return lf
	}
	n, err := fn(lf.node)
	if err != nil {
		return &LazyFrame{node: lf.node, backend: lf.backend, err: err}
	}
	return &LazyFrame{node: n, backend: lf.backend}
}

// Err returns the first error met while building the plan.
func (lf *LazyFrame) Err() error { return lf.err }

// Plan returns the plan built so far, nil when building failed before the
// first node.
func (lf *LazyFrame) Plan() plan.Node { return lf.node }

// Backend returns the backend the plan will run on.
func (lf *LazyFrame) Backend() backend.Backend { return lf.backend }

func (lf *LazyFrame) Select(names ...string) *LazyFrame {
	return lf.then(func(in plan.Node) (plan.Node, error) { return plan.NewSelect(in, names) })
}

func (lf *LazyFrame) Drop(names ...string) *LazyFrame {
	return lf.then(func(in plan.Node) (plan.Node, error) {
		kept, err := in.Schema().Drop("Drop", names...)
		if err != nil {
			return nil, err
		}
		return plan.NewSelect(in, kept.Names())
	})
}

func (lf *LazyFrame) Rename(pairs ...plan.RenamePair) *LazyFrame {
	return lf.then(func(in plan.Node) (plan.Node, error) { return plan.NewRename(in, pairs) })
}

func (lf *LazyFrame) Filter(predicate expr.Expr) *LazyFrame {
	return lf.then(func(in plan.Node) (plan.Node, error) { return plan.NewFilter(in, predicate) })
}

func (lf *LazyFrame) Mutate(exprs ...expr.Expr) *LazyFrame {
	return lf.then(func(in plan.Node) (plan.Node, error) { return plan.NewWithColumns(in, exprs) })
}

func (lf *LazyFrame) Sort(keys ...plan.SortKey) *LazyFrame {
	return lf.then(func(in plan.Node) (plan.Node, error) { return plan.NewSort(in, keys) })
}

func (lf *LazyFrame) Slice(offset, length int64) *LazyFrame {
	return lf.then(func(in plan.Node) (plan.Node, error) { return plan.NewSlice(in, offset, length) })
}

func (lf *LazyFrame) Head(n int64) *LazyFrame { return lf.Slice(0, n) }

func (lf *LazyFrame) Tail(n int64) *LazyFrame { return lf.Slice(-n, n) }

func (lf *LazyFrame) Distinct(columns []string, keepAll bool) *LazyFrame {
	return lf.then(func(in plan.Node) (plan.Node, error) { return plan.NewDistinct(in, columns, keepAll) })
}

// LazyGroupBy is a lazy frame grouped by key columns.
type LazyGroupBy struct {
	lf   *LazyFrame
	keys []string
}

func (lf *LazyFrame) GroupBy(keys ...string) *LazyGroupBy {
	return &LazyGroupBy{lf: lf, keys: append([]string(nil), keys...)}
}

func (g *LazyGroupBy) Agg(aggs ...expr.Expr) *LazyFrame {
	return g.lf.then(func(in plan.Node) (plan.Node, error) { return plan.NewGroupBy(in, g.keys, aggs) })
}

func (lf *LazyFrame) Summarise(aggs ...expr.Expr) *LazyFrame {
	return lf.GroupBy().Agg(aggs...)
}

func (lf *LazyFrame) Join(right *LazyFrame, spec plan.JoinSpec) *LazyFrame {
	if right.err != nil && lf.err == nil {
		return &LazyFrame{node: lf.node, backend: lf.backend, err: right.err}
	}
	return lf.then(func(in plan.Node) (plan.Node, error) { return plan.NewJoin(in, right.node, spec) })
}

func (lf *LazyFrame) Concat(how plan.ConcatHow, others ...*LazyFrame) *LazyFrame {
	for _, o := range others {
		if o.err != nil && lf.err == nil {
			return &LazyFrame{node: lf.node, backend: lf.backend, err: o.err}
		}
	}
	return lf.then(func(in plan.Node) (plan.Node, error) {
		nodes := []plan.Node{in}
		for _, o := range others {
			nodes = append(nodes, o.node)
		}
		return plan.NewConcat(nodes, how)
	})
}

// Schema returns the output schema without executing anything.
func (lf *LazyFrame) Schema() (*dtype.Schema, error) {
	if lf.err != nil {
		return nil, lf.err
	}
	return lf.backend.Schema(lf.node)
}

func (lf *LazyFrame) planner() *planner.Planner {
	return planner.New(registry.Current().Config, registry.Logger())
}

// Explain renders the optimized plan.
func (lf *LazyFrame) Explain(ctx context.Context) (string, error) {
	if lf.err != nil {
		return "", lf.err
	}
	return lf.planner().Explain(ctx, lf.backend, lf.node)
}

// Collect optimizes and executes the plan. Every call executes again.
func (lf *LazyFrame) Collect(ctx context.Context) (*DataFrame, error) {
	df, _, err := lf.CollectExecution(ctx)
	return df, err
}

// CollectExecution is Collect that also returns the record of the run.
func (lf *LazyFrame) CollectExecution(ctx context.Context) (*DataFrame, *planner.Execution, error) {
	if lf.err != nil {
		return nil, nil, lf.err
	}
	rec, exec, err := lf.planner().Collect(ctx, lf.backend, lf.node)
	if err != nil {
		return nil, exec, err
	}
	df, err := wrap("Collect", lf.backend, rec, nil)
	return df, exec, err
}

func (lf *LazyFrame) String() string {
	if lf.err != nil {
		return "invalid plan: " + lf.err.Error()
	}
	return plan.Explain(lf.node)
}
