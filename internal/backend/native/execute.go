package native

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/vishal-h/explorer/internal/backend"
	dferrors "github.com/vishal-h/explorer/internal/errors"
	dfmem "github.com/vishal-h/explorer/internal/memory"
	"github.com/vishal-h/explorer/internal/plan"
)

// Execute runs a plan whose scans this backend owns. Intermediate records
// are released as soon as the call returns; on failure nothing survives.
func (b *Backend) Execute(ctx context.Context, node plan.Node) (arrow.Record, error) {
	if err := b.owns("Execute", node); err != nil {
		return nil, err
	}
	return b.track("Execute", 0, func() (arrow.Record, error) {
		tracker := dfmem.NewResourceTracker(b.mem)
		defer tracker.ReleaseAll()

		rec, err := b.run(b.computeCtx(ctx), tracker, node)
		if err != nil {
			return nil, err
		}
		tracker.Detach(rec)
		return rec, nil
	})
}

func (b *Backend) run(ctx context.Context, tracker *dfmem.ResourceTracker, node plan.Node) (arrow.Record, error) {
	if err := backend.Check(ctx, "Execute"); err != nil {
		return nil, err
	}

	inputs := make([]arrow.Record, 0, len(node.Inputs()))
	for _, in := range node.Inputs() {
		rec, err := b.run(ctx, tracker, in)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, rec)
	}
	if err := backend.Check(ctx, "Execute"); err != nil {
		return nil, err
	}

	rec, err := b.step(ctx, node, inputs)
	if err != nil {
		return nil, dferrors.Reframe(err, nodeOp(node), "")
	}
	b.logger.Debug("plan step", "node", node.String(), "rows", rec.NumRows())
	return dfmem.Track(tracker, rec), nil
}

func (b *Backend) step(ctx context.Context, node plan.Node, in []arrow.Record) (arrow.Record, error) {
	switch x := node.(type) {
	case *plan.Scan:
		if !x.Owner.Same(b.handle) {
			return nil, dferrors.NewBackendMismatchError("Scan", b.handle.String(), x.Owner.String())
		}
		if len(x.Columns) == 0 {
			x.Source.Retain()
			return x.Source, nil
		}
		return selectColumns(x.Source, x.Columns)
	case *plan.Select:
		return selectColumns(in[0], x.Columns)
	case *plan.Filter:
		mask, err := b.evaluator(ctx, in[0]).eval(x.Predicate)
		if err != nil {
			return nil, err
		}
		defer mask.Release()
		return b.filter(ctx, in[0], mask)
	case *plan.WithColumns:
		return b.withColumns(ctx, in[0], x.Exprs, x.Schema())
	case *plan.Sort:
		return b.sort(ctx, in[0], x.Keys)
	case *plan.Slice:
		return sliceRecord(in[0], x.Offset, x.Length), nil
	case *plan.GroupBy:
		return b.groupBy(ctx, in[0], x.Keys, x.Aggs, x.Schema())
	case *plan.Join:
		return b.join(ctx, in[0], in[1], x.Spec, x.Schema())
	case *plan.Concat:
		return b.concat(ctx, in, x.How, x.Schema())
	case *plan.Distinct:
		return b.distinct(ctx, in[0], x.Subset(), x.KeepAll)
	case *plan.Rename:
		return array.NewRecord(x.Schema().ToArrow(), in[0].Columns(), in[0].NumRows()), nil
	default:
		return nil, dferrors.NewInternalError("Execute", fmt.Errorf("unknown plan node %T", node))
	}
}

func nodeOp(node plan.Node) string {
	switch node.(type) {
	case *plan.Scan:
		return "Scan"
	case *plan.Select:
		return "Select"
	case *plan.Filter:
		return "Filter"
	case *plan.WithColumns:
		return "Mutate"
	case *plan.Sort:
		return "Sort"
	case *plan.Slice:
		return "Slice"
	case *plan.GroupBy:
		return "GroupBy"
	case *plan.Join:
		return "Join"
	case *plan.Concat:
		return "Concat"
	case *plan.Distinct:
		return "Distinct"
	case *plan.Rename:
		return "Rename"
	default:
		return "Execute"
	}
}
