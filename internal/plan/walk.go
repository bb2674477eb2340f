package plan

import (
	"fmt"
	"strings"

	dferrors "github.com/vishal-h/explorer/internal/errors"
	"github.com/vishal-h/explorer/internal/handle"
)

// Walk calls fn for n and its inputs, parents first, until fn returns false.
func Walk(n Node, fn func(Node) bool) {
	if !fn(n) {
		return
	}
	for _, in := range n.Inputs() {
		Walk(in, fn)
	}
}

// Owner returns the backend handle owning every scan under nodes. Plans
// reading data of two different backends are rejected.
func Owner(op string, nodes ...Node) (handle.Handle, error) {
	var owner handle.Handle
	var err error
	for _, n := range nodes {
		Walk(n, func(node Node) bool {
			scan, ok := node.(*Scan)
			if !ok {
				return err == nil
			}
			switch {
			case owner.IsZero():
				owner = scan.Owner
			case !owner.Same(scan.Owner):
				err = dferrors.NewBackendMismatchError(op, owner.String(), scan.Owner.String())
			}
			return err == nil
		})
		if err != nil {
			return handle.Handle{}, err
		}
	}
	return owner, nil
}

// WithInputs rebuilds n over new inputs, re-deriving its schema.
func WithInputs(n Node, inputs []Node) (Node, error) {
	switch x := n.(type) {
	case *Scan:
		return x, nil
	case *Select:
		return NewSelect(inputs[0], x.Columns)
	case *Filter:
		return NewFilter(inputs[0], x.Predicate)
	case *WithColumns:
		return NewWithColumns(inputs[0], x.Exprs)
	case *Sort:
		return NewSort(inputs[0], x.Keys)
	case *Slice:
		return NewSlice(inputs[0], x.Offset, x.Length)
	case *GroupBy:
		return NewGroupBy(inputs[0], x.Keys, x.Aggs)
	case *Join:
		return NewJoin(inputs[0], inputs[1], x.Spec)
	case *Concat:
		return NewConcat(inputs, x.How)
	case *Distinct:
		return NewDistinct(inputs[0], x.Columns, x.KeepAll)
	case *Rename:
		return NewRename(inputs[0], x.Pairs)
	default:
		return nil, dferrors.NewInternalError("WithInputs", fmt.Errorf("unknown plan node %T", n))
	}
}

// Explain renders the plan as an indented tree, one node per line, inputs
// below their consumer.
func Explain(n Node) string {
	var sb strings.Builder
	explain(&sb, n, 0)
	return sb.String()
}

func explain(sb *strings.Builder, n Node, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(n.String())
	sb.WriteByte('\n')
	for _, in := range n.Inputs() {
		explain(sb, in, depth+1)
	}
}
