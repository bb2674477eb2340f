package planner

import (
	"slices"

	"github.com/vishal-h/explorer/internal/expr"
	"github.com/vishal-h/explorer/internal/plan"
)

// Rule rewrites a plan into an equivalent one. Rules must be idempotent on
// their own output so the optimizer reaches a fixpoint.
type Rule interface {
	Name() string
	Apply(n plan.Node) (plan.Node, error)
}

// rebuild applies fn to the inputs of n and re-derives n when any changed.
func rebuild(n plan.Node, fn func(plan.Node) (plan.Node, error)) (plan.Node, error) {
	inputs := n.Inputs()
	if len(inputs) == 0 {
		return n, nil
	}
	next := make([]plan.Node, len(inputs))
	changed := false
	for i, in := range inputs {
		out, err := fn(in)
		if err != nil {
			return nil, err
		}
		next[i] = out
		changed = changed || out != in
	}
	if !changed {
		return n, nil
	}
	return plan.WithInputs(n, next)
}

// ConstantFolding folds literal-only sub-expressions and removes filters
// whose predicate is always true.
type ConstantFolding struct{}

func (ConstantFolding) Name() string { return "ConstantFolding" }

func (r ConstantFolding) Apply(n plan.Node) (plan.Node, error) {
	n, err := rebuild(n, r.Apply)
	if err != nil {
		return nil, err
	}
	switch x := n.(type) {
	case *plan.Filter:
		pred := expr.Fold(x.Predicate)
		if expr.IsLiteralTrue(pred) {
			return x.Input, nil
		}
		if pred.String() == x.Predicate.String() {
			return x, nil
		}
		return plan.NewFilter(x.Input, pred)
	case *plan.WithColumns:
		exprs := make([]expr.Expr, len(x.Exprs))
		changed := false
		for i, e := range x.Exprs {
			exprs[i] = keepName(expr.Fold(e), e)
			changed = changed || exprs[i].String() != e.String()
		}
		if !changed {
			return x, nil
		}
		return plan.NewWithColumns(x.Input, exprs)
	}
	return n, nil
}

// keepName aliases folded to the output name of orig when folding changed it.
func keepName(folded, orig expr.Expr) expr.Expr {
	name := expr.OutputName(orig)
	if expr.OutputName(folded) == name {
		return folded
	}
	return expr.As(folded, name)
}

// PredicatePushdown moves filters towards the scans. Adjacent filters are
// fused when Fusion is set. Predicates are split into conjuncts so the part
// that can move does, and the rest stays in place.
type PredicatePushdown struct {
	Fusion bool
}

func (PredicatePushdown) Name() string { return "PredicatePushdown" }

func (r PredicatePushdown) Apply(n plan.Node) (plan.Node, error) {
	n, err := rebuild(n, r.Apply)
	if err != nil {
		return nil, err
	}
	if f, ok := n.(*plan.Filter); ok {
		return r.push(f.Input, f.Predicate)
	}
	return n, nil
}

// push returns a plan equivalent to filtering input by pred, with pred
// placed as low as it can go.
func (r PredicatePushdown) push(input plan.Node, pred expr.Expr) (plan.Node, error) {
	// A window or aggregate inside pred sees every input row, so nothing that
	// drops or reorders rows may run before it.
	if !expr.IsRowWise(pred) {
		switch input.(type) {
		case *plan.Select, *plan.Rename:
		default:
			return filterOver(input, pred)
		}
	}

	switch x := input.(type) {
	case *plan.Filter:
		if !r.Fusion {
			break
		}
		return r.push(x.Input, expr.And(x.Predicate, pred))

	case *plan.Select:
		inner, err := r.push(x.Input, pred)
		if err != nil {
			return nil, err
		}
		return plan.NewSelect(inner, x.Columns)

	case *plan.Rename:
		inverse := make(map[string]string, len(x.Pairs))
		for _, p := range x.Pairs {
			inverse[p.To] = p.From
		}
		inner, err := r.push(x.Input, expr.Rename(pred, inverse))
		if err != nil {
			return nil, err
		}
		return plan.NewRename(inner, x.Pairs)

	case *plan.Sort:
		inner, err := r.push(x.Input, pred)
		if err != nil {
			return nil, err
		}
		return plan.NewSort(inner, x.Keys)

	case *plan.WithColumns:
		if !allRowWise(x.Exprs) {
			break
		}
		produced := x.Produced()
		movable, stay := split(pred, func(c expr.Expr) bool {
			return expr.IsRowWise(c) && !overlaps(expr.Columns(c), produced)
		})
		if movable == nil {
			break
		}
		inner, err := r.push(x.Input, movable)
		if err != nil {
			return nil, err
		}
		out, err := plan.NewWithColumns(inner, x.Exprs)
		if err != nil {
			return nil, err
		}
		return filterOver(out, stay)

	case *plan.GroupBy:
		if len(x.Keys) == 0 {
			break
		}
		movable, stay := split(pred, func(c expr.Expr) bool {
			used := expr.Columns(c)
			return expr.IsRowWise(c) && len(used) > 0 && subset(used, x.Keys)
		})
		if movable == nil {
			break
		}
		inner, err := r.push(x.Input, movable)
		if err != nil {
			return nil, err
		}
		out, err := plan.NewGroupBy(inner, x.Keys, x.Aggs)
		if err != nil {
			return nil, err
		}
		return filterOver(out, stay)

	case *plan.Concat:
		if x.How != plan.ConcatRows {
			break
		}
		for _, item := range x.Items {
			if !item.Schema().Equal(x.Schema()) {
				return filterOver(x, pred)
			}
		}
		items := make([]plan.Node, len(x.Items))
		for i, item := range x.Items {
			var err error
			if items[i], err = r.push(item, pred); err != nil {
				return nil, err
			}
		}
		return plan.NewConcat(items, x.How)

	case *plan.Join:
		return r.pushJoin(x, pred)
	}
	return filterOver(input, pred)
}

// pushJoin sends conjuncts to the side(s) whose rows the join preserves:
// both sides of inner and cross joins, the left side of left joins and the
// right side of right joins.
func (r PredicatePushdown) pushJoin(j *plan.Join, pred expr.Expr) (plan.Node, error) {
	how := j.Spec.How
	toLeft := how == plan.JoinInner || how == plan.JoinCross || how == plan.JoinLeft
	toRight := how == plan.JoinInner || how == plan.JoinCross || how == plan.JoinRight

	leftNames := j.Left.Schema().Names()
	// Output name of every right column that can be addressed from above.
	rightNames := make(map[string]string)
	for _, name := range j.Right.Schema().Names() {
		if how != plan.JoinCross && j.Spec.IsRightKey(name) {
			continue
		}
		rightNames[j.Spec.RightOutputName(name)] = name
	}
	if how == plan.JoinRight {
		for k, name := range j.Spec.LeftOn {
			rightNames[name] = j.Spec.RightOn[k]
		}
	}

	var leftPreds, rightPreds []expr.Expr
	movable, stay := split(pred, func(c expr.Expr) bool {
		if !expr.IsRowWise(c) {
			return false
		}
		used := expr.Columns(c)
		if len(used) == 0 {
			return false
		}
		switch {
		case toLeft && subset(used, leftNames):
			leftPreds = append(leftPreds, c)
			return true
		case toRight && mapsAll(used, rightNames):
			rightPreds = append(rightPreds, expr.Rename(c, rightNames))
			return true
		}
		return false
	})
	if movable == nil {
		return filterOver(j, pred)
	}

	left, right := j.Left, j.Right
	var err error
	if len(leftPreds) > 0 {
		if left, err = r.push(left, conjunction(leftPreds)); err != nil {
			return nil, err
		}
	}
	if len(rightPreds) > 0 {
		if right, err = r.push(right, conjunction(rightPreds)); err != nil {
			return nil, err
		}
	}
	out, err := plan.NewJoin(left, right, j.Spec)
	if err != nil {
		return nil, err
	}
	return filterOver(out, stay)
}

// ProjectionPruning narrows every scan to the columns the plan above it
// reads.
type ProjectionPruning struct{}

func (ProjectionPruning) Name() string { return "ProjectionPruning" }

func (r ProjectionPruning) Apply(n plan.Node) (plan.Node, error) {
	return r.prune(n, n.Schema().Names())
}

func (r ProjectionPruning) prune(n plan.Node, required []string) (plan.Node, error) {
	switch x := n.(type) {
	case *plan.Scan:
		want := intersect(x.SourceSchema().Names(), required)
		if len(want) == 0 {
			// Keep one column so the row count survives.
			want = x.SourceSchema().Names()[:1]
		}
		if slices.Equal(want, x.Schema().Names()) {
			return x, nil
		}
		return x.Project(want)
	case *plan.Select:
		return r.one(x, x.Columns)
	case *plan.Filter:
		return r.one(x, union(required, expr.Columns(x.Predicate)))
	case *plan.WithColumns:
		need := difference(required, x.Produced())
		for _, e := range x.Exprs {
			need = union(need, expr.Columns(e))
		}
		return r.one(x, need)
	case *plan.Sort:
		need := required
		for _, k := range x.Keys {
			need = union(need, []string{k.Column})
		}
		return r.one(x, need)
	case *plan.Slice:
		return r.one(x, required)
	case *plan.GroupBy:
		need := append([]string(nil), x.Keys...)
		for _, a := range x.Aggs {
			need = union(need, expr.Columns(a))
		}
		return r.one(x, need)
	case *plan.Distinct:
		need := x.Subset()
		if x.KeepAll {
			need = union(need, required)
		}
		return r.one(x, need)
	case *plan.Rename:
		inverse := make(map[string]string, len(x.Pairs))
		for _, p := range x.Pairs {
			inverse[p.To] = p.From
		}
		var need []string
		for _, name := range required {
			if from, ok := inverse[name]; ok {
				name = from
			}
			need = union(need, []string{name})
		}
		for _, p := range x.Pairs {
			need = union(need, []string{p.From})
		}
		return r.one(x, need)
	case *plan.Concat:
		inputs := make([]plan.Node, len(x.Items))
		for i, item := range x.Items {
			need := required
			if x.How == plan.ConcatColumns {
				need = intersect(item.Schema().Names(), required)
				if len(need) == 0 {
					need = item.Schema().Names()[:1]
				}
			}
			var err error
			if inputs[i], err = r.prune(item, need); err != nil {
				return nil, err
			}
		}
		return withInputs(x, inputs)
	case *plan.Join:
		leftNeed := append([]string(nil), x.Spec.LeftOn...)
		rightNeed := append([]string(nil), x.Spec.RightOn...)
		rightByOutput := make(map[string]string)
		for _, name := range x.Right.Schema().Names() {
			rightByOutput[x.Spec.RightOutputName(name)] = name
		}
		leftNames := x.Left.Schema().Names()
		for _, name := range required {
			if slices.Contains(leftNames, name) {
				leftNeed = union(leftNeed, []string{name})
				continue
			}
			if from, ok := rightByOutput[name]; ok {
				rightNeed = union(rightNeed, []string{from})
			}
		}
		left, err := r.prune(x.Left, leftNeed)
		if err != nil {
			return nil, err
		}
		right, err := r.prune(x.Right, rightNeed)
		if err != nil {
			return nil, err
		}
		return withInputs(x, []plan.Node{left, right})
	}
	return n, nil
}

// one prunes the single input of n to need.
func (r ProjectionPruning) one(n plan.Node, need []string) (plan.Node, error) {
	in := n.Inputs()[0]
	out, err := r.prune(in, need)
	if err != nil {
		return nil, err
	}
	return withInputs(n, []plan.Node{out})
}

func withInputs(n plan.Node, inputs []plan.Node) (plan.Node, error) {
	for i, in := range n.Inputs() {
		if inputs[i] != in {
			return plan.WithInputs(n, inputs)
		}
	}
	return n, nil
}

func allRowWise(exprs []expr.Expr) bool {
	for _, e := range exprs {
		if !expr.IsRowWise(e) {
			return false
		}
	}
	return true
}

// conjuncts splits a predicate on its top-level ands.
func conjuncts(e expr.Expr) []expr.Expr {
	if b, ok := e.(*expr.Binary); ok && b.Op == expr.OpAnd {
		return append(conjuncts(b.Left), conjuncts(b.Right)...)
	}
	return []expr.Expr{e}
}

func conjunction(parts []expr.Expr) expr.Expr {
	if len(parts) == 0 {
		return nil
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out = expr.And(out, p)
	}
	return out
}

// split partitions the conjuncts of pred by can.
func split(pred expr.Expr, can func(expr.Expr) bool) (movable, stay expr.Expr) {
	var move, keep []expr.Expr
	for _, c := range conjuncts(pred) {
		if can(c) {
			move = append(move, c)
		} else {
			keep = append(keep, c)
		}
	}
	return conjunction(move), conjunction(keep)
}

// filterOver filters n by pred, or returns n when pred is nil.
func filterOver(n plan.Node, pred expr.Expr) (plan.Node, error) {
	if pred == nil {
		return n, nil
	}
	return plan.NewFilter(n, pred)
}

func subset(names, of []string) bool {
	for _, n := range names {
		if !slices.Contains(of, n) {
			return false
		}
	}
	return true
}

func overlaps(a, b []string) bool {
	for _, n := range a {
		if slices.Contains(b, n) {
			return true
		}
	}
	return false
}

func mapsAll(names []string, m map[string]string) bool {
	for _, n := range names {
		if _, ok := m[n]; !ok {
			return false
		}
	}
	return true
}

// intersect keeps the names of order that appear in names, in order.
func intersect(order, names []string) []string {
	var out []string
	for _, n := range order {
		if slices.Contains(names, n) {
			out = append(out, n)
		}
	}
	return out
}

func union(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, n := range b {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

func difference(a, b []string) []string {
	var out []string
	for _, n := range a {
		if !slices.Contains(b, n) {
			out = append(out, n)
		}
	}
	return out
}
