package native

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/vishal-h/explorer/internal/backend"
	"github.com/vishal-h/explorer/internal/column"
	"github.com/vishal-h/explorer/internal/dtype"
	"github.com/vishal-h/explorer/internal/plan"
)

// Join combines left and right as described by a resolved spec.
func (b *Backend) Join(ctx context.Context, left, right arrow.Record, spec plan.JoinSpec, out *dtype.Schema) (arrow.Record, error) {
	return b.track("Join", left.NumRows()+right.NumRows(), func() (arrow.Record, error) {
		return b.join(b.computeCtx(ctx), left, right, spec, out)
	})
}

func (b *Backend) join(ctx context.Context, left, right arrow.Record, spec plan.JoinSpec, out *dtype.Schema) (arrow.Record, error) {
	if err := backend.Check(ctx, "Join"); err != nil {
		return nil, err
	}

	var li, ri []int
	if spec.How == plan.JoinCross {
		li, ri = crossPairs(int(left.NumRows()), int(right.NumRows()))
	} else {
		leftKeys, err := columnsByName(left, spec.LeftOn)
		if err != nil {
			return nil, err
		}
		rightKeys, err := columnsByName(right, spec.RightOn)
		if err != nil {
			return nil, err
		}
		if li, ri, err = matchRows(ctx, spec.How, leftKeys, rightKeys); err != nil {
			return nil, err
		}
	}
	if err := backend.Check(ctx, "Join"); err != nil {
		return nil, err
	}

	leftCols, err := b.gather(ctx, left.Columns(), li)
	if err != nil {
		return nil, err
	}
	defer column.ReleaseAll(leftCols)
	rightCols, err := b.gather(ctx, right.Columns(), ri)
	if err != nil {
		return nil, err
	}
	defer column.ReleaseAll(rightCols)

	cols := make([]arrow.Array, 0, out.Len())
	var owned []arrow.Array
	defer func() { column.ReleaseAll(owned) }()

	keyPos := make(map[string]int, len(spec.LeftOn))
	for k, name := range spec.LeftOn {
		keyPos[name] = k
	}
	for i, f := range left.Schema().Fields() {
		k, isKey := keyPos[f.Name]
		if !isKey || spec.How == plan.JoinCross || spec.How == plan.JoinInner || spec.How == plan.JoinLeft {
			cols = append(cols, leftCols[i])
			continue
		}
		rightIdx, err := fieldIndex(right, spec.RightOn[k])
		if err != nil {
			return nil, err
		}
		if spec.How == plan.JoinRight {
			cols = append(cols, rightCols[rightIdx])
			continue
		}
		merged, err := coalesce(ctx, b, left.Column(i), right.Column(rightIdx), li, ri)
		if err != nil {
			return nil, err
		}
		owned = append(owned, merged)
		cols = append(cols, merged)
	}
	for i, f := range right.Schema().Fields() {
		if spec.How != plan.JoinCross && spec.IsRightKey(f.Name) {
			continue
		}
		cols = append(cols, rightCols[i])
	}
	return array.NewRecord(out.ToArrow(), cols, int64(len(li))), nil
}

func columnsByName(rec arrow.Record, names []string) ([]arrow.Array, error) {
	cols := make([]arrow.Array, len(names))
	for i, name := range names {
		var err error
		if cols[i], err = columnByName(rec, name); err != nil {
			return nil, err
		}
	}
	return cols, nil
}

func crossPairs(nl, nr int) (li, ri []int) {
	li = make([]int, 0, nl*nr)
	ri = make([]int, 0, nl*nr)
	for i := 0; i < nl; i++ {
		for j := 0; j < nr; j++ {
			li = append(li, i)
			ri = append(ri, j)
		}
	}
	return li, ri
}

// matchRows pairs rows with equal keys. Missing keys never match. Inner and
// left joins follow left row order; right joins follow right row order;
// outer joins list the left join first and then the unmatched right rows.
// An unmatched side is -1.
func matchRows(ctx context.Context, how plan.JoinHow, leftKeys, rightKeys []arrow.Array) (li, ri []int, err error) {
	probe, build := leftKeys, rightKeys
	if how == plan.JoinRight {
		probe, build = rightKeys, leftKeys
	}
	buildRows := build[0].Len()
	probeRows := probe[0].Len()

	table := newKeyTable(buildRows)
	var matches [][]int
	enc := newRowEncoder(build)
	for j := 0; j < buildRows; j++ {
		if enc.hasNull(j) {
			continue
		}
		id, added := table.insert(enc.encode(j))
		if added {
			matches = append(matches, nil)
		}
		matches[id] = append(matches[id], j)
	}

	keepUnmatched := how != plan.JoinInner
	matched := make([]bool, buildRows)
	var pi, bi []int
	enc = newRowEncoder(probe)
	for i := 0; i < probeRows; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}
		var rows []int
		if !enc.hasNull(i) {
			if id, ok := table.lookup(enc.encode(i)); ok {
				rows = matches[id]
			}
		}
		if len(rows) == 0 {
			if keepUnmatched {
				pi = append(pi, i)
				bi = append(bi, -1)
			}
			continue
		}
		for _, j := range rows {
			pi = append(pi, i)
			bi = append(bi, j)
			matched[j] = true
		}
	}

	if how == plan.JoinOuter {
		for j, ok := range matched {
			if !ok {
				pi = append(pi, -1)
				bi = append(bi, j)
			}
		}
	}
	if how == plan.JoinRight {
		return bi, pi, nil
	}
	return pi, bi, nil
}

// coalesce gathers an outer join key: the left value where the left row
// exists, the right value otherwise.
func coalesce(ctx context.Context, b *Backend, left, right arrow.Array, li, ri []int) (arrow.Array, error) {
	both, err := array.Concatenate([]arrow.Array{left, right}, b.mem)
	if err != nil {
		return nil, err
	}
	defer both.Release()
	rows := make([]int, len(li))
	for k := range li {
		if li[k] >= 0 {
			rows[k] = li[k]
		} else {
			rows[k] = left.Len() + ri[k]
		}
	}
	idx := b.indexArray(rows)
	defer idx.Release()
	return takeArray(ctx, both, idx)
}
