package native

import (
	"context"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/vishal-h/explorer/internal/backend"
	"github.com/vishal-h/explorer/internal/column"
	"github.com/vishal-h/explorer/internal/plan"
)

// Sort orders rows stably by keys.
func (b *Backend) Sort(ctx context.Context, rec arrow.Record, keys []plan.SortKey) (arrow.Record, error) {
	return b.track("Sort", rec.NumRows(), func() (arrow.Record, error) {
		return b.sort(b.computeCtx(ctx), rec, keys)
	})
}

func (b *Backend) sort(ctx context.Context, rec arrow.Record, keys []plan.SortKey) (arrow.Record, error) {
	if err := backend.Check(ctx, "Sort"); err != nil {
		return nil, err
	}
	values := make([][]any, len(keys))
	for k, key := range keys {
		col, err := columnByName(rec, key.Column)
		if err != nil {
			return nil, err
		}
		values[k] = column.Values(col)
	}

	rows := allRows(int(rec.NumRows()))
	sort.SliceStable(rows, func(i, j int) bool {
		return lessRow(keys, values, rows[i], rows[j])
	})
	if err := backend.Check(ctx, "Sort"); err != nil {
		return nil, err
	}
	return b.takeRows(ctx, rec, rows)
}

// lessRow orders two rows by the sort keys. Missing values go last unless
// the key asks for them first, whatever the direction.
func lessRow(keys []plan.SortKey, values [][]any, a, b int) bool {
	for k, key := range keys {
		x, y := values[k][a], values[k][b]
		switch {
		case x == nil && y == nil:
			continue
		case x == nil:
			return key.NullsFirst
		case y == nil:
			return !key.NullsFirst
		}
		c := compareValues(x, y)
		if c == 0 {
			continue
		}
		if key.Descending {
			return c > 0
		}
		return c < 0
	}
	return false
}
