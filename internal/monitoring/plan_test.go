package monitoring_test

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishal-h/explorer/internal/expr"
	"github.com/vishal-h/explorer/internal/handle"
	"github.com/vishal-h/explorer/internal/monitoring"
	"github.com/vishal-h/explorer/internal/plan"
	"github.com/vishal-h/explorer/internal/testutil"
)

func TestPlanReport(t *testing.T) {
	owner := handle.New("native")
	left := testutil.CreateTestRecord(t, memory.DefaultAllocator)
	defer left.Release()
	right := testutil.NewRecord(t, memory.DefaultAllocator,
		testutil.String("department", "Engineering", "Sales"),
		testutil.String("floor", "3", "1"),
	)
	defer right.Release()

	ls, err := plan.NewScan(left, owner)
	require.NoError(t, err)
	rs, err := plan.NewScan(right, owner)
	require.NoError(t, err)
	filter, err := plan.NewFilter(ls, expr.Gt(expr.Col("age"), expr.Lit(26)))
	require.NoError(t, err)
	join, err := plan.NewJoin(filter, rs, plan.JoinSpec{How: plan.JoinLeft, LeftOn: []string{"department"}, RightOn: []string{"department"}})
	require.NoError(t, err)
	slice, err := plan.NewSlice(join, 0, 2)
	require.NoError(t, err)

	report := monitoring.NewPlanBuilder(slice).
		AddRule("predicate_pushdown").
		SetActual(monitoring.PlanMetrics{RowsProcessed: 2}).
		Build()

	assert.Equal(t, "Slice", report.Root.Type)
	assert.Equal(t, int64(2), report.Root.Cost)
	require.Len(t, report.Root.Children, 1)
	joinNode := report.Root.Children[0]
	assert.Equal(t, "Join", joinNode.Type)
	assert.Equal(t, int64(4), joinNode.Cost)
	assert.Equal(t, []string{"name", "age", "department", "salary", "floor"}, joinNode.Columns)
	assert.Equal(t, 5, report.GetOperationCount())
	// 2 + 4 + 4 (filter) + 4 (left scan) + 2 (right scan)
	assert.Equal(t, int64(16), report.Estimated.TotalCost)
	assert.Equal(t, []string{"predicate_pushdown"}, report.Rules)

	data, err := report.ToJSON()
	require.NoError(t, err)
	var decoded monitoring.QueryPlan
	require.NoError(t, decoded.FromJSON(data))
	assert.Equal(t, report, decoded)
	assert.Contains(t, report.String(), `"type": "Scan"`)
}

func TestPlanReportCrossAndConcat(t *testing.T) {
	owner := handle.New("native")
	rec := testutil.NewRecord(t, memory.DefaultAllocator, testutil.Int64("a", 1, 2, 3))
	defer rec.Release()
	other := testutil.NewRecord(t, memory.DefaultAllocator, testutil.Int64("b", 1, 2))
	defer other.Release()

	a, err := plan.NewScan(rec, owner)
	require.NoError(t, err)
	b, err := plan.NewScan(other, owner)
	require.NoError(t, err)

	cross, err := plan.NewJoin(a, b, plan.JoinSpec{How: plan.JoinCross})
	require.NoError(t, err)
	assert.Equal(t, int64(6), monitoring.NewPlanBuilder(cross).Build().Root.Cost)

	rows, err := plan.NewConcat([]plan.Node{a, a}, plan.ConcatRows)
	require.NoError(t, err)
	assert.Equal(t, int64(6), monitoring.NewPlanBuilder(rows).Build().Root.Cost)
}
