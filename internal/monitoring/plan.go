package monitoring

import (
	"encoding/json"
	"time"

	"github.com/vishal-h/explorer/internal/plan"
)

// PlanNode is one operation of a query plan report. Cost is an upper bound
// on the rows the operation produces, derived from the scanned inputs.
type PlanNode struct {
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Columns     []string   `json:"columns"`
	Children    []PlanNode `json:"children,omitempty"`
	Cost        int64      `json:"cost"`
}

// PlanMetrics contains performance metrics for a query plan.
type PlanMetrics struct {
	TotalCost     int64         `json:"total_cost"`
	RowsProcessed int64         `json:"rows_processed"`
	MemoryUsed    int64         `json:"memory_used"`
	Duration      time.Duration `json:"duration,omitempty"`
}

// QueryPlan is the report of an optimized plan: its operations, the
// optimizer rules that changed it and, once executed, actual metrics.
type QueryPlan struct {
	Root      PlanNode    `json:"root"`
	Rules     []string    `json:"rules,omitempty"`
	Estimated PlanMetrics `json:"estimated"`
	Actual    PlanMetrics `json:"actual,omitempty"`
}

// PlanBuilder helps construct query plan reports.
type PlanBuilder struct {
	root      PlanNode
	rules     []string
	estimated PlanMetrics
	actual    PlanMetrics
}

// NewPlanBuilder starts a report for the plan rooted at n.
func NewPlanBuilder(n plan.Node) *PlanBuilder {
	root := describe(n)
	return &PlanBuilder{
		root: root,
		estimated: PlanMetrics{
			TotalCost:     calculateNodeCost(&root),
			RowsProcessed: root.Cost,
		},
	}
}

// AddRule records an optimizer rule that rewrote the plan.
func (pb *PlanBuilder) AddRule(name string) *PlanBuilder {
	pb.rules = append(pb.rules, name)
	return pb
}

// SetActual sets the actual metrics for the query plan.
func (pb *PlanBuilder) SetActual(metrics PlanMetrics) *PlanBuilder {
	pb.actual = metrics
	return pb
}

// Build constructs and returns the final query plan.
func (pb *PlanBuilder) Build() QueryPlan {
	return QueryPlan{
		Root:      pb.root,
		Rules:     append([]string(nil), pb.rules...),
		Estimated: pb.estimated,
		Actual:    pb.actual,
	}
}

func describe(n plan.Node) PlanNode {
	node := PlanNode{
		Type:        nodeTypeName(n.Type()),
		Description: n.String(),
		Columns:     n.Schema().Names(),
	}
	var inputRows []int64
	for _, in := range n.Inputs() {
		child := describe(in)
		inputRows = append(inputRows, child.Cost)
		node.Children = append(node.Children, child)
	}
	node.Cost = estimateRows(n, inputRows)
	return node
}

func estimateRows(n plan.Node, inputs []int64) int64 {
	switch x := n.(type) {
	case *plan.Scan:
		return x.Source.NumRows()
	case *plan.Slice:
		return min(x.Length, inputs[0])
	case *plan.Join:
		if x.Spec.How == plan.JoinCross {
			return inputs[0] * inputs[1]
		}
		// Duplicate keys can multiply rows; without statistics assume they
		// do not.
		return max(inputs[0], inputs[1])
	case *plan.Concat:
		if x.How == plan.ConcatColumns {
			return inputs[0]
		}
		var total int64
		for _, r := range inputs {
			total += r
		}
		return total
	default:
		return inputs[0]
	}
}

func nodeTypeName(t plan.NodeType) string {
	switch t {
	case plan.NodeScan:
		return "Scan"
	case plan.NodeSelect:
		return "Select"
	case plan.NodeFilter:
		return "Filter"
	case plan.NodeWithColumns:
		return "WithColumns"
	case plan.NodeSort:
		return "Sort"
	case plan.NodeSlice:
		return "Slice"
	case plan.NodeGroupBy:
		return "GroupBy"
	case plan.NodeJoin:
		return "Join"
	case plan.NodeConcat:
		return "Concat"
	case plan.NodeDistinct:
		return "Distinct"
	case plan.NodeRename:
		return "Rename"
	default:
		return "Unknown"
	}
}

// ToJSON converts the query plan to JSON format.
func (qp *QueryPlan) ToJSON() ([]byte, error) {
	return json.MarshalIndent(qp, "", "  ")
}

// FromJSON creates a query plan from JSON data.
func (qp *QueryPlan) FromJSON(data []byte) error {
	return json.Unmarshal(data, qp)
}

// calculateNodeCost recursively calculates the cost of a node and its children.
func calculateNodeCost(node *PlanNode) int64 {
	cost := node.Cost
	for i := range node.Children {
		cost += calculateNodeCost(&node.Children[i])
	}
	return cost
}

// GetOperationCount returns the total number of operations in the plan.
func (qp *QueryPlan) GetOperationCount() int {
	return 1 + countChildOperations(&qp.Root)
}

// countChildOperations recursively counts child operations.
func countChildOperations(node *PlanNode) int {
	count := len(node.Children)
	for i := range node.Children {
		count += countChildOperations(&node.Children[i])
	}
	return count
}

// String returns a string representation of the query plan.
func (qp *QueryPlan) String() string {
	data, err := qp.ToJSON()
	if err != nil {
		return "QueryPlan{error: " + err.Error() + "}"
	}
	return string(data)
}
