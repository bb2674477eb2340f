package planner

import (
	"fmt"
	"sync"

	"github.com/vishal-h/explorer/internal/monitoring"
	"github.com/vishal-h/explorer/internal/plan"
)

// State is the lifecycle position of one execution of a lazy plan.
type State int

const (
	StateBuilt State = iota
	StateOptimized
	StateExecuting
	StateMaterialized
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateOptimized:
		return "optimized"
	case StateExecuting:
		return "executing"
	case StateMaterialized:
		return "materialized"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// next lists the legal transitions. Failed is reachable from every state
// except Materialized.
var next = map[State][]State{
	StateBuilt:     {StateOptimized, StateFailed},
	StateOptimized: {StateExecuting, StateFailed},
	StateExecuting: {StateMaterialized, StateFailed},
}

// Execution records one run of a plan through the planner. It is safe to
// read from other goroutines while the run is in progress.
type Execution struct {
	mu        sync.Mutex
	state     State
	history   []State
	plan      plan.Node
	optimized plan.Node
	rules     []string
	err       error
	report    *monitoring.QueryPlan
}

func newExecution(n plan.Node) *Execution {
	return &Execution{state: StateBuilt, history: []State{StateBuilt}, plan: n}
}

func (e *Execution) transition(to State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, allowed := range next[e.state] {
		if allowed == to {
			e.state = to
			e.history = append(e.history, to)
			return nil
		}
	}
	return fmt.Errorf("invalid transition from %s to %s", e.state, to)
}

func (e *Execution) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateFailed || e.state == StateMaterialized {
		return
	}
	e.state = StateFailed
	e.history = append(e.history, StateFailed)
	e.err = err
}

// State returns the current state.
func (e *Execution) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// History returns every state the execution passed through, in order.
func (e *Execution) History() []State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]State(nil), e.history...)
}

// Err returns the error that failed the execution.
func (e *Execution) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Plan returns the plan as built.
func (e *Execution) Plan() plan.Node { return e.plan }

// Optimized returns the plan after optimization, nil before.
func (e *Execution) Optimized() plan.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.optimized
}

// Rules returns the names of the rules that changed the plan.
func (e *Execution) Rules() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.rules...)
}

// Report returns the query plan report of a materialized execution.
func (e *Execution) Report() *monitoring.QueryPlan {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.report
}
