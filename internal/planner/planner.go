// Package planner optimizes lazy plans and drives their execution on a
// backend.
//
// Optimization runs the enabled rules in order, pass after pass, until a
// pass leaves the plan unchanged or the configured pass limit is reached.
// Every rule is idempotent on its own output, so optimizing an optimized
// plan returns it unchanged. Collect moves an Execution through
// Built → Optimized → Executing → Materialized, or to Failed with the error
// that stopped it.
package planner

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/vishal-h/explorer/internal/backend"
	"github.com/vishal-h/explorer/internal/config"
	dferrors "github.com/vishal-h/explorer/internal/errors"
	dfmem "github.com/vishal-h/explorer/internal/memory"
	"github.com/vishal-h/explorer/internal/monitoring"
	"github.com/vishal-h/explorer/internal/plan"
)

// Planner optimizes and executes plans.
type Planner struct {
	rules     []Rule
	maxPasses int
	logger    *slog.Logger
}

// New creates a planner running the rules cfg enables. A nil logger
// discards output.
func New(cfg config.Config, logger *slog.Logger) *Planner {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var rules []Rule
	if cfg.ConstantFolding {
		rules = append(rules, ConstantFolding{})
	}
	if cfg.PredicatePushdown {
		rules = append(rules, PredicatePushdown{Fusion: cfg.FilterFusion})
	}
	if cfg.ProjectionPruning {
		rules = append(rules, ProjectionPruning{})
	}
	return &Planner{rules: rules, maxPasses: cfg.MaxOptimizerPasses, logger: logger}
}

// Rules returns the names of the enabled rules in application order.
func (p *Planner) Rules() []string {
	names := make([]string, len(p.rules))
	for i, r := range p.rules {
		names[i] = r.Name()
	}
	return names
}

// Optimize rewrites n to a fixpoint of the enabled rules.
func (p *Planner) Optimize(ctx context.Context, n plan.Node) (plan.Node, error) {
	out, _, err := p.optimize(ctx, n)
	return out, err
}

func (p *Planner) optimize(ctx context.Context, n plan.Node) (plan.Node, []string, error) {
	var applied []string
	current := plan.Explain(n)
	for pass := 1; pass <= p.maxPasses; pass++ {
		changed := false
		for _, rule := range p.rules {
			if err := ctx.Err(); err != nil {
				return nil, applied, dferrors.NewCancelledError("Optimize", err)
			}
			out, err := rule.Apply(n)
			if err != nil {
				return nil, applied, dferrors.Reframe(err, "Optimize", "")
			}
			rendered := plan.Explain(out)
			if rendered == current {
				continue
			}
			p.logger.Debug("rule applied", "rule", rule.Name(), "pass", pass)
			n, current, changed = out, rendered, true
			applied = appendOnce(applied, rule.Name())
		}
		if !changed {
			return n, applied, nil
		}
	}
	p.logger.Debug("optimizer pass limit reached", "passes", p.maxPasses)
	return n, applied, nil
}

func appendOnce(names []string, name string) []string {
	for _, n := range names {
		if n == name {
			return names
		}
	}
	return append(names, name)
}

// Collect optimizes n and executes it on b. The returned Execution records
// the run whether it succeeded or not; on failure no partial result is
// returned.
func (p *Planner) Collect(ctx context.Context, b backend.Backend, n plan.Node) (arrow.Record, *Execution, error) {
	exec := newExecution(n)
	rec, err := p.collect(ctx, b, exec)
	if err != nil {
		exec.fail(err)
		p.logger.Debug("execution failed", "error", err)
		return nil, exec, err
	}
	return rec, exec, nil
}

func (p *Planner) collect(ctx context.Context, b backend.Backend, exec *Execution) (arrow.Record, error) {
	if err := backend.Check(ctx, "Collect"); err != nil {
		return nil, err
	}
	if err := p.checkOwner(b, exec.plan); err != nil {
		return nil, err
	}

	optimized, applied, err := p.optimize(ctx, exec.plan)
	if err != nil {
		return nil, err
	}
	exec.mu.Lock()
	exec.optimized, exec.rules = optimized, applied
	exec.mu.Unlock()
	if err := p.advance(exec, StateOptimized); err != nil {
		return nil, err
	}

	if err := p.advance(exec, StateExecuting); err != nil {
		return nil, err
	}
	start := time.Now()
	rec, err := b.Execute(ctx, optimized)
	if err != nil {
		return nil, backend.Fail("Collect", err)
	}

	builder := monitoring.NewPlanBuilder(optimized)
	for _, name := range applied {
		builder.AddRule(name)
	}
	report := builder.SetActual(monitoring.PlanMetrics{
		RowsProcessed: rec.NumRows(),
		MemoryUsed:    dfmem.EstimateRecord(rec),
		Duration:      time.Since(start),
	}).Build()
	exec.mu.Lock()
	exec.report = &report
	exec.mu.Unlock()

	if err := p.advance(exec, StateMaterialized); err != nil {
		rec.Release()
		return nil, err
	}
	return rec, nil
}

func (p *Planner) advance(exec *Execution, to State) error {
	if err := exec.transition(to); err != nil {
		return dferrors.NewInternalError("Collect", err)
	}
	p.logger.Debug("execution state", "state", to.String())
	return nil
}

func (p *Planner) checkOwner(b backend.Backend, n plan.Node) error {
	owner, err := plan.Owner("Collect", n)
	if err != nil {
		return err
	}
	if !owner.IsZero() && !owner.Same(b.Handle()) {
		return dferrors.NewBackendMismatchError("Collect", b.Handle().String(), owner.String())
	}
	return nil
}

// Explain optimizes n and renders it as b would execute it.
func (p *Planner) Explain(ctx context.Context, b backend.Backend, n plan.Node) (string, error) {
	if err := p.checkOwner(b, n); err != nil {
		return "", err
	}
	optimized, err := p.Optimize(ctx, n)
	if err != nil {
		return "", err
	}
	return b.Explain(optimized)
}
