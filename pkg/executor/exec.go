package executor

import (
	"context"

	"github.com/graphd/graphd/pkg/gerrs"
	"github.com/graphd/graphd/pkg/graphview"
	"github.com/graphd/graphd/pkg/planner"
	"github.com/graphd/graphd/pkg/store"
)

// Executor assembles a pkg/planner.PhysicalPlan into an operator tree and
// drives it to completion, the execution half of C4 (§4.4): "a Volcano-
// style pull-based executor... the core accepts any *planner.PhysicalPlan
// produced by Lower and any produced by an external optimizer satisfying
// the same contract."
type Executor struct {
	View    *graphview.View
	Scratch *store.Store // nil disables spill-to-blob for Group/Sort
	Externs ExternRegistry
}

// Build compiles phys into a ready-to-run Operator tree.
func (e *Executor) Build(phys *planner.PhysicalPlan) (Operator, error) {
	if !phys.Frozen() {
		return nil, gerrs.New(gerrs.Invariant, "refusing to execute an unfrozen plan")
	}
	return e.build(phys.Root)
}

func (e *Executor) build(node planner.PhysicalNode) (Operator, error) {
	switch n := node.(type) {
	case planner.PhysicalNodeScan:
		return newScanOperator(e.View, n, DefaultBatchSize), nil

	case planner.PhysicalIndexScan:
		return newIndexScanOperator(e.View, n, DefaultBatchSize, e.Externs), nil

	case planner.PhysicalExpand:
		input, err := e.build(n.Input)
		if err != nil {
			return nil, err
		}
		return newExpandOperator(e.View, input, n, DefaultBatchSize), nil

	case planner.PhysicalFilter:
		input, err := e.build(n.Input)
		if err != nil {
			return nil, err
		}
		return &filterOperator{view: e.View, input: input, predicate: n.Predicate, externs: e.Externs}, nil

	case planner.PhysicalJoin:
		left, err := e.build(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := e.build(n.Right)
		if err != nil {
			return nil, err
		}
		return newJoinOperator(n, left, right), nil

	case planner.PhysicalProject:
		input, err := e.build(n.Input)
		if err != nil {
			return nil, err
		}
		return &projectOperator{input: input, cols: n.Cols}, nil

	case planner.PhysicalDistinct:
		input, err := e.build(n.Input)
		if err != nil {
			return nil, err
		}
		return &distinctOperator{input: input}, nil

	case planner.PhysicalGroup:
		input, err := e.build(n.Input)
		if err != nil {
			return nil, err
		}
		return newGroupOperator(input, e.View, n, e.Scratch), nil

	case planner.PhysicalSort:
		input, err := e.build(n.Input)
		if err != nil {
			return nil, err
		}
		return newSortOperator(input, n, e.Scratch), nil

	case planner.PhysicalLimit:
		input, err := e.build(n.Input)
		if err != nil {
			return nil, err
		}
		return &limitOperator{input: input, remaining: n.N}, nil
	}
	return nil, gerrs.New(gerrs.Invariant, "unknown physical node %T", node)
}

// Run builds phys and drains it fully, returning every produced row. It's
// a convenience for callers that don't need batch-at-a-time control (tests,
// small administrative queries); production query paths should pull
// batches directly from Build's Operator instead of materializing the
// whole result.
func (e *Executor) Run(ctx context.Context, phys *planner.PhysicalPlan) ([]Row, error) {
	op, err := e.Build(phys)
	if err != nil {
		return nil, err
	}
	if err := op.Open(ctx); err != nil {
		return nil, err
	}
	defer op.Close()

	var out []Row
	for {
		batch, err := op.Next(ctx)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}
		out = append(out, batch...)
	}
	return out, nil
}
