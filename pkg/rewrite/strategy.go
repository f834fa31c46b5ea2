package rewrite

import (
	"context"
	"sort"

	"github.com/graphd/graphd/pkg/executor"
	"github.com/graphd/graphd/pkg/gerrs"
	"github.com/graphd/graphd/pkg/graphview"
	"github.com/graphd/graphd/pkg/metrics"
	"github.com/graphd/graphd/pkg/mvcc"
	"github.com/graphd/graphd/pkg/planner"
	"github.com/graphd/graphd/pkg/types"
)

// Rewriter interprets the strategy calculus of §4.5 against a live engine.
// It is a recursive interpreter — exec is called once per strategy term
// and recurses directly into sub-terms, grounded on the teacher's
// WarrenFSM.Apply command-dispatch loop: a flat switch over a sum-typed
// operation, no goroutine or generator per rule.
type Rewriter struct {
	Engine  *mvcc.Engine
	Catalog *types.Catalog
	Externs executor.ExternRegistry
	Rules   map[string]types.Rule
}

// ValidateStrategy statically rejects an exhaust term with no declared
// measure: termination must be provable before the strategy ever runs,
// not discovered by hanging (§4.5, §9 resolved: "unbounded exhaust
// without a measure is a static error"). Walks seq/choice/priority/while
// subterms recursively.
func ValidateStrategy(s types.Strategy) error {
	switch s.Op {
	case types.StratExhaust:
		if s.Measure == "" {
			return gerrs.New(gerrs.Termination, "exhaust(%s) has no measure: unbounded rewriting is a static error", s.Rule)
		}
	case types.StratWhile:
		if len(s.Sub) != 1 {
			return gerrs.New(gerrs.Validation, "while requires exactly one sub-strategy")
		}
		return ValidateStrategy(s.Sub[0])
	case types.StratSeq, types.StratChoice, types.StratPriority:
		for _, sub := range s.Sub {
			if err := ValidateStrategy(sub); err != nil {
				return err
			}
		}
	}
	return nil
}

// Run executes s to completion: every successful rule application commits
// immediately against r.Engine (so later matches within the same run see
// earlier applications' effects — the view is read-committed per step,
// since pkg/graphview has no uncommitted-write overlay), while every op
// is mirrored into a compensating undo patch. If s ultimately fails, Run
// commits one final patch that exactly reverses every step taken, so the
// durable graph ends up unchanged — honoring §4.5's "Patch is only
// applied ... on successful completion of the top-level strategy" at the
// level callers observe, without requiring a separate uncommitted-write
// view of the graph.
func (r *Rewriter) Run(ctx context.Context, s types.Strategy) (types.Snapshot, error) {
	if err := ValidateStrategy(s); err != nil {
		return types.Snapshot{}, err
	}
	st := &runState{rewriter: r}
	ok, err := st.exec(ctx, s)
	if err != nil || !ok {
		if uerr := st.rollback(); uerr != nil {
			if err == nil {
				err = uerr
			}
		}
		if err == nil {
			err = gerrs.New(gerrs.Invariant, "strategy did not succeed")
		}
		metrics.RewriteRunsTotal.WithLabelValues("rolled_back").Inc()
		return types.Snapshot{}, err
	}
	metrics.RewriteRunsTotal.WithLabelValues("committed").Inc()
	return r.Engine.CurrentSnapshot()
}

// runState accumulates the undo stack for a single top-level Run.
type runState struct {
	rewriter *Rewriter
	undo     []types.PatchOp // LIFO: front is most recent step's reverse, applied front-to-back
}

func (st *runState) exec(ctx context.Context, s types.Strategy) (bool, error) {
	if err := checkCtx(ctx); err != nil {
		return false, err
	}
	switch s.Op {
	case types.StratOnce:
		return st.once(ctx, s.Rule, s.Order)
	case types.StratExhaust:
		return st.exhaust(ctx, s.Rule, s.Order, s.Measure)
	case types.StratWhile:
		return st.while(ctx, s.Pred, s.Sub[0])
	case types.StratSeq:
		for _, sub := range s.Sub {
			ok, err := st.exec(ctx, sub)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case types.StratChoice, types.StratPriority:
		for _, sub := range s.Sub {
			ok, err := st.exec(ctx, sub)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	return false, gerrs.New(gerrs.Validation, "unknown strategy op %q", s.Op)
}

func (st *runState) once(ctx context.Context, ruleName string, order types.MatchOrder) (bool, error) {
	rule, ok := st.rewriter.Rules[ruleName]
	if !ok {
		return false, gerrs.New(gerrs.Validation, "strategy references unknown rule %q", ruleName)
	}
	matches, err := st.findMatches(ctx, rule, order)
	if err != nil {
		return false, err
	}
	if len(matches) == 0 {
		return false, nil
	}
	return st.apply(rule, matches[0])
}

func (st *runState) exhaust(ctx context.Context, ruleName string, order types.MatchOrder, measure string) (bool, error) {
	rule, ok := st.rewriter.Rules[ruleName]
	if !ok {
		return false, gerrs.New(gerrs.Validation, "strategy references unknown rule %q", ruleName)
	}
	for {
		if err := checkCtx(ctx); err != nil {
			return false, err
		}
		matches, err := st.findMatches(ctx, rule, order)
		if err != nil {
			return false, err
		}
		if len(matches) == 0 {
			return true, nil // exhausted: no more matches, exhaust succeeds
		}

		// Try candidates in order until one actually applies: a
		// gluing-condition failure on one candidate doesn't mean the
		// rule is exhausted, just that this particular match is stuck,
		// so the next candidate (if any) gets a chance.
		applied := false
		for _, match := range matches {
			before, err := st.evalMeasure(rule, match, measure)
			if err != nil {
				return false, err
			}
			ok, err := st.apply(rule, match)
			if err != nil {
				return false, err
			}
			if !ok {
				continue
			}
			after, err := st.evalMeasure(rule, match, measure)
			if err != nil {
				return false, err
			}
			if after >= before {
				return false, gerrs.New(gerrs.Termination, "exhaust(%s): measure %q did not strictly decrease (%d -> %d)", ruleName, measure, before, after)
			}
			applied = true
			break
		}
		if !applied {
			return false, gerrs.New(gerrs.Invariant, "exhaust(%s): no candidate match satisfied the gluing condition", ruleName)
		}
	}
}

func (st *runState) while(ctx context.Context, pred string, body types.Strategy) (bool, error) {
	for {
		if err := checkCtx(ctx); err != nil {
			return false, err
		}
		holds, err := st.evalPred(pred)
		if err != nil {
			return false, err
		}
		if !holds {
			return true, nil
		}
		ok, err := st.exec(ctx, body)
		if err != nil || !ok {
			return false, err
		}
	}
}

func (st *runState) findMatches(ctx context.Context, rule types.Rule, order types.MatchOrder) ([]Match, error) {
	view := st.view()
	matcher := &Matcher{View: view, Catalog: st.rewriter.Catalog, Externs: st.rewriter.Externs}
	return matcher.FindMatches(ctx, rule, order)
}

func (st *runState) view() *graphview.View {
	snap, err := st.rewriter.Engine.CurrentSnapshot()
	if err != nil {
		snap = types.Snapshot{}
	}
	return graphview.Open(st.rewriter.Engine, snap)
}

// apply runs the gluing check and, if it passes, commits the match's
// patch immediately and records its reverse onto the undo stack. A
// gluing-condition violation is reported as a local failure (false, nil)
// per §4.5: "fail the individual application, not the whole strategy."
func (st *runState) apply(rule types.Rule, match Match) (bool, error) {
	view := st.view()
	matcher := &Matcher{View: view, Catalog: st.rewriter.Catalog, Externs: st.rewriter.Externs}
	patch, err := matcher.ApplyMatch(rule, match)
	if err != nil {
		if gerrs.Is(err, gerrs.Invariant) {
			return false, nil
		}
		return false, err
	}

	reverse, err := reversePatch(view, patch)
	if err != nil {
		return false, err
	}

	txn, err := st.rewriter.Engine.Begin()
	if err != nil {
		return false, err
	}
	txn.Stage(patch)
	if _, err := txn.Commit(); err != nil {
		return false, err
	}
	st.undo = append(append([]types.PatchOp(nil), reverse...), st.undo...)
	metrics.RewriteStepsTotal.WithLabelValues(rule.Name).Inc()
	return true, nil
}

// rollback commits a single compensating patch that exactly reverses
// every step this run applied, in LIFO order, restoring the durable
// graph to its pre-run state. A no-op if nothing was applied.
func (st *runState) rollback() error {
	if len(st.undo) == 0 {
		return nil
	}
	patch := &types.Patch{Ops: st.undo}
	txn, err := st.rewriter.Engine.Begin()
	if err != nil {
		return err
	}
	txn.Stage(patch)
	_, err = txn.Commit()
	return err
}

// reversePatch computes patch's inverse: adds become deletes (by the id
// the add assigned), and deletes become adds of the pre-deletion entity
// (captured from view, since a Patch's delete op records only an id).
func reversePatch(view *graphview.View, patch *types.Patch) ([]types.PatchOp, error) {
	out := make([]types.PatchOp, 0, len(patch.Ops))
	for i := len(patch.Ops) - 1; i >= 0; i-- {
		op := patch.Ops[i]
		switch op.Kind {
		case types.OpAddVertex:
			out = append(out, types.PatchOp{Kind: types.OpDeleteVertex, EntityID: op.Vertex.ID})
		case types.OpAddEdge:
			out = append(out, types.PatchOp{Kind: types.OpDeleteEdge, EntityID: op.Edge.ID})
		case types.OpDeleteVertex:
			v, err := view.Vertex(op.EntityID)
			if err != nil {
				return nil, err
			}
			out = append(out, types.PatchOp{Kind: types.OpAddVertex, Vertex: v})
		case types.OpDeleteEdge:
			e, err := view.Edge(op.EntityID)
			if err != nil {
				return nil, err
			}
			out = append(out, types.PatchOp{Kind: types.OpAddEdge, Edge: e})
		default:
			return nil, gerrs.New(gerrs.Invariant, "rewrite: cannot reverse patch op %q", op.Kind)
		}
	}
	return out, nil
}

// evalMeasure evaluates a measure extern over rule.K's preserved
// bindings (the only bindings guaranteed to still resolve after an
// application, since K survives every rewrite unchanged).
func (st *runState) evalMeasure(rule types.Rule, match Match, measure string) (int64, error) {
	row, err := kRow(rule, match)
	if err != nil {
		return 0, err
	}
	v, err := st.evalExtern(measure, row)
	if err != nil {
		return 0, err
	}
	if v.Kind != types.KindInt64 {
		return 0, gerrs.New(gerrs.Validation, "measure %q did not return an integer", measure)
	}
	return v.Int64, nil
}

// evalPred evaluates a while predicate over the current graph. Predicates
// that don't close over any particular match bindings are called with an
// empty row; externs that need graph-wide state read it through the view
// argument passed to executor.Eval.
func (st *runState) evalPred(pred string) (bool, error) {
	v, err := st.evalExtern(pred, executor.Row{})
	if err != nil {
		return false, err
	}
	if v.Kind != types.KindBool {
		return false, gerrs.New(gerrs.Validation, "predicate %q did not return a boolean", pred)
	}
	return v.Bool, nil
}

func (st *runState) evalExtern(name string, row executor.Row) (types.Value, error) {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]planner.Expr, len(keys))
	for i, k := range keys {
		args[i] = planner.ColumnRef{Var: k, Field: "$id"}
	}
	return executor.Eval(planner.ExternCall{Name: name, Args: args}, row, st.view(), st.rewriter.Externs)
}

// kRow builds a Row over only rule.K's preserved node/edge bindings.
func kRow(rule types.Rule, match Match) (executor.Row, error) {
	row := make(executor.Row, len(rule.K.Nodes)+len(rule.K.Edges))
	for _, n := range rule.K.Nodes {
		id, ok := match.NodeBindings[n.VarID]
		if !ok {
			return nil, gerrs.New(gerrs.Invariant, "match has no binding for K-node %q", n.VarID)
		}
		row[n.VarID] = executor.VertexBinding(id)
	}
	for _, e := range rule.K.Edges {
		varID, ok := findLEdgeVarID(rule.L, e)
		if !ok {
			continue
		}
		id, ok := match.EdgeBindings[varID]
		if !ok {
			return nil, gerrs.New(gerrs.Invariant, "match has no binding for K-edge %q", varID)
		}
		row[varID] = executor.EdgeBinding(id)
	}
	return row, nil
}

func findLEdgeVarID(l types.RuleGraph, k types.KEdge) (string, bool) {
	for _, e := range l.Edges {
		if e.Source == k.Source && e.Target == k.Target && e.Type == k.Type {
			return e.VarID, true
		}
	}
	return "", false
}
