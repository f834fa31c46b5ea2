package rewrite

import (
	"context"

	"github.com/graphd/graphd/pkg/executor"
	"github.com/graphd/graphd/pkg/gerrs"
	"github.com/graphd/graphd/pkg/graphview"
	"github.com/graphd/graphd/pkg/planner"
	"github.com/graphd/graphd/pkg/types"
)

// Match binds a rule's L-side pattern onto a concrete graph (§4.5):
// NodeBindings maps each RuleNode.VarID to the vertex it matched,
// EdgeBindings maps each RuleEdge.VarID to the edge it matched.
type Match struct {
	NodeBindings map[string]types.ID
	EdgeBindings map[string]types.ID
}

// Matcher finds and verifies matches of a rule's L-side against a view.
type Matcher struct {
	View    *graphview.View
	Catalog *types.Catalog
	Externs executor.ExternRegistry
}

// FindMatches returns every match of rule.L in m.View satisfying rule's
// guards and NACs, ordered per order (§4.5). Candidate node-bindings are
// discovered by lowering a spanning tree of L to a logical plan (one
// NodeScan per L-node, one Expand per L-edge of that tree) and running it
// through pkg/planner/pkg/executor — "rewriting and querying share one
// cost model and one index-aware search". Edges outside the spanning
// tree (cycles in the pattern), guard evaluation, and NAC checking are
// then verified directly against the view for each candidate, since they
// either close a cycle (cheap membership check, not worth a second
// planner pass) or depend on externs/extension search the planner's node
// kinds don't model.
func (m *Matcher) FindMatches(ctx context.Context, rule types.Rule, order types.MatchOrder) ([]Match, error) {
	if len(rule.L.Nodes) == 0 {
		return nil, gerrs.New(gerrs.Validation, "rule %q has an empty L side", rule.Name)
	}
	logical, err := planLSide(rule.L)
	if err != nil {
		return nil, err
	}
	stats := planner.ViewStats{View: m.View}
	phys, err := planner.Lower(logical, m.Catalog, stats)
	if err != nil {
		return nil, err
	}
	exec := &executor.Executor{View: m.View, Externs: m.Externs}
	rows, err := exec.Run(ctx, phys)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, row := range rows {
		match, ok, err := m.verifyCandidate(rule, row)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := m.checkGuards(rule, match); err != nil {
			if gerrs.Is(err, gerrs.Validation) {
				return nil, err
			}
			continue // guard false: not a match
		}
		nacOK, err := m.checkNACs(ctx, rule, match)
		if err != nil {
			return nil, err
		}
		if !nacOK {
			continue
		}
		matches = append(matches, match)
	}
	orderMatches(matches, order)
	return matches, nil
}

// planLSide builds a logical plan scanning every L-node and expanding
// across a spanning tree of L-edges. Disconnected components are joined
// with an empty (cartesian) On clause.
func planLSide(l types.RuleGraph) (planner.LogicalNode, error) {
	nodeType := make(map[string]string, len(l.Nodes))
	for _, n := range l.Nodes {
		nodeType[n.VarID] = n.Type
	}

	visited := map[string]bool{l.Nodes[0].VarID: true}
	var plan planner.LogicalNode = planner.NodeScan{Label: nodeType[l.Nodes[0].VarID], As: l.Nodes[0].VarID}

	remaining := append([]types.RuleEdge(nil), l.Edges...)
	for {
		progressed := false
		for i := 0; i < len(remaining); i++ {
			e := remaining[i]
			switch {
			case visited[e.Source] && !visited[e.Target]:
				plan = planner.Expand{From: e.Source, EdgeLabel: e.Type, Direction: graphview.DirOut, ToAs: e.Target, Input: plan}
				visited[e.Target] = true
			case visited[e.Target] && !visited[e.Source]:
				plan = planner.Expand{From: e.Target, EdgeLabel: e.Type, Direction: graphview.DirIn, ToAs: e.Source, Input: plan}
				visited[e.Source] = true
			default:
				continue
			}
			remaining = append(remaining[:i], remaining[i+1:]...)
			i--
			progressed = true
		}
		if !progressed {
			break
		}
	}

	for _, n := range l.Nodes {
		if visited[n.VarID] {
			continue
		}
		plan = planner.Join{How: planner.JoinInner, Left: plan, Right: planner.NodeScan{Label: n.Type, As: n.VarID}}
		visited[n.VarID] = true
	}
	return plan, nil
}

// verifyCandidate re-checks every L-edge against the view (subsuming both
// spanning-tree edges, already guaranteed by construction, and cycle-
// closing edges, which aren't) and resolves each edge's matched id.
func (m *Matcher) verifyCandidate(rule types.Rule, row executor.Row) (Match, bool, error) {
	nodeBindings := make(map[string]types.ID, len(rule.L.Nodes))
	for _, n := range rule.L.Nodes {
		b, ok := row[n.VarID]
		if !ok || b.Kind != executor.BindVertex {
			return Match{}, false, nil
		}
		nodeBindings[n.VarID] = b.Vertex
	}
	edgeBindings := make(map[string]types.ID, len(rule.L.Edges))
	for _, e := range rule.L.Edges {
		src, target := nodeBindings[e.Source], nodeBindings[e.Target]
		adj, err := m.View.OutEdges(src, e.Type)
		if err != nil {
			return Match{}, false, err
		}
		var found bool
		for _, a := range adj {
			if a.Neighbor == target {
				edgeBindings[e.VarID] = a.EdgeID
				found = true
				break
			}
		}
		if !found {
			return Match{}, false, nil
		}
	}
	return Match{NodeBindings: nodeBindings, EdgeBindings: edgeBindings}, true, nil
}

// checkGuards evaluates every rule.Guards predicate against match's
// bindings, passing each referenced VarID's identity value to the named
// extern (§4.5). Returns a gerrs.Validation error if a guard references an
// unregistered extern (a configuration mistake, not "guard false"); any
// other error, or a false result, aborts the match (not the caller).
func (m *Matcher) checkGuards(rule types.Rule, match Match) error {
	for _, g := range rule.Guards {
		if _, ok := m.Externs[g.Ref]; !ok {
			return gerrs.New(gerrs.Validation, "guard references unregistered extern %q", g.Ref)
		}
		row := matchRow(match)
		args := make([]planner.Expr, len(g.Args))
		for i, a := range g.Args {
			args[i] = planner.ColumnRef{Var: a, Field: "$id"}
		}
		v, err := executor.Eval(planner.ExternCall{Name: g.Ref, Args: args}, row, m.View, m.Externs)
		if err != nil {
			return err
		}
		if v.Kind != types.KindBool || !v.Bool {
			return errGuardFalse
		}
	}
	return nil
}

var errGuardFalse = gerrs.New(gerrs.Invariant, "guard evaluated false")

func matchRow(match Match) executor.Row {
	row := make(executor.Row, len(match.NodeBindings)+len(match.EdgeBindings))
	for varID, id := range match.NodeBindings {
		row[varID] = executor.VertexBinding(id)
	}
	for varID, id := range match.EdgeBindings {
		row[varID] = executor.EdgeBinding(id)
	}
	return row
}

// orderMatches applies the §4.5 tie-break. topdown/leftmost sort matches
// ascending, and bottomup descending, by the smallest vertex id among each
// match's node bindings, since rule graphs carry no positional/depth
// metadata; `any` leaves planner/executor order untouched.
func orderMatches(matches []Match, order types.MatchOrder) {
	if order == types.OrderAny || len(matches) < 2 {
		return
	}
	less := func(i, j int) bool {
		return idKeyOf(matches[i]) < idKeyOf(matches[j])
	}
	if order == types.OrderBottomUp {
		prev := less
		less = func(i, j int) bool { return !prev(i, j) }
	}
	insertionSortMatches(matches, less)
}

func idKeyOf(m Match) string {
	var best types.ID
	first := true
	for _, id := range m.NodeBindings {
		if first || idLess(id, best) {
			best, first = id, false
		}
	}
	return string(best[:])
}

func idLess(a, b types.ID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func insertionSortMatches(matches []Match, less func(i, j int) bool) {
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			matches[j-1], matches[j] = matches[j], matches[j-1]
		}
	}
}
