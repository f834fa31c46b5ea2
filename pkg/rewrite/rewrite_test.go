package rewrite

import (
	"context"
	"testing"

	"github.com/graphd/graphd/pkg/config"
	"github.com/graphd/graphd/pkg/executor"
	"github.com/graphd/graphd/pkg/gerrs"
	"github.com/graphd/graphd/pkg/graphview"
	"github.com/graphd/graphd/pkg/mvcc"
	"github.com/graphd/graphd/pkg/store"
	"github.com/graphd/graphd/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *mvcc.Engine {
	dir := t.TempDir()
	cfg := config.Default(dir)
	st, err := store.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	log, err := mvcc.OpenCommitLog(dir)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	return mvcc.NewEngine(st, log)
}

func commitPatch(t *testing.T, eng *mvcc.Engine, build func(p *types.Patch)) types.Snapshot {
	t.Helper()
	txn, err := eng.Begin()
	require.NoError(t, err)
	var patch types.Patch
	build(&patch)
	txn.Stage(&patch)
	snap, err := txn.Commit()
	require.NoError(t, err)
	return snap
}

func emptyCatalog() *types.Catalog { return &types.Catalog{} }

// collapseRule matches any p --FOLLOWS--> q --FOLLOWS--> r and replaces the
// 2-hop path with a direct p --FOLLOWS--> r edge, deleting q (the spec §8
// S3/S4 "collapse" scenario).
func collapseRule() types.Rule {
	return types.Rule{
		Name: "collapse",
		L: types.RuleGraph{
			Nodes: []types.RuleNode{{VarID: "p", Type: "Person"}, {VarID: "q", Type: "Person"}, {VarID: "r", Type: "Person"}},
			Edges: []types.RuleEdge{
				{VarID: "e1", Source: "p", Target: "q", Type: "FOLLOWS"},
				{VarID: "e2", Source: "q", Target: "r", Type: "FOLLOWS"},
			},
		},
		K: types.KGraph{
			Nodes: []types.KNode{{VarID: "p"}, {VarID: "r"}},
		},
		R: types.RuleGraph{
			Nodes: []types.RuleNode{{VarID: "p", Type: "Person"}, {VarID: "r", Type: "Person"}},
			Edges: []types.RuleEdge{{VarID: "e3", Source: "p", Target: "r", Type: "FOLLOWS"}},
		},
	}
}

func TestApplyMatchCollapse(t *testing.T) {
	eng := newTestEngine(t)
	u, x, w := types.NewID(), types.NewID(), types.NewID()
	e1, e2 := types.NewID(), types.NewID()
	snap := commitPatch(t, eng, func(p *types.Patch) {
		p.AddVertex(&types.Vertex{ID: u, Labels: []string{"Person"}})
		p.AddVertex(&types.Vertex{ID: x, Labels: []string{"Person"}})
		p.AddVertex(&types.Vertex{ID: w, Labels: []string{"Person"}})
		p.AddEdge(&types.Edge{ID: e1, Source: u, Target: x, Label: "FOLLOWS"})
		p.AddEdge(&types.Edge{ID: e2, Source: x, Target: w, Label: "FOLLOWS"})
	})
	view := graphview.Open(eng, snap)
	matcher := &Matcher{View: view, Catalog: emptyCatalog()}

	matches, err := matcher.FindMatches(context.Background(), collapseRule(), types.OrderAny)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	match := matches[0]
	require.Equal(t, u, match.NodeBindings["p"])
	require.Equal(t, x, match.NodeBindings["q"])
	require.Equal(t, w, match.NodeBindings["r"])

	patch, err := matcher.ApplyMatch(collapseRule(), match)
	require.NoError(t, err)

	var sawDeleteX, sawNewEdge bool
	for _, op := range patch.Ops {
		if op.Kind == types.OpDeleteVertex && op.EntityID == x {
			sawDeleteX = true
		}
		if op.Kind == types.OpAddEdge && op.Edge.Source == u && op.Edge.Target == w {
			sawNewEdge = true
		}
	}
	require.True(t, sawDeleteX)
	require.True(t, sawNewEdge)
}

func TestApplyMatchGluingViolation(t *testing.T) {
	eng := newTestEngine(t)
	u, x, w, extra := types.NewID(), types.NewID(), types.NewID(), types.NewID()
	snap := commitPatch(t, eng, func(p *types.Patch) {
		p.AddVertex(&types.Vertex{ID: u, Labels: []string{"Person"}})
		p.AddVertex(&types.Vertex{ID: x, Labels: []string{"Person"}})
		p.AddVertex(&types.Vertex{ID: w, Labels: []string{"Person"}})
		p.AddVertex(&types.Vertex{ID: extra, Labels: []string{"Person"}})
		p.AddEdge(&types.Edge{ID: types.NewID(), Source: u, Target: x, Label: "FOLLOWS"})
		p.AddEdge(&types.Edge{ID: types.NewID(), Source: x, Target: w, Label: "FOLLOWS"})
		// an edge into x the rule's L side never named: deleting x would
		// dangle it, violating the gluing condition.
		p.AddEdge(&types.Edge{ID: types.NewID(), Source: extra, Target: x, Label: "FOLLOWS"})
	})
	view := graphview.Open(eng, snap)
	matcher := &Matcher{View: view, Catalog: emptyCatalog()}

	matches, err := matcher.FindMatches(context.Background(), collapseRule(), types.OrderAny)
	require.NoError(t, err)
	// both u->x->w and extra->x->w match; either leaves an edge into x dangling.
	require.Len(t, matches, 2)

	_, err = matcher.ApplyMatch(collapseRule(), matches[0])
	require.Error(t, err)
	require.True(t, gerrs.Is(err, gerrs.Invariant))
}

func TestFindMatchesGuardFiltersCandidates(t *testing.T) {
	eng := newTestEngine(t)
	young, old := types.NewID(), types.NewID()
	snap := commitPatch(t, eng, func(p *types.Patch) {
		p.AddVertex(&types.Vertex{ID: young, Labels: []string{"Person"}})
		p.AddVertex(&types.Vertex{ID: old, Labels: []string{"Person"}})
		p.SetProperty(young, false, "age", types.Int64(10), false)
		p.SetProperty(old, false, "age", types.Int64(40), false)
	})
	view := graphview.Open(eng, snap)

	externs := executor.ExternRegistry{
		"is_adult": func(args []types.Value) (types.Value, error) {
			v, err := view.Vertex(mustID(args[0]))
			if err != nil {
				return types.Value{}, err
			}
			age, ok := v.Properties["age"]
			if !ok {
				return types.Bool(false), nil
			}
			return types.Bool(age.Int64 >= 18), nil
		},
	}
	rule := types.Rule{
		Name: "adult_only",
		L:    types.RuleGraph{Nodes: []types.RuleNode{{VarID: "p", Type: "Person"}}},
		K:    types.KGraph{Nodes: []types.KNode{{VarID: "p"}}},
		R:    types.RuleGraph{Nodes: []types.RuleNode{{VarID: "p", Type: "Person"}}},
		Guards: []types.Guard{
			{Ref: "is_adult", Args: []string{"p"}},
		},
	}
	matcher := &Matcher{View: view, Catalog: emptyCatalog(), Externs: externs}
	matches, err := matcher.FindMatches(context.Background(), rule, types.OrderAny)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, old, matches[0].NodeBindings["p"])
}

func TestFindMatchesNACExcludesForbiddenNeighbor(t *testing.T) {
	eng := newTestEngine(t)
	clean, withBanned, banned := types.NewID(), types.NewID(), types.NewID()
	snap := commitPatch(t, eng, func(p *types.Patch) {
		p.AddVertex(&types.Vertex{ID: clean, Labels: []string{"Person"}})
		p.AddVertex(&types.Vertex{ID: withBanned, Labels: []string{"Person"}})
		p.AddVertex(&types.Vertex{ID: banned, Labels: []string{"Banned"}})
		p.AddEdge(&types.Edge{ID: types.NewID(), Source: withBanned, Target: banned, Label: "FRIENDS_WITH"})
	})
	view := graphview.Open(eng, snap)

	rule := types.Rule{
		Name: "no_banned_friends",
		L:    types.RuleGraph{Nodes: []types.RuleNode{{VarID: "p", Type: "Person"}}},
		K:    types.KGraph{Nodes: []types.KNode{{VarID: "p"}}},
		R:    types.RuleGraph{Nodes: []types.RuleNode{{VarID: "p", Type: "Person"}}},
		NAC: []types.RuleGraph{{
			Nodes: []types.RuleNode{{VarID: "p", Type: "Person"}, {VarID: "b", Type: "Banned"}},
			Edges: []types.RuleEdge{{VarID: "eb", Source: "p", Target: "b", Type: "FRIENDS_WITH"}},
		}},
	}
	matcher := &Matcher{View: view, Catalog: emptyCatalog()}
	matches, err := matcher.FindMatches(context.Background(), rule, types.OrderTopDown)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, clean, matches[0].NodeBindings["p"])
}

func mustID(v types.Value) types.ID {
	var id types.ID
	copy(id[:], v.Bytes)
	return id
}

// TestRewriterExhaustCollapsesChain mirrors spec §8 S4: a->x1->x2->x3->b
// collapses, one 2-hop step at a time, down to a single a->b edge, with the
// chain-length measure strictly decreasing on every application.
func TestRewriterExhaustCollapsesChain(t *testing.T) {
	eng := newTestEngine(t)
	a, x1, x2, x3, b := types.NewID(), types.NewID(), types.NewID(), types.NewID(), types.NewID()
	commitPatch(t, eng, func(p *types.Patch) {
		for _, v := range []types.ID{a, x1, x2, x3, b} {
			p.AddVertex(&types.Vertex{ID: v, Labels: []string{"Person"}})
		}
		p.AddEdge(&types.Edge{ID: types.NewID(), Source: a, Target: x1, Label: "FOLLOWS"})
		p.AddEdge(&types.Edge{ID: types.NewID(), Source: x1, Target: x2, Label: "FOLLOWS"})
		p.AddEdge(&types.Edge{ID: types.NewID(), Source: x2, Target: x3, Label: "FOLLOWS"})
		p.AddEdge(&types.Edge{ID: types.NewID(), Source: x3, Target: b, Label: "FOLLOWS"})
	})

	chainLength := func([]types.Value) (types.Value, error) {
		snap, err := eng.CurrentSnapshot()
		if err != nil {
			return types.Value{}, err
		}
		view := graphview.Open(eng, snap)
		cur := a
		var hops int64
		for cur != b {
			adj, err := view.OutEdges(cur, "FOLLOWS")
			if err != nil {
				return types.Value{}, err
			}
			if len(adj) != 1 {
				return types.Value{}, gerrs.New(gerrs.Invariant, "chain broke")
			}
			cur = adj[0].Neighbor
			hops++
		}
		return types.Int64(hops), nil
	}

	rewriter := &Rewriter{
		Engine:  eng,
		Catalog: emptyCatalog(),
		Externs: executor.ExternRegistry{"chain_length": chainLength},
		Rules:   map[string]types.Rule{"collapse": collapseRule()},
	}
	strategy := types.Strategy{Op: types.StratExhaust, Rule: "collapse", Order: types.OrderTopDown, Measure: "chain_length"}

	_, err := rewriter.Run(context.Background(), strategy)
	require.NoError(t, err)

	snap, err := eng.CurrentSnapshot()
	require.NoError(t, err)
	view := graphview.Open(eng, snap)

	adj, err := view.OutEdges(a, "FOLLOWS")
	require.NoError(t, err)
	require.Len(t, adj, 1)
	require.Equal(t, b, adj[0].Neighbor)

	for _, v := range []types.ID{x1, x2, x3} {
		_, err := view.Vertex(v)
		require.Error(t, err)
		require.True(t, gerrs.Is(err, gerrs.NotFound))
	}
}

// TestValidateStrategyRejectsUnboundedExhaust checks the static-termination
// guard: exhaust with no measure is rejected before the strategy ever runs.
func TestValidateStrategyRejectsUnboundedExhaust(t *testing.T) {
	err := ValidateStrategy(types.Strategy{Op: types.StratExhaust, Rule: "collapse"})
	require.Error(t, err)
	require.True(t, gerrs.Is(err, gerrs.Termination))
}

// TestRewriterChoiceFallsThrough exercises choice: the first sub-strategy
// (a rule with no matches) fails, so the second (always-matching) is tried.
func TestRewriterChoiceFallsThrough(t *testing.T) {
	eng := newTestEngine(t)
	u, x, w := types.NewID(), types.NewID(), types.NewID()
	commitPatch(t, eng, func(p *types.Patch) {
		p.AddVertex(&types.Vertex{ID: u, Labels: []string{"Person"}})
		p.AddVertex(&types.Vertex{ID: x, Labels: []string{"Person"}})
		p.AddVertex(&types.Vertex{ID: w, Labels: []string{"Person"}})
		p.AddEdge(&types.Edge{ID: types.NewID(), Source: u, Target: x, Label: "FOLLOWS"})
		p.AddEdge(&types.Edge{ID: types.NewID(), Source: x, Target: w, Label: "FOLLOWS"})
	})

	neverMatches := types.Rule{
		Name: "never",
		L:    types.RuleGraph{Nodes: []types.RuleNode{{VarID: "p", Type: "Nonexistent"}}},
		K:    types.KGraph{Nodes: []types.KNode{{VarID: "p"}}},
		R:    types.RuleGraph{Nodes: []types.RuleNode{{VarID: "p", Type: "Nonexistent"}}},
	}
	rewriter := &Rewriter{
		Engine:  eng,
		Catalog: emptyCatalog(),
		Externs: executor.ExternRegistry{},
		Rules:   map[string]types.Rule{"never": neverMatches, "collapse": collapseRule()},
	}
	strategy := types.Strategy{Op: types.StratChoice, Sub: []types.Strategy{
		{Op: types.StratOnce, Rule: "never"},
		{Op: types.StratOnce, Rule: "collapse", Order: types.OrderAny},
	}}

	_, err := rewriter.Run(context.Background(), strategy)
	require.NoError(t, err)

	snap, err := eng.CurrentSnapshot()
	require.NoError(t, err)
	view := graphview.Open(eng, snap)
	adj, err := view.OutEdges(u, "FOLLOWS")
	require.NoError(t, err)
	require.Len(t, adj, 1)
	require.Equal(t, w, adj[0].Neighbor)
}
