package executor

import (
	"context"
	"testing"

	"github.com/graphd/graphd/pkg/config"
	"github.com/graphd/graphd/pkg/graphview"
	"github.com/graphd/graphd/pkg/mvcc"
	"github.com/graphd/graphd/pkg/planner"
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

// buildSocialGraph commits a tiny social graph: alice (28) --FOLLOWS--> bob
// (35), alice --FOLLOWS--> carol (19). Returns a view over the commit and
// the three vertex ids.
func buildSocialGraph(t *testing.T, eng *mvcc.Engine) (*graphview.View, types.ID, types.ID, types.ID) {
	alice, bob, carol := types.NewID(), types.NewID(), types.NewID()
	snap := commitPatch(t, eng, func(p *types.Patch) {
		p.AddVertex(&types.Vertex{ID: alice, Labels: []string{"Person"}})
		p.AddVertex(&types.Vertex{ID: bob, Labels: []string{"Person"}})
		p.AddVertex(&types.Vertex{ID: carol, Labels: []string{"Person"}})
		p.SetProperty(alice, false, "age", types.Int64(28), false)
		p.SetProperty(bob, false, "age", types.Int64(35), false)
		p.SetProperty(carol, false, "age", types.Int64(19), false)
		p.AddEdge(&types.Edge{ID: types.NewID(), Source: alice, Target: bob, Label: "FOLLOWS"})
		p.AddEdge(&types.Edge{ID: types.NewID(), Source: alice, Target: carol, Label: "FOLLOWS"})
	})
	return graphview.Open(eng, snap), alice, bob, carol
}

func TestExecutorScanFilterProject(t *testing.T) {
	eng := newTestEngine(t)
	view, _, bob, _ := buildSocialGraph(t, eng)

	// Person(n) where n.age > 20, project n
	predicate := planner.FuncCall{Name: ">", Args: []planner.Expr{
		planner.ColumnRef{Var: "n", Field: "age"},
		planner.Const{Value: types.Int64(20)},
	}}
	logical := planner.Project{Cols: []string{"n"}, Input: planner.Filter{
		Predicate: predicate,
		Input:     planner.NodeScan{Label: "Person", As: "n"},
	}}

	phys, err := planner.Lower(logical, emptyCatalog(), planner.ViewStats{View: view})
	require.NoError(t, err)

	exec := &Executor{View: view}
	rows, err := exec.Run(context.Background(), phys)
	require.NoError(t, err)
	require.Len(t, rows, 2) // alice(28) and bob(35), not carol(19)

	var gotBob bool
	for _, r := range rows {
		if r["n"].Vertex == bob {
			gotBob = true
		}
	}
	require.True(t, gotBob)
}

func TestExecutorExpand(t *testing.T) {
	eng := newTestEngine(t)
	view, alice, bob, carol := buildSocialGraph(t, eng)
	_ = carol

	logical := planner.Expand{
		From: "a", EdgeLabel: "FOLLOWS", Direction: graphview.DirOut, ToAs: "b",
		Input: planner.NodeScan{Label: "Person", As: "a"},
	}
	phys, err := planner.Lower(logical, emptyCatalog(), planner.ViewStats{View: view})
	require.NoError(t, err)

	exec := &Executor{View: view}
	rows, err := exec.Run(context.Background(), phys)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		require.Equal(t, alice, r["a"].Vertex)
	}
}

func TestExecutorGroupCount(t *testing.T) {
	eng := newTestEngine(t)
	view, _, _, _ := buildSocialGraph(t, eng)

	logical := planner.Group{
		Keys: []string{},
		Aggregates: []planner.Aggregate{
			{Func: "count", As: "total"},
		},
		Input: planner.NodeScan{Label: "Person", As: "n"},
	}
	phys, err := planner.Lower(logical, emptyCatalog(), planner.ViewStats{View: view})
	require.NoError(t, err)

	exec := &Executor{View: view}
	rows, err := exec.Run(context.Background(), phys)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(3), rows[0]["total"].Value.Int64)
}

func TestExecutorSortLimit(t *testing.T) {
	eng := newTestEngine(t)
	view, _, _, _ := buildSocialGraph(t, eng)

	logical := planner.Limit{N: 1, Input: planner.Sort{
		Keys:  []planner.SortKey{{Col: "age", Desc: true}},
		Input: planner.Project{Cols: []string{"age"}, Input: projectAge("n")},
	}}
	phys, err := planner.Lower(logical, emptyCatalog(), planner.ViewStats{View: view})
	require.NoError(t, err)

	exec := &Executor{View: view}
	rows, err := exec.Run(context.Background(), phys)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(35), rows[0]["age"].Value.Int64)
}

// projectAge wraps a NodeScan with a Group that re-projects each vertex's
// age property as a scalar "age" column bound alongside the vertex, the
// shape Sort/Limit expect to operate over scalar bindings.
func projectAge(as string) planner.LogicalNode {
	return planner.Group{
		Keys: []string{as},
		Aggregates: []planner.Aggregate{
			{Func: "max", Arg: planner.ColumnRef{Var: as, Field: "age"}, As: "age"},
		},
		Input: planner.NodeScan{Label: "Person", As: as},
	}
}

func emptyCatalog() *types.Catalog {
	return &types.Catalog{}
}
