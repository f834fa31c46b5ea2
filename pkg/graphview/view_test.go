package graphview

import (
	"testing"

	"github.com/graphd/graphd/pkg/config"
	"github.com/graphd/graphd/pkg/gerrs"
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

func TestViewVertexAndProperties(t *testing.T) {
	eng := newTestEngine(t)
	vid := types.NewID()

	snap := commitPatch(t, eng, func(p *types.Patch) {
		p.AddVertex(&types.Vertex{ID: vid, Labels: []string{"Person"}})
		p.SetProperty(vid, false, "name", types.String("alice"), false)
		p.SetProperty(vid, false, "age", types.Int64(30), false)
	})

	v := Open(eng, snap)
	vertex, err := v.Vertex(vid)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Person"}, vertex.Labels)
	require.Equal(t, "alice", vertex.Properties["name"].Str)
	require.Equal(t, int64(30), vertex.Properties["age"].Int64)
}

func TestViewVertexNotFound(t *testing.T) {
	eng := newTestEngine(t)
	snap := commitPatch(t, eng, func(p *types.Patch) {
		p.AddVertex(&types.Vertex{ID: types.NewID(), Labels: []string{"Person"}})
	})
	v := Open(eng, snap)
	_, err := v.Vertex(types.NewID())
	require.Error(t, err)
	require.True(t, gerrs.Is(err, gerrs.NotFound))
}

func TestViewAdjacencyAndDegree(t *testing.T) {
	eng := newTestEngine(t)
	a, b, c := types.NewID(), types.NewID(), types.NewID()
	e1, e2 := types.NewID(), types.NewID()

	snap := commitPatch(t, eng, func(p *types.Patch) {
		p.AddVertex(&types.Vertex{ID: a, Labels: []string{"Person"}})
		p.AddVertex(&types.Vertex{ID: b, Labels: []string{"Person"}})
		p.AddVertex(&types.Vertex{ID: c, Labels: []string{"Person"}})
		p.AddEdge(&types.Edge{ID: e1, Source: a, Target: b, Label: "FOLLOWS"})
		p.AddEdge(&types.Edge{ID: e2, Source: a, Target: c, Label: "BLOCKS"})
	})

	v := Open(eng, snap)

	out, err := v.OutEdges(a, "")
	require.NoError(t, err)
	require.Len(t, out, 2)

	follows, err := v.OutEdges(a, "FOLLOWS")
	require.NoError(t, err)
	require.Len(t, follows, 1)
	require.Equal(t, b, follows[0].Neighbor)
	require.Equal(t, e1, follows[0].EdgeID)

	in, err := v.InEdges(b, "")
	require.NoError(t, err)
	require.Len(t, in, 1)
	require.Equal(t, a, in[0].Neighbor)

	deg, err := v.Degree(a, "", DirBoth)
	require.NoError(t, err)
	require.Equal(t, 2, deg)
}

func TestViewScanLabel(t *testing.T) {
	eng := newTestEngine(t)
	a, b, c := types.NewID(), types.NewID(), types.NewID()

	snap := commitPatch(t, eng, func(p *types.Patch) {
		p.AddVertex(&types.Vertex{ID: a, Labels: []string{"Person"}})
		p.AddVertex(&types.Vertex{ID: b, Labels: []string{"Person", "Admin"}})
		p.AddVertex(&types.Vertex{ID: c, Labels: []string{"Org"}})
	})

	v := Open(eng, snap)

	people, err := v.ScanLabel("Person")
	require.NoError(t, err)
	require.ElementsMatch(t, []types.ID{a, b}, people)

	admins, err := v.CountLabel("Admin")
	require.NoError(t, err)
	require.Equal(t, uint64(1), admins)

	none, err := v.ScanLabel("NoSuchLabel")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestViewSnapshotIsolation(t *testing.T) {
	eng := newTestEngine(t)
	vid := types.NewID()

	snap1 := commitPatch(t, eng, func(p *types.Patch) {
		p.AddVertex(&types.Vertex{ID: vid, Labels: []string{"Person"}})
		p.SetProperty(vid, false, "name", types.String("alice"), false)
	})
	oldView := Open(eng, snap1)

	commitPatch(t, eng, func(p *types.Patch) {
		p.SetProperty(vid, false, "name", types.String("alicia"), false)
	})

	vertex, err := oldView.Vertex(vid)
	require.NoError(t, err)
	require.Equal(t, "alice", vertex.Properties["name"].Str)
}
