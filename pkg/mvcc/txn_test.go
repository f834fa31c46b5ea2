package mvcc

import (
	"testing"

	"github.com/graphd/graphd/pkg/config"
	"github.com/graphd/graphd/pkg/gerrs"
	"github.com/graphd/graphd/pkg/store"
	"github.com/graphd/graphd/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	dir := t.TempDir()
	cfg := config.Default(dir)
	st, err := store.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	log, err := OpenCommitLog(dir)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	return NewEngine(st, log)
}

func TestTxnCommitAdvancesSnapshot(t *testing.T) {
	eng := newTestEngine(t)

	txn, err := eng.Begin()
	require.NoError(t, err)
	require.Equal(t, uint64(0), txn.Snapshot().Seq)

	v := &types.Vertex{ID: types.NewID(), Labels: []string{"Person"}}
	var patch types.Patch
	patch.AddVertex(v)
	txn.Stage(&patch)

	snap, err := txn.Commit()
	require.NoError(t, err)
	require.Equal(t, uint64(1), snap.Seq)

	cur, err := eng.CurrentSnapshot()
	require.NoError(t, err)
	require.Equal(t, snap, cur)
}

func TestTxnFirstCommitterWins(t *testing.T) {
	eng := newTestEngine(t)

	v := types.NewID()
	seed, err := eng.Begin()
	require.NoError(t, err)
	var seedPatch types.Patch
	seedPatch.AddVertex(&types.Vertex{ID: v, Labels: []string{"Person"}})
	seed.Stage(&seedPatch)
	_, err = seed.Commit()
	require.NoError(t, err)

	txnA, err := eng.Begin()
	require.NoError(t, err)
	txnB, err := eng.Begin()
	require.NoError(t, err)

	var patchA types.Patch
	patchA.SetProperty(v, false, "name", types.String("alice"), false)
	txnA.Stage(&patchA)

	var patchB types.Patch
	patchB.SetProperty(v, false, "name", types.String("bob"), false)
	txnB.Stage(&patchB)

	_, err = txnA.Commit()
	require.NoError(t, err)

	_, err = txnB.Commit()
	require.Error(t, err)
	require.True(t, gerrs.Is(err, gerrs.Conflict))
}
