package mvcc

import (
	"encoding/json"

	"github.com/graphd/graphd/pkg/gerrs"
	"github.com/graphd/graphd/pkg/store"
	"github.com/graphd/graphd/pkg/types"
)

// readEdgeMeta reads the edge-meta record for id as of snapshot seq. It is
// the one read mvcc itself needs (to resolve an edge's prior endpoints
// before a relink); every other snapshot read goes through pkg/graphview.
func readEdgeMeta(st *store.Store, seq uint64, id types.ID) (*types.Edge, error) {
	key := types.StoreKey{Kind: types.EntityEdge, Entity: id, Component: types.ComponentEdgeMeta}
	raw, found, err := st.GetLatestAtOrBefore(key.Prefix(), seq)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, gerrs.WithEntity(gerrs.New(gerrs.NotFound, "edge"), id.String())
	}
	var vv versionedValue
	if err := json.Unmarshal(raw, &vv); err != nil {
		return nil, gerrs.Wrap(gerrs.Corruption, err, "mvcc.readEdgeMeta")
	}
	if vv.Tombstone {
		return nil, gerrs.WithEntity(gerrs.New(gerrs.NotFound, "edge"), id.String())
	}
	var edge types.Edge
	if err := json.Unmarshal(vv.Data, &edge); err != nil {
		return nil, gerrs.Wrap(gerrs.Corruption, err, "mvcc.readEdgeMeta")
	}
	return &edge, nil
}
