package mvcc

import (
	"encoding/json"

	"github.com/graphd/graphd/pkg/gerrs"
	"github.com/graphd/graphd/pkg/store"
	"github.com/graphd/graphd/pkg/types"
)

// versionedValue is the envelope written for every store record version:
// either live content or a tombstone marking the record deleted as of
// this commit_seq. graphview's reads stop at the first tombstone found at
// or below a snapshot (§4.2).
type versionedValue struct {
	Tombstone bool
	Data      json.RawMessage
}

func encodeVersion(tombstone bool, v any) ([]byte, error) {
	var raw json.RawMessage
	if !tombstone {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, gerrs.Wrap(gerrs.Validation, err, "mvcc.encodeVersion")
		}
		raw = data
	}
	return json.Marshal(versionedValue{Tombstone: tombstone, Data: raw})
}

// adjKey builds the Sub portion of an adjacency StoreKey: the label with a
// one-byte length prefix, then the fixed 16-byte neighbor id, then the
// fixed 16-byte edge id, so distinct adjacency records never collide
// (§4.2's adjacency component shape).
func adjKey(label string, neighbor, edge types.ID) []byte {
	buf := make([]byte, 0, 1+len(label)+16+16)
	buf = append(buf, byte(len(label)))
	buf = append(buf, label...)
	buf = append(buf, neighbor[:]...)
	buf = append(buf, edge[:]...)
	return buf
}

// propKey builds the Sub portion of a property StoreKey.
func propKey(key string) []byte { return []byte(key) }

// edgeResolver looks up an edge's current (label, source, target) as of
// the transaction's snapshot, needed to apply a relink op (§4.5's relink
// primitive rewrites an edge's endpoints without changing its identity,
// which requires knowing the prior endpoints to retire their adjacency
// records).
type edgeResolver func(id types.ID) (*types.Edge, error)

// applyPatch writes every op in patch as new versions stamped with seq,
// translating the graph-level Patch into the (entity_kind, entity_id,
// component, commit_seq) key tuple of §4.2.
func applyPatch(st *store.Store, patch *types.Patch, seq uint64, resolve edgeResolver) error {
	for _, op := range patch.Ops {
		if err := applyOp(st, op, seq, resolve); err != nil {
			return err
		}
	}
	return nil
}

func applyOp(st *store.Store, op types.PatchOp, seq uint64, resolve edgeResolver) error {
	switch op.Kind {
	case types.OpAddVertex:
		v := op.Vertex
		labelsKey := types.StoreKey{Kind: types.EntityVertex, Entity: v.ID, Component: types.ComponentLabels, Seq: seq}
		val, err := encodeVersion(false, v.Labels)
		if err != nil {
			return err
		}
		if err := st.Put(labelsKey.Encode(), val); err != nil {
			return err
		}
		for k, pv := range v.Properties {
			propKeyStruct := types.StoreKey{Kind: types.EntityVertex, Entity: v.ID, Component: types.ComponentProp, Sub: propKey(k), Seq: seq}
			val, err := encodeVersion(false, pv)
			if err != nil {
				return err
			}
			if err := st.Put(propKeyStruct.Encode(), val); err != nil {
				return err
			}
		}
		return nil

	case types.OpAddEdge:
		e := op.Edge
		metaKey := types.StoreKey{Kind: types.EntityEdge, Entity: e.ID, Component: types.ComponentEdgeMeta, Seq: seq}
		val, err := encodeVersion(false, e)
		if err != nil {
			return err
		}
		if err := st.Put(metaKey.Encode(), val); err != nil {
			return err
		}
		outKey := types.StoreKey{Kind: types.EntityVertex, Entity: e.Source, Component: types.ComponentAdjOut, Sub: adjKey(e.Label, e.Target, e.ID), Seq: seq}
		if err := st.Put(outKey.Encode(), mustEmptyVersion()); err != nil {
			return err
		}
		inKey := types.StoreKey{Kind: types.EntityVertex, Entity: e.Target, Component: types.ComponentAdjIn, Sub: adjKey(e.Label, e.Source, e.ID), Seq: seq}
		return st.Put(inKey.Encode(), mustEmptyVersion())

	case types.OpDeleteVertex:
		labelsKey := types.StoreKey{Kind: types.EntityVertex, Entity: op.EntityID, Component: types.ComponentLabels, Seq: seq}
		val, err := encodeVersion(true, nil)
		if err != nil {
			return err
		}
		return st.Put(labelsKey.Encode(), val)

	case types.OpDeleteEdge:
		metaKey := types.StoreKey{Kind: types.EntityEdge, Entity: op.EntityID, Component: types.ComponentEdgeMeta, Seq: seq}
		val, err := encodeVersion(true, nil)
		if err != nil {
			return err
		}
		return st.Put(metaKey.Encode(), val)

	case types.OpSetProperty:
		entityKind := types.EntityVertex
		if op.PropIsEdge {
			entityKind = types.EntityEdge
		}
		propKeyStruct := types.StoreKey{Kind: entityKind, Entity: op.PropEntityID, Component: types.ComponentProp, Sub: propKey(op.PropKey), Seq: seq}
		val, err := encodeVersion(op.PropTombstone, op.PropValue)
		if err != nil {
			return err
		}
		return st.Put(propKeyStruct.Encode(), val)

	case types.OpRelink:
		old, err := resolve(op.RelinkEdge)
		if err != nil {
			return err
		}
		newSrc, newDst := old.Source, old.Target
		if op.RelinkFrom != nil {
			newSrc = *op.RelinkFrom
		}
		if op.RelinkTo != nil {
			newDst = *op.RelinkTo
		}
		updated := *old
		updated.Source, updated.Target = newSrc, newDst

		metaKey := types.StoreKey{Kind: types.EntityEdge, Entity: old.ID, Component: types.ComponentEdgeMeta, Seq: seq}
		val, err := encodeVersion(false, &updated)
		if err != nil {
			return err
		}
		if err := st.Put(metaKey.Encode(), val); err != nil {
			return err
		}

		if op.RelinkFrom != nil {
			oldOut := types.StoreKey{Kind: types.EntityVertex, Entity: old.Source, Component: types.ComponentAdjOut, Sub: adjKey(old.Label, old.Target, old.ID), Seq: seq}
			if err := st.Put(oldOut.Encode(), tombstoneVersion()); err != nil {
				return err
			}
			newOut := types.StoreKey{Kind: types.EntityVertex, Entity: newSrc, Component: types.ComponentAdjOut, Sub: adjKey(old.Label, newDst, old.ID), Seq: seq}
			if err := st.Put(newOut.Encode(), mustEmptyVersion()); err != nil {
				return err
			}
		}
		if op.RelinkTo != nil {
			oldIn := types.StoreKey{Kind: types.EntityVertex, Entity: old.Target, Component: types.ComponentAdjIn, Sub: adjKey(old.Label, old.Source, old.ID), Seq: seq}
			if err := st.Put(oldIn.Encode(), tombstoneVersion()); err != nil {
				return err
			}
			newIn := types.StoreKey{Kind: types.EntityVertex, Entity: newDst, Component: types.ComponentAdjIn, Sub: adjKey(old.Label, newSrc, old.ID), Seq: seq}
			if err := st.Put(newIn.Encode(), mustEmptyVersion()); err != nil {
				return err
			}
		}
		return nil
	}
	return gerrs.New(gerrs.Validation, "unknown patch op %q", op.Kind)
}

func mustEmptyVersion() []byte {
	data, _ := encodeVersion(false, struct{}{})
	return data
}

func tombstoneVersion() []byte {
	data, _ := encodeVersion(true, nil)
	return data
}
