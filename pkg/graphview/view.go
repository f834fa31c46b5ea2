package graphview

import (
	"encoding/json"

	"github.com/graphd/graphd/pkg/gerrs"
	"github.com/graphd/graphd/pkg/mvcc"
	"github.com/graphd/graphd/pkg/store"
	"github.com/graphd/graphd/pkg/types"
)

// View is a read-only handle onto the graph as of a pinned snapshot
// (§3.1, §4.3). All of its methods are safe for concurrent use: they only
// read, and the store they read from tolerates concurrent readers and
// writers (pkg/store.Store.mu is a sync.RWMutex).
type View struct {
	st   *store.Store
	snap types.Snapshot

	idx *labelIndex // built lazily on first ScanLabel/CountLabel call
}

// Open returns a View bounded to snap, reading off eng's store.
func Open(eng *mvcc.Engine, snap types.Snapshot) *View {
	return &View{st: eng.Store(), snap: snap}
}

// Snapshot returns the snapshot this view is pinned to.
func (v *View) Snapshot() types.Snapshot { return v.snap }

// Vertex resolves id's current labels and properties as of the view's
// snapshot. It returns gerrs.NotFound if no (non-tombstoned) vertex
// labels record exists at or before the snapshot.
func (v *View) Vertex(id types.ID) (*types.Vertex, error) {
	labelsKey := types.StoreKey{Kind: types.EntityVertex, Entity: id, Component: types.ComponentLabels}
	raw, found, err := v.st.GetLatestAtOrBefore(labelsKey.Prefix(), v.snap.Seq)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, gerrs.WithEntity(gerrs.New(gerrs.NotFound, "vertex"), id.String())
	}
	env, err := decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	if env.Tombstone {
		return nil, gerrs.WithEntity(gerrs.New(gerrs.NotFound, "vertex"), id.String())
	}
	var labels []string
	if err := json.Unmarshal(env.Data, &labels); err != nil {
		return nil, gerrs.Wrap(gerrs.Corruption, err, "graphview.Vertex")
	}

	props, err := v.properties(types.EntityVertex, id)
	if err != nil {
		return nil, err
	}
	return &types.Vertex{ID: id, Labels: labels, Properties: props}, nil
}

// Edge resolves id's current source/target/label/properties as of the
// view's snapshot.
func (v *View) Edge(id types.ID) (*types.Edge, error) {
	metaKey := types.StoreKey{Kind: types.EntityEdge, Entity: id, Component: types.ComponentEdgeMeta}
	raw, found, err := v.st.GetLatestAtOrBefore(metaKey.Prefix(), v.snap.Seq)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, gerrs.WithEntity(gerrs.New(gerrs.NotFound, "edge"), id.String())
	}
	env, err := decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	if env.Tombstone {
		return nil, gerrs.WithEntity(gerrs.New(gerrs.NotFound, "edge"), id.String())
	}
	var edge types.Edge
	if err := json.Unmarshal(env.Data, &edge); err != nil {
		return nil, gerrs.Wrap(gerrs.Corruption, err, "graphview.Edge")
	}
	props, err := v.properties(types.EntityEdge, id)
	if err != nil {
		return nil, err
	}
	edge.Properties = props
	return &edge, nil
}

// properties collects every live property record for (kind, id) as of the
// view's snapshot.
func (v *View) properties(kind types.EntityKind, id types.ID) (map[string]types.Value, error) {
	prefix := types.StoreKey{Kind: kind, Entity: id, Component: types.ComponentProp}.Prefix()
	out := map[string]types.Value{}
	err := scanLatestUnderPrefix(v.st, prefix, v.snap.Seq, func(groupKey []byte, data json.RawMessage) error {
		key := propKeyFromGroup(prefix, groupKey)
		var val types.Value
		if err := json.Unmarshal(data, &val); err != nil {
			return gerrs.Wrap(gerrs.Corruption, err, "graphview.properties")
		}
		out[key] = val
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AdjacentEdge is one edge incident to a vertex, as surfaced by
// OutEdges/InEdges: enough to filter by label and resolve the neighbor
// without fetching the full edge record.
type AdjacentEdge struct {
	EdgeID   types.ID
	Neighbor types.ID
	Label    string
}

// OutEdges lists the edges leaving vertexID as of the view's snapshot,
// optionally filtered to a single label (empty label means all labels).
func (v *View) OutEdges(vertexID types.ID, label string) ([]AdjacentEdge, error) {
	return v.adjacent(vertexID, types.ComponentAdjOut, label)
}

// InEdges lists the edges entering vertexID as of the view's snapshot,
// optionally filtered to a single label.
func (v *View) InEdges(vertexID types.ID, label string) ([]AdjacentEdge, error) {
	return v.adjacent(vertexID, types.ComponentAdjIn, label)
}

func (v *View) adjacent(vertexID types.ID, component types.Component, label string) ([]AdjacentEdge, error) {
	prefix := types.StoreKey{Kind: types.EntityVertex, Entity: vertexID, Component: component}.Prefix()
	var out []AdjacentEdge
	err := scanLatestUnderPrefix(v.st, prefix, v.snap.Seq, func(groupKey []byte, _ json.RawMessage) error {
		sub := groupKey[len(prefix):]
		l, neighbor, edgeID, err := decodeAdjKey(sub)
		if err != nil {
			return err
		}
		if label != "" && l != label {
			return nil
		}
		if _, err := v.Edge(edgeID); err != nil {
			if gerrs.Is(err, gerrs.NotFound) {
				return nil // edge deleted as of this snapshot
			}
			return err
		}
		out = append(out, AdjacentEdge{EdgeID: edgeID, Neighbor: neighbor, Label: l})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Degree counts vertexID's incident edges as of the view's snapshot. dir
// selects which side to count; an empty label counts every label.
func (v *View) Degree(vertexID types.ID, label string, dir Direction) (int, error) {
	var total int
	if dir == DirOut || dir == DirBoth {
		out, err := v.OutEdges(vertexID, label)
		if err != nil {
			return 0, err
		}
		total += len(out)
	}
	if dir == DirIn || dir == DirBoth {
		in, err := v.InEdges(vertexID, label)
		if err != nil {
			return 0, err
		}
		total += len(in)
	}
	return total, nil
}

// Direction selects which side of a vertex's adjacency to traverse.
type Direction int

const (
	DirOut Direction = iota
	DirIn
	DirBoth
)

func decodeEnvelope(raw []byte) (versionEnvelope, error) {
	var env versionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, gerrs.Wrap(gerrs.Corruption, err, "graphview.decodeEnvelope")
	}
	return env, nil
}

// propKeyFromGroup recovers the property name from a property record's
// group key (prefix.Prefix() + property-name bytes, with no length
// delimiter, matching pkg/mvcc.propKey).
func propKeyFromGroup(prefix, groupKey []byte) string {
	return string(groupKey[len(prefix):])
}
