package graphview

import (
	"encoding/json"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/graphd/graphd/pkg/gerrs"
	"github.com/graphd/graphd/pkg/types"
)

// labelIndex is an in-memory, snapshot-bound index from label name to the
// set of vertices carrying it, built by one full scan of every vertex's
// labels record the first time a View needs label-scan access
// (types.IndexLabelScan, §4.4's planner access path). Membership is
// tracked with a roaring.Bitmap over a per-View dense integer id, the same
// int-id-mapped bitmap shape agentic-research-mache's MemoryStore uses for
// its fileToNodes index, adapted here to key by label instead of by file
// path.
type labelIndex struct {
	byLabel map[string]*roaring.Bitmap
	intOf   map[types.ID]uint32
	idOf    []types.ID
}

func newLabelIndex() *labelIndex {
	return &labelIndex{
		byLabel: map[string]*roaring.Bitmap{},
		intOf:   map[types.ID]uint32{},
	}
}

func (idx *labelIndex) internID(id types.ID) uint32 {
	if n, ok := idx.intOf[id]; ok {
		return n
	}
	n := uint32(len(idx.idOf))
	idx.intOf[id] = n
	idx.idOf = append(idx.idOf, id)
	return n
}

func (idx *labelIndex) add(label string, id types.ID) {
	bm, ok := idx.byLabel[label]
	if !ok {
		bm = roaring.New()
		idx.byLabel[label] = bm
	}
	bm.Add(idx.internID(id))
}

// ensureLabelIndex builds v.idx on first use, by scanning every vertex's
// labels record as of v.snap.
func (v *View) ensureLabelIndex() error {
	if v.idx != nil {
		return nil
	}
	idx := newLabelIndex()
	prefix := []byte{byte(types.EntityVertex)}
	err := scanLatestUnderPrefix(v.st, prefix, v.snap.Seq, func(groupKey []byte, data json.RawMessage) error {
		// groupKey is kind(1) + entity(16) + component(1); only labels
		// records (no Sub) are of interest here, so component must sit
		// immediately after the entity id and the group must be exactly
		// that long.
		if len(groupKey) != 1+16+1 {
			return nil
		}
		if types.Component(groupKey[17]) != types.ComponentLabels {
			return nil
		}
		var id types.ID
		copy(id[:], groupKey[1:17])
		var labels []string
		if err := json.Unmarshal(data, &labels); err != nil {
			return gerrs.Wrap(gerrs.Corruption, err, "graphview.ensureLabelIndex")
		}
		for _, l := range labels {
			idx.add(l, id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	v.idx = idx
	return nil
}

// ScanLabel returns every vertex carrying label as of the view's
// snapshot, building (and caching on the View) the label index on first
// use.
func (v *View) ScanLabel(label string) ([]types.ID, error) {
	if err := v.ensureLabelIndex(); err != nil {
		return nil, err
	}
	bm, ok := v.idx.byLabel[label]
	if !ok {
		return nil, nil
	}
	out := make([]types.ID, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, v.idx.idOf[it.Next()])
	}
	return out, nil
}

// AllVertices returns every vertex id known to the view as of its
// snapshot, for the label-less NodeScan access path (a query pattern with
// no label restriction).
func (v *View) AllVertices() ([]types.ID, error) {
	if err := v.ensureLabelIndex(); err != nil {
		return nil, err
	}
	out := make([]types.ID, len(v.idx.idOf))
	copy(out, v.idx.idOf)
	return out, nil
}

// CountLabel returns the number of vertices carrying label, the statistic
// pkg/planner's cost model uses for a label-scan access path (§4.4, §9's
// per-label-counter resolution of the planner-stats Open Question).
func (v *View) CountLabel(label string) (uint64, error) {
	if err := v.ensureLabelIndex(); err != nil {
		return 0, err
	}
	bm, ok := v.idx.byLabel[label]
	if !ok {
		return 0, nil
	}
	return bm.GetCardinality(), nil
}
