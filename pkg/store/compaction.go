package store

import (
	"bytes"
	"container/heap"
	"fmt"
	"os"
	"path/filepath"

	"github.com/graphd/graphd/pkg/gerrs"
)

// maxFilesPerLevel triggers compaction of a level once it holds this many
// files, the same "too many L0 tables" trigger badger/pebble use
// (hawkingrei-badger's Options.NumLevelZeroTables is the direct analogue).
const maxFilesPerLevel = 4

// levelSizeMultiplier is how much bigger each level is allowed to be than
// the one above it before it compacts downward (classic LSM level-tiering).
const levelSizeMultiplier = 10

// CompactionPlan names the files a compaction pass will merge and the
// level the result lands on.
type CompactionPlan struct {
	Level  int
	Inputs []*SSTable
}

// PlanCompaction inspects levels and returns the first level that needs
// compacting, or nil if none do. Only one level is returned per call — the
// caller re-plans after each pass, mirroring the teacher's scheduler tick
// loop (pkg/scheduler.Scheduler runs one reconciliation pass per tick
// rather than draining the whole backlog at once).
func PlanCompaction(levels [][]*SSTable) *CompactionPlan {
	limit := maxFilesPerLevel
	for lvl, files := range levels {
		if len(files) >= limit {
			return &CompactionPlan{Level: lvl, Inputs: append([]*SSTable(nil), files...)}
		}
		limit *= levelSizeMultiplier
	}
	return nil
}

// mergeItem is one candidate record in the k-way merge heap.
type mergeItem struct {
	key       []byte
	value     []byte
	tombstone bool
	srcLevel  int // index into plan.Inputs, oldest first: higher (newer) wins ties
}

type mergeHeap []*mergeItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	c := bytes.Compare(h[i].key, h[j].key)
	if c != 0 {
		return c < 0
	}
	return h[i].srcLevel > h[j].srcLevel
}
func (h mergeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)         { *h = append(*h, x.(*mergeItem)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Compact merges plan.Inputs into a single new sorted file at outPath,
// dropping tombstones when dropTombstones is true (only safe when the
// merge output is the last level, so no older data could still be shadowed
// by the deletion — §4.1's compaction correctness requirement).
func Compact(plan *CompactionPlan, outPath string, dropTombstones bool, bloomFP float64) (*SSTable, error) {
	type cursor struct {
		sst  *SSTable
		keys [][]byte
		vals [][]byte
		tomb []bool
		pos  int
	}
	cursors := make([]*cursor, len(plan.Inputs))
	for i, sst := range plan.Inputs {
		c := &cursor{sst: sst}
		err := sst.Ascend(func(key, value []byte, tombstone bool) bool {
			c.keys = append(c.keys, append([]byte(nil), key...))
			c.vals = append(c.vals, append([]byte(nil), value...))
			c.tomb = append(c.tomb, tombstone)
			return true
		})
		if err != nil {
			return nil, err
		}
		cursors[i] = c
	}

	h := &mergeHeap{}
	heap.Init(h)
	for i, c := range cursors {
		if len(c.keys) > 0 {
			heap.Push(h, &mergeItem{key: c.keys[0], value: c.vals[0], tombstone: c.tomb[0], srcLevel: i})
		}
	}

	var merged []entry
	var lastKey []byte
	haveLast := false
	for h.Len() > 0 {
		top := heap.Pop(h).(*mergeItem)
		c := cursors[top.srcLevel]
		if !haveLast || !bytes.Equal(top.key, lastKey) {
			if !dropTombstones || !top.tombstone {
				merged = append(merged, entry{Key: top.key, Value: top.value, Tombstone: top.tombstone})
			}
			lastKey = top.key
			haveLast = true
		}
		// advance this cursor
		c.pos++
		if c.pos < len(c.keys) {
			heap.Push(h, &mergeItem{key: c.keys[c.pos], value: c.vals[c.pos], tombstone: c.tomb[c.pos], srcLevel: top.srcLevel})
		}
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return nil, gerrs.Wrap(gerrs.Storage, err, "compact")
	}
	if err := WriteSSTable(outPath, merged, bloomFP); err != nil {
		return nil, err
	}
	return OpenSSTable(outPath, plan.Level+1)
}

// RemoveInputs closes and deletes the files a completed compaction pass
// has superseded.
func RemoveInputs(inputs []*SSTable) error {
	for _, f := range inputs {
		path := f.Path()
		if err := f.Close(); err != nil {
			return gerrs.Wrap(gerrs.Storage, err, "compact.RemoveInputs")
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return gerrs.Wrap(gerrs.Storage, err, "compact.RemoveInputs")
		}
	}
	return nil
}

// FileName builds a deterministic sorted-file name for a given level and
// generation counter.
func FileName(dir string, level, gen int) string {
	return filepath.Join(dir, fmt.Sprintf("L%d-%010d.sst", level, gen))
}
