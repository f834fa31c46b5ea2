package store

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

// entry is one key/value pair held in the memtable. A nil Value with
// Tombstone set marks a deletion that must still shadow older sorted-file
// data until compaction drops it.
type entry struct {
	Key       []byte
	Value     []byte
	Tombstone bool
}

func entryLess(a, b entry) bool {
	return bytes.Compare(a.Key, b.Key) < 0
}

// Memtable is the in-memory sorted buffer new writes land in before being
// flushed to an immutable sorted file (§4.1). It is backed by
// google/btree's generic in-memory B-tree rather than a plain sorted slice
// or map, matching the ordered-iteration requirement range scans need
// (Prefix/StoreKey range queries, §4.2) without a full sort on every scan.
type Memtable struct {
	mu       sync.RWMutex
	tree     *btree.BTreeG[entry]
	approxSz int64
}

// NewMemtable creates an empty memtable. Degree 32 matches the order of
// magnitude pebble/badger-style engines use for in-memory trees (wide
// enough to keep height low at the sizes a single memtable holds before
// flushing).
func NewMemtable() *Memtable {
	return &Memtable{tree: btree.NewG(32, entryLess)}
}

// Put inserts or overwrites key with value, returning the new approximate
// size of the memtable in bytes.
func (m *Memtable) Put(key, value []byte) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, had := m.tree.ReplaceOrInsert(entry{Key: append([]byte(nil), key...), Value: append([]byte(nil), value...)})
	m.approxSz += int64(len(key) + len(value))
	if had {
		m.approxSz -= int64(len(old.Key) + len(old.Value))
	}
	return m.approxSz
}

// Delete records a tombstone for key.
func (m *Memtable) Delete(key []byte) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, had := m.tree.ReplaceOrInsert(entry{Key: append([]byte(nil), key...), Tombstone: true})
	m.approxSz += int64(len(key))
	if had {
		m.approxSz -= int64(len(old.Key) + len(old.Value))
	}
	return m.approxSz
}

// Get returns the value for key, whether it was found at all, and whether
// the found entry is a tombstone (a hit that must stop the read from
// falling through to sorted files).
func (m *Memtable) Get(key []byte) (value []byte, found bool, tombstone bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tree.Get(entry{Key: key})
	if !ok {
		return nil, false, false
	}
	return e.Value, true, e.Tombstone
}

// Size returns the approximate number of bytes held in the memtable, used
// against Config.MemtableBudgetBytes to trigger a flush (§4.1).
func (m *Memtable) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.approxSz
}

// Len returns the number of live entries (including tombstones).
func (m *Memtable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len()
}

// Ascend calls fn for every entry in key order, stopping early if fn
// returns false. Used both to flush a memtable into a sorted file and to
// drive range scans that must merge memtable state with sorted files.
func (m *Memtable) Ascend(fn func(entry) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.tree.Ascend(fn)
}

// AscendRange calls fn for entries in [from, to) in key order.
func (m *Memtable) AscendRange(from, to []byte, fn func(entry) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.tree.AscendRange(entry{Key: from}, entry{Key: to}, fn)
}
