package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/graphd/graphd/pkg/config"
	"github.com/graphd/graphd/pkg/gerrs"
	"github.com/graphd/graphd/pkg/log"
)

// Store is the embeddable LSM engine of §4.1: a WAL-backed memtable
// flushed into leveled immutable sorted files, with a content-addressed
// blob sink for oversized values. It exposes a flat byte-key/byte-value
// interface; pkg/mvcc writes through it and pkg/graphview reads from it,
// and those layers interpret keys as the (entity_kind, entity_id,
// component, commit_seq) tuple.
type Store struct {
	mu     sync.RWMutex
	cfg    config.Config
	dir    string
	wal    *WAL
	mem    *Memtable
	levels [][]*SSTable
	blob   *BlobSink
	gen    int
	walSeq uint64 // atomic: monotonic WAL record counter, independent of key content

	bloomProbes         uint64 // atomic
	bloomFalsePositives uint64 // atomic

	// onFlush/onCompact are optional instrumentation hooks invoked with
	// the wall-clock duration of every completed flush/compaction. They
	// exist so pkg/metrics can observe storage-layer latency without this
	// package importing pkg/metrics, which would otherwise cycle back
	// through pkg/metrics's Collector depending on *Store for Stats().
	onFlush   func(time.Duration)
	onCompact func(time.Duration)
}

// SetFlushHook installs fn to be called with the duration of every
// completed memtable flush. Passing nil disables the hook.
func (s *Store) SetFlushHook(fn func(time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFlush = fn
}

// SetCompactionHook installs fn to be called with the duration of every
// completed compaction pass. Passing nil disables the hook.
func (s *Store) SetCompactionHook(fn func(time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCompact = fn
}

// Stats is a point-in-time snapshot of the store's internal shape, polled
// by pkg/metrics.Collector (§ ambient stack).
type Stats struct {
	MemtableBytes       int64
	MemtableEntries     int
	LevelCounts         []int // len(LevelCounts) == number of levels in use; LevelCounts[i] is the SSTable count of level i
	BloomProbes         uint64
	BloomFalsePositives uint64
}

// Stats reports a snapshot of the store's current shape.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make([]int, len(s.levels))
	for i, files := range s.levels {
		counts[i] = len(files)
	}
	return Stats{
		MemtableBytes:       s.mem.Size(),
		MemtableEntries:     s.mem.Len(),
		LevelCounts:         counts,
		BloomProbes:         atomic.LoadUint64(&s.bloomProbes),
		BloomFalsePositives: atomic.LoadUint64(&s.bloomFalsePositives),
	}
}

// Open recovers (or creates) a store rooted at cfg.Root: it replays the
// WAL into a fresh memtable and opens every existing sorted file.
func Open(cfg config.Config) (*Store, error) {
	dir := cfg.Root
	walDir := filepath.Join(dir, "wal")
	blobDir := filepath.Join(dir, "blobs")

	wal, err := OpenWAL(walDir, cfg.WALSegmentBytes)
	if err != nil {
		return nil, err
	}
	blob, err := NewBlobSink(blobDir)
	if err != nil {
		wal.Close()
		return nil, err
	}

	s := &Store{cfg: cfg, dir: dir, wal: wal, mem: NewMemtable(), blob: blob}

	if err := s.loadSortedFiles(); err != nil {
		wal.Close()
		return nil, err
	}
	if err := ReplayAll(walDir, func(seq uint64, payload []byte) error {
		rec, err := decodeWALPayload(payload)
		if err != nil {
			return err
		}
		if rec.tombstone {
			s.mem.Delete(rec.key)
		} else {
			s.mem.Put(rec.key, rec.value)
		}
		return nil
	}); err != nil {
		wal.Close()
		blob.Close()
		return nil, err
	}
	log.Info(fmt.Sprintf("store recovered: root=%s memtable_entries=%d", dir, s.mem.Len()))
	return s, nil
}

func (s *Store) loadSortedFiles() error {
	metas, err := scanSortedFiles(s.dir)
	if err != nil {
		return err
	}
	for _, m := range metas {
		sst, err := OpenSSTable(m.path, m.level)
		if err != nil {
			return err
		}
		for len(s.levels) <= m.level {
			s.levels = append(s.levels, nil)
		}
		s.levels[m.level] = append(s.levels[m.level], sst)
		if m.gen >= s.gen {
			s.gen = m.gen + 1
		}
	}
	return nil
}

// Close flushes the memtable to a sorted file and closes every resource.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mem.Len() > 0 {
		if err := s.flushLocked(); err != nil {
			return err
		}
	}
	for _, lvl := range s.levels {
		for _, sst := range lvl {
			sst.Close()
		}
	}
	if err := s.blob.Close(); err != nil {
		return err
	}
	return s.wal.Close()
}

// Put writes key=value durably (WAL fsync) and into the memtable,
// flushing to a sorted file if the memtable has grown past its budget
// (gerrs.Capacity is never returned here — a full memtable triggers a
// flush rather than a rejection, matching §4.1's "flush is size-triggered,
// never refused").
func (s *Store) Put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.wal.Append(atomic.AddUint64(&s.walSeq, 1), encodeWALPayload(key, value, false)); err != nil {
		return err
	}
	sz := s.mem.Put(key, value)
	return s.maybeFlushLocked(sz)
}

// Delete writes a tombstone for key.
func (s *Store) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.wal.Append(atomic.AddUint64(&s.walSeq, 1), encodeWALPayload(key, nil, true)); err != nil {
		return err
	}
	sz := s.mem.Delete(key)
	return s.maybeFlushLocked(sz)
}

// Get returns the most recent value for key, checking the memtable first
// and then each level from newest to oldest, stopping at the first hit
// (including a tombstone hit, which reports not-found).
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, found, tomb := s.mem.Get(key); found {
		if tomb {
			return nil, false, nil
		}
		return v, true, nil
	}
	for lvl := 0; lvl < len(s.levels); lvl++ {
		files := s.levels[lvl]
		for i := len(files) - 1; i >= 0; i-- {
			mayContain := files[i].ProbeBloom(key)
			if mayContain {
				atomic.AddUint64(&s.bloomProbes, 1)
			}
			v, found, tomb, err := files[i].Get(key)
			if err != nil {
				return nil, false, err
			}
			if mayContain && !found {
				atomic.AddUint64(&s.bloomFalsePositives, 1)
			}
			if found {
				if tomb {
					return nil, false, nil
				}
				return v, true, nil
			}
		}
	}
	return nil, false, nil
}

// ScanPrefix calls fn for every live key with the given prefix, in
// ascending key order, merging the memtable with every sorted file and
// keeping only the newest version of each key (mirroring Get's
// freshness rule). Used by pkg/graphview for adjacency/label scans.
func (s *Store) ScanPrefix(prefix []byte, fn func(key, value []byte) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[string]bool{}
	upper := prefixUpperBound(prefix)

	stop := false
	visit := func(key, value []byte, tombstone bool) bool {
		if stop {
			return false
		}
		k := string(key)
		if seen[k] {
			return true
		}
		seen[k] = true
		if tombstone {
			return true
		}
		if !fn(key, value) {
			stop = true
			return false
		}
		return true
	}

	s.mem.AscendRange(prefix, upper, func(e entry) bool {
		return visit(e.Key, e.Value, e.Tombstone)
	})
	for lvl := 0; lvl < len(s.levels) && !stop; lvl++ {
		files := s.levels[lvl]
		for i := len(files) - 1; i >= 0 && !stop; i-- {
			if err := files[i].Ascend(func(key, value []byte, tombstone bool) bool {
				if bytes.Compare(key, prefix) < 0 {
					return true
				}
				if upper != nil && bytes.Compare(key, upper) >= 0 {
					return false
				}
				return visit(key, value, tombstone)
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetLatestAtOrBefore returns the value of the key under prefix whose
// trailing big-endian uint64 suffix is the greatest value ≤ maxSeq —
// the primitive pkg/mvcc's snapshot reads are built on (§4.2: "returns the
// record with the greatest commit_seq ≤ S.seq"). Every commit writes a
// brand new key (the commit_seq is part of the key, per
// types.StoreKey.Encode), so distinct versions never collide and this
// never needs LSM-level freshness resolution — it only needs the single
// largest key in range.
func (s *Store) GetLatestAtOrBefore(prefix []byte, maxSeq uint64) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	upperExcl := seqUpperBound(prefix, maxSeq)
	var bestKey, bestVal []byte
	found := false

	consider := func(key, value []byte) {
		if !found || bytes.Compare(key, bestKey) > 0 {
			bestKey = append([]byte(nil), key...)
			bestVal = append([]byte(nil), value...)
			found = true
		}
	}

	s.mem.AscendRange(prefix, upperExcl, func(e entry) bool {
		if !e.Tombstone {
			consider(e.Key, e.Value)
		}
		return true
	})
	for lvl := 0; lvl < len(s.levels); lvl++ {
		for _, sst := range s.levels[lvl] {
			if err := sst.Ascend(func(key, value []byte, tombstone bool) bool {
				if bytes.Compare(key, prefix) < 0 {
					return true
				}
				if bytes.Compare(key, upperExcl) >= 0 {
					return false
				}
				if !tombstone {
					consider(key, value)
				}
				return true
			}); err != nil {
				return nil, false, err
			}
		}
	}
	return bestVal, found, nil
}

// seqUpperBound builds the exclusive upper bound of the key range holding
// every version of prefix with a trailing seq ≤ maxSeq.
func seqUpperBound(prefix []byte, maxSeq uint64) []byte {
	if maxSeq == ^uint64(0) {
		return prefixUpperBound(prefix)
	}
	upper := make([]byte, len(prefix)+8)
	copy(upper, prefix)
	binary.BigEndian.PutUint64(upper[len(prefix):], maxSeq+1)
	return upper
}

// PutBlob writes data to the blob sink, for values above
// Config.BlobThresholdBytes (§4.1, §4.3).
func (s *Store) PutBlob(data []byte) ([32]byte, error) { return s.blob.Put(data) }

// GetBlob reads a previously written blob by its content hash.
func (s *Store) GetBlob(hash [32]byte) ([]byte, error) { return s.blob.Get(hash) }

// Flush forces the current memtable to a new L0 sorted file regardless of
// its size, for callers (the "graphd compact"/"graphd gc" CLI commands)
// that want to reclaim space on demand rather than wait for the size
// trigger Put/Delete drive.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mem.Len() == 0 {
		return nil
	}
	return s.flushLocked()
}

// Compact forces one compaction pass (see PlanCompaction), or is a no-op
// if no level currently qualifies.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maybeCompactLocked()
}

func (s *Store) maybeFlushLocked(memSize int64) error {
	if memSize < s.cfg.MemtableBudgetBytes {
		return nil
	}
	if err := s.flushLocked(); err != nil {
		return err
	}
	return s.maybeCompactLocked()
}

// flushLocked writes the current memtable to a new L0 sorted file and
// replaces it with an empty one. Caller holds s.mu.
func (s *Store) flushLocked() error {
	start := time.Now()
	var entries []entry
	s.mem.Ascend(func(e entry) bool {
		entries = append(entries, e)
		return true
	})
	if len(entries) == 0 {
		return nil
	}
	path := FileName(s.dir, 0, s.gen)
	s.gen++
	if err := WriteSSTable(path, entries, s.cfg.BloomFalsePositiveRate); err != nil {
		return err
	}
	sst, err := OpenSSTable(path, 0)
	if err != nil {
		return err
	}
	for len(s.levels) == 0 {
		s.levels = append(s.levels, nil)
	}
	s.levels[0] = append(s.levels[0], sst)
	s.mem = NewMemtable()
	log.WithFile(path).Info().Int("entries", len(entries)).Msg("memtable flushed")
	if s.onFlush != nil {
		s.onFlush(time.Since(start))
	}
	return nil
}

// maybeCompactLocked runs at most one compaction pass per call, matching
// the teacher's one-reconciliation-per-tick scheduler idiom
// (pkg/scheduler.Scheduler) rather than draining the whole level backlog
// synchronously.
func (s *Store) maybeCompactLocked() error {
	start := time.Now()
	plan := PlanCompaction(s.levels)
	if plan == nil {
		return nil
	}
	isLastLevel := true
	for _, files := range s.levels[plan.Level+1:] {
		if len(files) > 0 {
			isLastLevel = false
		}
	}
	outPath := FileName(s.dir, plan.Level+1, s.gen)
	s.gen++
	merged, err := Compact(plan, outPath, isLastLevel, s.cfg.BloomFalsePositiveRate)
	if err != nil {
		return gerrs.Wrap(gerrs.Storage, err, "store.compact")
	}
	for len(s.levels) <= plan.Level+1 {
		s.levels = append(s.levels, nil)
	}
	s.levels[plan.Level] = nil
	s.levels[plan.Level+1] = append(s.levels[plan.Level+1], merged)
	if err := RemoveInputs(plan.Inputs); err != nil {
		return err
	}
	log.WithFile(outPath).Info().Int("level", plan.Level).Msg("compaction complete")
	if s.onCompact != nil {
		s.onCompact(time.Since(start))
	}
	return nil
}

func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil // prefix is all 0xff bytes: no upper bound
}
