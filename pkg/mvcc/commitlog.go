package mvcc

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/graphd/graphd/pkg/gerrs"
	"github.com/graphd/graphd/pkg/types"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// commitLogTermUnused is the Raft log term every entry is stamped with.
// Term only matters to Raft's leader-election/replication machinery, which
// this package never runs; it is carried purely because raft.Log requires
// a value.
const commitLogTermUnused = 1

// CommitLog is the durable, strictly-ordered append log of commits
// (§4.2). It stores each types.Commit under its sequence number using
// raft-boltdb's LogStore implementation — the same durable, ordered log
// abstraction hashicorp/raft uses for its replicated log, reused here for
// a single-writer embedded log with no replication.
type CommitLog struct {
	store *raftboltdb.BoltStore
}

// OpenCommitLog opens (creating if absent) the commit log database under
// dataDir.
func OpenCommitLog(dataDir string) (*CommitLog, error) {
	path := filepath.Join(dataDir, "commitlog.db")
	bs, err := raftboltdb.NewBoltStore(path)
	if err != nil {
		return nil, gerrs.Wrap(gerrs.Storage, err, "mvcc.OpenCommitLog")
	}
	return &CommitLog{store: bs}, nil
}

// Close closes the underlying database.
func (c *CommitLog) Close() error {
	return c.store.Close()
}

// Append durably appends commit at its own Seq, failing with
// gerrs.Invariant if Seq is not exactly one past the current last index —
// the commit log is a strict sequence, never sparse (§4.2).
func (c *CommitLog) Append(commit *types.Commit) error {
	last, err := c.store.LastIndex()
	if err != nil {
		return gerrs.Wrap(gerrs.Storage, err, "mvcc.CommitLog.Append")
	}
	if commit.Seq != last+1 {
		return gerrs.New(gerrs.Invariant, "commit log out of order: last=%d next=%d", last, commit.Seq)
	}
	data, err := json.Marshal(commit)
	if err != nil {
		return gerrs.Wrap(gerrs.Validation, err, "mvcc.CommitLog.Append")
	}
	log := &raft.Log{
		Index:      commit.Seq,
		Term:       commitLogTermUnused,
		Type:       raft.LogCommand,
		Data:       data,
		AppendedAt: time.Now(),
	}
	if err := c.store.StoreLog(log); err != nil {
		return gerrs.Wrap(gerrs.Storage, err, "mvcc.CommitLog.Append")
	}
	return nil
}

// Get reads back the commit stored at seq.
func (c *CommitLog) Get(seq uint64) (*types.Commit, error) {
	var log raft.Log
	if err := c.store.GetLog(seq, &log); err != nil {
		return nil, gerrs.WithEntity(gerrs.New(gerrs.NotFound, "commit"), err.Error())
	}
	var commit types.Commit
	if err := json.Unmarshal(log.Data, &commit); err != nil {
		return nil, gerrs.Wrap(gerrs.Corruption, err, "mvcc.CommitLog.Get")
	}
	return &commit, nil
}

// LastSeq returns the sequence number of the most recently appended
// commit, or 0 if the log is empty.
func (c *CommitLog) LastSeq() (uint64, error) {
	last, err := c.store.LastIndex()
	if err != nil {
		return 0, gerrs.Wrap(gerrs.Storage, err, "mvcc.CommitLog.LastSeq")
	}
	return last, nil
}

// Since returns every commit with Seq > after, in order — used to rebuild
// in-memory conflict-detection state on startup.
func (c *CommitLog) Since(after uint64) ([]*types.Commit, error) {
	last, err := c.LastSeq()
	if err != nil {
		return nil, err
	}
	var out []*types.Commit
	for seq := after + 1; seq <= last; seq++ {
		commit, err := c.Get(seq)
		if err != nil {
			return nil, err
		}
		out = append(out, commit)
	}
	return out, nil
}
