package types

import (
	"encoding/hex"
	"time"
)

// Snapshot is an immutable view identified by a monotonically increasing
// commit sequence number and a content hash (§3.1).
type Snapshot struct {
	Seq      uint64
	RootHash [32]byte
}

// Commit links a patch to its parent snapshot, producing a new root hash
// (§3.1, §4.2). Commits form a DAG keyed by content hash; the core only
// ever produces linear per-transaction history, but the DAG shape (parent
// pointer by hash) allows merges in principle (§3.1).
type Commit struct {
	Seq        uint64
	ParentHash *[32]byte
	PatchHash  [32]byte
	ResultRoot [32]byte
	Timestamp  time.Time
	Message    string

	// Touched is the set of entity-level key prefixes this commit's patch
	// wrote to, used by first-committer-wins conflict detection (§4.2) to
	// test a transaction's write set against every commit made since
	// its snapshot without re-reading the patch itself.
	Touched [][]byte
}

// CommitRecord is the wire shape exposed to collaborators (§6.2).
type CommitRecord struct {
	Seq        uint64
	ParentHash *string
	PatchHash  string
	ResultRoot string
	Timestamp  time.Time
	Message    string
}

// ToRecord renders c as the collaborator-facing CommitRecord.
func (c *Commit) ToRecord() CommitRecord {
	rec := CommitRecord{
		Seq:        c.Seq,
		PatchHash:  hashHex(c.PatchHash),
		ResultRoot: hashHex(c.ResultRoot),
		Timestamp:  c.Timestamp,
		Message:    c.Message,
	}
	if c.ParentHash != nil {
		s := hashHex(*c.ParentHash)
		rec.ParentHash = &s
	}
	return rec
}

func hashHex(h [32]byte) string {
	return hex.EncodeToString(h[:])
}
