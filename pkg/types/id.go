package types

import (
	"encoding/hex"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
)

var errInvalidIDLength = errors.New("types: id must decode to 16 bytes")

// ID is a stable 128-bit opaque handle for a vertex or an edge (§3.3).
// Stable IDs are distinct from content hashes: they are minted monotonically
// and are never reused after deletion, even though the entity's content
// (labels, properties) may change across commits.
type ID [16]byte

// String renders the ID as lowercase hex, matching the hex-keyed blob store
// and the catalog's bbolt key encoding.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the zero value, used as a "no id" sentinel
// in places where an ID is optional (e.g. an unresolved relink target).
func (id ID) IsZero() bool {
	return id == ID{}
}

// idSeq is a process-local monotonic counter mixed into freshly minted IDs
// so that IDs issued within the same process during the same wall-clock
// instant still sort distinctly; the UUID portion guarantees cross-process
// uniqueness.
var idSeq uint64

// NewID mints a fresh stable ID. The first 8 bytes are a monotonic counter
// (so IDs issued within one process sort in mint order, which keeps label
// scans that iterate "ordered by stable id" (§4.3) cheap to reason about in
// tests); the remaining bytes come from a random UUIDv4 to avoid collisions
// across process restarts and across nodes.
func NewID() ID {
	var id ID
	seq := atomic.AddUint64(&idSeq, 1)
	id[0] = byte(seq >> 56)
	id[1] = byte(seq >> 48)
	id[2] = byte(seq >> 40)
	id[3] = byte(seq >> 32)
	id[4] = byte(seq >> 24)
	id[5] = byte(seq >> 16)
	id[6] = byte(seq >> 8)
	id[7] = byte(seq)
	u := uuid.New()
	copy(id[8:], u[:8])
	return id
}

// ParseID parses the hex encoding produced by ID.String.
func ParseID(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, errInvalidIDLength
	}
	copy(id[:], b)
	return id, nil
}
