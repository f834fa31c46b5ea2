package graphview

import (
	"bytes"
	"encoding/json"

	"github.com/graphd/graphd/pkg/gerrs"
	"github.com/graphd/graphd/pkg/store"
	"github.com/graphd/graphd/pkg/types"
)

// versionEnvelope mirrors pkg/mvcc's unexported versionedValue: the wire
// shape every record is written with, regardless of component. graphview
// and mvcc agree on this envelope as their read/write contract without
// graphview importing mvcc's internals.
type versionEnvelope struct {
	Tombstone bool
	Data      json.RawMessage
}

// scanLatestUnderPrefix scans every key under prefix (a StoreKey.Prefix()
// with an optionally-empty Sub, i.e. either one entity's one component or
// an entire entity_kind) and invokes fn once per distinct (entity,
// component, sub) group with the version whose commit_seq is the greatest
// not exceeding maxSeq — the same "greatest commit_seq ≤ S.seq" rule
// store.GetLatestAtOrBefore applies to a single known record (§4.2),
// generalized here to groups discovered by scanning rather than looked up
// by exact key, because label scans and adjacency scans don't know the
// full key up front.
//
// Keys are visited in ascending order, and because every StoreKey encodes
// its commit_seq as the trailing 8 bytes, all versions of one group are
// contiguous in that order with seq ascending within the group. A
// tombstoned winner (envelope.Tombstone) is a true absence and is not
// reported to fn.
func scanLatestUnderPrefix(st *store.Store, prefix []byte, maxSeq uint64, fn func(groupKey []byte, data json.RawMessage) error) error {
	var curGroup []byte
	var curData json.RawMessage
	var curTomb bool
	haveCur := false
	var callErr error

	flush := func() error {
		if !haveCur {
			return nil
		}
		if curTomb {
			return nil
		}
		return fn(curGroup, curData)
	}

	err := st.ScanPrefix(prefix, func(key, value []byte) bool {
		if len(key) < 8 {
			return true
		}
		group := key[:len(key)-8]
		seq := types.DecodeSeq(key)

		if !haveCur || !bytes.Equal(group, curGroup) {
			if err := flush(); err != nil {
				callErr = err
				return false
			}
			curGroup = append([]byte(nil), group...)
			haveCur = true
			curTomb = true // no version ≤ maxSeq seen yet for this group
			curData = nil
		}
		if seq > maxSeq {
			return true
		}
		var env versionEnvelope
		if err := json.Unmarshal(value, &env); err != nil {
			callErr = gerrs.Wrap(gerrs.Corruption, err, "graphview.scanLatestUnderPrefix")
			return false
		}
		curTomb = env.Tombstone
		curData = env.Data
		return true
	})
	if err != nil {
		return err
	}
	if callErr != nil {
		return callErr
	}
	return flush()
}

// decodeAdjKey splits an adjacency record's Sub (built by
// pkg/mvcc.adjKey: a length-prefixed label followed by a 16-byte neighbor
// id and a 16-byte edge id) back into its parts.
func decodeAdjKey(sub []byte) (label string, neighbor, edge types.ID, err error) {
	if len(sub) < 1 {
		return "", types.ID{}, types.ID{}, gerrs.New(gerrs.Corruption, "graphview: truncated adjacency key")
	}
	n := int(sub[0])
	if len(sub) < 1+n+16+16 {
		return "", types.ID{}, types.ID{}, gerrs.New(gerrs.Corruption, "graphview: truncated adjacency key")
	}
	label = string(sub[1 : 1+n])
	copy(neighbor[:], sub[1+n:1+n+16])
	copy(edge[:], sub[1+n+16:1+n+32])
	return label, neighbor, edge, nil
}
