package types

import "encoding/binary"

// EntityKind is the first field of the store key tuple
// (entity_kind, entity_id, component, commit_seq) mandated by §4.2.
// Grounded on the single-byte key-prefix enum pattern used by graph/chain
// stores to keep ordered scans cheap (qiluge-ontology's
// common.DataEntryPrefix is the closest analogue in the retrieval pack).
type EntityKind byte

const (
	EntityVertex EntityKind = 0x01
	EntityEdge   EntityKind = 0x02
	EntityCommit EntityKind = 0x03
	EntityBlob   EntityKind = 0x04
)

// Component is the third field of the store key tuple: which facet of the
// entity this record describes.
type Component byte

const (
	ComponentLabels   Component = 0x01 // vertex labels set
	ComponentProp     Component = 0x02 // a single (entity, key) property
	ComponentAdjOut   Component = 0x03 // (source, label, target, edge_id)
	ComponentAdjIn    Component = 0x04 // (target, label, source, edge_id)
	ComponentEdgeMeta Component = 0x05 // edge source/target/label
	ComponentLabelIdx Component = 0x06 // label -> ordinal membership
)

// StoreKey encodes the (entity_kind, entity_id, component, commit_seq)
// tuple of §4.2 into a byte string whose lexicographic order matches the
// intended scan order: entity_kind, then entity_id, then component, then
// commit_seq descending is achieved by the caller reverse-scanning the
// ascending commit_seq suffix (§4.2: "returns the record with the greatest
// commit_seq ≤ S.seq").
type StoreKey struct {
	Kind      EntityKind
	Entity    ID
	Component Component
	// Sub distinguishes multiple records sharing (Kind, Entity, Component),
	// e.g. a property key or an adjacency record's (label, target, edge_id)
	// suffix. It is already canonically encoded by the caller.
	Sub []byte
	Seq uint64
}

// Encode renders k into its flat on-disk byte form.
func (k StoreKey) Encode() []byte {
	buf := make([]byte, 0, 1+16+1+len(k.Sub)+8)
	buf = append(buf, byte(k.Kind))
	buf = append(buf, k.Entity[:]...)
	buf = append(buf, byte(k.Component))
	buf = append(buf, k.Sub...)
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], k.Seq)
	buf = append(buf, seqBuf[:]...)
	return buf
}

// Prefix renders the (Kind, Entity, Component, Sub) portion of the key
// without the trailing commit_seq, used to bound a reverse range scan over
// all versions of one record.
func (k StoreKey) Prefix() []byte {
	buf := make([]byte, 0, 1+16+1+len(k.Sub))
	buf = append(buf, byte(k.Kind))
	buf = append(buf, k.Entity[:]...)
	buf = append(buf, byte(k.Component))
	buf = append(buf, k.Sub...)
	return buf
}

// DecodeSeq extracts the trailing commit_seq from an encoded StoreKey.
func DecodeSeq(encoded []byte) uint64 {
	if len(encoded) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(encoded[len(encoded)-8:])
}
