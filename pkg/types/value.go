package types

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// ValueKind tags the dynamic variant carried by property values (§3.1, §9
// design note: "dynamic value type (any)"). Each constant's numeric value
// is the tag byte Value.Encode writes ahead of the payload.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindBool
	KindInt64
	KindFloat64
	KindString
	KindBytes
	KindList
	KindMap
)

// Value is the tagged variant stored for every vertex/edge property
// (§3.1). Exactly one of the typed fields is meaningful, selected by Kind;
// this mirrors the "dynamic value type" design note in §9 rather than using
// an `any`/`interface{}` field, so the canonical encoding can dispatch on
// Kind without a type switch over arbitrary Go types.
type Value struct {
	Kind ValueKind

	Bool    bool
	Int64   int64
	Float64 float64
	Str     string
	Bytes   []byte
	List    []Value
	Map     map[string]Value
}

func Null() Value                { return Value{Kind: KindNull} }
func Bool(b bool) Value          { return Value{Kind: KindBool, Bool: b} }
func Int64(i int64) Value        { return Value{Kind: KindInt64, Int64: i} }
func Float64(f float64) Value    { return Value{Kind: KindFloat64, Float64: f} }
func BytesValue(b []byte) Value  { return Value{Kind: KindBytes, Bytes: b} }
func List(vs ...Value) Value     { return Value{Kind: KindList, List: vs} }
func Map(m map[string]Value) Value { return Value{Kind: KindMap, Map: m} }

// String returns a canonical string Value: the UTF-8 bytes are normalized
// to NFC per §3.2's canonicalisation invariant.
func String(s string) Value {
	return Value{Kind: KindString, Str: norm.NFC.String(s)}
}

// Canonical returns a copy of v with every nested string, map keys
// included, normalized to NFC (key ordering is handled at encoding time,
// not at rest) — this is the function property 6 in §8
// ("canonicalising a canonical form is a no-op") is checked against.
func (v Value) Canonical() Value {
	switch v.Kind {
	case KindString:
		return String(v.Str)
	case KindList:
		out := make([]Value, len(v.List))
		for i, e := range v.List {
			out[i] = e.Canonical()
		}
		return Value{Kind: KindList, List: out}
	case KindMap:
		out := make(map[string]Value, len(v.Map))
		for k, e := range v.Map {
			out[norm.NFC.String(k)] = e.Canonical()
		}
		return Value{Kind: KindMap, Map: out}
	default:
		return v
	}
}

// CanonicalNumber renders an int64/float64 value using the single textual
// form used only for hashing (§3.2): integers in base 10, floats in Go's
// shortest round-tripping form with an explicit decimal point so "1" (int)
// and "1.0" (float) never collide in the hash domain.
func (v Value) CanonicalNumber() string {
	switch v.Kind {
	case KindInt64:
		return strconv.FormatInt(v.Int64, 10)
	case KindFloat64:
		s := strconv.FormatFloat(v.Float64, 'g', -1, 64)
		if !hasExponentOrDot(s) {
			s += ".0"
		}
		return s
	default:
		return ""
	}
}

func hasExponentOrDot(s string) bool {
	for _, r := range s {
		if r == '.' || r == 'e' || r == 'E' {
			return true
		}
	}
	return false
}

// Encode appends the canonical byte encoding of v to dst and returns the
// extended slice. The encoding is tag-prefixed and self-delimiting so it
// can be concatenated inside a larger canonical encoding (a property list,
// a patch) without ambiguity — the same approach dolt's serial package
// documents for its flatbuffer tables, done by hand here because the
// format must be fully deterministic for content hashing (§3.3).
func (v Value) Encode(dst []byte) []byte {
	dst = append(dst, byte(v.Kind))
	switch v.Kind {
	case KindNull:
		// no payload
	case KindBool:
		if v.Bool {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
	case KindInt64, KindFloat64:
		dst = appendLenPrefixed(dst, []byte(v.CanonicalNumber()))
	case KindString:
		s := norm.NFC.String(v.Str)
		dst = appendLenPrefixed(dst, []byte(s))
	case KindBytes:
		dst = appendLenPrefixed(dst, v.Bytes)
	case KindList:
		dst = appendUvarint(dst, uint64(len(v.List)))
		for _, e := range v.List {
			dst = e.Encode(dst)
		}
	case KindMap:
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, norm.NFC.String(k))
		}
		sort.Strings(keys)
		dst = appendUvarint(dst, uint64(len(keys)))
		for _, k := range keys {
			dst = appendLenPrefixed(dst, []byte(k))
			dst = v.Map[k].Encode(dst)
		}
	}
	return dst
}

func appendLenPrefixed(dst, b []byte) []byte {
	dst = appendUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

func appendUvarint(dst []byte, v uint64) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	return append(dst, buf[:n]...)
}

// Hash returns the SHA-256 content hash of v's canonical encoding (§3.3).
// Content hashing is cryptographic throughout this package; xxhash (used in
// pkg/store) is reserved for non-cryptographic integrity checksums and must
// never be substituted here.
func (v Value) Hash() [32]byte {
	return sha256.Sum256(v.Encode(nil))
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindInt64, KindFloat64:
		return v.CanonicalNumber()
	case KindString:
		return strconv.Quote(v.Str)
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.Bytes))
	case KindList:
		return fmt.Sprintf("list(%d)", len(v.List))
	case KindMap:
		return fmt.Sprintf("map(%d)", len(v.Map))
	default:
		return "invalid"
	}
}
