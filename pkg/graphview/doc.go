// Package graphview provides read-only, snapshot-consistent access to the
// graph (§3.1, §4.3): vertex/edge lookups, adjacency traversal, and label
// scans, all bounded by a pinned types.Snapshot so a long-running query
// never observes a commit made after it started.
//
// graphview never writes; pkg/mvcc owns every mutation. It interprets the
// same (entity_kind, entity_id, component, commit_seq) key tuple mvcc
// writes (pkg/types.StoreKey) and the same per-record tombstone envelope
// (see scan.go's versionEnvelope), reading directly off pkg/store.
//
// Grounded on agentic-research-mache's internal/graph.MemoryStore (the
// int-ID-mapped roaring.Bitmap index keyed by content, adapted here to key
// by vertex label) and katalvlaran-lvlath's core/methods traversal style.
package graphview
