/*
Package store implements the durable key-value substrate of §4.1: a
write-ahead log, an in-memory memtable, immutable sorted files with sparse
indexes and bloom filters, level-tiered compaction, and a content-addressed
blob sink for oversized property values. Everything above this package
(mvcc, graphview, planner/executor, rewrite) addresses records only through
the (entity_kind, entity_id, component, commit_seq) key tuple defined in
pkg/types/keys.go; store never interprets that tuple beyond treating it as
an ordered byte string.
*/
package store
