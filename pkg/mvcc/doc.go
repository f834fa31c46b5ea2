/*
Package mvcc implements the versioning layer of §3.1/§4.2: immutable
snapshots identified by a monotonically increasing commit sequence number,
read-only and read-write transactions with snapshot isolation, and a
commit DAG keyed by content hash with first-committer-wins conflict
detection.

The durable commit log reuses hashicorp/raft's LogStore/StableStore
interface shape, backed by raft-boltdb, purely as an ordered durable
append log for CommitRecords — no leader election or log replication runs
here (that is explicitly out of scope, see SPEC_FULL.md §2's dependency
table); a single process is both the only writer and the only reader.
*/
package mvcc
