/*
Package gerrs implements the taxonomy from spec.md §7: Invariant, Conflict,
NotFound, Capacity, Corruption, Storage, Validation, Termination. Every
error surfaced across store/mvcc/planner/executor/rewrite is built with
gerrs.New or gerrs.Wrap and tested with gerrs.Is, so callers branch on Kind
instead of string-matching messages — the same discipline the teacher
applies with %w-wrapped sentinel errors, generalized to a closed Kind enum
because §7 requires one.
*/
package gerrs
