// Package rewrite implements the Double-Pushout rewriting engine (C5,
// §4.5): match discovery over a rule's L-side, NAC and guard checking, the
// gluing-condition check, patch emission, and the strategy-calculus
// interpreter (once/exhaust/while/seq/choice/priority).
//
// Match discovery lowers a rule's L-side to a logical plan — one NodeScan
// per L-node, one Expand per L-edge spanning the pattern — and runs it
// through pkg/planner and pkg/executor, so rewriting and querying share
// one cost model and one index-aware search (§4.5). The strategy
// interpreter recurses once per strategy term on the Go call stack,
// grounded on the teacher's WarrenFSM.Apply command-dispatch loop: a flat
// switch over a sum-typed operation driving state transitions one step at
// a time, not a goroutine- or generator-per-rule scheme.
package rewrite
