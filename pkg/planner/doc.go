// Package planner compiles the logical plan tree of §4.4 into a
// cost-lowered, hash-stamped physical plan. It performs filter pushdown,
// IndexScan rewriting, join-strategy selection, and expansion-direction
// selection against catalog statistics, exactly as spec.md §4.4
// prescribes.
//
// The physical plan representation and its Freeze()/Hash contract are
// grounded on opal-lang/opal's core/planfmt.Plan: an immutable,
// hash-stamped plan struct that becomes read-only once frozen. Cost-based
// strategy selection (picking the cheapest of several candidate
// implementations for one logical node) is grounded on the teacher's
// pkg/scheduler.selectNode, which the same way picks the minimum-cost
// candidate from several, just over node container-counts rather than
// plan row-count estimates.
package planner
