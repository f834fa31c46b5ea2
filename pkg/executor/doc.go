// Package executor runs a pkg/planner.PhysicalPlan as a tree of
// Volcano-style pull iterators (§4.4): each operator exposes
// Open/Next/Close, row batches are the unit of work, scans and expands
// read through pkg/graphview, and Group/Sort spill to a scratch area of
// pkg/store once they buffer more than SpillBudgetRows rows.
//
// Operator state-machine shape (open once, step repeatedly, close once)
// is grounded on the teacher's pkg/scheduler.Scheduler: a single mutex-
// guarded tick function advancing state one step at a time, generalized
// here from "one scheduling cycle over services" to "one batch over an
// operator tree".
package executor
