package planner

import (
	"github.com/graphd/graphd/pkg/graphview"
	"github.com/graphd/graphd/pkg/types"
)

// LogicalNode is one node of the logical plan tree accepted from the
// out-of-core query front-end (§4.4): "the core need only accept an
// abstract tree whose node kinds are" exactly the ones below.
type LogicalNode interface{ isLogicalNode() }

// NodeScan scans every vertex, optionally restricted to Label, binding
// each to As.
type NodeScan struct {
	Label string // empty: every vertex
	As    string
}

// IndexScan scans vertices of Label whose Property compares Op to Value,
// binding each to As. The query front-end may emit this directly, or the
// planner may rewrite an IndexScan-eligible Filter(NodeScan) into one.
type IndexScan struct {
	Label    string
	Property string
	Op       CompareOp
	Value    types.Value
	As       string
}

// Expand joins the current row set against adjacency: for each input row
// bound at From, produces one output row per incident edge of EdgeLabel
// in Direction, binding the neighbor to ToAs.
type Expand struct {
	From      string
	EdgeLabel string // empty: every label
	Direction graphview.Direction
	ToAs      string
	Input     LogicalNode
}

// Filter keeps only input rows for which Predicate evaluates true.
type Filter struct {
	Predicate Expr
	Input     LogicalNode
}

// JoinKind enumerates the logical join semantics available to Join.
type JoinKind string

const (
	JoinInner JoinKind = "inner"
	JoinLeft  JoinKind = "left"
)

// JoinCond is one equality condition of a Join's `on` clause.
type JoinCond struct {
	Left  ColumnRef
	Right ColumnRef
}

// Join combines Left and Right row sets on the equalities in On.
type Join struct {
	How         JoinKind
	Left, Right LogicalNode
	On          []JoinCond
}

// Project narrows each row to Cols.
type Project struct {
	Cols  []string
	Input LogicalNode
}

// Distinct deduplicates rows by their full column set; inserted by the
// planner only when the caller requested set semantics (§4.4).
type Distinct struct{ Input LogicalNode }

// Aggregate is one Group aggregate expression.
type Aggregate struct {
	Func string // count, sum, min, max, avg
	Arg  Expr
	As   string
}

// Group aggregates Input by Keys, producing Aggregates.
type Group struct {
	Keys       []string
	Aggregates []Aggregate
	Input      LogicalNode
}

// SortKey is one Sort ordering column.
type SortKey struct {
	Col  string
	Desc bool
}

// Sort orders Input by Keys; the executor switches to an external merge
// once it has buffered more than executor.SpillBudgetRows rows and a
// scratch area is configured.
type Sort struct {
	Keys  []SortKey
	Input LogicalNode
}

// Limit truncates Input to its first N rows.
type Limit struct {
	N     int64
	Input LogicalNode
}

func (NodeScan) isLogicalNode()  {}
func (IndexScan) isLogicalNode() {}
func (Expand) isLogicalNode()    {}
func (Filter) isLogicalNode()    {}
func (Join) isLogicalNode()      {}
func (Project) isLogicalNode()   {}
func (Distinct) isLogicalNode()  {}
func (Group) isLogicalNode()     {}
func (Sort) isLogicalNode()      {}
func (Limit) isLogicalNode()     {}
