package planner

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/graphd/graphd/pkg/graphview"
)

// PhysicalNode is one node of the lowered, executable plan tree. Every
// physical node carries its estimated cost so Lower's tie-breaking can
// inspect it.
type PhysicalNode interface {
	isPhysicalNode()
	cost() float64
	canonical() string
}

// PhysicalPlan is the frozen, hash-stamped result of Lower (§4.4's
// "plan-hash reproducible across runs", §8 property 9). Grounded on
// opal-lang/opal's planfmt.Plan: immutable once Freeze is called, with a
// Hash field stamped by a deterministic encoding of the whole tree.
type PhysicalPlan struct {
	Root   PhysicalNode
	Hash   [32]byte
	frozen bool
}

// Freeze stamps Hash as the SHA-256 of Root's canonical string form and
// marks the plan immutable. Calling Freeze again is a no-op: the hash of
// an already-frozen plan never changes (opal's Plan.Freeze has the same
// idempotence).
func (p *PhysicalPlan) Freeze() {
	if p.frozen {
		return
	}
	p.Hash = sha256.Sum256([]byte(p.Root.canonical()))
	p.frozen = true
}

// Frozen reports whether Freeze has been called.
func (p *PhysicalPlan) Frozen() bool { return p.frozen }

type PhysicalNodeScan struct {
	Label    string
	As       string
	EstCost  float64
	EstRows  float64
}

type PhysicalIndexScan struct {
	Label, Property string
	Op              CompareOp
	Value           Const
	As              string
	EstCost         float64
	EstRows         float64
}

// JoinStrategy enumerates the physical join implementations §4.4's
// lowering chooses between.
type JoinStrategy string

const (
	StrategyHashJoin        JoinStrategy = "hash"
	StrategyIndexNestedLoop JoinStrategy = "index_nested_loop"
	StrategyMergeJoin       JoinStrategy = "merge"
)

type PhysicalExpand struct {
	From, EdgeLabel string
	Direction       graphview.Direction
	ToAs            string
	Input           PhysicalNode
	EstCost         float64
	EstRows         float64
}

type PhysicalFilter struct {
	Predicate Expr
	Input     PhysicalNode
	EstCost   float64
}

type PhysicalJoin struct {
	Strategy    JoinStrategy
	How         JoinKind
	Left, Right PhysicalNode
	On          []JoinCond
	EstCost     float64
	EstRows     float64
}

type PhysicalProject struct {
	Cols    []string
	Input   PhysicalNode
	EstCost float64
}

type PhysicalDistinct struct {
	Input   PhysicalNode
	EstCost float64
}

type PhysicalGroup struct {
	Keys       []string
	Aggregates []Aggregate
	Input      PhysicalNode
	EstCost    float64
}

type PhysicalSort struct {
	Keys    []SortKey
	Input   PhysicalNode
	EstCost float64
}

type PhysicalLimit struct {
	N       int64
	Input   PhysicalNode
	EstCost float64
}

func (n PhysicalNodeScan) isPhysicalNode()   {}
func (n PhysicalIndexScan) isPhysicalNode()  {}
func (n PhysicalExpand) isPhysicalNode()     {}
func (n PhysicalFilter) isPhysicalNode()     {}
func (n PhysicalJoin) isPhysicalNode()       {}
func (n PhysicalProject) isPhysicalNode()    {}
func (n PhysicalDistinct) isPhysicalNode()   {}
func (n PhysicalGroup) isPhysicalNode()      {}
func (n PhysicalSort) isPhysicalNode()       {}
func (n PhysicalLimit) isPhysicalNode()      {}

func (n PhysicalNodeScan) cost() float64  { return n.EstCost }
func (n PhysicalIndexScan) cost() float64 { return n.EstCost }
func (n PhysicalExpand) cost() float64    { return n.EstCost + n.Input.cost() }
func (n PhysicalFilter) cost() float64    { return n.EstCost + n.Input.cost() }
func (n PhysicalJoin) cost() float64      { return n.EstCost + n.Left.cost() + n.Right.cost() }
func (n PhysicalProject) cost() float64   { return n.EstCost + n.Input.cost() }
func (n PhysicalDistinct) cost() float64  { return n.EstCost + n.Input.cost() }
func (n PhysicalGroup) cost() float64     { return n.EstCost + n.Input.cost() }
func (n PhysicalSort) cost() float64      { return n.EstCost + n.Input.cost() }
func (n PhysicalLimit) cost() float64     { return n.EstCost + n.Input.cost() }

// canonical renders a node (and its subtree) into a deterministic string,
// the basis for PhysicalPlan.Freeze's hash and for Lower's equal-cost
// tie-break (§4.4: "equal cost breaks by a stable hash of the subplan").
func (n PhysicalNodeScan) canonical() string {
	return fmt.Sprintf("NodeScan(%s,%s)", n.Label, n.As)
}
func (n PhysicalIndexScan) canonical() string {
	return fmt.Sprintf("IndexScan(%s,%s,%s,%s,%s)", n.Label, n.Property, n.Op, n.Value.Value.String(), n.As)
}
func (n PhysicalExpand) canonical() string {
	return fmt.Sprintf("Expand(%s,%s,%d,%s,%s)", n.From, n.EdgeLabel, n.Direction, n.ToAs, n.Input.canonical())
}
func (n PhysicalFilter) canonical() string {
	return fmt.Sprintf("Filter(%s,%s)", canonicalExpr(n.Predicate), n.Input.canonical())
}
func (n PhysicalJoin) canonical() string {
	conds := make([]string, len(n.On))
	for i, c := range n.On {
		conds[i] = fmt.Sprintf("%s.%s=%s.%s", c.Left.Var, c.Left.Field, c.Right.Var, c.Right.Field)
	}
	return fmt.Sprintf("Join(%s,%s,[%s],%s,%s)", n.Strategy, n.How, strings.Join(conds, ";"), n.Left.canonical(), n.Right.canonical())
}
func (n PhysicalProject) canonical() string {
	return fmt.Sprintf("Project([%s],%s)", strings.Join(n.Cols, ","), n.Input.canonical())
}
func (n PhysicalDistinct) canonical() string {
	return fmt.Sprintf("Distinct(%s)", n.Input.canonical())
}
func (n PhysicalGroup) canonical() string {
	aggs := make([]string, len(n.Aggregates))
	for i, a := range n.Aggregates {
		aggs[i] = fmt.Sprintf("%s(%s)as%s", a.Func, canonicalExpr(a.Arg), a.As)
	}
	return fmt.Sprintf("Group([%s],[%s],%s)", strings.Join(n.Keys, ","), strings.Join(aggs, ";"), n.Input.canonical())
}
func (n PhysicalSort) canonical() string {
	keys := make([]string, len(n.Keys))
	for i, k := range n.Keys {
		keys[i] = fmt.Sprintf("%s:%v", k.Col, k.Desc)
	}
	return fmt.Sprintf("Sort([%s],%s)", strings.Join(keys, ","), n.Input.canonical())
}
func (n PhysicalLimit) canonical() string {
	return fmt.Sprintf("Limit(%d,%s)", n.N, n.Input.canonical())
}

func canonicalExpr(e Expr) string {
	switch n := e.(type) {
	case ColumnRef:
		if n.Field == "" {
			return n.Var
		}
		return n.Var + "." + n.Field
	case Const:
		return n.Value.String()
	case FuncCall:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = canonicalExpr(a)
		}
		return n.Name + "(" + strings.Join(args, ",") + ")"
	case ExternCall:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = canonicalExpr(a)
		}
		return "extern:" + n.Name + "(" + strings.Join(args, ",") + ")"
	default:
		return "?"
	}
}
