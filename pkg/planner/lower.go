package planner

import (
	"bytes"
	"crypto/sha256"

	"github.com/graphd/graphd/pkg/gerrs"
	"github.com/graphd/graphd/pkg/graphview"
	"github.com/graphd/graphd/pkg/types"
)

// fullScanFallbackRows is used when a NodeScan has no label (scans every
// vertex) and Stats has no global row count to report; it only needs to
// be in the right order of magnitude to keep join-strategy selection
// sane, not exact.
const fullScanFallbackRows = 10000.0

// Lower compiles logical into a cost-lowered, hash-stamped PhysicalPlan
// against catalog and stats (§4.4): filter pushdown, IndexScan rewriting,
// join-strategy selection, and expansion-direction selection for
// undirected Expand requests.
func Lower(logical LogicalNode, catalog *types.Catalog, stats Stats) (*PhysicalPlan, error) {
	root, err := lower(logical, catalog, stats)
	if err != nil {
		return nil, err
	}
	plan := &PhysicalPlan{Root: root}
	plan.Freeze()
	return plan, nil
}

func lower(node LogicalNode, catalog *types.Catalog, stats Stats) (PhysicalNode, error) {
	switch n := node.(type) {
	case NodeScan:
		return lowerNodeScan(n, catalog, stats)

	case IndexScan:
		rows, err := estimateIndexRows(n.Label, n.Op, stats)
		if err != nil {
			return nil, err
		}
		return PhysicalIndexScan{
			Label: n.Label, Property: n.Property, Op: n.Op,
			Value: Const{Value: n.Value}, As: n.As,
			EstCost: rows, EstRows: rows,
		}, nil

	case Filter:
		if err := ValidateExterns(n.Predicate, catalog.Externs); err != nil {
			return nil, err
		}
		// IndexScan rewrite: Filter(eligible predicate, NodeScan(label)).
		if scan, isScan := n.Input.(NodeScan); isScan && scan.Label != "" {
			if property, op, value, ok := indexEligible(n.Predicate, scan.As); ok && hasIndex(catalog, scan.Label, property) {
				return lower(IndexScan{Label: scan.Label, Property: property, Op: op, Value: value, As: scan.As}, catalog, stats)
			}
		}
		// Push below Expand when the predicate only references the
		// Expand's input binding, not its newly-bound neighbor (§4.4:
		// "pushes filters below joins/expands when they reference only
		// the input's columns").
		if expand, isExpand := n.Input.(Expand); isExpand && !exprReferences(n.Predicate, expand.ToAs) {
			pushed := Expand{From: expand.From, EdgeLabel: expand.EdgeLabel, Direction: expand.Direction, ToAs: expand.ToAs,
				Input: Filter{Predicate: n.Predicate, Input: expand.Input}}
			return lower(pushed, catalog, stats)
		}
		input, err := lower(n.Input, catalog, stats)
		if err != nil {
			return nil, err
		}
		return PhysicalFilter{Predicate: n.Predicate, Input: input, EstCost: input.cost() * 0.1}, nil

	case Expand:
		input, err := lower(n.Input, catalog, stats)
		if err != nil {
			return nil, err
		}
		dir := n.Direction
		fanOut, err := stats.AvgFanOut(n.From, n.EdgeLabel, graphview.DirBoth)
		if err != nil {
			return nil, err
		}
		if dir == graphview.DirBoth {
			// No fixed direction requested: pick whichever side of the
			// edge has the smaller estimated frontier (§4.4).
			outFanOut, err := stats.AvgFanOut(n.From, n.EdgeLabel, graphview.DirOut)
			if err != nil {
				return nil, err
			}
			inFanOut, err := stats.AvgFanOut(n.From, n.EdgeLabel, graphview.DirIn)
			if err != nil {
				return nil, err
			}
			dir = graphview.DirOut
			fanOut = outFanOut
			if inFanOut < outFanOut {
				dir = graphview.DirIn
				fanOut = inFanOut
			}
		}
		estRows := inputRows(input) * fanOut
		if estRows < 1 {
			estRows = 1
		}
		return PhysicalExpand{From: n.From, EdgeLabel: n.EdgeLabel, Direction: dir, ToAs: n.ToAs, Input: input, EstCost: estRows, EstRows: estRows}, nil

	case Join:
		left, err := lower(n.Left, catalog, stats)
		if err != nil {
			return nil, err
		}
		right, err := lower(n.Right, catalog, stats)
		if err != nil {
			return nil, err
		}
		return lowerJoin(n, left, right), nil

	case Project:
		input, err := lower(n.Input, catalog, stats)
		if err != nil {
			return nil, err
		}
		return PhysicalProject{Cols: n.Cols, Input: input, EstCost: input.cost() * 0.01}, nil

	case Distinct:
		input, err := lower(n.Input, catalog, stats)
		if err != nil {
			return nil, err
		}
		return PhysicalDistinct{Input: input, EstCost: inputRows(input)}, nil

	case Group:
		input, err := lower(n.Input, catalog, stats)
		if err != nil {
			return nil, err
		}
		return PhysicalGroup{Keys: n.Keys, Aggregates: n.Aggregates, Input: input, EstCost: inputRows(input)}, nil

	case Sort:
		input, err := lower(n.Input, catalog, stats)
		if err != nil {
			return nil, err
		}
		rows := inputRows(input)
		return PhysicalSort{Keys: n.Keys, Input: input, EstCost: rows * logCost(rows)}, nil

	case Limit:
		input, err := lower(n.Input, catalog, stats)
		if err != nil {
			return nil, err
		}
		return PhysicalLimit{N: n.N, Input: input, EstCost: 1}, nil
	}
	return nil, gerrs.New(gerrs.Validation, "unknown logical node %T", node)
}

func lowerNodeScan(n NodeScan, catalog *types.Catalog, stats Stats) (PhysicalNode, error) {
	rows := fullScanFallbackRows
	if n.Label != "" {
		c, err := stats.CountLabel(n.Label)
		if err != nil {
			return nil, err
		}
		rows = float64(c)
		if rows == 0 {
			rows = 1
		}
	}
	return PhysicalNodeScan{Label: n.Label, As: n.As, EstCost: rows, EstRows: rows}, nil
}

// estimateIndexRows applies a fixed selectivity heuristic per comparison
// operator; an exact selectivity model is out of scope (§9: counters, not
// histograms).
func estimateIndexRows(label string, op CompareOp, stats Stats) (float64, error) {
	base, err := stats.CountLabel(label)
	if err != nil {
		return 0, err
	}
	rows := float64(base)
	if rows == 0 {
		rows = 1
	}
	switch op {
	case OpEq:
		rows /= 10
	case OpPrefix:
		rows /= 5
	case OpLt, OpLte, OpGt, OpGte:
		rows /= 3
	case OpNeq:
		rows *= 0.9
	}
	if rows < 1 {
		rows = 1
	}
	return rows, nil
}

func hasIndex(catalog *types.Catalog, label, property string) bool {
	for _, idx := range catalog.IndexesFor(label) {
		if idx.Property == property && (idx.Kind == types.IndexPropertyPoint || idx.Kind == types.IndexPropertyRange) {
			return true
		}
	}
	return false
}

func exprReferences(e Expr, as string) bool {
	switch n := e.(type) {
	case ColumnRef:
		return n.Var == as
	case FuncCall:
		for _, a := range n.Args {
			if exprReferences(a, as) {
				return true
			}
		}
	case ExternCall:
		for _, a := range n.Args {
			if exprReferences(a, as) {
				return true
			}
		}
	}
	return false
}

// lowerJoin picks the cheapest of hash, index-nested-loop, and merge join
// (§4.4), breaking ties by a stable hash of each candidate subplan so the
// result is reproducible across runs with identical cost estimates.
func lowerJoin(n Join, left, right PhysicalNode) PhysicalNode {
	leftRows, rightRows := inputRows(left), inputRows(right)

	candidates := []PhysicalJoin{
		{Strategy: StrategyHashJoin, How: n.How, Left: left, Right: right, On: n.On,
			EstCost: leftRows + rightRows, EstRows: maxFloat(leftRows, rightRows)},
	}
	if indexEligibleJoin(right) {
		candidates = append(candidates, PhysicalJoin{
			Strategy: StrategyIndexNestedLoop, How: n.How, Left: left, Right: right, On: n.On,
			EstCost: leftRows * indexProbeCost, EstRows: leftRows,
		})
	}
	if leftSorted, rightSorted := isSorted(left), isSorted(right); leftSorted && rightSorted {
		candidates = append(candidates, PhysicalJoin{
			Strategy: StrategyMergeJoin, How: n.How, Left: left, Right: right, On: n.On,
			EstCost: leftRows*logCost(leftRows) + rightRows*logCost(rightRows), EstRows: maxFloat(leftRows, rightRows),
		})
	}

	best := candidates[0]
	bestHash := sha256.Sum256([]byte(best.canonical()))
	for _, c := range candidates[1:] {
		if c.cost() < best.cost() {
			best, bestHash = c, sha256.Sum256([]byte(c.canonical()))
			continue
		}
		if c.cost() == best.cost() {
			h := sha256.Sum256([]byte(c.canonical()))
			if bytes.Compare(h[:], bestHash[:]) < 0 {
				best, bestHash = c, h
			}
		}
	}
	return best
}

// indexProbeCost approximates one indexed point lookup against the right
// side: far cheaper per outer row than a linear scan of the right side,
// which is what makes index-nested-loop win over hash join once the
// right side already has a matching IndexScan.
const indexProbeCost = 0.05

func indexEligibleJoin(n PhysicalNode) bool {
	_, ok := n.(PhysicalIndexScan)
	return ok
}

func isSorted(n PhysicalNode) bool {
	_, ok := n.(PhysicalSort)
	return ok
}

func inputRows(n PhysicalNode) float64 {
	switch v := n.(type) {
	case PhysicalNodeScan:
		return v.EstRows
	case PhysicalIndexScan:
		return v.EstRows
	case PhysicalExpand:
		return v.EstRows
	case PhysicalFilter:
		return inputRows(v.Input) * 0.3
	case PhysicalJoin:
		return v.EstRows
	case PhysicalProject:
		return inputRows(v.Input)
	case PhysicalDistinct:
		return inputRows(v.Input) * 0.8
	case PhysicalGroup:
		return inputRows(v.Input) * 0.2
	case PhysicalSort:
		return inputRows(v.Input)
	case PhysicalLimit:
		r := inputRows(v.Input)
		if float64(v.N) < r {
			return float64(v.N)
		}
		return r
	}
	return 1
}

func logCost(rows float64) float64 {
	if rows < 2 {
		return 1
	}
	n := 0.0
	for r := rows; r > 1; r /= 2 {
		n++
	}
	return n
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
