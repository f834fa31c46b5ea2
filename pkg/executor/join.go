package executor

import (
	"context"
	"sort"

	"github.com/graphd/graphd/pkg/planner"
)

// joinOperator drives PhysicalJoin. Strategy selects the runtime
// algorithm: StrategyHashJoin and StrategyIndexNestedLoop both probe a
// materialized hash table built over the right side (the planner's
// distinction between them is about *which side gets an index-bounded
// scan feeding it*, not a different probe algorithm — both are captured
// faithfully as long as the chosen physical right subtree, index scan or
// not, is what actually built the table); StrategyMergeJoin sorts both
// materialized sides by join key and merge-scans them, the one case where
// the algorithm itself differs.
type joinOperator struct {
	strategy planner.JoinStrategy
	how      planner.JoinKind
	left     Operator
	right    Operator
	on       []planner.JoinCond

	rightRows []Row
	leftRows  []Row
	leftPos   int

	// hash-probe state
	rightByKey map[string][]Row

	// merge state
	mergeOut []Row
	mergePos int
	built    bool
}

func newJoinOperator(p planner.PhysicalJoin, left, right Operator) *joinOperator {
	return &joinOperator{strategy: p.Strategy, how: p.How, left: left, right: right, on: p.On}
}

func (j *joinOperator) Open(ctx context.Context) error {
	if err := j.left.Open(ctx); err != nil {
		return err
	}
	return j.right.Open(ctx)
}

func (j *joinOperator) drainLeft(ctx context.Context) error {
	for {
		b, err := j.left.Next(ctx)
		if err != nil {
			return err
		}
		if b == nil {
			return nil
		}
		j.leftRows = append(j.leftRows, b...)
	}
}

func (j *joinOperator) drainRight(ctx context.Context) error {
	for {
		b, err := j.right.Next(ctx)
		if err != nil {
			return err
		}
		if b == nil {
			return nil
		}
		j.rightRows = append(j.rightRows, b...)
	}
}

func (j *joinOperator) buildOnce(ctx context.Context) error {
	if j.built {
		return nil
	}
	if err := j.drainLeft(ctx); err != nil {
		return err
	}
	if err := j.drainRight(ctx); err != nil {
		return err
	}
	if j.strategy == planner.StrategyMergeJoin {
		j.mergeOut = mergeJoinRows(j.leftRows, j.rightRows, j.on, j.how)
	} else {
		j.rightByKey = map[string][]Row{}
		for _, r := range j.rightRows {
			k := joinKey(r, rightCols(j.on))
			j.rightByKey[k] = append(j.rightByKey[k], r)
		}
	}
	j.built = true
	return nil
}

func (j *joinOperator) Next(ctx context.Context) (Batch, error) {
	if err := j.buildOnce(ctx); err != nil {
		return nil, err
	}
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}
	if j.strategy == planner.StrategyMergeJoin {
		return j.nextMerge()
	}
	return j.nextHashProbe()
}

func (j *joinOperator) nextHashProbe() (Batch, error) {
	var out Batch
	for len(out) < DefaultBatchSize {
		if j.leftPos >= len(j.leftRows) {
			break
		}
		row := j.leftRows[j.leftPos]
		j.leftPos++
		k := joinKey(row, leftCols(j.on))
		matches := j.rightByKey[k]
		if len(matches) == 0 {
			if j.how == planner.JoinLeft {
				out = append(out, row.Clone())
			}
			continue
		}
		for _, m := range matches {
			merged := row.Clone()
			for k2, v := range m {
				merged[k2] = v
			}
			out = append(out, merged)
		}
	}
	if len(out) == 0 && j.leftPos >= len(j.leftRows) {
		return nil, nil
	}
	return out, nil
}

func (j *joinOperator) nextMerge() (Batch, error) {
	if j.mergePos >= len(j.mergeOut) {
		return nil, nil
	}
	end := j.mergePos + DefaultBatchSize
	if end > len(j.mergeOut) {
		end = len(j.mergeOut)
	}
	out := j.mergeOut[j.mergePos:end]
	j.mergePos = end
	return out, nil
}

func (j *joinOperator) Close() error {
	errL := j.left.Close()
	errR := j.right.Close()
	if errL != nil {
		return errL
	}
	return errR
}

func leftCols(on []planner.JoinCond) []planner.ColumnRef {
	cols := make([]planner.ColumnRef, len(on))
	for i, c := range on {
		cols[i] = c.Left
	}
	return cols
}

func rightCols(on []planner.JoinCond) []planner.ColumnRef {
	cols := make([]planner.ColumnRef, len(on))
	for i, c := range on {
		cols[i] = c.Right
	}
	return cols
}

func joinKey(row Row, cols []planner.ColumnRef) string {
	var buf []byte
	for _, c := range cols {
		b, ok := row[c.Var]
		if !ok {
			buf = append(buf, 0)
			continue
		}
		switch b.Kind {
		case BindVertex:
			buf = append(buf, 'v')
			buf = append(buf, b.Vertex[:]...)
		case BindEdge:
			buf = append(buf, 'e')
			buf = append(buf, b.Edge[:]...)
		case BindValue:
			buf = append(buf, 's')
			buf = b.Value.Encode(buf)
		}
		buf = append(buf, ';')
	}
	return string(buf)
}

// mergeJoinRows sorts both sides by their join key and scans them in
// lockstep, the textbook sort-merge join — used here exactly when the
// planner decided both inputs were already sorted (pkg/planner.lowerJoin's
// isSorted check).
func mergeJoinRows(left, right []Row, on []planner.JoinCond, how planner.JoinKind) []Row {
	lc, rc := leftCols(on), rightCols(on)
	ls := append([]Row(nil), left...)
	rs := append([]Row(nil), right...)
	sort.SliceStable(ls, func(i, j int) bool { return joinKey(ls[i], lc) < joinKey(ls[j], lc) })
	sort.SliceStable(rs, func(i, j int) bool { return joinKey(rs[i], rc) < joinKey(rs[j], rc) })

	var out []Row
	i, k := 0, 0
	for i < len(ls) {
		lk := joinKey(ls[i], lc)
		// advance k past any right keys strictly less than lk
		for k < len(rs) && joinKey(rs[k], rc) < lk {
			k++
		}
		j := k
		matched := false
		for j < len(rs) && joinKey(rs[j], rc) == lk {
			merged := ls[i].Clone()
			for k2, v := range rs[j] {
				merged[k2] = v
			}
			out = append(out, merged)
			matched = true
			j++
		}
		if !matched && how == planner.JoinLeft {
			out = append(out, ls[i].Clone())
		}
		i++
	}
	return out
}
