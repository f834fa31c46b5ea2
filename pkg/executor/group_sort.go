package executor

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/graphd/graphd/pkg/gerrs"
	"github.com/graphd/graphd/pkg/graphview"
	"github.com/graphd/graphd/pkg/planner"
	"github.com/graphd/graphd/pkg/store"
	"github.com/graphd/graphd/pkg/types"
)

// SpillBudgetRows bounds how many distinct groups (groupOperator) or
// buffered rows (sortOperator) are held in memory before spilling to the
// scratch area of pkg/store's blob sink (§6: "Group/Sort spill to
// pkg/store's scratch area... above the configured memory budget"). The
// bound is this fixed row count; Config.SpillBudgetBytes is not consulted.
const SpillBudgetRows = 4096

// groupOperator drives PhysicalGroup: hash aggregation keyed by Keys'
// bindings. Its resident memory is bounded by the number of distinct
// groups, not by input row count; once that exceeds SpillBudgetRows the
// current accumulator table is serialized to a scratch blob and a fresh
// table started, with all spilled tables combined into the final result
// by the Next call that finds the input exhausted.
type groupOperator struct {
	input   Operator
	view    *graphview.View
	keys    []string
	aggs    []planner.Aggregate
	scratch *store.Store

	table       map[string]*groupAccum
	spillHashes [][32]byte
	emitted     bool
}

type groupAccum struct {
	KeyRow Row
	Count  int64
	Sums   map[string]float64
	Mins   map[string]*types.Value
	Maxs   map[string]*types.Value
}

type spilledAccum struct {
	KeyRow map[string]Binding
	Count  int64
	Sums   map[string]float64
	Mins   map[string]*types.Value
	Maxs   map[string]*types.Value
}

func newGroupOperator(input Operator, view *graphview.View, p planner.PhysicalGroup, scratch *store.Store) *groupOperator {
	return &groupOperator{input: input, view: view, keys: p.Keys, aggs: p.Aggregates, scratch: scratch, table: map[string]*groupAccum{}}
}

func (g *groupOperator) Open(ctx context.Context) error { return g.input.Open(ctx) }

func (g *groupOperator) Close() error { return g.input.Close() }

func (g *groupOperator) Next(ctx context.Context) (Batch, error) {
	if g.emitted {
		return nil, nil
	}
	for {
		if err := checkDeadline(ctx); err != nil {
			return nil, err
		}
		in, err := g.input.Next(ctx)
		if err != nil {
			return nil, err
		}
		if in == nil {
			break
		}
		for _, row := range in {
			g.accumulate(row)
		}
		if g.scratch != nil && len(g.table) > SpillBudgetRows {
			if err := g.spill(); err != nil {
				return nil, err
			}
		}
	}
	out, err := g.finalize()
	if err != nil {
		return nil, err
	}
	g.emitted = true
	return out, nil
}

func (g *groupOperator) accumulate(row Row) {
	key := make(Row, len(g.keys))
	for _, k := range g.keys {
		if b, ok := row[k]; ok {
			key[k] = b
		}
	}
	k := rowKey(key)
	acc, ok := g.table[k]
	if !ok {
		acc = &groupAccum{KeyRow: key, Sums: map[string]float64{}, Mins: map[string]*types.Value{}, Maxs: map[string]*types.Value{}}
		g.table[k] = acc
	}
	acc.Count++
	for _, a := range g.aggs {
		if a.Func == "count" {
			continue
		}
		v, err := Eval(a.Arg, row, g.view, nil)
		if err != nil || (v.Kind != types.KindInt64 && v.Kind != types.KindFloat64) {
			continue
		}
		f := v.Float64
		if v.Kind == types.KindInt64 {
			f = float64(v.Int64)
		}
		acc.Sums[a.As] += f
		if cur, ok := acc.Mins[a.As]; !ok || f < numericOf(*cur) {
			vv := v
			acc.Mins[a.As] = &vv
		}
		if cur, ok := acc.Maxs[a.As]; !ok || f > numericOf(*cur) {
			vv := v
			acc.Maxs[a.As] = &vv
		}
	}
}

func numericOf(v types.Value) float64 {
	if v.Kind == types.KindFloat64 {
		return v.Float64
	}
	return float64(v.Int64)
}

func (g *groupOperator) spill() error {
	spilled := make(map[string]spilledAccum, len(g.table))
	for k, acc := range g.table {
		spilled[k] = spilledAccum{KeyRow: acc.KeyRow, Count: acc.Count, Sums: acc.Sums, Mins: acc.Mins, Maxs: acc.Maxs}
	}
	data, err := json.Marshal(spilled)
	if err != nil {
		return gerrs.Wrap(gerrs.Invariant, err, "executor.groupOperator.spill")
	}
	hash, err := g.scratch.PutBlob(data)
	if err != nil {
		return err
	}
	g.spillHashes = append(g.spillHashes, hash)
	g.table = map[string]*groupAccum{}
	return nil
}

func (g *groupOperator) finalize() (Batch, error) {
	merged := map[string]*groupAccum{}
	for k, acc := range g.table {
		merged[k] = acc
	}
	for _, h := range g.spillHashes {
		data, err := g.scratch.GetBlob(h)
		if err != nil {
			return nil, err
		}
		var spilled map[string]spilledAccum
		if err := json.Unmarshal(data, &spilled); err != nil {
			return nil, gerrs.Wrap(gerrs.Corruption, err, "executor.groupOperator.finalize")
		}
		for k, sp := range spilled {
			cur, ok := merged[k]
			if !ok {
				merged[k] = &groupAccum{KeyRow: sp.KeyRow, Count: sp.Count, Sums: sp.Sums, Mins: sp.Mins, Maxs: sp.Maxs}
				continue
			}
			cur.Count += sp.Count
			for as, s := range sp.Sums {
				cur.Sums[as] += s
			}
			for as, v := range sp.Mins {
				if cv, ok := cur.Mins[as]; !ok || numericOf(*v) < numericOf(*cv) {
					cur.Mins[as] = v
				}
			}
			for as, v := range sp.Maxs {
				if cv, ok := cur.Maxs[as]; !ok || numericOf(*v) > numericOf(*cv) {
					cur.Maxs[as] = v
				}
			}
		}
	}

	out := make(Batch, 0, len(merged))
	for _, acc := range merged {
		row := acc.KeyRow.Clone()
		for _, a := range g.aggs {
			switch a.Func {
			case "count":
				row[a.As] = ValueBinding(types.Int64(acc.Count))
			case "sum":
				row[a.As] = ValueBinding(types.Float64(acc.Sums[a.As]))
			case "avg":
				if acc.Count == 0 {
					row[a.As] = ValueBinding(types.Float64(0))
				} else {
					row[a.As] = ValueBinding(types.Float64(acc.Sums[a.As] / float64(acc.Count)))
				}
			case "min":
				if v := acc.Mins[a.As]; v != nil {
					row[a.As] = ValueBinding(*v)
				}
			case "max":
				if v := acc.Maxs[a.As]; v != nil {
					row[a.As] = ValueBinding(*v)
				}
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// sortOperator drives PhysicalSort: accumulates rows, spilling sorted runs
// to the scratch blob sink once the in-memory buffer exceeds
// SpillBudgetRows, then k-way-merges every run (plus any remaining
// in-memory tail) at Next-exhaustion time.
type sortOperator struct {
	input   Operator
	keys    []planner.SortKey
	scratch *store.Store

	buf         []Row
	runHashes   [][32]byte
	merged      []Row
	mergePos    int
	drained     bool
}

func newSortOperator(input Operator, p planner.PhysicalSort, scratch *store.Store) *sortOperator {
	return &sortOperator{input: input, keys: p.Keys, scratch: scratch}
}

func (s *sortOperator) Open(ctx context.Context) error { return s.input.Open(ctx) }
func (s *sortOperator) Close() error                   { return s.input.Close() }

func (s *sortOperator) Next(ctx context.Context) (Batch, error) {
	if !s.drained {
		if err := s.drain(ctx); err != nil {
			return nil, err
		}
	}
	if s.mergePos >= len(s.merged) {
		return nil, nil
	}
	end := s.mergePos + DefaultBatchSize
	if end > len(s.merged) {
		end = len(s.merged)
	}
	out := s.merged[s.mergePos:end]
	s.mergePos = end
	return out, nil
}

func (s *sortOperator) drain(ctx context.Context) error {
	for {
		if err := checkDeadline(ctx); err != nil {
			return err
		}
		in, err := s.input.Next(ctx)
		if err != nil {
			return err
		}
		if in == nil {
			break
		}
		s.buf = append(s.buf, in...)
		if s.scratch != nil && len(s.buf) > SpillBudgetRows {
			if err := s.spillRun(); err != nil {
				return err
			}
		}
	}
	s.sortBuf(s.buf)
	runs := make([][]Row, 0, len(s.runHashes)+1)
	for _, h := range s.runHashes {
		data, err := s.scratch.GetBlob(h)
		if err != nil {
			return err
		}
		var run []Row
		if err := json.Unmarshal(data, &run); err != nil {
			return gerrs.Wrap(gerrs.Corruption, err, "executor.sortOperator.drain")
		}
		runs = append(runs, run)
	}
	runs = append(runs, s.buf)
	s.merged = kWayMerge(runs, s.less)
	s.drained = true
	return nil
}

func (s *sortOperator) spillRun() error {
	s.sortBuf(s.buf)
	data, err := json.Marshal(s.buf)
	if err != nil {
		return gerrs.Wrap(gerrs.Invariant, err, "executor.sortOperator.spillRun")
	}
	hash, err := s.scratch.PutBlob(data)
	if err != nil {
		return err
	}
	s.runHashes = append(s.runHashes, hash)
	s.buf = nil
	return nil
}

func (s *sortOperator) sortBuf(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool { return s.less(rows[i], rows[j]) })
}

func (s *sortOperator) less(a, b Row) bool {
	for _, k := range s.keys {
		av, aok := a[k.Col]
		bv, bok := b[k.Col]
		if !aok || !bok {
			continue
		}
		c := compareValues(bindingValue(av), bindingValue(bv))
		if c == 0 {
			continue
		}
		if k.Desc {
			return c > 0
		}
		return c < 0
	}
	return false
}

func bindingValue(b Binding) types.Value {
	if b.Kind == BindValue {
		return b.Value
	}
	return types.Null()
}

// kWayMerge merges already-sorted runs into one sorted slice.
func kWayMerge(runs [][]Row, less func(a, b Row) bool) []Row {
	idx := make([]int, len(runs))
	total := 0
	for _, r := range runs {
		total += len(r)
	}
	out := make([]Row, 0, total)
	for {
		best := -1
		for i, r := range runs {
			if idx[i] >= len(r) {
				continue
			}
			if best == -1 || less(r[idx[i]], runs[best][idx[best]]) {
				best = i
			}
		}
		if best == -1 {
			break
		}
		out = append(out, runs[best][idx[best]])
		idx[best]++
	}
	return out
}
