package executor

import (
	"context"

	"github.com/graphd/graphd/pkg/graphview"
	"github.com/graphd/graphd/pkg/planner"
	"github.com/graphd/graphd/pkg/types"
)

// scanOperator drives PhysicalNodeScan: a label-scoped (or, with an empty
// label, full) vertex scan through pkg/graphview, batched at batchSize.
type scanOperator struct {
	view      *graphview.View
	label     string
	as        string
	batchSize int

	ids []types.ID
	pos int
}

func newScanOperator(view *graphview.View, p planner.PhysicalNodeScan, batchSize int) *scanOperator {
	return &scanOperator{view: view, label: p.Label, as: p.As, batchSize: batchSize}
}

func (s *scanOperator) Open(ctx context.Context) error {
	if err := checkDeadline(ctx); err != nil {
		return err
	}
	var (
		ids []types.ID
		err error
	)
	if s.label == "" {
		ids, err = s.view.AllVertices()
	} else {
		ids, err = s.view.ScanLabel(s.label)
	}
	if err != nil {
		return err
	}
	s.ids = ids
	return nil
}

func (s *scanOperator) Next(ctx context.Context) (Batch, error) {
	if s.pos >= len(s.ids) {
		return nil, nil
	}
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}
	end := s.pos + s.batchSize
	if end > len(s.ids) {
		end = len(s.ids)
	}
	batch := make(Batch, 0, end-s.pos)
	for _, id := range s.ids[s.pos:end] {
		batch = append(batch, Row{s.as: VertexBinding(id)})
	}
	s.pos = end
	return batch, nil
}

func (s *scanOperator) Close() error { return nil }

// indexScanOperator drives PhysicalIndexScan. There is no standalone
// secondary-property index structure below pkg/graphview yet (§9: the
// catalog only advertises index intent for the planner's cost model), so
// execution runs the equivalent label scan and applies the comparison
// predicate as a post-filter — the planner's choice of IndexScan over a
// plain NodeScan+Filter is still observable in EstRows/EstCost and in the
// frozen plan hash, which is what S5 (§8) actually asserts.
type indexScanOperator struct {
	view      *graphview.View
	label     string
	property  string
	op        planner.CompareOp
	value     types.Value
	as        string
	batchSize int
	externs   ExternRegistry

	ids []types.ID
	pos int
}

func newIndexScanOperator(view *graphview.View, p planner.PhysicalIndexScan, batchSize int, externs ExternRegistry) *indexScanOperator {
	return &indexScanOperator{
		view: view, label: p.Label, property: p.Property, op: p.Op,
		value: p.Value.Value, as: p.As, batchSize: batchSize, externs: externs,
	}
}

func (s *indexScanOperator) Open(ctx context.Context) error {
	if err := checkDeadline(ctx); err != nil {
		return err
	}
	ids, err := s.view.ScanLabel(s.label)
	if err != nil {
		return err
	}
	s.ids = ids
	return nil
}

func (s *indexScanOperator) Next(ctx context.Context) (Batch, error) {
	var batch Batch
	for len(batch) < s.batchSize {
		if s.pos >= len(s.ids) {
			break
		}
		if err := checkDeadline(ctx); err != nil {
			return nil, err
		}
		id := s.ids[s.pos]
		s.pos++
		row := Row{s.as: VertexBinding(id)}
		pred := planner.FuncCall{Name: string(s.op), Args: []planner.Expr{
			planner.ColumnRef{Var: s.as, Field: s.property},
			planner.Const{Value: s.value},
		}}
		match, err := Eval(pred, row, s.view, s.externs)
		if err != nil {
			return nil, err
		}
		if match.Kind == types.KindBool && match.Bool {
			batch = append(batch, row)
		}
	}
	if len(batch) == 0 && s.pos >= len(s.ids) {
		return nil, nil
	}
	return batch, nil
}

func (s *indexScanOperator) Close() error { return nil }

// expandOperator drives PhysicalExpand: for every input row, it resolves
// the bound vertex's adjacency on Direction/EdgeLabel through
// pkg/graphview and emits one output row per (neighbor, edge) pair, with
// ToAs bound to the neighbor. The traversed edge is not bound in the row.
type expandOperator struct {
	view      *graphview.View
	input     Operator
	from      string
	edgeLabel string
	dir       graphview.Direction
	toAs      string
	batchSize int

	pending Batch // buffered overflow rows not yet emitted
	done    bool
}

func newExpandOperator(view *graphview.View, input Operator, p planner.PhysicalExpand, batchSize int) *expandOperator {
	return &expandOperator{view: view, input: input, from: p.From, edgeLabel: p.EdgeLabel, dir: p.Direction, toAs: p.ToAs, batchSize: batchSize}
}

func (e *expandOperator) Open(ctx context.Context) error {
	return e.input.Open(ctx)
}

func (e *expandOperator) Next(ctx context.Context) (Batch, error) {
	for len(e.pending) < e.batchSize {
		if e.done {
			break
		}
		if err := checkDeadline(ctx); err != nil {
			return nil, err
		}
		inBatch, err := e.input.Next(ctx)
		if err != nil {
			return nil, err
		}
		if inBatch == nil {
			e.done = true
			break
		}
		for _, row := range inBatch {
			b, ok := row[e.from]
			if !ok {
				continue
			}
			adj, err := e.neighbors(b.Vertex)
			if err != nil {
				return nil, err
			}
			for _, a := range adj {
				out := row.Clone()
				out[e.toAs] = VertexBinding(a.Neighbor)
				e.pending = append(e.pending, out)
			}
		}
	}
	if len(e.pending) == 0 {
		return nil, nil
	}
	end := e.batchSize
	if end > len(e.pending) {
		end = len(e.pending)
	}
	out := e.pending[:end]
	e.pending = e.pending[end:]
	return out, nil
}

func (e *expandOperator) neighbors(vertexID types.ID) ([]graphview.AdjacentEdge, error) {
	switch e.dir {
	case graphview.DirOut:
		return e.view.OutEdges(vertexID, e.edgeLabel)
	case graphview.DirIn:
		return e.view.InEdges(vertexID, e.edgeLabel)
	default:
		out, err := e.view.OutEdges(vertexID, e.edgeLabel)
		if err != nil {
			return nil, err
		}
		in, err := e.view.InEdges(vertexID, e.edgeLabel)
		if err != nil {
			return nil, err
		}
		return append(out, in...), nil
	}
}

func (e *expandOperator) Close() error { return e.input.Close() }
