package executor

import (
	"context"

	"github.com/graphd/graphd/pkg/graphview"
	"github.com/graphd/graphd/pkg/planner"
	"github.com/graphd/graphd/pkg/types"
)

// filterOperator drives PhysicalFilter: evaluates Predicate against each
// input row and passes through only rows for which it's a true Bool.
type filterOperator struct {
	view      *graphview.View
	input     Operator
	predicate planner.Expr
	externs   ExternRegistry
}

func (f *filterOperator) Open(ctx context.Context) error { return f.input.Open(ctx) }

func (f *filterOperator) Next(ctx context.Context) (Batch, error) {
	for {
		in, err := f.input.Next(ctx)
		if err != nil {
			return nil, err
		}
		if in == nil {
			return nil, nil
		}
		var out Batch
		for _, row := range in {
			v, err := Eval(f.predicate, row, f.view, f.externs)
			if err != nil {
				return nil, err
			}
			if v.Kind == types.KindBool && v.Bool {
				out = append(out, row)
			}
		}
		if len(out) > 0 {
			return out, nil
		}
		// Keep pulling until we have rows to return or the input is
		// exhausted, so an all-false batch doesn't look like EOF.
	}
}

func (f *filterOperator) Close() error { return f.input.Close() }

// projectOperator drives PhysicalProject: rebuilds each row keeping only
// Cols' bindings.
type projectOperator struct {
	input Operator
	cols  []string
}

func (p *projectOperator) Open(ctx context.Context) error { return p.input.Open(ctx) }

func (p *projectOperator) Next(ctx context.Context) (Batch, error) {
	in, err := p.input.Next(ctx)
	if err != nil || in == nil {
		return in, err
	}
	out := make(Batch, 0, len(in))
	for _, row := range in {
		projected := make(Row, len(p.cols))
		for _, c := range p.cols {
			if b, ok := row[c]; ok {
				projected[c] = b
			}
		}
		out = append(out, projected)
	}
	return out, nil
}

func (p *projectOperator) Close() error { return p.input.Close() }

// distinctOperator drives PhysicalDistinct: suppresses rows whose encoded
// binding set was already seen. Kept in memory; above the configured
// budget a real deployment would spill this the same way group/sort do,
// but distinct sets in this engine's target workloads (label/identity
// dedup) are small enough that it's out of scope here.
type distinctOperator struct {
	input Operator
	seen  map[string]bool
}

func (d *distinctOperator) Open(ctx context.Context) error {
	d.seen = map[string]bool{}
	return d.input.Open(ctx)
}

func (d *distinctOperator) Next(ctx context.Context) (Batch, error) {
	for {
		in, err := d.input.Next(ctx)
		if err != nil {
			return nil, err
		}
		if in == nil {
			return nil, nil
		}
		var out Batch
		for _, row := range in {
			key := rowKey(row)
			if d.seen[key] {
				continue
			}
			d.seen[key] = true
			out = append(out, row)
		}
		if len(out) > 0 {
			return out, nil
		}
	}
}

func (d *distinctOperator) Close() error { return d.input.Close() }

// limitOperator drives PhysicalLimit: passes through rows until N have
// been emitted, then reports exhaustion.
type limitOperator struct {
	input     Operator
	remaining int64
}

func (l *limitOperator) Open(ctx context.Context) error { return l.input.Open(ctx) }

func (l *limitOperator) Next(ctx context.Context) (Batch, error) {
	if l.remaining <= 0 {
		return nil, nil
	}
	in, err := l.input.Next(ctx)
	if err != nil || in == nil {
		return in, err
	}
	if int64(len(in)) > l.remaining {
		in = in[:l.remaining]
	}
	l.remaining -= int64(len(in))
	return in, nil
}

func (l *limitOperator) Close() error { return l.input.Close() }

// rowKey renders a Row into a stable string for set-membership purposes
// (Distinct, Group's hash-aggregation key; the hash join uses joinKey). Binding
// order follows a sorted variable-name walk so the same logical row always
// produces the same key regardless of map iteration order.
func rowKey(row Row) string {
	names := make([]string, 0, len(row))
	for k := range row {
		names = append(names, k)
	}
	sortStrings(names)
	var buf []byte
	for _, n := range names {
		b := row[n]
		buf = append(buf, n...)
		buf = append(buf, ':')
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

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
