package executor

import "github.com/graphd/graphd/pkg/types"

// BindingKind tags what a Row's bound variable holds.
type BindingKind uint8

const (
	BindVertex BindingKind = iota
	BindEdge
	BindValue
)

// Binding is the value a query variable is bound to: a vertex id, an edge
// id, or a scalar types.Value (produced by Project/Group).
type Binding struct {
	Kind   BindingKind
	Vertex types.ID
	Edge   types.ID
	Value  types.Value
}

func VertexBinding(id types.ID) Binding { return Binding{Kind: BindVertex, Vertex: id} }
func EdgeBinding(id types.ID) Binding   { return Binding{Kind: BindEdge, Edge: id} }
func ValueBinding(v types.Value) Binding { return Binding{Kind: BindValue, Value: v} }

// Row is one tuple of variable bindings flowing through the operator
// tree.
type Row map[string]Binding

// Clone returns a shallow copy of r, used whenever an operator must hand
// out a row while retaining its own (e.g. Expand extending one input row
// into several output rows).
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Batch is the unit of work operators pull through Next.
type Batch []Row

// DefaultBatchSize is the row-batch size used when a caller doesn't
// specify one.
const DefaultBatchSize = 256
