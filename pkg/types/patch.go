package types

// PatchOpKind enumerates the primitive mutation ops a Patch is built from
// (§3.1).
type PatchOpKind string

const (
	OpAddVertex     PatchOpKind = "add_vertex"
	OpAddEdge       PatchOpKind = "add_edge"
	OpDeleteVertex  PatchOpKind = "delete_vertex"
	OpDeleteEdge    PatchOpKind = "delete_edge"
	OpSetProperty   PatchOpKind = "set_property"
	OpRelink        PatchOpKind = "relink"
)

// PatchOp is one primitive operation inside a Patch. Exactly the fields
// relevant to Kind are populated; this mirrors the wire shape in §6.1
// (`adds`, `dels`, `updates.props`, `updates.relink`).
type PatchOp struct {
	Kind PatchOpKind

	// OpAddVertex
	Vertex *Vertex
	// OpAddEdge
	Edge *Edge
	// OpDeleteVertex, OpDeleteEdge
	EntityID ID
	// OpSetProperty
	PropEntityID ID
	PropIsEdge   bool
	PropKey      string
	PropValue    Value
	PropTombstone bool
	// OpRelink
	RelinkEdge ID
	RelinkFrom *ID
	RelinkTo   *ID
}

// Patch is the atomic unit of change a transaction stages and a commit
// durably records (§3.1, §4.2); it is applied only once, at commit time.
// A direct Stage call commits one Patch; a strategy run commits one Patch
// per successful rule application.
type Patch struct {
	Ops []PatchOp
}

// AddVertex appends an add_vertex op.
func (p *Patch) AddVertex(v *Vertex) {
	p.Ops = append(p.Ops, PatchOp{Kind: OpAddVertex, Vertex: v})
}

// AddEdge appends an add_edge op.
func (p *Patch) AddEdge(e *Edge) {
	p.Ops = append(p.Ops, PatchOp{Kind: OpAddEdge, Edge: e})
}

// DeleteVertex appends a delete_vertex op.
func (p *Patch) DeleteVertex(id ID) {
	p.Ops = append(p.Ops, PatchOp{Kind: OpDeleteVertex, EntityID: id})
}

// DeleteEdge appends a delete_edge op.
func (p *Patch) DeleteEdge(id ID) {
	p.Ops = append(p.Ops, PatchOp{Kind: OpDeleteEdge, EntityID: id})
}

// SetProperty appends a set_property op. A tombstone write (removing the
// property) is requested by passing tombstone=true; value is ignored then.
func (p *Patch) SetProperty(entity ID, isEdge bool, key string, value Value, tombstone bool) {
	p.Ops = append(p.Ops, PatchOp{
		Kind:          OpSetProperty,
		PropEntityID:  entity,
		PropIsEdge:    isEdge,
		PropKey:       key,
		PropValue:     value,
		PropTombstone: tombstone,
	})
}

// Relink appends a relink op rewriting one or both endpoints of edge.
func (p *Patch) Relink(edge ID, from, to *ID) {
	p.Ops = append(p.Ops, PatchOp{Kind: OpRelink, RelinkEdge: edge, RelinkFrom: from, RelinkTo: to})
}

// Append concatenates other's ops onto p; a nil other is a no-op.
func (p *Patch) Append(other *Patch) {
	if other == nil {
		return
	}
	p.Ops = append(p.Ops, other.Ops...)
}

// Empty reports whether the patch has no operations.
func (p *Patch) Empty() bool {
	return p == nil || len(p.Ops) == 0
}
