package types

// Rule is the tuple (L, K, R, NAC*, guards*) of §3.1/§4.5: L, K, R are
// small typed graphs; K is a subgraph of both L and R (the part preserved
// by the rewrite); NAC forbids certain extensions of a match; guards are
// named predicates over match variables.
type Rule struct {
	Name   string
	L      RuleGraph
	K      KGraph
	R      RuleGraph
	NAC    []RuleGraph
	Guards []Guard
}

// RuleNode is one typed node in a rule's L/R graph, keyed by a
// rule-local identifier (not a stable ID — rule graphs are patterns, not
// graph instances).
type RuleNode struct {
	VarID string
	Type  string // vertex label this node must match
	Props map[string]Value
}

// RuleEdge is one typed edge in a rule's L/R graph.
type RuleEdge struct {
	VarID  string
	Source string // RuleNode.VarID
	Target string
	Type   string
}

// RuleGraph is a small pattern graph used for L, R, and each NAC (§3.1,
// §6.1).
type RuleGraph struct {
	Nodes []RuleNode
	Edges []RuleEdge
}

// KNode/KEdge reference L/R nodes and edges by VarID only — K is the
// interface graph shared between L and R, so it carries no type/property
// constraints of its own (§3.1: "K ⊆ L and K ⊆ R as subgraphs").
type KNode struct{ VarID string }
type KEdge struct {
	Source string
	Target string
	Type   string
}

// KGraph is the interface subgraph preserved verbatim by a rewrite.
type KGraph struct {
	Nodes []KNode
	Edges []KEdge
}

// Guard is a named predicate, drawn from the catalog's extern whitelist,
// evaluated against a match's bindings (§3.1, §4.5).
type Guard struct {
	Ref  string
	Args []string // match VarIDs (or literal arguments, resolved by the extern)
}

// NodeVarIDs returns the VarIDs of every node in g.
func (g RuleGraph) NodeVarIDs() []string {
	out := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		out[i] = n.VarID
	}
	return out
}

// Minus returns the nodes/edges of l that are not present (by VarID) in k —
// this is L∖K, the part of the match a rewrite deletes (§4.5).
func (l RuleGraph) Minus(k KGraph) RuleGraph {
	keepNode := make(map[string]bool, len(k.Nodes))
	for _, n := range k.Nodes {
		keepNode[n.VarID] = true
	}
	keepEdge := make(map[[3]string]bool, len(k.Edges))
	for _, e := range k.Edges {
		keepEdge[[3]string{e.Source, e.Target, e.Type}] = true
	}
	var out RuleGraph
	for _, n := range l.Nodes {
		if !keepNode[n.VarID] {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, e := range l.Edges {
		if !keepEdge[[3]string{e.Source, e.Target, e.Type}] {
			out.Edges = append(out.Edges, e)
		}
	}
	return out
}
