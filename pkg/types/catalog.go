package types

// Catalog is the declarative schema (§3.1): permitted labels and their
// property types, permitted edge-label endpoint pairs, index declarations,
// cross-entity invariants, and the whitelist of externs (predicates and
// measures) that rules/strategies may reference (§4.4, §4.5, §6.1).
type Catalog struct {
	Labels      map[string]*LabelSchema
	EdgeLabels  map[string]*EdgeLabelSchema
	Indexes     []IndexDecl
	Invariants  []InvariantDecl
	Externs     ExternSet
}

// LabelSchema constrains the properties a vertex carrying this label may
// have, and records a delete_vertex policy in OnDelete (§3.4, §9), which
// pkg/mvcc does not read (see OnDeletePolicy).
type LabelSchema struct {
	Name       string
	Properties map[string]ValueKind
	OnDelete   OnDeletePolicy
}

// EdgeLabelSchema constrains the (source-label, target-label) pairs an
// edge of this label may connect, and its own property types.
type EdgeLabelSchema struct {
	Name            string
	AllowedPairs    []LabelPair
	Properties      map[string]ValueKind
	ForbidParallel  bool // catalog invariant: no parallel edges of this label between the same pair
}

// LabelPair is an ordered (source, target) label pair.
type LabelPair struct {
	Source string
	Target string
}

// IndexKind enumerates the index declarations the catalog may advertise.
type IndexKind string

const (
	IndexPrimaryKey    IndexKind = "primary_key"
	IndexLabelScan     IndexKind = "label_scan"
	IndexPropertyPoint IndexKind = "property_point"
	IndexPropertyRange IndexKind = "property_range"
)

// IndexDecl declares one index over a label's property.
type IndexDecl struct {
	Kind     IndexKind
	Label    string
	Property string // empty for IndexLabelScan
}

// InvariantKind enumerates the cross-entity invariants a catalog may state
// beyond per-label property typing (§3.1's "no parallel edges" example).
type InvariantKind string

const (
	InvariantNoParallelEdges InvariantKind = "no_parallel_edges"
)

// InvariantDecl is one catalog-level invariant.
type InvariantDecl struct {
	Kind  InvariantKind
	Label string
}

// ExternSet is the whitelist of extern predicates and measures (§4.4,
// §4.5, §6.1). planner.ValidateExterns checks a Filter's extern calls
// against it during Lower (gerrs.Validation). Rule guards and strategy
// measures are not checked against it; they are looked up only in the
// executor.ExternRegistry passed in when they run.
type ExternSet struct {
	Predicates []string
	Measures   []string
}

// HasPredicate reports whether name is an advertised extern predicate.
func (e ExternSet) HasPredicate(name string) bool {
	for _, p := range e.Predicates {
		if p == name {
			return true
		}
	}
	return false
}

// HasMeasure reports whether name is an advertised extern measure.
func (e ExternSet) HasMeasure(name string) bool {
	for _, m := range e.Measures {
		if m == name {
			return true
		}
	}
	return false
}

// IndexesFor returns the index declarations over label.
func (c *Catalog) IndexesFor(label string) []IndexDecl {
	var out []IndexDecl
	for _, idx := range c.Indexes {
		if idx.Label == label {
			out = append(out, idx)
		}
	}
	return out
}

// EdgeAllowed reports whether an edge of label between a source carrying
// srcLabel and a target carrying dstLabel is permitted by the catalog.
func (s *EdgeLabelSchema) EdgeAllowed(srcLabel, dstLabel string) bool {
	if len(s.AllowedPairs) == 0 {
		return true // no declared restriction
	}
	for _, p := range s.AllowedPairs {
		if p.Source == srcLabel && p.Target == dstLabel {
			return true
		}
	}
	return false
}
