package rewrite

import (
	"github.com/graphd/graphd/pkg/gerrs"
	"github.com/graphd/graphd/pkg/types"
)

// ApplyMatch computes the Patch a rule application produces against
// match: L∖K is deleted, K is preserved, R∖K is added (§4.5). It first
// checks the gluing condition — deleting a node in L∖K must not leave
// dangling edges unless those edges are also being deleted by the rule —
// and returns a gerrs.Invariant error (the application fails locally, not
// the enclosing strategy) if it's violated.
func (m *Matcher) ApplyMatch(rule types.Rule, match Match) (*types.Patch, error) {
	deleted := rule.L.Minus(rule.K)

	deletedEdgeIDs := make(map[types.ID]bool, len(deleted.Edges))
	for _, e := range deleted.Edges {
		if id, ok := match.EdgeBindings[e.VarID]; ok {
			deletedEdgeIDs[id] = true
		}
	}
	for _, n := range deleted.Nodes {
		vid, ok := match.NodeBindings[n.VarID]
		if !ok {
			return nil, gerrs.New(gerrs.Validation, "rule %q: match has no binding for L-node %q", rule.Name, n.VarID)
		}
		if err := checkGluing(m, rule, vid, deletedEdgeIDs); err != nil {
			return nil, err
		}
	}

	var patch types.Patch
	for _, e := range deleted.Edges {
		if id, ok := match.EdgeBindings[e.VarID]; ok {
			patch.DeleteEdge(id)
		}
	}
	for _, n := range deleted.Nodes {
		patch.DeleteVertex(match.NodeBindings[n.VarID])
	}

	added := rule.R.Minus(rule.K)
	newNodeIDs := make(map[string]types.ID, len(added.Nodes))
	for _, n := range added.Nodes {
		id := types.NewID()
		newNodeIDs[n.VarID] = id
		patch.AddVertex(&types.Vertex{ID: id, Labels: []string{n.Type}, Properties: n.Props})
	}
	resolve := func(varID string) (types.ID, bool) {
		if id, ok := match.NodeBindings[varID]; ok {
			return id, true
		}
		id, ok := newNodeIDs[varID]
		return id, ok
	}
	for _, e := range added.Edges {
		src, srcOK := resolve(e.Source)
		dst, dstOK := resolve(e.Target)
		if !srcOK || !dstOK {
			return nil, gerrs.New(gerrs.Validation, "rule %q: R-edge %q references an unbound node var", rule.Name, e.VarID)
		}
		patch.AddEdge(&types.Edge{ID: types.NewID(), Source: src, Target: dst, Label: e.Type})
	}
	return &patch, nil
}

// checkGluing verifies every edge actually incident to vid in the view is
// accounted for by the rule's own deletions; an edge incident to vid that
// the rule never named would otherwise dangle (or be silently deleted
// without the rule's knowledge) once vid is removed.
func checkGluing(m *Matcher, rule types.Rule, vid types.ID, deletedEdgeIDs map[types.ID]bool) error {
	out, err := m.View.OutEdges(vid, "")
	if err != nil {
		return err
	}
	in, err := m.View.InEdges(vid, "")
	if err != nil {
		return err
	}
	for _, a := range append(out, in...) {
		if !deletedEdgeIDs[a.EdgeID] {
			return gerrs.New(gerrs.Invariant, "rule %q: gluing condition violated, vertex %s has an incident edge not deleted by the rule", rule.Name, vid.String())
		}
	}
	return nil
}
