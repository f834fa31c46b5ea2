package rewrite

import (
	"context"

	"github.com/graphd/graphd/pkg/gerrs"
	"github.com/graphd/graphd/pkg/types"
)

// checkNACs reports whether match satisfies every one of rule.NAC: for
// each NAC, there must be no way to extend match's bindings to the NAC's
// added nodes/edges in the view (§4.5). Every node NAC.Nodes/NAC.Edges
// references that's also in L reuses match's existing binding; every
// added node is resolved by backtracking search rooted at the edges
// connecting it back into the already-bound pattern, which is the shape a
// NAC actually takes in practice ("forbid an additional incident edge/
// neighbor") rather than a second independent full-graph search.
func (m *Matcher) checkNACs(ctx context.Context, rule types.Rule, match Match) (bool, error) {
	for _, nac := range rule.NAC {
		extendable, err := m.nacExtendable(ctx, nac, match)
		if err != nil {
			return false, err
		}
		if extendable {
			return false, nil
		}
	}
	return true, nil
}

// nacExtendable reports whether nac can be extended from match's existing
// bindings: true means the forbidden pattern exists, so the NAC rules the
// candidate match out.
func (m *Matcher) nacExtendable(ctx context.Context, nac types.RuleGraph, match Match) (bool, error) {
	added := make([]types.RuleNode, 0, len(nac.Nodes))
	for _, n := range nac.Nodes {
		if _, inL := match.NodeBindings[n.VarID]; !inL {
			added = append(added, n)
		}
	}
	if len(added) == 0 {
		// NAC references only L-nodes: it's forbidding an edge that must
		// already be resolvable among bound vertices.
		return nacEdgesSatisfied(m, nac, match.NodeBindings), nil
	}
	bindings := map[string]types.ID{}
	for k, v := range match.NodeBindings {
		bindings[k] = v
	}
	ok, err := m.extendNAC(ctx, nac, added, bindings)
	return ok, err
}

// extendNAC tries to assign every node in added, recursively, consistent
// with nac.Edges; it reports success (the NAC pattern exists) on the
// first fully-consistent assignment found.
func (m *Matcher) extendNAC(ctx context.Context, nac types.RuleGraph, added []types.RuleNode, bindings map[string]types.ID) (bool, error) {
	if err := checkCtx(ctx); err != nil {
		return false, err
	}
	if len(added) == 0 {
		return nacEdgesSatisfied(m, nac, bindings), nil
	}
	target := added[0]
	rest := added[1:]

	candidates, err := m.candidatesFor(nac, target, bindings)
	if err != nil {
		return false, err
	}
	for _, c := range candidates {
		bindings[target.VarID] = c
		ok, err := m.extendNAC(ctx, nac, rest, bindings)
		if err != nil {
			delete(bindings, target.VarID)
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	delete(bindings, target.VarID)
	return false, nil
}

// candidatesFor enumerates vertices of target's label reachable from an
// already-bound neighbor via one of nac.Edges, so the search only walks
// the local neighborhood rather than scanning every vertex of the label.
func (m *Matcher) candidatesFor(nac types.RuleGraph, target types.RuleNode, bindings map[string]types.ID) ([]types.ID, error) {
	seen := map[types.ID]bool{}
	var out []types.ID
	for _, e := range nac.Edges {
		var anchor string
		var wantSource bool
		switch {
		case e.Target == target.VarID:
			anchor, wantSource = e.Source, true
		case e.Source == target.VarID:
			anchor, wantSource = e.Target, false
		default:
			continue
		}
		anchorID, ok := bindings[anchor]
		if !ok {
			continue
		}
		var adj []types.ID
		if wantSource {
			out2, err := m.View.OutEdges(anchorID, e.Type)
			if err != nil {
				return nil, err
			}
			for _, a := range out2 {
				adj = append(adj, a.Neighbor)
			}
		} else {
			in2, err := m.View.InEdges(anchorID, e.Type)
			if err != nil {
				return nil, err
			}
			for _, a := range in2 {
				adj = append(adj, a.Neighbor)
			}
		}
		for _, id := range adj {
			if seen[id] {
				continue
			}
			seen[id] = true
			if target.Type != "" {
				vtx, err := m.View.Vertex(id)
				if err != nil {
					if gerrs.Is(err, gerrs.NotFound) {
						continue
					}
					return nil, err
				}
				if !vtx.HasLabel(target.Type) {
					continue
				}
			}
			out = append(out, id)
		}
	}
	return out, nil
}

// nacEdgesSatisfied reports whether every nac.Edges connecting
// fully-bound endpoints actually exists in the view.
func nacEdgesSatisfied(m *Matcher, nac types.RuleGraph, bindings map[string]types.ID) bool {
	for _, e := range nac.Edges {
		src, srcOK := bindings[e.Source]
		dst, dstOK := bindings[e.Target]
		if !srcOK || !dstOK {
			return false
		}
		adj, err := m.View.OutEdges(src, e.Type)
		if err != nil {
			return false
		}
		found := false
		for _, a := range adj {
			if a.Neighbor == dst {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func checkCtx(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return gerrs.Wrap(gerrs.Capacity, ctx.Err(), "rewrite.checkNACs")
	default:
		return nil
	}
}
