package planner

import (
	"testing"

	"github.com/graphd/graphd/pkg/graphview"
	"github.com/graphd/graphd/pkg/types"
	"github.com/stretchr/testify/require"
)

type fakeStats struct {
	counts  map[string]uint64
	fanOuts map[string]float64
}

func (f fakeStats) CountLabel(label string) (uint64, error) { return f.counts[label], nil }
func (f fakeStats) AvgFanOut(label, edgeLabel string, dir graphview.Direction) (float64, error) {
	return f.fanOuts[label+"/"+edgeLabel], nil
}

func personCatalog() *types.Catalog {
	return &types.Catalog{
		Labels: map[string]*types.LabelSchema{
			"Person": {Name: "Person", Properties: map[string]types.ValueKind{"email": types.KindString}},
		},
		Indexes: []types.IndexDecl{
			{Kind: types.IndexPropertyPoint, Label: "Person", Property: "email"},
		},
	}
}

// TestLowerIndexScanRewrite is spec.md §8's S5 scenario: a Filter over an
// indexed property must lower to an IndexScan, and the resulting plan
// hash must be stable across repeated lowerings of the same logical plan.
func TestLowerIndexScanRewrite(t *testing.T) {
	stats := fakeStats{counts: map[string]uint64{"Person": 100}}
	catalog := personCatalog()

	logical := Filter{
		Predicate: FuncCall{Name: "==", Args: []Expr{ColumnRef{Var: "p", Field: "email"}, Const{Value: types.String("a@b")}}},
		Input:     NodeScan{Label: "Person", As: "p"},
	}

	plan1, err := Lower(logical, catalog, stats)
	require.NoError(t, err)
	idx, ok := plan1.Root.(PhysicalIndexScan)
	require.True(t, ok, "expected Filter(NodeScan) to rewrite into IndexScan, got %T", plan1.Root)
	require.Equal(t, "Person", idx.Label)
	require.Equal(t, "email", idx.Property)
	require.Equal(t, OpEq, idx.Op)

	plan2, err := Lower(logical, catalog, stats)
	require.NoError(t, err)
	require.Equal(t, plan1.Hash, plan2.Hash)
}

func TestLowerUnknownExternRejected(t *testing.T) {
	stats := fakeStats{counts: map[string]uint64{"Person": 10}}
	catalog := personCatalog()

	logical := Filter{
		Predicate: ExternCall{Name: "not_advertised"},
		Input:     NodeScan{Label: "Person", As: "p"},
	}
	_, err := Lower(logical, catalog, stats)
	require.Error(t, err)
}

func TestLowerJoinPicksIndexNestedLoopWhenAvailable(t *testing.T) {
	stats := fakeStats{counts: map[string]uint64{"Person": 1000, "Org": 5}}
	catalog := personCatalog()

	logical := Join{
		How:  JoinInner,
		Left: NodeScan{Label: "Person", As: "p"},
		Right: IndexScan{Label: "Org", Property: "name", Op: OpEq, Value: types.String("acme"), As: "o"},
		On:   []JoinCond{{Left: ColumnRef{Var: "p", Field: "org_id"}, Right: ColumnRef{Var: "o", Field: "id"}}},
	}
	plan, err := Lower(logical, catalog, stats)
	require.NoError(t, err)
	join, ok := plan.Root.(PhysicalJoin)
	require.True(t, ok)
	require.Equal(t, StrategyIndexNestedLoop, join.Strategy)
}

func TestLowerExpandPicksSmallerFrontier(t *testing.T) {
	stats := fakeStats{
		counts:  map[string]uint64{"Person": 100},
		fanOuts: map[string]float64{"p/FOLLOWS": 4},
	}
	catalog := personCatalog()

	logical := Expand{From: "p", EdgeLabel: "FOLLOWS", Direction: graphview.DirBoth, ToAs: "q",
		Input: NodeScan{Label: "Person", As: "p"}}
	plan, err := Lower(logical, catalog, stats)
	require.NoError(t, err)
	expand, ok := plan.Root.(PhysicalExpand)
	require.True(t, ok)
	require.NotEqual(t, graphview.DirBoth, expand.Direction)
}
