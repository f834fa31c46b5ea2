package planner

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"

	"github.com/graphd/graphd/pkg/metrics"
	"github.com/graphd/graphd/pkg/types"
)

// logicalKey renders a logical plan tree into a deterministic string, the
// same style PhysicalNode.canonical uses for PhysicalPlan.Hash, so
// PlanCache can key on a pre-lowering hash of the request rather than
// re-running Lower to find out whether it's seen this plan before.
func logicalKey(n LogicalNode) string {
	switch v := n.(type) {
	case NodeScan:
		return fmt.Sprintf("NodeScan(%s,%s)", v.Label, v.As)
	case IndexScan:
		return fmt.Sprintf("IndexScan(%s,%s,%s,%s,%s)", v.Label, v.Property, v.Op, v.Value.String(), v.As)
	case Expand:
		return fmt.Sprintf("Expand(%s,%s,%d,%s,%s)", v.From, v.EdgeLabel, v.Direction, v.ToAs, logicalKey(v.Input))
	case Filter:
		return fmt.Sprintf("Filter(%s,%s)", canonicalExpr(v.Predicate), logicalKey(v.Input))
	case Join:
		conds := make([]string, len(v.On))
		for i, c := range v.On {
			conds[i] = fmt.Sprintf("%s.%s=%s.%s", c.Left.Var, c.Left.Field, c.Right.Var, c.Right.Field)
		}
		return fmt.Sprintf("Join(%s,[%s],%s,%s)", v.How, strings.Join(conds, ";"), logicalKey(v.Left), logicalKey(v.Right))
	case Project:
		return fmt.Sprintf("Project([%s],%s)", strings.Join(v.Cols, ","), logicalKey(v.Input))
	case Distinct:
		return fmt.Sprintf("Distinct(%s)", logicalKey(v.Input))
	case Group:
		aggs := make([]string, len(v.Aggregates))
		for i, a := range v.Aggregates {
			aggs[i] = fmt.Sprintf("%s(%s)as%s", a.Func, canonicalExpr(a.Arg), a.As)
		}
		return fmt.Sprintf("Group([%s],[%s],%s)", strings.Join(v.Keys, ","), strings.Join(aggs, ";"), logicalKey(v.Input))
	case Sort:
		keys := make([]string, len(v.Keys))
		for i, k := range v.Keys {
			keys[i] = fmt.Sprintf("%s:%v", k.Col, k.Desc)
		}
		return fmt.Sprintf("Sort([%s],%s)", strings.Join(keys, ","), logicalKey(v.Input))
	case Limit:
		return fmt.Sprintf("Limit(%d,%s)", v.N, logicalKey(v.Input))
	default:
		return "?"
	}
}

// PlanCache memoizes Lower by the logical plan's structural key, so a
// repeatedly-issued query (the common case for a long-lived prepared
// statement or a hot path in a larger query) pays Lower's cost-based
// search once (§4.4, §8 property 9: "plan-hash reproducible across
// runs" implies the same logical input always lowers to the same
// PhysicalPlan, which is exactly what makes memoizing it safe). The key
// covers the logical tree only: the catalog and stats passed to Lower are
// not part of it, so a cached plan is returned unchanged after either
// changes.
type PlanCache struct {
	mu    sync.RWMutex
	plans map[[32]byte]*PhysicalPlan
}

// NewPlanCache creates an empty cache.
func NewPlanCache() *PlanCache {
	return &PlanCache{plans: make(map[[32]byte]*PhysicalPlan)}
}

// Lower returns the cached PhysicalPlan for logical's structural key if
// one exists, recording a cache hit; otherwise it calls Lower, caches the
// result, and records a miss.
func (c *PlanCache) Lower(logical LogicalNode, catalog *types.Catalog, stats Stats) (*PhysicalPlan, error) {
	key := sha256.Sum256([]byte(logicalKey(logical)))

	c.mu.RLock()
	plan, ok := c.plans[key]
	c.mu.RUnlock()
	if ok {
		metrics.PlannerPlanCacheHitsTotal.Inc()
		return plan, nil
	}

	plan, err := Lower(logical, catalog, stats)
	if err != nil {
		return nil, err
	}
	metrics.PlannerPlanCacheMissesTotal.Inc()

	c.mu.Lock()
	c.plans[key] = plan
	c.mu.Unlock()
	return plan, nil
}
