package types

// StrategyOp enumerates the strategy-calculus terms of §4.5.
type StrategyOp string

const (
	StratOnce     StrategyOp = "once"
	StratExhaust  StrategyOp = "exhaust"
	StratWhile    StrategyOp = "while"
	StratSeq      StrategyOp = "seq"
	StratChoice   StrategyOp = "choice"
	StratPriority StrategyOp = "priority"
)

// MatchOrder is the tie-break used when several matches exist for a rule
// (§4.5).
type MatchOrder string

const (
	OrderTopDown  MatchOrder = "topdown"
	OrderBottomUp MatchOrder = "bottomup"
	OrderLeftmost MatchOrder = "leftmost"
	OrderAny      MatchOrder = "any"
)

// Strategy is an algebraic term over the rule set (§3.1, §4.5). Exactly
// the fields relevant to Op are populated.
//
// priority and choice are intentionally represented by the same struct
// shape: §9's open question ("whether priority differs observably from
// choice") is resolved by collapsing them at the type level. Documented
// is the only distinguishing field, and the interpreter (pkg/rewrite)
// never reads it — it exists purely so a plan-explain/diagnostic layer can
// tell a reader "this choice was declared as priority".
type Strategy struct {
	Op StrategyOp

	// StratOnce
	Rule  string
	Order MatchOrder

	// StratExhaust
	Measure string

	// StratWhile
	Pred string

	// StratSeq, StratChoice, StratPriority
	Sub []Strategy

	// StratChoice, StratPriority
	Documented bool
}
