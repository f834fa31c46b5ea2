package executor

import (
	"bytes"
	"strings"

	"github.com/graphd/graphd/pkg/gerrs"
	"github.com/graphd/graphd/pkg/graphview"
	"github.com/graphd/graphd/pkg/planner"
	"github.com/graphd/graphd/pkg/types"
)

// ExternFunc implements one catalog-advertised extern predicate or
// measure (§4.4, §4.5, §6.1). The core only validates extern names
// against the catalog whitelist at lowering time (pkg/planner); the
// actual implementation is supplied by the embedder through an
// ExternRegistry, since the core has no built-in notion of what
// "externally computed" means.
type ExternFunc func(args []types.Value) (types.Value, error)

// ExternRegistry maps extern names to their implementations.
type ExternRegistry map[string]ExternFunc

// Eval evaluates e against row, resolving graph-dependent built-ins
// (degree_in/degree_out) through view and externs through registry.
// Evaluation errors are gerrs.Invariant-adjacent typed errors that abort
// the whole plan, per §4.4/§7 — never gerrs.Validation, which is reserved
// for plan-lowering-time mistakes.
func Eval(e planner.Expr, row Row, view *graphview.View, externs ExternRegistry) (types.Value, error) {
	switch n := e.(type) {
	case planner.Const:
		return n.Value, nil

	case planner.ColumnRef:
		b, ok := row[n.Var]
		if !ok {
			return types.Value{}, gerrs.New(gerrs.Invariant, "unbound variable %q", n.Var)
		}
		if n.Field == "" {
			if b.Kind != BindValue {
				return types.Value{}, gerrs.New(gerrs.Invariant, "variable %q is not a scalar", n.Var)
			}
			return b.Value, nil
		}
		return resolveField(b, n.Field, view)

	case planner.FuncCall:
		return evalFuncCall(n, row, view, externs)

	case planner.ExternCall:
		fn, ok := externs[n.Name]
		if !ok {
			return types.Value{}, gerrs.New(gerrs.Invariant, "extern %q has no registered implementation", n.Name)
		}
		args, err := evalArgs(n.Args, row, view, externs)
		if err != nil {
			return types.Value{}, err
		}
		return fn(args)
	}
	return types.Value{}, gerrs.New(gerrs.Invariant, "unknown expression %T", e)
}

// identityField is the pseudo-property pkg/rewrite's match-reconciliation
// predicates compare two node/edge bindings by: it's never a real catalog
// property, so it can't collide with anything Vertex/Edge.Properties
// holds.
const identityField = "$id"

func resolveField(b Binding, field string, view *graphview.View) (types.Value, error) {
	if field == identityField {
		switch b.Kind {
		case BindVertex:
			return types.BytesValue(b.Vertex[:]), nil
		case BindEdge:
			return types.BytesValue(b.Edge[:]), nil
		default:
			return types.Value{}, gerrs.New(gerrs.Invariant, "%s has no identity", field)
		}
	}
	switch b.Kind {
	case BindVertex:
		v, err := view.Vertex(b.Vertex)
		if err != nil {
			return types.Value{}, err
		}
		val, ok := v.Properties[field]
		if !ok {
			return types.Null(), nil
		}
		return val, nil
	case BindEdge:
		e, err := view.Edge(b.Edge)
		if err != nil {
			return types.Value{}, err
		}
		val, ok := e.Properties[field]
		if !ok {
			return types.Null(), nil
		}
		return val, nil
	}
	return types.Value{}, gerrs.New(gerrs.Invariant, "scalar binding has no field %q", field)
}

func evalArgs(args []planner.Expr, row Row, view *graphview.View, externs ExternRegistry) ([]types.Value, error) {
	out := make([]types.Value, len(args))
	for i, a := range args {
		v, err := Eval(a, row, view, externs)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func evalFuncCall(n planner.FuncCall, row Row, view *graphview.View, externs ExternRegistry) (types.Value, error) {
	switch n.Name {
	case "degree_in", "degree_out":
		return evalDegree(n, row, view)
	case "length":
		args, err := evalArgs(n.Args, row, view, externs)
		if err != nil {
			return types.Value{}, err
		}
		return evalLength(args[0])
	case "+", "-", "*", "/":
		args, err := evalArgs(n.Args, row, view, externs)
		if err != nil {
			return types.Value{}, err
		}
		return evalArith(n.Name, args[0], args[1])
	case "==", "!=", "<", "<=", ">", ">=":
		args, err := evalArgs(n.Args, row, view, externs)
		if err != nil {
			return types.Value{}, err
		}
		return evalCompare(n.Name, args[0], args[1])
	case "prefix":
		args, err := evalArgs(n.Args, row, view, externs)
		if err != nil {
			return types.Value{}, err
		}
		return types.Bool(strings.HasPrefix(args[0].Str, args[1].Str)), nil
	case "pattern_match":
		args, err := evalArgs(n.Args, row, view, externs)
		if err != nil {
			return types.Value{}, err
		}
		return types.Bool(globMatch(args[1].Str, args[0].Str)), nil
	}
	return types.Value{}, gerrs.New(gerrs.Invariant, "unknown builtin %q", n.Name)
}

func evalDegree(n planner.FuncCall, row Row, view *graphview.View) (types.Value, error) {
	if len(n.Args) < 1 {
		return types.Value{}, gerrs.New(gerrs.Invariant, "%s requires a vertex argument", n.Name)
	}
	col, ok := n.Args[0].(planner.ColumnRef)
	if !ok || col.Field != "" {
		return types.Value{}, gerrs.New(gerrs.Invariant, "%s requires a bound vertex variable", n.Name)
	}
	b, ok := row[col.Var]
	if !ok || b.Kind != BindVertex {
		return types.Value{}, gerrs.New(gerrs.Invariant, "%s: %q is not a bound vertex", n.Name, col.Var)
	}
	label := ""
	if len(n.Args) > 1 {
		if c, ok := n.Args[1].(planner.Const); ok {
			label = c.Value.Str
		}
	}
	dir := graphview.DirOut
	if n.Name == "degree_in" {
		dir = graphview.DirIn
	}
	deg, err := view.Degree(b.Vertex, label, dir)
	if err != nil {
		return types.Value{}, err
	}
	return types.Int64(int64(deg)), nil
}

func evalLength(v types.Value) (types.Value, error) {
	switch v.Kind {
	case types.KindString:
		return types.Int64(int64(len(v.Str))), nil
	case types.KindBytes:
		return types.Int64(int64(len(v.Bytes))), nil
	case types.KindList:
		return types.Int64(int64(len(v.List))), nil
	default:
		return types.Value{}, gerrs.New(gerrs.Invariant, "length: unsupported value kind")
	}
}

func evalArith(op string, a, b types.Value) (types.Value, error) {
	if a.Kind == types.KindFloat64 || b.Kind == types.KindFloat64 {
		af, bf := numericFloat(a), numericFloat(b)
		switch op {
		case "+":
			return types.Float64(af + bf), nil
		case "-":
			return types.Float64(af - bf), nil
		case "*":
			return types.Float64(af * bf), nil
		case "/":
			if bf == 0 {
				return types.Value{}, gerrs.New(gerrs.Invariant, "division by zero")
			}
			return types.Float64(af / bf), nil
		}
	}
	ai, bi := a.Int64, b.Int64
	switch op {
	case "+":
		return types.Int64(ai + bi), nil
	case "-":
		return types.Int64(ai - bi), nil
	case "*":
		return types.Int64(ai * bi), nil
	case "/":
		if bi == 0 {
			return types.Value{}, gerrs.New(gerrs.Invariant, "division by zero")
		}
		return types.Int64(ai / bi), nil
	}
	return types.Value{}, gerrs.New(gerrs.Invariant, "unknown arithmetic op %q", op)
}

func numericFloat(v types.Value) float64 {
	if v.Kind == types.KindFloat64 {
		return v.Float64
	}
	return float64(v.Int64)
}

func evalCompare(op string, a, b types.Value) (types.Value, error) {
	c := compareValues(a, b)
	switch op {
	case "==":
		return types.Bool(c == 0), nil
	case "!=":
		return types.Bool(c != 0), nil
	case "<":
		return types.Bool(c < 0), nil
	case "<=":
		return types.Bool(c <= 0), nil
	case ">":
		return types.Bool(c > 0), nil
	case ">=":
		return types.Bool(c >= 0), nil
	}
	return types.Value{}, gerrs.New(gerrs.Invariant, "unknown comparison op %q", op)
}

// compareValues orders two values of the same dynamic kind: numbers
// numerically (int64 and float64 both as float64), strings and bytes
// lexicographically, false before true. Null, list and map values compare
// equal (0); values are only ever compared when the planner/query layer
// already established they're comparable.
func compareValues(a, b types.Value) int {
	if a.Kind == types.KindInt64 || a.Kind == types.KindFloat64 {
		af, bf := numericFloat(a), numericFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	if a.Kind == types.KindString {
		return strings.Compare(a.Str, b.Str)
	}
	if a.Kind == types.KindBytes {
		return bytes.Compare(a.Bytes, b.Bytes)
	}
	if a.Kind == types.KindBool {
		if a.Bool == b.Bool {
			return 0
		}
		if !a.Bool {
			return -1
		}
		return 1
	}
	return 0
}

// globMatch implements pattern_match's "pattern over path segments":
// segments are '/'-delimited and pattern must have as many segments as s.
// A segment that is exactly '*' matches any one segment; every other
// segment must match literally ('*' inside a longer segment is literal).
func globMatch(pattern, s string) bool {
	pSegs := strings.Split(pattern, "/")
	sSegs := strings.Split(s, "/")
	if len(pSegs) != len(sSegs) {
		return false
	}
	for i, p := range pSegs {
		if p == "*" {
			continue
		}
		if p != sSegs[i] {
			return false
		}
	}
	return true
}
