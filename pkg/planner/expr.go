package planner

import (
	"github.com/graphd/graphd/pkg/gerrs"
	"github.com/graphd/graphd/pkg/types"
)

// Expr is a predicate/projection expression (§4.4): column references,
// constants, a small built-in function set, and named externs drawn from
// the catalog's whitelist.
type Expr interface{ isExpr() }

// ColumnRef references a bound variable, or one of its properties when
// Field is non-empty (e.g. "n" vs "n.email").
type ColumnRef struct {
	Var   string
	Field string
}

// Const is a literal value.
type Const struct{ Value types.Value }

// CompareOp enumerates the comparison operators IndexScan and Filter
// predicates use.
type CompareOp string

const (
	OpEq     CompareOp = "=="
	OpNeq    CompareOp = "!="
	OpLt     CompareOp = "<"
	OpLte    CompareOp = "<="
	OpGt     CompareOp = ">"
	OpGte    CompareOp = ">="
	OpPrefix CompareOp = "prefix"
)

// FuncCall is a call to one of §4.4's built-ins: length, degree_in,
// degree_out, the arithmetic/comparison operators, string prefix, and
// pattern_match over path segments.
type FuncCall struct {
	Name string
	Args []Expr
}

// ExternCall is a call to a named external predicate or measure, valid
// only if the catalog's ExternSet advertises it (§4.4, §4.5, §6.1); the
// planner rejects an ExternCall referencing an unknown name at lowering
// time with gerrs.Validation, never at row-evaluation time.
type ExternCall struct {
	Name string
	Args []Expr
}

func (ColumnRef) isExpr()  {}
func (Const) isExpr()      {}
func (FuncCall) isExpr()   {}
func (ExternCall) isExpr() {}

// Builtins is the closed set of §4.4 built-in function names.
var Builtins = map[string]bool{
	"length": true, "degree_in": true, "degree_out": true,
	"+": true, "-": true, "*": true, "/": true,
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"prefix": true, "pattern_match": true,
}

// ValidateExterns walks e looking for ExternCalls and reports
// gerrs.Validation for the first one not advertised by externs.
func ValidateExterns(e Expr, externs types.ExternSet) error {
	switch n := e.(type) {
	case ExternCall:
		if !externs.HasPredicate(n.Name) && !externs.HasMeasure(n.Name) {
			return gerrs.New(gerrs.Validation, "unknown extern %q", n.Name)
		}
		for _, a := range n.Args {
			if err := ValidateExterns(a, externs); err != nil {
				return err
			}
		}
	case FuncCall:
		for _, a := range n.Args {
			if err := ValidateExterns(a, externs); err != nil {
				return err
			}
		}
	}
	return nil
}

// indexEligible reports whether e is a single comparison of the shape
// `ColumnRef{Var: as, Field: property} op Const` or its mirror image, the
// pattern §4.4's "rewrites Filter(IndexScan-eligible predicate, NodeScan)"
// rule looks for. It returns the property, operator, and constant value
// when eligible.
func indexEligible(e Expr, as string) (property string, op CompareOp, value types.Value, ok bool) {
	fc, isCall := e.(FuncCall)
	if !isCall {
		return "", "", types.Value{}, false
	}
	var cmpOp CompareOp
	switch fc.Name {
	case "==":
		cmpOp = OpEq
	case "!=":
		cmpOp = OpNeq
	case "<":
		cmpOp = OpLt
	case "<=":
		cmpOp = OpLte
	case ">":
		cmpOp = OpGt
	case ">=":
		cmpOp = OpGte
	case "prefix":
		cmpOp = OpPrefix
	default:
		return "", "", types.Value{}, false
	}
	if len(fc.Args) != 2 {
		return "", "", types.Value{}, false
	}
	if col, isCol := fc.Args[0].(ColumnRef); isCol && col.Var == as && col.Field != "" {
		if c, isConst := fc.Args[1].(Const); isConst {
			return col.Field, cmpOp, c.Value, true
		}
	}
	if col, isCol := fc.Args[1].(ColumnRef); isCol && col.Var == as && col.Field != "" {
		if c, isConst := fc.Args[0].(Const); isConst {
			return col.Field, mirrorOp(cmpOp), c.Value, true
		}
	}
	return "", "", types.Value{}, false
}

func mirrorOp(op CompareOp) CompareOp {
	switch op {
	case OpLt:
		return OpGt
	case OpLte:
		return OpGte
	case OpGt:
		return OpLt
	case OpGte:
		return OpLte
	default:
		return op
	}
}
