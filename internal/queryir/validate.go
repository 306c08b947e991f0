package queryir

import (
	"fmt"

	"github.com/roach88/archetype/internal/ir"
)

// ValidationResult contains the static analysis of a query.
//
// Warnings describe nodes that will never match or that are probably not
// what the author meant. A query with warnings still evaluates; the
// warnings only explain why it might return nothing.
type ValidationResult struct {
	// Valid is true when the query contains no Unknown nodes.
	Valid bool

	// Warnings lists every problem found, outermost first.
	Warnings []string
}

// Validate inspects a parsed query without evaluating it.
//
// Checks:
//  1. Unknown operators, wrong operand counts and malformed selectors
//  2. Ordering comparisons against literals that have no order (bool, null,
//     arrays, objects)
//  3. BETWEEN with literal bounds in the wrong order
//  4. ANY/ALL predicates that read keys other than "item"
//
// Validate is a pure function with no side effects.
func Validate(expr Expr) ValidationResult {
	v := &validator{
		warnings: []string{},
		valid:    true,
	}
	v.validateExpr(expr, "$", false)

	return ValidationResult{
		Valid:    v.valid,
		Warnings: v.warnings,
	}
}

// validator accumulates warnings during traversal.
type validator struct {
	warnings []string
	valid    bool
}

// addWarning appends a warning message.
func (v *validator) addWarning(at, format string, args ...any) {
	v.warnings = append(v.warnings, at+": "+fmt.Sprintf(format, args...))
}

// validateExpr recursively validates a query node. inItem is true inside
// an ANY/ALL predicate.
func (v *validator) validateExpr(e Expr, at string, inItem bool) {
	if e == nil {
		v.valid = false
		v.addWarning(at, "nil query node")
		return
	}

	switch node := e.(type) {
	case *And:
		for i, sub := range node.Exprs {
			v.validateExpr(sub, fmt.Sprintf("%s[%d]", at, i+1), inItem)
		}
	case *Or:
		if len(node.Exprs) == 0 {
			v.addWarning(at, "OR without operands never matches")
		}
		for i, sub := range node.Exprs {
			v.validateExpr(sub, fmt.Sprintf("%s[%d]", at, i+1), inItem)
		}
	case *Not:
		v.validateExpr(node.Expr, at+"[1]", inItem)
	case *Compare:
		if node.Op != CmpEqual && node.Op != CmpNotEqual {
			v.checkOrderable(at, node.Left)
			v.checkOrderable(at, node.Right)
		}
		v.validateOperands(at, inItem, node.Left, node.Right)
	case *In:
		v.validateOperands(at, inItem, node.Left, node.Right)
	case *Between:
		v.checkOrderable(at, node.Low)
		v.checkOrderable(at, node.High)
		lo, loOK := node.Low.(*Literal)
		hi, hiOK := node.High.(*Literal)
		if loOK && hiOK {
			if c, ok := ir.Compare(lo.Value, hi.Value); ok && c > 0 {
				v.addWarning(at, "BETWEEN lower bound is greater than upper bound")
			}
		}
		v.validateOperands(at, inItem, node.Value, node.Low, node.High)
	case *StringMatch:
		v.validateOperands(at, inItem, node.Left, node.Right)
	case *Exists:
		v.validateOperands(at, inItem, node.Selector)
	case *IsNull:
		v.validateOperands(at, inItem, node.Selector)
	case *Quantifier:
		v.validateOperands(at, inItem, node.List)
		v.validateExpr(node.Pred, at+"[2]", true)
	case *Truth:
		v.validateOperands(at, inItem, node.Operand)
	case *Unknown:
		v.valid = false
		if node.Op == "" {
			v.addWarning(at, "%s (evaluates to false)", node.Reason)
		} else {
			v.addWarning(at, "%s: %s (evaluates to false)", node.Op, node.Reason)
		}
	default:
		v.valid = false
		v.addWarning(at, "unsupported node type %T", e)
	}
}

// checkOrderable warns about literals that can never be ordered.
func (v *validator) checkOrderable(at string, o Operand) {
	lit, ok := o.(*Literal)
	if !ok {
		return
	}
	switch lit.Value.(type) {
	case ir.IRInt, ir.IRFloat, ir.IRString:
	default:
		v.addWarning(at, "%s literal has no ordering; comparison is always false", ir.KindOf(lit.Value))
	}
}

// validateOperands descends into nested queries and checks item scoping.
func (v *validator) validateOperands(at string, inItem bool, operands ...Operand) {
	for _, o := range operands {
		switch op := o.(type) {
		case *SubExpr:
			v.validateExpr(op.Expr, at, inItem)
		case *Key:
			if inItem && op.Name != ItemKey {
				v.addWarning(at, "key %q is not in scope inside ANY/ALL (only %q is)", op.Name, ItemKey)
			}
		case *Path:
			if inItem && (len(op.Segments) == 0 || op.Segments[0] != ItemKey) {
				v.addWarning(at, "path %q is not in scope inside ANY/ALL (only %q is)", op.Raw, ItemKey)
			}
		}
	}
}
