package queryir

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/archetype/internal/ir"
)

// ErrNotQuery is returned when the root of a query is not a non-empty array.
var ErrNotQuery = errors.New("query must be a non-empty JSON array")

// arity is the exact operand count for fixed-arity operators.
var arity = map[string]int{
	OpNot:            1,
	OpEqual:          2,
	OpNotEqual:       2,
	OpGreaterThan:    2,
	OpGreaterOrEqual: 2,
	OpLessThan:       2,
	OpLessOrEqual:    2,
	OpIn:             2,
	OpNotIn:          2,
	OpBetween:        3,
	OpContains:       2,
	OpStartsWith:     2,
	OpEndsWith:       2,
	OpExists:         1,
	OpIsNull:         1,
	OpIsNotNull:      1,
	OpAny:            2,
	OpAll:            2,
}

// IsOperator reports whether name (any case) is a query operator.
func IsOperator(name string) bool {
	op := strings.ToUpper(name)
	if op == OpAnd || op == OpOr {
		return true
	}
	_, ok := arity[op]
	return ok
}

// Parse decodes a JSON query.
func Parse(raw []byte) (Expr, error) {
	v, err := ir.UnmarshalIRValue(raw)
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	return ParseValue(v)
}

// ParseValue builds a query from an already decoded value. Only a root that
// is not a non-empty array is an error; anything malformed below the root
// becomes an Unknown node.
func ParseValue(v ir.IRValue) (Expr, error) {
	arr, ok := v.(ir.IRArray)
	if !ok || len(arr) == 0 {
		return nil, ErrNotQuery
	}
	return parseExpr(arr), nil
}

// MustParse is like Parse but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustParse(raw string) Expr {
	e, err := Parse([]byte(raw))
	if err != nil {
		panic(err)
	}
	return e
}

func headOf(v ir.IRValue) (string, ir.IRArray, bool) {
	arr, ok := v.(ir.IRArray)
	if !ok || len(arr) == 0 {
		return "", nil, false
	}
	head, ok := arr[0].(ir.IRString)
	if !ok {
		return "", nil, false
	}
	return strings.ToUpper(string(head)), arr[1:], true
}

func parseExpr(v ir.IRValue) Expr {
	op, args, ok := headOf(v)
	if !ok {
		return &Unknown{Reason: fmt.Sprintf("expected an operator node, got %s", ir.KindOf(v))}
	}

	switch op {
	case OpAnd, OpOr:
		exprs := make([]Expr, len(args))
		for i, a := range args {
			exprs[i] = parseExpr(a)
		}
		if op == OpAnd {
			return &And{Exprs: exprs}
		}
		return &Or{Exprs: exprs}
	case SelKey, SelPath, SelValue:
		operand, err := parseSelector(op, args)
		if err != nil {
			return &Unknown{Op: op, Reason: err.Error()}
		}
		return &Truth{Operand: operand}
	}

	want, known := arity[op]
	if !known {
		return &Unknown{Op: op, Reason: "unknown operator"}
	}
	if len(args) != want {
		return &Unknown{Op: op, Reason: fmt.Sprintf("expected %d operands, got %d", want, len(args))}
	}

	switch op {
	case OpNot:
		return &Not{Expr: parseExpr(args[0])}
	case OpAny, OpAll:
		list, err := parseOperand(args[0])
		if err != nil {
			return &Unknown{Op: op, Reason: err.Error()}
		}
		return &Quantifier{All: op == OpAll, List: list, Pred: parseExpr(args[1])}
	case OpExists, OpIsNull, OpIsNotNull:
		sel, err := parseKeySelector(args[0])
		if err != nil {
			return &Unknown{Op: op, Reason: err.Error()}
		}
		if op == OpExists {
			return &Exists{Selector: sel}
		}
		return &IsNull{Negate: op == OpIsNotNull, Selector: sel}
	}

	operands := make([]Operand, len(args))
	for i, a := range args {
		o, err := parseOperand(a)
		if err != nil {
			return &Unknown{Op: op, Reason: fmt.Sprintf("operand %d: %v", i+1, err)}
		}
		operands[i] = o
	}

	switch op {
	case OpIn, OpNotIn:
		return &In{Negate: op == OpNotIn, Left: operands[0], Right: operands[1]}
	case OpBetween:
		return &Between{Value: operands[0], Low: operands[1], High: operands[2]}
	case OpContains, OpStartsWith, OpEndsWith:
		return &StringMatch{Op: MatchOp(op), Left: operands[0], Right: operands[1]}
	default:
		return &Compare{Op: CompareOp(op), Left: operands[0], Right: operands[1]}
	}
}

// parseOperand reads a selector, a nested query or a bare literal.
func parseOperand(v ir.IRValue) (Operand, error) {
	head, args, ok := headOf(v)
	if !ok {
		return &Literal{Value: v}, nil
	}
	switch head {
	case SelKey, SelPath, SelValue:
		return parseSelector(head, args)
	}
	if IsOperator(head) {
		return &SubExpr{Expr: parseExpr(v)}, nil
	}
	return &Literal{Value: v}, nil
}

func parseSelector(sel string, args ir.IRArray) (Operand, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%s selector takes 1 argument, got %d", sel, len(args))
	}
	if sel == SelValue {
		return &Literal{Value: args[0]}, nil
	}
	name, ok := args[0].(ir.IRString)
	if !ok {
		return nil, fmt.Errorf("%s selector needs a string, got %s", sel, ir.KindOf(args[0]))
	}
	if sel == SelKey {
		return &Key{Name: string(name)}, nil
	}
	return NewPath(string(name)), nil
}

// parseKeySelector accepts ["KEY", k], ["PATH", p] or a bare key string.
func parseKeySelector(v ir.IRValue) (Operand, error) {
	if s, ok := v.(ir.IRString); ok {
		return &Key{Name: string(s)}, nil
	}
	head, args, ok := headOf(v)
	if !ok || (head != SelKey && head != SelPath) {
		return nil, errors.New("expected a KEY or PATH selector")
	}
	return parseSelector(head, args)
}

// NewPath splits a dotted path into segments.
func NewPath(raw string) *Path {
	return &Path{Raw: raw, Segments: strings.Split(raw, ".")}
}
