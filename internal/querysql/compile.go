// Package querysql pushes the safe part of a query down to SQLite.
//
// The compiler never decides whether an entry matches. It produces a WHERE
// fragment that keeps at least every row the in-process evaluator would
// accept; callers must still run queryir.Evaluate on every returned row.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/archetype/internal/ir"
	"github.com/roach88/archetype/internal/queryir"
)

// DefaultColumn is the TEXT column holding entry data as JSON.
const DefaultColumn = "data"

// Clause is a parameterized WHERE fragment.
//
// CRITICAL: Values are never interpolated into SQL; every literal is a ?
// placeholder with its value in Args.
type Clause struct {
	SQL  string
	Args []any
}

// SQLCompiler compiles the pushable conjuncts of a query to a json_extract
// WHERE clause.
type SQLCompiler struct {
	// Column is the JSON column to read from. Empty means DefaultColumn.
	Column string

	// Pushable reports whether a top-level key may be pushed down. Keys
	// hidden from the caller's role or carrying a default must be refused,
	// because the evaluator sees redacted data rather than stored data.
	// A nil Pushable refuses every key.
	Pushable func(key string) bool
}

// NewSQLCompiler creates a compiler over column that pushes keys accepted
// by pushable.
func NewSQLCompiler(column string, pushable func(key string) bool) *SQLCompiler {
	return &SQLCompiler{Column: column, Pushable: pushable}
}

// Compile returns a clause for the conjuncts of expr that SQLite can
// prefilter on. ok is false when nothing could be pushed.
//
// Only conjuncts reachable through top-level ANDs are considered:
//   - EQUAL and ordering comparisons between a KEY and a number or string
//   - BETWEEN on a KEY with number or string bounds
//   - IN on a KEY against a literal array of numbers and strings
//
// NOT-EQUAL, NOT-IN, PATH selectors and boolean or null literals are never
// pushed: SQLite's three-valued logic and JSON type folding would drop rows
// the evaluator accepts.
func (c *SQLCompiler) Compile(expr queryir.Expr) (Clause, bool) {
	var parts []string
	var args []any

	for _, conj := range conjuncts(expr) {
		sql, a, ok := c.compileConjunct(conj)
		if !ok {
			continue
		}
		parts = append(parts, sql)
		args = append(args, a...)
	}

	if len(parts) == 0 {
		return Clause{}, false
	}
	return Clause{SQL: strings.Join(parts, " AND "), Args: args}, true
}

// conjuncts flattens nested top-level ANDs.
func conjuncts(expr queryir.Expr) []queryir.Expr {
	and, ok := expr.(*queryir.And)
	if !ok {
		if expr == nil {
			return nil
		}
		return []queryir.Expr{expr}
	}
	var out []queryir.Expr
	for _, sub := range and.Exprs {
		out = append(out, conjuncts(sub)...)
	}
	return out
}

func (c *SQLCompiler) compileConjunct(e queryir.Expr) (string, []any, bool) {
	switch node := e.(type) {
	case *queryir.Compare:
		return c.compileCompare(node)
	case *queryir.Between:
		key, ok := c.pushableKey(node.Value)
		if !ok {
			return "", nil, false
		}
		lo, okLo := literalParam(node.Low)
		hi, okHi := literalParam(node.High)
		if !okLo || !okHi {
			return "", nil, false
		}
		return c.extract() + " BETWEEN ? AND ?", []any{jsonPath(key), lo, hi}, true
	case *queryir.In:
		if node.Negate {
			return "", nil, false
		}
		return c.compileIn(node)
	default:
		return "", nil, false
	}
}

// sqlOps maps pushable comparison operators; flipped is used when the
// literal is on the left.
var sqlOps = map[queryir.CompareOp]struct{ op, flipped string }{
	queryir.CmpEqual:          {"=", "="},
	queryir.CmpGreaterThan:    {">", "<"},
	queryir.CmpGreaterOrEqual: {">=", "<="},
	queryir.CmpLessThan:       {"<", ">"},
	queryir.CmpLessOrEqual:    {"<=", ">="},
}

func (c *SQLCompiler) compileCompare(cmp *queryir.Compare) (string, []any, bool) {
	ops, ok := sqlOps[cmp.Op]
	if !ok {
		return "", nil, false
	}

	if key, ok := c.pushableKey(cmp.Left); ok {
		if v, ok := literalParam(cmp.Right); ok {
			return fmt.Sprintf("%s %s ?", c.extract(), ops.op), []any{jsonPath(key), v}, true
		}
	}
	if key, ok := c.pushableKey(cmp.Right); ok {
		if v, ok := literalParam(cmp.Left); ok {
			return fmt.Sprintf("%s %s ?", c.extract(), ops.flipped), []any{jsonPath(key), v}, true
		}
	}
	return "", nil, false
}

func (c *SQLCompiler) compileIn(in *queryir.In) (string, []any, bool) {
	key, ok := c.pushableKey(in.Left)
	if !ok {
		return "", nil, false
	}
	lit, ok := in.Right.(*queryir.Literal)
	if !ok {
		return "", nil, false
	}

	var items ir.IRArray
	switch v := lit.Value.(type) {
	case ir.IRArray:
		items = v
	case ir.IRInt, ir.IRFloat, ir.IRString:
		items = ir.IRArray{v}
	default:
		return "", nil, false
	}
	if len(items) == 0 {
		// Nothing can match; let the evaluator say so.
		return "", nil, false
	}

	args := make([]any, 0, len(items)+1)
	args = append(args, jsonPath(key))
	for _, item := range items {
		p, ok := scalarParam(item)
		if !ok {
			return "", nil, false
		}
		args = append(args, p)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(items)), ", ")
	return fmt.Sprintf("%s IN (%s)", c.extract(), placeholders), args, true
}

// pushableKey accepts a KEY selector the caller allows.
func (c *SQLCompiler) pushableKey(o queryir.Operand) (string, bool) {
	k, ok := o.(*queryir.Key)
	if !ok || c.Pushable == nil {
		return "", false
	}
	if strings.ContainsAny(k.Name, "\"\\") {
		return "", false
	}
	if !c.Pushable(k.Name) {
		return "", false
	}
	return k.Name, true
}

// extract renders the json_extract call; the JSON path is the first
// parameter of every pushed conjunct.
func (c *SQLCompiler) extract() string {
	col := c.Column
	if col == "" {
		col = DefaultColumn
	}
	return "json_extract(" + col + ", ?)"
}

// jsonPath quotes a top-level key so dots and brackets stay literal.
func jsonPath(key string) string {
	return `$."` + key + `"`
}

func literalParam(o queryir.Operand) (any, bool) {
	lit, ok := o.(*queryir.Literal)
	if !ok {
		return nil, false
	}
	return scalarParam(lit.Value)
}

// scalarParam converts a pushable literal to a driver value.
func scalarParam(v ir.IRValue) (any, bool) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), true
	case ir.IRInt:
		return int64(val), true
	case ir.IRFloat:
		return float64(val), true
	default:
		return nil, false
	}
}
