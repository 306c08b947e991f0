// Package queryir parses and evaluates the JSON query language used to
// search entries.
//
// A query is a JSON array whose first element names an operator (case
// insensitive) and whose remaining elements are operands:
//
//	["AND",
//	  ["EQUAL", ["KEY", "status"], ["VALUE", "active"]],
//	  ["GREATER-THAN", ["KEY", "price"], ["VALUE", 10]]]
//
// SELECTORS:
//
// Operands are read through selectors:
//   - ["KEY", name] reads data[name], or null when absent
//   - ["PATH", "a.b.0.c"] walks nested objects (and array indices), null on
//     the first missing segment
//   - ["VALUE", literal] returns the literal unchanged
//
// Any other JSON value in operand position is a bare literal, except an
// array headed by an operator name, which is a nested query whose boolean
// result becomes the operand.
//
// OPERATORS:
//
//	AND, OR, NOT                       logical, short-circuiting
//	EQUAL, NOT-EQUAL                   strict equality (see below)
//	GREATER-THAN, GREATER-OR-EQUAL,
//	LESS-THAN, LESS-OR-EQUAL           number×number or string×string only
//	IN, NOT-IN                         membership in the right operand
//	BETWEEN                            inclusive range
//	CONTAINS, STARTS-WITH, ENDS-WITH   case-sensitive text tests
//	EXISTS, IS-NULL, IS-NOT-NULL       raw key presence and nullity
//	ANY, ALL                           quantify a nested query over a list
//
// EQUALITY POLICY:
//
// Values are equal only when they have the same JSON type. Numbers compare
// by value regardless of how they were written (1 equals 1.0). Arrays and
// objects compare structurally, object key order aside. Null equals only
// null, so "0", 0, false and null are four distinct values.
//
// FAIL-CLOSED:
//
// Parsing never rejects a well-formed root array. An unknown operator, a
// wrong operand count or a malformed selector becomes an Unknown node that
// evaluates to false. Validate reports such nodes as warnings.
//
// Expr and Operand are sealed interfaces using the marker method pattern,
// so evaluators and the SQL prefilter can switch exhaustively:
//
//	switch e := expr.(type) {
//	case *And:
//	    // Handle conjunction
//	case *Compare:
//	    // Handle comparison
//	default:
//	    // Unknown or unsupported - fail closed
//	}
package queryir
