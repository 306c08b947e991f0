package queryir

import (
	"strconv"
	"strings"

	"github.com/roach88/archetype/internal/ir"
)

// Evaluate reports whether doc satisfies expr. A nil expr matches everything.
func Evaluate(expr Expr, doc *ir.IRObject) bool {
	if expr == nil {
		return true
	}

	switch e := expr.(type) {
	case *And:
		for _, sub := range e.Exprs {
			if !Evaluate(sub, doc) {
				return false
			}
		}
		return true
	case *Or:
		for _, sub := range e.Exprs {
			if Evaluate(sub, doc) {
				return true
			}
		}
		return false
	case *Not:
		return !Evaluate(e.Expr, doc)
	case *Compare:
		return evalCompare(e.Op, Resolve(e.Left, doc), Resolve(e.Right, doc))
	case *In:
		needle := Resolve(e.Left, doc)
		found := false
		for _, item := range asSequence(Resolve(e.Right, doc)) {
			if ir.Equal(needle, item) {
				found = true
				break
			}
		}
		return found != e.Negate
	case *Between:
		v := Resolve(e.Value, doc)
		lo, okLo := ir.Compare(Resolve(e.Low, doc), v)
		hi, okHi := ir.Compare(v, Resolve(e.High, doc))
		return okLo && okHi && lo <= 0 && hi <= 0
	case *StringMatch:
		return evalMatch(e.Op, Resolve(e.Left, doc), Resolve(e.Right, doc))
	case *Exists:
		return present(e.Selector, doc)
	case *IsNull:
		_, isNull := Resolve(e.Selector, doc).(ir.IRNull)
		return isNull != e.Negate
	case *Quantifier:
		for _, item := range asSequence(Resolve(e.List, doc)) {
			ok := Evaluate(e.Pred, ir.NewIRObjectFromPairs(ir.O(ItemKey, item)))
			if e.All && !ok {
				return false
			}
			if !e.All && ok {
				return true
			}
		}
		return e.All
	case *Truth:
		b, ok := Resolve(e.Operand, doc).(ir.IRBool)
		return ok && bool(b)
	default:
		// Unknown and anything unrecognised fail closed
		return false
	}
}

// Filter returns the documents expr accepts, in input order.
func Filter(expr Expr, docs []*ir.IRObject) []*ir.IRObject {
	out := make([]*ir.IRObject, 0, len(docs))
	for _, d := range docs {
		if Evaluate(expr, d) {
			out = append(out, d)
		}
	}
	return out
}

// Resolve produces the value of an operand against doc. Missing data
// resolves to IRNull, never nil.
func Resolve(o Operand, doc *ir.IRObject) ir.IRValue {
	switch op := o.(type) {
	case *Key:
		if v, ok := doc.Get(op.Name); ok {
			return v
		}
	case *Path:
		if v, ok := walk(op.Segments, doc); ok {
			return v
		}
	case *Literal:
		if op.Value != nil {
			return op.Value
		}
	case *SubExpr:
		return ir.IRBool(Evaluate(op.Expr, doc))
	}
	return ir.IRNull{}
}

// walk follows segments through objects and array indices.
func walk(segments []string, doc *ir.IRObject) (ir.IRValue, bool) {
	var cur ir.IRValue = doc
	for _, seg := range segments {
		switch node := cur.(type) {
		case *ir.IRObject:
			next, ok := node.Get(seg)
			if !ok {
				return nil, false
			}
			cur = next
		case ir.IRArray:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// present reports raw key presence for EXISTS.
func present(sel Operand, doc *ir.IRObject) bool {
	switch s := sel.(type) {
	case *Key:
		return doc.Has(s.Name)
	case *Path:
		_, ok := walk(s.Segments, doc)
		return ok
	default:
		return false
	}
}

func evalCompare(op CompareOp, left, right ir.IRValue) bool {
	switch op {
	case CmpEqual:
		return ir.Equal(left, right)
	case CmpNotEqual:
		return !ir.Equal(left, right)
	}

	c, ok := ir.Compare(left, right)
	if !ok {
		return false
	}
	switch op {
	case CmpGreaterThan:
		return c > 0
	case CmpGreaterOrEqual:
		return c >= 0
	case CmpLessThan:
		return c < 0
	case CmpLessOrEqual:
		return c <= 0
	default:
		return false
	}
}

func evalMatch(op MatchOp, left, right ir.IRValue) bool {
	haystack, ok := asText(left)
	if !ok {
		return false
	}
	needle, ok := asText(right)
	if !ok {
		return false
	}
	switch op {
	case MatchContains:
		return strings.Contains(haystack, needle)
	case MatchStartsWith:
		return strings.HasPrefix(haystack, needle)
	case MatchEndsWith:
		return strings.HasSuffix(haystack, needle)
	default:
		return false
	}
}

// asText coerces scalars to text: null is "", numbers use their JSON form,
// booleans are "true" or "false". Arrays and objects have no text form.
func asText(v ir.IRValue) (string, bool) {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return "", true
	case ir.IRString:
		return string(val), true
	case ir.IRBool:
		return strconv.FormatBool(bool(val)), true
	case ir.IRInt, ir.IRFloat:
		b, err := ir.MarshalCanonical(val)
		if err != nil {
			return "", false
		}
		return string(b), true
	default:
		return "", false
	}
}

// asSequence views a value as a list: arrays as-is, null as empty, anything
// else as a single element.
func asSequence(v ir.IRValue) ir.IRArray {
	switch val := v.(type) {
	case ir.IRArray:
		return val
	case nil, ir.IRNull:
		return nil
	default:
		return ir.IRArray{val}
	}
}
