package ir

import "strings"

// Equal reports strict JSON equality: both sides must have the same JSON
// type. Numbers compare by value across IRInt and IRFloat, arrays and objects
// compare structurally (object key order is ignored), null equals only null.
func Equal(a, b IRValue) bool {
	if a == nil {
		a = IRNull{}
	}
	if b == nil {
		b = IRNull{}
	}
	switch x := a.(type) {
	case IRNull:
		_, ok := b.(IRNull)
		return ok
	case IRString:
		y, ok := b.(IRString)
		return ok && x == y
	case IRBool:
		y, ok := b.(IRBool)
		return ok && x == y
	case IRInt, IRFloat:
		c, ok := Compare(a, b)
		return ok && c == 0
	case IRArray:
		y, ok := b.(IRArray)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case *IRObject:
		y, ok := b.(*IRObject)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for _, k := range x.Keys() {
			xv, _ := x.Get(k)
			yv, present := y.Get(k)
			if !present || !Equal(xv, yv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare orders two values. Ordering is defined for number×number and
// string×string (byte order); ok is false for every other pairing.
func Compare(a, b IRValue) (c int, ok bool) {
	switch x := a.(type) {
	case IRString:
		y, isStr := b.(IRString)
		if !isStr {
			return 0, false
		}
		return strings.Compare(string(x), string(y)), true
	case IRInt:
		switch y := b.(type) {
		case IRInt:
			return cmpInt(int64(x), int64(y)), true
		case IRFloat:
			return cmpFloat(float64(x), float64(y)), true
		}
	case IRFloat:
		switch y := b.(type) {
		case IRInt:
			return cmpFloat(float64(x), float64(y)), true
		case IRFloat:
			return cmpFloat(float64(x), float64(y)), true
		}
	}
	return 0, false
}

// AsFloat returns the numeric value of IRInt or IRFloat.
func AsFloat(v IRValue) (float64, bool) {
	switch n := v.(type) {
	case IRInt:
		return float64(n), true
	case IRFloat:
		return float64(n), true
	default:
		return 0, false
	}
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
