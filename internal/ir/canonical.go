package ir

import (
	"bytes"
	"fmt"
	"math"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON.
// It is the serialization used whenever bytes are compared or hashed:
// structural equality of arrays and objects, and field shape digests.
//
// Key differences from MarshalIRValue:
// 1. Object keys sorted by UTF-16 code units (not UTF-8 bytes, not insertion order)
// 2. No HTML escaping (< > & are NOT escaped)
// 3. Strings are NFC normalized
// 4. Integral floats are written as integers, so 1 and 1.0 produce the same bytes
func MarshalCanonical(v any) ([]byte, error) {
	return marshalCanonical(v)
}

func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil, IRNull:
		return []byte("null"), nil
	case IRString:
		return marshalCanonicalString(string(val)), nil
	case IRInt:
		return []byte(fmt.Sprintf("%d", val)), nil
	case IRFloat:
		return marshalCanonicalFloat(float64(val))
	case IRBool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case IRArray:
		return marshalCanonicalArray(val)
	case *IRObject:
		return marshalCanonicalObject(val)
	default:
		irVal, err := FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("unsupported type for canonical JSON: %w", err)
		}
		return marshalCanonical(irVal)
	}
}

// marshalCanonicalString produces a canonical JSON string with NFC normalization.
// RFC 8785: only control characters (U+0000-U+001F), backslash and quote are
// escaped. HTML characters and U+2028/U+2029 are written literally.
func marshalCanonicalString(s string) []byte {
	return appendJSONString(nil, norm.NFC.String(s))
}

// marshalCanonicalFloat writes integral floats in integer form so that
// numeric equality survives the IRInt/IRFloat split.
func marshalCanonicalFloat(f float64) ([]byte, error) {
	if f >= -(1<<53) && f <= 1<<53 && f == math.Trunc(f) {
		return []byte(fmt.Sprintf("%d", int64(f))), nil
	}
	b, err := formatFloat(f)
	if err != nil {
		return nil, fmt.Errorf("canonical JSON: %w", err)
	}
	return b, nil
}

// marshalCanonicalArray marshals an array to canonical JSON.
func marshalCanonicalArray(arr IRArray) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')

	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := marshalCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}

	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// marshalCanonicalObject marshals an object to canonical JSON with RFC 8785 key ordering.
func marshalCanonicalObject(obj *IRObject) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	// RFC 8785 UTF-16 code unit ordering
	keys := obj.SortedKeys()

	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}

		buf.Write(marshalCanonicalString(k))
		buf.WriteByte(':')

		val, _ := obj.Get(k)
		valBytes, err := marshalCanonical(val)
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
