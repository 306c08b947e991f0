package ir

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"

	json "github.com/goccy/go-json"
)

// IRValue is a sealed interface representing a decoded JSON value.
// Only IRNull, IRString, IRInt, IRFloat, IRBool, IRArray and *IRObject implement it.
type IRValue interface {
	irValue() // Sealed - only these types implement it
}

// IRNull represents a JSON null value.
// Using an explicit type ensures all IRValues satisfy the sealed interface.
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler for IRNull.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRString represents a string value.
type IRString string

func (IRString) irValue() {}

// IRInt represents a number written without fraction or exponent.
type IRInt int64

func (IRInt) irValue() {}

// IRFloat represents any other number.
type IRFloat float64

func (IRFloat) irValue() {}

// IRBool represents a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRArray represents an ordered sequence of values.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject is a JSON object that remembers key insertion order.
// The zero value is not usable; construct with NewIRObject or NewIRObjectFromPairs.
// A nil *IRObject behaves as an empty, read-only object.
type IRObject struct {
	keys []string
	vals map[string]IRValue
}

func (*IRObject) irValue() {}

// IRPair represents a key-value pair for ordered IRObject construction.
type IRPair struct {
	Key   string
	Value IRValue
}

// O is a shorthand for IRPair.
// Example: NewIRObjectFromPairs(O("name", IRString("cart")), O("count", IRInt(5)))
func O(key string, value IRValue) IRPair {
	return IRPair{Key: key, Value: value}
}

// NewIRObject creates an empty object.
func NewIRObject() *IRObject {
	return &IRObject{vals: make(map[string]IRValue)}
}

// NewIRObjectFromPairs creates an object with keys in argument order.
func NewIRObjectFromPairs(pairs ...IRPair) *IRObject {
	obj := &IRObject{vals: make(map[string]IRValue, len(pairs))}
	for _, p := range pairs {
		obj.Set(p.Key, p.Value)
	}
	return obj
}

// Len returns the number of keys.
func (o *IRObject) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Get returns the value stored under key and whether the key is present.
func (o *IRObject) Get(key string) (IRValue, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.vals[key]
	return v, ok
}

// Has reports whether key is present, even when its value is null.
func (o *IRObject) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Set stores value under key. A new key is appended; an existing key keeps
// its position. A nil value is stored as IRNull.
func (o *IRObject) Set(key string, value IRValue) {
	if value == nil {
		value = IRNull{}
	}
	if o.vals == nil {
		o.vals = make(map[string]IRValue)
	}
	if _, exists := o.vals[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = value
}

// Delete removes key and reports whether it was present.
func (o *IRObject) Delete(key string) bool {
	if o == nil {
		return false
	}
	if _, ok := o.vals[key]; !ok {
		return false
	}
	delete(o.vals, key)
	o.keys = slices.DeleteFunc(o.keys, func(k string) bool { return k == key })
	return true
}

// Keys returns the keys in insertion order. The slice is a copy.
func (o *IRObject) Keys() []string {
	if o == nil {
		return []string{}
	}
	return slices.Clone(o.keys)
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings compares UTF-8 bytes, which orders some keys differently.
func (o *IRObject) SortedKeys() []string {
	keys := o.Keys()
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// Clone returns a deep copy of the object.
func (o *IRObject) Clone() *IRObject {
	if o == nil {
		return NewIRObject()
	}
	out := &IRObject{
		keys: slices.Clone(o.keys),
		vals: make(map[string]IRValue, len(o.vals)),
	}
	for k, v := range o.vals {
		out.vals[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies arrays and objects; scalars are returned as-is.
func CloneValue(v IRValue) IRValue {
	switch val := v.(type) {
	case IRArray:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			arr[i] = CloneValue(elem)
		}
		return arr
	case *IRObject:
		return val.Clone()
	default:
		return v
	}
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	// If all compared units are equal, shorter string comes first
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// KindOf names the JSON type of a value for error messages.
func KindOf(v IRValue) string {
	switch v.(type) {
	case nil, IRNull:
		return "null"
	case IRString:
		return "string"
	case IRInt, IRFloat:
		return "number"
	case IRBool:
		return "boolean"
	case IRArray:
		return "array"
	case *IRObject:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// UnmarshalJSON implements json.Unmarshaler for IRObject, keeping key order.
func (o *IRObject) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalIRValue(data)
	if err != nil {
		return err
	}
	obj, ok := v.(*IRObject)
	if !ok {
		return fmt.Errorf("expected JSON object, got %s", KindOf(v))
	}
	*o = *obj
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for IRArray.
func (a *IRArray) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalIRValue(data)
	if err != nil {
		return err
	}
	arr, ok := v.(IRArray)
	if !ok {
		return fmt.Errorf("expected JSON array, got %s", KindOf(v))
	}
	*a = arr
	return nil
}

// UnmarshalIRValue decodes exactly one JSON value. Object key order is
// preserved and numbers are split into IRInt and IRFloat by their spelling.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after top-level JSON value")
	}
	return v, nil
}

// UnmarshalIRObject decodes a JSON document that must be an object.
func UnmarshalIRObject(data []byte) (*IRObject, error) {
	obj := NewIRObject()
	if err := obj.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return obj, nil
}

// decodeValue reads one value from the token stream.
func decodeValue(dec *json.Decoder) (IRValue, error) {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty JSON value")
		}
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewIRObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key must be a string, got %T", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, fmt.Errorf("object key %q: %w", key, err)
				}
				obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil { // closing '}'
				return nil, err
			}
			return obj, nil
		case '[':
			arr := IRArray{}
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, fmt.Errorf("array index %d: %w", len(arr), err)
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil { // closing ']'
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	case string:
		return IRString(t), nil
	case bool:
		return IRBool(t), nil
	case nil:
		return IRNull{}, nil
	case json.Number:
		return parseNumber(string(t))
	case float64:
		return IRFloat(t), nil
	default:
		return nil, fmt.Errorf("unsupported JSON token %T", tok)
	}
}

// parseNumber keeps integral spellings as IRInt. Integers that overflow int64
// fall back to IRFloat.
func parseNumber(s string) (IRValue, error) {
	if !strings.ContainsAny(s, ".eE") {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return IRInt(n), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return IRFloat(f), nil
}

// MarshalJSON implements json.Marshaler for IRObject in insertion order.
func (o *IRObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(appendJSONString(nil, k))
		buf.WriteByte(':')

		valBytes, err := MarshalIRValue(o.vals[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for IRArray.
func (a IRArray) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := MarshalIRValue(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalIRValue marshals an IRValue to JSON bytes, keeping object key order.
// Use MarshalCanonical when bytes are compared or hashed.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case nil, IRNull:
		return []byte("null"), nil
	case IRString:
		return appendJSONString(nil, string(val)), nil
	case IRInt:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case IRFloat:
		return formatFloat(float64(val))
	case IRBool:
		return strconv.AppendBool(nil, bool(val)), nil
	case IRArray:
		return val.MarshalJSON()
	case *IRObject:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}

// formatFloat writes a float so that it decodes back to IRFloat: integral
// values keep a ".0" suffix.
func formatFloat(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("unsupported float value: %v", f)
	}
	abs := math.Abs(f)
	format := byte('f')
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	b := strconv.AppendFloat(nil, f, format, -1, 64)
	if !bytes.ContainsAny(b, ".e") {
		b = append(b, '.', '0')
	}
	return b, nil
}

// appendJSONString escapes s per RFC 8259 without HTML escaping. Only the
// quote, backslash and control characters are escaped.
func appendJSONString(dst []byte, s string) []byte {
	const hex = "0123456789abcdef"
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			dst = append(dst, '\\', c)
		case c == '\n':
			dst = append(dst, '\\', 'n')
		case c == '\r':
			dst = append(dst, '\\', 'r')
		case c == '\t':
			dst = append(dst, '\\', 't')
		case c == '\b':
			dst = append(dst, '\\', 'b')
		case c == '\f':
			dst = append(dst, '\\', 'f')
		case c < 0x20:
			dst = append(dst, '\\', 'u', '0', '0', hex[c>>4], hex[c&0xF])
		default:
			dst = append(dst, c)
		}
	}
	return append(dst, '"')
}

// FromGo converts plain Go values (as produced by YAML or CUE decoding) into
// an IRValue. Map keys are sorted because Go maps carry no order.
func FromGo(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case bool:
		return IRBool(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return IRFloat(float64(val)), nil
		}
		return IRInt(int64(val)), nil
	case float64:
		return IRFloat(val), nil
	case json.Number:
		return parseNumber(string(val))
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, compareKeysRFC8785)
		obj := NewIRObject()
		for _, k := range keys {
			irElem, err := FromGo(val[k])
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj.Set(k, irElem)
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
