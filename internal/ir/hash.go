package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests.
// Version suffix enables future algorithm migration.
const (
	DomainFieldShape = "archetype/field-shape/v1"
	DomainFields     = "archetype/fields/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// shapeObject builds the parts of a field that decide how data validates:
// required, type, is_array and the flat rules object. Label, access and
// default are not part of the shape.
func shapeObject(f FieldDef) (*IRObject, error) {
	rawRules, err := marshalWire(f.wireRules())
	if err != nil {
		return nil, err
	}
	rules, err := UnmarshalIRValue(rawRules)
	if err != nil {
		return nil, err
	}
	return NewIRObjectFromPairs(
		O("required", IRBool(f.Required)),
		O("type", IRString(f.Type)),
		O("is_array", IRBool(f.IsArray)),
		O("rules", rules),
	), nil
}

// FieldShapeDigest returns a digest that changes exactly when the field's
// validation shape changes. Two definitions with equal digests accept the
// same documents.
func FieldShapeDigest(f FieldDef) (string, error) {
	obj, err := shapeObject(f)
	if err != nil {
		return "", fmt.Errorf("FieldShapeDigest: %w", err)
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("FieldShapeDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFieldShape, canonical), nil
}

// ShapeChanged reports whether replacing before with after changes the
// scheme's validation semantics and therefore requires a version bump.
func ShapeChanged(before, after FieldDef) (bool, error) {
	a, err := FieldShapeDigest(before)
	if err != nil {
		return false, err
	}
	b, err := FieldShapeDigest(after)
	if err != nil {
		return false, err
	}
	return a != b, nil
}

// FieldsDigest identifies a full field list, order included. The CLI shows it
// next to the version so operators can compare scheme definitions across stores.
func FieldsDigest(fields []FieldDef) (string, error) {
	arr := make(IRArray, 0, len(fields))
	for _, f := range fields {
		raw, err := f.MarshalJSON()
		if err != nil {
			return "", fmt.Errorf("FieldsDigest: %w", err)
		}
		v, err := UnmarshalIRValue(raw)
		if err != nil {
			return "", fmt.Errorf("FieldsDigest: %w", err)
		}
		arr = append(arr, v)
	}
	canonical, err := MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("FieldsDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFields, canonical), nil
}

// MustFieldShapeDigest is like FieldShapeDigest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFieldShapeDigest(f FieldDef) string {
	d, err := FieldShapeDigest(f)
	if err != nil {
		panic(err)
	}
	return d
}
