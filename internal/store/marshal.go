package store

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/roach88/archetype/internal/ir"
)

// marshalFields converts a field list to JSON TEXT for storage.
// A nil list is stored as "[]".
func marshalFields(fields []ir.FieldDef) (string, error) {
	if fields == nil {
		fields = []ir.FieldDef{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

// unmarshalFields parses stored field definitions. Rules that do not apply
// to a field's type are dropped by ir.FieldDef.UnmarshalJSON.
func unmarshalFields(data string) ([]ir.FieldDef, error) {
	fields := []ir.FieldDef{}
	if data == "" || data == "[]" {
		return fields, nil
	}
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return fields, nil
}

// marshalData converts entry data to JSON TEXT for storage.
//
// Unlike the canonical form, stored data keeps key insertion order, so a
// document reads back exactly as it was submitted.
func marshalData(data *ir.IRObject) (string, error) {
	if data == nil {
		return "{}", nil
	}
	b, err := ir.MarshalIRValue(data)
	if err != nil {
		return "", fmt.Errorf("marshal data: %w", err)
	}
	return string(b), nil
}

// unmarshalData parses stored entry data.
// Uses ir.UnmarshalIRObject which keeps integers exact via json.Number
// to avoid float64 precision loss for values > 2^53.
func unmarshalData(data string) (*ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.NewIRObject(), nil
	}
	obj, err := ir.UnmarshalIRObject([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal data: %w", err)
	}
	return obj, nil
}
