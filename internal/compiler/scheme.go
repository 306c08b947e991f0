package compiler

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	json "github.com/goccy/go-json"

	"github.com/roach88/archetype/internal/ir"
)

// fieldAttrs are the attributes a field struct may carry.
var fieldAttrs = []string{"key", "label", "type", "is_array", "required", "rules", "access", "default"}

// sharedRules apply to every field type.
var sharedRules = []string{"min-length", "max-length", "enum"}

// typeRules lists the rule keys each field type accepts besides sharedRules.
var typeRules = map[ir.FieldType][]string{
	ir.TypeString:  {"min-char", "max-char", "pattern", "format"},
	ir.TypeNumber:  {"min-value", "max-value", "step", "format"},
	ir.TypeBoolean: {},
	ir.TypeEntries: {"schemes"},
	ir.TypeUploads: {"mimetypes", "min-size", "max-size"},
}

// defaultAccess is used when a field omits access.
var defaultAccess = []ir.Role{ir.RolePublic, ir.RoleEditor, ir.RoleAdmin}

// CompileScheme parses a CUE value into a SchemeDef.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the scheme struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`scheme: Articles: { fields: [...] }`)
//	def, err := CompileScheme(v.LookupPath(cue.ParsePath("scheme.Articles")))
//
// CompileScheme checks structure only: attribute names, the field type and
// rule keys that fit it. Validate checks the definitions themselves.
func CompileScheme(v cue.Value) (*ir.SchemeDef, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &ir.SchemeDef{Fields: []ir.FieldDef{}, Source: v.Pos().Filename()}

	// Scheme name comes from the struct label
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		def.Name = unquote(labels[len(labels)-1])
	}

	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{Field: "scheme", Message: "scheme must be a struct", Pos: v.Pos()}
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		if label := iter.Label(); label != "fields" {
			return nil, &CompileError{
				Field:   label,
				Message: "unknown scheme attribute; only fields is allowed",
				Pos:     iter.Value().Pos(),
			}
		}
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return def, nil // a scheme may start without fields
	}

	list, err := fieldsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for i := 0; list.Next(); i++ {
		f, err := compileField(list.Value(), fmt.Sprintf("fields[%d]", i))
		if err != nil {
			return nil, err
		}
		def.Fields = append(def.Fields, f)
	}

	return def, nil
}

// compileField decodes one field struct through the stored wire form.
func compileField(v cue.Value, path string) (ir.FieldDef, error) {
	if v.IncompleteKind() != cue.StructKind {
		return ir.FieldDef{}, &CompileError{Field: path, Message: "field must be a struct", Pos: v.Pos()}
	}

	iter, err := v.Fields()
	if err != nil {
		return ir.FieldDef{}, formatCUEError(err)
	}
	for iter.Next() {
		if !slices.Contains(fieldAttrs, iter.Label()) {
			return ir.FieldDef{}, &CompileError{
				Field:   path + "." + iter.Label(),
				Message: "unknown field attribute",
				Pos:     iter.Value().Pos(),
			}
		}
	}

	key, err := requiredString(v, "key", path)
	if err != nil {
		return ir.FieldDef{}, err
	}
	typeName, err := requiredString(v, "type", path)
	if err != nil {
		return ir.FieldDef{}, err
	}
	ft := ir.FieldType(typeName)
	allowed, ok := typeRules[ft]
	if !ok {
		return ir.FieldDef{}, &CompileError{
			Field:   path + ".type",
			Message: fmt.Sprintf("unknown field type %q (want STRING, NUMBER, BOOLEAN, ENTRIES or UPLOADS)", typeName),
			Pos:     v.LookupPath(cue.ParsePath("type")).Pos(),
		}
	}

	rulesVal := v.LookupPath(cue.ParsePath("rules"))
	if rulesVal.Exists() {
		rIter, err := rulesVal.Fields()
		if err != nil {
			return ir.FieldDef{}, formatCUEError(err)
		}
		for rIter.Next() {
			name := rIter.Label()
			if !slices.Contains(allowed, name) && !slices.Contains(sharedRules, name) {
				return ir.FieldDef{}, &CompileError{
					Field:   path + ".rules." + name,
					Message: fmt.Sprintf("rule does not apply to %s fields", ft),
					Pos:     rIter.Value().Pos(),
				}
			}
		}
	}

	raw, err := v.MarshalJSON()
	if err != nil {
		return ir.FieldDef{}, formatCUEError(err)
	}
	var f ir.FieldDef
	if err := json.Unmarshal(raw, &f); err != nil {
		return ir.FieldDef{}, &CompileError{Field: path, Message: err.Error(), Pos: v.Pos()}
	}
	f.Key = key
	if !v.LookupPath(cue.ParsePath("access")).Exists() {
		f.Access = slices.Clone(defaultAccess)
	}
	return f, nil
}

// DecodeField decodes a field definition from its JSON wire form, the shape
// the field takes in a CUE document. Access defaults to every role.
func DecodeField(raw []byte) (ir.FieldDef, error) {
	obj, err := ir.UnmarshalIRObject(raw)
	if err != nil {
		return ir.FieldDef{}, fmt.Errorf("field definition: %w", err)
	}
	for _, k := range obj.Keys() {
		if !slices.Contains(fieldAttrs, k) {
			return ir.FieldDef{}, fmt.Errorf("field definition: unknown attribute %q", k)
		}
	}
	var f ir.FieldDef
	if err := json.Unmarshal(raw, &f); err != nil {
		return ir.FieldDef{}, fmt.Errorf("field definition: %w", err)
	}
	if !obj.Has("access") {
		f.Access = slices.Clone(defaultAccess)
	}
	return f, nil
}

func requiredString(v cue.Value, attr, path string) (string, error) {
	attrVal := v.LookupPath(cue.ParsePath(attr))
	if !attrVal.Exists() {
		return "", &CompileError{
			Field:   path + "." + attr,
			Message: attr + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := attrVal.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// unquote strips the quotes CUE keeps on string labels.
func unquote(sel cue.Selector) string {
	if sel.LabelType() == cue.StringLabel {
		return sel.Unquoted()
	}
	return sel.String()
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
