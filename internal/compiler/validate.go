package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/archetype/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation
	ErrSchemeNameEmpty   = "E101" // scheme name is required
	ErrDuplicateScheme   = "E102" // two definitions share a name
	ErrDuplicateFieldKey = "E103" // two fields share a key
	ErrInvalidDefinition = "E104" // field definition fails its own checks
	ErrInvalidSchemeRef  = "E105" // ENTRIES field lists a non-positive scheme id
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Source  string `json:"source,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("[%s] %s: %s: %s", e.Code, e.Source, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled scheme definitions.
// Returns all errors found (does not fail-fast).
// Supports a single SchemeDef or a slice of them.
func Validate(v any) []ValidationError {
	switch d := v.(type) {
	case *ir.SchemeDef:
		return validateDefs([]ir.SchemeDef{*d})
	case ir.SchemeDef:
		return validateDefs([]ir.SchemeDef{d})
	case []ir.SchemeDef:
		return validateDefs(d)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validateDefs(defs []ir.SchemeDef) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]int)

	for i, def := range defs {
		// E101: name is required
		if strings.TrimSpace(def.Name) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("schemes[%d].name", i),
				Message: "scheme name is required and must be non-empty",
				Code:    ErrSchemeNameEmpty,
				Source:  def.Source,
			})
		}

		// E102: names are matched on import, so they must be unique here
		if prev, dup := seen[def.Name]; dup && def.Name != "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("schemes[%d].name", i),
				Message: fmt.Sprintf("duplicate scheme name %q (first at schemes[%d])", def.Name, prev),
				Code:    ErrDuplicateScheme,
				Source:  def.Source,
			})
		} else {
			seen[def.Name] = i
		}

		errs = append(errs, validateFields(def)...)
	}

	return errs
}

func validateFields(def ir.SchemeDef) []ValidationError {
	var errs []ValidationError
	keys := make(map[string]bool)

	for i, f := range def.Fields {
		path := fmt.Sprintf("%s.fields[%d]", def.Name, i)

		// E103: duplicate field key
		if keys[f.Key] {
			errs = append(errs, ValidationError{
				Field:   path + ".key",
				Message: fmt.Sprintf("duplicate field key %q", f.Key),
				Code:    ErrDuplicateFieldKey,
				Source:  def.Source,
			})
		}
		keys[f.Key] = true

		// E104: the definition itself
		if err := f.Check(); err != nil {
			msg := err.Error()
			var de *ir.DefinitionError
			if errors.As(err, &de) {
				msg = de.Message
			}
			errs = append(errs, ValidationError{
				Field:   path,
				Message: msg,
				Code:    ErrInvalidDefinition,
				Source:  def.Source,
			})
		}

		// E105: scheme ids are positive
		if r, ok := f.Rules.(ir.EntryRules); ok {
			for _, id := range r.Schemes {
				if id <= 0 {
					errs = append(errs, ValidationError{
						Field:   path + ".rules.schemes",
						Message: fmt.Sprintf("scheme id %d is not a valid id", id),
						Code:    ErrInvalidSchemeRef,
						Source:  def.Source,
					})
				}
			}
		}
	}

	return errs
}
