package engine

import "github.com/roach88/archetype/internal/ir"

// Redact projects data to the fields role may read.
//
// Visible fields take data[key] when it is present and not null, and the
// field's default otherwise (null when unset).
// Hidden fields are omitted, not nulled. Keys the scheme does not declare
// are dropped. The result follows scheme field order and shares no memory
// with data.
func Redact(data *ir.IRObject, fields []ir.FieldDef, role ir.Role) *ir.IRObject {
	out := ir.NewIRObject()
	for _, f := range fields {
		if !f.VisibleTo(role) {
			continue
		}
		if v, ok := data.Get(f.Key); ok {
			if _, isNull := v.(ir.IRNull); !isNull {
				out.Set(f.Key, ir.CloneValue(v))
				continue
			}
		}
		if f.Default != nil {
			out.Set(f.Key, ir.CloneValue(f.Default))
		} else {
			out.Set(f.Key, ir.IRNull{})
		}
	}
	return out
}

// pushableKeys returns the keys whose redacted value equals the stored
// value for role: visible fields without a default. Only these may be
// prefiltered in SQL.
func pushableKeys(fields []ir.FieldDef, role ir.Role) func(string) bool {
	keys := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.VisibleTo(role) && !f.HasDefault() {
			keys[f.Key] = true
		}
	}
	return func(key string) bool { return keys[key] }
}
