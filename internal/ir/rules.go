package ir

import (
	"fmt"
	"regexp"
	"slices"

	json "github.com/goccy/go-json"
)

// Rules is the sealed set of type-specific constraints.
// Only StringRules, NumberRules, BooleanRules, EntryRules and UploadRules implement it.
type Rules interface {
	FieldType() FieldType
	rules() // Sealed - only these types implement it
}

// StringFormat is a named structural check on STRING values.
type StringFormat string

const (
	FormatJSON     StringFormat = "json"
	FormatHTML     StringFormat = "html"
	FormatXML      StringFormat = "xml"
	FormatHexColor StringFormat = "hex-color"
	FormatAddress  StringFormat = "address"
)

// ValidStringFormats defines allowed STRING formats.
var ValidStringFormats = map[StringFormat]bool{
	FormatJSON:     true,
	FormatHTML:     true,
	FormatXML:      true,
	FormatHexColor: true,
	FormatAddress:  true,
}

// NumberFormat restricts NUMBER values to integers.
type NumberFormat string

const (
	FormatInt      NumberFormat = "int"
	FormatDatetime NumberFormat = "datetime" // epoch milliseconds
)

// ValidNumberFormats defines allowed NUMBER formats.
var ValidNumberFormats = map[NumberFormat]bool{
	FormatInt:      true,
	FormatDatetime: true,
}

// StringRules constrain STRING fields. Lengths count Unicode code points.
type StringRules struct {
	MinChar *int
	MaxChar *int
	Pattern string // RE2 syntax, unanchored
	Format  StringFormat
}

// NumberRules constrain NUMBER fields.
type NumberRules struct {
	MinValue *float64
	MaxValue *float64
	Step     *float64 // ignored when <= 0
	Format   NumberFormat
}

// BooleanRules is empty; BOOLEAN fields only check the value type.
type BooleanRules struct{}

// EntryRules constrain ENTRIES fields to entries of the listed schemes.
// An empty list only checks that the value is an integer id.
type EntryRules struct {
	Schemes []int64
}

// UploadRules constrain UPLOADS fields by the referenced upload's metadata.
type UploadRules struct {
	Mimetypes []string
	MinSize   *int64
	MaxSize   *int64
}

// ArrayRules bound the element count of array fields.
type ArrayRules struct {
	MinLength *int
	MaxLength *int
}

func (StringRules) FieldType() FieldType  { return TypeString }
func (NumberRules) FieldType() FieldType  { return TypeNumber }
func (BooleanRules) FieldType() FieldType { return TypeBoolean }
func (EntryRules) FieldType() FieldType   { return TypeEntries }
func (UploadRules) FieldType() FieldType  { return TypeUploads }

func (StringRules) rules()  {}
func (NumberRules) rules()  {}
func (BooleanRules) rules() {}
func (EntryRules) rules()   {}
func (UploadRules) rules()  {}

// IsZero reports whether no upload constraint is set.
func (r UploadRules) IsZero() bool {
	return len(r.Mimetypes) == 0 && r.MinSize == nil && r.MaxSize == nil
}

// wireRules is the persisted flat rules object. Keys irrelevant to the
// field type are dropped on decode.
type wireRules struct {
	MinChar   *int     `json:"min-char,omitempty"`
	MaxChar   *int     `json:"max-char,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Format    string   `json:"format,omitempty"`
	MinValue  *float64 `json:"min-value,omitempty"`
	MaxValue  *float64 `json:"max-value,omitempty"`
	Step      *float64 `json:"step,omitempty"`
	Schemes   []int64  `json:"schemes,omitempty"`
	Mimetypes []string `json:"mimetypes,omitempty"`
	MinSize   *int64   `json:"min-size,omitempty"`
	MaxSize   *int64   `json:"max-size,omitempty"`
	MinLength *int     `json:"min-length,omitempty"`
	MaxLength *int     `json:"max-length,omitempty"`
	Enum      IRArray  `json:"enum,omitempty"`
}

// fieldWire is the persisted shape of a FieldDef.
type fieldWire struct {
	Key      string          `json:"key"`
	Label    string          `json:"label"`
	Type     FieldType       `json:"type"`
	IsArray  bool            `json:"is_array"`
	Required bool            `json:"required"`
	Rules    wireRules       `json:"rules"`
	Access   []Role          `json:"access"`
	Default  json.RawMessage `json:"default,omitempty"`
}

func (f FieldDef) wireRules() wireRules {
	w := wireRules{
		MinLength: f.Array.MinLength,
		MaxLength: f.Array.MaxLength,
	}
	if len(f.Enum) > 0 {
		w.Enum = IRArray(f.Enum)
	}
	switch r := f.Rules.(type) {
	case StringRules:
		w.MinChar, w.MaxChar, w.Pattern, w.Format = r.MinChar, r.MaxChar, r.Pattern, string(r.Format)
	case NumberRules:
		w.MinValue, w.MaxValue, w.Step, w.Format = r.MinValue, r.MaxValue, r.Step, string(r.Format)
	case EntryRules:
		w.Schemes = r.Schemes
	case UploadRules:
		w.Mimetypes, w.MinSize, w.MaxSize = r.Mimetypes, r.MinSize, r.MaxSize
	}
	return w
}

func marshalWire(w wireRules) ([]byte, error) {
	return json.Marshal(w)
}

// rulesFromWire selects the rule struct for t. Unknown types yield nil rules
// so that Check can report the type itself.
func rulesFromWire(t FieldType, w wireRules) Rules {
	switch t {
	case TypeString:
		return StringRules{MinChar: w.MinChar, MaxChar: w.MaxChar, Pattern: w.Pattern, Format: StringFormat(w.Format)}
	case TypeNumber:
		return NumberRules{MinValue: w.MinValue, MaxValue: w.MaxValue, Step: w.Step, Format: NumberFormat(w.Format)}
	case TypeBoolean:
		return BooleanRules{}
	case TypeEntries:
		return EntryRules{Schemes: w.Schemes}
	case TypeUploads:
		return UploadRules{Mimetypes: w.Mimetypes, MinSize: w.MinSize, MaxSize: w.MaxSize}
	default:
		return nil
	}
}

// MarshalJSON writes the flat wire form.
func (f FieldDef) MarshalJSON() ([]byte, error) {
	w := fieldWire{
		Key:      f.Key,
		Label:    f.Label,
		Type:     f.Type,
		IsArray:  f.IsArray,
		Required: f.Required,
		Rules:    f.wireRules(),
		Access:   f.Access,
	}
	if w.Access == nil {
		w.Access = []Role{}
	}
	if f.Default != nil {
		if _, isNull := f.Default.(IRNull); !isNull {
			b, err := MarshalIRValue(f.Default)
			if err != nil {
				return nil, fmt.Errorf("field %q default: %w", f.Key, err)
			}
			w.Default = b
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads the flat wire form.
func (f *FieldDef) UnmarshalJSON(data []byte) error {
	var w fieldWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	def := FieldDef{
		Key:      w.Key,
		Label:    w.Label,
		Type:     w.Type,
		IsArray:  w.IsArray,
		Required: w.Required,
		Rules:    rulesFromWire(w.Type, w.Rules),
		Array:    ArrayRules{MinLength: w.Rules.MinLength, MaxLength: w.Rules.MaxLength},
		Access:   w.Access,
	}
	if len(w.Rules.Enum) > 0 {
		def.Enum = []IRValue(w.Rules.Enum)
	}
	if len(w.Default) > 0 {
		v, err := UnmarshalIRValue(w.Default)
		if err != nil {
			return fmt.Errorf("field %q default: %w", w.Key, err)
		}
		if _, isNull := v.(IRNull); !isNull {
			def.Default = v
		}
	}
	*f = def
	return nil
}

// DefinitionError reports an ill-formed field definition.
type DefinitionError struct {
	Field   string
	Message string
}

func (e *DefinitionError) Error() string {
	if e.Field == "" {
		return "invalid field definition: " + e.Message
	}
	return fmt.Sprintf("invalid field definition %q: %s", e.Field, e.Message)
}

// Check validates the definition itself, not any data. It is run before a
// definition is stored so that validation never meets a broken rule.
func (f FieldDef) Check() error {
	fail := func(format string, args ...any) error {
		return &DefinitionError{Field: f.Key, Message: fmt.Sprintf(format, args...)}
	}

	if f.Key == "" {
		return fail("key is required")
	}
	if !ValidFieldTypes[f.Type] {
		return fail("unknown type %q", f.Type)
	}
	if f.Rules != nil && f.Rules.FieldType() != f.Type {
		return fail("rules for %s given to a %s field", f.Rules.FieldType(), f.Type)
	}
	for _, r := range f.Access {
		if !ValidRoles[r] {
			return fail("unknown role %q", r)
		}
	}
	if err := checkIntRange("length", f.Array.MinLength, f.Array.MaxLength); err != nil {
		return fail("%v", err)
	}

	switch r := f.Rules.(type) {
	case StringRules:
		if err := checkIntRange("char", r.MinChar, r.MaxChar); err != nil {
			return fail("%v", err)
		}
		if r.Pattern != "" {
			if _, err := regexp.Compile(r.Pattern); err != nil {
				return fail("pattern: %v", err)
			}
		}
		if r.Format != "" && !ValidStringFormats[r.Format] {
			return fail("unknown string format %q", r.Format)
		}
	case NumberRules:
		if r.MinValue != nil && r.MaxValue != nil && *r.MinValue > *r.MaxValue {
			return fail("min-value %v exceeds max-value %v", *r.MinValue, *r.MaxValue)
		}
		if r.Format != "" && !ValidNumberFormats[r.Format] {
			return fail("unknown number format %q", r.Format)
		}
	case UploadRules:
		if r.MinSize != nil && *r.MinSize < 0 {
			return fail("min-size must not be negative")
		}
		if r.MinSize != nil && r.MaxSize != nil && *r.MinSize > *r.MaxSize {
			return fail("min-size %d exceeds max-size %d", *r.MinSize, *r.MaxSize)
		}
	}
	return nil
}

func checkIntRange(name string, lo, hi *int) error {
	if lo != nil && *lo < 0 {
		return fmt.Errorf("min-%s must not be negative", name)
	}
	if hi != nil && *hi < 0 {
		return fmt.Errorf("max-%s must not be negative", name)
	}
	if lo != nil && hi != nil && *lo > *hi {
		return fmt.Errorf("min-%s %d exceeds max-%s %d", name, *lo, name, *hi)
	}
	return nil
}

func cloneRules(r Rules) Rules {
	switch v := r.(type) {
	case StringRules:
		v.MinChar, v.MaxChar = cloneInt(v.MinChar), cloneInt(v.MaxChar)
		return v
	case NumberRules:
		v.MinValue, v.MaxValue, v.Step = cloneFloat(v.MinValue), cloneFloat(v.MaxValue), cloneFloat(v.Step)
		return v
	case EntryRules:
		v.Schemes = slices.Clone(v.Schemes)
		return v
	case UploadRules:
		v.Mimetypes = slices.Clone(v.Mimetypes)
		v.MinSize, v.MaxSize = cloneInt64(v.MinSize), cloneInt64(v.MaxSize)
		return v
	default:
		return r
	}
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v. Handy for optional rule bounds.
func Ptr[T any](v T) *T {
	return &v
}
