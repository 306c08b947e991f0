package ir

import (
	"fmt"
	"slices"
)

// Role gates field visibility. The caller's role is resolved outside the core.
type Role string

const (
	RolePublic Role = "PUBLIC"
	RoleEditor Role = "EDITOR"
	RoleAdmin  Role = "ADMIN"
)

// ValidRoles defines allowed roles.
var ValidRoles = map[Role]bool{
	RolePublic: true,
	RoleEditor: true,
	RoleAdmin:  true,
}

// ParseRole accepts a role name in canonical upper case.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !ValidRoles[r] {
		return "", fmt.Errorf("unknown role %q (expected PUBLIC, EDITOR or ADMIN)", s)
	}
	return r, nil
}

// FieldType is the scalar type of a field's value (or of each element when IsArray).
type FieldType string

const (
	TypeString  FieldType = "STRING"
	TypeNumber  FieldType = "NUMBER"
	TypeBoolean FieldType = "BOOLEAN"
	TypeEntries FieldType = "ENTRIES"
	TypeUploads FieldType = "UPLOADS"
)

// ValidFieldTypes defines allowed field types.
var ValidFieldTypes = map[FieldType]bool{
	TypeString:  true,
	TypeNumber:  true,
	TypeBoolean: true,
	TypeEntries: true,
	TypeUploads: true,
}

// FieldDef describes one key of a scheme.
type FieldDef struct {
	Key      string
	Label    string
	Type     FieldType
	IsArray  bool
	Required bool
	Rules    Rules      // nil when the type carries no rules
	Array    ArrayRules // applies only when IsArray
	Enum     []IRValue  // empty means unrestricted
	Access   []Role
	Default  IRValue // nil when unset
}

// VisibleTo reports whether role may read this field.
func (f FieldDef) VisibleTo(role Role) bool {
	return slices.Contains(f.Access, role)
}

// HasDefault reports whether a non-null default is configured.
func (f FieldDef) HasDefault() bool {
	switch f.Default.(type) {
	case nil, IRNull:
		return false
	default:
		return true
	}
}

// Clone returns a deep copy of the definition.
func (f FieldDef) Clone() FieldDef {
	out := f
	out.Rules = cloneRules(f.Rules)
	out.Array = ArrayRules{MinLength: cloneInt(f.Array.MinLength), MaxLength: cloneInt(f.Array.MaxLength)}
	if f.Enum != nil {
		out.Enum = make([]IRValue, len(f.Enum))
		for i, v := range f.Enum {
			out.Enum[i] = CloneValue(v)
		}
	}
	out.Access = slices.Clone(f.Access)
	if f.Default != nil {
		out.Default = CloneValue(f.Default)
	}
	return out
}

// Scheme is a named, versioned ordered list of field definitions.
// Version starts at 1 and only grows.
type Scheme struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Version    int        `json:"version"`
	Fields     []FieldDef `json:"fields"`
	CreatedAt  int64      `json:"created_at"`
	ModifiedAt int64      `json:"modified_at"`
	ModifiedBy int64      `json:"modified_by"`
}

// FieldIndex returns the position of key in Fields, or -1.
func (s Scheme) FieldIndex(key string) int {
	return slices.IndexFunc(s.Fields, func(f FieldDef) bool { return f.Key == key })
}

// Field returns the definition for key.
func (s Scheme) Field(key string) (FieldDef, bool) {
	i := s.FieldIndex(key)
	if i < 0 {
		return FieldDef{}, false
	}
	return s.Fields[i], true
}

// Clone returns a deep copy so cached schemes are never mutated by callers.
func (s Scheme) Clone() Scheme {
	out := s
	out.Fields = make([]FieldDef, len(s.Fields))
	for i, f := range s.Fields {
		out.Fields[i] = f.Clone()
	}
	return out
}

// SchemeSummary is the List projection of a scheme.
type SchemeSummary struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Version    int    `json:"version"`
	FieldCount int    `json:"field_count"`
	ModifiedAt int64  `json:"modified_at"`
}

// SchemeDef is a scheme described outside the store, e.g. in a CUE document.
type SchemeDef struct {
	Name   string     `json:"name"`
	Fields []FieldDef `json:"fields"`
	Source string     `json:"source,omitempty"` // file the definition came from
}

// Entry is a stored document conforming to the scheme at SchemeVersion.
type Entry struct {
	ID            int64     `json:"id"`
	SchemeID      int64     `json:"scheme_id"`
	SchemeVersion int       `json:"scheme_version"`
	Data          *IRObject `json:"data"`
	CreatedAt     int64     `json:"created_at"`
	ModifiedAt    int64     `json:"modified_at"`
	ModifiedBy    int64     `json:"modified_by"`
}

// MigrationKind names the scheme mutation that produced a migration record.
type MigrationKind string

const (
	MigrationRemoveField MigrationKind = "remove-field"
	MigrationRekeyField  MigrationKind = "rekey-field"
	MigrationUpdateField MigrationKind = "update-field"
)

// MigrationRecord is the audit trail of one migration pass.
type MigrationRecord struct {
	ID          int64         `json:"id"`
	SchemeID    int64         `json:"scheme_id"`
	Token       string        `json:"token"` // UUIDv7
	Kind        MigrationKind `json:"kind"`
	FieldKey    string        `json:"field_key"`
	FromVersion int           `json:"from_version"`
	ToVersion   int           `json:"to_version"`
	Affected    int           `json:"affected"`
	Actor       int64         `json:"actor"`
	CreatedAt   int64         `json:"created_at"`
}

// SchemeUpdate is one atomic scheme write. The repository stores Scheme only
// if the stored row still has ExpectVersion and ExpectFields, rewrites every
// entry of the scheme through Migrate, and appends Migration, all in one
// transaction.
type SchemeUpdate struct {
	Scheme        Scheme
	ExpectVersion int
	ExpectFields  []FieldDef

	// Migrate rewrites one entry's data in place and reports whether it
	// changed. Nil skips the migration pass.
	Migrate func(data *IRObject) bool

	// Migration is appended with Affected set to the number of rewritten
	// entries. Nil records nothing.
	Migration *MigrationRecord
}

// SchemeGuard pins an entry write to the scheme state its data was
// validated against. The write applies only if the stored scheme still has
// Version and Fields; otherwise it fails with ErrVersionConflict.
type SchemeGuard struct {
	Version int
	Fields  []FieldDef
}

// GuardOf returns the guard for writes validated against s.
func GuardOf(s Scheme) *SchemeGuard {
	return &SchemeGuard{Version: s.Version, Fields: s.Fields}
}

// UploadInfo is the metadata of an uploaded file. File bytes live elsewhere.
type UploadInfo struct {
	ID        int64  `json:"id"`
	Mime      string `json:"mime"`
	Size      int64  `json:"size_bytes"`
	CreatedAt int64  `json:"created_at"`
}

// EntryQuery selects entries of one scheme.
type EntryQuery struct {
	SchemeID int64
	Version  int // 0 selects every version

	// Where is an optional SQL prefilter over the data column; backends
	// without SQL ignore it. Callers must re-check every returned row.
	Where     string
	WhereArgs []any
}
