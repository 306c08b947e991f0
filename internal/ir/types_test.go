package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	for _, name := range []string{"PUBLIC", "EDITOR", "ADMIN"} {
		r, err := ParseRole(name)
		require.NoError(t, err)
		assert.Equal(t, Role(name), r)
	}

	_, err := ParseRole("admin")
	require.Error(t, err)
}

func TestFieldDefVisibleTo(t *testing.T) {
	f := FieldDef{Key: "title", Access: []Role{RoleEditor, RoleAdmin}}

	assert.False(t, f.VisibleTo(RolePublic))
	assert.True(t, f.VisibleTo(RoleEditor))
	assert.True(t, f.VisibleTo(RoleAdmin))
	assert.False(t, FieldDef{Key: "hidden"}.VisibleTo(RoleAdmin))
}

func TestFieldDefWireRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		def  FieldDef
	}{
		{
			name: "string with all rules",
			def: FieldDef{
				Key: "title", Label: "Title", Type: TypeString, Required: true,
				Rules:  StringRules{MinChar: Ptr(2), MaxChar: Ptr(40), Pattern: "^[A-Z]", Format: FormatAddress},
				Access: []Role{RolePublic},
			},
		},
		{
			name: "number array with enum and default",
			def: FieldDef{
				Key: "scores", Label: "Scores", Type: TypeNumber, IsArray: true,
				Rules:   NumberRules{MinValue: Ptr(0.5), MaxValue: Ptr(10.0), Step: Ptr(0.5)},
				Array:   ArrayRules{MinLength: Ptr(1), MaxLength: Ptr(3)},
				Enum:    []IRValue{IRInt(1), IRFloat(1.5)},
				Access:  []Role{RoleEditor, RoleAdmin},
				Default: IRArray{IRInt(1)},
			},
		},
		{
			name: "entries",
			def: FieldDef{
				Key: "author", Type: TypeEntries,
				Rules:  EntryRules{Schemes: []int64{3, 4}},
				Access: []Role{RoleAdmin},
			},
		},
		{
			name: "uploads",
			def: FieldDef{
				Key: "cover", Type: TypeUploads,
				Rules:  UploadRules{Mimetypes: []string{"image/png"}, MaxSize: Ptr(int64(1024))},
				Access: []Role{RoleAdmin},
			},
		},
		{
			name: "boolean",
			def: FieldDef{
				Key: "published", Type: TypeBoolean,
				Rules:  BooleanRules{},
				Access: []Role{RolePublic},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.def)
			require.NoError(t, err)

			var decoded FieldDef
			require.NoError(t, json.Unmarshal(data, &decoded))

			assert.Equal(t, tt.def.Key, decoded.Key)
			assert.Equal(t, tt.def.Rules, decoded.Rules)
			assert.Equal(t, tt.def.Array, decoded.Array)
			assert.Equal(t, tt.def.Access, decoded.Access)
			assert.Equal(t, len(tt.def.Enum), len(decoded.Enum))
			for i := range tt.def.Enum {
				assert.True(t, Equal(tt.def.Enum[i], decoded.Enum[i]))
			}
			assert.True(t, Equal(tt.def.Default, decoded.Default))
		})
	}
}

func TestFieldDefWireIsFlat(t *testing.T) {
	def := FieldDef{
		Key: "name", Label: "Name", Type: TypeString,
		Rules:  StringRules{MinChar: Ptr(1), Format: FormatHexColor},
		Array:  ArrayRules{MaxLength: Ptr(5)},
		Enum:   []IRValue{IRString("#fff")},
		Access: []Role{RolePublic},
	}

	data, err := json.Marshal(def)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"key": "name", "label": "Name", "type": "STRING", "is_array": false, "required": false,
		"rules": {"min-char": 1, "format": "hex-color", "max-length": 5, "enum": ["#fff"]},
		"access": ["PUBLIC"]
	}`, string(data))
}

func TestFieldDefDecodeDropsForeignRules(t *testing.T) {
	var def FieldDef
	err := json.Unmarshal([]byte(`{
		"key": "age", "type": "NUMBER",
		"rules": {"min-value": 0, "min-char": 3, "pattern": "x", "schemes": [1]},
		"access": ["PUBLIC"]
	}`), &def)
	require.NoError(t, err)

	assert.Equal(t, NumberRules{MinValue: Ptr(0.0)}, def.Rules)
}

func TestFieldDefDecodeUnknownTypeKeepsType(t *testing.T) {
	var def FieldDef
	require.NoError(t, json.Unmarshal([]byte(`{"key":"x","type":"DATE","rules":{}}`), &def))

	assert.Equal(t, FieldType("DATE"), def.Type)
	assert.Nil(t, def.Rules)
	require.Error(t, def.Check())
}

func TestFieldDefNullDefaultIsUnset(t *testing.T) {
	var def FieldDef
	require.NoError(t, json.Unmarshal([]byte(`{"key":"x","type":"STRING","default":null}`), &def))

	assert.Nil(t, def.Default)
	assert.False(t, def.HasDefault())
}

func TestFieldDefCheck(t *testing.T) {
	tests := []struct {
		name    string
		def     FieldDef
		wantErr string
	}{
		{"valid", FieldDef{Key: "a", Type: TypeString, Access: []Role{RolePublic}}, ""},
		{"missing key", FieldDef{Type: TypeString}, "key is required"},
		{"unknown type", FieldDef{Key: "a", Type: "TEXT"}, "unknown type"},
		{"mismatched rules", FieldDef{Key: "a", Type: TypeString, Rules: NumberRules{}}, "rules for NUMBER"},
		{"unknown role", FieldDef{Key: "a", Type: TypeBoolean, Access: []Role{"ROOT"}}, "unknown role"},
		{"bad pattern", FieldDef{Key: "a", Type: TypeString, Rules: StringRules{Pattern: "("}}, "pattern"},
		{"bad string format", FieldDef{Key: "a", Type: TypeString, Rules: StringRules{Format: "email"}}, "unknown string format"},
		{"bad number format", FieldDef{Key: "a", Type: TypeNumber, Rules: NumberRules{Format: "uint"}}, "unknown number format"},
		{"char range", FieldDef{Key: "a", Type: TypeString, Rules: StringRules{MinChar: Ptr(5), MaxChar: Ptr(2)}}, "min-char 5 exceeds max-char 2"},
		{"negative char", FieldDef{Key: "a", Type: TypeString, Rules: StringRules{MinChar: Ptr(-1)}}, "must not be negative"},
		{"value range", FieldDef{Key: "a", Type: TypeNumber, Rules: NumberRules{MinValue: Ptr(3.0), MaxValue: Ptr(1.0)}}, "exceeds max-value"},
		{"length range", FieldDef{Key: "a", Type: TypeNumber, IsArray: true, Array: ArrayRules{MinLength: Ptr(4), MaxLength: Ptr(1)}}, "min-length 4 exceeds max-length 1"},
		{"size range", FieldDef{Key: "a", Type: TypeUploads, Rules: UploadRules{MinSize: Ptr(int64(10)), MaxSize: Ptr(int64(1))}}, "exceeds max-size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Check()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var defErr *DefinitionError
			require.ErrorAs(t, err, &defErr)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFieldDefCloneIsDeep(t *testing.T) {
	orig := FieldDef{
		Key:    "n",
		Type:   TypeNumber,
		Rules:  NumberRules{MinValue: Ptr(1.0)},
		Access: []Role{RolePublic},
		Enum:   []IRValue{IRInt(1)},
	}
	clone := orig.Clone()

	*clone.Rules.(NumberRules).MinValue = 9
	clone.Access[0] = RoleAdmin
	clone.Enum[0] = IRInt(2)

	assert.Equal(t, 1.0, *orig.Rules.(NumberRules).MinValue)
	assert.Equal(t, RolePublic, orig.Access[0])
	assert.Equal(t, IRInt(1), orig.Enum[0])
}

func TestSchemeFieldLookup(t *testing.T) {
	s := Scheme{Fields: []FieldDef{{Key: "a"}, {Key: "b"}}}

	assert.Equal(t, 1, s.FieldIndex("b"))
	assert.Equal(t, -1, s.FieldIndex("c"))
	f, ok := s.Field("a")
	require.True(t, ok)
	assert.Equal(t, "a", f.Key)
	_, ok = s.Field("c")
	assert.False(t, ok)
}

func TestSchemeJSONUsesFieldWireForm(t *testing.T) {
	s := Scheme{ID: 1, Name: "Post", Version: 2, Fields: []FieldDef{
		{Key: "title", Type: TypeString, Rules: StringRules{MaxChar: Ptr(10)}, Access: []Role{RolePublic}},
	}}

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"max-char":10`)
	assert.Contains(t, string(data), `"is_array":false`)
}
