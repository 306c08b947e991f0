package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/archetype/internal/ir"
)

func field(key string, t ir.FieldType) ir.FieldDef {
	return ir.FieldDef{Key: key, Type: t, Access: []ir.Role{ir.RolePublic}}
}

func TestValidateValid(t *testing.T) {
	defs := []ir.SchemeDef{
		{Name: "Articles", Fields: []ir.FieldDef{field("title", ir.TypeString), field("views", ir.TypeNumber)}},
		{Name: "Authors"},
	}

	assert.Empty(t, Validate(defs))
	assert.Empty(t, Validate(&defs[0]))
	assert.Empty(t, Validate(defs[1]))
}

func TestValidateCollectsAll(t *testing.T) {
	broken := field("pattern", ir.TypeString)
	broken.Rules = ir.StringRules{Pattern: "("}
	ref := field("author", ir.TypeEntries)
	ref.Rules = ir.EntryRules{Schemes: []int64{0}}

	defs := []ir.SchemeDef{
		{Name: " ", Source: "a.cue"},
		{Name: "Articles", Fields: []ir.FieldDef{field("title", ir.TypeString), field("title", ir.TypeNumber)}},
		{Name: "Articles", Fields: []ir.FieldDef{broken, ref}},
	}

	errs := Validate(defs)
	codes := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = e.Code
	}
	assert.Equal(t, []string{
		ErrSchemeNameEmpty,
		ErrDuplicateFieldKey,
		ErrDuplicateScheme,
		ErrInvalidDefinition,
		ErrInvalidSchemeRef,
	}, codes)

	assert.Equal(t, "a.cue", errs[0].Source)
	assert.Contains(t, errs[0].Error(), "[E101] a.cue: schemes[0].name")
	assert.Equal(t, "Articles.fields[1].key", errs[1].Field)
	assert.Contains(t, errs[2].Message, "first at schemes[1]")
	assert.Contains(t, errs[3].Message, "pattern")
}

func TestValidateUnsupportedType(t *testing.T) {
	errs := Validate("not a scheme")
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnsupportedIRType, errs[0].Code)
	assert.Equal(t, "[E100] type: unsupported IR type: string", errs[0].Error())
}
