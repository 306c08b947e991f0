package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/archetype/internal/ir"
)

func redactFields() []ir.FieldDef {
	return []ir.FieldDef{
		{Key: "title", Type: ir.TypeString, Access: []ir.Role{ir.RolePublic, ir.RoleAdmin}},
		{Key: "notes", Type: ir.TypeString, Access: []ir.Role{ir.RoleEditor, ir.RoleAdmin}},
		{Key: "views", Type: ir.TypeNumber, Access: []ir.Role{ir.RolePublic}, Default: ir.IRInt(0)},
		{Key: "subtitle", Type: ir.TypeString, Access: []ir.Role{ir.RolePublic}},
	}
}

func TestRedact(t *testing.T) {
	data := ir.NewIRObjectFromPairs(
		ir.O("stray", ir.IRBool(true)),
		ir.O("notes", ir.IRString("draft")),
		ir.O("title", ir.IRString("Hello")),
	)

	tests := []struct {
		role ir.Role
		want *ir.IRObject
	}{
		{ir.RolePublic, ir.NewIRObjectFromPairs(
			ir.O("title", ir.IRString("Hello")),
			ir.O("views", ir.IRInt(0)),
			ir.O("subtitle", ir.IRNull{}),
		)},
		{ir.RoleEditor, ir.NewIRObjectFromPairs(
			ir.O("notes", ir.IRString("draft")),
		)},
		{ir.RoleAdmin, ir.NewIRObjectFromPairs(
			ir.O("title", ir.IRString("Hello")),
			ir.O("notes", ir.IRString("draft")),
		)},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			got := Redact(data, redactFields(), tt.role)
			assert.Equal(t, tt.want.Keys(), got.Keys())
			assert.True(t, ir.Equal(tt.want, got), "got %v", got)
		})
	}
}

func TestRedact_StoredNullTakesDefault(t *testing.T) {
	data := ir.NewIRObjectFromPairs(
		ir.O("views", ir.IRNull{}),
		ir.O("subtitle", ir.IRNull{}),
	)

	got := Redact(data, redactFields(), ir.RolePublic)
	v, ok := got.Get("views")
	assert.True(t, ok)
	assert.Equal(t, ir.IRInt(0), v)

	// No default: null stays null
	v, ok = got.Get("subtitle")
	assert.True(t, ok)
	assert.Equal(t, ir.IRNull{}, v)
}

func TestRedact_DoesNotAlias(t *testing.T) {
	tags := ir.IRArray{ir.IRString("a")}
	data := ir.NewIRObjectFromPairs(ir.O("title", tags))
	fields := []ir.FieldDef{{Key: "title", Type: ir.TypeString, IsArray: true, Access: []ir.Role{ir.RolePublic}}}

	got := Redact(data, fields, ir.RolePublic)
	v, _ := got.Get("title")
	v.(ir.IRArray)[0] = ir.IRString("changed")

	orig, _ := data.Get("title")
	assert.Equal(t, ir.IRString("a"), orig.(ir.IRArray)[0])
}

func TestRedact_NoFields(t *testing.T) {
	got := Redact(ir.NewIRObjectFromPairs(ir.O("a", ir.IRInt(1))), nil, ir.RoleAdmin)
	assert.Equal(t, 0, got.Len())
}

func TestPushableKeys(t *testing.T) {
	public := pushableKeys(redactFields(), ir.RolePublic)
	assert.True(t, public("title"))
	assert.True(t, public("subtitle"))
	assert.False(t, public("views"), "defaults differ from stored data")
	assert.False(t, public("notes"), "hidden")
	assert.False(t, public("stray"))

	editor := pushableKeys(redactFields(), ir.RoleEditor)
	assert.True(t, editor("notes"))
	assert.False(t, editor("title"))
}
