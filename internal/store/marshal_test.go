package store

import (
	"testing"

	"github.com/roach88/archetype/internal/ir"
)

func TestMarshalFields_Empty(t *testing.T) {
	for _, fields := range [][]ir.FieldDef{nil, {}} {
		got, err := marshalFields(fields)
		if err != nil {
			t.Fatalf("marshalFields() failed: %v", err)
		}
		if got != "[]" {
			t.Errorf("marshalFields() = %q, want %q", got, "[]")
		}
	}
}

func TestMarshalFields_RoundTrip(t *testing.T) {
	fields := []ir.FieldDef{
		{
			Key:      "title",
			Label:    "Title",
			Type:     ir.TypeString,
			Required: true,
			Rules:    ir.StringRules{MaxChar: ir.Ptr(80), Pattern: "^[A-Z]"},
			Access:   []ir.Role{ir.RolePublic, ir.RoleAdmin},
		},
		{
			Key:     "price",
			Type:    ir.TypeNumber,
			Rules:   ir.NumberRules{MinValue: ir.Ptr(0.0), Step: ir.Ptr(0.5)},
			Default: ir.IRFloat(1.5),
			Access:  []ir.Role{},
		},
	}

	text, err := marshalFields(fields)
	if err != nil {
		t.Fatalf("marshalFields() failed: %v", err)
	}
	got, err := unmarshalFields(text)
	if err != nil {
		t.Fatalf("unmarshalFields() failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d fields, want 2", len(got))
	}
	if got[0].Key != "title" || got[1].Key != "price" {
		t.Errorf("field order not preserved: %q, %q", got[0].Key, got[1].Key)
	}
	rules, ok := got[0].Rules.(ir.StringRules)
	if !ok || rules.MaxChar == nil || *rules.MaxChar != 80 || rules.Pattern != "^[A-Z]" {
		t.Errorf("string rules not preserved: %#v", got[0].Rules)
	}
	changed, err := ir.ShapeChanged(fields[1], got[1])
	if err != nil {
		t.Fatalf("ShapeChanged() failed: %v", err)
	}
	if changed {
		t.Error("number field shape changed across storage")
	}
	if !ir.Equal(got[1].Default, ir.IRFloat(1.5)) {
		t.Errorf("default = %v, want 1.5", got[1].Default)
	}
}

func TestUnmarshalFields_Invalid(t *testing.T) {
	if _, err := unmarshalFields(`{"not":"a list"}`); err == nil {
		t.Error("expected error for non-array fields")
	}
}

func TestMarshalData_PreservesKeyOrder(t *testing.T) {
	data := ir.NewIRObjectFromPairs(
		ir.O("zeta", ir.IRInt(1)),
		ir.O("alpha", ir.IRString("a<b")),
		ir.O("mid", ir.IRArray{ir.IRBool(true), ir.IRNull{}}),
	)

	got, err := marshalData(data)
	if err != nil {
		t.Fatalf("marshalData() failed: %v", err)
	}
	want := `{"zeta":1,"alpha":"a<b","mid":[true,null]}`
	if got != want {
		t.Errorf("marshalData() = %q, want %q", got, want)
	}
}

func TestMarshalData_Nil(t *testing.T) {
	got, err := marshalData(nil)
	if err != nil {
		t.Fatalf("marshalData() failed: %v", err)
	}
	if got != "{}" {
		t.Errorf("marshalData(nil) = %q, want %q", got, "{}")
	}
}

func TestUnmarshalData_LargeIntegerExact(t *testing.T) {
	obj, err := unmarshalData(`{"big":9007199254740993,"f":1.0}`)
	if err != nil {
		t.Fatalf("unmarshalData() failed: %v", err)
	}
	big, _ := obj.Get("big")
	if big != ir.IRInt(9007199254740993) {
		t.Errorf("big = %#v, want IRInt(9007199254740993)", big)
	}
	f, _ := obj.Get("f")
	if _, ok := f.(ir.IRFloat); !ok {
		t.Errorf("f = %#v, want IRFloat", f)
	}
}

func TestUnmarshalData_Empty(t *testing.T) {
	for _, in := range []string{"", "{}"} {
		obj, err := unmarshalData(in)
		if err != nil {
			t.Fatalf("unmarshalData(%q) failed: %v", in, err)
		}
		if obj.Len() != 0 {
			t.Errorf("unmarshalData(%q) has %d keys", in, obj.Len())
		}
	}
}

func TestUnmarshalData_RejectsNonObject(t *testing.T) {
	if _, err := unmarshalData(`[1,2]`); err == nil {
		t.Error("expected error for array data")
	}
}
