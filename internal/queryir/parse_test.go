package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/archetype/internal/ir"
)

func TestParseRootMustBeArray(t *testing.T) {
	for _, raw := range []string{`{}`, `"AND"`, `[]`, `null`, `42`} {
		_, err := Parse([]byte(raw))
		assert.ErrorIs(t, err, ErrNotQuery, raw)
	}

	_, err := Parse([]byte(`[`))
	require.Error(t, err)
}

func TestParseOperatorsCaseInsensitive(t *testing.T) {
	e := MustParse(`["equal", ["key", "a"], ["value", 1]]`)

	cmp, ok := e.(*Compare)
	require.True(t, ok, "got %T", e)
	assert.Equal(t, CmpEqual, cmp.Op)
	assert.Equal(t, &Key{Name: "a"}, cmp.Left)
	assert.Equal(t, &Literal{Value: ir.IRInt(1)}, cmp.Right)
}

func TestParseNodeShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Expr
	}{
		{
			name: "and of compares",
			raw:  `["AND", ["EQUAL", ["KEY","a"], ["VALUE",1]], ["GREATER-THAN", ["KEY","b"], ["VALUE",0]]]`,
			want: &And{Exprs: []Expr{
				&Compare{Op: CmpEqual, Left: &Key{Name: "a"}, Right: &Literal{Value: ir.IRInt(1)}},
				&Compare{Op: CmpGreaterThan, Left: &Key{Name: "b"}, Right: &Literal{Value: ir.IRInt(0)}},
			}},
		},
		{
			name: "or empty",
			raw:  `["OR"]`,
			want: &Or{Exprs: []Expr{}},
		},
		{
			name: "not",
			raw:  `["NOT", ["IS-NULL", ["KEY","a"]]]`,
			want: &Not{Expr: &IsNull{Selector: &Key{Name: "a"}}},
		},
		{
			name: "not-in with bare array literal",
			raw:  `["NOT-IN", ["KEY","tag"], ["x","y"]]`,
			want: &In{Negate: true, Left: &Key{Name: "tag"}, Right: &Literal{Value: ir.IRArray{ir.IRString("x"), ir.IRString("y")}}},
		},
		{
			name: "between with bare bounds",
			raw:  `["BETWEEN", ["PATH","a.b"], 1, 2.5]`,
			want: &Between{Value: NewPath("a.b"), Low: &Literal{Value: ir.IRInt(1)}, High: &Literal{Value: ir.IRFloat(2.5)}},
		},
		{
			name: "starts-with",
			raw:  `["STARTS-WITH", ["KEY","name"], "Jo"]`,
			want: &StringMatch{Op: MatchStartsWith, Left: &Key{Name: "name"}, Right: &Literal{Value: ir.IRString("Jo")}},
		},
		{
			name: "exists with bare key",
			raw:  `["EXISTS", "a"]`,
			want: &Exists{Selector: &Key{Name: "a"}},
		},
		{
			name: "is-not-null with path",
			raw:  `["IS-NOT-NULL", ["PATH","a.b"]]`,
			want: &IsNull{Negate: true, Selector: NewPath("a.b")},
		},
		{
			name: "all",
			raw:  `["ALL", ["KEY","xs"], ["GREATER-THAN", ["KEY","item"], 0]]`,
			want: &Quantifier{All: true, List: &Key{Name: "xs"}, Pred: &Compare{Op: CmpGreaterThan, Left: &Key{Name: "item"}, Right: &Literal{Value: ir.IRInt(0)}}},
		},
		{
			name: "selector as condition",
			raw:  `["KEY","published"]`,
			want: &Truth{Operand: &Key{Name: "published"}},
		},
		{
			name: "nested query as operand",
			raw:  `["EQUAL", ["EXISTS","a"], ["VALUE", false]]`,
			want: &Compare{Op: CmpEqual, Left: &SubExpr{Expr: &Exists{Selector: &Key{Name: "a"}}}, Right: &Literal{Value: ir.IRBool(false)}},
		},
		{
			name: "value selector wraps arrays",
			raw:  `["IN", ["KEY","a"], ["VALUE", ["AND","OR"]]]`,
			want: &In{Left: &Key{Name: "a"}, Right: &Literal{Value: ir.IRArray{ir.IRString("AND"), ir.IRString("OR")}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MustParse(tt.raw))
		})
	}
}

func TestParseMalformedBecomesUnknown(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{"unknown operator", `["LIKE", ["KEY","a"], "x"]`, "unknown operator"},
		{"too few operands", `["EQUAL", ["KEY","a"]]`, "expected 2 operands, got 1"},
		{"too many operands", `["NOT", ["KEY","a"], ["KEY","b"]]`, "expected 1 operands, got 2"},
		{"non-string head", `[1, 2]`, "expected an operator node"},
		{"key selector arity", `["EQUAL", ["KEY"], 1]`, "KEY selector takes 1 argument"},
		{"key selector type", `["EQUAL", ["KEY", 3], 1]`, "KEY selector needs a string"},
		{"exists needs selector", `["EXISTS", ["VALUE", "a"]]`, "expected a KEY or PATH selector"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := MustParse(tt.raw)
			u, ok := e.(*Unknown)
			require.True(t, ok, "got %T", e)
			assert.Contains(t, u.Reason, tt.reason)
		})
	}
}

func TestParseUnknownNestedInsideAnd(t *testing.T) {
	e := MustParse(`["AND", ["EQUAL", ["KEY","a"], 1], ["FROB"]]`)

	and, ok := e.(*And)
	require.True(t, ok)
	require.Len(t, and.Exprs, 2)
	assert.IsType(t, &Compare{}, and.Exprs[0])
	assert.IsType(t, &Unknown{}, and.Exprs[1])
}

func TestIsOperator(t *testing.T) {
	assert.True(t, IsOperator("and"))
	assert.True(t, IsOperator("Not-In"))
	assert.False(t, IsOperator("KEY"))
	assert.False(t, IsOperator("frob"))
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse(`{}`) })
}
