package queryir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCleanQuery(t *testing.T) {
	r := Validate(MustParse(`["AND", ["EQUAL", ["KEY","a"], 1], ["ANY", ["KEY","xs"], ["GREATER-THAN", ["KEY","item"], 0]]]`))

	assert.True(t, r.Valid)
	assert.Empty(t, r.Warnings)
}

func TestValidateWarnings(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		valid   bool
		warning string
	}{
		{"unknown operator", `["FROB", 1]`, false, "FROB: unknown operator"},
		{"nested unknown keeps location", `["AND", ["EXISTS","a"], ["EQUAL", 1]]`, false, "$[2]: EQUAL: expected 2 operands"},
		{"non-operator node", `["AND", [1, 2]]`, false, "expected an operator node"},
		{"empty OR", `["OR"]`, true, "OR without operands never matches"},
		{"ordering against bool", `["GREATER-THAN", ["KEY","a"], true]`, true, "boolean literal has no ordering"},
		{"ordering against null", `["LESS-THAN", ["KEY","a"], null]`, true, "null literal has no ordering"},
		{"between bound with no order", `["BETWEEN", ["KEY","a"], 1, [2]]`, true, "array literal has no ordering"},
		{"between inverted", `["BETWEEN", ["KEY","a"], 10, 1]`, true, "lower bound is greater than upper bound"},
		{"key out of item scope", `["ALL", ["KEY","xs"], ["EQUAL", ["KEY","name"], "x"]]`, true, `key "name" is not in scope`},
		{"path out of item scope", `["ANY", ["KEY","xs"], ["EXISTS", ["PATH","meta.id"]]]`, true, `path "meta.id" is not in scope`},
		{"sub-query inside item scope", `["ANY", ["KEY","xs"], ["EQUAL", ["EXISTS","other"], true]]`, true, `key "other" is not in scope`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Validate(MustParse(tt.raw))
			assert.Equal(t, tt.valid, r.Valid)
			require.NotEmpty(t, r.Warnings)

			found := false
			for _, w := range r.Warnings {
				if strings.Contains(w, tt.warning) {
					found = true
				}
			}
			assert.True(t, found, "warnings %v should mention %q", r.Warnings, tt.warning)
		})
	}
}

func TestValidateEqualityAllowsAnyLiteral(t *testing.T) {
	r := Validate(MustParse(`["EQUAL", ["KEY","a"], null]`))
	assert.True(t, r.Valid)
	assert.Empty(t, r.Warnings)
}

func TestValidateItemPathAllowed(t *testing.T) {
	r := Validate(MustParse(`["ANY", ["KEY","xs"], ["EQUAL", ["PATH","item.sku"], "a"]]`))
	assert.Empty(t, r.Warnings)
}

func TestValidateNilNode(t *testing.T) {
	r := Validate(&And{Exprs: []Expr{nil}})
	assert.False(t, r.Valid)
	assert.Equal(t, []string{"$[1]: nil query node"}, r.Warnings)
}

func TestValidateWarningOrder(t *testing.T) {
	r := Validate(MustParse(`["AND", ["FROB"], ["OR"]]`))
	require.Len(t, r.Warnings, 2)
	assert.Contains(t, r.Warnings[0], "$[1]")
	assert.Contains(t, r.Warnings[1], "$[2]")
}
