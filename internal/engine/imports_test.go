package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/archetype/internal/engine"
	"github.com/roach88/archetype/internal/ir"
)

func TestImport_CreatesAndExtends(t *testing.T) {
	forEachBackend(t, func(t *testing.T, eng *engine.Engine) {
		existing := mustScheme(t, eng, "authors", stringField("name"))

		defs := []ir.SchemeDef{
			{Name: "books", Fields: []ir.FieldDef{stringField("title"), numberField("pages")}, Source: "books.cue"},
			{Name: "authors", Fields: []ir.FieldDef{numberField("name"), stringField("bio")}, Source: "authors.cue"},
		}
		results, err := eng.Import(ctx(), defs, actor)
		require.NoError(t, err)
		require.Len(t, results, 2)

		books := results[0]
		assert.True(t, books.Created)
		assert.Equal(t, []string{"title", "pages"}, books.Added)
		assert.Empty(t, books.Skipped)
		assert.Equal(t, 1, books.Version)

		authors := results[1]
		assert.False(t, authors.Created)
		assert.Equal(t, existing.ID, authors.SchemeID)
		assert.Equal(t, []string{"bio"}, authors.Added)
		assert.Equal(t, []string{"name"}, authors.Skipped)

		// Existing fields are never updated
		got, err := eng.Schemes.Get(ctx(), existing.ID)
		require.NoError(t, err)
		assert.Equal(t, ir.TypeString, got.Fields[0].Type)
		assert.Equal(t, []string{"name", "bio"}, fieldKeys(got))
	})
}

func TestImport_Idempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, eng *engine.Engine) {
		defs := []ir.SchemeDef{{Name: "books", Fields: []ir.FieldDef{stringField("title")}}}

		_, err := eng.Import(ctx(), defs, actor)
		require.NoError(t, err)
		again, err := eng.Import(ctx(), defs, actor)
		require.NoError(t, err)

		assert.False(t, again[0].Created)
		assert.Empty(t, again[0].Added)
		assert.Equal(t, []string{"title"}, again[0].Skipped)

		list, err := eng.Schemes.List(ctx())
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}

func TestImport_StopsAtFirstFailure(t *testing.T) {
	forEachBackend(t, func(t *testing.T, eng *engine.Engine) {
		defs := []ir.SchemeDef{
			{Name: "ok", Fields: []ir.FieldDef{stringField("title")}},
			{Name: "broken", Fields: []ir.FieldDef{{Key: "x", Type: "DATE"}}},
			{Name: "never", Fields: []ir.FieldDef{stringField("title")}},
		}
		results, err := eng.Import(ctx(), defs, actor)
		require.True(t, engine.IsValidation(err))
		require.Len(t, results, 1)
		assert.Equal(t, "ok", results[0].Name)

		list, err := eng.Schemes.List(ctx())
		require.NoError(t, err)
		names := []string{}
		for _, s := range list {
			names = append(names, s.Name)
		}
		assert.NotContains(t, names, "never")
	})
}
