package engine_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/archetype/internal/engine"
	"github.com/roach88/archetype/internal/ir"
)

// flakyRepo fails the first n SaveScheme calls with err.
type flakyRepo struct {
	engine.Repository
	err   error
	fails int32
	calls atomic.Int32
}

func (r *flakyRepo) SaveScheme(ctx context.Context, u ir.SchemeUpdate) (int, error) {
	if r.calls.Add(1) <= r.fails {
		return 0, r.err
	}
	return r.Repository.SaveScheme(ctx, u)
}

func TestMutation_RetriesTransientErrors(t *testing.T) {
	for _, transient := range []error{ir.ErrVersionConflict, ir.ErrBusy} {
		t.Run(transient.Error(), func(t *testing.T) {
			repo := &flakyRepo{Repository: backends["sqlite"](t), err: transient, fails: 2}
			eng := newEngine(repo)
			sc := mustScheme(t, eng, "articles", stringField("title"))
			repo.calls.Store(0)

			got, err := eng.Schemes.RemoveField(ctx(), sc.ID, "title", actor)
			require.NoError(t, err)
			assert.Equal(t, 2, got.Version)
			assert.Equal(t, int32(3), repo.calls.Load())

			// Only the successful attempt left an audit record
			recs, err := eng.Schemes.Migrations(ctx(), sc.ID)
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, "mig-0003", recs[0].Token)
		})
	}
}

func TestMutation_AttemptsExhausted(t *testing.T) {
	repo := &flakyRepo{Repository: backends["sqlite"](t), err: ir.ErrVersionConflict, fails: 100}
	eng := newEngine(repo, engine.WithMigrationAttempts(2))

	sc, err := eng.Schemes.Create(ctx(), "articles", actor)
	require.NoError(t, err)

	_, err = eng.Schemes.AddField(ctx(), sc.ID, stringField("title"), actor)
	require.Error(t, err)
	assert.Equal(t, engine.KindInternal, engine.KindOf(err))
	assert.ErrorIs(t, err, ir.ErrVersionConflict)
	assert.Equal(t, int32(2), repo.calls.Load())

	got, err := eng.Schemes.Get(ctx(), sc.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Fields)
}

func TestMutation_PermanentErrorNotRetried(t *testing.T) {
	repo := &flakyRepo{Repository: backends["sqlite"](t), err: ir.ErrNotFound, fails: 1}
	eng := newEngine(repo)
	sc, err := eng.Schemes.Create(ctx(), "articles", actor)
	require.NoError(t, err)

	_, err = eng.Schemes.AddField(ctx(), sc.ID, stringField("title"), actor)
	assert.True(t, engine.IsNotFound(err))
	assert.Equal(t, int32(1), repo.calls.Load())
}

func TestMutation_CanceledContext(t *testing.T) {
	eng := newEngine(backends["sqlite"](t))
	sc := mustScheme(t, eng, "articles", stringField("title"))

	c, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := eng.Schemes.RemoveField(c, sc.ID, "title", actor)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMutation_FailedMigrationLeavesEntries(t *testing.T) {
	forEachRepo(t, func(t *testing.T, repo engine.Repository, eng *engine.Engine) {
		sc := mustScheme(t, eng, "articles", stringField("title"), numberField("views"))
		e := mustEntry(t, eng, sc.ID, obj(ir.O("title", ir.IRString("x")), ir.O("views", ir.IRInt(3))))

		// A racing writer already holds version 1's successor
		next := sc.Clone()
		next.Version = 2
		_, err := repo.SaveScheme(ctx(), ir.SchemeUpdate{Scheme: next, ExpectVersion: 1, ExpectFields: sc.Fields})
		require.NoError(t, err)

		stale := ir.SchemeUpdate{
			Scheme:        sc,
			ExpectVersion: 1,
			ExpectFields:  sc.Fields,
			Migrate:       func(d *ir.IRObject) bool { return d.Delete("views") },
			Migration:     &ir.MigrationRecord{Token: "stale", Kind: ir.MigrationRemoveField, FieldKey: "views"},
		}
		_, err = repo.SaveScheme(ctx(), stale)
		require.ErrorIs(t, err, ir.ErrVersionConflict)

		stored, err := repo.GetEntry(ctx(), e.ID)
		require.NoError(t, err)
		assert.True(t, stored.Data.Has("views"))
		recs, err := repo.ListMigrations(ctx(), sc.ID)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})
}
