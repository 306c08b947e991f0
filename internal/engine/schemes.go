package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/archetype/internal/ir"
)

// Schemes owns scheme definitions, their field lists and versions.
//
// Every mutation returns the resulting scheme so callers read the new
// version from the call itself. AddField, RekeyField and IndexField never
// change the version; RemoveField always bumps it, UpdateField bumps it
// when the field's shape changes.
type Schemes struct {
	e *Engine
}

// change describes what a mutation did to a scheme.
type change struct {
	event   string
	bump    bool
	kind    ir.MigrationKind // empty: no migration pass
	key     string
	migrate func(data *ir.IRObject) bool
}

// Create stores an empty scheme at version 1.
func (s *Schemes) Create(ctx context.Context, name string, actor int64) (ir.Scheme, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ir.Scheme{}, NewValidationError("", "scheme name is required")
	}

	now := s.e.clock.Now()
	sc := ir.Scheme{
		Name:       name,
		Version:    1,
		Fields:     []ir.FieldDef{},
		CreatedAt:  now,
		ModifiedAt: now,
		ModifiedBy: actor,
	}
	id, err := s.e.repo.CreateScheme(ctx, sc)
	if err != nil {
		return ir.Scheme{}, s.e.internal("create scheme", err)
	}
	sc.ID = id

	s.e.logger.Info("scheme created", "scheme_id", id, "name", name, "actor", actor)
	return sc, nil
}

// Get returns the scheme with id.
func (s *Schemes) Get(ctx context.Context, id int64) (ir.Scheme, error) {
	return s.e.scheme(ctx, id)
}

// List returns every scheme ordered by name, then id.
func (s *Schemes) List(ctx context.Context) ([]ir.SchemeSummary, error) {
	list, err := s.e.repo.ListSchemes(ctx)
	if err != nil {
		return nil, s.e.internal("list schemes", err)
	}
	return list, nil
}

// Remove deletes the scheme and every entry stored against it.
func (s *Schemes) Remove(ctx context.Context, id int64, actor int64) error {
	unlock := s.e.locks.lock(id)
	defer unlock()
	defer s.e.invalidate(id)

	removed, err := s.e.repo.RemoveScheme(ctx, id)
	if err != nil {
		return s.e.storeError("remove scheme", err, "scheme", id)
	}

	s.e.logger.Info("scheme removed", "scheme_id", id, "entries_removed", removed, "actor", actor)
	return nil
}

// Rename changes the scheme's display name.
func (s *Schemes) Rename(ctx context.Context, id int64, name string, actor int64) (ir.Scheme, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ir.Scheme{}, NewValidationError("", "scheme name is required")
	}
	return s.mutate(ctx, id, actor, func(sc *ir.Scheme) (change, error) {
		sc.Name = name
		return change{event: "scheme renamed"}, nil
	})
}

// AddField appends field. It fails with a Conflict when the key is taken.
func (s *Schemes) AddField(ctx context.Context, id int64, field ir.FieldDef, actor int64) (ir.Scheme, error) {
	if err := field.Check(); err != nil {
		return ir.Scheme{}, fromValidation(err)
	}
	return s.mutate(ctx, id, actor, func(sc *ir.Scheme) (change, error) {
		if sc.FieldIndex(field.Key) >= 0 {
			return change{}, NewConflictError(field.Key, "field key already exists")
		}
		sc.Fields = append(sc.Fields, field.Clone())
		return change{event: "field added", key: field.Key}, nil
	})
}

// RemoveField drops the field, deletes key from every entry of the scheme
// and bumps the version, all in one transaction.
func (s *Schemes) RemoveField(ctx context.Context, id int64, key string, actor int64) (ir.Scheme, error) {
	return s.mutate(ctx, id, actor, func(sc *ir.Scheme) (change, error) {
		i := sc.FieldIndex(key)
		if i < 0 {
			return change{}, fieldNotFound(key)
		}
		sc.Fields = slices.Delete(sc.Fields, i, i+1)
		return change{
			event: "field removed",
			bump:  true,
			kind:  ir.MigrationRemoveField,
			key:   key,
			migrate: func(data *ir.IRObject) bool {
				return data.Delete(key)
			},
		}, nil
	})
}

// RekeyField renames a field and moves data[oldKey] to data[newKey] in
// every entry that has it. Validation rules are unchanged, so the version
// is not bumped.
func (s *Schemes) RekeyField(ctx context.Context, id int64, oldKey, newKey string, actor int64) (ir.Scheme, error) {
	if newKey == "" {
		return ir.Scheme{}, NewValidationError(oldKey, "new key is required")
	}
	return s.mutate(ctx, id, actor, func(sc *ir.Scheme) (change, error) {
		if sc.FieldIndex(newKey) >= 0 {
			return change{}, NewConflictError(newKey, "field key already exists")
		}
		i := sc.FieldIndex(oldKey)
		if i < 0 {
			return change{}, fieldNotFound(oldKey)
		}
		sc.Fields[i].Key = newKey
		return change{
			event: "field rekeyed",
			kind:  ir.MigrationRekeyField,
			key:   oldKey,
			migrate: func(data *ir.IRObject) bool {
				v, ok := data.Get(oldKey)
				if !ok {
					return false
				}
				data.Delete(oldKey)
				data.Set(newKey, v)
				return true
			},
		}, nil
	})
}

// UpdateField replaces the definition of key in place. The version is bumped
// iff required, type, is_array or the rules differ; label, access and
// default changes alone never bump. def.Key must be empty or equal key.
func (s *Schemes) UpdateField(ctx context.Context, id int64, key string, def ir.FieldDef, actor int64) (ir.Scheme, error) {
	if def.Key == "" {
		def.Key = key
	}
	if def.Key != key {
		return ir.Scheme{}, NewValidationError(key, fmt.Sprintf("cannot change key to %q here; rekey the field instead", def.Key))
	}
	if err := def.Check(); err != nil {
		return ir.Scheme{}, fromValidation(err)
	}

	return s.mutate(ctx, id, actor, func(sc *ir.Scheme) (change, error) {
		i := sc.FieldIndex(key)
		if i < 0 {
			return change{}, fieldNotFound(key)
		}
		changed, err := ir.ShapeChanged(sc.Fields[i], def)
		if err != nil {
			return change{}, fmt.Errorf("compare field shape: %w", err)
		}
		sc.Fields[i] = def.Clone()

		ch := change{event: "field updated", key: key}
		if changed {
			ch.bump = true
			ch.kind = ir.MigrationUpdateField
			// Stored data stays as written; the pass is recorded so the
			// version bump has an audit entry.
			ch.migrate = func(*ir.IRObject) bool { return false }
		}
		return ch, nil
	})
}

// IndexField moves key to newIndex, clamped to the field list.
func (s *Schemes) IndexField(ctx context.Context, id int64, key string, newIndex int, actor int64) (ir.Scheme, error) {
	return s.mutate(ctx, id, actor, func(sc *ir.Scheme) (change, error) {
		i := sc.FieldIndex(key)
		if i < 0 {
			return change{}, fieldNotFound(key)
		}
		f := sc.Fields[i]
		sc.Fields = slices.Delete(sc.Fields, i, i+1)
		newIndex = max(0, min(newIndex, len(sc.Fields)))
		sc.Fields = slices.Insert(sc.Fields, newIndex, f)
		return change{event: "field moved", key: key}, nil
	})
}

// Migrations lists the migration audit trail of a scheme, oldest first.
func (s *Schemes) Migrations(ctx context.Context, id int64) ([]ir.MigrationRecord, error) {
	if _, err := s.e.scheme(ctx, id); err != nil {
		return nil, err
	}
	recs, err := s.e.repo.ListMigrations(ctx, id)
	if err != nil {
		return nil, s.e.internal("list migrations", err)
	}
	return recs, nil
}

// mutate runs fn against a fresh copy of the scheme and saves the result
// with the repository's compare-and-swap. The whole attempt, migration
// included, is repeated on a version conflict or a busy database.
func (s *Schemes) mutate(ctx context.Context, id int64, actor int64, fn func(sc *ir.Scheme) (change, error)) (ir.Scheme, error) {
	unlock := s.e.locks.lock(id)
	defer unlock()
	defer s.e.invalidate(id)

	var lastErr error
	for attempt := 1; attempt <= s.e.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return ir.Scheme{}, err
		}

		current, err := s.e.freshScheme(ctx, id)
		if err != nil {
			return ir.Scheme{}, err
		}
		next := current.Clone()
		ch, err := fn(&next)
		if err != nil {
			var ee *Error
			if errors.As(err, &ee) {
				return ir.Scheme{}, err
			}
			return ir.Scheme{}, s.e.internal("mutate scheme", err)
		}

		if ch.bump {
			next.Version = current.Version + 1
		}
		next.ModifiedAt = s.e.clock.Now()
		next.ModifiedBy = actor

		u := ir.SchemeUpdate{
			Scheme:        next,
			ExpectVersion: current.Version,
			ExpectFields:  current.Fields,
		}
		if ch.kind != "" {
			u.Migrate = ch.migrate
			u.Migration = &ir.MigrationRecord{
				SchemeID:    id,
				Token:       s.e.tokens.Generate(),
				Kind:        ch.kind,
				FieldKey:    ch.key,
				FromVersion: current.Version,
				ToVersion:   next.Version,
				Actor:       actor,
				CreatedAt:   next.ModifiedAt,
			}
		}

		affected, err := s.e.repo.SaveScheme(ctx, u)
		if err == nil {
			attrs := []any{"scheme_id", id, "version", next.Version, "actor", actor}
			if ch.key != "" {
				attrs = append(attrs, "field", ch.key)
			}
			if u.Migration != nil {
				attrs = append(attrs, "migration", u.Migration.Token, "affected", affected)
			}
			s.e.logger.Info(ch.event, attrs...)
			return next, nil
		}
		if !errors.Is(err, ir.ErrVersionConflict) && !errors.Is(err, ir.ErrBusy) {
			return ir.Scheme{}, s.e.storeError("save scheme", err, "scheme", id)
		}
		lastErr = err
		s.e.logger.Warn("scheme mutation retried", "scheme_id", id, "attempt", attempt, "error", err)
	}
	return ir.Scheme{}, s.e.internal("save scheme", lastErr)
}

func fieldNotFound(key string) *Error {
	err := NewNotFoundError("field", fmt.Sprintf("%q", key))
	err.Field = key
	return err
}
