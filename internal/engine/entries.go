package engine

import (
	"context"
	"errors"

	"github.com/roach88/archetype/internal/ir"
	"github.com/roach88/archetype/internal/queryir"
	"github.com/roach88/archetype/internal/querysql"
)

// Entries owns document persistence keyed by scheme.
//
// Every write validates against the scheme's CURRENT fields and stamps the
// current version; Duplicate is the one exception and copies verbatim.
// Reads are projected through Redact for the caller's role.
type Entries struct {
	e *Engine
}

// Create validates data against the scheme and stores it.
func (s *Entries) Create(ctx context.Context, schemeID int64, data *ir.IRObject, actor int64) (ir.Entry, error) {
	if data == nil {
		data = ir.NewIRObject()
	}

	var entry ir.Entry
	w := entryWrite{op: "create entry", schemeID: schemeID, what: "scheme", id: schemeID}
	err := s.write(ctx, w, data, func(sc ir.Scheme) error {
		now := s.e.clock.Now()
		entry = ir.Entry{
			SchemeID:      schemeID,
			SchemeVersion: sc.Version,
			Data:          data.Clone(),
			CreatedAt:     now,
			ModifiedAt:    now,
			ModifiedBy:    actor,
		}
		id, err := s.e.repo.CreateEntry(ctx, entry, ir.GuardOf(sc))
		entry.ID = id
		return err
	})
	if err != nil {
		return ir.Entry{}, err
	}

	s.e.logger.Info("entry created", "entry_id", entry.ID, "scheme_id", schemeID, "version", entry.SchemeVersion, "actor", actor)
	return entry, nil
}

// Edit replaces an entry's data. Validation runs against the scheme's
// current fields, not the entry's stored version, so every edit moves the
// entry to the latest version.
func (s *Entries) Edit(ctx context.Context, entryID int64, data *ir.IRObject, actor int64) (ir.Entry, error) {
	entry, err := s.e.repo.GetEntry(ctx, entryID)
	if err != nil {
		return ir.Entry{}, s.e.storeError("get entry", err, "entry", entryID)
	}
	if data == nil {
		data = ir.NewIRObject()
	}

	w := entryWrite{op: "update entry", schemeID: entry.SchemeID, what: "entry", id: entryID}
	err = s.write(ctx, w, data, func(sc ir.Scheme) error {
		entry.Data = data.Clone()
		entry.SchemeVersion = sc.Version
		entry.ModifiedAt = s.e.clock.Now()
		entry.ModifiedBy = actor
		return s.e.repo.UpdateEntry(ctx, entry, ir.GuardOf(sc))
	})
	if err != nil {
		return ir.Entry{}, err
	}

	s.e.logger.Info("entry updated", "entry_id", entryID, "scheme_id", entry.SchemeID, "version", entry.SchemeVersion, "actor", actor)
	return entry, nil
}

// entryWrite names a validated write for error mapping.
type entryWrite struct {
	op       string
	schemeID int64
	what     string // reported as missing on ir.ErrNotFound
	id       int64
}

// write validates data and runs store with the scheme the data passed.
// store's repository write is guarded by that scheme; when the scheme
// changed first, the cached copy is dropped and validation runs again on
// the fresh scheme, at most attempts times.
func (s *Entries) write(ctx context.Context, w entryWrite, data *ir.IRObject, store func(sc ir.Scheme) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.e.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		sc, err := s.e.scheme(ctx, w.schemeID)
		if err != nil {
			return err
		}
		if err := s.validate(ctx, data, sc); err != nil {
			return err
		}

		err = store(sc)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ir.ErrVersionConflict) && !errors.Is(err, ir.ErrBusy) {
			return s.e.storeError(w.op, err, w.what, w.id)
		}
		lastErr = err
		s.e.invalidate(w.schemeID)
		s.e.logger.Warn("entry write retried", "scheme_id", w.schemeID, "attempt", attempt, "error", err)
	}
	return s.e.internal(w.op, lastErr)
}

// Remove deletes an entry.
func (s *Entries) Remove(ctx context.Context, entryID int64, actor int64) error {
	if err := s.e.repo.RemoveEntry(ctx, entryID); err != nil {
		return s.e.storeError("remove entry", err, "entry", entryID)
	}
	s.e.logger.Info("entry removed", "entry_id", entryID, "actor", actor)
	return nil
}

// Duplicate copies an entry's data and scheme version verbatim, without
// validation. A copy of an outdated entry stays outdated.
func (s *Entries) Duplicate(ctx context.Context, entryID int64, actor int64) (ir.Entry, error) {
	src, err := s.e.repo.GetEntry(ctx, entryID)
	if err != nil {
		return ir.Entry{}, s.e.storeError("get entry", err, "entry", entryID)
	}

	now := s.e.clock.Now()
	dup := ir.Entry{
		SchemeID:      src.SchemeID,
		SchemeVersion: src.SchemeVersion,
		Data:          src.Data.Clone(),
		CreatedAt:     now,
		ModifiedAt:    now,
		ModifiedBy:    actor,
	}
	id, err := s.e.repo.CreateEntry(ctx, dup, nil)
	if err != nil {
		return ir.Entry{}, s.e.storeError("duplicate entry", err, "scheme", src.SchemeID)
	}
	dup.ID = id

	s.e.logger.Info("entry duplicated", "entry_id", id, "source_id", entryID, "scheme_id", src.SchemeID, "version", src.SchemeVersion, "actor", actor)
	return dup, nil
}

// GetByID returns one entry with its data redacted for role.
func (s *Entries) GetByID(ctx context.Context, entryID int64, role ir.Role) (ir.Entry, error) {
	entry, err := s.e.repo.GetEntry(ctx, entryID)
	if err != nil {
		return ir.Entry{}, s.e.storeError("get entry", err, "entry", entryID)
	}
	sc, err := s.e.scheme(ctx, entry.SchemeID)
	if err != nil {
		return ir.Entry{}, err
	}
	entry.Data = Redact(entry.Data, sc.Fields, role)
	return entry, nil
}

// List returns the entries of a scheme with data redacted for role. Unless
// outdated is set, only entries at the scheme's current version are
// returned.
func (s *Entries) List(ctx context.Context, schemeID int64, outdated bool, role ir.Role) ([]ir.Entry, error) {
	sc, err := s.e.scheme(ctx, schemeID)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, sc, outdated, role, ir.EntryQuery{SchemeID: schemeID})
}

// Search is List followed by the query filter. The filter sees the
// redacted data, so keys hidden from role read as absent rather than
// failing. A nil expr matches every entry.
//
// Conjuncts over keys whose stored and redacted values agree are
// prefiltered in SQL when the repository supports it; the evaluator still
// checks every row.
func (s *Entries) Search(ctx context.Context, schemeID int64, outdated bool, expr queryir.Expr, role ir.Role) ([]ir.Entry, error) {
	sc, err := s.e.scheme(ctx, schemeID)
	if err != nil {
		return nil, err
	}

	q := ir.EntryQuery{SchemeID: schemeID}
	compiler := querysql.NewSQLCompiler(querysql.DefaultColumn, pushableKeys(sc.Fields, role))
	if clause, ok := compiler.Compile(expr); ok {
		q.Where = clause.SQL
		q.WhereArgs = clause.Args
		s.e.logger.Debug("search prefilter", "scheme_id", schemeID, "where", clause.SQL)
	}

	entries, err := s.list(ctx, sc, outdated, role, q)
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, entry := range entries {
		if queryir.Evaluate(expr, entry.Data) {
			out = append(out, entry)
		}
	}
	s.e.logger.Debug("search", "scheme_id", schemeID, "candidates", len(entries), "matched", len(out))
	return out, nil
}

func (s *Entries) list(ctx context.Context, sc ir.Scheme, outdated bool, role ir.Role, q ir.EntryQuery) ([]ir.Entry, error) {
	if !outdated {
		q.Version = sc.Version
	}
	entries, err := s.e.repo.ListEntries(ctx, q)
	if err != nil {
		return nil, s.e.internal("list entries", err)
	}
	for i := range entries {
		entries[i].Data = Redact(entries[i].Data, sc.Fields, role)
	}
	return entries, nil
}

// validate runs the field validator and maps its failures.
func (s *Entries) validate(ctx context.Context, data *ir.IRObject, sc ir.Scheme) error {
	err := s.e.validator.ValidateEntry(ctx, data, sc.Fields)
	if err == nil {
		return nil
	}
	if mapped := fromValidation(err); IsValidation(mapped) {
		return mapped
	}
	return s.e.internal("resolve reference", err)
}
