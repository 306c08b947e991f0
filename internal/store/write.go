package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/archetype/internal/ir"
)

// CreateScheme inserts a scheme and returns its id. s.ID is ignored.
func (s *Store) CreateScheme(ctx context.Context, sc ir.Scheme) (int64, error) {
	fieldsJSON, err := marshalFields(sc.Fields)
	if err != nil {
		return 0, fmt.Errorf("create scheme: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO schemes (name, version, fields, created_at, modified_at, modified_by)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sc.Name, sc.Version, fieldsJSON, sc.CreatedAt, sc.ModifiedAt, sc.ModifiedBy)
	if err != nil {
		return 0, fmt.Errorf("create scheme: %w", classify(err))
	}
	return res.LastInsertId()
}

// SaveScheme writes u.Scheme, migrates every entry of the scheme and
// appends the migration record in ONE transaction.
//
// The update only applies if the stored row still has u.ExpectVersion and
// u.ExpectFields; otherwise ir.ErrVersionConflict is returned and nothing
// changes. Returns the number of entries the migration rewrote.
func (s *Store) SaveScheme(ctx context.Context, u ir.SchemeUpdate) (int, error) {
	fieldsJSON, err := marshalFields(u.Scheme.Fields)
	if err != nil {
		return 0, fmt.Errorf("save scheme: %w", err)
	}
	expectJSON, err := marshalFields(u.ExpectFields)
	if err != nil {
		return 0, fmt.Errorf("save scheme: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("save scheme: begin tx: %w", classify(err))
	}
	defer tx.Rollback() // No-op if committed

	// Compare-and-swap on version and fields
	res, err := tx.ExecContext(ctx, `
		UPDATE schemes
		SET name = ?, version = ?, fields = ?, modified_at = ?, modified_by = ?
		WHERE id = ? AND version = ? AND fields = ?
	`,
		u.Scheme.Name, u.Scheme.Version, fieldsJSON, u.Scheme.ModifiedAt, u.Scheme.ModifiedBy,
		u.Scheme.ID, u.ExpectVersion, expectJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("save scheme: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("save scheme: rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM schemes WHERE id = ?`, u.Scheme.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("save scheme %d: %w", u.Scheme.ID, ir.ErrNotFound)
		}
		if err != nil {
			return 0, fmt.Errorf("save scheme: %w", classify(err))
		}
		return 0, fmt.Errorf("save scheme %d: %w", u.Scheme.ID, ir.ErrVersionConflict)
	}

	affected := 0
	if u.Migrate != nil {
		affected, err = migrateEntries(ctx, tx, u.Scheme.ID, u.Migrate)
		if err != nil {
			return 0, fmt.Errorf("save scheme: %w", err)
		}
	}

	if m := u.Migration; m != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scheme_migrations
			(scheme_id, token, kind, field_key, from_version, to_version, affected, actor, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, u.Scheme.ID, m.Token, string(m.Kind), m.FieldKey, m.FromVersion, m.ToVersion, affected, m.Actor, m.CreatedAt)
		if err != nil {
			return 0, fmt.Errorf("save scheme: record migration: %w", classify(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("save scheme: commit: %w", classify(err))
	}
	return affected, nil
}

// migrateEntries rewrites every entry of a scheme through migrate inside tx.
// Rows are read completely before the first update.
func migrateEntries(ctx context.Context, tx *sql.Tx, schemeID int64, migrate func(*ir.IRObject) bool) (int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, data FROM entries WHERE scheme_id = ? ORDER BY id ASC
	`, schemeID)
	if err != nil {
		return 0, fmt.Errorf("migrate entries: %w", classify(err))
	}

	type pending struct {
		id   int64
		data string
	}
	var all []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.data); err != nil {
			rows.Close()
			return 0, fmt.Errorf("migrate entries: scan: %w", err)
		}
		all = append(all, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("migrate entries: iterate: %w", classify(err))
	}
	rows.Close()

	affected := 0
	for _, p := range all {
		data, err := unmarshalData(p.data)
		if err != nil {
			return 0, fmt.Errorf("migrate entry %d: %w", p.id, err)
		}
		if !migrate(data) {
			continue
		}
		text, err := marshalData(data)
		if err != nil {
			return 0, fmt.Errorf("migrate entry %d: %w", p.id, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE entries SET data = ? WHERE id = ?`, text, p.id); err != nil {
			return 0, fmt.Errorf("migrate entry %d: %w", p.id, classify(err))
		}
		affected++
	}
	return affected, nil
}

// RemoveScheme deletes a scheme and its entries in one transaction and
// returns the number of entries removed. Migration records go with the
// scheme via ON DELETE CASCADE.
func (s *Store) RemoveScheme(ctx context.Context, id int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("remove scheme: begin tx: %w", classify(err))
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE scheme_id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("remove scheme: entries: %w", classify(err))
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("remove scheme: rows affected: %w", err)
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM schemes WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("remove scheme: %w", classify(err))
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("remove scheme: rows affected: %w", err)
	} else if n == 0 {
		return 0, fmt.Errorf("remove scheme %d: %w", id, ir.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("remove scheme: commit: %w", classify(err))
	}
	return int(removed), nil
}

// CreateEntry inserts an entry and returns its id. e.ID is ignored.
//
// Note: The scheme referenced by SchemeID must exist (foreign key constraint);
// a missing scheme is reported as ir.ErrNotFound. With a non-nil guard the
// insert only happens while the scheme still matches it; otherwise
// ir.ErrVersionConflict is returned.
func (s *Store) CreateEntry(ctx context.Context, e ir.Entry, guard *ir.SchemeGuard) (int64, error) {
	dataJSON, err := marshalData(e.Data)
	if err != nil {
		return 0, fmt.Errorf("create entry: %w", err)
	}

	query := `
		INSERT INTO entries (scheme_id, scheme_version, data, created_at, modified_at, modified_by)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	args := []any{e.SchemeID, e.SchemeVersion, dataJSON, e.CreatedAt, e.ModifiedAt, e.ModifiedBy}
	if guard != nil {
		cond, condArgs, err := guardCondition("?", guard)
		if err != nil {
			return 0, fmt.Errorf("create entry: %w", err)
		}
		// The check and the insert are one statement, so a scheme
		// migration can never land between them.
		query = `
			INSERT INTO entries (scheme_id, scheme_version, data, created_at, modified_at, modified_by)
			SELECT ?, ?, ?, ?, ?, ?
			WHERE ` + cond
		args = append(args, e.SchemeID)
		args = append(args, condArgs...)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, fmt.Errorf("create entry: scheme %d: %w", e.SchemeID, ir.ErrNotFound)
		}
		return 0, fmt.Errorf("create entry: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("create entry: rows affected: %w", err)
	}
	if n == 0 {
		return 0, s.guardFailure(ctx, "create entry", `SELECT 1 FROM schemes WHERE id = ?`, e.SchemeID)
	}
	return res.LastInsertId()
}

// UpdateEntry replaces an entry's data, version and modification stamp.
// With a non-nil guard the update only applies while the entry's scheme
// still matches it; otherwise ir.ErrVersionConflict is returned.
func (s *Store) UpdateEntry(ctx context.Context, e ir.Entry, guard *ir.SchemeGuard) error {
	dataJSON, err := marshalData(e.Data)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}

	query := `
		UPDATE entries
		SET scheme_version = ?, data = ?, modified_at = ?, modified_by = ?
		WHERE id = ?
	`
	args := []any{e.SchemeVersion, dataJSON, e.ModifiedAt, e.ModifiedBy, e.ID}
	if guard != nil {
		cond, condArgs, err := guardCondition("entries.scheme_id", guard)
		if err != nil {
			return fmt.Errorf("update entry: %w", err)
		}
		query += " AND " + cond
		args = append(args, condArgs...)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update entry: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entry: rows affected: %w", err)
	}
	if n == 0 {
		return s.guardFailure(ctx, "update entry", `SELECT 1 FROM entries WHERE id = ?`, e.ID)
	}
	return nil
}

// guardCondition returns an EXISTS clause matching the scheme identified by
// idExpr at the guard's version and fields.
func guardCondition(idExpr string, guard *ir.SchemeGuard) (string, []any, error) {
	fieldsJSON, err := marshalFields(guard.Fields)
	if err != nil {
		return "", nil, err
	}
	cond := `EXISTS (SELECT 1 FROM schemes WHERE id = ` + idExpr + ` AND version = ? AND fields = ?)`
	return cond, []any{guard.Version, fieldsJSON}, nil
}

// guardFailure explains a write that touched no row: the row checked by
// query is missing, or the guard no longer held.
func (s *Store) guardFailure(ctx context.Context, op, query string, id int64) error {
	var exists int
	err := s.db.QueryRowContext(ctx, query, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", op, id, ir.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	return fmt.Errorf("%s %d: %w", op, id, ir.ErrVersionConflict)
}

// RemoveEntry deletes an entry.
func (s *Store) RemoveEntry(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove entry: %w", classify(err))
	}
	return expectOneRow(res, "remove entry", id)
}

// RegisterUpload inserts upload metadata and returns its id.
func (s *Store) RegisterUpload(ctx context.Context, u ir.UploadInfo) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO uploads (mime, size_bytes, created_at) VALUES (?, ?, ?)
	`, u.Mime, u.Size, u.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("register upload: %w", classify(err))
	}
	return res.LastInsertId()
}

func expectOneRow(res sql.Result, op string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", op, id, ir.ErrNotFound)
	}
	return nil
}
