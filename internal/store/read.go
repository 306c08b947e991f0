package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/archetype/internal/ir"
)

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const schemeColumns = `id, name, version, fields, created_at, modified_at, modified_by`

// GetScheme retrieves a scheme by id.
// Returns an error wrapping ir.ErrNotFound if it does not exist.
func (s *Store) GetScheme(ctx context.Context, id int64) (ir.Scheme, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+schemeColumns+` FROM schemes WHERE id = ?`, id)
	sc, err := scanScheme(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Scheme{}, fmt.Errorf("scheme %d: %w", id, ir.ErrNotFound)
	}
	if err != nil {
		return ir.Scheme{}, fmt.Errorf("get scheme: %w", classify(err))
	}
	return sc, nil
}

// FindSchemeByName returns the scheme with the lowest id carrying name.
// Names compare byte-wise.
func (s *Store) FindSchemeByName(ctx context.Context, name string) (ir.Scheme, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+schemeColumns+`
		FROM schemes
		WHERE name = ? COLLATE BINARY
		ORDER BY id ASC
		LIMIT 1
	`, name)
	sc, err := scanScheme(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Scheme{}, fmt.Errorf("scheme %q: %w", name, ir.ErrNotFound)
	}
	if err != nil {
		return ir.Scheme{}, fmt.Errorf("find scheme: %w", classify(err))
	}
	return sc, nil
}

// ListSchemes returns scheme summaries ordered by name, then id.
//
// Returns an empty slice (not nil) if no schemes exist.
func (s *Store) ListSchemes(ctx context.Context) ([]ir.SchemeSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, version, json_array_length(fields), modified_at
		FROM schemes
		ORDER BY name COLLATE BINARY ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query schemes: %w", classify(err))
	}
	defer rows.Close()

	summaries := []ir.SchemeSummary{}
	for rows.Next() {
		var sum ir.SchemeSummary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.Version, &sum.FieldCount, &sum.ModifiedAt); err != nil {
			return nil, fmt.Errorf("scan scheme summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schemes: %w", classify(err))
	}
	return summaries, nil
}

// ListMigrations returns the migration records of a scheme, oldest first.
func (s *Store) ListMigrations(ctx context.Context, schemeID int64) ([]ir.MigrationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scheme_id, token, kind, field_key, from_version, to_version, affected, actor, created_at
		FROM scheme_migrations
		WHERE scheme_id = ?
		ORDER BY id ASC
	`, schemeID)
	if err != nil {
		return nil, fmt.Errorf("query migrations: %w", classify(err))
	}
	defer rows.Close()

	records := []ir.MigrationRecord{}
	for rows.Next() {
		var m ir.MigrationRecord
		var kind string
		if err := rows.Scan(
			&m.ID, &m.SchemeID, &m.Token, &kind, &m.FieldKey,
			&m.FromVersion, &m.ToVersion, &m.Affected, &m.Actor, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		m.Kind = ir.MigrationKind(kind)
		records = append(records, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migrations: %w", classify(err))
	}
	return records, nil
}

const entryColumns = `id, scheme_id, scheme_version, data, created_at, modified_at, modified_by`

// GetEntry retrieves an entry by id.
// Returns an error wrapping ir.ErrNotFound if it does not exist.
func (s *Store) GetEntry(ctx context.Context, id int64) (ir.Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Entry{}, fmt.Errorf("entry %d: %w", id, ir.ErrNotFound)
	}
	if err != nil {
		return ir.Entry{}, fmt.Errorf("get entry: %w", classify(err))
	}
	return e, nil
}

// ListEntries returns the entries selected by q in ascending id order.
//
// q.Where is appended as an extra conjunct; it must only reference the data
// column and bind its values through q.WhereArgs.
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListEntries(ctx context.Context, q ir.EntryQuery) ([]ir.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE scheme_id = ?`
	args := []any{q.SchemeID}
	if q.Version > 0 {
		query += ` AND scheme_version = ?`
		args = append(args, q.Version)
	}
	if q.Where != "" {
		query += ` AND (` + q.Where + `)`
		args = append(args, q.WhereArgs...)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", classify(err))
	}
	defer rows.Close()

	entries := []ir.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", classify(err))
	}
	return entries, nil
}

// GetUpload retrieves upload metadata by id.
// Returns an error wrapping ir.ErrNotFound if it does not exist.
func (s *Store) GetUpload(ctx context.Context, id int64) (ir.UploadInfo, error) {
	var u ir.UploadInfo
	err := s.db.QueryRowContext(ctx, `
		SELECT id, mime, size_bytes, created_at FROM uploads WHERE id = ?
	`, id).Scan(&u.ID, &u.Mime, &u.Size, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.UploadInfo{}, fmt.Errorf("upload %d: %w", id, ir.ErrNotFound)
	}
	if err != nil {
		return ir.UploadInfo{}, fmt.Errorf("get upload: %w", classify(err))
	}
	return u, nil
}

// scanScheme scans one schemes row. sql.ErrNoRows passes through unwrapped.
func scanScheme(row scanner) (ir.Scheme, error) {
	var sc ir.Scheme
	var fieldsJSON string
	if err := row.Scan(
		&sc.ID, &sc.Name, &sc.Version, &fieldsJSON,
		&sc.CreatedAt, &sc.ModifiedAt, &sc.ModifiedBy,
	); err != nil {
		return ir.Scheme{}, err
	}

	fields, err := unmarshalFields(fieldsJSON)
	if err != nil {
		return ir.Scheme{}, fmt.Errorf("scheme %d: %w", sc.ID, err)
	}
	sc.Fields = fields
	return sc, nil
}

// scanEntry scans one entries row. sql.ErrNoRows passes through unwrapped.
func scanEntry(row scanner) (ir.Entry, error) {
	var e ir.Entry
	var dataJSON string
	if err := row.Scan(
		&e.ID, &e.SchemeID, &e.SchemeVersion, &dataJSON,
		&e.CreatedAt, &e.ModifiedAt, &e.ModifiedBy,
	); err != nil {
		return ir.Entry{}, err
	}

	data, err := unmarshalData(dataJSON)
	if err != nil {
		return ir.Entry{}, fmt.Errorf("entry %d: %w", e.ID, err)
	}
	e.Data = data
	return e, nil
}
