package boltstore

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/roach88/archetype/internal/ir"
)

// CreateScheme stores sc under a new id. sc.ID is ignored.
func (s *Store) CreateScheme(ctx context.Context, sc ir.Scheme) (int64, error) {
	var id int64
	err := s.update(ctx, func(tx *bolt.Tx) error {
		b, err := bucket(tx, schemesBucket)
		if err != nil {
			return err
		}
		if id, err = nextID(b); err != nil {
			return err
		}
		sc.ID = id
		raw, err := encodeScheme(sc)
		if err != nil {
			return err
		}
		return b.Put(itob(id), raw)
	})
	if err != nil {
		return 0, fmt.Errorf("create scheme: %w", err)
	}
	return id, nil
}

// GetScheme returns the scheme with id.
func (s *Store) GetScheme(ctx context.Context, id int64) (ir.Scheme, error) {
	var sc ir.Scheme
	err := s.view(ctx, func(tx *bolt.Tx) error {
		var err error
		sc, err = getScheme(tx, id)
		return err
	})
	if err != nil {
		return ir.Scheme{}, fmt.Errorf("get scheme: %w", err)
	}
	return sc, nil
}

func getScheme(tx *bolt.Tx, id int64) (ir.Scheme, error) {
	b, err := bucket(tx, schemesBucket)
	if err != nil {
		return ir.Scheme{}, err
	}
	raw := b.Get(itob(id))
	if raw == nil {
		return ir.Scheme{}, fmt.Errorf("scheme %d: %w", id, ir.ErrNotFound)
	}
	return decodeScheme(id, raw)
}

// FindSchemeByName returns the scheme with the lowest id named name.
func (s *Store) FindSchemeByName(ctx context.Context, name string) (ir.Scheme, error) {
	var found ir.Scheme
	err := s.view(ctx, func(tx *bolt.Tx) error {
		b, err := bucket(tx, schemesBucket)
		if err != nil {
			return err
		}
		// Keys are big-endian ids, so the cursor walks in id order
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			sc, err := decodeScheme(btoi(k), v)
			if err != nil {
				return err
			}
			if sc.Name == name {
				found = sc
				return nil
			}
		}
		return fmt.Errorf("scheme %q: %w", name, ir.ErrNotFound)
	})
	if err != nil {
		return ir.Scheme{}, fmt.Errorf("find scheme: %w", err)
	}
	return found, nil
}

// ListSchemes returns summaries ordered by name, then id.
func (s *Store) ListSchemes(ctx context.Context) ([]ir.SchemeSummary, error) {
	list := []ir.SchemeSummary{}
	err := s.view(ctx, func(tx *bolt.Tx) error {
		b, err := bucket(tx, schemesBucket)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			sc, err := decodeScheme(btoi(k), v)
			if err != nil {
				return err
			}
			list = append(list, ir.SchemeSummary{
				ID:         sc.ID,
				Name:       sc.Name,
				Version:    sc.Version,
				FieldCount: len(sc.Fields),
				ModifiedAt: sc.ModifiedAt,
			})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list schemes: %w", err)
	}
	sortSummaries(list)
	return list, nil
}

// SaveScheme applies u in one write transaction: compare-and-swap on the
// stored version and fields, the migration pass, then the audit record.
// Any failure discards the whole transaction.
func (s *Store) SaveScheme(ctx context.Context, u ir.SchemeUpdate) (int, error) {
	affected := 0
	err := s.update(ctx, func(tx *bolt.Tx) error {
		current, err := getScheme(tx, u.Scheme.ID)
		if err != nil {
			return err
		}
		same, err := sameFields(current.Fields, u.ExpectFields)
		if err != nil {
			return err
		}
		if current.Version != u.ExpectVersion || !same {
			return fmt.Errorf("scheme %d at version %d: %w", u.Scheme.ID, current.Version, ir.ErrVersionConflict)
		}

		schemes, err := bucket(tx, schemesBucket)
		if err != nil {
			return err
		}
		next := u.Scheme
		next.CreatedAt = current.CreatedAt
		raw, err := encodeScheme(next)
		if err != nil {
			return err
		}
		if err := schemes.Put(itob(next.ID), raw); err != nil {
			return err
		}

		if u.Migrate != nil {
			if affected, err = migrateEntries(tx, next.ID, u.Migrate); err != nil {
				return err
			}
		}

		if u.Migration != nil {
			m := *u.Migration
			m.SchemeID = next.ID
			m.Affected = affected
			return putMigration(tx, m)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("save scheme: %w", err)
	}
	return affected, nil
}

func migrateEntries(tx *bolt.Tx, schemeID int64, migrate func(*ir.IRObject) bool) (int, error) {
	entries, err := bucket(tx, entriesBucket)
	if err != nil {
		return 0, err
	}
	ids, err := memberIDs(tx, schemeID)
	if err != nil {
		return 0, err
	}

	affected := 0
	for _, id := range ids {
		e, err := decodeEntry(id, entries.Get(itob(id)))
		if err != nil {
			return 0, err
		}
		if !migrate(e.Data) {
			continue
		}
		raw, err := encodeEntry(e)
		if err != nil {
			return 0, err
		}
		if err := entries.Put(itob(id), raw); err != nil {
			return 0, err
		}
		affected++
	}
	return affected, nil
}

func putMigration(tx *bolt.Tx, m ir.MigrationRecord) error {
	tokens, err := bucket(tx, migrationTokensBucket)
	if err != nil {
		return err
	}
	if tokens.Get([]byte(m.Token)) != nil {
		return fmt.Errorf("token %s: %w", m.Token, ErrDuplicateToken)
	}
	if err := tokens.Put([]byte(m.Token), itob(m.SchemeID)); err != nil {
		return err
	}

	root, err := bucket(tx, migrationsBucket)
	if err != nil {
		return err
	}
	b, err := root.CreateBucketIfNotExists(itob(m.SchemeID))
	if err != nil {
		return err
	}
	// Ids come from the root bucket so they are unique across schemes
	id, err := nextID(root)
	if err != nil {
		return err
	}
	raw, err := encodeMigration(m)
	if err != nil {
		return err
	}
	return b.Put(itob(id), raw)
}

// RemoveScheme deletes the scheme, its entries and its migration records.
func (s *Store) RemoveScheme(ctx context.Context, id int64) (int, error) {
	removed := 0
	err := s.update(ctx, func(tx *bolt.Tx) error {
		schemes, err := bucket(tx, schemesBucket)
		if err != nil {
			return err
		}
		if schemes.Get(itob(id)) == nil {
			return fmt.Errorf("scheme %d: %w", id, ir.ErrNotFound)
		}

		ids, err := memberIDs(tx, id)
		if err != nil {
			return err
		}
		entries, err := bucket(tx, entriesBucket)
		if err != nil {
			return err
		}
		for _, eid := range ids {
			if err := entries.Delete(itob(eid)); err != nil {
				return err
			}
		}
		removed = len(ids)
		if err := deleteNested(tx, schemeEntriesBucket, id); err != nil {
			return err
		}

		if err := dropMigrations(tx, id); err != nil {
			return err
		}
		return schemes.Delete(itob(id))
	})
	if err != nil {
		return 0, fmt.Errorf("remove scheme: %w", err)
	}
	return removed, nil
}

func dropMigrations(tx *bolt.Tx, schemeID int64) error {
	root, err := bucket(tx, migrationsBucket)
	if err != nil {
		return err
	}
	b := root.Bucket(itob(schemeID))
	if b == nil {
		return nil
	}
	tokens, err := bucket(tx, migrationTokensBucket)
	if err != nil {
		return err
	}
	err = b.ForEach(func(k, v []byte) error {
		m, err := decodeMigration(btoi(k), v)
		if err != nil {
			return err
		}
		return tokens.Delete([]byte(m.Token))
	})
	if err != nil {
		return err
	}
	return root.DeleteBucket(itob(schemeID))
}

func deleteNested(tx *bolt.Tx, rootName string, id int64) error {
	root, err := bucket(tx, rootName)
	if err != nil {
		return err
	}
	if root.Bucket(itob(id)) == nil {
		return nil
	}
	return root.DeleteBucket(itob(id))
}

// memberIDs returns the entry ids of a scheme in ascending order.
func memberIDs(tx *bolt.Tx, schemeID int64) ([]int64, error) {
	root, err := bucket(tx, schemeEntriesBucket)
	if err != nil {
		return nil, err
	}
	b := root.Bucket(itob(schemeID))
	if b == nil {
		return nil, nil
	}
	var ids []int64
	err = b.ForEach(func(k, _ []byte) error {
		ids = append(ids, btoi(k))
		return nil
	})
	return ids, err
}

// ListMigrations returns the migration records of a scheme, oldest first.
func (s *Store) ListMigrations(ctx context.Context, schemeID int64) ([]ir.MigrationRecord, error) {
	records := []ir.MigrationRecord{}
	err := s.view(ctx, func(tx *bolt.Tx) error {
		root, err := bucket(tx, migrationsBucket)
		if err != nil {
			return err
		}
		b := root.Bucket(itob(schemeID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			m, err := decodeMigration(btoi(k), v)
			if err != nil {
				return err
			}
			records = append(records, m)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	return records, nil
}

// CreateEntry stores e under a new id. The scheme must exist and, with a
// non-nil guard, still match it.
func (s *Store) CreateEntry(ctx context.Context, e ir.Entry, guard *ir.SchemeGuard) (int64, error) {
	var id int64
	err := s.update(ctx, func(tx *bolt.Tx) error {
		if err := checkGuard(tx, e.SchemeID, guard); err != nil {
			return err
		}
		entries, err := bucket(tx, entriesBucket)
		if err != nil {
			return err
		}
		if id, err = nextID(entries); err != nil {
			return err
		}
		raw, err := encodeEntry(e)
		if err != nil {
			return err
		}
		if err := entries.Put(itob(id), raw); err != nil {
			return err
		}

		root, err := bucket(tx, schemeEntriesBucket)
		if err != nil {
			return err
		}
		members, err := root.CreateBucketIfNotExists(itob(e.SchemeID))
		if err != nil {
			return err
		}
		return members.Put(itob(id), nil)
	})
	if err != nil {
		return 0, fmt.Errorf("create entry: %w", err)
	}
	return id, nil
}

// checkGuard fails with ir.ErrVersionConflict unless the scheme matches
// guard. A nil guard only requires the scheme to exist.
func checkGuard(tx *bolt.Tx, schemeID int64, guard *ir.SchemeGuard) error {
	current, err := getScheme(tx, schemeID)
	if err != nil || guard == nil {
		return err
	}
	same, err := sameFields(current.Fields, guard.Fields)
	if err != nil {
		return err
	}
	if current.Version != guard.Version || !same {
		return fmt.Errorf("scheme %d at version %d: %w", schemeID, current.Version, ir.ErrVersionConflict)
	}
	return nil
}

// GetEntry returns the entry with id.
func (s *Store) GetEntry(ctx context.Context, id int64) (ir.Entry, error) {
	var e ir.Entry
	err := s.view(ctx, func(tx *bolt.Tx) error {
		var err error
		e, err = getEntry(tx, id)
		return err
	})
	if err != nil {
		return ir.Entry{}, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

func getEntry(tx *bolt.Tx, id int64) (ir.Entry, error) {
	b, err := bucket(tx, entriesBucket)
	if err != nil {
		return ir.Entry{}, err
	}
	raw := b.Get(itob(id))
	if raw == nil {
		return ir.Entry{}, fmt.Errorf("entry %d: %w", id, ir.ErrNotFound)
	}
	return decodeEntry(id, raw)
}

// UpdateEntry replaces the data, version and modification stamp of an
// entry. Its scheme and creation time are kept. With a non-nil guard the
// entry's scheme must still match it.
func (s *Store) UpdateEntry(ctx context.Context, e ir.Entry, guard *ir.SchemeGuard) error {
	err := s.update(ctx, func(tx *bolt.Tx) error {
		current, err := getEntry(tx, e.ID)
		if err != nil {
			return err
		}
		if err := checkGuard(tx, current.SchemeID, guard); err != nil {
			return err
		}
		current.SchemeVersion = e.SchemeVersion
		current.Data = e.Data
		current.ModifiedAt = e.ModifiedAt
		current.ModifiedBy = e.ModifiedBy

		raw, err := encodeEntry(current)
		if err != nil {
			return err
		}
		b, err := bucket(tx, entriesBucket)
		if err != nil {
			return err
		}
		return b.Put(itob(e.ID), raw)
	})
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	return nil
}

// RemoveEntry deletes an entry and its membership index key.
func (s *Store) RemoveEntry(ctx context.Context, id int64) error {
	err := s.update(ctx, func(tx *bolt.Tx) error {
		e, err := getEntry(tx, id)
		if err != nil {
			return err
		}
		entries, err := bucket(tx, entriesBucket)
		if err != nil {
			return err
		}
		if err := entries.Delete(itob(id)); err != nil {
			return err
		}
		root, err := bucket(tx, schemeEntriesBucket)
		if err != nil {
			return err
		}
		if members := root.Bucket(itob(e.SchemeID)); members != nil {
			return members.Delete(itob(id))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove entry: %w", err)
	}
	return nil
}

// ListEntries returns the entries of q.SchemeID in ascending id order,
// optionally limited to q.Version. q.Where is not evaluated.
func (s *Store) ListEntries(ctx context.Context, q ir.EntryQuery) ([]ir.Entry, error) {
	list := []ir.Entry{}
	err := s.view(ctx, func(tx *bolt.Tx) error {
		ids, err := memberIDs(tx, q.SchemeID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			e, err := getEntry(tx, id)
			if err != nil {
				return err
			}
			if q.Version > 0 && e.SchemeVersion != q.Version {
				continue
			}
			list = append(list, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return list, nil
}

// RegisterUpload stores upload metadata under a new id.
func (s *Store) RegisterUpload(ctx context.Context, u ir.UploadInfo) (int64, error) {
	var id int64
	err := s.update(ctx, func(tx *bolt.Tx) error {
		b, err := bucket(tx, uploadsBucket)
		if err != nil {
			return err
		}
		if id, err = nextID(b); err != nil {
			return err
		}
		u.ID = id
		raw, err := encodeUpload(u)
		if err != nil {
			return err
		}
		return b.Put(itob(id), raw)
	})
	if err != nil {
		return 0, fmt.Errorf("register upload: %w", err)
	}
	return id, nil
}

// GetUpload returns upload metadata by id.
func (s *Store) GetUpload(ctx context.Context, id int64) (ir.UploadInfo, error) {
	var u ir.UploadInfo
	err := s.view(ctx, func(tx *bolt.Tx) error {
		b, err := bucket(tx, uploadsBucket)
		if err != nil {
			return err
		}
		raw := b.Get(itob(id))
		if raw == nil {
			return fmt.Errorf("upload %d: %w", id, ir.ErrNotFound)
		}
		u, err = decodeUpload(id, raw)
		return err
	})
	if err != nil {
		return ir.UploadInfo{}, fmt.Errorf("get upload: %w", err)
	}
	return u, nil
}
