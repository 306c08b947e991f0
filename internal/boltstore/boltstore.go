// Package boltstore is an embedded key/value backend for the engine, built
// on bbolt. It implements the same contract as the SQLite store without SQL:
// EntryQuery.Where is ignored and the engine's evaluator does all filtering.
//
// Layout (keys are big-endian uint64 ids):
//
//	schemes/<id>                 scheme record
//	entries/<id>                 entry record
//	scheme_entries/<sid>/<id>    membership index, empty values
//	uploads/<id>                 upload record
//	migrations/<sid>/<id>        migration records of one scheme
//	migration_tokens/<token>     uniqueness index for migration tokens
//
// Every write runs in one bolt.Tx, so a scheme save with its migration pass
// is atomic.
package boltstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"

	"github.com/roach88/archetype/internal/ir"
)

const (
	schemesBucket         = "schemes"
	entriesBucket         = "entries"
	schemeEntriesBucket   = "scheme_entries"
	uploadsBucket         = "uploads"
	migrationsBucket      = "migrations"
	migrationTokensBucket = "migration_tokens"

	// lockTimeout bounds the wait for the file lock held by another process.
	lockTimeout = 5 * time.Second
)

var allBuckets = []string{
	schemesBucket, entriesBucket, schemeEntriesBucket,
	uploadsBucket, migrationsBucket, migrationTokensBucket,
}

// ErrBucketNotFound reports a database that was not initialised by Open.
var ErrBucketNotFound = errors.New("bucket not found")

// ErrDuplicateToken reports a migration token that was already recorded.
var ErrDuplicateToken = errors.New("duplicate migration token")

// Store is a bbolt-backed repository. Safe for concurrent use; bbolt
// serialises writers.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the database file at path and initialises buckets.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: lockTimeout})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, fmt.Errorf("open %s: %w", path, ir.ErrBusy)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := initDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.db.Path()
}

func initDB(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v)) //nolint:gosec
	return b
}

func btoi(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b)) //nolint:gosec
}

func bucket(tx *bolt.Tx, name string) (*bolt.Bucket, error) {
	b := tx.Bucket([]byte(name))
	if b == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrBucketNotFound)
	}
	return b, nil
}

// nextID allocates the next id of b. Ids start at 1.
func nextID(b *bolt.Bucket) (int64, error) {
	seq, err := b.NextSequence()
	if err != nil {
		return 0, err
	}
	return int64(seq), nil //nolint:gosec
}

// view runs fn in a read transaction after checking ctx.
func (s *Store) view(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

// update runs fn in a write transaction after checking ctx.
func (s *Store) update(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(fn)
}

// compareNames orders scheme names byte-wise, matching BINARY collation.
func compareNames(a, b ir.SchemeSummary) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	if a.ID < b.ID {
		return -1
	}
	if a.ID > b.ID {
		return 1
	}
	return 0
}

// sameFields compares two field lists by their stored encoding.
func sameFields(a, b []ir.FieldDef) (bool, error) {
	ja, err := marshalFields(a)
	if err != nil {
		return false, err
	}
	jb, err := marshalFields(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ja, jb), nil
}

func marshalFields(fields []ir.FieldDef) ([]byte, error) {
	if fields == nil {
		fields = []ir.FieldDef{}
	}
	return json.Marshal(fields)
}

func sortSummaries(list []ir.SchemeSummary) {
	slices.SortFunc(list, compareNames)
}
