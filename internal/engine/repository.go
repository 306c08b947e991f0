package engine

import (
	"context"

	"github.com/roach88/archetype/internal/ir"
)

// Repository is the storage contract behind the engine.
//
// Implementations (internal/store for SQLite, internal/boltstore for bbolt)
// report missing rows with an error wrapping ir.ErrNotFound, a lost
// compare-and-swap with ir.ErrVersionConflict and transient contention with
// ir.ErrBusy. Entries are returned in ascending id order.
type Repository interface {
	// CreateScheme stores s and returns its new id. s.ID is ignored.
	CreateScheme(ctx context.Context, s ir.Scheme) (int64, error)
	GetScheme(ctx context.Context, id int64) (ir.Scheme, error)
	// FindSchemeByName returns the scheme with the lowest id named name.
	FindSchemeByName(ctx context.Context, name string) (ir.Scheme, error)
	// ListSchemes returns summaries ordered by name, then id.
	ListSchemes(ctx context.Context) ([]ir.SchemeSummary, error)
	// SaveScheme applies u atomically and returns the number of entries
	// the migration rewrote.
	SaveScheme(ctx context.Context, u ir.SchemeUpdate) (int, error)
	// RemoveScheme deletes the scheme and all of its entries, returning
	// the number of entries removed.
	RemoveScheme(ctx context.Context, id int64) (int, error)
	ListMigrations(ctx context.Context, schemeID int64) ([]ir.MigrationRecord, error)

	// CreateEntry stores e and returns its new id. e.ID is ignored.
	// A non-nil guard must still match the scheme in the same transaction.
	CreateEntry(ctx context.Context, e ir.Entry, guard *ir.SchemeGuard) (int64, error)
	GetEntry(ctx context.Context, id int64) (ir.Entry, error)
	// UpdateEntry rewrites e, under the same guard rule as CreateEntry.
	UpdateEntry(ctx context.Context, e ir.Entry, guard *ir.SchemeGuard) error
	RemoveEntry(ctx context.Context, id int64) error
	ListEntries(ctx context.Context, q ir.EntryQuery) ([]ir.Entry, error)

	// RegisterUpload stores upload metadata and returns its new id.
	RegisterUpload(ctx context.Context, u ir.UploadInfo) (int64, error)
	GetUpload(ctx context.Context, id int64) (ir.UploadInfo, error)
}
