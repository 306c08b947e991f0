package ir

import "errors"

// Storage contract errors. Repositories wrap these with context; callers test
// for them with errors.Is.
var (
	// ErrNotFound reports a missing scheme, entry or upload row.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict reports a lost compare-and-swap on a scheme version.
	ErrVersionConflict = errors.New("scheme version conflict")

	// ErrBusy reports a transient storage failure; the whole operation may
	// be retried.
	ErrBusy = errors.New("storage busy")
)
