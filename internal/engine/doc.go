// Package engine implements the Archetype scheme and entry services.
//
// The engine is the heart of Archetype - it owns scheme evolution and
// enforces that every stored document conforms to its scheme.
//
// ARCHITECTURE:
//
// Services:
//   - Schemes: scheme CRUD, field mutations, versioning and migrations
//   - Entries: validation-on-write, redacted reads and search
//   - Uploads: metadata registry for UPLOADS fields
//
// Write path:
// 1. Entries loads the scheme's current fields (read-through LRU cache)
// 2. validate.Validator checks the document, fail-fast
// 3. The document is stored with the scheme's current version
//
// Read path:
// 1. Entries fetches rows from the Repository
// 2. Redact projects each document for the caller's role
// 3. Search additionally filters with queryir.Evaluate
//
// Scheme mutation path:
// 1. A per-scheme mutex serializes mutations in this process
// 2. The mutation runs against a fresh copy of the scheme
// 3. Repository.SaveScheme writes the scheme, migrates every entry and
//    appends the audit record in ONE transaction, guarded by a
//    compare-and-swap on the stored version and fields
// 4. A lost compare-and-swap or a busy database repeats the whole attempt
//
// CRITICAL PATTERNS:
//
// Explicit versions:
// Every mutation returns the resulting scheme; the current version is a
// property of the stored row, never ambient state.
//
// Minimum disclosure:
// Hidden fields are omitted, not nulled. Search runs on redacted data, so a
// predicate on a hidden key sees null instead of an authorization error.
//
// Errors:
// Every operation returns *Error with a Kind the boundary maps to a status
// (HTTPStatus). Storage failures are logged and surfaced as KindInternal
// without their details.
package engine
