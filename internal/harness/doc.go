// Package harness runs YAML test scenarios against the Archetype engine.
//
// A scenario imports CUE schemes, executes a list of engine operations and
// checks what each one returned. Every step becomes a trace event that can
// be compared with a golden file.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	schemes:
//	  - schemes/articles.cue
//	steps:
//	  - op: create_entry
//	    scheme: Articles
//	    data: { title: "Hello", views: 3 }
//	    as: hello
//	  - op: remove_field
//	    scheme: Articles
//	    key: views
//	    expect: { version: 2 }
//	  - op: list_entries
//	    scheme: Articles
//	    expect: { entries: [hello] }
//	  - op: create_entry
//	    scheme: Articles
//	    data: { title: 7 }
//	    expect: { error: VALIDATION, field: title }
//	assertions:
//	  - type: migration_count
//	    scheme: Articles
//	    count: 1
//
// Records are referenced by alias. Imported and created schemes are bound
// to their names; any step may bind what it produced with "as". Inside
// data, field definitions and queries an unquoted $alias is replaced by the
// aliased id.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_contains: a step with op (and outcome) ran
//   - trace_order: ops ran in the specified order
//   - trace_count: an op ran exactly N times
//   - scheme_version: a scheme ends at the given version
//   - entry_count: a scheme ends with N entries
//   - migration_count: a scheme recorded N migrations
//
// # Deterministic Testing
//
// All scenarios execute with a deterministic clock and migration tokens
// to ensure reproducible test results and golden snapshot comparison.
//
// The harness uses:
//   - Sequential migration tokens (testutil.SequenceGenerator)
//   - Deterministic clock (testutil.DeterministicClock)
//   - In-memory SQLite database (isolated per test), or any repository via RunOn
package harness
