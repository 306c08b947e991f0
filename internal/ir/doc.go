// Package ir provides the canonical value and record types for Archetype.
//
// This package contains type definitions and their JSON codecs only. All other
// internal packages import ir; ir imports nothing internal. This keeps the value
// model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - IRValue is a sealed union mirroring JSON: null, string, int, float, bool,
//     array and object
//   - Objects keep key insertion order; validation reports ghost keys in the
//     order they were submitted
//   - Integral numbers decode to IRInt, everything else to IRFloat, so
//     "10" and "10.0" stay distinguishable
//   - Canonical JSON (RFC 8785 key ordering) is used for equality checks, never
//     for storage
//   - Timestamps are unix epoch seconds
package ir
