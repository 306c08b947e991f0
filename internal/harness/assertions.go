package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/archetype/internal/engine"
	"github.com/roach88/archetype/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	// Header with assertion type
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s", event.Step, event.Op, event.Outcome)
			if event.ID != 0 {
				fmt.Fprintf(&buf, " id=%d", event.ID)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// matches reports whether event ran op with the given outcome.
// An empty outcome matches any.
func matches(event TraceEvent, op, outcome string) bool {
	return event.Op == op && (outcome == "" || event.Outcome == outcome)
}

// assertTraceContains checks if the trace contains a step with the given op
// and, if set, outcome.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if matches(event, assertion.Op, assertion.Outcome) {
			return nil
		}
	}

	expected := assertion.Op
	if assertion.Outcome != "" {
		expected += " with outcome " + assertion.Outcome
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if ops appear in the specified order.
// Ops don't need to be consecutive (intervening steps are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// Step 1: Find first position of each expected op
	positions := make(map[string]int)
	for i, event := range trace {
		if positions[event.Op] == 0 {
			positions[event.Op] = i + 1 // 1-indexed for readability
		}
	}

	// Step 2: Verify all ops found
	for _, op := range assertion.Ops {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", assertion.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    trace,
			}
		}
	}

	// Step 3: Verify order
	for i := 1; i < len(assertion.Ops); i++ {
		prev := assertion.Ops[i-1]
		curr := assertion.Ops[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", assertion.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks if the op (with outcome, if set) ran exactly the
// specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if matches(event, assertion.Op, assertion.Outcome) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertSchemeVersion reads the stored scheme and checks its version.
func assertSchemeVersion(actx *AssertionContext, assertion Assertion) error {
	id, err := actx.ref(assertion.Scheme)
	if err != nil {
		return err
	}
	sc, err := actx.Engine.Schemes.Get(actx.Ctx, id)
	if err != nil {
		return &AssertionError{
			Type:     AssertSchemeVersion,
			Expected: fmt.Sprintf("scheme %s at version %d", assertion.Scheme, assertion.Version),
			Actual:   err.Error(),
		}
	}
	if sc.Version != assertion.Version {
		return &AssertionError{
			Type:     AssertSchemeVersion,
			Expected: fmt.Sprintf("scheme %s at version %d", assertion.Scheme, assertion.Version),
			Actual:   fmt.Sprintf("version %d", sc.Version),
		}
	}
	return nil
}

// assertEntryCount counts the scheme's entries as an admin sees them.
func assertEntryCount(actx *AssertionContext, assertion Assertion) error {
	id, err := actx.ref(assertion.Scheme)
	if err != nil {
		return err
	}
	what := "current"
	if assertion.Outdated {
		what = "total"
	}
	expected := fmt.Sprintf("%d %s entries in %s", assertion.Count, what, assertion.Scheme)

	entries, err := actx.Engine.Entries.List(actx.Ctx, id, assertion.Outdated, ir.RoleAdmin)
	if err != nil {
		return &AssertionError{Type: AssertEntryCount, Expected: expected, Actual: err.Error()}
	}
	if len(entries) != assertion.Count {
		return &AssertionError{Type: AssertEntryCount, Expected: expected, Actual: fmt.Sprintf("%d entries", len(entries))}
	}
	return nil
}

// assertMigrationCount counts the scheme's migration records.
func assertMigrationCount(actx *AssertionContext, assertion Assertion) error {
	id, err := actx.ref(assertion.Scheme)
	if err != nil {
		return err
	}
	expected := fmt.Sprintf("%d migrations of %s", assertion.Count, assertion.Scheme)

	records, err := actx.Engine.Schemes.Migrations(actx.Ctx, id)
	if err != nil {
		return &AssertionError{Type: AssertMigrationCount, Expected: expected, Actual: err.Error()}
	}
	if len(records) != assertion.Count {
		return &AssertionError{Type: AssertMigrationCount, Expected: expected, Actual: fmt.Sprintf("%d migrations", len(records))}
	}
	return nil
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Engine *engine.Engine
	Refs   map[string]int64 // aliases bound by the scenario
	Ctx    context.Context
}

func (a *AssertionContext) ref(alias string) (int64, error) {
	id, ok := a.Refs[alias]
	if !ok {
		return 0, fmt.Errorf("unknown alias %q", alias)
	}
	return id, nil
}

// needsEngine lists the assertion types that read the final state.
var needsEngine = map[string]bool{
	AssertSchemeVersion:  true,
	AssertEntryCount:     true,
	AssertMigrationCount: true,
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides engine access for state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		if needsEngine[assertion.Type] && (actx == nil || actx.Engine == nil) {
			errors = append(errors, fmt.Sprintf("assertion[%d]: %s requires engine context", i, assertion.Type))
			continue
		}

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertSchemeVersion:
			err = assertSchemeVersion(actx, assertion)
		case AssertEntryCount:
			err = assertEntryCount(actx, assertion)
		case AssertMigrationCount:
			err = assertMigrationCount(actx, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
