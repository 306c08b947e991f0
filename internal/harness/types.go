package harness

import "github.com/roach88/archetype/internal/ir"

// OutcomeOK is the outcome of a step that returned no error. Failed steps
// record the engine error kind instead (NOT_FOUND, VALIDATION, ...).
const OutcomeOK = "ok"

// TraceEvent records what one step did.
type TraceEvent struct {
	Step    int          `json:"step"`
	Op      string       `json:"op"`
	Outcome string       `json:"outcome"`
	Field   string       `json:"field,omitempty"`   // offending field of a failed step
	ID      int64        `json:"id,omitempty"`      // scheme, entry or upload the step produced or read
	Version int          `json:"version,omitempty"` // scheme version, or the entry's scheme version
	IDs     []int64      `json:"ids,omitempty"`     // entries returned by list and search
	Data    *ir.IRObject `json:"data,omitempty"`    // redacted data returned by get_entry
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Trace contains one event per executed step, in order.
	// Used for trace assertions and golden comparison.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends ev to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}

// toIR builds the canonical form of the event. Zero fields are left out.
func (e TraceEvent) toIR() *ir.IRObject {
	o := ir.NewIRObjectFromPairs(
		ir.O("step", ir.IRInt(e.Step)),
		ir.O("op", ir.IRString(e.Op)),
		ir.O("outcome", ir.IRString(e.Outcome)),
	)
	if e.Field != "" {
		o.Set("field", ir.IRString(e.Field))
	}
	if e.ID != 0 {
		o.Set("id", ir.IRInt(e.ID))
	}
	if e.Version != 0 {
		o.Set("version", ir.IRInt(e.Version))
	}
	if e.IDs != nil {
		ids := make(ir.IRArray, len(e.IDs))
		for i, id := range e.IDs {
			ids[i] = ir.IRInt(id)
		}
		o.Set("ids", ids)
	}
	if e.Data != nil {
		o.Set("data", e.Data)
	}
	return o
}
