package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/archetype/internal/compiler"
	"github.com/roach88/archetype/internal/engine"
	"github.com/roach88/archetype/internal/ir"
	"github.com/roach88/archetype/internal/queryir"
	"github.com/roach88/archetype/internal/store"
	"github.com/roach88/archetype/internal/testutil"
)

// DefaultActor is recorded as the modifier when a scenario sets none.
const DefaultActor int64 = 1

// DefaultRole is used by reads whose step sets no role.
const DefaultRole = ir.RoleAdmin

// Harness is the test execution engine.
// It runs scenario steps against a real engine with a deterministic clock
// and migration tokens.
type Harness struct {
	eng    *engine.Engine
	clock  *testutil.DeterministicClock
	tokens *testutil.SequenceGenerator
	logger *slog.Logger
	actor  int64
	refs   map[string]int64
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Import the scenario's CUE schemes
// 3. Execute steps, checking each expect clause
// 4. Evaluate assertions against the trace and the final state
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	return RunOn(context.Background(), scenario, st)
}

// RunOn executes a scenario against repo, which should be empty.
//
// The returned error reports a scenario that cannot run (unknown alias,
// malformed field or query, schemes that do not load). Engine failures are
// step outcomes and end up in the trace and in Result.Errors.
func RunOn(ctx context.Context, scenario *Scenario, repo engine.Repository) (*Result, error) {
	clock := testutil.NewDeterministicClock()
	tokens := testutil.NewSequenceGenerator("mig")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	h := &Harness{
		eng: engine.New(repo,
			engine.WithClock(clock),
			engine.WithTokenGenerator(tokens),
			engine.WithLogger(logger),
		),
		clock:  clock,
		tokens: tokens,
		logger: logger,
		actor:  scenario.Actor,
		refs:   map[string]int64{},
	}
	if h.actor == 0 {
		h.actor = DefaultActor
	}

	result := NewResult()
	if err := h.importSchemes(ctx, scenario.Schemes, result); err != nil {
		return nil, fmt.Errorf("failed to import schemes: %w", err)
	}

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
	}

	actx := &AssertionContext{
		Engine: h.eng,
		Refs:   h.refs,
		Ctx:    ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// importSchemes loads every CUE path and imports the definitions in one
// pass. Each imported scheme is bound to an alias equal to its name.
func (h *Harness) importSchemes(ctx context.Context, paths []string, result *Result) error {
	if len(paths) == 0 {
		return nil
	}

	var defs []ir.SchemeDef
	for _, p := range paths {
		res, errs := compiler.Load(p, compiler.LoadModeFailFast)
		if len(errs) > 0 {
			return errs[0]
		}
		defs = append(defs, res.Schemes...)
	}
	// Load order within a package is not stable across CUE versions.
	slices.SortStableFunc(defs, func(a, b ir.SchemeDef) int { return strings.Compare(a.Name, b.Name) })

	imported, err := h.eng.Import(ctx, defs, h.actor)
	if err != nil {
		return err
	}
	for _, r := range imported {
		h.refs[r.Name] = r.SchemeID
		result.AddTrace(TraceEvent{Op: OpImport, Outcome: OutcomeOK, ID: r.SchemeID, Version: r.Version})
	}
	return nil
}

// executeStep runs one step, records it and checks its expect clause.
func (h *Harness) executeStep(ctx context.Context, n int, step Step, result *Result) error {
	ev := TraceEvent{Step: n, Op: step.Op}
	opErr := h.dispatch(ctx, step, &ev)
	var se *stepError
	if errors.As(opErr, &se) {
		return se.err
	}

	ev.Outcome = OutcomeOK
	if opErr != nil {
		ev.Outcome = string(engine.KindOf(opErr))
		var ee *engine.Error
		if errors.As(opErr, &ee) {
			ev.Field = ee.Field
		}
	}
	result.AddTrace(ev)

	if opErr == nil && ev.ID != 0 {
		if step.Op == OpCreateScheme {
			h.refs[step.Name] = ev.ID
		}
		if step.As != "" {
			h.refs[step.As] = ev.ID
		}
	}

	for _, msg := range h.checkExpect(step, ev, opErr) {
		result.AddError(fmt.Sprintf("step %d (%s): %s", n, step.Op, msg))
	}

	h.logger.Info("step completed", "step", n, "op", step.Op, "outcome", ev.Outcome, "id", ev.ID)
	return nil
}

// stepError marks a step that cannot run at all, as opposed to an engine
// operation that failed.
type stepError struct{ err error }

func (e *stepError) Error() string { return e.err.Error() }

// dispatch calls the engine and returns the operation's error.
func (h *Harness) dispatch(ctx context.Context, step Step, ev *TraceEvent) error {
	var (
		schemeID, entryID int64
		err               error
	)
	if step.Scheme != "" {
		if schemeID, err = h.ref(step.Scheme); err != nil {
			return &stepError{err}
		}
	}
	if step.Entry != "" {
		if entryID, err = h.ref(step.Entry); err != nil {
			return &stepError{err}
		}
	}
	role := DefaultRole
	if step.Role != "" {
		if role, err = ir.ParseRole(step.Role); err != nil {
			return &stepError{err}
		}
	}

	schemeDone := func(sc ir.Scheme, opErr error) error {
		if opErr == nil {
			ev.ID, ev.Version = sc.ID, sc.Version
		}
		return opErr
	}
	entryDone := func(e ir.Entry, opErr error) error {
		if opErr == nil {
			ev.ID, ev.Version = e.ID, e.SchemeVersion
		}
		return opErr
	}
	listDone := func(entries []ir.Entry, opErr error) error {
		if opErr == nil {
			ev.IDs = make([]int64, len(entries))
			for i, e := range entries {
				ev.IDs[i] = e.ID
			}
		}
		return opErr
	}

	switch step.Op {
	case OpCreateScheme:
		return schemeDone(h.eng.Schemes.Create(ctx, step.Name, h.actor))
	case OpRenameScheme:
		return schemeDone(h.eng.Schemes.Rename(ctx, schemeID, step.Name, h.actor))
	case OpRemoveScheme:
		ev.ID = schemeID
		return h.eng.Schemes.Remove(ctx, schemeID, h.actor)
	case OpAddField:
		def, err := h.field(&step.Field)
		if err != nil {
			return &stepError{err}
		}
		return schemeDone(h.eng.Schemes.AddField(ctx, schemeID, def, h.actor))
	case OpUpdateField:
		def, err := h.field(&step.Field)
		if err != nil {
			return &stepError{err}
		}
		return schemeDone(h.eng.Schemes.UpdateField(ctx, schemeID, step.Key, def, h.actor))
	case OpRemoveField:
		return schemeDone(h.eng.Schemes.RemoveField(ctx, schemeID, step.Key, h.actor))
	case OpRekeyField:
		return schemeDone(h.eng.Schemes.RekeyField(ctx, schemeID, step.Key, step.NewKey, h.actor))
	case OpIndexField:
		return schemeDone(h.eng.Schemes.IndexField(ctx, schemeID, step.Key, step.Index, h.actor))
	case OpRegisterUpload:
		u, opErr := h.eng.Uploads.Register(ctx, step.Mime, step.Size)
		if opErr == nil {
			ev.ID = u.ID
		}
		return opErr
	case OpCreateEntry:
		data, err := h.object(&step.Data)
		if err != nil {
			return &stepError{err}
		}
		return entryDone(h.eng.Entries.Create(ctx, schemeID, data, h.actor))
	case OpEditEntry:
		data, err := h.object(&step.Data)
		if err != nil {
			return &stepError{err}
		}
		return entryDone(h.eng.Entries.Edit(ctx, entryID, data, h.actor))
	case OpDuplicateEntry:
		return entryDone(h.eng.Entries.Duplicate(ctx, entryID, h.actor))
	case OpRemoveEntry:
		ev.ID = entryID
		return h.eng.Entries.Remove(ctx, entryID, h.actor)
	case OpGetEntry:
		e, opErr := h.eng.Entries.GetByID(ctx, entryID, role)
		if opErr == nil {
			ev.Data = e.Data
		}
		return entryDone(e, opErr)
	case OpListEntries:
		return listDone(h.eng.Entries.List(ctx, schemeID, step.Outdated, role))
	case OpSearch:
		q, err := h.value(&step.Query)
		if err != nil {
			return &stepError{err}
		}
		expr, err := queryir.ParseValue(q)
		if err != nil {
			return &stepError{err}
		}
		return listDone(h.eng.Entries.Search(ctx, schemeID, step.Outdated, expr, role))
	default:
		return &stepError{fmt.Errorf("unknown op %q", step.Op)}
	}
}

// checkExpect compares the step outcome with its expect clause.
func (h *Harness) checkExpect(step Step, ev TraceEvent, opErr error) []string {
	exp := step.Expect
	if exp == nil || exp.Error == "" {
		if opErr != nil {
			return []string{fmt.Sprintf("unexpected error: %v", opErr)}
		}
	}
	if exp == nil {
		return nil
	}

	var msgs []string
	if exp.Error != "" {
		switch {
		case opErr == nil:
			msgs = append(msgs, fmt.Sprintf("expected %s error, got success", exp.Error))
		case ev.Outcome != exp.Error:
			msgs = append(msgs, fmt.Sprintf("expected %s error, got %v", exp.Error, opErr))
		case exp.Field != "" && ev.Field != exp.Field:
			msgs = append(msgs, fmt.Sprintf("expected error on field %q, got %q", exp.Field, ev.Field))
		}
		return msgs
	}

	if exp.Version != nil && ev.Version != *exp.Version {
		msgs = append(msgs, fmt.Sprintf("expected version %d, got %d", *exp.Version, ev.Version))
	}
	if exp.Count != nil && len(ev.IDs) != *exp.Count {
		msgs = append(msgs, fmt.Sprintf("expected %d entries, got %d", *exp.Count, len(ev.IDs)))
	}
	if exp.Entries != nil {
		want := make([]int64, 0, len(exp.Entries))
		for _, alias := range exp.Entries {
			id, err := h.ref(alias)
			if err != nil {
				msgs = append(msgs, err.Error())
				continue
			}
			want = append(want, id)
		}
		if !slices.Equal(want, ev.IDs) {
			msgs = append(msgs, fmt.Sprintf("expected entries %v, got %v", want, ev.IDs))
		}
	}
	if !exp.Data.IsZero() {
		want, err := h.object(&exp.Data)
		if err != nil {
			return append(msgs, fmt.Sprintf("expect.data: %v", err))
		}
		if msg := matchData(ev.Data, want); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// matchData checks that actual holds every key of want with an equal value.
// Extra keys in actual are OK (subset match).
func matchData(actual, want *ir.IRObject) string {
	for _, k := range want.Keys() {
		wv, _ := want.Get(k)
		av, ok := actual.Get(k)
		if !ok {
			return fmt.Sprintf("expected data key %q, not present", k)
		}
		if !ir.Equal(av, wv) {
			return fmt.Sprintf("data key %q: expected %s, got %s", k, render(wv), render(av))
		}
	}
	return ""
}

func render(v ir.IRValue) string {
	b, err := ir.MarshalIRValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// ref resolves an alias bound by an earlier step. A number is used as the
// id itself, which lets scenarios address records that do not exist.
func (h *Harness) ref(alias string) (int64, error) {
	if id, ok := h.refs[alias]; ok {
		return id, nil
	}
	if id, err := strconv.ParseInt(alias, 10, 64); err == nil {
		return id, nil
	}
	return 0, fmt.Errorf("unknown alias %q", alias)
}

// field decodes a field definition node.
func (h *Harness) field(n *yaml.Node) (ir.FieldDef, error) {
	v, err := h.value(n)
	if err != nil {
		return ir.FieldDef{}, err
	}
	raw, err := ir.MarshalIRValue(v)
	if err != nil {
		return ir.FieldDef{}, err
	}
	return compiler.DecodeField(raw)
}

// object converts a mapping node. An absent or null node is a nil object.
func (h *Harness) object(n *yaml.Node) (*ir.IRObject, error) {
	if n.IsZero() {
		return nil, nil
	}
	v, err := h.value(n)
	if err != nil {
		return nil, err
	}
	if _, isNull := v.(ir.IRNull); isNull {
		return nil, nil
	}
	obj, ok := v.(*ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("expected a mapping, got %s", ir.KindOf(v))
	}
	return obj, nil
}

// value converts a YAML node to IR, keeping mapping order. Integers stay
// IRInt and floats IRFloat; a string "$alias" becomes the aliased id.
func (h *Harness) value(n *yaml.Node) (ir.IRValue, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return ir.IRNull{}, nil
		}
		return h.value(n.Content[0])
	case yaml.AliasNode:
		return h.value(n.Alias)
	case yaml.MappingNode:
		obj := ir.NewIRObject()
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			v, err := h.value(n.Content[i+1])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			obj.Set(key, v)
		}
		return obj, nil
	case yaml.SequenceNode:
		arr := make(ir.IRArray, len(n.Content))
		for i, c := range n.Content {
			v, err := h.value(c)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = v
		}
		return arr, nil
	case yaml.ScalarNode:
		return h.scalar(n)
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
	}
}

func (h *Harness) scalar(n *yaml.Node) (ir.IRValue, error) {
	switch n.ShortTag() {
	case "!!null":
		return ir.IRNull{}, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return ir.IRBool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, err
		}
		return ir.IRInt(i), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, err
		}
		return ir.IRFloat(f), nil
	default:
		if alias, ok := strings.CutPrefix(n.Value, "$"); ok && n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) == 0 {
			id, err := h.ref(alias)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", n.Line, err)
			}
			return ir.IRInt(id), nil
		}
		return ir.IRString(n.Value), nil
	}
}
