package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario defines an engine test scenario.
// Steps run in order against a fresh engine; each step may state what it
// expects, and assertions check the final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schemes lists CUE files or directories imported before the steps.
	// Paths are relative to the scenario file location. Imported schemes
	// are bound to aliases equal to their names.
	Schemes []string `yaml:"schemes,omitempty"`

	// Actor is recorded as the modifier of every write. Default: 1.
	Actor int64 `yaml:"actor,omitempty"`

	// Steps are the engine operations to execute.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final state.
	// Supported types: trace_contains, trace_order, trace_count,
	// scheme_version, entry_count, migration_count
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one engine operation. Which attributes apply depends on Op.
//
// Schemes, entries and uploads are referenced by alias: the name given in
// As by the step that produced them. In data, field definitions and
// queries a string "$alias" stands for the aliased id.
type Step struct {
	Op       string    `yaml:"op"`
	Scheme   string    `yaml:"scheme,omitempty"`
	Entry    string    `yaml:"entry,omitempty"`
	Name     string    `yaml:"name,omitempty"`
	Key      string    `yaml:"key,omitempty"`
	NewKey   string    `yaml:"new_key,omitempty"`
	Index    int       `yaml:"index,omitempty"`
	Field    yaml.Node `yaml:"field,omitempty"`
	Data     yaml.Node `yaml:"data,omitempty"`
	Query    yaml.Node `yaml:"query,omitempty"`
	Role     string    `yaml:"role,omitempty"`
	Outdated bool      `yaml:"outdated,omitempty"`
	Mime     string    `yaml:"mime,omitempty"`
	Size     int64     `yaml:"size,omitempty"`

	// As binds the id the step produced to an alias.
	As string `yaml:"as,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect states what a step should produce.
type Expect struct {
	// Error is the expected error kind (NOT_FOUND, VALIDATION, CONFLICT).
	// Empty means the step must succeed.
	Error string `yaml:"error,omitempty"`

	// Field is the field key the error must name.
	Field string `yaml:"field,omitempty"`

	// Version is the expected scheme version (or entry scheme version).
	Version *int `yaml:"version,omitempty"`

	// Count is the expected number of entries returned.
	Count *int `yaml:"count,omitempty"`

	// Entries lists the aliases of the entries returned, in order.
	Entries []string `yaml:"entries,omitempty"`

	// Data is a subset the returned entry data must contain.
	Data yaml.Node `yaml:"data,omitempty"`
}

// Step operations.
const (
	OpCreateScheme   = "create_scheme"
	OpRenameScheme   = "rename_scheme"
	OpRemoveScheme   = "remove_scheme"
	OpAddField       = "add_field"
	OpRemoveField    = "remove_field"
	OpRekeyField     = "rekey_field"
	OpUpdateField    = "update_field"
	OpIndexField     = "index_field"
	OpRegisterUpload = "register_upload"
	OpCreateEntry    = "create_entry"
	OpEditEntry      = "edit_entry"
	OpDuplicateEntry = "duplicate_entry"
	OpRemoveEntry    = "remove_entry"
	OpGetEntry       = "get_entry"
	OpListEntries    = "list_entries"
	OpSearch         = "search"

	// OpImport marks the trace events of scheme imports.
	OpImport = "import"
)

// Ops lists every step operation.
var Ops = []string{
	OpCreateScheme, OpRenameScheme, OpRemoveScheme,
	OpAddField, OpRemoveField, OpRekeyField, OpUpdateField, OpIndexField,
	OpRegisterUpload,
	OpCreateEntry, OpEditEntry, OpDuplicateEntry, OpRemoveEntry,
	OpGetEntry, OpListEntries, OpSearch,
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a step with op (and outcome, if given) ran
	// - "trace_order": ops ran in this order
	// - "trace_count": op ran exactly count times
	// - "scheme_version": scheme is at version
	// - "entry_count": scheme has count entries (current version unless outdated)
	// - "migration_count": scheme recorded count migrations
	Type string `yaml:"type"`

	Op       string   `yaml:"op,omitempty"`
	Outcome  string   `yaml:"outcome,omitempty"`
	Ops      []string `yaml:"ops,omitempty"`
	Scheme   string   `yaml:"scheme,omitempty"`
	Version  int      `yaml:"version,omitempty"`
	Outdated bool     `yaml:"outdated,omitempty"`
	Count    int      `yaml:"count"`
}

// Assertion type constants.
const (
	AssertTraceContains  = "trace_contains"
	AssertTraceOrder     = "trace_order"
	AssertTraceCount     = "trace_count"
	AssertSchemeVersion  = "scheme_version"
	AssertEntryCount     = "entry_count"
	AssertMigrationCount = "migration_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Scheme paths are resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving scheme paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "step:" vs "steps:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve scheme paths relative to base path BEFORE validation
	for i, p := range scenario.Schemes {
		if !filepath.IsAbs(p) && basePath != "" {
			scenario.Schemes[i] = filepath.Join(basePath, p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for _, p := range s.Schemes {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("scheme file not found: %s", p)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks the attributes each op needs.
func validateStep(index int, st *Step) error {
	if st.Op == "" {
		return fmt.Errorf("steps[%d]: op is required", index)
	}
	if !slices.Contains(Ops, st.Op) {
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}

	need := func(ok bool, attr string) error {
		if !ok {
			return fmt.Errorf("steps[%d]: %s is required for %s", index, attr, st.Op)
		}
		return nil
	}

	var errs []error
	switch st.Op {
	case OpCreateScheme:
		errs = append(errs, need(st.Name != "", "name"))
	case OpRenameScheme:
		errs = append(errs, need(st.Scheme != "", "scheme"), need(st.Name != "", "name"))
	case OpRemoveScheme, OpListEntries:
		errs = append(errs, need(st.Scheme != "", "scheme"))
	case OpAddField:
		errs = append(errs, need(st.Scheme != "", "scheme"), need(!st.Field.IsZero(), "field"))
	case OpUpdateField:
		errs = append(errs, need(st.Scheme != "", "scheme"), need(st.Key != "", "key"), need(!st.Field.IsZero(), "field"))
	case OpRemoveField, OpIndexField:
		errs = append(errs, need(st.Scheme != "", "scheme"), need(st.Key != "", "key"))
	case OpRekeyField:
		errs = append(errs, need(st.Scheme != "", "scheme"), need(st.Key != "", "key"), need(st.NewKey != "", "new_key"))
	case OpRegisterUpload:
		errs = append(errs, need(st.Mime != "", "mime"))
	case OpCreateEntry:
		errs = append(errs, need(st.Scheme != "", "scheme"))
	case OpEditEntry, OpDuplicateEntry, OpRemoveEntry, OpGetEntry:
		errs = append(errs, need(st.Entry != "", "entry"))
	case OpSearch:
		errs = append(errs, need(st.Scheme != "", "scheme"), need(!st.Query.IsZero(), "query"))
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	if st.Expect != nil && st.Expect.Field != "" && st.Expect.Error == "" {
		return fmt.Errorf("steps[%d].expect: field requires error", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertSchemeVersion:
		if a.Scheme == "" || a.Version < 1 {
			return fmt.Errorf("assertions[%d]: scheme and a positive version are required for scheme_version", index)
		}
	case AssertEntryCount, AssertMigrationCount:
		if a.Scheme == "" {
			return fmt.Errorf("assertions[%d]: scheme is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
