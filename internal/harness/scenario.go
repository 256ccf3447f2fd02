package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines a page cache scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Types is CUE source declaring page types under a top-level "page"
	// struct.
	Types string `yaml:"types"`

	// Invalidators maps a page type to an attribute rule. A page of that
	// type is invalid when every listed attribute equals the given value.
	Invalidators map[string]map[string]any `yaml:"invalidators,omitempty"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and stored state.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// BatchID labels GetMany calls. Defaults to "test-batch-default".
	BatchID string `yaml:"batch_id,omitempty"`
}

// Step invokes one cache operation.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// URI is the page the operation targets. For find it is unused; for
	// invalidate_prefix it names the document with a latest URI.
	URI string `yaml:"uri,omitempty"`

	// URIs are the lookups for get_many.
	URIs []string `yaml:"uris,omitempty"`

	// Parent is the explicit parent passed to store.
	Parent string `yaml:"parent,omitempty"`

	// Type is the page type searched by find.
	Type string `yaml:"type,omitempty"`

	// Attributes are the attributes of a stored page.
	Attributes map[string]any `yaml:"attributes,omitempty"`

	// Where are equality filters for find.
	Where map[string]any `yaml:"where,omitempty"`

	// Match are glob filters for find.
	Match map[string]string `yaml:"match,omitempty"`

	// Expect validates the step's outcome. Without it the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Error is the expected error code. Empty means success.
	Error string `yaml:"error,omitempty"`

	// Created is the expected store result.
	Created *bool `yaml:"created,omitempty"`

	// Found is the expected delete or invalidate result.
	Found *bool `yaml:"found,omitempty"`

	// Count is the expected invalidate_prefix result.
	Count *int `yaml:"count,omitempty"`

	// Version is the expected latest result.
	Version *int64 `yaml:"version,omitempty"`

	// URIs are the expected page URIs, in order, for find, children, chain
	// and get_many. get_many reports a missing page as "".
	URIs []string `yaml:"uris,omitempty"`

	// Attributes are expected attribute values of the page returned by get.
	// Subset match.
	Attributes map[string]any `yaml:"attributes,omitempty"`
}

// Step operations.
const (
	OpStore            = "store"
	OpGet              = "get"
	OpGetMany          = "get_many"
	OpFind             = "find"
	OpDelete           = "delete"
	OpInvalidate       = "invalidate"
	OpInvalidatePrefix = "invalidate_prefix"
	OpChildren         = "children"
	OpChain            = "chain"
	OpLatest           = "latest"
)

var validOps = []string{
	OpStore, OpGet, OpGetMany, OpFind, OpDelete, OpInvalidate,
	OpInvalidatePrefix, OpChildren, OpChain, OpLatest,
}

// Assertion validates the trace or the stored state after all steps ran.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Op is the step operation (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// URI is the step URI (trace_contains) or the stored page
	// (final_state).
	URI string `yaml:"uri,omitempty"`

	// Outcome is the expected step outcome (trace_contains).
	Outcome string `yaml:"outcome,omitempty"`

	// Ops is the expected operation order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Count is the expected number of steps with Op (trace_count).
	Count int `yaml:"count,omitempty"`

	// Expect holds the expected stored row (final_state). Keys are
	// "exists", "valid", "parent" and attribute names.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

var validAssertions = []string{AssertTraceContains, AssertTraceOrder, AssertTraceCount, AssertFinalState}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, ordered by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no scenarios found in %s", dir)
	}
	sort.Strings(matches)

	scenarios := make([]*Scenario, 0, len(matches))
	seen := make(map[string]string)
	for _, path := range matches {
		sc, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if prev, ok := seen[sc.Name]; ok {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", filepath.Base(path), sc.Name, prev)
		}
		seen[sc.Name] = filepath.Base(path)
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if strings.TrimSpace(s.Types) == "" {
		errs = append(errs, errors.New("types is required"))
	}
	if len(s.Steps) == 0 {
		errs = append(errs, errors.New("at least one step is required"))
	}
	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			errs = append(errs, fmt.Errorf("step %d: %w", i, err))
		}
	}
	for i, a := range s.Assertions {
		if !slices.Contains(validAssertions, a.Type) {
			errs = append(errs, fmt.Errorf("assertion %d: unknown type %q", i, a.Type))
		}
	}
	return errors.Join(errs...)
}

func validateStep(step Step) error {
	if !slices.Contains(validOps, step.Op) {
		return fmt.Errorf("unknown op %q", step.Op)
	}
	switch step.Op {
	case OpGetMany:
		if len(step.URIs) == 0 {
			return errors.New("get_many requires uris")
		}
	case OpFind:
		if step.Type == "" {
			return errors.New("find requires type")
		}
	default:
		if step.URI == "" {
			return fmt.Errorf("%s requires uri", step.Op)
		}
	}
	return nil
}
