package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/flowstate/internal/example"
)

// DefaultStepTimeout bounds how long an expect step waits for a state.
const DefaultStepTimeout = 2 * time.Second

// Scenario drives the pagination machine through a scripted collaborator
// and asserts on the states it emits.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// API scripts the collaborator the machine talks to.
	API APIScript `yaml:"api"`

	// ResetDelay is how long error sub-states last, as a Go duration.
	// Defaults to 20ms so scenarios stay fast.
	ResetDelay string `yaml:"reset_delay,omitempty"`

	// Timeout bounds every expect step. Defaults to DefaultStepTimeout.
	Timeout string `yaml:"timeout,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the full trace after the steps ran.
	// Supported types: trace_contains, trace_order, trace_count, final_state, api_calls
	Assertions []Assertion `yaml:"assertions,omitempty"`

	resetDelay time.Duration
	timeout    time.Duration
}

// APIScript describes a deterministic collaborator without latency.
type APIScript struct {
	// TotalItems are served as ids "0".."TotalItems-1".
	TotalItems int `yaml:"total_items"`
	PageSize   int `yaml:"page_size"`

	// FailLoads lists 1-based LoadPage call numbers that fail.
	FailLoads []int `yaml:"fail_loads,omitempty"`

	// FailMarks lists item ids whose first MarkAsFavorite call fails.
	FailMarks []string `yaml:"fail_marks,omitempty"`
}

// Step is exactly one of dispatch, expect, quiet or wait.
type Step struct {
	// Dispatch sends an action, written as for the demo's --script flag
	// ("next", "retry", "toggle:7", "retry_toggle:7").
	Dispatch string `yaml:"dispatch,omitempty"`

	// Expect waits for the next emitted state and matches it.
	Expect *Expect `yaml:"expect,omitempty"`

	// Quiet asserts no state is emitted for the given duration.
	Quiet string `yaml:"quiet,omitempty"`

	// Wait sleeps for the given duration.
	Wait string `yaml:"wait,omitempty"`

	action example.Action
	pause  time.Duration
}

// Expect matches one emitted state.
type Expect struct {
	// State is the expected variant name.
	State string `yaml:"state"`

	// Where matches fields of the state's JSON form (subset match).
	// A number matched against a list compares the list's length.
	Where map[string]any `yaml:"where,omitempty"`

	// Item matches the item with Item["id"] in the state's items.
	Item map[string]any `yaml:"item,omitempty"`
}

// Assertion validates the trace after all steps ran.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a state of State matching Where was emitted
	// - "trace_order": States were emitted in this order (gaps allowed)
	// - "trace_count": State was emitted exactly Count times
	// - "final_state": the last state is State and matches Where
	// - "api_calls": Method was called exactly Count times
	Type string `yaml:"type"`

	State  string         `yaml:"state,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	States []string       `yaml:"states,omitempty"`
	Count  int            `yaml:"count,omitempty"`
	Method string         `yaml:"method,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertAPICalls      = "api_calls"
)

// Collaborator method names used by api_calls and Result.Calls.
const (
	MethodLoadPage       = "load_page"
	MethodMarkAsFavorite = "mark_as_favorite"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
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
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	slices.Sort(paths)

	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid,
// and resolves durations and actions.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.API.PageSize <= 0 {
		return fmt.Errorf("api.page_size must be positive")
	}
	if s.API.TotalItems < 0 {
		return fmt.Errorf("api.total_items must be non-negative")
	}
	for i, n := range s.API.FailLoads {
		if n <= 0 {
			return fmt.Errorf("api.fail_loads[%d]: call numbers start at 1", i)
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	var err error
	if s.resetDelay, err = parseDuration(s.ResetDelay, 20*time.Millisecond); err != nil {
		return fmt.Errorf("reset_delay: %w", err)
	}
	if s.timeout, err = parseDuration(s.Timeout, DefaultStepTimeout); err != nil {
		return fmt.Errorf("timeout: %w", err)
	}

	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
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

func validateStep(index int, st *Step) error {
	set := 0
	var err error

	if st.Dispatch != "" {
		set++
		if st.action, err = example.ParseAction(st.Dispatch); err != nil {
			return fmt.Errorf("steps[%d].dispatch: %w", index, err)
		}
	}
	if st.Expect != nil {
		set++
		if st.Expect.State == "" {
			return fmt.Errorf("steps[%d].expect: state is required", index)
		}
		if st.Expect.Item != nil {
			if _, ok := st.Expect.Item["id"]; !ok {
				return fmt.Errorf("steps[%d].expect.item: id is required", index)
			}
		}
	}
	if st.Quiet != "" {
		set++
		if st.pause, err = parseDuration(st.Quiet, 0); err != nil {
			return fmt.Errorf("steps[%d].quiet: %w", index, err)
		}
	}
	if st.Wait != "" {
		set++
		if st.pause, err = parseDuration(st.Wait, 0); err != nil {
			return fmt.Errorf("steps[%d].wait: %w", index, err)
		}
	}

	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of dispatch, expect, quiet, wait is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains, AssertFinalState:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for %s", index, a.Type)
		}
	case AssertTraceOrder:
		if len(a.States) == 0 {
			return fmt.Errorf("assertions[%d]: states list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertAPICalls:
		if a.Method != MethodLoadPage && a.Method != MethodMarkAsFavorite {
			return fmt.Errorf("assertions[%d]: method must be %s or %s", index, MethodLoadPage, MethodMarkAsFavorite)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for api_calls", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func parseDuration(text string, def time.Duration) (time.Duration, error) {
	if text == "" {
		return def, nil
	}
	d, err := time.ParseDuration(text)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", text)
	}
	return d, nil
}
