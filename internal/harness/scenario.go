package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is a gateway conversation run against a fresh store.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Clock is the RFC 3339 instant the scenario clock starts at.
	// Defaults to DefaultClock.
	Clock string `yaml:"clock,omitempty"`

	// Setup calls establish initial state and must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow calls are checked against their expect clauses.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and store state.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions"`
}

// DefaultClock is the scenario start time when none is given.
const DefaultClock = "2024-05-01T12:00:00Z"

// Step is one gateway call.
type Step struct {
	// Call is "METHOD /path?query".
	Call string `yaml:"call"`

	// Body is sent as the JSON request body.
	Body any `yaml:"body,omitempty"`

	// Advance moves the scenario clock forward before the call.
	Advance time.Duration `yaml:"advance,omitempty"`

	// Expect checks the outcome. Nil means the call must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a call.
type ExpectClause struct {
	// Error is the expected error code. Empty means success.
	Error string `yaml:"error,omitempty"`

	// Message is the expected error text, matched exactly when set.
	Message string `yaml:"message,omitempty"`

	// Result is a subset match against the JSON result.
	Result any `yaml:"result,omitempty"`
}

// Method returns the HTTP-style method of the call.
func (s Step) Method() string {
	m, _, _ := strings.Cut(strings.TrimSpace(s.Call), " ")
	return strings.ToUpper(m)
}

// Path returns the path and query of the call.
func (s Step) Path() string {
	_, p, _ := strings.Cut(strings.TrimSpace(s.Call), " ")
	return strings.TrimSpace(p)
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a call with a matching body appears in the trace
	// - "trace_order": calls appear in order
	// - "trace_count": a call appears exactly N times
	// - "final_state": query a table and verify one row
	Type string `yaml:"type"`

	// Call is "METHOD /path" (trace_contains, trace_count).
	Call string `yaml:"call,omitempty"`

	// Body is a subset match on the call body (trace_contains).
	Body map[string]any `yaml:"body,omitempty"`

	// Table is the table name (final_state).
	Table string `yaml:"table,omitempty"`

	// Where filters rows; all fields must match exactly (final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of calls (trace_count).
	Count int `yaml:"count,omitempty"`

	// Calls is the expected call order (trace_order).
	Calls []string `yaml:"calls,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if err := scenario.normalize(); err != nil {
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
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if s.Clock != "" {
		if _, err := time.Parse(time.RFC3339, s.Clock); err != nil {
			return fmt.Errorf("clock: %w", err)
		}
	}

	for i, step := range s.Setup {
		if err := validateCall(step.Call); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: setup steps cannot carry expect", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateCall(step.Call); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		if step.Advance < 0 {
			return fmt.Errorf("flow[%d]: advance must not be negative", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateCall(call string) error {
	method, path, ok := strings.Cut(strings.TrimSpace(call), " ")
	if !ok || method == "" || !strings.HasPrefix(strings.TrimSpace(path), "/") {
		return fmt.Errorf("call %q must be \"METHOD /path\"", call)
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
		if a.Call == "" {
			return fmt.Errorf("assertions[%d]: call is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Calls) == 0 {
			return fmt.Errorf("assertions[%d]: calls list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Call == "" {
			return fmt.Errorf("assertions[%d]: call is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// normalize converts YAML-decoded values to their JSON-decoded form so
// they compare equal to router results (numbers become float64).
func (s *Scenario) normalize() error {
	for _, steps := range [][]Step{s.Setup, s.Flow} {
		for i := range steps {
			var err error
			if steps[i].Body, err = jsonForm(steps[i].Body); err != nil {
				return fmt.Errorf("%s body: %w", steps[i].Call, err)
			}
			if steps[i].Expect != nil {
				if steps[i].Expect.Result, err = jsonForm(steps[i].Expect.Result); err != nil {
					return fmt.Errorf("%s expect: %w", steps[i].Call, err)
				}
			}
		}
	}
	for i := range s.Assertions {
		if s.Assertions[i].Body == nil {
			continue
		}
		v, err := jsonForm(s.Assertions[i].Body)
		if err != nil {
			return fmt.Errorf("assertions[%d] body: %w", i, err)
		}
		s.Assertions[i].Body, _ = v.(map[string]any)
	}
	return nil
}

func jsonForm(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
