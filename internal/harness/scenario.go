package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/calnotify/internal/calendar"
)

// Scenario defines a lifecycle scenario.
// Scenarios drive real orchestrator operations against fresh stores and
// assert on the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the initial fake clock time in epoch milliseconds.
	Start int64 `yaml:"start"`

	// Calendar is the calendar fixture the scenario runs against.
	Calendar calendar.FixtureData `yaml:"calendar"`

	// Notifications configures the notification planner.
	Notifications NotificationSettings `yaml:"notifications,omitempty"`

	// QuietHours configures quiet hours in UTC. Empty means none.
	QuietHours *QuietHoursSettings `yaml:"quiet_hours,omitempty"`

	// Setup contains steps run before the main flow. They must succeed.
	Setup []ActionStep `yaml:"setup,omitempty"`

	// Flow contains the main steps with expected outcomes.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count,
	// final_state, state_count
	Assertions []Assertion `yaml:"assertions"`
}

// NotificationSettings mirrors the notification section of the config.
type NotificationSettings struct {
	MaxVisible  int    `yaml:"max_visible,omitempty"`
	Mode        string `yaml:"mode,omitempty"`
	MutePrimary bool   `yaml:"mute_primary,omitempty"`
}

// QuietHoursSettings is a daily quiet window.
type QuietHoursSettings struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// ActionStep is a single operation invoked during setup.
type ActionStep struct {
	// Action is the operation name (e.g., "register").
	Action string `yaml:"action"`

	// Args contains the operation arguments.
	Args map[string]interface{} `yaml:"args"`
}

// FlowStep is a step in the main flow.
type FlowStep struct {
	// Invoke is the operation name.
	Invoke string `yaml:"invoke"`

	// Args contains the operation arguments.
	Args map[string]interface{} `yaml:"args"`

	// Expect specifies the expected outcome. If nil the outcome is only
	// recorded.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Case is the expected outcome name (e.g., "snoozed", "not_found").
	Case string `yaml:"case"`

	// Result contains expected result field values (subset match).
	Result map[string]interface{} `yaml:"result,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an operation or notification appears with args
	// - "trace_order": operations appear in order
	// - "trace_count": an operation appears exactly N times
	// - "final_state": a stored row has the expected values
	// - "state_count": a table holds exactly N rows
	Type string `yaml:"type"`

	// Action is the trace name (used by trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Args are the expected arguments (used by trace_contains).
	// Subset match - only specified fields are validated.
	Args map[string]interface{} `yaml:"args,omitempty"`

	// Table is "events" or "dismissed" (used by final_state, state_count).
	Table string `yaml:"table,omitempty"`

	// Where selects the row (used by final_state). event_id is required;
	// instance_start narrows to one instance.
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences or rows.
	Count int `yaml:"count,omitempty"`

	// Actions is the expected order (used by trace_order).
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertStateCount    = "state_count"
)

// State tables.
const (
	TableEvents    = "events"
	TableDismissed = "dismissed"
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

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if step.Action == "" {
			return fmt.Errorf("setup[%d]: action is required", i)
		}
		if !knownOperation(step.Action) {
			return fmt.Errorf("setup[%d]: unknown operation %q", i, step.Action)
		}
	}

	for i, step := range s.Flow {
		if step.Invoke == "" {
			return fmt.Errorf("flow[%d]: invoke is required", i)
		}
		if !knownOperation(step.Invoke) {
			return fmt.Errorf("flow[%d]: unknown operation %q", i, step.Invoke)
		}
		if step.Expect != nil && step.Expect.Case == "" {
			return fmt.Errorf("flow[%d].expect: case is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
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
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if err := validateTable(index, a.Table); err != nil {
			return err
		}
		if _, ok := a.Where["event_id"]; !ok {
			return fmt.Errorf("assertions[%d]: where.event_id is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertStateCount:
		if err := validateTable(index, a.Table); err != nil {
			return err
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for state_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func validateTable(index int, table string) error {
	switch table {
	case TableEvents, TableDismissed:
		return nil
	case "":
		return fmt.Errorf("assertions[%d]: table is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown table %q", index, table)
	}
}
