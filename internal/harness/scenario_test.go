package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	scenarioPath := filepath.Join(dir, "test.yaml")

	content := `
name: test_scenario
description: "Test scenario for validation"
calendar:
  calendars:
    - { id: 1, name: Work, handled: true }
  events:
    - { id: 42, calendar: 1, title: Standup, start: 1700038800000, end: 1700040600000 }
notifications:
  max_visible: 3
quiet_hours:
  from: "22:00"
  to: "07:00"
flow:
  - invoke: register
    args:
      event: 42
      alarm: true
assertions:
  - type: trace_contains
    action: register
`
	require.NoError(t, os.WriteFile(scenarioPath, []byte(content), 0644))

	scenario, err := LoadScenario(scenarioPath)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Len(t, scenario.Calendar.Events, 1)
	assert.Equal(t, 3, scenario.Notifications.MaxVisible)
	require.NotNil(t, scenario.QuietHours)
	assert.Equal(t, "22:00", scenario.QuietHours.From)
	assert.Len(t, scenario.Flow, 1)
	assert.Len(t, scenario.Assertions, 1)
	assert.Equal(t, "register", scenario.Flow[0].Invoke)
	assert.Equal(t, 42, scenario.Flow[0].Args["event"])
	assert.Equal(t, true, scenario.Flow[0].Args["alarm"])
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := LoadScenario(path)
			require.NoError(t, err)
		})
	}
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name: "unknown field",
			content: `
name: x
description: y
flow:
  - invoke: refresh
assertion:
  - type: trace_count
    action: refresh
`,
			errMsg: "field assertion not found",
		},
		{
			name: "missing name",
			content: `
description: y
flow:
  - invoke: refresh
assertions:
  - type: trace_count
    action: refresh
`,
			errMsg: "name is required",
		},
		{
			name: "empty flow",
			content: `
name: x
description: y
assertions:
  - type: trace_count
    action: refresh
`,
			errMsg: "flow list is required",
		},
		{
			name: "unknown operation",
			content: `
name: x
description: y
flow:
  - invoke: frobnicate
assertions:
  - type: trace_count
    action: refresh
`,
			errMsg: `unknown operation "frobnicate"`,
		},
		{
			name: "unknown setup operation",
			content: `
name: x
description: y
setup:
  - action: explode
flow:
  - invoke: refresh
assertions:
  - type: trace_count
    action: refresh
`,
			errMsg: `setup[0]: unknown operation "explode"`,
		},
		{
			name: "expect without case",
			content: `
name: x
description: y
flow:
  - invoke: refresh
    expect:
      result: { posts: 0 }
assertions:
  - type: trace_count
    action: refresh
`,
			errMsg: "flow[0].expect: case is required",
		},
		{
			name: "final state without where",
			content: `
name: x
description: y
flow:
  - invoke: refresh
assertions:
  - type: final_state
    table: events
    expect: { display: hidden }
`,
			errMsg: "where.event_id is required",
		},
		{
			name: "unknown table",
			content: `
name: x
description: y
flow:
  - invoke: refresh
assertions:
  - type: state_count
    table: alerts
`,
			errMsg: `unknown table "alerts"`,
		},
		{
			name: "unknown assertion type",
			content: `
name: x
description: y
flow:
  - invoke: refresh
assertions:
  - type: eventually
`,
			errMsg: `unknown assertion type "eventually"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
