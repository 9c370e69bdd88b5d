package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runScenarioFile(t *testing.T, name string) *Result {
	t.Helper()
	scenario, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
	require.NoError(t, err)
	result, err := Run(scenario)
	require.NoError(t, err)
	return result
}

func TestRun_Scenarios(t *testing.T) {
	for _, name := range []string{"snooze_restore", "collapse", "dismiss_purge", "clock_advance"} {
		t.Run(name, func(t *testing.T) {
			result := runScenarioFile(t, name)
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_TraceSequence(t *testing.T) {
	result := runScenarioFile(t, "snooze_restore")

	for i, event := range result.Trace {
		assert.Equal(t, int64(i+1), event.Seq)
	}

	// Every invocation is followed, eventually, by its completion.
	open := 0
	for _, event := range result.Trace {
		switch event.Type {
		case EventInvocation:
			assert.Zero(t, open, "invocation %s while another is open", event.ActionURI)
			open++
		case EventCompletion:
			open--
		}
	}
	assert.Zero(t, open)
}

func TestRun_ExpectMismatch(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: mismatch
description: Wrong expectations are reported, not fatal
calendar:
  calendars:
    - { id: 1, name: Work, handled: true }
  events:
    - { id: 42, calendar: 1, title: Standup, start: 1700038800000, end: 1700040600000 }
flow:
  - invoke: snooze
    args: { event: 42, delay: 60000 }
    expect:
      case: snoozed
  - invoke: register
    args: { event: 42 }
    expect:
      case: registered
      result: { notification_id: 99 }
assertions:
  - type: state_count
    table: events
    count: 2
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], `expected case "snoozed", got "not_found"`)
	assert.Contains(t, result.Errors[1], "expected result")
	assert.Contains(t, result.Errors[2], "2 rows in events")
}

func TestRun_BadArguments(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: bad_args
description: Operation argument errors abort the run
flow:
  - invoke: snooze
    args: { event: forty-two, delay: 60000 }
assertions:
  - type: trace_count
    action: snooze
    count: 1
`))
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `argument "event" must be an integer`)
}

func TestRun_SetupFailure(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: bad_setup
description: Setup errors are fatal
setup:
  - action: advance
flow:
  - invoke: refresh
assertions:
  - type: trace_count
    action: refresh
    count: 1
`))
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute setup")
	assert.Contains(t, err.Error(), `missing argument "ms"`)
}

func TestRun_QuietHours(t *testing.T) {
	// 1700000000000 is 22:13 UTC.
	scenario, err := ParseScenario([]byte(`
name: quiet
description: Snoozes returning inside quiet hours report the end of the quiet period
quiet_hours:
  from: "22:00"
  to: "07:00"
calendar:
  calendars:
    - { id: 1, name: Work, handled: true }
  events:
    - { id: 42, calendar: 1, title: Standup, start: 1700038800000, end: 1700040600000 }
setup:
  - action: register
    args: { event: 42 }
flow:
  - invoke: snooze
    args: { event: 42, delay: 600000 }
    expect:
      case: snoozed
      result: { snoozed_until: 1700000600000 }
assertions:
  - type: final_state
    table: events
    where: { event_id: 42 }
    expect: { display: hidden, snoozed_until: 1700000600000 }
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, strings.Join(result.Errors, "\n"))

	completion := result.Trace[len(result.Trace)-1]
	require.Equal(t, EventCompletion, completion.Type)
	assert.Equal(t, "snoozed", completion.OutputCase)
	assert.NotZero(t, completion.Result["quiet_until"])
}

func TestRun_MuteAndMove(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: mute_move
description: Muting flips the flag and moving removes the alert
calendar:
  calendars:
    - { id: 1, name: Work, handled: true }
  events:
    - { id: 42, calendar: 1, title: Standup, start: 1700038800000, end: 1700040600000 }
    - { id: 43, calendar: 1, title: Review, start: 1700042400000, end: 1700046000000 }
setup:
  - action: register
    args: { event: 42 }
  - action: register
    args: { event: 43, alarm: true }
flow:
  - invoke: mute
    args: { event: 42 }
    expect:
      case: muted
  - invoke: mute_all
    expect:
      case: muted
      result: { count: 2 }
  - invoke: mute
    args: { event: 77 }
    expect:
      case: not_found
  - invoke: move
    args: { event: 43, by: 86400000 }
    expect:
      case: moved
      result: { new_event_id: 43 }
  - invoke: refresh
    args: { force: true }
    expect:
      case: planned
      result: { posts: 1, summary: false }
assertions:
  - type: final_state
    table: events
    where: { event_id: 42 }
    expect: { muted: true }
  - type: final_state
    table: dismissed
    where: { event_id: 43 }
    expect: { dismiss_type: moved_using_app, alarm: true }
  - type: trace_contains
    action: post
    args: { event_id: 42, channel: calendar_silent }
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}
