// Package harness runs alert lifecycle scenarios as executable tests.
//
// A scenario registers fired alerts against a calendar fixture, drives them
// through the real orchestrator and notification manager, and validates the
// resulting trace and stored state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	start: 1700000000000
//	calendar:
//	  calendars:
//	    - { id: 1, name: Work, handled: true }
//	  events:
//	    - { id: 42, calendar: 1, title: Standup, start: 1700038800000, end: 1700040600000 }
//	notifications:
//	  max_visible: 4
//	  mode: default
//	setup:
//	  - action: register
//	    args: { event: 42 }
//	flow:
//	  - invoke: snooze
//	    args: { event: 42, delay: 900000 }
//	    expect:
//	      case: snoozed
//	      result: { snoozed_until: 1700000900000 }
//	assertions:
//	  - type: trace_contains
//	    action: cancel
//	  - type: final_state
//	    table: events
//	    where: { event_id: 42 }
//	    expect: { display: hidden }
//
// # Operations
//
// register, dismiss, dismiss_by_id, dismiss_all, snooze, snooze_all, mute,
// mute_all, restore, move, refresh, advance and purge. Times and delays are
// epoch milliseconds.
//
// # Assertion Types
//
//   - trace_contains: an operation or notification appears with matching args
//   - trace_order: operations appear in the specified order
//   - trace_count: an operation appears exactly N times
//   - final_state: a stored alert or archive entry has the expected values
//   - state_count: the alert store or archive holds exactly N rows
//
// # Deterministic Testing
//
// Every scenario runs against fresh stores in a temporary directory with a
// fake clock and sequential operation ids, so traces are reproducible and can
// be compared against golden files.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/snooze.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
