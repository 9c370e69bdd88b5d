package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	r := NewResult()
	r.AddInvocationTrace("register", map[string]interface{}{"event": 42})
	r.AddNotificationTrace("post", map[string]interface{}{"event_id": int64(42), "notification_id": int64(10001)})
	r.AddCompletionTrace("registered", map[string]interface{}{"notification_id": int64(10001)})
	r.AddInvocationTrace("snooze", map[string]interface{}{"event": 42, "delay": 60000})
	r.AddNotificationTrace("cancel", map[string]interface{}{"notification_id": int64(10001)})
	r.AddCompletionTrace("snoozed", nil)
	r.AddInvocationTrace("refresh", nil)
	r.AddNotificationTrace("cancel", map[string]interface{}{"notification_id": int64(10001)})
	r.AddCompletionTrace("planned", nil)
	return r.Trace
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "register", Args: map[string]interface{}{"event": int64(42)}}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "post", Args: map[string]interface{}{"event_id": 42}}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "snooze"}))

	err := assertTraceContains(trace, Assertion{Action: "post", Args: map[string]interface{}{"event_id": 43}})
	require.Error(t, err)
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, AssertTraceContains, aerr.Type)
	assert.Contains(t, err.Error(), "Full trace:")
	assert.Contains(t, err.Error(), "[1] register")

	// Completions are outcomes, not actions.
	assert.Error(t, assertTraceContains(trace, Assertion{Action: "registered"}))
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{"register", "snooze", "refresh"}}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{"post", "cancel"}}))

	err := assertTraceOrder(trace, Assertion{Actions: []string{"refresh", "register"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "should be before")

	err = assertTraceOrder(trace, Assertion{Actions: []string{"register", "restore"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing action: restore")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "cancel", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "restore", Count: 0}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "post", Args: map[string]interface{}{"notification_id": 10001}, Count: 1}))

	err := assertTraceCount(trace, Assertion{Action: "cancel", Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 occurrences")
}

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		actual   interface{}
		expected interface{}
		want     bool
	}{
		{"int and int64", int64(5), 5, true},
		{"int32 and int", int32(7), 7, true},
		{"whole float", int64(3), float64(3), true},
		{"fractional float", int64(3), 3.5, false},
		{"strings", "hidden", "hidden", true},
		{"string mismatch", "hidden", "displayed", false},
		{"bools", true, true, true},
		{"bool and int", true, 1, false},
		{"lists", []interface{}{"success", int64(1)}, []interface{}{"success", 1}, true},
		{"list length", []interface{}{"success"}, []interface{}{"success", "event_not_found"}, false},
		{"maps", map[string]interface{}{"n": int64(1)}, map[string]interface{}{"n": 1}, true},
		{"nil", nil, nil, true},
		{"nil and value", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, valuesEqual(tt.actual, tt.expected))
		})
	}
}

func TestMatchArgs(t *testing.T) {
	actual := map[string]interface{}{"event_id": int64(42), "sound": true}

	assert.True(t, matchArgs(actual, nil))
	assert.True(t, matchArgs(actual, map[string]interface{}{"event_id": 42}))
	assert.False(t, matchArgs(actual, map[string]interface{}{"event_id": 42, "channel": "calendar_alarm"}))
	assert.False(t, matchArgs(nil, map[string]interface{}{"event_id": 42}))
}

func TestEvaluateAssertions_StateNeedsStores(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertStateCount, Table: TableEvents},
		{Type: AssertTraceCount, Action: "refresh", Count: 0},
	}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "requires store context")
}
