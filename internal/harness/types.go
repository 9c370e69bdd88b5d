package harness

// Trace event types.
const (
	EventInvocation   = "invocation"
	EventCompletion   = "completion"
	EventNotification = "notification"
)

// TraceEvent is one entry of a scenario trace: an invoked operation, its
// outcome, or a notification posted or cancelled by the sink.
type TraceEvent struct {
	Type       string                 `json:"type"`
	ActionURI  string                 `json:"action,omitempty"`
	Args       map[string]interface{} `json:"args,omitempty"`
	OutputCase string                 `json:"case,omitempty"`
	Result     map[string]interface{} `json:"result,omitempty"`
	Seq        int64                  `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every invocation, completion and notification in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	seq int64
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) next() int64 {
	r.seq++
	return r.seq
}

// AddInvocationTrace adds an invoked operation to the trace.
func (r *Result) AddInvocationTrace(action string, args map[string]interface{}) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:      EventInvocation,
		ActionURI: action,
		Args:      args,
		Seq:       r.next(),
	})
}

// AddCompletionTrace adds an operation outcome to the trace.
func (r *Result) AddCompletionTrace(outputCase string, result map[string]interface{}) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:       EventCompletion,
		OutputCase: outputCase,
		Result:     result,
		Seq:        r.next(),
	})
}

// AddNotificationTrace adds a sink call ("post" or "cancel") to the trace.
func (r *Result) AddNotificationTrace(action string, args map[string]interface{}) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:      EventNotification,
		ActionURI: action,
		Args:      args,
		Seq:       r.next(),
	})
}
