package harness

// TraceEvent records one gateway call and its outcome.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Phase  string `json:"phase"` // "setup" or "flow"
	Call   string `json:"call"`
	Body   any    `json:"body,omitempty"`
	OK     bool   `json:"ok"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
	Result any    `json:"result,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Trace contains every call in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Printed holds the print jobs sent during the scenario.
	Printed []PrintJob `json:"printed,omitempty"`
}

// PrintJob is a captured print job.
type PrintJob struct {
	Printer string `json:"printer"`
	Bytes   int    `json:"bytes"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
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

// AddTrace appends a call to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
