package harness

// TraceEvent records the outcome of one scenario step.
type TraceEvent struct {
	Step    int      `json:"step"`
	Action  string   `json:"action"`
	Version string   `json:"version,omitempty"`
	Status  string   `json:"status,omitempty"`
	Number  string   `json:"number,omitempty"`
	Bump    string   `json:"bump,omitempty"`
	Blocked bool     `json:"blocked,omitempty"`
	Reasons []string `json:"reasons,omitempty"`

	// Total is the number of rows matching a query step.
	Total int `json:"total,omitempty"`

	// Error is the code of the error the step returned.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
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

// AddTrace appends a step event.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
