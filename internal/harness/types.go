package harness

// TraceEvent records the outcome of one scenario step.
type TraceEvent struct {
	Step    int      `json:"step"` // 1-based
	Op      string   `json:"op"`
	Form    string   `json:"form"`
	Outcome string   `json:"outcome"` // "ok" or an error code
	Table   string   `json:"table,omitempty"`
	Fields  []string `json:"fields,omitempty"`  // aliases after a save
	Columns []string `json:"columns,omitempty"` // results table after the step
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace has one event per executed step.
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
