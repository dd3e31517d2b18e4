package harness

// TraceEvent is one state emitted by the machine under test.
type TraceEvent struct {
	// Seq numbers emitted states from 1 in emission order.
	Seq int64 `json:"seq"`
	// Type is the state's variant name, e.g. "ShowContent".
	Type string `json:"type"`
	// Value is the state's JSON form, decoded into maps and slices.
	Value any `json:"value"`
}

// JournalSummary is what the in-memory journal recorded for the run.
type JournalSummary struct {
	// Machines counts the parent and every child machine that reduced.
	Machines int `json:"machines"`
	// Emitted counts emissions of the machine under test.
	Emitted   int `json:"emitted"`
	Events    int `json:"events"`
	Applied   int `json:"applied"`
	Discarded int `json:"discarded"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true if every step and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every state the machine emitted, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains step and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// MachineID is the id of the machine under test.
	MachineID string `json:"machine_id"`

	// Calls counts collaborator calls by method ("load_page", "mark_as_favorite").
	Calls map[string]int `json:"calls"`

	Journal JournalSummary `json:"journal"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Calls:  map[string]int{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddState appends an emitted state to the trace.
func (r *Result) AddState(typ string, value any) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:   int64(len(r.Trace) + 1),
		Type:  typ,
		Value: value,
	})
}

// Last returns the last emitted state, if any.
func (r *Result) Last() (TraceEvent, bool) {
	if len(r.Trace) == 0 {
		return TraceEvent{}, false
	}
	return r.Trace[len(r.Trace)-1], true
}
