package harness

// Outcome of a step that succeeded.
const OutcomeOK = "ok"

// TraceEvent records one executed step.
//
// Outcome is OutcomeOK or the error code the operation returned. Result
// holds the operation's output; it is omitted for failed steps.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Op      string `json:"op"`
	URI     string `json:"uri,omitempty"`
	Outcome string `json:"outcome"`
	Result  any    `json:"result,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every executed step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
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

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addTrace(op, uri, outcome string, result any) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:     int64(len(r.Trace) + 1),
		Op:      op,
		URI:     uri,
		Outcome: outcome,
		Result:  result,
	})
}
