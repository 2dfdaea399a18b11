package harness

// Trace event types.
const (
	EventInitiate  = "initiate"
	EventReport    = "report"
	EventReconcile = "reconcile"
	EventAdvance   = "advance"
	EventCredit    = "credit"
	EventChannel   = "channel"
)

// TraceEvent is one entry of a scenario trace.
//
// Args and Result hold only strings so the trace serialises to canonical
// JSON without conversion.
type TraceEvent struct {
	Seq    int64             `json:"seq"`
	Type   string            `json:"type"`
	Args   map[string]string `json:"args,omitempty"`
	Result map[string]string `json:"result,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds the step, channel and follow-up events in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds expect and assertion failures. Empty if Pass is true.
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

// AddEvent appends an event, numbering it after the last one.
func (r *Result) AddEvent(typ string, args, result map[string]string) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:    int64(len(r.Trace) + 1),
		Type:   typ,
		Args:   args,
		Result: result,
	})
}
