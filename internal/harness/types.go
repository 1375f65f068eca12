package harness

// Trace event types.
const (
	EventTransition = "transition"
	EventAttempt    = "attempt"
	EventFailure    = "failure"
	EventSession    = "session"
	EventSpot       = "spot"
	EventReject     = "reject"
	EventClosed     = "closed"
)

// TraceEvent is one observable step of a scenario run. Only the fields
// relevant to Type are set.
type TraceEvent struct {
	Type    string `json:"type"`
	Seq     int64  `json:"seq"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Cluster string `json:"cluster,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Session string `json:"session,omitempty"`

	// spot fields; Frequency is formatted with one decimal
	Spotter   string `json:"spotter,omitempty"`
	Frequency string `json:"frequency,omitempty"`
	Callsign  string `json:"callsign,omitempty"`
	Code      string `json:"code,omitempty"`
}

// fields returns the event as a flat map, for subset matching and
// canonical serialization.
func (e TraceEvent) fields() map[string]any {
	m := map[string]any{"type": e.Type, "seq": e.Seq}
	set := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	set("from", e.From)
	set("to", e.To)
	set("cluster", e.Cluster)
	set("reason", e.Reason)
	set("session", e.Session)
	set("spotter", e.Spotter)
	set("frequency", e.Frequency)
	set("callsign", e.Callsign)
	set("code", e.Code)
	return m
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace holds every event in the order it happened.
	Trace []TraceEvent `json:"trace"`

	// Errors holds assertion failures; empty when Pass is true.
	Errors []string `json:"errors,omitempty"`

	// FinalState is the client state when the run stopped.
	FinalState string `json:"final_state"`
}

// NewResult creates an empty passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// add appends ev with the next sequence number.
func (r *Result) add(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}

// Transitions returns the target states in order.
func (r *Result) Transitions() []string {
	var out []string
	for _, ev := range r.Trace {
		if ev.Type == EventTransition {
			out = append(out, ev.To)
		}
	}
	return out
}
