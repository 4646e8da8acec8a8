package harness

// TraceEvent is one observable event from a scenario execution: a
// subscriber fire, a delivered change batch, a value returned by a
// sequence mutator, or an expected error.
type TraceEvent struct {
	Type     string `json:"type"` // "fire", "batch", "result", or "error"
	Watch    string `json:"watch,omitempty"`
	Op       string `json:"op,omitempty"`
	Path     string `json:"path,omitempty"`
	Value    any    `json:"value,omitempty"`
	Changes  []any  `json:"changes,omitempty"`
	Error    string `json:"error,omitempty"`
	Seq      int64  `json:"seq"`
	Revision string `json:"revision,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True if all steps behaved as declared and all assertions match.
	Pass bool `json:"pass"`

	// Trace contains all fires, batches, results, and expected errors
	// in the order they happened.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion and step failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Fires counts callback invocations per watch name, including the
	// immediate fire at subscription time.
	Fires map[string]int `json:"fires,omitempty"`

	// Last holds the most recent value delivered to each watch.
	Last map[string]any `json:"last,omitempty"`

	// Batches counts delivered change batches; Changes counts the
	// records across all of them.
	Batches int `json:"batches"`
	Changes int `json:"changes"`

	// Final is the deep-copied state after the last step, Hash its
	// canonical fingerprint.
	Final map[string]any `json:"final"`
	Hash  string         `json:"hash"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:  true,
		Trace: []TraceEvent{},
		Fires: make(map[string]int),
		Last:  make(map[string]any),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddFireTrace records a subscriber fire.
func (r *Result) AddFireTrace(watch string, value any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:  "fire",
		Watch: watch,
		Value: value,
		Seq:   seq,
	})
}

// AddBatchTrace records a delivered change batch.
func (r *Result) AddBatchTrace(changes []any, seq int64, revision string) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:     "batch",
		Changes:  changes,
		Seq:      seq,
		Revision: revision,
	})
}

// AddResultTrace records a value returned by a sequence mutator.
func (r *Result) AddResultTrace(op, path string, value any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:  "result",
		Op:    op,
		Path:  path,
		Value: value,
		Seq:   seq,
	})
}

// AddErrorTrace records an error that a step declared it expected.
func (r *Result) AddErrorTrace(op, path, msg string, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:  "error",
		Op:    op,
		Path:  path,
		Error: msg,
		Seq:   seq,
	})
}
