package harness

// TraceEvent records one step and the subject's artifacts once its
// generation settled.
type TraceEvent struct {
	Step int    `json:"step"`
	Kind string `json:"kind"`

	// Turn results; set for turn steps only.
	Turn       int64    `json:"turn,omitempty"`
	Fired      []string `json:"fired,omitempty"`
	Generating []string `json:"generating,omitempty"`
	Created    []string `json:"created,omitempty"`
	Dismissed  []string `json:"dismissed,omitempty"`
	Visible    []string `json:"visible,omitempty"`

	// Target of a dismiss or reset step.
	Target string `json:"target,omitempty"`

	Artifacts map[string]ArtifactState `json:"artifacts"`
}

// ArtifactState is the traced view of one artifact.
type ArtifactState struct {
	Status  string `json:"status"`
	Attempt int    `json:"attempt"`
	Error   string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
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
