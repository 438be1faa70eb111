package harness

import "github.com/roach88/sitecms/internal/content"

// Outcomes recorded in the trace besides engine error codes.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Step    int    `json:"step"`
	Op      string `json:"op"`
	User    string `json:"user,omitempty"`
	Section string `json:"section,omitempty"`
	Key     string `json:"key,omitempty"`

	// Outcome is "ok", "skipped" or the engine error code.
	Outcome string `json:"outcome"`

	// Detail is op specific: units published, writes flushed, a rollback
	// warning.
	Detail string `json:"detail,omitempty"`

	// Violations are the messages of a VALIDATION_FAILED outcome.
	Violations []string `json:"violations,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Tree is the public content tree after the last step.
	Tree content.Object `json:"tree,omitempty"`

	// Warnings are the resolver warnings for Tree.
	Warnings []string `json:"warnings,omitempty"`
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

func (r *Result) record(ev TraceEvent) {
	ev.Step = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}

// Count returns how many trace events match op and, when non-empty,
// outcome.
func (r *Result) Count(op, outcome string) int {
	n := 0
	for _, ev := range r.Trace {
		if ev.Op == op && (outcome == "" || ev.Outcome == outcome) {
			n++
		}
	}
	return n
}
