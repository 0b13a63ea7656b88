// Package harness synthesizes per-test execution units around user code
// and classifies their captured output into structured outcomes.
package harness

import "time"

// TestDefinition is one test attached to a coding exercise.
type TestDefinition struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Code    string        `json:"code"`
	Timeout time.Duration `json:"timeout"`
	Hidden  bool          `json:"hidden"`
}

// Status classifies one test outcome.
type Status string

const (
	StatusPassed   Status = "passed"
	StatusFailed   Status = "failed"
	StatusErrored  Status = "errored"
	StatusTimedOut Status = "timed_out"
)

// TestOutcome is the structured result of running one test.
type TestOutcome struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}
