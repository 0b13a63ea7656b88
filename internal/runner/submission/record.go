// Package submission orchestrates one user attempt end to end: a
// top-level project run, per-test harness executions, aggregation into
// a scored record, and handoff to the persistence and progress ports.
package submission

import (
	"time"

	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/backend"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/harness"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/project"
)

// Status is the terminal state of a whole submission.
type Status string

const (
	// StatusComplete means every test passed.
	StatusComplete Status = "complete"
	// StatusExecutionError means the project itself failed to run, so
	// no individual test was invoked.
	StatusExecutionError Status = "execution_error"
	// StatusPartial means at least one test did not pass.
	StatusPartial Status = "partial"
	// StatusCanceled means the caller canceled the submission midway.
	StatusCanceled Status = "canceled"
	// StatusTimedOut means the aggregate submission ceiling expired.
	StatusTimedOut Status = "timed_out"
)

// Summary aggregates the outcome counts. Failed includes errored and
// timed-out tests, so Passed+Failed always equals Total.
type Summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Score  int `json:"score"`
}

// Record is the full result of one submission run. The orchestrator
// owns it for the duration of the run and hands it off on completion.
type Record struct {
	ID         string                `json:"id"`
	SessionID  string                `json:"session_id"`
	UserID     string                `json:"user_id"`
	LessonID   string                `json:"lesson_id"`
	Kind       backend.Kind          `json:"backend_kind"`
	Files      []project.File        `json:"files"`
	EntryPoint string                `json:"entry_point"`
	Outcomes   []harness.TestOutcome `json:"outcomes"`
	Summary    Summary               `json:"summary"`
	Status     Status                `json:"status"`

	// ExecutionOutput is the stdout of the top-level project run.
	ExecutionOutput string        `json:"execution_output"`
	ExecutionTime   time.Duration `json:"execution_time"`

	// ArchiveKey is the object-storage key the source files were
	// archived under, when archiving is configured.
	ArchiveKey string `json:"archive_key,omitempty"`

	// Warnings carries non-fatal problems (a persistence failure, a
	// progress publish failure) alongside a still-valid result.
	Warnings []string `json:"warnings,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Response is the presentation shape returned to callers.
type Response struct {
	Success         bool                  `json:"success"`
	SubmissionID    string                `json:"submission_id"`
	Status          Status                `json:"status"`
	TestOutcomes    []harness.TestOutcome `json:"test_outcomes"`
	Summary         Summary               `json:"summary"`
	ExecutionOutput string                `json:"execution_output"`
	ExecutionTimeMs int64                 `json:"execution_time_ms"`
	Warnings        []string              `json:"warnings,omitempty"`
}

func (r *Record) Response() Response {
	return Response{
		Success:         r.Status == StatusComplete,
		SubmissionID:    r.ID,
		Status:          r.Status,
		TestOutcomes:    r.Outcomes,
		Summary:         r.Summary,
		ExecutionOutput: r.ExecutionOutput,
		ExecutionTimeMs: r.ExecutionTime.Milliseconds(),
		Warnings:        r.Warnings,
	}
}

func (r *Record) summarize() {
	s := Summary{Total: len(r.Outcomes)}
	for _, o := range r.Outcomes {
		if o.Status == harness.StatusPassed {
			s.Passed++
		}
	}
	s.Failed = s.Total - s.Passed
	if s.Total > 0 {
		s.Score = int(float64(s.Passed)/float64(s.Total)*100 + 0.5)
	}
	r.Summary = s
}
