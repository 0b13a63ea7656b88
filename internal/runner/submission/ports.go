package submission

import "context"

// Recorder is the persistence port. A Save failure is retried once and
// then reported as a warning on the record, never as a run failure.
type Recorder interface {
	Save(ctx context.Context, rec *Record) error
	Find(ctx context.Context, filter Filter) ([]*Record, error)
}

// Filter narrows a history lookup.
type Filter struct {
	SubmissionID string
	UserID       string
	LessonID     string
	Limit        int
}

// ProgressNotifier is the progress port, invoked only when every test
// in a submission passed.
type ProgressNotifier interface {
	MarkLessonComplete(ctx context.Context, userID, lessonID string) error
}

// Phase is the coarse live-progress state of an in-flight submission.
type Phase string

const (
	PhaseRunning  Phase = "running"
	PhaseFinished Phase = "finished"
)

// StatusUpdate is a live-progress snapshot pushed to the status
// repository while a submission runs.
type StatusUpdate struct {
	SubmissionID string `json:"submission_id"`
	SessionID    string `json:"session_id"`
	Phase        Phase  `json:"phase"`
	Done         int    `json:"done"`
	Total        int    `json:"total"`
	Status       Status `json:"status,omitempty"`
}

// StatusReporter receives live-progress snapshots. Reporting is best
// effort; failures never affect the run.
type StatusReporter interface {
	Report(ctx context.Context, update StatusUpdate) error
}

// Archiver stores a finished submission's source files and returns the
// key they were stored under. Archiving is best effort.
type Archiver interface {
	Archive(ctx context.Context, rec *Record) (string, error)
}

// CompletionPublisher emits the terminal state of a submission to
// downstream consumers. Publishing is best effort.
type CompletionPublisher interface {
	PublishCompleted(ctx context.Context, rec *Record) error
}
