package submission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/backend"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/harness"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/project"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/queue"
	appErr "github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/errors"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/utils/logger"
)

const (
	defaultExecTimeout      = 10 * time.Second
	defaultAggregateTimeout = 60 * time.Second

	projectOutcomeID   = "project"
	projectOutcomeName = "project execution"

	aggregateTimeoutMessage = "submission time limit exceeded"
)

// Config bounds a single submission run.
type Config struct {
	// DefaultTimeout is the per-execution ceiling applied when neither
	// the request nor the test definition carries its own.
	DefaultTimeout time.Duration
	// AggregateTimeout caps the whole submission. When it expires the
	// running test is torn down and every remaining test is marked
	// timed out.
	AggregateTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = defaultExecTimeout
	}
	if c.AggregateTimeout <= 0 {
		c.AggregateTimeout = defaultAggregateTimeout
	}
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

func WithProgressNotifier(p ProgressNotifier) Option {
	return func(o *Orchestrator) { o.progress = p }
}

func WithStatusReporter(s StatusReporter) Option {
	return func(o *Orchestrator) { o.status = s }
}

func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

func WithCompletionPublisher(p CompletionPublisher) Option {
	return func(o *Orchestrator) { o.completion = p }
}

// Orchestrator runs submissions: top-level project execution first,
// then each test sequentially through harness, queue, and parser, and
// finally aggregation and handoff to the collaborator ports.
type Orchestrator struct {
	cfg    Config
	queues *queue.SessionManager

	recorder   Recorder
	progress   ProgressNotifier
	status     StatusReporter
	archiver   Archiver
	completion CompletionPublisher

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func New(cfg Config, queues *queue.SessionManager, opts ...Option) (*Orchestrator, error) {
	if queues == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("session manager is required")
	}
	cfg.applyDefaults()
	o := &Orchestrator{
		cfg:     cfg,
		queues:  queues,
		running: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Params describes one submission run.
type Params struct {
	SubmissionID string
	SessionID    string
	UserID       string
	LessonID     string
	Kind         backend.Kind
	Files        []project.File
	EntryPoint   string
	Tests        []harness.TestDefinition

	// Timeout overrides the per-execution ceiling; tests may further
	// override it individually.
	Timeout time.Duration
	// AggregateTimeout overrides the whole-submission ceiling.
	AggregateTimeout time.Duration
}

// Run executes one submission to completion. Backend and queue errors
// are folded into the returned record; only contract violations (an
// empty test list, an invalid project) are returned as errors.
func (o *Orchestrator) Run(ctx context.Context, p Params) (*Record, error) {
	if p.SessionID == "" {
		return nil, appErr.ValidationError("session_id", "required")
	}
	if len(p.Tests) == 0 {
		return nil, appErr.New(appErr.EmptyTestList)
	}
	if err := project.Validate(p.Files, p.EntryPoint); err != nil {
		return nil, err
	}
	if p.SubmissionID == "" {
		p.SubmissionID = uuid.NewString()
	}

	execTimeout := p.Timeout
	if execTimeout <= 0 {
		execTimeout = o.cfg.DefaultTimeout
	}
	aggTimeout := p.AggregateTimeout
	if aggTimeout <= 0 {
		aggTimeout = o.cfg.AggregateTimeout
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := o.track(p.SubmissionID, cancel); err != nil {
		return nil, err
	}
	defer o.untrack(p.SubmissionID)

	aggCtx, aggCancel := context.WithTimeout(runCtx, aggTimeout)
	defer aggCancel()

	q, err := o.queues.Get(p.SessionID)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		ID:         p.SubmissionID,
		SessionID:  p.SessionID,
		UserID:     p.UserID,
		LessonID:   p.LessonID,
		Kind:       p.Kind,
		Files:      p.Files,
		EntryPoint: p.EntryPoint,
		CreatedAt:  time.Now(),
	}

	o.report(runCtx, rec, PhaseRunning, 0, len(p.Tests))
	o.runProject(aggCtx, q, rec, p, execTimeout)
	if rec.Status == "" {
		o.runTests(aggCtx, q, rec, p, execTimeout)
	}
	if rec.Status == "" {
		rec.Status = StatusPartial
		if allPassed(rec.Outcomes) {
			rec.Status = StatusComplete
		}
	}

	rec.summarize()
	rec.FinishedAt = time.Now()
	o.finish(ctx, rec)
	return rec, nil
}

// Cancel aborts an in-flight submission. Completed outcomes are kept
// and the record comes back marked canceled.
func (o *Orchestrator) Cancel(submissionID string) error {
	o.mu.Lock()
	cancel, ok := o.running[submissionID]
	o.mu.Unlock()
	if !ok {
		return appErr.New(appErr.SubmissionNotFound).WithDetail("submission_id", submissionID)
	}
	cancel()
	return nil
}

// runProject executes the user's entry point once with no harness. A
// failure here short-circuits the whole submission into a single
// outcome: broken code is not worth running every test against.
func (o *Orchestrator) runProject(ctx context.Context, q *queue.Queue, rec *Record, p Params, timeout time.Duration) {
	req := backend.Request{
		ID:         p.SubmissionID + ":project",
		Mode:       modeFor(p.Files),
		Files:      p.Files,
		EntryPoint: p.EntryPoint,
		Kind:       p.Kind,
		Timeout:    timeout,
	}
	res, err := q.Execute(ctx, req)
	rec.ExecutionOutput = res.Stdout
	rec.ExecutionTime = res.Duration

	if err != nil {
		switch appErr.GetCode(err) {
		case appErr.ExecutionCanceled:
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				o.markRemainingTimedOut(rec, p.Tests)
				break
			}
			rec.Status = StatusCanceled
		case appErr.ExecutionTimeout:
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				o.markRemainingTimedOut(rec, p.Tests)
				break
			}
			rec.Status = StatusExecutionError
			rec.Outcomes = append(rec.Outcomes, harness.TestOutcome{
				ID:      projectOutcomeID,
				Name:    projectOutcomeName,
				Status:  harness.StatusTimedOut,
				Message: "execution timed out",
			})
		default:
			rec.Status = StatusExecutionError
			rec.Outcomes = append(rec.Outcomes, harness.TestOutcome{
				ID:       projectOutcomeID,
				Name:     projectOutcomeName,
				Status:   harness.StatusErrored,
				Message:  err.Error(),
				Duration: res.Duration,
			})
		}
		return
	}
	if res.ErrorSummary != "" {
		rec.Status = StatusExecutionError
		rec.Outcomes = append(rec.Outcomes, harness.TestOutcome{
			ID:       projectOutcomeID,
			Name:     projectOutcomeName,
			Status:   harness.StatusErrored,
			Message:  res.ErrorSummary,
			Duration: res.Duration,
		})
	}
}

func (o *Orchestrator) runTests(ctx context.Context, q *queue.Queue, rec *Record, p Params, execTimeout time.Duration) {
	for i, test := range p.Tests {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			o.markRemainingTimedOut(rec, p.Tests[i:])
			return
		}
		if ctx.Err() != nil {
			rec.Status = StatusCanceled
			return
		}

		unit, err := harness.Build(p.Files, p.EntryPoint, test)
		if err != nil {
			rec.Outcomes = append(rec.Outcomes, harness.TestOutcome{
				ID:      test.ID,
				Name:    test.Name,
				Status:  harness.StatusErrored,
				Message: err.Error(),
			})
			continue
		}

		timeout := test.Timeout
		if timeout <= 0 {
			timeout = execTimeout
		}
		req := backend.Request{
			ID:         fmt.Sprintf("%s:%s", p.SubmissionID, test.ID),
			Mode:       modeFor(unit.Files),
			Files:      unit.Files,
			EntryPoint: unit.EntryPoint,
			Kind:       p.Kind,
			Timeout:    timeout,
		}
		res, execErr := q.Execute(ctx, req)

		if execErr != nil {
			switch appErr.GetCode(execErr) {
			case appErr.ExecutionCanceled:
				// The aggregate deadline cancels the backend too, so a
				// canceled execution must be re-checked against it.
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					o.markRemainingTimedOut(rec, p.Tests[i:])
					return
				}
				rec.Status = StatusCanceled
				return
			case appErr.ExecutionTimeout:
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					o.markRemainingTimedOut(rec, p.Tests[i:])
					return
				}
			}
		}

		rec.Outcomes = append(rec.Outcomes, harness.Parse(test, &res, execErr))
		o.report(ctx, rec, PhaseRunning, i+1, len(p.Tests))
	}
}

// markRemainingTimedOut handles the aggregate ceiling: the running
// test and everything after it are reported as timed out, distinctly
// from errored.
func (o *Orchestrator) markRemainingTimedOut(rec *Record, remaining []harness.TestDefinition) {
	rec.Status = StatusTimedOut
	for _, test := range remaining {
		rec.Outcomes = append(rec.Outcomes, harness.TestOutcome{
			ID:      test.ID,
			Name:    test.Name,
			Status:  harness.StatusTimedOut,
			Message: aggregateTimeoutMessage,
		})
	}
}

// finish hands the record off to the collaborator ports. Port failures
// become warnings on the record, never run failures.
func (o *Orchestrator) finish(ctx context.Context, rec *Record) {
	ctx = context.WithoutCancel(ctx)

	o.report(ctx, rec, PhaseFinished, len(rec.Outcomes), len(rec.Outcomes))

	// Archive before persisting so the archive key lands in the record.
	if o.archiver != nil {
		if key, err := o.archiver.Archive(ctx, rec); err != nil {
			logger.Warn(ctx, "submission archive failed",
				zap.String("submission_id", rec.ID), zap.Error(err))
			rec.Warnings = append(rec.Warnings, "failed to archive submission sources")
		} else {
			rec.ArchiveKey = key
		}
	}

	if o.recorder != nil {
		err := o.recorder.Save(ctx, rec)
		if err != nil {
			logger.Warn(ctx, "submission save failed, retrying once",
				zap.String("submission_id", rec.ID), zap.Error(err))
			err = o.recorder.Save(ctx, rec)
		}
		if err != nil {
			logger.Error(ctx, "submission save failed after retry",
				zap.String("submission_id", rec.ID), zap.Error(err))
			rec.Warnings = append(rec.Warnings, "failed to persist submission record")
		}
	}

	if o.completion != nil {
		if err := o.completion.PublishCompleted(ctx, rec); err != nil {
			logger.Warn(ctx, "completion publish failed",
				zap.String("submission_id", rec.ID), zap.Error(err))
			rec.Warnings = append(rec.Warnings, "failed to publish completion event")
		}
	}

	if o.progress != nil && rec.Status == StatusComplete {
		if err := o.progress.MarkLessonComplete(ctx, rec.UserID, rec.LessonID); err != nil {
			logger.Warn(ctx, "progress notification failed",
				zap.String("submission_id", rec.ID), zap.Error(err))
			rec.Warnings = append(rec.Warnings, "failed to record lesson progress")
		}
	}
}

func (o *Orchestrator) report(ctx context.Context, rec *Record, phase Phase, done, total int) {
	if o.status == nil {
		return
	}
	update := StatusUpdate{
		SubmissionID: rec.ID,
		SessionID:    rec.SessionID,
		Phase:        phase,
		Done:         done,
		Total:        total,
	}
	if phase == PhaseFinished {
		update.Status = rec.Status
	}
	if err := o.status.Report(ctx, update); err != nil {
		logger.Debug(ctx, "status report dropped", zap.String("submission_id", rec.ID), zap.Error(err))
	}
}

func (o *Orchestrator) track(submissionID string, cancel context.CancelFunc) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.running[submissionID]; exists {
		return appErr.New(appErr.RequestAlreadyQueued).WithDetail("submission_id", submissionID)
	}
	o.running[submissionID] = cancel
	return nil
}

func (o *Orchestrator) untrack(submissionID string) {
	o.mu.Lock()
	delete(o.running, submissionID)
	o.mu.Unlock()
}

func modeFor(files []project.File) backend.Mode {
	if len(files) > 1 {
		return backend.ModeProject
	}
	return backend.ModeSingle
}

func allPassed(outcomes []harness.TestOutcome) bool {
	for _, o := range outcomes {
		if o.Status != harness.StatusPassed {
			return false
		}
	}
	return len(outcomes) > 0
}
