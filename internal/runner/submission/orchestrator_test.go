package submission

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/backend"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/harness"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/project"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/queue"
	appErr "github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/errors"
)

const (
	passLine   = "__DSTEST__:PASS"
	failPrefix = "__DSTEST__:FAIL:"
)

func failLine(msg string) string {
	return failPrefix + base64.StdEncoding.EncodeToString([]byte(msg))
}

// fakeBackend runs scripted behavior under a real queue, so the
// orchestrator is exercised against the genuine admission path.
type fakeBackend struct {
	kind     backend.Kind
	behavior func(ctx context.Context, req backend.Request) (backend.Result, error)

	mu    sync.Mutex
	calls []backend.Request
}

func (f *fakeBackend) Execute(ctx context.Context, req backend.Request) (backend.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.behavior(ctx, req)
}

func (f *fakeBackend) Cancel(ctx context.Context, requestID string) error { return nil }

func (f *fakeBackend) Kind() backend.Kind { return f.kind }

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeBackend) callIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		ids = append(ids, c.ID)
	}
	return ids
}

// isHarnessRun reports whether the request executes a synthesized test
// rather than the bare project.
func isHarnessRun(req backend.Request) bool {
	return strings.HasPrefix(req.EntryPoint, "__dstest_")
}

func newOrchestrator(t *testing.T, fb *fakeBackend, opts ...Option) *Orchestrator {
	t.Helper()
	mgr, err := queue.NewSessionManager(queue.Config{MaxConcurrent: 1}, func() (map[backend.Kind]backend.Backend, error) {
		return map[backend.Kind]backend.Backend{fb.kind: fb}, nil
	})
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	o, err := New(Config{}, mgr, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func addFiles() []project.File {
	return []project.File{{Path: "main.py", Content: "def add(a, b):\n    return a + b\n"}}
}

func baseParams(tests ...harness.TestDefinition) Params {
	return Params{
		SubmissionID: "sub-1",
		SessionID:    "sess-1",
		UserID:       "user-1",
		LessonID:     "lesson-1",
		Kind:         backend.KindInterp,
		Files:        addFiles(),
		EntryPoint:   "main.py",
		Tests:        tests,
	}
}

// Scenario: one project, one passing test.
func TestRunAllPassing(t *testing.T) {
	fb := &fakeBackend{kind: backend.KindInterp}
	fb.behavior = func(ctx context.Context, req backend.Request) (backend.Result, error) {
		if isHarnessRun(req) {
			return backend.Result{Stdout: passLine + "\n", Duration: 5 * time.Millisecond}, nil
		}
		return backend.Result{Stdout: "", Duration: 3 * time.Millisecond}, nil
	}
	o := newOrchestrator(t, fb)

	rec, err := o.Run(context.Background(), baseParams(
		harness.TestDefinition{ID: "t1", Name: "addition", Code: "assert add(2, 3) == 5"},
	))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Status != StatusComplete {
		t.Fatalf("status = %s, want %s", rec.Status, StatusComplete)
	}
	want := Summary{Total: 1, Passed: 1, Failed: 0, Score: 100}
	if rec.Summary != want {
		t.Fatalf("summary = %+v, want %+v", rec.Summary, want)
	}
	if fb.callCount() != 2 {
		t.Fatalf("backend calls = %d, want 2 (project + one test)", fb.callCount())
	}
	if rec.ExecutionTime != 3*time.Millisecond {
		t.Fatalf("execution time = %v", rec.ExecutionTime)
	}
}

// Scenario: the project itself fails to run; the declared tests are
// never invoked and a single errored outcome stands in for the run.
func TestRunBrokenProjectShortCircuits(t *testing.T) {
	fb := &fakeBackend{kind: backend.KindInterp}
	fb.behavior = func(ctx context.Context, req backend.Request) (backend.Result, error) {
		return backend.Result{Stderr: "SyntaxError: invalid syntax", ErrorSummary: "SyntaxError: invalid syntax"}, nil
	}
	o := newOrchestrator(t, fb)

	rec, err := o.Run(context.Background(), baseParams(
		harness.TestDefinition{ID: "t1", Code: "assert add(1, 1) == 2"},
		harness.TestDefinition{ID: "t2", Code: "assert add(2, 2) == 4"},
	))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Status != StatusExecutionError {
		t.Fatalf("status = %s, want %s", rec.Status, StatusExecutionError)
	}
	want := Summary{Total: 1, Passed: 0, Failed: 1, Score: 0}
	if rec.Summary != want {
		t.Fatalf("summary = %+v, want %+v", rec.Summary, want)
	}
	if len(rec.Outcomes) != 1 || rec.Outcomes[0].Status != harness.StatusErrored {
		t.Fatalf("outcomes = %+v", rec.Outcomes)
	}
	if !strings.Contains(rec.Outcomes[0].Message, "SyntaxError") {
		t.Fatalf("outcome message = %q", rec.Outcomes[0].Message)
	}
	if fb.callCount() != 1 {
		t.Fatalf("backend calls = %d, want 1 (tests must not run)", fb.callCount())
	}
}

// Scenario: one test passes, one fails its assertion.
func TestRunPartial(t *testing.T) {
	fb := &fakeBackend{kind: backend.KindInterp}
	fb.behavior = func(ctx context.Context, req backend.Request) (backend.Result, error) {
		switch {
		case req.EntryPoint == "__dstest_t2.py":
			return backend.Result{Stdout: failLine("expected 5, got 6") + "\n"}, nil
		case isHarnessRun(req):
			return backend.Result{Stdout: passLine + "\n"}, nil
		}
		return backend.Result{}, nil
	}
	o := newOrchestrator(t, fb)

	rec, err := o.Run(context.Background(), baseParams(
		harness.TestDefinition{ID: "t1", Name: "ok", Code: "assert add(1, 1) == 2"},
		harness.TestDefinition{ID: "t2", Name: "bad", Code: "assert add(2, 3) == 6"},
	))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Status != StatusPartial {
		t.Fatalf("status = %s, want %s", rec.Status, StatusPartial)
	}
	want := Summary{Total: 2, Passed: 1, Failed: 1, Score: 50}
	if rec.Summary != want {
		t.Fatalf("summary = %+v, want %+v", rec.Summary, want)
	}
	if rec.Outcomes[1].Message != "expected 5, got 6" {
		t.Fatalf("fail message = %q", rec.Outcomes[1].Message)
	}
}

// Scenario: a test hangs until its per-execution ceiling; the outcome
// is timed out, later tests still run, and the session keeps working.
func TestRunTestTimeoutReleasesSession(t *testing.T) {
	fb := &fakeBackend{kind: backend.KindInterp}
	fb.behavior = func(ctx context.Context, req backend.Request) (backend.Result, error) {
		if req.EntryPoint == "__dstest_hang.py" {
			// Honors its own deadline the way a real backend does.
			select {
			case <-ctx.Done():
			case <-time.After(req.Timeout):
			}
			return backend.Result{}, appErr.TimeoutError(req.ID)
		}
		if isHarnessRun(req) {
			return backend.Result{Stdout: passLine + "\n"}, nil
		}
		return backend.Result{}, nil
	}
	o := newOrchestrator(t, fb)

	p := baseParams(
		harness.TestDefinition{ID: "hang", Name: "loops forever", Code: "while True: pass", Timeout: 30 * time.Millisecond},
		harness.TestDefinition{ID: "after", Name: "still runs", Code: "assert add(1, 1) == 2"},
	)
	rec, err := o.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Outcomes[0].Status != harness.StatusTimedOut {
		t.Fatalf("hung test outcome = %+v", rec.Outcomes[0])
	}
	if rec.Outcomes[1].Status != harness.StatusPassed {
		t.Fatalf("follow-up test outcome = %+v", rec.Outcomes[1])
	}
	if rec.Status != StatusPartial {
		t.Fatalf("status = %s, want %s", rec.Status, StatusPartial)
	}

	// A fresh submission on the same session must succeed immediately.
	p2 := baseParams(harness.TestDefinition{ID: "t1", Code: "assert add(1, 1) == 2"})
	p2.SubmissionID = "sub-2"
	rec2, err := o.Run(context.Background(), p2)
	if err != nil {
		t.Fatalf("follow-up Run: %v", err)
	}
	if rec2.Status != StatusComplete {
		t.Fatalf("follow-up status = %s", rec2.Status)
	}
}

// The aggregate ceiling cancels the running test and marks it and all
// remaining tests timed out, distinctly from errored.
func TestRunAggregateCeiling(t *testing.T) {
	fb := &fakeBackend{kind: backend.KindInterp}
	fb.behavior = func(ctx context.Context, req backend.Request) (backend.Result, error) {
		if req.EntryPoint == "__dstest_slow.py" {
			<-ctx.Done()
			return backend.Result{}, appErr.New(appErr.ExecutionCanceled)
		}
		if isHarnessRun(req) {
			return backend.Result{Stdout: passLine + "\n"}, nil
		}
		return backend.Result{}, nil
	}
	o := newOrchestrator(t, fb)

	p := baseParams(
		harness.TestDefinition{ID: "fast", Code: "assert True"},
		harness.TestDefinition{ID: "slow", Code: "while True: pass", Timeout: time.Minute},
		harness.TestDefinition{ID: "never", Code: "assert True"},
	)
	p.AggregateTimeout = 50 * time.Millisecond
	rec, err := o.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Status != StatusTimedOut {
		t.Fatalf("status = %s, want %s", rec.Status, StatusTimedOut)
	}
	if len(rec.Outcomes) != 3 {
		t.Fatalf("outcomes = %+v", rec.Outcomes)
	}
	if rec.Outcomes[0].Status != harness.StatusPassed {
		t.Fatalf("completed outcome not retained: %+v", rec.Outcomes[0])
	}
	for _, o := range rec.Outcomes[1:] {
		if o.Status != harness.StatusTimedOut {
			t.Fatalf("outcome %s = %s, want %s", o.ID, o.Status, harness.StatusTimedOut)
		}
		if o.Message != aggregateTimeoutMessage {
			t.Fatalf("outcome %s message = %q", o.ID, o.Message)
		}
	}
}

// The aggregate ceiling can expire before any test runs, during the
// top-level project execution. Every declared test must still surface
// as a timed out outcome.
func TestRunAggregateCeilingDuringProject(t *testing.T) {
	fb := &fakeBackend{kind: backend.KindInterp}
	fb.behavior = func(ctx context.Context, req backend.Request) (backend.Result, error) {
		<-ctx.Done()
		return backend.Result{}, appErr.New(appErr.ExecutionCanceled)
	}
	o := newOrchestrator(t, fb)

	p := baseParams(
		harness.TestDefinition{ID: "t1", Code: "assert True"},
		harness.TestDefinition{ID: "t2", Code: "assert True"},
	)
	p.Timeout = time.Minute
	p.AggregateTimeout = 50 * time.Millisecond
	rec, err := o.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Status != StatusTimedOut {
		t.Fatalf("status = %s, want %s", rec.Status, StatusTimedOut)
	}
	if len(rec.Outcomes) != 2 {
		t.Fatalf("outcomes = %+v, want both declared tests marked", rec.Outcomes)
	}
	for _, out := range rec.Outcomes {
		if out.Status != harness.StatusTimedOut {
			t.Fatalf("outcome %s = %s, want %s", out.ID, out.Status, harness.StatusTimedOut)
		}
		if out.Message != aggregateTimeoutMessage {
			t.Fatalf("outcome %s message = %q", out.ID, out.Message)
		}
	}
	want := Summary{Total: 2, Passed: 0, Failed: 2, Score: 0}
	if rec.Summary != want {
		t.Fatalf("summary = %+v, want %+v", rec.Summary, want)
	}
	if fb.callCount() != 1 {
		t.Fatalf("backend calls = %d, want 1 (tests never dispatched)", fb.callCount())
	}
}

// Cancellation aborts the running test at the backend level, keeps
// completed outcomes, and marks the submission canceled.
func TestRunCancel(t *testing.T) {
	started := make(chan struct{})
	fb := &fakeBackend{kind: backend.KindInterp}
	fb.behavior = func(ctx context.Context, req backend.Request) (backend.Result, error) {
		if req.EntryPoint == "__dstest_block.py" {
			close(started)
			<-ctx.Done()
			return backend.Result{}, appErr.New(appErr.ExecutionCanceled)
		}
		if isHarnessRun(req) {
			return backend.Result{Stdout: passLine + "\n"}, nil
		}
		return backend.Result{}, nil
	}
	o := newOrchestrator(t, fb)

	p := baseParams(
		harness.TestDefinition{ID: "done", Code: "assert True"},
		harness.TestDefinition{ID: "block", Code: "while True: pass", Timeout: time.Minute},
		harness.TestDefinition{ID: "queued", Code: "assert True"},
	)

	type runResult struct {
		rec *Record
		err error
	}
	out := make(chan runResult, 1)
	go func() {
		rec, err := o.Run(context.Background(), p)
		out <- runResult{rec, err}
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("blocking test never started")
	}
	if err := o.Cancel("sub-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	var got runResult
	select {
	case got = <-out:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if got.err != nil {
		t.Fatalf("Run: %v", got.err)
	}
	if got.rec.Status != StatusCanceled {
		t.Fatalf("status = %s, want %s", got.rec.Status, StatusCanceled)
	}
	if len(got.rec.Outcomes) != 1 || got.rec.Outcomes[0].ID != "done" {
		t.Fatalf("retained outcomes = %+v", got.rec.Outcomes)
	}
	// The not-yet-started test must never reach a backend.
	for _, id := range fb.callIDs() {
		if strings.HasSuffix(id, ":queued") {
			t.Fatal("queued test was dispatched despite cancellation")
		}
	}

	if err := o.Cancel("sub-1"); appErr.GetCode(err) != appErr.SubmissionNotFound {
		t.Fatalf("Cancel after completion = %v", err)
	}
}

func TestRunOutcomeOrderMatchesDeclaration(t *testing.T) {
	fb := &fakeBackend{kind: backend.KindInterp}
	fb.behavior = func(ctx context.Context, req backend.Request) (backend.Result, error) {
		if isHarnessRun(req) {
			return backend.Result{Stdout: passLine + "\n"}, nil
		}
		return backend.Result{}, nil
	}
	o := newOrchestrator(t, fb)

	tests := []harness.TestDefinition{
		{ID: "c", Code: "assert True"},
		{ID: "a", Code: "assert True"},
		{ID: "b", Code: "assert True"},
	}
	rec, err := o.Run(context.Background(), baseParams(tests...))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, test := range tests {
		if rec.Outcomes[i].ID != test.ID {
			t.Fatalf("outcome[%d] = %s, want %s", i, rec.Outcomes[i].ID, test.ID)
		}
	}
}

func TestRunIdempotentStatuses(t *testing.T) {
	fb := &fakeBackend{kind: backend.KindInterp}
	fb.behavior = func(ctx context.Context, req backend.Request) (backend.Result, error) {
		if req.EntryPoint == "__dstest_bad.py" {
			return backend.Result{Stdout: failLine("nope") + "\n"}, nil
		}
		if isHarnessRun(req) {
			return backend.Result{Stdout: passLine + "\n"}, nil
		}
		return backend.Result{}, nil
	}
	o := newOrchestrator(t, fb)

	run := func(id string) *Record {
		p := baseParams(
			harness.TestDefinition{ID: "ok", Code: "assert True"},
			harness.TestDefinition{ID: "bad", Code: "assert False"},
		)
		p.SubmissionID = id
		rec, err := o.Run(context.Background(), p)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return rec
	}
	first, second := run("sub-a"), run("sub-b")
	if first.Status != second.Status || first.Summary != second.Summary {
		t.Fatalf("runs diverged: %+v vs %+v", first.Summary, second.Summary)
	}
	for i := range first.Outcomes {
		if first.Outcomes[i].Status != second.Outcomes[i].Status {
			t.Fatalf("outcome %d diverged: %s vs %s", i, first.Outcomes[i].Status, second.Outcomes[i].Status)
		}
	}
}

func TestRunContractViolations(t *testing.T) {
	fb := &fakeBackend{kind: backend.KindInterp}
	fb.behavior = func(ctx context.Context, req backend.Request) (backend.Result, error) {
		return backend.Result{}, nil
	}
	o := newOrchestrator(t, fb)

	p := baseParams()
	if _, err := o.Run(context.Background(), p); appErr.GetCode(err) != appErr.EmptyTestList {
		t.Fatalf("empty test list: %v", err)
	}

	p = baseParams(harness.TestDefinition{ID: "t1", Code: "assert True"})
	p.Files = []project.File{{Path: "../escape.py", Content: "x = 1"}}
	p.EntryPoint = "../escape.py"
	if _, err := o.Run(context.Background(), p); err == nil {
		t.Fatal("expected validation error for traversal path")
	}
	if fb.callCount() != 0 {
		t.Fatalf("backend invoked %d times before validation", fb.callCount())
	}

	p = baseParams(harness.TestDefinition{ID: "t1", Code: "assert True"})
	p.SessionID = ""
	if _, err := o.Run(context.Background(), p); err == nil {
		t.Fatal("expected error for missing session id")
	}
}

type capturingPorts struct {
	mu         sync.Mutex
	saves      []*Record
	saveErrs   []error
	lessons    []string
	updates    []StatusUpdate
	archived   []*Record
	archiveErr error
	published  []*Record
}

func (c *capturingPorts) Save(ctx context.Context, rec *Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves = append(c.saves, rec)
	if len(c.saveErrs) > 0 {
		err := c.saveErrs[0]
		c.saveErrs = c.saveErrs[1:]
		return err
	}
	return nil
}

func (c *capturingPorts) Find(ctx context.Context, filter Filter) ([]*Record, error) {
	return nil, nil
}

func (c *capturingPorts) MarkLessonComplete(ctx context.Context, userID, lessonID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lessons = append(c.lessons, userID+"/"+lessonID)
	return nil
}

func (c *capturingPorts) Report(ctx context.Context, u StatusUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, u)
	return nil
}

func (c *capturingPorts) Archive(ctx context.Context, rec *Record) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.archiveErr != nil {
		return "", c.archiveErr
	}
	c.archived = append(c.archived, rec)
	return "submissions/" + rec.ID + ".tar.zst", nil
}

func (c *capturingPorts) PublishCompleted(ctx context.Context, rec *Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, rec)
	return nil
}

func TestRunPortHandoff(t *testing.T) {
	fb := &fakeBackend{kind: backend.KindInterp}
	fb.behavior = func(ctx context.Context, req backend.Request) (backend.Result, error) {
		if isHarnessRun(req) {
			return backend.Result{Stdout: passLine + "\n"}, nil
		}
		return backend.Result{}, nil
	}
	ports := &capturingPorts{}
	o := newOrchestrator(t, fb,
		WithRecorder(ports), WithProgressNotifier(ports), WithStatusReporter(ports),
		WithArchiver(ports), WithCompletionPublisher(ports))

	rec, err := o.Run(context.Background(), baseParams(
		harness.TestDefinition{ID: "t1", Code: "assert True"},
	))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ports.saves) != 1 {
		t.Fatalf("saves = %d, want 1", len(ports.saves))
	}
	if len(ports.lessons) != 1 || ports.lessons[0] != "user-1/lesson-1" {
		t.Fatalf("lessons = %v", ports.lessons)
	}
	if len(rec.Warnings) != 0 {
		t.Fatalf("warnings = %v", rec.Warnings)
	}
	if len(ports.archived) != 1 || rec.ArchiveKey != "submissions/"+rec.ID+".tar.zst" {
		t.Fatalf("archive key = %q, archived = %d", rec.ArchiveKey, len(ports.archived))
	}
	if len(ports.published) != 1 || ports.published[0].ID != rec.ID {
		t.Fatalf("published = %d", len(ports.published))
	}
	// Archive runs before save, so the persisted record carries the key.
	if ports.saves[0].ArchiveKey == "" {
		t.Fatal("saved record missing archive key")
	}
	last := ports.updates[len(ports.updates)-1]
	if last.Phase != PhaseFinished || last.Status != StatusComplete {
		t.Fatalf("final update = %+v", last)
	}
}

func TestRunArchiveFailureIsNonFatal(t *testing.T) {
	fb := &fakeBackend{kind: backend.KindInterp}
	fb.behavior = func(ctx context.Context, req backend.Request) (backend.Result, error) {
		if isHarnessRun(req) {
			return backend.Result{Stdout: passLine + "\n"}, nil
		}
		return backend.Result{}, nil
	}
	ports := &capturingPorts{archiveErr: context.DeadlineExceeded}
	o := newOrchestrator(t, fb, WithRecorder(ports), WithArchiver(ports))

	rec, err := o.Run(context.Background(), baseParams(
		harness.TestDefinition{ID: "t1", Code: "assert True"},
	))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Status != StatusComplete {
		t.Fatalf("status = %s", rec.Status)
	}
	if rec.ArchiveKey != "" {
		t.Fatalf("archive key = %q, want empty", rec.ArchiveKey)
	}
	if len(rec.Warnings) != 1 {
		t.Fatalf("warnings = %v", rec.Warnings)
	}
}

func TestRunPersistenceFailureIsNonFatal(t *testing.T) {
	fb := &fakeBackend{kind: backend.KindInterp}
	fb.behavior = func(ctx context.Context, req backend.Request) (backend.Result, error) {
		if isHarnessRun(req) {
			return backend.Result{Stdout: passLine + "\n"}, nil
		}
		return backend.Result{}, nil
	}

	// First save fails, the single inline retry succeeds.
	ports := &capturingPorts{saveErrs: []error{appErr.New(appErr.PersistenceFailed)}}
	o := newOrchestrator(t, fb, WithRecorder(ports))
	rec, err := o.Run(context.Background(), baseParams(harness.TestDefinition{ID: "t1", Code: "assert True"}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ports.saves) != 2 {
		t.Fatalf("saves = %d, want 2 (original + retry)", len(ports.saves))
	}
	if len(rec.Warnings) != 0 {
		t.Fatalf("warnings = %v", rec.Warnings)
	}

	// Both attempts fail: the result stands, annotated with a warning.
	ports = &capturingPorts{saveErrs: []error{appErr.New(appErr.PersistenceFailed), appErr.New(appErr.PersistenceFailed)}}
	o = newOrchestrator(t, fb, WithRecorder(ports))
	rec, err = o.Run(context.Background(), baseParams(harness.TestDefinition{ID: "t1", Code: "assert True"}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Status != StatusComplete {
		t.Fatalf("status = %s", rec.Status)
	}
	if len(rec.Warnings) != 1 {
		t.Fatalf("warnings = %v", rec.Warnings)
	}
}

func TestRunProgressOnlyOnCompleteSuccess(t *testing.T) {
	fb := &fakeBackend{kind: backend.KindInterp}
	fb.behavior = func(ctx context.Context, req backend.Request) (backend.Result, error) {
		if isHarnessRun(req) {
			return backend.Result{Stdout: failLine("wrong") + "\n"}, nil
		}
		return backend.Result{}, nil
	}
	ports := &capturingPorts{}
	o := newOrchestrator(t, fb, WithProgressNotifier(ports))

	rec, err := o.Run(context.Background(), baseParams(harness.TestDefinition{ID: "t1", Code: "assert False"}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Status != StatusPartial {
		t.Fatalf("status = %s", rec.Status)
	}
	if len(ports.lessons) != 0 {
		t.Fatalf("progress notified for non-complete submission: %v", ports.lessons)
	}
}
