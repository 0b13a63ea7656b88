// Package queue provides admission control and lifecycle management in
// front of the execution backends: concurrency limits, FIFO overflow,
// hard wall-clock timeouts with guaranteed backend teardown, and
// explicit cancellation by request id.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/backend"
	appErr "github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/errors"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/utils/logger"

	"go.uber.org/zap"
)

// State describes where a request is in its lifecycle.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateTimedOut  State = "timed_out"
	StateCanceled  State = "canceled"
	StateFailed    State = "failed"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateTimedOut, StateCanceled, StateFailed:
		return true
	}
	return false
}

const (
	defaultMaxConcurrent       = 1
	defaultGlobalMaxConcurrent = 16
	defaultExecTimeout         = 10 * time.Second
	defaultTimeoutGrace        = 2 * time.Second
	defaultBackendSettled      = 10 * time.Second
	defaultSessionIdleTTL      = 30 * time.Minute

	evictionSweepInterval = time.Minute
)

// Config holds queue settings.
type Config struct {
	// MaxConcurrent bounds in-flight executions per session; extra
	// requests wait FIFO.
	MaxConcurrent int `yaml:"maxConcurrent"`
	// GlobalMaxConcurrent bounds in-flight executions across every
	// session of the service. Negative disables the bound.
	GlobalMaxConcurrent int `yaml:"globalMaxConcurrent"`
	// DefaultTimeout applies when a request carries none.
	DefaultTimeout time.Duration `yaml:"defaultTimeout"`
	// TimeoutGrace is added on top of the request timeout to form the
	// hard wall-clock ceiling the queue enforces itself.
	TimeoutGrace time.Duration `yaml:"timeoutGrace"`
	// SessionIdleTTL is how long a session may sit idle before its
	// queue and backends are reclaimed.
	SessionIdleTTL time.Duration `yaml:"sessionIdleTTL"`
}

func (c *Config) setDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = defaultMaxConcurrent
	}
	if c.GlobalMaxConcurrent == 0 {
		c.GlobalMaxConcurrent = defaultGlobalMaxConcurrent
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = defaultExecTimeout
	}
	if c.TimeoutGrace <= 0 {
		c.TimeoutGrace = defaultTimeoutGrace
	}
	if c.SessionIdleTTL <= 0 {
		c.SessionIdleTTL = defaultSessionIdleTTL
	}
}

type waiter struct {
	ready chan struct{}
}

type track struct {
	state  State
	cancel context.CancelFunc
}

// Queue dispatches requests to backends under admission control. One
// queue serves one session; backends are injected, never global.
type Queue struct {
	cfg      Config
	backends map[backend.Kind]backend.Backend
	// global is the service-wide admission semaphore shared by every
	// session's queue; nil means the session limit is the only bound.
	global chan struct{}

	mu       sync.Mutex
	free     int
	waiters  []*waiter
	requests map[string]*track
	idleFrom time.Time
}

// New creates a queue over the given backends.
func New(cfg Config, backends map[backend.Kind]backend.Backend) (*Queue, error) {
	if len(backends) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("at least one backend is required")
	}
	cfg.setDefaults()
	return &Queue{
		cfg:      cfg,
		backends: backends,
		free:     cfg.MaxConcurrent,
		requests: make(map[string]*track),
		idleFrom: time.Now(),
	}, nil
}

type execOutcome struct {
	res backend.Result
	err error
}

// Execute admits the request, runs it on its backend, and guarantees
// the backend has settled (returned or been torn down) before the slot
// is handed to the next queued request.
func (q *Queue) Execute(ctx context.Context, req backend.Request) (backend.Result, error) {
	if req.ID == "" {
		return backend.Result{}, appErr.ValidationError("request_id", "required")
	}
	be, ok := q.backends[req.Kind]
	if !ok {
		return backend.Result{}, appErr.New(appErr.BackendNotSupported).WithDetail("kind", string(req.Kind))
	}
	if req.Timeout <= 0 {
		req.Timeout = q.cfg.DefaultTimeout
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	q.mu.Lock()
	if _, dup := q.requests[req.ID]; dup {
		q.mu.Unlock()
		return backend.Result{}, appErr.New(appErr.RequestAlreadyQueued).WithDetail("request_id", req.ID)
	}
	tr := &track{state: StateQueued, cancel: cancel}
	q.requests[req.ID] = tr
	q.mu.Unlock()

	// The request is transient: drop it on any terminal state.
	defer func() {
		q.mu.Lock()
		delete(q.requests, req.ID)
		q.idleFrom = time.Now()
		q.mu.Unlock()
	}()

	if err := q.acquire(runCtx); err != nil {
		q.setState(req.ID, StateCanceled)
		return backend.Result{}, appErr.Wrap(err, appErr.ExecutionCanceled).WithDetail("request_id", req.ID)
	}
	defer q.release()

	if err := q.acquireGlobal(runCtx); err != nil {
		q.setState(req.ID, StateCanceled)
		return backend.Result{}, appErr.Wrap(err, appErr.ExecutionCanceled).WithDetail("request_id", req.ID)
	}
	defer q.releaseGlobal()

	q.setState(req.ID, StateRunning)

	done := make(chan execOutcome, 1)
	go func() {
		res, err := be.Execute(runCtx, req)
		done <- execOutcome{res: res, err: err}
	}()

	hardTimer := time.NewTimer(req.Timeout + q.cfg.TimeoutGrace)
	defer hardTimer.Stop()

	select {
	case out := <-done:
		state := classify(out.err)
		q.setState(req.ID, state)
		return out.res, out.err

	case <-hardTimer.C:
		// The backend missed its own deadline. Actively tear it down and
		// wait for it to settle; abandoning a running resource would
		// leak it into the next dispatch.
		logger.Warn(runCtx, "hard timeout reached, cancelling backend",
			zap.String("request_id", req.ID), zap.String("kind", string(req.Kind)))
		q.teardown(be, req.ID, cancel)
		out := q.awaitSettled(runCtx, req.ID, done)
		q.setState(req.ID, StateTimedOut)
		return out.res, appErr.TimeoutError(req.ID)

	case <-runCtx.Done():
		// Explicit cancellation or a dead caller context. Propagate into
		// the backend and wait for teardown before releasing the slot.
		q.teardown(be, req.ID, cancel)
		out := q.awaitSettled(runCtx, req.ID, done)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			q.setState(req.ID, StateTimedOut)
			return out.res, appErr.TimeoutError(req.ID)
		}
		q.setState(req.ID, StateCanceled)
		return out.res, appErr.New(appErr.ExecutionCanceled).WithDetail("request_id", req.ID)
	}
}

// Cancel aborts a queued or running request by id.
func (q *Queue) Cancel(ctx context.Context, requestID string) error {
	q.mu.Lock()
	tr, ok := q.requests[requestID]
	q.mu.Unlock()
	if !ok {
		return appErr.NotFoundError("request")
	}
	tr.cancel()
	return nil
}

func (q *Queue) setState(requestID string, state State) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if tr, ok := q.requests[requestID]; ok {
		tr.state = state
	}
}

// IdleSince reports how long the queue has had no queued or running
// requests. ok is false while any request is in flight.
func (q *Queue) IdleSince() (time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.requests) != 0 {
		return 0, false
	}
	return time.Since(q.idleFrom), true
}

// RequestState returns the current lifecycle state of a request.
func (q *Queue) RequestState(requestID string) (State, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	tr, ok := q.requests[requestID]
	if !ok {
		return "", false
	}
	return tr.state, true
}

func (q *Queue) teardown(be backend.Backend, requestID string, cancel context.CancelFunc) {
	tctx, tcancel := context.WithTimeout(context.Background(), defaultBackendSettled)
	defer tcancel()
	if err := be.Cancel(tctx, requestID); err != nil {
		logger.Warn(tctx, "backend cancel failed", zap.String("request_id", requestID), zap.Error(err))
	}
	cancel()
}

func (q *Queue) awaitSettled(ctx context.Context, requestID string, done <-chan execOutcome) execOutcome {
	select {
	case out := <-done:
		return out
	case <-time.After(defaultBackendSettled):
		// The backend ignored cancellation. Nothing more we can do here
		// beyond flagging it; the slot is released regardless so the
		// session is not wedged forever.
		logger.Error(ctx, "backend did not settle after cancellation", zap.String("request_id", requestID))
		return execOutcome{err: appErr.New(appErr.InternalServerError).WithMessage("backend did not settle")}
	}
}

// acquire takes an admission slot, waiting FIFO behind earlier requests.
func (q *Queue) acquire(ctx context.Context) error {
	q.mu.Lock()
	if q.free > 0 && len(q.waiters) == 0 {
		q.free--
		q.mu.Unlock()
		return nil
	}
	w := &waiter{ready: make(chan struct{})}
	q.waiters = append(q.waiters, w)
	q.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		select {
		case <-w.ready:
			// Slot was granted while we were cancelling; give it back.
			q.mu.Unlock()
			q.release()
			return ctx.Err()
		default:
		}
		for i, queued := range q.waiters {
			if queued == w {
				q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
				break
			}
		}
		q.mu.Unlock()
		return ctx.Err()
	}
}

// acquireGlobal takes a slot from the service-wide ceiling. The session
// slot is already held, so only same-session requests queue behind it.
func (q *Queue) acquireGlobal(ctx context.Context) error {
	if q.global == nil {
		return nil
	}
	select {
	case q.global <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) releaseGlobal() {
	if q.global == nil {
		return
	}
	<-q.global
}

// release hands the slot to the oldest waiter, or frees it.
func (q *Queue) release() {
	q.mu.Lock()
	if len(q.waiters) > 0 {
		w := q.waiters[0]
		q.waiters = q.waiters[1:]
		q.mu.Unlock()
		close(w.ready)
		return
	}
	q.free++
	q.mu.Unlock()
}

// classify maps a backend error to the terminal state of the request.
func classify(err error) State {
	if err == nil {
		return StateCompleted
	}
	switch appErr.GetCode(err) {
	case appErr.ExecutionTimeout:
		return StateTimedOut
	case appErr.ExecutionCanceled:
		return StateCanceled
	default:
		return StateFailed
	}
}
