// Package remote delegates execution to an external ephemeral sandbox
// service. Every request gets a fresh sandbox that is terminated on every
// exit path; no state is shared between requests, so instances of this
// backend may run concurrently.
package remote

import (
	"context"
	"sync"
	"time"

	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/backend"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/project"
	appErr "github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/errors"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultSandboxTTL    = 2 * time.Minute
	defaultKillTimeout   = 5 * time.Second
	provisionRetryDelay  = 200 * time.Millisecond
	maxProvisionAttempts = 2
)

// Executor is the remote sandboxed backend.
type Executor struct {
	client     *Client
	sandboxTTL time.Duration

	mu       sync.Mutex
	inflight map[string]string // request id -> sandbox id
}

// NewExecutor creates a remote executor on top of a sandbox service client.
func NewExecutor(client *Client, sandboxTTL time.Duration) (*Executor, error) {
	if client == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("sandbox client is required")
	}
	if sandboxTTL <= 0 {
		sandboxTTL = defaultSandboxTTL
	}
	return &Executor{
		client:     client,
		sandboxTTL: sandboxTTL,
		inflight:   make(map[string]string),
	}, nil
}

// Kind reports the backend kind.
func (e *Executor) Kind() backend.Kind {
	return backend.KindRemote
}

// Execute provisions a sandbox, uploads validated files, runs the entry
// point, and unconditionally releases the sandbox.
func (e *Executor) Execute(ctx context.Context, req backend.Request) (backend.Result, error) {
	if req.ID == "" {
		return backend.Result{}, appErr.ValidationError("request_id", "required")
	}
	if err := project.Validate(req.Files, req.EntryPoint); err != nil {
		return backend.Result{}, err
	}

	sandboxID, err := e.provision(ctx)
	if err != nil {
		return backend.Result{}, err
	}
	e.track(req.ID, sandboxID)
	defer e.untrack(req.ID)
	defer e.release(sandboxID)

	files := make([]sandboxFile, 0, len(req.Files))
	for _, f := range req.Files {
		files = append(files, sandboxFile{Path: f.Path, Content: f.Content})
	}
	if err := e.client.UploadFiles(ctx, sandboxID, files); err != nil {
		return backend.Result{}, err
	}

	runRes, err := e.client.Run(ctx, sandboxID, req.EntryPoint, req.Timeout)
	if err != nil {
		return backend.Result{}, err
	}

	res := backend.Result{
		Stdout:   runRes.Stdout,
		Stderr:   runRes.Stderr,
		Duration: time.Duration(runRes.DurationMs) * time.Millisecond,
		Meta: backend.Meta{
			Kind: backend.KindRemote,
			Sandbox: &backend.SandboxMeta{
				SandboxID: sandboxID,
				ExitCode:  runRes.ExitCode,
			},
		},
	}
	if runRes.TimedOut {
		return res, appErr.TimeoutError(req.ID)
	}
	if runRes.Error != "" {
		res.ErrorSummary = runRes.Error
	} else if runRes.ExitCode != 0 {
		res.ErrorSummary = runRes.Stderr
	}
	return res, nil
}

// Cancel tears down the sandbox serving the given request, which aborts
// the remote invocation.
func (e *Executor) Cancel(ctx context.Context, requestID string) error {
	e.mu.Lock()
	sandboxID, ok := e.inflight[requestID]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return e.client.Kill(ctx, sandboxID)
}

// provision creates a sandbox, retrying once on a transient service
// failure. "Service unavailable" here is distinct from user code failing
// inside the sandbox later.
func (e *Executor) provision(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxProvisionAttempts; attempt++ {
		sandboxID, err := e.client.CreateSandbox(ctx, e.sandboxTTL)
		if err == nil {
			return sandboxID, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", err
		}
		if attempt < maxProvisionAttempts {
			logger.Warn(ctx, "sandbox provisioning failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
			select {
			case <-time.After(provisionRetryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", lastErr
}

// release terminates the sandbox with a context independent of the
// request, so teardown happens even when the request context is dead.
func (e *Executor) release(sandboxID string) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultKillTimeout)
	defer cancel()
	if err := e.client.Kill(ctx, sandboxID); err != nil {
		logger.Warn(ctx, "sandbox release failed", zap.String("sandbox_id", sandboxID), zap.Error(err))
	}
}

func (e *Executor) track(requestID, sandboxID string) {
	e.mu.Lock()
	e.inflight[requestID] = sandboxID
	e.mu.Unlock()
}

func (e *Executor) untrack(requestID string) {
	e.mu.Lock()
	delete(e.inflight, requestID)
	e.mu.Unlock()
}
