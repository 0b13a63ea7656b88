// Package interp runs submissions inside an in-process WASM-compiled
// Python interpreter. One executor owns one interpreter instance; the
// instance is loaded lazily and reused across executions of a session.
package interp

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/backend"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/project"
	appErr "github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/errors"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/utils/logger"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	wasys "github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"
)

type state int

const (
	stateUninitialized state = iota
	stateInitializing
	stateReady
	stateClosed
)

const (
	defaultOutputMaxBytes = 256 << 10
	defaultLoadTimeout    = 60 * time.Second
)

// Config holds interpreter executor settings.
type Config struct {
	// ModulePath points at the WASI-compiled interpreter binary.
	ModulePath string `yaml:"modulePath"`
	// WorkRoot is where per-execution project directories are staged.
	WorkRoot string `yaml:"workRoot"`
	// OutputMaxBytes caps captured stdout/stderr per execution.
	OutputMaxBytes int64 `yaml:"outputMaxBytes"`
	// LoadTimeout bounds the one-time interpreter load.
	LoadTimeout time.Duration `yaml:"loadTimeout"`
}

// Executor is the in-process backend. Internal state (runtime, staged
// filesystem) is shared across runs, so exactly one execution holds the
// instance at a time regardless of external queue settings.
type Executor struct {
	cfg Config

	mu       sync.Mutex
	st       state
	initDone chan struct{}
	initErr  error

	runtime    wazero.Runtime
	compiled   wazero.CompiledModule
	loadTime   time.Duration
	moduleSize int64

	// execMu serializes executions on the shared instance.
	execMu sync.Mutex

	runMu   sync.Mutex
	running map[string]context.CancelFunc
}

// New creates an interpreter executor. The interpreter module is not
// loaded until the first Execute call.
func New(cfg Config) (*Executor, error) {
	if cfg.ModulePath == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("interpreter module path is required")
	}
	if cfg.WorkRoot == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("interpreter work root is required")
	}
	if cfg.OutputMaxBytes <= 0 {
		cfg.OutputMaxBytes = defaultOutputMaxBytes
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	return &Executor{
		cfg:     cfg,
		running: make(map[string]context.CancelFunc),
	}, nil
}

// Kind reports the backend kind.
func (e *Executor) Kind() backend.Kind {
	return backend.KindInterp
}

// Execute stages the project into a per-execution directory, runs the
// entry point in the WASM interpreter, and removes the staged files on
// every exit path.
func (e *Executor) Execute(ctx context.Context, req backend.Request) (backend.Result, error) {
	if err := validateRequest(req); err != nil {
		return backend.Result{}, err
	}
	if err := e.ensureReady(ctx); err != nil {
		return backend.Result{}, err
	}

	// Shared interpreter state must not interleave between runs.
	e.execMu.Lock()
	defer e.execMu.Unlock()

	execDir, err := os.MkdirTemp(e.cfg.WorkRoot, "exec-")
	if err != nil {
		return backend.Result{}, appErr.Wrapf(err, appErr.InternalServerError, "create execution dir failed")
	}
	defer func() {
		if rmErr := os.RemoveAll(execDir); rmErr != nil {
			logger.Warn(ctx, "remove execution dir failed", zap.String("dir", execDir), zap.Error(rmErr))
		}
	}()

	for _, f := range req.Files {
		dst := filepath.Join(execDir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return backend.Result{}, appErr.Wrapf(err, appErr.InternalServerError, "create project dir failed")
		}
		if err := os.WriteFile(dst, []byte(f.Content), 0644); err != nil {
			return backend.Result{}, appErr.Wrapf(err, appErr.InternalServerError, "stage project file failed")
		}
	}

	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if req.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	e.trackRunning(req.ID, cancel)
	defer e.untrackRunning(req.ID)

	stdout := newCappedBuffer(e.cfg.OutputMaxBytes)
	stderr := newCappedBuffer(e.cfg.OutputMaxBytes)

	modCfg := wazero.NewModuleConfig().
		WithName("").
		WithArgs("python", "/"+req.EntryPoint).
		WithStdout(stdout).
		WithStderr(stderr).
		WithFSConfig(wazero.NewFSConfig().WithDirMount(execDir, "/"))

	start := time.Now()
	mod, runErr := e.runtime.InstantiateModule(runCtx, e.compiled, modCfg)
	elapsed := time.Since(start)
	if mod != nil {
		_ = mod.Close(context.Background())
	}

	res := backend.Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: elapsed,
		Meta: backend.Meta{
			Kind: backend.KindInterp,
			Interp: &backend.InterpMeta{
				LoadTime:   e.loadTime,
				ModuleSize: e.moduleSize,
			},
		},
	}

	if runErr == nil {
		return res, nil
	}

	var exitErr *wasys.ExitError
	switch {
	case errors.As(runErr, &exitErr):
		if exitErr.ExitCode() == 0 {
			return res, nil
		}
		res.ErrorSummary = lastLine(res.Stderr)
		return res, nil
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return res, appErr.TimeoutError(req.ID)
	case errors.Is(runCtx.Err(), context.Canceled):
		return res, appErr.New(appErr.ExecutionCanceled).WithDetail("request_id", req.ID)
	default:
		return res, appErr.Wrapf(runErr, appErr.RuntimeFault, "interpreter execution failed")
	}
}

// Cancel aborts the execution with the given request id, if it is running.
func (e *Executor) Cancel(ctx context.Context, requestID string) error {
	e.runMu.Lock()
	cancel, ok := e.running[requestID]
	e.runMu.Unlock()
	if !ok {
		return nil
	}
	cancel()
	return nil
}

// Close releases the interpreter runtime.
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.st == stateClosed {
		return nil
	}
	e.st = stateClosed
	if e.runtime != nil {
		return e.runtime.Close(ctx)
	}
	return nil
}

// ensureReady loads the interpreter at most once. Callers arriving
// during an in-flight load wait on the same load instead of starting a
// second one; a failed load resets to Uninitialized so the next caller
// can retry.
func (e *Executor) ensureReady(ctx context.Context) error {
	for {
		e.mu.Lock()
		switch e.st {
		case stateReady:
			e.mu.Unlock()
			return nil
		case stateClosed:
			e.mu.Unlock()
			return appErr.New(appErr.BackendInitFailed).WithMessage("interpreter executor is closed")
		case stateInitializing:
			done := e.initDone
			e.mu.Unlock()
			select {
			case <-done:
				e.mu.Lock()
				err := e.initErr
				e.mu.Unlock()
				if err != nil {
					return err
				}
				// Re-check: the load we waited on may have failed and
				// been retried by another caller.
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		case stateUninitialized:
			e.st = stateInitializing
			e.initDone = make(chan struct{})
			e.initErr = nil
			done := e.initDone
			e.mu.Unlock()

			err := e.load()

			e.mu.Lock()
			if err != nil {
				e.st = stateUninitialized
				e.initErr = err
			} else if e.st != stateClosed {
				e.st = stateReady
			}
			e.mu.Unlock()
			close(done)
			return err
		}
	}
}

// load is detached from caller contexts so one canceled caller cannot
// abort an initialization other callers are waiting on.
func (e *Executor) load() error {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.LoadTimeout)
	defer cancel()

	moduleBytes, err := os.ReadFile(e.cfg.ModulePath)
	if err != nil {
		return appErr.Wrapf(err, appErr.InterpreterLoadFailed, "read interpreter module failed")
	}
	if err := os.MkdirAll(e.cfg.WorkRoot, 0755); err != nil {
		return appErr.Wrapf(err, appErr.InterpreterLoadFailed, "create work root failed")
	}

	start := time.Now()
	rtCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	rt := wazero.NewRuntimeWithConfig(ctx, rtCfg)
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)

	compiled, err := rt.CompileModule(ctx, moduleBytes)
	if err != nil {
		_ = rt.Close(ctx)
		return appErr.Wrapf(err, appErr.InterpreterLoadFailed, "compile interpreter module failed")
	}

	e.runtime = rt
	e.compiled = compiled
	e.loadTime = time.Since(start)
	e.moduleSize = int64(len(moduleBytes))
	logger.Info(context.Background(), "interpreter module loaded",
		zap.String("module", e.cfg.ModulePath),
		zap.Int64("size_bytes", e.moduleSize),
		zap.Duration("load_time", e.loadTime),
	)
	return nil
}

func (e *Executor) trackRunning(id string, cancel context.CancelFunc) {
	e.runMu.Lock()
	e.running[id] = cancel
	e.runMu.Unlock()
}

func (e *Executor) untrackRunning(id string) {
	e.runMu.Lock()
	delete(e.running, id)
	e.runMu.Unlock()
}

func validateRequest(req backend.Request) error {
	if req.ID == "" {
		return appErr.ValidationError("request_id", "required")
	}
	switch req.Mode {
	case backend.ModeSingle, backend.ModeProject:
	default:
		return appErr.ValidationError("mode", "unknown")
	}
	return project.Validate(req.Files, req.EntryPoint)
}

func lastLine(s string) string {
	trimmed := bytes.TrimRight([]byte(s), "\n")
	if len(trimmed) == 0 {
		return ""
	}
	idx := bytes.LastIndexByte(trimmed, '\n')
	return string(trimmed[idx+1:])
}
