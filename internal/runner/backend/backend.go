// Package backend defines the execution backend contract shared by the
// in-process interpreter and the remote sandbox implementations.
package backend

import (
	"context"
	"time"

	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/project"
)

// Kind identifies a backend implementation.
type Kind string

const (
	KindInterp Kind = "interp"
	KindRemote Kind = "remote"
)

// Mode selects between running one script and running a whole project.
type Mode string

const (
	ModeSingle  Mode = "single"
	ModeProject Mode = "project"
)

// Request contains everything needed to execute code once.
// It is transient: the queue owns it for its lifetime and drops it on
// any terminal state.
type Request struct {
	ID         string
	Mode       Mode
	Files      []project.File
	EntryPoint string
	Kind       Kind
	Timeout    time.Duration
}

// Result is the uniform outcome shape both backends produce.
type Result struct {
	Stdout       string
	Stderr       string
	ErrorSummary string
	Duration     time.Duration
	Meta         Meta
}

// Meta is a tagged variant keyed by backend kind. Exactly one payload
// matching Kind is set; common fields stay on Result.
type Meta struct {
	Kind    Kind         `json:"kind"`
	Interp  *InterpMeta  `json:"interp,omitempty"`
	Sandbox *SandboxMeta `json:"sandbox,omitempty"`
}

// InterpMeta describes an in-process interpreter execution.
type InterpMeta struct {
	LoadTime   time.Duration `json:"load_time"`
	ModuleSize int64         `json:"module_size"`
}

// SandboxMeta describes a remote sandbox execution.
type SandboxMeta struct {
	SandboxID string `json:"sandbox_id"`
	ExitCode  int    `json:"exit_code"`
}

// Backend executes code and returns captured output.
//
// Execute blocks until the run reaches a terminal state or ctx is done.
// Cancel aborts the execution identified by requestID; it is a no-op for
// unknown or already-finished ids.
type Backend interface {
	Execute(ctx context.Context, req Request) (Result, error)
	Cancel(ctx context.Context, requestID string) error
	Kind() Kind
}
