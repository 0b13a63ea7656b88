package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/backend"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/project"
	pkgerrors "github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/errors"
)

// fakeSandboxService records the lifecycle calls an executor makes.
type fakeSandboxService struct {
	mu         sync.Mutex
	created    int
	uploaded   map[string][]sandboxFile
	killed     []string
	failCreate int // fail this many create calls before succeeding
	runResp    runResponse
	runStatus  int
}

func newFakeSandboxService() *fakeSandboxService {
	return &fakeSandboxService{
		uploaded: make(map[string][]sandboxFile),
		runResp:  runResponse{Stdout: "ok\n", ExitCode: 0, DurationMs: 12},
	}
}

func (f *fakeSandboxService) handler() http.Handler {
	// Method-and-wildcard ServeMux patterns (and r.PathValue) need Go 1.22;
	// route by hand so the fake runs on Go 1.21 toolchains too.
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sandboxes", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failCreate > 0 {
			f.failCreate--
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(apiError{Message: "no capacity"})
			return
		}
		f.created++
		_ = json.NewEncoder(w).Encode(createSandboxResponse{SandboxID: "sbx-1"})
	})
	mux.HandleFunc("/v1/sandboxes/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/v1/sandboxes/")
		switch {
		case r.Method == http.MethodPut && strings.HasSuffix(rest, "/files"):
			id := strings.TrimSuffix(rest, "/files")
			var req uploadFilesRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			f.mu.Lock()
			f.uploaded[id] = req.Files
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && strings.HasSuffix(rest, "/run"):
			f.mu.Lock()
			resp, status := f.runResp, f.runStatus
			f.mu.Unlock()
			if status != 0 {
				w.WriteHeader(status)
				return
			}
			_ = json.NewEncoder(w).Encode(resp)
		case r.Method == http.MethodDelete:
			f.mu.Lock()
			f.killed = append(f.killed, rest)
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	return mux
}

func newTestExecutor(t *testing.T, svc *fakeSandboxService) *Executor {
	t.Helper()
	server := httptest.NewServer(svc.handler())
	t.Cleanup(server.Close)
	client, err := NewClient(ClientConfig{BaseURL: server.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	exec, err := NewExecutor(client, time.Minute)
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	return exec
}

func testRequest() backend.Request {
	return backend.Request{
		ID:         "req-1",
		Mode:       backend.ModeProject,
		Files:      []project.File{{Path: "main.py", Content: "print('ok')"}},
		EntryPoint: "main.py",
		Kind:       backend.KindRemote,
		Timeout:    5 * time.Second,
	}
}

func TestExecuteHappyPathReleasesSandbox(t *testing.T) {
	svc := newFakeSandboxService()
	exec := newTestExecutor(t, svc)

	res, err := exec.Execute(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Stdout != "ok\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if res.Meta.Kind != backend.KindRemote || res.Meta.Sandbox == nil {
		t.Fatalf("expected sandbox meta, got %+v", res.Meta)
	}
	if res.Meta.Sandbox.SandboxID != "sbx-1" {
		t.Errorf("sandbox id = %q", res.Meta.Sandbox.SandboxID)
	}
	if res.Meta.Interp != nil {
		t.Error("interp meta must not be set on a remote result")
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.killed) != 1 || svc.killed[0] != "sbx-1" {
		t.Fatalf("sandbox was not released exactly once: %v", svc.killed)
	}
	if len(svc.uploaded["sbx-1"]) != 1 {
		t.Fatalf("files were not uploaded: %v", svc.uploaded)
	}
}

func TestExecuteReleasesSandboxOnRunFailure(t *testing.T) {
	svc := newFakeSandboxService()
	svc.runStatus = http.StatusInternalServerError
	exec := newTestExecutor(t, svc)

	_, err := exec.Execute(context.Background(), testRequest())
	if !pkgerrors.Is(err, pkgerrors.SandboxInvokeFailed) {
		t.Fatalf("expected SandboxInvokeFailed, got %v", err)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.killed) != 1 {
		t.Fatalf("sandbox must be released on failure too, killed=%v", svc.killed)
	}
}

func TestExecuteRetriesProvisioningOnce(t *testing.T) {
	svc := newFakeSandboxService()
	svc.failCreate = 1
	exec := newTestExecutor(t, svc)

	if _, err := exec.Execute(context.Background(), testRequest()); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestExecuteProvisioningExhaustedIsUnavailable(t *testing.T) {
	svc := newFakeSandboxService()
	svc.failCreate = 10
	exec := newTestExecutor(t, svc)

	_, err := exec.Execute(context.Background(), testRequest())
	if !pkgerrors.Is(err, pkgerrors.SandboxUnavailable) {
		t.Fatalf("expected SandboxUnavailable, got %v", err)
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.killed) != 0 {
		t.Fatalf("nothing to release when provisioning never succeeded, killed=%v", svc.killed)
	}
}

func TestExecuteRemoteTimeout(t *testing.T) {
	svc := newFakeSandboxService()
	svc.runResp = runResponse{Stderr: "killed", TimedOut: true, DurationMs: 5000}
	exec := newTestExecutor(t, svc)

	_, err := exec.Execute(context.Background(), testRequest())
	if !pkgerrors.Is(err, pkgerrors.ExecutionTimeout) {
		t.Fatalf("expected ExecutionTimeout, got %v", err)
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.killed) != 1 {
		t.Fatalf("timed-out sandbox must be released, killed=%v", svc.killed)
	}
}

func TestExecuteUserCodeFaultIsNotAnError(t *testing.T) {
	svc := newFakeSandboxService()
	svc.runResp = runResponse{
		Stderr:     "Traceback (most recent call last):\nNameError: name 'x' is not defined",
		ExitCode:   1,
		DurationMs: 20,
	}
	exec := newTestExecutor(t, svc)

	res, err := exec.Execute(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("user code fault must be a result, not an error: %v", err)
	}
	if res.ErrorSummary == "" || !strings.Contains(res.ErrorSummary, "NameError") {
		t.Errorf("expected error summary from stderr, got %q", res.ErrorSummary)
	}
}

func TestExecuteRejectsUnsafePathsBeforeProvisioning(t *testing.T) {
	svc := newFakeSandboxService()
	exec := newTestExecutor(t, svc)

	req := testRequest()
	req.Files = []project.File{{Path: "../escape.py", Content: ""}}
	req.EntryPoint = "../escape.py"

	_, err := exec.Execute(context.Background(), req)
	if !pkgerrors.Is(err, pkgerrors.UnsafeFilePath) {
		t.Fatalf("expected UnsafeFilePath, got %v", err)
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.created != 0 {
		t.Fatal("no sandbox may be provisioned for an invalid project")
	}
}
