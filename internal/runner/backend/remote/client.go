package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	appErr "github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/errors"
)

const defaultHTTPTimeout = 30 * time.Second

// Client talks to the ephemeral sandbox service over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// ClientConfig holds sandbox service connection settings.
type ClientConfig struct {
	BaseURL string        `yaml:"baseURL"`
	APIKey  string        `yaml:"apiKey"`
	Timeout time.Duration `yaml:"timeout"`
}

// NewClient creates a sandbox service client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("sandbox base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// CreateSandbox provisions a fresh sandbox and returns its id.
func (c *Client) CreateSandbox(ctx context.Context, ttl time.Duration) (string, error) {
	req := createSandboxRequest{TTLSeconds: int(ttl / time.Second)}
	var resp createSandboxResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sandboxes", req, &resp); err != nil {
		return "", appErr.Wrapf(err, appErr.SandboxUnavailable, "provision sandbox failed")
	}
	if resp.SandboxID == "" {
		return "", appErr.New(appErr.SandboxUnavailable).WithMessage("sandbox service returned no id")
	}
	return resp.SandboxID, nil
}

// UploadFiles writes project files into the sandbox.
func (c *Client) UploadFiles(ctx context.Context, sandboxID string, files []sandboxFile) error {
	path := fmt.Sprintf("/v1/sandboxes/%s/files", sandboxID)
	if err := c.do(ctx, http.MethodPut, path, uploadFilesRequest{Files: files}, nil); err != nil {
		return appErr.Wrapf(err, appErr.SandboxUploadFailed, "upload files to sandbox %s failed", sandboxID)
	}
	return nil
}

// Run invokes the entry point inside the sandbox under a remote-enforced
// timeout and returns the captured output.
func (c *Client) Run(ctx context.Context, sandboxID, entryPoint string, timeout time.Duration) (runResponse, error) {
	path := fmt.Sprintf("/v1/sandboxes/%s/run", sandboxID)
	req := runRequest{EntryPoint: entryPoint, TimeoutMs: timeout.Milliseconds()}
	var resp runResponse
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return runResponse{}, appErr.Wrapf(err, appErr.SandboxInvokeFailed, "invoke sandbox %s failed", sandboxID)
	}
	return resp, nil
}

// Kill terminates the sandbox. Safe to call on already-released ids.
func (c *Client) Kill(ctx context.Context, sandboxID string) error {
	path := fmt.Sprintf("/v1/sandboxes/%s", sandboxID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return appErr.Wrapf(err, appErr.SandboxReleaseFailed, "release sandbox %s failed", sandboxID)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request failed: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return appErr.Wrapf(err, appErr.SandboxTransportError, "sandbox request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return appErr.Wrapf(err, appErr.SandboxTransportError, "read sandbox response failed")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("sandbox service: %s (status %d)", apiErr.Message, resp.StatusCode)
		}
		return fmt.Errorf("sandbox service returned status %d", resp.StatusCode)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode sandbox response failed: %w", err)
		}
	}
	return nil
}
