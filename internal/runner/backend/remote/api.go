package remote

// Wire types for the ephemeral sandbox service.

type createSandboxRequest struct {
	TemplateID string `json:"template_id,omitempty"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

type createSandboxResponse struct {
	SandboxID string `json:"sandbox_id"`
}

type sandboxFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type uploadFilesRequest struct {
	Files []sandboxFile `json:"files"`
}

type runRequest struct {
	EntryPoint string `json:"entry_point"`
	TimeoutMs  int64  `json:"timeout_ms,omitempty"`
}

type runResponse struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int64  `json:"duration_ms"`
	TimedOut   bool   `json:"timed_out"`
	Error      string `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
}
