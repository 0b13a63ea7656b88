// Package controller exposes the runner's HTTP surface: submitting a
// run, reading results and live status, and streaming progress.
package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/backend"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/harness"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/project"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/repository"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/submission"
	appErr "github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/errors"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/utils/logger"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/utils/response"
)

const (
	streamPollInterval = 500 * time.Millisecond
	streamWriteTimeout = 5 * time.Second
	streamMaxDuration  = 10 * time.Minute
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The browser client is served from another origin; auth is enforced
	// by the JWT middleware before the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RunnerController handles submission requests.
type RunnerController struct {
	orchestrator *submission.Orchestrator
	records      submission.Recorder
	status       *repository.StatusRepository
}

// NewRunnerController creates a new controller.
func NewRunnerController(orch *submission.Orchestrator, records submission.Recorder, status *repository.StatusRepository) *RunnerController {
	return &RunnerController{orchestrator: orch, records: records, status: status}
}

type fileDTO struct {
	Path    string `json:"path" binding:"required"`
	Content string `json:"content"`
}

type testDTO struct {
	ID        string `json:"id" binding:"required"`
	Name      string `json:"name"`
	Code      string `json:"code" binding:"required"`
	TimeoutMs int64  `json:"timeout_ms"`
	Hidden    bool   `json:"hidden"`
}

type submitRequest struct {
	SessionID          string    `json:"session_id"`
	LessonID           string    `json:"lesson_id"`
	BackendKind        string    `json:"backend_kind"`
	Files              []fileDTO `json:"files" binding:"required"`
	EntryPoint         string    `json:"entry_point" binding:"required"`
	Tests              []testDTO `json:"tests" binding:"required"`
	TimeoutMs          int64     `json:"timeout_ms"`
	AggregateTimeoutMs int64     `json:"aggregate_timeout_ms"`
}

// Submit runs a full submission and returns the aggregated result.
func (h *RunnerController) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithCode(c, appErr.InvalidParams, err.Error())
		return
	}

	userID := contextUserID(c)
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = userID
	}

	params := submission.Params{
		SessionID:        sessionID,
		UserID:           userID,
		LessonID:         req.LessonID,
		Kind:             backendKind(req.BackendKind),
		Files:            toFiles(req.Files),
		EntryPoint:       req.EntryPoint,
		Tests:            toTests(req.Tests),
		Timeout:          time.Duration(req.TimeoutMs) * time.Millisecond,
		AggregateTimeout: time.Duration(req.AggregateTimeoutMs) * time.Millisecond,
	}

	rec, err := h.orchestrator.Run(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rec.Response())
}

// Cancel aborts an in-flight submission.
func (h *RunnerController) Cancel(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.ErrorWithCode(c, appErr.InvalidParams, "submission id is required")
		return
	}
	if err := h.orchestrator.Cancel(submissionID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"submission_id": submissionID, "canceled": true})
}

// Get returns live status for a running submission, or the stored
// record once it finished.
func (h *RunnerController) Get(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.ErrorWithCode(c, appErr.InvalidParams, "submission id is required")
		return
	}
	ctx := c.Request.Context()

	if h.status != nil {
		update, found, err := h.status.Get(ctx, submissionID)
		if err == nil && found && update.Phase != submission.PhaseFinished {
			response.Success(c, update)
			return
		}
	}

	records, err := h.records.Find(ctx, submission.Filter{SubmissionID: submissionID})
	if err != nil {
		response.Error(c, err)
		return
	}
	if len(records) == 0 {
		response.Error(c, appErr.New(appErr.SubmissionNotFound).WithDetail("submission_id", submissionID))
		return
	}
	response.Success(c, records[0].Response())
}

// History lists the authenticated user's past submissions.
func (h *RunnerController) History(c *gin.Context) {
	userID := contextUserID(c)
	if userID == "" {
		response.ErrorWithCode(c, appErr.Unauthorized, "missing user identity")
		return
	}
	records, err := h.records.Find(c.Request.Context(), submission.Filter{
		UserID:   userID,
		LessonID: c.Query("lesson_id"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	responses := make([]submission.Response, 0, len(records))
	for _, rec := range records {
		responses = append(responses, rec.Response())
	}
	response.Success(c, responses)
}

// Stream upgrades to a websocket and pushes live status snapshots until
// the submission reaches a terminal phase.
func (h *RunnerController) Stream(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.ErrorWithCode(c, appErr.InvalidParams, "submission id is required")
		return
	}
	if h.status == nil {
		response.ErrorWithCode(c, appErr.ServiceUnavailable, "status streaming is not configured")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(c.Request.Context(), streamMaxDuration)
	defer cancel()

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	var last submission.StatusUpdate
	for {
		update, found, err := h.status.Get(ctx, submissionID)
		if err != nil {
			logger.Warn(ctx, "status lookup failed", zap.String("submission_id", submissionID), zap.Error(err))
			return
		}
		if found && update != last {
			last = update
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(update); err != nil {
				return
			}
			if update.Phase == submission.PhaseFinished {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(update.Status)))
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func contextUserID(c *gin.Context) string {
	if v, ok := c.Get("user_id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func backendKind(raw string) backend.Kind {
	if raw == string(backend.KindRemote) {
		return backend.KindRemote
	}
	return backend.KindInterp
}

func toFiles(in []fileDTO) []project.File {
	out := make([]project.File, 0, len(in))
	for _, f := range in {
		out = append(out, project.File{Path: f.Path, Content: f.Content})
	}
	return out
}

func toTests(in []testDTO) []harness.TestDefinition {
	out := make([]harness.TestDefinition, 0, len(in))
	for _, t := range in {
		out = append(out, harness.TestDefinition{
			ID:      t.ID,
			Name:    t.Name,
			Code:    t.Code,
			Timeout: time.Duration(t.TimeoutMs) * time.Millisecond,
			Hidden:  t.Hidden,
		})
	}
	return out
}
