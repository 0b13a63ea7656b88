package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/common/cache"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/submission"
	appErr "github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/errors"
)

const (
	statusKeyPrefix  = "runner:status:"
	defaultStatusTTL = 10 * time.Minute
)

// StatusRepository keeps the live progress of in-flight submissions in
// redis so pollers and the websocket stream can observe runs without
// touching the orchestrator.
type StatusRepository struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewStatusRepository(cacheClient cache.Cache) (*StatusRepository, error) {
	if cacheClient == nil {
		return nil, errors.New("cache is required")
	}
	return &StatusRepository{cache: cacheClient, ttl: defaultStatusTTL}, nil
}

// Report stores the latest progress snapshot under a TTL, so abandoned
// entries expire on their own.
func (r *StatusRepository) Report(ctx context.Context, update submission.StatusUpdate) error {
	if update.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	payload, err := json.Marshal(update)
	if err != nil {
		return appErr.Wrap(err, appErr.CacheError)
	}
	if err := r.cache.Set(ctx, statusKey(update.SubmissionID), string(payload), r.ttl); err != nil {
		return appErr.Wrap(err, appErr.CacheError)
	}
	return nil
}

// Get returns the latest snapshot for a submission, or found=false when
// none exists (never reported, or expired).
func (r *StatusRepository) Get(ctx context.Context, submissionID string) (submission.StatusUpdate, bool, error) {
	var update submission.StatusUpdate
	if submissionID == "" {
		return update, false, appErr.ValidationError("submission_id", "required")
	}
	raw, err := r.cache.Get(ctx, statusKey(submissionID))
	if err != nil {
		return update, false, appErr.Wrap(err, appErr.CacheError)
	}
	if raw == "" {
		return update, false, nil
	}
	if err := json.Unmarshal([]byte(raw), &update); err != nil {
		return update, false, appErr.Wrap(err, appErr.CacheError)
	}
	return update, true, nil
}

func statusKey(submissionID string) string {
	return statusKeyPrefix + submissionID
}
