// Package repository implements the outbound collaborator ports of the
// submission orchestrator: MySQL history, redis live status, Kafka
// completion events, and the MinIO source archive.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/common/cache"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/common/db"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/backend"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/submission"
	appErr "github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/errors"
)

const (
	defaultRecordCacheTTL      = 30 * time.Minute
	defaultRecordCacheEmptyTTL = 5 * time.Minute
	recordCacheKeyPrefix       = "runner:submission:"

	defaultFindLimit = 50
	maxFindLimit     = 200
)

// MySQLSubmissionRepository persists finished submission records.
type MySQLSubmissionRepository struct {
	provider db.Provider
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewSubmissionRepository creates a submission repository with defaults.
// cacheClient may be nil to disable the read-through cache.
func NewSubmissionRepository(provider db.Provider, cacheClient cache.Cache) (*MySQLSubmissionRepository, error) {
	if provider == nil {
		return nil, errors.New("database provider is required")
	}
	return &MySQLSubmissionRepository{
		provider: provider,
		cache:    cacheClient,
		ttl:      defaultRecordCacheTTL,
		emptyTTL: defaultRecordCacheEmptyTTL,
	}, nil
}

const recordColumns = "submission_id, session_id, user_id, lesson_id, backend_kind, status, total, passed, failed, score, outcomes, execution_output, execution_time_ms, archive_key, created_at, finished_at"

// Save inserts or replaces a finished record. Saving is idempotent on
// submission id so the orchestrator's inline retry is safe.
func (r *MySQLSubmissionRepository) Save(ctx context.Context, rec *submission.Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	if rec.ID == "" {
		return errors.New("submission id is required")
	}
	outcomes, err := json.Marshal(rec.Outcomes)
	if err != nil {
		return appErr.Wrap(err, appErr.PersistenceFailed)
	}

	query := `
		INSERT INTO runner_submissions
		(submission_id, session_id, user_id, lesson_id, backend_kind, status, total, passed, failed, score, outcomes, execution_output, execution_time_ms, archive_key, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
		status = VALUES(status), total = VALUES(total), passed = VALUES(passed),
		failed = VALUES(failed), score = VALUES(score), outcomes = VALUES(outcomes),
		execution_output = VALUES(execution_output), execution_time_ms = VALUES(execution_time_ms),
		archive_key = VALUES(archive_key), finished_at = VALUES(finished_at)
	`
	database, err := db.CurrentDatabase(r.provider)
	if err != nil {
		return appErr.Wrap(err, appErr.PersistenceFailed)
	}
	_, err = database.Exec(
		ctx,
		query,
		rec.ID,
		rec.SessionID,
		rec.UserID,
		rec.LessonID,
		string(rec.Kind),
		string(rec.Status),
		rec.Summary.Total,
		rec.Summary.Passed,
		rec.Summary.Failed,
		rec.Summary.Score,
		string(outcomes),
		rec.ExecutionOutput,
		rec.ExecutionTime.Milliseconds(),
		rec.ArchiveKey,
		rec.CreatedAt,
		rec.FinishedAt,
	)
	if err != nil {
		return appErr.Wrap(err, appErr.PersistenceFailed)
	}
	if r.cache != nil {
		_ = r.cache.Set(ctx, recordCacheKey(rec.ID), marshalRecord(rec), cache.JitterTTL(r.ttl))
	}
	return nil
}

// Find returns records matching the filter, newest first.
func (r *MySQLSubmissionRepository) Find(ctx context.Context, filter submission.Filter) ([]*submission.Record, error) {
	if filter.SubmissionID != "" {
		rec, err := r.findByID(ctx, filter.SubmissionID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, nil
		}
		return []*submission.Record{rec}, nil
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultFindLimit
	}
	if limit > maxFindLimit {
		limit = maxFindLimit
	}

	query := "SELECT " + recordColumns + " FROM runner_submissions WHERE 1=1"
	args := make([]interface{}, 0, 3)
	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.LessonID != "" {
		query += " AND lesson_id = ?"
		args = append(args, filter.LessonID)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	database, err := db.CurrentDatabase(r.provider)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.PersistenceFailed)
	}
	rows, err := database.Query(ctx, query, args...)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.PersistenceFailed)
	}
	defer rows.Close()

	var records []*submission.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, appErr.Wrap(err, appErr.PersistenceFailed)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrap(err, appErr.PersistenceFailed)
	}
	return records, nil
}

func (r *MySQLSubmissionRepository) findByID(ctx context.Context, submissionID string) (*submission.Record, error) {
	if r.cache != nil {
		return cache.GetWithCached[*submission.Record](
			ctx,
			r.cache,
			recordCacheKey(submissionID),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(rec *submission.Record) bool { return rec == nil },
			marshalRecord,
			unmarshalRecord,
			func(ctx context.Context) (*submission.Record, error) {
				return r.findByIDFromDB(ctx, submissionID)
			},
		)
	}
	return r.findByIDFromDB(ctx, submissionID)
}

func (r *MySQLSubmissionRepository) findByIDFromDB(ctx context.Context, submissionID string) (*submission.Record, error) {
	database, err := db.CurrentDatabase(r.provider)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.PersistenceFailed)
	}
	query := "SELECT " + recordColumns + " FROM runner_submissions WHERE submission_id = ? LIMIT 1"
	rec, err := scanRecord(database.QueryRow(ctx, query, submissionID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, appErr.Wrap(err, appErr.PersistenceFailed)
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*submission.Record, error) {
	rec := &submission.Record{}
	var (
		kind, status string
		outcomes     string
		execMs       int64
	)
	if err := row.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.UserID,
		&rec.LessonID,
		&kind,
		&status,
		&rec.Summary.Total,
		&rec.Summary.Passed,
		&rec.Summary.Failed,
		&rec.Summary.Score,
		&outcomes,
		&rec.ExecutionOutput,
		&execMs,
		&rec.ArchiveKey,
		&rec.CreatedAt,
		&rec.FinishedAt,
	); err != nil {
		return nil, err
	}
	rec.Kind = backend.Kind(kind)
	rec.Status = submission.Status(status)
	rec.ExecutionTime = time.Duration(execMs) * time.Millisecond
	if outcomes != "" {
		if err := json.Unmarshal([]byte(outcomes), &rec.Outcomes); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func recordCacheKey(submissionID string) string {
	return recordCacheKeyPrefix + submissionID
}

func marshalRecord(rec *submission.Record) string {
	if rec == nil {
		return ""
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalRecord(data string) (*submission.Record, error) {
	if data == "" || data == cache.NullCacheValue {
		return nil, nil
	}
	var rec submission.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
