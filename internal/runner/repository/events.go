package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/common/mq"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/submission"
	appErr "github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/errors"
)

const (
	defaultCompletionTopic = "runner.submission.completed"
	defaultProgressTopic   = "runner.lesson.progress"

	eventTypeHeader = "x-event-type"
)

// EventPublisherConfig names the topics terminal submission states and
// lesson progress land on.
type EventPublisherConfig struct {
	CompletionTopic string `yaml:"completionTopic"`
	ProgressTopic   string `yaml:"progressTopic"`
}

// EventPublisher pushes terminal submission states and lesson-complete
// notifications onto the message queue. It implements the progress port
// of the orchestrator.
type EventPublisher struct {
	producer mq.Producer
	cfg      EventPublisherConfig
}

func NewEventPublisher(producer mq.Producer, cfg EventPublisherConfig) (*EventPublisher, error) {
	if producer == nil {
		return nil, errors.New("producer is required")
	}
	if cfg.CompletionTopic == "" {
		cfg.CompletionTopic = defaultCompletionTopic
	}
	if cfg.ProgressTopic == "" {
		cfg.ProgressTopic = defaultProgressTopic
	}
	return &EventPublisher{producer: producer, cfg: cfg}, nil
}

// SubmissionCompletedEvent is the wire shape of a terminal submission.
type SubmissionCompletedEvent struct {
	SubmissionID string             `json:"submission_id"`
	SessionID    string             `json:"session_id"`
	UserID       string             `json:"user_id"`
	LessonID     string             `json:"lesson_id"`
	Status       submission.Status  `json:"status"`
	Summary      submission.Summary `json:"summary"`
	FinishedAt   time.Time          `json:"finished_at"`
}

// LessonCompletedEvent notifies the progress tracker that a user
// finished a lesson with a full pass.
type LessonCompletedEvent struct {
	UserID      string    `json:"user_id"`
	LessonID    string    `json:"lesson_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// PublishCompleted emits the terminal state of a submission. Messages
// are keyed by session so per-session ordering is preserved.
func (p *EventPublisher) PublishCompleted(ctx context.Context, rec *submission.Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	event := SubmissionCompletedEvent{
		SubmissionID: rec.ID,
		SessionID:    rec.SessionID,
		UserID:       rec.UserID,
		LessonID:     rec.LessonID,
		Status:       rec.Status,
		Summary:      rec.Summary,
		FinishedAt:   rec.FinishedAt,
	}
	body, err := json.Marshal(event)
	if err != nil {
		return appErr.Wrap(err, appErr.ProgressPublishFailed)
	}
	msg := mq.NewMessage(body)
	msg.Key = rec.SessionID
	msg.SetHeader(eventTypeHeader, "submission.completed")
	if err := p.producer.Publish(ctx, p.cfg.CompletionTopic, msg); err != nil {
		return appErr.Wrap(err, appErr.ProgressPublishFailed)
	}
	return nil
}

// MarkLessonComplete implements submission.ProgressNotifier.
func (p *EventPublisher) MarkLessonComplete(ctx context.Context, userID, lessonID string) error {
	if userID == "" || lessonID == "" {
		return appErr.ValidationError("progress", "user id and lesson id are required")
	}
	body, err := json.Marshal(LessonCompletedEvent{
		UserID:      userID,
		LessonID:    lessonID,
		CompletedAt: time.Now(),
	})
	if err != nil {
		return appErr.Wrap(err, appErr.ProgressPublishFailed)
	}
	msg := mq.NewMessage(body)
	msg.Key = userID
	msg.SetHeader(eventTypeHeader, "lesson.completed")
	if err := p.producer.Publish(ctx, p.cfg.ProgressTopic, msg); err != nil {
		return appErr.Wrap(err, appErr.ProgressPublishFailed)
	}
	return nil
}
