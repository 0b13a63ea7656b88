package queue

import (
	"context"
	"sync"
	"time"

	"github.com/Developers-Secrets-Inc/python-secrets-sub001/internal/runner/backend"
	appErr "github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/errors"
	"github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/utils/logger"

	"go.uber.org/zap"
)

// BackendSet builds the backends owned by one session. The in-process
// interpreter must be a fresh instance per session (it carries shared
// mutable state); the remote backend may be shared across sessions.
type BackendSet func() (map[backend.Kind]backend.Backend, error)

// SessionManager owns one queue per session. It replaces any
// module-level singleton: every consumer receives an explicit instance.
// All queues draw from one service-wide admission ceiling on top of
// their per-session limits.
type SessionManager struct {
	cfg      Config
	backends BackendSet
	global   chan struct{}

	mu     sync.Mutex
	queues map[string]*Queue
}

// NewSessionManager creates a session registry.
func NewSessionManager(cfg Config, backends BackendSet) (*SessionManager, error) {
	if backends == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("backend set is required")
	}
	cfg.setDefaults()
	m := &SessionManager{
		cfg:      cfg,
		backends: backends,
		queues:   make(map[string]*Queue),
	}
	if cfg.GlobalMaxConcurrent > 0 {
		m.global = make(chan struct{}, cfg.GlobalMaxConcurrent)
	}
	return m, nil
}

// Get returns the queue for a session, creating it on first use.
func (m *SessionManager) Get(sessionID string) (*Queue, error) {
	if sessionID == "" {
		return nil, appErr.ValidationError("session_id", "required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queues[sessionID]; ok {
		return q, nil
	}
	backends, err := m.backends()
	if err != nil {
		return nil, err
	}
	q, err := New(m.cfg, backends)
	if err != nil {
		return nil, err
	}
	q.global = m.global
	m.queues[sessionID] = q
	return q, nil
}

// Remove drops a session's queue and closes any closable backends.
func (m *SessionManager) Remove(ctx context.Context, sessionID string) {
	m.mu.Lock()
	q, ok := m.queues[sessionID]
	if ok {
		delete(m.queues, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	for _, be := range q.backends {
		if closer, ok := be.(interface{ Close(context.Context) error }); ok {
			_ = closer.Close(ctx)
		}
	}
}

// EvictIdle removes every session whose queue has been idle for at
// least idleFor, releasing its backends. Returns the number evicted.
func (m *SessionManager) EvictIdle(ctx context.Context, idleFor time.Duration) int {
	m.mu.Lock()
	var expired []string
	for id, q := range m.queues {
		if idle, ok := q.IdleSince(); ok && idle >= idleFor {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.Remove(ctx, id)
	}
	return len(expired)
}

// RunEviction sweeps idle sessions until ctx is done. Each session owns
// an interpreter runtime, so abandoned sessions must be reclaimed.
func (m *SessionManager) RunEviction(ctx context.Context) {
	ticker := time.NewTicker(evictionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.EvictIdle(ctx, m.cfg.SessionIdleTTL); n > 0 {
				logger.Info(ctx, "evicted idle sessions", zap.Int("count", n))
			}
		}
	}
}
