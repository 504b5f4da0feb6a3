package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExpired  = errors.New("session expired")
)

// Manager owns the live sessions and expires idle ones.
type Manager struct {
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a Manager that drops sessions idle for longer than ttl.
func NewManager(ttl time.Duration, opts ...ManagerOption) *Manager {
	m := &Manager{ttl: ttl, now: time.Now, logger: slog.Default(), sessions: make(map[string]*Session)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a new session.
func (m *Manager) Create(variant, goal string) *Session {
	now := m.now()
	s := &Session{ID: uuid.NewString(), CreatedAt: now, variant: variant, goal: goal, lastSeen: now}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Debug("Session created.", "sessionId", s.ID, "variant", variant)
	return s
}

// Get returns a live session and marks it as used. An expired session is
// removed and reported as ErrExpired.
func (m *Manager) Get(id string) (*Session, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if now.Sub(s.idleSince()) > m.ttl {
		delete(m.sessions, id)
		return nil, ErrExpired
	}
	s.touch(now)
	return s, nil
}

// Destroy removes a session. Unknown ids are ignored.
func (m *Manager) Destroy(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of tracked sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep removes every expired session and returns how many were dropped.
func (m *Manager) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	dropped := 0
	for id, s := range m.sessions {
		if now.Sub(s.idleSince()) > m.ttl {
			delete(m.sessions, id)
			dropped++
		}
	}
	if dropped > 0 {
		m.logger.Info("Expired sessions removed.", "count", dropped)
	}
	return dropped
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
