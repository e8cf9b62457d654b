// Package session tracks conversation lifetimes. Idle conversations get a
// warning near the cutoff and are released once the cutoff passes, so state
// for abandoned chats does not accumulate forever.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/flowdesk/flowdesk/internal/models"
)

const (
	// DefaultMaxIdle is how long a conversation may go without activity.
	DefaultMaxIdle = 24 * time.Hour
	// DefaultWarningWindow is how close to the cutoff the warning fires.
	DefaultWarningWindow = time.Hour
	// DefaultSweepInterval is how often idle sessions are checked.
	DefaultSweepInterval = 30 * time.Minute
)

// ReleaseFunc is called with the conversation id when its session expires.
type ReleaseFunc func(conversationID string)

// WarnFunc is called once per session when it nears expiry.
type WarnFunc func(conversationID string, remaining time.Duration)

// Stats counts session outcomes.
type Stats struct {
	Active  int
	Warned  uint64
	Expired uint64
}

type session struct {
	started   time.Time
	lastTouch time.Time
	warned    bool
}

// Manager tracks active sessions and sweeps idle ones.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session
	maxIdle  time.Duration
	warning  time.Duration
	interval time.Duration
	release  ReleaseFunc
	warn     WarnFunc
	now      func() time.Time
	stats    Stats
	done     chan struct{}
	once     sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxIdle overrides the idle cutoff.
func WithMaxIdle(d time.Duration) Option {
	return func(m *Manager) { m.maxIdle = d }
}

// WithWarningWindow overrides how close to the cutoff warnings fire.
func WithWarningWindow(d time.Duration) Option {
	return func(m *Manager) { m.warning = d }
}

// WithSweepInterval overrides the sweep cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) { m.interval = d }
}

// WithWarnFunc sets the near-expiry callback.
func WithWarnFunc(f WarnFunc) Option {
	return func(m *Manager) { m.warn = f }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager builds a session manager; release is called for every expired
// session.
func NewManager(release ReleaseFunc, opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*session),
		maxIdle:  DefaultMaxIdle,
		warning:  DefaultWarningWindow,
		interval: DefaultSweepInterval,
		release:  release,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the background sweeper.
func (m *Manager) Start() {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep()
			case <-m.done:
				return
			}
		}
	}()
}

// Stop halts the sweeper. Idempotent.
func (m *Manager) Stop() {
	m.once.Do(func() { close(m.done) })
}

// Touch records activity for a conversation, starting a session on first
// contact. Activity inside the warning window extends the session and arms
// the warning again.
func (m *Manager) Touch(conversationID string) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[conversationID]
	if !ok {
		m.sessions[conversationID] = &session{started: now, lastTouch: now}
		slog.Debug("session started", "conversation", conversationID)
		return
	}
	s.lastTouch = now
	s.warned = false
}

// End removes a session without invoking the release callback; the caller
// already knows the conversation is over. Returns models.ErrSessionNotFound
// when no session exists.
func (m *Manager) End(conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[conversationID]; !ok {
		return models.ErrSessionNotFound
	}
	delete(m.sessions, conversationID)
	slog.Debug("session ended", "conversation", conversationID)
	return nil
}

// Sweep processes warnings and expiries once. Callbacks run outside the
// lock.
func (m *Manager) Sweep() {
	now := m.now()
	var expired []string
	type warning struct {
		id        string
		remaining time.Duration
	}
	var warnings []warning

	m.mu.Lock()
	for id, s := range m.sessions {
		idle := now.Sub(s.lastTouch)
		if idle >= m.maxIdle {
			delete(m.sessions, id)
			m.stats.Expired++
			expired = append(expired, id)
			continue
		}
		if remaining := m.maxIdle - idle; remaining <= m.warning && !s.warned {
			s.warned = true
			m.stats.Warned++
			warnings = append(warnings, warning{id: id, remaining: remaining})
		}
	}
	m.mu.Unlock()

	for _, w := range warnings {
		slog.Info("session nearing expiry", "conversation", w.id, "remaining", w.remaining)
		if m.warn != nil {
			m.warn(w.id, w.remaining)
		}
	}
	for _, id := range expired {
		slog.Info("session expired", "conversation", id)
		if m.release != nil {
			m.release(id)
		}
	}
}

// Stats returns a snapshot of the session counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Active = len(m.sessions)
	return s
}
