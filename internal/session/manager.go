package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"leadchat/internal/domain"
	"leadchat/internal/metrics"
)

type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Controller
	cfg      Config
	deps     Deps
	logger   *slog.Logger
}

func NewManager(cfg Config, deps Deps) *Manager {
	cfg = cfg.withDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*Controller),
		cfg:      cfg,
		deps:     deps,
		logger:   deps.Logger,
	}
}

func (m *Manager) Create(th domain.Theme) *Controller {
	id := uuid.NewString()
	c := NewController(id, th, m.cfg, m.deps)

	m.mu.Lock()
	m.sessions[id] = c
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	m.logger.Info("session created", "session_id", id, "theme", th)
	return c
}

func (m *Manager) Get(id string) (*Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return c, nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep evicts sessions whose last activity is older than the TTL. Sessions
// with an agent call in flight are kept.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.RLock()
	var stale []*Controller
	for _, c := range m.sessions {
		idle, ok := c.idleSince(now)
		if ok && idle > m.cfg.SessionTTL {
			stale = append(stale, c)
		}
	}
	m.mu.RUnlock()
	if len(stale) == 0 {
		return 0
	}

	m.mu.Lock()
	for _, c := range stale {
		delete(m.sessions, c.ID())
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, c := range stale {
		c.Close()
	}
	metrics.ActiveSessions.Set(float64(n))
	m.logger.Info("sessions evicted", "count", len(stale), "active", n)
	return len(stale)
}

func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	m.logger.Info("session janitor started", "interval", interval, "ttl", m.cfg.SessionTTL)

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

// Shutdown closes every live session without finalizing it.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Controller)
	m.mu.Unlock()

	for _, c := range sessions {
		c.Close()
	}
	metrics.ActiveSessions.Set(0)
}
