package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/pluk/internal/apperror"
	"github.com/sakif/pluk/internal/repository/sessionstore"
)

const (
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultSweepInterval = time.Minute
)

type entry struct {
	ctrl     *Controller
	lastSeen time.Time
}

// Manager owns the live Controllers, keyed by login session id. Snapshots
// are kept in a session-scoped store under the same id, which is what lets
// an evicted session come back.
type Manager struct {
	deps      Deps
	snapshots *sessionstore.Store
	idle      time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool
}

func NewManager(deps Deps, snapshots *sessionstore.Store, idle time.Duration) *Manager {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		deps:      deps,
		snapshots: snapshots,
		idle:      idle,
		now:       now,
		logger:    deps.Logger,
		sessions:  make(map[string]*entry),
	}
}

// Register creates an account and returns its new session.
func (m *Manager) Register(ctx context.Context, email, password string) (*Controller, error) {
	return m.begin(ctx, func(c *Controller) error {
		_, err := c.Register(ctx, email, password)
		return err
	})
}

func (m *Manager) Login(ctx context.Context, email, password string) (*Controller, error) {
	return m.begin(ctx, func(c *Controller) error {
		_, err := c.Login(ctx, email, password)
		return err
	})
}

func (m *Manager) begin(ctx context.Context, login func(*Controller) error) (*Controller, error) {
	id := xid.New().String()
	view := m.snapshots.Scoped(id)
	c := NewController(id, m.deps, view)

	if err := login(c); err != nil {
		c.Close()
		view.Forget()
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		c.Close()
		view.Forget()
		return nil, apperror.SessionExpired()
	}
	m.sessions[id] = &entry{ctrl: c, lastSeen: m.now()}
	m.mu.Unlock()

	return c, nil
}

// Get returns the live controller for id, restoring it from its snapshot
// when it was evicted. A session that was logged out, or never existed,
// yields SessionExpired.
func (m *Manager) Get(ctx context.Context, id string) (*Controller, error) {
	if id == "" {
		return nil, apperror.SessionExpired()
	}

	m.mu.Lock()
	if e, ok := m.sessions[id]; ok {
		e.lastSeen = m.now()
		m.mu.Unlock()
		return e.ctrl, nil
	}
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, apperror.SessionExpired()
	}

	c := NewController(id, m.deps, m.snapshots.Scoped(id))
	acc, err := c.Restore(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	if acc == nil {
		c.Close()
		return nil, apperror.SessionExpired()
	}

	m.mu.Lock()
	if e, ok := m.sessions[id]; ok {
		// a concurrent request restored it first
		e.lastSeen = m.now()
		m.mu.Unlock()
		c.Close()
		return e.ctrl, nil
	}
	if m.closed {
		m.mu.Unlock()
		c.Close()
		return nil, apperror.SessionExpired()
	}
	m.sessions[id] = &entry{ctrl: c, lastSeen: m.now()}
	m.mu.Unlock()

	m.logger.Info("session restored", "session_id", id, "email", acc.Email)
	return c, nil
}

// Logout ends the session for good: the controller is logged out and its
// snapshot forgotten, so the id can no longer be restored.
func (m *Manager) Logout(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	view := m.snapshots.Scoped(id)
	if ok {
		e.ctrl.Logout(ctx)
		e.ctrl.Close()
	}
	view.Forget()
	return nil
}

// Sweep evicts controllers idle for longer than the timeout and reports how
// many it removed. Their snapshots are kept.
func (m *Manager) Sweep() int {
	now := m.now()

	m.mu.Lock()
	var stale []*Controller
	for id, e := range m.sessions {
		if now.Sub(e.lastSeen) >= m.idle {
			stale = append(stale, e.ctrl)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, c := range stale {
		c.Close()
	}
	if len(stale) > 0 {
		m.logger.Info("evicted idle sessions", "count", len(stale))
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close tears down every controller. Later calls to Register, Login and Get
// fail with SessionExpired.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	all := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range all {
		e.ctrl.Close()
	}
	m.logger.Info("session manager closed", "sessions", len(all))
	return nil
}
