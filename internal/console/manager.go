package console

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foliodesk/folio/internal/auth"
	"github.com/foliodesk/folio/internal/session"
)

// Manager owns one console per signed-in session, keyed by session id.
type Manager struct {
	auth    session.Authenticator
	deps    Deps
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	console   *Console
	expiresAt time.Time
}

// NewManager creates a Manager. deps are passed to every console.
func NewManager(a session.Authenticator, deps Deps) *Manager {
	m := &Manager{
		auth:     a,
		deps:     deps,
		timeout:  deps.Timeout,
		logger:   deps.Logger,
		sessions: make(map[string]*entry),
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// SignIn opens a session, waits for the admin lookup and, for admins,
// starts the console. Non-admin sessions get a console that refuses every
// operation.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*auth.Session, *Console, error) {
	gate := session.New(m.auth, m.timeout, m.logger)
	sess, err := gate.SignIn(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}
	c, err := m.open(ctx, gate, sess.ExpiresAt)
	if err != nil {
		gate.SignOut(context.WithoutCancel(ctx))
		return nil, nil, err
	}
	return sess, c, nil
}

// SignUp registers an account without signing in.
func (m *Manager) SignUp(ctx context.Context, email, password string) error {
	return session.New(m.auth, m.timeout, m.logger).SignUp(ctx, email, password)
}

// Acquire returns the console for token, restoring it if this process has
// not seen the session yet. The token is checked on every call so revoked
// or expired sessions are refused.
func (m *Manager) Acquire(ctx context.Context, token string) (*Console, error) {
	id, err := m.auth.Resolve(ctx, token)
	if err != nil {
		if e := m.findByToken(token); e != nil {
			m.drop(e.console.SessionID())
		}
		return nil, err
	}

	m.mu.Lock()
	e, ok := m.sessions[id.SessionID]
	m.mu.Unlock()
	if ok && !e.console.Closed() {
		return e.console, nil
	}

	gate := session.New(m.auth, m.timeout, m.logger)
	if err := gate.Restore(ctx, token); err != nil {
		return nil, err
	}
	return m.open(ctx, gate, id.ExpiresAt)
}

// SignOut revokes the session behind token and closes its console.
func (m *Manager) SignOut(ctx context.Context, token string) {
	if e := m.findByToken(token); e != nil {
		e.console.Gate().SignOut(ctx)
		m.drop(e.console.SessionID())
		return
	}
	if err := m.auth.SignOut(ctx, token); err != nil {
		m.logger.Warn("sign out failed", "error", err)
	}
}

// Reap closes consoles whose sessions have expired and returns how many
// were closed.
func (m *Manager) Reap(now time.Time) int {
	m.mu.Lock()
	var expired []*entry
	for id, e := range m.sessions {
		if now.After(e.expiresAt) || e.console.Closed() {
			expired = append(expired, e)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, e := range expired {
		e.console.Close()
	}
	if len(expired) > 0 {
		m.logger.Info("reaped consoles", "count", len(expired))
	}
	return len(expired)
}

// CloseAll closes every console. Sessions stay valid in the store.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()
	for _, e := range all {
		e.console.Close()
	}
}

// Len returns the number of open consoles.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// open builds and registers a console for a signed-in gate. When two
// requests restore the same session at once the first one registered wins.
func (m *Manager) open(ctx context.Context, gate *session.Gate, expiresAt time.Time) (*Console, error) {
	st, err := gate.Await(ctx)
	if err != nil {
		return nil, err
	}

	c := New(gate, m.deps)
	if PhaseOf(st) == PhaseAuthenticatedAdmin {
		if err := c.Start(ctx); err != nil {
			c.Close()
			return nil, err
		}
	}

	m.mu.Lock()
	if prev, ok := m.sessions[c.SessionID()]; ok && !prev.console.Closed() {
		m.mu.Unlock()
		// Only release local state; the session itself stays valid.
		c.Close()
		return prev.console, nil
	}
	m.sessions[c.SessionID()] = &entry{console: c, expiresAt: expiresAt}
	m.mu.Unlock()
	return c, nil
}

func (m *Manager) findByToken(token string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.sessions {
		if e.console.Gate().Token() == token {
			return e
		}
	}
	return nil
}

func (m *Manager) drop(sessionID string) {
	if sessionID == "" {
		return
	}
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if ok {
		e.console.Close()
	}
}
