// Package console implements the admin panel's state for one operator
// session: the project list with create and delete, and the contact inbox
// kept current by realtime pushes.
//
// State changes only after the store confirms an operation. Pushes and
// request completions are applied under one mutex in arrival order.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foliodesk/folio/internal/backend"
	"github.com/foliodesk/folio/internal/model"
	"github.com/foliodesk/folio/internal/session"
)

var (
	// ErrNotAdmin is returned by every operation unless the session belongs
	// to a resolved admin.
	ErrNotAdmin = errors.New("admin access required")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("console closed")
)

const (
	defaultTimeout = 10 * time.Second
	maxNotices     = 20
	watchBuffer    = 32
)

// Phase is the console's access state, derived from the session gate.
type Phase string

const (
	PhaseUnauthenticated       Phase = "unauthenticated"
	PhaseAuthenticating        Phase = "authenticating"
	PhaseAuthenticatedNonAdmin Phase = "authenticated_non_admin"
	PhaseAuthenticatedAdmin    Phase = "authenticated_admin"
)

// PhaseOf maps a gate state to a phase. Loading always means
// authenticating; access is never decided early.
func PhaseOf(st session.State) Phase {
	switch {
	case st.Loading:
		return PhaseAuthenticating
	case !st.SignedIn():
		return PhaseUnauthenticated
	case st.IsAdmin:
		return PhaseAuthenticatedAdmin
	default:
		return PhaseAuthenticatedNonAdmin
	}
}

// Deps are the backend services a console uses.
type Deps struct {
	Projects backend.ProjectTable
	Messages backend.MessageTable
	Objects  backend.Objects
	Feed     backend.Feed
	// Timeout bounds each store and object call. Zero selects 10s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Snapshot is a copy of the console state.
type Snapshot struct {
	Phase    Phase                  `json:"phase"`
	Projects []model.Project        `json:"projects"`
	Messages []model.ContactMessage `json:"messages"`
	Unread   int                    `json:"unread"`
	Form     FormState              `json:"form"`
	Notices  []Notice               `json:"notices"`
}

// Console is the admin panel state for one session.
type Console struct {
	gate      *session.Gate
	sessionID string
	deps      Deps
	timeout   time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	projects []model.Project
	messages []model.ContactMessage
	unread   int
	form     FormState
	notices  []Notice
	started  bool
	loads    int // inbox reads in flight; pushes are held while > 0
	pending  []model.ContactMessage
	closed   bool
	watchers map[int]chan Update
	nextW    int

	sub         backend.Subscription
	unwatchGate func()
	closeOnce   sync.Once
}

// New creates a console bound to gate. It closes itself when the gate
// signs out.
func New(gate *session.Gate, deps Deps) *Console {
	c := &Console{
		gate:        gate,
		sessionID:   gate.SessionID(),
		deps:        deps,
		timeout:     deps.Timeout,
		logger:      deps.Logger,
		watchers:    make(map[int]chan Update),
		unwatchGate: func() {},
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	unwatch := gate.Watch(func(st session.State) {
		if !st.SignedIn() {
			c.Close()
		}
	})
	c.mu.Lock()
	c.unwatchGate = unwatch
	closed := c.closed
	c.mu.Unlock()
	// The gate may have signed out before Watch returned.
	if closed {
		unwatch()
	}
	return c
}

// SessionID returns the id of the session the console was opened for.
func (c *Console) SessionID() string { return c.sessionID }

// Gate returns the session gate the console follows.
func (c *Console) Gate() *session.Gate { return c.gate }

// Phase returns the current access phase.
func (c *Console) Phase() Phase { return PhaseOf(c.gate.State()) }

// Start opens the message subscription and performs the initial load. It
// waits for the gate to finish loading and fails with ErrNotAdmin unless the
// operator is an admin. Load failures raise notices but do not fail Start;
// the subscription stays open either way.
func (c *Console) Start(ctx context.Context) error {
	st, err := c.gate.Await(ctx)
	if err != nil {
		return err
	}
	if PhaseOf(st) != PhaseAuthenticatedAdmin {
		return ErrNotAdmin
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.loads++
	c.mu.Unlock()

	// Subscribe before loading so inserts made during the load are not lost.
	sub, err := c.deps.Feed.Subscribe(backend.TableMessages, backend.EventInsert, c.onInsert)
	if err != nil {
		c.mu.Lock()
		c.started = false
		c.loads--
		c.mu.Unlock()
		return fmt.Errorf("subscribe to messages: %w", err)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.Unsubscribe()
		return ErrClosed
	}
	c.sub = sub
	c.mu.Unlock()

	_, _ = c.Refresh(ctx)
	msgs, err := c.fetchMessages(ctx)

	c.mu.Lock()
	c.settleLoadLocked(msgs, err)
	unread := c.unread
	c.mu.Unlock()

	c.broadcast(Update{Type: UpdateMessages, Unread: unread})
	c.logger.Info("console started", "session_id", c.sessionID, "messages", len(msgs), "unread", unread)
	return nil
}

// Snapshot returns a copy of the current state.
func (c *Console) Snapshot() Snapshot {
	phase := c.Phase()
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Phase:    phase,
		Projects: append([]model.Project{}, c.projects...),
		Messages: append([]model.ContactMessage{}, c.messages...),
		Unread:   c.unread,
		Form:     c.form,
		Notices:  append([]Notice{}, c.notices...),
	}
}

// Closed reports whether Close has run.
func (c *Console) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close releases the subscription and ends every Watch channel. It is safe
// to call more than once and from any goroutine.
func (c *Console) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		sub := c.sub
		c.sub = nil
		watchers := c.watchers
		c.watchers = map[int]chan Update{}
		unwatch := c.unwatchGate
		c.mu.Unlock()

		if sub != nil {
			sub.Unsubscribe()
		}
		unwatch()
		for _, ch := range watchers {
			close(ch)
		}
		c.logger.Info("console closed", "session_id", c.sessionID)
	})
}

// requireAdmin fails unless the console is open for an admin.
func (c *Console) requireAdmin() error {
	if PhaseOf(c.gate.State()) != PhaseAuthenticatedAdmin {
		return ErrNotAdmin
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

func (c *Console) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}
