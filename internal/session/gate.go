// Package session holds the operator's identity state for one signed-in
// browser: who is signed in, whether they are an admin, and whether that is
// still being looked up.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/foliodesk/folio/internal/auth"
	"github.com/foliodesk/folio/internal/model"
)

// Authenticator is the part of auth.Service the gate uses.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	SignUp(ctx context.Context, email, password string) (*model.User, error)
	SignOut(ctx context.Context, token string) error
	Resolve(ctx context.Context, token string) (*auth.Identity, error)
	User(ctx context.Context, id string) (*model.User, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// State is a snapshot of the gate. IsAdmin is false until the role lookup
// finishes; callers must wait for Loading to clear before deciding access.
type State struct {
	User    *model.User `json:"user"`
	IsAdmin bool        `json:"is_admin"`
	Loading bool        `json:"is_loading"`
}

// SignedIn reports whether a user is present.
func (s State) SignedIn() bool { return s.User != nil }

const defaultLookupTimeout = 10 * time.Second

// Gate tracks one operator session. The zero value is not usable; call New.
type Gate struct {
	auth    Authenticator
	logger  *slog.Logger
	timeout time.Duration

	// notify serialises state changes with their watcher callbacks so
	// watchers observe changes in order.
	notify sync.Mutex

	mu        sync.Mutex
	state     State
	token     string
	sessionID string
	gen       uint64
	changed   chan struct{}
	watchers  map[int]func(State)
	nextWatch int
}

// New creates a gate with no user. The lookup timeout bounds the admin role
// query; zero selects 10s.
func New(a Authenticator, timeout time.Duration, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	return &Gate{
		auth:     a,
		logger:   logger,
		timeout:  timeout,
		changed:  make(chan struct{}),
		watchers: make(map[int]func(State)),
	}
}

// State returns the current snapshot.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Token returns the bearer token of the current session, if any.
func (g *Gate) Token() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.token
}

// SessionID returns the id of the current session, if any.
func (g *Gate) SessionID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessionID
}

// SignIn exchanges credentials for a session. On failure the error carries a
// message fit for display and the state is left unchanged. On success the
// user is set with Loading true while the admin lookup runs.
func (g *Gate) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	sess, err := g.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	g.begin(sess.User, sess.Token, sess.ID)
	return sess, nil
}

// SignUp registers an account. It never changes the gate state; the account
// must be verified before it can sign in.
func (g *Gate) SignUp(ctx context.Context, email, password string) error {
	_, err := g.auth.SignUp(ctx, email, password)
	return err
}

// Restore rebuilds the state from an existing token. An empty or invalid
// token leaves the gate signed out.
func (g *Gate) Restore(ctx context.Context, token string) error {
	if token == "" {
		g.reset()
		return nil
	}
	id, err := g.auth.Resolve(ctx, token)
	if err != nil {
		g.reset()
		return err
	}
	u, err := g.auth.User(ctx, id.UserID)
	if err != nil {
		g.reset()
		return err
	}
	g.begin(u, token, id.SessionID)
	return nil
}

// SignOut revokes the session and resets to no user. The reset happens even
// when revocation fails.
func (g *Gate) SignOut(ctx context.Context) {
	token := g.Token()
	if token != "" {
		if err := g.auth.SignOut(ctx, token); err != nil && !errors.Is(err, auth.ErrInvalidToken) {
			g.logger.Warn("sign out failed", "error", err)
		}
	}
	g.reset()
}

// Await blocks until the state is no longer loading.
func (g *Gate) Await(ctx context.Context) (State, error) {
	for {
		g.mu.Lock()
		st, ch := g.state, g.changed
		g.mu.Unlock()
		if !st.Loading {
			return st, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

// Watch calls fn after every state change until the returned cancel func
// is called. fn must not call SignIn, SignOut or Restore.
func (g *Gate) Watch(fn func(State)) (cancel func()) {
	g.mu.Lock()
	id := g.nextWatch
	g.nextWatch++
	g.watchers[id] = fn
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.watchers, id)
			g.mu.Unlock()
		})
	}
}

// ---------------------------------------------------------------------------
// State transitions
// ---------------------------------------------------------------------------

func (g *Gate) begin(u *model.User, token, sessionID string) {
	gen := g.set(func(s *State) {
		*s = State{User: u, IsAdmin: false, Loading: true}
	}, token, sessionID)
	go g.resolveAdmin(gen, u.ID)
}

func (g *Gate) reset() {
	g.set(func(s *State) { *s = State{} }, "", "")
}

// resolveAdmin looks up the admin role and finishes loading, unless the
// session changed in the meantime. Lookup errors resolve to non-admin.
func (g *Gate) resolveAdmin(gen uint64, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	isAdmin, err := g.auth.IsAdmin(ctx, userID)
	if err != nil {
		g.logger.Warn("admin lookup failed", "user_id", userID, "error", err)
		isAdmin = false
	}

	g.notify.Lock()
	defer g.notify.Unlock()
	g.mu.Lock()
	if g.gen != gen {
		g.mu.Unlock()
		return
	}
	g.state.IsAdmin = isAdmin
	g.state.Loading = false
	st, watchers := g.publishLocked()
	g.mu.Unlock()
	for _, fn := range watchers {
		fn(st)
	}
}

// set applies a new session and returns its generation.
func (g *Gate) set(apply func(*State), token, sessionID string) uint64 {
	g.notify.Lock()
	defer g.notify.Unlock()

	g.mu.Lock()
	g.gen++
	gen := g.gen
	apply(&g.state)
	g.token = token
	g.sessionID = sessionID
	st, watchers := g.publishLocked()
	g.mu.Unlock()

	for _, fn := range watchers {
		fn(st)
	}
	return gen
}

// publishLocked wakes Await callers and snapshots the watchers.
func (g *Gate) publishLocked() (State, []func(State)) {
	close(g.changed)
	g.changed = make(chan struct{})
	watchers := make([]func(State), 0, len(g.watchers))
	for _, fn := range g.watchers {
		watchers = append(watchers, fn)
	}
	return g.state, watchers
}
