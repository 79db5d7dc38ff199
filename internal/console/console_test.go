package console

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/foliodesk/folio/internal/auth"
	"github.com/foliodesk/folio/internal/backend"
	"github.com/foliodesk/folio/internal/model"
	"github.com/foliodesk/folio/internal/objectstore"
	"github.com/foliodesk/folio/internal/realtime"
	"github.com/foliodesk/folio/internal/session"
	"github.com/foliodesk/folio/internal/store"
)

const testPassword = "secret123"

type testEnv struct {
	store   *store.Store
	hub     *realtime.Hub
	feed    *countingFeed
	objects *objectstore.Local
	auth    *auth.Service
	manager *Manager
	logger  *slog.Logger
}

// countingFeed records how often subscriptions are released.
type countingFeed struct {
	inner        backend.Feed
	unsubscribes atomic.Int32
}

func (f *countingFeed) Subscribe(table string, kind backend.EventKind, fn func(backend.Event)) (backend.Subscription, error) {
	sub, err := f.inner.Subscribe(table, kind, fn)
	if err != nil {
		return nil, err
	}
	return countingSub{inner: sub, n: &f.unsubscribes}, nil
}

type countingSub struct {
	inner backend.Subscription
	n     *atomic.Int32
}

func (s countingSub) Unsubscribe() {
	s.n.Add(1)
	s.inner.Unsubscribe()
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hub := realtime.NewHub(realtime.NewMemoryBroker(), logger)
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("hub.Start: %v", err)
	}
	st, err := store.OpenMemory(hub)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	objects, err := objectstore.NewLocal(t.TempDir(), "http://localhost:8080", logger)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	svc, err := auth.NewService(st, auth.Options{
		Secret: "test-secret",
		Hasher: auth.NewArgon2Hasher(auth.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}),
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	env := &testEnv{
		store:   st,
		hub:     hub,
		feed:    &countingFeed{inner: hub},
		objects: objects,
		auth:    svc,
		logger:  logger,
	}
	env.manager = NewManager(svc, env.deps())
	t.Cleanup(func() {
		env.manager.CloseAll()
		hub.Close()
		st.Close()
	})
	return env
}

func (e *testEnv) deps() Deps {
	return Deps{
		Projects: e.store.Projects(),
		Messages: e.store.Messages(),
		Objects:  e.objects,
		Feed:     e.feed,
		Timeout:  2 * time.Second,
		Logger:   e.logger,
	}
}

// createUser adds a verified account, optionally with the admin role.
func (e *testEnv) createUser(t *testing.T, email string, admin bool) {
	t.Helper()
	ctx := context.Background()
	hash, err := auth.NewArgon2Hasher(auth.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}).Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	u := &model.User{Email: email, PasswordHash: hash, Verified: true}
	if err := e.store.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if admin {
		if err := e.store.GrantRole(ctx, u.ID, model.RoleAdmin); err != nil {
			t.Fatalf("GrantRole: %v", err)
		}
	}
}

func (e *testEnv) signInAdmin(t *testing.T) (*auth.Session, *Console) {
	t.Helper()
	e.createUser(t, "admin@example.com", true)
	sess, c, err := e.manager.SignIn(context.Background(), "admin@example.com", testPassword)
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	return sess, c
}

func (e *testEnv) insertMessage(t *testing.T, name string) *model.ContactMessage {
	t.Helper()
	m := &model.ContactMessage{Name: name, Email: strings.ToLower(name) + "@example.com", Message: "Hello from " + name}
	if err := e.store.Messages().Insert(context.Background(), m); err != nil {
		t.Fatalf("Insert message: %v", err)
	}
	return m
}

func (e *testEnv) insertProject(t *testing.T, title string) *model.Project {
	t.Helper()
	p := &model.Project{Title: title, Description: title + " description"}
	if err := e.store.Projects().Insert(context.Background(), p); err != nil {
		t.Fatalf("Insert project: %v", err)
	}
	return p
}

// assertUnreadInvariant checks unread == count(!IsRead).
func assertUnreadInvariant(t *testing.T, c *Console) {
	t.Helper()
	msgs, unread := c.Messages()
	if want := countUnread(msgs); unread != want {
		t.Errorf("unread counter %d, but %d unread messages", unread, want)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func lastNotice(c *Console) Notice {
	notices := c.Snapshot().Notices
	if len(notices) == 0 {
		return Notice{}
	}
	return notices[len(notices)-1]
}

// ---------------------------------------------------------------------------
// Phases
// ---------------------------------------------------------------------------

func TestPhaseOf(t *testing.T) {
	u := &model.User{ID: "u1"}
	tests := []struct {
		state session.State
		want  Phase
	}{
		{session.State{}, PhaseUnauthenticated},
		{session.State{Loading: true}, PhaseAuthenticating},
		{session.State{User: u, Loading: true}, PhaseAuthenticating},
		{session.State{User: u, IsAdmin: true, Loading: true}, PhaseAuthenticating},
		{session.State{User: u}, PhaseAuthenticatedNonAdmin},
		{session.State{User: u, IsAdmin: true}, PhaseAuthenticatedAdmin},
	}
	for _, tt := range tests {
		if got := PhaseOf(tt.state); got != tt.want {
			t.Errorf("PhaseOf(%+v) = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestNonAdminIsRefused(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "visitor@example.com", false)

	_, c, err := env.manager.SignIn(context.Background(), "visitor@example.com", testPassword)
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if c.Phase() != PhaseAuthenticatedNonAdmin {
		t.Fatalf("phase: %s", c.Phase())
	}
	if _, err := c.Create(context.Background(), Draft{Title: "t", Description: "d"}); !errors.Is(err, ErrNotAdmin) {
		t.Errorf("Create: got %v", err)
	}
	if err := c.MarkRead(context.Background(), "x"); !errors.Is(err, ErrNotAdmin) {
		t.Errorf("MarkRead: got %v", err)
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrNotAdmin) {
		t.Errorf("Start: got %v", err)
	}
	if env.hub.Len() != 0 {
		t.Errorf("non-admin console subscribed: %d", env.hub.Len())
	}
}

func TestSignInFailure(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "admin@example.com", true)
	_, _, err := env.manager.SignIn(context.Background(), "admin@example.com", "wrong-password")
	if !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("got %v", err)
	}
	if env.manager.Len() != 0 {
		t.Error("failed sign in registered a console")
	}
}

// ---------------------------------------------------------------------------
// Inbox
// ---------------------------------------------------------------------------

func TestStartLoadsInbox(t *testing.T) {
	env := newTestEnv(t)
	first := env.insertMessage(t, "Ann")
	env.insertMessage(t, "Bob")
	env.insertMessage(t, "Cid")
	if err := env.store.Messages().Update(context.Background(), first.ID, model.MessagePatch{MarkRead: true}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	_, c := env.signInAdmin(t)
	msgs, unread := c.Messages()
	if len(msgs) != 3 || unread != 2 {
		t.Fatalf("got %d messages, %d unread", len(msgs), unread)
	}
	if msgs[0].Name != "Cid" || msgs[2].Name != "Ann" {
		t.Errorf("order: %s .. %s", msgs[0].Name, msgs[2].Name)
	}
	if c.Phase() != PhaseAuthenticatedAdmin {
		t.Errorf("phase: %s", c.Phase())
	}
	assertUnreadInvariant(t, c)
}

// A second session inserting a message shows up at the front of the
// admin's inbox without a refresh.
func TestLivePushFromAnotherSession(t *testing.T) {
	env := newTestEnv(t)
	env.insertMessage(t, "Old")
	_, c := env.signInAdmin(t)
	before := c.Unread()

	env.insertMessage(t, "Jane")

	waitFor(t, func() bool { return c.Unread() == before+1 })
	msgs, _ := c.Messages()
	if msgs[0].Name != "Jane" || len(msgs) != 2 {
		t.Errorf("front of inbox: %+v", msgs[0])
	}
	n := lastNotice(c)
	if n.Title != "New message received!" || n.Description != "From: Jane" {
		t.Errorf("notice: %+v", n)
	}
	assertUnreadInvariant(t, c)
}

func TestPushDuringLoadIsMerged(t *testing.T) {
	env := newTestEnv(t)
	existing := env.insertMessage(t, "Existing")

	gate := session.New(env.auth, time.Second, env.logger)
	env.createUser(t, "admin@example.com", true)
	if _, err := gate.SignIn(context.Background(), "admin@example.com", testPassword); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	release := make(chan struct{})
	feed := &manualFeed{}
	deps := env.deps()
	deps.Feed = feed
	deps.Messages = &blockingMessages{MessageTable: env.store.Messages(), release: release}
	c := New(gate, deps)
	defer c.Close()

	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background()) }()

	waitFor(t, func() bool { return feed.subscribed() })
	fresh := model.ContactMessage{ID: "pushed-1", Name: "Pushed", Email: "p@example.com", Message: "hi"}
	feed.push(t, fresh)
	feed.push(t, *existing)
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("Start: %v", err)
	}
	msgs, unread := c.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != "pushed-1" || msgs[1].ID != existing.ID {
		t.Errorf("order: %s, %s", msgs[0].ID, msgs[1].ID)
	}
	if unread != 2 {
		t.Errorf("unread: %d", unread)
	}
	assertUnreadInvariant(t, c)
}

func TestPushDuringReloadIsKept(t *testing.T) {
	env := newTestEnv(t)
	gate := session.New(env.auth, time.Second, env.logger)
	env.createUser(t, "admin@example.com", true)
	if _, err := gate.SignIn(context.Background(), "admin@example.com", testPassword); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	feed := &manualFeed{}
	msgs := &stallingMessages{MessageTable: env.store.Messages(), taken: make(chan struct{}), release: make(chan struct{})}
	deps := env.deps()
	deps.Feed = feed
	deps.Messages = msgs
	c := New(gate, deps)
	defer c.Close()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	msgs.arm()
	type result struct {
		msgs []model.ContactMessage
		err  error
	}
	done := make(chan result, 1)
	go func() {
		got, err := c.ReloadMessages(context.Background())
		done <- result{got, err}
	}()

	// The reload has read an empty inbox and is still in flight.
	<-msgs.taken
	late := env.insertMessage(t, "Late")
	feed.push(t, *late)
	close(msgs.release)

	res := <-done
	if res.err != nil {
		t.Fatalf("ReloadMessages: %v", res.err)
	}
	if len(res.msgs) != 1 || res.msgs[0].ID != late.ID {
		t.Errorf("reload returned %+v", res.msgs)
	}
	inbox, unread := c.Messages()
	if len(inbox) != 1 || inbox[0].ID != late.ID {
		t.Fatalf("inbox: %+v", inbox)
	}
	if unread != 1 {
		t.Errorf("unread: %d", unread)
	}
	assertUnreadInvariant(t, c)
}

func TestNewRacingSignOut(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "admin@example.com", true)
	gate := session.New(env.auth, time.Second, env.logger)

	for i := 0; i < 20; i++ {
		if _, err := gate.SignIn(context.Background(), "admin@example.com", testPassword); err != nil {
			t.Fatalf("SignIn: %v", err)
		}
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			gate.SignOut(context.Background())
		}()
		c := New(gate, env.deps())
		wg.Wait()
		c.Close()
		if !c.Closed() {
			t.Fatal("console still open after Close")
		}
	}
}

func TestDuplicatePushIgnored(t *testing.T) {
	env := newTestEnv(t)
	_, c := env.signInAdmin(t)
	m := model.ContactMessage{ID: "dup", Name: "Dup"}
	c.mu.Lock()
	c.applyPushLocked(m)
	c.applyPushLocked(m)
	c.mu.Unlock()
	if msgs, unread := c.Messages(); len(msgs) != 1 || unread != 1 {
		t.Errorf("got %d messages, %d unread", len(msgs), unread)
	}
}

func TestMarkRead(t *testing.T) {
	env := newTestEnv(t)
	a := env.insertMessage(t, "Ann")
	env.insertMessage(t, "Bob")
	_, c := env.signInAdmin(t)
	ctx := context.Background()

	if err := c.MarkRead(ctx, a.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if c.Unread() != 1 {
		t.Errorf("unread after mark: %d", c.Unread())
	}
	// Marking an already read message changes nothing.
	if err := c.MarkRead(ctx, a.ID); err != nil {
		t.Fatalf("MarkRead again: %v", err)
	}
	if c.Unread() != 1 {
		t.Errorf("unread after second mark: %d", c.Unread())
	}
	assertUnreadInvariant(t, c)

	stored, err := env.store.Messages().Select(ctx, backend.Query{}.Where("id", a.ID))
	if err != nil || len(stored) != 1 || !stored[0].IsRead {
		t.Errorf("store not updated: %+v %v", stored, err)
	}

	if err := c.MarkRead(ctx, "missing"); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("missing id: got %v", err)
	}
	if c.Unread() != 1 {
		t.Errorf("failed mark changed counter: %d", c.Unread())
	}
}

func TestDeleteMessage(t *testing.T) {
	env := newTestEnv(t)
	a := env.insertMessage(t, "Ann")
	b := env.insertMessage(t, "Bob")
	_, c := env.signInAdmin(t)
	ctx := context.Background()

	if err := c.MarkRead(ctx, a.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if err := c.DeleteMessage(ctx, a.ID); err != nil {
		t.Fatalf("DeleteMessage read: %v", err)
	}
	if c.Unread() != 1 {
		t.Errorf("deleting a read message changed unread: %d", c.Unread())
	}
	if err := c.DeleteMessage(ctx, b.ID); err != nil {
		t.Fatalf("DeleteMessage unread: %v", err)
	}
	msgs, unread := c.Messages()
	if len(msgs) != 0 || unread != 0 {
		t.Errorf("got %d messages, %d unread", len(msgs), unread)
	}
	if n := lastNotice(c); n.Title != "Message deleted!" {
		t.Errorf("notice: %+v", n)
	}

	if err := c.DeleteMessage(ctx, b.ID); err == nil {
		t.Error("deleting twice should fail")
	}
	if c.Unread() != 0 {
		t.Errorf("unread went negative or changed: %d", c.Unread())
	}
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

func TestCreateProjectWithImage(t *testing.T) {
	env := newTestEnv(t)
	_, c := env.signInAdmin(t)
	ctx := context.Background()
	c.OpenForm()

	img := "\x89PNG..."
	p, err := c.Create(ctx, Draft{
		Title:       "  Folio ",
		Description: "Portfolio site",
		Tags:        " Go, , chi ,sqlx,",
		LiveURL:     "https://folio.example.com",
		GithubURL:   "   ",
		Image:       &Image{Filename: "Shot.PNG", ContentType: "image/png", Size: int64(len(img)), Body: strings.NewReader(img)},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if p.Title != "Folio" {
		t.Errorf("title: %q", p.Title)
	}
	if got := []string(p.Tags); len(got) != 3 || got[0] != "Go" || got[1] != "chi" || got[2] != "sqlx" {
		t.Errorf("tags: %v", got)
	}
	if p.LiveURL == nil || *p.LiveURL != "https://folio.example.com" {
		t.Errorf("live url: %v", p.LiveURL)
	}
	if p.GithubURL != nil {
		t.Errorf("blank github url stored: %q", *p.GithubURL)
	}
	if p.ImageURL == nil || !strings.HasPrefix(*p.ImageURL, "http://localhost:8080/storage/project-images/projects/") || !strings.HasSuffix(*p.ImageURL, ".png") {
		t.Fatalf("image url: %v", p.ImageURL)
	}

	objs, err := env.objects.List(ctx, ImageBucket, ImagePrefix)
	if err != nil || len(objs) != 1 {
		t.Fatalf("stored images: %v %v", objs, err)
	}

	if f := c.Form(); f.Open || f.Draft.Title != "" {
		t.Errorf("form not cleared and closed: %+v", f)
	}
	if projects := c.Projects(); len(projects) != 1 || projects[0].ID != p.ID {
		t.Errorf("listing not refreshed: %+v", projects)
	}
	if n := lastNotice(c); n.Title != "Project added successfully!" {
		t.Errorf("notice: %+v", n)
	}
}

type failingObjects struct {
	backend.Objects
}

func (failingObjects) Upload(context.Context, string, string, io.Reader, int64, string) error {
	return errors.New("bucket unavailable")
}

func TestCreateUploadFailureWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	_, c := env.signInAdmin(t)
	c.deps.Objects = failingObjects{Objects: env.objects}
	ctx := context.Background()

	draft := Draft{
		Title:       "Broken",
		Description: "d",
		Tags:        "a,b",
		Image:       &Image{Filename: "x.jpg", Size: 1, Body: strings.NewReader("x")},
	}
	_, err := c.Create(ctx, draft)
	var uerr *UploadError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected UploadError, got %v", err)
	}

	rows, err := env.store.Projects().Select(ctx, backend.Query{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("project written despite failed upload: %+v", rows)
	}
	f := c.Form()
	if !f.Open || f.Draft.Title != "Broken" || f.Draft.Tags != "a,b" {
		t.Errorf("draft not kept: %+v", f)
	}
	if n := lastNotice(c); n.Title != "Error uploading image" {
		t.Errorf("notice: %+v", n)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	_, c := env.signInAdmin(t)

	for _, d := range []Draft{{Title: " ", Description: "d"}, {Title: "t", Description: ""}} {
		_, err := c.Create(context.Background(), d)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("draft %+v: got %v", d, err)
		}
	}
	if rows, _ := env.store.Projects().Select(context.Background(), backend.Query{}); len(rows) != 0 {
		t.Errorf("invalid draft written: %+v", rows)
	}
}

func TestDeleteProjectLeavesEverythingElse(t *testing.T) {
	env := newTestEnv(t)
	keep := env.insertProject(t, "Keep")
	gone := env.insertProject(t, "Gone")
	env.insertMessage(t, "Ann")
	_, c := env.signInAdmin(t)
	ctx := context.Background()

	if err := c.DeleteProject(ctx, gone.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	projects := c.Projects()
	if len(projects) != 1 || projects[0].ID != keep.ID {
		t.Errorf("projects after delete: %+v", projects)
	}
	if msgs, _ := c.Messages(); len(msgs) != 1 {
		t.Errorf("messages touched: %d", len(msgs))
	}
	if n := lastNotice(c); n.Title != "Project deleted!" {
		t.Errorf("notice: %+v", n)
	}

	if err := c.DeleteProject(ctx, gone.ID); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("second delete: got %v", err)
	}
	if n := lastNotice(c); n.Title != "Error deleting project" {
		t.Errorf("notice: %+v", n)
	}
}

func TestParseTags(t *testing.T) {
	tests := map[string][]string{
		"":              {},
		" , ,":          {},
		"Go":            {"Go"},
		"React, Node":   {"React", "Node"},
		" a ,b,, c , ": {"a", "b", "c"},
	}
	for in, want := range tests {
		got := ParseTags(in)
		if len(got) != len(want) {
			t.Errorf("ParseTags(%q) = %v, want %v", in, got, want)
			continue
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("ParseTags(%q) = %v, want %v", in, got, want)
			}
		}
	}
}

func TestImagePath(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	p := imagePath("Photo.JPEG", now)
	if !strings.HasPrefix(p, "projects/1700000000123-") || !strings.HasSuffix(p, ".jpeg") {
		t.Errorf("path: %q", p)
	}
	if imagePath("a.png", now) == imagePath("a.png", now) {
		t.Error("paths should differ for the same instant")
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestSubscriptionReleasedExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	sess, c := env.signInAdmin(t)
	if env.hub.Len() != 1 {
		t.Fatalf("subscriptions: %d", env.hub.Len())
	}

	c.Close()
	env.manager.SignOut(context.Background(), sess.Token)
	c.Close()

	if got := env.feed.unsubscribes.Load(); got != 1 {
		t.Errorf("unsubscribe calls: %d", got)
	}
	if env.hub.Len() != 0 {
		t.Errorf("subscriptions left: %d", env.hub.Len())
	}
}

func TestSignOutClosesConsole(t *testing.T) {
	env := newTestEnv(t)
	sess, c := env.signInAdmin(t)
	updates, _ := c.Watch()

	env.manager.SignOut(context.Background(), sess.Token)
	if !c.Closed() {
		t.Fatal("console still open after sign out")
	}
	if c.Phase() != PhaseUnauthenticated {
		t.Errorf("phase: %s", c.Phase())
	}
	for range updates {
	}
	if _, err := env.manager.Acquire(context.Background(), sess.Token); !errors.Is(err, auth.ErrSessionExpired) {
		t.Errorf("Acquire after sign out: got %v", err)
	}
	if env.feed.unsubscribes.Load() != 1 {
		t.Errorf("unsubscribe calls: %d", env.feed.unsubscribes.Load())
	}
}

func TestWatchReceivesPush(t *testing.T) {
	env := newTestEnv(t)
	_, c := env.signInAdmin(t)
	updates, cancel := c.Watch()
	defer cancel()

	env.insertMessage(t, "Jane")

	timeout := time.After(2 * time.Second)
	for {
		select {
		case u := <-updates:
			if u.Type == UpdateMessage {
				if u.Message.Name != "Jane" || u.Unread != 1 {
					t.Errorf("update: %+v", u)
				}
				return
			}
		case <-timeout:
			t.Fatal("no message update")
		}
	}
}

func TestManagerAcquireRestores(t *testing.T) {
	env := newTestEnv(t)
	env.insertMessage(t, "Ann")
	sess, first := env.signInAdmin(t)
	ctx := context.Background()

	again, err := env.manager.Acquire(ctx, sess.Token)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if again != first {
		t.Error("expected the same console for the same session")
	}

	env.manager.CloseAll()
	if !first.Closed() {
		t.Error("CloseAll left console open")
	}

	restored, err := env.manager.Acquire(ctx, sess.Token)
	if err != nil {
		t.Fatalf("Acquire after restart: %v", err)
	}
	if restored == first || restored.Phase() != PhaseAuthenticatedAdmin {
		t.Errorf("restored console: phase %s", restored.Phase())
	}
	if msgs, unread := restored.Messages(); len(msgs) != 1 || unread != 1 {
		t.Errorf("restored inbox: %d messages, %d unread", len(msgs), unread)
	}

	if _, err := env.manager.Acquire(ctx, "garbage"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("garbage token: got %v", err)
	}
}

func TestManagerReap(t *testing.T) {
	env := newTestEnv(t)
	_, c := env.signInAdmin(t)

	if n := env.manager.Reap(time.Now()); n != 0 {
		t.Errorf("reaped live session: %d", n)
	}
	if n := env.manager.Reap(time.Now().Add(30 * 24 * time.Hour)); n != 1 {
		t.Errorf("reaped: %d", n)
	}
	if !c.Closed() || env.manager.Len() != 0 {
		t.Error("expired console not closed")
	}
}

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// manualFeed lets a test deliver events by hand.
type manualFeed struct {
	mu sync.Mutex
	fn func(backend.Event)
}

func (f *manualFeed) Subscribe(_ string, _ backend.EventKind, fn func(backend.Event)) (backend.Subscription, error) {
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
	return f, nil
}

func (f *manualFeed) Unsubscribe() {
	f.mu.Lock()
	f.fn = nil
	f.mu.Unlock()
}

func (f *manualFeed) subscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fn != nil
}

func (f *manualFeed) push(t *testing.T, m model.ContactMessage) {
	t.Helper()
	ev, err := backend.NewEvent(backend.TableMessages, backend.EventInsert, m)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	fn(ev)
}

// blockingMessages holds Select until release is closed.
type blockingMessages struct {
	backend.MessageTable
	release chan struct{}
}

func (b *blockingMessages) Select(ctx context.Context, q backend.Query) ([]model.ContactMessage, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.MessageTable.Select(ctx, q)
}

// stallingMessages reads the store, then holds the result until release is
// closed. Only reads made after arm stall.
type stallingMessages struct {
	backend.MessageTable
	armed   atomic.Bool
	taken   chan struct{}
	release chan struct{}
}

func (s *stallingMessages) arm() { s.armed.Store(true) }

func (s *stallingMessages) Select(ctx context.Context, q backend.Query) ([]model.ContactMessage, error) {
	msgs, err := s.MessageTable.Select(ctx, q)
	if !s.armed.CompareAndSwap(true, false) {
		return msgs, err
	}
	close(s.taken)
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return msgs, err
}
