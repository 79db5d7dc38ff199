package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliodesk/folio/internal/backend"
)

type collector struct {
	mu     sync.Mutex
	events []backend.Event
}

func (c *collector) add(ev backend.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *collector) snapshot() []backend.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]backend.Event(nil), c.events...)
}

func newEvent(t *testing.T, table, id string) backend.Event {
	t.Helper()
	ev, err := backend.NewEvent(table, backend.EventInsert, map[string]string{"id": id})
	require.NoError(t, err)
	return ev
}

func newMemoryHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(NewMemoryBroker(), nil)
	require.NoError(t, hub.Start(context.Background()))
	t.Cleanup(func() { hub.Close() })
	return hub
}

func decodeID(t *testing.T, ev backend.Event) string {
	t.Helper()
	var rec struct {
		ID string `json:"id"`
	}
	require.NoError(t, ev.Decode(&rec))
	return rec.ID
}

func TestHubDeliversInOrder(t *testing.T) {
	hub := newMemoryHub(t)
	var got collector
	_, err := hub.Subscribe(backend.TableMessages, backend.EventInsert, got.add)
	require.NoError(t, err)

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, hub.Publish(ctx, newEvent(t, backend.TableMessages, id)))
	}

	require.Eventually(t, func() bool { return got.len() == 4 }, time.Second, 5*time.Millisecond)
	var ids []string
	for _, ev := range got.snapshot() {
		ids = append(ids, decodeID(t, ev))
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
}

func TestHubFiltersByTableAndKind(t *testing.T) {
	hub := newMemoryHub(t)
	var messages, projects collector
	_, err := hub.Subscribe(backend.TableMessages, backend.EventInsert, messages.add)
	require.NoError(t, err)
	_, err = hub.Subscribe(backend.TableProjects, backend.EventInsert, projects.add)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, newEvent(t, backend.TableMessages, "m1")))
	other := newEvent(t, backend.TableMessages, "m2")
	other.Kind = "DELETE"
	require.NoError(t, hub.Publish(ctx, other))

	require.Eventually(t, func() bool { return messages.len() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, messages.len())
	assert.Equal(t, 0, projects.len())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := newMemoryHub(t)
	var got collector
	sub, err := hub.Subscribe(backend.TableMessages, backend.EventInsert, got.add)
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Len())

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, hub.Len())

	require.NoError(t, hub.Publish(context.Background(), newEvent(t, backend.TableMessages, "late")))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, got.len())
}

func TestUnsubscribeFromCallback(t *testing.T) {
	hub := newMemoryHub(t)
	var (
		sub  backend.Subscription
		once sync.Once
		hits collector
	)
	ready := make(chan struct{})
	var err error
	sub, err = hub.Subscribe(backend.TableMessages, backend.EventInsert, func(ev backend.Event) {
		<-ready
		hits.add(ev)
		once.Do(sub.Unsubscribe)
	})
	require.NoError(t, err)
	close(ready)

	require.NoError(t, hub.Publish(context.Background(), newEvent(t, backend.TableMessages, "x")))
	require.Eventually(t, func() bool { return hub.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, hits.len())
}

func TestSubscribeAfterClose(t *testing.T) {
	hub := NewHub(NewMemoryBroker(), nil)
	require.NoError(t, hub.Start(context.Background()))
	_, err := hub.Subscribe(backend.TableMessages, backend.EventInsert, func(backend.Event) {})
	require.NoError(t, err)

	require.NoError(t, hub.Close())
	require.NoError(t, hub.Close())
	assert.Equal(t, 0, hub.Len())

	_, err = hub.Subscribe(backend.TableMessages, backend.EventInsert, func(backend.Event) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryBrokerBeforeStart(t *testing.T) {
	b := NewMemoryBroker()
	assert.NoError(t, b.Publish(context.Background(), backend.Event{Table: "t"}))
}

// ---------------------------------------------------------------------------
// Redis
// ---------------------------------------------------------------------------

func newRedisHub(t *testing.T, mr *miniredis.Miniredis) *Hub {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	hub := NewHub(NewRedisBroker(client, "", nil), nil)
	require.NoError(t, hub.Start(context.Background()))
	t.Cleanup(func() { hub.Close() })
	return hub
}

func TestRedisBrokerFansOutAcrossHubs(t *testing.T) {
	mr := miniredis.RunT(t)
	first := newRedisHub(t, mr)
	second := newRedisHub(t, mr)

	var a, b collector
	_, err := first.Subscribe(backend.TableMessages, backend.EventInsert, a.add)
	require.NoError(t, err)
	_, err = second.Subscribe(backend.TableMessages, backend.EventInsert, b.add)
	require.NoError(t, err)

	ev := newEvent(t, backend.TableMessages, "r1")
	require.NoError(t, first.Publish(context.Background(), ev))

	require.Eventually(t, func() bool { return a.len() == 1 && b.len() == 1 }, 2*time.Second, 10*time.Millisecond)
	got := b.snapshot()[0]
	assert.Equal(t, backend.TableMessages, got.Table)
	assert.Equal(t, backend.EventInsert, got.Kind)
	assert.Equal(t, "r1", decodeID(t, got))
}

func TestRedisBrokerUsesTableChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ps := client.Subscribe(context.Background(), "custom:"+backend.TableMessages)
	defer ps.Close()
	_, err := ps.Receive(context.Background())
	require.NoError(t, err)

	broker := NewRedisBroker(client, "custom:", nil)
	require.NoError(t, broker.Publish(context.Background(), newEvent(t, backend.TableMessages, "c1")))

	select {
	case msg := <-ps.Channel():
		assert.Equal(t, "custom:"+backend.TableMessages, msg.Channel)
		assert.Contains(t, msg.Payload, `"kind":"INSERT"`)
	case <-time.After(2 * time.Second):
		t.Fatal("no message on table channel")
	}
}

func TestRedisBrokerCloseWithoutStart(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	assert.NoError(t, NewRedisBroker(client, "", nil).Close())
}
