// Package realtime fans change events out to in-process subscribers. Events
// travel through a Broker: in memory for a single instance, or Redis pub/sub
// so every instance sees inserts made by any other.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/foliodesk/folio/internal/backend"
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("realtime hub closed")

// Broker moves events between publishers and the hub.
type Broker interface {
	// Publish sends ev to every started hub sharing this broker.
	Publish(ctx context.Context, ev backend.Event) error
	// Start begins calling deliver for each event, in publish order.
	Start(ctx context.Context, deliver func(backend.Event)) error
	Close() error
}

const defaultQueueSize = 64

// Hub implements backend.Feed and backend.Publisher on top of a Broker.
type Hub struct {
	broker Broker
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
}

var (
	_ backend.Feed      = (*Hub)(nil)
	_ backend.Publisher = (*Hub)(nil)
)

// NewHub creates a hub. Call Start before expecting deliveries.
func NewHub(broker Broker, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		broker: broker,
		logger: logger,
		subs:   make(map[uint64]*subscriber),
	}
}

// Start connects the hub to its broker.
func (h *Hub) Start(ctx context.Context) error {
	return h.broker.Start(ctx, h.dispatch)
}

// Publish implements backend.Publisher.
func (h *Hub) Publish(ctx context.Context, ev backend.Event) error {
	if err := h.broker.Publish(ctx, ev); err != nil {
		return err
	}
	eventsPublished.WithLabelValues(ev.Table).Inc()
	return nil
}

// Subscribe registers fn for events on table of the given kind. Each
// subscription has its own goroutine, so a slow callback delays only itself.
func (h *Hub) Subscribe(table string, kind backend.EventKind, fn func(backend.Event)) (backend.Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	h.nextID++
	sub := &subscriber{
		id:    h.nextID,
		hub:   h,
		table: table,
		kind:  kind,
		fn:    fn,
		queue: make(chan backend.Event, defaultQueueSize),
		done:  make(chan struct{}),
	}
	h.subs[sub.id] = sub
	activeSubscriptions.Inc()
	go sub.run()

	h.logger.Debug("realtime subscribe", "table", table, "kind", kind, "subscription", sub.id)
	return sub, nil
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close releases every subscription and the broker.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	return h.broker.Close()
}

func (h *Hub) dispatch(ev backend.Event) {
	h.mu.RLock()
	var targets []*subscriber
	for _, s := range h.subs {
		if s.table == ev.Table && s.kind == ev.Kind {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.queue <- ev:
		case <-s.done:
		}
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	if _, ok := h.subs[id]; ok {
		delete(h.subs, id)
		activeSubscriptions.Dec()
	}
	h.mu.Unlock()
}

// ---------------------------------------------------------------------------
// subscriber
// ---------------------------------------------------------------------------

type subscriber struct {
	id    uint64
	hub   *Hub
	table string
	kind  backend.EventKind
	fn    func(backend.Event)
	queue chan backend.Event
	done  chan struct{}
	once  sync.Once
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.queue:
			// Unsubscribe may race with a queued event.
			select {
			case <-s.done:
				return
			default:
			}
			s.fn(ev)
			eventsDelivered.WithLabelValues(ev.Table).Inc()
		}
	}
}

// Unsubscribe implements backend.Subscription. It may be called from inside
// the callback.
func (s *subscriber) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		s.hub.remove(s.id)
		s.hub.logger.Debug("realtime unsubscribe", "table", s.table, "subscription", s.id)
	})
}
