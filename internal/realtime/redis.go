package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/foliodesk/folio/internal/backend"
)

// DefaultChannelPrefix prefixes every Redis channel the broker uses. The
// table name is appended.
const DefaultChannelPrefix = "folio:changes:"

// RedisBroker carries events over Redis pub/sub so that all server instances
// observe every insert.
type RedisBroker struct {
	client *redis.Client
	prefix string
	logger *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisBroker wraps an existing client. An empty prefix selects
// DefaultChannelPrefix.
func NewRedisBroker(client *redis.Client, prefix string, logger *slog.Logger) *RedisBroker {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBroker{client: client, prefix: prefix, logger: logger}
}

// Publish encodes ev as JSON and publishes it on the table's channel.
func (b *RedisBroker) Publish(ctx context.Context, ev backend.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, b.prefix+ev.Table, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Start subscribes to every table channel and forwards decoded events to
// deliver until Close. It returns once the subscription is confirmed.
func (b *RedisBroker) Start(ctx context.Context, deliver func(backend.Event)) error {
	ps := b.client.PSubscribe(ctx, b.prefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	b.mu.Lock()
	b.pubsub = ps
	b.done = make(chan struct{})
	done := b.done
	b.mu.Unlock()

	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			var ev backend.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("drop malformed realtime event", "channel", msg.Channel, "error", err)
				continue
			}
			deliver(ev)
		}
	}()

	b.logger.Info("realtime redis broker subscribed", "pattern", b.prefix+"*")
	return nil
}

// Close ends the subscription and waits for the forwarding goroutine.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	ps, done := b.pubsub, b.done
	b.pubsub = nil
	b.mu.Unlock()

	if ps == nil {
		return nil
	}
	err := ps.Close()
	<-done
	return err
}
