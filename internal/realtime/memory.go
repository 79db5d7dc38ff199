package realtime

import (
	"context"
	"sync"

	"github.com/foliodesk/folio/internal/backend"
)

// MemoryBroker delivers events within the current process.
type MemoryBroker struct {
	mu      sync.Mutex
	deliver func(backend.Event)
}

// NewMemoryBroker creates an in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{}
}

// Publish hands ev to the started hub, if any. The hub lock keeps publish
// order for concurrent publishers.
func (b *MemoryBroker) Publish(_ context.Context, ev backend.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deliver != nil {
		b.deliver(ev)
	}
	return nil
}

// Start records the delivery callback.
func (b *MemoryBroker) Start(_ context.Context, deliver func(backend.Event)) error {
	b.mu.Lock()
	b.deliver = deliver
	b.mu.Unlock()
	return nil
}

// Close stops delivery.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	b.deliver = nil
	b.mu.Unlock()
	return nil
}
