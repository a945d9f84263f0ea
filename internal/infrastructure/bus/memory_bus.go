package bus

import (
	"context"
	"sync"

	"roomhub/internal/core/domain"
	"roomhub/internal/core/ports"
)

// MemoryGroupBus is a single-process group bus used in tests and single-node
// deployments. Delivery is best-effort: a subscriber whose buffer is full
// loses the event, matching the shared transport's lack of backpressure.
type MemoryGroupBus struct {
	mu      sync.RWMutex
	groups  map[string]map[domain.ConnectionHandle]*memorySubscription
	handles map[domain.ConnectionHandle]*memorySubscription
}

func NewMemoryGroupBus() *MemoryGroupBus {
	return &MemoryGroupBus{
		groups:  make(map[string]map[domain.ConnectionHandle]*memorySubscription),
		handles: make(map[domain.ConnectionHandle]*memorySubscription),
	}
}

func (b *MemoryGroupBus) Join(ctx context.Context, group string, handle domain.ConnectionHandle) (ports.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &memorySubscription{
		bus:    b,
		group:  group,
		handle: handle,
		events: make(chan ports.BusEvent, 64),
	}

	members, exists := b.groups[group]
	if !exists {
		members = make(map[domain.ConnectionHandle]*memorySubscription)
		b.groups[group] = members
	}
	members[handle] = sub
	b.handles[handle] = sub
	return sub, nil
}

func (b *MemoryGroupBus) Publish(ctx context.Context, group string, event ports.BusEvent) error {
	b.mu.RLock()
	subs := make([]*memorySubscription, 0, len(b.groups[group]))
	for _, sub := range b.groups[group] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(event)
	}
	return nil
}

func (b *MemoryGroupBus) Send(ctx context.Context, handle domain.ConnectionHandle, event ports.BusEvent) error {
	b.mu.RLock()
	sub, exists := b.handles[handle]
	b.mu.RUnlock()

	if !exists {
		// Handle already invalidated; direct sends are fire-and-forget.
		return nil
	}
	sub.deliver(event)
	return nil
}

func (b *MemoryGroupBus) leave(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if members, exists := b.groups[sub.group]; exists {
		if members[sub.handle] == sub {
			delete(members, sub.handle)
		}
		if len(members) == 0 {
			delete(b.groups, sub.group)
		}
	}
	if b.handles[sub.handle] == sub {
		delete(b.handles, sub.handle)
	}
}

type memorySubscription struct {
	bus    *MemoryGroupBus
	group  string
	handle domain.ConnectionHandle

	mu     sync.Mutex
	closed bool
	events chan ports.BusEvent
}

func (s *memorySubscription) deliver(event ports.BusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- event:
	default:
		// Slow subscriber; drop.
	}
}

func (s *memorySubscription) Events() <-chan ports.BusEvent {
	return s.events
}

func (s *memorySubscription) Close() error {
	s.bus.leave(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}
