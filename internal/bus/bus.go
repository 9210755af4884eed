// Package bus is the in-process publish/subscribe core of the event
// broadcaster. Delivery is fire-and-forget: a slow subscriber never blocks a
// publisher, and on overflow the oldest queued event is discarded in favor of
// the new one, so subscribers always see the most recent activity.
package bus

import "sync"

// Bus is an in-process publish/subscribe event bus with typed events.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]chan Event),
	}
}

// Publish sends an event to all subscribers without blocking. If a
// subscriber's queue is full, the oldest queued event is dropped to make room
// (drop-oldest, not drop-newest). A dropped delivery is not retried;
// subscribers reconcile by polling.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}
}

// Subscribe returns a channel receiving all published events. bufSize bounds
// the per-subscriber queue. Returns the channel and an unsubscribe function.
func (b *Bus) Subscribe(bufSize int) (<-chan Event, func()) {
	if bufSize <= 0 {
		bufSize = 1
	}
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
