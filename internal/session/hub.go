package session

import (
	"sync"

	"github.com/wolfman30/clinic-booking/internal/booking"
)

const subscriberBuffer = 8

// Hub fans snapshots out to the session's event stream subscribers. Slow
// subscribers lose intermediate snapshots but always receive the latest one.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan booking.Snapshot
	next   int
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan booking.Snapshot)}
}

// Subscribe returns a snapshot channel and a cancel function. The channel is
// closed when the hub closes or cancel is called.
func (h *Hub) Subscribe() (<-chan booking.Snapshot, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan booking.Snapshot, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = ch
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
}

// Publish delivers snap without blocking.
func (h *Hub) Publish(snap booking.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, ch := range h.subs {
		select {
		case ch <- snap:
		default:
			// Drop the oldest queued snapshot to make room for the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// Subscribers reports the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
