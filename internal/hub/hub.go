// Package hub fans out task events to every currently connected subscriber.
// Subscribers attaching after an event was published never see it; there is
// no backlog replay. Consumers wanting a caught-up view re-fetch current
// state through the read APIs.
package hub

import (
	"log/slog"
	"sync"

	"github.com/btouchard/beacon/internal/event"
)

// DefaultBuffer is the per-subscriber queue depth before a subscriber is
// considered too slow and disconnected.
const DefaultBuffer = 64

// Hub is the in-process event fan-out registry.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	buffer int
	closed bool
}

// Subscriber is one attached consumer. Events are delivered on Events()
// until Close is called or the hub disconnects it for falling behind.
type Subscriber struct {
	hub  *Hub
	ch   chan event.Event
	once sync.Once
}

// New creates a Hub. buffer <= 0 selects DefaultBuffer.
func New(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[*Subscriber]struct{}),
		buffer: buffer,
	}
}

// Subscribe attaches a new subscriber. The subscriber receives only events
// published after this call returns.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{hub: h, ch: make(chan event.Event, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Publish delivers e to every subscriber connected right now. A subscriber
// whose queue is full is disconnected rather than silently skipped: it will
// observe its channel closing and reconnect, preserving at-least-once
// delivery for every event it stays connected for.
func (h *Hub) Publish(e event.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		select {
		case sub.ch <- e:
		default:
			slog.Warn("dropping slow subscriber", "type", e.Type, "task_id", e.TaskID)
			delete(h.subs, sub)
			sub.once.Do(func() { close(sub.ch) })
		}
	}
}

// Close detaches every subscriber and rejects future ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		sub.once.Do(func() { close(sub.ch) })
	}
}

// Len returns the number of attached subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Events returns the subscriber's delivery channel. The channel closes when
// the subscriber is detached for any reason.
func (s *Subscriber) Events() <-chan event.Event {
	return s.ch
}

// Close detaches the subscriber from the hub.
func (s *Subscriber) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()

	delete(s.hub.subs, s)
	s.once.Do(func() { close(s.ch) })
}
