// Package notify fans collection change events out to live page subscribers.
package notify

import (
	"sync"

	"github.com/google/uuid"
)

const (
	KindCreated  = "created"
	KindMessage  = "message"
	KindArchived = "archived"
	KindDeleted  = "deleted"
	KindCleared  = "cleared"
	// KindChunk carries a piece of an assistant reply that is still being written.
	KindChunk = "chunk"
)

// Event describes one change. Origin names the hub that produced it.
type Event struct {
	Kind   string `json:"kind"`
	ChatID string `json:"chat_id,omitempty"`
	Client string `json:"client,omitempty"`
	Text   string `json:"text,omitempty"`
	Origin string `json:"origin,omitempty"`
}

// Hub delivers events to in-process subscribers and, when attached, to a relay.
type Hub struct {
	id string

	mu    sync.Mutex
	subs  map[int]chan Event
	next  int
	relay *relay
}

func NewHub() *Hub {
	return &Hub{
		id:   uuid.NewString(),
		subs: make(map[int]chan Event),
	}
}

// ID identifies this hub on the relay.
func (h *Hub) ID() string {
	return h.id
}

// Subscribe registers a buffered listener. The returned func unsubscribes.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	h.mu.Lock()
	key := h.next
	h.next++
	h.subs[key] = ch
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[key]; ok {
			delete(h.subs, key)
			close(ch)
		}
	}
}

// Subscribers reports the number of live listeners.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish delivers ev locally and forwards it to the relay.
func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	ev.Origin = h.id
	h.deliver(ev)
	h.mu.Lock()
	r := h.relay
	h.mu.Unlock()
	if r != nil {
		r.publish(ev)
	}
}

// deliver drops events for subscribers whose buffer is full; they resync on the next one.
func (h *Hub) deliver(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close unsubscribes every listener.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, ch := range h.subs {
		delete(h.subs, key)
		close(ch)
	}
}
