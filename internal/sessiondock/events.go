package sessiondock

import (
	"sync"
	"time"
)

type ChangeType string

const (
	ChangeCreated  ChangeType = "created"
	ChangeUpdated  ChangeType = "updated"
	ChangeRenamed  ChangeType = "renamed"
	ChangeDeleted  ChangeType = "deleted"
	ChangeExternal ChangeType = "external"
)

// ChangeEvent notifies subscribers that a stored record changed. It carries
// no payload; dashboards re-fetch the listing on receipt.
type ChangeEvent struct {
	Type       ChangeType `json:"type"`
	Identifier string     `json:"identifier"`
	Timestamp  string     `json:"timestamp"`
}

const hubSubscriberBuffer = 16

// Hub fans mutation and watcher events out to subscribers. Sends never
// block: a subscriber that falls behind misses events rather than stalling
// the publisher.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan ChangeEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: map[chan ChangeEvent]struct{}{}}
}

// Subscribe returns a receive channel and a cancel func that must be called
// when the subscriber is done. Cancel closes the channel.
func (h *Hub) Subscribe() (<-chan ChangeEvent, func()) {
	ch := make(chan ChangeEvent, hubSubscriberBuffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
	}
	return ch, cancel
}

func (h *Hub) Publish(event ChangeEvent) {
	if h == nil {
		return
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
