// Package hub fans engine notifications out to watchers.
// It is transport-agnostic: subscribers register and receive events via Send.
// A subscriber that falls behind loses events; it is not disconnected.
package hub

import (
	"log/slog"
	"sync"
	"time"
)

// EventType names a notification.
type EventType string

const (
	// EventHistory follows any store mutation. Op and ID describe it.
	EventHistory EventType = "history"
	// EventPaste is the transient "paste performed" signal.
	EventPaste EventType = "paste"
	// EventPasteCleared is sent when the paste signal self-clears.
	EventPasteCleared EventType = "paste-cleared"
	// EventPermission is sent when the input permission flag flips.
	EventPermission EventType = "permission"
	// EventMonitoring is sent when monitoring is started or stopped.
	EventMonitoring EventType = "monitoring"
)

// Event is one notification. Events never carry clipboard payloads.
type Event struct {
	Type  EventType
	Op    string
	ID    string
	Value bool
	At    time.Time
}

// Subscriber is anything that can receive events from the hub.
type Subscriber interface {
	ID() string
	// Send delivers an event. Must be non-blocking.
	Send(Event)
}

// Hub routes events to every registered subscriber.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]Subscriber
	now  func() time.Time
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{subs: make(map[string]Subscriber), now: time.Now}
}

// Register adds a subscriber. A second registration with the same id
// replaces the first.
func (h *Hub) Register(s Subscriber) {
	h.mu.Lock()
	h.subs[s.ID()] = s
	total := len(h.subs)
	h.mu.Unlock()
	slog.Debug("watcher registered", "watcher", s.ID(), "total", total)
}

// Unregister removes a subscriber.
func (h *Hub) Unregister(s Subscriber) {
	h.mu.Lock()
	delete(h.subs, s.ID())
	total := len(h.subs)
	h.mu.Unlock()
	slog.Debug("watcher unregistered", "watcher", s.ID(), "total", total)
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish stamps ev and delivers it to every subscriber.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = h.now()
	}
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.Send(ev)
	}
}

// Channel is a buffered Subscriber backed by a channel. Events that do not
// fit in the buffer are dropped.
type Channel struct {
	id string
	C  chan Event
}

// NewChannel returns a Channel with room for size pending events.
func NewChannel(id string, size int) *Channel {
	return &Channel{id: id, C: make(chan Event, size)}
}

func (c *Channel) ID() string { return c.id }

func (c *Channel) Send(ev Event) {
	select {
	case c.C <- ev:
	default:
		slog.Warn("watcher channel full, dropping event", "watcher", c.id, "event", ev.Type)
	}
}
