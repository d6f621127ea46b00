// Package bus fans stroke events out to every connected event stream, either inside one
// process or across server replicas through redis.
package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

type Bus interface {
	Publish(ctx context.Context, ev stroke.Event) error
	Subscribe() *Subscriber
	Close() error
}

// Subscriber receives events on C until it is closed. A subscriber that falls a full
// buffer behind is dropped and C is closed; the consumer is expected to reconnect and
// refetch.
type Subscriber struct {
	C <-chan stroke.Event

	c    chan stroke.Event
	hub  *Hub
	once sync.Once
}

func (s *Subscriber) Close() {
	s.hub.remove(s)
}

// Hub is the in-process Bus.
type Hub struct {
	Buffer int

	mu          sync.RWMutex
	subscribers map[*Subscriber]bool
	closed      bool
}

var _ Bus = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{Buffer: DefaultBuffer, subscribers: make(map[*Subscriber]bool)}
}

func (h *Hub) Subscribe() *Subscriber {
	size := h.Buffer
	if size <= 0 {
		size = DefaultBuffer
	}
	c := make(chan stroke.Event, size)
	s := &Subscriber{C: c, c: c, hub: h}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.once.Do(func() { close(c) })
		return s
	}
	h.subscribers[s] = true
	slog.Debug("added subscriber", "count", len(h.subscribers))
	return s
}

func (h *Hub) remove(s *Subscriber) {
	h.mu.Lock()
	delete(h.subscribers, s)
	h.mu.Unlock()
	s.once.Do(func() { close(s.c) })
}

// Publish delivers ev to every subscriber without blocking.
func (h *Hub) Publish(_ context.Context, ev stroke.Event) error {
	h.Broadcast(ev)
	return nil
}

func (h *Hub) Broadcast(ev stroke.Event) {
	var slow []*Subscriber
	h.mu.RLock()
	for s := range h.subscribers {
		select {
		case s.c <- ev:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()
	for _, s := range slow {
		slog.Error("dropping slow subscriber", "type", ev.Type)
		h.remove(s)
	}
}

// Len is the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close closes every subscriber. Later subscribers are closed immediately.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for s := range h.subscribers {
		subs = append(subs, s)
	}
	h.subscribers = make(map[*Subscriber]bool)
	h.mu.Unlock()
	for _, s := range subs {
		s.once.Do(func() { close(s.c) })
	}
	return nil
}
