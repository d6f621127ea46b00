// Package channel is the client's view of the stroke substrate: send a stroke, hear about
// inserted and deleted strokes, fetch the recent backlog, delete by id.
package channel

import (
	"context"
	"sync"

	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

// Channel is the remote stroke channel. Send returns the store-assigned id; a failed send
// is logged and reported once and never retried. DeleteByID is best effort and only logs.
// FetchRecent returns at most limit records, newest first.
type Channel interface {
	Send(ctx context.Context, payload stroke.Payload, ownerID string) (string, error)
	SubscribeInserts(fn func(stroke.Record)) Subscription
	SubscribeDeletes(fn func(id string)) Subscription
	SubscribeResync(fn func()) Subscription
	DeleteByID(ctx context.Context, id string)
	FetchRecent(ctx context.Context, limit int) ([]stroke.Record, error)
}

// Subscription is the handle returned by a Subscribe call.
type Subscription interface {
	// Unsubscribe stops further deliveries. Calling it more than once is a no-op.
	Unsubscribe()
}

// registry holds handlers of one event kind, in registration order.
type registry[T any] struct {
	mu       sync.Mutex
	next     uint64
	handlers map[uint64]func(T)
	order    []uint64
}

func (r *registry[T]) add(fn func(T)) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[uint64]func(T))
	}
	r.next++
	id := r.next
	r.handlers[id] = fn
	r.order = append(r.order, id)
	return &subscription{cancel: func() { r.remove(id) }}
}

func (r *registry[T]) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// emit calls every handler with v. Handlers run outside the lock so they may unsubscribe.
func (r *registry[T]) emit(v T) {
	r.mu.Lock()
	fns := make([]func(T), 0, len(r.order))
	for _, id := range r.order {
		fns = append(fns, r.handlers[id])
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

func (r *registry[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

type subscription struct {
	once   sync.Once
	cancel func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

// events bundles the three registries every implementation needs.
type events struct {
	inserts registry[stroke.Record]
	deletes registry[string]
	resyncs registry[struct{}]
}

func (e *events) SubscribeInserts(fn func(stroke.Record)) Subscription {
	return e.inserts.add(fn)
}

func (e *events) SubscribeDeletes(fn func(id string)) Subscription {
	return e.deletes.add(fn)
}

func (e *events) SubscribeResync(fn func()) Subscription {
	return e.resyncs.add(func(struct{}) { fn() })
}
