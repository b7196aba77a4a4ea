// Package observe provides typed in-process publish/subscribe used to fan out
// queue events and location updates to listeners.
package observe

import (
	"maps"
	"slices"
	"sync"
)

// Broadcaster delivers published values to every subscriber synchronously,
// in subscription order. Listeners must not block.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	nextID uint64
	fns    map[uint64]func(T)
	closed bool
}

// New creates an empty Broadcaster.
func New[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{fns: make(map[uint64]func(T))}
}

// Subscription is a handle returned by Subscribe.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe removes the listener. Safe to call more than once and after Close.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.cancel == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Subscribe registers fn. Subscribing to a closed broadcaster returns an
// inert subscription.
func (b *Broadcaster[T]) Subscribe(fn func(T)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || fn == nil {
		return &Subscription{}
	}

	b.nextID++
	id := b.nextID
	b.fns[id] = fn

	return &Subscription{cancel: func() {
		b.mu.Lock()
		delete(b.fns, id)
		b.mu.Unlock()
	}}
}

// Publish invokes every current listener with v. Listeners added or removed
// during delivery take effect on the next Publish.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	ids := slices.Sorted(maps.Keys(b.fns))
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.fns[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of live subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fns)
}

// Close drops all subscribers; later Publish calls are no-ops.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	clear(b.fns)
}
