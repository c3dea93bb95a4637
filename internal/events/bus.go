// Package events implements in-process publish/subscribe fan-out.
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Handler receives events from a Bus.
type Handler[T any] func(event T)

type subscription[T any] struct {
	id      uint64
	handler Handler[T]
}

// Bus delivers every emitted event to all current subscribers, in subscription order.
//
// Emit works on a snapshot of the subscribers, so handlers may subscribe or unsubscribe
// while an emission is in progress without affecting it. A handler that panics is
// logged and skipped.
type Bus[T any] struct {
	// subs holds subscriptions in insertion order
	subs []subscription[T]

	// nextID identifies the next subscription
	nextID uint64

	// subsMutex protects subs and nextID
	subsMutex sync.Mutex

	// closed stops delivery once set
	closed atomic.Bool
}

// NewBus creates an empty Bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{}
}

// Subscribe adds handler and returns a function that removes it again.
// Calling the returned function more than once is harmless.
func (b *Bus[T]) Subscribe(handler Handler[T]) func() {
	b.subsMutex.Lock()
	defer b.subsMutex.Unlock()

	if b.closed.Load() {
		return func() {}
	}

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription[T]{id: id, handler: handler})

	return func() {
		b.unsubscribe(id)
	}
}

func (b *Bus[T]) unsubscribe(id uint64) {
	b.subsMutex.Lock()
	defer b.subsMutex.Unlock()

	for i, sub := range b.subs {
		if sub.id == id {
			// Copy so snapshots taken by in-flight emissions stay intact.
			subs := make([]subscription[T], 0, len(b.subs)-1)
			subs = append(subs, b.subs[:i]...)
			subs = append(subs, b.subs[i+1:]...)
			b.subs = subs
			return
		}
	}
}

// Emit delivers event to the subscribers registered when Emit was called.
func (b *Bus[T]) Emit(event T) {
	b.subsMutex.Lock()
	snapshot := b.subs
	b.subsMutex.Unlock()

	for _, sub := range snapshot {
		if b.closed.Load() {
			return
		}

		b.deliver(sub, event)
	}
}

func (b *Bus[T]) deliver(sub subscription[T], event T) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event handler panicked", "subscription", sub.id, "panic", r)
		}
	}()

	sub.handler(event)
}

// Close removes all subscribers. Emit calls that begin after Close deliver nothing, and
// an emission in progress skips its remaining subscribers. Close does not wait for a
// handler that is already running, so handlers may call Close themselves.
func (b *Bus[T]) Close() {
	b.subsMutex.Lock()
	defer b.subsMutex.Unlock()

	b.closed.Store(true)
	b.subs = nil
}

// Len returns the number of subscribers.
func (b *Bus[T]) Len() int {
	b.subsMutex.Lock()
	defer b.subsMutex.Unlock()

	return len(b.subs)
}
