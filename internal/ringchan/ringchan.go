// Package ringchan provides a bounded event channel that drops the oldest
// element instead of blocking the producer. BLE advertisement callbacks and
// bus handlers must return promptly no matter how slow the consumer is.
package ringchan

import "sync/atomic"

// Ring is a fixed-capacity channel with overwrite-oldest send semantics.
type Ring[T any] struct {
	ch          chan T
	written     atomic.Int64
	overwritten atomic.Int64
}

// Stats reports ring activity since creation.
type Stats struct {
	Written     int64
	Overwritten int64
}

// New creates a Ring with the given capacity. Panics if capacity <= 0.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &Ring[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. Consumers range over it until Close.
func (r *Ring[T]) C() <-chan T {
	return r.ch
}

// ForceSend inserts v without blocking, discarding the oldest buffered
// element if the ring is full. It reports whether an element was dropped.
// ForceSend must not be called after Close.
func (r *Ring[T]) ForceSend(v T) bool {
	dropped := false
	select {
	case r.ch <- v:
	default:
		// Full. Evict one and retry; the eviction can race another
		// consumer, in which case the slot is already free.
		select {
		case <-r.ch:
			r.overwritten.Add(1)
			dropped = true
		default:
		}
		r.ch <- v
	}
	r.written.Add(1)
	return dropped
}

// Close closes the receive side, ending any range over C.
func (r *Ring[T]) Close() {
	close(r.ch)
}

// Snapshot returns the current counters.
func (r *Ring[T]) Snapshot() Stats {
	return Stats{
		Written:     r.written.Load(),
		Overwritten: r.overwritten.Load(),
	}
}
