// Package buffer provides a bounded, thread-safe FIFO ring.
//
// The event log keeps its visible entries and its pause buffer in rings
// using DropOldest: once full, every write evicts the oldest item. The NATS
// sink uses a ring as its outbound queue. Counters are always kept and can
// also be exported to Prometheus with WithMetrics.
package buffer

import (
	"sync"

	"github.com/c360/signalfeed/errors"
)

// OverflowPolicy selects what a full ring does with a write.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest item to make room.
	DropOldest OverflowPolicy = iota
	// DropNewest discards the incoming item.
	DropNewest
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	default:
		return "unknown"
	}
}

// DropCallback receives every item discarded by the overflow policy. It runs
// after the ring lock is released.
type DropCallback[T any] func(item T)

// Stats is a point-in-time copy of ring counters.
type Stats struct {
	Writes  int64 `json:"writes"`
	Drops   int64 `json:"drops"`
	Size    int   `json:"size"`
	MaxSize int   `json:"max_size"`
}

// Ring is a fixed-capacity FIFO.
type Ring[T any] struct {
	mu       sync.Mutex
	items    []T
	head     int // oldest item
	size     int
	policy   OverflowPolicy
	onDrop   DropCallback[T]
	metrics  *ringMetrics
	closed   bool
	writes   int64
	drops    int64
	highMark int
}

// NewRing creates a ring holding up to capacity items. Capacity below one is
// raised to one.
func NewRing[T any](capacity int, options ...Option[T]) (*Ring[T], error) {
	capacity = max(capacity, 1)
	opts := applyOptions(options...)

	r := &Ring[T]{
		items:  make([]T, capacity),
		policy: opts.policy,
		onDrop: opts.onDrop,
	}
	if opts.registry != nil {
		m, err := newRingMetrics(opts.registry, opts.name)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "NewRing", "metrics registration")
		}
		r.metrics = m
	}
	return r, nil
}

// Write appends item, applying the overflow policy when full. It fails only
// after Close.
func (r *Ring[T]) Write(item T) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.WrapInvalid(errors.ErrClosed, "buffer", "Write", "ring closed")
	}

	var (
		dropped     T
		haveDropped bool
	)
	capacity := len(r.items)
	if r.size == capacity {
		r.drops++
		haveDropped = true
		if r.policy == DropNewest {
			dropped = item
			r.mu.Unlock()
			r.afterDrop(dropped)
			return nil
		}
		dropped = r.items[r.head]
		r.head = (r.head + 1) % capacity
		r.size--
	}

	r.items[(r.head+r.size)%capacity] = item
	r.size++
	r.writes++
	r.highMark = max(r.highMark, r.size)
	size := r.size
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.writes.Inc()
		r.metrics.observe(size, capacity)
	}
	if haveDropped {
		r.afterDrop(dropped)
	}
	return nil
}

func (r *Ring[T]) afterDrop(item T) {
	if r.metrics != nil {
		r.metrics.drops.Inc()
	}
	if r.onDrop != nil {
		r.onDrop(item)
	}
}

// Drain removes and returns every item, oldest first.
func (r *Ring[T]) Drain() []T {
	r.mu.Lock()
	out := r.copyLocked()
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head, r.size = 0, 0
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.observe(0, len(r.items))
	}
	return out
}

// Items returns a copy of the contents, oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyLocked()
}

func (r *Ring[T]) copyLocked() []T {
	out := make([]T, r.size)
	for i := range out {
		out[i] = r.items[(r.head+i)%len(r.items)]
	}
	return out
}

// Clear empties the ring without calling the drop callback.
func (r *Ring[T]) Clear() {
	_ = r.Drain()
}

// Size returns the number of items held.
func (r *Ring[T]) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Capacity returns the fixed bound.
func (r *Ring[T]) Capacity() int { return len(r.items) }

// Stats returns the current counters.
func (r *Ring[T]) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Writes: r.writes, Drops: r.drops, Size: r.size, MaxSize: r.highMark}
}

// Close rejects further writes. Items already held stay readable.
func (r *Ring[T]) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}
