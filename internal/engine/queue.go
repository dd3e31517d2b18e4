package engine

import (
	"context"
	"sync"
)

// queue is an unbounded, thread-safe FIFO.
//
// Every hop inside a machine goes through one of these: dispatched events and
// side-effect requests into the store loop, loopback steps from the store loop
// into each side effect, and trigger steps into an open scope. Producers never
// block, so a side effect emitting a request can never deadlock against the
// store loop broadcasting to that same side effect.
//
// The queue uses a channel for signaling to enable context-aware waiting.
type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{} // Signals item availability (buffered, size 1)
}

// newQueue creates an empty queue.
func newQueue[T any]() *queue[T] {
	return &queue[T]{
		items:  make([]T, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an item to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *queue[T]) Enqueue(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, item)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front item without blocking.
// Returns false if the queue is empty.
func (q *queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]

	// Clear the slot so the backing array does not pin the item.
	q.items[0] = zero

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return item, true
}

// Next blocks until an item is available, the queue is closed and drained,
// or ctx is done. The boolean is false in the latter two cases.
func (q *queue[T]) Next(ctx context.Context) (T, bool) {
	var zero T
	for {
		if item, ok := q.TryDequeue(); ok {
			return item, true
		}

		q.mu.Lock()
		drained := q.closed && len(q.items) == 0
		q.mu.Unlock()
		if drained {
			return zero, false
		}

		select {
		case <-ctx.Done():
			return zero, false
		case <-q.signal:
			// Loop back to TryDequeue. A closed signal channel fires
			// immediately, which leads to the drained check above.
		}
	}
}

// Close signals that no more items will be enqueued.
// Items already queued can still be dequeued.
func (q *queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal) // Wakes all waiters
}
