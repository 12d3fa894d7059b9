// Package queue provides an unbounded, thread-safe FIFO with
// context-aware waiting.
//
// Producers never block, so a fast writer (the store committing a burst of
// merges) cannot be held up by a slow consumer. The consumer side pairs
// TryDequeue with Wait in a select loop:
//
//	for {
//	    if v, ok := q.TryDequeue(); ok {
//	        handle(v)
//	        continue
//	    }
//	    select {
//	    case <-ctx.Done():
//	        return
//	    case <-q.Wait():
//	        if q.Closed() && q.Len() == 0 {
//	            return
//	        }
//	    }
//	}
package queue

import "sync"

// Queue is an unbounded FIFO of T.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{} // Signals item availability (buffered, size 1)
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items:  make([]T, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds v to the back of the queue.
// Returns false if the queue is closed.
func (q *Queue[T]) Enqueue(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, v)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front item without blocking.
// Returns (zero, false) if the queue is empty.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	v := q.items[0]

	// Clear the slot so the backing array does not pin v.
	q.items[0] = zero

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return v, true
}

// Wait returns a channel that signals when items may be available.
// The channel is closed when the queue is closed.
func (q *Queue[T]) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more items will be enqueued and wakes all waiters.
// Items already queued can still be dequeued.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
