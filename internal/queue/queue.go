// Package queue provides an unbounded FIFO queue safe for concurrent use.
// Producers never block; consumers may wait for the next element.
package queue

import (
	"context"
	"sync"
)

// Unbounded is a generic FIFO queue that can hold any number of elements.
type Unbounded[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

// New creates and returns a new Unbounded queue.
func New[T any]() *Unbounded[T] {
	return &Unbounded[T]{notify: make(chan struct{}, 1)}
}

// Push adds an element to the end of the queue. It never blocks.
func (q *Unbounded[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.signal()
}

// Pop removes and returns the front element, waiting until one is available
// or ctx is done.
func (q *Unbounded[T]) Pop(ctx context.Context) (T, error) {
	for {
		if item, ok := q.TryPop(); ok {
			return item, nil
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryPop removes and returns the front element without waiting.
// The boolean is false if the queue was empty.
func (q *Unbounded[T]) TryPop() (T, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		var zero T
		return zero, false
	}
	item := q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	remaining := len(q.items)
	q.mu.Unlock()

	// wake another waiting consumer
	if remaining > 0 {
		q.signal()
	}
	return item, true
}

// Len returns the number of elements in the queue.
func (q *Unbounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsEmpty returns true if the queue is empty.
func (q *Unbounded[T]) IsEmpty() bool {
	return q.Len() == 0
}

func (q *Unbounded[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
