package queue

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO safe for many producers and consumers.
//
// Pop blocks until an item is available or the context ends; TryPop never
// blocks. FIFO order holds for a single queue only.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	// ready holds at most one token. A token means "the queue may be
	// non-empty"; a popper that finds items left behind passes the token on.
	ready chan struct{}
}

func New[T any]() *Queue[T] {
	return &Queue[T]{
		ready: make(chan struct{}, 1),
	}
}

func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.signal()
}

// TryPop returns false on the second returned value if the queue is empty.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Pop waits for an item. It returns ctx.Err() if the context ends first.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		item, ok := q.popLocked()
		q.mu.Unlock()
		if ok {
			return item, nil
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.ready:
		}
	}
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns every queued item in FIFO order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *Queue[T]) popLocked() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	first := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.signal()
	}
	return first, true
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
