// Package queue provides the closable FIFO that hands inbound messages from
// the ingestion path to a subscription's consumer.
package queue

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrTimeout is returned by Pull when no item arrives within the timeout.
	ErrTimeout = errors.New("queue: timeout")

	// ErrClosed is returned by Pull once the queue has been closed.
	ErrClosed = errors.New("queue: closed")
)

// Queue is an unbounded FIFO with a blocking, timeout-aware Pull.
// Push never blocks; bounding pending work is the caller's concern.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	notify chan struct{} // capacity 1, signals "items may be available"
	done   chan struct{} // closed by Close
}

// New creates an empty open queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends item. It reports false if the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	q.signal()
	return true
}

// Pull removes and returns the oldest item. A negative timeout waits
// forever; zero or positive waits at most that long and fails with
// ErrTimeout. Pulling from a closed queue fails with ErrClosed.
func (q *Queue[T]) Pull(timeout time.Duration) (T, error) {
	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		if item, ok, err := q.tryPop(); ok || err != nil {
			return item, err
		}

		select {
		case <-q.notify:
		case <-q.done:
		case <-expired:
			// An item pushed right at the deadline still wins.
			if item, ok, err := q.tryPop(); ok || err != nil {
				return item, err
			}
			var zero T
			return zero, ErrTimeout
		}
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close discards queued items and wakes every blocked Pull.
// Closing an already closed queue is a no-op.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.done)
}

// IsClosed reports whether Close has been called.
func (q *Queue[T]) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue[T]) tryPop() (T, bool, error) {
	var zero T

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return zero, false, ErrClosed
	}
	if len(q.items) == 0 {
		q.mu.Unlock()
		return zero, false, nil
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = q.items[:0:0]
	}
	remaining := len(q.items)
	q.mu.Unlock()

	// Pass the wakeup on so a second waiter does not sleep on a non-empty queue.
	if remaining > 0 {
		q.signal()
	}
	return item, true, nil
}

func (q *Queue[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
