// Package handoff provides one-shot value cells for request/response
// correlation and a bounded pool that recycles them.
package handoff

import (
	"errors"
	"time"
)

// ErrTimeout is returned by Get when no value is set in time.
var ErrTimeout = errors.New("handoff: timeout")

// Handoff carries exactly one value from a single producer to a single waiter.
type Handoff[T any] struct {
	ch chan T
}

// New creates an empty Handoff.
func New[T any]() *Handoff[T] {
	return &Handoff[T]{ch: make(chan T, 1)}
}

// Set stores v and wakes the waiter. Only the first Set after a Reset
// takes effect; later calls report false.
func (h *Handoff[T]) Set(v T) bool {
	select {
	case h.ch <- v:
		return true
	default:
		return false
	}
}

// Get waits for the value. A negative timeout waits forever.
func (h *Handoff[T]) Get(timeout time.Duration) (T, error) {
	if timeout < 0 {
		return <-h.ch, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v := <-h.ch:
		return v, nil
	case <-timer.C:
		// A value landing exactly at the deadline is still delivered.
		select {
		case v := <-h.ch:
			return v, nil
		default:
		}
		var zero T
		return zero, ErrTimeout
	}
}

// Reset discards any unread value so the cell can be reused.
func (h *Handoff[T]) Reset() {
	select {
	case <-h.ch:
	default:
	}
}
