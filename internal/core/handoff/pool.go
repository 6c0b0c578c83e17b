package handoff

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// DefaultPoolCapacity bounds how many idle cells a pool retains.
const DefaultPoolCapacity = 1024

// Pool is a bounded free-list of Handoff cells for one value type.
// It is safe for concurrent Acquire/Release; a single cell is not.
type Pool[T any] struct {
	free   lfq.Queue[*Handoff[T]]
	misses atomix.Uint64
}

// NewPool creates a pool retaining up to capacity idle cells.
// Capacities below 2 fall back to DefaultPoolCapacity.
func NewPool[T any](capacity int) *Pool[T] {
	if capacity < 2 {
		capacity = DefaultPoolCapacity
	}
	return &Pool[T]{free: lfq.BuildMPMC[*Handoff[T]](lfq.New(capacity))}
}

// Acquire returns an idle cell, allocating one when the pool is empty.
func (p *Pool[T]) Acquire() *Handoff[T] {
	h, err := p.free.Dequeue()
	if err == nil && h != nil {
		return h
	}
	if iox.IsWouldBlock(err) {
		p.misses.Add(1)
	}
	return New[T]()
}

// Release resets h and returns it to the pool. It reports false when the
// pool is full and the cell was dropped. Cells whose Get timed out must
// not be released: a late Set could leak into the next use.
func (p *Pool[T]) Release(h *Handoff[T]) bool {
	if h == nil {
		return false
	}
	h.Reset()
	return p.free.Enqueue(&h) == nil
}

// Misses returns how many Acquire calls found the pool empty.
func (p *Pool[T]) Misses() uint64 {
	return p.misses.Load()
}
