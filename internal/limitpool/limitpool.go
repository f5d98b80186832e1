// Package limitpool tracks a fixed-size resource pool's outstanding
// allocations with a single atomic counter. It backs the swap slot
// pool's conservation invariant: |free| + |used| equals the pool's
// initial size at every quiescent point.
package limitpool

import "sync/atomic"

// Counter tracks how many units of a fixed-size pool are currently
// taken. The zero value has zero capacity; use New.
type Counter struct {
	capacity int64
	taken    int64
}

// New returns a Counter for a pool of the given total capacity.
func New(capacity int) *Counter {
	return &Counter{capacity: int64(capacity)}
}

// Take reserves one unit, returning false if the pool is already fully
// allocated. Every caller in this repository takes one unit at a time.
func (c *Counter) Take() bool {
	n := atomic.AddInt64(&c.taken, 1)
	if n <= c.capacity {
		return true
	}
	atomic.AddInt64(&c.taken, -1)
	return false
}

// Give releases one unit back to the pool.
func (c *Counter) Give() {
	if atomic.AddInt64(&c.taken, -1) < 0 {
		panic("limitpool: given back more than taken")
	}
}

// Taken returns the number of units currently allocated (|used|).
func (c *Counter) Taken() int { return int(atomic.LoadInt64(&c.taken)) }

// Free returns the number of units still available (|free|).
func (c *Counter) Free() int { return int(c.capacity - atomic.LoadInt64(&c.taken)) }

// Capacity returns the pool's fixed total size.
func (c *Counter) Capacity() int { return int(c.capacity) }
