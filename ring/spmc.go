package ring

import "sync/atomic"

// SPMC is a single-producer/multi-consumer ring buffer. The single
// producer owns tail outright and publishes it with a release store;
// consumers contend on head with a CAS reservation loop.
type SPMC[T any] struct {
	_    noCopy
	st   storage[T]
	head atomic.Uint64 // contended by consumers
	tail atomic.Uint64 // producer-owned
}

// NewSPMC creates a new SPMC ring buffer. capacity is rounded up to the
// next power of two.
func NewSPMC[T any](capacity int) *SPMC[T] {
	return &SPMC[T]{st: newStorage[T](capacity)}
}

// Cap returns the effective (power-of-two) capacity.
func (r *SPMC[T]) Cap() int { return int(r.st.cap) }

// Len returns a snapshot of the current occupancy.
func (r *SPMC[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// IsEmpty reports whether the buffer had no items at the point of
// observation.
func (r *SPMC[T]) IsEmpty() bool {
	return r.tail.Load() == r.head.Load()
}

// IsFull reports whether the buffer was at capacity at the point of
// observation.
func (r *SPMC[T]) IsFull() bool {
	return r.tail.Load()-r.head.Load() >= r.st.cap
}

// Push enqueues value. Must only be called from the single producer
// goroutine.
func (r *SPMC[T]) Push(value T) error {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail-head >= r.st.cap {
		return Full
	}
	*r.st.slot(tail) = value
	r.tail.Store(tail + 1)
	return nil
}

// Pop dequeues the oldest item, retrying the CAS reservation under
// contention. Safe to call concurrently from any number of consumer
// goroutines.
func (r *SPMC[T]) Pop() (T, error) {
	var zero T
	var bo backoff
	for {
		head := r.head.Load()
		tail := r.tail.Load()
		if head == tail {
			return zero, Empty
		}
		if r.head.CompareAndSwap(head, head+1) {
			return *r.st.slot(head), nil
		}
		bo.wait()
	}
}

// PushBatch pushes every element of items or none at all. Must only be
// called from the single producer goroutine.
func (r *SPMC[T]) PushBatch(items []T) error {
	if len(items) == 0 {
		return nil
	}
	tail := r.tail.Load()
	head := r.head.Load()
	free := r.st.cap - (tail - head)
	if uint64(len(items)) > free {
		return Full
	}
	for i, v := range items {
		*r.st.slot(tail + uint64(i)) = v
	}
	r.tail.Store(tail + uint64(len(items)))
	return nil
}

// PopBatch reserves up to min(len(out), occupancy) slots in one CAS and
// fills out with them, returning the count written. Safe to call
// concurrently from any number of consumer goroutines.
func (r *SPMC[T]) PopBatch(out []T) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}
	var bo backoff
	for {
		head := r.head.Load()
		tail := r.tail.Load()
		avail := tail - head
		if avail == 0 {
			return 0, Empty
		}
		n := uint64(len(out))
		if avail < n {
			n = avail
		}
		if r.head.CompareAndSwap(head, head+n) {
			for i := uint64(0); i < n; i++ {
				out[i] = *r.st.slot(head + i)
			}
			return int(n), nil
		}
		bo.wait()
	}
}
