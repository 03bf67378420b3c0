package ring

import "sync/atomic"

// SPSC is a single-producer/single-consumer ring buffer. The producer
// owns tail and only ever reads head; the consumer owns head and only
// ever reads tail. Each side publishes its own index with a release
// store and observes the other side's index with an acquire load, so no
// CAS is needed on either side.
type SPSC[T any] struct {
	_    noCopy
	st   storage[T]
	head atomic.Uint64 // consumer-owned
	tail atomic.Uint64 // producer-owned
}

// NewSPSC creates a new SPSC ring buffer. capacity is rounded up to the
// next power of two.
func NewSPSC[T any](capacity int) *SPSC[T] {
	return &SPSC[T]{st: newStorage[T](capacity)}
}

// Cap returns the effective (power-of-two) capacity.
func (r *SPSC[T]) Cap() int { return int(r.st.cap) }

// Len returns the current occupancy. Safe to call from either side; the
// result may be stale the instant it is observed from the non-owning
// side.
func (r *SPSC[T]) Len() int {
	tail := r.tail.Load()
	head := r.head.Load()
	return int(tail - head)
}

// IsEmpty reports whether the buffer has no items to pop.
func (r *SPSC[T]) IsEmpty() bool {
	return r.head.Load() == r.tail.Load()
}

// IsFull reports whether the buffer has no room to push.
func (r *SPSC[T]) IsFull() bool {
	return r.tail.Load()-r.head.Load() >= r.st.cap
}

// Push enqueues value. Must only be called from the single producer
// goroutine. Returns errs.ErrFull if the buffer is at capacity.
func (r *SPSC[T]) Push(value T) error {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail-head >= r.st.cap {
		return Full
	}
	*r.st.slot(tail) = value
	r.tail.Store(tail + 1)
	return nil
}

// Pop dequeues the oldest item. Must only be called from the single
// consumer goroutine. Returns errs.ErrEmpty if the buffer has no items.
func (r *SPSC[T]) Pop() (T, error) {
	var zero T
	head := r.head.Load()
	tail := r.tail.Load()
	if head == tail {
		return zero, Empty
	}
	v := *r.st.slot(head)
	r.head.Store(head + 1)
	return v, nil
}

// PushBatch pushes every element of items or none at all: it fails with
// errs.ErrFull if there is not enough free space for the whole slice.
func (r *SPSC[T]) PushBatch(items []T) error {
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

// PopBatch fills up to min(len(out), occupancy) slots of out and returns
// the count written. It returns errs.ErrEmpty only when occupancy is
// zero.
func (r *SPSC[T]) PopBatch(out []T) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}
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
	for i := uint64(0); i < n; i++ {
		out[i] = *r.st.slot(head + i)
	}
	r.head.Store(head + n)
	return int(n), nil
}

// noCopy causes `go vet` to flag accidental copies of ring buffer types,
// which embed atomics and must always be used through a pointer.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
