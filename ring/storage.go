// Package ring implements bounded, power-of-two, lock-free FIFO ring
// buffers in four producer/consumer flavors: SPSC, MPSC, SPMC, and MPMC.
//
// All four variants share the same storage layout and the same capacity
// contract: the capacity passed to a constructor is rounded up to the
// next power of two, and the effective capacity is available via Cap().
// Indices are monotonically increasing uint64 counters masked at access
// time; wrapping subtraction in two's-complement arithmetic keeps the
// arithmetic correct across a 64-bit index rollover, so no tagged-pointer
// ABA protection is needed.
package ring

import "github.com/narwhal-net/xpdk/errs"

func nextPowerOfTwo(n int) int {
	if n < 1 {
		n = 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	n++
	return n
}

// storage is the shared backing array and capacity/mask pair used by all
// four ring buffer variants.
type storage[T any] struct {
	buf  []T
	cap  uint64
	mask uint64
}

func newStorage[T any](capacity int) storage[T] {
	c := nextPowerOfTwo(capacity)
	return storage[T]{
		buf:  make([]T, c),
		cap:  uint64(c),
		mask: uint64(c - 1),
	}
}

func (s *storage[T]) slot(index uint64) *T {
	return &s.buf[index&s.mask]
}

// Full and Empty are the sentinel errors returned by the push and pop
// operations, batch and non-batch alike; both alias the shared errs.Queue-kind sentinels so
// callers can compare with errors.Is against errs.ErrFull / errs.ErrEmpty.
var (
	Full  = errs.ErrFull
	Empty = errs.ErrEmpty
)
