package memory

import (
	"sync"
	"sync/atomic"

	"github.com/narwhal-net/xpdk/errs"
	"github.com/narwhal-net/xpdk/ring"
)

// Pool is a fixed-size lock-free pool of Mbufs. Its data region is
// carved out of one huge-page-backed allocation; the free list is kept
// as a separate array of slot indices rather than an in-place next
// pointer stashed at the front of a free record, per the slot-index
// freelist design: aliasing a live field is avoided entirely, and the
// index-based scheme needs no tagged-pointer ABA protection.
type Pool struct {
	name    string
	id      uint32
	bufSize int

	allocator *HugePageAllocator
	data      []byte // n * bufSize contiguous region

	mbufs []Mbuf
	free  *ring.MPMC[uint32]

	mu        sync.Mutex // guards peakUsage read-modify-write
	available atomic.Int64
	peakUsage atomic.Int64
	size      int
}

// NewPool constructs a pool of n mbufs, each with bufSize bytes of
// payload capacity. id identifies the pool within a Manager so that
// mbufs can be routed back to their origin pool on free.
func NewPool(name string, id uint32, n, bufSize int, allocator *HugePageAllocator) (*Pool, error) {
	if n <= 0 || bufSize <= 0 {
		return nil, errs.New(errs.InvalidConfig, "pool %q: n=%d bufSize=%d must be positive", name, n, bufSize)
	}

	data, err := allocator.Allocate(n * bufSize)
	if err != nil {
		return nil, errs.Wrap(errs.MemoryAllocation, err, "pool %q: allocate data region", name)
	}

	p := &Pool{
		name:      name,
		id:        id,
		bufSize:   bufSize,
		allocator: allocator,
		data:      data,
		mbufs:     make([]Mbuf, n),
		free:      ring.NewMPMC[uint32](n),
		size:      n,
	}

	for i := 0; i < n; i++ {
		p.mbufs[i] = Mbuf{
			buf:    data[i*bufSize : (i+1)*bufSize : (i+1)*bufSize],
			poolID: id,
			slot:   uint32(i),
		}
		if err := p.free.Push(uint32(i)); err != nil {
			return nil, errs.Wrap(errs.MemoryAllocation, err, "pool %q: seed freelist", name)
		}
	}
	p.available.Store(int64(n))

	return p, nil
}

// ID returns this pool's index within its owning Manager.
func (p *Pool) ID() uint32 { return p.id }

// Name returns the pool's configured name.
func (p *Pool) Name() string { return p.name }

// Alloc removes an mbuf from the freelist. Returns a MemoryAllocation
// error if the pool is exhausted.
func (p *Pool) Alloc() (*Mbuf, error) {
	slot, err := p.free.Pop()
	if err != nil {
		return nil, errs.New(errs.MemoryAllocation, "pool %q exhausted", p.name)
	}

	avail := p.available.Add(-1)
	inUse := int64(p.size) - avail
	p.mu.Lock()
	if inUse > p.peakUsage.Load() {
		p.peakUsage.Store(inUse)
	}
	p.mu.Unlock()

	return &p.mbufs[slot], nil
}

// Free resets an mbuf and returns it to the freelist. Freeing nil is a
// no-op. Double-free is a contract violation on the caller and is not
// detected.
func (p *Pool) Free(m *Mbuf) error {
	if m == nil {
		return nil
	}
	m.Reset()
	if err := p.free.Push(m.slot); err != nil {
		return errs.Wrap(errs.MemoryAllocation, err, "pool %q: freelist push", p.name)
	}
	p.available.Add(1)
	return nil
}

// Stats is a point-in-time snapshot of a pool's occupancy.
type Stats struct {
	Name      string
	Size      int
	BufSize   int
	Available int64
	InUse     int64
	PeakUsage int64
}

// Stats returns a snapshot of the pool's occupancy counters.
func (p *Pool) Stats() Stats {
	avail := p.available.Load()
	return Stats{
		Name:      p.name,
		Size:      p.size,
		BufSize:   p.bufSize,
		Available: avail,
		InUse:     int64(p.size) - avail,
		PeakUsage: p.peakUsage.Load(),
	}
}

// Close unmaps the pool's data region. The pool must not be used after
// Close returns.
func (p *Pool) Close() error {
	return p.allocator.Deallocate(p.data, p.size*p.bufSize)
}
