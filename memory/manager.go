package memory

import (
	"fmt"

	"github.com/c2h5oh/datasize"

	"github.com/narwhal-net/xpdk/errs"
)

// DefaultMbufBufSize is the payload capacity of each mbuf, matching the
// snap length used by the poll-mode driver's capture handles.
const DefaultMbufBufSize = 2048

// Manager owns one or more Pools and routes Alloc/Free across them. A
// multi-pool deployment is the NUMA-aware configuration described for
// per-mbuf pool membership: each mbuf carries its origin pool's id, so
// Free always returns it to the pool it came from rather than assuming
// a process-wide singleton pool.
type Manager struct {
	pools []*Pool
}

// NewManager builds poolCount pools of poolSize mbufs each, all with
// DefaultMbufBufSize payload capacity, sharing one huge-page allocator.
func NewManager(poolCount, poolSize int, allocator *HugePageAllocator) (*Manager, error) {
	return NewManagerWithBufSize(poolCount, poolSize, DefaultMbufBufSize, allocator)
}

// NewManagerWithBufSize is NewManager with an explicit per-mbuf payload
// capacity, used by callers that size it from configuration (buf_size)
// rather than accepting the snap-length-matched default.
func NewManagerWithBufSize(poolCount, poolSize, bufSize int, allocator *HugePageAllocator) (*Manager, error) {
	if poolCount <= 0 {
		return nil, errs.New(errs.InvalidConfig, "pool_count must be positive, got %d", poolCount)
	}

	pools := make([]*Pool, poolCount)
	for i := 0; i < poolCount; i++ {
		p, err := NewPool(fmt.Sprintf("pool_%d", i), uint32(i), poolSize, bufSize, allocator)
		if err != nil {
			for _, created := range pools[:i] {
				_ = created.Close()
			}
			return nil, err
		}
		pools[i] = p
	}

	return &Manager{pools: pools}, nil
}

// Pool returns the pool at the given index, or nil if out of range.
func (m *Manager) Pool(index int) *Pool {
	if index < 0 || index >= len(m.pools) {
		return nil
	}
	return m.pools[index]
}

// Alloc tries each pool in order and returns the first successful
// allocation. Returns MemoryAllocation if every pool is exhausted.
func (m *Manager) Alloc() (*Mbuf, error) {
	for _, p := range m.pools {
		mb, err := p.Alloc()
		if err == nil {
			return mb, nil
		}
	}
	return nil, errs.New(errs.MemoryAllocation, "no available mbufs in any of %d pools", len(m.pools))
}

// Free routes mbuf to the pool it was allocated from, using the pool id
// stamped on the mbuf at allocation time.
func (m *Manager) Free(mbuf *Mbuf) error {
	if mbuf == nil {
		return nil
	}
	p := m.Pool(int(mbuf.PoolID()))
	if p == nil {
		return errs.New(errs.MemoryAllocation, "mbuf references unknown pool id %d", mbuf.PoolID())
	}
	return p.Free(mbuf)
}

// ManagerStats aggregates per-pool statistics plus a total resident
// size computed with datasize for human-readable reporting.
type ManagerStats struct {
	Pools          []Stats
	TotalResident  datasize.ByteSize
}

// Stats returns a snapshot across every pool.
func (m *Manager) Stats() ManagerStats {
	stats := make([]Stats, len(m.pools))
	var total uint64
	for i, p := range m.pools {
		s := p.Stats()
		stats[i] = s
		total += uint64(s.Size) * uint64(s.BufSize)
	}
	return ManagerStats{
		Pools:         stats,
		TotalResident: datasize.ByteSize(total),
	}
}

// Close releases every pool's memory.
func (m *Manager) Close() error {
	var first error
	for _, p := range m.pools {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
