package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narwhal-net/xpdk/errs"
)

func TestHugePageAllocator_AllocateDeallocate(t *testing.T) {
	a := NewHugePageAllocator()
	require.Greater(t, a.PageSize(), 0)

	mem, err := a.Allocate(1024)
	require.NoError(t, err)
	require.NotEmpty(t, mem)

	stats := a.Stats()
	assert.EqualValues(t, 1, stats.Blocks)

	require.NoError(t, a.Deallocate(mem, 1024))
	stats = a.Stats()
	assert.EqualValues(t, 0, stats.Blocks)
	assert.EqualValues(t, 0, stats.TotalSize)
}

func TestMbuf_AppendOverflow(t *testing.T) {
	a := NewHugePageAllocator()
	p, err := NewPool("test", 0, 4, 16, a)
	require.NoError(t, err)
	defer p.Close()

	mb, err := p.Alloc()
	require.NoError(t, err)

	require.NoError(t, mb.Append([]byte("hello")))
	assert.Equal(t, "hello", string(mb.Data()))

	err = mb.Append(make([]byte, 16))
	require.Error(t, err)
	assert.Equal(t, "hello", string(mb.Data()), "failed append must not partially write")
}

func TestMbuf_ResetClearsFields(t *testing.T) {
	a := NewHugePageAllocator()
	p, err := NewPool("test", 0, 2, 16, a)
	require.NoError(t, err)
	defer p.Close()

	mb, err := p.Alloc()
	require.NoError(t, err)
	require.NoError(t, mb.Append([]byte("x")))
	mb.PacketType = PacketUDP
	mb.OffloadFlags = OffloadChecksum

	require.NoError(t, p.Free(mb))

	mb2, err := p.Alloc()
	require.NoError(t, err)
	assert.Equal(t, 0, mb2.Len())
	assert.Equal(t, PacketUnknown, mb2.PacketType)
	assert.Equal(t, OffloadFlags(0), mb2.OffloadFlags)
}

func TestPool_ExhaustionAndRecovery(t *testing.T) {
	a := NewHugePageAllocator()
	p, err := NewPool("test", 0, 16, 64, a)
	require.NoError(t, err)
	defer p.Close()

	mbufs := make([]*Mbuf, 0, 16)
	for i := 0; i < 16; i++ {
		mb, err := p.Alloc()
		require.NoError(t, err)
		mbufs = append(mbufs, mb)
	}

	_, err = p.Alloc()
	require.Error(t, err)

	require.NoError(t, p.Free(mbufs[0]))
	mb, err := p.Alloc()
	require.NoError(t, err)
	require.NotNil(t, mb)

	stats := p.Stats()
	assert.EqualValues(t, 16, stats.Size)
	assert.EqualValues(t, 0, stats.Available)
	assert.EqualValues(t, 16, stats.InUse)
	assert.EqualValues(t, 16, stats.PeakUsage)
}

func TestPool_AllocFreeIdempotentAvailableCounter(t *testing.T) {
	a := NewHugePageAllocator()
	p, err := NewPool("test", 0, 8, 32, a)
	require.NoError(t, err)
	defer p.Close()

	initial := p.Stats().Available
	for i := 0; i < 100; i++ {
		mb, err := p.Alloc()
		require.NoError(t, err)
		require.NoError(t, p.Free(mb))
	}
	assert.Equal(t, initial, p.Stats().Available)
}

func TestManager_RoutesFreeByPoolID(t *testing.T) {
	a := NewHugePageAllocator()
	m, err := NewManager(2, 4, a)
	require.NoError(t, err)
	defer m.Close()

	var allocated []*Mbuf
	for i := 0; i < 8; i++ {
		mb, err := m.Alloc()
		require.NoError(t, err)
		allocated = append(allocated, mb)
	}

	_, err = m.Alloc()
	require.Error(t, err)

	for _, mb := range allocated {
		require.NoError(t, m.Free(mb))
	}

	stats := m.Stats()
	require.Len(t, stats.Pools, 2)
	for _, ps := range stats.Pools {
		assert.EqualValues(t, ps.Size, ps.Available)
	}
}

func TestManager_FreeUnknownPoolID(t *testing.T) {
	a := NewHugePageAllocator()
	m, err := NewManager(1, 2, a)
	require.NoError(t, err)
	defer m.Close()

	orphan := &Mbuf{buf: make([]byte, 16), poolID: 99}
	err = m.Free(orphan)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.MemoryAllocation))
}
