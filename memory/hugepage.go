package memory

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/narwhal-net/xpdk/errs"
)

const defaultHugePageSize = 2 << 20 // 2 MiB, used when /proc/meminfo can't be read

// QueryHugePageSize reads the system's huge-page size from
// /proc/meminfo's "Hugepagesize:" line (reported in kB). It falls back
// to 2 MiB if the file is unreadable or the line is missing, which is
// the common case in a container without hugetlbfs configured.
func QueryHugePageSize() int {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return defaultHugePageSize
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Hugepagesize:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.Atoi(fields[1])
		if err != nil || kb <= 0 {
			break
		}
		return kb * 1024
	}
	return defaultHugePageSize
}

// HugePageAllocator maps anonymous memory regions, preferring huge pages
// and falling back to a plain anonymous mapping when the kernel can't
// satisfy MAP_HUGETLB (insufficient reserved huge pages is the common
// cause on a freshly booted host).
type HugePageAllocator struct {
	pageSize   int
	preferHuge bool

	blocks    atomic.Int64
	totalSize atomic.Int64
}

// NewHugePageAllocator creates an allocator using the queried system
// huge-page size, attempting MAP_HUGETLB first on every allocation.
func NewHugePageAllocator() *HugePageAllocator {
	return &HugePageAllocator{pageSize: QueryHugePageSize(), preferHuge: true}
}

// NewAnonymousAllocator creates an allocator that never attempts
// MAP_HUGETLB, for configurations with enable_hugepages: false.
func NewAnonymousAllocator() *HugePageAllocator {
	return &HugePageAllocator{pageSize: QueryHugePageSize(), preferHuge: false}
}

// PageSize returns the huge-page size this allocator rounds allocations
// up to.
func (a *HugePageAllocator) PageSize() int { return a.pageSize }

func (a *HugePageAllocator) alignUp(size int) int {
	return (size + a.pageSize - 1) / a.pageSize * a.pageSize
}

// Allocate maps a zeroed, page-aligned region of at least size bytes.
// It first attempts a huge-page-backed mapping; on any failure it falls
// back to a plain anonymous mapping of the same aligned size.
func (a *HugePageAllocator) Allocate(size int) ([]byte, error) {
	aligned := a.alignUp(size)

	var mem []byte
	var err error
	if a.preferHuge {
		mem, err = unix.Mmap(-1, 0, aligned,
			unix.PROT_READ|unix.PROT_WRITE,
			unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_HUGETLB)
	}
	if !a.preferHuge || err != nil {
		mem, err = unix.Mmap(-1, 0, aligned,
			unix.PROT_READ|unix.PROT_WRITE,
			unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
		if err != nil {
			return nil, errs.Wrap(errs.MemoryAllocation, err, "mmap %d bytes", aligned)
		}
	}

	a.blocks.Add(1)
	a.totalSize.Add(int64(aligned))
	return mem, nil
}

// Deallocate unmaps a region previously returned by Allocate. size must
// be the size originally requested, not the aligned size; Deallocate
// re-derives the alignment itself.
func (a *HugePageAllocator) Deallocate(mem []byte, size int) error {
	aligned := a.alignUp(size)
	if err := unix.Munmap(mem[:aligned]); err != nil {
		return errs.Wrap(errs.MemoryAllocation, err, "munmap %d bytes", aligned)
	}
	a.blocks.Add(-1)
	a.totalSize.Add(-int64(aligned))
	return nil
}

// AllocatorStats is a snapshot of cumulative allocation bookkeeping.
type AllocatorStats struct {
	Blocks    int64
	TotalSize int64
	PageSize  int
}

// Stats returns a snapshot of the allocator's current block count and
// total mapped bytes.
func (a *HugePageAllocator) Stats() AllocatorStats {
	return AllocatorStats{
		Blocks:    a.blocks.Load(),
		TotalSize: a.totalSize.Load(),
		PageSize:  a.pageSize,
	}
}
