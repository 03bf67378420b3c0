package xpdk

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/narwhal-net/xpdk/errs"
	"github.com/narwhal-net/xpdk/memory"
	"github.com/narwhal-net/xpdk/pmd"
	"github.com/narwhal-net/xpdk/stack"
)

// Error and Kind re-export errs' sum type for callers that only import
// the top-level package.
type (
	Error = errs.Error
	Kind  = errs.Kind
)

// Re-exported Kind constants, mirroring errs.
const (
	Unknown          = errs.Unknown
	MemoryAllocation = errs.MemoryAllocation
	Network          = errs.Network
	Queue            = errs.Queue
	InvalidConfig    = errs.InvalidConfig
	Io               = errs.Io
	Offload          = errs.Offload
)

// Context wraps the memory manager, poll-mode driver, and UDP stack
// built from a Config. It is not internally synchronized; a caller
// driving it from multiple goroutines must coordinate externally.
type Context struct {
	cfg *Config

	Memory *memory.Manager
	PMD    *pmd.PMD
	Stack  *stack.Stack
}

// New builds a Context from cfg: the memory manager first, then the
// poll-mode driver over cfg.Interface, then an empty UDP stack sharing
// the same manager. No I/O beyond memory allocation happens here; PMD
// capture handles open during this call since opening them is itself
// the allocation of a kernel resource, not a running I/O loop.
func New(cfg *Config) (*Context, error) {
	allocator := memory.NewHugePageAllocator()
	if !cfg.EnableHugepages {
		allocator = memory.NewAnonymousAllocator()
	}

	mgr, err := memory.NewManagerWithBufSize(cfg.PoolCount, cfg.PoolSize, int(cfg.BufSize.Bytes()), allocator)
	if err != nil {
		return nil, err
	}

	driver, err := pmd.New(pmd.Options{
		Interface:    cfg.Interface,
		RxQueueCount: cfg.RxQueueCount,
		TxQueueCount: cfg.TxQueueCount,
	}, mgr)
	if err != nil {
		_ = mgr.Close()
		return nil, err
	}

	return &Context{
		cfg:    cfg,
		Memory: mgr,
		PMD:    driver,
		Stack:  stack.NewWithQueueSize(mgr, cfg.RxQueueSize),
	}, nil
}

// Start applies CPU affinity (if configured), then starts the PMD
// before the stack, matching the original ordering: queues must be
// running before sockets start expecting delivery.
func (c *Context) Start() error {
	if err := applyAffinity(c.cfg.CPUAffinity); err != nil {
		return err
	}
	if err := c.PMD.Start(); err != nil {
		return err
	}
	c.Stack.Start()
	return nil
}

// Stop reverses Start's order: the stack first, then the PMD.
func (c *Context) Stop() error {
	c.Stack.Stop()
	return c.PMD.Stop()
}

// Close releases the capture handles and the mbuf pools. Call after
// Stop.
func (c *Context) Close() error {
	pmdErr := c.PMD.Close()
	memErr := c.Memory.Close()
	if pmdErr != nil {
		return pmdErr
	}
	return memErr
}

// Run starts the context and drives one poll loop per RX queue until
// ctx is canceled, each loop pumping its queue through the stack via
// ProcessRxPackets. This is the "worker thread per queue" deployment
// pattern; cpu_affinity applies only to the thread that calls Start (see
// applyAffinity), not to each loop.
func (c *Context) Run(ctx context.Context) error {
	if err := c.Start(); err != nil {
		return err
	}
	defer c.Stop()

	wg, runCtx := errgroup.WithContext(ctx)
	for i := 0; i < c.PMD.RxQueueCount(); i++ {
		rxQueue := c.PMD.RxQueue(i)
		wg.Go(func() error {
			return c.pumpLoop(runCtx, rxQueue)
		})
	}
	return wg.Wait()
}

// pumpLoop repeatedly calls Stack.ProcessRxPackets against rxQueue
// until ctx is canceled. It never returns a non-nil error on its own;
// ProcessRxPackets absorbs per-packet failures into counters.
func (c *Context) pumpLoop(ctx context.Context, rxQueue *pmd.RxQueue) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			c.Stack.ProcessRxPackets(rxQueue)
		}
	}
}

// applyAffinity pins the calling OS thread to the given core ids, a
// no-op when cores is empty. Callers that want Run's pump goroutines
// pinned individually must call runtime.LockOSThread from within the
// goroutine before affinity changes take effect per-thread; Context
// itself only pins the thread that calls Start.
func applyAffinity(cores []int) error {
	if len(cores) == 0 {
		return nil
	}

	var set unix.CPUSet
	set.Zero()
	for _, core := range cores {
		set.Set(core)
	}

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return errs.Wrap(errs.InvalidConfig, err, "set cpu affinity to %v", cores)
	}
	return nil
}
