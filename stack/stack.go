package stack

import (
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/narwhal-net/xpdk/memory"
	"github.com/narwhal-net/xpdk/pmd"
	"github.com/narwhal-net/xpdk/wire"
)

const maxPumpBatch = 32

// StackStats aggregate cross-socket counters.
type StackStats struct {
	TotalSockets  atomic.Uint64
	ActiveSockets atomic.Int64
	TotalDrops    atomic.Uint64
}

// Stack owns the socket table and pumps parsed packets from an RX
// queue into the matching socket's receive FIFO. create_socket/
// close_socket assume a single owning goroutine; ProcessRxPackets is
// meant to be driven by that same goroutine (the "worker thread"
// pattern described for the top-level context).
type Stack struct {
	mu            sync.RWMutex
	sockets       map[uint16]*Socket
	nextID        atomic.Uint32
	pool          *memory.Manager
	recvQueueSize int
	running       atomic.Bool

	Stats StackStats
}

// New constructs an empty stack over the given memory manager, used to
// release mbufs that match no socket or whose socket FIFO is full.
// Sockets it creates get a receive FIFO of DefaultSocketQueueSize.
func New(pool *memory.Manager) *Stack {
	return NewWithQueueSize(pool, DefaultSocketQueueSize)
}

// NewWithQueueSize constructs an empty stack whose sockets receive FIFOs
// are sized recvQueueSize, the wiring point for Config.RxQueueSize.
func NewWithQueueSize(pool *memory.Manager, recvQueueSize int) *Stack {
	s := &Stack{
		sockets:       make(map[uint16]*Socket),
		pool:          pool,
		recvQueueSize: recvQueueSize,
	}
	s.nextID.Store(1)
	return s
}

// CreateSocket allocates the next socket id, constructs a socket bound
// to localAddr, and inserts it into the table.
func (s *Stack) CreateSocket(localAddr netip.AddrPort) uint16 {
	id := uint16(s.nextID.Add(1) - 1)
	sock := NewSocketWithQueueSize(id, localAddr, s.recvQueueSize)

	s.mu.Lock()
	s.sockets[id] = sock
	s.mu.Unlock()

	s.Stats.TotalSockets.Add(1)
	s.Stats.ActiveSockets.Add(1)
	return id
}

// GetSocket returns the socket with the given id, or nil if unknown.
func (s *Stack) GetSocket(id uint16) *Socket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sockets[id]
}

// CloseSocket stops and removes the socket with the given id. Closing
// an unknown id is a no-op.
func (s *Stack) CloseSocket(id uint16) {
	s.mu.Lock()
	sock, ok := s.sockets[id]
	if ok {
		delete(s.sockets, id)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	sock.Stop()
	s.Stats.ActiveSockets.Add(-1)
}

// findByPort returns the first socket (in map iteration order) whose
// local port matches port. Binding the same port on multiple sockets is
// not rejected by CreateSocket; when that happens, which socket wins
// here is unspecified (an explicitly open behavior, not a bug).
func (s *Stack) findByPort(port uint16) *Socket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sock := range s.sockets {
		if sock.LocalAddr().Port() == port {
			return sock
		}
	}
	return nil
}

// ProcessRxPackets pumps up to 32 packets from rxQueue: each received
// mbuf is parsed, and on success routed by destination port to a
// socket's receive FIFO. Parse failures, no matching socket, and a full
// destination FIFO all result in the mbuf being released back to the
// pool; a full FIFO additionally counts as a drop. Returns the number
// of packets processed (received from the queue), not the number
// successfully delivered.
func (s *Stack) ProcessRxPackets(rxQueue *pmd.RxQueue) int {
	processed := 0

	for i := 0; i < maxPumpBatch; i++ {
		mbuf, err := rxQueue.Recv()
		if err != nil {
			break
		}
		processed++

		pkt, err := wire.ParsePacket(mbuf)
		if err != nil {
			_ = s.pool.Free(mbuf)
			continue
		}

		sock := s.findByPort(pkt.DstAddr().Port())
		if sock == nil {
			_ = s.pool.Free(mbuf)
			continue
		}

		if err := sock.enqueue(mbuf); err != nil {
			s.Stats.TotalDrops.Add(1)
			_ = s.pool.Free(mbuf)
			continue
		}
	}

	return processed
}

// Start flips the stack's running flag and starts every socket.
func (s *Stack) Start() {
	s.running.Store(true)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sock := range s.sockets {
		sock.Start()
	}
}

// Stop flips the stack's running flag off and stops every socket.
func (s *Stack) Stop() {
	s.running.Store(false)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sock := range s.sockets {
		sock.Stop()
	}
}
