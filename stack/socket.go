// Package stack implements the UDP socket table: per-socket receive
// FIFOs fed by the stack pump, and a send path that assembles outgoing
// frames through a bound TX queue.
package stack

import (
	"net/netip"
	"sync/atomic"

	"github.com/narwhal-net/xpdk/errs"
	"github.com/narwhal-net/xpdk/memory"
	"github.com/narwhal-net/xpdk/pmd"
	"github.com/narwhal-net/xpdk/ring"
	"github.com/narwhal-net/xpdk/wire"
)

// DefaultSocketQueueSize is the receive FIFO capacity created for every
// new socket.
const DefaultSocketQueueSize = 1024

// SocketStats are free-running counters, safe to read without
// synchronization.
type SocketStats struct {
	PacketsRx atomic.Uint64
	BytesRx   atomic.Uint64
	PacketsTx atomic.Uint64
	BytesTx   atomic.Uint64
}

// Socket is a UDP endpoint bound to a local address. Incoming mbufs are
// pushed into its SPSC receive FIFO by the stack pump (the sole
// producer); Recv is the sole consumer.
type Socket struct {
	id        uint16
	localAddr netip.AddrPort

	recvFIFO *ring.SPSC[*memory.Mbuf]

	txQueue *pmd.TxQueue
	srcMAC  wire.MAC
	dstMAC  func(netip.Addr) wire.MAC

	running atomic.Bool

	Stats SocketStats
}

// NewSocket constructs a socket with a fresh receive FIFO of
// DefaultSocketQueueSize.
func NewSocket(id uint16, localAddr netip.AddrPort) *Socket {
	return NewSocketWithQueueSize(id, localAddr, DefaultSocketQueueSize)
}

// NewSocketWithQueueSize constructs a socket whose receive FIFO capacity
// is queueSize, rounded up to the next power of two by ring.NewSPSC.
func NewSocketWithQueueSize(id uint16, localAddr netip.AddrPort, queueSize int) *Socket {
	return &Socket{
		id:        id,
		localAddr: localAddr,
		recvFIFO:  ring.NewSPSC[*memory.Mbuf](queueSize),
	}
}

// ID returns the socket's id within its owning Stack.
func (s *Socket) ID() uint16 { return s.id }

// LocalAddr returns the socket's bound local address.
func (s *Socket) LocalAddr() netip.AddrPort { return s.localAddr }

// BindTX attaches a TX queue and the addressing information needed to
// assemble outgoing frames: this socket's own hardware address, and a
// resolver from a destination IP to its hardware address. This stack
// does not implement ARP; resolving dstMAC is the caller's
// responsibility (e.g. a static neighbor table, or the PMD's own
// hardware address for point-to-point/loopback setups).
func (s *Socket) BindTX(txQueue *pmd.TxQueue, srcMAC wire.MAC, dstMAC func(netip.Addr) wire.MAC) {
	s.txQueue = txQueue
	s.srcMAC = srcMAC
	s.dstMAC = dstMAC
}

// enqueue pushes an already-parsed mbuf into the receive FIFO. Called
// only by the stack pump. Returns ring.Full if the FIFO has no room.
func (s *Socket) enqueue(mbuf *memory.Mbuf) error {
	return s.recvFIFO.Push(mbuf)
}

// Recv pops one mbuf from the receive FIFO, parses it, and returns the
// packet view plus source/destination addresses. Returns errs.ErrNoPacket
// if the FIFO is empty. Ownership of the mbuf transfers to the caller,
// who must release it to the pool once done with the packet view.
func (s *Socket) Recv() (wire.Packet, *memory.Mbuf, error) {
	mbuf, err := s.recvFIFO.Pop()
	if err != nil {
		return wire.Packet{}, nil, errs.ErrNoPacket
	}

	pkt, err := wire.ParsePacket(mbuf)
	if err != nil {
		return wire.Packet{}, mbuf, err
	}

	s.Stats.PacketsRx.Add(1)
	s.Stats.BytesRx.Add(uint64(len(pkt.Payload())))
	return pkt, mbuf, nil
}

// RecvBatch fills out with up to len(out) packets, stopping at the
// first failure (including a normal empty FIFO) and returning the
// count completed.
func (s *Socket) RecvBatch(out []wire.Packet, mbufs []*memory.Mbuf) (int, error) {
	n := min(len(out), len(mbufs))
	for i := 0; i < n; i++ {
		pkt, mbuf, err := s.Recv()
		if err != nil {
			return i, nil
		}
		out[i] = pkt
		mbufs[i] = mbuf
	}
	return n, nil
}

// Send assembles an Ethernet/IPv4/UDP frame carrying data to dst and
// transmits it through the bound TX queue. Requires a prior BindTX;
// otherwise fails with InvalidConfig.
func (s *Socket) Send(pool *memory.Manager, dst netip.AddrPort, data []byte) error {
	if s.txQueue == nil {
		return errs.New(errs.InvalidConfig, "socket %d: send without a bound tx queue", s.id)
	}

	mbuf, err := pool.Alloc()
	if err != nil {
		return err
	}

	dstMAC := s.dstMAC(dst.Addr())
	if err := wire.BuildFrame(mbuf, s.srcMAC, dstMAC, s.localAddr, dst, data); err != nil {
		_ = pool.Free(mbuf)
		return err
	}

	if err := s.txQueue.Send(mbuf); err != nil {
		_ = pool.Free(mbuf)
		return err
	}
	_ = pool.Free(mbuf)

	s.Stats.PacketsTx.Add(1)
	s.Stats.BytesTx.Add(uint64(len(data)))
	return nil
}

// SendBatch sends each (dst, data) pair in order, stopping at the first
// failure and returning the count completed.
func (s *Socket) SendBatch(pool *memory.Manager, dsts []netip.AddrPort, datas [][]byte) (int, error) {
	n := min(len(dsts), len(datas))
	for i := 0; i < n; i++ {
		if err := s.Send(pool, dsts[i], datas[i]); err != nil {
			return i, nil
		}
	}
	return n, nil
}

// Start flips the socket's running flag.
func (s *Socket) Start() { s.running.Store(true) }

// Stop flips the socket's running flag off.
func (s *Socket) Stop() { s.running.Store(false) }
