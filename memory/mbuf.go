// Package memory implements the mbuf pool, huge-page allocator, and
// multi-pool manager that back every packet buffer in the data plane.
package memory

import "github.com/narwhal-net/xpdk/errs"

// PacketType classifies the protocol layers identified for an mbuf's
// contents. It starts at Unknown; wire.ParsePacket does not set it, so it
// changes only when a caller assigns it.
type PacketType int

const (
	PacketUnknown PacketType = iota
	PacketEthernet
	PacketIPv4
	PacketIPv6
	PacketUDP
	PacketTCP
	PacketICMP
)

func (t PacketType) String() string {
	switch t {
	case PacketEthernet:
		return "ethernet"
	case PacketIPv4:
		return "ipv4"
	case PacketIPv6:
		return "ipv6"
	case PacketUDP:
		return "udp"
	case PacketTCP:
		return "tcp"
	case PacketICMP:
		return "icmp"
	default:
		return "unknown"
	}
}

// OffloadFlags records which hardware/driver offloads apply to an mbuf's
// contents.
type OffloadFlags uint32

const (
	OffloadChecksum           OffloadFlags = 1 << iota // checksum already validated/computed
	OffloadTCPSegmentation                              // TSO applied
	OffloadUDPSegmentation                              // UFO applied
	OffloadRSSHash                                      // rss_hash is valid
	OffloadTimestamp                                    // hardware timestamp is valid
)

func (f OffloadFlags) Has(flag OffloadFlags) bool { return f&flag != 0 }

// Mbuf is a fixed-capacity packet buffer. Its backing array is carved
// out of a pool's huge-page-backed data region; the Mbuf struct itself
// is ordinary Go-managed memory (see DESIGN.md for why the struct array
// is not itself placed in the mmap region). Mbuf is a move-only handle
// in spirit: once handed to a ring buffer or socket, the sender must not
// touch it again until it comes back through Pool.Free.
type Mbuf struct {
	buf []byte // fixed-capacity data region, len(buf) == buf_size

	length       int
	PacketType   PacketType
	OffloadFlags OffloadFlags
	RSSHash      uint32
	Timestamp    int64 // tv_sec*1e9 + tv_usec*1e3, nanoseconds
	QueueID      uint16

	poolID uint32
	slot   uint32
}

// Data returns the valid bytes currently stored in the mbuf.
func (m *Mbuf) Data() []byte { return m.buf[:m.length] }

// Len returns the number of valid bytes.
func (m *Mbuf) Len() int { return m.length }

// Cap returns the mbuf's fixed buffer capacity.
func (m *Mbuf) Cap() int { return len(m.buf) }

// SetLen overrides the valid-length marker directly, used by RX paths
// that write into the backing array out of band and then publish the
// length in one step. n must not exceed Cap().
func (m *Mbuf) SetLen(n int) {
	if n < 0 || n > len(m.buf) {
		panic("memory: SetLen out of range")
	}
	m.length = n
}

// Bytes exposes the full fixed-capacity backing array for direct writes
// (e.g. a capture read writing frame bytes before calling SetLen).
func (m *Mbuf) Bytes() []byte { return m.buf }

// PoolID reports which pool this mbuf was allocated from, used by
// Manager.Free to route it back without forcing every free through a
// single pool.
func (m *Mbuf) PoolID() uint32 { return m.poolID }

// Append copies data onto the end of the valid region. It fails with a
// MemoryAllocation-kind error and leaves the mbuf unchanged if the
// combined length would exceed capacity.
func (m *Mbuf) Append(data []byte) error {
	if m.length+len(data) > len(m.buf) {
		return errs.New(errs.MemoryAllocation, "mbuf overflow: %d + %d > %d", m.length, len(data), len(m.buf))
	}
	copy(m.buf[m.length:], data)
	m.length += len(data)
	return nil
}

// Reset clears the length and metadata fields to their zero state. The
// backing array, pool id and slot are kept. Called by Pool.Free before
// the mbuf is returned to the freelist.
func (m *Mbuf) Reset() {
	m.length = 0
	m.PacketType = PacketUnknown
	m.OffloadFlags = 0
	m.RSSHash = 0
	m.Timestamp = 0
	m.QueueID = 0
}
