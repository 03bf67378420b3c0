package wire

import (
	"net/netip"

	"github.com/narwhal-net/xpdk/errs"
	"github.com/narwhal-net/xpdk/memory"
)

// BuildFrame assembles an Ethernet+IPv4+UDP frame carrying payload into
// mbuf, resolving the outgoing-frame-assembly open question (see
// DESIGN.md): the socket supplies its own resolved source MAC/address
// and the destination's MAC (from a caller-supplied resolver, since
// this stack does not implement ARP) and BuildFrame does the byte
// layout. mbuf must be freshly allocated (zero length).
func BuildFrame(mbuf *memory.Mbuf, srcMAC, dstMAC MAC, srcAddr netip.AddrPort, dstAddr netip.AddrPort, payload []byte) error {
	total := EthernetHeaderLen + IPv4HeaderLen + UDPHeaderLen + len(payload)
	if total > mbuf.Cap() {
		return errs.New(errs.Network, "frame of %d bytes exceeds mbuf capacity %d", total, mbuf.Cap())
	}

	buf := mbuf.Bytes()[:total]

	PutEthernet(buf, srcMAC, dstMAC, EtherTypeIPv4)
	PutIPv4(buf[EthernetHeaderLen:], srcAddr.Addr(), dstAddr.Addr(), UDPHeaderLen+len(payload))
	PutUDP(buf[EthernetHeaderLen+IPv4HeaderLen:], srcAddr.Port(), dstAddr.Port(), len(payload))
	copy(buf[EthernetHeaderLen+IPv4HeaderLen+UDPHeaderLen:], payload)

	mbuf.SetLen(total)
	return nil
}
