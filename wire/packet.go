package wire

import (
	"net/netip"

	"github.com/narwhal-net/xpdk/errs"
	"github.com/narwhal-net/xpdk/memory"
)

// Packet is a zero-copy view over a parsed UDP/IPv4/Ethernet frame
// backed by an mbuf. It does not own the mbuf; callers that hold a
// Packet must still release the underlying mbuf to its pool.
type Packet struct {
	eth        Ethernet
	ip         IPv4
	udp        UDP
	data       []byte
	udpOffset  int
	payloadOff int
}

// ParsePacket validates and views mbuf's contents as an Ethernet/IPv4/UDP
// frame, enforcing the five ordered checks: minimum Ethernet length,
// EtherType 0x0800, minimum IPv4 length, protocol 17 (UDP), and a UDP
// header that fits within the declared IHL offset.
func ParsePacket(mbuf *memory.Mbuf) (Packet, error) {
	data := mbuf.Data()

	if len(data) < EthernetHeaderLen {
		return Packet{}, errs.New(errs.Network, "frame too short for ethernet header: %d bytes", len(data))
	}
	eth := ParseEthernet(data)

	if eth.EtherType() != EtherTypeIPv4 {
		return Packet{}, errs.New(errs.Network, "not an ipv4 frame: ethertype 0x%04x", eth.EtherType())
	}

	if len(data) < EthernetHeaderLen+IPv4HeaderLen {
		return Packet{}, errs.New(errs.Network, "frame too short for ipv4 header: %d bytes", len(data))
	}
	ip := ParseIPv4(data[EthernetHeaderLen:])

	if ip.Protocol() != ProtocolUDP {
		return Packet{}, errs.New(errs.Network, "not a udp packet: protocol %d", ip.Protocol())
	}

	udpOffset := EthernetHeaderLen + ip.HeaderLen()
	if len(data) < udpOffset+UDPHeaderLen {
		return Packet{}, errs.New(errs.Network, "frame too short for udp header: %d bytes", len(data))
	}
	udp := ParseUDP(data[udpOffset:])

	return Packet{
		eth:        eth,
		ip:         ip,
		udp:        udp,
		data:       data,
		udpOffset:  udpOffset,
		payloadOff: udpOffset + UDPHeaderLen,
	}, nil
}

// SrcAddr returns the source address and port in host byte order.
func (p Packet) SrcAddr() netip.AddrPort {
	return netip.AddrPortFrom(p.ip.SrcAddr(), p.udp.SrcPort())
}

// DstAddr returns the destination address and port in host byte order.
func (p Packet) DstAddr() netip.AddrPort {
	return netip.AddrPortFrom(p.ip.DstAddr(), p.udp.DstPort())
}

// SrcMAC returns the frame's source MAC address.
func (p Packet) SrcMAC() MAC { return p.eth.SrcMAC() }

// DstMAC returns the frame's destination MAC address.
func (p Packet) DstMAC() MAC { return p.eth.DstMAC() }

// Payload returns the UDP payload bytes. If the UDP header's declared
// length would run past the end of the frame, Payload returns an empty
// slice rather than failing: a short/garbled length field is data, not
// a parse error.
func (p Packet) Payload() []byte {
	payloadLen := int(p.udp.Length()) - UDPHeaderLen
	if payloadLen < 0 || p.payloadOff+payloadLen > len(p.data) {
		return nil
	}
	return p.data[p.payloadOff : p.payloadOff+payloadLen]
}
