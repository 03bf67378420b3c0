// Package wire implements zero-copy Ethernet/IPv4/UDP header views over
// mbuf-backed byte slices, and assembly of outgoing frames.
package wire

import "encoding/binary"

const (
	macLen           = 6
	EthernetHeaderLen = 2*macLen + 2
	EtherTypeIPv4    = 0x0800
)

// MAC is a 6-byte hardware address.
type MAC [6]byte

// Ethernet is a non-owning view over an Ethernet II header living at the
// start of a byte slice. It never copies; all accessors read directly
// from the backing slice in network byte order.
type Ethernet struct {
	raw []byte
}

// ParseEthernet wraps raw as an Ethernet header view without validating
// length; callers must ensure raw is at least EthernetHeaderLen bytes.
func ParseEthernet(raw []byte) Ethernet {
	return Ethernet{raw: raw}
}

func (e Ethernet) DstMAC() MAC {
	var m MAC
	copy(m[:], e.raw[0:macLen])
	return m
}

func (e Ethernet) SrcMAC() MAC {
	var m MAC
	copy(m[:], e.raw[macLen:2*macLen])
	return m
}

func (e Ethernet) EtherType() uint16 {
	return binary.BigEndian.Uint16(e.raw[2*macLen : 2*macLen+2])
}

// PutEthernet writes an Ethernet II header into dst (which must be at
// least EthernetHeaderLen bytes) in network byte order.
func PutEthernet(dst []byte, src, dstMAC MAC, etherType uint16) {
	copy(dst[0:macLen], dstMAC[:])
	copy(dst[macLen:2*macLen], src[:])
	binary.BigEndian.PutUint16(dst[2*macLen:2*macLen+2], etherType)
}
