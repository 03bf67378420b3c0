package wire

import (
	"encoding/binary"
	"net/netip"
)

const (
	IPv4HeaderLen  = 20
	ProtocolUDP    = 17
	defaultTTL     = 64
	ipv4VersionIHL = 0x45 // version 4, IHL 5 (20 bytes, no options)
)

// IPv4 is a non-owning view over an IPv4 header (without options)
// living at the start of a byte slice.
type IPv4 struct {
	raw []byte
}

// ParseIPv4 wraps raw as an IPv4 header view without validating length.
func ParseIPv4(raw []byte) IPv4 {
	return IPv4{raw: raw}
}

// IHL returns the header length in 32-bit words, taken from the low
// nibble of the first byte.
func (h IPv4) IHL() int {
	return int(h.raw[0] & 0x0F)
}

// HeaderLen returns IHL() * 4, the header length in bytes.
func (h IPv4) HeaderLen() int {
	return h.IHL() * 4
}

func (h IPv4) TotalLength() uint16 {
	return binary.BigEndian.Uint16(h.raw[2:4])
}

func (h IPv4) Protocol() uint8 {
	return h.raw[9]
}

func (h IPv4) SrcAddr() netip.Addr {
	var b [4]byte
	copy(b[:], h.raw[12:16])
	return netip.AddrFrom4(b)
}

func (h IPv4) DstAddr() netip.Addr {
	var b [4]byte
	copy(b[:], h.raw[16:20])
	return netip.AddrFrom4(b)
}

// PutIPv4 writes a fixed-length (no options) IPv4 header into dst (at
// least IPv4HeaderLen bytes) for a UDP payload of payloadLen bytes,
// including the ones'-complement header checksum.
func PutIPv4(dst []byte, src, dstAddr netip.Addr, payloadLen int) {
	dst[0] = ipv4VersionIHL
	dst[1] = 0 // TOS
	binary.BigEndian.PutUint16(dst[2:4], uint16(IPv4HeaderLen+payloadLen))
	binary.BigEndian.PutUint16(dst[4:6], 0) // identification
	binary.BigEndian.PutUint16(dst[6:8], 0) // flags/fragment offset
	dst[8] = defaultTTL
	dst[9] = ProtocolUDP
	binary.BigEndian.PutUint16(dst[10:12], 0) // checksum, filled in below

	srcBytes := src.As4()
	dstBytes := dstAddr.As4()
	copy(dst[12:16], srcBytes[:])
	copy(dst[16:20], dstBytes[:])

	var sum uint32
	for i := 0; i < IPv4HeaderLen; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(dst[i : i+2]))
	}
	for sum > 0xFFFF {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	binary.BigEndian.PutUint16(dst[10:12], ^uint16(sum))
}
