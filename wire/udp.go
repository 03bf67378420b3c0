package wire

import "encoding/binary"

const UDPHeaderLen = 8

// UDP is a non-owning view over a UDP header living at the start of a
// byte slice.
type UDP struct {
	raw []byte
}

// ParseUDP wraps raw as a UDP header view without validating length.
func ParseUDP(raw []byte) UDP {
	return UDP{raw: raw}
}

func (h UDP) SrcPort() uint16 {
	return binary.BigEndian.Uint16(h.raw[0:2])
}

func (h UDP) DstPort() uint16 {
	return binary.BigEndian.Uint16(h.raw[2:4])
}

// Length returns the UDP length field: header plus payload, in bytes.
func (h UDP) Length() uint16 {
	return binary.BigEndian.Uint16(h.raw[4:6])
}

func (h UDP) Checksum() uint16 {
	return binary.BigEndian.Uint16(h.raw[6:8])
}

// PutUDP writes a UDP header into dst (at least UDPHeaderLen bytes) for
// a payload of payloadLen bytes. The checksum field is left zero, which
// is valid for IPv4/UDP (checksum is optional over IPv4).
func PutUDP(dst []byte, srcPort, dstPort uint16, payloadLen int) {
	binary.BigEndian.PutUint16(dst[0:2], srcPort)
	binary.BigEndian.PutUint16(dst[2:4], dstPort)
	binary.BigEndian.PutUint16(dst[4:6], uint16(UDPHeaderLen+payloadLen))
	binary.BigEndian.PutUint16(dst[6:8], 0)
}
