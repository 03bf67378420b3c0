package wire

import (
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narwhal-net/xpdk/memory"
)

// buildTestFrame serializes an Ethernet/IPv4/UDP frame with gopacket's
// layer serializer, narrowed to exactly the layer stack this package
// parses rather than a generic any-layers helper.
func buildTestFrame(t *testing.T, srcMAC, dstMAC MAC, srcIP, dstIP netip.Addr, protocol uint8, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       srcMAC[:],
		DstMAC:       dstMAC[:],
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocol(protocol),
		SrcIP:    srcIP.AsSlice(),
		DstIP:    dstIP.AsSlice(),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(srcPort),
		DstPort: layers.UDPPort(dstPort),
	}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func mbufWith(t *testing.T, data []byte) *memory.Mbuf {
	t.Helper()
	a := memory.NewHugePageAllocator()
	pool, err := memory.NewPool("wire-test", 0, 4, 2048, a)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	mb, err := pool.Alloc()
	require.NoError(t, err)
	require.NoError(t, mb.Append(data))
	return mb
}

func TestParsePacket_HappyPath(t *testing.T) {
	srcMAC := MAC{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC := MAC{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	srcIP := netip.MustParseAddr("192.168.1.1")
	dstIP := netip.MustParseAddr("192.168.1.2")
	payload := []byte("ABCDE")

	frame := buildTestFrame(t, srcMAC, dstMAC, srcIP, dstIP, ProtocolUDP, 8080, 53, payload)
	mb := mbufWith(t, frame)

	pkt, err := ParsePacket(mb)
	require.NoError(t, err)

	assert.Equal(t, netip.AddrPortFrom(srcIP, 8080), pkt.SrcAddr())
	assert.Equal(t, netip.AddrPortFrom(dstIP, 53), pkt.DstAddr())
	assert.Equal(t, payload, pkt.Payload())
}

func TestParsePacket_RejectsNonUDP(t *testing.T) {
	srcMAC := MAC{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC := MAC{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	srcIP := netip.MustParseAddr("192.168.1.1")
	dstIP := netip.MustParseAddr("192.168.1.2")

	eth := &layers.Ethernet{SrcMAC: srcMAC[:], DstMAC: dstMAC[:], EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: srcIP.AsSlice(), DstIP: dstIP.AsSlice()}
	tcp := &layers.TCP{SrcPort: 8080, DstPort: 53}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp))

	mb := mbufWith(t, buf.Bytes())
	_, err := ParsePacket(mb)
	require.Error(t, err)
}

func TestParsePacket_EmptyFrameIsShort(t *testing.T) {
	mb := mbufWith(t, nil)
	_, err := ParsePacket(mb)
	require.Error(t, err)
}

func TestParsePacket_PayloadLengthExceedsFrame_ReturnsEmpty(t *testing.T) {
	// Build a valid frame then truncate the mbuf so the UDP length field
	// claims more payload than is actually present.
	srcMAC := MAC{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC := MAC{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	srcIP := netip.MustParseAddr("10.0.0.1")
	dstIP := netip.MustParseAddr("10.0.0.2")
	frame := buildTestFrame(t, srcMAC, dstMAC, srcIP, dstIP, ProtocolUDP, 1, 2, []byte("hello world"))

	truncated := frame[:EthernetHeaderLen+IPv4HeaderLen+UDPHeaderLen+2]
	mb := mbufWith(t, truncated)

	pkt, err := ParsePacket(mb)
	require.NoError(t, err)
	assert.Empty(t, pkt.Payload())
}

func TestBuildFrame_RoundTripsThroughParsePacket(t *testing.T) {
	a := memory.NewHugePageAllocator()
	pool, err := memory.NewPool("build-test", 0, 2, 2048, a)
	require.NoError(t, err)
	defer pool.Close()

	mb, err := pool.Alloc()
	require.NoError(t, err)

	srcMAC := MAC{1, 2, 3, 4, 5, 6}
	dstMAC := MAC{6, 5, 4, 3, 2, 1}
	srcAddr := netip.AddrPortFrom(netip.MustParseAddr("172.16.0.1"), 49152)
	dstAddr := netip.AddrPortFrom(netip.MustParseAddr("172.16.0.2"), 9000)
	payload := []byte("round-trip")

	require.NoError(t, BuildFrame(mb, srcMAC, dstMAC, srcAddr, dstAddr, payload))

	pkt, err := ParsePacket(mb)
	require.NoError(t, err)
	assert.Equal(t, srcAddr, pkt.SrcAddr())
	assert.Equal(t, dstAddr, pkt.DstAddr())
	assert.Equal(t, payload, pkt.Payload())
	assert.Equal(t, srcMAC, pkt.SrcMAC())
	assert.Equal(t, dstMAC, pkt.DstMAC())
}

// TestBuildFrame_LayersMatchExpected decodes the frame written by BuildFrame
// with gopacket and diffs its layers against a frame assembled directly from
// layers.Ethernet/IPv4/UDP, the same structural-comparison approach the
// dataplane module tests use for packet assertions.
func TestBuildFrame_LayersMatchExpected(t *testing.T) {
	a := memory.NewHugePageAllocator()
	pool, err := memory.NewPool("cmp-test", 0, 2, 2048, a)
	require.NoError(t, err)
	defer pool.Close()

	mb, err := pool.Alloc()
	require.NoError(t, err)

	srcMAC := MAC{1, 2, 3, 4, 5, 6}
	dstMAC := MAC{6, 5, 4, 3, 2, 1}
	srcAddr := netip.AddrPortFrom(netip.MustParseAddr("172.16.0.1"), 49152)
	dstAddr := netip.AddrPortFrom(netip.MustParseAddr("172.16.0.2"), 9000)
	payload := []byte("cmp-round-trip")

	require.NoError(t, BuildFrame(mb, srcMAC, dstMAC, srcAddr, dstAddr, payload))
	got := gopacket.NewPacket(mb.Data(), layers.LayerTypeEthernet, gopacket.Default)

	expectedFrame := buildTestFrame(t, srcMAC, dstMAC, srcAddr.Addr(), dstAddr.Addr(), ProtocolUDP, srcAddr.Port(), dstAddr.Port(), payload)
	// BuildFrame leaves the UDP checksum zero (optional over IPv4, see
	// PutUDP), so the reference frame's computed UDP checksum is cleared.
	udpChecksumOff := EthernetHeaderLen + IPv4HeaderLen + 6
	expectedFrame[udpChecksumOff], expectedFrame[udpChecksumOff+1] = 0, 0
	want := gopacket.NewPacket(expectedFrame, layers.LayerTypeEthernet, gopacket.Default)

	diff := cmp.Diff(want.Layers(), got.Layers(),
		cmpopts.IgnoreUnexported(
			layers.Ethernet{},
			layers.IPv4{},
			layers.UDP{},
		),
	)
	require.Empty(t, diff, "built frame layers differ from expected")
}
