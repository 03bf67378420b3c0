package pmd

import (
	"errors"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/pcap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narwhal-net/xpdk/errs"
	"github.com/narwhal-net/xpdk/memory"
)

// fakeCapture is a Capture that replays a canned set of packets and
// records writes, used so RxQueue/TxQueue can be tested without a real
// network interface.
type fakeCapture struct {
	packets [][]byte
	pos     int

	writes [][]byte
	closed bool
}

func (f *fakeCapture) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	if f.pos >= len(f.packets) {
		return nil, gopacket.CaptureInfo{}, pcap.NextErrorTimeoutExpired
	}
	data := f.packets[f.pos]
	f.pos++
	return data, gopacket.CaptureInfo{Timestamp: time.Unix(0, 0), CaptureLength: len(data), Length: len(data)}, nil
}

func (f *fakeCapture) WritePacketData(data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	f.writes = append(f.writes, cp)
	return nil
}

func (f *fakeCapture) Close() { f.closed = true }

type failingCapture struct{}

func (failingCapture) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	return nil, gopacket.CaptureInfo{}, errors.New("device gone")
}
func (failingCapture) WritePacketData([]byte) error { return errors.New("device gone") }
func (failingCapture) Close()                       {}

func newTestManager(t *testing.T, n int) *memory.Manager {
	t.Helper()
	m, err := memory.NewManager(1, n, memory.NewHugePageAllocator())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestRxQueue_RecvTimeoutIsNoPacket(t *testing.T) {
	fc := &fakeCapture{}
	q := NewRxQueue(0, fc, newTestManager(t, 4))

	_, err := q.Recv()
	require.ErrorIs(t, err, errs.ErrNoPacket)
}

func TestRxQueue_RecvCopiesFrameAndSetsMetadata(t *testing.T) {
	frame := []byte{1, 2, 3, 4, 5}
	fc := &fakeCapture{packets: [][]byte{frame}}
	q := NewRxQueue(3, fc, newTestManager(t, 4))

	mb, err := q.Recv()
	require.NoError(t, err)
	assert.Equal(t, frame, mb.Data())
	assert.EqualValues(t, 3, mb.QueueID)
	assert.EqualValues(t, 1, q.Stats.PacketsRx.Load())
	assert.EqualValues(t, len(frame), q.Stats.BytesRx.Load())
}

func TestRxQueue_RecvFrameTooLargeFreesMbufAndCountsError(t *testing.T) {
	bigFrame := make([]byte, memory.DefaultMbufBufSize+1)
	fc := &fakeCapture{packets: [][]byte{bigFrame}}
	mgr := newTestManager(t, 1)
	q := NewRxQueue(0, fc, mgr)

	_, err := q.Recv()
	require.Error(t, err)
	assert.EqualValues(t, 1, q.Stats.Errors.Load())

	// the mbuf must have been returned to the pool, not leaked
	mb, err := mgr.Alloc()
	require.NoError(t, err)
	require.NotNil(t, mb)
}

func TestRxQueue_RecvCaptureErrorIsCounted(t *testing.T) {
	q := NewRxQueue(0, failingCapture{}, newTestManager(t, 1))

	_, err := q.Recv()
	require.Error(t, err)
	assert.EqualValues(t, 1, q.Stats.Errors.Load())
}

func TestTxQueue_SendWritesMbufData(t *testing.T) {
	fc := &fakeCapture{}
	q := NewTxQueue(0, fc)

	mgr := newTestManager(t, 1)
	mb, err := mgr.Alloc()
	require.NoError(t, err)
	require.NoError(t, mb.Append([]byte("payload")))

	require.NoError(t, q.Send(mb))
	require.Len(t, fc.writes, 1)
	assert.Equal(t, "payload", string(fc.writes[0]))
	assert.EqualValues(t, 1, q.Stats.PacketsTx.Load())
}

func TestTxQueue_SendRejectsNil(t *testing.T) {
	q := NewTxQueue(0, &fakeCapture{})
	require.Error(t, q.Send(nil))
}

func TestTxQueue_SendFailureIsCounted(t *testing.T) {
	q := NewTxQueue(0, failingCapture{})
	mgr := newTestManager(t, 1)
	mb, err := mgr.Alloc()
	require.NoError(t, err)

	require.Error(t, q.Send(mb))
	assert.EqualValues(t, 1, q.Stats.Errors.Load())
}
