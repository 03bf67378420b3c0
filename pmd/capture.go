// Package pmd implements a poll-mode driver over libpcap capture
// handles: promiscuous RX/TX queues feeding and draining a shared mbuf
// pool.
package pmd

import (
	"time"

	"github.com/gopacket/gopacket"
)

// Capture abstracts the subset of a *pcap.Handle that RxQueue and
// TxQueue need, so they can be exercised in tests without a real
// network interface.
type Capture interface {
	ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error)
	WritePacketData(data []byte) error
	Close()
}

// timestampNanos converts a capture timestamp to the nanosecond
// convention used by Mbuf.Timestamp (tv_sec*1e9 + tv_usec*1e3).
func timestampNanos(t time.Time) int64 {
	return t.UnixNano()
}
