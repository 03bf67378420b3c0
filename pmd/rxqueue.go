package pmd

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gopacket/gopacket/pcap"

	"github.com/narwhal-net/xpdk/errs"
	"github.com/narwhal-net/xpdk/memory"
)

// RxQueueStats are free-running counters, safe to read without
// synchronization from any goroutine.
type RxQueueStats struct {
	PacketsRx atomic.Uint64
	BytesRx   atomic.Uint64
	Errors    atomic.Uint64
	Drops     atomic.Uint64
}

// RxQueue polls one capture handle and allocates mbufs from a shared
// pool for received frames. The capture handle is not reentrant, so all
// access is serialized behind a mutex.
type RxQueue struct {
	id      uint16
	mu      sync.Mutex
	capture Capture
	pool    *memory.Manager
	running atomic.Bool

	Stats RxQueueStats
}

// NewRxQueue wraps an already-opened capture handle.
func NewRxQueue(id uint16, capture Capture, pool *memory.Manager) *RxQueue {
	return &RxQueue{id: id, capture: capture, pool: pool}
}

// ID returns the queue's index within its PMD.
func (q *RxQueue) ID() uint16 { return q.id }

// Start flips the queue's running flag. It exists so future drivers can
// arm receive rings; the capture handle is already live once opened.
func (q *RxQueue) Start() { q.running.Store(true) }

// Stop flips the queue's running flag off.
func (q *RxQueue) Stop() { q.running.Store(false) }

// Recv polls the capture handle once. On a timeout it returns
// errs.ErrNoPacket, which is a normal empty-receive signal, not a
// failure. On a frame larger than the mbuf's capacity it frees the
// mbuf and returns a Network-kind error, counted as Errors. On any
// other capture failure it returns an Io-kind error, also counted.
func (q *RxQueue) Recv() (*memory.Mbuf, error) {
	q.mu.Lock()
	data, ci, err := q.capture.ReadPacketData()
	q.mu.Unlock()

	if err != nil {
		if errors.Is(err, pcap.NextErrorTimeoutExpired) {
			return nil, errs.ErrNoPacket
		}
		q.Stats.Errors.Add(1)
		return nil, errs.Wrap(errs.Io, err, "capture read on rx queue %d", q.id)
	}

	mbuf, err := q.pool.Alloc()
	if err != nil {
		q.Stats.Errors.Add(1)
		return nil, errs.Wrap(errs.MemoryAllocation, err, "rx queue %d: alloc mbuf", q.id)
	}

	if len(data) > mbuf.Cap() {
		_ = q.pool.Free(mbuf)
		q.Stats.Errors.Add(1)
		return nil, errs.New(errs.Network, "packet of %d bytes too large for mbuf capacity %d", len(data), mbuf.Cap())
	}

	copy(mbuf.Bytes(), data)
	mbuf.SetLen(len(data))
	mbuf.Timestamp = timestampNanos(ci.Timestamp)
	mbuf.QueueID = q.id

	q.Stats.PacketsRx.Add(1)
	q.Stats.BytesRx.Add(uint64(len(data)))

	return mbuf, nil
}

// Close releases the underlying capture handle.
func (q *RxQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.capture.Close()
}
