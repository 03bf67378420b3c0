package pmd

import (
	"sync"
	"sync/atomic"

	"github.com/narwhal-net/xpdk/errs"
	"github.com/narwhal-net/xpdk/memory"
)

// TxQueueStats are free-running counters, safe to read without
// synchronization from any goroutine.
type TxQueueStats struct {
	PacketsTx atomic.Uint64
	BytesTx   atomic.Uint64
	Errors    atomic.Uint64
	Drops     atomic.Uint64
}

// TxQueue writes mbufs out through one capture handle.
type TxQueue struct {
	id      uint16
	mu      sync.Mutex
	capture Capture
	running atomic.Bool

	Stats TxQueueStats
}

// NewTxQueue wraps an already-opened capture handle.
func NewTxQueue(id uint16, capture Capture) *TxQueue {
	return &TxQueue{id: id, capture: capture}
}

// ID returns the queue's index within its PMD.
func (q *TxQueue) ID() uint16 { return q.id }

// Start flips the queue's running flag.
func (q *TxQueue) Start() { q.running.Store(true) }

// Stop flips the queue's running flag off.
func (q *TxQueue) Stop() { q.running.Store(false) }

// Send writes mbuf's data to the capture handle. The caller retains
// ownership of mbuf; Send never frees it.
func (q *TxQueue) Send(mbuf *memory.Mbuf) error {
	if mbuf == nil {
		return errs.New(errs.Network, "tx queue %d: nil mbuf", q.id)
	}

	q.mu.Lock()
	err := q.capture.WritePacketData(mbuf.Data())
	q.mu.Unlock()

	if err != nil {
		q.Stats.Errors.Add(1)
		return errs.Wrap(errs.Io, err, "tx queue %d: send", q.id)
	}

	q.Stats.PacketsTx.Add(1)
	q.Stats.BytesTx.Add(uint64(mbuf.Len()))
	return nil
}

// Close releases the underlying capture handle.
func (q *TxQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.capture.Close()
}
