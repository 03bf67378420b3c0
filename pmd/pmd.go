package pmd

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gopacket/gopacket/pcap"
	"github.com/vishvananda/netlink"
	"go.uber.org/multierr"

	"github.com/narwhal-net/xpdk/errs"
	"github.com/narwhal-net/xpdk/memory"
)

const (
	snapLen        = 2048
	captureTimeout = time.Millisecond
	openRetries    = 5
)

// PMD is a poll-mode driver over one network interface: a set of RX
// queues and a set of TX queues, all sharing one memory manager.
type PMD struct {
	ifaceName string
	link      netlink.Link

	pool *memory.Manager

	rxQueues []*RxQueue
	txQueues []*TxQueue
}

// Options configure how a PMD opens its capture handles.
type Options struct {
	Interface    string
	RxQueueCount int
	TxQueueCount int
}

// New resolves ifaceName via netlink, opens RxQueueCount promiscuous RX
// capture handles and TxQueueCount TX capture handles against it, and
// wraps them around pool. Interface resolution failures and capture-open
// failures (after retry) are InvalidConfig/Io errors respectively.
func New(opts Options, pool *memory.Manager) (*PMD, error) {
	link, err := netlink.LinkByName(opts.Interface)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidConfig, err, "interface %q not found", opts.Interface)
	}

	p := &PMD{ifaceName: opts.Interface, link: link, pool: pool}

	for i := 0; i < opts.RxQueueCount; i++ {
		handle, err := openCapture(opts.Interface)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.rxQueues = append(p.rxQueues, NewRxQueue(uint16(i), handle, pool))
	}

	for i := 0; i < opts.TxQueueCount; i++ {
		handle, err := openCapture(opts.Interface)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.txQueues = append(p.txQueues, NewTxQueue(uint16(i), handle))
	}

	return p, nil
}

// openCapture opens a promiscuous live capture handle, retrying a
// bounded number of times: a freshly-created interface (e.g. inside a
// test network namespace) may not be immediately capturable.
func openCapture(iface string) (*pcap.Handle, error) {
	op := func() (*pcap.Handle, error) {
		h, err := pcap.OpenLive(iface, snapLen, true, captureTimeout)
		if err != nil {
			return nil, errs.Wrap(errs.Io, err, "open capture on %q", iface)
		}
		return h, nil
	}

	h, err := backoff.Retry(context.Background(), op, backoff.WithMaxTries(openRetries))
	if err != nil {
		return nil, err
	}
	return h, nil
}

// HardwareAddr returns the resolved interface's hardware address, used
// by the UDP stack when assembling outgoing Ethernet frames.
func (p *PMD) HardwareAddr() [6]byte {
	var mac [6]byte
	copy(mac[:], p.link.Attrs().HardwareAddr)
	return mac
}

// RxQueue returns the RX queue at index, or nil if out of range.
func (p *PMD) RxQueue(index int) *RxQueue {
	if index < 0 || index >= len(p.rxQueues) {
		return nil
	}
	return p.rxQueues[index]
}

// TxQueue returns the TX queue at index, or nil if out of range.
func (p *PMD) TxQueue(index int) *TxQueue {
	if index < 0 || index >= len(p.txQueues) {
		return nil
	}
	return p.txQueues[index]
}

// RxQueueCount reports how many RX queues this PMD opened.
func (p *PMD) RxQueueCount() int { return len(p.rxQueues) }

// TxQueueCount reports how many TX queues this PMD opened.
func (p *PMD) TxQueueCount() int { return len(p.txQueues) }

// Pool returns the shared memory manager backing this PMD's RX queues.
func (p *PMD) Pool() *memory.Manager { return p.pool }

// Start flips every queue's running flag.
func (p *PMD) Start() error {
	for _, q := range p.rxQueues {
		q.Start()
	}
	for _, q := range p.txQueues {
		q.Start()
	}
	return nil
}

// Stop flips every queue's running flag off.
func (p *PMD) Stop() error {
	for _, q := range p.rxQueues {
		q.Stop()
	}
	for _, q := range p.txQueues {
		q.Stop()
	}
	return nil
}

// Close shuts down every capture handle, aggregating any close errors.
func (p *PMD) Close() error {
	var err error
	for _, q := range p.rxQueues {
		err = multierr.Append(err, safeClose(q.Close))
	}
	for _, q := range p.txQueues {
		err = multierr.Append(err, safeClose(q.Close))
	}
	return err
}

func safeClose(closeFn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.Io, "panic closing capture handle: %v", r)
		}
	}()
	closeFn()
	return nil
}
