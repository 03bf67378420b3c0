// Command xpdk-echo runs a UDP echo server: every datagram received on
// a bound port is sent back to its source address.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/narwhal-net/xpdk"
	"github.com/narwhal-net/xpdk/internal/logging"
	"github.com/narwhal-net/xpdk/stack"
	"github.com/narwhal-net/xpdk/wire"
)

var cmd struct {
	ConfigPath string
	Port       uint16
}

var rootCmd = &cobra.Command{
	Use:   "xpdk-echo",
	Short: "Run a UDP echo server over a poll-mode driven interface",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run(cmd.ConfigPath, cmd.Port)
	},
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file (required)")
	rootCmd.Flags().Uint16VarP(&cmd.Port, "port", "p", 8080, "UDP port to listen on")
	rootCmd.MarkFlagRequired("config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, port uint16) error {
	log, _, err := logging.Init(logging.DefaultConfig())
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	cfg, err := xpdk.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, err := xpdk.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize xpdk: %w", err)
	}
	defer ctx.Close()

	local := netip.AddrPortFrom(netip.IPv4Unspecified(), port)
	socketID := ctx.Stack.CreateSocket(local)
	socket := ctx.Stack.GetSocket(socketID)

	neighbors := newNeighborTable()
	srcMAC := ctx.PMD.HardwareAddr()
	socket.BindTX(ctx.PMD.TxQueue(0), srcMAC, neighbors.resolve)

	log.Infow("echo server listening", "interface", cfg.Interface, "local_addr", local)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg, runCtx := errgroup.WithContext(runCtx)
	wg.Go(func() error {
		return ctx.Run(runCtx)
	})
	wg.Go(func() error {
		return echoLoop(runCtx, ctx, socket, neighbors, log)
	})
	wg.Go(func() error {
		sig, err := waitInterrupted(runCtx)
		if err != nil {
			return err
		}
		log.Infow("caught signal, shutting down", "signal", sig)
		cancel()
		return nil
	})

	if err := wg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// echoLoop drains the bound socket's receive FIFO and writes every
// payload back to its source, learning the source's hardware address
// along the way since this stack does not implement ARP.
func echoLoop(ctx context.Context, xc *xpdk.Context, socket *stack.Socket, neighbors *neighborTable, log *zap.SugaredLogger) error {
	var packets, bytesRx, bytesTx uint64

	for {
		select {
		case <-ctx.Done():
			log.Infow("echo loop stopping", "packets", packets, "bytes_rx", bytesRx, "bytes_tx", bytesTx)
			return nil
		default:
		}

		pkt, mbuf, err := socket.Recv()
		if err != nil {
			time.Sleep(time.Millisecond)
			continue
		}

		src := pkt.SrcAddr()
		neighbors.learn(src.Addr(), pkt.SrcMAC())
		payload := pkt.Payload()
		bytesRx += uint64(len(payload))

		if err := socket.Send(xc.Memory, src, payload); err != nil {
			log.Warnw("echo send failed", "dst", src, "error", err)
		} else {
			bytesTx += uint64(len(payload))
		}
		packets++

		_ = xc.Memory.Free(mbuf)
	}
}

func waitInterrupted(ctx context.Context) (os.Signal, error) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(ch)

	select {
	case s := <-ch:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// neighborTable is a minimal learned IP->MAC map, populated from the
// source address of every packet received, standing in for the ARP
// resolution this stack doesn't implement.
type neighborTable struct {
	mu   sync.RWMutex
	byIP map[netip.Addr]wire.MAC
}

func newNeighborTable() *neighborTable {
	return &neighborTable{byIP: make(map[netip.Addr]wire.MAC)}
}

func (n *neighborTable) learn(addr netip.Addr, mac wire.MAC) {
	n.mu.Lock()
	n.byIP[addr] = mac
	n.mu.Unlock()
}

func (n *neighborTable) resolve(addr netip.Addr) wire.MAC {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.byIP[addr]
}
