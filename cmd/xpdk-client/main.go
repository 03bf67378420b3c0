// Command xpdk-client sends a configurable burst of UDP datagrams to a
// destination and reports how many round trips completed.
package main

import (
	"fmt"
	"net/netip"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/narwhal-net/xpdk"
	"github.com/narwhal-net/xpdk/internal/logging"
	"github.com/narwhal-net/xpdk/stack"
	"github.com/narwhal-net/xpdk/wire"
)

var cmd struct {
	ConfigPath string
	LocalPort  uint16
	ServerAddr string
	Count      int
	PayloadLen int
	DstMAC     string
	Timeout    time.Duration
}

var rootCmd = &cobra.Command{
	Use:   "xpdk-client <server-ip:port>",
	Short: "Send a burst of UDP datagrams and report completions",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cmd.ServerAddr = args[0]
		return run()
	},
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file (required)")
	rootCmd.Flags().Uint16VarP(&cmd.LocalPort, "local-port", "l", 0, "Local UDP port to bind")
	rootCmd.Flags().IntVarP(&cmd.Count, "count", "n", 10, "Number of datagrams to send")
	rootCmd.Flags().IntVar(&cmd.PayloadLen, "payload-len", 64, "Payload size in bytes")
	rootCmd.Flags().StringVar(&cmd.DstMAC, "dst-mac", "", "Destination hardware address (aa:bb:cc:dd:ee:ff); defaults to this interface's own address for loopback setups")
	rootCmd.Flags().DurationVar(&cmd.Timeout, "recv-timeout", 2*time.Second, "How long to wait for each reply")
	rootCmd.MarkFlagRequired("config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	log, _, err := logging.Init(logging.DefaultConfig())
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	serverAddr, err := netip.ParseAddrPort(cmd.ServerAddr)
	if err != nil {
		return fmt.Errorf("parse server address %q: %w", cmd.ServerAddr, err)
	}

	cfg, err := xpdk.LoadConfig(cmd.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, err := xpdk.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize xpdk: %w", err)
	}
	defer ctx.Close()

	if err := ctx.Start(); err != nil {
		return fmt.Errorf("start xpdk: %w", err)
	}
	defer ctx.Stop()

	local := netip.AddrPortFrom(netip.IPv4Unspecified(), cmd.LocalPort)
	socketID := ctx.Stack.CreateSocket(local)
	socket := ctx.Stack.GetSocket(socketID)

	var pumping atomic.Bool
	pumping.Store(true)
	defer pumping.Store(false)
	go func() {
		for pumping.Load() {
			ctx.Stack.ProcessRxPackets(ctx.PMD.RxQueue(0))
		}
	}()

	srcMAC := ctx.PMD.HardwareAddr()
	dstMAC := srcMAC
	if cmd.DstMAC != "" {
		dstMAC, err = parseMAC(cmd.DstMAC)
		if err != nil {
			return err
		}
	}
	socket.BindTX(ctx.PMD.TxQueue(0), srcMAC, func(netip.Addr) wire.MAC { return dstMAC })

	log.Infow("sending burst", "server", serverAddr, "count", cmd.Count, "payload_len", cmd.PayloadLen)

	payload := make([]byte, cmd.PayloadLen)
	var completed int
	for i := 0; i < cmd.Count; i++ {
		for j := range payload {
			payload[j] = byte(i + j)
		}

		if err := socket.Send(ctx.Memory, serverAddr, payload); err != nil {
			log.Warnw("send failed", "index", i, "error", err)
			continue
		}

		if waitReply(socket, ctx, cmd.Timeout) {
			completed++
		} else {
			log.Warnw("timed out waiting for reply", "index", i)
		}
	}

	log.Infow("burst complete", "sent", cmd.Count, "completed", completed)
	fmt.Printf("sent=%d completed=%d\n", cmd.Count, completed)
	return nil
}

// waitReply polls the socket's receive FIFO until a packet arrives or
// timeout elapses, freeing the reply mbuf once observed.
func waitReply(socket *stack.Socket, ctx *xpdk.Context, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		_, mbuf, err := socket.Recv()
		if err == nil {
			_ = ctx.Memory.Free(mbuf)
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func parseMAC(s string) (wire.MAC, error) {
	var mac wire.MAC
	n, err := fmt.Sscanf(s, "%02x:%02x:%02x:%02x:%02x:%02x",
		&mac[0], &mac[1], &mac[2], &mac[3], &mac[4], &mac[5])
	if err != nil || n != 6 {
		return wire.MAC{}, fmt.Errorf("invalid mac address %q", s)
	}
	return mac, nil
}
