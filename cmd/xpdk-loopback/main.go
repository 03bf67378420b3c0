// Command xpdk-loopback wires an RX queue directly to a TX queue on the
// same interface, bypassing the UDP stack entirely, for measuring raw
// capture-to-transmit latency.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/narwhal-net/xpdk"
	"github.com/narwhal-net/xpdk/errs"
	"github.com/narwhal-net/xpdk/internal/logging"
)

var cmd struct {
	ConfigPath string
	RxIndex    int
	TxIndex    int
}

var rootCmd = &cobra.Command{
	Use:   "xpdk-loopback",
	Short: "Retransmit every frame received on one queue out another",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run()
	},
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file (required)")
	rootCmd.Flags().IntVar(&cmd.RxIndex, "rx-queue", 0, "RX queue index to read from")
	rootCmd.Flags().IntVar(&cmd.TxIndex, "tx-queue", 0, "TX queue index to retransmit on")
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

	cfg, err := xpdk.LoadConfig(cmd.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, err := xpdk.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize xpdk: %w", err)
	}
	defer ctx.Close()

	rxQueue := ctx.PMD.RxQueue(cmd.RxIndex)
	if rxQueue == nil {
		return fmt.Errorf("rx queue %d out of range (have %d)", cmd.RxIndex, ctx.PMD.RxQueueCount())
	}
	txQueue := ctx.PMD.TxQueue(cmd.TxIndex)
	if txQueue == nil {
		return fmt.Errorf("tx queue %d out of range (have %d)", cmd.TxIndex, ctx.PMD.TxQueueCount())
	}

	if err := ctx.PMD.Start(); err != nil {
		return fmt.Errorf("start pmd: %w", err)
	}
	defer ctx.PMD.Stop()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig, err := waitInterrupted(runCtx)
		if err == nil {
			log.Infow("caught signal, shutting down", "signal", sig)
		}
		cancel()
	}()

	log.Infow("loopback running", "interface", cfg.Interface, "rx_queue", cmd.RxIndex, "tx_queue", cmd.TxIndex)

	var forwarded, errored uint64
	start := time.Now()
	for {
		select {
		case <-runCtx.Done():
			elapsed := time.Since(start)
			log.Infow("loopback stopped", "forwarded", forwarded, "errored", errored, "elapsed", elapsed)
			return nil
		default:
		}

		mbuf, err := rxQueue.Recv()
		if err != nil {
			if errors.Is(err, errs.ErrNoPacket) {
				continue
			}
			errored++
			continue
		}

		if err := txQueue.Send(mbuf); err != nil {
			errored++
		} else {
			forwarded++
		}

		_ = ctx.Memory.Free(mbuf)
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
