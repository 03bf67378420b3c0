// Command xpdk-bench drives the ring buffer and mbuf pool in-process,
// with no capture device required, and reports push/pop and alloc/free
// throughput.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/narwhal-net/xpdk/internal/logging"
	"github.com/narwhal-net/xpdk/memory"
	"github.com/narwhal-net/xpdk/ring"
)

var cmd struct {
	Iterations int
	PoolSize   int
	RingSize   int
}

var rootCmd = &cobra.Command{
	Use:   "xpdk-bench",
	Short: "Benchmark the ring buffer and mbuf pool without a capture device",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run()
	},
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	rootCmd.Flags().IntVarP(&cmd.Iterations, "iterations", "n", 1_000_000, "Operations per benchmark")
	rootCmd.Flags().IntVar(&cmd.PoolSize, "pool-size", 8192, "Mbufs in the benchmark pool")
	rootCmd.Flags().IntVar(&cmd.RingSize, "ring-size", 4096, "Ring buffer capacity")
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

	benchSPSC(log, cmd.RingSize, cmd.Iterations)
	benchMPMC(log, cmd.RingSize, cmd.Iterations)
	benchMbufPool(log, cmd.PoolSize, cmd.Iterations)
	return nil
}

func benchSPSC(log *zap.SugaredLogger, capacity, iterations int) {
	r := ring.NewSPSC[int](capacity)

	start := time.Now()
	for i := 0; i < iterations; i++ {
		_ = r.Push(i)
		_, _ = r.Pop()
	}
	elapsed := time.Since(start)

	report(log, "spsc_push_pop", iterations, elapsed)
}

func benchMPMC(log *zap.SugaredLogger, capacity, iterations int) {
	r := ring.NewMPMC[int](capacity)

	start := time.Now()
	for i := 0; i < iterations; i++ {
		_ = r.Push(i)
		_, _ = r.Pop()
	}
	elapsed := time.Since(start)

	report(log, "mpmc_push_pop", iterations, elapsed)
}

func benchMbufPool(log *zap.SugaredLogger, poolSize, iterations int) {
	allocator := memory.NewHugePageAllocator()
	pool, err := memory.NewPool("bench", 0, poolSize, memory.DefaultMbufBufSize, allocator)
	if err != nil {
		log.Infow("mbuf pool bench skipped", "error", err)
		return
	}
	defer pool.Close()

	start := time.Now()
	for i := 0; i < iterations; i++ {
		mbuf, err := pool.Alloc()
		if err != nil {
			continue
		}
		_ = pool.Free(mbuf)
	}
	elapsed := time.Since(start)

	report(log, "mbuf_alloc_free", iterations, elapsed)
}

func report(log *zap.SugaredLogger, name string, iterations int, elapsed time.Duration) {
	opsPerSec := float64(iterations) / elapsed.Seconds()
	log.Infow("benchmark complete", "name", name, "iterations", iterations, "elapsed", elapsed, "ops_per_sec", opsPerSec)
	fmt.Printf("%-20s iterations=%-10d elapsed=%-12s ops/sec=%.0f\n", name, iterations, elapsed, opsPerSec)
}
