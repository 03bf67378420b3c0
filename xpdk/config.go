// Package xpdk composes the memory manager, poll-mode driver, and UDP
// stack into a single runtime context, and holds its configuration.
package xpdk

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"
)

// Config is the full set of knobs accepted by Xpdk.New. Unset fields
// read from YAML take their DefaultConfig value, matching
// coordinator.LoadConfig's "unmarshal onto defaults" pattern.
type Config struct {
	// PoolCount is the number of mbuf pools the memory manager creates.
	PoolCount int `yaml:"pool_count"`
	// PoolSize is the number of mbufs held by each pool.
	PoolSize int `yaml:"pool_size"`
	// BufSize is the payload capacity of a single mbuf.
	BufSize datasize.ByteSize `yaml:"buf_size"`

	// RxQueueCount is the number of RX capture handles opened.
	RxQueueCount int `yaml:"rx_queue_count"`
	// TxQueueCount is the number of TX capture handles opened.
	TxQueueCount int `yaml:"tx_queue_count"`
	// RxQueueSize sizes each socket's receive FIFO, not a capture
	// parameter: the capture device itself has no configurable depth.
	RxQueueSize int `yaml:"rx_queue_size"`
	// TxQueueSize is recorded for symmetry with RxQueueSize; the
	// transmit path has no equivalent buffering stage to size.
	TxQueueSize int `yaml:"tx_queue_size"`

	// EnableHugepages requests huge-page-backed mbuf pool memory,
	// falling back to a plain anonymous mapping on failure.
	EnableHugepages bool `yaml:"enable_hugepages"`
	// EnableNUMA is a hint only; nothing here enforces node locality.
	EnableNUMA bool `yaml:"enable_numa"`
	// EnableOffload is a hint only; nothing here requires an mbuf to
	// set OffloadFlags before transmit.
	EnableOffload bool `yaml:"enable_offload"`

	// CPUAffinity, if non-empty, pins the OS thread that calls
	// Context.Start (directly or through Context.Run) to these cores via
	// unix.SchedSetaffinity. The pump goroutines Run starts are not
	// pinned individually.
	CPUAffinity []int `yaml:"cpu_affinity"`

	// Interface names the capture device opened for every RX/TX queue.
	Interface string `yaml:"interface"`
}

// DefaultConfig returns the configuration used as the base that
// LoadConfig unmarshals a file's contents over.
func DefaultConfig() *Config {
	return &Config{
		PoolCount:       4,
		PoolSize:        8192,
		BufSize:         2 * datasize.KiB,
		RxQueueCount:    4,
		TxQueueCount:    4,
		RxQueueSize:     4096,
		TxQueueSize:     4096,
		EnableHugepages: true,
		EnableNUMA:      true,
		EnableOffload:   true,
		Interface:       "eth0",
	}
}

// LoadConfig reads the YAML file at path and unmarshals it onto
// DefaultConfig, so a file only needs to set the fields it overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}
