package xpdk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narwhal-net/xpdk/memory"
)

func TestDefaultConfig_MatchesDocumentedDefaults(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 4, cfg.PoolCount)
	assert.Equal(t, 8192, cfg.PoolSize)
	// BufSize must be at least memory.DefaultMbufBufSize, the capture
	// snap length, or a received max-size frame gets rejected as
	// oversized by the RX queue.
	assert.Equal(t, datasize.ByteSize(memory.DefaultMbufBufSize), cfg.BufSize)
	assert.Equal(t, 4, cfg.RxQueueCount)
	assert.Equal(t, 4, cfg.TxQueueCount)
	assert.Equal(t, 4096, cfg.RxQueueSize)
	assert.Equal(t, 4096, cfg.TxQueueSize)
	assert.True(t, cfg.EnableHugepages)
	assert.True(t, cfg.EnableNUMA)
	assert.True(t, cfg.EnableOffload)
	assert.Empty(t, cfg.CPUAffinity)
	assert.Equal(t, "eth0", cfg.Interface)
}

func TestLoadConfig_OverridesOnlySpecifiedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xpdk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
interface: eth1
pool_count: 2
cpu_affinity: [0, 1]
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "eth1", cfg.Interface)
	assert.Equal(t, 2, cfg.PoolCount)
	assert.Equal(t, []int{0, 1}, cfg.CPUAffinity)
	// untouched fields keep their defaults
	assert.Equal(t, 8192, cfg.PoolSize)
	assert.True(t, cfg.EnableHugepages)
}

func TestLoadConfig_MissingFileIsError(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}
