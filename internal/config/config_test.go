package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/empower1-labs/empower1-core/internal/config"
	syncpkg "github.com/empower1-labs/empower1-core/internal/sync"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = "/tmp/empower1-data"
	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesFileOverOverDefaults(t *testing.T) {
	path := writeConfig(t, `
data_dir: /tmp/empower1-data
sync:
  mode: Full
  max_peers: 5
  min_peers: 2
  max_concurrent_downloads: 4
  batch_size: 32
  verification_workers: 2
pos:
  min_stake: "2500"
  epoch_length: 50
  slashing_percentage: 10
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "Full", cfg.Sync.Mode)
	require.Equal(t, uint32(5), cfg.Sync.MaxPeers)
	require.Equal(t, "2500", cfg.PoS.MinStake)
	// Untouched sections keep their defaults.
	require.Equal(t, "FullArchive", cfg.Pruning.Mode)
}

func TestValidateRejectsPeerBoundsViolation(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = "/tmp/empower1-data"
	cfg.Sync.MinPeers = 10
	cfg.Sync.MaxPeers = 2
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroBatchSize(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = "/tmp/empower1-data"
	cfg.Sync.BatchSize = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownSyncMode(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = "/tmp/empower1-data"
	cfg.Sync.Mode = "Quantum"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNonNumericMinStake(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = "/tmp/empower1-data"
	cfg.PoS.MinStake = "not-a-number"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsSlashingPercentageOverHundred(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = "/tmp/empower1-data"
	cfg.PoS.SlashingPercentage = 150
	require.Error(t, cfg.Validate())
}

func TestToSyncConfigConvertsUnitsAndMode(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = "/tmp/empower1-data"
	cfg.Sync.HeaderTimeoutMs = 2000
	cfg.Sync.Mode = "Light"
	syncCfg, err := cfg.ToSyncConfig(nil)
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, syncCfg.HeaderTimeout)
	require.Equal(t, syncpkg.ModeLight, syncCfg.Mode)
}

func TestToPoSConfigParsesMinStake(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = "/tmp/empower1-data"
	cfg.PoS.MinStake = "4242"
	posCfg, err := cfg.ToPoSConfig()
	require.NoError(t, err)
	require.Equal(t, int64(4242), posCfg.MinStake.Int64())
}
