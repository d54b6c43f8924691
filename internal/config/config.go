// Package config loads the node's YAML configuration surfaces (Sync,
// Pruning, PoW, PoS) named in spec §6, validates them with
// go-playground/validator struct tags, and converts them into the
// concrete Config types each subsystem package expects.
package config

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/empower1-labs/empower1-core/internal/consensus/pos"
	"github.com/empower1-labs/empower1-core/internal/nodeerrors"
	"github.com/empower1-labs/empower1-core/internal/pruning"
	"github.com/empower1-labs/empower1-core/internal/sync"
)

// GenesisEpochStartUnix is the default genesis block timestamp (Jan 1,
// 2023 00:00:00 UTC), folded in from validationutils.ProjectEpochStartUnix.
const GenesisEpochStartUnix int64 = 1672531200

// Config is the top-level node configuration, loaded from a single YAML
// file and composed of the four configuration surfaces named in
// spec §6 plus data-directory and logging settings.
type Config struct {
	DataDir          string `yaml:"data_dir" validate:"required"`
	GenesisTimestamp int64  `yaml:"genesis_timestamp"`
	LogLevel         string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`

	Sync    SyncConfig    `yaml:"sync"`
	Pruning PruningConfig `yaml:"pruning"`
	PoW     PoWConfig     `yaml:"pow"`
	PoS     PoSConfig     `yaml:"pos"`
}

// SyncConfig mirrors spec §6's Sync configuration surface.
type SyncConfig struct {
	Mode                   string `yaml:"mode" validate:"oneof=Full Fast Light Custom"`
	MaxPeers               uint32 `yaml:"max_peers" validate:"required"`
	MinPeers               uint32 `yaml:"min_peers"`
	ConnectionTimeoutMs    int64  `yaml:"connection_timeout_ms"`
	MaxConcurrentDownloads uint32 `yaml:"max_concurrent_downloads" validate:"required"`
	BatchSize              uint32 `yaml:"batch_size" validate:"required"`
	MaxHeadersInFlight     uint32 `yaml:"max_headers_in_flight"`
	MaxBlocksInFlight      uint32 `yaml:"max_blocks_in_flight"`
	VerifyHeaders          bool   `yaml:"verify_headers"`
	VerifyBlocks           bool   `yaml:"verify_blocks"`
	VerifyState            bool   `yaml:"verify_state"`
	VerificationWorkers    uint32 `yaml:"verification_workers" validate:"required"`
	HeaderTimeoutMs        int64  `yaml:"header_timeout_ms"`
	BlockTimeoutMs         int64  `yaml:"block_timeout_ms"`
	StateTimeoutMs         int64  `yaml:"state_timeout_ms"`
	MaxRetries             uint32 `yaml:"max_retries"`
	RetryDelayMs           int64  `yaml:"retry_delay_ms"`
}

// PruningConfig mirrors spec §6's Pruning configuration surface.
type PruningConfig struct {
	Mode               string `yaml:"mode" validate:"oneof=FullArchive Pruned Hybrid Custom"`
	KeepBlocks         uint64 `yaml:"keep_blocks"`
	KeepStateBlocks    uint64 `yaml:"keep_state_blocks"`
	SnapshotInterval   uint64 `yaml:"snapshot_interval"`
	MaxStorageSizeMB   uint64 `yaml:"max_storage_size_mb"`
	MaxBlockCount      uint64 `yaml:"max_block_count"`
	MaxAgeHours        uint64 `yaml:"max_age_hours"`
	EnableArchival     bool   `yaml:"enable_archival"`
	ArchivePath        string `yaml:"archive_path"`
	ArchiveAfterBlocks uint64 `yaml:"archive_after_blocks"`
}

// PoWConfig mirrors spec §6's PoW configuration surface. TargetBlockTime
// is in seconds, matching pow.Engine's internal unit.
type PoWConfig struct {
	InitialDifficulty uint32 `yaml:"initial_difficulty" validate:"required"`
	TargetBlockTime   int64  `yaml:"target_block_time" validate:"required"`
}

// PoSConfig mirrors spec §6's PoS configuration surface. MinStake is a
// decimal string so arbitrarily large stake amounts survive YAML
// round-tripping without float precision loss.
type PoSConfig struct {
	MinStake           string `yaml:"min_stake" validate:"required,numeric"`
	MaxValidators      int    `yaml:"max_validators"`
	EpochLength        uint64 `yaml:"epoch_length" validate:"required"`
	SlashingPercentage uint32 `yaml:"slashing_percentage" validate:"lte=100"`
}

var validate = validator.New()

// Load reads, parses, and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", nodeerrors.ErrInvalidConfig, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", nodeerrors.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration populated with the node's baseline
// defaults, overridable by whatever a loaded YAML file sets.
func Default() *Config {
	return &Config{
		GenesisTimestamp: GenesisEpochStartUnix,
		LogLevel:         "info",
		Sync: SyncConfig{
			Mode:                   "Fast",
			MaxPeers:               8,
			MinPeers:               1,
			ConnectionTimeoutMs:    5000,
			MaxConcurrentDownloads: 8,
			BatchSize:              64,
			MaxHeadersInFlight:     1024,
			MaxBlocksInFlight:      256,
			VerifyHeaders:          true,
			VerifyBlocks:           true,
			VerifyState:            true,
			VerificationWorkers:    4,
			HeaderTimeoutMs:        10_000,
			BlockTimeoutMs:         15_000,
			StateTimeoutMs:         15_000,
			MaxRetries:             3,
			RetryDelayMs:           1000,
		},
		Pruning: PruningConfig{
			Mode:             "FullArchive",
			KeepBlocks:       100_000,
			KeepStateBlocks:  100_000,
			SnapshotInterval: 10_000,
		},
		PoW: PoWConfig{
			InitialDifficulty: 1,
			TargetBlockTime:   10,
		},
		PoS: PoSConfig{
			MinStake:           "1000",
			MaxValidators:      100,
			EpochLength:        100,
			SlashingPercentage: 10,
		},
	}
}

// Validate runs struct-tag validation plus the cross-field checks named
// in spec §7's Configuration error kind (e.g. min_peers > max_peers,
// zero batch_size), returning nodeerrors.ErrInvalidConfig-wrapped errors.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", nodeerrors.ErrInvalidConfig, err)
	}
	if _, err := c.syncMode(); err != nil {
		return err
	}
	if _, err := c.pruningMode(); err != nil {
		return err
	}
	if _, ok := new(big.Int).SetString(c.PoS.MinStake, 10); !ok {
		return fmt.Errorf("%w: pos.min_stake is not a valid integer", nodeerrors.ErrInvalidConfig)
	}
	syncCfg, err := c.ToSyncConfig(nil)
	if err != nil {
		return err
	}
	if err := syncCfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", nodeerrors.ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) syncMode() (sync.Mode, error) {
	switch c.Sync.Mode {
	case "Full":
		return sync.ModeFull, nil
	case "Fast", "":
		return sync.ModeFast, nil
	case "Light":
		return sync.ModeLight, nil
	case "Custom":
		return sync.ModeCustom, nil
	default:
		return 0, fmt.Errorf("%w: unknown sync.mode %q", nodeerrors.ErrInvalidConfig, c.Sync.Mode)
	}
}

func (c *Config) pruningMode() (pruning.Mode, error) {
	switch c.Pruning.Mode {
	case "FullArchive", "":
		return pruning.ModeFullArchive, nil
	case "Pruned":
		return pruning.ModePruned, nil
	case "Hybrid":
		return pruning.ModeHybrid, nil
	case "Custom":
		return pruning.ModeCustom, nil
	default:
		return 0, fmt.Errorf("%w: unknown pruning.mode %q", nodeerrors.ErrInvalidConfig, c.Pruning.Mode)
	}
}

// ToSyncConfig converts the YAML surface into sync.Config, wiring in the
// given progress callback (nil is fine — Fast Sync treats it as a no-op).
func (c *Config) ToSyncConfig(progress func(current, target uint64, status sync.Status)) (sync.Config, error) {
	mode, err := c.syncMode()
	if err != nil {
		return sync.Config{}, err
	}
	s := c.Sync
	return sync.Config{
		Mode:                   mode,
		MaxPeers:               s.MaxPeers,
		MinPeers:               s.MinPeers,
		ConnectionTimeout:      time.Duration(s.ConnectionTimeoutMs) * time.Millisecond,
		MaxConcurrentDownloads: s.MaxConcurrentDownloads,
		BatchSize:              s.BatchSize,
		MaxHeadersInFlight:     s.MaxHeadersInFlight,
		MaxBlocksInFlight:      s.MaxBlocksInFlight,
		VerifyHeaders:          s.VerifyHeaders,
		VerifyBlocks:           s.VerifyBlocks,
		VerifyState:            s.VerifyState,
		VerificationWorkers:    s.VerificationWorkers,
		HeaderTimeout:          time.Duration(s.HeaderTimeoutMs) * time.Millisecond,
		BlockTimeout:           time.Duration(s.BlockTimeoutMs) * time.Millisecond,
		StateTimeout:           time.Duration(s.StateTimeoutMs) * time.Millisecond,
		MaxRetries:             s.MaxRetries,
		RetryDelay:             time.Duration(s.RetryDelayMs) * time.Millisecond,
		ProgressCallback:       progress,
	}, nil
}

// ToPruningConfig converts the YAML surface into pruning.Config.
func (c *Config) ToPruningConfig() (pruning.Config, error) {
	mode, err := c.pruningMode()
	if err != nil {
		return pruning.Config{}, err
	}
	p := c.Pruning
	return pruning.Config{
		Mode:             mode,
		KeepBlocks:       p.KeepBlocks,
		KeepStateBlocks:  p.KeepStateBlocks,
		SnapshotInterval: p.SnapshotInterval,
		MaxStorageSizeMB: p.MaxStorageSizeMB,
		MaxBlockCount:    p.MaxBlockCount,
		MaxAge:           time.Duration(p.MaxAgeHours) * time.Hour,
	}, nil
}

// ToPoSConfig converts the YAML surface into pos.Config.
func (c *Config) ToPoSConfig() (pos.Config, error) {
	minStake, ok := new(big.Int).SetString(c.PoS.MinStake, 10)
	if !ok {
		return pos.Config{}, fmt.Errorf("%w: pos.min_stake is not a valid integer", nodeerrors.ErrInvalidConfig)
	}
	return pos.Config{
		MinStake:           minStake,
		MaxValidators:      c.PoS.MaxValidators,
		EpochLength:        c.PoS.EpochLength,
		SlashingPercentage: c.PoS.SlashingPercentage,
	}, nil
}
