// Package pruning implements block pruning modes, the should_prune
// policy, and JSON state snapshots, grounded on
// original_source/src/storage/block_pruning_manager.cpp and
// state_snapshot_manager.cpp.
package pruning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/empower1-labs/empower1-core/internal/core"
	"github.com/empower1-labs/empower1-core/internal/nodeerrors"
)

// Mode selects the block-retention strategy, per spec §4.I.
type Mode int

const (
	ModeFullArchive Mode = iota
	ModePruned
	ModeHybrid
	ModeCustom
)

// CustomPredicate lets ModeCustom delegate the should_prune decision to
// caller-supplied logic.
type CustomPredicate func(block *core.Block, currentHeight uint64) bool

// Config holds the pruning tunables named in spec §4.I/§7.
type Config struct {
	Mode Mode

	KeepBlocks       uint64
	KeepStateBlocks  uint64
	SnapshotInterval uint64

	MaxStorageSizeMB uint64
	MaxBlockCount    uint64
	MaxAge           time.Duration

	CustomPrune CustomPredicate
}

// BlockStore is the subset of blockstore.Store pruning needs.
type BlockStore interface {
	GetByHeight(h uint64) (*core.Block, error)
	DeleteFromHeight(h uint64) error
	Range(lo, hi uint64) ([]*core.Block, error)
}

// StateStore is the subset of statestore.Store pruning needs.
type StateStore interface {
	AllAddresses() ([]core.Address, error)
	GetAccount(addr core.Address) (*core.Account, error)
	Prune(referenced map[core.Address]struct{}) (int, error)
}

// Manager owns the pruning policy and drives execution against the
// Block Store and State Store.
type Manager struct {
	cfg         Config
	blocks      BlockStore
	state       StateStore
	log         *zap.SugaredLogger
	snapshotDir string

	totalBlocksPruned uint64
	totalStatePruned  uint64
	lastPruneTime     time.Time
}

// New constructs a pruning manager.
func New(cfg Config, blocks BlockStore, state StateStore, snapshotDir string, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{cfg: cfg, blocks: blocks, state: state, snapshotDir: snapshotDir, log: log}
}

// ShouldPruneBlock decides whether block should be pruned at
// currentHeight, per §4.I's should_prune policy. Genesis is never
// pruned.
func (m *Manager) ShouldPruneBlock(block *core.Block, currentHeight uint64) bool {
	if block.Header.Height == 0 {
		return false
	}
	age := currentHeight - block.Header.Height
	switch m.cfg.Mode {
	case ModeFullArchive:
		return false
	case ModePruned:
		return m.cfg.KeepBlocks > 0 && age > m.cfg.KeepBlocks
	case ModeHybrid:
		if m.cfg.KeepBlocks == 0 || age <= m.cfg.KeepBlocks {
			return false
		}
		if m.cfg.SnapshotInterval > 0 && block.Header.Height%m.cfg.SnapshotInterval == 0 {
			return false
		}
		return true
	case ModeCustom:
		if m.cfg.CustomPrune == nil {
			return false
		}
		return m.cfg.CustomPrune(block, currentHeight)
	default:
		return false
	}
}

// ShouldPruneState decides whether the state held for blockHeight should
// be pruned, using the same retention window as blocks
// (keep_state_blocks).
func (m *Manager) ShouldPruneState(blockHeight, currentHeight uint64) bool {
	if blockHeight == 0 {
		return false
	}
	if m.cfg.KeepStateBlocks == 0 {
		return false
	}
	age := currentHeight - blockHeight
	return age > m.cfg.KeepStateBlocks
}

// PerformPruning scans from genesis+1 to currentHeight, collects the
// pruneable heights, and deletes everything from the lowest pruneable
// height onward in one atomic call, per §4.I's execution model.
func (m *Manager) PerformPruning(currentHeight uint64) (uint64, error) {
	if m.cfg.Mode == ModeFullArchive {
		return 0, nil
	}
	var lowest uint64
	found := false
	for h := uint64(1); h <= currentHeight; h++ {
		block, err := m.blocks.GetByHeight(h)
		if err != nil {
			continue
		}
		if m.ShouldPruneBlock(block, currentHeight) {
			lowest = h
			found = true
			break
		}
	}
	if !found {
		return 0, nil
	}
	pruned := currentHeight - lowest + 1
	if err := m.blocks.DeleteFromHeight(lowest); err != nil {
		return 0, err
	}
	m.totalBlocksPruned += pruned
	m.lastPruneTime = time.Now()
	return pruned, nil
}

// PerformStatePruning collects every account address referenced as an
// output recipient or transaction sender in the retained window
// [current-keep_state_blocks+1, current]
// and delegates the reference-aware deletion to the State Store.
func (m *Manager) PerformStatePruning(currentHeight uint64) (int, error) {
	if m.cfg.KeepStateBlocks == 0 {
		return 0, nil
	}
	var windowStart uint64
	if currentHeight+1 > m.cfg.KeepStateBlocks {
		windowStart = currentHeight - m.cfg.KeepStateBlocks + 1
	}
	blocks, err := m.blocks.Range(windowStart, currentHeight)
	if err != nil {
		return 0, err
	}
	referenced := make(map[core.Address]struct{})
	for _, b := range blocks {
		for _, tx := range b.Transactions {
			for _, out := range tx.Outputs {
				referenced[out.RecipientAddress] = struct{}{}
			}
			if from, ok := tx.SenderAddress(); ok {
				referenced[from] = struct{}{}
			}
		}
	}
	pruned, err := m.state.Prune(referenced)
	if err != nil {
		return pruned, err
	}
	m.totalStatePruned += uint64(pruned)
	return pruned, nil
}

// snapshotDump is the JSON shape written to snapshot_<height>.json.
type snapshotDump struct {
	BlockHeight  uint64            `json:"block_height"`
	Accounts     []snapshotAccount `json:"accounts"`
	SnapshotHash string            `json:"snapshot_hash"`
}

type snapshotAccount struct {
	Address  string            `json:"address"`
	Balance  string            `json:"balance"`
	Nonce    uint64            `json:"nonce"`
	CodeHash string            `json:"code_hash"`
	Storage  map[string][]byte `json:"storage,omitempty"`
}

func (m *Manager) snapshotPath(height uint64) string {
	return filepath.Join(m.snapshotDir, fmt.Sprintf("snapshot_%d.json", height))
}

// hashDump computes SHA-256 over the canonical JSON encoding of dump
// with SnapshotHash cleared, matching §4.I's "without the hash field"
// requirement.
func hashDump(dump snapshotDump) (string, error) {
	dump.SnapshotHash = ""
	data, err := json.Marshal(dump)
	if err != nil {
		return "", fmt.Errorf("%w: %v", nodeerrors.ErrSerialization, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// CreateSnapshot dumps every account to a JSON file named by height,
// stamped with a snapshot_hash computed over the dump sans that field.
func (m *Manager) CreateSnapshot(blockHeight uint64) error {
	addrs, err := m.state.AllAddresses()
	if err != nil {
		return err
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].String() < addrs[j].String() })

	dump := snapshotDump{BlockHeight: blockHeight}
	for _, addr := range addrs {
		acct, err := m.state.GetAccount(addr)
		if err != nil {
			continue
		}
		dump.Accounts = append(dump.Accounts, snapshotAccount{
			Address:  hex.EncodeToString(acct.Address.Bytes()),
			Balance:  acct.Balance.String(),
			Nonce:    acct.Nonce,
			CodeHash: hex.EncodeToString(acct.CodeHash.Bytes()),
			Storage:  acct.Storage,
		})
	}

	hash, err := hashDump(dump)
	if err != nil {
		return err
	}
	dump.SnapshotHash = hash

	if err := os.MkdirAll(m.snapshotDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", nodeerrors.ErrDirectoryCreate, err)
	}
	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", nodeerrors.ErrSerialization, err)
	}
	return os.WriteFile(m.snapshotPath(blockHeight), data, 0o644)
}

// RestoreFromSnapshot reads the snapshot file for blockHeight and
// verifies its snapshot_hash before returning the decoded accounts; it
// does not itself apply them to the State Store, leaving that
// side-effecting step to the caller.
func (m *Manager) RestoreFromSnapshot(blockHeight uint64) ([]*core.Account, error) {
	data, err := os.ReadFile(m.snapshotPath(blockHeight))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", nodeerrors.ErrNotFound, err)
	}
	var dump snapshotDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("%w: %v", nodeerrors.ErrDeserialization, err)
	}
	want := dump.SnapshotHash
	got, err := hashDump(dump)
	if err != nil {
		return nil, err
	}
	if want != got {
		return nil, nodeerrors.ErrCorruptionDetected
	}

	accounts := make([]*core.Account, 0, len(dump.Accounts))
	for _, sa := range dump.Accounts {
		addr, ok := decodeHexAddress(sa.Address)
		if !ok {
			continue
		}
		codeHash, _ := decodeHexHash(sa.CodeHash)
		balance, ok := new(big.Int).SetString(sa.Balance, 10)
		if !ok {
			balance = big.NewInt(0)
		}
		acct := &core.Account{
			Address:  addr,
			Balance:  balance,
			Nonce:    sa.Nonce,
			CodeHash: codeHash,
			Storage:  sa.Storage,
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// ListSnapshots returns every snapshot height found in the snapshot
// directory, sorted ascending.
func (m *Manager) ListSnapshots() ([]uint64, error) {
	entries, err := os.ReadDir(m.snapshotDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var heights []uint64
	for _, e := range entries {
		h, ok := parseSnapshotFilename(e.Name())
		if ok {
			heights = append(heights, h)
		}
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	return heights, nil
}

// DeleteSnapshot removes the snapshot file for blockHeight.
func (m *Manager) DeleteSnapshot(blockHeight uint64) error {
	if err := os.Remove(m.snapshotPath(blockHeight)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// CleanupOldSnapshots keeps the newest `keep` snapshots by height,
// deleting the rest. Folded back from
// StateSnapshotManager::cleanupOldSnapshots, dropped by the
// distillation.
func (m *Manager) CleanupOldSnapshots(keep int) (int, error) {
	heights, err := m.ListSnapshots()
	if err != nil {
		return 0, err
	}
	if len(heights) <= keep {
		return 0, nil
	}
	toDelete := heights[:len(heights)-keep]
	for _, h := range toDelete {
		if err := m.DeleteSnapshot(h); err != nil {
			return 0, err
		}
	}
	return len(toDelete), nil
}

func parseSnapshotFilename(name string) (uint64, bool) {
	const prefix, suffix = "snapshot_", ".json"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return 0, false
	}
	middle := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
	h, err := strconv.ParseUint(middle, 10, 64)
	if err != nil {
		return 0, false
	}
	return h, true
}

func decodeHexAddress(s string) (core.Address, bool) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return core.Address{}, false
	}
	return core.AddressFromBytes(raw)
}

func decodeHexHash(s string) (core.Hash, bool) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != core.HashSize {
		return core.Hash{}, false
	}
	var h core.Hash
	copy(h[:], raw)
	return h, true
}
