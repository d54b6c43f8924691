// Package blockchain orchestrates block admission: it sequences the
// structural/state validation the Execution Harness performs against the
// persistent chain held in the KV Block Store, rejecting anything that
// does not extend the current tip.
package blockchain

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/empower1-labs/empower1-core/internal/core"
	"github.com/empower1-labs/empower1-core/internal/nodeerrors"
	"github.com/empower1-labs/empower1-core/internal/receipt"
)

var (
	ErrBlockNotFound      = errors.New("block not found")
	ErrInvalidBlockHeight = errors.New("invalid block height")
	ErrInvalidPrevHash    = errors.New("invalid previous block hash")
	ErrBlockchainInit     = errors.New("blockchain initialization error")
)

// BlockStore is the narrow persistence surface Blockchain needs; satisfied
// by *blockstore.Store.
type BlockStore interface {
	Store(b *core.Block) error
	GetByHash(hash core.Hash) (*core.Block, error)
	GetByHeight(h uint64) (*core.Block, error)
	Latest() (*core.Block, error)
	CurrentHeight() uint64
	Has(hash core.Hash) bool
}

// Executor validates a candidate block's state transition and, on
// acceptance, applies it and returns the resulting receipt; satisfied by
// *vmharness.Harness.
type Executor interface {
	ValidateBlock(block *core.Block) error
	ExecuteBlock(block *core.Block) (receipt.BlockReceipt, error)
}

// Blockchain sequences block admission against a persistent block store
// and an execution harness. It holds no block data itself; the store is
// the source of truth.
type Blockchain struct {
	mu sync.Mutex

	store    BlockStore
	executor Executor
	log      *zap.SugaredLogger
}

// New constructs a Blockchain over an opened block store and execution
// harness. Neither collaborator may be nil.
func New(store BlockStore, executor Executor, log *zap.SugaredLogger) (*Blockchain, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: block store cannot be nil", ErrBlockchainInit)
	}
	if executor == nil {
		return nil, fmt.Errorf("%w: executor cannot be nil", ErrBlockchainInit)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Blockchain{store: store, executor: executor, log: log}, nil
}

// AddBlock validates a candidate block against both the chain's
// continuity rules and the execution harness's state-transition rules,
// then persists it and applies the resulting state change.
func (bc *Blockchain) AddBlock(block *core.Block) error {
	if block == nil {
		return errors.New("cannot add nil block")
	}

	bc.mu.Lock()
	defer bc.mu.Unlock()

	latest, err := bc.store.Latest()
	if err != nil && !errors.Is(err, nodeerrors.ErrNotFound) {
		return err
	}

	if latest == nil {
		if block.Header.Height != 0 {
			return fmt.Errorf("%w: expected genesis height 0, got %d", ErrInvalidBlockHeight, block.Header.Height)
		}
		if !block.Header.PreviousHash.IsZero() {
			return fmt.Errorf("%w: genesis block must reference the zero hash", ErrInvalidPrevHash)
		}
	} else {
		expectedHeight := latest.Header.Height + 1
		if block.Header.Height != expectedHeight {
			return fmt.Errorf("%w: expected height %d, got %d", ErrInvalidBlockHeight, expectedHeight, block.Header.Height)
		}
		if block.Header.PreviousHash != latest.Hash() {
			return fmt.Errorf("%w: expected previous_hash %x, got %x", ErrInvalidPrevHash, latest.Hash(), block.Header.PreviousHash)
		}
	}

	if !block.VerifyMerkleRoot() {
		return nodeerrors.ErrInvalidMerkleRoot
	}

	if err := bc.executor.ValidateBlock(block); err != nil {
		return fmt.Errorf("block %x (height %d): %w", block.Hash(), block.Header.Height, err)
	}

	rcpt, err := bc.executor.ExecuteBlock(block)
	if err != nil {
		return fmt.Errorf("block %x (height %d): %w", block.Hash(), block.Header.Height, err)
	}

	if err := bc.store.Store(block); err != nil {
		return err
	}

	bc.log.Infow("admitted block",
		"height", block.Header.Height,
		"hash", block.Hash(),
		"tx_count", len(block.Transactions),
		"gas_used", rcpt.TotalGasUsed,
	)
	return nil
}

// GetBlockByHeight retrieves a block by its height.
func (bc *Blockchain) GetBlockByHeight(height uint64) (*core.Block, error) {
	block, err := bc.store.GetByHeight(height)
	if err != nil {
		if errors.Is(err, nodeerrors.ErrNotFound) {
			return nil, ErrBlockNotFound
		}
		return nil, err
	}
	return block, nil
}

// GetBlockByHash retrieves a block by its header hash.
func (bc *Blockchain) GetBlockByHash(hash core.Hash) (*core.Block, error) {
	block, err := bc.store.GetByHash(hash)
	if err != nil {
		if errors.Is(err, nodeerrors.ErrNotFound) {
			return nil, ErrBlockNotFound
		}
		return nil, err
	}
	return block, nil
}

// CurrentHeight returns the height of the latest persisted block.
func (bc *Blockchain) CurrentHeight() uint64 {
	return bc.store.CurrentHeight()
}

// GetLatestBlock returns the chain tip, or ErrBlockNotFound if the chain
// is empty.
func (bc *Blockchain) GetLatestBlock() (*core.Block, error) {
	block, err := bc.store.Latest()
	if err != nil {
		if errors.Is(err, nodeerrors.ErrNotFound) {
			return nil, ErrBlockNotFound
		}
		return nil, err
	}
	return block, nil
}
