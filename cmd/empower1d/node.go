package main

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/empower1-labs/empower1-core/internal/blockchain"
	"github.com/empower1-labs/empower1-core/internal/config"
	"github.com/empower1-labs/empower1-core/internal/core"
	"github.com/empower1-labs/empower1-core/internal/mempool"
	"github.com/empower1-labs/empower1-core/internal/network"
	"github.com/empower1-labs/empower1-core/internal/pruning"
	"github.com/empower1-labs/empower1-core/internal/storage/blockstore"
	"github.com/empower1-labs/empower1-core/internal/storage/statestore"
	"github.com/empower1-labs/empower1-core/internal/trie"
	"github.com/empower1-labs/empower1-core/internal/vmharness"
)

// node bundles the long-lived collaborators every subcommand needs: a
// persistent block store, a persistent account ledger, an execution
// harness over an in-memory state trie, the admission-checking
// orchestrator built over both, a transaction pool, the pruning manager
// that keeps both stores bounded, and the gossip simulation newly
// admitted blocks are announced through.
type node struct {
	cfg     *config.Config
	log     *zap.SugaredLogger
	store   *blockstore.Store
	state   *statestore.Store
	harness *vmharness.Harness
	chain   *blockchain.Blockchain
	mempool *mempool.Mempool
	pruner  *pruning.Manager
	gossip  *network.SimulatedNetwork
}

func newNode(cfg *config.Config) (*node, error) {
	logger := newLogger(cfg)

	store, err := blockstore.Open(cfg.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening block store: %w", err)
	}

	state, err := statestore.Open(filepath.Join(cfg.DataDir, "state"), logger)
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	harness := vmharness.New(trie.New(), noopVM{})

	chain, err := blockchain.New(store, harness, logger)
	if err != nil {
		return nil, fmt.Errorf("constructing blockchain: %w", err)
	}

	pool := mempool.New(4096, logger)

	pruningCfg, err := cfg.ToPruningConfig()
	if err != nil {
		return nil, fmt.Errorf("building pruning configuration: %w", err)
	}
	pruner := pruning.New(pruningCfg, store, state, filepath.Join(cfg.DataDir, "snapshots"), logger)

	gossip := network.NewSimulatedNetwork(cfg.DataDir)

	return &node{
		cfg:     cfg,
		log:     logger,
		store:   store,
		state:   state,
		harness: harness,
		chain:   chain,
		mempool: pool,
		pruner:  pruner,
		gossip:  gossip,
	}, nil
}

func (n *node) Close() error {
	stateErr := n.state.Close()
	storeErr := n.store.Close()
	if storeErr != nil {
		return storeErr
	}
	return stateErr
}

// persistTouchedAccounts writes the accounts a just-admitted block's
// transactions touched from the live execution trie into the durable
// state store, then runs the configured pruning policy over both
// stores.
func (n *node) persistTouchedAccounts(block *core.Block) error {
	touched := n.harness.TouchedAccounts(block.Transactions)
	accounts := make(map[core.Address]*core.Account, len(touched))
	for _, addr := range touched {
		acc := n.harness.AccountSnapshot(addr)
		acc.LastUpdated = block.Header.Height
		accounts[addr] = acc
	}
	if len(accounts) > 0 {
		if err := n.state.StoreAccountBatch(accounts); err != nil {
			return fmt.Errorf("persisting account state: %w", err)
		}
	}

	height := n.chain.CurrentHeight()
	if _, err := n.pruner.PerformPruning(height); err != nil {
		return fmt.Errorf("pruning blocks: %w", err)
	}
	if _, err := n.pruner.PerformStatePruning(height); err != nil {
		return fmt.Errorf("pruning state: %w", err)
	}
	return nil
}

// announceBlock gossips a newly admitted block to every connected peer
// on the in-process simulated network.
func (n *node) announceBlock(block *core.Block) {
	n.gossip.BroadcastBlock(block)
}

// ensureGenesis creates and admits the genesis block if the chain is
// empty, otherwise it is a no-op. allocation seeds initial balances.
func (n *node) ensureGenesis(allocation map[core.Address]uint64) error {
	if _, err := n.chain.GetLatestBlock(); err == nil {
		return nil
	}
	genesis := blockchain.CreateGenesisBlock(allocation, n.cfg.GenesisTimestamp)
	if err := n.chain.AddBlock(genesis); err != nil {
		return fmt.Errorf("admitting genesis block: %w", err)
	}
	if err := n.persistTouchedAccounts(genesis); err != nil {
		return err
	}
	n.log.Infow("genesis block created", "hash", genesis.Hash())
	return nil
}
