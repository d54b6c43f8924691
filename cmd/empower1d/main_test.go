package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/empower1-labs/empower1-core/internal/blockchain"
	"github.com/empower1-labs/empower1-core/internal/config"
	"github.com/empower1-labs/empower1-core/internal/consensus/pos"
	"github.com/empower1-labs/empower1-core/internal/consensus/pow"
	"github.com/empower1-labs/empower1-core/internal/core"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewRootCmdRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	require.True(t, names["init-genesis"])
	require.True(t, names["mine"])
	require.True(t, names["validate"])
	require.True(t, names["sync"])
}

func TestNewNodeEnsureGenesisIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	n, err := newNode(cfg)
	require.NoError(t, err)
	defer n.Close()

	require.NoError(t, n.ensureGenesis(map[core.Address]uint64{}))
	firstHeight := n.chain.CurrentHeight()

	require.NoError(t, n.ensureGenesis(map[core.Address]uint64{}))
	require.Equal(t, firstHeight, n.chain.CurrentHeight())
}

func TestMineOneBlockAdmitsAMinedBlock(t *testing.T) {
	cfg := testConfig(t)
	n, err := newNode(cfg)
	require.NoError(t, err)
	defer n.Close()

	require.NoError(t, n.ensureGenesis(nil))

	engine := pow.New(1, cfg.PoW.TargetBlockTime, n.log)
	self := core.Address{0xCC}
	require.NoError(t, n.mineOneBlock(engine, self, 1<<20))

	require.Equal(t, uint64(1), n.chain.CurrentHeight())
	require.Equal(t, uint64(1), engine.BlocksMined())

	mined, err := n.chain.GetBlockByHeight(1)
	require.NoError(t, err)
	require.Len(t, mined.Transactions, 1)
	require.Equal(t, self, mined.Transactions[0].Outputs[0].RecipientAddress)
}

func TestMineOneBlockPersistsTouchedAccountsToStateStore(t *testing.T) {
	cfg := testConfig(t)
	n, err := newNode(cfg)
	require.NoError(t, err)
	defer n.Close()

	require.NoError(t, n.ensureGenesis(nil))

	engine := pow.New(1, cfg.PoW.TargetBlockTime, n.log)
	self := core.Address{0xDD}
	require.NoError(t, n.mineOneBlock(engine, self, 1<<20))

	acc, err := n.state.GetAccount(self)
	require.NoError(t, err)
	require.Equal(t, uint64(1), acc.LastUpdated)
	require.Equal(t, blockchain.BlockReward, acc.Balance.Uint64())
}

func TestProposeOneBlockSkipsWhenNotSelectedProposer(t *testing.T) {
	cfg := testConfig(t)
	n, err := newNode(cfg)
	require.NoError(t, err)
	defer n.Close()
	require.NoError(t, n.ensureGenesis(nil))

	posCfg, err := cfg.ToPoSConfig()
	require.NoError(t, err)
	engine := pos.New(posCfg, n.log)

	other := core.Address{0xAA}
	require.NoError(t, engine.RegisterValidator(other, []byte("pub"), posCfg.MinStake, 0))

	self := core.Address{0xBB}
	require.NoError(t, n.proposeOneBlock(engine, self))
	require.Equal(t, uint64(0), n.chain.CurrentHeight())
}
