package blockchain

import (
	"bytes"
	"sort"

	"github.com/empower1-labs/empower1-core/internal/config"
	"github.com/empower1-labs/empower1-core/internal/core"
)

// BlockReward is the coinbase reward paid to a block's miner/proposer,
// per spec scenario S1 ("reward 5*10^9 to address A").
const BlockReward uint64 = 5_000_000_000

// CreateGenesisBlock builds the height-0 block. If allocation is non-empty,
// it seeds initial balances via coinbase transactions, ordered by address
// so the genesis hash is deterministic across nodes; otherwise the
// genesis block carries no transactions. timestamp, when zero, defaults
// to config.GenesisEpochStartUnix.
func CreateGenesisBlock(allocation map[core.Address]uint64, timestamp int64) *core.Block {
	if timestamp == 0 {
		timestamp = config.GenesisEpochStartUnix
	}

	addrs := make([]core.Address, 0, len(allocation))
	for addr := range allocation {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})

	txs := make([]core.Transaction, 0, len(addrs))
	for _, addr := range addrs {
		txs = append(txs, *core.NewCoinbaseTransaction(addr, allocation[addr], timestamp))
	}

	return core.NewBlock(0, core.ZeroHash, txs, timestamp)
}
