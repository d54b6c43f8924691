package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/spf13/cobra"

	"github.com/empower1-labs/empower1-core/internal/blockchain"
	"github.com/empower1-labs/empower1-core/internal/consensus/pow"
	"github.com/empower1-labs/empower1-core/internal/core"
)

func newMineCmd() *cobra.Command {
	var maxNonce uint64
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "run a Proof-of-Work mining loop against the local mempool",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			n, err := newNode(cfg)
			if err != nil {
				return err
			}
			defer n.Close()

			if err := n.ensureGenesis(nil); err != nil {
				return err
			}

			priv, err := secp256k1.GeneratePrivateKey()
			if err != nil {
				return err
			}
			self := core.DeriveAddress(priv.PubKey())

			engine := pow.New(cfg.PoW.InitialDifficulty, cfg.PoW.TargetBlockTime, n.log)

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			ticker := time.NewTicker(time.Duration(cfg.PoW.TargetBlockTime) * time.Second)
			defer ticker.Stop()

			n.log.Infow("mining started", "difficulty", engine.CurrentDifficulty(), "reward_address", self.String())
			for {
				select {
				case <-stop:
					n.log.Infow("mining stopped", "blocks_mined", engine.BlocksMined())
					return nil
				case <-ticker.C:
					if err := n.mineOneBlock(engine, self, maxNonce); err != nil {
						n.log.Warnw("mining attempt failed", "error", err)
					}
				}
			}
		},
	}
	cmd.Flags().Uint64Var(&maxNonce, "max-nonce", 1<<32, "upper bound on nonce search per block")
	return cmd
}

func (n *node) mineOneBlock(engine *pow.Engine, self core.Address, maxNonce uint64) error {
	latest, err := n.chain.GetLatestBlock()
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	coinbase := core.NewCoinbaseTransaction(self, blockchain.BlockReward, now)
	txs := append([]core.Transaction{*coinbase}, derefTxs(n.mempool.GetTransactions(vmharnessBatchSize))...)

	block := core.NewBlock(latest.Header.Height+1, latest.Hash(), txs, now)
	block.Header.Difficulty = engine.CurrentDifficulty()

	found, err := engine.MineBlock(block, maxNonce)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	if err := n.chain.AddBlock(block); err != nil {
		return err
	}
	if err := n.persistTouchedAccounts(block); err != nil {
		return err
	}
	n.announceBlock(block)
	n.mempool.RemoveBatch(block.Transactions)
	n.log.Infow("mined block", "height", block.Header.Height, "hash", block.Hash(), "tx_count", len(block.Transactions))
	return nil
}

func derefTxs(txs []*core.Transaction) []core.Transaction {
	out := make([]core.Transaction, len(txs))
	for i, tx := range txs {
		out[i] = *tx
	}
	return out
}

// vmharnessBatchSize caps how many pooled transactions are pulled into a
// single candidate block.
const vmharnessBatchSize = 256
