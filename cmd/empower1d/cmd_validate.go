package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/spf13/cobra"

	"github.com/empower1-labs/empower1-core/internal/blockchain"
	"github.com/empower1-labs/empower1-core/internal/consensus/pos"
	"github.com/empower1-labs/empower1-core/internal/core"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "register as a Proof-of-Stake validator and propose blocks when selected",
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

			posCfg, err := cfg.ToPoSConfig()
			if err != nil {
				return err
			}
			engine := pos.New(posCfg, n.log)

			priv, err := secp256k1.GeneratePrivateKey()
			if err != nil {
				return err
			}
			self := core.DeriveAddress(priv.PubKey())

			now := time.Now().Unix()
			if err := engine.RegisterValidator(self, priv.PubKey().SerializeCompressed(), posCfg.MinStake, now); err != nil {
				return err
			}
			n.log.Infow("registered as validator", "address", self.String())

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			ticker := time.NewTicker(time.Duration(cfg.PoW.TargetBlockTime) * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-stop:
					n.log.Infow("validating stopped")
					return nil
				case <-ticker.C:
					if err := n.proposeOneBlock(engine, self); err != nil {
						n.log.Warnw("block proposal attempt failed", "error", err)
					}
				}
			}
		},
	}
	return cmd
}

func (n *node) proposeOneBlock(engine *pos.Engine, self core.Address) error {
	latest, err := n.chain.GetLatestBlock()
	if err != nil {
		return err
	}
	nextHeight := latest.Header.Height + 1

	proposer, err := engine.SelectBlockProposer(nextHeight)
	if err != nil {
		return err
	}
	if proposer != self {
		return nil
	}

	now := time.Now().Unix()
	coinbase := core.NewCoinbaseTransaction(self, blockchain.BlockReward, now)
	txs := append([]core.Transaction{*coinbase}, derefTxs(n.mempool.GetTransactions(vmharnessBatchSize))...)

	block := core.NewBlock(nextHeight, latest.Hash(), txs, now)
	block.Header.ProposerAddress = self

	if err := n.chain.AddBlock(block); err != nil {
		return err
	}
	if err := n.persistTouchedAccounts(block); err != nil {
		return err
	}
	n.announceBlock(block)
	n.mempool.RemoveBatch(block.Transactions)
	n.log.Infow("proposed block", "height", block.Header.Height, "hash", block.Hash(), "tx_count", len(block.Transactions))
	return nil
}
