package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/empower1-labs/empower1-core/internal/network"
	"github.com/empower1-labs/empower1-core/internal/storage/blockstore"
	syncpkg "github.com/empower1-labs/empower1-core/internal/sync"
)

func newSyncCmd() *cobra.Command {
	var peerDataDir string
	var peerAddr string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "fast-sync this node's chain from a peer's data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if peerDataDir == "" {
				return fmt.Errorf("--peer-data-dir is required: there is no P2P transport, so a peer is reached by opening its local block store directly")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			n, err := newNode(cfg)
			if err != nil {
				return err
			}
			defer n.Close()

			peerStore, err := blockstore.Open(peerDataDir, n.log)
			if err != nil {
				return fmt.Errorf("opening peer block store: %w", err)
			}
			defer peerStore.Close()

			hub := network.NewHub()
			hub.Register(peerAddr, peerStore)
			client := network.NewPeerClient(hub, "self")

			syncCfg, err := cfg.ToSyncConfig(nil)
			if err != nil {
				return err
			}
			manager := syncpkg.New(syncCfg, client, n.store, n.harness, n.log)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-stop
				n.log.Infow("sync interrupted, shutting down")
				cancel()
			}()

			if err := manager.Run(ctx); err != nil {
				return fmt.Errorf("sync run: %w", err)
			}
			// Fast Sync verifies block structure and (in VerifyState mode)
			// runs the harness's structural ValidateBlock on each synced
			// height, but never re-executes transactions
			// through the harness, so there is no fresh account state to
			// persist here — only the block-retention policy applies.
			if _, err := n.pruner.PerformPruning(n.chain.CurrentHeight()); err != nil {
				return fmt.Errorf("pruning blocks: %w", err)
			}
			n.log.Infow("sync finished", "status", manager.Status(), "height", n.chain.CurrentHeight())
			return nil
		},
	}
	cmd.Flags().StringVar(&peerDataDir, "peer-data-dir", "", "data directory of the peer node's block store to sync from")
	cmd.Flags().StringVar(&peerAddr, "peer-addr", "peer", "logical address to register the peer under")
	return cmd
}
