// Command empower1d bootstraps a single EmPower1 node process. It is a
// thin external-collaborator shell: every subcommand wires already-built
// packages together and adds no domain logic of its own.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/empower1-labs/empower1-core/internal/config"
)

var configPath string

func newLogger(cfg *config.Config) *zap.SugaredLogger {
	zc := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zc.Level = lvl
	}
	logger, err := zc.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger.Sugar()
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		cfg := config.Default()
		cfg.DataDir = "./empower1-data"
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("default configuration is invalid: %w", err)
		}
		return cfg, nil
	}
	return config.Load(configPath)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "empower1d",
		Short: "EmPower1 blockchain node",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to node.yaml (defaults to built-in defaults)")

	root.AddCommand(newInitGenesisCmd())
	root.AddCommand(newMineCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newSyncCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
