// Package consensus defines the shared surface PoW and PoS consensus
// engines expose. Per spec §9's design note, the two engines are modeled
// as a tagged variant rather than a class hierarchy: both satisfy Engine,
// but their mining/proposing operations live on their own concrete types
// (internal/consensus/pow, internal/consensus/pos) since their shapes
// genuinely differ (mine_block(block, max_nonce) vs select_block_proposer()).
package consensus

import "github.com/empower1-labs/empower1-core/internal/core"

// Engine is the subset of operations every consensus engine must expose:
// block validation and lifecycle control, mirroring the teacher's
// ConsensusEngine orchestration shape (ticker-driven loop, Start/Stop
// with graceful shutdown).
type Engine interface {
	// ValidateBlock checks a received block against this engine's
	// consensus rules (difficulty target for PoW, expected proposer for
	// PoS). It does not mutate chain state.
	ValidateBlock(block *core.Block) error

	// Start begins the engine's background loop (mining or proposing).
	Start() error

	// Stop signals the background loop to exit and waits for it to do so.
	Stop()
}
