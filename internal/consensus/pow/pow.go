// Package pow implements the Proof of Work consensus engine: difficulty
// target computation, mining, and difficulty adjustment, grounded on
// original_source/src/consensus/proof_of_work.cpp.
package pow

import (
	"math"
	"math/big"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/empower1-labs/empower1-core/internal/core"
	"github.com/empower1-labs/empower1-core/internal/nodeerrors"
)

// maxTarget is the 256-bit ceiling (all-ones); Target shifts it right by
// the difficulty, so difficulty 1 yields maxTarget >> 1.
var maxTarget = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Engine is the Proof of Work consensus engine.
type Engine struct {
	mu sync.Mutex

	currentDifficulty uint32
	targetBlockTime   int64 // seconds

	blocksMined uint64
	totalHashes uint64

	stopMining atomic.Bool
	wg         sync.WaitGroup

	log *zap.SugaredLogger
}

// New constructs a PoW engine with the given initial difficulty and
// target block time in seconds.
func New(initialDifficulty uint32, targetBlockTime int64, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if initialDifficulty == 0 {
		initialDifficulty = 1
	}
	return &Engine{currentDifficulty: initialDifficulty, targetBlockTime: targetBlockTime, log: log}
}

// Target computes the 256-bit target for a given difficulty: a higher
// difficulty halves the target's value, requiring proportionally more
// leading zero bits in a meeting hash.
func Target(difficulty uint32) *big.Int {
	if difficulty == 0 {
		difficulty = 1
	}
	return new(big.Int).Rsh(maxTarget, uint(difficulty))
}

// MeetsTarget reports whether hash, interpreted as a big-endian 256-bit
// number, is numerically <= target(difficulty).
func MeetsTarget(hash core.Hash, difficulty uint32) bool {
	target := Target(difficulty)
	val := new(big.Int).SetBytes(hash[:])
	return val.Cmp(target) <= 0
}

// ValidateBlock checks invariant I3: for non-genesis blocks, the header
// hash must meet the target derived from the header's declared
// difficulty. Genesis (height 0) skips the check.
func (e *Engine) ValidateBlock(block *core.Block) error {
	if block.Header.Height == 0 {
		return nil
	}
	if !MeetsTarget(block.Hash(), block.Header.Difficulty) {
		return nodeerrors.ErrDifficultyNotMet
	}
	return nil
}

// MineBlock iterates nonce from 0 upward, recomputing the header hash
// each step, until the hash meets the target, maxNonce is reached, or
// Stop is called mid-mine. Hash-rate statistics update every 10,000
// attempts.
func (e *Engine) MineBlock(block *core.Block, maxNonce uint64) (bool, error) {
	e.mu.Lock()
	difficulty := e.currentDifficulty
	e.mu.Unlock()
	block.Header.Difficulty = difficulty

	var nonce uint64
	for nonce = 0; nonce <= maxNonce; nonce++ {
		if e.stopMining.Load() {
			return false, nil
		}
		block.Header.Nonce = nonce
		if MeetsTarget(block.Hash(), difficulty) {
			atomic.AddUint64(&e.totalHashes, nonce+1-(nonce/10000)*10000)
			atomic.AddUint64(&e.blocksMined, 1)
			return true, nil
		}
		if (nonce+1)%10000 == 0 {
			atomic.AddUint64(&e.totalHashes, 10000)
		}
	}
	return false, nil
}

// AdjustDifficulty applies the piecewise policy from §4.E given the
// actual time (seconds) the last block took to mine.
func (e *Engine) AdjustDifficulty(actualBlockTime int64) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()

	target := e.targetBlockTime
	d := int64(e.currentDifficulty)

	switch {
	case actualBlockTime <= target/2:
		d *= 2
	case actualBlockTime >= target*2:
		d /= 2
	case actualBlockTime < target:
		d++
	case actualBlockTime > target:
		d--
	}

	if d < 1 {
		d = 1
	}
	if d > math.MaxUint32 {
		d = math.MaxUint32
	}
	e.currentDifficulty = uint32(d)
	return e.currentDifficulty
}

// HashRate returns an approximate hashes-per-second figure based on
// cumulative total hashes and target block time.
func (e *Engine) HashRate() float64 {
	total := atomic.LoadUint64(&e.totalHashes)
	if e.targetBlockTime == 0 {
		return 0
	}
	return float64(total) / float64(e.targetBlockTime)
}

// CurrentDifficulty returns the engine's current difficulty.
func (e *Engine) CurrentDifficulty() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentDifficulty
}

// BlocksMined returns the count of blocks successfully mined by this
// engine instance.
func (e *Engine) BlocksMined() uint64 {
	return atomic.LoadUint64(&e.blocksMined)
}

// StartMining clears the stop flag so a subsequent MineBlock call can
// run to completion.
func (e *Engine) StartMining() error {
	e.stopMining.Store(false)
	return nil
}

// StopMining flips the stop flag; the next loop iteration inside
// MineBlock observes it and returns.
func (e *Engine) StopMining() {
	e.stopMining.Store(true)
	e.wg.Wait()
}

// Start satisfies consensus.Engine; PoW's real work happens through
// MineBlock calls driven by the caller's block-production loop.
func (e *Engine) Start() error {
	return e.StartMining()
}

// Stop satisfies consensus.Engine.
func (e *Engine) Stop() {
	e.StopMining()
}
