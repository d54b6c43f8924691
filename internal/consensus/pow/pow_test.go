package pow_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/empower1-labs/empower1-core/internal/consensus/pow"
	"github.com/empower1-labs/empower1-core/internal/core"
)

// TestMineBlockAtDifficultyOneAlwaysFindsNonce exercises the mining part
// of scenario S1: mine a block at difficulty=1 and confirm it meets the
// target.
func TestMineBlockAtDifficultyOneAlwaysFindsNonce(t *testing.T) {
	engine := pow.New(1, 10, nil)
	coinbase := core.NewCoinbaseTransaction(core.Address{1}, 5_000_000_000, 1000)
	block := core.NewBlock(1, core.Hash{9}, []core.Transaction{*coinbase}, 1000)

	found, err := engine.MineBlock(block, 1_000_000)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, pow.MeetsTarget(block.Hash(), block.Header.Difficulty))
}

func TestValidateBlockSkipsDifficultyCheckForGenesis(t *testing.T) {
	engine := pow.New(32, 10, nil)
	genesis := core.NewBlock(0, core.Hash{}, nil, 0)
	require.NoError(t, engine.ValidateBlock(genesis))
}

func TestValidateBlockRejectsUnmetDifficulty(t *testing.T) {
	engine := pow.New(32, 10, nil)
	block := core.NewBlock(1, core.Hash{}, nil, 0)
	block.Header.Difficulty = 32 // astronomically unlikely to already meet
	require.Error(t, engine.ValidateBlock(block))
}

func TestAdjustDifficultyDoublesWhenBlockTimeIsFast(t *testing.T) {
	engine := pow.New(10, 100, nil)
	newDiff := engine.AdjustDifficulty(40) // <= target/2
	require.Equal(t, uint32(20), newDiff)
}

func TestAdjustDifficultyHalvesWhenBlockTimeIsSlow(t *testing.T) {
	engine := pow.New(10, 100, nil)
	newDiff := engine.AdjustDifficulty(250) // >= 2*target
	require.Equal(t, uint32(5), newDiff)
}

func TestAdjustDifficultyNudgesByOneOtherwise(t *testing.T) {
	engine := pow.New(10, 100, nil)
	require.Equal(t, uint32(11), engine.AdjustDifficulty(90))
}

func TestAdjustDifficultyClampsToMinimumOne(t *testing.T) {
	engine := pow.New(1, 100, nil)
	// A slightly slow block decrements difficulty 1 to 0, which clamps to 1.
	require.Equal(t, uint32(1), engine.AdjustDifficulty(110))
}

func TestMeetsTargetIsMonotonicWithDifficulty(t *testing.T) {
	hash := core.HashBytes([]byte("sample"))
	easy := pow.MeetsTarget(hash, 1)
	hard := pow.MeetsTarget(hash, 250)
	// A hash that meets a very hard target must also meet an easy one.
	if hard {
		require.True(t, easy)
	}
}
