package pos_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/empower1-labs/empower1-core/internal/consensus/pos"
	"github.com/empower1-labs/empower1-core/internal/core"
)

func newEngine() *pos.Engine {
	return pos.New(pos.Config{MinStake: big.NewInt(1000), SlashingPercentage: 10}, nil)
}

// TestRegisterDelegateSlash exercises scenario S3.
func TestRegisterDelegateSlash(t *testing.T) {
	engine := newEngine()
	validator := core.Address{'V'}
	delegator := core.Address{'D'}

	require.NoError(t, engine.RegisterValidator(validator, nil, big.NewInt(2000), 0))
	require.NoError(t, engine.Delegate(delegator, validator, big.NewInt(500), 0))

	v, ok := engine.Validator(validator)
	require.True(t, ok)
	require.Equal(t, int64(2500), v.TotalStake().Int64())

	slashed, err := engine.Slash(validator, "double-sign", 1)
	require.NoError(t, err)
	require.Equal(t, int64(250), slashed.Int64()) // floor(2500 * 10 / 100)

	v2, _ := engine.Validator(validator)
	require.Equal(t, int64(1750), v2.StakeAmount.Int64())
	require.Equal(t, int64(2250), v2.TotalStake().Int64())
	require.Equal(t, uint64(1), v2.SlashingCount)
	require.Len(t, engine.SlashingHistory(), 1)
}

func TestRegisterValidatorRejectsBelowMinStake(t *testing.T) {
	engine := newEngine()
	err := engine.RegisterValidator(core.Address{1}, nil, big.NewInt(999), 0)
	require.Error(t, err)
}

func TestRegisterValidatorRejectsDuplicateAddress(t *testing.T) {
	engine := newEngine()
	addr := core.Address{1}
	require.NoError(t, engine.RegisterValidator(addr, nil, big.NewInt(1000), 0))
	err := engine.RegisterValidator(addr, nil, big.NewInt(1000), 0)
	require.Error(t, err)
}

func TestSelectBlockProposerIsDeterministicPerHeight(t *testing.T) {
	engine := newEngine()
	require.NoError(t, engine.RegisterValidator(core.Address{1}, nil, big.NewInt(1000), 0))
	require.NoError(t, engine.RegisterValidator(core.Address{2}, nil, big.NewInt(1000), 0))

	first, err := engine.SelectBlockProposer(7)
	require.NoError(t, err)
	second, err := engine.SelectBlockProposer(7)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestSelectBlockProposerFailsWithNoValidators(t *testing.T) {
	engine := newEngine()
	_, err := engine.SelectBlockProposer(1)
	require.Error(t, err)
}

func TestUndelegateRemovesEntryAtZero(t *testing.T) {
	engine := newEngine()
	validator := core.Address{'V'}
	delegator := core.Address{'D'}
	require.NoError(t, engine.RegisterValidator(validator, nil, big.NewInt(1000), 0))
	require.NoError(t, engine.Delegate(delegator, validator, big.NewInt(300), 0))
	require.NoError(t, engine.Undelegate(delegator, validator, big.NewInt(300)))

	v, _ := engine.Validator(validator)
	require.Equal(t, int64(0), v.DelegatedStake.Int64())
	require.Error(t, engine.Undelegate(delegator, validator, big.NewInt(1)))
}

func TestCalculateRewardsProportionalToStakeShare(t *testing.T) {
	engine := newEngine()
	a, b := core.Address{1}, core.Address{2}
	require.NoError(t, engine.RegisterValidator(a, nil, big.NewInt(1000), 0))
	require.NoError(t, engine.RegisterValidator(b, nil, big.NewInt(3000), 0))

	rewardA, err := engine.CalculateRewards(a, big.NewInt(400))
	require.NoError(t, err)
	require.Equal(t, int64(100), rewardA.Int64()) // 1000/4000 * 400
}

func TestSlashDeactivatesValidatorWhenStakeHitsZero(t *testing.T) {
	engine := pos.New(pos.Config{MinStake: big.NewInt(1), SlashingPercentage: 100}, nil)
	addr := core.Address{1}
	require.NoError(t, engine.RegisterValidator(addr, nil, big.NewInt(1000), 0))
	_, err := engine.Slash(addr, "fraud", 1)
	require.NoError(t, err)
	_, proposerErr := engine.SelectBlockProposer(1)
	require.Error(t, proposerErr)
}
