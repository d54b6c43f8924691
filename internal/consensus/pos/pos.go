// Package pos implements the Proof of Stake consensus engine: validator
// registration, delegation, slashing, rewards, and deterministic
// proposer rotation, grounded on original_source/src/consensus/
// proof_of_stake.cpp and the teacher's internal/consensus/consensus_state.go
// sorted-address rotation pattern.
package pos

import (
	"math/big"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/empower1-labs/empower1-core/internal/core"
	"github.com/empower1-labs/empower1-core/internal/nodeerrors"
)

// Validator is a PoS validator record.
type Validator struct {
	Address          core.Address
	PublicKey        []byte
	StakeAmount      *big.Int
	DelegatedStake   *big.Int
	IsActive         bool
	RegistrationTime int64
	BlocksProposed   uint64
	SlashingCount    uint64
	TotalRewards     *big.Int
}

// TotalStake returns the validator's self-stake plus active delegations,
// the quantity invariant I6/P7 requires.
func (v *Validator) TotalStake() *big.Int {
	return new(big.Int).Add(v.StakeAmount, v.DelegatedStake)
}

// delegationKey identifies a (delegator, validator) pair.
type delegationKey struct {
	delegator core.Address
	validator core.Address
}

// Delegation records one delegator's stake to one validator.
type Delegation struct {
	Delegator      core.Address
	Validator      core.Address
	Amount         *big.Int
	ActivationTime int64
	Active         bool
}

// SlashingEvent is an append-only record of a slash.
type SlashingEvent struct {
	Validator     core.Address
	SlashedAmount *big.Int
	Reason        string
	Time          int64
}

// Config holds the tunables named in §6: min_stake, max_validators,
// epoch_length, slashing_percentage.
type Config struct {
	MinStake           *big.Int
	MaxValidators       int
	EpochLength        uint64
	SlashingPercentage uint32 // 0-100
}

// Engine is the Proof of Stake consensus engine.
type Engine struct {
	mu sync.Mutex

	cfg Config
	log *zap.SugaredLogger

	validators      map[core.Address]*Validator
	delegations     map[delegationKey]*Delegation
	slashingHistory []SlashingEvent

	currentValidatorSet []core.Address // active validators sorted by address; rebuilt on registration, deactivation and epoch change
	currentEpoch        uint64
	epochStartHeight    uint64

	totalRewardsDistributed *big.Int
}

// New constructs a PoS engine.
func New(cfg Config, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.MinStake == nil {
		cfg.MinStake = big.NewInt(0)
	}
	return &Engine{
		cfg:                     cfg,
		log:                     log,
		validators:              make(map[core.Address]*Validator),
		delegations:             make(map[delegationKey]*Delegation),
		totalRewardsDistributed: big.NewInt(0),
	}
}

// RegisterValidator activates a new validator immediately. Requires
// stake >= min_stake and a unique address.
func (e *Engine) RegisterValidator(addr core.Address, pubKey []byte, stake *big.Int, now int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if stake.Cmp(e.cfg.MinStake) < 0 {
		return nodeerrors.ErrInsufficientStake
	}
	if _, exists := e.validators[addr]; exists {
		return nodeerrors.ErrValidatorAlreadyExists
	}
	if e.cfg.MaxValidators > 0 && len(e.validators) >= e.cfg.MaxValidators {
		return nodeerrors.ErrMaxValidatorsReached
	}

	e.validators[addr] = &Validator{
		Address:          addr,
		PublicKey:        pubKey,
		StakeAmount:      new(big.Int).Set(stake),
		DelegatedStake:   big.NewInt(0),
		IsActive:         true,
		RegistrationTime: now,
		TotalRewards:     big.NewInt(0),
	}
	e.rebuildValidatorSetLocked()
	return nil
}

func (e *Engine) rebuildValidatorSetLocked() {
	set := make([]core.Address, 0, len(e.validators))
	for addr, v := range e.validators {
		if v.IsActive {
			set = append(set, addr)
		}
	}
	sort.Slice(set, func(i, j int) bool {
		return string(set[i][:]) < string(set[j][:])
	})
	e.currentValidatorSet = set
}

// Delegate adds amount to validator's delegated stake on behalf of
// delegator.
func (e *Engine) Delegate(delegator, validator core.Address, amount *big.Int, now int64) error {
	if amount.Sign() <= 0 {
		return nodeerrors.ErrInvalidDelegationAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.validators[validator]
	if !ok {
		return nodeerrors.ErrUnknownValidator
	}
	key := delegationKey{delegator: delegator, validator: validator}
	d, exists := e.delegations[key]
	if !exists {
		d = &Delegation{Delegator: delegator, Validator: validator, Amount: big.NewInt(0), ActivationTime: now, Active: true}
		e.delegations[key] = d
	}
	d.Amount.Add(d.Amount, amount)
	v.DelegatedStake.Add(v.DelegatedStake, amount)
	return nil
}

// Undelegate removes amount from a delegation, deleting the entry once
// it reaches zero.
func (e *Engine) Undelegate(delegator, validator core.Address, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return nodeerrors.ErrInvalidDelegationAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.validators[validator]
	if !ok {
		return nodeerrors.ErrUnknownValidator
	}
	key := delegationKey{delegator: delegator, validator: validator}
	d, exists := e.delegations[key]
	if !exists || d.Amount.Cmp(amount) < 0 {
		return nodeerrors.ErrDelegationNotFound
	}
	d.Amount.Sub(d.Amount, amount)
	v.DelegatedStake.Sub(v.DelegatedStake, amount)
	if d.Amount.Sign() == 0 {
		delete(e.delegations, key)
	}
	return nil
}

// SelectBlockProposer deterministically rotates over the current active
// validator set: current_validator_set[height % len(set)]. The set is
// rebuilt whenever a validator registers or is deactivated by slashing,
// and on UpdateEpoch.
// This resolves spec §9's open question in favor of a pure function of
// height, not a package-level mutable counter.
func (e *Engine) SelectBlockProposer(height uint64) (core.Address, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.currentValidatorSet) == 0 {
		return core.Address{}, nodeerrors.ErrNoActiveValidators
	}
	idx := height % uint64(len(e.currentValidatorSet))
	return e.currentValidatorSet[idx], nil
}

// Slash deducts slashing_percentage% of validator's total stake (self
// plus delegated, per P7/P8) from its self-stake, increments
// slashing_count, and appends to slashing_history.
func (e *Engine) Slash(addr core.Address, reason string, now int64) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.validators[addr]
	if !ok {
		return nil, nodeerrors.ErrUnknownValidator
	}
	slashed := new(big.Int).Mul(v.TotalStake(), big.NewInt(int64(e.cfg.SlashingPercentage)))
	slashed.Div(slashed, big.NewInt(100))

	v.StakeAmount.Sub(v.StakeAmount, slashed)
	v.SlashingCount++
	e.slashingHistory = append(e.slashingHistory, SlashingEvent{
		Validator: addr, SlashedAmount: slashed, Reason: reason, Time: now,
	})
	if v.TotalStake().Sign() <= 0 {
		v.IsActive = false
		e.rebuildValidatorSetLocked()
	}
	return slashed, nil
}

// CalculateRewards returns addr's proportional share of rewardPool based
// on its stake share of total active stake, using integer math (truncated).
// Total stake is summed inline rather than re-entering a locked getter,
// avoiding re-entrancy per §5's deadlock-avoidance note.
func (e *Engine) CalculateRewards(addr core.Address, rewardPool *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, ok := e.validators[addr]
	if !ok {
		return nil, nodeerrors.ErrUnknownValidator
	}
	total := big.NewInt(0)
	for _, validator := range e.validators {
		if validator.IsActive {
			total.Add(total, validator.TotalStake())
		}
	}
	if total.Sign() == 0 {
		return big.NewInt(0), nil
	}
	reward := new(big.Int).Mul(v.TotalStake(), rewardPool)
	reward.Div(reward, total)
	return reward, nil
}

// DistributeRewards adds rewards to each named validator's stake and to
// the running total_rewards_distributed counter.
func (e *Engine) DistributeRewards(rewards map[core.Address]*big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for addr, amount := range rewards {
		v, ok := e.validators[addr]
		if !ok {
			return nodeerrors.ErrUnknownValidator
		}
		v.StakeAmount.Add(v.StakeAmount, amount)
		v.TotalRewards.Add(v.TotalRewards, amount)
		e.totalRewardsDistributed.Add(e.totalRewardsDistributed, amount)
	}
	return nil
}

// UpdateEpoch advances epoch bookkeeping and rebuilds the validator set
// from the currently active validators.
func (e *Engine) UpdateEpoch(newEpoch uint64, atHeight uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentEpoch = newEpoch
	e.epochStartHeight = atHeight
	e.rebuildValidatorSetLocked()
}

// Validator returns a copy of the validator record for addr.
func (e *Engine) Validator(addr core.Address) (Validator, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.validators[addr]
	if !ok {
		return Validator{}, false
	}
	return *v, true
}

// SlashingHistory returns the append-only slashing log.
func (e *Engine) SlashingHistory() []SlashingEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SlashingEvent, len(e.slashingHistory))
	copy(out, e.slashingHistory)
	return out
}

// ValidateBlock checks that the block's proposer is the deterministically
// selected proposer for its height. It does not verify any block
// signature.
func (e *Engine) ValidateBlock(block *core.Block) error {
	expected, err := e.SelectBlockProposer(block.Header.Height)
	if err != nil {
		return err
	}
	if block.Header.ProposerAddress != expected {
		return nodeerrors.ErrUnknownValidator
	}
	return nil
}

// Start satisfies consensus.Engine; PoS has no background loop of its
// own beyond proposer selection driven by the caller's block-production
// loop.
func (e *Engine) Start() error { return nil }

// Stop satisfies consensus.Engine.
func (e *Engine) Stop() {}
