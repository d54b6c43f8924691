// Package nodeerrors collects the sentinel errors shared across EmPower1's
// storage, consensus, sync, VM, and configuration subsystems. Grouping them
// by kind (rather than by package) keeps errors.Is checks stable as the
// packages that return them evolve.
package nodeerrors

import "errors"

// Validation errors: malformed block/transaction/receipt, bad signature,
// bad merkle root, header hash fails difficulty, chain continuity broken.
var (
	ErrInvalidTransactionID  = errors.New("transaction id cannot be zero hash")
	ErrUnknownTransactionKind = errors.New("unknown transaction kind")
	ErrEmptyTransaction      = errors.New("transaction has neither inputs nor outputs")
	ErrInvalidSignature      = errors.New("invalid signature")
	ErrInvalidPublicKey      = errors.New("invalid or missing public key")
	ErrInvalidMerkleRoot     = errors.New("merkle root does not match recomputed root")
	ErrDifficultyNotMet      = errors.New("block hash does not meet required difficulty target")
	ErrChainContinuityBroken = errors.New("previous_hash does not match the hash of the prior block")
	ErrInvalidBlockHeight    = errors.New("block height is invalid")
	ErrNonceOutOfOrder       = errors.New("sender nonce did not strictly increase")
)

// Consensus errors: insufficient stake, unknown validator, slashing
// misuse, proposer selection from empty set.
var (
	ErrInsufficientStake      = errors.New("stake amount below minimum required")
	ErrUnknownValidator       = errors.New("unknown validator address")
	ErrValidatorAlreadyExists = errors.New("validator already registered")
	ErrNoActiveValidators     = errors.New("no active validators to select a proposer from")
	ErrInvalidDelegationAmount = errors.New("delegation amount must be positive")
	ErrDelegationNotFound     = errors.New("delegation not found")
	ErrSlashingAmountInvalid  = errors.New("slashing amount exceeds allowed percentage of stake")
	ErrMaxValidatorsReached   = errors.New("maximum validator set size reached")
)

// Storage errors: backend write/read failure, directory creation
// failure, corruption detected by repair.
var (
	ErrBackendWrite       = errors.New("storage backend write failed")
	ErrBackendRead        = errors.New("storage backend read failed")
	ErrNotFound           = errors.New("key not found in storage")
	ErrDirectoryCreate    = errors.New("failed to create data directory")
	ErrCorruptionDetected = errors.New("storage corruption detected during repair")
	ErrSerialization      = errors.New("serialization failed")
	ErrDeserialization    = errors.New("deserialization failed")
)

// Sync errors: insufficient peers, timeout, header/block verification
// failure, state verification failure.
var (
	ErrInsufficientPeers     = errors.New("fewer connected peers than min_peers")
	ErrSyncTimeout           = errors.New("sync operation timed out")
	ErrHeaderChainInvalid    = errors.New("downloaded header chain is not contiguous")
	ErrBlockVerificationFail = errors.New("downloaded block failed verification")
	ErrStateVerificationFail = errors.New("state verification after sync failed")
	ErrSyncNotActive         = errors.New("sync is not currently active")
)

// VM errors: transaction execution failure, out-of-gas, contract
// deployment failure.
var (
	ErrExecutionFailed    = errors.New("transaction execution failed")
	ErrOutOfGas           = errors.New("out of gas")
	ErrContractDeployFail = errors.New("contract deployment failed")
	ErrContractNotFound   = errors.New("target contract not found")
	ErrInsufficientFunds  = errors.New("insufficient account balance")
)

// Receipt errors: block receipt aggregation mismatches.
var (
	ErrReceiptCountMismatch    = errors.New("receipt count does not match declared transaction count")
	ErrGasAccountingMismatch   = errors.New("total_gas_used does not match sum of per-tx gas_used")
)

// Configuration errors: contradictory or out-of-range values.
var (
	ErrInvalidConfig   = errors.New("configuration is invalid")
	ErrPeerBoundsInvalid = errors.New("min_peers must not exceed max_peers")
	ErrZeroBatchSize   = errors.New("batch_size must be greater than zero")
)

// Mempool errors: admission rejections.
var (
	ErrTxAlreadyInMempool = errors.New("transaction already in mempool")
	ErrMempoolFull        = errors.New("mempool is at capacity")
)
