// Package receipt implements per-transaction and per-block receipts
// emitted by the VM harness, grounded on
// original_source/include/core/transaction_receipt.h.
package receipt

import (
	"github.com/empower1-labs/empower1-core/internal/core"
	"github.com/empower1-labs/empower1-core/internal/nodeerrors"
)

// Log is a single event emitted by a contract call, folded back from
// original_source (implicit in the distilled spec's logs[] field).
type Log struct {
	Address core.Address
	Topics  [][]byte
	Data    []byte
}

// Receipt is the per-transaction execution record.
type Receipt struct {
	TxHash            core.Hash
	BlockHash          core.Hash
	BlockNumber        uint64
	TxIndex            uint32
	From               core.Address
	To                 core.Address
	GasUsed            uint64
	GasPrice           uint64
	CumulativeGasUsed  uint64
	Success            bool
	ErrorMessage       string
	ReturnData         []byte
	ContractAddress    core.Address
	Logs               []Log
	Timestamp          int64
}

// Fee returns gas_used * gas_price.
func (r *Receipt) Fee() uint64 {
	return r.GasUsed * r.GasPrice
}

// Validate checks: non-empty tx hash and block hash, non-empty from,
// and gas_used > 0 when success.
func (r *Receipt) Validate() error {
	if r.TxHash.IsZero() {
		return nodeerrors.ErrInvalidTransactionID
	}
	if r.BlockHash.IsZero() {
		return nodeerrors.ErrChainContinuityBroken
	}
	if r.From.IsZero() {
		return nodeerrors.ErrInvalidPublicKey
	}
	if r.Success && r.GasUsed == 0 {
		return nodeerrors.ErrExecutionFailed
	}
	return nil
}

// BlockReceipt aggregates per-tx receipts for a block.
type BlockReceipt struct {
	BlockHash           core.Hash
	BlockNumber         uint64
	Receipts            []Receipt
	TotalGasUsed        uint64
	StateRoot           core.Hash
	DeclaredTxCount     int
}

// NewBlockReceipt aggregates receipts, summing gas and stamping the
// post-block state root (invariant I9).
func NewBlockReceipt(blockHash core.Hash, blockNumber uint64, receipts []Receipt, stateRoot core.Hash, declaredTxCount int) BlockReceipt {
	var total uint64
	for _, r := range receipts {
		total += r.GasUsed
	}
	return BlockReceipt{
		BlockHash:       blockHash,
		BlockNumber:     blockNumber,
		Receipts:        receipts,
		TotalGasUsed:    total,
		StateRoot:       stateRoot,
		DeclaredTxCount: declaredTxCount,
	}
}

// Validate checks invariant I8: receipts count equals the declared
// transaction count and total_gas_used matches the sum of per-tx
// gas_used.
func (br *BlockReceipt) Validate() error {
	if len(br.Receipts) != br.DeclaredTxCount {
		return nodeerrors.ErrReceiptCountMismatch
	}
	var sum uint64
	for _, r := range br.Receipts {
		sum += r.GasUsed
	}
	if sum != br.TotalGasUsed {
		return nodeerrors.ErrGasAccountingMismatch
	}
	return nil
}
