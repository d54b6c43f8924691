// Package vmharness implements the VM Execution Harness: per-block
// transaction replay with snapshot/rollback, dispatch by kind, and gas
// accounting, grounded on original_source/src/vm/vm_block_validator.cpp's
// split between structural validation and execution.
package vmharness

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/empower1-labs/empower1-core/internal/core"
	"github.com/empower1-labs/empower1-core/internal/nodeerrors"
	"github.com/empower1-labs/empower1-core/internal/receipt"
	"github.com/empower1-labs/empower1-core/internal/trie"
)

const (
	// RegularTxGasCost is the flat gas cost of a Regular transaction.
	RegularTxGasCost = 21_000
	// DefaultGasLimit is the per-block gas ceiling.
	DefaultGasLimit = 10_000_000
	// DefaultGasPrice is the flat gas price applied to every transaction.
	DefaultGasPrice = 20
)

// VM is the external collaborator that executes contract bytecode. The
// harness depends only on this narrow interface so a real opcode
// interpreter can be substituted without touching block-replay logic.
type VM interface {
	Deploy(deployer core.Address, nonce uint64, code []byte) (core.Address, uint64, error)
	Call(target core.Address, calldata []byte) (gasUsed uint64, ret []byte, err error)
}

// ExecutionContext is the immutable per-block context transactions
// execute against.
type ExecutionContext struct {
	BlockNumber    uint64
	BlockTimestamp int64
	GasLimit       uint64
	GasPrice       uint64
}

// Harness owns the live state trie and drives block replay against it.
type Harness struct {
	tr *trie.Trie
	vm VM
}

// New constructs a harness over an existing trie (so the caller controls
// trie lifetime/persistence) and a VM collaborator for contract kinds.
func New(tr *trie.Trie, vm VM) *Harness {
	return &Harness{tr: tr, vm: vm}
}

func balanceKey(addr core.Address) string  { return "account:" + addr.String() + ":balance" }
func nonceKey(addr core.Address) string    { return "account:" + addr.String() + ":nonce" }
func codeHashKey(addr core.Address) string { return "account:" + addr.String() + ":code" }
func storageKey(contract core.Address, key string) string {
	return "storage:" + contract.String() + ":" + key
}

func (h *Harness) getBalance(addr core.Address) *big.Int {
	v, ok := h.tr.Get(balanceKey(addr))
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).SetBytes(v)
}

func (h *Harness) setBalance(addr core.Address, bal *big.Int) {
	h.tr.Set(balanceKey(addr), bal.Bytes())
}

func (h *Harness) getNonce(addr core.Address) uint64 {
	v, ok := h.tr.Get(nonceKey(addr))
	if !ok || len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

func (h *Harness) setNonce(addr core.Address, n uint64) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	h.tr.Set(nonceKey(addr), buf)
}

// StateRoot returns the live trie's current root hash.
func (h *Harness) StateRoot() core.Hash {
	return h.tr.StateRoot()
}

// ValidateBlock performs structural-only validation of a block: merkle
// root recomputation and per-tx structural checks, without mutating
// state. Mirrors VMBlockValidator's split between structural and
// execution validation.
func (h *Harness) ValidateBlock(block *core.Block) error {
	if !block.VerifyMerkleRoot() {
		return nodeerrors.ErrInvalidMerkleRoot
	}
	if block.Header.Height != 0 && len(block.Transactions) == 0 {
		return nodeerrors.ErrEmptyTransaction
	}
	for i := range block.Transactions {
		if err := block.Transactions[i].Validate(); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
	}
	return nil
}

// ExecuteBlock runs the block validation flow of §4.G: snapshot, build
// an execution context, apply each transaction in order accumulating gas,
// and on any failure roll back to the pre-block snapshot. On success it
// returns the block receipt with the final state root.
func (h *Harness) ExecuteBlock(block *core.Block) (receipt.BlockReceipt, error) {
	if err := h.ValidateBlock(block); err != nil {
		return receipt.BlockReceipt{}, err
	}

	snapshot := h.tr.CreateSnapshot()
	defer h.tr.DeleteSnapshot(snapshot)

	execCtx := ExecutionContext{
		BlockNumber:    block.Header.Height,
		BlockTimestamp: block.Header.Timestamp,
		GasLimit:       DefaultGasLimit,
		GasPrice:       DefaultGasPrice,
	}

	receipts := make([]receipt.Receipt, 0, len(block.Transactions))
	var cumulativeGas uint64
	blockHash := block.Hash()

	for i := range block.Transactions {
		tx := &block.Transactions[i]
		r, err := h.applyTransaction(tx, execCtx, blockHash, uint32(i), cumulativeGas)
		if err != nil {
			if restoreErr := h.tr.RestoreSnapshot(snapshot); restoreErr != nil {
				return receipt.BlockReceipt{}, fmt.Errorf("rollback failed after %w: %v", err, restoreErr)
			}
			return receipt.BlockReceipt{}, err
		}
		cumulativeGas += r.GasUsed
		r.CumulativeGasUsed = cumulativeGas
		receipts = append(receipts, r)
	}

	if cumulativeGas > execCtx.GasLimit {
		if restoreErr := h.tr.RestoreSnapshot(snapshot); restoreErr != nil {
			return receipt.BlockReceipt{}, restoreErr
		}
		return receipt.BlockReceipt{}, nodeerrors.ErrOutOfGas
	}

	root := h.tr.StateRoot()
	return receipt.NewBlockReceipt(blockHash, block.Header.Height, receipts, root, len(block.Transactions)), nil
}

func (h *Harness) applyTransaction(tx *core.Transaction, ctx ExecutionContext, blockHash core.Hash, idx uint32, cumulativeGas uint64) (receipt.Receipt, error) {
	r := receipt.Receipt{
		TxHash:      tx.ID,
		BlockHash:   blockHash,
		BlockNumber: ctx.BlockNumber,
		TxIndex:     idx,
		GasPrice:    ctx.GasPrice,
		Timestamp:   ctx.BlockTimestamp,
	}
	if from, ok := tx.SenderAddress(); ok {
		r.From = from
	}

	switch tx.Kind {
	case core.TxCoinbase:
		h.applyCoinbase(tx)
		r.GasUsed = 0
		r.Success = true
		return r, nil
	case core.TxContractDeploy:
		deployer, ok := tx.SenderAddress()
		if !ok {
			r.Success = false
			return r, nodeerrors.ErrInvalidPublicKey
		}
		addr, gasUsed, err := h.vm.Deploy(deployer, h.getNonce(deployer), tx.ContractCode)
		if err != nil {
			r.Success = false
			r.ErrorMessage = err.Error()
			return r, fmt.Errorf("%w: %v", nodeerrors.ErrContractDeployFail, err)
		}
		h.tr.Set(codeHashKey(addr), core.HashBytes(tx.ContractCode).Bytes())
		r.ContractAddress = addr
		r.GasUsed = gasUsed
		r.Success = true
		h.advanceSenderNonce(tx)
		return r, nil
	case core.TxContractCall:
		gasUsed, ret, err := h.vm.Call(tx.TargetContractAddress, tx.Arguments)
		if err != nil {
			r.Success = false
			r.ErrorMessage = err.Error()
			return r, fmt.Errorf("%w: %v", nodeerrors.ErrExecutionFailed, err)
		}
		r.To = tx.TargetContractAddress
		r.GasUsed = gasUsed
		r.ReturnData = ret
		r.Success = true
		h.advanceSenderNonce(tx)
		return r, nil
	default: // Regular
		if err := h.applyRegularTransfer(tx); err != nil {
			r.Success = false
			r.ErrorMessage = err.Error()
			return r, err
		}
		r.GasUsed = RegularTxGasCost
		r.Success = true
		if len(tx.Outputs) > 0 {
			r.To = tx.Outputs[0].RecipientAddress
		}
		h.advanceSenderNonce(tx)
		return r, nil
	}
}

func (h *Harness) applyCoinbase(tx *core.Transaction) {
	for _, out := range tx.Outputs {
		bal := h.getBalance(out.RecipientAddress)
		bal.Add(bal, new(big.Int).SetUint64(out.Value))
		h.setBalance(out.RecipientAddress, bal)
	}
}

func (h *Harness) applyRegularTransfer(tx *core.Transaction) error {
	sender, ok := tx.SenderAddress()
	if !ok {
		return nodeerrors.ErrInvalidPublicKey
	}
	var total big.Int
	for _, out := range tx.Outputs {
		total.Add(&total, new(big.Int).SetUint64(out.Value))
	}
	senderBal := h.getBalance(sender)
	if senderBal.Cmp(&total) < 0 {
		return nodeerrors.ErrInsufficientFunds
	}
	senderBal.Sub(senderBal, &total)
	h.setBalance(sender, senderBal)
	for _, out := range tx.Outputs {
		bal := h.getBalance(out.RecipientAddress)
		bal.Add(bal, new(big.Int).SetUint64(out.Value))
		h.setBalance(out.RecipientAddress, bal)
	}
	return nil
}

// TouchedAccounts returns the addresses a set of transactions read or
// wrote: every sender plus every output/target recipient. Callers use
// this to know which accounts to persist into a durable state store
// after a block executes, without walking the whole trie.
func (h *Harness) TouchedAccounts(txs []core.Transaction) []core.Address {
	seen := make(map[core.Address]struct{})
	var addrs []core.Address
	add := func(addr core.Address) {
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		addrs = append(addrs, addr)
	}
	for i := range txs {
		tx := &txs[i]
		if sender, ok := tx.SenderAddress(); ok {
			add(sender)
		}
		for _, out := range tx.Outputs {
			add(out.RecipientAddress)
		}
		if !tx.TargetContractAddress.IsZero() {
			add(tx.TargetContractAddress)
		}
	}
	return addrs
}

// AccountSnapshot reconstructs addr's current account view from the live
// trie, for persistence into a durable state store.
func (h *Harness) AccountSnapshot(addr core.Address) *core.Account {
	acc := core.NewAccount(addr)
	acc.Balance = h.getBalance(addr)
	acc.Nonce = h.getNonce(addr)
	if v, ok := h.tr.Get(codeHashKey(addr)); ok {
		copy(acc.CodeHash[:], v)
	}
	return acc
}

// advanceSenderNonce enforces invariant I5: the sender's nonce strictly
// increases with each successful non-coinbase transaction.
func (h *Harness) advanceSenderNonce(tx *core.Transaction) {
	sender, ok := tx.SenderAddress()
	if !ok {
		return
	}
	h.setNonce(sender, h.getNonce(sender)+1)
}
