package core

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/empower1-labs/empower1-core/internal/nodeerrors"
)

// TxKind identifies which of the four transaction shapes a Transaction
// carries. A proper kind field replaces the source system's brittle
// substring-sniffing of script_pubkey for "CONTRACT"/"DEPLOY" markers.
type TxKind uint8

const (
	TxRegular TxKind = iota
	TxCoinbase
	TxContractDeploy
	TxContractCall
)

func (k TxKind) String() string {
	switch k {
	case TxRegular:
		return "Regular"
	case TxCoinbase:
		return "Coinbase"
	case TxContractDeploy:
		return "ContractDeploy"
	case TxContractCall:
		return "ContractCall"
	default:
		return "Unknown"
	}
}

// TxInput references a previous output being spent (UTXO-style, per the
// Regular transaction kind).
type TxInput struct {
	PreviousTxHash Hash   `json:"previous_tx_hash"`
	OutputIndex    uint32 `json:"output_index"`
	Signature      []byte `json:"signature"`
	PublicKey      []byte `json:"public_key"`
	Sequence       uint32 `json:"sequence"`
}

// TxOutput creates a new spendable value at a recipient address.
type TxOutput struct {
	Value            uint64  `json:"value"`
	RecipientAddress Address `json:"recipient_address"`
}

// Transaction is the unified EmPower1 transaction envelope covering all
// four kinds named in the data model: Regular, Coinbase, ContractDeploy,
// ContractCall.
type Transaction struct {
	ID        Hash   `json:"hash"`
	Version   uint32 `json:"version"`
	Kind      TxKind `json:"type"`
	Timestamp int64  `json:"timestamp"`

	Inputs  []TxInput  `json:"inputs"`
	Outputs []TxOutput `json:"outputs"`

	// Contract fields, populated only for ContractDeploy/ContractCall.
	ContractCode          []byte  `json:"contract_code,omitempty"`
	TargetContractAddress Address `json:"target_contract_address,omitempty"`
	FunctionName          string  `json:"function_name,omitempty"`
	Arguments             []byte  `json:"arguments,omitempty"`

	// Single-signer authorization. EmPower1 transactions are authorized
	// by the sender derived from PublicKey, not per-input scripts.
	PublicKey []byte `json:"public_key,omitempty"`
	Signature []byte `json:"signature,omitempty"`
}

// canonicalPayload produces a deterministic byte encoding of everything
// that must be covered by the transaction id and signature.
func (tx *Transaction) canonicalPayload() []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, tx.Version)
	buf.WriteByte(byte(tx.Kind))
	_ = binary.Write(&buf, binary.BigEndian, tx.Timestamp)

	inputs := make([]TxInput, len(tx.Inputs))
	copy(inputs, tx.Inputs)
	sort.Slice(inputs, func(i, j int) bool {
		c := bytes.Compare(inputs[i].PreviousTxHash[:], inputs[j].PreviousTxHash[:])
		if c != 0 {
			return c < 0
		}
		return inputs[i].OutputIndex < inputs[j].OutputIndex
	})
	for _, in := range inputs {
		buf.Write(in.PreviousTxHash[:])
		_ = binary.Write(&buf, binary.BigEndian, in.OutputIndex)
		_ = binary.Write(&buf, binary.BigEndian, in.Sequence)
	}

	outputs := make([]TxOutput, len(tx.Outputs))
	copy(outputs, tx.Outputs)
	sort.Slice(outputs, func(i, j int) bool {
		if outputs[i].Value != outputs[j].Value {
			return outputs[i].Value < outputs[j].Value
		}
		return bytes.Compare(outputs[i].RecipientAddress[:], outputs[j].RecipientAddress[:]) < 0
	})
	for _, out := range outputs {
		_ = binary.Write(&buf, binary.BigEndian, out.Value)
		buf.Write(out.RecipientAddress[:])
	}

	buf.Write(tx.ContractCode)
	buf.Write(tx.TargetContractAddress[:])
	buf.WriteString(tx.FunctionName)
	buf.Write(tx.Arguments)
	buf.Write(tx.PublicKey)

	return buf.Bytes()
}

// ComputeID derives the transaction's content-hash id from its canonical
// payload. Signature and ID itself are excluded.
func (tx *Transaction) ComputeID() Hash {
	return HashBytes(tx.canonicalPayload())
}

// Sign computes the transaction id and signs it with privKey, setting
// both ID, PublicKey and Signature.
func (tx *Transaction) Sign(privKey *secp256k1.PrivateKey) error {
	tx.PublicKey = privKey.PubKey().SerializeCompressed()
	tx.ID = tx.ComputeID()
	sig := ecdsa.Sign(privKey, tx.ID[:])
	tx.Signature = sig.Serialize()
	return nil
}

// VerifySignature checks that tx.Signature is a valid signature over
// tx.ComputeID() by tx.PublicKey. Coinbase transactions are exempt: they
// carry no real input and are implicitly authorized by successful block
// validation instead.
func (tx *Transaction) VerifySignature() (bool, error) {
	if tx.Kind == TxCoinbase {
		return true, nil
	}
	if len(tx.PublicKey) == 0 || len(tx.Signature) == 0 {
		return false, nodeerrors.ErrInvalidPublicKey
	}
	pubKey, err := secp256k1.ParsePubKey(tx.PublicKey)
	if err != nil {
		return false, fmt.Errorf("%w: %v", nodeerrors.ErrInvalidPublicKey, err)
	}
	sig, err := ecdsa.ParseDERSignature(tx.Signature)
	if err != nil {
		return false, fmt.Errorf("%w: %v", nodeerrors.ErrInvalidSignature, err)
	}
	id := tx.ComputeID()
	if !sig.Verify(id[:], pubKey) {
		return false, nodeerrors.ErrInvalidSignature
	}
	return true, nil
}

// SenderAddress returns the address derived from the transaction's
// public key. Empty for Coinbase transactions, which have no sender.
func (tx *Transaction) SenderAddress() (Address, bool) {
	if len(tx.PublicKey) == 0 {
		return Address{}, false
	}
	pubKey, err := secp256k1.ParsePubKey(tx.PublicKey)
	if err != nil {
		return Address{}, false
	}
	return DeriveAddress(pubKey), true
}

// Validate performs the structural checks the VM harness runs before
// dispatch: a transaction must be non-null and carry at least one input
// or output (spec §4.G, §8 boundary behavior).
func (tx *Transaction) Validate() error {
	if tx.ID.IsZero() {
		return nodeerrors.ErrInvalidTransactionID
	}
	if len(tx.Inputs) == 0 && len(tx.Outputs) == 0 {
		return nodeerrors.ErrEmptyTransaction
	}
	switch tx.Kind {
	case TxRegular, TxCoinbase, TxContractDeploy, TxContractCall:
	default:
		return nodeerrors.ErrUnknownTransactionKind
	}
	return nil
}

// NewCoinbaseTransaction builds the reward transaction a proposer includes
// as the first transaction of a block.
func NewCoinbaseTransaction(proposer Address, reward uint64, timestamp int64) *Transaction {
	tx := &Transaction{
		Version:   1,
		Kind:      TxCoinbase,
		Timestamp: timestamp,
		Outputs:   []TxOutput{{Value: reward, RecipientAddress: proposer}},
	}
	tx.ID = tx.ComputeID()
	return tx
}

// NewContractDeployTransaction builds an unsigned contract-deployment
// transaction; call Sign before including it in a block.
func NewContractDeployTransaction(code []byte, fee uint64, feePayer Address, timestamp int64) *Transaction {
	return &Transaction{
		Version:       1,
		Kind:          TxContractDeploy,
		Timestamp:     timestamp,
		ContractCode:  code,
		Outputs:       []TxOutput{{Value: fee, RecipientAddress: feePayer}},
	}
}

// NewContractCallTransaction builds an unsigned contract-call transaction.
func NewContractCallTransaction(target Address, functionName string, args []byte, timestamp int64) *Transaction {
	return &Transaction{
		Version:               1,
		Kind:                  TxContractCall,
		Timestamp:             timestamp,
		TargetContractAddress: target,
		FunctionName:          functionName,
		Arguments:             args,
	}
}

// MarshalCanonicalJSON renders the transaction in the wire form §6
// specifies, for archival and peer transport.
func (tx *Transaction) MarshalCanonicalJSON() ([]byte, error) {
	return json.Marshal(tx)
}
