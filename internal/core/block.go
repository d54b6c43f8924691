package core

import (
	"bytes"
	"encoding/binary"

	"github.com/empower1-labs/empower1-core/internal/merkle"
)

// BlockHeader is the portion of a block that is hashed and, for PoW
// chains, must meet the difficulty target.
type BlockHeader struct {
	Version      uint32 `json:"version"`
	PreviousHash Hash   `json:"previous_hash"`
	MerkleRoot   Hash   `json:"merkle_root"`
	Timestamp    int64  `json:"timestamp"`
	Nonce        uint64 `json:"nonce"`
	Difficulty   uint32 `json:"difficulty"`
	Height       uint64 `json:"height"`

	// ProposerAddress and Signature are populated by PoS proposers; they
	// are zero-valued for PoW blocks.
	ProposerAddress Address `json:"proposer_address,omitempty"`
	Signature       []byte  `json:"signature,omitempty"`
}

// encode produces the deterministic byte form used for hashing. Signature
// is excluded: it is produced over this same encoding and therefore
// cannot be part of it.
func (h *BlockHeader) encode() []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, h.Version)
	buf.Write(h.PreviousHash[:])
	buf.Write(h.MerkleRoot[:])
	_ = binary.Write(&buf, binary.BigEndian, h.Timestamp)
	_ = binary.Write(&buf, binary.BigEndian, h.Nonce)
	_ = binary.Write(&buf, binary.BigEndian, h.Difficulty)
	_ = binary.Write(&buf, binary.BigEndian, h.Height)
	buf.Write(h.ProposerAddress[:])
	return buf.Bytes()
}

// Hash computes the block header's content hash.
func (h *BlockHeader) Hash() Hash {
	return HashBytes(h.encode())
}

// Block is a header plus its ordered transactions.
type Block struct {
	Header       BlockHeader   `json:"header"`
	Transactions []Transaction `json:"transactions"`
}

// NewBlock assembles a block and computes its merkle root over the given
// transactions. Nonce, Difficulty (for PoW) or ProposerAddress/Signature
// (for PoS) are filled in afterwards by the consensus engine.
func NewBlock(height uint64, previousHash Hash, txs []Transaction, timestamp int64) *Block {
	b := &Block{
		Header: BlockHeader{
			Version:      1,
			PreviousHash: previousHash,
			Timestamp:    timestamp,
			Height:       height,
		},
		Transactions: txs,
	}
	b.Header.MerkleRoot = b.ComputeMerkleRoot()
	return b
}

// ComputeMerkleRoot recomputes the merkle root over the block's
// transaction ids, per §4.D.
func (b *Block) ComputeMerkleRoot() Hash {
	leaves := make([]merkle.Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		leaves[i] = merkle.Hash(tx.ID)
	}
	tree := merkle.New(leaves)
	return Hash(tree.Root())
}

// Hash returns the block's header hash, which serves as the block's
// identity throughout the block store.
func (b *Block) Hash() Hash {
	return b.Header.Hash()
}

// VerifyMerkleRoot checks invariant I2: the header's merkle_root matches
// a fresh recomputation over the block's transactions.
func (b *Block) VerifyMerkleRoot() bool {
	return b.Header.MerkleRoot == b.ComputeMerkleRoot()
}
