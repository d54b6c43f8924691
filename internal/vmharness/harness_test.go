package vmharness_test

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/empower1-labs/empower1-core/internal/core"
	"github.com/empower1-labs/empower1-core/internal/trie"
	"github.com/empower1-labs/empower1-core/internal/vmharness"
)

// fakeVM is a minimal VM collaborator for exercising dispatch without a
// real bytecode interpreter.
type fakeVM struct {
	deployAddr core.Address
	deployErr  error
	callRet    []byte
	callGas    uint64
	callErr    error
}

func (f *fakeVM) Deploy(deployer core.Address, nonce uint64, code []byte) (core.Address, uint64, error) {
	if f.deployErr != nil {
		return core.Address{}, 0, f.deployErr
	}
	return f.deployAddr, 50_000, nil
}

func (f *fakeVM) Call(target core.Address, calldata []byte) (uint64, []byte, error) {
	if f.callErr != nil {
		return 0, nil, f.callErr
	}
	return f.callGas, f.callRet, nil
}

func newSignedTransfer(t *testing.T, priv *secp256k1.PrivateKey, to core.Address, value uint64) core.Transaction {
	t.Helper()
	tx := core.Transaction{
		Version:   1,
		Kind:      core.TxRegular,
		Timestamp: 1,
		Outputs:   []core.TxOutput{{Value: value, RecipientAddress: to}},
	}
	require.NoError(t, tx.Sign(priv))
	return tx
}

func TestExecuteBlockCoinbaseCreditsRecipient(t *testing.T) {
	tr := trie.New()
	h := vmharness.New(tr, &fakeVM{})

	recipient := core.Address{9}
	coinbase := core.NewCoinbaseTransaction(recipient, 500, 1)
	block := core.NewBlock(1, core.ZeroHash, []core.Transaction{*coinbase}, 1)

	br, err := h.ExecuteBlock(block)
	require.NoError(t, err)
	require.Equal(t, uint64(0), br.TotalGasUsed)
	require.NoError(t, br.Validate())
}

func TestExecuteBlockRegularTransferMovesBalance(t *testing.T) {
	tr := trie.New()
	h := vmharness.New(tr, &fakeVM{})

	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	sender := core.DeriveAddress(priv.PubKey())
	recipient := core.Address{7}

	coinbase := core.NewCoinbaseTransaction(sender, 1000, 1)
	fundBlock := core.NewBlock(1, core.ZeroHash, []core.Transaction{*coinbase}, 1)
	_, err = h.ExecuteBlock(fundBlock)
	require.NoError(t, err)

	transfer := newSignedTransfer(t, priv, recipient, 300)
	transferBlock := core.NewBlock(2, fundBlock.Hash(), []core.Transaction{transfer}, 2)

	br, err := h.ExecuteBlock(transferBlock)
	require.NoError(t, err)
	require.Equal(t, uint64(vmharness.RegularTxGasCost), br.TotalGasUsed)
	require.Len(t, br.Receipts, 1)
	require.True(t, br.Receipts[0].Success)
	require.Equal(t, int64(700), h.AccountSnapshot(sender).Balance.Int64())
	require.Equal(t, int64(300), h.AccountSnapshot(recipient).Balance.Int64())
}

func TestExecuteBlockRejectsInsufficientFundsAndRollsBack(t *testing.T) {
	tr := trie.New()
	h := vmharness.New(tr, &fakeVM{})

	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	recipient := core.Address{7}

	rootBefore := h.StateRoot()

	transfer := newSignedTransfer(t, priv, recipient, 300)
	block := core.NewBlock(1, core.ZeroHash, []core.Transaction{transfer}, 1)

	_, err = h.ExecuteBlock(block)
	require.Error(t, err)
	require.Equal(t, rootBefore, h.StateRoot())
}

func TestExecuteBlockContractDeployAssignsAddress(t *testing.T) {
	tr := trie.New()
	deployed := core.Address{42}
	h := vmharness.New(tr, &fakeVM{deployAddr: deployed})

	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	deployTx := core.NewContractDeployTransaction([]byte{0x60, 0x00}, 0, core.Address{}, 1)
	require.NoError(t, deployTx.Sign(priv))
	block := core.NewBlock(1, core.ZeroHash, []core.Transaction{*deployTx}, 1)

	br, err := h.ExecuteBlock(block)
	require.NoError(t, err)
	require.Equal(t, deployed, br.Receipts[0].ContractAddress)
	require.Equal(t, uint64(50_000), br.TotalGasUsed)
}

func TestValidateBlockAcceptsEmptyGenesisBlock(t *testing.T) {
	tr := trie.New()
	h := vmharness.New(tr, &fakeVM{})

	genesis := core.NewBlock(0, core.ZeroHash, nil, 1)
	require.NoError(t, h.ValidateBlock(genesis))
}

func TestValidateBlockRejectsEmptyNonGenesisBlock(t *testing.T) {
	tr := trie.New()
	h := vmharness.New(tr, &fakeVM{})

	block := core.NewBlock(1, core.ZeroHash, nil, 1)
	require.Error(t, h.ValidateBlock(block))
}

func TestExecuteBlockRejectsBadMerkleRoot(t *testing.T) {
	tr := trie.New()
	h := vmharness.New(tr, &fakeVM{})

	coinbase := core.NewCoinbaseTransaction(core.Address{1}, 10, 1)
	block := core.NewBlock(1, core.ZeroHash, []core.Transaction{*coinbase}, 1)
	block.Header.MerkleRoot = core.Hash{0xFF}

	_, err := h.ExecuteBlock(block)
	require.Error(t, err)
}
