package blockchain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/empower1-labs/empower1-core/internal/core"
	"github.com/empower1-labs/empower1-core/internal/nodeerrors"
	"github.com/empower1-labs/empower1-core/internal/receipt"
)

// fakeStore is an in-memory BlockStore test double.
type fakeStore struct {
	byHeight map[uint64]*core.Block
	byHash   map[core.Hash]*core.Block
	tip      uint64
	empty    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byHeight: make(map[uint64]*core.Block),
		byHash:   make(map[core.Hash]*core.Block),
		empty:    true,
	}
}

func (f *fakeStore) Store(b *core.Block) error {
	f.byHeight[b.Header.Height] = b
	f.byHash[b.Hash()] = b
	f.tip = b.Header.Height
	f.empty = false
	return nil
}

func (f *fakeStore) GetByHash(hash core.Hash) (*core.Block, error) {
	b, ok := f.byHash[hash]
	if !ok {
		return nil, nodeerrors.ErrNotFound
	}
	return b, nil
}

func (f *fakeStore) GetByHeight(h uint64) (*core.Block, error) {
	b, ok := f.byHeight[h]
	if !ok {
		return nil, nodeerrors.ErrNotFound
	}
	return b, nil
}

func (f *fakeStore) Latest() (*core.Block, error) {
	if f.empty {
		return nil, nodeerrors.ErrNotFound
	}
	return f.byHeight[f.tip], nil
}

func (f *fakeStore) CurrentHeight() uint64 {
	return f.tip
}

func (f *fakeStore) Has(hash core.Hash) bool {
	_, ok := f.byHash[hash]
	return ok
}

// fakeExecutor is an Executor test double that can be told to reject the
// next block validated or executed against it.
type fakeExecutor struct {
	rejectValidate error
	rejectExecute  error
}

func (f *fakeExecutor) ValidateBlock(block *core.Block) error {
	return f.rejectValidate
}

func (f *fakeExecutor) ExecuteBlock(block *core.Block) (receipt.BlockReceipt, error) {
	if f.rejectExecute != nil {
		return receipt.BlockReceipt{}, f.rejectExecute
	}
	return receipt.NewBlockReceipt(block.Hash(), block.Header.Height, nil, core.ZeroHash, 0), nil
}

func newTestChain(t *testing.T) (*Blockchain, *fakeStore, *fakeExecutor) {
	t.Helper()
	store := newFakeStore()
	exec := &fakeExecutor{}
	bc, err := New(store, exec, nil)
	require.NoError(t, err)
	return bc, store, exec
}

func TestNewRejectsNilCollaborators(t *testing.T) {
	_, err := New(nil, &fakeExecutor{}, nil)
	require.ErrorIs(t, err, ErrBlockchainInit)

	_, err = New(newFakeStore(), nil, nil)
	require.ErrorIs(t, err, ErrBlockchainInit)
}

func TestAddBlockAcceptsGenesisThenSuccessor(t *testing.T) {
	bc, _, _ := newTestChain(t)

	genesis := CreateGenesisBlock(nil, 1000)
	require.NoError(t, bc.AddBlock(genesis))
	require.Equal(t, uint64(0), bc.CurrentHeight())

	latest, err := bc.GetLatestBlock()
	require.NoError(t, err)
	require.Equal(t, genesis.Hash(), latest.Hash())

	block1 := core.NewBlock(1, genesis.Hash(), nil, 1001)
	require.NoError(t, bc.AddBlock(block1))
	require.Equal(t, uint64(1), bc.CurrentHeight())
}

func TestAddBlockRejectsWrongHeight(t *testing.T) {
	bc, _, _ := newTestChain(t)
	genesis := CreateGenesisBlock(nil, 1000)
	require.NoError(t, bc.AddBlock(genesis))

	badHeight := core.NewBlock(5, genesis.Hash(), nil, 1001)
	err := bc.AddBlock(badHeight)
	require.ErrorIs(t, err, ErrInvalidBlockHeight)
}

func TestAddBlockRejectsWrongPreviousHash(t *testing.T) {
	bc, _, _ := newTestChain(t)
	genesis := CreateGenesisBlock(nil, 1000)
	require.NoError(t, bc.AddBlock(genesis))

	badPrev := core.NewBlock(1, core.HashBytes([]byte("wrong")), nil, 1001)
	err := bc.AddBlock(badPrev)
	require.ErrorIs(t, err, ErrInvalidPrevHash)
}

func TestAddBlockRejectsNonZeroGenesisPreviousHash(t *testing.T) {
	bc, _, _ := newTestChain(t)
	genesis := core.NewBlock(0, core.HashBytes([]byte("not zero")), nil, 1000)
	err := bc.AddBlock(genesis)
	require.ErrorIs(t, err, ErrInvalidPrevHash)
}

func TestAddBlockPropagatesExecutorValidationFailure(t *testing.T) {
	bc, _, exec := newTestChain(t)
	exec.rejectValidate = errors.New("bad state transition")

	genesis := CreateGenesisBlock(nil, 1000)
	err := bc.AddBlock(genesis)
	require.Error(t, err)
	_, getErr := bc.GetLatestBlock()
	require.ErrorIs(t, getErr, ErrBlockNotFound)
}

func TestAddBlockDoesNotPersistOnExecutionFailure(t *testing.T) {
	bc, store, exec := newTestChain(t)
	exec.rejectExecute = errors.New("execution failed")

	genesis := CreateGenesisBlock(nil, 1000)
	err := bc.AddBlock(genesis)
	require.Error(t, err)
	require.True(t, store.empty)
}

func TestGetBlockByHeightAndHash(t *testing.T) {
	bc, _, _ := newTestChain(t)
	genesis := CreateGenesisBlock(nil, 1000)
	require.NoError(t, bc.AddBlock(genesis))

	byHeight, err := bc.GetBlockByHeight(0)
	require.NoError(t, err)
	require.Equal(t, genesis.Hash(), byHeight.Hash())

	byHash, err := bc.GetBlockByHash(genesis.Hash())
	require.NoError(t, err)
	require.Equal(t, genesis.Hash(), byHash.Hash())

	_, err = bc.GetBlockByHeight(99)
	require.ErrorIs(t, err, ErrBlockNotFound)

	_, err = bc.GetBlockByHash(core.HashBytes([]byte("nope")))
	require.ErrorIs(t, err, ErrBlockNotFound)
}

func TestGenesisBlockSeedsAllocation(t *testing.T) {
	addr := core.Address{1, 2, 3}
	genesis := CreateGenesisBlock(map[core.Address]uint64{addr: 500}, 1000)
	require.Len(t, genesis.Transactions, 1)
	require.True(t, genesis.VerifyMerkleRoot())
}
