package mempool_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/empower1-labs/empower1-core/internal/core"
	"github.com/empower1-labs/empower1-core/internal/mempool"
)

func TestAddTransactionAdmitsValidTx(t *testing.T) {
	mp := mempool.New(0, nil)
	tx := core.NewCoinbaseTransaction(core.Address{1}, 50, 1)
	require.NoError(t, mp.AddTransaction(tx))
	require.Equal(t, 1, mp.Count())
	require.True(t, mp.Has(tx.ID))
}

func TestAddTransactionRejectsDuplicate(t *testing.T) {
	mp := mempool.New(0, nil)
	tx := core.NewCoinbaseTransaction(core.Address{1}, 50, 1)
	require.NoError(t, mp.AddTransaction(tx))
	require.Error(t, mp.AddTransaction(tx))
	require.Equal(t, 1, mp.Count())
}

func TestAddTransactionRejectsInvalidTx(t *testing.T) {
	mp := mempool.New(0, nil)
	tx := &core.Transaction{} // zero ID, no inputs/outputs
	require.Error(t, mp.AddTransaction(tx))
	require.Equal(t, 0, mp.Count())
}

func TestAddTransactionRejectsWhenFull(t *testing.T) {
	mp := mempool.New(1, nil)
	tx1 := core.NewCoinbaseTransaction(core.Address{1}, 50, 1)
	tx2 := core.NewCoinbaseTransaction(core.Address{2}, 75, 2)
	require.NoError(t, mp.AddTransaction(tx1))
	require.Error(t, mp.AddTransaction(tx2))
}

func TestRemoveTransaction(t *testing.T) {
	mp := mempool.New(0, nil)
	tx := core.NewCoinbaseTransaction(core.Address{1}, 50, 1)
	require.NoError(t, mp.AddTransaction(tx))
	mp.RemoveTransaction(tx.ID)
	require.False(t, mp.Has(tx.ID))
	require.Equal(t, 0, mp.Count())
}

func TestRemoveBatch(t *testing.T) {
	mp := mempool.New(0, nil)
	tx1 := core.NewCoinbaseTransaction(core.Address{1}, 50, 1)
	tx2 := core.NewCoinbaseTransaction(core.Address{2}, 75, 2)
	require.NoError(t, mp.AddTransaction(tx1))
	require.NoError(t, mp.AddTransaction(tx2))

	mp.RemoveBatch([]core.Transaction{*tx1})
	require.False(t, mp.Has(tx1.ID))
	require.True(t, mp.Has(tx2.ID))
}

func TestGetTransactionsRespectsLimit(t *testing.T) {
	mp := mempool.New(0, nil)
	for i := 0; i < 5; i++ {
		tx := core.NewCoinbaseTransaction(core.Address{byte(i)}, 50, int64(i))
		require.NoError(t, mp.AddTransaction(tx))
	}
	require.Len(t, mp.GetTransactions(3), 3)
	require.Len(t, mp.GetTransactions(0), 5)
}
