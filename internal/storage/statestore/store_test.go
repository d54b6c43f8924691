package statestore_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/empower1-labs/empower1-core/internal/core"
	"github.com/empower1-labs/empower1-core/internal/storage/statestore"
)

func openTestStore(t *testing.T) *statestore.Store {
	t.Helper()
	store, err := statestore.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreAndGetAccount(t *testing.T) {
	store := openTestStore(t)
	addr := core.Address{1, 2, 3}
	acct := core.NewAccount(addr)
	acct.Balance = big.NewInt(100)
	acct.Nonce = 3

	require.NoError(t, store.StoreAccount(acct))
	require.Equal(t, uint64(1), store.AccountCount())

	got, err := store.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, int64(100), got.Balance.Int64())
	require.Equal(t, uint64(3), got.Nonce)
}

func TestAccountCounterIncrementsOnceForOverwrite(t *testing.T) {
	store := openTestStore(t)
	addr := core.Address{9}
	acct := core.NewAccount(addr)
	require.NoError(t, store.StoreAccount(acct))
	acct.Nonce = 1
	require.NoError(t, store.StoreAccount(acct))
	require.Equal(t, uint64(1), store.AccountCount())
}

func TestDeleteAccountDecrementsCounter(t *testing.T) {
	store := openTestStore(t)
	addr := core.Address{4}
	require.NoError(t, store.StoreAccount(core.NewAccount(addr)))
	require.NoError(t, store.DeleteAccount(addr))
	require.Equal(t, uint64(0), store.AccountCount())
	require.False(t, store.HasAccount(addr))
}

func TestCounterDecrementSaturatesAtZero(t *testing.T) {
	store := openTestStore(t)
	addr := core.Address{5}
	require.NoError(t, store.DeleteAccount(addr)) // never existed
	require.Equal(t, uint64(0), store.AccountCount())
}

func TestContractStorageRoundTrip(t *testing.T) {
	store := openTestStore(t)
	contract := core.Address{7}
	require.NoError(t, store.StoreContractStorage(contract, "slot0", []byte("value")))
	got, err := store.GetContractStorage(contract, "slot0")
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)
	require.Equal(t, uint64(1), store.StorageEntryCount())
}

func TestAllForContractScopesToPrefix(t *testing.T) {
	store := openTestStore(t)
	a, b := core.Address{1}, core.Address{2}
	require.NoError(t, store.StoreContractStorage(a, "k1", []byte("v1")))
	require.NoError(t, store.StoreContractStorage(b, "k1", []byte("v2")))
	entries, err := store.AllForContract(a)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, []byte("v1"), entries["k1"])
}

// TestPruneRetainsReferencedAndNonEmptyAccounts exercises scenario S6.
func TestPruneRetainsReferencedAndNonEmptyAccounts(t *testing.T) {
	store := openTestStore(t)
	x, y, z := core.Address{'X'}, core.Address{'Y'}, core.Address{'Z'}

	acctX := core.NewAccount(x)
	acctX.Balance = big.NewInt(10)
	require.NoError(t, store.StoreAccount(acctX))

	acctY := core.NewAccount(y)
	acctY.Balance = big.NewInt(0)
	require.NoError(t, store.StoreAccount(acctY))

	acctZ := core.NewAccount(z) // zero balance, no code, no storage, nonce 0
	require.NoError(t, store.StoreAccount(acctZ))

	referenced := map[core.Address]struct{}{x: {}, y: {}}
	pruned, err := store.Prune(referenced)
	require.NoError(t, err)
	require.Equal(t, 1, pruned)

	require.True(t, store.HasAccount(x))
	require.True(t, store.HasAccount(y))
	require.False(t, store.HasAccount(z))
}
