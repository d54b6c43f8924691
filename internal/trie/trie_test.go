package trie_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/empower1-labs/empower1-core/internal/core"
	"github.com/empower1-labs/empower1-core/internal/trie"
)

func TestEmptyTrieRootIsZero(t *testing.T) {
	tr := trie.New()
	require.Equal(t, core.ZeroHash, tr.StateRoot())
}

func TestSetGetRoundTrip(t *testing.T) {
	tr := trie.New()
	tr.Set("account:abc:balance", []byte{1, 2, 3})
	val, ok := tr.Get("account:abc:balance")
	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3}, val)
}

func TestRootChangesOnMutation(t *testing.T) {
	tr := trie.New()
	tr.Set("k", []byte("v1"))
	r1 := tr.StateRoot()
	tr.Set("k", []byte("v2"))
	r2 := tr.StateRoot()
	require.NotEqual(t, r1, r2)
}

// TestSnapshotRoundTrip exercises P10: state_root(restore(create_snapshot(S))) == state_root(S).
func TestSnapshotRoundTrip(t *testing.T) {
	tr := trie.New()
	tr.Set("account:a:balance", []byte{10})
	before := tr.StateRoot()

	snap := tr.CreateSnapshot()
	tr.Set("account:a:balance", []byte{20})
	require.NotEqual(t, before, tr.StateRoot())

	require.NoError(t, tr.RestoreSnapshot(snap))
	require.Equal(t, before, tr.StateRoot())
}

func TestSnapshotIsDetachedFromLiveTree(t *testing.T) {
	tr := trie.New()
	tr.Set("k", []byte("v1"))
	snap := tr.CreateSnapshot()
	tr.Set("k", []byte("v2"))

	require.NoError(t, tr.RestoreSnapshot(snap))
	val, ok := tr.Get("k")
	require.True(t, ok)
	require.Equal(t, []byte("v1"), val)
}

func TestDeleteSnapshotThenRestoreFails(t *testing.T) {
	tr := trie.New()
	tr.Set("k", []byte("v"))
	snap := tr.CreateSnapshot()
	tr.DeleteSnapshot(snap)
	require.Error(t, tr.RestoreSnapshot(snap))
}

func TestKeysWithPrefixScopesResults(t *testing.T) {
	tr := trie.New()
	tr.Set("account:a:balance", []byte{1})
	tr.Set("account:b:balance", []byte{2})
	tr.Set("storage:c:slot0", []byte{3})
	keys := tr.KeysWithPrefix("account:")
	require.Len(t, keys, 2)
}

func TestDeleteRemovesKey(t *testing.T) {
	tr := trie.New()
	tr.Set("k", []byte("v"))
	tr.Delete("k")
	_, ok := tr.Get("k")
	require.False(t, ok)
}
