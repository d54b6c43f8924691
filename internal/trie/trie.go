// Package trie implements the State Trie: a deterministic, hashable,
// snapshot-capable view over accounts, contract storage, and contract
// code. Nodes live in an arena indexed by stable ids (per spec §9's
// redesign of the source's shared-mutable-node trie), with snapshots
// taken as deep copies of the reachable subtree (copy-on-write at the
// snapshot boundary, not on every write).
package trie

import (
	"bytes"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/empower1-labs/empower1-core/internal/core"
	"github.com/empower1-labs/empower1-core/internal/nodeerrors"
)

type nodeID uint64

type node struct {
	key      string
	value    []byte
	isLeaf   bool
	children map[string]nodeID // keyed by child key for canonical ordering
	hash     core.Hash
}

// Trie is the live, mutable state tree plus any retained snapshots.
type Trie struct {
	mu        sync.Mutex
	arena     map[nodeID]*node
	nextID    nodeID
	root      nodeID
	hasRoot   bool
	snapshots map[uuid.UUID]nodeID
	snapArena map[uuid.UUID]map[nodeID]*node
}

// New returns an empty trie.
func New() *Trie {
	return &Trie{
		arena:     make(map[nodeID]*node),
		snapshots: make(map[uuid.UUID]nodeID),
		snapArena: make(map[uuid.UUID]map[nodeID]*node),
	}
}

func (t *Trie) allocate(n *node) nodeID {
	id := t.nextID
	t.nextID++
	t.arena[id] = n
	return id
}

// hashNode computes a node's hash = H(key ∥ value ∥ is_leaf ∥ ordered
// children hashes), recursing bottom-up.
func (t *Trie) hashNode(arena map[nodeID]*node, id nodeID) core.Hash {
	n := arena[id]
	childKeys := make([]string, 0, len(n.children))
	for k := range n.children {
		childKeys = append(childKeys, k)
	}
	sort.Strings(childKeys)

	parts := [][]byte{[]byte(n.key), n.value}
	if n.isLeaf {
		parts = append(parts, []byte{1})
	} else {
		parts = append(parts, []byte{0})
	}
	for _, ck := range childKeys {
		childID := n.children[ck]
		childHash := t.hashNode(arena, childID)
		arena[childID].hash = childHash
		parts = append(parts, []byte(ck), childHash[:])
	}
	h := core.HashConcat(parts...)
	n.hash = h
	return h
}

// Set writes a value at key. Every key is stored as a leaf directly under
// the single root node; no intermediate path nodes are created.
// Keys follow the shapes in §4.C: account:<addr>:field, storage:<contract>:<key>,
// code:<contract>.
func (t *Trie) Set(key string, value []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setLocked(key, value)
}

func (t *Trie) setLocked(key string, value []byte) {
	if !t.hasRoot {
		rootID := t.allocate(&node{key: "", isLeaf: false, children: make(map[string]nodeID)})
		t.root = rootID
		t.hasRoot = true
	}
	leafID, ok := t.arena[t.root].children[key]
	if ok {
		t.arena[leafID].value = value
		return
	}
	leafID = t.allocate(&node{key: key, value: value, isLeaf: true, children: make(map[string]nodeID)})
	t.arena[t.root].children[key] = leafID
}

// Get reads the value stored at key.
func (t *Trie) Get(key string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasRoot {
		return nil, false
	}
	id, ok := t.arena[t.root].children[key]
	if !ok {
		return nil, false
	}
	return t.arena[id].value, true
}

// Delete removes the value stored at key.
func (t *Trie) Delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasRoot {
		return
	}
	delete(t.arena[t.root].children, key)
}

// StateRoot returns the root hash after a bottom-up rehash of the live
// tree.
func (t *Trie) StateRoot() core.Hash {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasRoot {
		return core.ZeroHash
	}
	return t.hashNode(t.arena, t.root)
}

// cloneArenaFrom deep-copies every node reachable from id into a fresh
// arena and returns that arena. Node ids are unchanged in the copy (it is
// a parallel map), so the caller keeps using the same root id.
func cloneArenaFrom(src map[nodeID]*node, root nodeID) map[nodeID]*node {
	dst := make(map[nodeID]*node, len(src))
	var walk func(id nodeID)
	walk = func(id nodeID) {
		if _, done := dst[id]; done {
			return
		}
		n := src[id]
		cp := &node{
			key:      n.key,
			isLeaf:   n.isLeaf,
			hash:     n.hash,
			children: make(map[string]nodeID, len(n.children)),
		}
		cp.value = append([]byte(nil), n.value...)
		for k, cid := range n.children {
			cp.children[k] = cid
			walk(cid)
		}
		dst[id] = cp
	}
	walk(root)
	return dst
}

// CreateSnapshot takes a deep copy of the live tree's reachable subtree
// and returns an opaque id for later restore/delete.
func (t *Trie) CreateSnapshot() uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := uuid.New()
	if !t.hasRoot {
		t.snapshots[id] = 0
		t.snapArena[id] = make(map[nodeID]*node)
		return id
	}
	t.snapArena[id] = cloneArenaFrom(t.arena, t.root)
	t.snapshots[id] = t.root
	return id
}

// RestoreSnapshot replaces the live root with a deep copy of the
// snapshot's tree.
func (t *Trie) RestoreSnapshot(id uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapRoot, ok := t.snapshots[id]
	if !ok {
		return nodeerrors.ErrNotFound
	}
	snapArena := t.snapArena[id]
	if len(snapArena) == 0 {
		t.hasRoot = false
		t.arena = make(map[nodeID]*node)
		return nil
	}
	t.arena = cloneArenaFrom(snapArena, snapRoot)
	t.root = snapRoot
	t.hasRoot = true
	return nil
}

// DeleteSnapshot discards a previously created snapshot.
func (t *Trie) DeleteSnapshot(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.snapshots, id)
	delete(t.snapArena, id)
}

// Validate recomputes the live tree's hash on a copy and reports whether
// it matches the root's cached hash (or the root has no cached hash yet).
// Only the root's cached hash is compared.
func (t *Trie) Validate() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasRoot {
		return true
	}
	cloned := cloneArenaFrom(t.arena, t.root)
	return t.hashNode(cloned, t.root) == t.arena[t.root].hash || t.arena[t.root].hash == core.ZeroHash
}

// Keys returns every leaf key currently set, sorted, for serialization
// and iteration helpers (account enumeration, storage scans).
func (t *Trie) Keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasRoot {
		return nil
	}
	keys := make([]string, 0, len(t.arena[t.root].children))
	for k := range t.arena[t.root].children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// KeysWithPrefix returns sorted leaf keys beginning with prefix.
func (t *Trie) KeysWithPrefix(prefix string) []string {
	all := t.Keys()
	out := make([]string, 0, len(all))
	for _, k := range all {
		if len(k) >= len(prefix) && bytes.HasPrefix([]byte(k), []byte(prefix)) {
			out = append(out, k)
		}
	}
	return out
}
