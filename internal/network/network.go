// Package network provides an in-process peer registry used in place of
// a real P2P transport (a Non-goal): nodes register their block store
// with a shared Hub and reach each other directly in memory. It exists
// so Fast Sync (internal/sync) has something concrete to dial against in
// tests and single-process demos.
package network

import (
	"context"
	"fmt"
	"sync"

	"github.com/empower1-labs/empower1-core/internal/core"
	"github.com/empower1-labs/empower1-core/internal/nodeerrors"
	syncpkg "github.com/empower1-labs/empower1-core/internal/sync"
)

// BlockSource is the subset of a peer's block store the Hub needs to
// serve header/block range requests; satisfied by *blockstore.Store.
type BlockSource interface {
	CurrentHeight() uint64
	GetByHeight(h uint64) (*core.Block, error)
	Range(lo, hi uint64) ([]*core.Block, error)
}

// Hub is a process-wide registry of reachable nodes, keyed by address.
type Hub struct {
	mu    sync.RWMutex
	nodes map[string]BlockSource
}

// NewHub constructs an empty registry.
func NewHub() *Hub {
	return &Hub{nodes: make(map[string]BlockSource)}
}

// Register makes a node's block store reachable under address. Calling
// Register again with the same address replaces the prior registration.
func (h *Hub) Register(address string, source BlockSource) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nodes[address] = source
}

// Deregister removes a node from the registry.
func (h *Hub) Deregister(address string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.nodes, address)
}

// PeerClient adapts a Hub into the sync.PeerSource a single node dials
// through, excluding the node's own address from its peer list.
type PeerClient struct {
	hub  *Hub
	self string
}

// NewPeerClient returns a PeerClient that treats self as the local
// node's address, so it is never returned from ConnectedPeers.
func NewPeerClient(hub *Hub, self string) *PeerClient {
	return &PeerClient{hub: hub, self: self}
}

var _ syncpkg.PeerSource = (*PeerClient)(nil)

// ConnectedPeers reports every other registered node's address and
// current chain height.
func (c *PeerClient) ConnectedPeers(ctx context.Context) ([]syncpkg.PeerInfo, error) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	peers := make([]syncpkg.PeerInfo, 0, len(c.hub.nodes))
	for addr, src := range c.hub.nodes {
		if addr == c.self {
			continue
		}
		peers = append(peers, syncpkg.PeerInfo{Address: addr, Height: src.CurrentHeight()})
	}
	return peers, nil
}

func (c *PeerClient) peerSource(peer syncpkg.PeerInfo) (BlockSource, error) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	src, ok := c.hub.nodes[peer.Address]
	if !ok {
		return nil, fmt.Errorf("%w: peer %s not registered", nodeerrors.ErrInsufficientPeers, peer.Address)
	}
	return src, nil
}

// FetchHeaders returns the headers of up to count blocks starting at
// startHeight from peer's chain.
func (c *PeerClient) FetchHeaders(ctx context.Context, peer syncpkg.PeerInfo, startHeight uint64, count uint32) ([]core.BlockHeader, error) {
	src, err := c.peerSource(peer)
	if err != nil {
		return nil, err
	}
	blocks, err := src.Range(startHeight, startHeight+uint64(count)-1)
	if err != nil {
		return nil, err
	}
	headers := make([]core.BlockHeader, len(blocks))
	for i, b := range blocks {
		headers[i] = b.Header
	}
	return headers, nil
}

// FetchBlocks returns up to count full blocks starting at startHeight
// from peer's chain.
func (c *PeerClient) FetchBlocks(ctx context.Context, peer syncpkg.PeerInfo, startHeight uint64, count uint32) ([]*core.Block, error) {
	src, err := c.peerSource(peer)
	if err != nil {
		return nil, err
	}
	return src.Range(startHeight, startHeight+uint64(count)-1)
}
