package network

import (
	"fmt"
	"log"
	"sync"

	"github.com/empower1-labs/empower1-core/internal/core"
)

// MessageHandler handles a message of a type SimulatedNetwork has no
// built-in routing for.
type MessageHandler func(peerID string, messageType string, data []byte)

// GossipMessage is a tagged union of the two things peers broadcast to
// each other: a new block or a new transaction. Exactly one of Block or
// Tx is set.
type GossipMessage struct {
	Type  string
	Block *core.Block
	Tx    *core.Transaction
}

const (
	msgTypeNewBlock = "NEW_BLOCK"
	msgTypeNewTx    = "NEW_TRANSACTION"
)

// Peer represents a connected node in the simulated network.
type Peer struct {
	ID               string
	IncomingMessages chan GossipMessage
	stopChan         chan struct{}
	wg               sync.WaitGroup
	network          *SimulatedNetwork
}

// NewPeer creates a new Peer instance.
func NewPeer(id string, net *SimulatedNetwork) *Peer {
	return &Peer{
		ID:               id,
		IncomingMessages: make(chan GossipMessage, 100),
		stopChan:         make(chan struct{}),
		network:          net,
	}
}

// processMessages routes messages arriving on this peer's inbox to the
// network's public reception channels.
func (p *Peer) processMessages() {
	defer p.wg.Done()
	for {
		select {
		case msg, ok := <-p.IncomingMessages:
			if !ok {
				return
			}
			switch msg.Type {
			case msgTypeNewBlock:
				select {
				case p.network.BlockBroadcastChannel <- msg.Block:
				default:
					log.Printf("SIMNET [%s]: block reception channel full, dropping block from peer %s", p.network.NodeID, p.ID)
				}
			case msgTypeNewTx:
				select {
				case p.network.TransactionBroadcastChannel <- msg.Tx:
				default:
					log.Printf("SIMNET [%s]: tx reception channel full, dropping tx from peer %s", p.network.NodeID, p.ID)
				}
			default:
				if p.network.messageHandler != nil {
					p.network.messageHandler(p.ID, msg.Type, nil)
				}
			}
		case <-p.stopChan:
			return
		}
	}
}

// StartProcessor starts the peer's message processor goroutine.
func (p *Peer) StartProcessor() {
	p.wg.Add(1)
	go p.processMessages()
}

// StopProcessor signals the peer's message processor to stop and waits
// for it to exit.
func (p *Peer) StopProcessor() {
	close(p.stopChan)
	p.wg.Wait()
}

// SimulatedNetwork is an in-memory gossip simulation: peers connected to
// it relay broadcasted blocks/transactions onto its public reception
// channels. It complements Hub/PeerClient, which serve Fast Sync's
// pull-based header/block requests; this type serves push-based gossip.
type SimulatedNetwork struct {
	NodeID                      string
	mu                          sync.RWMutex
	messageHandler              MessageHandler
	BlockBroadcastChannel       chan *core.Block
	TransactionBroadcastChannel chan *core.Transaction
	peers                       map[string]*Peer
}

// NewSimulatedNetwork creates a new SimulatedNetwork instance.
func NewSimulatedNetwork(nodeID string) *SimulatedNetwork {
	if nodeID == "" {
		nodeID = "default_sim_node"
	}
	return &SimulatedNetwork{
		NodeID:                      nodeID,
		BlockBroadcastChannel:       make(chan *core.Block, 100),
		TransactionBroadcastChannel: make(chan *core.Transaction, 100),
		peers:                       make(map[string]*Peer),
	}
}

// ConnectPeer adds another node to this node's peer list, starting its
// message processor. Reconnecting to an already-connected peer ID
// returns the existing Peer.
func (sn *SimulatedNetwork) ConnectPeer(peerNodeID string) (*Peer, error) {
	if peerNodeID == "" {
		return nil, fmt.Errorf("SIMNET [%s]: cannot connect to peer with empty ID", sn.NodeID)
	}
	if sn.NodeID == peerNodeID {
		return nil, fmt.Errorf("SIMNET [%s]: cannot connect to self", sn.NodeID)
	}
	sn.mu.Lock()
	defer sn.mu.Unlock()

	if existing, ok := sn.peers[peerNodeID]; ok {
		return existing, nil
	}

	peer := NewPeer(peerNodeID, sn)
	peer.StartProcessor()
	sn.peers[peerNodeID] = peer
	return peer, nil
}

// DisconnectPeer removes a peer and stops its processor.
func (sn *SimulatedNetwork) DisconnectPeer(peerNodeID string) {
	sn.mu.Lock()
	peer, exists := sn.peers[peerNodeID]
	if !exists {
		sn.mu.Unlock()
		return
	}
	delete(sn.peers, peerNodeID)
	sn.mu.Unlock()

	peer.StopProcessor()
}

func (sn *SimulatedNetwork) sendToPeers(msg GossipMessage) {
	sn.mu.RLock()
	peers := make([]*Peer, 0, len(sn.peers))
	for _, p := range sn.peers {
		peers = append(peers, p)
	}
	sn.mu.RUnlock()

	for _, peer := range peers {
		select {
		case peer.IncomingMessages <- msg:
		default:
			log.Printf("SIMNET [%s]: peer %s inbox full for type %s, message dropped", sn.NodeID, peer.ID, msg.Type)
		}
	}
}

// BroadcastBlock sends a block to every connected peer.
func (sn *SimulatedNetwork) BroadcastBlock(block *core.Block) {
	if block == nil {
		return
	}
	sn.sendToPeers(GossipMessage{Type: msgTypeNewBlock, Block: block})
}

// BroadcastTransaction sends a transaction to every connected peer.
func (sn *SimulatedNetwork) BroadcastTransaction(tx *core.Transaction) {
	if tx == nil {
		return
	}
	sn.sendToPeers(GossipMessage{Type: msgTypeNewTx, Tx: tx})
}

// RegisterMessageHandler sets a handler invoked for message types this
// network has no built-in routing for.
func (sn *SimulatedNetwork) RegisterMessageHandler(handler MessageHandler) {
	sn.mu.Lock()
	defer sn.mu.Unlock()
	sn.messageHandler = handler
}

// GetBlockReceptionChannel returns a read-only channel of blocks
// broadcast by connected peers.
func (sn *SimulatedNetwork) GetBlockReceptionChannel() <-chan *core.Block {
	return sn.BlockBroadcastChannel
}

// GetTransactionReceptionChannel returns a read-only channel of
// transactions broadcast by connected peers.
func (sn *SimulatedNetwork) GetTransactionReceptionChannel() <-chan *core.Transaction {
	return sn.TransactionBroadcastChannel
}

// SimulateReceive manually injects a message as if it arrived from
// peerID, for tests and demos that don't want to wire a full Peer.
func (sn *SimulatedNetwork) SimulateReceive(peerID string, msg GossipMessage) {
	switch msg.Type {
	case msgTypeNewBlock:
		select {
		case sn.BlockBroadcastChannel <- msg.Block:
		default:
			log.Printf("SIMNET [%s]: block reception channel full during SimulateReceive", sn.NodeID)
		}
	case msgTypeNewTx:
		select {
		case sn.TransactionBroadcastChannel <- msg.Tx:
		default:
			log.Printf("SIMNET [%s]: tx reception channel full during SimulateReceive", sn.NodeID)
		}
	default:
		sn.mu.RLock()
		handler := sn.messageHandler
		sn.mu.RUnlock()
		if handler != nil {
			handler(peerID, msg.Type, nil)
		}
	}
}
