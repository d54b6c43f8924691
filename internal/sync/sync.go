// Package sync implements Fast Sync: headers-first, multi-peer,
// pipelined download and verification, grounded on
// original_source/src/sync/fast_sync_manager.cpp and
// include/sync/fast_sync.h.
package sync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/empower1-labs/empower1-core/internal/core"
	"github.com/empower1-labs/empower1-core/internal/nodeerrors"
)

// Mode selects the download strategy, per spec §4.H.
type Mode int

const (
	ModeFull Mode = iota
	ModeFast
	ModeLight
	ModeCustom
)

// Status is a phase of the sync state machine.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusDownloadingHeaders
	StatusDownloadingBlocks
	StatusVerifyingState
	StatusCompleted
	StatusFailed
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusConnecting:
		return "Connecting"
	case StatusDownloadingHeaders:
		return "DownloadingHeaders"
	case StatusDownloadingBlocks:
		return "DownloadingBlocks"
	case StatusVerifyingState:
		return "VerifyingState"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusPaused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// PeerInfo is a connected peer's reported height, used to select sync
// sources and discover the target height.
type PeerInfo struct {
	Address string
	Height  uint64
}

// PeerSource is the external collaborator that knows how to reach peers.
// A real implementation dials the node's transport; tests substitute an
// in-memory fake.
type PeerSource interface {
	ConnectedPeers(ctx context.Context) ([]PeerInfo, error)
	FetchHeaders(ctx context.Context, peer PeerInfo, startHeight uint64, count uint32) ([]core.BlockHeader, error)
	FetchBlocks(ctx context.Context, peer PeerInfo, startHeight uint64, count uint32) ([]*core.Block, error)
}

// BlockSink is the subset of the Block Store Fast Sync writes into and
// reads the current tip from.
type BlockSink interface {
	Has(hash core.Hash) bool
	Store(b *core.Block) error
	CurrentHeight() uint64
}

// StateVerifier is the subset of the VM Execution Harness used to verify
// a downloaded block's state transition during Fast mode's verification
// phase.
type StateVerifier interface {
	ValidateBlock(block *core.Block) error
}

// Config holds the tunables named in spec §7's Sync section.
type Config struct {
	Mode Mode

	MaxPeers            uint32
	MinPeers            uint32
	ConnectionTimeout   time.Duration
	MaxConcurrentDownloads uint32
	BatchSize           uint32
	MaxHeadersInFlight  uint32
	MaxBlocksInFlight   uint32

	VerifyHeaders      bool
	VerifyBlocks       bool
	VerifyState        bool
	VerificationWorkers uint32

	HeaderTimeout time.Duration
	BlockTimeout  time.Duration
	StateTimeout  time.Duration

	MaxRetries uint32
	RetryDelay time.Duration

	ProgressCallback func(current, target uint64, status Status)
}

// Validate reports configuration errors named in spec §7.
func (c Config) Validate() error {
	if c.MinPeers > c.MaxPeers {
		return nodeerrors.ErrPeerBoundsInvalid
	}
	if c.BatchSize == 0 {
		return nodeerrors.ErrZeroBatchSize
	}
	return nil
}

// Statistics tracks download/verification progress, extended with
// blocks_per_second/bytes_downloaded/peers_used folded back from
// original_source's SyncStatistics (dropped by the distillation).
type Statistics struct {
	HeadersDownloaded uint64
	BlocksDownloaded  uint64
	BytesDownloaded   uint64
	HeadersVerified   uint64
	BlocksVerified    uint64
	StateVerified     uint64

	StartTime  time.Time
	LastUpdate time.Time

	ActivePeers uint32
	FailedPeers uint32
	RetryCount  uint32

	DownloadRateMbps               float64
	VerificationRateHps            float64
	EstimatedCompletionTimeSeconds float64
	BlocksPerSecond                float64
	PeersUsed                      int
}

// Manager drives a single sync session from the node's local height to
// a discovered target height.
type Manager struct {
	cfg Config
	log *zap.SugaredLogger

	peers    PeerSource
	sink     BlockSink
	verifier StateVerifier

	mu     sync.Mutex
	status Status
	paused bool
	pauseCond *sync.Cond

	targetHeight  uint64
	currentHeight uint64

	statsMu sync.Mutex
	stats   Statistics

	headersInFlight map[uint64]struct{}
	blocksInFlight  map[uint64]struct{}
	inFlightMu      sync.Mutex

	cancel context.CancelFunc
}

// New constructs a Fast Sync manager.
func New(cfg Config, peers PeerSource, sink BlockSink, verifier StateVerifier, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	m := &Manager{
		cfg:             cfg,
		log:             log,
		peers:           peers,
		sink:            sink,
		verifier:        verifier,
		status:          StatusIdle,
		headersInFlight: make(map[uint64]struct{}),
		blocksInFlight:  make(map[uint64]struct{}),
	}
	m.pauseCond = sync.NewCond(&m.mu)
	return m
}

// Status returns the current phase of the sync state machine.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	cur, tgt := m.currentHeight, m.targetHeight
	m.mu.Unlock()
	if m.cfg.ProgressCallback != nil {
		m.cfg.ProgressCallback(cur, tgt, s)
	}
}

// Progress returns current_height/target_height, clamped to [0,1].
func (m *Manager) Progress() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.targetHeight == 0 {
		return 0
	}
	p := float64(m.currentHeight) / float64(m.targetHeight)
	if p > 1 {
		p = 1
	}
	return p
}

// Statistics returns a copy of the rolling download/verification stats.
func (m *Manager) Statistics() Statistics {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}

// Pause blocks sync workers at their next checkpoint until Resume is
// called.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
	m.status = StatusPaused
}

// Resume wakes any workers blocked by Pause. It does not restore the
// status that was active before pausing; Status keeps reporting Paused
// until Run's next phase transition sets a new status.
func (m *Manager) Resume() {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
	m.pauseCond.Broadcast()
}

func (m *Manager) waitIfPaused(ctx context.Context) error {
	m.mu.Lock()
	for m.paused {
		done := make(chan struct{})
		go func() {
			m.mu.Lock()
			for m.paused {
				m.pauseCond.Wait()
			}
			m.mu.Unlock()
			close(done)
		}()
		m.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		m.mu.Lock()
	}
	m.mu.Unlock()
	return nil
}

// Stop cancels an in-progress sync; all worker goroutines exit at their
// next checkpoint.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.paused = false
	m.mu.Unlock()
	m.pauseCond.Broadcast()
	if cancel != nil {
		cancel()
	}
}

// Run drives the full sync pipeline to completion or failure. It blocks
// until the session reaches Completed or Failed, or ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.cfg.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()
	defer cancel()

	m.statsMu.Lock()
	m.stats.StartTime = time.Now()
	m.statsMu.Unlock()

	m.setStatus(StatusConnecting)
	selected, err := m.connectToPeers(ctx)
	if err != nil {
		m.setStatus(StatusFailed)
		return err
	}

	target, err := m.discoverTargetHeight(ctx, selected)
	if err != nil {
		m.setStatus(StatusFailed)
		return err
	}
	m.mu.Lock()
	m.targetHeight = target
	m.currentHeight = m.sink.CurrentHeight()
	m.mu.Unlock()

	m.setStatus(StatusDownloadingHeaders)
	if err := m.downloadHeaders(ctx, selected); err != nil {
		m.setStatus(StatusFailed)
		return err
	}

	m.setStatus(StatusDownloadingBlocks)
	if err := m.downloadBlocks(ctx, selected); err != nil {
		m.setStatus(StatusFailed)
		return err
	}

	if m.cfg.Mode == ModeFast && m.cfg.VerifyState {
		m.setStatus(StatusVerifyingState)
		if err := m.verifyState(ctx); err != nil {
			m.setStatus(StatusFailed)
			return err
		}
	}

	m.updateRates()
	m.setStatus(StatusCompleted)
	return nil
}

// updateRates recomputes the rolling rate statistics from elapsed wall
// time, mirroring calculateDownloadRate/calculateVerificationRate/
// estimateTimeToCompletion in original_source.
func (m *Manager) updateRates() {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	now := time.Now()
	elapsed := now.Sub(m.stats.StartTime).Seconds()
	m.stats.LastUpdate = now
	if elapsed <= 0 {
		return
	}

	m.stats.DownloadRateMbps = float64(m.stats.BytesDownloaded) / (1024 * 1024) / elapsed
	m.stats.VerificationRateHps = float64(m.stats.HeadersVerified) / elapsed
	m.stats.BlocksPerSecond = float64(m.stats.BlocksDownloaded) / elapsed

	m.mu.Lock()
	remaining := float64(0)
	if m.targetHeight > m.currentHeight {
		remaining = float64(m.targetHeight - m.currentHeight)
	}
	m.mu.Unlock()
	if m.stats.BlocksPerSecond > 0 {
		m.stats.EstimatedCompletionTimeSeconds = remaining / m.stats.BlocksPerSecond
	}
}

// connectToPeers requires min_peers and selects up to max_peers sorted
// by reported height, descending (best-informed peers first).
func (m *Manager) connectToPeers(ctx context.Context) ([]PeerInfo, error) {
	all, err := m.peers.ConnectedPeers(ctx)
	if err != nil {
		return nil, err
	}
	if uint32(len(all)) < m.cfg.MinPeers {
		return nil, nodeerrors.ErrInsufficientPeers
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Height > all[j].Height })
	if uint32(len(all)) > m.cfg.MaxPeers {
		all = all[:m.cfg.MaxPeers]
	}
	m.statsMu.Lock()
	m.stats.ActivePeers = uint32(len(all))
	m.stats.PeersUsed = len(all)
	m.statsMu.Unlock()
	return all, nil
}

// discoverTargetHeight takes the median reported height across selected
// peers to reject outliers.
func (m *Manager) discoverTargetHeight(_ context.Context, peers []PeerInfo) (uint64, error) {
	if len(peers) == 0 {
		return 0, nodeerrors.ErrInsufficientPeers
	}
	heights := make([]uint64, len(peers))
	for i, p := range peers {
		heights[i] = p.Height
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	return heights[len(heights)/2], nil
}

// downloadHeaders enqueues missing heights and fans work out across an
// errgroup-bounded worker pool, verifying the received chain is
// contiguous before accepting it.
func (m *Manager) downloadHeaders(ctx context.Context, peers []PeerInfo) error {
	m.mu.Lock()
	from, to := m.currentHeight+1, m.targetHeight
	m.mu.Unlock()
	if from > to {
		return nil
	}

	sem := make(chan struct{}, max32(m.cfg.MaxConcurrentDownloads, 1))
	g, gctx := errgroup.WithContext(ctx)

	var headersMu sync.Mutex
	headers := make(map[uint64]core.BlockHeader)

	for start := from; start <= to; start += uint64(m.cfg.BatchSize) {
		start := start
		count := uint32(m.cfg.BatchSize)
		if remaining := to - start + 1; remaining < uint64(count) {
			count = uint32(remaining)
		}
		peer := peers[int(start)%len(peers)]

		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			if err := m.waitIfPaused(gctx); err != nil {
				return err
			}
			m.markInFlight(m.headersInFlight, start, true)
			defer m.markInFlight(m.headersInFlight, start, false)

			batch, err := m.peers.FetchHeaders(gctx, peer, start, count)
			if err != nil {
				return fmt.Errorf("fetch headers from %s: %w", peer.Address, err)
			}
			headersMu.Lock()
			for i, h := range batch {
				headers[start+uint64(i)] = h
			}
			headersMu.Unlock()
			m.statsMu.Lock()
			m.stats.HeadersDownloaded += uint64(len(batch))
			m.statsMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if m.cfg.VerifyHeaders {
		if err := m.verifyHeaderChain(headers, from, to); err != nil {
			return err
		}
	}
	return nil
}

// verifyHeaderChain checks each header's previous_hash matches the prior
// header's hash and heights are contiguous.
func (m *Manager) verifyHeaderChain(headers map[uint64]core.BlockHeader, from, to uint64) error {
	prevHeight := from - 1
	prevHash, err := m.previousHash(prevHeight)
	if err != nil {
		return err
	}
	for h := from; h <= to; h++ {
		hdr, ok := headers[h]
		if !ok {
			return nodeerrors.ErrHeaderChainInvalid
		}
		if hdr.Height != h || hdr.PreviousHash != prevHash {
			return nodeerrors.ErrHeaderChainInvalid
		}
		prevHash = hdr.Hash()
		m.statsMu.Lock()
		m.stats.HeadersVerified++
		m.statsMu.Unlock()
	}
	return nil
}

// previousHash returns the hash of the already-accepted block at height
// (the genesis block when height is 0).
func (m *Manager) previousHash(height uint64) (core.Hash, error) {
	block, ok := m.blockAt(height)
	if !ok {
		return core.Hash{}, nodeerrors.ErrHeaderChainInvalid
	}
	return block.Hash(), nil
}

// downloadBlocks mirrors downloadHeaders' worker pool, storing accepted
// blocks in the Block Store.
func (m *Manager) downloadBlocks(ctx context.Context, peers []PeerInfo) error {
	m.mu.Lock()
	from, to := m.currentHeight+1, m.targetHeight
	m.mu.Unlock()
	if from > to {
		return nil
	}

	sem := make(chan struct{}, max32(m.cfg.MaxConcurrentDownloads, 1))
	g, gctx := errgroup.WithContext(ctx)

	for start := from; start <= to; start += uint64(m.cfg.BatchSize) {
		start := start
		count := uint32(m.cfg.BatchSize)
		if remaining := to - start + 1; remaining < uint64(count) {
			count = uint32(remaining)
		}
		peer := peers[int(start)%len(peers)]

		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			if err := m.waitIfPaused(gctx); err != nil {
				return err
			}
			m.markInFlight(m.blocksInFlight, start, true)
			defer m.markInFlight(m.blocksInFlight, start, false)

			blocks, err := m.peers.FetchBlocks(gctx, peer, start, count)
			if err != nil {
				return fmt.Errorf("fetch blocks from %s: %w", peer.Address, err)
			}
			for _, b := range blocks {
				if m.cfg.VerifyBlocks && !b.VerifyMerkleRoot() {
					return nodeerrors.ErrBlockVerificationFail
				}
				if !m.sink.Has(b.Hash()) {
					if err := m.sink.Store(b); err != nil {
						return err
					}
				}
				m.statsMu.Lock()
				m.stats.BlocksDownloaded++
				m.stats.BlocksVerified++
				m.statsMu.Unlock()
			}
			m.mu.Lock()
			if start+uint64(len(blocks))-1 > m.currentHeight {
				m.currentHeight = start + uint64(len(blocks)) - 1
			}
			m.mu.Unlock()
			return nil
		})
	}

	return g.Wait()
}

// verifyState iterates accepted heights asking the VM Harness to
// validate the state transition, per Fast mode's final phase.
func (m *Manager) verifyState(ctx context.Context) error {
	m.mu.Lock()
	from, to := uint64(1), m.targetHeight
	m.mu.Unlock()

	sem := make(chan struct{}, max32(m.cfg.VerificationWorkers, 1))
	g, gctx := errgroup.WithContext(ctx)

	for h := from; h <= to; h++ {
		h := h
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()
			if err := m.waitIfPaused(gctx); err != nil {
				return err
			}
			block, ok := m.blockAt(h)
			if !ok {
				return nodeerrors.ErrStateVerificationFail
			}
			if err := m.verifier.ValidateBlock(block); err != nil {
				return fmt.Errorf("%w: %v", nodeerrors.ErrStateVerificationFail, err)
			}
			m.statsMu.Lock()
			m.stats.StateVerified++
			m.statsMu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// blockAt is a small seam so tests can stub block lookup without a full
// BlockSink implementation exposing GetByHeight.
func (m *Manager) blockAt(height uint64) (*core.Block, bool) {
	type heightGetter interface {
		GetByHeight(uint64) (*core.Block, error)
	}
	g, ok := m.sink.(heightGetter)
	if !ok {
		return nil, false
	}
	b, err := g.GetByHeight(height)
	if err != nil {
		return nil, false
	}
	return b, true
}

func (m *Manager) markInFlight(set map[uint64]struct{}, height uint64, inFlight bool) {
	m.inFlightMu.Lock()
	defer m.inFlightMu.Unlock()
	if inFlight {
		set[height] = struct{}{}
	} else {
		delete(set, height)
	}
}

func max32(v, floor uint32) uint32 {
	if v == 0 {
		return floor
	}
	return v
}
