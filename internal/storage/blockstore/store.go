// Package blockstore implements the KV Block Store: O(1) access to a
// block by hash or height, plus canonical-tip metadata, backed by
// goleveldb the way original_source/include/storage/leveldb_storage.h's
// LevelDBBlockStorage is.
package blockstore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"

	"github.com/empower1-labs/empower1-core/internal/core"
	"github.com/empower1-labs/empower1-core/internal/nodeerrors"
)

// Key prefixes and singleton keys, mirroring the C++ reference's
// BLOCK_PREFIX/HEIGHT_PREFIX/LATEST_KEY/etc.
const (
	blockPrefix  = "block:"
	heightPrefix = "height:"
	latestKey    = "latest"
	genesisKey   = "genesis"
	countKey     = "count"
	heightKey    = "height"
)

// Store is the KV Block Store. All operations serialize on a single
// mutex; goleveldb provides its own crash-consistent batch writes.
type Store struct {
	mu  sync.Mutex
	db  *leveldb.DB
	dir string
	log *zap.SugaredLogger
}

// Statistics is a point-in-time snapshot of the store's size, folded
// back from LevelDBBlockStorage::getStatistics() in original_source.
type Statistics struct {
	BlockCount     uint64
	CurrentHeight  uint64
	ApproxSizeBytes uint64
}

// Open creates the data directory if needed and opens (or creates) the
// underlying LevelDB database.
func Open(dir string, log *zap.SugaredLogger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", nodeerrors.ErrDirectoryCreate, err)
	}
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", nodeerrors.ErrBackendWrite, err)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Store{db: db, dir: dir, log: log}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func blockKey(hash core.Hash) []byte {
	return append([]byte(blockPrefix), hash[:]...)
}

// heightKeyBytes encodes height as a fixed-width 8-byte big-endian key so
// that range scans over height: keys sort numerically. The source system
// used decimal strings here, which original_source's createHeightKey
// produces and which the spec flags as an incorrect-ordering redesign
// target.
func heightKeyBytes(h uint64) []byte {
	buf := make([]byte, len(heightPrefix)+8)
	copy(buf, heightPrefix)
	binary.BigEndian.PutUint64(buf[len(heightPrefix):], h)
	return buf
}

func serializeBlock(b *core.Block) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b); err != nil {
		return nil, fmt.Errorf("%w: %v", nodeerrors.ErrSerialization, err)
	}
	return buf.Bytes(), nil
}

func deserializeBlock(data []byte) (*core.Block, error) {
	var b core.Block
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&b); err != nil {
		return nil, fmt.Errorf("%w: %v", nodeerrors.ErrDeserialization, err)
	}
	return &b, nil
}

// Store writes block:<hash>, height:<h>, and metadata (latest, count,
// genesis if h=0) atomically in one batch.
func (s *Store) Store(b *core.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := serializeBlock(b)
	if err != nil {
		return err
	}
	hash := b.Hash()

	batch := new(leveldb.Batch)
	batch.Put(blockKey(hash), data)
	batch.Put(heightKeyBytes(b.Header.Height), hash[:])
	batch.Put([]byte(latestKey), hash[:])
	if b.Header.Height == 0 {
		batch.Put([]byte(genesisKey), hash[:])
	}

	count, _ := s.readCount()
	count++
	batch.Put([]byte(countKey), encodeUint64(count))
	batch.Put([]byte(heightKey), encodeUint64(b.Header.Height))

	if err := s.db.Write(batch, nil); err != nil {
		s.log.Errorw("block store write failed", "height", b.Header.Height, "error", err)
		return fmt.Errorf("%w: %v", nodeerrors.ErrBackendWrite, err)
	}
	return nil
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (s *Store) readCount() (uint64, error) {
	v, err := s.db.Get([]byte(countKey), nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return decodeUint64(v), nil
}

// GetByHash retrieves a block by its content hash.
func (s *Store) GetByHash(hash core.Hash) (*core.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.db.Get(blockKey(hash), nil)
	if err == leveldb.ErrNotFound {
		return nil, nodeerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", nodeerrors.ErrBackendRead, err)
	}
	return deserializeBlock(data)
}

// GetByHeight retrieves a block by height.
func (s *Store) GetByHeight(h uint64) (*core.Block, error) {
	s.mu.Lock()
	hashBytes, err := s.db.Get(heightKeyBytes(h), nil)
	s.mu.Unlock()
	if err == leveldb.ErrNotFound {
		return nil, nodeerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", nodeerrors.ErrBackendRead, err)
	}
	var h32 core.Hash
	copy(h32[:], hashBytes)
	return s.GetByHash(h32)
}

// Latest returns the tip block, or ErrNotFound if the store is empty.
func (s *Store) Latest() (*core.Block, error) {
	return s.getSingleton(latestKey)
}

// Genesis returns the height-0 block.
func (s *Store) Genesis() (*core.Block, error) {
	return s.getSingleton(genesisKey)
}

func (s *Store) getSingleton(key string) (*core.Block, error) {
	s.mu.Lock()
	hashBytes, err := s.db.Get([]byte(key), nil)
	s.mu.Unlock()
	if err == leveldb.ErrNotFound {
		return nil, nodeerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", nodeerrors.ErrBackendRead, err)
	}
	var h core.Hash
	copy(h[:], hashBytes)
	return s.GetByHash(h)
}

// Has reports whether a block with the given hash is stored.
func (s *Store) Has(hash core.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, _ := s.db.Has(blockKey(hash), nil)
	return ok
}

// Count returns the number of stored blocks.
func (s *Store) Count() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, _ := s.readCount()
	return c
}

// CurrentHeight returns the height of the tip block.
func (s *Store) CurrentHeight() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.db.Get([]byte(heightKey), nil)
	if err != nil {
		return 0
	}
	return decodeUint64(v)
}

// Range returns blocks for heights in [lo, hi] inclusive.
func (s *Store) Range(lo, hi uint64) ([]*core.Block, error) {
	hashes, err := s.HashesRange(lo, hi)
	if err != nil {
		return nil, err
	}
	blocks := make([]*core.Block, 0, len(hashes))
	for _, h := range hashes {
		b, err := s.GetByHash(h)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// HashesRange returns block hashes for heights in [lo, hi] inclusive, in
// height order (guaranteed by the fixed-width big-endian height keys).
func (s *Store) HashesRange(lo, hi uint64) ([]core.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rng := &util.Range{Start: heightKeyBytes(lo), Limit: heightKeyBytes(hi + 1)}
	iter := s.db.NewIterator(rng, nil)
	defer iter.Release()
	var hashes []core.Hash
	for iter.Next() {
		var h core.Hash
		copy(h[:], iter.Value())
		hashes = append(hashes, h)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", nodeerrors.ErrBackendRead, err)
	}
	return hashes, nil
}

// DeleteFromHeight deletes all blocks with height >= h and rewinds
// metadata (count, height, latest) to the new tip h-1, or clears
// metadata entirely when h == 0. All in one atomic batch.
func (s *Store) DeleteFromHeight(h uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rng := &util.Range{Start: heightKeyBytes(h), Limit: util.BytesPrefix([]byte(heightPrefix)).Limit}
	iter := s.db.NewIterator(rng, nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	var deletedHeightKeys [][]byte
	for iter.Next() {
		var hash core.Hash
		copy(hash[:], iter.Value())
		batch.Delete(blockKey(hash))
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		deletedHeightKeys = append(deletedHeightKeys, key)
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("%w: %v", nodeerrors.ErrBackendRead, err)
	}
	for _, k := range deletedHeightKeys {
		batch.Delete(k)
	}

	if h == 0 {
		batch.Delete([]byte(latestKey))
		batch.Delete([]byte(genesisKey))
		batch.Delete([]byte(countKey))
		batch.Delete([]byte(heightKey))
	} else {
		tipHash, err := s.db.Get(heightKeyBytes(h-1), nil)
		if err == leveldb.ErrNotFound {
			return nodeerrors.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: %v", nodeerrors.ErrBackendRead, err)
		}
		batch.Put([]byte(latestKey), tipHash)
		batch.Put([]byte(countKey), encodeUint64(h))
		batch.Put([]byte(heightKey), encodeUint64(h-1))
	}

	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("%w: %v", nodeerrors.ErrBackendWrite, err)
	}
	return nil
}

// Compact runs a full-range compaction.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.CompactRange(util.Range{})
}

// Statistics returns a point-in-time snapshot of store size.
func (s *Store) Statistics() (Statistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count, _ := s.readCount()
	var size uint64
	sizes, err := s.db.SizeOf([]util.Range{{Start: nil, Limit: nil}})
	if err == nil && len(sizes) > 0 {
		size = uint64(sizes[0])
	}
	return Statistics{
		BlockCount:      count,
		CurrentHeight:   decodeUint64(mustGetOrZero(s.db, heightKey)),
		ApproxSizeBytes: size,
	}, nil
}

// Repair closes the database and attempts recovery via goleveldb's
// RecoverFile, mirroring original_source's repairDatabase().
func (s *Store) Repair() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: %v", nodeerrors.ErrCorruptionDetected, err)
	}
	stor, err := storage.OpenFile(s.dir, false)
	if err != nil {
		return fmt.Errorf("%w: %v", nodeerrors.ErrCorruptionDetected, err)
	}
	db, err := leveldb.RecoverFile(stor, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", nodeerrors.ErrCorruptionDetected, err)
	}
	s.db = db
	return nil
}

func mustGetOrZero(db *leveldb.DB, key string) []byte {
	v, err := db.Get([]byte(key), nil)
	if err != nil {
		return nil
	}
	return v
}
