// Package statestore implements the KV State Store: persists accounts
// and per-contract storage entries with batched writes and secondary
// prefix scans, grounded on original_source's LevelDBStateStorage.
package statestore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"

	"github.com/empower1-labs/empower1-core/internal/core"
	"github.com/empower1-labs/empower1-core/internal/nodeerrors"
)

const (
	accountPrefix = "account:"
	contractPrefix = "contract:"
	storagePrefix = "storage:"

	countAccountsKey = "count:accounts"
	countContractsKey = "count:contracts"
	countStorageKey  = "count:storage_entries"
)

// Store is the KV State Store.
type Store struct {
	mu  sync.Mutex
	db  *leveldb.DB
	log *zap.SugaredLogger
}

// Statistics mirrors LevelDBStateStorage::getStatistics().
type Statistics struct {
	AccountCount     uint64
	ContractCount    uint64
	StorageEntryCount uint64
}

// Open opens (or creates) the state database at dir.
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
	return &Store{db: db, log: log}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func accountKey(addr core.Address) []byte {
	return append([]byte(accountPrefix), addr[:]...)
}

func contractKey(addr core.Address) []byte {
	return append([]byte(contractPrefix), addr[:]...)
}

func storageKey(contract core.Address, key string) []byte {
	buf := bytes.NewBufferString(storagePrefix)
	buf.Write(contract[:])
	buf.WriteByte(':')
	buf.WriteString(key)
	return buf.Bytes()
}

type gobAccount struct {
	Address     core.Address
	Balance     []byte // big.Int.Bytes()
	Nonce       uint64
	CodeHash    core.Hash
	LastUpdated uint64
}

func encodeAccount(a *core.Account) ([]byte, error) {
	ga := gobAccount{Address: a.Address, Balance: a.Balance.Bytes(), Nonce: a.Nonce, CodeHash: a.CodeHash, LastUpdated: a.LastUpdated}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ga); err != nil {
		return nil, fmt.Errorf("%w: %v", nodeerrors.ErrSerialization, err)
	}
	return buf.Bytes(), nil
}

func decodeAccount(data []byte) (*core.Account, error) {
	var ga gobAccount
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&ga); err != nil {
		return nil, fmt.Errorf("%w: %v", nodeerrors.ErrDeserialization, err)
	}
	return &core.Account{
		Address:     ga.Address,
		Balance:     new(big.Int).SetBytes(ga.Balance),
		Nonce:       ga.Nonce,
		CodeHash:    ga.CodeHash,
		LastUpdated: ga.LastUpdated,
		Storage:     make(map[string][]byte),
	}, nil
}

func (s *Store) adjustCounter(batch *leveldb.Batch, key string, delta int64) {
	cur := s.readCounter(key)
	var next uint64
	if delta < 0 {
		if cur == 0 {
			next = 0 // saturate at zero per §8 boundary behavior
		} else {
			next = cur - 1
		}
	} else {
		next = cur + 1
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	batch.Put([]byte(key), buf)
}

func (s *Store) readCounter(key string) uint64 {
	v, err := s.db.Get([]byte(key), nil)
	if err != nil {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

// StoreAccount writes an account, adjusting count:accounts by +1 only
// if the address did not already exist, all within one batch.
func (s *Store) StoreAccount(a *core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := encodeAccount(a)
	if err != nil {
		return err
	}
	key := accountKey(a.Address)
	existed, _ := s.db.Has(key, nil)

	batch := new(leveldb.Batch)
	batch.Put(key, data)
	if !existed {
		s.adjustCounter(batch, countAccountsKey, +1)
	}
	if !a.CodeHash.IsZero() {
		ck := contractKey(a.Address)
		existedContract, _ := s.db.Has(ck, nil)
		batch.Put(ck, a.CodeHash[:])
		if !existedContract {
			s.adjustCounter(batch, countContractsKey, +1)
		}
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("%w: %v", nodeerrors.ErrBackendWrite, err)
	}
	return nil
}

// GetAccount retrieves an account by address.
func (s *Store) GetAccount(addr core.Address) (*core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.db.Get(accountKey(addr), nil)
	if err == leveldb.ErrNotFound {
		return nil, nodeerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", nodeerrors.ErrBackendRead, err)
	}
	return decodeAccount(data)
}

// HasAccount reports whether addr has a stored account.
func (s *Store) HasAccount(addr core.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, _ := s.db.Has(accountKey(addr), nil)
	return ok
}

// DeleteAccount removes an account, decrementing count:accounts
// (saturating at zero).
func (s *Store) DeleteAccount(addr core.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := accountKey(addr)
	existed, _ := s.db.Has(key, nil)
	batch := new(leveldb.Batch)
	batch.Delete(key)
	if existed {
		s.adjustCounter(batch, countAccountsKey, -1)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("%w: %v", nodeerrors.ErrBackendWrite, err)
	}
	return nil
}

// StoreAccountBatch writes many accounts atomically.
func (s *Store) StoreAccountBatch(accounts map[core.Address]*core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := new(leveldb.Batch)
	var added uint64
	for addr, a := range accounts {
		data, err := encodeAccount(a)
		if err != nil {
			return err
		}
		key := accountKey(addr)
		existed, _ := s.db.Has(key, nil)
		batch.Put(key, data)
		if !existed {
			added++
		}
	}
	if added > 0 {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, s.readCounter(countAccountsKey)+added)
		batch.Put([]byte(countAccountsKey), buf)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("%w: %v", nodeerrors.ErrBackendWrite, err)
	}
	return nil
}

// AllAddresses returns every account address with a stored account.
func (s *Store) AllAddresses() ([]core.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iter := s.db.NewIterator(util.BytesPrefix([]byte(accountPrefix)), nil)
	defer iter.Release()
	var addrs []core.Address
	for iter.Next() {
		raw := iter.Key()[len(accountPrefix):]
		addr, ok := core.AddressFromBytes(raw)
		if !ok {
			continue
		}
		addrs = append(addrs, addr)
	}
	return addrs, iter.Error()
}

// AccountCount returns the number of stored accounts.
func (s *Store) AccountCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readCounter(countAccountsKey)
}

// StoreContractStorage sets a single contract storage entry.
func (s *Store) StoreContractStorage(contract core.Address, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dbKey := storageKey(contract, key)
	existed, _ := s.db.Has(dbKey, nil)
	batch := new(leveldb.Batch)
	batch.Put(dbKey, value)
	if !existed {
		s.adjustCounter(batch, countStorageKey, +1)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("%w: %v", nodeerrors.ErrBackendWrite, err)
	}
	return nil
}

// GetContractStorage reads a single contract storage entry.
func (s *Store) GetContractStorage(contract core.Address, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.db.Get(storageKey(contract, key), nil)
	if err == leveldb.ErrNotFound {
		return nil, nodeerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", nodeerrors.ErrBackendRead, err)
	}
	return v, nil
}

// DeleteContractStorage removes a contract storage entry.
func (s *Store) DeleteContractStorage(contract core.Address, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dbKey := storageKey(contract, key)
	existed, _ := s.db.Has(dbKey, nil)
	batch := new(leveldb.Batch)
	batch.Delete(dbKey)
	if existed {
		s.adjustCounter(batch, countStorageKey, -1)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("%w: %v", nodeerrors.ErrBackendWrite, err)
	}
	return nil
}

// AllForContract returns every key/value storage entry for contract.
func (s *Store) AllForContract(contract core.Address) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := append([]byte(storagePrefix), append(contract[:], ':')...)
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	result := make(map[string][]byte)
	for iter.Next() {
		key := string(iter.Key()[len(prefix):])
		val := make([]byte, len(iter.Value()))
		copy(val, iter.Value())
		result[key] = val
	}
	return result, iter.Error()
}

// ContractAddresses returns every address with recorded code.
func (s *Store) ContractAddresses() ([]core.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iter := s.db.NewIterator(util.BytesPrefix([]byte(contractPrefix)), nil)
	defer iter.Release()
	var addrs []core.Address
	for iter.Next() {
		raw := iter.Key()[len(contractPrefix):]
		addr, ok := core.AddressFromBytes(raw)
		if !ok {
			continue
		}
		addrs = append(addrs, addr)
	}
	return addrs, iter.Error()
}

// ContractCount returns the number of contract accounts.
func (s *Store) ContractCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readCounter(countContractsKey)
}

// StorageEntryCount returns the number of contract storage entries.
func (s *Store) StorageEntryCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readCounter(countStorageKey)
}

// Statistics returns a point-in-time snapshot of the store's counters.
func (s *Store) Statistics() Statistics {
	return Statistics{
		AccountCount:      s.AccountCount(),
		ContractCount:     s.ContractCount(),
		StorageEntryCount: s.StorageEntryCount(),
	}
}

// Compact runs a full-range compaction.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.CompactRange(util.Range{})
}

// Prune performs reference-aware state pruning for the retained window,
// per §4.I: an account is pruned iff it is not in referencedAccounts and
// satisfies core.Account.Pruneable(). Each pruned account is removed by
// its own DeleteAccount write (which also decrements the counters); the
// deletions are not batched into one atomic write.
func (s *Store) Prune(referencedAccounts map[core.Address]struct{}) (int, error) {
	addrs, err := s.AllAddresses()
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, addr := range addrs {
		if _, referenced := referencedAccounts[addr]; referenced {
			continue
		}
		acct, err := s.GetAccount(addr)
		if err != nil {
			continue
		}
		if acct.Pruneable() {
			if err := s.DeleteAccount(addr); err != nil {
				return pruned, err
			}
			pruned++
		}
	}
	return pruned, nil
}
