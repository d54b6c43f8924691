// Package mempool holds transactions waiting to be included in a block,
// generalized from the teacher's in-memory mutex+map mempool to the
// unified core.Transaction envelope.
package mempool

import (
	"sync"

	"go.uber.org/zap"

	"github.com/empower1-labs/empower1-core/internal/core"
	"github.com/empower1-labs/empower1-core/internal/nodeerrors"
)

// Mempool is a simple in-memory transaction pool keyed by transaction id.
type Mempool struct {
	mu           sync.RWMutex
	transactions map[core.Hash]*core.Transaction
	maxSize      int

	log *zap.SugaredLogger
}

// New constructs a Mempool. maxSize <= 0 means unbounded.
func New(maxSize int, log *zap.SugaredLogger) *Mempool {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Mempool{
		transactions: make(map[core.Hash]*core.Transaction),
		maxSize:      maxSize,
		log:          log,
	}
}

// AddTransaction validates tx's structure and admits it if not already
// present and the pool has room.
func (mp *Mempool) AddTransaction(tx *core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.transactions[tx.ID]; exists {
		return nodeerrors.ErrTxAlreadyInMempool
	}
	if mp.maxSize > 0 && len(mp.transactions) >= mp.maxSize {
		return nodeerrors.ErrMempoolFull
	}

	mp.transactions[tx.ID] = tx
	mp.log.Debugw("admitted transaction", "tx_id", tx.ID, "kind", tx.Kind.String())
	return nil
}

// GetTransactions returns up to limit pooled transactions in unspecified
// order. limit <= 0 returns every pooled transaction.
func (mp *Mempool) GetTransactions(limit int) []*core.Transaction {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	if limit <= 0 || limit > len(mp.transactions) {
		limit = len(mp.transactions)
	}
	txs := make([]*core.Transaction, 0, limit)
	for _, tx := range mp.transactions {
		if len(txs) >= limit {
			break
		}
		txs = append(txs, tx)
	}
	return txs
}

// RemoveTransaction removes a transaction, typically after it's included
// in a block.
func (mp *Mempool) RemoveTransaction(id core.Hash) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	delete(mp.transactions, id)
}

// RemoveBatch removes every transaction in a mined block from the pool.
func (mp *Mempool) RemoveBatch(txs []core.Transaction) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	for _, tx := range txs {
		delete(mp.transactions, tx.ID)
	}
}

// Has reports whether id is currently pooled.
func (mp *Mempool) Has(id core.Hash) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	_, ok := mp.transactions[id]
	return ok
}

// Count returns the number of pooled transactions.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return len(mp.transactions)
}
