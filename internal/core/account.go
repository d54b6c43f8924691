package core

import "math/big"

// Account holds the per-address state the State Trie and State Store
// track: balance, nonce, contract code hash, and contract storage.
type Account struct {
	Address     Address           `json:"address"`
	Balance     *big.Int          `json:"balance"`
	Nonce       uint64            `json:"nonce"`
	CodeHash    Hash              `json:"code_hash"`
	Storage     map[string][]byte `json:"storage,omitempty"`
	LastUpdated uint64            `json:"last_updated"`
}

// NewAccount returns a freshly created, zero-valued account for address.
func NewAccount(addr Address) *Account {
	return &Account{
		Address: addr,
		Balance: big.NewInt(0),
		Storage: make(map[string][]byte),
	}
}

// IsContract reports whether the account carries deployed bytecode.
func (a *Account) IsContract() bool {
	return !a.CodeHash.IsZero()
}

// Pruneable reports whether the account satisfies the prune predicate of
// §4.I: zero balance, zero nonce, no code, no storage.
func (a *Account) Pruneable() bool {
	return a.Balance.Sign() == 0 && a.Nonce == 0 && a.CodeHash.IsZero() && len(a.Storage) == 0
}

// Clone returns a deep copy of the account, used by the trie's
// copy-on-write snapshot machinery.
func (a *Account) Clone() *Account {
	clone := &Account{
		Address:     a.Address,
		Balance:     new(big.Int).Set(a.Balance),
		Nonce:       a.Nonce,
		CodeHash:    a.CodeHash,
		LastUpdated: a.LastUpdated,
		Storage:     make(map[string][]byte, len(a.Storage)),
	}
	for k, v := range a.Storage {
		cp := make([]byte, len(v))
		copy(cp, v)
		clone.Storage[k] = cp
	}
	return clone
}
