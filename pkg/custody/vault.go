package custody

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Vault is the production Adapter: a per-(account, token) balance ledger
// with an in-memory cache backed by Pebble persistence.
//
// Balances enter the vault through Deposit (the bridge surface) and move
// between accounts through Move. A Move that would overdraw the source
// account fails with ErrInsufficientBalance and changes nothing.
type Vault struct {
	mu       sync.RWMutex
	balances map[balanceKey]uint64 // (account, token) -> balance cache
	store    *Store                // Pebble persistence layer, may be nil for ephemeral vaults
}

type balanceKey struct {
	account common.Address
	token   common.Address
}

// NewVault creates a vault with Pebble persistence at dbPath and loads the
// existing ledger into the cache.
func NewVault(dbPath string) (*Vault, error) {
	store, err := NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	v := &Vault{
		balances: make(map[balanceKey]uint64),
		store:    store,
	}

	if err := store.LoadBalances(func(account, token common.Address, amount uint64) {
		v.balances[balanceKey{account, token}] = amount
	}); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}

	return v, nil
}

// NewMemVault creates a vault with no persistence. Used by tests and by
// deployments where the ledger is rebuilt externally.
func NewMemVault() *Vault {
	return &Vault{balances: make(map[balanceKey]uint64)}
}

// Close closes the underlying Pebble database.
func (v *Vault) Close() error {
	if v.store == nil {
		return nil
	}
	return v.store.Close()
}

// Deposit credits amount of token to an account. This is the only way value
// enters the ledger.
func (v *Vault) Deposit(account, token common.Address, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	key := balanceKey{account, token}
	v.balances[key] += amount
	if err := v.persist(key); err != nil {
		v.balances[key] -= amount
		return err
	}
	return nil
}

// Balance returns the current balance of token held by account.
func (v *Vault) Balance(account, token common.Address) uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.balances[balanceKey{account, token}]
}

// Move transfers amount of token between two accounts atomically.
// Implements Adapter.
func (v *Vault) Move(token, from, to common.Address, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	fromKey := balanceKey{from, token}
	toKey := balanceKey{to, token}

	have := v.balances[fromKey]
	if have < amount {
		return fmt.Errorf("%w: account %s token %s has %d, need %d",
			ErrInsufficientBalance, from.Hex(), token.Hex(), have, amount)
	}

	v.balances[fromKey] = have - amount
	v.balances[toKey] += amount

	if v.store != nil {
		if err := v.store.SaveBalancePair(
			from, to, token, v.balances[fromKey], v.balances[toKey]); err != nil {
			// Persistence failed: undo the in-memory move so ledger and
			// store never diverge.
			v.balances[fromKey] = have
			v.balances[toKey] -= amount
			return fmt.Errorf("failed to persist move: %w", err)
		}
	}
	return nil
}

// persist writes a single balance entry through to Pebble (lock held).
func (v *Vault) persist(key balanceKey) error {
	if v.store == nil {
		return nil
	}
	if err := v.store.SaveBalance(key.account, key.token, v.balances[key]); err != nil {
		return fmt.Errorf("failed to persist balance: %w", err)
	}
	return nil
}
