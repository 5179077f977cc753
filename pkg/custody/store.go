package custody

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema:
//
//	"bal:{account}:{token}" -> big-endian uint64 balance
//
// Account and token are hex addresses so a prefix scan over "bal:{account}:"
// yields all holdings of one account.
const prefixBalance = "bal:"

// Store provides Pebble-based persistence for the vault ledger.
// Thread-safe: all operations go through the Vault's mutex.
type Store struct {
	db *pebble.DB
}

// NewStore opens a Pebble database at the given path.
func NewStore(dbPath string) (*Store, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{
		Cache:        pebble.NewCache(32 << 20), // 32MB cache
		MemTableSize: 16 << 20,                  // 16MB memtable
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveBalance persists a single balance entry.
func (s *Store) SaveBalance(account, token common.Address, amount uint64) error {
	if err := s.db.Set(balanceDBKey(account, token), encodeAmount(amount), pebble.Sync); err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}
	return nil
}

// SaveBalancePair persists both sides of a transfer in one atomic batch, so
// a crash mid-move can never leave the ledger holding more or less value
// than before the move.
func (s *Store) SaveBalancePair(from, to, token common.Address, fromAmount, toAmount uint64) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(balanceDBKey(from, token), encodeAmount(fromAmount), nil); err != nil {
		return fmt.Errorf("failed to stage debit: %w", err)
	}
	if err := batch.Set(balanceDBKey(to, token), encodeAmount(toAmount), nil); err != nil {
		return fmt.Errorf("failed to stage credit: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit transfer: %w", err)
	}
	return nil
}

// LoadBalances iterates every persisted balance entry.
func (s *Store) LoadBalances(fn func(account, token common.Address, amount uint64)) error {
	prefix := []byte(prefixBalance)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		account, token, err := parseBalanceDBKey(iter.Key())
		if err != nil {
			continue // Skip invalid entries
		}
		fn(account, token, decodeAmount(iter.Value()))
	}
	return nil
}

func balanceDBKey(account, token common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, account.Hex(), token.Hex()))
}

// parseBalanceDBKey is the inverse of balanceDBKey.
func parseBalanceDBKey(key []byte) (common.Address, common.Address, error) {
	// "bal:" + 42 hex address + ":" + 42 hex address
	want := len(prefixBalance) + 42 + 1 + 42
	if len(key) != want {
		return common.Address{}, common.Address{}, fmt.Errorf("invalid balance key length: %d", len(key))
	}
	accHex := string(key[len(prefixBalance) : len(prefixBalance)+42])
	tokHex := string(key[len(prefixBalance)+43:])
	if !common.IsHexAddress(accHex) || !common.IsHexAddress(tokHex) {
		return common.Address{}, common.Address{}, fmt.Errorf("invalid address in key: %s", key)
	}
	return common.HexToAddress(accHex), common.HexToAddress(tokHex), nil
}

func encodeAmount(amount uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], amount)
	return b[:]
}

func decodeAmount(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
