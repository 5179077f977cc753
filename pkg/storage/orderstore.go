// Package storage provides Pebble-backed persistence for the exchange's
// order table.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/openswap-labs/escrowdex/pkg/exchange"
)

// Pebble key schema:
//
//	"ord:{id}"     -> JSON order record, id zero-padded (20 digits) so
//	                  lexicographic order matches numeric order
//	"meta:next_id" -> big-endian uint64 next-id counter
const (
	prefixOrder = "ord:"
	keyNextID   = "meta:next_id"
)

// OrderStore persists the order table and the next-id counter.
// Thread-safe: all operations go through the Registry's mutex.
type OrderStore struct {
	db *pebble.DB
}

// NewOrderStore opens a Pebble database at the given path.
func NewOrderStore(dbPath string) (*OrderStore, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{
		Cache:        pebble.NewCache(32 << 20), // 32MB cache
		MemTableSize: 16 << 20,                  // 16MB memtable
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &OrderStore{db: db}, nil
}

// Close closes the database.
func (s *OrderStore) Close() error {
	return s.db.Close()
}

// SaveOrder persists a single order record.
func (s *OrderStore) SaveOrder(o exchange.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	if err := s.db.Set(orderKey(o.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save order %d: %w", o.ID, err)
	}
	return nil
}

// SaveOrders persists several order records in one atomic batch. Settlement
// closes two orders at once; a crash must never persist only one of them.
func (s *OrderStore) SaveOrders(orders ...exchange.Order) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, o := range orders {
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("failed to marshal order %d: %w", o.ID, err)
		}
		if err := batch.Set(orderKey(o.ID), data, nil); err != nil {
			return fmt.Errorf("failed to stage order %d: %w", o.ID, err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit orders: %w", err)
	}
	return nil
}

// LoadOrders iterates every persisted order in id order.
func (s *OrderStore) LoadOrders(fn func(exchange.Order)) error {
	prefix := []byte(prefixOrder)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var o exchange.Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			continue // Skip invalid entries
		}
		fn(o)
	}
	return nil
}

// SavePlacement persists a newly placed order together with the advanced
// next-id counter in one atomic batch. A crash between separate writes
// would leave an order row the counter does not account for, so its id
// would be handed out a second time after reload.
func (s *OrderStore) SavePlacement(o exchange.Order, nextID uint64) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal order %d: %w", o.ID, err)
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], nextID)

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(orderKey(o.ID), data, nil); err != nil {
		return fmt.Errorf("failed to stage order %d: %w", o.ID, err)
	}
	if err := batch.Set([]byte(keyNextID), b[:], nil); err != nil {
		return fmt.Errorf("failed to stage next id: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit placement: %w", err)
	}
	return nil
}

// LoadNextID returns the persisted counter, or 0 for a fresh store.
func (s *OrderStore) LoadNextID() (uint64, error) {
	data, closer, err := s.db.Get([]byte(keyNextID))
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get next id: %w", err)
	}
	defer closer.Close()

	if len(data) != 8 {
		return 0, fmt.Errorf("invalid next id length: %d", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// orderKey returns the key for an order record.
// Format: "ord:{id}", zero-padded for lexicographic sorting.
func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
