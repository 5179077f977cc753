package storage

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openswap-labs/escrowdex/pkg/exchange"
)

func newTestStore(t *testing.T) *OrderStore {
	s, err := NewOrderStore(t.TempDir() + "/orders.db")
	if err != nil {
		t.Fatalf("failed to create order store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func sampleOrder(id uint64) exchange.Order {
	return exchange.Order{
		ID:        id,
		Maker:     common.HexToAddress("0xAA00000000000000000000000000000000000000"),
		TokenBuy:  common.HexToAddress("0x1000000000000000000000000000000000000000"),
		TokenSell: common.HexToAddress("0x2000000000000000000000000000000000000000"),
		Quantity:  5,
		Cost:      10,
		CreatedAt: 1700000000000,
		Status:    exchange.StatusOpen,
	}
}

func TestOrderStoreSaveLoad(t *testing.T) {
	s := newTestStore(t)

	want := sampleOrder(3)
	if err := s.SaveOrder(want); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	var got []exchange.Order
	if err := s.LoadOrders(func(o exchange.Order) { got = append(got, o) }); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("loaded %d orders, want 1", len(got))
	}
	if got[0] != want {
		t.Errorf("loaded order = %+v, want %+v", got[0], want)
	}
}

func TestOrderStoreBatchAndOrdering(t *testing.T) {
	s := newTestStore(t)

	// Out-of-order writes; iteration must come back in id order because of
	// the zero-padded key encoding.
	if err := s.SaveOrders(sampleOrder(10), sampleOrder(2), sampleOrder(100)); err != nil {
		t.Fatalf("batch save failed: %v", err)
	}

	var ids []uint64
	if err := s.LoadOrders(func(o exchange.Order) { ids = append(ids, o.ID) }); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want := []uint64{2, 10, 100}
	if len(ids) != len(want) {
		t.Fatalf("loaded ids %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("loaded ids %v, want %v", ids, want)
		}
	}
}

func TestOrderStorePlacement(t *testing.T) {
	s := newTestStore(t)

	id, err := s.LoadNextID()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if id != 0 {
		t.Errorf("fresh store next id = %d, want 0", id)
	}

	// Order row and counter are written together and read back together.
	if err := s.SavePlacement(sampleOrder(6), 7); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	id, err = s.LoadNextID()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if id != 7 {
		t.Errorf("next id = %d, want 7", id)
	}

	var got []exchange.Order
	if err := s.LoadOrders(func(o exchange.Order) { got = append(got, o) }); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != 6 {
		t.Errorf("loaded orders = %+v, want just order 6", got)
	}
}
