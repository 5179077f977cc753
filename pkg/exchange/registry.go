// Package exchange implements the custodial escrow exchange core: the order
// registry that owns the authoritative order table, and the matching engine
// that validates and settles externally proposed pairings.
package exchange

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/openswap-labs/escrowdex/pkg/custody"
	"github.com/openswap-labs/escrowdex/pkg/util"
)

// OrderStore persists the order table and next-id counter. Implemented by
// pkg/storage; nil disables persistence (ephemeral registry, used in tests).
type OrderStore interface {
	SaveOrder(o Order) error
	SaveOrders(orders ...Order) error
	SavePlacement(o Order, nextID uint64) error
	LoadOrders(fn func(Order)) error
	LoadNextID() (uint64, error)
}

// RegistryConfig wires the registry's collaborators. Escrow and Custody are
// required; the rest default to no-ops (NopNotifier, RealClock, zap.NewNop).
type RegistryConfig struct {
	// Escrow is the exchange's own account in the custody ledger. Every
	// open order's cost is held there until the order closes.
	Escrow   common.Address
	Custody  custody.Adapter
	Store    OrderStore
	Notifier Notifier
	Clock    util.Clock
	Logger   *zap.Logger
}

// Registry owns the order table: it assigns ids, enforces per-order state
// transitions and maker-only cancellation, and is the only component that
// mutates orders. The matching engine requests closure through
// closeForSettlement rather than touching orders directly.
//
// Operations are serialized by the registry mutex, but custody calls happen
// outside it: orders are closed (and persisted) before any fund movement, so
// a reentrant callback from the custody adapter observes closed orders
// instead of an open order whose escrow is already being paid out. If the
// fund movement then fails, the closure is rolled back and the operation has
// no effect.
type Registry struct {
	mu     sync.RWMutex
	orders map[uint64]*Order
	nextID uint64

	escrow   common.Address
	custody  custody.Adapter
	store    OrderStore
	notifier Notifier
	clock    util.Clock
	log      *zap.Logger
}

// NewRegistry creates a registry and, when a store is configured, reloads
// the persisted order table and counter.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Custody == nil {
		return nil, fmt.Errorf("custody adapter is required")
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NopNotifier{}
	}
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := &Registry{
		orders:   make(map[uint64]*Order),
		escrow:   cfg.Escrow,
		custody:  cfg.Custody,
		store:    cfg.Store,
		notifier: cfg.Notifier,
		clock:    cfg.Clock,
		log:      cfg.Logger,
	}

	if r.store != nil {
		if err := r.store.LoadOrders(func(o Order) {
			rec := o
			r.orders[o.ID] = &rec
		}); err != nil {
			return nil, fmt.Errorf("failed to load orders: %w", err)
		}
		nextID, err := r.store.LoadNextID()
		if err != nil {
			return nil, fmt.Errorf("failed to load next id: %w", err)
		}
		r.nextID = nextID
	}

	return r, nil
}

// Place escrows cost units of tokenSell from the maker and records a new
// open order. Ids are assigned sequentially from 0 and only consumed by
// successful placements: if the escrow debit or the persistence write fails,
// no order is created and the counter does not advance.
func (r *Registry) Place(maker, tokenBuy, tokenSell common.Address, quantity, cost uint64) (uint64, error) {
	if tokenBuy == tokenSell {
		return 0, ErrSameToken
	}
	if quantity == 0 || cost == 0 {
		return 0, ErrZeroAmount
	}

	// Escrow debit first: the order must never exist without its funds.
	if err := r.custody.Move(tokenSell, maker, r.escrow, cost); err != nil {
		return 0, fmt.Errorf("escrow debit failed: %w", err)
	}

	r.mu.Lock()
	o := &Order{
		ID:        r.nextID,
		Maker:     maker,
		TokenBuy:  tokenBuy,
		TokenSell: tokenSell,
		Quantity:  quantity,
		Cost:      cost,
		CreatedAt: r.clock.Now().UnixMilli(),
		Status:    StatusOpen,
	}

	if r.store != nil {
		// Order row and advanced counter go down in one atomic write. A
		// partial write would resurrect the order after a restart with
		// its escrow already refunded, and hand its id out again.
		if err := r.store.SavePlacement(*o, r.nextID+1); err != nil {
			r.mu.Unlock()
			r.refundEscrow(tokenSell, maker, cost)
			return 0, fmt.Errorf("failed to persist placement: %w", err)
		}
	}

	r.orders[o.ID] = o
	r.nextID++
	created := *o
	r.mu.Unlock()

	r.log.Info("order placed",
		zap.Uint64("id", created.ID),
		zap.String("maker", created.Maker.Hex()),
		zap.String("token_buy", created.TokenBuy.Hex()),
		zap.String("token_sell", created.TokenSell.Hex()),
		zap.Uint64("quantity", created.Quantity),
		zap.Uint64("cost", created.Cost),
	)
	r.notifier.OrderCreated(created)
	return created.ID, nil
}

// Cancel closes an open order and refunds its full escrowed cost to the
// maker. Only the maker may cancel. The closure is finalized before the
// refund and rolled back if the refund fails, so the operation either fully
// takes effect or not at all.
func (r *Registry) Cancel(orderID uint64, requester common.Address) error {
	r.mu.Lock()
	o, ok := r.orders[orderID]
	if !ok || !o.IsOpen() {
		r.mu.Unlock()
		return fmt.Errorf("cancel order %d: %w", orderID, ErrOrderNotOpen)
	}
	if o.Maker != requester {
		r.mu.Unlock()
		return fmt.Errorf("cancel order %d: %w", orderID, ErrNotMaker)
	}

	snapshot := *o
	o.close()
	if err := r.persistLocked(*o); err != nil {
		*o = snapshot
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()

	// Refund outside the lock; the order is already closed, so a reentrant
	// custody callback cannot cancel or match it a second time.
	if err := r.custody.Move(snapshot.TokenSell, r.escrow, snapshot.Maker, snapshot.Cost); err != nil {
		r.reopen(snapshot)
		return fmt.Errorf("refund failed: %w", err)
	}

	r.log.Info("order cancelled",
		zap.Uint64("id", snapshot.ID),
		zap.String("maker", snapshot.Maker.Hex()),
		zap.Uint64("refunded", snapshot.Cost),
	)

	// The emitted record keeps the pre-closure amounts so consumers see
	// what was refunded; only the stored record is zeroed.
	cancelled := snapshot
	cancelled.Status = StatusClosed
	r.notifier.OrderCancelled(cancelled)
	return nil
}

// Get returns a snapshot of an open order. Ids never issued and properly
// closed orders both yield the zero-value sentinel: to a caller the two are
// indistinguishable, and both mean "nothing to act on". The closed record
// itself is retained internally (it backs persistence and rollback) but is
// never served out.
func (r *Registry) Get(orderID uint64) Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[orderID]
	if !ok || !o.IsOpen() {
		return Order{}
	}
	return *o
}

// Count returns the next-id counter, i.e. the number of orders ever placed.
func (r *Registry) Count() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nextID
}

// Escrow returns the exchange's escrow account address.
func (r *Registry) Escrow() common.Address {
	return r.escrow
}

// closeForSettlement atomically closes both orders of a validated pairing
// and returns snapshots of their open state. Engine-only entry point: the
// table stays under registry ownership. Both orders must still be open.
func (r *Registry) closeForSettlement(orderID1, orderID2 uint64) (Order, Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o1, ok1 := r.orders[orderID1]
	o2, ok2 := r.orders[orderID2]
	if !ok1 || !o1.IsOpen() {
		return Order{}, Order{}, fmt.Errorf("order %d: %w", orderID1, ErrOrderNotOpen)
	}
	if !ok2 || !o2.IsOpen() {
		return Order{}, Order{}, fmt.Errorf("order %d: %w", orderID2, ErrOrderNotOpen)
	}

	snap1, snap2 := *o1, *o2
	o1.close()
	o2.close()

	if r.store != nil {
		if err := r.store.SaveOrders(*o1, *o2); err != nil {
			*o1, *o2 = snap1, snap2
			return Order{}, Order{}, fmt.Errorf("failed to persist settlement: %w", err)
		}
	}
	return snap1, snap2, nil
}

// reopen restores orders from pre-closure snapshots after a failed custody
// transfer. Rollback path only.
func (r *Registry) reopen(snapshots ...Order) {
	r.mu.Lock()
	defer r.mu.Unlock()

	restored := make([]Order, 0, len(snapshots))
	for _, snap := range snapshots {
		o, ok := r.orders[snap.ID]
		if !ok {
			continue
		}
		*o = snap
		restored = append(restored, snap)
	}

	if r.store != nil && len(restored) > 0 {
		if err := r.store.SaveOrders(restored...); err != nil {
			// In-memory state is restored but the store now disagrees;
			// surface loudly, the operator must reconcile from the ledger.
			r.log.Error("failed to persist rollback", zap.Error(err))
		}
	}
}

// persistLocked writes a single order through to the store (lock held).
func (r *Registry) persistLocked(o Order) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveOrder(o); err != nil {
		return fmt.Errorf("failed to persist order %d: %w", o.ID, err)
	}
	return nil
}

// refundEscrow returns funds after a failed placement. A refund failure here
// means custody accepted the debit but refuses the exact inverse move; there
// is no further recovery, so log and leave the funds parked in escrow.
func (r *Registry) refundEscrow(token, maker common.Address, amount uint64) {
	if err := r.custody.Move(token, r.escrow, maker, amount); err != nil {
		r.log.Error("failed to refund escrow after aborted placement",
			zap.String("maker", maker.Hex()),
			zap.Uint64("amount", amount),
			zap.Error(err),
		)
	}
}
