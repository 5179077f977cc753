package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/openswap-labs/escrowdex/pkg/custody"
)

// Settlement summarizes an executed match. Token1 is order1's buy token
// (identical to order2's sell token by the compatibility check), Token2 the
// mirror. Paid amounts go to the makers, surpluses to the matcher.
type Settlement struct {
	Order1  uint64         `json:"order1"`
	Order2  uint64         `json:"order2"`
	Maker1  common.Address `json:"maker1"`
	Maker2  common.Address `json:"maker2"`
	Matcher common.Address `json:"matcher"`

	Token1 common.Address `json:"token1"`
	Token2 common.Address `json:"token2"`

	Paid1    uint64 `json:"paid1"`    // Token1 to Maker1 (= order1.Quantity)
	Paid2    uint64 `json:"paid2"`    // Token2 to Maker2 (= order2.Quantity)
	Surplus1 uint64 `json:"surplus1"` // Token1 to Matcher (= order2.Cost - order1.Quantity)
	Surplus2 uint64 `json:"surplus2"` // Token2 to Matcher (= order1.Cost - order2.Quantity)

	ExecutedAt int64 `json:"executedAt"` // Unix milliseconds
}

// transfer is one escrow payout leg of a settlement.
type transfer struct {
	token  common.Address
	to     common.Address
	amount uint64
}

// Engine validates externally proposed pairings and settles them out of
// escrow. It does not discover compatible orders: pair discovery lives
// off-chain, the engine only checks and executes.
type Engine struct {
	registry *Registry
	custody  custody.Adapter
	notifier Notifier
	log      *zap.Logger
}

// NewEngine creates a matching engine bound to a registry. The engine moves
// funds through the same custody adapter and escrow account as the registry.
func NewEngine(registry *Registry, notifier Notifier, logger *zap.Logger) *Engine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		registry: registry,
		custody:  registry.custody,
		notifier: notifier,
		log:      logger,
	}
}

// Match validates the proposed pairing and, if compatible, settles both
// orders out of escrow, paying each maker their requested quantity and the
// matcher whatever each counterparty over-escrowed.
//
// Preconditions, checked in order (first failure aborts with no effect):
//
//  1. Both orders exist and are open.
//  2. The orders are exact mirror-image token pairs.
//  3. Neither maker asks for more than the counterparty escrowed:
//     order1.Quantity <= order2.Cost and order2.Quantity <= order1.Cost.
//
// The surplus subtractions are guarded by precondition 3 and must stay
// behind it; performing them earlier would underflow uint64.
//
// Both orders are closed before any payout. If a payout fails, completed
// payouts are reversed and both orders are restored, so settlement is
// all-or-nothing.
func (e *Engine) Match(orderID1, orderID2 uint64, matcher common.Address) (Settlement, error) {
	o1 := e.registry.Get(orderID1)
	o2 := e.registry.Get(orderID2)

	if !o1.IsOpen() {
		return Settlement{}, fmt.Errorf("match order %d: %w", orderID1, ErrOrderNotOpen)
	}
	if !o2.IsOpen() {
		return Settlement{}, fmt.Errorf("match order %d: %w", orderID2, ErrOrderNotOpen)
	}

	if o1.TokenBuy != o2.TokenSell || o1.TokenSell != o2.TokenBuy {
		return Settlement{}, fmt.Errorf("match orders %d/%d: %w", orderID1, orderID2, ErrTokenMismatch)
	}

	if o1.Quantity > o2.Cost {
		return Settlement{}, fmt.Errorf("order %d wants %d but order %d escrowed %d: %w",
			orderID1, o1.Quantity, orderID2, o2.Cost, ErrQuantityMismatch)
	}
	if o2.Quantity > o1.Cost {
		return Settlement{}, fmt.Errorf("order %d wants %d but order %d escrowed %d: %w",
			orderID2, o2.Quantity, orderID1, o1.Cost, ErrQuantityMismatch)
	}

	// Safe by the checks above.
	excess1 := o2.Cost - o1.Quantity
	excess2 := o1.Cost - o2.Quantity

	// Close both orders first; payouts happen against the snapshots. A
	// reentrant custody callback sees two closed orders.
	snap1, snap2, err := e.registry.closeForSettlement(orderID1, orderID2)
	if err != nil {
		return Settlement{}, err
	}

	s := Settlement{
		Order1:     snap1.ID,
		Order2:     snap2.ID,
		Maker1:     snap1.Maker,
		Maker2:     snap2.Maker,
		Matcher:    matcher,
		Token1:     snap1.TokenBuy,
		Token2:     snap2.TokenBuy,
		Paid1:      snap1.Quantity,
		Paid2:      snap2.Quantity,
		Surplus1:   excess1,
		Surplus2:   excess2,
		ExecutedAt: e.registry.clock.Now().UnixMilli(),
	}

	if err := e.payout(s); err != nil {
		e.registry.reopen(snap1, snap2)
		return Settlement{}, err
	}

	e.log.Info("trade executed",
		zap.Uint64("order1", s.Order1),
		zap.Uint64("order2", s.Order2),
		zap.String("matcher", matcher.Hex()),
		zap.Uint64("paid1", s.Paid1),
		zap.Uint64("paid2", s.Paid2),
		zap.Uint64("surplus1", s.Surplus1),
		zap.Uint64("surplus2", s.Surplus2),
	)
	e.notifier.TradeExecuted(s)
	return s, nil
}

// payout drains both escrows: each order's escrowed cost goes entirely to
// the counterparty's maker plus the matcher, conserving value exactly
// (Paid1 + Surplus1 = order2.Cost, Paid2 + Surplus2 = order1.Cost).
func (e *Engine) payout(s Settlement) error {
	escrow := e.registry.escrow

	transfers := []transfer{
		{s.Token1, s.Maker1, s.Paid1},
		{s.Token2, s.Maker2, s.Paid2},
		{s.Token1, s.Matcher, s.Surplus1},
		{s.Token2, s.Matcher, s.Surplus2},
	}

	done := make([]transfer, 0, len(transfers))
	for _, t := range transfers {
		if t.amount == 0 {
			continue
		}
		if err := e.custody.Move(t.token, escrow, t.to, t.amount); err != nil {
			e.reverse(done)
			return fmt.Errorf("settlement transfer failed: %w", err)
		}
		done = append(done, t)
	}
	return nil
}

// reverse returns already-paid funds to escrow after a failed settlement,
// newest first. The recipients were credited moments ago, so the inverse
// moves are expected to succeed; if custody still refuses one, the ledger
// needs operator reconciliation and we log accordingly.
func (e *Engine) reverse(done []transfer) {
	escrow := e.registry.escrow
	for i := len(done) - 1; i >= 0; i-- {
		t := done[i]
		if err := e.custody.Move(t.token, t.to, escrow, t.amount); err != nil {
			e.log.Error("failed to reverse settlement transfer",
				zap.String("token", t.token.Hex()),
				zap.String("recipient", t.to.Hex()),
				zap.Uint64("amount", t.amount),
				zap.Error(err),
			)
		}
	}
}
