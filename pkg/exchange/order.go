package exchange

import (
	"github.com/ethereum/go-ethereum/common"
)

// Status is the lifecycle state of an order. Closing is a one-way
// transition: a closed order never reopens and its amounts stay zeroed.
//
// StatusClosed is deliberately the zero value so that the zero-value Order
// reads as closed.
type Status int8

const (
	StatusClosed Status = iota
	StatusOpen
)

func (s Status) String() string {
	switch s {
	case StatusClosed:
		return "closed"
	case StatusOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Order is a maker's standing offer: pay Cost of TokenSell (already held in
// escrow) in exchange for Quantity of TokenBuy.
//
// The zero value doubles as the "no such order" sentinel returned by
// Registry.Get for ids that were never issued: all fields zero, null
// addresses, status closed. Callers must treat it exactly like a properly
// closed order with zeroed amounts.
type Order struct {
	ID        uint64         `json:"id"`
	Maker     common.Address `json:"maker"`
	TokenBuy  common.Address `json:"tokenBuy"`
	TokenSell common.Address `json:"tokenSell"`

	// Quantity is the amount of TokenBuy the maker wants to receive.
	// Cost is the amount of TokenSell escrowed on the maker's behalf.
	// Both are strictly positive while the order is open and zero after
	// it closes.
	Quantity uint64 `json:"quantity"`
	Cost     uint64 `json:"cost"`

	// CreatedAt is informational only (Unix milliseconds); matching never
	// looks at it.
	CreatedAt int64 `json:"createdAt"`

	Status Status `json:"status"`
}

// IsOpen reports whether the order can still be cancelled or matched.
func (o Order) IsOpen() bool {
	return o.Status == StatusOpen
}

// close zeroes the amounts and marks the order closed. Registry-internal:
// the engine requests closure through the registry, never directly.
func (o *Order) close() {
	o.Quantity = 0
	o.Cost = 0
	o.Status = StatusClosed
}
