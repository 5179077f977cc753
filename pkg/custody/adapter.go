// Package custody holds the fund-movement capability the exchange engine
// depends on. The engine never moves value itself: it asks an Adapter to do
// so and treats any refusal as grounds to abort the whole operation.
package custody

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnauthorized        = errors.New("transfer not authorized")
	ErrZeroAmount          = errors.New("transfer amount must be positive")
)

// Adapter moves a quantity of a fungible token from one account to another,
// or fails outright. Implementations must be all-or-nothing per call: a
// returned error means no value moved.
type Adapter interface {
	Move(token, from, to common.Address, amount uint64) error
}
