package exchange

import "errors"

// Engine and registry errors. Every operation either completes in full or
// fails with one of these (possibly wrapped) and zero side effects.
var (
	// Validation: the request itself is malformed.
	ErrSameToken  = errors.New("tokenBuy and tokenSell must differ")
	ErrZeroAmount = errors.New("quantity and cost must be positive")

	// Authorization: only the maker may cancel an order.
	ErrNotMaker = errors.New("requester is not the order maker")

	// State: the target order is closed or was never placed.
	ErrOrderNotOpen = errors.New("order is not open")

	// Compatibility: the proposed pair cannot settle against each other.
	ErrTokenMismatch    = errors.New("orders are not mirror-image token pairs")
	ErrQuantityMismatch = errors.New("requested quantity exceeds counterparty cost")
)
