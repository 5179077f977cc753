package api

// Request and response types for REST endpoints and WebSocket messages

// ==============================
// REST Request Types
// ==============================

// PlaceOrderRequest creates a new escrow order.
type PlaceOrderRequest struct {
	Maker     string `json:"maker"`     // hex address
	TokenBuy  string `json:"tokenBuy"`  // hex address of the asset the maker wants
	TokenSell string `json:"tokenSell"` // hex address of the asset the maker escrows
	Quantity  uint64 `json:"quantity"`  // amount of tokenBuy requested
	Cost      uint64 `json:"cost"`      // amount of tokenSell escrowed
}

// CancelOrderRequest cancels an open order; requester must be the maker.
type CancelOrderRequest struct {
	OrderID   uint64 `json:"orderId"`
	Requester string `json:"requester"` // hex address
}

// MatchOrdersRequest proposes a pairing of two open orders. The matcher
// collects any surplus.
type MatchOrdersRequest struct {
	OrderID1 uint64 `json:"orderId1"`
	OrderID2 uint64 `json:"orderId2"`
	Matcher  string `json:"matcher"` // hex address
}

// DepositRequest credits tokens to an account in the custody ledger
// (dev/bridge surface).
type DepositRequest struct {
	Account string `json:"account"` // hex address
	Token   string `json:"token"`   // hex address
	Amount  uint64 `json:"amount"`
}

// ==============================
// REST Response Types
// ==============================

// PlaceOrderResponse returns the id assigned to a new order.
type PlaceOrderResponse struct {
	OrderID uint64 `json:"orderId"`
}

// CancelOrderResponse confirms a cancellation.
type CancelOrderResponse struct {
	OrderID  uint64 `json:"orderId"`
	Refunded uint64 `json:"refunded"` // escrowed cost returned to the maker
	Status   string `json:"status"`   // always "closed"
}

// OrderInfo is the API view of an order record. Closed and never-issued ids
// both render as the zeroed sentinel with status "closed".
type OrderInfo struct {
	ID        uint64 `json:"id"`
	Maker     string `json:"maker"`
	TokenBuy  string `json:"tokenBuy"`
	TokenSell string `json:"tokenSell"`
	Quantity  uint64 `json:"quantity"`
	Cost      uint64 `json:"cost"`
	CreatedAt int64  `json:"createdAt"` // Unix milliseconds
	Status    string `json:"status"`    // "open" or "closed"
}

// SettlementInfo summarizes an executed match.
type SettlementInfo struct {
	Order1     uint64 `json:"order1"`
	Order2     uint64 `json:"order2"`
	Maker1     string `json:"maker1"`
	Maker2     string `json:"maker2"`
	Matcher    string `json:"matcher"`
	Token1     string `json:"token1"`
	Token2     string `json:"token2"`
	Paid1      uint64 `json:"paid1"`
	Paid2      uint64 `json:"paid2"`
	Surplus1   uint64 `json:"surplus1"`
	Surplus2   uint64 `json:"surplus2"`
	ExecutedAt int64  `json:"executedAt"`
}

// BalanceInfo reports one (account, token) balance in the custody ledger.
type BalanceInfo struct {
	Account string `json:"account"`
	Token   string `json:"token"`
	Balance uint64 `json:"balance"`
}

// CountResponse reports the next-id counter.
type CountResponse struct {
	Count uint64 `json:"count"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Types
// ==============================

// WSSubscribeRequest subscribes or unsubscribes channels.
// Channels: "orders" (created/cancelled), "trades" (executed settlements).
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// WSMessage wraps every broadcast frame.
type WSMessage struct {
	Channel string      `json:"channel"`
	Type    string      `json:"type"`
	Data    interface{} `json:"data"`
}
