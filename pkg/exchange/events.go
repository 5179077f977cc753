package exchange

// Notifier receives lifecycle notifications so off-chain consumers (indexer,
// websocket clients, Kafka topics) can reconstruct order-book state without
// reading the registry's storage.
//
// Notifications are observability only: implementations must not block the
// calling operation, and a delivery failure never aborts a placement,
// cancellation, or match.
type Notifier interface {
	OrderCreated(o Order)
	OrderCancelled(o Order)
	TradeExecuted(s Settlement)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) OrderCreated(Order)       {}
func (NopNotifier) OrderCancelled(Order)     {}
func (NopNotifier) TradeExecuted(Settlement) {}

// MultiNotifier fans every notification out to all children in order.
type MultiNotifier []Notifier

func (m MultiNotifier) OrderCreated(o Order) {
	for _, n := range m {
		n.OrderCreated(o)
	}
}

func (m MultiNotifier) OrderCancelled(o Order) {
	for _, n := range m {
		n.OrderCancelled(o)
	}
}

func (m MultiNotifier) TradeExecuted(s Settlement) {
	for _, n := range m {
		n.TradeExecuted(s)
	}
}
