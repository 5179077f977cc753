// Package events publishes exchange notifications to Kafka so off-chain
// indexers can rebuild order-book state from the event stream alone.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/openswap-labs/escrowdex/pkg/exchange"
)

// Event types on the wire.
const (
	TypeOrderCreated   = "order_created"
	TypeOrderCancelled = "order_cancelled"
	TypeTradeExecuted  = "trade_executed"
)

// Envelope wraps every published event.
type Envelope struct {
	Type string `json:"type"`
	Ts   int64  `json:"ts"` // Unix milliseconds

	Order *exchange.Order      `json:"order,omitempty"`
	Trade *exchange.Settlement `json:"trade,omitempty"`
}

// KafkaNotifier implements exchange.Notifier on top of a kafka-go writer.
// Publishing is fire-and-forget: failures are logged, never propagated into
// the engine operation that triggered the event.
type KafkaNotifier struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewKafkaNotifier creates a notifier publishing to topic on brokers.
func NewKafkaNotifier(brokers []string, topic string, logger *zap.Logger) *KafkaNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        true, // never stall the engine on broker latency
			BatchTimeout: 10 * time.Millisecond,
		},
		log: logger,
	}
}

// Close flushes and closes the underlying writer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}

func (k *KafkaNotifier) OrderCreated(o exchange.Order) {
	k.publish(orderKey(o.ID), Envelope{Type: TypeOrderCreated, Ts: o.CreatedAt, Order: &o})
}

func (k *KafkaNotifier) OrderCancelled(o exchange.Order) {
	k.publish(orderKey(o.ID), Envelope{Type: TypeOrderCancelled, Ts: time.Now().UnixMilli(), Order: &o})
}

func (k *KafkaNotifier) TradeExecuted(s exchange.Settlement) {
	k.publish(orderKey(s.Order1), Envelope{Type: TypeTradeExecuted, Ts: s.ExecutedAt, Trade: &s})
}

func (k *KafkaNotifier) publish(key []byte, env Envelope) {
	value, err := json.Marshal(env)
	if err != nil {
		k.log.Error("failed to marshal event", zap.String("type", env.Type), zap.Error(err))
		return
	}
	if err := k.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   key,
		Value: value,
	}); err != nil {
		k.log.Error("failed to publish event", zap.String("type", env.Type), zap.Error(err))
	}
}

// orderKey keys messages by order id so per-order events stay in partition
// order.
func orderKey(id uint64) []byte {
	return []byte(strconv.FormatUint(id, 10))
}
