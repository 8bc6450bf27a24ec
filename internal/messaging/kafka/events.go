package kafka

import "time"

// EventType определяет тип события жизненного цикла заказа.
type EventType string

const (
	// События финализации оплаты
	EventTypeOrderFinalized    EventType = "order.finalized"
	EventTypeOrderManualReview EventType = "order.manual_review"

	// События возвратов и диспутов
	EventTypeOrderRefunded   EventType = "order.refunded"
	EventTypeOrderChargeback EventType = "order.chargeback"

	// Прочие события заказа
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderStatusChanged EventType = "order.status_changed"
	EventTypeOrderSwept         EventType = "order.swept"
)

// Topics для Kafka
const (
	TopicOrderEvents = "storefront.order.events"
)

// OrderEvent представляет событие заказа для внешних потребителей.
type OrderEvent struct {
	EventType EventType              `json:"event_type"`
	OrderID   string                 `json:"order_id"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewOrderEvent создаёт новое событие заказа.
func NewOrderEvent(eventType EventType, orderID string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType: eventType,
		OrderID:   orderID,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}
