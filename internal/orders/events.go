package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemPrice struct {
	ProductID string          `json:"product_id"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID    string          `json:"order_id"`
	UserID     string          `json:"user_id"`
	Items      []ItemPrice     `json:"items"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
}

func newEnvelope(eventType, producer, orderID string, at time.Time, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    at.UTC(),
		Producer:      producer,
		CorrelationID: orderID,
		Payload:       b,
	}, nil
}

func CreatedEvent(o Order, producer string) (Envelope, error) {
	items := make([]ItemPrice, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemPrice{ProductID: it.ProductID, Qty: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return newEnvelope(EventOrderCreated, producer, o.ID, o.CreatedAt, OrderCreatedPayload{
		OrderID:    o.ID,
		UserID:     o.UserID,
		Items:      items,
		TotalPrice: o.TotalPrice,
	})
}

func StatusChangedEvent(o Order, from Status, producer string) (Envelope, error) {
	return newEnvelope(EventOrderStatusChanged, producer, o.ID, o.UpdatedAt, OrderStatusChangedPayload{
		OrderID: o.ID,
		UserID:  o.UserID,
		From:    from,
		To:      o.Status,
	})
}
