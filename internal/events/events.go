// Package events defines the envelopes the ledger publishes and consumes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/google/uuid"
	"time"
)

const (
	EventStockChanged  = "StockChanged"
	EventLowStock      = "LowStockAlert"
	EventSaleCommitted = "SaleCommitted"
	EventSaleVoided    = "SaleVoided"
	EventGoodsReceived = "GoodsReceived"
)

const (
	TopicStockChanged  = "stock.changed"
	TopicLowStock      = "stock.low"
	TopicSaleCommitted = "sale.committed"
	TopicSaleVoided    = "sale.voided"
	TopicGoodsReceived = "stock.goods-received"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // sale number or sku
	Payload       json.RawMessage `json:"payload"`
}

// New wraps payload in a version 1 envelope.
func New(eventType, producer, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

// Decode unmarshals the envelope payload into T.
func Decode[T any](env Envelope) (T, error) {
	var t T
	if err := json.Unmarshal(env.Payload, &t); err != nil {
		return t, fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}
	return t, nil
}

// Partition key = sku for stock events, sale number for sale events, so
// all events of one entity keep their order.
func PartitionKey(id string) []byte { return []byte(id) }

// Publisher delivers envelopes to a topic. Delivery is best effort; the
// ledger is the source of truth.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, env Envelope) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, []byte, Envelope) error { return nil }

// ---- payloads ----

type StockChangedPayload struct {
	SKU      string `json:"sku"`
	Seq      int64  `json:"seq"`
	Delta    int    `json:"delta"`
	Reason   string `json:"reason"`
	SaleRef  string `json:"sale_ref,omitempty"`
	Quantity int    `json:"quantity"` // on hand after the change
}

type LowStockPayload struct {
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Threshold int    `json:"threshold"`
}

type SaleLine struct {
	SKU       string `json:"sku"`
	Qty       int    `json:"qty"`
	UnitPrice string `json:"unit_price"`
}

type SaleCommittedPayload struct {
	SaleNumber    string     `json:"sale_number"`
	PaymentMethod string     `json:"payment_method"`
	Total         string     `json:"total"`
	Lines         []SaleLine `json:"lines"`
}

type SaleVoidedPayload struct {
	SaleNumber    string `json:"sale_number"`
	WasCommitted  bool   `json:"was_committed"`
	StockRestored bool   `json:"stock_restored"`
}

// GoodsReceivedPayload is published by purchasing when a delivery is booked in.
type GoodsReceivedPayload struct {
	SKU       string `json:"sku"`
	Qty       int    `json:"qty"`
	Reference string `json:"reference"`
}
