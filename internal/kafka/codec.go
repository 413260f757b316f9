package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ariefcatur/stockledger/internal/events"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"time"
)

const HeaderEventType = "event_type"

// Encode builds the wire message for env, carrying the caller's trace context
// in the headers.
func Encode(ctx context.Context, topic string, key []byte, env events.Envelope) (kafka.Message, error) {
	if sc := trace.SpanContextFromContext(ctx); env.TraceID == "" && sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	b, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s: %w", env.EventType, err)
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := []kafka.Header{{Key: HeaderEventType, Value: []byte(env.EventType)}}
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   b,
		Time:    time.Now(),
		Headers: headers,
	}, nil
}

// Decode parses the envelope of m and returns ctx joined to the producer's
// trace.
func Decode(ctx context.Context, m kafka.Message) (context.Context, events.Envelope, error) {
	carrier := propagation.MapCarrier{}
	for _, h := range m.Headers {
		carrier[h.Key] = string(h.Value)
	}
	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)

	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return ctx, env, fmt.Errorf("decode envelope: %w", err)
	}
	return ctx, env, nil
}
