package kafka

import (
	"context"
	"github.com/ariefcatur/stockledger/internal/events"
)

// Publisher sends envelopes through a Producer.
type Publisher struct{ P *Producer }

var _ events.Publisher = (*Publisher)(nil)

func (p *Publisher) Publish(ctx context.Context, topic string, key []byte, env events.Envelope) error {
	m, err := Encode(ctx, topic, key, env)
	if err != nil {
		return err
	}
	return p.P.Send(ctx, m)
}
