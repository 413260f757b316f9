// Package restock applies goods-received events from purchasing to the ledger.
package restock

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/stockledger/internal/events"
	"github.com/ariefcatur/stockledger/internal/inventory"
	kafkax "github.com/ariefcatur/stockledger/internal/kafka"
	"github.com/ariefcatur/stockledger/internal/ledger"
	"github.com/ariefcatur/stockledger/internal/redisx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Restocker is the engine call a goods-received event turns into.
type Restocker interface {
	Restock(ctx context.Context, sku string, qty int, reference string) (ledger.Entry, error)
}

type Handler struct {
	Engine Restocker
	Cache  redisx.Cache
	Logger *zap.Logger
	Name   string // dedup namespace, usually the consumer group
}

// HandleGoodsReceived is a kafka.Handler. Each event_id is applied at most
// once; the dedup claim is dropped again when the restock fails so the
// redelivery can retry it.
func (h *Handler) HandleGoodsReceived(ctx context.Context, m kafka.Message) error {
	log := h.logger().With(zap.String("topic", m.Topic), zap.Int64("offset", m.Offset))

	ctx, env, err := kafkax.Decode(ctx, m)
	if err != nil {
		log.Error("dropping undecodable message", zap.Error(err))
		return nil
	}
	if env.EventType != events.EventGoodsReceived {
		log.Warn("unexpected event type", zap.String("event_type", env.EventType))
		return nil
	}
	p, err := events.Decode[events.GoodsReceivedPayload](env)
	if err != nil {
		log.Error("dropping bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	key := fmt.Sprintf(redisx.KeyDedup, h.Name, env.EventID)
	won, err := h.Cache.Claim(ctx, key, "1", redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("dedup claim %s: %w", env.EventID, err)
	}
	if !won {
		log.Info("duplicate goods-received skipped", zap.String("event_id", env.EventID))
		return nil
	}

	entry, err := h.Engine.Restock(ctx, p.SKU, p.Qty, p.Reference)
	if err != nil {
		var invalid *inventory.InvalidRequestError
		if errors.As(err, &invalid) {
			log.Error("rejected goods-received", zap.String("event_id", env.EventID), zap.Error(err))
			return nil
		}
		if derr := redisx.Release(ctx, h.Cache, key); derr != nil {
			log.Warn("dedup release failed", zap.String("key", key), zap.Error(derr))
		}
		return fmt.Errorf("restock %s: %w", p.SKU, err)
	}
	log.Info("goods received",
		zap.String("event_id", env.EventID),
		zap.String("sku", p.SKU),
		zap.Int("qty", p.Qty),
		zap.Int64("seq", entry.Seq),
	)
	return nil
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
