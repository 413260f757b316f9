// Package inventory is the reservation/commit engine: the only writer of the
// ledger and of the stock projection.
package inventory

import (
	"context"
	"errors"
	"github.com/ariefcatur/stockledger/internal/events"
	"github.com/ariefcatur/stockledger/internal/keylock"
	"github.com/ariefcatur/stockledger/internal/ledger"
	"github.com/ariefcatur/stockledger/internal/stock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/ariefcatur/stockledger/internal/inventory"

// Line is one SKU/quantity pair of a sale.
type Line struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

type CommitResult struct {
	SaleRef    string
	Entries    []ledger.Entry
	Quantities map[string]int // on hand after the commit
}

type ReverseResult struct {
	SaleRef         string
	Entries         []ledger.Entry // REVERSAL entries written by this call
	AlreadyReversed bool
	Quantities      map[string]int
}

type Engine struct {
	Store     ledger.Store
	Stock     *stock.Aggregator
	Publisher events.Publisher
	Logger    *zap.Logger
	Producer  string // envelope producer name

	locks  *keylock.Locker
	tracer trace.Tracer
}

// New wires an Engine. agg must carry the Locker every writer shares.
func New(store ledger.Store, agg *stock.Aggregator, pub events.Publisher, log *zap.Logger, producer string) *Engine {
	if agg.Locks() == nil {
		panic("inventory: aggregator built without a Locker")
	}
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		Store:     store,
		Stock:     agg,
		Publisher: pub,
		Logger:    log,
		Producer:  producer,
		locks:     agg.Locks(),
		tracer:    otel.Tracer(tracerName),
	}
}

// CommitSale validates every line against current stock and, only if all
// pass, appends one SALE entry per line. Either every line is applied or none.
func (e *Engine) CommitSale(ctx context.Context, saleRef string, lines []Line) (*CommitResult, error) {
	ctx, span := e.tracer.Start(ctx, "inventory.commit_sale", trace.WithAttributes(
		attribute.String("sale.ref", saleRef),
		attribute.Int("sale.lines", len(lines)),
	))
	defer span.End()

	if err := validateLines(saleRef, lines); err != nil {
		return nil, e.fail(span, err)
	}

	skus := make([]string, 0, len(lines))
	for _, l := range lines {
		skus = append(skus, l.SKU)
	}

	stamped, qty, err := e.withLocks(ctx, skus, func() ([]ledger.Entry, error) {
		entries := make([]ledger.Entry, 0, len(lines))
		for _, l := range lines {
			avail := e.Stock.QuantityOf(l.SKU)
			if avail-l.Qty < 0 {
				return nil, &InsufficientStockError{SKU: l.SKU, Requested: l.Qty, Available: avail}
			}
			entries = append(entries, ledger.Entry{
				SKU:     l.SKU,
				Delta:   -l.Qty,
				Reason:  ledger.ReasonSale,
				SaleRef: saleRef,
			})
		}
		return entries, nil
	})
	if err != nil {
		var ins *InsufficientStockError
		if errors.As(err, &ins) {
			e.Logger.Warn("sale rejected: insufficient stock",
				zap.String("sale_ref", saleRef),
				zap.String("sku", ins.SKU),
				zap.Int("requested", ins.Requested),
				zap.Int("available", ins.Available),
			)
		}
		return nil, e.fail(span, err)
	}

	e.Logger.Info("sale committed to ledger", zap.String("sale_ref", saleRef), zap.Int("entries", len(stamped)))
	span.SetStatus(codes.Ok, "committed")
	e.publishChanges(ctx, stamped, qty)
	return &CommitResult{SaleRef: saleRef, Entries: stamped, Quantities: qty}, nil
}

// ReverseSale appends a REVERSAL for every SALE entry tagged saleRef that
// has not been reversed yet. A REVERSAL points at its SALE entry through
// Reference, so calling it again for the same sale is a no-op, and a sale
// committed again after an earlier reversal is still reversed in full.
func (e *Engine) ReverseSale(ctx context.Context, saleRef string) (*ReverseResult, error) {
	ctx, span := e.tracer.Start(ctx, "inventory.reverse_sale", trace.WithAttributes(
		attribute.String("sale.ref", saleRef),
	))
	defer span.End()

	if saleRef == "" {
		return nil, e.fail(span, invalidf("empty sale reference"))
	}

	res := &ReverseResult{SaleRef: saleRef}
	prior, err := e.Store.EntriesForSale(ctx, saleRef)
	if err != nil {
		return nil, e.fail(span, err)
	}
	if len(prior) == 0 {
		return res, nil
	}
	skus := make([]string, 0, len(prior))
	for _, en := range prior {
		skus = append(skus, en.SKU)
	}

	stamped, qty, err := e.withLocks(ctx, skus, func() ([]ledger.Entry, error) {
		// Re-read under the locks: a concurrent reversal may have won.
		current, err := e.Store.EntriesForSale(ctx, saleRef)
		if err != nil {
			return nil, err
		}
		out := outstanding(current)
		res.AlreadyReversed = len(out) == 0
		return out, nil
	})
	if err != nil {
		return nil, e.fail(span, err)
	}

	res.Entries = stamped
	res.Quantities = qty
	if res.AlreadyReversed {
		e.Logger.Info("sale already reversed", zap.String("sale_ref", saleRef))
		return res, nil
	}
	e.Logger.Info("sale reversed", zap.String("sale_ref", saleRef), zap.Int("entries", len(stamped)))
	span.SetStatus(codes.Ok, "reversed")
	e.publishChanges(ctx, stamped, qty)
	return res, nil
}

// Restock books qty units of sku in as a single RESTOCK entry.
func (e *Engine) Restock(ctx context.Context, sku string, qty int, reference string) (ledger.Entry, error) {
	if sku == "" {
		return ledger.Entry{}, invalidf("empty sku")
	}
	if qty <= 0 {
		return ledger.Entry{}, invalidf("restock quantity must be positive, got %d", qty)
	}
	return e.adjust(ctx, "inventory.restock", ledger.Entry{
		SKU: sku, Delta: qty, Reason: ledger.ReasonRestock, Reference: reference,
	})
}

// Correct records a stock-count adjustment. It may not drive stock negative.
func (e *Engine) Correct(ctx context.Context, sku string, delta int, note string) (ledger.Entry, error) {
	if sku == "" {
		return ledger.Entry{}, invalidf("empty sku")
	}
	if delta == 0 {
		return ledger.Entry{}, invalidf("correction delta must be non-zero")
	}
	return e.adjust(ctx, "inventory.correct", ledger.Entry{
		SKU: sku, Delta: delta, Reason: ledger.ReasonCorrection, Reference: note,
	})
}

func (e *Engine) adjust(ctx context.Context, op string, entry ledger.Entry) (ledger.Entry, error) {
	ctx, span := e.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("stock.sku", entry.SKU),
		attribute.Int("stock.delta", entry.Delta),
	))
	defer span.End()

	stamped, qty, err := e.withLocks(ctx, []string{entry.SKU}, func() ([]ledger.Entry, error) {
		avail := e.Stock.QuantityOf(entry.SKU)
		if avail+entry.Delta < 0 {
			return nil, &InsufficientStockError{SKU: entry.SKU, Requested: -entry.Delta, Available: avail}
		}
		return []ledger.Entry{entry}, nil
	})
	if err != nil {
		return ledger.Entry{}, e.fail(span, err)
	}

	e.Logger.Info("stock adjusted",
		zap.String("sku", entry.SKU),
		zap.String("reason", string(entry.Reason)),
		zap.Int("delta", entry.Delta),
		zap.Int("quantity", qty[entry.SKU]),
	)
	e.publishChanges(ctx, stamped, qty)
	return stamped[0], nil
}

// QuantityOf is the read path for reporting collaborators.
func (e *Engine) QuantityOf(sku string) int { return e.Stock.QuantityOf(sku) }

// EntriesFor is the read path for reporting collaborators.
func (e *Engine) EntriesFor(ctx context.Context, sku string) ([]ledger.Entry, error) {
	return e.Store.EntriesFor(ctx, sku)
}

// withLocks runs plan under the per-SKU locks, appends what it returns in a
// single atomic append and applies the result to the projection before the
// locks are released. It returns the stamped entries and the post-write
// quantity of every locked SKU.
func (e *Engine) withLocks(ctx context.Context, skus []string, plan func() ([]ledger.Entry, error)) ([]ledger.Entry, map[string]int, error) {
	release, err := e.locks.Acquire(ctx, skus...)
	if err != nil {
		var te *keylock.TimeoutError
		if errors.As(err, &te) {
			return nil, nil, &ConcurrencyTimeoutError{SKU: te.Key, Wait: te.Wait, Err: err}
		}
		return nil, nil, err
	}
	defer release()

	entries, err := plan()
	if err != nil || len(entries) == 0 {
		return nil, nil, err
	}
	stamped, err := e.Store.Append(ctx, entries...)
	if err != nil {
		return nil, nil, err
	}
	for _, en := range stamped {
		e.Stock.Apply(en)
	}
	qty := make(map[string]int, len(skus))
	for _, sku := range skus {
		qty[sku] = e.Stock.QuantityOf(sku)
	}
	return stamped, qty, nil
}

func (e *Engine) publishChanges(ctx context.Context, entries []ledger.Entry, qty map[string]int) {
	for _, en := range entries {
		env, err := events.New(events.EventStockChanged, e.Producer, en.SKU, events.StockChangedPayload{
			SKU:      en.SKU,
			Seq:      en.Seq,
			Delta:    en.Delta,
			Reason:   string(en.Reason),
			SaleRef:  en.SaleRef,
			Quantity: qty[en.SKU],
		})
		if err == nil {
			err = e.Publisher.Publish(ctx, events.TopicStockChanged, events.PartitionKey(en.SKU), env)
		}
		if err != nil {
			e.Logger.Error("publish stock change", zap.Error(err), zap.String("sku", en.SKU), zap.Int64("seq", en.Seq))
		}
	}
}

func (e *Engine) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// outstanding returns a REVERSAL for each SALE entry in entries that no
// REVERSAL references yet.
func outstanding(entries []ledger.Entry) []ledger.Entry {
	undone := make(map[string]bool)
	for _, en := range entries {
		if en.Reason == ledger.ReasonReversal && en.Reference != "" {
			undone[en.Reference] = true
		}
	}
	var out []ledger.Entry
	for _, en := range entries {
		if en.Reason != ledger.ReasonSale || undone[en.ID] {
			continue
		}
		out = append(out, ledger.Entry{
			SKU:       en.SKU,
			Delta:     -en.Delta,
			Reason:    ledger.ReasonReversal,
			SaleRef:   en.SaleRef,
			Reference: en.ID,
		})
	}
	return out
}

func validateLines(saleRef string, lines []Line) error {
	if saleRef == "" {
		return invalidf("empty sale reference")
	}
	if len(lines) == 0 {
		return invalidf("sale %s has no lines", saleRef)
	}
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if l.SKU == "" {
			return invalidf("sale %s: line without sku", saleRef)
		}
		if l.Qty <= 0 {
			return invalidf("sale %s: quantity for %s must be positive, got %d", saleRef, l.SKU, l.Qty)
		}
		if _, dup := seen[l.SKU]; dup {
			return invalidf("sale %s: sku %s appears more than once", saleRef, l.SKU)
		}
		seen[l.SKU] = struct{}{}
	}
	return nil
}
