package sales

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/stockledger/internal/alerts"
	"github.com/ariefcatur/stockledger/internal/catalog"
	"github.com/ariefcatur/stockledger/internal/events"
	"github.com/ariefcatur/stockledger/internal/inventory"
	"github.com/ariefcatur/stockledger/internal/keylock"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"time"
)

const tracerName = "github.com/ariefcatur/stockledger/internal/sales"

// StockEngine is the part of inventory.Engine a sale needs.
type StockEngine interface {
	CommitSale(ctx context.Context, saleRef string, lines []inventory.Line) (*inventory.CommitResult, error)
	ReverseSale(ctx context.Context, saleRef string) (*inventory.ReverseResult, error)
}

type OpenRequest struct {
	Payment string           `json:"payment_method"`
	Notes   string           `json:"notes"`
	Lines   []inventory.Line `json:"lines"`
}

type CommitOutcome struct {
	Sale       *Sale
	Quantities map[string]int
	LowStock   []alerts.Item
}

type VoidOutcome struct {
	Sale          *Sale
	WasCommitted  bool
	StockRestored bool
}

type Deps struct {
	Engine    StockEngine
	Catalog   catalog.Store
	Repo      Repository
	Alerts    *alerts.Projection // optional
	Publisher events.Publisher
	Logger    *zap.Logger
	Producer  string
	// LockTimeout bounds the wait on a single sale's lock.
	LockTimeout time.Duration
}

type Service struct {
	engine    StockEngine
	catalog   catalog.Store
	repo      Repository
	alerts    *alerts.Projection
	publisher events.Publisher
	log       *zap.Logger
	producer  string
	locks     *keylock.Locker
	tracer    trace.Tracer
	now       func() time.Time
}

func NewService(d Deps) *Service {
	if d.Publisher == nil {
		d.Publisher = events.NopPublisher{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.LockTimeout <= 0 {
		d.LockTimeout = 2 * time.Second
	}
	return &Service{
		engine:    d.Engine,
		catalog:   d.Catalog,
		repo:      d.Repo,
		alerts:    d.Alerts,
		publisher: d.Publisher,
		log:       d.Logger,
		producer:  d.Producer,
		locks:     keylock.New(d.LockTimeout),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}
}

// Open prices the basket from the catalog and stores it as a PENDING sale.
// No stock moves until Commit.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*Sale, error) {
	ctx, span := s.tracer.Start(ctx, "sales.open")
	defer span.End()

	sale, err := s.build(ctx, req)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if err := s.repo.Save(ctx, sale); err != nil {
		return nil, s.fail(span, fmt.Errorf("save sale %s: %w", sale.Number, err))
	}
	span.SetAttributes(attribute.String("sale.number", sale.Number))
	s.log.Info("sale opened", zap.String("sale", sale.Number), zap.Int("lines", len(sale.Lines)))
	return sale, nil
}

// Commit applies a PENDING sale to stock. A rejected commit leaves the sale
// PENDING so the basket can be edited with UpdateLines and retried.
func (s *Service) Commit(ctx context.Context, number string) (*CommitOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "sales.commit", trace.WithAttributes(attribute.String("sale.number", number)))
	defer span.End()

	release, err := s.locks.Acquire(ctx, number)
	if err != nil {
		return nil, s.fail(span, err)
	}
	defer release()

	sale, err := s.repo.Get(ctx, number)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if sale.Status != StatusPending {
		return nil, s.fail(span, &StateError{Number: number, From: sale.Status, To: StatusCommitted})
	}
	out, err := s.commit(ctx, sale)
	if err != nil {
		return nil, s.fail(span, err)
	}
	return out, nil
}

// Checkout opens and commits in one step. When the commit is rejected the
// sale is never stored and its number stays unused.
func (s *Service) Checkout(ctx context.Context, req OpenRequest) (*CommitOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "sales.checkout")
	defer span.End()

	sale, err := s.build(ctx, req)
	if err != nil {
		return nil, s.fail(span, err)
	}
	span.SetAttributes(attribute.String("sale.number", sale.Number))

	release, err := s.locks.Acquire(ctx, sale.Number)
	if err != nil {
		return nil, s.fail(span, err)
	}
	defer release()

	out, err := s.commit(ctx, sale)
	if err != nil {
		return nil, s.fail(span, err)
	}
	return out, nil
}

// Void cancels a sale. A committed sale gets its stock restored first; voiding
// an already voided sale is a no-op.
func (s *Service) Void(ctx context.Context, number string) (*VoidOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "sales.void", trace.WithAttributes(attribute.String("sale.number", number)))
	defer span.End()

	release, err := s.locks.Acquire(ctx, number)
	if err != nil {
		return nil, s.fail(span, err)
	}
	defer release()

	sale, err := s.repo.Get(ctx, number)
	if err != nil {
		return nil, s.fail(span, err)
	}
	out := &VoidOutcome{Sale: sale}
	switch sale.Status {
	case StatusVoided:
		return out, nil
	case StatusCommitted:
		res, err := s.engine.ReverseSale(ctx, number)
		if err != nil {
			return nil, s.fail(span, err)
		}
		out.WasCommitted = true
		out.StockRestored = !res.AlreadyReversed
	}
	if err := sale.transition(StatusVoided, s.now().UTC()); err != nil {
		return nil, s.fail(span, err)
	}
	// A failed save after a reversal is repaired by retrying Void: the
	// reversal is idempotent.
	if err := s.repo.Save(ctx, sale); err != nil {
		return nil, s.fail(span, fmt.Errorf("save sale %s: %w", number, err))
	}
	s.log.Info("sale voided", zap.String("sale", number), zap.Bool("was_committed", out.WasCommitted))
	s.emit(ctx, events.TopicSaleVoided, events.EventSaleVoided, number, events.SaleVoidedPayload{
		SaleNumber:    number,
		WasCommitted:  out.WasCommitted,
		StockRestored: out.StockRestored,
	})
	return out, nil
}

func (s *Service) Get(ctx context.Context, number string) (*Sale, error) {
	return s.repo.Get(ctx, number)
}

// UpdateLines replaces the basket of a PENDING sale, repricing every line
// from the catalog. Stock is checked again when the sale is committed.
func (s *Service) UpdateLines(ctx context.Context, number string, lines []inventory.Line) (*Sale, error) {
	ctx, span := s.tracer.Start(ctx, "sales.update_lines", trace.WithAttributes(attribute.String("sale.number", number)))
	defer span.End()

	items, err := s.price(ctx, lines)
	if err != nil {
		return nil, s.fail(span, err)
	}

	release, err := s.locks.Acquire(ctx, number)
	if err != nil {
		return nil, s.fail(span, err)
	}
	defer release()

	sale, err := s.repo.Get(ctx, number)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if sale.Status != StatusPending {
		return nil, s.fail(span, &StateError{Number: number, From: sale.Status, To: StatusPending})
	}
	sale.Lines = items
	if err := s.repo.Save(ctx, sale); err != nil {
		return nil, s.fail(span, fmt.Errorf("save sale %s: %w", number, err))
	}
	s.log.Info("sale lines updated", zap.String("sale", number), zap.Int("lines", len(items)))
	return sale, nil
}

// List pages through sales, newest first. Limit defaults to DefaultPageSize
// and is capped at MaxPageSize.
func (s *Service) List(ctx context.Context, f Filter) ([]*Sale, error) {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultPageSize
	case f.Limit > MaxPageSize:
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.List(ctx, f)
}

// Report summarizes the committed sales f selects. Pending and voided sales
// moved no stock and earn no revenue, so they are left out.
func (s *Service) Report(ctx context.Context, f Filter) (Summary, error) {
	f.Status, f.Limit, f.Offset = StatusCommitted, 0, 0
	list, err := s.repo.List(ctx, f)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(list), nil
}

// build validates req and prices it, reserving a sale number.
func (s *Service) build(ctx context.Context, req OpenRequest) (*Sale, error) {
	pm, err := ParsePaymentMethod(req.Payment)
	if err != nil {
		return nil, err
	}
	lines, err := s.price(ctx, req.Lines)
	if err != nil {
		return nil, err
	}

	number, err := s.repo.NextNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("next sale number: %w", err)
	}
	return &Sale{
		Number:    number,
		Lines:     lines,
		Payment:   pm,
		Notes:     req.Notes,
		Status:    StatusPending,
		Total:     decimal.Zero,
		CreatedAt: s.now().UTC(),
	}, nil
}

// price validates a basket and prices each line at the catalog selling price.
func (s *Service) price(ctx context.Context, req []inventory.Line) ([]LineItem, error) {
	if len(req) == 0 {
		return nil, &InvalidError{Reason: "a sale needs at least one line"}
	}
	seen := make(map[string]bool, len(req))
	for _, l := range req {
		switch {
		case l.SKU == "":
			return nil, &InvalidError{Reason: "line without sku"}
		case l.Qty <= 0:
			return nil, &InvalidError{Reason: fmt.Sprintf("quantity for %s must be positive", l.SKU)}
		case seen[l.SKU]:
			return nil, &InvalidError{Reason: fmt.Sprintf("sku %s listed twice", l.SKU)}
		}
		seen[l.SKU] = true
	}

	lines := make([]LineItem, 0, len(req))
	for _, l := range req {
		p, err := s.catalog.Get(ctx, l.SKU)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			return nil, &ProductError{SKU: l.SKU, Reason: "not found", Err: err}
		case err != nil:
			return nil, fmt.Errorf("load product %s: %w", l.SKU, err)
		case !p.Active:
			return nil, &ProductError{SKU: l.SKU, Reason: "inactive"}
		}
		lines = append(lines, LineItem{SKU: p.SKU, Name: p.Name, Quantity: l.Qty, UnitPrice: p.SellingPrice})
	}
	return lines, nil
}

// commit runs with the sale lock held.
func (s *Service) commit(ctx context.Context, sale *Sale) (*CommitOutcome, error) {
	res, err := s.engine.CommitSale(ctx, sale.Number, sale.StockLines())
	if err != nil {
		return nil, err
	}
	if err := sale.transition(StatusCommitted, s.now().UTC()); err != nil {
		return nil, err
	}
	sale.Total = sale.ComputeTotal()
	if err := s.repo.Save(ctx, sale); err != nil {
		// The ledger already holds the sale; take it back out so nothing
		// refers to a sale that was never recorded.
		if _, rerr := s.engine.ReverseSale(ctx, sale.Number); rerr != nil {
			s.log.Error("compensating reversal failed", zap.String("sale", sale.Number), zap.Error(rerr))
			err = errors.Join(err, rerr)
		}
		return nil, fmt.Errorf("save sale %s: %w", sale.Number, err)
	}

	out := &CommitOutcome{Sale: sale, Quantities: res.Quantities}
	s.log.Info("sale committed",
		zap.String("sale", sale.Number),
		zap.String("total", sale.Total.StringFixed(2)),
		zap.String("payment", string(sale.Payment)),
	)

	payload := events.SaleCommittedPayload{
		SaleNumber:    sale.Number,
		PaymentMethod: string(sale.Payment),
		Total:         sale.Total.StringFixed(2),
	}
	for _, l := range sale.Lines {
		payload.Lines = append(payload.Lines, events.SaleLine{SKU: l.SKU, Qty: l.Quantity, UnitPrice: l.UnitPrice.StringFixed(2)})
	}
	s.emit(ctx, events.TopicSaleCommitted, events.EventSaleCommitted, sale.Number, payload)

	if s.alerts != nil {
		skus := make([]string, 0, len(sale.Lines))
		for _, l := range sale.Lines {
			skus = append(skus, l.SKU)
		}
		out.LowStock = s.alerts.Check(ctx, skus)
		for _, it := range out.LowStock {
			s.emit(ctx, events.TopicLowStock, events.EventLowStock, sale.Number, events.LowStockPayload{
				SKU:       it.Product.SKU,
				Name:      it.Product.Name,
				Quantity:  it.Quantity,
				Threshold: it.Threshold,
			})
		}
	}
	return out, nil
}

// emit publishes best effort; the sale is already durable.
func (s *Service) emit(ctx context.Context, topic, eventType, number string, payload any) {
	env, err := events.New(eventType, s.producer, number, payload)
	if err != nil {
		s.log.Error("build event", zap.String("type", eventType), zap.Error(err))
		return
	}
	key := events.PartitionKey(number)
	if p, ok := payload.(events.LowStockPayload); ok {
		key = events.PartitionKey(p.SKU)
	}
	if err := s.publisher.Publish(ctx, topic, key, env); err != nil {
		s.log.Warn("publish failed", zap.String("topic", topic), zap.String("sale", number), zap.Error(err))
	}
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
