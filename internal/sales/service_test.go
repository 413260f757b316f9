package sales

import (
	"context"
	"errors"
	"github.com/ariefcatur/stockledger/internal/alerts"
	"github.com/ariefcatur/stockledger/internal/catalog"
	"github.com/ariefcatur/stockledger/internal/events"
	"github.com/ariefcatur/stockledger/internal/inventory"
	"github.com/ariefcatur/stockledger/internal/keylock"
	"github.com/ariefcatur/stockledger/internal/ledger"
	"github.com/ariefcatur/stockledger/internal/stock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

type harness struct {
	ledger *ledger.MemoryStore
	engine *inventory.Engine
	cat    *catalog.MemoryStore
	repo   *MemoryRepository
	pub    *events.Recorder
	svc    *Service
}

func newHarness(t *testing.T, repo Repository) *harness {
	t.Helper()
	h := &harness{
		ledger: ledger.NewMemoryStore(),
		cat:    catalog.NewMemoryStore(),
		repo:   NewMemoryRepository(),
		pub:    &events.Recorder{},
	}
	agg := stock.NewAggregator(h.ledger, keylock.New(time.Second), nil)
	h.engine = inventory.New(h.ledger, agg, h.pub, nil, "test")
	if repo == nil {
		repo = h.repo
	}
	h.svc = NewService(Deps{
		Engine:    h.engine,
		Catalog:   h.cat,
		Repo:      repo,
		Alerts:    &alerts.Projection{Catalog: h.cat, Stock: agg},
		Publisher: h.pub,
		Producer:  "test",
	})
	return h
}

func (h *harness) product(t *testing.T, sku, price string, min, qty int) {
	t.Helper()
	ctx := context.Background()
	_, err := h.cat.Create(ctx, catalog.Product{
		SKU:          sku,
		Name:         "Item " + sku,
		BuyingPrice:  decimal.RequireFromString(price).Div(decimal.NewFromInt(2)),
		SellingPrice: decimal.RequireFromString(price),
		MinStock:     min,
		Active:       true,
	})
	require.NoError(t, err)
	if qty > 0 {
		_, err = h.engine.Restock(ctx, sku, qty, "seed")
		require.NoError(t, err)
	}
}

func req(lines ...inventory.Line) OpenRequest {
	return OpenRequest{Payment: "card", Lines: lines}
}

func TestService_CheckoutTotalsAndEvents(t *testing.T) {
	h := newHarness(t, nil)
	h.product(t, "A", "2.50", 5, 10)
	h.product(t, "B", "10.00", 1, 3)

	out, err := h.svc.Checkout(context.Background(), req(
		inventory.Line{SKU: "A", Qty: 4},
		inventory.Line{SKU: "B", Qty: 1},
	))
	require.NoError(t, err)
	assert.Equal(t, "SALE-000001", out.Sale.Number)
	assert.Equal(t, StatusCommitted, out.Sale.Status)
	assert.Equal(t, PaymentCard, out.Sale.Payment)
	assert.Equal(t, "20.00", out.Sale.Total.StringFixed(2))
	assert.NotNil(t, out.Sale.CommittedAt)
	assert.Equal(t, map[string]int{"A": 6, "B": 2}, out.Quantities)
	assert.Empty(t, out.LowStock)

	stored, err := h.svc.Get(context.Background(), out.Sale.Number)
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, stored.Status)

	committed := h.pub.Topic(events.TopicSaleCommitted)
	require.Len(t, committed, 1)
	p, err := events.Decode[events.SaleCommittedPayload](committed[0])
	require.NoError(t, err)
	assert.Equal(t, "20.00", p.Total)
	assert.Len(t, p.Lines, 2)
}

func TestService_CheckoutRaisesLowStock(t *testing.T) {
	h := newHarness(t, nil)
	h.product(t, "A", "1.00", 5, 7)

	out, err := h.svc.Checkout(context.Background(), req(inventory.Line{SKU: "A", Qty: 2}))
	require.NoError(t, err)
	require.Len(t, out.LowStock, 1)
	assert.Equal(t, 5, out.LowStock[0].Quantity)

	low := h.pub.Topic(events.TopicLowStock)
	require.Len(t, low, 1)
	assert.Equal(t, events.EventLowStock, low[0].EventType)
}

func TestService_CheckoutRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.product(t, "A", "1.00", 0, 2)

	_, err := h.svc.Checkout(context.Background(), req(inventory.Line{SKU: "A", Qty: 5}))
	var ise *inventory.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, 2, ise.Available)

	_, err = h.svc.Get(context.Background(), "SALE-000001")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, h.pub.Topic(events.TopicSaleCommitted))
}

func TestService_BuildValidation(t *testing.T) {
	h := newHarness(t, nil)
	h.product(t, "A", "1.00", 0, 5)
	off := catalog.Product{SKU: "OFF", Name: "Retired", SellingPrice: decimal.NewFromInt(1), Active: false}
	_, err := h.cat.Create(context.Background(), off)
	require.NoError(t, err)

	cases := []struct {
		name string
		req  OpenRequest
		as   any
	}{
		{"no lines", OpenRequest{}, new(*InvalidError)},
		{"zero qty", req(inventory.Line{SKU: "A"}), new(*InvalidError)},
		{"empty sku", req(inventory.Line{Qty: 1}), new(*InvalidError)},
		{"duplicate", req(inventory.Line{SKU: "A", Qty: 1}, inventory.Line{SKU: "A", Qty: 1}), new(*InvalidError)},
		{"bad payment", OpenRequest{Payment: "barter", Lines: []inventory.Line{{SKU: "A", Qty: 1}}}, new(*InvalidError)},
		{"unknown product", req(inventory.Line{SKU: "NOPE", Qty: 1}), new(*ProductError)},
		{"inactive product", req(inventory.Line{SKU: "OFF", Qty: 1}), new(*ProductError)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.Open(context.Background(), tc.req)
			require.Error(t, err)
			assert.ErrorAs(t, err, tc.as)
		})
	}
	entries, err := h.ledger.EntriesFor(context.Background(), "A")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestService_OpenCommitLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	h.product(t, "A", "3.00", 0, 2)
	ctx := context.Background()

	sale, err := h.svc.Open(ctx, req(inventory.Line{SKU: "A", Qty: 3}))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, sale.Status)
	assert.Equal(t, 2, h.engine.QuantityOf("A"))

	_, err = h.svc.Commit(ctx, sale.Number)
	var ise *inventory.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	stored, err := h.svc.Get(ctx, sale.Number)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)

	_, err = h.engine.Restock(ctx, "A", 5, "PO-1")
	require.NoError(t, err)
	out, err := h.svc.Commit(ctx, sale.Number)
	require.NoError(t, err)
	assert.Equal(t, "9.00", out.Sale.Total.StringFixed(2))
	assert.Equal(t, 4, h.engine.QuantityOf("A"))

	_, err = h.svc.Commit(ctx, sale.Number)
	var se *StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StatusCommitted, se.From)

	_, err = h.svc.Commit(ctx, "SALE-999999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_Void(t *testing.T) {
	h := newHarness(t, nil)
	h.product(t, "A", "1.00", 0, 10)
	h.product(t, "B", "1.00", 0, 10)
	ctx := context.Background()

	out, err := h.svc.Checkout(ctx, req(inventory.Line{SKU: "A", Qty: 3}, inventory.Line{SKU: "B", Qty: 2}))
	require.NoError(t, err)

	v, err := h.svc.Void(ctx, out.Sale.Number)
	require.NoError(t, err)
	assert.True(t, v.WasCommitted)
	assert.True(t, v.StockRestored)
	assert.Equal(t, StatusVoided, v.Sale.Status)
	assert.NotNil(t, v.Sale.VoidedAt)
	assert.Equal(t, 10, h.engine.QuantityOf("A"))
	assert.Equal(t, 10, h.engine.QuantityOf("B"))

	again, err := h.svc.Void(ctx, out.Sale.Number)
	require.NoError(t, err)
	assert.False(t, again.WasCommitted)
	assert.Equal(t, 10, h.engine.QuantityOf("A"))
	assert.Len(t, h.pub.Topic(events.TopicSaleVoided), 1)

	pending, err := h.svc.Open(ctx, req(inventory.Line{SKU: "A", Qty: 1}))
	require.NoError(t, err)
	v, err = h.svc.Void(ctx, pending.Number)
	require.NoError(t, err)
	assert.False(t, v.WasCommitted)
	assert.False(t, v.StockRestored)
	entries, err := h.ledger.EntriesForSale(ctx, pending.Number)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = h.svc.Commit(ctx, pending.Number)
	var se *StateError
	assert.ErrorAs(t, err, &se)
}

// flakyRepo fails the first Save of a committed sale.
type flakyRepo struct {
	*MemoryRepository
	failed bool
}

func (r *flakyRepo) Save(ctx context.Context, s *Sale) error {
	if s.Status == StatusCommitted && !r.failed {
		r.failed = true
		return errors.New("disk full")
	}
	return r.MemoryRepository.Save(ctx, s)
}

func TestService_CommitCompensatesFailedSave(t *testing.T) {
	repo := &flakyRepo{MemoryRepository: NewMemoryRepository()}
	h := newHarness(t, repo)
	h.product(t, "A", "1.00", 0, 5)

	_, err := h.svc.Checkout(context.Background(), req(inventory.Line{SKU: "A", Qty: 2}))
	require.Error(t, err)
	assert.Equal(t, 5, h.engine.QuantityOf("A"))
	assert.Empty(t, h.pub.Topic(events.TopicSaleCommitted))
}

func TestService_RetriedCommitAfterFailedSaveVoidsFully(t *testing.T) {
	repo := &flakyRepo{MemoryRepository: NewMemoryRepository()}
	h := newHarness(t, repo)
	h.product(t, "A", "1.00", 0, 5)
	ctx := context.Background()

	sale, err := h.svc.Open(ctx, req(inventory.Line{SKU: "A", Qty: 2}))
	require.NoError(t, err)

	_, err = h.svc.Commit(ctx, sale.Number)
	require.Error(t, err)
	assert.Equal(t, 5, h.engine.QuantityOf("A"))
	stored, err := h.svc.Get(ctx, sale.Number)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)

	_, err = h.svc.Commit(ctx, sale.Number)
	require.NoError(t, err)
	assert.Equal(t, 3, h.engine.QuantityOf("A"))

	v, err := h.svc.Void(ctx, sale.Number)
	require.NoError(t, err)
	assert.True(t, v.WasCommitted)
	assert.True(t, v.StockRestored)
	assert.Equal(t, 5, h.engine.QuantityOf("A"))

	entries, err := h.ledger.EntriesFor(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, ledger.Audit(entries))
}

func TestService_UpdateLines(t *testing.T) {
	h := newHarness(t, nil)
	h.product(t, "A", "2.00", 0, 1)
	h.product(t, "B", "5.00", 0, 4)
	ctx := context.Background()

	sale, err := h.svc.Open(ctx, req(inventory.Line{SKU: "A", Qty: 3}))
	require.NoError(t, err)
	_, err = h.svc.Commit(ctx, sale.Number)
	var ise *inventory.InsufficientStockError
	require.ErrorAs(t, err, &ise)

	_, err = h.svc.UpdateLines(ctx, sale.Number, []inventory.Line{{SKU: "NOPE", Qty: 1}})
	var pe *ProductError
	require.ErrorAs(t, err, &pe)

	updated, err := h.svc.UpdateLines(ctx, sale.Number, []inventory.Line{{SKU: "A", Qty: 1}, {SKU: "B", Qty: 2}})
	require.NoError(t, err)
	require.Len(t, updated.Lines, 2)
	assert.Equal(t, "5.00", updated.Lines[1].UnitPrice.StringFixed(2))
	assert.Equal(t, StatusPending, updated.Status)

	out, err := h.svc.Commit(ctx, sale.Number)
	require.NoError(t, err)
	assert.Equal(t, "12.00", out.Sale.Total.StringFixed(2))
	assert.Equal(t, 0, h.engine.QuantityOf("A"))
	assert.Equal(t, 2, h.engine.QuantityOf("B"))

	_, err = h.svc.UpdateLines(ctx, sale.Number, []inventory.Line{{SKU: "B", Qty: 1}})
	var se *StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StatusCommitted, se.From)

	_, err = h.svc.UpdateLines(ctx, "SALE-999999", []inventory.Line{{SKU: "B", Qty: 1}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_ListAndReport(t *testing.T) {
	h := newHarness(t, nil)
	h.product(t, "A", "2.00", 0, 50)
	h.product(t, "B", "10.00", 0, 50)
	ctx := context.Background()

	day := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	at := func(d time.Time) { h.svc.now = func() time.Time { return d } }

	at(day)
	_, err := h.svc.Checkout(ctx, OpenRequest{Payment: "cash", Lines: []inventory.Line{{SKU: "A", Qty: 5}}})
	require.NoError(t, err)
	at(day.Add(time.Hour))
	_, err = h.svc.Checkout(ctx, OpenRequest{Payment: "card", Lines: []inventory.Line{{SKU: "A", Qty: 1}, {SKU: "B", Qty: 2}}})
	require.NoError(t, err)
	at(day.Add(2 * time.Hour))
	voided, err := h.svc.Checkout(ctx, OpenRequest{Payment: "card", Lines: []inventory.Line{{SKU: "B", Qty: 9}}})
	require.NoError(t, err)
	_, err = h.svc.Void(ctx, voided.Sale.Number)
	require.NoError(t, err)
	at(day.Add(24 * time.Hour))
	_, err = h.svc.Open(ctx, OpenRequest{Payment: "cash", Lines: []inventory.Line{{SKU: "B", Qty: 1}}})
	require.NoError(t, err)

	all, err := h.svc.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "SALE-000004", all[0].Number)
	assert.Equal(t, "SALE-000001", all[3].Number)

	page, err := h.svc.List(ctx, Filter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "SALE-000003", page[0].Number)

	card, err := h.svc.List(ctx, Filter{Payment: PaymentCard})
	require.NoError(t, err)
	assert.Len(t, card, 2)

	sum, err := h.svc.Report(ctx, Filter{From: day, To: day.Add(24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Count)
	assert.Equal(t, "32.00", sum.Revenue.StringFixed(2))
	assert.Equal(t, "16.00", sum.Average.StringFixed(2))
	require.Len(t, sum.TopProducts, 2)
	assert.Equal(t, "A", sum.TopProducts[0].SKU)
	assert.Equal(t, 6, sum.TopProducts[0].Quantity)
	assert.Equal(t, "12.00", sum.TopProducts[0].Revenue.StringFixed(2))
	assert.Equal(t, "20.00", sum.TopProducts[1].Revenue.StringFixed(2))

	cash, err := h.svc.Report(ctx, Filter{Payment: PaymentCash})
	require.NoError(t, err)
	assert.Equal(t, 1, cash.Count)

	empty, err := h.svc.Report(ctx, Filter{From: day.Add(48 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Count)
	assert.True(t, empty.Average.IsZero())
	assert.Empty(t, empty.TopProducts)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusCommitted))
	assert.True(t, CanTransition(StatusPending, StatusVoided))
	assert.True(t, CanTransition(StatusCommitted, StatusVoided))
	assert.False(t, CanTransition(StatusCommitted, StatusPending))
	assert.False(t, CanTransition(StatusVoided, StatusCommitted))
	assert.False(t, CanTransition(StatusVoided, StatusVoided))
}

func TestParsePaymentMethod(t *testing.T) {
	pm, err := ParsePaymentMethod("")
	require.NoError(t, err)
	assert.Equal(t, PaymentCash, pm)
	pm, err = ParsePaymentMethod("digital")
	require.NoError(t, err)
	assert.Equal(t, "Digital Wallet", pm.Label())
	_, err = ParsePaymentMethod("cheque")
	assert.Error(t, err)
}
