package sales_test

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/stockledger/internal/alerts"
	"github.com/ariefcatur/stockledger/internal/catalog"
	"github.com/ariefcatur/stockledger/internal/events"
	"github.com/ariefcatur/stockledger/internal/inventory"
	"github.com/ariefcatur/stockledger/internal/keylock"
	"github.com/ariefcatur/stockledger/internal/ledger"
	"github.com/ariefcatur/stockledger/internal/sales"
	"github.com/ariefcatur/stockledger/internal/stock"
	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"
	"strconv"
	"strings"
	"testing"
	"time"
)

type saleTestContext struct {
	ctx     context.Context
	ledger  *ledger.MemoryStore
	engine  *inventory.Engine
	catalog *catalog.MemoryStore
	alerts  *alerts.Projection
	svc     *sales.Service
	sale    *sales.Sale
	err     error
}

func (c *saleTestContext) reset() {
	c.ctx = context.Background()
	c.ledger = ledger.NewMemoryStore()
	agg := stock.NewAggregator(c.ledger, keylock.New(time.Second), nil)
	c.engine = inventory.New(c.ledger, agg, &events.Recorder{}, nil, "features")
	c.catalog = catalog.NewMemoryStore()
	c.alerts = &alerts.Projection{Catalog: c.catalog, Stock: agg}
	c.svc = sales.NewService(sales.Deps{
		Engine:    c.engine,
		Catalog:   c.catalog,
		Repo:      sales.NewMemoryRepository(),
		Alerts:    c.alerts,
		Publisher: &events.Recorder{},
		Producer:  "features",
	})
	c.sale = nil
	c.err = nil
}

func (c *saleTestContext) aProductWithMinimumStock(sku string, min int) error {
	_, err := c.catalog.Create(c.ctx, catalog.Product{
		SKU:          sku,
		Name:         "Product " + sku,
		BuyingPrice:  decimal.NewFromInt(5),
		SellingPrice: decimal.NewFromInt(8),
		MinStock:     min,
		Active:       true,
	})
	return err
}

func (c *saleTestContext) startsWithUnits(sku string, qty int) error {
	_, err := c.engine.Restock(c.ctx, sku, qty, "opening balance")
	return err
}

func (c *saleTestContext) hasUnitsOnHand(sku string, qty int) error {
	if got := c.engine.QuantityOf(sku); got != qty {
		return fmt.Errorf("%s: expected %d on hand, got %d", sku, qty, got)
	}
	return nil
}

func mustEntries(c *saleTestContext, sku string) []ledger.Entry {
	entries, _ := c.ledger.EntriesFor(c.ctx, sku)
	return entries
}

func (c *saleTestContext) iCheckOutOf(qty int, sku string) error {
	return c.checkout([]inventory.Line{{SKU: sku, Qty: qty}})
}

func (c *saleTestContext) iCheckOutTable(table *godog.Table) error {
	var lines []inventory.Line
	for i, row := range table.Rows {
		if i == 0 {
			continue // header
		}
		qty, err := strconv.Atoi(row.Cells[1].Value)
		if err != nil {
			return err
		}
		lines = append(lines, inventory.Line{SKU: row.Cells[0].Value, Qty: qty})
	}
	return c.checkout(lines)
}

func (c *saleTestContext) checkout(lines []inventory.Line) error {
	out, err := c.svc.Checkout(c.ctx, sales.OpenRequest{Payment: "cash", Lines: lines})
	c.err = err
	if out != nil {
		c.sale = out.Sale
	}
	return nil
}

func (c *saleTestContext) iOpenASaleFor(qty int, sku string) error {
	c.sale, c.err = c.svc.Open(c.ctx, sales.OpenRequest{Lines: []inventory.Line{{SKU: sku, Qty: qty}}})
	return c.err
}

func (c *saleTestContext) iCommitTheSale() error {
	if c.sale == nil {
		return errors.New("no sale to commit")
	}
	out, err := c.svc.Commit(c.ctx, c.sale.Number)
	c.err = err
	if out != nil {
		c.sale = out.Sale
	}
	return nil
}

func (c *saleTestContext) iVoidTheSale() error {
	if c.sale == nil {
		return errors.New("no sale to void")
	}
	out, err := c.svc.Void(c.ctx, c.sale.Number)
	c.err = err
	if out != nil {
		c.sale = out.Sale
	}
	return nil
}

func (c *saleTestContext) theSaleIs(status string) error {
	if c.err != nil {
		return fmt.Errorf("unexpected error: %w", c.err)
	}
	if c.sale == nil {
		return errors.New("no sale")
	}
	if want := sales.Status(strings.ToUpper(status)); c.sale.Status != want {
		return fmt.Errorf("expected status %s, got %s", want, c.sale.Status)
	}
	return nil
}

func (c *saleTestContext) theSaleFailsWithInsufficientStockFor(sku string) error {
	var ise *inventory.InsufficientStockError
	if !errors.As(c.err, &ise) {
		return fmt.Errorf("expected InsufficientStockError, got %v", c.err)
	}
	if ise.SKU != sku {
		return fmt.Errorf("expected failure on %s, got %s", sku, ise.SKU)
	}
	return nil
}

func (c *saleTestContext) hasLedgerEntries(sku string, n int) error {
	if got := len(mustEntries(c, sku)); got != n {
		return fmt.Errorf("%s: expected %d ledger entries, got %d", sku, n, got)
	}
	return nil
}

func (c *saleTestContext) isInTheLowStockList(sku, not string) error {
	found := false
	for p := range c.alerts.LowStockProducts(c.ctx, nil) {
		if p.SKU == sku {
			found = true
		}
	}
	if want := not == ""; found != want {
		return fmt.Errorf("%s in low-stock list: expected %v, got %v", sku, want, found)
	}
	return nil
}

func (c *saleTestContext) theSaleHasEntries(n int, reason string) error {
	entries, err := c.ledger.EntriesForSale(c.ctx, c.sale.Number)
	if err != nil {
		return err
	}
	got := 0
	for _, e := range entries {
		if e.Reason == ledger.Reason(reason) {
			got++
		}
	}
	if got != n {
		return fmt.Errorf("expected %d %s entries, got %d", n, reason, got)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &saleTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a product "([^"]*)" with minimum stock (\d+)$`, tc.aProductWithMinimumStock)
	ctx.Step(`^"([^"]*)" starts with (\d+) units$`, tc.startsWithUnits)

	// When steps
	ctx.Step(`^I check out (\d+) of "([^"]*)"$`, tc.iCheckOutOf)
	ctx.Step(`^I check out:$`, tc.iCheckOutTable)
	ctx.Step(`^I open a sale for (\d+) of "([^"]*)"$`, tc.iOpenASaleFor)
	ctx.Step(`^I commit the sale$`, tc.iCommitTheSale)
	ctx.Step(`^I void the sale$`, tc.iVoidTheSale)

	// Then steps
	ctx.Step(`^"([^"]*)" has (\d+) units on hand$`, tc.hasUnitsOnHand)
	ctx.Step(`^the sale is (committed|voided|pending)$`, tc.theSaleIs)
	ctx.Step(`^the sale fails with insufficient stock for "([^"]*)"$`, tc.theSaleFailsWithInsufficientStockFor)
	ctx.Step(`^"([^"]*)" has (\d+) ledger entries$`, tc.hasLedgerEntries)
	ctx.Step(`^"([^"]*)" is (not )?in the low-stock list$`, tc.isInTheLowStockList)
	ctx.Step(`^the sale has (\d+) (SALE|REVERSAL) entries$`, tc.theSaleHasEntries)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/sale_commit.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
