package alerts

import (
	"context"
	"errors"
	"github.com/ariefcatur/stockledger/internal/catalog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

type fixedStock map[string]int

func (f fixedStock) QuantityOf(sku string) int { return f[sku] }

func newProjection(t *testing.T, stock fixedStock, products ...catalog.Product) *Projection {
	t.Helper()
	cat := catalog.NewMemoryStore()
	for _, p := range products {
		_, err := cat.Create(context.Background(), p)
		require.NoError(t, err)
	}
	return &Projection{Catalog: cat, Stock: stock}
}

func prod(sku string, min int, active bool) catalog.Product {
	return catalog.Product{
		SKU: sku, Name: sku, MinStock: min, Active: active,
		BuyingPrice: decimal.NewFromInt(1), SellingPrice: decimal.NewFromInt(2),
	}
}

func skus(ps []catalog.Product) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.SKU)
	}
	return out
}

func collect(seq func(func(catalog.Product) bool)) []catalog.Product {
	var out []catalog.Product
	seq(func(p catalog.Product) bool {
		out = append(out, p)
		return true
	})
	return out
}

func TestLowStockProducts_ThresholdIsInclusive(t *testing.T) {
	p := newProjection(t, fixedStock{"A": 5, "B": 6, "C": 0, "D": 1},
		prod("A", 5, true), prod("B", 5, true), prod("C", 5, false), prod("D", 0, true))

	got := collect(p.LowStockProducts(context.Background(), nil))
	assert.Equal(t, []string{"A"}, skus(got), "inactive products are never reported")
}

func TestLowStockProducts_Override(t *testing.T) {
	p := newProjection(t, fixedStock{"A": 5, "B": 6, "D": 1},
		prod("A", 5, true), prod("B", 5, true), prod("D", 0, true))

	ten := 10
	got := collect(p.LowStockProducts(context.Background(), &ten))
	assert.Equal(t, []string{"A", "B", "D"}, skus(got))
}

func TestLowStockProducts_RestartableAndLazy(t *testing.T) {
	stock := fixedStock{"A": 1, "B": 1}
	p := newProjection(t, stock, prod("A", 5, true), prod("B", 5, true))
	seq := p.LowStockProducts(context.Background(), nil)

	var first []string
	for prod := range seq {
		first = append(first, prod.SKU)
		break
	}
	assert.Equal(t, []string{"A"}, first)

	stock["A"] = 50
	assert.Equal(t, []string{"B"}, skus(collect(seq)), "second range sees fresh quantities")
}

func TestLowStockReport_SortedByQuantity(t *testing.T) {
	p := newProjection(t, fixedStock{"A": 4, "B": 0, "C": 2},
		prod("A", 5, true), prod("B", 5, true), prod("C", 5, true))

	rep := p.LowStockReport(context.Background(), nil)
	require.Len(t, rep, 3)
	assert.Equal(t, "B", rep[0].Product.SKU)
	assert.Equal(t, "C", rep[1].Product.SKU)
	assert.Equal(t, "A", rep[2].Product.SKU)
	assert.Equal(t, 5, rep[0].Threshold)
}

func TestCheck_ReportsUnknownSKU(t *testing.T) {
	p := newProjection(t, fixedStock{"A": 0}, prod("A", 5, true))
	var seen []error
	p.OnError = func(err error) { seen = append(seen, err) }

	got := p.Check(context.Background(), []string{"A", "ZZZ"})
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Product.SKU)
	require.Len(t, seen, 1)
	assert.True(t, errors.Is(seen[0], catalog.ErrNotFound))
}
