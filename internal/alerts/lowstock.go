// Package alerts derives the low-stock view from the catalog and the stock
// projection. Nothing here is persisted.
package alerts

import (
	"context"
	"github.com/ariefcatur/stockledger/internal/catalog"
	"iter"
	"sort"
)

// Quantities is the read side of the stock projection.
type Quantities interface {
	QuantityOf(sku string) int
}

type Item struct {
	Product   catalog.Product `json:"product"`
	Quantity  int             `json:"quantity"`
	Threshold int             `json:"threshold"`
}

type Projection struct {
	Catalog catalog.Store
	Stock   Quantities

	// OnError receives catalog read failures; the sequence then ends early.
	OnError func(error)
}

// LowStockProducts yields active products whose quantity is at or below
// their minimum stock, or at or below *override when given. Each range over the
// returned sequence reads fresh data, so it can be iterated again.
func (p *Projection) LowStockProducts(ctx context.Context, override *int) iter.Seq[catalog.Product] {
	return func(yield func(catalog.Product) bool) {
		for it := range p.items(ctx, override) {
			if !yield(it.Product) {
				return
			}
		}
	}
}

// LowStockReport materializes the low-stock items, lowest quantity first.
func (p *Projection) LowStockReport(ctx context.Context, override *int) []Item {
	var out []Item
	for it := range p.items(ctx, override) {
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Quantity < out[j].Quantity })
	return out
}

// Check returns the items among skus that are currently low on stock.
func (p *Projection) Check(ctx context.Context, skus []string) []Item {
	var out []Item
	for _, sku := range skus {
		prod, err := p.Catalog.Get(ctx, sku)
		if err != nil {
			p.report(err)
			continue
		}
		if it, low := p.evaluate(prod, nil); low {
			out = append(out, it)
		}
	}
	return out
}

func (p *Projection) items(ctx context.Context, override *int) iter.Seq[Item] {
	return func(yield func(Item) bool) {
		products, err := p.Catalog.List(ctx)
		if err != nil {
			p.report(err)
			return
		}
		for _, prod := range products {
			if ctx.Err() != nil {
				return
			}
			if it, low := p.evaluate(prod, override); low {
				if !yield(it) {
					return
				}
			}
		}
	}
}

func (p *Projection) evaluate(prod catalog.Product, override *int) (Item, bool) {
	if !prod.Active {
		return Item{}, false
	}
	threshold := prod.MinStock
	if override != nil {
		threshold = *override
	}
	q := p.Stock.QuantityOf(prod.SKU)
	return Item{Product: prod, Quantity: q, Threshold: threshold}, q <= threshold
}

func (p *Projection) report(err error) {
	if p.OnError != nil {
		p.OnError(err)
	}
}
