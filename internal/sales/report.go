package sales

import (
	"github.com/shopspring/decimal"
	"sort"
	"time"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	topProducts     = 10
)

// Filter selects sales for listing and reporting. Zero fields match
// everything; the date range is [From, To).
type Filter struct {
	From    time.Time
	To      time.Time
	Payment PaymentMethod
	Status  Status
	Limit   int // 0 returns every match
	Offset  int
}

func (f Filter) Match(s *Sale) bool {
	switch {
	case !f.From.IsZero() && s.CreatedAt.Before(f.From):
		return false
	case !f.To.IsZero() && !s.CreatedAt.Before(f.To):
		return false
	case f.Payment != "" && s.Payment != f.Payment:
		return false
	case f.Status != "" && s.Status != f.Status:
		return false
	}
	return true
}

// Page applies Offset and Limit to an already ordered result.
func (f Filter) Page(list []*Sale) []*Sale {
	if f.Offset >= len(list) {
		return []*Sale{}
	}
	list = list[f.Offset:]
	if f.Limit > 0 && f.Limit < len(list) {
		list = list[:f.Limit]
	}
	return list
}

type ProductSales struct {
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
}

type Summary struct {
	Count       int             `json:"count"`
	Revenue     decimal.Decimal `json:"revenue"`
	Average     decimal.Decimal `json:"average"`
	TopProducts []ProductSales  `json:"top_products"`
}

// Summarize totals sales and ranks their products by units sold, best
// first, ties in SKU order.
func Summarize(list []*Sale) Summary {
	out := Summary{Count: len(list), Revenue: decimal.Zero, Average: decimal.Zero, TopProducts: []ProductSales{}}
	bySKU := map[string]*ProductSales{}
	for _, s := range list {
		out.Revenue = out.Revenue.Add(s.Total)
		for _, l := range s.Lines {
			p, ok := bySKU[l.SKU]
			if !ok {
				p = &ProductSales{SKU: l.SKU, Name: l.Name, Revenue: decimal.Zero}
				bySKU[l.SKU] = p
			}
			p.Quantity += l.Quantity
			p.Revenue = p.Revenue.Add(l.Subtotal())
		}
	}
	if out.Count > 0 {
		out.Average = out.Revenue.Div(decimal.NewFromInt(int64(out.Count))).Round(2)
	}
	for _, p := range bySKU {
		out.TopProducts = append(out.TopProducts, *p)
	}
	sort.Slice(out.TopProducts, func(i, j int) bool {
		a, b := out.TopProducts[i], out.TopProducts[j]
		if a.Quantity != b.Quantity {
			return a.Quantity > b.Quantity
		}
		return a.SKU < b.SKU
	})
	if len(out.TopProducts) > topProducts {
		out.TopProducts = out.TopProducts[:topProducts]
	}
	return out
}

// newestFirst orders sales by creation time, latest first.
func newestFirst(list []*Sale) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].Number > list[j].Number
	})
}
