// Package sales is the sale aggregate: it prices a basket from the catalog,
// drives the commit engine and owns the sale lifecycle.
package sales

import (
	"fmt"
	"github.com/ariefcatur/stockledger/internal/inventory"
	"github.com/shopspring/decimal"
	"time"
)

type LineItem struct {
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"` // selling price when the sale was opened
}

func (l LineItem) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Sale struct {
	Number      string          `json:"sale_number"`
	Lines       []LineItem      `json:"lines"`
	Payment     PaymentMethod   `json:"payment_method"`
	Notes       string          `json:"notes,omitempty"`
	Status      Status          `json:"status"`
	Total       decimal.Decimal `json:"total"`
	CreatedAt   time.Time       `json:"created_at"`
	CommittedAt *time.Time      `json:"committed_at,omitempty"`
	VoidedAt    *time.Time      `json:"voided_at,omitempty"`
}

// ComputeTotal sums line subtotals.
func (s *Sale) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// StockLines is the engine view of the sale.
func (s *Sale) StockLines() []inventory.Line {
	out := make([]inventory.Line, 0, len(s.Lines))
	for _, l := range s.Lines {
		out = append(out, inventory.Line{SKU: l.SKU, Qty: l.Quantity})
	}
	return out
}

func (s *Sale) transition(to Status, at time.Time) error {
	if !CanTransition(s.Status, to) {
		return &StateError{Number: s.Number, From: s.Status, To: to}
	}
	s.Status = to
	switch to {
	case StatusCommitted:
		s.CommittedAt = &at
	case StatusVoided:
		s.VoidedAt = &at
	}
	return nil
}

// FormatNumber renders the n-th sale number.
func FormatNumber(n int64) string { return fmt.Sprintf("SALE-%06d", n) }
