package ledger

import (
	"fmt"
	"time"
)

type Reason string

const (
	ReasonSale       Reason = "SALE"
	ReasonRestock    Reason = "RESTOCK"
	ReasonCorrection Reason = "CORRECTION"
	ReasonReversal   Reason = "REVERSAL"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonSale, ReasonRestock, ReasonCorrection, ReasonReversal:
		return true
	}
	return false
}

// Entry is an immutable signed stock movement. ID, Seq and CreatedAt are
// assigned by the Store on append.
type Entry struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	SKU       string    `json:"sku"`
	Delta     int       `json:"delta"`
	Reason    Reason    `json:"reason"`
	SaleRef   string    `json:"sale_ref,omitempty"`
	Reference string    `json:"reference,omitempty"` // PO number, correction note, or the SALE entry ID a REVERSAL undoes
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the fields a caller is responsible for.
func (e Entry) Validate() error {
	if e.SKU == "" {
		return fmt.Errorf("ledger entry: empty sku")
	}
	if e.Delta == 0 {
		return fmt.Errorf("ledger entry %s: zero delta", e.SKU)
	}
	if !e.Reason.Valid() {
		return fmt.Errorf("ledger entry %s: unknown reason %q", e.SKU, e.Reason)
	}
	if (e.Reason == ReasonSale || e.Reason == ReasonReversal) && e.SaleRef == "" {
		return fmt.Errorf("ledger entry %s: %s requires a sale reference", e.SKU, e.Reason)
	}
	return nil
}

// Sum returns the total signed delta of entries.
func Sum(entries []Entry) int {
	n := 0
	for _, e := range entries {
		n += e.Delta
	}
	return n
}
