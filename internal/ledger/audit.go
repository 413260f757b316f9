package ledger

import (
	"fmt"
	"sort"
)

// Finding is one inconsistency Audit found in a SKU's history.
type Finding struct {
	SKU     string `json:"sku"`
	Seq     int64  `json:"seq"`
	Problem string `json:"problem"`
}

func (f Finding) String() string { return fmt.Sprintf("%s@%d: %s", f.SKU, f.Seq, f.Problem) }

// Audit replays one SKU's entries in Seq order and reports where the
// history breaks the ledger rules: a balance below zero, or a reversal that
// does not undo exactly one sale entry of this SKU. Reversals without a
// Reference are matched against the sale as a whole.
func Audit(entries []Entry) []Finding {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	var (
		out      []Finding
		balance  int
		sold     = map[string]int{} // by entry ID, and by "sale:"+SaleRef
		reversed = map[string]bool{}
	)
	for _, e := range sorted {
		balance += e.Delta
		if balance < 0 {
			out = append(out, Finding{SKU: e.SKU, Seq: e.Seq, Problem: fmt.Sprintf("balance went negative (%d)", balance)})
		}
		switch e.Reason {
		case ReasonSale:
			if e.Delta > 0 {
				out = append(out, Finding{SKU: e.SKU, Seq: e.Seq, Problem: "sale with positive delta"})
			}
			if e.ID != "" {
				sold[e.ID] = -e.Delta
			}
			sold["sale:"+e.SaleRef] += -e.Delta
		case ReasonReversal:
			key := "sale:" + e.SaleRef
			if e.Reference != "" {
				key = e.Reference
			}
			qty, ok := sold[key]
			switch {
			case !ok:
				out = append(out, Finding{SKU: e.SKU, Seq: e.Seq, Problem: "reversal of unknown sale " + e.SaleRef})
			case reversed[key]:
				out = append(out, Finding{SKU: e.SKU, Seq: e.Seq, Problem: "sale " + e.SaleRef + " reversed twice"})
			case e.Delta != qty:
				out = append(out, Finding{SKU: e.SKU, Seq: e.Seq, Problem: fmt.Sprintf("reversal of %d for sale of %d", e.Delta, qty)})
			}
			reversed[key] = true
		}
	}
	return out
}
