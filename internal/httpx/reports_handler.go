package httpx

import (
	"context"
	"github.com/ariefcatur/stockledger/internal/alerts"
	"github.com/ariefcatur/stockledger/internal/sales"
	"github.com/go-chi/chi/v5"
	"net/http"
	"strconv"
	"time"
)

type ReportsHandler struct {
	Alerts *alerts.Projection
	Sales  *sales.Service
}

type lowStockResp struct {
	Threshold *int          `json:"threshold,omitempty"`
	Items     []alerts.Item `json:"items"`
}

func (h *ReportsHandler) Register(r chi.Router) {
	r.Get("/reports/low-stock", h.lowStock)
	r.Get("/reports/sales", h.salesSummary)
}

func (h *ReportsHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	var override *int
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, "threshold must be a non-negative integer")
			return
		}
		override = &n
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items := h.Alerts.LowStockReport(ctx, override)
	if items == nil {
		items = []alerts.Item{}
	}
	writeJSON(w, http.StatusOK, lowStockResp{Threshold: override, Items: items})
}

// salesSummary takes the same date and payment filters as GET /sales and
// summarizes committed sales only.
func (h *ReportsHandler) salesSummary(w http.ResponseWriter, r *http.Request) {
	f, err := saleFilter(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	sum, err := h.Sales.Report(ctx, f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
