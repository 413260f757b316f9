package httpx

import (
	"context"
	"encoding/json"
	"github.com/ariefcatur/stockledger/internal/catalog"
	"github.com/ariefcatur/stockledger/internal/inventory"
	"github.com/ariefcatur/stockledger/internal/ledger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"net/http"
	"time"
)

type ProductsHandler struct {
	Catalog catalog.Store
	Engine  *inventory.Engine
}

// productReq is shared by create and update; nil fields keep their current
// value on update.
type productReq struct {
	SKU          string           `json:"sku"`
	Name         *string          `json:"name"`
	Description  *string          `json:"description"`
	Category     *string          `json:"category"`
	BuyingPrice  *decimal.Decimal `json:"buying_price"`
	SellingPrice *decimal.Decimal `json:"selling_price"`
	MinStock     *int             `json:"min_stock"`
	Active       *bool            `json:"active"`
}

type productView struct {
	catalog.Product
	Quantity int `json:"quantity"`
}

type restockReq struct {
	Qty       int    `json:"qty"`
	Reference string `json:"reference"`
}

type correctionReq struct {
	Delta int    `json:"delta"`
	Note  string `json:"note"`
}

type movementResp struct {
	Entry    ledger.Entry `json:"entry"`
	Quantity int          `json:"quantity"`
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Post("/products", h.create)
	r.Get("/products", h.list)
	r.Get("/products/{sku}", h.get)
	r.Put("/products/{sku}", h.update)
	r.Delete("/products/{sku}", h.remove)
	r.Post("/products/{sku}/restock", h.restock)
	r.Post("/products/{sku}/corrections", h.correct)
	r.Get("/products/{sku}/ledger", h.entries)
	r.Get("/products/{sku}/stock", h.quantity)
}

func (req productReq) apply(p catalog.Product) catalog.Product {
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Category != nil {
		p.Category = *req.Category
	}
	if req.BuyingPrice != nil {
		p.BuyingPrice = *req.BuyingPrice
	}
	if req.SellingPrice != nil {
		p.SellingPrice = *req.SellingPrice
	}
	if req.MinStock != nil {
		p.MinStock = *req.MinStock
	}
	if req.Active != nil {
		p.Active = *req.Active
	}
	return p
}

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req productReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Catalog.Create(ctx, req.apply(catalog.Product{
		SKU:      req.SKU,
		MinStock: catalog.DefaultMinStock,
		Active:   true,
	}))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, productView{Product: p, Quantity: h.Engine.QuantityOf(p.SKU)})
}

func (h *ProductsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req productReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cur, err := h.Catalog.Get(ctx, chi.URLParam(r, "sku"))
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := h.Catalog.Update(ctx, req.apply(cur))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, productView{Product: p, Quantity: h.Engine.QuantityOf(p.SKU)})
}

// remove deletes a product that was never sold. Products with sales in the
// ledger have to be deactivated instead.
func (h *ProductsHandler) remove(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sku := chi.URLParam(r, "sku")
	if _, err := h.Catalog.Get(ctx, sku); err != nil {
		writeError(w, err)
		return
	}
	entries, err := h.Engine.EntriesFor(ctx, sku)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, e := range entries {
		if e.Reason == ledger.ReasonSale {
			writeError(w, &catalog.InUseError{SKU: sku})
			return
		}
	}
	if err := h.Catalog.Delete(ctx, sku); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	products, err := h.Catalog.List(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]productView, 0, len(products))
	for _, p := range products {
		out = append(out, productView{Product: p, Quantity: h.Engine.QuantityOf(p.SKU)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Catalog.Get(ctx, chi.URLParam(r, "sku"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, productView{Product: p, Quantity: h.Engine.QuantityOf(p.SKU)})
}

func (h *ProductsHandler) restock(w http.ResponseWriter, r *http.Request) {
	var req restockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	h.move(w, r, func(ctx context.Context, sku string) (ledger.Entry, error) {
		return h.Engine.Restock(ctx, sku, req.Qty, req.Reference)
	})
}

func (h *ProductsHandler) correct(w http.ResponseWriter, r *http.Request) {
	var req correctionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	h.move(w, r, func(ctx context.Context, sku string) (ledger.Entry, error) {
		return h.Engine.Correct(ctx, sku, req.Delta, req.Note)
	})
}

// move runs a stock movement for a catalogued sku.
func (h *ProductsHandler) move(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (ledger.Entry, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sku := chi.URLParam(r, "sku")
	if _, err := h.Catalog.Get(ctx, sku); err != nil {
		writeError(w, err)
		return
	}
	e, err := fn(ctx, sku)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, movementResp{Entry: e, Quantity: h.Engine.QuantityOf(sku)})
}

func (h *ProductsHandler) entries(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	entries, err := h.Engine.EntriesFor(ctx, chi.URLParam(r, "sku"))
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *ProductsHandler) quantity(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")
	writeJSON(w, http.StatusOK, map[string]any{"sku": sku, "quantity": h.Engine.QuantityOf(sku)})
}
