package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ariefcatur/stockledger/internal/alerts"
	"github.com/ariefcatur/stockledger/internal/inventory"
	"github.com/ariefcatur/stockledger/internal/redisx"
	"github.com/ariefcatur/stockledger/internal/sales"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type SalesHandler struct {
	Sales  *sales.Service
	Cache  redisx.Cache // optional
	Logger *zap.Logger
}

type commitResp struct {
	Sale       *sales.Sale    `json:"sale"`
	Quantities map[string]int `json:"quantities,omitempty"`
	LowStock   []alerts.Item  `json:"low_stock,omitempty"`
	Idempotent bool           `json:"idempotent"`
}

type voidResp struct {
	Sale          *sales.Sale `json:"sale"`
	WasCommitted  bool        `json:"was_committed"`
	StockRestored bool        `json:"stock_restored"`
}

func (h *SalesHandler) Register(r chi.Router) {
	r.Post("/sales", h.checkout)
	r.Get("/sales", h.list)
	r.Post("/sales/pending", h.open)
	r.Put("/sales/{number}", h.update)
	r.Post("/sales/{number}/commit", h.commit)
	r.Post("/sales/{number}/void", h.void)
	r.Get("/sales/{number}", h.get)
}

type updateReq struct {
	Lines []inventory.Line `json:"lines"`
}

type listResp struct {
	Sales  []*sales.Sale `json:"sales"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// checkout honours Idempotency-Key: a replay returns the sale created by
// the first request instead of selling twice.
func (h *SalesHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req sales.OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	idemKey := ""
	if k := r.Header.Get(HeaderIdempotencyKey); k != "" && h.Cache != nil {
		idemKey = fmt.Sprintf(redisx.KeyIdemCheckout, k)
		won, err := h.Cache.Claim(ctx, idemKey, redisx.InFlight, redisx.TTLIdempotency)
		switch {
		case err != nil:
			h.logger().Warn("idempotency claim failed", zap.String("key", idemKey), zap.Error(err))
			idemKey = ""
		case !won:
			h.replay(ctx, w, idemKey)
			return
		}
	}

	out, err := h.Sales.Checkout(ctx, req)
	if err != nil {
		if idemKey != "" {
			if derr := redisx.Release(ctx, h.Cache, idemKey); derr != nil {
				h.logger().Warn("idempotency release failed", zap.String("key", idemKey), zap.Error(derr))
			}
		}
		writeError(w, err)
		return
	}
	if idemKey != "" {
		dctx, dcancel := redisx.Detach(ctx)
		if err := h.Cache.Set(dctx, idemKey, out.Sale.Number, redisx.TTLIdempotency); err != nil {
			h.logger().Warn("idempotency record failed", zap.String("key", idemKey), zap.Error(err))
		}
		dcancel()
	}
	h.cacheSale(ctx, out.Sale)
	writeJSON(w, http.StatusCreated, commitResp{Sale: out.Sale, Quantities: out.Quantities, LowStock: out.LowStock})
}

func (h *SalesHandler) replay(ctx context.Context, w http.ResponseWriter, idemKey string) {
	number, ok, err := h.Cache.Get(ctx, idemKey)
	if err != nil || !ok || number == redisx.InFlight {
		writeJSON(w, http.StatusConflict, errorBody{Error: "request_in_progress", Message: "a request with this idempotency key is still running"})
		return
	}
	sale, err := h.Sales.Get(ctx, number)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commitResp{Sale: sale, Idempotent: true})
}

func (h *SalesHandler) open(w http.ResponseWriter, r *http.Request) {
	var req sales.OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sale, err := h.Sales.Open(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheSale(ctx, sale)
	writeJSON(w, http.StatusCreated, sale)
}

func (h *SalesHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sale, err := h.Sales.UpdateLines(ctx, chi.URLParam(r, "number"), req.Lines)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheSale(ctx, sale)
	writeJSON(w, http.StatusOK, sale)
}

func (h *SalesHandler) list(w http.ResponseWriter, r *http.Request) {
	f, err := saleFilter(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	q := r.URL.Query()
	if f.Limit, err = intParam(q.Get("limit"), sales.DefaultPageSize); err != nil || f.Limit == 0 {
		badRequest(w, "limit must be a positive integer")
		return
	}
	if f.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		badRequest(w, "offset must be a non-negative integer")
		return
	}
	f.Limit = min(f.Limit, sales.MaxPageSize)
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.Sales.List(ctx, f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResp{Sales: list, Limit: f.Limit, Offset: f.Offset})
}

func (h *SalesHandler) commit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out, err := h.Sales.Commit(ctx, chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheSale(ctx, out.Sale)
	writeJSON(w, http.StatusOK, commitResp{Sale: out.Sale, Quantities: out.Quantities, LowStock: out.LowStock})
}

func (h *SalesHandler) void(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out, err := h.Sales.Void(ctx, chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheSale(ctx, out.Sale)
	writeJSON(w, http.StatusOK, voidResp{Sale: out.Sale, WasCommitted: out.WasCommitted, StockRestored: out.StockRestored})
}

func (h *SalesHandler) get(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache
	if h.Cache != nil {
		if s, ok, err := h.Cache.Get(ctx, fmt.Sprintf(redisx.KeySaleStatus, number)); err == nil && ok {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	// 2) repository
	sale, err := h.Sales.Get(ctx, number)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheSale(ctx, sale)
	writeJSON(w, http.StatusOK, sale)
}

// cacheSale refreshes the status cache after each state change.
func (h *SalesHandler) cacheSale(ctx context.Context, s *sales.Sale) {
	if h.Cache == nil {
		return
	}
	b, err := json.Marshal(s)
	if err != nil {
		return
	}
	key := fmt.Sprintf(redisx.KeySaleStatus, s.Number)
	if err := h.Cache.Set(ctx, key, string(b), redisx.TTLStatusCache); err != nil {
		h.logger().Warn("status cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// saleFilter reads date_from and date_to (YYYY-MM-DD, both inclusive, UTC),
// payment_method and status.
func saleFilter(r *http.Request) (sales.Filter, error) {
	var f sales.Filter
	q := r.URL.Query()
	if v := q.Get("date_from"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return f, fmt.Errorf("date_from must be YYYY-MM-DD")
		}
		f.From = d
	}
	if v := q.Get("date_to"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return f, fmt.Errorf("date_to must be YYYY-MM-DD")
		}
		f.To = d.AddDate(0, 0, 1)
	}
	if v := q.Get("payment_method"); v != "" {
		pm, err := sales.ParsePaymentMethod(v)
		if err != nil {
			return f, err
		}
		f.Payment = pm
	}
	if v := q.Get("status"); v != "" {
		st := sales.Status(strings.ToUpper(v))
		switch st {
		case sales.StatusPending, sales.StatusCommitted, sales.StatusVoided:
			f.Status = st
		default:
			return f, fmt.Errorf("unknown status %q", v)
		}
	}
	return f, nil
}

// intParam parses a non-negative integer query value, def when empty.
func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func (h *SalesHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
