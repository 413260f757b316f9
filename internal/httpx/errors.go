package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/ariefcatur/stockledger/internal/catalog"
	"github.com/ariefcatur/stockledger/internal/inventory"
	"github.com/ariefcatur/stockledger/internal/keylock"
	"github.com/ariefcatur/stockledger/internal/ledger"
	"github.com/ariefcatur/stockledger/internal/sales"
	"github.com/ariefcatur/stockledger/internal/stock"
	"net/http"
)

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	SKU       string `json:"sku,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: msg})
}

// writeError maps the domain error taxonomy onto HTTP.
func writeError(w http.ResponseWriter, err error) {
	code, body := classify(err)
	if code == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, code, body)
}

func classify(err error) (int, errorBody) {
	body := errorBody{Message: err.Error()}

	var (
		insufficient *inventory.InsufficientStockError
		lockTimeout  *inventory.ConcurrencyTimeoutError
		saleLock     *keylock.TimeoutError
		invalid      *inventory.InvalidRequestError
		badSale      *sales.InvalidError
		badProduct   *catalog.ValidationError
		inUse        *catalog.InUseError
		unavailable  *sales.ProductError
		state        *sales.StateError
		violation    *stock.InvariantViolationError
	)
	switch {
	case errors.As(err, &insufficient):
		available := insufficient.Available
		body.Error, body.SKU = "insufficient_stock", insufficient.SKU
		body.Requested, body.Available = insufficient.Requested, &available
		return http.StatusConflict, body
	case errors.As(err, &lockTimeout):
		body.Error, body.SKU = "concurrency_timeout", lockTimeout.SKU
		return http.StatusServiceUnavailable, body
	case ledger.IsStorage(err):
		body.Error = "storage"
		return http.StatusInternalServerError, body
	case errors.As(err, &saleLock), errors.Is(err, context.DeadlineExceeded):
		body.Error = "concurrency_timeout"
		return http.StatusServiceUnavailable, body
	case errors.As(err, &invalid), errors.As(err, &badSale), errors.As(err, &badProduct):
		body.Error = "invalid_request"
		return http.StatusBadRequest, body
	case errors.As(err, &unavailable):
		body.Error, body.SKU = "product_unavailable", unavailable.SKU
		if errors.Is(err, catalog.ErrNotFound) {
			return http.StatusNotFound, body
		}
		return http.StatusBadRequest, body
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, sales.ErrNotFound):
		body.Error = "not_found"
		return http.StatusNotFound, body
	case errors.Is(err, catalog.ErrExists):
		body.Error = "already_exists"
		return http.StatusConflict, body
	case errors.As(err, &inUse):
		body.Error, body.SKU = "product_in_use", inUse.SKU
		return http.StatusConflict, body
	case errors.As(err, &state):
		body.Error = "invalid_state"
		return http.StatusConflict, body
	case errors.As(err, &violation):
		body.Error, body.SKU = "invariant_violation", violation.SKU
		return http.StatusInternalServerError, body
	}
	body.Error = "internal"
	return http.StatusInternalServerError, body
}
