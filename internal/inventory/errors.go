package inventory

import (
	"fmt"
	"time"
)

// InsufficientStockError is a business-rule rejection. Retrying only makes
// sense after quantities change (smaller request, restock).
type InsufficientStockError struct {
	SKU       string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.SKU, e.Requested, e.Available)
}

// ConcurrencyTimeoutError means a per-SKU lock was not obtained in time.
// Nothing was written; the operation is safe to retry.
type ConcurrencyTimeoutError struct {
	SKU  string
	Wait time.Duration
	Err  error
}

func (e *ConcurrencyTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for stock lock on %s", e.Wait, e.SKU)
}

func (e *ConcurrencyTimeoutError) Unwrap() error { return e.Err }

// InvalidRequestError rejects malformed input before any lock is taken.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string { return "invalid stock request: " + e.Reason }

func invalidf(format string, args ...any) *InvalidRequestError {
	return &InvalidRequestError{Reason: fmt.Sprintf(format, args...)}
}
