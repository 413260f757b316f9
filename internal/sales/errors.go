package sales

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("sale not found")

// InvalidError rejects a malformed sale request.
type InvalidError struct {
	Reason string
}

func (e *InvalidError) Error() string { return "invalid sale: " + e.Reason }

// StateError is returned for a transition the sale's status does not allow.
type StateError struct {
	Number string
	From   Status
	To     Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("sale %s: cannot move from %s to %s", e.Number, e.From, e.To)
}

// ProductError means a line references a product that cannot be sold.
type ProductError struct {
	SKU    string
	Reason string
	Err    error
}

func (e *ProductError) Error() string { return fmt.Sprintf("product %s: %s", e.SKU, e.Reason) }
func (e *ProductError) Unwrap() error { return e.Err }
