// Package catalog owns product master data. It never stores quantities;
// on-hand stock lives in the ledger.
package catalog

import (
	"context"
	"errors"
	"github.com/shopspring/decimal"
	"time"
)

const DefaultMinStock = 5

var ErrNotFound = errors.New("product not found")

// ErrExists is returned when creating a product whose SKU is taken.
var ErrExists = errors.New("product already exists")

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

// InUseError refuses deleting a product that sales still refer to.
type InUseError struct {
	SKU string
}

func (e *InUseError) Error() string {
	return "product " + e.SKU + " has sales records; deactivate it instead"
}

type Product struct {
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Category     string          `json:"category,omitempty"`
	BuyingPrice  decimal.Decimal `json:"buying_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	MinStock     int             `json:"min_stock"`
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (p Product) Validate() error {
	switch {
	case p.SKU == "":
		return &ValidationError{Field: "sku", Message: "required"}
	case p.Name == "":
		return &ValidationError{Field: "name", Message: "required"}
	case p.BuyingPrice.IsNegative():
		return &ValidationError{Field: "buying_price", Message: "cannot be negative"}
	case p.SellingPrice.IsNegative():
		return &ValidationError{Field: "selling_price", Message: "cannot be negative"}
	case p.SellingPrice.LessThan(p.BuyingPrice):
		return &ValidationError{Field: "selling_price", Message: "cannot be less than buying price"}
	case p.MinStock < 0:
		return &ValidationError{Field: "min_stock", Message: "cannot be negative"}
	}
	return nil
}

// Margin is the per-unit gross margin.
func (p Product) Margin() decimal.Decimal { return p.SellingPrice.Sub(p.BuyingPrice) }

// Store persists products. List returns products ordered by SKU.
type Store interface {
	Create(ctx context.Context, p Product) (Product, error)
	Update(ctx context.Context, p Product) (Product, error)
	Get(ctx context.Context, sku string) (Product, error)
	List(ctx context.Context) ([]Product, error)
	Delete(ctx context.Context, sku string) error
}
