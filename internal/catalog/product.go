package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidProduct  = errors.New("invalid product")
)

// InsufficientStockError is returned by TryDecrementStock when the row holds
// fewer units than requested at the moment of the decrement.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

type Product struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    *string         `json:"image_url,omitempty"`
	Stock       int             `json:"stock"`
	CategoryID  *string         `json:"category_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (p Product) Validate() error {
	switch {
	case p.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidProduct)
	case p.Price.IsNegative():
		return fmt.Errorf("%w: price must be >= 0", ErrInvalidProduct)
	case p.Stock < 0:
		return fmt.Errorf("%w: stock must be >= 0", ErrInvalidProduct)
	}
	return nil
}

// Patch is an admin update; nil fields are left untouched.
type Patch struct {
	Price *decimal.Decimal `json:"price,omitempty"`
	Stock *int             `json:"stock,omitempty"`
}

func (p Patch) Validate() error {
	if p.Price == nil && p.Stock == nil {
		return fmt.Errorf("%w: nothing to update", ErrInvalidProduct)
	}
	if p.Price != nil && p.Price.IsNegative() {
		return fmt.Errorf("%w: price must be >= 0", ErrInvalidProduct)
	}
	if p.Stock != nil && *p.Stock < 0 {
		return fmt.Errorf("%w: stock must be >= 0", ErrInvalidProduct)
	}
	return nil
}
