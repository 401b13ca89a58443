package checkout

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyCart = errors.New("cart is empty")

	// ErrCheckoutTimeout and ErrConcurrencyConflict both mean nothing was
	// applied and the caller may retry.
	ErrCheckoutTimeout     = errors.New("checkout timed out waiting for stock locks")
	ErrConcurrencyConflict = errors.New("checkout lost a concurrent update")
)

type ProductNotFoundError struct {
	ProductIDs []string
}

func (e *ProductNotFoundError) Error() string {
	return "cart references missing products: " + strings.Join(e.ProductIDs, ", ")
}

type Shortage struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", s.ProductID, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

// Retryable reports whether err is a contention error with no partial effects.
func Retryable(err error) bool {
	return errors.Is(err, ErrCheckoutTimeout) || errors.Is(err, ErrConcurrencyConflict)
}
