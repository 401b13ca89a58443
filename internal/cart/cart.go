package cart

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrLineNotFound    = errors.New("item not found in cart")
	ErrInvalidQuantity = errors.New("quantity must be >= 1")
)

// ExceedsStockError is the advisory check done when a line is added or
// changed. Checkout validates again against locked rows.
type ExceedsStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *ExceedsStockError) Error() string {
	return fmt.Sprintf("not enough stock available for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// Line is one (product, quantity) pair of a user's cart.
type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Item is a line joined with the live catalog values.
type Item struct {
	Line
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Stock     int             `json:"stock"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type Cart struct {
	UserID     string          `json:"user_id"`
	Items      []Item          `json:"items"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// Summarize fills line totals and the cart total from live prices.
func Summarize(userID string, items []Item) Cart {
	c := Cart{UserID: userID, Items: make([]Item, 0, len(items)), TotalPrice: decimal.Zero}
	for _, it := range items {
		it.LineTotal = it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		c.TotalPrice = c.TotalPrice.Add(it.LineTotal)
		c.Items = append(c.Items, it)
	}
	return c
}
