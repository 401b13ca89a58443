package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrUnknownStatus = errors.New("unknown order status")
	ErrInvalidOrder  = errors.New("invalid order")

	// ErrTransitionBusy means the status change lost a lock wait or a
	// deadlock check against a concurrent transaction. Nothing was written.
	ErrTransitionBusy = errors.New("order is busy, retry the status change")
)

// InvalidTransitionError is returned when a status change is not allowed by
// the lifecycle, including any change out of a terminal status.
type InvalidTransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: invalid status transition %s -> %s", e.OrderID, e.From, e.To)
}

type Order struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Status     Status          `json:"status"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Items      []OrderItem     `json:"items"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// OrderItem holds its own unit price. It is copied from the catalog once,
// when the order is built, and never read back from products.
type OrderItem struct {
	ID           string          `json:"id"`
	OrderID      string          `json:"order_id"`
	ProductID    string          `json:"product_id"`
	ProductTitle string          `json:"product_title"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
}

func (it OrderItem) LineTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// PricedLine is a validated cart line with the price observed at checkout.
type PricedLine struct {
	ProductID string
	Title     string
	Quantity  int
	UnitPrice decimal.Decimal
}

// New builds a complete pending order. The total is derived from the lines
// here and nowhere else.
func New(userID string, lines []PricedLine, now time.Time) (Order, error) {
	if len(lines) == 0 {
		return Order{}, fmt.Errorf("%w: no lines", ErrInvalidOrder)
	}
	o := Order{
		ID:         uuid.NewString(),
		UserID:     userID,
		Status:     StatusPending,
		TotalPrice: decimal.Zero,
		Items:      make([]OrderItem, 0, len(lines)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, l := range lines {
		if l.Quantity < 1 {
			return Order{}, fmt.Errorf("%w: quantity for product %s must be >= 1", ErrInvalidOrder, l.ProductID)
		}
		if l.UnitPrice.IsNegative() {
			return Order{}, fmt.Errorf("%w: negative price for product %s", ErrInvalidOrder, l.ProductID)
		}
		it := OrderItem{
			ID:           uuid.NewString(),
			OrderID:      o.ID,
			ProductID:    l.ProductID,
			ProductTitle: l.Title,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
		}
		o.Items = append(o.Items, it)
		o.TotalPrice = o.TotalPrice.Add(it.LineTotal())
	}
	return o, nil
}

// Consistent reports whether the stored total still equals the sum of lines.
func (o Order) Consistent() bool {
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.LineTotal())
	}
	return sum.Equal(o.TotalPrice)
}
