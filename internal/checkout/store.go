package checkout

import (
	"context"

	"github.com/ariefcatur/go-marketplace-orders/internal/cart"
	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

// Store runs the atomic step. Atomically must apply every write made through
// the Tx or none of them; an error returned by fn aborts the unit.
// Implementations translate lock waits and lost races into
// ErrCheckoutTimeout / ErrConcurrencyConflict.
type Store interface {
	Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// PruneCart runs outside the atomic step, after it has rolled back.
	PruneCart(ctx context.Context, userID string, productIDs []string) error
}

type Tx interface {
	// ReadCart holds the user's cart until the unit ends, so two checkouts
	// of one cart run one after the other.
	ReadCart(ctx context.Context, userID string) ([]cart.Line, error)

	// LockProducts returns current price and stock; ids that do not exist
	// are absent from the map.
	LockProducts(ctx context.Context, ids []string) (map[string]catalog.Product, error)

	// TryDecrementStock fails with *catalog.InsufficientStockError when the
	// stock at the moment of the decrement is below qty.
	TryDecrementStock(ctx context.Context, productID string, qty int) (int, error)

	InsertOrder(ctx context.Context, o orders.Order) error
	ClearCart(ctx context.Context, userID string) error
}
