package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/cart"
	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

// Coordinator turns a cart into an order. It performs no logging; every
// failure is returned to the caller unchanged in kind.
type Coordinator struct {
	Store Store

	// MaxAttempts bounds retries of ErrConcurrencyConflict. Values < 1 mean one attempt.
	MaxAttempts int
	Backoff     time.Duration
	Now         func() time.Time
}

func (c *Coordinator) Checkout(ctx context.Context, userID string) (orders.Order, error) {
	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 1; ; i++ {
		o, err := c.attempt(ctx, userID)
		if err == nil {
			return o, nil
		}
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrCheckoutTimeout) {
			err = fmt.Errorf("%w: %w", ErrCheckoutTimeout, err)
		}

		var missing *ProductNotFoundError
		if errors.As(err, &missing) {
			if perr := c.Store.PruneCart(ctx, userID, missing.ProductIDs); perr != nil {
				return orders.Order{}, errors.Join(err, fmt.Errorf("prune stale cart lines: %w", perr))
			}
			return orders.Order{}, err
		}
		if !errors.Is(err, ErrConcurrencyConflict) || i >= attempts {
			return orders.Order{}, err
		}

		select {
		case <-ctx.Done():
			return orders.Order{}, fmt.Errorf("%w: %w", ErrCheckoutTimeout, ctx.Err())
		case <-time.After(c.Backoff * time.Duration(i)):
		}
	}
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

func (c *Coordinator) attempt(ctx context.Context, userID string) (orders.Order, error) {
	var created orders.Order
	err := c.Store.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		raw, err := tx.ReadCart(ctx, userID)
		if err != nil {
			return fmt.Errorf("read cart: %w", err)
		}
		lines := mergeLines(raw)
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		ids := make([]string, 0, len(lines))
		for _, l := range lines {
			ids = append(ids, l.ProductID)
		}
		sort.Strings(ids)

		products, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}

		priced, err := validate(lines, products)
		if err != nil {
			return err
		}
		o, err := orders.New(userID, priced, c.now())
		if err != nil {
			return err
		}

		// urutan decrement = urutan lock (sorted id)
		want := make(map[string]int, len(lines))
		for _, l := range lines {
			want[l.ProductID] = l.Quantity
		}
		var short []Shortage
		for _, id := range ids {
			_, err := tx.TryDecrementStock(ctx, id, want[id])
			var ise *catalog.InsufficientStockError
			switch {
			case err == nil:
			case errors.As(err, &ise):
				short = append(short, Shortage{ProductID: id, Requested: ise.Requested, Available: ise.Available})
			case errors.Is(err, catalog.ErrProductNotFound):
				return &ProductNotFoundError{ProductIDs: []string{id}}
			default:
				return fmt.Errorf("decrement stock for %s: %w", id, err)
			}
		}
		if len(short) > 0 {
			return &InsufficientStockError{Shortages: short}
		}

		if err := tx.InsertOrder(ctx, o); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if err := tx.ClearCart(ctx, userID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		created = o
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	return created, nil
}

// mergeLines folds repeated rows for the same product into one line, keeping
// the position of the first occurrence.
func mergeLines(in []cart.Line) []cart.Line {
	out := make([]cart.Line, 0, len(in))
	idx := make(map[string]int, len(in))
	for _, l := range in {
		if i, ok := idx[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		idx[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}

// validate checks every line against the locked product rows and snapshots
// prices. All missing products are reported before any stock shortfall.
func validate(lines []cart.Line, products map[string]catalog.Product) ([]orders.PricedLine, error) {
	var missing []string
	var short []Shortage
	priced := make([]orders.PricedLine, 0, len(lines))

	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			missing = append(missing, l.ProductID)
			continue
		}
		if l.Quantity > p.Stock {
			short = append(short, Shortage{ProductID: l.ProductID, Requested: l.Quantity, Available: p.Stock})
			continue
		}
		priced = append(priced, orders.PricedLine{
			ProductID: p.ID,
			Title:     p.Title,
			Quantity:  l.Quantity,
			UnitPrice: p.Price,
		})
	}
	if len(missing) > 0 {
		return nil, &ProductNotFoundError{ProductIDs: missing}
	}
	if len(short) > 0 {
		return nil, &InsufficientStockError{Shortages: short}
	}
	return priced, nil
}
