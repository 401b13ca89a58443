package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/cart"
	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/outbox"
	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
)

// PGStore runs the atomic step as one READ COMMITTED transaction. Product
// rows are locked with FOR UPDATE for the life of the transaction and the
// wait for those locks is bounded by LockTimeout.
type PGStore struct {
	DB          postgres.Pool
	LockTimeout time.Duration
	Producer    string
}

func (s *PGStore) Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := postgres.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		if s.LockTimeout > 0 {
			// SET LOCAL tidak menerima parameter bind
			if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", s.LockTimeout.Milliseconds())); err != nil {
				return err
			}
		}
		return fn(ctx, &pgTx{
			tx:       tx,
			products: &catalog.Repo{DB: tx},
			cart:     &cart.Repo{DB: tx},
			orders:   &orders.Repo{DB: tx},
			producer: s.Producer,
		})
	})
	return classify(err)
}

func (s *PGStore) PruneCart(ctx context.Context, userID string, productIDs []string) error {
	return (&cart.Repo{DB: s.DB}).Prune(ctx, userID, productIDs)
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case postgres.IsLockTimeout(err):
		return fmt.Errorf("%w: %w", ErrCheckoutTimeout, err)
	case postgres.IsConflict(err):
		return fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrCheckoutTimeout, err)
	}
	return err
}

type pgTx struct {
	tx       pgx.Tx
	products *catalog.Repo
	cart     *cart.Repo
	orders   *orders.Repo
	producer string
}

func (t *pgTx) ReadCart(ctx context.Context, userID string) ([]cart.Line, error) {
	return t.cart.LockLines(ctx, userID)
}

func (t *pgTx) LockProducts(ctx context.Context, ids []string) (map[string]catalog.Product, error) {
	return t.products.LockForUpdate(ctx, ids)
}

func (t *pgTx) TryDecrementStock(ctx context.Context, productID string, qty int) (int, error) {
	return t.products.TryDecrementStock(ctx, productID, qty)
}

// InsertOrder writes the ledger rows and the OrderCreated outbox event in the
// same transaction.
func (t *pgTx) InsertOrder(ctx context.Context, o orders.Order) error {
	if err := t.orders.Insert(ctx, o); err != nil {
		return err
	}
	ev, err := orders.CreatedEvent(o, t.producer)
	if err != nil {
		return err
	}
	return outbox.Insert(ctx, t.tx, ev.EventID, orders.TopicOrderCreated, o.ID, ev)
}

func (t *pgTx) ClearCart(ctx context.Context, userID string) error {
	return t.cart.Clear(ctx, userID)
}
