package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/outbox"
	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
)

// Ledger exposes the read side of orders and the status lifecycle.
type Ledger struct {
	DB          postgres.Pool
	Producer    string
	LockTimeout time.Duration
}

func (l *Ledger) Get(ctx context.Context, id string) (Order, error) {
	return (&Repo{DB: l.DB}).Get(ctx, id)
}

func (l *Ledger) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return (&Repo{DB: l.DB}).ListByUser(ctx, userID)
}

// Transition applies an administrator's status change. Cancelling gives the
// order's units back to the catalog in the same transaction; the order's
// items and total are left as they were. Product rows are locked in id order
// before any restock, the same order checkout locks them in.
func (l *Ledger) Transition(ctx context.Context, id string, to Status) (Order, error) {
	if !to.Valid() {
		return Order{}, ErrUnknownStatus
	}
	var out Order
	err := postgres.WithTx(ctx, l.DB, func(tx pgx.Tx) error {
		if l.LockTimeout > 0 {
			if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", l.LockTimeout.Milliseconds())); err != nil {
				return err
			}
		}
		repo := &Repo{DB: tx}
		o, err := repo.header(ctx, id, true)
		if err != nil {
			return err
		}
		from := o.Status
		if !CanTransition(from, to) {
			return &InvalidTransitionError{OrderID: id, From: from, To: to}
		}
		if err := repo.setStatus(ctx, &o, from, to); err != nil {
			return err
		}
		items, err := repo.items(ctx, []string{id})
		if err != nil {
			return err
		}
		o.Items = items[id]

		if to == StatusCancelled {
			if err := restock(ctx, &catalog.Repo{DB: tx}, o.Items); err != nil {
				return err
			}
		}

		ev, err := StatusChangedEvent(o, from, l.Producer)
		if err != nil {
			return err
		}
		if err := outbox.Insert(ctx, tx, ev.EventID, TopicOrderStatusChanged, o.ID, ev); err != nil {
			return err
		}
		out = o
		return nil
	})
	if postgres.IsConflict(err) || postgres.IsLockTimeout(err) {
		return Order{}, fmt.Errorf("%w: %w", ErrTransitionBusy, err)
	}
	return out, err
}

func restock(ctx context.Context, stock *catalog.Repo, items []OrderItem) error {
	sorted := append([]OrderItem(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })
	ids := make([]string, 0, len(sorted))
	for _, it := range sorted {
		ids = append(ids, it.ProductID)
	}
	if _, err := stock.LockForUpdate(ctx, ids); err != nil {
		return err
	}
	for _, it := range sorted {
		// produk yang sudah dihapus tidak bisa di-restock; lewati saja
		if err := stock.Restock(ctx, it.ProductID, it.Quantity); err != nil && !errors.Is(err, catalog.ErrProductNotFound) {
			return err
		}
	}
	return nil
}
