package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
)

// Repo is the ledger's storage. Insert is only called from inside the
// checkout transaction; nothing here updates totals or items.
type Repo struct{ DB postgres.Querier }

func (r *Repo) Insert(ctx context.Context, o Order) error {
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidOrder)
	}
	if _, err := r.DB.Exec(ctx, `
		INSERT INTO orders(id, user_id, status, total_price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		o.ID, o.UserID, string(o.Status), o.TotalPrice, o.CreatedAt); err != nil {
		return err
	}
	for _, it := range o.Items {
		if _, err := r.DB.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, product_title, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			it.ID, o.ID, it.ProductID, it.ProductTitle, it.Quantity, it.UnitPrice); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) header(ctx context.Context, id string, forUpdate bool) (Order, error) {
	q := `SELECT id, user_id, status, total_price, created_at, updated_at FROM orders WHERE id=$1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var o Order
	var status string
	err := r.DB.QueryRow(ctx, q, id).Scan(&o.ID, &o.UserID, &status, &o.TotalPrice, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	o.Status = Status(status)
	return o, err
}

func (r *Repo) items(ctx context.Context, orderIDs []string) (map[string][]OrderItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, product_title, quantity, unit_price
		FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY order_id, id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]OrderItem, len(orderIDs))
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductTitle, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	o, err := r.header(ctx, id, false)
	if err != nil {
		return Order{}, err
	}
	items, err := r.items(ctx, []string{id})
	if err != nil {
		return Order{}, err
	}
	o.Items = items[id]
	return o, nil
}

// ListByUser returns the user's orders, newest first.
func (r *Repo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, user_id, status, total_price, created_at, updated_at
		FROM orders WHERE user_id=$1 ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	var out []Order
	for rows.Next() {
		var o Order
		var status string
		if err := rows.Scan(&o.ID, &o.UserID, &status, &o.TotalPrice, &o.CreatedAt, &o.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		o.Status = Status(status)
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return []Order{}, nil
	}

	ids := make([]string, 0, len(out))
	for _, o := range out {
		ids = append(ids, o.ID)
	}
	items, err := r.items(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

// setStatus moves the order from `from` to `to` and returns the new
// updated_at. The WHERE on status makes this a compare-and-set even without
// the row lock.
func (r *Repo) setStatus(ctx context.Context, o *Order, from, to Status) error {
	err := r.DB.QueryRow(ctx, `UPDATE orders SET status=$3, updated_at=now()
		WHERE id=$1 AND status=$2 RETURNING updated_at`, o.ID, string(from), string(to)).Scan(&o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &InvalidTransitionError{OrderID: o.ID, From: from, To: to}
	}
	if err != nil {
		return err
	}
	o.Status = to
	return nil
}
