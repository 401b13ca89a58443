package cart

import (
	"context"

	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
	"github.com/google/uuid"
)

type Repo struct{ DB postgres.Querier }

// Lines returns the cart in insertion order.
func (r *Repo) Lines(ctx context.Context, userID string) ([]Line, error) {
	return r.lines(ctx, userID, false)
}

// LockLines is Lines with the rows locked until the surrounding transaction
// ends. A second checkout of the same cart waits here and, once the first
// one has cleared the cart, reads it back empty.
func (r *Repo) LockLines(ctx context.Context, userID string) ([]Line, error) {
	return r.lines(ctx, userID, true)
}

func (r *Repo) lines(ctx context.Context, userID string, forUpdate bool) ([]Line, error) {
	q := `SELECT product_id, quantity FROM cart_items
		WHERE user_id=$1 ORDER BY created_at, id`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	rows, err := r.DB.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ProductID, &l.Quantity); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Items joins the cart with live product data.
func (r *Repo) Items(ctx context.Context, userID string) ([]Item, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT c.product_id, c.quantity, p.title, p.price, p.stock
		FROM cart_items c JOIN products p ON p.id = c.product_id
		WHERE c.user_id=$1 ORDER BY c.created_at, c.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.Title, &it.UnitPrice, &it.Stock); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repo) Quantity(ctx context.Context, userID, productID string) (int, error) {
	var q int
	err := r.DB.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM cart_items
		WHERE user_id=$1 AND product_id=$2`, userID, productID).Scan(&q)
	return q, err
}

// Add upserts: adding a product that is already in the cart increases the
// existing line instead of creating a second row.
func (r *Repo) Add(ctx context.Context, userID, productID string, qty int) (Line, error) {
	if qty < 1 {
		return Line{}, ErrInvalidQuantity
	}
	l := Line{ProductID: productID}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO cart_items(id, user_id, product_id, quantity)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING quantity`, uuid.NewString(), userID, productID, qty).Scan(&l.Quantity)
	return l, err
}

func (r *Repo) SetQuantity(ctx context.Context, userID, productID string, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	ct, err := r.DB.Exec(ctx, `UPDATE cart_items SET quantity=$3 WHERE user_id=$1 AND product_id=$2`, userID, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (r *Repo) Remove(ctx context.Context, userID, productID string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE user_id=$1 AND product_id=$2`, userID, productID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (r *Repo) Clear(ctx context.Context, userID string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE user_id=$1`, userID)
	return err
}

// Prune drops lines that point at the given products (stale lines whose
// product no longer exists).
func (r *Repo) Prune(ctx context.Context, userID string, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}
	_, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE user_id=$1 AND product_id = ANY($2::uuid[])`, userID, productIDs)
	return err
}
