// Package lifecycle owns the destruction paths of users, products and
// categories. The schema declares plain foreign keys; every dependent row is
// removed or detached here, inside one transaction per call.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrCategoryNotFound = errors.New("category not found")
)

type Remover struct{ DB postgres.Pool }

// Report lists how many dependent rows a delete touched.
type Report struct {
	CartItems  int64 `json:"cart_items"`
	Orders     int64 `json:"orders"`
	OrderItems int64 `json:"order_items"`
	Reviews    int64 `json:"reviews"`
	Favorites  int64 `json:"favorites"`
	Children   int64 `json:"child_categories"`
	Products   int64 `json:"products"`
}

type step struct {
	sql string
	n   *int64
}

func run(ctx context.Context, tx pgx.Tx, id string, steps []step) error {
	for _, s := range steps {
		tag, err := tx.Exec(ctx, s.sql, id)
		if err != nil {
			return err
		}
		if s.n != nil {
			*s.n = tag.RowsAffected()
		}
	}
	return nil
}

// DeleteUser removes the user with its cart, orders (items first), reviews
// and favorites. Stock of the user's open orders is not returned.
func (r *Remover) DeleteUser(ctx context.Context, id string) (Report, error) {
	var rep Report
	err := postgres.WithTx(ctx, r.DB, func(tx pgx.Tx) error {
		if err := run(ctx, tx, id, []step{
			{`DELETE FROM cart_items WHERE user_id=$1`, &rep.CartItems},
			{`DELETE FROM favorites WHERE user_id=$1`, &rep.Favorites},
			{`DELETE FROM reviews WHERE user_id=$1`, &rep.Reviews},
			{`DELETE FROM order_items WHERE order_id IN (SELECT id FROM orders WHERE user_id=$1)`, &rep.OrderItems},
			{`DELETE FROM orders WHERE user_id=$1`, &rep.Orders},
		}); err != nil {
			return err
		}
		return deleteRow(ctx, tx, `DELETE FROM users WHERE id=$1`, id, ErrUserNotFound)
	})
	return rep, err
}

// DeleteProduct removes the product with its cart lines, reviews and
// favorites. Order items keep their snapshot and are not touched.
func (r *Remover) DeleteProduct(ctx context.Context, id string) (Report, error) {
	var rep Report
	err := postgres.WithTx(ctx, r.DB, func(tx pgx.Tx) error {
		if err := run(ctx, tx, id, []step{
			{`DELETE FROM cart_items WHERE product_id=$1`, &rep.CartItems},
			{`DELETE FROM reviews WHERE product_id=$1`, &rep.Reviews},
			{`DELETE FROM favorites WHERE product_id=$1`, &rep.Favorites},
		}); err != nil {
			return err
		}
		return deleteRow(ctx, tx, `DELETE FROM products WHERE id=$1`, id, catalog.ErrProductNotFound)
	})
	return rep, err
}

// DeleteCategory detaches child categories and products, then removes the
// category. Nothing below it is deleted.
func (r *Remover) DeleteCategory(ctx context.Context, id string) (Report, error) {
	var rep Report
	err := postgres.WithTx(ctx, r.DB, func(tx pgx.Tx) error {
		if err := run(ctx, tx, id, []step{
			{`UPDATE categories SET parent_id = NULL WHERE parent_id=$1`, &rep.Children},
			{`UPDATE products SET category_id = NULL WHERE category_id=$1`, &rep.Products},
		}); err != nil {
			return err
		}
		return deleteRow(ctx, tx, `DELETE FROM categories WHERE id=$1`, id, ErrCategoryNotFound)
	})
	return rep, err
}

func deleteRow(ctx context.Context, tx pgx.Tx, sql, id string, notFound error) error {
	tag, err := tx.Exec(ctx, sql, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return nil
}
