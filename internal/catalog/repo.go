package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const productColumns = `id, title, description, price, image_url, stock, category_id, created_at`

// Repo works against either the pool or an open transaction.
type Repo struct{ DB postgres.Querier }

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Price, &p.ImageURL, &p.Stock, &p.CategoryID, &p.CreatedAt)
	return p, err
}

func (r *Repo) Get(ctx context.Context, id string) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return p, err
}

func (r *Repo) List(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LockForUpdate reads the given products and holds their row locks until the
// surrounding transaction ends. Rows are locked in id order so two
// transactions over overlapping carts cannot deadlock. Missing ids are simply
// absent from the result.
func (r *Repo) LockForUpdate(ctx context.Context, ids []string) (map[string]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+`
		FROM products WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// TryDecrementStock claims qty units. The stock check is part of the UPDATE
// itself, so it is evaluated against the row value at the moment of the
// write, never against an earlier read.
func (r *Repo) TryDecrementStock(ctx context.Context, id string, qty int) (remaining int, err error) {
	if qty <= 0 {
		return 0, fmt.Errorf("%w: quantity must be >= 1", ErrInvalidProduct)
	}
	err = r.DB.QueryRow(ctx, `UPDATE products SET stock = stock - $2
		WHERE id=$1 AND stock >= $2 RETURNING stock`, id, qty).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	// tidak ada baris ter-update: produk hilang atau stok kurang
	var available int
	err = r.DB.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, id).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	if err != nil {
		return 0, err
	}
	return 0, &InsufficientStockError{ProductID: id, Requested: qty, Available: available}
}

// Restock gives units back, e.g. when an order is cancelled.
func (r *Repo) Restock(ctx context.Context, id string, qty int) error {
	ct, err := r.DB.Exec(ctx, `UPDATE products SET stock = stock + $2 WHERE id=$1`, id, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		// produk sudah dihapus; tidak ada yang dikembalikan
		return fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return nil
}

func (r *Repo) Create(ctx context.Context, p Product) (Product, error) {
	if err := p.Validate(); err != nil {
		return Product{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return scanProduct(r.DB.QueryRow(ctx, `
		INSERT INTO products(id, title, description, price, image_url, stock, category_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING `+productColumns,
		p.ID, p.Title, p.Description, p.Price, p.ImageURL, p.Stock, p.CategoryID))
}

// Update changes the live price and/or stock. Existing orders are unaffected:
// their line items carry their own unit_price.
func (r *Repo) Update(ctx context.Context, id string, patch Patch) (Product, error) {
	if err := patch.Validate(); err != nil {
		return Product{}, err
	}
	p, err := scanProduct(r.DB.QueryRow(ctx, `
		UPDATE products SET price = COALESCE($2, price), stock = COALESCE($3, stock)
		WHERE id=$1
		RETURNING `+productColumns, id, patch.Price, patch.Stock))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return p, err
}
