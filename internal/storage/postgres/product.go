package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/rihla-backoffice/internal/domain/inventory"
	"github.com/xenking/rihla-backoffice/internal/domain/product"
)

const (
	productColumns = `id, sku, name, brand_id, category, price, stock, created_at`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	// Rows are locked in id order; callers pass sorted ids as well.
	lockStockSQL = `SELECT id, stock FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	decrementStockSQL = `UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`

	upsertProductSQL = `INSERT INTO products (id, sku, name, brand_id, category, price, stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			sku = EXCLUDED.sku,
			name = EXCLUDED.name,
			brand_id = EXCLUDED.brand_id,
			category = EXCLUDED.category,
			price = EXCLUDED.price,
			stock = EXCLUDED.stock`
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ inventory.Store    = (*ProductRepository)(nil)
)

// ProductRepository implements product.Repository and inventory.Store backed
// by PostgreSQL.
type ProductRepository struct {
	db *DB
}

// NewProductRepository returns a ProductRepository that uses db.
func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// LockStock takes row locks on the given products for the rest of the
// transaction and returns their stock.
func (r *ProductRepository) LockStock(ctx context.Context, ids []string) (map[string]int, error) {
	rows, err := r.db.conn(ctx).Query(ctx, lockStockSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("locking stock: %w", mapError(err))
	}
	defer rows.Close()

	stock := make(map[string]int, len(ids))
	for rows.Next() {
		var (
			id    string
			level int32
		)
		if err := rows.Scan(&id, &level); err != nil {
			return nil, fmt.Errorf("scanning stock: %w", err)
		}
		stock[id] = int(level)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("locking stock: %w", mapError(err))
	}
	return stock, nil
}

// DecrementStock subtracts qty if enough stock remains.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, qty int) (bool, error) {
	tag, err := r.db.conn(ctx).Exec(ctx, decrementStockSQL, id, qty)
	if err != nil {
		return false, fmt.Errorf("decrementing stock of %q: %w", id, mapError(err))
	}
	return tag.RowsAffected() == 1, nil
}

// Upsert inserts or replaces a catalog product.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	_, err := r.db.conn(ctx).Exec(ctx, upsertProductSQL,
		p.ID, p.SKU, p.Name, p.BrandID, p.Category, p.Price, p.Stock)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		stock int32
	)
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.BrandID, &p.Category, &p.Price, &stock, &p.CreatedAt)
	p.Stock = int(stock)
	return p, err
}
