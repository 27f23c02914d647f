package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/rihla-backoffice/internal/domain/brand"
)

const (
	getBrandSQL = `SELECT id, name FROM brands WHERE id = $1`

	upsertBrandSQL = `INSERT INTO brands (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`
)

var _ brand.Directory = (*BrandRepository)(nil)

// BrandRepository implements brand.Directory backed by PostgreSQL.
type BrandRepository struct {
	db *DB
}

// NewBrandRepository returns a BrandRepository that uses db.
func NewBrandRepository(db *DB) *BrandRepository {
	return &BrandRepository{db: db}
}

// Lookup returns the brand with id or brand.ErrNotFound.
func (r *BrandRepository) Lookup(ctx context.Context, id string) (*brand.Brand, error) {
	var b brand.Brand
	err := r.db.conn(ctx).QueryRow(ctx, getBrandSQL, id).Scan(&b.ID, &b.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, brand.ErrNotFound
		}
		return nil, fmt.Errorf("looking up brand %q: %w", id, err)
	}
	return &b, nil
}

// Upsert inserts or renames a brand.
func (r *BrandRepository) Upsert(ctx context.Context, b brand.Brand) error {
	if _, err := r.db.conn(ctx).Exec(ctx, upsertBrandSQL, b.ID, b.Name); err != nil {
		return fmt.Errorf("upserting brand %q: %w", b.ID, err)
	}
	return nil
}
