package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/rihla-backoffice/internal/domain/customer"
)

const (
	customerColumns = `id, name, email, phone, total_orders, lifetime_value, created_at, last_order_at`

	// One statement: concurrent first orders for an e-mail serialize on the
	// unique index and the loser takes the DO UPDATE branch.
	upsertCustomerSQL = `INSERT INTO customers AS c (id, name, email, phone, total_orders, lifetime_value, created_at, last_order_at)
		VALUES ($1, $2, $3, $4, 1, $5, $6, $6)
		ON CONFLICT (email) DO UPDATE SET
			total_orders = c.total_orders + 1,
			lifetime_value = c.lifetime_value + EXCLUDED.lifetime_value,
			last_order_at = EXCLUDED.last_order_at
		RETURNING ` + customerColumns

	getCustomerByIDSQL = `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

	getCustomerByEmailSQL = `SELECT ` + customerColumns + ` FROM customers WHERE email = $1`
)

var _ customer.Store = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Store backed by PostgreSQL.
type CustomerRepository struct {
	db *DB
}

// NewCustomerRepository returns a CustomerRepository that uses db.
func NewCustomerRepository(db *DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// UpsertIncrement inserts the customer or credits the existing record.
func (r *CustomerRepository) UpsertIncrement(ctx context.Context, c customer.Contribution) (*customer.Customer, error) {
	rows, err := r.db.conn(ctx).Query(ctx, upsertCustomerSQL,
		c.ID, c.Name, c.Email, c.Phone, c.OrderTotal, c.At)
	if err != nil {
		return nil, fmt.Errorf("upserting customer %q: %w", c.Email, mapError(err))
	}
	out, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		return nil, fmt.Errorf("upserting customer %q: %w", c.Email, mapError(err))
	}
	return &out, nil
}

// GetByID returns the customer with the given id.
func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*customer.Customer, error) {
	return r.getOne(ctx, getCustomerByIDSQL, id)
}

// GetByEmail returns the customer with the given normalized e-mail.
func (r *CustomerRepository) GetByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	return r.getOne(ctx, getCustomerByEmailSQL, email)
}

func (r *CustomerRepository) getOne(ctx context.Context, sql, key string) (*customer.Customer, error) {
	rows, err := r.db.conn(ctx).Query(ctx, sql, key)
	if err != nil {
		return nil, fmt.Errorf("getting customer %q: %w", key, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", key, err)
	}
	return &c, nil
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var (
		c      customer.Customer
		orders int32
	)
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &orders, &c.LifetimeValue, &c.CreatedAt, &c.LastOrderAt)
	c.TotalOrders = int(orders)
	return c, err
}
