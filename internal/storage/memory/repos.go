package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/rihla-backoffice/internal/domain"
	"github.com/xenking/rihla-backoffice/internal/domain/auth"
	"github.com/xenking/rihla-backoffice/internal/domain/brand"
	"github.com/xenking/rihla-backoffice/internal/domain/customer"
	"github.com/xenking/rihla-backoffice/internal/domain/inventory"
	"github.com/xenking/rihla-backoffice/internal/domain/order"
	"github.com/xenking/rihla-backoffice/internal/domain/product"
)

var (
	_ product.Repository = (*Products)(nil)
	_ inventory.Store    = (*Products)(nil)
	_ order.Repository   = (*Orders)(nil)
	_ customer.Store     = (*Customers)(nil)
	_ brand.Directory    = (*Brands)(nil)
	_ auth.Repository    = (*APIKeys)(nil)
)

// Products is the in-memory product catalog and stock ledger.
type Products struct{ s *Store }

// GetByID returns a single product.
func (r *Products) GetByID(ctx context.Context, id string) (*product.Product, error) {
	var (
		p  product.Product
		ok bool
	)
	r.s.read(ctx, func(t *tables) { p, ok = t.products[id] })
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// GetByIDs returns the products that exist among ids.
func (r *Products) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	out := make([]product.Product, 0, len(ids))
	r.s.read(ctx, func(t *tables) {
		for _, id := range ids {
			if p, ok := t.products[id]; ok {
				out = append(out, p)
			}
		}
	})
	return out, nil
}

// LockStock returns stock levels. Exclusion comes from the enclosing
// transaction, which holds the store's writer lock.
func (r *Products) LockStock(ctx context.Context, ids []string) (map[string]int, error) {
	stock := make(map[string]int, len(ids))
	r.s.read(ctx, func(t *tables) {
		for _, id := range ids {
			if p, ok := t.products[id]; ok {
				stock[id] = p.Stock
			}
		}
	})
	return stock, nil
}

// DecrementStock subtracts qty if enough stock remains.
func (r *Products) DecrementStock(ctx context.Context, id string, qty int) (bool, error) {
	var applied bool
	err := r.s.write(ctx, func(t *tables) error {
		p, ok := t.products[id]
		if !ok {
			return &inventory.ProductNotFoundError{ProductID: id}
		}
		if p.Stock < qty {
			return nil
		}
		p.Stock -= qty
		t.products[id] = p
		applied = true
		return nil
	})
	return applied, err
}

// Upsert inserts or replaces a product.
func (r *Products) Upsert(ctx context.Context, p product.Product) error {
	return r.s.write(ctx, func(t *tables) error {
		if old, ok := t.products[p.ID]; ok {
			p.CreatedAt = old.CreatedAt
		} else if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}
		for id, other := range t.products {
			if id != p.ID && other.SKU == p.SKU {
				return errors.Wrapf(domain.ErrConflict, "sku %s already used by %s", p.SKU, id)
			}
		}
		t.products[p.ID] = p
		return nil
	})
}

// Orders is the in-memory order repository.
type Orders struct{ s *Store }

// Create stores o. A duplicate id or order number is a conflict.
func (r *Orders) Create(ctx context.Context, o *order.Order) error {
	return r.s.write(ctx, func(t *tables) error {
		if _, ok := t.orders[o.ID]; ok {
			return errors.Wrapf(domain.ErrConflict, "order id %s exists", o.ID)
		}
		if _, ok := t.numbers[o.OrderNumber]; ok {
			return errors.Wrapf(domain.ErrConflict, "order number %s exists", o.OrderNumber)
		}
		t.orders[o.ID] = copyOrder(*o)
		t.numbers[o.OrderNumber] = o.ID
		return nil
	})
}

// GetByID returns the order with id.
func (r *Orders) GetByID(ctx context.Context, id string) (*order.Order, error) {
	var (
		o  order.Order
		ok bool
	)
	r.s.read(ctx, func(t *tables) { o, ok = t.orders[id] })
	if !ok {
		return nil, order.ErrNotFound
	}
	o = copyOrder(o)
	return &o, nil
}

// GetByNumber returns the order with the given order number.
func (r *Orders) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	var (
		id string
		ok bool
	)
	r.s.read(ctx, func(t *tables) { id, ok = t.numbers[number] })
	if !ok {
		return nil, order.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// UpdateStatus overwrites the status of order id.
func (r *Orders) UpdateStatus(ctx context.Context, id string, status order.Status, at time.Time) (*order.Order, error) {
	var out order.Order
	err := r.s.write(ctx, func(t *tables) error {
		o, ok := t.orders[id]
		if !ok {
			return order.ErrNotFound
		}
		o.Status = status
		o.UpdatedAt = at
		t.orders[id] = o
		out = copyOrder(o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns orders matching f, newest first.
func (r *Orders) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	var out []order.Order
	r.s.read(ctx, func(t *tables) {
		for _, o := range t.orders {
			if f.BrandID != "" && o.BrandID != f.BrandID {
				continue
			}
			if f.Status != "" && o.Status != f.Status {
				continue
			}
			out = append(out, copyOrder(o))
		}
	})
	slices.SortFunc(out, func(a, b order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// ListByCustomerEmail returns a customer's orders, oldest first.
func (r *Orders) ListByCustomerEmail(ctx context.Context, email string) ([]order.Order, error) {
	var out []order.Order
	r.s.read(ctx, func(t *tables) {
		for _, o := range t.orders {
			if o.Customer.Email == email {
				out = append(out, copyOrder(o))
			}
		}
	})
	slices.SortFunc(out, func(a, b order.Order) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return out, nil
}

func copyOrder(o order.Order) order.Order {
	o.Items = slices.Clone(o.Items)
	return o
}

// Customers is the in-memory customer store.
type Customers struct{ s *Store }

// UpsertIncrement creates the customer or credits one more order to it.
func (r *Customers) UpsertIncrement(ctx context.Context, c customer.Contribution) (*customer.Customer, error) {
	var out customer.Customer
	err := r.s.write(ctx, func(t *tables) error {
		cur, ok := t.customers[c.Email]
		if !ok {
			cur = customer.Customer{
				ID:        c.ID,
				Name:      c.Name,
				Email:     c.Email,
				Phone:     c.Phone,
				CreatedAt: c.At,
			}
		}
		cur.TotalOrders++
		cur.LifetimeValue = cur.LifetimeValue.Add(c.OrderTotal)
		cur.LastOrderAt = c.At
		t.customers[c.Email] = cur
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByID returns the customer with id.
func (r *Customers) GetByID(ctx context.Context, id string) (*customer.Customer, error) {
	var (
		out customer.Customer
		ok  bool
	)
	r.s.read(ctx, func(t *tables) {
		for _, c := range t.customers {
			if c.ID == id {
				out, ok = c, true
				return
			}
		}
	})
	if !ok {
		return nil, customer.ErrNotFound
	}
	return &out, nil
}

// GetByEmail returns the customer with the given normalized e-mail.
func (r *Customers) GetByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	var (
		out customer.Customer
		ok  bool
	)
	r.s.read(ctx, func(t *tables) { out, ok = t.customers[email] })
	if !ok {
		return nil, customer.ErrNotFound
	}
	return &out, nil
}

// Brands is the in-memory brand directory.
type Brands struct{ s *Store }

// Lookup returns the brand with id.
func (r *Brands) Lookup(ctx context.Context, id string) (*brand.Brand, error) {
	var (
		b  brand.Brand
		ok bool
	)
	r.s.read(ctx, func(t *tables) { b, ok = t.brands[id] })
	if !ok {
		return nil, brand.ErrNotFound
	}
	return &b, nil
}

// Upsert inserts or renames a brand.
func (r *Brands) Upsert(ctx context.Context, b brand.Brand) error {
	return r.s.write(ctx, func(t *tables) error {
		t.brands[b.ID] = b
		return nil
	})
}

// APIKeys is the in-memory API key repository.
type APIKeys struct{ s *Store }

// FindByHash returns the key with the given hash.
func (r *APIKeys) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var (
		info auth.APIKeyInfo
		ok   bool
	)
	r.s.read(ctx, func(t *tables) { info, ok = t.apiKeys[hash] })
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return &info, nil
}

// Upsert stores info, replacing any key with the same id.
func (r *APIKeys) Upsert(ctx context.Context, info auth.APIKeyInfo) error {
	return r.s.write(ctx, func(t *tables) error {
		for hash, k := range t.apiKeys {
			if k.ID == info.ID {
				delete(t.apiKeys, hash)
			}
		}
		t.apiKeys[info.KeyHash] = info
		return nil
	})
}
