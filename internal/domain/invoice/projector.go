// Package invoice assembles read-only billing views over persisted customers
// and orders. Projections never write and are served without authentication,
// so every lookup is an exact match on the caller-supplied key.
package invoice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/rihla-backoffice/internal/domain/customer"
	"github.com/xenking/rihla-backoffice/internal/domain/order"
)

// Invoice is a customer with every order placed under their e-mail.
type Invoice struct {
	ID          string
	Date        time.Time
	Customer    customer.Customer
	Orders      []order.Order
	TotalAmount decimal.Decimal
}

// OrderInvoice is the billing view of a single order.
type OrderInvoice struct {
	ID       string
	Date     time.Time
	Customer customer.Customer
	Order    order.Order
}

// CustomerReader is the customer lookup a Projector needs.
type CustomerReader interface {
	GetByID(ctx context.Context, id string) (*customer.Customer, error)
	GetByEmail(ctx context.Context, email string) (*customer.Customer, error)
}

// OrderReader is the order lookup a Projector needs.
type OrderReader interface {
	GetByID(ctx context.Context, id string) (*order.Order, error)
	GetByNumber(ctx context.Context, number string) (*order.Order, error)
	ListByCustomerEmail(ctx context.Context, email string) ([]order.Order, error)
}

// Projector builds invoices. Concurrent requests for the same customer share
// one store round trip.
type Projector struct {
	customers CustomerReader
	orders    OrderReader
	now       func() time.Time
	group     singleflight.Group
}

// NewProjector returns a Projector over the given readers.
func NewProjector(customers CustomerReader, orders OrderReader) *Projector {
	return &Projector{customers: customers, orders: orders, now: time.Now}
}

// ForCustomer returns the invoice for the customer with id. It fails with
// customer.ErrNotFound when no such customer exists.
func (p *Projector) ForCustomer(ctx context.Context, customerID string) (*Invoice, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, customer.ErrNotFound
	}

	// The shared call is detached from any one caller; each caller waits on
	// its own ctx.
	ch := p.group.DoChan(customerID, func() (any, error) {
		return p.forCustomer(context.WithoutCancel(ctx), customerID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Invoice), nil
	}
}

func (p *Projector) forCustomer(ctx context.Context, customerID string) (*Invoice, error) {
	c, err := p.customers.GetByID(ctx, customerID)
	if err != nil {
		return nil, errors.Wrapf(err, "get customer %s", customerID)
	}

	orders, err := p.orders.ListByCustomerEmail(ctx, c.Email)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders for customer %s", customerID)
	}

	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.Total)
	}

	now := p.now().UTC()
	return &Invoice{
		ID:          customerInvoiceID(c.ID, now),
		Date:        now,
		Customer:    *c,
		Orders:      orders,
		TotalAmount: total,
	}, nil
}

// ForOrder returns the invoice of a single order. ref is an order number, an
// order number with an "INV-" prefix, or an order id. When the order's
// customer record is missing the customer is taken from the order snapshot.
func (p *Projector) ForOrder(ctx context.Context, ref string) (*OrderInvoice, error) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "INV-")
	if ref == "" {
		return nil, order.ErrNotFound
	}

	o, err := p.orders.GetByNumber(ctx, ref)
	if errors.Is(err, order.ErrNotFound) {
		o, err = p.orders.GetByID(ctx, ref)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", ref)
	}

	c, err := p.customers.GetByEmail(ctx, o.Customer.Email)
	switch {
	case errors.Is(err, customer.ErrNotFound):
		c = &customer.Customer{
			Name:  o.Customer.Name,
			Email: o.Customer.Email,
			Phone: o.Customer.Phone,
		}
	case err != nil:
		return nil, errors.Wrapf(err, "get customer for order %s", o.OrderNumber)
	}

	return &OrderInvoice{
		ID:       "INV-" + o.OrderNumber,
		Date:     o.CreatedAt,
		Customer: *c,
		Order:    *o,
	}, nil
}

func customerInvoiceID(customerID string, at time.Time) string {
	short := strings.ToUpper(strings.ReplaceAll(customerID, "-", ""))
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("INV-%s-%d", short, at.Unix())
}
