package invoice

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/rihla-backoffice/internal/domain/customer"
	"github.com/xenking/rihla-backoffice/internal/domain/order"
)

// --- Mock implementations ---

type mockCustomers struct {
	byID map[string]customer.Customer
	err  error
}

func (m *mockCustomers) GetByID(_ context.Context, id string) (*customer.Customer, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.byID[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return &c, nil
}

func (m *mockCustomers) GetByEmail(_ context.Context, email string) (*customer.Customer, error) {
	for _, c := range m.byID {
		if c.Email == email {
			return &c, nil
		}
	}
	return nil, customer.ErrNotFound
}

type mockOrders struct {
	orders      []order.Order
	listedEmail string
}

func (m *mockOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	for _, o := range m.orders {
		if o.ID == id {
			return &o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (m *mockOrders) GetByNumber(_ context.Context, number string) (*order.Order, error) {
	for _, o := range m.orders {
		if o.OrderNumber == number {
			return &o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (m *mockOrders) ListByCustomerEmail(_ context.Context, email string) ([]order.Order, error) {
	m.listedEmail = email
	var out []order.Order
	for _, o := range m.orders {
		if o.Customer.Email == email {
			out = append(out, o)
		}
	}
	return out, nil
}

// gatedCustomers blocks GetByID until release is closed or ctx ends.
type gatedCustomers struct {
	*mockCustomers
	started chan struct{}
	release chan struct{}
}

func (g *gatedCustomers) GetByID(ctx context.Context, id string) (*customer.Customer, error) {
	select {
	case g.started <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.mockCustomers.GetByID(ctx, id)
}

// --- Helpers ---

func fixture() (*mockCustomers, *mockOrders) {
	customers := &mockCustomers{byID: map[string]customer.Customer{
		"c-1": {ID: "c-1", Name: "Huda", Email: "huda@example.com", TotalOrders: 2},
		"c-2": {ID: "c-2", Name: "Faisal", Email: "faisal@example.com", TotalOrders: 1},
	}}
	orders := &mockOrders{orders: []order.Order{
		{ID: "o-1", OrderNumber: "ORD-20260101-AAAAAAAA", Customer: order.CustomerSnapshot{Name: "Huda", Email: "huda@example.com"}, Total: decimal.RequireFromString("115.00")},
		{ID: "o-2", OrderNumber: "ORD-20260102-BBBBBBBB", Customer: order.CustomerSnapshot{Name: "Huda", Email: "huda@example.com"}, Total: decimal.RequireFromString("20.50")},
		{ID: "o-3", OrderNumber: "ORD-20260103-CCCCCCCC", Customer: order.CustomerSnapshot{Name: "Faisal", Email: "faisal@example.com"}, Total: decimal.RequireFromString("99.99")},
		{ID: "o-4", OrderNumber: "ORD-20260104-DDDDDDDD", Customer: order.CustomerSnapshot{Name: "Walk-in", Email: "walkin@example.com"}, Total: decimal.RequireFromString("5")},
	}}
	return customers, orders
}

// --- Tests ---

func TestForCustomer(t *testing.T) {
	customers, orders := fixture()
	p := NewProjector(customers, orders)
	p.now = func() time.Time { return time.Unix(1767225600, 0) }

	inv, err := p.ForCustomer(context.Background(), "c-1")
	require.NoError(t, err)

	assert.Equal(t, "Huda", inv.Customer.Name)
	require.Len(t, inv.Orders, 2)
	for _, o := range inv.Orders {
		assert.Equal(t, "huda@example.com", o.Customer.Email, "must never include another customer's orders")
	}
	assert.True(t, decimal.RequireFromString("135.50").Equal(inv.TotalAmount))
	assert.Equal(t, "INV-C1-1767225600", inv.ID)
	assert.Equal(t, "huda@example.com", orders.listedEmail)
}

func TestForCustomer_NotFound(t *testing.T) {
	customers, orders := fixture()
	p := NewProjector(customers, orders)

	for _, id := range []string{"c-404", "", "  "} {
		_, err := p.ForCustomer(context.Background(), id)
		require.ErrorIs(t, err, customer.ErrNotFound, "id %q", id)
	}
	assert.Empty(t, orders.listedEmail, "orders must not be queried for an unknown customer")
}

func TestForCustomer_StoreError(t *testing.T) {
	customers, orders := fixture()
	customers.err = errors.New("connection refused")
	p := NewProjector(customers, orders)

	_, err := p.ForCustomer(context.Background(), "c-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, customer.ErrNotFound)
}

func TestForCustomer_NoOrders(t *testing.T) {
	customers, _ := fixture()
	p := NewProjector(customers, &mockOrders{})

	inv, err := p.ForCustomer(context.Background(), "c-2")
	require.NoError(t, err)
	assert.Empty(t, inv.Orders)
	assert.True(t, inv.TotalAmount.IsZero())
}

func TestForCustomer_SharedCallSurvivesCancelledCaller(t *testing.T) {
	customers, orders := fixture()
	gated := &gatedCustomers{
		mockCustomers: customers,
		started:       make(chan struct{}, 1),
		release:       make(chan struct{}),
	}
	p := NewProjector(gated, orders)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := p.ForCustomer(firstCtx, "c-1")
		firstErr <- err
	}()
	<-gated.started

	type result struct {
		inv *Invoice
		err error
	}
	second := make(chan result, 1)
	go func() {
		inv, err := p.ForCustomer(context.Background(), "c-1")
		second <- result{inv, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(gated.release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "Huda", res.inv.Customer.Name)
	assert.True(t, decimal.RequireFromString("135.50").Equal(res.inv.TotalAmount))
}

func TestCustomerInvoiceID(t *testing.T) {
	id := customerInvoiceID("0b7d6f1e-3c2a-4f7e-9d61-aa0c1b2d3e4f", time.Unix(42, 0))
	assert.Equal(t, "INV-0B7D6F1E-42", id)
	assert.True(t, strings.HasPrefix(customerInvoiceID("x", time.Now()), "INV-X-"))
}

func TestForOrder(t *testing.T) {
	customers, orders := fixture()
	p := NewProjector(customers, orders)

	tests := []struct {
		name string
		ref  string
		want string
	}{
		{name: "order number", ref: "ORD-20260101-AAAAAAAA", want: "o-1"},
		{name: "invoice prefix", ref: "INV-ORD-20260102-BBBBBBBB", want: "o-2"},
		{name: "order id", ref: "o-3", want: "o-3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := p.ForOrder(context.Background(), tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, inv.Order.ID)
			assert.Equal(t, "INV-"+inv.Order.OrderNumber, inv.ID)
			assert.Equal(t, inv.Order.Customer.Email, inv.Customer.Email)
		})
	}
}

func TestForOrder_SnapshotCustomer(t *testing.T) {
	customers, orders := fixture()
	p := NewProjector(customers, orders)

	inv, err := p.ForOrder(context.Background(), "ORD-20260104-DDDDDDDD")
	require.NoError(t, err)
	assert.Equal(t, "Walk-in", inv.Customer.Name)
	assert.Empty(t, inv.Customer.ID)
}

func TestForOrder_NotFound(t *testing.T) {
	customers, orders := fixture()
	p := NewProjector(customers, orders)

	_, err := p.ForOrder(context.Background(), "INV-")
	require.ErrorIs(t, err, order.ErrNotFound)

	_, err = p.ForOrder(context.Background(), "ORD-20991231-ZZZZZZZZ")
	require.ErrorIs(t, err, order.ErrNotFound)
}
