package customer

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/rihla-backoffice/internal/domain"
)

// --- Mock implementations ---

type mockStore struct {
	mu      sync.Mutex
	byEmail map[string]*Customer
	err     error
}

func newMockStore() *mockStore {
	return &mockStore{byEmail: make(map[string]*Customer)}
}

func (m *mockStore) UpsertIncrement(_ context.Context, c Contribution) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if existing, ok := m.byEmail[c.Email]; ok {
		existing.TotalOrders++
		existing.LifetimeValue = existing.LifetimeValue.Add(c.OrderTotal)
		existing.LastOrderAt = c.At
		out := *existing
		return &out, nil
	}
	rec := &Customer{
		ID:            c.ID,
		Name:          c.Name,
		Email:         c.Email,
		Phone:         c.Phone,
		TotalOrders:   1,
		LifetimeValue: c.OrderTotal,
		CreatedAt:     c.At,
		LastOrderAt:   c.At,
	}
	m.byEmail[c.Email] = rec
	out := *rec
	return &out, nil
}

func (m *mockStore) GetByID(_ context.Context, id string) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byEmail {
		if c.ID == id {
			out := *c
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockStore) GetByEmail(_ context.Context, email string) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

// --- Tests ---

func TestUpsert_FirstOrderCreates(t *testing.T) {
	store := newMockStore()
	agg := NewAggregator(store)

	c, err := agg.Upsert(context.Background(), "Layla@Example.com ", "Layla", "+966500000000", decimal.RequireFromString("115"))
	require.NoError(t, err)

	assert.Equal(t, "layla@example.com", c.Email)
	assert.Equal(t, 1, c.TotalOrders)
	assert.True(t, decimal.RequireFromString("115").Equal(c.LifetimeValue))
	assert.NotEmpty(t, c.ID)
	assert.Len(t, store.byEmail, 1)
}

func TestUpsert_SecondOrderIncrements(t *testing.T) {
	store := newMockStore()
	agg := NewAggregator(store)
	ctx := context.Background()

	first, err := agg.Upsert(ctx, "omar@example.com", "Omar", "111", decimal.RequireFromString("100.50"))
	require.NoError(t, err)

	second, err := agg.Upsert(ctx, "OMAR@example.com", "Omar Renamed", "222", decimal.RequireFromString("49.50"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.TotalOrders)
	assert.True(t, decimal.RequireFromString("150").Equal(second.LifetimeValue))
	assert.Equal(t, "Omar", second.Name, "identity fields are first-write-wins")
	assert.Equal(t, "111", second.Phone)
	assert.Len(t, store.byEmail, 1)
}

func TestUpsert_Validation(t *testing.T) {
	tests := []struct {
		name  string
		email string
		cname string
		total string
		field string
	}{
		{name: "missing email", email: "", cname: "A", total: "1", field: "customer_email"},
		{name: "placeholder email", email: " N/A ", cname: "A", total: "1", field: "customer_email"},
		{name: "dash email", email: "-", cname: "A", total: "1", field: "customer_email"},
		{name: "malformed email", email: "not-an-email", cname: "A", total: "1", field: "customer_email"},
		{name: "display name form", email: "Bob <bob@example.com>", cname: "A", total: "1", field: "customer_email"},
		{name: "missing name", email: "a@example.com", cname: "  ", total: "1", field: "customer_name"},
		{name: "negative total", email: "a@example.com", cname: "A", total: "-1", field: "order_total"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			agg := NewAggregator(store)

			_, err := agg.Upsert(context.Background(), tt.email, tt.cname, "", decimal.RequireFromString(tt.total))
			var vErr *domain.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Empty(t, store.byEmail)
		})
	}
}

func TestUpsert_StoreError(t *testing.T) {
	store := newMockStore()
	store.err = errors.New("db down")
	agg := NewAggregator(store)

	_, err := agg.Upsert(context.Background(), "a@example.com", "A", "", decimal.NewFromInt(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert customer a@example.com")
}

func TestUpsert_ConcurrentFirstOrders(t *testing.T) {
	store := newMockStore()
	agg := NewAggregator(store)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := agg.Upsert(context.Background(), "rush@example.com", "Rush", "", decimal.NewFromInt(10))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, err := store.GetByEmail(context.Background(), "rush@example.com")
	require.NoError(t, err)
	assert.Equal(t, 20, c.TotalOrders)
	assert.True(t, decimal.NewFromInt(200).Equal(c.LifetimeValue))
	assert.Len(t, store.byEmail, 1)
}

func TestNormalizeEmail(t *testing.T) {
	got, err := NormalizeEmail("  Sara.K@Rihla.SA ")
	require.NoError(t, err)
	assert.Equal(t, "sara.k@rihla.sa", got)

	for _, raw := range []string{"null", "undefined", "none", "NULL"} {
		_, err := NormalizeEmail(raw)
		assert.Error(t, err, raw)
	}
}
