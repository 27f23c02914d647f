package customer

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/rihla-backoffice/internal/domain"
)

// Aggregator maintains per-customer order counts and lifetime value.
type Aggregator struct {
	store Store
	now   func() time.Time
}

// NewAggregator returns an Aggregator writing through store.
func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store, now: time.Now}
}

// Upsert credits one order of orderTotal to the customer with the given
// e-mail, creating the record on first sight. The write is a single atomic
// store operation, so concurrent first orders from one address produce one
// record.
func (a *Aggregator) Upsert(ctx context.Context, email, name, phone string, orderTotal decimal.Decimal) (*Customer, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Invalid("customer_name", "is required")
	}
	if orderTotal.IsNegative() {
		return nil, domain.Invalid("order_total", "must not be negative")
	}

	c, err := a.store.UpsertIncrement(ctx, Contribution{
		ID:         uuid.NewString(),
		Email:      normalized,
		Name:       name,
		Phone:      strings.TrimSpace(phone),
		OrderTotal: orderTotal,
		At:         a.now().UTC(),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "upsert customer %s", normalized)
	}
	return c, nil
}
