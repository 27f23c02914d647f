package customer

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/rihla-backoffice/internal/domain"
)

// ErrNotFound is returned when a requested customer does not exist.
var ErrNotFound = errors.New("customer not found")

// Customer is the aggregate record keyed by e-mail. TotalOrders and
// LifetimeValue only ever grow, and only through Aggregator.
type Customer struct {
	ID            string
	Name          string
	Email         string
	Phone         string
	TotalOrders   int
	LifetimeValue decimal.Decimal
	CreatedAt     time.Time
	LastOrderAt   time.Time
}

// Contribution is one order's effect on a customer record.
type Contribution struct {
	// ID is used only if the upsert creates the record.
	ID         string
	Email      string
	Name       string
	Phone      string
	OrderTotal decimal.Decimal
	At         time.Time
}

// Store persists customers.
type Store interface {
	// UpsertIncrement atomically inserts the customer or, when the e-mail
	// already exists, adds one order and OrderTotal to the existing record.
	// Name and phone of an existing record are left unchanged.
	UpsertIncrement(ctx context.Context, c Contribution) (*Customer, error)
	GetByID(ctx context.Context, id string) (*Customer, error)
	GetByEmail(ctx context.Context, email string) (*Customer, error)
}

// placeholders are values forms submit when the e-mail field was left blank.
var placeholders = map[string]struct{}{
	"":          {},
	"-":         {},
	"n/a":       {},
	"na":        {},
	"none":      {},
	"null":      {},
	"undefined": {},
}

// NormalizeEmail trims and lower-cases raw and validates its shape. Blank and
// placeholder values are rejected.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := placeholders[email]; ok {
		return "", domain.Invalid("customer_email", "is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", domain.Invalid("customer_email", "is not a valid address")
	}
	return email, nil
}
