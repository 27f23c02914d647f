package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/rihla-backoffice/internal/domain"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// DefaultPaymentMethod is recorded when the caller does not name one.
const DefaultPaymentMethod = "Cash"

// Status is the order lifecycle label. Updates overwrite it without
// transition checks.
type Status string

// Known order statuses.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ParseStatus validates a status label. Matching is case-insensitive.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCancelled:
		return st, nil
	default:
		return "", domain.Invalid("status", "must be one of pending, processing, completed, cancelled")
	}
}

// CustomerSnapshot is the customer data copied onto the order at placement.
// Later edits to the customer record do not change it.
type CustomerSnapshot struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

// Item is a persisted line with the product data captured at placement.
type Item struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	SKU         string          `json:"sku"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Order is a placed order with its computed money fields.
type Order struct {
	ID            string
	OrderNumber   string
	Customer      CustomerSnapshot
	BrandID       string
	BrandName     string
	Items         []Item
	Currency      string
	ApplyTax      bool
	Subtotal      decimal.Decimal
	TaxRate       decimal.Decimal
	TaxAmount     decimal.Decimal
	Shipping      decimal.Decimal
	Total         decimal.Decimal
	PaymentMethod string
	Status        Status
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	BrandID string
	Status  Status
	Limit   int
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)
	ListByCustomerEmail(ctx context.Context, email string) ([]Order, error)
}
