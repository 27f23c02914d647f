// Package pricing turns order lines into money: subtotal, tax, shipping and
// grand total, all in decimal arithmetic rounded to cents.
package pricing

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for quote validation.
var (
	ErrEmptyOrder       = errors.New("order has no line items")
	ErrNegativeShipping = errors.New("shipping charge must not be negative")
)

// InvalidLineItemError indicates a line with a non-positive quantity or a
// negative unit price.
type InvalidLineItemError struct {
	ProductID string
	Reason    string
}

func (e *InvalidLineItemError) Error() string {
	return fmt.Sprintf("invalid line item for product %s: %s", e.ProductID, e.Reason)
}

// Line is a priced (product, quantity) pair.
type Line struct {
	ProductID string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Total returns UnitPrice × Quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Request is the input to Quote.
type Request struct {
	Lines    []Line
	Currency string
	ApplyTax bool
	Shipping decimal.Decimal
}

// Quote is the priced result. Total always equals Subtotal + TaxAmount +
// Shipping exactly, since every component is rounded to cents before summing.
type Quote struct {
	Currency  string
	Subtotal  decimal.Decimal
	TaxRate   decimal.Decimal
	TaxAmount decimal.Decimal
	Shipping  decimal.Decimal
	Total     decimal.Decimal
}

// Calculator prices orders against a tax table.
type Calculator struct {
	taxes *TaxTable
}

// NewCalculator returns a Calculator backed by taxes. A nil table means
// StandardTaxTable.
func NewCalculator(taxes *TaxTable) *Calculator {
	if taxes == nil {
		taxes = StandardTaxTable()
	}
	return &Calculator{taxes: taxes}
}

// Quote validates the lines and computes the order's money fields. When tax is
// not applied both the rate and the amount are reported as zero.
func (c *Calculator) Quote(req Request) (Quote, error) {
	if len(req.Lines) == 0 {
		return Quote{}, ErrEmptyOrder
	}
	if req.Shipping.IsNegative() {
		return Quote{}, ErrNegativeShipping
	}

	subtotal := decimal.Zero
	for _, l := range req.Lines {
		if l.Quantity < 1 {
			return Quote{}, &InvalidLineItemError{ProductID: l.ProductID, Reason: "quantity must be at least 1"}
		}
		if l.UnitPrice.IsNegative() {
			return Quote{}, &InvalidLineItemError{ProductID: l.ProductID, Reason: "unit price must not be negative"}
		}
		subtotal = subtotal.Add(l.Total())
	}
	subtotal = subtotal.Round(2)

	q := Quote{
		Currency:  NormalizeCurrency(req.Currency),
		Subtotal:  subtotal,
		TaxRate:   decimal.Zero,
		TaxAmount: decimal.Zero,
		Shipping:  req.Shipping.Round(2),
	}
	if req.ApplyTax {
		q.TaxRate, _ = c.taxes.Rate(q.Currency)
		q.TaxAmount = subtotal.Mul(q.TaxRate).Round(2)
	}
	q.Total = q.Subtotal.Add(q.TaxAmount).Add(q.Shipping)

	return q, nil
}
