package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	diff := got.Sub(dec(want)).Abs()
	assert.True(t, diff.LessThanOrEqual(dec("0.01")), "%s: want %s, got %s", field, want, got)
}

func TestQuote_MultiItemSAR(t *testing.T) {
	c := NewCalculator(nil)

	q, err := c.Quote(Request{
		Lines: []Line{
			{ProductID: "p1", UnitPrice: dec("299.99"), Quantity: 2},
			{ProductID: "p2", UnitPrice: dec("149.99"), Quantity: 3},
			{ProductID: "p3", UnitPrice: dec("499.99"), Quantity: 1},
		},
		Currency: "SAR",
		ApplyTax: true,
		Shipping: dec("50"),
	})
	require.NoError(t, err)

	assertMoney(t, "1549.94", q.Subtotal, "subtotal")
	assert.True(t, dec("0.15").Equal(q.TaxRate))
	assertMoney(t, "232.491", q.TaxAmount, "tax")
	assertMoney(t, "1832.431", q.Total, "total")
	assert.True(t, q.Total.Equal(q.Subtotal.Add(q.TaxAmount).Add(q.Shipping)))
}

func TestQuote_TaxRates(t *testing.T) {
	tests := []struct {
		name     string
		currency string
		applyTax bool
		wantRate string
		wantTax  string
	}{
		{name: "SAR taxed", currency: "SAR", applyTax: true, wantRate: "0.15", wantTax: "15.00"},
		{name: "INR taxed", currency: "INR", applyTax: true, wantRate: "0.18", wantTax: "18.00"},
		{name: "lower case code", currency: " usd ", applyTax: true, wantRate: "0.18", wantTax: "18.00"},
		{name: "unknown code uses default", currency: "GBP", applyTax: true, wantRate: "0", wantTax: "0"},
		{name: "tax not applied", currency: "SAR", applyTax: false, wantRate: "0", wantTax: "0"},
		{name: "tax not applied INR", currency: "INR", applyTax: false, wantRate: "0", wantTax: "0"},
	}

	c := NewCalculator(StandardTaxTable())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := c.Quote(Request{
				Lines:    []Line{{ProductID: "p1", UnitPrice: dec("100"), Quantity: 1}},
				Currency: tt.currency,
				ApplyTax: tt.applyTax,
			})
			require.NoError(t, err)
			assert.True(t, dec(tt.wantRate).Equal(q.TaxRate), "rate %s", q.TaxRate)
			assert.True(t, dec(tt.wantTax).Equal(q.TaxAmount), "tax %s", q.TaxAmount)
		})
	}
}

func TestQuote_CustomDefaultRate(t *testing.T) {
	c := NewCalculator(StandardTaxTable().WithDefaultRate(dec("0.05")))

	q, err := c.Quote(Request{
		Lines:    []Line{{ProductID: "p1", UnitPrice: dec("10"), Quantity: 2}},
		Currency: "JPY",
		ApplyTax: true,
	})
	require.NoError(t, err)
	assert.True(t, dec("0.05").Equal(q.TaxRate))
	assert.True(t, dec("1").Equal(q.TaxAmount))

	sar, err := c.Quote(Request{
		Lines:    []Line{{ProductID: "p1", UnitPrice: dec("10"), Quantity: 2}},
		Currency: "SAR",
		ApplyTax: true,
	})
	require.NoError(t, err)
	assert.True(t, dec("0.15").Equal(sar.TaxRate))
}

func TestQuote_Errors(t *testing.T) {
	c := NewCalculator(nil)

	t.Run("empty order", func(t *testing.T) {
		_, err := c.Quote(Request{Currency: "SAR"})
		require.ErrorIs(t, err, ErrEmptyOrder)
	})

	t.Run("zero quantity", func(t *testing.T) {
		_, err := c.Quote(Request{Lines: []Line{{ProductID: "p1", UnitPrice: dec("1"), Quantity: 0}}})
		var lineErr *InvalidLineItemError
		require.ErrorAs(t, err, &lineErr)
		assert.Equal(t, "p1", lineErr.ProductID)
	})

	t.Run("negative price", func(t *testing.T) {
		_, err := c.Quote(Request{Lines: []Line{{ProductID: "p2", UnitPrice: dec("-0.01"), Quantity: 1}}})
		var lineErr *InvalidLineItemError
		require.ErrorAs(t, err, &lineErr)
		assert.Equal(t, "p2", lineErr.ProductID)
	})

	t.Run("negative shipping", func(t *testing.T) {
		_, err := c.Quote(Request{
			Lines:    []Line{{ProductID: "p1", UnitPrice: dec("1"), Quantity: 1}},
			Shipping: dec("-5"),
		})
		require.ErrorIs(t, err, ErrNegativeShipping)
	})
}

func TestQuote_FreeItems(t *testing.T) {
	c := NewCalculator(nil)

	q, err := c.Quote(Request{
		Lines:    []Line{{ProductID: "gift", UnitPrice: decimal.Zero, Quantity: 3}},
		Currency: "SAR",
		ApplyTax: true,
		Shipping: dec("12.5"),
	})
	require.NoError(t, err)
	assert.True(t, q.Subtotal.IsZero())
	assert.True(t, q.TaxAmount.IsZero())
	assert.True(t, dec("12.5").Equal(q.Total))
}
