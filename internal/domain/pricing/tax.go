package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when an order does not name a currency.
const DefaultCurrency = "SAR"

// TaxTable maps ISO currency codes to the VAT rate charged on orders settled in
// that currency. Codes not in the table fall back to the default rate.
type TaxTable struct {
	rates       map[string]decimal.Decimal
	defaultRate decimal.Decimal
}

// NewTaxTable builds a table from the given rates. Codes are normalized to
// upper case.
func NewTaxTable(rates map[string]decimal.Decimal, defaultRate decimal.Decimal) *TaxTable {
	t := &TaxTable{
		rates:       make(map[string]decimal.Decimal, len(rates)),
		defaultRate: defaultRate,
	}
	for code, rate := range rates {
		t.rates[NormalizeCurrency(code)] = rate
	}
	return t
}

// StandardTaxTable returns the fixed back-office table: Saudi VAT at 15% and
// 18% for every other supported settlement currency. Unknown codes are not
// taxed.
func StandardTaxTable() *TaxTable {
	eighteen := decimal.RequireFromString("0.18")
	return NewTaxTable(map[string]decimal.Decimal{
		"SAR": decimal.RequireFromString("0.15"),
		"INR": eighteen,
		"USD": eighteen,
		"AED": eighteen,
		"EUR": eighteen,
	}, decimal.Zero)
}

// WithDefaultRate returns a copy of the table using rate for unknown codes.
func (t *TaxTable) WithDefaultRate(rate decimal.Decimal) *TaxTable {
	return NewTaxTable(t.rates, rate)
}

// Rate returns the rate for code and whether the code is known.
func (t *TaxTable) Rate(code string) (decimal.Decimal, bool) {
	r, ok := t.rates[NormalizeCurrency(code)]
	if !ok {
		return t.defaultRate, false
	}
	return r, true
}

// Supported reports whether code has an explicit entry.
func (t *TaxTable) Supported(code string) bool {
	_, ok := t.rates[NormalizeCurrency(code)]
	return ok
}

// NormalizeCurrency trims and upper-cases a currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
