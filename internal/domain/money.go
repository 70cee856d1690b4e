package domain

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency quote currency of the simulated balance.
const DefaultCurrency = "AUD"

const quantityPlaces = 8

// FormatBalance renders a cash amount in the given currency, e.g. "$1,234.50".
func FormatBalance(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(strings.ToUpper(currency))
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	factor := decimal.New(1, int32(cur.Fraction))
	minor := amount.Mul(factor).Round(0)
	return money.New(minor.IntPart(), cur.Code).Display()
}

// FormatQuantity renders a coin quantity with up to eight fraction digits.
func FormatQuantity(amount decimal.Decimal) string {
	return amount.Round(quantityPlaces).String()
}
