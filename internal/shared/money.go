package shared

import "github.com/shopspring/decimal"

// MoneyPlaces is the scale of every stored amount.
const MoneyPlaces = 2

// MoneyTolerance absorbs rounding noise carried over from float-based history.
var MoneyTolerance = decimal.New(1, -MoneyPlaces)

// RoundMoney rounds half away from zero to cents, which is half-up for the
// non-negative amounts handled here.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}
