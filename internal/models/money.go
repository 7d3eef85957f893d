package models

import "github.com/shopspring/decimal"

// minorUnitOverrides lists currencies whose smallest subdivision is not the
// usual two decimal places. Everything else defaults to 2.
var minorUnitOverrides = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
}

// MinorUnits returns the number of decimal places for a currency code.
func MinorUnits(currency string) int32 {
	if n, ok := minorUnitOverrides[currency]; ok {
		return n
	}
	return 2
}

// RoundMoney rounds an amount to the currency's minor units using
// round-half-to-even, so repeated settlement runs don't accumulate bias.
func RoundMoney(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.RoundBank(MinorUnits(currency))
}

// Epsilon is the tolerance under which a balance is treated as zero.
// Anything smaller is rounding noise, not real debt.
var Epsilon = decimal.RequireFromString("0.005")

// IsZeroAmount reports whether amount is zero within Epsilon.
func IsZeroAmount(amount decimal.Decimal) bool {
	return amount.Abs().LessThan(Epsilon)
}
