// Package money centralises the monetary conventions of the API: amounts
// are decimals in major currency units (rupees) with full precision, and
// rounding to two decimal places happens only at a presentation boundary.
package money

import (
	"github.com/shopspring/decimal"
)

// minorUnitsPerMajor converts rupees to paise.
var minorUnitsPerMajor = decimal.NewFromInt(100)

// Round2 rounds an amount to two decimal places. This is the single
// presentation-boundary rounding function; intermediate arithmetic must
// stay at full precision.
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// ToMinorUnits converts a major-unit amount to minor units (paise),
// rounding to the nearest whole unit. Gateways consume minor units; this
// conversion happens exactly once, at the backend boundary call.
func ToMinorUnits(v decimal.Decimal) int64 {
	return v.Mul(minorUnitsPerMajor).Round(0).IntPart()
}

// FromMinorUnits converts paise back to a major-unit amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(minorUnitsPerMajor)
}

// MustParse parses a decimal literal and panics on malformed input. Used
// for configuration defaults and tests.
func MustParse(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
