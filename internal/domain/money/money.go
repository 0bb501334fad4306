// Package money provides the fixed-precision arithmetic used for all
// monetary amounts and fuel quantities in the ledger. Amounts are
// shopspring decimals end to end; binary floating point never enters a
// comparison or a stored field.
package money

import "github.com/shopspring/decimal"

// QuantityPrecision is the default number of fraction digits kept for
// dispensed quantities (gallons). Quantities are quantized, not rounded
// through Round2, because they are not currency.
const QuantityPrecision int32 = 2

// Round2 rounds a monetary amount to 2 fraction digits, half up.
// Every stored monetary field passes through Round2 exactly once, at the
// point it is finalized. Intermediate sums stay unrounded so rounding
// error cannot compound.
func Round2(d decimal.Decimal) decimal.Decimal {
	// decimal.Round is half-away-from-zero, which is half-up for the
	// non-negative amounts this ledger deals in.
	return d.Round(2)
}

// Quantize truncates a quantity to the given number of fraction digits.
func Quantize(d decimal.Decimal, precision int32) decimal.Decimal {
	return d.Truncate(precision)
}

// FloorUnits multiplies an amount by an integer per-unit rate and floors
// the result to a whole number. Used for loyalty point accrual.
func FloorUnits(amount decimal.Decimal, rate int64) int64 {
	return amount.Mul(decimal.NewFromInt(rate)).Floor().IntPart()
}

// IsNonNegative reports whether d is zero or greater.
func IsNonNegative(d decimal.Decimal) bool {
	return !d.IsNegative()
}
