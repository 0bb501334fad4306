package sale

import (
	"github.com/shopspring/decimal"

	"github.com/averden/stationledger/internal/domain/money"
)

// PointsPolicy computes loyalty points earned from a finalized total.
// The default implementation lives in the loyalty package; Compose only
// needs this one method.
type PointsPolicy interface {
	PointsFor(kind Kind, total decimal.Decimal) int64
}

// Compose aggregates validated line items into an unsaved Transaction:
// subtotal, tax, total, loyalty points, and the default pending payment
// status. It is a pure function — identical inputs yield identical
// output — and it never touches inventory or loyalty balances; applying
// the transaction's side effects is the coordinator's job.
//
// Tax derivation is deliberately asymmetric, matching how the business
// prices each kind:
//
//   - Fuel is pump-priced tax-inclusive. The total is fixed first
//     (quantity x unit price per item), then the subtotal is backed out
//     as round2(total / (1 + taxRate)) and tax is the remainder. With
//     multiple fuel items the derivation runs per item and the parts
//     are summed.
//   - Product and Service are tax-exclusive: subtotal is the rounded
//     item sum, tax is round2(subtotal * taxRate) on top.
//
// Both paths close over total == subtotal + tax exactly.
func Compose(kind Kind, items []LineItem, taxRate decimal.Decimal, policy PointsPolicy) (*Transaction, error) {
	if len(items) == 0 {
		return nil, validationErrorf("items", "at least one item required")
	}
	if taxRate.IsNegative() {
		return nil, validationErrorf("tax_rate", "must not be negative")
	}
	for _, item := range items {
		if item.Kind != kind {
			return nil, validationErrorf("items", "%s item in %s transaction", item.Kind, kind)
		}
		if err := item.Validate(); err != nil {
			return nil, err
		}
	}

	var subtotal, tax, total decimal.Decimal
	if kind == KindFuel {
		subtotal, tax, total = deriveTaxInclusive(items, taxRate)
	} else {
		subtotal, tax, total = deriveTaxExclusive(items, taxRate)
	}

	t := &Transaction{
		Kind:          kind,
		Items:         items,
		Subtotal:      subtotal,
		Tax:           tax,
		Total:         total,
		PaymentStatus: StatusPending,
	}
	if policy != nil {
		t.LoyaltyPointsEarned = policy.PointsFor(kind, total)
	}
	return t, nil
}

// deriveTaxInclusive backs subtotal and tax out of per-item pump totals.
func deriveTaxInclusive(items []LineItem, taxRate decimal.Decimal) (subtotal, tax, total decimal.Decimal) {
	divisor := decimal.NewFromInt(1).Add(taxRate)
	for _, item := range items {
		itemSubtotal := money.Round2(item.Total.Div(divisor))
		subtotal = subtotal.Add(itemSubtotal)
		tax = tax.Add(item.Total.Sub(itemSubtotal))
		total = total.Add(item.Total)
	}
	return subtotal, tax, total
}

// deriveTaxExclusive adds tax on top of the rounded item sum.
func deriveTaxExclusive(items []LineItem, taxRate decimal.Decimal) (subtotal, tax, total decimal.Decimal) {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Total)
	}
	subtotal = money.Round2(sum)
	tax = money.Round2(subtotal.Mul(taxRate))
	total = subtotal.Add(tax)
	return subtotal, tax, total
}
