package sale

import (
	"github.com/shopspring/decimal"

	"github.com/averden/stationledger/internal/domain/money"
)

// Kind identifies what a transaction sells.
type Kind string

const (
	KindFuel    Kind = "fuel"
	KindProduct Kind = "product"
	KindService Kind = "service"
)

// Known fuel grades. FuelType is an open string so new grades do not
// require a code change; these cover the reference station data.
const (
	FuelRegular  = "regular"
	FuelMidgrade = "midgrade"
	FuelPremium  = "premium"
	FuelDiesel   = "diesel"
)

// LineItem is one priced line of a transaction.
//
// For fuel items Quantity is the dispensed volume and FuelType is
// required. For product items ProductRef points at the catalog entry.
// Service items always carry Quantity 1 with UnitPrice as the flat
// charge.
type LineItem struct {
	Kind       Kind            `json:"kind"`
	FuelType   string          `json:"fuel_type,omitempty"`
	Name       string          `json:"name,omitempty"`
	ProductRef string          `json:"product_ref,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Total      decimal.Decimal `json:"total"`
}

// ItemParams holds the raw inputs for BuildItem.
type ItemParams struct {
	FuelType   string
	Name       string
	ProductRef string
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
}

// BuildItem constructs a single validated line item. It is a pure
// function: Total is computed as round2(quantity * unitPrice) and no
// state is touched.
func BuildItem(kind Kind, p ItemParams) (LineItem, error) {
	item := LineItem{
		Kind:       kind,
		FuelType:   p.FuelType,
		Name:       p.Name,
		ProductRef: p.ProductRef,
		Quantity:   p.Quantity,
		UnitPrice:  p.UnitPrice,
	}

	switch kind {
	case KindFuel:
		if p.FuelType == "" {
			return LineItem{}, validationErrorf("fuel_type", "required for fuel items")
		}
	case KindProduct:
		if p.Name == "" && p.ProductRef == "" {
			return LineItem{}, validationErrorf("product", "name or product_ref required")
		}
	case KindService:
		// A service is a single flat charge.
		item.Quantity = decimal.NewFromInt(1)
	default:
		return LineItem{}, validationErrorf("kind", "unknown kind %q", kind)
	}

	if !item.Quantity.IsPositive() {
		return LineItem{}, validationErrorf("quantity", "must be greater than 0")
	}
	if item.UnitPrice.IsNegative() {
		return LineItem{}, validationErrorf("unit_price", "must not be negative")
	}

	item.Total = money.Round2(item.Quantity.Mul(item.UnitPrice))
	return item, nil
}

// Validate checks the line-item invariants on an already-built item,
// including total == round2(quantity * unitPrice). A mismatched total is
// reported, never silently corrected.
func (i LineItem) Validate() error {
	switch i.Kind {
	case KindFuel:
		if i.FuelType == "" {
			return validationErrorf("fuel_type", "required for fuel items")
		}
	case KindProduct:
		if i.Name == "" && i.ProductRef == "" {
			return validationErrorf("product", "name or product_ref required")
		}
	case KindService:
		if !i.Quantity.Equal(decimal.NewFromInt(1)) {
			return validationErrorf("quantity", "service items must have quantity 1")
		}
	default:
		return validationErrorf("kind", "unknown kind %q", i.Kind)
	}

	if !i.Quantity.IsPositive() {
		return validationErrorf("quantity", "must be greater than 0")
	}
	if i.UnitPrice.IsNegative() {
		return validationErrorf("unit_price", "must not be negative")
	}
	if want := money.Round2(i.Quantity.Mul(i.UnitPrice)); !i.Total.Equal(want) {
		return validationErrorf("total", "got %s, want %s", i.Total, want)
	}
	return nil
}
